package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
)

// ConsoleSender prints notifications to a terminal, rendering fields as a
// two-column table.
type ConsoleSender struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewConsoleSender writes to stdout.
func NewConsoleSender() *ConsoleSender {
	return NewConsoleWriter(os.Stdout)
}

// NewConsoleWriter writes to w.
func NewConsoleWriter(w io.Writer) *ConsoleSender {
	return &ConsoleSender{out: w, now: time.Now}
}

func (c *ConsoleSender) Name() string { return "console" }

func (c *ConsoleSender) Send(_ context.Context, title, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "[%s] %s\n%s\n", c.now().Format("15:04:05"), title, message)
	return err
}

func (c *ConsoleSender) SendFields(_ context.Context, title string, fields []Field) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.out, "\n[%s] %s\n", c.now().Format("15:04:05"), title); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Field", "Value")
	for _, f := range fields {
		table.Append(f.Label, f.Value)
	}
	return table.Render()
}
