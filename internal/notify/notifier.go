// Package notify fans trading notifications out to Telegram, Discord and the
// console. Delivery is best effort: failures are logged and never reach the
// trading loops.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Event types accepted by the notify.events filter.
const (
	EventBuy          = "buy"
	EventSell         = "sell"
	EventStopLoss     = "stop_loss"
	EventPriceAlert   = "price_alert"
	EventError        = "error"
	EventSystem       = "system"
	EventDailySummary = "daily_summary"
)

// Sender is a single notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// FieldSender is implemented by senders that can render a message as
// structured rows instead of plain text.
type FieldSender interface {
	SendFields(ctx context.Context, title string, fields []Field) error
}

// Field is one labelled line of a notification.
type Field struct {
	Label string
	Value string
}

// Message is a rendered notification.
type Message struct {
	Title  string
	Fields []Field
}

// Text renders the fields as "Label: value" lines.
func (m Message) Text() string {
	lines := make([]string, 0, len(m.Fields))
	for _, f := range m.Fields {
		lines = append(lines, f.Label+": "+f.Value)
	}
	return strings.Join(lines, "\n")
}

// Notifier dispatches notifications to every registered sender, dropping
// events that are not in the allowed set.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier builds a Notifier. An empty events list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event passes the filter.
func (n *Notifier) Enabled(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify delivers msg to all senders if event is allowed. The returned error
// joins every sender failure; one failing sender does not stop the others.
func (n *Notifier) Notify(ctx context.Context, event string, msg Message) error {
	if !n.Enabled(event) {
		n.logger.DebugContext(ctx, "notify: event filtered", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		var err error
		if fs, ok := s.(FieldSender); ok {
			err = fs.SendFields(ctx, msg.Title, msg.Fields)
		} else {
			err = s.Send(ctx, msg.Title, msg.Text())
		}
		if err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// emit is Notify with the error dropped; it has already been logged.
func (n *Notifier) emit(ctx context.Context, event string, msg Message) {
	_ = n.Notify(ctx, event, msg)
}
