package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tailbot/internal/domain"
	"github.com/alanyoungcy/tailbot/internal/notify"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
	bodies []string
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, message)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventFilter(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	n := notify.NewNotifier([]notify.Sender{rec}, []string{"buy", " stop_loss "}, quietLogger())

	n.NotifyBuy(context.Background(), "Lakers vs Celtics", 92, 10, 10.869565)
	n.NotifyPriceAlert(context.Background(), "Lakers vs Celtics", 91, "entry")
	n.NotifyStopLoss(context.Background(), "Lakers vs Celtics", 92, 84, 0.87)

	assert.Equal(t, []string{"BUY executed", "STOP-LOSS triggered"}, rec.titles)
	assert.True(t, n.Enabled("stop_loss"))
	assert.False(t, n.Enabled("price_alert"))
}

func TestEmptyFilterAllowsEverything(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	n := notify.NewNotifier([]notify.Sender{rec}, nil, quietLogger())

	n.NotifySystemStop(context.Background())
	n.NotifyError(context.Background(), "scan", errors.New("boom"))

	require.Len(t, rec.titles, 2)
	assert.Contains(t, rec.bodies[1], "Where: scan")
	assert.Contains(t, rec.bodies[1], "Detail: boom")
}

func TestSenderFailureDoesNotStopOthers(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := notify.NewNotifier([]notify.Sender{bad, good}, nil, quietLogger())

	err := n.Notify(context.Background(), notify.EventSystem, notify.Message{Title: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Equal(t, []string{"hello"}, good.titles)

	// the template methods swallow the error
	assert.NotPanics(t, func() {
		n.NotifySell(context.Background(), "q", 95, 10, 0.5)
	})
	assert.Len(t, good.titles, 2)
}

func TestTemplates(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	n := notify.NewNotifier([]notify.Sender{rec}, nil, quietLogger())
	ctx := context.Background()

	n.NotifyBuy(ctx, "Will the Lakers win?", 92, 10, 10.869565)
	assert.Equal(t, "Market: Will the Lakers win?\nPrice: 92.0¢\nAmount: $10.00\nSize: 10.8696", rec.bodies[0])

	n.NotifyStopLoss(ctx, "Will the Lakers win?", 92, 84, 0.87)
	assert.Contains(t, rec.bodies[1], "Exit: 84.0¢")
	assert.Contains(t, rec.bodies[1], "Loss: $0.87")

	n.NotifyPriceAlert(ctx, "q", 85, "stop_loss")
	assert.Equal(t, "Stop-loss threshold reached", rec.titles[2])

	n.NotifyDailySummary(ctx, domain.DailyStats{
		Date:        time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		TotalTrades: 4,
		TotalVolume: 40.2,
		RealizedPnL: 0.2,
		WinTrades:   1,
		LossTrades:  1,
	})
	assert.Equal(t, "Daily summary 2026-03-14", rec.titles[3])
	assert.Contains(t, rec.bodies[3], "Win rate: 50%")
	assert.Contains(t, rec.bodies[3], "Realized PnL: $0.20")

	n.NotifySystemStart(ctx, domain.DefaultTradingSettings())
	assert.Contains(t, rec.bodies[4], "Auto trading: off")
	assert.Contains(t, rec.bodies[4], "Entry: 90.0¢")
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := notify.NewTelegramSender("123:abc", "-100", notify.WithTelegramBaseURL(srv.URL+"/"))
	require.NoError(t, s.Send(context.Background(), "BUY executed", "Price: 92.0¢"))

	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "-100", got["chat_id"])
	assert.Equal(t, "Markdown", got["parse_mode"])
	assert.Equal(t, "*BUY executed*\nPrice: 92.0¢", got["text"])
}

func TestTelegramSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	s := notify.NewTelegramSender("t", "c", notify.WithTelegramBaseURL(srv.URL))
	err := s.Send(context.Background(), "x", "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Contains(t, err.Error(), "chat not found")
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, notify.NewDiscordSender(srv.URL).Send(context.Background(), "Error", "Detail: boom"))
	assert.Equal(t, "**Error**\nDetail: boom", got["content"])
}

func TestConsoleSenderRendersTable(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewNotifier([]notify.Sender{notify.NewConsoleWriter(&buf)}, nil, quietLogger())

	n.NotifyBuy(context.Background(), "Will the Lakers win?", 92, 10, 10.869565)

	out := buf.String()
	assert.Contains(t, out, "BUY executed")
	assert.Contains(t, out, "Will the Lakers win?")
	assert.Contains(t, out, "$10.00")
	// rendered as table rows rather than "Label: value" text
	assert.False(t, strings.Contains(out, "Amount: $10.00"))
}
