package s3blob_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3blob "github.com/alanyoungcy/tailbot/internal/blob/s3"
	"github.com/alanyoungcy/tailbot/internal/domain"
)

type object struct {
	contentType string
	body        []byte
}

type fakeWriter struct {
	objects map[string]object
	err     error
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if w.objects == nil {
		w.objects = map[string]object{}
	}
	w.objects[path] = object{contentType: contentType, body: body}
	return nil
}

type fakeTrades struct {
	domain.TradeStore
	trades []domain.Trade
	since  time.Time
}

func (f *fakeTrades) ListSince(_ context.Context, since time.Time) ([]domain.Trade, error) {
	f.since = since
	return f.trades, nil
}

type fakeAudit struct {
	domain.AuditStore
	events []string
	detail []map[string]any
}

func (f *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	f.events = append(f.events, event)
	f.detail = append(f.detail, detail)
	return nil
}

func TestArchivePosition(t *testing.T) {
	opened := time.Date(2026, 2, 28, 22, 0, 0, 0, time.UTC)
	closed := time.Date(2026, 3, 1, 1, 30, 0, 0, time.UTC)
	pos := domain.Position{
		ID:          "pos-1",
		MarketID:    "m-1",
		TokenID:     "tok-yes",
		Size:        10.869565,
		AvgPrice:    92,
		Cost:        10,
		RealizedPnL: -0.76,
		Status:      domain.PositionStatusClosed,
		OpenedAt:    opened,
		ClosedAt:    &closed,
	}
	w := &fakeWriter{}
	a := s3blob.NewArchiver(w, &fakeTrades{}, nil)

	require.NoError(t, a.ArchivePosition(context.Background(), pos))

	obj, ok := w.objects["archive/positions/2026-03/pos-1.json"]
	require.True(t, ok, "object keyed by close month")
	assert.Equal(t, "application/json", obj.contentType)

	var got map[string]any
	require.NoError(t, json.Unmarshal(obj.body, &got))
	assert.Equal(t, "m-1", got["market_id"])
	assert.Equal(t, "CLOSED", got["status"])
	assert.InDelta(t, -0.76, got["realized_pnl"], 1e-9)
}

func TestArchivePositionRequiresID(t *testing.T) {
	a := s3blob.NewArchiver(&fakeWriter{}, &fakeTrades{}, nil)
	err := a.ArchivePosition(context.Background(), domain.Position{})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestArchiveTradesWritesJSONL(t *testing.T) {
	since := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	trades := &fakeTrades{trades: []domain.Trade{
		{ID: 1, OrderID: "o-1", MarketID: "m-1", Side: domain.OrderSideBuy, Price: 92, Size: 10.869565, Amount: 10, CreatedAt: since.Add(time.Hour)},
		{ID: 2, OrderID: "o-2", MarketID: "m-1", Side: domain.OrderSideSell, Price: 85, Size: 10.869565, Amount: 9.23913, PnL: -0.76087, CreatedAt: since.Add(2 * time.Hour)},
	}}
	audit := &fakeAudit{}
	w := &fakeWriter{}
	a := s3blob.NewArchiver(w, trades, audit)

	n, err := a.ArchiveTrades(context.Background(), since)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, since, trades.since)

	path := "archive/trades/2026-03/20260314T000000Z.jsonl"
	obj, ok := w.objects[path]
	require.True(t, ok)
	assert.Equal(t, "application/x-ndjson", obj.contentType)

	var lines []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(obj.body))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "BUY", lines[0]["side"])
	assert.Equal(t, "SELL", lines[1]["side"])

	require.Equal(t, []string{"archive.trades"}, audit.events)
	assert.Equal(t, path, audit.detail[0]["path"])
	assert.EqualValues(t, 2, audit.detail[0]["count"])
}

func TestArchiveTradesNothingToDo(t *testing.T) {
	w := &fakeWriter{}
	audit := &fakeAudit{}
	n, err := s3blob.NewArchiver(w, &fakeTrades{}, audit).ArchiveTrades(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
	assert.Empty(t, audit.events)
}

func TestArchiveTradesUploadError(t *testing.T) {
	boom := errors.New("bucket gone")
	trades := &fakeTrades{trades: []domain.Trade{{ID: 1, OrderID: "o-1", Side: domain.OrderSideBuy}}}
	audit := &fakeAudit{}
	_, err := s3blob.NewArchiver(&fakeWriter{err: boom}, trades, audit).ArchiveTrades(context.Background(), time.Now())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, audit.events)
}
