package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

const (
	contentJSON  = "application/json"
	contentJSONL = "application/x-ndjson"
)

// Archiver implements domain.Archiver on top of any BlobWriter. Records are
// copied, never removed from the primary store.
type Archiver struct {
	writer domain.BlobWriter
	trades domain.TradeStore
	audit  domain.AuditStore
}

// NewArchiver returns an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, trades domain.TradeStore, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, trades: trades, audit: audit}
}

var _ domain.Archiver = (*Archiver)(nil)

type positionRecord struct {
	ID                string     `json:"id"`
	MarketID          string     `json:"market_id"`
	TokenID           string     `json:"token_id"`
	Question          string     `json:"market_question,omitempty"`
	Size              float64    `json:"size"`
	AvgPrice          float64    `json:"avg_price"`
	ExitPrice         float64    `json:"exit_price"`
	Cost              float64    `json:"cost"`
	Value             float64    `json:"value"`
	RealizedPnL       float64    `json:"realized_pnl"`
	Status            string     `json:"status"`
	StopLossPrice     float64    `json:"stop_loss_price"`
	StopLossTriggered bool       `json:"stop_loss_triggered"`
	OpenedAt          time.Time  `json:"opened_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
}

type tradeRecord struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"order_id"`
	MarketID  string    `json:"market_id"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Amount    float64   `json:"amount"`
	PnL       float64   `json:"pnl"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchivePosition writes a closed position as a standalone JSON document at
// archive/positions/YYYY-MM/<id>.json, partitioned by close month.
func (a *Archiver) ArchivePosition(ctx context.Context, pos domain.Position) error {
	if pos.ID == "" {
		return &domain.ValidationError{Field: "position.id", Reason: "must not be empty"}
	}
	at := pos.OpenedAt
	if pos.ClosedAt != nil {
		at = *pos.ClosedAt
	}
	body, err := json.Marshal(positionRecord{
		ID:                pos.ID,
		MarketID:          pos.MarketID,
		TokenID:           pos.TokenID,
		Question:          pos.MarketQuestion,
		Size:              pos.Size,
		AvgPrice:          pos.AvgPrice,
		ExitPrice:         pos.CurrentPrice,
		Cost:              pos.Cost,
		Value:             pos.Value,
		RealizedPnL:       pos.RealizedPnL,
		Status:            string(pos.Status),
		StopLossPrice:     pos.StopLossPrice,
		StopLossTriggered: pos.StopLossTriggered,
		OpenedAt:          pos.OpenedAt.UTC(),
		ClosedAt:          pos.ClosedAt,
	})
	if err != nil {
		return fmt.Errorf("s3blob: marshal position %s: %w", pos.ID, err)
	}

	path := fmt.Sprintf("archive/positions/%s/%s.json", at.UTC().Format("2006-01"), pos.ID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(body), contentJSON); err != nil {
		return fmt.Errorf("s3blob: archive position: %w", err)
	}
	return nil
}

// ArchiveTrades exports every trade recorded since the given time as one
// JSONL object under archive/trades/YYYY-MM/, named after the cutoff. It
// returns the number of exported trades; nothing is written when there are
// none.
func (a *Archiver) ArchiveTrades(ctx context.Context, since time.Time) (int64, error) {
	trades, err := a.trades.ListSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	records := make([]tradeRecord, 0, len(trades))
	for _, t := range trades {
		records = append(records, tradeRecord{
			ID:        t.ID,
			OrderID:   t.OrderID,
			MarketID:  t.MarketID,
			Side:      string(t.Side),
			Price:     t.Price,
			Size:      t.Size,
			Amount:    t.Amount,
			PnL:       t.PnL,
			CreatedAt: t.CreatedAt.UTC(),
		})
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	since = since.UTC()
	path := fmt.Sprintf("archive/trades/%s/%s.jsonl", since.Format("2006-01"), since.Format("20060102T150405Z"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), contentJSONL); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.trades", map[string]any{
			"path":  path,
			"count": count,
			"since": since.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
		}
	}
	return count, nil
}

// marshalJSONL encodes items one JSON object per line.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
