package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

var (
	errPositionCap      = errors.New("max position amount reached")
	errAlreadyProcessed = errors.New("market already processed")
)

// entryTarget describes one BUY attempt.
type entryTarget struct {
	marketID string
	tokenID  string
	question string
	price    float64
	amount   float64
	market   bool
	trigger  domain.TriggerType
}

func marketLock(marketID string) string { return "market:" + marketID }

// enter checks funds and exposure, places the BUY and records it. The market
// must already be registered. A rejected order is persisted as FAILED and
// returned with its error; the registry is only updated once everything has
// been stored.
func (s *Scheduler) enter(ctx context.Context, t entryTarget, settings domain.TradingSettings) (domain.Order, error) {
	if s.gateway == nil {
		return domain.Order{}, domain.ErrTradingDisabled
	}
	unlock, err := s.locks.Acquire(ctx, marketLock(t.marketID), marketLockTTL)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlock()

	if t.trigger == domain.TriggerEntry {
		done, err := s.processed.Contains(ctx, t.marketID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("trader: processed lookup: %w", err)
		}
		if done {
			return domain.Order{}, errAlreadyProcessed
		}
		// the processed set may have been reset by a restart
		_, err = s.store.Positions().GetOpenByMarket(ctx, t.marketID)
		switch {
		case err == nil:
			return domain.Order{}, errAlreadyProcessed
		case !errors.Is(err, domain.ErrNotFound):
			return domain.Order{}, fmt.Errorf("trader: open position lookup: %w", err)
		}
	}

	s.setPending(t.marketID, true)
	defer s.setPending(t.marketID, false)

	opCtx, cancel := s.detached(ctx)
	defer cancel()

	balance, err := s.gateway.GetBalance(opCtx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("trader: get balance: %w", err)
	}
	if balance.Available < t.amount {
		return domain.Order{}, &domain.InsufficientFundsError{Available: balance.Available, Required: t.amount}
	}
	if exposure := s.registry.Exposure(); exposure+t.amount > settings.MaxPositionAmount {
		return domain.Order{}, fmt.Errorf("trader: exposure %.2f + %.2f exceeds %.2f: %w",
			exposure, t.amount, settings.MaxPositionAmount, errPositionCap)
	}

	order, err := s.gateway.PlaceOrder(opCtx, domain.OrderIntent{
		MarketID:    t.marketID,
		TokenID:     t.tokenID,
		Side:        domain.OrderSideBuy,
		Price:       t.price,
		Amount:      t.amount,
		MarketOrder: t.market,
		Trigger:     t.trigger,
	})
	if err != nil {
		s.saveFailed(opCtx, order, err)
		return order, fmt.Errorf("trader: place buy: %w", err)
	}

	order, err = s.recordEntry(opCtx, order, t.question, settings.StopLossPrice)
	return order, err
}

// recordEntry persists a filled or resting BUY and commits the registry.
// The market is marked processed even when persistence fails.
func (s *Scheduler) recordEntry(ctx context.Context, order domain.Order, question string, stopLoss float64) (domain.Order, error) {
	defer s.markProcessed(ctx, order.MarketID)
	ensureOrderID(&order)
	if err := s.store.Orders().Save(ctx, order); err != nil {
		return order, fmt.Errorf("trader: save order: %w", err)
	}

	now := s.now().UTC()
	pos := domain.Position{
		ID:             uuid.NewString(),
		MarketID:       order.MarketID,
		TokenID:        order.TokenID,
		MarketQuestion: question,
		Size:           order.Size,
		AvgPrice:       order.Price,
		CurrentPrice:   order.Price,
		Cost:           order.Amount,
		Value:          order.Amount,
		Status:         domain.PositionStatusOpen,
		StopLossPrice:  stopLoss,
		OpenedAt:       now,
	}
	if err := s.store.Positions().Save(ctx, pos); err != nil {
		return order, fmt.Errorf("trader: save position: %w", err)
	}
	if err := s.store.Trades().Record(ctx, domain.Trade{
		OrderID:   order.ID,
		MarketID:  order.MarketID,
		Side:      domain.OrderSideBuy,
		Price:     order.Price,
		Size:      order.Size,
		Amount:    order.Amount,
		CreatedAt: now,
	}); err != nil {
		return order, fmt.Errorf("trader: record trade: %w", err)
	}

	if _, err := s.registry.MarkPositioned(order.MarketID, order.Size); err != nil {
		return order, fmt.Errorf("trader: mark positioned: %w", err)
	}
	s.logger.InfoContext(ctx, "trader: position opened",
		slog.String("market_id", order.MarketID),
		slog.String("order_id", order.ID),
		slog.String("trigger", string(order.TriggerType)),
		slog.Float64("price", order.Price),
		slog.Float64("amount", order.Amount),
		slog.Float64("size", order.Size),
	)
	s.audit(ctx, "trade.entry", map[string]any{
		"order_id":    order.ID,
		"position_id": pos.ID,
		"market_id":   order.MarketID,
		"price":       order.Price,
		"amount":      order.Amount,
		"trigger":     string(order.TriggerType),
	})
	s.notifier.NotifyBuy(ctx, question, order.Price, order.Amount, order.Size)
	s.publish(ctx, domain.ChannelTrading, domain.Event{
		Kind:     domain.EventEntry,
		MarketID: order.MarketID,
		Data: map[string]any{
			"order_id": order.ID,
			"price":    order.Price,
			"amount":   order.Amount,
			"size":     order.Size,
			"trigger":  string(order.TriggerType),
		},
	})
	return order, nil
}

func (s *Scheduler) markProcessed(ctx context.Context, marketID string) {
	if err := s.processed.Add(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "trader: mark processed failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

// saveFailed stores a rejected order so the attempt is visible in history.
// Errors that happened before an order was built are not persisted.
func (s *Scheduler) saveFailed(ctx context.Context, order domain.Order, cause error) {
	if order.MarketID == "" {
		return
	}
	order.Status = domain.OrderStatusFailed
	if order.ErrorMessage == "" {
		order.ErrorMessage = cause.Error()
	}
	ensureOrderID(&order)
	if err := s.store.Orders().Save(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "trader: save failed order",
			slog.String("market_id", order.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

// ensureOrderID gives orders the exchange never acknowledged a local id.
func ensureOrderID(o *domain.Order) {
	if o.ID == "" {
		o.ID = "local-" + uuid.NewString()
	}
}

func (s *Scheduler) setPending(marketID string, pending bool) {
	_, _ = s.registry.Update(marketID, func(m *domain.MonitoredMarket) { m.EntryPending = pending })
}

// audit appends to the audit log, if the store keeps one.
func (s *Scheduler) audit(ctx context.Context, event string, detail map[string]any) {
	a := s.store.Audit()
	if a == nil {
		return
	}
	if err := a.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "trader: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
