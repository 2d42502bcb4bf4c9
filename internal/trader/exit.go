package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// stopLoss closes the position held in m at price. A missing position is
// logged and ignored.
func (s *Scheduler) stopLoss(ctx context.Context, m domain.MonitoredMarket, price float64) error {
	pos, err := s.exit(ctx, m.MarketID, price, domain.TriggerStopLoss)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "trader: stop-loss without open position",
			slog.String("market_id", m.MarketID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	s.notifier.NotifyStopLoss(ctx, pos.MarketQuestion, pos.AvgPrice, price, -pos.RealizedPnL)
	s.afterExit(ctx, pos)
	return nil
}

// exit sells the whole open position in marketID and records the result:
// order, closed position, SELL trade, daily pnl and registry.
func (s *Scheduler) exit(ctx context.Context, marketID string, price float64, trigger domain.TriggerType) (domain.Position, error) {
	if s.gateway == nil {
		return domain.Position{}, domain.ErrTradingDisabled
	}
	unlock, err := s.locks.Acquire(ctx, marketLock(marketID), marketLockTTL)
	if err != nil {
		return domain.Position{}, err
	}
	defer unlock()

	opCtx, cancel := s.detached(ctx)
	defer cancel()

	pos, err := s.store.Positions().GetOpenByMarket(opCtx, marketID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("trader: open position %s: %w", marketID, err)
	}

	order, err := s.gateway.PlaceOrder(opCtx, domain.OrderIntent{
		MarketID:    marketID,
		TokenID:     pos.TokenID,
		Side:        domain.OrderSideSell,
		Price:       price,
		Size:        pos.Size,
		MarketOrder: true,
		Trigger:     trigger,
	})
	if err != nil {
		s.saveFailed(opCtx, order, err)
		return pos, fmt.Errorf("trader: place sell: %w", err)
	}
	ensureOrderID(&order)
	if err := s.store.Orders().Save(opCtx, order); err != nil {
		return pos, fmt.Errorf("trader: save order: %w", err)
	}

	proceeds := pos.Size * price / 100
	now := s.now().UTC()
	pos.Close(price, proceeds, trigger == domain.TriggerStopLoss, now)
	if err := s.store.Positions().Save(opCtx, pos); err != nil {
		return pos, fmt.Errorf("trader: save position: %w", err)
	}
	if err := s.store.Trades().Record(opCtx, domain.Trade{
		OrderID:   order.ID,
		MarketID:  marketID,
		Side:      domain.OrderSideSell,
		Price:     price,
		Size:      pos.Size,
		Amount:    proceeds,
		PnL:       pos.RealizedPnL,
		CreatedAt: now,
	}); err != nil {
		return pos, fmt.Errorf("trader: record trade: %w", err)
	}

	s.addDailyPnL(pos.RealizedPnL)
	if _, err := s.registry.Deactivate(marketID); err != nil {
		s.logger.DebugContext(opCtx, "trader: deactivate unregistered market", slog.String("market_id", marketID))
	}

	s.logger.InfoContext(opCtx, "trader: position closed",
		slog.String("market_id", marketID),
		slog.String("order_id", order.ID),
		slog.String("trigger", string(trigger)),
		slog.Float64("price", price),
		slog.Float64("proceeds", proceeds),
		slog.Float64("pnl", pos.RealizedPnL),
	)
	s.audit(opCtx, "trade.exit", map[string]any{
		"order_id":    order.ID,
		"position_id": pos.ID,
		"market_id":   marketID,
		"price":       price,
		"pnl":         pos.RealizedPnL,
		"trigger":     string(trigger),
	})
	return pos, nil
}

// afterExit publishes the exit and copies the closed position to the archive.
// Archiving is best effort.
func (s *Scheduler) afterExit(ctx context.Context, pos domain.Position) {
	s.publish(ctx, domain.ChannelTrading, domain.Event{
		Kind:     domain.EventExit,
		MarketID: pos.MarketID,
		Data: map[string]any{
			"position_id":  pos.ID,
			"exit_price":   pos.CurrentPrice,
			"realized_pnl": pos.RealizedPnL,
			"stop_loss":    pos.StopLossTriggered,
		},
	})
	if s.archiver == nil {
		return
	}
	opCtx, cancel := s.detached(ctx)
	defer cancel()
	if err := s.archiver.ArchivePosition(opCtx, pos); err != nil {
		s.logger.WarnContext(ctx, "trader: archive position failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}
