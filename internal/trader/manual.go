package trader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tailbot/internal/domain"
	"github.com/alanyoungcy/tailbot/internal/platform/polymarket"
)

// ManualBuyRequest is an operator-initiated entry. Price is on the 0-100
// scale and Amount in USDC.
type ManualBuyRequest struct {
	MarketID    string  `json:"market_id"`
	TokenID     string  `json:"token_id"`
	Question    string  `json:"question"`
	Price       float64 `json:"price"`
	Amount      float64 `json:"amount"`
	MarketOrder bool    `json:"market_order"`
}

func (r ManualBuyRequest) validate() error {
	if r.MarketID == "" {
		return &domain.ValidationError{Field: "market_id", Reason: "required"}
	}
	if r.TokenID == "" {
		return &domain.ValidationError{Field: "token_id", Reason: "required"}
	}
	if err := polymarket.ValidatePrice(r.Price); err != nil {
		return err
	}
	if r.Amount <= 0 {
		return &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return nil
}

// ManualBuy opens a position on the operator's behalf. It bypasses the entry
// threshold and the processed set but still enforces balance and exposure
// limits. The market is registered and monitored like any automatic entry.
func (s *Scheduler) ManualBuy(ctx context.Context, req ManualBuyRequest) (domain.Order, error) {
	if s.gateway == nil {
		return domain.Order{}, domain.ErrTradingDisabled
	}
	if err := req.validate(); err != nil {
		return domain.Order{}, err
	}
	if cur, ok := s.registry.Get(req.MarketID); ok && cur.HasPosition {
		return domain.Order{}, fmt.Errorf("trader: market %s already has a position: %w", req.MarketID, domain.ErrAlreadyExists)
	}

	settings := s.Settings()
	now := s.now().UTC()
	s.registry.Register(domain.MonitoredMarket{
		MarketID:      req.MarketID,
		TokenID:       req.TokenID,
		Question:      req.Question,
		EntryPrice:    settings.EntryPrice,
		StopLossPrice: settings.StopLossPrice,
		CurrentPrice:  req.Price,
		LastCheck:     now,
		CreatedAt:     now,
	})

	order, err := s.enter(ctx, entryTarget{
		marketID: req.MarketID,
		tokenID:  req.TokenID,
		question: req.Question,
		price:    req.Price,
		amount:   req.Amount,
		market:   req.MarketOrder,
		trigger:  domain.TriggerManual,
	}, settings)
	if err != nil {
		s.logger.WarnContext(ctx, "trader: manual buy failed",
			slog.String("market_id", req.MarketID),
			slog.String("error", err.Error()),
		)
		s.notifier.NotifyError(ctx, "manual buy "+req.MarketID, err)
		return order, err
	}
	return order, nil
}

// ManualSell closes the open position in marketID at the live book price,
// falling back to the last monitored price when the book is unavailable.
func (s *Scheduler) ManualSell(ctx context.Context, marketID string) (domain.Position, error) {
	if s.gateway == nil {
		return domain.Position{}, domain.ErrTradingDisabled
	}
	open, err := s.store.Positions().GetOpenByMarket(ctx, marketID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("trader: open position %s: %w", marketID, err)
	}

	price, err := s.exitPrice(ctx, open)
	if err != nil {
		return open, err
	}

	pos, err := s.exit(ctx, marketID, price, domain.TriggerManual)
	if err != nil {
		s.notifier.NotifyError(ctx, "manual sell "+marketID, err)
		return pos, err
	}
	s.notifier.NotifySell(ctx, pos.MarketQuestion, price, pos.Size, pos.RealizedPnL)
	s.afterExit(ctx, pos)
	return pos, nil
}

func (s *Scheduler) exitPrice(ctx context.Context, pos domain.Position) (float64, error) {
	bp, err := s.prices.GetPrice(ctx, pos.TokenID)
	if err == nil && bp.Price > 0 {
		return bp.Price, nil
	}
	if m, ok := s.registry.Get(pos.MarketID); ok && m.CurrentPrice > 0 {
		return m.CurrentPrice, nil
	}
	if pos.CurrentPrice > 0 {
		return pos.CurrentPrice, nil
	}
	if err == nil {
		err = domain.ErrNotFound
	}
	return 0, fmt.Errorf("trader: no price for %s: %w", pos.MarketID, err)
}
