package trader

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/tailbot/internal/domain"
	"github.com/alanyoungcy/tailbot/internal/platform/polymarket"
)

// scan runs one pass of the scan loop: fetch markets settling inside the
// window and evaluate each against the entry threshold, one at a time.
func (s *Scheduler) scan(ctx context.Context) {
	s.rollDay(ctx)
	settings := s.Settings()

	markets := s.feed.Fetch(ctx, polymarket.FeedWindow{
		Lookahead: settings.Lookahead(),
		Grace:     settings.GraceWindow,
	})

	s.mu.Lock()
	s.lastScan = s.now().UTC()
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "trader: scan", slog.Int("markets", len(markets)))
	for _, m := range markets {
		if ctx.Err() != nil {
			return
		}
		s.evaluate(ctx, m, settings)
	}
}

func (s *Scheduler) evaluate(ctx context.Context, m domain.Market, settings domain.TradingSettings) {
	price := m.YesPricePct()
	if price < settings.EntryPrice {
		return
	}
	log := s.logger.With(slog.String("market_id", m.ID), slog.Float64("price", price))

	done, err := s.processed.Contains(ctx, m.ID)
	if err != nil {
		log.WarnContext(ctx, "trader: processed lookup failed", slog.String("error", err.Error()))
		return
	}
	if done {
		return
	}
	if cur, ok := s.registry.Get(m.ID); ok && cur.HasPosition {
		return
	}
	open, err := s.store.Positions().CountOpen(ctx)
	if err != nil {
		log.ErrorContext(ctx, "trader: count open positions failed", slog.String("error", err.Error()))
		return
	}
	if open >= settings.MaxOpenPositions {
		log.DebugContext(ctx, "trader: max open positions reached", slog.Int("open", open))
		return
	}

	now := s.now().UTC()
	_, created := s.registry.Register(domain.MonitoredMarket{
		MarketID:      m.ID,
		TokenID:       m.TokenID,
		Question:      m.Question,
		EntryPrice:    settings.EntryPrice,
		StopLossPrice: settings.StopLossPrice,
		CurrentPrice:  price,
		LastCheck:     now,
		CreatedAt:     now,
	})
	if created {
		log.InfoContext(ctx, "trader: market crossed entry threshold", slog.String("question", m.Question))
		s.publish(ctx, domain.ChannelMarkets, domain.Event{
			Kind:     domain.EventMarketDiscovered,
			MarketID: m.ID,
			Data: map[string]any{
				"question": m.Question,
				"price":    price,
				"end_date": m.EndDate,
				"category": m.Category,
			},
		})
	}

	if !settings.AutoTradingEnabled {
		if s.alertOnce("entry:" + m.ID) {
			s.notifier.NotifyPriceAlert(ctx, m.Question, price, "entry")
		}
		return
	}
	if s.dailyLossHit(settings) {
		log.InfoContext(ctx, "trader: daily loss limit reached, entry skipped",
			slog.Float64("daily_pnl", s.DailyPnL()),
			slog.Float64("max_daily_loss", settings.MaxDailyLoss),
		)
		return
	}

	_, err = s.enter(ctx, entryTarget{
		marketID: m.ID,
		tokenID:  m.TokenID,
		question: m.Question,
		price:    price,
		amount:   settings.OrderAmount,
		market:   true,
		trigger:  domain.TriggerEntry,
	}, settings)
	s.reportEntryError(ctx, m.ID, err)
}

// reportEntryError logs err at a level matching its kind. Only unexpected
// failures reach the notifier.
func (s *Scheduler) reportEntryError(ctx context.Context, marketID string, err error) {
	var funds *domain.InsufficientFundsError
	switch {
	case err == nil:
	case errors.As(err, &funds):
		s.logger.InfoContext(ctx, "trader: insufficient balance, entry skipped",
			slog.String("market_id", marketID),
			slog.Float64("available", funds.Available),
			slog.Float64("required", funds.Required),
		)
	case errors.Is(err, errPositionCap), errors.Is(err, domain.ErrLockHeld), errors.Is(err, errAlreadyProcessed):
		s.logger.InfoContext(ctx, "trader: entry skipped",
			slog.String("market_id", marketID),
			slog.String("reason", err.Error()),
		)
	default:
		s.logger.ErrorContext(ctx, "trader: entry failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		s.notifier.NotifyError(ctx, "entry "+marketID, err)
	}
}

// monitor runs one pass of the monitor loop over every held position.
func (s *Scheduler) monitor(ctx context.Context) {
	settings := s.Settings()
	for _, m := range s.registry.Positioned() {
		if ctx.Err() != nil {
			return
		}
		s.check(ctx, m, settings)
	}
}

func (s *Scheduler) check(ctx context.Context, m domain.MonitoredMarket, settings domain.TradingSettings) {
	log := s.logger.With(slog.String("market_id", m.MarketID))

	bp, err := s.prices.GetPrice(ctx, m.TokenID)
	if err != nil {
		log.WarnContext(ctx, "trader: price check failed", slog.String("error", err.Error()))
		return
	}
	now := s.now().UTC()
	updated, err := s.registry.Update(m.MarketID, func(mm *domain.MonitoredMarket) {
		mm.CurrentPrice = bp.Price
		mm.LastCheck = now
	})
	if err != nil {
		log.WarnContext(ctx, "trader: registry update failed", slog.String("error", err.Error()))
		return
	}

	if s.priceCache != nil {
		if err := s.priceCache.SetPrice(ctx, m.TokenID, bp.Price, now); err != nil {
			log.DebugContext(ctx, "trader: cache price failed", slog.String("error", err.Error()))
		}
	}
	s.refreshPosition(ctx, m.MarketID, bp.Price)
	s.publish(ctx, domain.ChannelMarkets, domain.Event{
		Kind:     domain.EventPriceUpdate,
		MarketID: m.MarketID,
		Data:     map[string]any{"price": bp.Price, "bid": bp.Bid, "ask": bp.Ask},
	})

	if !updated.ShouldStopOut() {
		return
	}
	if !settings.AutoTradingEnabled {
		if s.alertOnce("stop:" + m.MarketID) {
			s.notifier.NotifyPriceAlert(ctx, updated.Question, bp.Price, "stop_loss")
		}
		return
	}
	if err := s.stopLoss(ctx, updated, bp.Price); err != nil {
		log.ErrorContext(ctx, "trader: stop-loss failed", slog.String("error", err.Error()))
		s.notifier.NotifyError(ctx, "stop-loss "+m.MarketID, err)
	}
}

// refreshPosition marks the stored open position to price.
func (s *Scheduler) refreshPosition(ctx context.Context, marketID string, price float64) {
	pos, err := s.store.Positions().GetOpenByMarket(ctx, marketID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "trader: load position failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	pos.Refresh(price)
	if err := s.store.Positions().Save(ctx, pos); err != nil {
		s.logger.WarnContext(ctx, "trader: save position failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
