package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

func usd(v float64) string   { return fmt.Sprintf("$%.2f", v) }
func cents(v float64) string { return fmt.Sprintf("%.1f¢", v) }

// NotifyBuy reports an executed entry.
func (n *Notifier) NotifyBuy(ctx context.Context, question string, price, amount, size float64) {
	n.emit(ctx, EventBuy, Message{
		Title: "BUY executed",
		Fields: []Field{
			{"Market", question},
			{"Price", cents(price)},
			{"Amount", usd(amount)},
			{"Size", fmt.Sprintf("%.4f", size)},
		},
	})
}

// NotifySell reports a manual exit.
func (n *Notifier) NotifySell(ctx context.Context, question string, price, size, pnl float64) {
	n.emit(ctx, EventSell, Message{
		Title: "SELL executed",
		Fields: []Field{
			{"Market", question},
			{"Price", cents(price)},
			{"Size", fmt.Sprintf("%.4f", size)},
			{"PnL", usd(pnl)},
		},
	})
}

// NotifyStopLoss reports a stop-loss exit. loss is positive when money was lost.
func (n *Notifier) NotifyStopLoss(ctx context.Context, question string, entry, exit, loss float64) {
	n.emit(ctx, EventStopLoss, Message{
		Title: "STOP-LOSS triggered",
		Fields: []Field{
			{"Market", question},
			{"Entry", cents(entry)},
			{"Exit", cents(exit)},
			{"Loss", usd(loss)},
		},
	})
}

// NotifyPriceAlert reports a threshold crossing while auto trading is off.
// kind is "entry" or "stop_loss".
func (n *Notifier) NotifyPriceAlert(ctx context.Context, question string, price float64, kind string) {
	title := "Price alert"
	switch kind {
	case "entry":
		title = "Entry threshold reached"
	case "stop_loss":
		title = "Stop-loss threshold reached"
	}
	n.emit(ctx, EventPriceAlert, Message{
		Title: title,
		Fields: []Field{
			{"Market", question},
			{"Price", cents(price)},
			{"Alert", kind},
		},
	})
}

// NotifyError reports a failure in the trading loops.
func (n *Notifier) NotifyError(ctx context.Context, where string, err error) {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	n.emit(ctx, EventError, Message{
		Title:  "Error",
		Fields: []Field{{"Where", where}, {"Detail", detail}},
	})
}

// NotifySystemStart reports that the scheduler started with the given settings.
func (n *Notifier) NotifySystemStart(ctx context.Context, s domain.TradingSettings) {
	auto := "off"
	if s.AutoTradingEnabled {
		auto = "on"
	}
	n.emit(ctx, EventSystem, Message{
		Title: "tailbot started",
		Fields: []Field{
			{"Entry", cents(s.EntryPrice)},
			{"Stop-loss", cents(s.StopLossPrice)},
			{"Order", usd(s.OrderAmount)},
			{"Max position", usd(s.MaxPositionAmount)},
			{"Window", fmt.Sprintf("%gh", s.TimeFilterHours)},
			{"Auto trading", auto},
		},
	})
}

// NotifySystemStop reports that the scheduler stopped.
func (n *Notifier) NotifySystemStop(ctx context.Context) {
	n.emit(ctx, EventSystem, Message{
		Title:  "tailbot stopped",
		Fields: []Field{{"At", time.Now().UTC().Format(time.RFC3339)}},
	})
}

// NotifyDailySummary reports one UTC day of trading.
func (n *Notifier) NotifyDailySummary(ctx context.Context, st domain.DailyStats) {
	winRate := "n/a"
	if closed := st.WinTrades + st.LossTrades; closed > 0 {
		winRate = fmt.Sprintf("%.0f%%", float64(st.WinTrades)/float64(closed)*100)
	}
	n.emit(ctx, EventDailySummary, Message{
		Title: "Daily summary " + st.Date.Format("2006-01-02"),
		Fields: []Field{
			{"Trades", fmt.Sprintf("%d", st.TotalTrades)},
			{"Volume", usd(st.TotalVolume)},
			{"Realized PnL", usd(st.RealizedPnL)},
			{"Wins", fmt.Sprintf("%d", st.WinTrades)},
			{"Losses", fmt.Sprintf("%d", st.LossTrades)},
			{"Win rate", winRate},
		},
	})
}
