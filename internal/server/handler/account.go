package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// Exchange is the read side of the CLOB client.
type Exchange interface {
	GetBalance(ctx context.Context) (domain.Balance, error)
	GetPositions(ctx context.Context) ([]domain.ExchangePosition, error)
	GetPrice(ctx context.Context, tokenID string) (domain.BookPrice, error)
}

// AccountHandler serves wallet balance, exchange positions and book prices.
type AccountHandler struct {
	exchange Exchange
	logger   *slog.Logger
}

func NewAccountHandler(exchange Exchange, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{exchange: exchange, logger: logger.With(slog.String("handler", "account"))}
}

// GetBalance returns the USDC balance.
// GET /api/account/balance
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.exchange.GetBalance(r.Context())
	if err != nil {
		h.fail(w, r, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// GetPositions returns the holdings reported by the exchange.
// GET /api/account/positions
func (h *AccountHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.exchange.GetPositions(r.Context())
	if err != nil {
		h.fail(w, r, "get positions", err)
		return
	}
	if positions == nil {
		positions = []domain.ExchangePosition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// GetPrice returns the top-of-book price of a token.
// GET /api/markets/{token_id}/price
func (h *AccountHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.exchange.GetPrice(r.Context(), r.PathValue("token_id"))
	if err != nil {
		h.fail(w, r, "get price", err)
		return
	}
	writeJSON(w, http.StatusOK, price)
}

func (h *AccountHandler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WarnContext(r.Context(), "handler: "+action+" failed", slog.String("error", err.Error()))
	}
	writeError(w, status, err.Error())
}
