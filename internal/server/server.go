package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
	"github.com/alanyoungcy/tailbot/internal/server/handler"
	"github.com/alanyoungcy/tailbot/internal/server/middleware"
	"github.com/alanyoungcy/tailbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
	// RateLimit is requests per client per minute; 0 or a nil Limiter disables it.
	RateLimit int
	Limiter   domain.RateLimiter
}

// Handlers aggregates the route handlers. Account may be nil when no
// exchange client is configured.
type Handlers struct {
	Health  *handler.HealthHandler
	Trading *handler.TradingHandler
	Account *handler.AccountHandler
	Markets *handler.MarketHandler
	History *handler.HistoryHandler
}

// Server is the HTTP and websocket API of the bot.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in CORS, access logging,
// the optional rate limit and the optional API key check.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("GET /api/status", h.Trading.GetStatus)
	mux.HandleFunc("POST /api/trading/start", h.Trading.Start)
	mux.HandleFunc("POST /api/trading/stop", h.Trading.Stop)
	mux.HandleFunc("GET /api/config/trading", h.Trading.GetConfig)
	mux.HandleFunc("PUT /api/config/trading", h.Trading.UpdateConfig)

	mux.HandleFunc("GET /api/markets/sports", h.Markets.ListSports)
	mux.HandleFunc("GET /api/markets/monitored", h.Trading.ListMonitored)

	if h.Account != nil {
		mux.HandleFunc("GET /api/account/balance", h.Account.GetBalance)
		mux.HandleFunc("GET /api/account/positions", h.Account.GetPositions)
		mux.HandleFunc("GET /api/markets/{token_id}/price", h.Account.GetPrice)
	}

	mux.HandleFunc("POST /api/trade/buy", h.Trading.Buy)
	mux.HandleFunc("POST /api/trade/sell/{market_id}", h.Trading.Sell)

	mux.HandleFunc("GET /api/orders/recent", h.History.RecentOrders)
	mux.HandleFunc("GET /api/stats/daily", h.History.DailyStats)
	mux.HandleFunc("GET /api/positions/history", h.History.ClosedPositions)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var root http.Handler = mux
	root = middleware.Auth(cfg.APIKey, "/api/health")(root)
	if cfg.RateLimit > 0 && cfg.Limiter != nil {
		root = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, time.Minute, logger)(root)
	}
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           root,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		handler: root,
		logger:  logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
