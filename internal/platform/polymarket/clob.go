package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/alanyoungcy/tailbot/internal/crypto"
	"github.com/alanyoungcy/tailbot/internal/domain"
)

// ClobConfig configures the CLOB REST client.
type ClobConfig struct {
	BaseURL    string
	RatePerSec float64
	Burst      int
	RetryWait  time.Duration
	Timeout    time.Duration // per attempt, 30s when zero
	Builder    BuilderConfig
}

// ClobClient is the REST client for the CLOB (Central Limit Order Book) API.
// It derives API credentials, places and cancels orders, and reads prices,
// balances and positions.
//
// Credentials are written once by DeriveCredentials (or SetCredentials) and
// read-shared afterwards.
type ClobClient struct {
	tr      *transport
	signer  *crypto.Signer
	builder *OrderBuilder
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.RWMutex
	hmacAuth *crypto.HMACAuth
}

// NewClobClient creates a new CLOB REST client. signer may be nil, in which
// case only public endpoints (order book) are usable.
func NewClobClient(cfg ClobConfig, signer *crypto.Signer, salts crypto.SaltSource, logger *slog.Logger) *ClobClient {
	c := &ClobClient{
		tr:     newTransport(cfg.BaseURL, cfg.RatePerSec, cfg.Burst, cfg.RetryWait, cfg.Timeout, logger),
		signer: signer,
		now:    time.Now,
		logger: logger,
	}
	if signer != nil {
		c.builder = NewOrderBuilder(signer, cfg.Builder, salts, func() time.Time { return c.now() })
	}
	return c
}

// SetClock overrides the wall clock used for signatures and expirations.
func (c *ClobClient) SetClock(now func() time.Time) {
	c.now = now
}

// SetCredentials installs previously issued L2 credentials.
func (c *ClobClient) SetCredentials(creds domain.Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hmacAuth = crypto.NewHMACAuth(creds)
}

// Authenticated reports whether L2 credentials are available.
func (c *ClobClient) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hmacAuth != nil
}

// Address returns the wallet address, or "" without a signer.
func (c *ClobClient) Address() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.Address().Hex()
}

// DeriveCredentials obtains L2 API credentials with an L1 signature. It first
// tries to derive existing credentials and falls back to creating new ones if
// the exchange answers with anything but 200.
func (c *ClobClient) DeriveCredentials(ctx context.Context) (domain.Credentials, error) {
	if c.signer == nil {
		return domain.Credentials{}, fmt.Errorf("polymarket/clob: derive credentials: %w", domain.ErrTradingDisabled)
	}

	creds, err := c.requestCredentials(ctx, http.MethodGet, "/auth/derive-api-key")
	if err != nil {
		c.logger.WarnContext(ctx, "polymarket/clob: derive api key failed, creating",
			slog.String("error", err.Error()),
		)
		creds, err = c.requestCredentials(ctx, http.MethodPost, "/auth/api-key")
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("polymarket/clob: create api key: %w: %w", domain.ErrUnauthorized, err)
		}
	}

	c.SetCredentials(creds)
	c.logger.InfoContext(ctx, "polymarket/clob: api credentials ready",
		slog.String("address", c.Address()),
		slog.String("credentials", creds.String()),
	)
	return creds, nil
}

func (c *ClobClient) requestCredentials(ctx context.Context, method, path string) (domain.Credentials, error) {
	headers, err := c.signer.L1Headers(c.now().Unix(), 0)
	if err != nil {
		return domain.Credentials{}, err
	}

	body, err := c.tr.do(ctx, request{method: method, path: path, headers: headers})
	if err != nil {
		return domain.Credentials{}, err
	}

	var resp APICredentials
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	creds := domain.Credentials{APIKey: resp.APIKey, Secret: resp.Secret, Passphrase: resp.Passphrase}
	if !creds.Valid() {
		return domain.Credentials{}, errors.New("incomplete credentials in response")
	}
	return creds, nil
}

// PlaceOrder builds, signs and submits an order. Market intents are sent
// fill-or-kill, limit intents good-till-cancelled.
//
// A rejected submission returns the order with status FAILED together with a
// *domain.OrderRejectedError so the caller can persist the attempt. Invalid
// intents fail before any network call.
func (c *ClobClient) PlaceOrder(ctx context.Context, intent domain.OrderIntent) (domain.Order, error) {
	auth, err := c.auth()
	if err != nil {
		return domain.Order{}, err
	}

	signed, amounts, err := c.builder.Build(intent)
	if err != nil {
		return domain.Order{}, fmt.Errorf("polymarket/clob: build order: %w", err)
	}

	orderType := domain.OrderTypeGTC
	if intent.MarketOrder {
		orderType = domain.OrderTypeFOK
	}

	now := c.now().UTC()
	order := domain.Order{
		MarketID:    intent.MarketID,
		TokenID:     intent.TokenID,
		Side:        intent.Side,
		Type:        orderType,
		Price:       intent.Price,
		Size:        amounts.Size,
		Amount:      amounts.Amount,
		Status:      domain.OrderStatusPending,
		TriggerType: intent.Trigger,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	payload, err := json.Marshal(postOrderRequest{
		Order:     signed,
		Owner:     auth.Key,
		OrderType: string(orderType),
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("polymarket/clob: marshal order: %w", err)
	}

	body, err := c.tr.do(ctx, c.signed(auth, http.MethodPost, "/order", payload))
	if err != nil {
		order.Status = domain.OrderStatusFailed
		order.ErrorMessage = err.Error()
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return order, fmt.Errorf("polymarket/clob: post order: %w",
				&domain.OrderRejectedError{StatusCode: httpErr.StatusCode, Message: httpErr.Body})
		}
		return order, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	return parseOrderResponse(order, body)
}

// parseOrderResponse folds the exchange's response into order.
func parseOrderResponse(order domain.Order, body []byte) (domain.Order, error) {
	var result APIOrderResult
	if err := json.Unmarshal(body, &result); err != nil {
		order.Status = domain.OrderStatusFailed
		order.ErrorMessage = "undecodable response"
		return order, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}

	if reason, rejected := result.rejection(); rejected {
		order.Status = domain.OrderStatusFailed
		order.ErrorMessage = reason
		return order, fmt.Errorf("polymarket/clob: %w", &domain.OrderRejectedError{Message: reason})
	}

	order.ID = result.orderID()
	switch status := mapOrderStatus(result.Status); status {
	case domain.OrderStatusFilled:
		order.Status = status
		order.FilledSize = order.Size
	case domain.OrderStatusPending:
		order.Status = domain.OrderStatusOpen
	default:
		order.Status = status
	}
	return order, nil
}

// CancelOrder cancels an order. Cancelling an order that is already filled,
// cancelled or unknown is not an error; it reports false.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	auth, err := c.auth()
	if err != nil {
		return false, err
	}

	path := "/order/" + url.PathEscape(orderID)
	body, err := c.tr.do(ctx, c.signed(auth, http.MethodDelete, path, nil))
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusBadRequest {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}

	var result apiCancelResult
	if err := json.Unmarshal(body, &result); err != nil {
		// Some deployments answer with an empty body on success.
		return true, nil
	}
	if _, notCanceled := result.NotCanceled[orderID]; notCanceled {
		return false, nil
	}
	return true, nil
}

// GetOpenOrders returns the open orders of the authenticated wallet.
func (c *ClobClient) GetOpenOrders(ctx context.Context) ([]domain.Order, error) {
	auth, err := c.auth()
	if err != nil {
		return nil, err
	}

	req := c.signed(auth, http.MethodGet, "/orders", nil)
	req.query = url.Values{"owner": {c.Address()}}
	body, err := c.tr.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get open orders: %w", err)
	}

	var apiOrders []APIOrder
	if err := json.Unmarshal(body, &apiOrders); err != nil {
		var page struct {
			Data []APIOrder `json:"data"`
		}
		if err2 := json.Unmarshal(body, &page); err2 != nil {
			return nil, fmt.Errorf("polymarket/clob: decode orders: %w", err)
		}
		apiOrders = page.Data
	}

	orders := make([]domain.Order, 0, len(apiOrders))
	for i := range apiOrders {
		orders = append(orders, apiOrders[i].ToDomainOrder())
	}
	return orders, nil
}

// GetBook returns the order book for a token.
func (c *ClobClient) GetBook(ctx context.Context, tokenID string) (APIBook, error) {
	body, err := c.tr.do(ctx, request{
		method: http.MethodGet,
		path:   "/book",
		query:  url.Values{"token_id": {tokenID}},
	})
	if err != nil {
		return APIBook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}
	var book APIBook
	if err := json.Unmarshal(body, &book); err != nil {
		return APIBook{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	return book, nil
}

// GetPrice returns the top-of-book price for a token on the 0-100 scale.
func (c *ClobClient) GetPrice(ctx context.Context, tokenID string) (domain.BookPrice, error) {
	book, err := c.GetBook(ctx, tokenID)
	if err != nil {
		return domain.BookPrice{}, err
	}
	price := book.ToDomainPrice(tokenID)
	if price.Price <= 0 {
		return price, fmt.Errorf("polymarket/clob: empty book for %s: %w", tokenID, domain.ErrNotFound)
	}
	return price, nil
}

// GetBalance returns the wallet's USDC balance. Transient failures are
// retried; authentication failures are not.
func (c *ClobClient) GetBalance(ctx context.Context) (domain.Balance, error) {
	auth, err := c.auth()
	if err != nil {
		return domain.Balance{}, err
	}

	req := c.signed(auth, http.MethodGet, "/balance", nil)
	req.query = url.Values{"address": {c.Address()}}
	req.retry = true
	body, err := c.tr.do(ctx, req)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("polymarket/clob: get balance: %w", err)
	}

	var b apiBalance
	if err := json.Unmarshal(body, &b); err != nil {
		return domain.Balance{}, fmt.Errorf("polymarket/clob: decode balance: %w", err)
	}
	return domain.Balance{
		Available: float64(b.Available),
		Locked:    float64(b.Locked),
		Total:     float64(b.Available) + float64(b.Locked),
	}, nil
}

// GetPositions returns the wallet's non-empty positions as reported by the
// exchange. Retries follow GetBalance.
func (c *ClobClient) GetPositions(ctx context.Context) ([]domain.ExchangePosition, error) {
	auth, err := c.auth()
	if err != nil {
		return nil, err
	}

	req := c.signed(auth, http.MethodGet, "/positions", nil)
	req.query = url.Values{"address": {c.Address()}}
	req.retry = true
	body, err := c.tr.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get positions: %w", err)
	}

	var raw []apiPosition
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode positions: %w", err)
	}
	out := make([]domain.ExchangePosition, 0, len(raw))
	for i := range raw {
		if raw[i].Size > 0 {
			out = append(out, raw[i].toDomain())
		}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// auth returns the L2 credentials or ErrNotAuthenticated before any network
// call is made.
func (c *ClobClient) auth() (*crypto.HMACAuth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.signer == nil {
		return nil, fmt.Errorf("polymarket/clob: %w", domain.ErrTradingDisabled)
	}
	if c.hmacAuth == nil {
		return nil, fmt.Errorf("polymarket/clob: %w", domain.ErrNotAuthenticated)
	}
	return c.hmacAuth, nil
}

// signed builds a request carrying L2 headers over method, path and body.
func (c *ClobClient) signed(auth *crypto.HMACAuth, method, path string, body []byte) request {
	return request{
		method:  method,
		path:    path,
		body:    body,
		headers: auth.L2HeadersAt(c.Address(), method, path, string(body), c.now().Unix()),
	}
}
