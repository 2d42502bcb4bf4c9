package polymarket_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tailbot/internal/crypto"
	"github.com/alanyoungcy/tailbot/internal/domain"
	"github.com/alanyoungcy/tailbot/internal/platform/polymarket"
)

const (
	clobTestKey    = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	clobTestSecret = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
)

var clobNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

var testCreds = domain.Credentials{APIKey: "key-1", Secret: clobTestSecret, Passphrase: "pass-1"}

type clobHarness struct {
	client *polymarket.ClobClient
	signer *crypto.Signer
	hits   atomic.Int32
}

func newClob(t *testing.T, handler http.HandlerFunc) *clobHarness {
	t.Helper()
	h := &clobHarness{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	signer, err := crypto.NewSigner(clobTestKey, 137)
	require.NoError(t, err)
	h.signer = signer

	h.client = polymarket.NewClobClient(polymarket.ClobConfig{
		BaseURL:    srv.URL,
		RatePerSec: 1000,
		Burst:      100,
		RetryWait:  time.Millisecond,
	}, signer, crypto.FixedSalt(42), discardLogger())
	h.client.SetClock(func() time.Time { return clobNow })
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestDeriveCredentials_FallsBackToCreate(t *testing.T) {
	var seen []string
	var h *clobHarness
	h = newClob(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		assert.Equal(t, h.signer.Address().Hex(), r.Header.Get("POLY_ADDRESS"))
		assert.Equal(t, strconv.FormatInt(clobNow.Unix(), 10), r.Header.Get("POLY_TIMESTAMP"))
		assert.Equal(t, "0", r.Header.Get("POLY_NONCE"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))

		switch r.URL.Path {
		case "/auth/derive-api-key":
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no key"})
		case "/auth/api-key":
			writeJSON(w, http.StatusOK, map[string]string{
				"apiKey": "new-key", "secret": clobTestSecret, "passphrase": "new-pass",
			})
		}
	})

	assert.False(t, h.client.Authenticated())
	creds, err := h.client.DeriveCredentials(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"GET /auth/derive-api-key", "POST /auth/api-key"}, seen)
	assert.Equal(t, "new-key", creds.APIKey)
	assert.Equal(t, "new-pass", creds.Passphrase)
	assert.True(t, h.client.Authenticated())
}

func TestDeriveCredentials_BothFail(t *testing.T) {
	h := newClob(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "nope"})
	})

	_, err := h.client.DeriveCredentials(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, h.client.Authenticated())
}

func TestClob_NotAuthenticatedMakesNoCall(t *testing.T) {
	h := newClob(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	ctx := context.Background()

	_, err := h.client.PlaceOrder(ctx, domain.OrderIntent{TokenID: "t", Side: domain.OrderSideBuy, Price: 90, Amount: 10})
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	_, err = h.client.GetBalance(ctx)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	_, err = h.client.CancelOrder(ctx, "o1")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	assert.Zero(t, h.hits.Load())
}

func TestClob_WithoutSignerTradingDisabled(t *testing.T) {
	c := polymarket.NewClobClient(polymarket.ClobConfig{BaseURL: "http://127.0.0.1:1"}, nil, nil, discardLogger())

	_, err := c.DeriveCredentials(context.Background())
	assert.ErrorIs(t, err, domain.ErrTradingDisabled)
	_, err = c.PlaceOrder(context.Background(), domain.OrderIntent{})
	assert.ErrorIs(t, err, domain.ErrTradingDisabled)
	assert.Empty(t, c.Address())
}

func TestPlaceOrder_SignedMarketBuy(t *testing.T) {
	var posted map[string]any
	h := newClob(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/order", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		ts := r.Header.Get("POLY_TIMESTAMP")
		assert.Equal(t, "key-1", r.Header.Get("POLY_API_KEY"))
		assert.Equal(t, "pass-1", r.Header.Get("POLY_PASSPHRASE"))
		assert.Equal(t, crypto.Sign(clobTestSecret, ts+"POST/order"+string(body)), r.Header.Get("POLY_SIGNATURE"))

		require.NoError(t, json.Unmarshal(body, &posted))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "orderID": "0xabc", "status": "matched"})
	})
	h.client.SetCredentials(testCreds)

	order, err := h.client.PlaceOrder(context.Background(), domain.OrderIntent{
		MarketID: "m1", TokenID: "12345", Side: domain.OrderSideBuy,
		Price: 92, Amount: 10, MarketOrder: true, Trigger: domain.TriggerEntry,
	})
	require.NoError(t, err)

	assert.Equal(t, "0xabc", order.ID)
	assert.Equal(t, domain.OrderStatusFilled, order.Status)
	assert.Equal(t, domain.OrderTypeFOK, order.Type)
	assert.Equal(t, domain.TriggerEntry, order.TriggerType)
	assert.InDelta(t, 10.869565, order.Size, 1e-9)
	assert.InDelta(t, order.Size, order.FilledSize, 1e-9)

	assert.Equal(t, "FOK", posted["orderType"])
	assert.Equal(t, "key-1", posted["owner"])
	signed := posted["order"].(map[string]any)
	assert.Equal(t, float64(42), signed["salt"], "salt is a bare JSON number")
	assert.Equal(t, "10000000", signed["makerAmount"])
	assert.Equal(t, "10869565", signed["takerAmount"])
	assert.Equal(t, "12345", signed["tokenId"])
	assert.Equal(t, "BUY", signed["side"])
	assert.Equal(t, h.signer.Address().Hex(), signed["maker"])
	assert.Equal(t, strconv.FormatInt(clobNow.Add(30*24*time.Hour).Unix(), 10), signed["expiration"])
	assert.NotEmpty(t, signed["signature"])
}

func TestPlaceOrder_LimitIsGTC(t *testing.T) {
	var orderType string
	h := newClob(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OrderType string `json:"orderType"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		orderType = req.OrderType
		writeJSON(w, http.StatusOK, map[string]any{"id": "o-9", "status": "live"})
	})
	h.client.SetCredentials(testCreds)

	order, err := h.client.PlaceOrder(context.Background(), domain.OrderIntent{
		TokenID: "1", Side: domain.OrderSideSell, Price: 85, Size: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "GTC", orderType)
	assert.Equal(t, "o-9", order.ID)
	assert.Equal(t, domain.OrderStatusOpen, order.Status)
}

func TestPlaceOrder_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   any
	}{
		{"success false", http.StatusOK, map[string]any{"success": false, "errorMsg": "not enough balance"}},
		{"error field", http.StatusOK, map[string]any{"error": "invalid signature"}},
		{"http 400", http.StatusBadRequest, map[string]any{"error": "bad order"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newClob(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			})
			h.client.SetCredentials(testCreds)

			order, err := h.client.PlaceOrder(context.Background(), domain.OrderIntent{
				TokenID: "1", Side: domain.OrderSideBuy, Price: 90, Amount: 10, MarketOrder: true,
			})
			require.Error(t, err)
			var rejected *domain.OrderRejectedError
			assert.True(t, errors.As(err, &rejected))
			assert.ErrorIs(t, err, domain.ErrOrderRejected)
			assert.Equal(t, domain.OrderStatusFailed, order.Status)
			assert.NotEmpty(t, order.ErrorMessage)
		})
	}
}

func TestPlaceOrder_InvalidPriceMakesNoCall(t *testing.T) {
	h := newClob(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	h.client.SetCredentials(testCreds)

	for _, p := range []float64{0, 100, -5} {
		_, err := h.client.PlaceOrder(context.Background(), domain.OrderIntent{
			TokenID: "1", Side: domain.OrderSideBuy, Price: p, Amount: 10,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	}
	assert.Zero(t, h.hits.Load())
}

func TestCancelOrder_Idempotent(t *testing.T) {
	h := newClob(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		switch r.URL.Path {
		case "/order/live":
			writeJSON(w, http.StatusOK, map[string]any{"canceled": []string{"live"}})
		case "/order/filled":
			writeJSON(w, http.StatusOK, map[string]any{"not_canceled": map[string]string{"filled": "order already matched"}})
		case "/order/gone":
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order"})
		}
	})
	h.client.SetCredentials(testCreds)
	ctx := context.Background()

	ok, err := h.client.CancelOrder(ctx, "live")
	require.NoError(t, err)
	assert.True(t, ok)

	for _, id := range []string{"filled", "gone", "other"} {
		ok, err := h.client.CancelOrder(ctx, id)
		require.NoError(t, err, id)
		assert.False(t, ok, id)
	}
}

func TestGetBalance_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	h := newClob(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
			return
		}
		assert.Equal(t, "/balance", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"available": "125.5", "locked": 4.5})
	})
	h.client.SetCredentials(testCreds)

	bal, err := h.client.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), h.hits.Load())
	assert.InDelta(t, 125.5, bal.Available, 1e-9)
	assert.InDelta(t, 4.5, bal.Locked, 1e-9)
	assert.InDelta(t, 130, bal.Total, 1e-9)
}

func TestGetBalance_RetriesClientTimeout(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"available": 20})
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	signer, err := crypto.NewSigner(clobTestKey, 137)
	require.NoError(t, err)
	client := polymarket.NewClobClient(polymarket.ClobConfig{
		BaseURL:    srv.URL,
		RatePerSec: 1000,
		Burst:      100,
		RetryWait:  time.Millisecond,
		Timeout:    100 * time.Millisecond,
	}, signer, crypto.FixedSalt(42), discardLogger())
	client.SetCredentials(testCreds)

	bal, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.InDelta(t, 20, bal.Available, 1e-9)
}

func TestGetBalance_CallerCancelNotRetried(t *testing.T) {
	h := newClob(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
	})
	h.client.SetCredentials(testCreds)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.client.GetBalance(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.hits.Load())
}

func TestGetBalance_GivesUpAfterThreeAttempts(t *testing.T) {
	h := newClob(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "slow down"})
	})
	h.client.SetCredentials(testCreds)

	_, err := h.client.GetBalance(context.Background())
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, int32(3), h.hits.Load())
}

func TestGetBalance_UnauthorizedNotRetried(t *testing.T) {
	h := newClob(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad key"})
	})
	h.client.SetCredentials(testCreds)

	_, err := h.client.GetBalance(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int32(1), h.hits.Load())
}

func TestGetPositions_ScalesAndSkipsEmpty(t *testing.T) {
	h := newClob(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "p1", "market": "m1", "tokenId": "t1", "size": "11", "avgPrice": "0.91", "currentPrice": 0.93},
			{"id": "p2", "market": "m2", "tokenId": "t2", "size": 0},
		})
	})
	h.client.SetCredentials(testCreds)

	positions, err := h.client.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "m1", positions[0].MarketID)
	assert.InDelta(t, 91, positions[0].AvgPrice, 1e-9)
	assert.InDelta(t, 93, positions[0].CurrentPrice, 1e-9)
}

func TestGetPrice_MidOfBook(t *testing.T) {
	h := newClob(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		switch r.URL.Query().Get("token_id") {
		case "both":
			writeJSON(w, http.StatusOK, map[string]any{
				"bids": []map[string]string{{"price": "0.88", "size": "5"}, {"price": "0.90", "size": "1"}},
				"asks": []map[string]string{{"price": "0.95", "size": "5"}, {"price": "0.92", "size": "1"}},
			})
		case "asks":
			writeJSON(w, http.StatusOK, map[string]any{"asks": []map[string]string{{"price": "0.97"}}})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"bids": []any{}, "asks": []any{}})
		}
	})
	ctx := context.Background()

	p, err := h.client.GetPrice(ctx, "both")
	require.NoError(t, err)
	assert.InDelta(t, 91, p.Price, 1e-9)
	assert.InDelta(t, 90, p.Bid, 1e-9)
	assert.InDelta(t, 92, p.Ask, 1e-9)
	assert.InDelta(t, 2, p.Spread, 1e-9)

	p, err = h.client.GetPrice(ctx, "asks")
	require.NoError(t, err)
	assert.InDelta(t, 97, p.Price, 1e-9)

	_, err = h.client.GetPrice(ctx, "empty")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetOpenOrders_AcceptsPagedShape(t *testing.T) {
	var h *clobHarness
	h = newClob(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, h.signer.Address().Hex(), r.URL.Query().Get("owner"))
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"id": "o1", "status": "LIVE", "market": "m1", "asset_id": "t1", "side": "buy",
				"order_type": "GTC", "original_size": "10", "size_matched": "2", "price": "0.9"},
		}})
	})
	h.client.SetCredentials(testCreds)

	orders, err := h.client.GetOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderStatusOpen, orders[0].Status)
	assert.Equal(t, domain.OrderSideBuy, orders[0].Side)
	assert.InDelta(t, 90, orders[0].Price, 1e-9)
	assert.InDelta(t, 9, orders[0].Amount, 1e-9)
	assert.InDelta(t, 2, orders[0].FilledSize, 1e-9)
}
