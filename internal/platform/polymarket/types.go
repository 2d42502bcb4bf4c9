package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// --------------------------------------------------------------------------
// Tolerant decoders. Gamma sends several fields either natively or as a
// JSON-encoded string; malformed values decode as zero rather than failing
// the whole response.
// --------------------------------------------------------------------------

// flexBool unmarshals from JSON bool or string ("true"/"false").
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexBool(strings.EqualFold(s, "true") || s == "1")
		return nil
	}
	*f = false
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	*f = 0
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = flexFloat(v)
		}
	}
	return nil
}

// flexStrings unmarshals a JSON array of strings or numbers, or a string
// holding such an array, e.g. `["1","2"]` or `"[\"1\",\"2\"]"`.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	*f = decodeStringList(data, true)
	return nil
}

func decodeStringList(data []byte, allowNested bool) []string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err == nil {
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			var s string
			if err := json.Unmarshal(item, &s); err == nil {
				out = append(out, s)
				continue
			}
			var n json.Number
			if err := json.Unmarshal(item, &n); err == nil {
				out = append(out, n.String())
				continue
			}
			return nil
		}
		return out
	}

	if allowNested {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return decodeStringList([]byte(s), false)
		}
	}
	return nil
}

// floats parses every element, returning nil if any is not numeric.
func (f flexStrings) floats() []float64 {
	out := make([]float64, 0, len(f))
	for _, s := range f {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APITag is an event tag.
type APITag struct {
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// APIEvent is an event as returned by the Gamma API. An event groups one or
// more related markets.
type APIEvent struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Slug    string      `json:"slug"`
	Active  flexBool    `json:"active"`
	Closed  flexBool    `json:"closed"`
	Tags    []APITag    `json:"tags"`
	Markets []APIMarket `json:"markets"`
}

// Category joins the event's tag labels, defaulting to "Sports".
func (e *APIEvent) Category() string {
	labels := make([]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		if t.Label != "" {
			labels = append(labels, t.Label)
		}
	}
	if len(labels) == 0 {
		return "Sports"
	}
	return strings.Join(labels, ", ")
}

// APIMarket is a market nested inside a Gamma event.
type APIMarket struct {
	ID             string      `json:"id"`
	Question       string      `json:"question"`
	ConditionID    string      `json:"conditionId"`
	Slug           string      `json:"slug"`
	Closed         flexBool    `json:"closed"`
	EndDate        string      `json:"endDate"`
	ClobTokenIDs   flexStrings `json:"clobTokenIds"`
	Outcomes       flexStrings `json:"outcomes"`
	OutcomePrices  flexStrings `json:"outcomePrices"`
	Volume         flexFloat   `json:"volume"`
	Liquidity      flexFloat   `json:"liquidity"`
	BestAsk        flexFloat   `json:"bestAsk"`
	LastTradePrice flexFloat   `json:"lastTradePrice"`
	NegRisk        flexBool    `json:"negRisk"`
}

// endTime parses EndDate, accepting RFC 3339 (with or without fractional
// seconds) and bare dates.
func (m *APIMarket) endTime() (time.Time, bool) {
	s := strings.TrimSpace(m.EndDate)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// yesPrice prefers the explicit outcome price and falls back to the best ask,
// then the last trade.
func (m *APIMarket) yesPrice() float64 {
	if prices := m.OutcomePrices.floats(); len(prices) > 0 && prices[0] > 0 {
		return prices[0]
	}
	if m.BestAsk > 0 {
		return float64(m.BestAsk)
	}
	return float64(m.LastTradePrice)
}

// ToDomainMarket converts the market, using the event for category context.
func (m *APIMarket) ToDomainMarket(event *APIEvent, end time.Time) domain.Market {
	outcomes := []string(m.Outcomes)
	if len(outcomes) == 0 {
		outcomes = []string{"Yes", "No"}
	}
	id := m.ConditionID
	if id == "" {
		id = m.ID
	}
	yes := m.yesPrice()

	return domain.Market{
		ID:          id,
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Category:    event.Category(),
		EndDate:     end,
		YesPrice:    yes,
		NoPrice:     1 - yes,
		Volume:      float64(m.Volume),
		Liquidity:   float64(m.Liquidity),
		TokenID:     m.ClobTokenIDs[0],
		Outcomes:    outcomes,
	}
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APICredentials is the response of the credential endpoints.
type APICredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// APIBookLevel is a single order-book level.
type APIBookLevel struct {
	Price flexFloat `json:"price"`
	Size  flexFloat `json:"size"`
}

// APIBook is the response of GET /book.
type APIBook struct {
	Market  string         `json:"market"`
	AssetID string         `json:"asset_id"`
	Bids    []APIBookLevel `json:"bids"`
	Asks    []APIBookLevel `json:"asks"`
}

// BestBid returns the highest bid, or 0 if there are none.
func (b *APIBook) BestBid() float64 {
	best := 0.0
	for _, l := range b.Bids {
		if float64(l.Price) > best {
			best = float64(l.Price)
		}
	}
	return best
}

// BestAsk returns the lowest ask, or 0 if there are none.
func (b *APIBook) BestAsk() float64 {
	best := 0.0
	for _, l := range b.Asks {
		p := float64(l.Price)
		if p > 0 && (best == 0 || p < best) {
			best = p
		}
	}
	return best
}

// ToDomainPrice derives the mid price on the 0-100 scale. With only one
// side present that side's price is used.
func (b *APIBook) ToDomainPrice(tokenID string) domain.BookPrice {
	bid, ask := b.BestBid(), b.BestAsk()
	mid := bid + ask // one side may be empty
	if bid > 0 && ask > 0 {
		mid /= 2
	}
	out := domain.BookPrice{
		TokenID: tokenID,
		Price:   mid * 100,
		Bid:     bid * 100,
		Ask:     ask * 100,
	}
	if bid > 0 && ask > 0 {
		out.Spread = (ask - bid) * 100
	}
	return out
}

// jsonNumber is a decimal integer emitted as a bare JSON number, so 256-bit
// salts survive encoding.
type jsonNumber string

func (n jsonNumber) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("0"), nil
	}
	return []byte(n), nil
}

// SignedOrder is the order object posted to the CLOB.
type SignedOrder struct {
	Salt          jsonNumber  `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

// postOrderRequest is the body of POST /order.
type postOrderRequest struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType string      `json:"orderType"`
}

// APIOrderResult is the response from placing an order. The exchange uses
// "orderID" or "id" for the identifier and reports rejections via
// success=false, errorMsg or error.
type APIOrderResult struct {
	Success      *bool  `json:"success,omitempty"`
	ErrorMsg     string `json:"errorMsg,omitempty"`
	Error        string `json:"error,omitempty"`
	OrderID      string `json:"orderID,omitempty"`
	ID           string `json:"id,omitempty"`
	Status       string `json:"status,omitempty"`
	MakingAmount string `json:"makingAmount,omitempty"`
	TakingAmount string `json:"takingAmount,omitempty"`
}

// rejection returns the exchange's reason if the result signals failure.
func (r *APIOrderResult) rejection() (string, bool) {
	switch {
	case r.Error != "":
		return r.Error, true
	case r.ErrorMsg != "":
		return r.ErrorMsg, true
	case r.Success != nil && !*r.Success:
		return "exchange reported success=false", true
	}
	return "", false
}

func (r *APIOrderResult) orderID() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return r.ID
}

// APIOrder is an open order as returned by GET /orders.
type APIOrder struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	Market       string    `json:"market"`
	AssetID      string    `json:"asset_id"`
	Side         string    `json:"side"`
	OrderType    string    `json:"order_type"`
	OriginalSize flexFloat `json:"original_size"`
	SizeMatched  flexFloat `json:"size_matched"`
	Price        flexFloat `json:"price"`
	CreatedAt    flexFloat `json:"created_at"`
}

// ToDomainOrder converts an APIOrder to a domain.Order.
func (a *APIOrder) ToDomainOrder() domain.Order {
	price := float64(a.Price) * 100
	size := float64(a.OriginalSize)
	o := domain.Order{
		ID:         a.ID,
		MarketID:   a.Market,
		TokenID:    a.AssetID,
		Side:       domain.OrderSide(strings.ToUpper(a.Side)),
		Type:       domain.OrderType(strings.ToUpper(a.OrderType)),
		Price:      price,
		Size:       size,
		Amount:     size * price / 100,
		FilledSize: float64(a.SizeMatched),
		Status:     mapOrderStatus(a.Status),
	}
	if a.CreatedAt > 0 {
		o.CreatedAt = time.Unix(int64(a.CreatedAt), 0).UTC()
		o.UpdatedAt = o.CreatedAt
	}
	return o
}

// mapOrderStatus translates exchange order states.
func mapOrderStatus(s string) domain.OrderStatus {
	switch strings.ToLower(s) {
	case "live", "open":
		return domain.OrderStatusOpen
	case "matched", "filled":
		return domain.OrderStatusFilled
	case "cancelled", "canceled":
		return domain.OrderStatusCancelled
	case "unmatched", "failed":
		return domain.OrderStatusFailed
	default:
		return domain.OrderStatusPending
	}
}

// apiBalance is the response of GET /balance.
type apiBalance struct {
	Available flexFloat `json:"available"`
	Locked    flexFloat `json:"locked"`
}

// apiPosition is one element of GET /positions. Prices are 0-1.
type apiPosition struct {
	ID           string    `json:"id"`
	Market       string    `json:"market"`
	TokenID      string    `json:"tokenId"`
	Size         flexFloat `json:"size"`
	AvgPrice     flexFloat `json:"avgPrice"`
	CurrentPrice flexFloat `json:"currentPrice"`
}

func (p *apiPosition) toDomain() domain.ExchangePosition {
	return domain.ExchangePosition{
		ID:           p.ID,
		MarketID:     p.Market,
		TokenID:      p.TokenID,
		Size:         float64(p.Size),
		AvgPrice:     float64(p.AvgPrice) * 100,
		CurrentPrice: float64(p.CurrentPrice) * 100,
	}
}

// apiCancelResult is the response of DELETE /order.
type apiCancelResult struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}
