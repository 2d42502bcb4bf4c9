package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// GammaClient is the REST client for the Gamma API, which provides market
// discovery and metadata.
type GammaClient struct {
	tr *transport
}

// GammaConfig configures the Gamma client.
type GammaConfig struct {
	BaseURL    string
	RatePerSec float64
	Burst      int
}

// NewGammaClient creates a new Gamma API client.
//
// BaseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(cfg GammaConfig, logger *slog.Logger) *GammaClient {
	return &GammaClient{tr: newTransport(cfg.BaseURL, cfg.RatePerSec, cfg.Burst, 0, 0, logger)}
}

// EventQuery narrows a sports event listing to a settlement window.
type EventQuery struct {
	Limit      int
	EndDateMin time.Time
	EndDateMax time.Time
}

// GetSportsEvents lists active, open sports events ordered by end date.
func (g *GammaClient) GetSportsEvents(ctx context.Context, q EventQuery) ([]APIEvent, error) {
	params := url.Values{}
	params.Set("closed", "false")
	params.Set("active", "true")
	params.Set("tag_slug", "sports")
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("order", "endDate")
	params.Set("ascending", "true")
	if !q.EndDateMin.IsZero() {
		params.Set("end_date_min", q.EndDateMin.UTC().Format(time.RFC3339))
	}
	if !q.EndDateMax.IsZero() {
		params.Set("end_date_max", q.EndDateMax.UTC().Format(time.RFC3339))
	}

	body, err := g.tr.do(ctx, request{method: http.MethodGet, path: "/events", query: params})
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get events: %w", err)
	}

	var events []APIEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode events: %w", err)
	}
	return events, nil
}
