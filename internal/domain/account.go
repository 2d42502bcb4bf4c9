package domain

import "fmt"

// Credentials are the L2 API credentials issued for a wallet.
type Credentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// Valid reports whether all three parts are present.
func (c Credentials) Valid() bool {
	return c.APIKey != "" && c.Secret != "" && c.Passphrase != ""
}

func (c Credentials) String() string {
	key := "****"
	if len(c.APIKey) > 4 {
		key = c.APIKey[:4] + "****"
	}
	return fmt.Sprintf("Credentials{key=%s}", key)
}

// Balance is the wallet's USDC balance in human units.
type Balance struct {
	Available float64 `json:"available"`
	Locked    float64 `json:"locked"`
	Total     float64 `json:"total"`
}

// ExchangePosition is a holding as reported by the exchange. Prices are on
// the 0-100 scale.
type ExchangePosition struct {
	ID           string  `json:"id"`
	MarketID     string  `json:"market_id"`
	TokenID      string  `json:"token_id"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentPrice float64 `json:"current_price"`
}

// BookPrice is the top-of-book summary for a token on the 0-100 scale.
type BookPrice struct {
	TokenID string  `json:"token_id"`
	Price   float64 `json:"price"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	Spread  float64 `json:"spread"`
}
