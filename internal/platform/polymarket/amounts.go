package polymarket

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// amountDecimals is the fixed-point precision of USDC and outcome tokens.
const amountDecimals = 6

var hundred = decimal.NewFromInt(100)

// ToFixed scales x by 10^6 and truncates it to an integer.
func ToFixed(x decimal.Decimal) *big.Int {
	return x.Shift(amountDecimals).Truncate(0).BigInt()
}

// FromFixed converts fixed-point protocol units back to a human amount.
func FromFixed(n *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(n, -amountDecimals)
}

// PctToProb converts a 0-100 price to the exchange's 0-1 scale.
func PctToProb(p float64) decimal.Decimal {
	return decimal.NewFromFloat(p).Div(hundred)
}

// ProbToPct converts a 0-1 price to the 0-100 scale.
func ProbToPct(p decimal.Decimal) float64 {
	return p.Mul(hundred).InexactFloat64()
}

// ValidatePrice rejects prices outside the open interval (0, 100).
func ValidatePrice(p float64) error {
	if p <= 0 || p >= 100 {
		return &domain.ValidationError{Field: "price", Reason: "must be strictly between 0 and 100"}
	}
	return nil
}

// OrderAmounts are the signed maker/taker quantities of an order together with
// the human size and notional they represent.
type OrderAmounts struct {
	MakerAmount *big.Int
	TakerAmount *big.Int
	Size        float64 // outcome tokens
	Amount      float64 // USDC
}

// ComputeAmounts converts an intent to fixed-point maker and taker amounts.
//
// BUY:  maker = USDC spent,   taker = tokens received (amount / price).
// SELL: maker = tokens given, taker = USDC received   (size * price).
func ComputeAmounts(intent domain.OrderIntent) (OrderAmounts, error) {
	if err := ValidatePrice(intent.Price); err != nil {
		return OrderAmounts{}, err
	}
	prob := PctToProb(intent.Price)

	switch intent.Side {
	case domain.OrderSideBuy:
		if intent.Amount <= 0 {
			return OrderAmounts{}, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
		}
		usdc := decimal.NewFromFloat(intent.Amount)
		tokens := usdc.Div(prob)
		return OrderAmounts{
			MakerAmount: ToFixed(usdc),
			TakerAmount: ToFixed(tokens),
			Size:        FromFixed(ToFixed(tokens)).InexactFloat64(),
			Amount:      FromFixed(ToFixed(usdc)).InexactFloat64(),
		}, nil

	case domain.OrderSideSell:
		if intent.Size <= 0 {
			return OrderAmounts{}, &domain.ValidationError{Field: "size", Reason: "must be positive"}
		}
		tokens := decimal.NewFromFloat(intent.Size)
		usdc := tokens.Mul(prob)
		return OrderAmounts{
			MakerAmount: ToFixed(tokens),
			TakerAmount: ToFixed(usdc),
			Size:        FromFixed(ToFixed(tokens)).InexactFloat64(),
			Amount:      FromFixed(ToFixed(usdc)).InexactFloat64(),
		}, nil
	}
	return OrderAmounts{}, &domain.ValidationError{Field: "side", Reason: "must be BUY or SELL"}
}
