package polymarket_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tailbot/internal/domain"
	"github.com/alanyoungcy/tailbot/internal/platform/polymarket"
)

func TestPriceScaleRoundTrip(t *testing.T) {
	for _, p := range []float64{0.01, 1, 12.5, 33.333, 50, 85, 90, 92.37, 99.99} {
		got := polymarket.ProbToPct(polymarket.PctToProb(p))
		assert.InDelta(t, p, got, 1e-9, "price %v", p)
	}
}

func TestValidatePrice(t *testing.T) {
	for _, p := range []float64{0, -1, 100, 150} {
		err := polymarket.ValidatePrice(p)
		require.Error(t, err, "price %v", p)
		assert.True(t, errors.Is(err, domain.ErrInvalidOrder))
		var ve *domain.ValidationError
		assert.True(t, errors.As(err, &ve))
	}
	assert.NoError(t, polymarket.ValidatePrice(0.5))
	assert.NoError(t, polymarket.ValidatePrice(99.5))
}

func TestComputeAmounts_Buy(t *testing.T) {
	a, err := polymarket.ComputeAmounts(domain.OrderIntent{
		Side: domain.OrderSideBuy, Price: 92, Amount: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, "10000000", a.MakerAmount.String(), "maker pays USDC")
	assert.Equal(t, "10869565", a.TakerAmount.String(), "taker side is tokens, truncated")
	assert.InDelta(t, 10.869565, a.Size, 1e-9)
	assert.InDelta(t, 10.0, a.Amount, 1e-9)
}

func TestComputeAmounts_Sell(t *testing.T) {
	a, err := polymarket.ComputeAmounts(domain.OrderIntent{
		Side: domain.OrderSideSell, Price: 85, Size: 10.869565,
	})
	require.NoError(t, err)

	assert.Equal(t, "10869565", a.MakerAmount.String(), "maker gives tokens")
	assert.Equal(t, "9239130", a.TakerAmount.String(), "taker side is USDC, truncated")
	assert.InDelta(t, 9.23913, a.Amount, 1e-9)
}

func TestComputeAmounts_Rejects(t *testing.T) {
	cases := []domain.OrderIntent{
		{Side: domain.OrderSideBuy, Price: 0, Amount: 10},
		{Side: domain.OrderSideBuy, Price: 100, Amount: 10},
		{Side: domain.OrderSideBuy, Price: 50, Amount: 0},
		{Side: domain.OrderSideSell, Price: 50, Size: -1},
		{Side: "HOLD", Price: 50, Amount: 1},
	}
	for _, in := range cases {
		_, err := polymarket.ComputeAmounts(in)
		assert.ErrorIs(t, err, domain.ErrInvalidOrder, "%+v", in)
	}
}
