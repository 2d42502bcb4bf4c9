package polymarket

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/tailbot/internal/crypto"
	"github.com/alanyoungcy/tailbot/internal/domain"
)

const (
	defaultOrderTTL = 30 * 24 * time.Hour
	zeroAddress     = "0x0000000000000000000000000000000000000000"
)

// BuilderConfig controls how orders are stamped before signing.
type BuilderConfig struct {
	SignatureType int            // 0 = EOA, 1 = POLY_PROXY, 2 = GNOSIS_SAFE
	Funder        common.Address // maker for proxy wallets; zero means the signer
	NegRisk       bool
	OrderTTL      time.Duration
	FeeRateBps    int
}

// OrderBuilder turns an OrderIntent into a signed CLOB order. Salt and clock
// are injectable so signatures are reproducible in tests.
type OrderBuilder struct {
	signer *crypto.Signer
	salts  crypto.SaltSource
	now    func() time.Time
	cfg    BuilderConfig
}

// NewOrderBuilder creates an OrderBuilder. A nil salts uses crypto.RandomSalt
// and a nil now uses time.Now.
func NewOrderBuilder(signer *crypto.Signer, cfg BuilderConfig, salts crypto.SaltSource, now func() time.Time) *OrderBuilder {
	if salts == nil {
		salts = crypto.RandomSalt{}
	}
	if now == nil {
		now = time.Now
	}
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = defaultOrderTTL
	}
	return &OrderBuilder{signer: signer, salts: salts, now: now, cfg: cfg}
}

// Build validates the intent, computes fixed-point amounts and signs the order.
func (b *OrderBuilder) Build(intent domain.OrderIntent) (SignedOrder, OrderAmounts, error) {
	if intent.TokenID == "" {
		return SignedOrder{}, OrderAmounts{}, &domain.ValidationError{Field: "token_id", Reason: "must not be empty"}
	}
	amounts, err := ComputeAmounts(intent)
	if err != nil {
		return SignedOrder{}, OrderAmounts{}, err
	}

	salt, err := b.salts.Salt()
	if err != nil {
		return SignedOrder{}, OrderAmounts{}, fmt.Errorf("polymarket/builder: %w", err)
	}

	maker := b.signer.Address()
	if b.cfg.SignatureType != 0 && b.cfg.Funder != (common.Address{}) {
		maker = b.cfg.Funder
	}

	payload := crypto.OrderPayload{
		Salt:          salt.String(),
		Maker:         maker.Hex(),
		Signer:        b.signer.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       intent.TokenID,
		MakerAmount:   amounts.MakerAmount.String(),
		TakerAmount:   amounts.TakerAmount.String(),
		Expiration:    strconv.FormatInt(b.now().Add(b.cfg.OrderTTL).Unix(), 10),
		Nonce:         "0",
		FeeRateBps:    strconv.Itoa(b.cfg.FeeRateBps),
		Side:          intent.Side.Code(),
		SignatureType: b.cfg.SignatureType,
	}

	exchange := crypto.ExchangeAddress
	if b.cfg.NegRisk {
		exchange = crypto.NegRiskExchangeAddress
	}
	sig, err := b.signer.SignOrder(payload, exchange)
	if err != nil {
		return SignedOrder{}, OrderAmounts{}, fmt.Errorf("polymarket/builder: %w: %w", domain.ErrSigningFailed, err)
	}

	return SignedOrder{
		Salt:          jsonNumber(payload.Salt),
		Maker:         payload.Maker,
		Signer:        payload.Signer,
		Taker:         payload.Taker,
		TokenID:       payload.TokenID,
		MakerAmount:   payload.MakerAmount,
		TakerAmount:   payload.TakerAmount,
		Expiration:    payload.Expiration,
		Nonce:         payload.Nonce,
		FeeRateBps:    payload.FeeRateBps,
		Side:          string(intent.Side),
		SignatureType: payload.SignatureType,
		Signature:     sig,
	}, amounts, nil
}
