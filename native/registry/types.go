package registry

import "math/big"

// FeeScale is the denominator for trading and platform fee rates. A rate of
// 100 over this scale is 1%.
const FeeScale = 10_000

// Market captures the pricing parameters shared by every token listed under
// it. Curve parameters are immutable after creation; fee rates may be retuned
// by the owner.
type Market struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	// VerifierID names the registered NameVerifier this market validates
	// token names with.
	VerifierID string `json:"verifierId"`
	// BaseCost is the curve price at zero supply, 18-decimal fixed point.
	BaseCost *big.Int `json:"baseCost"`
	// PriceRise is the price increment applied per completed interval.
	PriceRise *big.Int `json:"priceRise"`
	// TokensPerInterval is the supply width of one curve step.
	TokensPerInterval *big.Int `json:"tokensPerInterval"`
	// TradingFeeRate is the per-trade fee in basis points over FeeScale,
	// paid out to the trading fee account on every trade.
	TradingFeeRate uint64 `json:"tradingFeeRate"`
	// PlatformFeeRate is the per-trade fee in basis points over FeeScale,
	// accrued inside the reserve for the platform.
	PlatformFeeRate uint64 `json:"platformFeeRate"`
	// NumTokens counts the tokens listed under the market.
	NumTokens uint64 `json:"numTokens"`
}

// Clone returns a deep copy of the market record.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := *m
	if m.BaseCost != nil {
		clone.BaseCost = new(big.Int).Set(m.BaseCost)
	}
	if m.PriceRise != nil {
		clone.PriceRise = new(big.Int).Set(m.PriceRise)
	}
	if m.TokensPerInterval != nil {
		clone.TokensPerInterval = new(big.Int).Set(m.TokensPerInterval)
	}
	return &clone
}

// TokenInfo identifies one listed idea token. Token ids are sequential within
// their market; the address is derived deterministically from the market id
// and name and keys every exchange operation.
type TokenInfo struct {
	ID       uint64   `json:"id"`
	MarketID uint64   `json:"marketId"`
	Name     string   `json:"name"`
	Address  [20]byte `json:"address"`
}

// Clone returns a copy of the token record.
func (t *TokenInfo) Clone() *TokenInfo {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
