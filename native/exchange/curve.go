package exchange

import (
	"math/big"

	"ideamarket/native/registry"
)

var (
	bigOne   = big.NewInt(1)
	bigTwo   = big.NewInt(2)
	tenPow18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	feeScale = big.NewInt(registry.FeeScale)
)

// costForCompletedIntervals integrates the curve over n whole intervals:
//
//	n*t*(b-r) + r*t*(n*(n+1)/2)
//
// The result is still scaled by 1e18; costFromZeroSupply performs the single
// final scale-down. Splitting the division differently changes rounding and
// breaks agreement with the reference vectors.
func costForCompletedIntervals(baseCost, priceRise, interval, n *big.Int) *big.Int {
	left := new(big.Int).Sub(baseCost, priceRise)
	left.Mul(left, interval)
	left.Mul(left, n)

	triangle := new(big.Int).Add(n, bigOne)
	triangle.Mul(triangle, n)
	triangle.Quo(triangle, bigTwo)

	right := new(big.Int).Mul(priceRise, interval)
	right.Mul(right, triangle)

	return left.Add(left, right)
}

// costFromZeroSupply evaluates the curve integral from zero to supply.
func costFromZeroSupply(baseCost, priceRise, interval, supply *big.Int) *big.Int {
	n := new(big.Int).Quo(supply, interval)

	remainder := new(big.Int).Mul(n, interval)
	remainder.Sub(supply, remainder)

	stepPrice := new(big.Int).Mul(n, priceRise)
	stepPrice.Add(stepPrice, baseCost)

	total := costForCompletedIntervals(baseCost, priceRise, interval, n)
	total.Add(total, remainder.Mul(remainder, stepPrice))
	return total.Quo(total, tenPow18)
}

// rawCostForBuy is the pre-fee cost of raising supply by amount.
func rawCostForBuy(market *registry.Market, supply, amount *big.Int) *big.Int {
	after := new(big.Int).Add(supply, amount)
	cost := costFromZeroSupply(market.BaseCost, market.PriceRise, market.TokensPerInterval, after)
	return cost.Sub(cost, costFromZeroSupply(market.BaseCost, market.PriceRise, market.TokensPerInterval, supply))
}

// rawPriceForSell is the pre-fee proceeds of lowering supply by amount.
// The caller must ensure amount <= supply.
func rawPriceForSell(market *registry.Market, supply, amount *big.Int) *big.Int {
	before := new(big.Int).Sub(supply, amount)
	price := costFromZeroSupply(market.BaseCost, market.PriceRise, market.TokensPerInterval, supply)
	return price.Sub(price, costFromZeroSupply(market.BaseCost, market.PriceRise, market.TokensPerInterval, before))
}

// feePortion computes raw*rateBps/10000 with floor division. The fee never
// exceeds the exact proportional share; traders absorb the remainder.
func feePortion(raw *big.Int, rateBps uint64) *big.Int {
	if raw == nil || raw.Sign() <= 0 || rateBps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(raw, new(big.Int).SetUint64(rateBps))
	return fee.Quo(fee, feeScale)
}
