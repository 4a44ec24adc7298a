package reserve

import (
	"errors"
	"math/big"
)

var (
	// ErrRateDecrease is returned when a pool exchange-rate update would move
	// the rate down. The rate is the yield source and must be monotonic.
	ErrRateDecrease = errors.New("compound token: exchange rate may not decrease")
	// ErrInvalidRate is returned for a nil or non-positive exchange rate.
	ErrInvalidRate = errors.New("compound token: invalid exchange rate")
)

// SharesLedger is the slice of the ledger surface the pool mints its shares
// on.
type SharesLedger interface {
	Mint(to [20]byte, amount *big.Int) error
	Burn(from [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte) (*big.Int, error)
}

// CompoundToken is a cToken-style lending pool: deposits of the underlying
// asset mint interest-bearing shares at the current exchange rate, and the
// rate only moves up. It implements LendingAdapter for a single investor
// account (the reserve manager).
type CompoundToken struct {
	shares     SharesLedger
	underlying CollateralLedger
	reward     RewardLedger
	poolAddr   [20]byte
	investor   [20]byte
	rate       *big.Int
	rewardDrip *big.Int
}

// NewCompoundToken constructs a pool holding underlying at poolAddr on behalf
// of the investor account. The reward ledger may be nil when the pool pays no
// secondary reward.
func NewCompoundToken(shares SharesLedger, underlying CollateralLedger, reward RewardLedger, poolAddr, investor [20]byte, rate *big.Int) (*CompoundToken, error) {
	if rate == nil || rate.Sign() <= 0 {
		return nil, ErrInvalidRate
	}
	return &CompoundToken{
		shares:     shares,
		underlying: underlying,
		reward:     reward,
		poolAddr:   poolAddr,
		investor:   investor,
		rate:       new(big.Int).Set(rate),
		rewardDrip: big.NewInt(0),
	}, nil
}

// Deposit implements LendingAdapter.
func (c *CompoundToken) Deposit(amount *big.Int) (*big.Int, error) {
	if err := c.underlying.Transfer(c.investor, c.poolAddr, amount); err != nil {
		return nil, err
	}
	minted := new(big.Int).Mul(amount, tenPow18)
	minted.Quo(minted, c.rate)
	if err := c.shares.Mint(c.investor, minted); err != nil {
		return nil, err
	}
	if c.reward != nil && c.rewardDrip.Sign() > 0 {
		if err := c.dripReward(); err != nil {
			return nil, err
		}
	}
	return minted, nil
}

// Withdraw implements LendingAdapter.
func (c *CompoundToken) Withdraw(shares *big.Int) (*big.Int, error) {
	if err := c.shares.Burn(c.investor, shares); err != nil {
		return nil, err
	}
	released := new(big.Int).Mul(shares, c.rate)
	released.Quo(released, tenPow18)
	if err := c.underlying.Transfer(c.poolAddr, c.investor, released); err != nil {
		return nil, err
	}
	return released, nil
}

// ExchangeRate implements LendingAdapter.
func (c *CompoundToken) ExchangeRate() *big.Int {
	return new(big.Int).Set(c.rate)
}

// RewardBalance implements LendingAdapter.
func (c *CompoundToken) RewardBalance() (*big.Int, error) {
	if c.reward == nil {
		return big.NewInt(0), nil
	}
	return c.reward.BalanceOf(c.investor)
}

// SetExchangeRate moves the amount-per-share rate. Decreases are rejected:
// pool value backing outstanding claims must never shrink.
func (c *CompoundToken) SetExchangeRate(rate *big.Int) error {
	if rate == nil || rate.Sign() <= 0 {
		return ErrInvalidRate
	}
	if rate.Cmp(c.rate) < 0 {
		return ErrRateDecrease
	}
	c.rate = new(big.Int).Set(rate)
	return nil
}

// SetRewardDrip configures the flat reward amount minted to the investor per
// deposit, simulating the pool's reward distribution.
func (c *CompoundToken) SetRewardDrip(amount *big.Int) {
	if amount == nil || amount.Sign() < 0 {
		c.rewardDrip = big.NewInt(0)
		return
	}
	c.rewardDrip = new(big.Int).Set(amount)
}

func (c *CompoundToken) dripReward() error {
	mintable, ok := c.reward.(SharesLedger)
	if !ok {
		return nil
	}
	return mintable.Mint(c.investor, c.rewardDrip)
}
