package reserve

import "math/big"

// LendingAdapter is the interface to the external lending pool the reserve
// collateral is parked in. Shares and amounts are 18-decimal fixed point; the
// exchange rate (amount per share) only ever moves up, which is where the
// yield comes from.
type LendingAdapter interface {
	// Deposit moves amount of the underlying asset from the investor into
	// the pool and returns the shares minted.
	Deposit(amount *big.Int) (*big.Int, error)
	// Withdraw burns shares and returns the underlying amount released back
	// to the investor.
	Withdraw(shares *big.Int) (*big.Int, error)
	// ExchangeRate returns the current amount-per-share rate, 1e18 scaled.
	ExchangeRate() *big.Int
	// RewardBalance reports the secondary reward asset accrued to the
	// investor, zero when the pool pays none.
	RewardBalance() (*big.Int, error)
}

// CollateralLedger is the slice of the fungible ledger surface the reserve
// moves collateral with.
type CollateralLedger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte) (*big.Int, error)
}

// RewardLedger is the slice of the ledger surface used for the secondary
// reward asset sweep.
type RewardLedger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte) (*big.Int, error)
}
