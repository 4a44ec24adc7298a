package ideatoken

import (
	"errors"
	"math/big"
)

var (
	errNilState = errors.New("idea token ledger: state not configured")

	// ErrInvalidAmount is returned when an amount is nil or non-positive.
	ErrInvalidAmount = errors.New("idea token ledger: amount must be positive")
	// ErrInsufficientBalance is returned when a holder's balance cannot cover
	// a transfer or burn.
	ErrInsufficientBalance = errors.New("idea token ledger: insufficient balance")
	// ErrInsufficientAllowance is returned when a spender's allowance cannot
	// cover a delegated transfer.
	ErrInsufficientAllowance = errors.New("idea token ledger: insufficient allowance")
)

// LedgerState is the persistence surface backing a ledger. All amounts are
// stored as big integers at 18-decimal precision; absent records read as zero.
type LedgerState interface {
	TokenSupplyGet(token string) (*big.Int, error)
	TokenSupplyPut(token string, supply *big.Int) error
	TokenBalanceGet(token string, addr [20]byte) (*big.Int, error)
	TokenBalancePut(token string, addr [20]byte, balance *big.Int) error
	TokenAllowanceGet(token string, owner, spender [20]byte) (*big.Int, error)
	TokenAllowancePut(token string, owner, spender [20]byte, amount *big.Int) error
}

// Ledger is a fungible-unit ledger with mint/burn and allowance semantics.
// One instance exists per registered idea token; the collateral and reward
// assets reuse the same implementation under their own names.
type Ledger struct {
	state LedgerState
	name  string
}

// NewLedger constructs a ledger persisting under the supplied token name.
func NewLedger(name string, state LedgerState) *Ledger {
	return &Ledger{state: state, name: name}
}

// Name returns the token name the ledger persists under.
func (l *Ledger) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// TotalSupply returns the outstanding supply.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	supply, err := l.state.TokenSupplyGet(l.name)
	if err != nil {
		return nil, err
	}
	return nonNil(supply), nil
}

// BalanceOf returns the holder's balance.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	balance, err := l.state.TokenBalanceGet(l.name, addr)
	if err != nil {
		return nil, err
	}
	return nonNil(balance), nil
}

// Allowance returns the amount the spender may move on the owner's behalf.
func (l *Ledger) Allowance(owner, spender [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	allowance, err := l.state.TokenAllowanceGet(l.name, owner, spender)
	if err != nil {
		return nil, err
	}
	return nonNil(allowance), nil
}

// Approve sets the spender's allowance over the owner's balance. A zero amount
// revokes it.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return l.state.TokenAllowancePut(l.name, owner, spender, new(big.Int).Set(amount))
}

// Mint credits newly created units to the recipient and grows the supply.
func (l *Ledger) Mint(to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.state.TokenBalancePut(l.name, to, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	return l.state.TokenSupplyPut(l.name, new(big.Int).Add(supply, amount))
}

// Burn destroys units held by the holder and shrinks the supply.
func (l *Ledger) Burn(from [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.state.TokenBalancePut(l.name, from, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return l.state.TokenSupplyPut(l.name, new(big.Int).Sub(supply, amount))
}

// Transfer moves units between holders.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	if err := l.state.TokenBalancePut(l.name, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.state.TokenBalancePut(l.name, to, new(big.Int).Add(toBalance, amount))
}

// TransferFrom moves units on behalf of the owner, consuming the spender's
// allowance. The allowance is checked before the balance so an under-approved
// spender never learns the owner's balance state.
func (l *Ledger) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	allowance, err := l.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.Transfer(from, to, amount); err != nil {
		return err
	}
	return l.state.TokenAllowancePut(l.name, from, spender, new(big.Int).Sub(allowance, amount))
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
