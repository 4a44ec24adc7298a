package reserve

import (
	"errors"
	"math/big"

	"ideamarket/core/events"
	nativecommon "ideamarket/native/common"
)

var (
	errNilState           = errors.New("reserve manager: state not configured")
	errNotInitialized     = errors.New("reserve manager: not initialized")
	errAlreadyInitialized = errors.New("reserve manager: already initialized")

	// ErrInvalidAmount is returned when an amount is nil or non-positive.
	ErrInvalidAmount = errors.New("reserve manager: amount must be positive")
	// ErrInsufficientCollateral is returned when an invest exceeds the
	// manager's spare (not yet invested) collateral balance.
	ErrInsufficientCollateral = errors.New("reserve manager: not enough collateral")
	// ErrInsufficientReserve is returned when a redeem exceeds the principal
	// the pool position can cover.
	ErrInsufficientReserve = errors.New("reserve manager: not enough reserve")
	// ErrInsufficientDonated is returned when a donated redemption exceeds
	// the caller's outstanding donated claim.
	ErrInsufficientDonated = errors.New("reserve manager: not enough donated")
)

const moduleName = "reserve"

var tenPow18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type managerState interface {
	ReserveSharesGet() (*big.Int, error)
	ReserveSharesPut(shares *big.Int) error
	ReserveDonatedGet(addr [20]byte) (*big.Int, error)
	ReserveDonatedPut(addr [20]byte, amount *big.Int) error
	ReserveTotalDonatedGet() (*big.Int, error)
	ReserveTotalDonatedPut(amount *big.Int) error
}

// InitConfig carries the collaborators wired in by the one-shot Initialize.
type InitConfig struct {
	// Owner is the sole principal redeemer, normally the exchange module
	// account.
	Owner [20]byte
	// Admin is entitled to the secondary reward sweep.
	Admin [20]byte
	// ModuleAddress is the manager's own collateral account.
	ModuleAddress [20]byte
	// RewardRecipient receives reward sweeps; fixed at initialization.
	RewardRecipient [20]byte
	Collateral      CollateralLedger
	Reward          RewardLedger
	Adapter         LendingAdapter
}

// Manager owns the collateral invested in the lending pool. It keeps two
// sub-ledgers over one pool position: trading principal, redeemable only by
// the owner, and donated collateral, redeemable only by each donor up to
// their outstanding claim. Interest is fungible across the pool; only the
// claims are partitioned.
type Manager struct {
	state       managerState
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	initialized bool

	owner           [20]byte
	admin           [20]byte
	moduleAddr      [20]byte
	rewardRecipient [20]byte
	collateral      CollateralLedger
	reward          RewardLedger
	adapter         LendingAdapter
}

// NewManager constructs an uninitialized reserve manager.
func NewManager() *Manager {
	return &Manager{emitter: events.NoopEmitter{}}
}

// Initialize wires the manager's collaborators. One-shot: a second call fails.
func (m *Manager) Initialize(cfg InitConfig) error {
	if m == nil {
		return errNilState
	}
	if m.initialized {
		return errAlreadyInitialized
	}
	if cfg.Collateral == nil || cfg.Adapter == nil {
		return errNilState
	}
	m.owner = cfg.Owner
	m.admin = cfg.Admin
	m.moduleAddr = cfg.ModuleAddress
	m.rewardRecipient = cfg.RewardRecipient
	m.collateral = cfg.Collateral
	m.reward = cfg.Reward
	m.adapter = cfg.Adapter
	m.initialized = true
	return nil
}

// SetState wires the manager to the external persistence layer.
func (m *Manager) SetState(state managerState) { m.state = state }

// SetEmitter configures the event emitter used by the manager.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// SetPauses wires the module pause switchboard.
func (m *Manager) SetPauses(p nativecommon.PauseView) {
	if m == nil {
		return
	}
	m.pauses = p
}

// Invest deposits the manager's spare collateral into the lending pool. The
// caller must have transferred the collateral to the manager's account
// beforehand.
func (m *Manager) Invest(amount *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	spare, err := m.collateral.BalanceOf(m.moduleAddr)
	if err != nil {
		return err
	}
	if spare.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	minted, err := m.adapter.Deposit(amount)
	if err != nil {
		return err
	}
	shares, err := m.sharesHeld()
	if err != nil {
		return err
	}
	if err := m.state.ReserveSharesPut(new(big.Int).Add(shares, minted)); err != nil {
		return err
	}
	m.emit(InvestedEvent(amount, minted))
	return nil
}

// Redeem withdraws principal from the pool and pays the recipient. Only the
// owner (the exchange) or the admin may redeem, and never into the donated
// partition.
func (m *Manager) Redeem(caller, recipient [20]byte, amount *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	if caller != m.owner && caller != m.admin {
		return nativecommon.ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	principal, err := m.Principal()
	if err != nil {
		return err
	}
	if principal.Cmp(amount) < 0 {
		return ErrInsufficientReserve
	}
	if err := m.withdrawTo(recipient, amount); err != nil {
		return err
	}
	m.emit(RedeemedEvent(recipient, amount))
	return nil
}

// DonateInterest pulls collateral from the caller via allowance, invests it,
// and records it under the caller's donated claim. Donated funds cannot be
// swept by ordinary sell-side redemptions.
func (m *Manager) DonateInterest(caller [20]byte, amount *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := m.collateral.TransferFrom(m.moduleAddr, caller, m.moduleAddr, amount); err != nil {
		return err
	}
	minted, err := m.adapter.Deposit(amount)
	if err != nil {
		return err
	}
	shares, err := m.sharesHeld()
	if err != nil {
		return err
	}
	if err := m.state.ReserveSharesPut(new(big.Int).Add(shares, minted)); err != nil {
		return err
	}
	claim, err := m.DonatedBy(caller)
	if err != nil {
		return err
	}
	if err := m.state.ReserveDonatedPut(caller, new(big.Int).Add(claim, amount)); err != nil {
		return err
	}
	total, err := m.TotalDonated()
	if err != nil {
		return err
	}
	if err := m.state.ReserveTotalDonatedPut(new(big.Int).Add(total, amount)); err != nil {
		return err
	}
	m.emit(DonatedEvent(caller, amount))
	return nil
}

// RedeemDonated withdraws from the pool against the caller's donated claim
// and pays the recipient. Fails regardless of total pool balance when the
// claim is short.
func (m *Manager) RedeemDonated(caller, recipient [20]byte, amount *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	claim, err := m.DonatedBy(caller)
	if err != nil {
		return err
	}
	if claim.Cmp(amount) < 0 {
		return ErrInsufficientDonated
	}
	if err := m.withdrawTo(recipient, amount); err != nil {
		return err
	}
	if err := m.state.ReserveDonatedPut(caller, new(big.Int).Sub(claim, amount)); err != nil {
		return err
	}
	total, err := m.TotalDonated()
	if err != nil {
		return err
	}
	if err := m.state.ReserveTotalDonatedPut(new(big.Int).Sub(total, amount)); err != nil {
		return err
	}
	m.emit(DonatedRedeemedEvent(caller, recipient, amount))
	return nil
}

// WithdrawReward sweeps the full accrued reward-asset balance to the fixed
// recipient. Admin-only. Returns the swept amount.
func (m *Manager) WithdrawReward(caller [20]byte) (*big.Int, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if caller != m.admin {
		return nil, nativecommon.ErrUnauthorized
	}
	if m.reward == nil {
		return big.NewInt(0), nil
	}
	balance, err := m.reward.BalanceOf(m.moduleAddr)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := m.reward.Transfer(m.moduleAddr, m.rewardRecipient, balance); err != nil {
		return nil, err
	}
	m.emit(RewardWithdrawnEvent(m.rewardRecipient, balance))
	return balance, nil
}

// PoolValue returns the collateral value of the held pool shares at the
// current exchange rate.
func (m *Manager) PoolValue() (*big.Int, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	shares, err := m.sharesHeld()
	if err != nil {
		return nil, err
	}
	value := new(big.Int).Mul(shares, m.adapter.ExchangeRate())
	return value.Quo(value, tenPow18), nil
}

// Principal returns the redeemable value not reserved for donated claims.
func (m *Manager) Principal() (*big.Int, error) {
	value, err := m.PoolValue()
	if err != nil {
		return nil, err
	}
	donated, err := m.TotalDonated()
	if err != nil {
		return nil, err
	}
	principal := new(big.Int).Sub(value, donated)
	if principal.Sign() < 0 {
		principal = big.NewInt(0)
	}
	return principal, nil
}

// TotalDonated returns the aggregate outstanding donated claims.
func (m *Manager) TotalDonated() (*big.Int, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	total, err := m.state.ReserveTotalDonatedGet()
	if err != nil {
		return nil, err
	}
	if total == nil {
		total = big.NewInt(0)
	}
	return total, nil
}

// DonatedBy returns the donor's outstanding donated claim.
func (m *Manager) DonatedBy(addr [20]byte) (*big.Int, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	claim, err := m.state.ReserveDonatedGet(addr)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		claim = big.NewInt(0)
	}
	return claim, nil
}

func (m *Manager) ready() error {
	if m == nil || m.state == nil {
		return errNilState
	}
	if !m.initialized {
		return errNotInitialized
	}
	return nativecommon.Guard(m.pauses, moduleName)
}

func (m *Manager) sharesHeld() (*big.Int, error) {
	shares, err := m.state.ReserveSharesGet()
	if err != nil {
		return nil, err
	}
	if shares == nil {
		shares = big.NewInt(0)
	}
	return shares, nil
}

// withdrawTo burns just enough shares to release amount and pays it out. The
// share count rounds up, so the released value can exceed amount by dust; the
// dust stays on the manager's spare balance in the pool's favour.
func (m *Manager) withdrawTo(recipient [20]byte, amount *big.Int) error {
	rate := m.adapter.ExchangeRate()
	needed := new(big.Int).Mul(amount, tenPow18)
	needed.Add(needed, new(big.Int).Sub(rate, big.NewInt(1)))
	needed.Quo(needed, rate)

	held, err := m.sharesHeld()
	if err != nil {
		return err
	}
	if held.Cmp(needed) < 0 {
		return ErrInsufficientReserve
	}
	released, err := m.adapter.Withdraw(needed)
	if err != nil {
		return err
	}
	if released.Cmp(amount) < 0 {
		return ErrInsufficientReserve
	}
	if err := m.state.ReserveSharesPut(new(big.Int).Sub(held, needed)); err != nil {
		return err
	}
	if recipient != m.moduleAddr {
		if err := m.collateral.Transfer(m.moduleAddr, recipient, amount); err != nil {
			return err
		}
	}
	return nil
}
