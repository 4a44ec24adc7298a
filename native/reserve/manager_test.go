package reserve

import (
	"errors"
	"math/big"
	"testing"

	nativecommon "ideamarket/native/common"
)

type testLedger struct {
	balances map[[20]byte]*big.Int
}

func newTestLedger() *testLedger {
	return &testLedger{balances: make(map[[20]byte]*big.Int)}
}

func (l *testLedger) balance(addr [20]byte) *big.Int {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

func (l *testLedger) Mint(to [20]byte, amount *big.Int) error {
	l.balances[to] = new(big.Int).Add(l.balance(to), amount)
	return nil
}

func (l *testLedger) Burn(from [20]byte, amount *big.Int) error {
	have := l.balance(from)
	if have.Cmp(amount) < 0 {
		return errors.New("test ledger: burn exceeds balance")
	}
	l.balances[from] = new(big.Int).Sub(have, amount)
	return nil
}

func (l *testLedger) BalanceOf(addr [20]byte) (*big.Int, error) {
	return new(big.Int).Set(l.balance(addr)), nil
}

func (l *testLedger) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := l.Burn(from, amount); err != nil {
		return err
	}
	return l.Mint(to, amount)
}

func (l *testLedger) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	return l.Transfer(from, to, amount)
}

type mockManagerState struct {
	shares       *big.Int
	donated      map[[20]byte]*big.Int
	totalDonated *big.Int
}

func newMockManagerState() *mockManagerState {
	return &mockManagerState{donated: make(map[[20]byte]*big.Int)}
}

func (s *mockManagerState) ReserveSharesGet() (*big.Int, error) { return s.shares, nil }

func (s *mockManagerState) ReserveSharesPut(shares *big.Int) error {
	s.shares = new(big.Int).Set(shares)
	return nil
}

func (s *mockManagerState) ReserveDonatedGet(addr [20]byte) (*big.Int, error) {
	return s.donated[addr], nil
}

func (s *mockManagerState) ReserveDonatedPut(addr [20]byte, amount *big.Int) error {
	s.donated[addr] = new(big.Int).Set(amount)
	return nil
}

func (s *mockManagerState) ReserveTotalDonatedGet() (*big.Int, error) { return s.totalDonated, nil }

func (s *mockManagerState) ReserveTotalDonatedPut(amount *big.Int) error {
	s.totalDonated = new(big.Int).Set(amount)
	return nil
}

var (
	ownerAddr  = addr(0x01)
	adminAddr  = addr(0x02)
	reserveMod = addr(0x03)
	poolAddr   = addr(0x04)
	rewardDst  = addr(0x05)
	donorAddr  = addr(0x06)
	payoutAddr = addr(0x07)
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func scaled(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), tenPow18)
}

type reserveFixture struct {
	manager    *Manager
	state      *mockManagerState
	collateral *testLedger
	reward     *testLedger
	pool       *CompoundToken
}

func newReserveFixture(t *testing.T) *reserveFixture {
	t.Helper()
	collateral := newTestLedger()
	shares := newTestLedger()
	reward := newTestLedger()
	pool, err := NewCompoundToken(shares, collateral, reward, poolAddr, reserveMod, tenPow18)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	manager := NewManager()
	manager.SetState(newMockManagerState())
	cfg := InitConfig{
		Owner:           ownerAddr,
		Admin:           adminAddr,
		ModuleAddress:   reserveMod,
		RewardRecipient: rewardDst,
		Collateral:      collateral,
		Reward:          reward,
		Adapter:         pool,
	}
	if err := manager.Initialize(cfg); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := manager.Initialize(cfg); !errors.Is(err, errAlreadyInitialized) {
		t.Fatalf("second initialize: got %v, want %v", err, errAlreadyInitialized)
	}
	state := newMockManagerState()
	manager.SetState(state)
	return &reserveFixture{manager: manager, state: state, collateral: collateral, reward: reward, pool: pool}
}

func TestInvestRequiresSpareBalance(t *testing.T) {
	fix := newReserveFixture(t)
	if err := fix.manager.Invest(scaled(10)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("invest without balance: got %v, want %v", err, ErrInsufficientCollateral)
	}
	fix.collateral.Mint(reserveMod, scaled(4))
	if err := fix.manager.Invest(scaled(10)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("invest above balance: got %v, want %v", err, ErrInsufficientCollateral)
	}
	if err := fix.manager.Invest(scaled(4)); err != nil {
		t.Fatalf("invest: %v", err)
	}
	value, err := fix.manager.PoolValue()
	if err != nil {
		t.Fatalf("pool value: %v", err)
	}
	if value.Cmp(scaled(4)) != 0 {
		t.Fatalf("pool value = %s, want %s", value, scaled(4))
	}
}

func TestRedeemPrincipalAfterInterest(t *testing.T) {
	fix := newReserveFixture(t)
	fix.collateral.Mint(reserveMod, scaled(100))
	if err := fix.manager.Invest(scaled(100)); err != nil {
		t.Fatalf("invest: %v", err)
	}

	// Double the exchange rate and back the pool so the value is covered.
	if err := fix.pool.SetExchangeRate(scaled(2)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	fix.collateral.Mint(poolAddr, scaled(100))

	principal, err := fix.manager.Principal()
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	if principal.Cmp(scaled(200)) != 0 {
		t.Fatalf("principal = %s, want %s", principal, scaled(200))
	}

	if err := fix.manager.Redeem(donorAddr, payoutAddr, scaled(1)); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("redeem by stranger: got %v, want %v", err, nativecommon.ErrUnauthorized)
	}
	if err := fix.manager.Redeem(ownerAddr, payoutAddr, scaled(201)); !errors.Is(err, ErrInsufficientReserve) {
		t.Fatalf("redeem above principal: got %v, want %v", err, ErrInsufficientReserve)
	}
	if err := fix.manager.Redeem(ownerAddr, payoutAddr, scaled(150)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	paid, _ := fix.collateral.BalanceOf(payoutAddr)
	if paid.Cmp(scaled(150)) != 0 {
		t.Fatalf("payout = %s, want %s", paid, scaled(150))
	}
	principal, err = fix.manager.Principal()
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	if principal.Cmp(scaled(50)) != 0 {
		t.Fatalf("remaining principal = %s, want %s", principal, scaled(50))
	}
}

func TestDonatedClaimsArePartitioned(t *testing.T) {
	fix := newReserveFixture(t)
	fix.collateral.Mint(reserveMod, scaled(100))
	if err := fix.manager.Invest(scaled(100)); err != nil {
		t.Fatalf("invest: %v", err)
	}
	fix.collateral.Mint(donorAddr, scaled(40))
	if err := fix.manager.DonateInterest(donorAddr, scaled(40)); err != nil {
		t.Fatalf("donate: %v", err)
	}

	claim, err := fix.manager.DonatedBy(donorAddr)
	if err != nil {
		t.Fatalf("donated by: %v", err)
	}
	if claim.Cmp(scaled(40)) != 0 {
		t.Fatalf("claim = %s, want %s", claim, scaled(40))
	}
	total, err := fix.manager.TotalDonated()
	if err != nil {
		t.Fatalf("total donated: %v", err)
	}
	if total.Cmp(scaled(40)) != 0 {
		t.Fatalf("total donated = %s, want %s", total, scaled(40))
	}

	// Principal redemptions may not dip into the donated partition.
	if err := fix.manager.Redeem(ownerAddr, payoutAddr, scaled(101)); !errors.Is(err, ErrInsufficientReserve) {
		t.Fatalf("redeem into donated: got %v, want %v", err, ErrInsufficientReserve)
	}
	if err := fix.manager.Redeem(ownerAddr, payoutAddr, scaled(100)); err != nil {
		t.Fatalf("redeem principal: %v", err)
	}

	// Donor can reclaim only up to their own claim.
	if err := fix.manager.RedeemDonated(donorAddr, donorAddr, scaled(41)); !errors.Is(err, ErrInsufficientDonated) {
		t.Fatalf("redeem above claim: got %v, want %v", err, ErrInsufficientDonated)
	}
	if err := fix.manager.RedeemDonated(payoutAddr, payoutAddr, scaled(1)); !errors.Is(err, ErrInsufficientDonated) {
		t.Fatalf("redeem without claim: got %v, want %v", err, ErrInsufficientDonated)
	}
	if err := fix.manager.RedeemDonated(donorAddr, donorAddr, scaled(40)); err != nil {
		t.Fatalf("redeem donated: %v", err)
	}
	got, _ := fix.collateral.BalanceOf(donorAddr)
	if got.Cmp(scaled(40)) != 0 {
		t.Fatalf("donor balance = %s, want %s", got, scaled(40))
	}
	claim, _ = fix.manager.DonatedBy(donorAddr)
	if claim.Sign() != 0 {
		t.Fatalf("claim after reclaim = %s, want 0", claim)
	}
}

func TestRedeemBurnsSharesRoundedUp(t *testing.T) {
	fix := newReserveFixture(t)
	fix.collateral.Mint(reserveMod, scaled(10))
	if err := fix.manager.Invest(scaled(10)); err != nil {
		t.Fatalf("invest: %v", err)
	}

	// 1.5e18 per share: redeeming 1 token needs ceil(1e18/1.5) shares.
	rate := new(big.Int).Mul(big.NewInt(15), new(big.Int).Quo(tenPow18, big.NewInt(10)))
	if err := fix.pool.SetExchangeRate(rate); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	fix.collateral.Mint(poolAddr, scaled(5))

	sharesBefore := new(big.Int).Set(fix.state.shares)
	if err := fix.manager.Redeem(ownerAddr, payoutAddr, scaled(1)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	burned := new(big.Int).Sub(sharesBefore, fix.state.shares)
	wantBurned := new(big.Int).Add(new(big.Int).Quo(new(big.Int).Mul(scaled(1), tenPow18), rate), big.NewInt(1))
	if burned.Cmp(wantBurned) != 0 {
		t.Fatalf("burned %s shares, want %s", burned, wantBurned)
	}
	paid, _ := fix.collateral.BalanceOf(payoutAddr)
	if paid.Cmp(scaled(1)) != 0 {
		t.Fatalf("payout = %s, want exactly %s", paid, scaled(1))
	}
	// Whatever the burned shares released beyond the exact amount stays on
	// the manager's spare balance.
	released := new(big.Int).Quo(new(big.Int).Mul(wantBurned, rate), tenPow18)
	wantSpare := new(big.Int).Sub(released, scaled(1))
	spare, _ := fix.collateral.BalanceOf(reserveMod)
	if spare.Cmp(wantSpare) != 0 {
		t.Fatalf("module spare = %s, want %s", spare, wantSpare)
	}
}

func TestRewardSweepIsAdminOnly(t *testing.T) {
	fix := newReserveFixture(t)
	fix.pool.SetRewardDrip(scaled(3))
	fix.collateral.Mint(reserveMod, scaled(10))
	if err := fix.manager.Invest(scaled(10)); err != nil {
		t.Fatalf("invest: %v", err)
	}

	if _, err := fix.manager.WithdrawReward(ownerAddr); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("sweep by owner: got %v, want %v", err, nativecommon.ErrUnauthorized)
	}
	swept, err := fix.manager.WithdrawReward(adminAddr)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept.Cmp(scaled(3)) != 0 {
		t.Fatalf("swept = %s, want %s", swept, scaled(3))
	}
	got, _ := fix.reward.BalanceOf(rewardDst)
	if got.Cmp(scaled(3)) != 0 {
		t.Fatalf("recipient reward = %s, want %s", got, scaled(3))
	}
	swept, err = fix.manager.WithdrawReward(adminAddr)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if swept.Sign() != 0 {
		t.Fatalf("second sweep = %s, want 0", swept)
	}
}

func TestExchangeRateMayNotDecrease(t *testing.T) {
	fix := newReserveFixture(t)
	if err := fix.pool.SetExchangeRate(scaled(2)); err != nil {
		t.Fatalf("raise rate: %v", err)
	}
	if err := fix.pool.SetExchangeRate(tenPow18); !errors.Is(err, ErrRateDecrease) {
		t.Fatalf("lower rate: got %v, want %v", err, ErrRateDecrease)
	}
	if err := fix.pool.SetExchangeRate(nil); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("nil rate: got %v, want %v", err, ErrInvalidRate)
	}
}

func TestPausedReserveRejectsMutations(t *testing.T) {
	fix := newReserveFixture(t)
	fix.collateral.Mint(reserveMod, scaled(10))
	fix.manager.SetPauses(pauseMap{moduleName: true})
	if err := fix.manager.Invest(scaled(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("invest while paused: got %v, want %v", err, nativecommon.ErrModulePaused)
	}
}

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }
