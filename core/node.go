package core

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"ideamarket/core/events"
	nativecommon "ideamarket/native/common"
	"ideamarket/native/exchange"
	"ideamarket/native/ideatoken"
	"ideamarket/native/registry"
	"ideamarket/native/reserve"
	"ideamarket/observability/metrics"
	"ideamarket/storage"
	"ideamarket/storage/state"
)

// DomainNoSubdomainVerifierID names the built-in domain name verifier.
const DomainNoSubdomainVerifierID = "domain-no-subdomain"

var defaultPoolRate = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Config carries the privileged accounts and pool parameters a node starts
// with.
type Config struct {
	// Owner administers markets and fee withdrawals.
	Owner [20]byte
	// Admin holds the reserve-side powers: reward sweeps, the collateral
	// faucet, pool rate updates, and pausing.
	Admin [20]byte
	// TradingFeeAddress receives the trading fee of every trade.
	TradingFeeAddress [20]byte
	// RewardRecipient receives reward sweeps from the reserve.
	RewardRecipient [20]byte
	// InitialPoolRate is the lending pool's starting exchange rate, 1e18
	// scaled. Zero selects 1e18 (one to one).
	InitialPoolRate *big.Int
}

// Node owns the full market state machine: the registry, the exchange, the
// reserve manager with its lending pool, and the backing ledgers. All
// operations are serialized under one mutex; every call either commits fully
// or leaves no trace besides the error.
type Node struct {
	mu  sync.Mutex
	log *slog.Logger

	db       storage.Database
	store    *state.Store
	recorder *events.Recorder
	pauses   pauseSet
	metrics  *metrics.MarketMetrics

	admin        [20]byte
	exchangeAddr [20]byte
	reserveAddr  [20]byte
	poolAddr     [20]byte

	collateral *ideatoken.Ledger
	reward     *ideatoken.Ledger
	pool       *reserve.CompoundToken
	reserve    *reserve.Manager
	registry   *registry.Engine
	exchange   *exchange.Engine
}

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

// moduleAddress derives the fixed account a module holds funds under.
func moduleAddress(name string) [20]byte {
	sum := sha256.Sum256([]byte("module/" + name))
	var addr [20]byte
	copy(addr[:], sum[:20])
	return addr
}

// NewNode wires a node over the given database.
func NewNode(db storage.Database, cfg Config, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store := state.NewStore(db)
	recorder := &events.Recorder{}
	pauses := make(pauseSet)

	n := &Node{
		log:          logger,
		db:           db,
		store:        store,
		recorder:     recorder,
		pauses:       pauses,
		metrics:      metrics.Market(),
		admin:        cfg.Admin,
		exchangeAddr: moduleAddress("exchange"),
		reserveAddr:  moduleAddress("reserve"),
		poolAddr:     moduleAddress("pool"),
	}

	n.collateral = ideatoken.NewLedger("collateral", store)
	n.reward = ideatoken.NewLedger("reward", store)
	poolShares := ideatoken.NewLedger("pool-shares", store)

	rate := cfg.InitialPoolRate
	if rate == nil || rate.Sign() == 0 {
		rate = defaultPoolRate
	}
	pool, err := reserve.NewCompoundToken(poolShares, n.collateral, n.reward, n.poolAddr, n.reserveAddr, rate)
	if err != nil {
		return nil, fmt.Errorf("core: pool: %w", err)
	}
	n.pool = pool

	n.reserve = reserve.NewManager()
	n.reserve.SetState(store)
	n.reserve.SetEmitter(recorder)
	n.reserve.SetPauses(pauses)
	if err := n.reserve.Initialize(reserve.InitConfig{
		Owner:           n.exchangeAddr,
		Admin:           cfg.Admin,
		ModuleAddress:   n.reserveAddr,
		RewardRecipient: cfg.RewardRecipient,
		Collateral:      n.collateral,
		Reward:          n.reward,
		Adapter:         pool,
	}); err != nil {
		return nil, fmt.Errorf("core: reserve: %w", err)
	}

	n.registry = registry.NewEngine(cfg.Owner)
	n.registry.SetState(store)
	n.registry.SetEmitter(recorder)
	n.registry.SetPauses(pauses)
	if err := n.registry.RegisterVerifier(DomainNoSubdomainVerifierID, registry.DomainNoSubdomainNameVerifier{}); err != nil {
		return nil, fmt.Errorf("core: registry: %w", err)
	}
	n.registry.SetTokenDeployer(func(token *registry.TokenInfo) error {
		// Ledgers are keyed by token address; nothing to allocate eagerly.
		n.metrics.RecordTokenRegistered()
		return nil
	})

	n.exchange = exchange.NewEngine()
	n.exchange.SetState(store)
	n.exchange.SetEmitter(recorder)
	n.exchange.SetPauses(pauses)
	if err := n.exchange.Initialize(exchange.InitConfig{
		Owner:             cfg.Owner,
		ModuleAddress:     n.exchangeAddr,
		ReserveAddress:    n.reserveAddr,
		TradingFeeAddress: cfg.TradingFeeAddress,
		Registry:          n.registry,
		Reserve:           n.reserve,
		Collateral:        n.collateral,
		Resolver:          n.tokenLedger,
	}); err != nil {
		return nil, fmt.Errorf("core: exchange: %w", err)
	}

	logger.Info("node wired",
		"exchange_account", fmt.Sprintf("0x%x", n.exchangeAddr),
		"reserve_account", fmt.Sprintf("0x%x", n.reserveAddr))
	return n, nil
}

func (n *Node) tokenLedger(token *registry.TokenInfo) exchange.TokenLedger {
	if token == nil {
		return nil
	}
	return ideatoken.NewLedger(fmt.Sprintf("idea/%x", token.Address), n.store)
}

// ExchangeAccount is the account buyers must approve collateral spending for.
func (n *Node) ExchangeAccount() [20]byte { return n.exchangeAddr }

// ReserveAccount is the account donors must approve collateral spending for
// before calling DonateInterest.
func (n *Node) ReserveAccount() [20]byte { return n.reserveAddr }

// Events drains and returns the events emitted since the last call.
func (n *Node) Events() []events.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.recorder.Events()
	n.recorder.Reset()
	return out
}

// Registry surface.

func (n *Node) AddMarket(caller [20]byte, name, verifierID string, baseCost, priceRise, tokensPerInterval *big.Int, tradingFeeRate, platformFeeRate uint64) (*registry.Market, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	market, err := n.registry.AddMarket(caller, name, verifierID, baseCost, priceRise, tokensPerInterval, tradingFeeRate, platformFeeRate)
	if err != nil {
		return nil, err
	}
	n.log.Info("market added", "id", market.ID, "name", market.Name)
	return market, nil
}

func (n *Node) AddToken(name string, marketID uint64) (*registry.TokenInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	token, err := n.registry.AddToken(name, marketID)
	if err != nil {
		return nil, err
	}
	n.log.Info("token added", "market", marketID, "name", name, "address", fmt.Sprintf("0x%x", token.Address))
	return token, nil
}

func (n *Node) SetTradingFee(caller [20]byte, marketID uint64, rate uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.SetTradingFee(caller, marketID, rate)
}

func (n *Node) SetPlatformFee(caller [20]byte, marketID uint64, rate uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.SetPlatformFee(caller, marketID, rate)
}

func (n *Node) MarketByID(id uint64) (*registry.Market, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.MarketByID(id)
}

func (n *Node) MarketByName(name string) (*registry.Market, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.MarketByName(name)
}

func (n *Node) NumMarkets() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.NumMarkets()
}

func (n *Node) TokenByID(marketID, tokenID uint64) (*registry.TokenInfo, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.TokenByID(marketID, tokenID)
}

func (n *Node) TokenByName(marketID uint64, name string) (*registry.TokenInfo, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.TokenByName(marketID, name)
}

func (n *Node) TokenByAddress(addr [20]byte) (*registry.TokenInfo, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.TokenByAddress(addr)
}

// Exchange surface.

func (n *Node) GetCostForBuyingTokens(tokenAddr [20]byte, amount *big.Int) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.exchange.GetCostForBuyingTokens(tokenAddr, amount)
}

func (n *Node) GetPriceForSellingTokens(tokenAddr [20]byte, amount *big.Int) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.exchange.GetPriceForSellingTokens(tokenAddr, amount)
}

func (n *Node) BuyTokens(caller, tokenAddr [20]byte, amount, maxCost *big.Int, recipient [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	cost, err := n.exchange.BuyTokens(caller, tokenAddr, amount, maxCost, recipient)
	if err != nil {
		n.metrics.RecordTradeFailure("buy")
		return nil, err
	}
	n.metrics.RecordTrade("buy")
	n.refreshReserveGauges()
	n.log.Info("tokens bought", "token", fmt.Sprintf("0x%x", tokenAddr), "amount", amount.String(), "cost", cost.String())
	return cost, nil
}

func (n *Node) SellTokens(caller, tokenAddr [20]byte, amount, minPrice *big.Int, recipient [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	price, err := n.exchange.SellTokens(caller, tokenAddr, amount, minPrice, recipient)
	if err != nil {
		n.metrics.RecordTradeFailure("sell")
		return nil, err
	}
	n.metrics.RecordTrade("sell")
	n.refreshReserveGauges()
	n.log.Info("tokens sold", "token", fmt.Sprintf("0x%x", tokenAddr), "amount", amount.String(), "price", price.String())
	return price, nil
}

func (n *Node) PlatformFee(marketID uint64) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.exchange.PlatformFee(marketID)
}

func (n *Node) WithdrawPlatformFee(caller [20]byte, marketID uint64, recipient [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	swept, err := n.exchange.WithdrawPlatformFee(caller, marketID, recipient)
	if err != nil {
		return nil, err
	}
	n.refreshReserveGauges()
	return swept, nil
}

// Reserve surface.

func (n *Node) DonateInterest(caller [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.reserve.DonateInterest(caller, amount); err != nil {
		return err
	}
	n.refreshReserveGauges()
	return nil
}

func (n *Node) RedeemDonated(caller, recipient [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.reserve.RedeemDonated(caller, recipient, amount); err != nil {
		return err
	}
	n.refreshReserveGauges()
	return nil
}

func (n *Node) DonatedBy(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reserve.DonatedBy(addr)
}

func (n *Node) TotalDonated() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reserve.TotalDonated()
}

func (n *Node) ReservePoolValue() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reserve.PoolValue()
}

func (n *Node) WithdrawReward(caller [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reserve.WithdrawReward(caller)
}

// Collateral surface.

func (n *Node) CollateralBalance(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.collateral.BalanceOf(addr)
}

func (n *Node) ApproveCollateral(owner, spender [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.collateral.Approve(owner, spender, amount)
}

// MintCollateral is the admin faucet used to seed trading accounts.
func (n *Node) MintCollateral(caller, to [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if caller != n.admin {
		return nativecommon.ErrUnauthorized
	}
	return n.collateral.Mint(to, amount)
}

// Token ledger surface.

func (n *Node) TokenBalance(tokenAddr, holder [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	token, ok := n.registry.TokenByAddress(tokenAddr)
	if !ok {
		return nil, exchange.ErrUnknownToken
	}
	return n.tokenLedger(token).BalanceOf(holder)
}

func (n *Node) TokenSupply(tokenAddr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	token, ok := n.registry.TokenByAddress(tokenAddr)
	if !ok {
		return nil, exchange.ErrUnknownToken
	}
	return n.tokenLedger(token).TotalSupply()
}

// Admin surface.

// SetPoolExchangeRate moves the lending pool's exchange rate, simulating
// interest accrual. Admin-only; decreases are rejected by the pool.
func (n *Node) SetPoolExchangeRate(caller [20]byte, rate *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if caller != n.admin {
		return nativecommon.ErrUnauthorized
	}
	if err := n.pool.SetExchangeRate(rate); err != nil {
		return err
	}
	n.refreshReserveGauges()
	return nil
}

// SetPoolRewardDrip configures the reward amount the pool mints per deposit.
// Admin-only.
func (n *Node) SetPoolRewardDrip(caller [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if caller != n.admin {
		return nativecommon.ErrUnauthorized
	}
	n.pool.SetRewardDrip(amount)
	return nil
}

// Pause halts a module's mutating operations. Admin-only.
func (n *Node) Pause(caller [20]byte, module string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if caller != n.admin {
		return nativecommon.ErrUnauthorized
	}
	n.pauses[module] = true
	n.log.Warn("module paused", "module", module)
	return nil
}

// Resume lifts a module pause. Admin-only.
func (n *Node) Resume(caller [20]byte, module string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if caller != n.admin {
		return nativecommon.ErrUnauthorized
	}
	delete(n.pauses, module)
	n.log.Info("module resumed", "module", module)
	return nil
}

// TransferOwnership proposes a new owner for the registry and exchange
// administrative surfaces. The handshake completes via AcceptOwnership.
func (n *Node) TransferOwnership(caller, proposed [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.registry.Authority().TransferOwnership(caller, proposed); err != nil {
		return err
	}
	return n.exchange.Authority().TransferOwnership(caller, proposed)
}

// AcceptOwnership completes the ownership handshake for both surfaces.
func (n *Node) AcceptOwnership(caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.registry.Authority().AcceptOwnership(caller); err != nil {
		return err
	}
	return n.exchange.Authority().AcceptOwnership(caller)
}

// Close releases the backing database.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.db.Close()
}

func (n *Node) refreshReserveGauges() {
	value, err := n.reserve.PoolValue()
	if err == nil {
		n.metrics.SetReserveInvested(bigToFloat(value))
	}
	donated, err := n.reserve.TotalDonated()
	if err == nil {
		n.metrics.SetDonatedTotal(bigToFloat(donated))
	}
}

func bigToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
