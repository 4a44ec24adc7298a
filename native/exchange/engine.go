package exchange

import (
	"errors"
	"math/big"

	"ideamarket/core/events"
	nativecommon "ideamarket/native/common"
	"ideamarket/native/registry"
)

var (
	errNilState           = errors.New("exchange engine: state not configured")
	errNotInitialized     = errors.New("exchange engine: not initialized")
	errAlreadyInitialized = errors.New("exchange engine: already initialized")

	// ErrInvalidAmount is returned when a trade amount is nil or non-positive.
	ErrInvalidAmount = errors.New("exchange engine: amount must be positive")
	// ErrUnknownToken is returned for operations against an unregistered
	// token address.
	ErrUnknownToken = errors.New("exchange engine: token does not exist")
	// ErrSlippageExceeded is returned when the executable cost or price moved
	// beyond the caller's bound between quote and execution. Callers re-quote
	// and retry.
	ErrSlippageExceeded = errors.New("exchange engine: slippage bound exceeded")
	// ErrInsufficientTokens is returned when a seller's balance (or the whole
	// supply) cannot cover the sale amount.
	ErrInsufficientTokens = errors.New("exchange engine: not enough tokens")
	// ErrNoPlatformFee is returned when a platform fee withdrawal finds
	// nothing accrued.
	ErrNoPlatformFee = errors.New("exchange engine: no platform fee accrued")
)

const moduleName = "exchange"

type engineState interface {
	ExchangePlatformFeeGet(marketID uint64) (*big.Int, error)
	ExchangePlatformFeePut(marketID uint64, amount *big.Int) error
}

// MarketIndex resolves token addresses and market parameters. Implemented by
// the registry engine.
type MarketIndex interface {
	TokenByAddress(addr [20]byte) (*registry.TokenInfo, bool)
	MarketByID(id uint64) (*registry.Market, bool)
}

// ReserveManager invests trade collateral and redeems principal.
type ReserveManager interface {
	Invest(amount *big.Int) error
	Redeem(caller, recipient [20]byte, amount *big.Int) error
}

// CollateralLedger moves the collateral asset between accounts.
type CollateralLedger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
}

// TokenLedger is the per-token fungible ledger surface the engine mints and
// burns against.
type TokenLedger interface {
	Mint(to [20]byte, amount *big.Int) error
	Burn(from [20]byte, amount *big.Int) error
	TotalSupply() (*big.Int, error)
	BalanceOf(addr [20]byte) (*big.Int, error)
}

// TokenResolver returns the ledger attached to a registered token.
type TokenResolver func(token *registry.TokenInfo) TokenLedger

// InitConfig carries the collaborators wired in by the one-shot Initialize.
type InitConfig struct {
	// Owner is the admin entitled to platform fee withdrawals.
	Owner [20]byte
	// ModuleAddress is the exchange's own collateral account, holding funds
	// only transiently within a single operation.
	ModuleAddress [20]byte
	// ReserveAddress is the reserve manager's collateral account.
	ReserveAddress [20]byte
	// TradingFeeAddress receives the trading fee of every trade.
	TradingFeeAddress [20]byte
	Registry          MarketIndex
	Reserve           ReserveManager
	Collateral        CollateralLedger
	Resolver          TokenResolver
}

// Engine prices trades against the bonding curve and settles them: collateral
// in, fees out, tokens minted or burned.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	authority   *nativecommon.Authority
	initialized bool

	registry       MarketIndex
	reserve        ReserveManager
	collateral     CollateralLedger
	resolve        TokenResolver
	moduleAddr     [20]byte
	reserveAddr    [20]byte
	tradingFeeAddr [20]byte
}

// NewEngine constructs an uninitialized exchange engine.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// Initialize wires the engine's collaborators. One-shot: a second call fails.
func (e *Engine) Initialize(cfg InitConfig) error {
	if e == nil {
		return errNilState
	}
	if e.initialized {
		return errAlreadyInitialized
	}
	if cfg.Registry == nil || cfg.Reserve == nil || cfg.Collateral == nil || cfg.Resolver == nil {
		return errNilState
	}
	e.registry = cfg.Registry
	e.reserve = cfg.Reserve
	e.collateral = cfg.Collateral
	e.resolve = cfg.Resolver
	e.moduleAddr = cfg.ModuleAddress
	e.reserveAddr = cfg.ReserveAddress
	e.tradingFeeAddr = cfg.TradingFeeAddress
	e.authority = nativecommon.NewAuthority(cfg.Owner)
	e.initialized = true
	return nil
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// Authority exposes the ownership handshake for the administrative surface.
func (e *Engine) Authority() *nativecommon.Authority {
	if e == nil {
		return nil
	}
	return e.authority
}

type quote struct {
	token       *registry.TokenInfo
	market      *registry.Market
	ledger      TokenLedger
	supply      *big.Int
	raw         *big.Int
	tradingFee  *big.Int
	platformFee *big.Int
}

func (e *Engine) lookup(tokenAddr [20]byte) (*registry.TokenInfo, *registry.Market, TokenLedger, error) {
	token, ok := e.registry.TokenByAddress(tokenAddr)
	if !ok {
		return nil, nil, nil, ErrUnknownToken
	}
	market, ok := e.registry.MarketByID(token.MarketID)
	if !ok {
		return nil, nil, nil, ErrUnknownToken
	}
	ledger := e.resolve(token)
	if ledger == nil {
		return nil, nil, nil, ErrUnknownToken
	}
	return token, market, ledger, nil
}

func (e *Engine) quoteBuy(tokenAddr [20]byte, amount *big.Int) (*quote, error) {
	if e == nil || !e.initialized {
		return nil, errNotInitialized
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	token, market, ledger, err := e.lookup(tokenAddr)
	if err != nil {
		return nil, err
	}
	supply, err := ledger.TotalSupply()
	if err != nil {
		return nil, err
	}
	raw := rawCostForBuy(market, supply, amount)
	return &quote{
		token:       token,
		market:      market,
		ledger:      ledger,
		supply:      supply,
		raw:         raw,
		tradingFee:  feePortion(raw, market.TradingFeeRate),
		platformFee: feePortion(raw, market.PlatformFeeRate),
	}, nil
}

func (e *Engine) quoteSell(tokenAddr [20]byte, amount *big.Int) (*quote, error) {
	if e == nil || !e.initialized {
		return nil, errNotInitialized
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	token, market, ledger, err := e.lookup(tokenAddr)
	if err != nil {
		return nil, err
	}
	supply, err := ledger.TotalSupply()
	if err != nil {
		return nil, err
	}
	if supply.Cmp(amount) < 0 {
		return nil, ErrInsufficientTokens
	}
	raw := rawPriceForSell(market, supply, amount)
	return &quote{
		token:       token,
		market:      market,
		ledger:      ledger,
		supply:      supply,
		raw:         raw,
		tradingFee:  feePortion(raw, market.TradingFeeRate),
		platformFee: feePortion(raw, market.PlatformFeeRate),
	}, nil
}

func (q *quote) cost() *big.Int {
	cost := new(big.Int).Add(q.raw, q.tradingFee)
	return cost.Add(cost, q.platformFee)
}

func (q *quote) price() *big.Int {
	price := new(big.Int).Sub(q.raw, q.tradingFee)
	return price.Sub(price, q.platformFee)
}

// GetCostForBuyingTokens quotes the fee-inclusive cost of buying amount
// tokens at the current supply. Read-only.
func (e *Engine) GetCostForBuyingTokens(tokenAddr [20]byte, amount *big.Int) (*big.Int, error) {
	q, err := e.quoteBuy(tokenAddr, amount)
	if err != nil {
		return nil, err
	}
	return q.cost(), nil
}

// GetPriceForSellingTokens quotes the fee-net proceeds of selling amount
// tokens at the current supply. Read-only.
func (e *Engine) GetPriceForSellingTokens(tokenAddr [20]byte, amount *big.Int) (*big.Int, error) {
	q, err := e.quoteSell(tokenAddr, amount)
	if err != nil {
		return nil, err
	}
	return q.price(), nil
}

// BuyTokens executes a buy at the current supply. The cost is recomputed at
// call time; maxCost is the caller's slippage bound. The collateral pull must
// fully succeed before any mint. Returns the cost paid.
func (e *Engine) BuyTokens(caller, tokenAddr [20]byte, amount, maxCost *big.Int, recipient [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	q, err := e.quoteBuy(tokenAddr, amount)
	if err != nil {
		return nil, err
	}
	cost := q.cost()
	if maxCost == nil || cost.Cmp(maxCost) > 0 {
		return nil, ErrSlippageExceeded
	}

	// Pull the full cost from the buyer first; allowance and balance
	// shortfalls surface here, before any state has moved.
	if err := e.collateral.TransferFrom(e.moduleAddr, caller, e.moduleAddr, cost); err != nil {
		return nil, err
	}
	if q.tradingFee.Sign() > 0 {
		if err := e.collateral.Transfer(e.moduleAddr, e.tradingFeeAddr, q.tradingFee); err != nil {
			return nil, err
		}
	}
	invest := new(big.Int).Add(q.raw, q.platformFee)
	if err := e.collateral.Transfer(e.moduleAddr, e.reserveAddr, invest); err != nil {
		return nil, err
	}
	if err := e.reserve.Invest(invest); err != nil {
		return nil, err
	}
	if q.platformFee.Sign() > 0 {
		if err := e.accruePlatformFee(q.market.ID, q.platformFee); err != nil {
			return nil, err
		}
	}
	if err := q.ledger.Mint(recipient, amount); err != nil {
		return nil, err
	}
	e.emit(TokensBoughtEvent(q.token, caller, recipient, amount, cost, q.tradingFee, q.platformFee))
	return cost, nil
}

// SellTokens executes a sell at the current supply. minPrice is the caller's
// slippage bound. Tokens are burned before any collateral moves. Returns the
// price paid out to the recipient.
func (e *Engine) SellTokens(caller, tokenAddr [20]byte, amount, minPrice *big.Int, recipient [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	q, err := e.quoteSell(tokenAddr, amount)
	if err != nil {
		return nil, err
	}
	price := q.price()
	if minPrice != nil && price.Cmp(minPrice) < 0 {
		return nil, ErrSlippageExceeded
	}
	balance, err := q.ledger.BalanceOf(caller)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientTokens
	}

	if err := q.ledger.Burn(caller, amount); err != nil {
		return nil, err
	}
	// The platform fee stays invested; only the payout and the trading fee
	// leave the reserve.
	redeem := new(big.Int).Add(price, q.tradingFee)
	if redeem.Sign() > 0 {
		if err := e.reserve.Redeem(e.moduleAddr, e.moduleAddr, redeem); err != nil {
			return nil, err
		}
	}
	if price.Sign() > 0 {
		if err := e.collateral.Transfer(e.moduleAddr, recipient, price); err != nil {
			return nil, err
		}
	}
	if q.tradingFee.Sign() > 0 {
		if err := e.collateral.Transfer(e.moduleAddr, e.tradingFeeAddr, q.tradingFee); err != nil {
			return nil, err
		}
	}
	if q.platformFee.Sign() > 0 {
		if err := e.accruePlatformFee(q.market.ID, q.platformFee); err != nil {
			return nil, err
		}
	}
	e.emit(TokensSoldEvent(q.token, caller, recipient, amount, price, q.tradingFee, q.platformFee))
	return price, nil
}

// PlatformFee returns the platform fee accrued for a market.
func (e *Engine) PlatformFee(marketID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	accrued, err := e.state.ExchangePlatformFeeGet(marketID)
	if err != nil {
		return nil, err
	}
	if accrued == nil {
		accrued = big.NewInt(0)
	}
	return accrued, nil
}

// WithdrawPlatformFee sweeps a market's accrued platform fee out of the
// reserve to the recipient. Owner-only.
func (e *Engine) WithdrawPlatformFee(caller [20]byte, marketID uint64, recipient [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if !e.initialized {
		return nil, errNotInitialized
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.authority.Require(caller); err != nil {
		return nil, err
	}
	if _, ok := e.registry.MarketByID(marketID); !ok {
		return nil, registry.ErrMarketNotFound
	}
	accrued, err := e.PlatformFee(marketID)
	if err != nil {
		return nil, err
	}
	if accrued.Sign() == 0 {
		return nil, ErrNoPlatformFee
	}
	if err := e.reserve.Redeem(e.moduleAddr, recipient, accrued); err != nil {
		return nil, err
	}
	if err := e.state.ExchangePlatformFeePut(marketID, big.NewInt(0)); err != nil {
		return nil, err
	}
	e.emit(PlatformFeeWithdrawnEvent(marketID, recipient, accrued))
	return accrued, nil
}

func (e *Engine) accruePlatformFee(marketID uint64, fee *big.Int) error {
	accrued, err := e.PlatformFee(marketID)
	if err != nil {
		return err
	}
	return e.state.ExchangePlatformFeePut(marketID, new(big.Int).Add(accrued, fee))
}
