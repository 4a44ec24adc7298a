package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"ideamarket/core/events"
	"ideamarket/core/types"
	nativecommon "ideamarket/native/common"
)

var (
	errNilState = errors.New("registry engine: state not configured")

	// ErrInvalidParameters is returned for malformed market creation input or
	// out-of-range fee rates.
	ErrInvalidParameters = errors.New("registry engine: invalid parameters")
	// ErrMarketExists is returned when a market name is already registered.
	ErrMarketExists = errors.New("registry engine: market exists already")
	// ErrMarketNotFound is returned for operations against an unknown market id.
	ErrMarketNotFound = errors.New("registry engine: market does not exist")
	// ErrNameRejected is returned when a token name fails the market's
	// verifier or is already taken. Both cases collapse to this error so the
	// response does not reveal which check failed.
	ErrNameRejected = errors.New("registry engine: name verification failed")
)

const moduleName = "registry"

type engineState interface {
	RegistryMarketGet(id uint64) (*Market, bool, error)
	RegistryMarketPut(market *Market) error
	RegistryMarketIDByName(name string) (uint64, bool, error)
	RegistryMarketNamePut(name string, id uint64) error
	RegistryMarketCountGet() (uint64, error)
	RegistryMarketCountPut(count uint64) error
	RegistryTokenGet(marketID, tokenID uint64) (*TokenInfo, bool, error)
	RegistryTokenPut(token *TokenInfo) error
	RegistryTokenIDByName(marketID uint64, name string) (uint64, bool, error)
	RegistryTokenNamePut(marketID uint64, name string, id uint64) error
	RegistryTokenByAddress(addr [20]byte) (*TokenInfo, bool, error)
	RegistryTokenAddressPut(addr [20]byte, token *TokenInfo) error
}

// TokenDeployer is invoked during AddToken, before the token record is
// persisted, so the caller can attach a fungible ledger to the new token
// address. A deployer error aborts the listing.
type TokenDeployer func(token *TokenInfo) error

// Engine owns market definitions and the token-to-market mapping. Markets and
// tokens are append-only; ids are sequential from 1.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	authority *nativecommon.Authority
	verifiers map[string]NameVerifier
	deployer  TokenDeployer
	pauses    nativecommon.PauseView
}

// NewEngine constructs a registry engine owned by the supplied admin address.
func NewEngine(owner [20]byte) *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		authority: nativecommon.NewAuthority(owner),
		verifiers: make(map[string]NameVerifier),
	}
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

// SetTokenDeployer configures the hook that attaches a ledger to new tokens.
func (e *Engine) SetTokenDeployer(deployer TokenDeployer) {
	if e == nil {
		return
	}
	e.deployer = deployer
}

// RegisterVerifier adds a name verifier under the supplied id. Markets refer
// to verifiers by id because verifier instances are process-local.
func (e *Engine) RegisterVerifier(id string, verifier NameVerifier) error {
	if e == nil {
		return errNilState
	}
	id = strings.TrimSpace(id)
	if id == "" || verifier == nil {
		return ErrInvalidParameters
	}
	e.verifiers[id] = verifier
	return nil
}

// Authority exposes the ownership handshake for the administrative surface.
func (e *Engine) Authority() *nativecommon.Authority {
	if e == nil {
		return nil
	}
	return e.authority
}

// AddMarket registers a new market. Owner-only. The market name must be
// globally unique and the curve parameters strictly positive.
func (e *Engine) AddMarket(caller [20]byte, name, verifierID string, baseCost, priceRise, tokensPerInterval *big.Int, tradingFeeRate, platformFeeRate uint64) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.authority.Require(caller); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidParameters
	}
	if baseCost == nil || baseCost.Sign() <= 0 || priceRise == nil || priceRise.Sign() <= 0 {
		return nil, ErrInvalidParameters
	}
	if tokensPerInterval == nil || tokensPerInterval.Sign() <= 0 {
		return nil, ErrInvalidParameters
	}
	// Each rate is bounded on its own before the sum so the uint64 addition
	// cannot wrap past the combined bound.
	if tradingFeeRate > FeeScale || platformFeeRate > FeeScale || tradingFeeRate+platformFeeRate > FeeScale {
		return nil, ErrInvalidParameters
	}
	if _, ok := e.verifiers[verifierID]; !ok {
		return nil, ErrInvalidParameters
	}
	if _, exists, err := e.state.RegistryMarketIDByName(name); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrMarketExists
	}

	count, err := e.state.RegistryMarketCountGet()
	if err != nil {
		return nil, err
	}
	market := &Market{
		ID:                count + 1,
		Name:              name,
		VerifierID:        verifierID,
		BaseCost:          new(big.Int).Set(baseCost),
		PriceRise:         new(big.Int).Set(priceRise),
		TokensPerInterval: new(big.Int).Set(tokensPerInterval),
		TradingFeeRate:    tradingFeeRate,
		PlatformFeeRate:   platformFeeRate,
	}
	if err := e.state.RegistryMarketPut(market); err != nil {
		return nil, err
	}
	if err := e.state.RegistryMarketNamePut(name, market.ID); err != nil {
		return nil, err
	}
	if err := e.state.RegistryMarketCountPut(market.ID); err != nil {
		return nil, err
	}
	e.emit(MarketAddedEvent(market))
	return market.Clone(), nil
}

// AddToken lists a new token under an existing market. Permissionless: anyone
// may list a name that passes the market's verifier and is not yet taken.
func (e *Engine) AddToken(name string, marketID uint64) (*TokenInfo, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	market, exists, err := e.state.RegistryMarketGet(marketID)
	if err != nil {
		return nil, err
	}
	if !exists || market == nil {
		return nil, ErrMarketNotFound
	}
	verifier, ok := e.verifiers[market.VerifierID]
	if !ok || !verifier.IsValid(name) {
		return nil, ErrNameRejected
	}
	if _, taken, err := e.state.RegistryTokenIDByName(marketID, name); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrNameRejected
	}

	token := &TokenInfo{
		ID:       market.NumTokens + 1,
		MarketID: marketID,
		Name:     name,
		Address:  TokenAddress(marketID, name),
	}
	// The deployer runs before the first state write so a deployment failure
	// leaves no partially registered token behind.
	if e.deployer != nil {
		if err := e.deployer(token); err != nil {
			return nil, err
		}
	}
	if err := e.state.RegistryTokenPut(token); err != nil {
		return nil, err
	}
	if err := e.state.RegistryTokenNamePut(marketID, name, token.ID); err != nil {
		return nil, err
	}
	if err := e.state.RegistryTokenAddressPut(token.Address, token); err != nil {
		return nil, err
	}
	market.NumTokens = token.ID
	if err := e.state.RegistryMarketPut(market); err != nil {
		return nil, err
	}
	e.emit(TokenAddedEvent(token))
	return token.Clone(), nil
}

// SetTradingFee retunes a market's trading fee rate. Owner-only.
func (e *Engine) SetTradingFee(caller [20]byte, marketID uint64, rate uint64) error {
	return e.setFee(caller, marketID, rate, true)
}

// SetPlatformFee retunes a market's platform fee rate. Owner-only.
func (e *Engine) SetPlatformFee(caller [20]byte, marketID uint64, rate uint64) error {
	return e.setFee(caller, marketID, rate, false)
}

func (e *Engine) setFee(caller [20]byte, marketID uint64, rate uint64, trading bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.authority.Require(caller); err != nil {
		return err
	}
	market, exists, err := e.state.RegistryMarketGet(marketID)
	if err != nil {
		return err
	}
	if !exists || market == nil {
		return ErrMarketNotFound
	}
	// Bound the combined take so a trade can never owe more in fees than its
	// raw curve value.
	other := market.PlatformFeeRate
	if !trading {
		other = market.TradingFeeRate
	}
	if rate > FeeScale || rate+other > FeeScale {
		return ErrInvalidParameters
	}
	eventType := EventTypePlatformFeeUpdated
	if trading {
		market.TradingFeeRate = rate
		eventType = EventTypeTradingFeeUpdated
	} else {
		market.PlatformFeeRate = rate
	}
	if err := e.state.RegistryMarketPut(market); err != nil {
		return err
	}
	e.emit(FeeUpdatedEvent(eventType, marketID, rate))
	return nil
}

// MarketByID looks up a market. The second return reports existence so a
// missing market is distinguishable from a zero-valued one.
func (e *Engine) MarketByID(id uint64) (*Market, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	market, exists, err := e.state.RegistryMarketGet(id)
	if err != nil || !exists {
		return nil, false
	}
	return market.Clone(), true
}

// MarketByName looks up a market by its unique name.
func (e *Engine) MarketByName(name string) (*Market, bool) {
	id, ok := e.MarketIDByName(name)
	if !ok {
		return nil, false
	}
	return e.MarketByID(id)
}

// MarketIDByName resolves a market name to its id.
func (e *Engine) MarketIDByName(name string) (uint64, bool) {
	if e == nil || e.state == nil {
		return 0, false
	}
	id, exists, err := e.state.RegistryMarketIDByName(strings.TrimSpace(name))
	if err != nil || !exists {
		return 0, false
	}
	return id, true
}

// NumMarkets returns how many markets have been registered.
func (e *Engine) NumMarkets() uint64 {
	if e == nil || e.state == nil {
		return 0
	}
	count, err := e.state.RegistryMarketCountGet()
	if err != nil {
		return 0
	}
	return count
}

// TokenByID looks up a token by market and per-market token id.
func (e *Engine) TokenByID(marketID, tokenID uint64) (*TokenInfo, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	token, exists, err := e.state.RegistryTokenGet(marketID, tokenID)
	if err != nil || !exists {
		return nil, false
	}
	return token.Clone(), true
}

// TokenByName looks up a token by name within a market.
func (e *Engine) TokenByName(marketID uint64, name string) (*TokenInfo, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	id, exists, err := e.state.RegistryTokenIDByName(marketID, name)
	if err != nil || !exists {
		return nil, false
	}
	return e.TokenByID(marketID, id)
}

// TokenByAddress resolves a token address to its record.
func (e *Engine) TokenByAddress(addr [20]byte) (*TokenInfo, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	token, exists, err := e.state.RegistryTokenByAddress(addr)
	if err != nil || !exists {
		return nil, false
	}
	return token.Clone(), true
}

// TokenAddress derives the deterministic 20-byte address a token is keyed by.
func TokenAddress(marketID uint64, name string) [20]byte {
	sum := sha256.Sum256([]byte(fmt.Sprintf("ideatoken/%d/%s", marketID, name)))
	var addr [20]byte
	copy(addr[:], sum[:20])
	return addr
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}
