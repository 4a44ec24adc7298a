package registry

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"testing"

	"ideamarket/core/events"
)

type mockEngineState struct {
	markets     map[uint64]*Market
	marketNames map[string]uint64
	marketCount uint64
	tokens      map[[2]uint64]*TokenInfo
	tokenNames  map[string]uint64
	tokenByAddr map[[20]byte]*TokenInfo
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		markets:     make(map[uint64]*Market),
		marketNames: make(map[string]uint64),
		tokens:      make(map[[2]uint64]*TokenInfo),
		tokenNames:  make(map[string]uint64),
		tokenByAddr: make(map[[20]byte]*TokenInfo),
	}
}

func (m *mockEngineState) RegistryMarketGet(id uint64) (*Market, bool, error) {
	market, ok := m.markets[id]
	return market, ok, nil
}

func (m *mockEngineState) RegistryMarketPut(market *Market) error {
	m.markets[market.ID] = market
	return nil
}

func (m *mockEngineState) RegistryMarketIDByName(name string) (uint64, bool, error) {
	id, ok := m.marketNames[name]
	return id, ok, nil
}

func (m *mockEngineState) RegistryMarketNamePut(name string, id uint64) error {
	m.marketNames[name] = id
	return nil
}

func (m *mockEngineState) RegistryMarketCountGet() (uint64, error) { return m.marketCount, nil }

func (m *mockEngineState) RegistryMarketCountPut(count uint64) error {
	m.marketCount = count
	return nil
}

func (m *mockEngineState) RegistryTokenGet(marketID, tokenID uint64) (*TokenInfo, bool, error) {
	token, ok := m.tokens[[2]uint64{marketID, tokenID}]
	return token, ok, nil
}

func (m *mockEngineState) RegistryTokenPut(token *TokenInfo) error {
	m.tokens[[2]uint64{token.MarketID, token.ID}] = token
	return nil
}

func tokenNameKey(marketID uint64, name string) string {
	return fmt.Sprintf("%d/%s", marketID, name)
}

func (m *mockEngineState) RegistryTokenIDByName(marketID uint64, name string) (uint64, bool, error) {
	id, ok := m.tokenNames[tokenNameKey(marketID, name)]
	return id, ok, nil
}

func (m *mockEngineState) RegistryTokenNamePut(marketID uint64, name string, id uint64) error {
	m.tokenNames[tokenNameKey(marketID, name)] = id
	return nil
}

func (m *mockEngineState) RegistryTokenByAddress(addr [20]byte) (*TokenInfo, bool, error) {
	token, ok := m.tokenByAddr[addr]
	return token, ok, nil
}

func (m *mockEngineState) RegistryTokenAddressPut(addr [20]byte, token *TokenInfo) error {
	m.tokenByAddr[addr] = token
	return nil
}

func makeAddress(suffix byte) [20]byte {
	var out [20]byte
	out[19] = suffix
	return out
}

var (
	tenPow18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	tenPow17 = new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)
	tenPow20 = new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil)
)

func newTestEngine(t *testing.T, owner [20]byte) (*Engine, *events.Recorder) {
	t.Helper()
	engine := NewEngine(owner)
	engine.SetState(newMockEngineState())
	recorder := &events.Recorder{}
	engine.SetEmitter(recorder)
	if err := engine.RegisterVerifier("domain-no-subdomain", DomainNoSubdomainNameVerifier{}); err != nil {
		t.Fatalf("register verifier: %v", err)
	}
	return engine, recorder
}

func addTestMarket(t *testing.T, engine *Engine, owner [20]byte, name string) *Market {
	t.Helper()
	market, err := engine.AddMarket(owner, name, "domain-no-subdomain", tenPow18, tenPow17, tenPow20, 100, 50)
	if err != nil {
		t.Fatalf("add market %q: %v", name, err)
	}
	return market
}

func TestAddMarketAssignsSequentialIDs(t *testing.T) {
	owner := makeAddress(0x01)
	engine, recorder := newTestEngine(t, owner)

	first := addTestMarket(t, engine, owner, "main")
	second := addTestMarket(t, engine, owner, "twitter")

	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("ids = %d,%d, want 1,2", first.ID, second.ID)
	}
	if engine.NumMarkets() != 2 {
		t.Fatalf("NumMarkets = %d, want 2", engine.NumMarkets())
	}

	byName, ok := engine.MarketByName("main")
	if !ok || byName.ID != 1 {
		t.Fatalf("lookup by name failed")
	}
	byID, ok := engine.MarketByID(2)
	if !ok || byID.Name != "twitter" {
		t.Fatalf("lookup by id failed")
	}
	if _, ok := engine.MarketByID(3); ok {
		t.Fatalf("phantom market")
	}
	if len(recorder.Events()) != 2 {
		t.Fatalf("expected 2 events, got %d", len(recorder.Events()))
	}
}

func TestAddMarketValidation(t *testing.T) {
	owner := makeAddress(0x01)
	stranger := makeAddress(0x02)
	engine, _ := newTestEngine(t, owner)

	if _, err := engine.AddMarket(stranger, "main", "domain-no-subdomain", tenPow18, tenPow17, tenPow20, 100, 50); err == nil {
		t.Fatalf("non-owner added market")
	}
	if _, err := engine.AddMarket(owner, "main", "domain-no-subdomain", big.NewInt(0), tenPow17, tenPow20, 100, 50); err != ErrInvalidParameters {
		t.Fatalf("zero base cost: %v", err)
	}
	if _, err := engine.AddMarket(owner, "main", "domain-no-subdomain", tenPow18, big.NewInt(0), tenPow20, 100, 50); err != ErrInvalidParameters {
		t.Fatalf("zero price rise: %v", err)
	}
	if _, err := engine.AddMarket(owner, "main", "unknown-verifier", tenPow18, tenPow17, tenPow20, 100, 50); err != ErrInvalidParameters {
		t.Fatalf("unknown verifier: %v", err)
	}
	if _, err := engine.AddMarket(owner, "main", "domain-no-subdomain", tenPow18, tenPow17, tenPow20, FeeScale+1, 50); err != ErrInvalidParameters {
		t.Fatalf("fee above scale: %v", err)
	}
	// Rates large enough to wrap the uint64 sum must still be rejected.
	if _, err := engine.AddMarket(owner, "main", "domain-no-subdomain", tenPow18, tenPow17, tenPow20, math.MaxUint64, 5001); err != ErrInvalidParameters {
		t.Fatalf("wrapping trading fee: %v", err)
	}
	if _, err := engine.AddMarket(owner, "main", "domain-no-subdomain", tenPow18, tenPow17, tenPow20, 5001, math.MaxUint64); err != ErrInvalidParameters {
		t.Fatalf("wrapping platform fee: %v", err)
	}

	addTestMarket(t, engine, owner, "main")
	if _, err := engine.AddMarket(owner, "main", "domain-no-subdomain", tenPow18, tenPow17, tenPow20, 100, 50); err != ErrMarketExists {
		t.Fatalf("duplicate market: %v", err)
	}
}

func TestAddToken(t *testing.T) {
	owner := makeAddress(0x01)
	engine, _ := newTestEngine(t, owner)
	market := addTestMarket(t, engine, owner, "main")

	var deployed []*TokenInfo
	engine.SetTokenDeployer(func(token *TokenInfo) error {
		deployed = append(deployed, token)
		return nil
	})

	token, err := engine.AddToken("test.com", market.ID)
	if err != nil {
		t.Fatalf("add token: %v", err)
	}
	if token.ID != 1 || token.MarketID != market.ID {
		t.Fatalf("token ids = %d/%d", token.ID, token.MarketID)
	}
	if token.Address != TokenAddress(market.ID, "test.com") {
		t.Fatalf("token address not deterministic")
	}
	if len(deployed) != 1 {
		t.Fatalf("deployer not invoked")
	}

	updated, _ := engine.MarketByID(market.ID)
	if updated.NumTokens != 1 {
		t.Fatalf("NumTokens = %d, want 1", updated.NumTokens)
	}

	byAddr, ok := engine.TokenByAddress(token.Address)
	if !ok || byAddr.Name != "test.com" {
		t.Fatalf("lookup by address failed")
	}
	if _, ok := engine.TokenByName(market.ID, "test.com"); !ok {
		t.Fatalf("lookup by name failed")
	}
}

func TestAddTokenRejections(t *testing.T) {
	owner := makeAddress(0x01)
	engine, _ := newTestEngine(t, owner)
	market := addTestMarket(t, engine, owner, "main")

	if _, err := engine.AddToken("test.com", market.ID+1); err != ErrMarketNotFound {
		t.Fatalf("unknown market: %v", err)
	}
	if _, err := engine.AddToken("some.invalid.name", market.ID); err != ErrNameRejected {
		t.Fatalf("invalid name: %v", err)
	}
	if _, err := engine.AddToken("test.com", market.ID); err != nil {
		t.Fatalf("add token: %v", err)
	}
	// Duplicate collapses to the same error as an invalid name.
	if _, err := engine.AddToken("test.com", market.ID); err != ErrNameRejected {
		t.Fatalf("duplicate name: %v", err)
	}

	// The same name under a different market lists fine.
	other := addTestMarket(t, engine, owner, "twitter")
	if _, err := engine.AddToken("test.com", other.ID); err != nil {
		t.Fatalf("same name, different market: %v", err)
	}
}

func TestAddTokenFailedDeployerLeavesNoState(t *testing.T) {
	owner := makeAddress(0x01)
	engine, _ := newTestEngine(t, owner)
	market := addTestMarket(t, engine, owner, "main")

	deployErr := errors.New("ledger attach failed")
	engine.SetTokenDeployer(func(token *TokenInfo) error { return deployErr })

	if _, err := engine.AddToken("test.com", market.ID); err != deployErr {
		t.Fatalf("AddToken = %v, want deployer error", err)
	}
	if _, ok := engine.TokenByName(market.ID, "test.com"); ok {
		t.Fatalf("token registered despite deployer failure")
	}
	if _, ok := engine.TokenByAddress(TokenAddress(market.ID, "test.com")); ok {
		t.Fatalf("address mapping registered despite deployer failure")
	}
	updated, _ := engine.MarketByID(market.ID)
	if updated.NumTokens != 0 {
		t.Fatalf("NumTokens = %d, want 0", updated.NumTokens)
	}

	// The name stays available once the deployer recovers.
	engine.SetTokenDeployer(nil)
	if _, err := engine.AddToken("test.com", market.ID); err != nil {
		t.Fatalf("relist after deployer failure: %v", err)
	}
}

func TestSetFees(t *testing.T) {
	owner := makeAddress(0x01)
	stranger := makeAddress(0x02)
	engine, _ := newTestEngine(t, owner)
	market := addTestMarket(t, engine, owner, "main")

	if err := engine.SetTradingFee(stranger, market.ID, 123); err == nil {
		t.Fatalf("non-owner set trading fee")
	}
	if err := engine.SetTradingFee(owner, market.ID+1, 123); err != ErrMarketNotFound {
		t.Fatalf("unknown market: %v", err)
	}
	if err := engine.SetTradingFee(owner, market.ID, FeeScale+1); err != ErrInvalidParameters {
		t.Fatalf("rate above scale: %v", err)
	}
	if err := engine.SetTradingFee(owner, market.ID, math.MaxUint64); err != ErrInvalidParameters {
		t.Fatalf("wrapping trading fee: %v", err)
	}
	if err := engine.SetPlatformFee(owner, market.ID, math.MaxUint64); err != ErrInvalidParameters {
		t.Fatalf("wrapping platform fee: %v", err)
	}
	if err := engine.SetTradingFee(owner, market.ID, 123); err != nil {
		t.Fatalf("set trading fee: %v", err)
	}
	if err := engine.SetPlatformFee(owner, market.ID, 77); err != nil {
		t.Fatalf("set platform fee: %v", err)
	}

	updated, _ := engine.MarketByID(market.ID)
	if updated.TradingFeeRate != 123 || updated.PlatformFeeRate != 77 {
		t.Fatalf("rates = %d/%d, want 123/77", updated.TradingFeeRate, updated.PlatformFeeRate)
	}
}
