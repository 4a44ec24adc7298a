package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"ideamarket/native/registry"
	"ideamarket/storage"
)

func testAddr(b byte) [20]byte {
	var a [20]byte
	a[0] = b
	return a
}

func TestBigValuesRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	missing, err := store.TokenSupplyGet("ghost")
	require.NoError(t, err)
	require.Nil(t, missing)

	supply, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.NoError(t, store.TokenSupplyPut("widget", supply))
	got, err := store.TokenSupplyGet("widget")
	require.NoError(t, err)
	require.Zero(t, supply.Cmp(got))

	holder := testAddr(0x01)
	spender := testAddr(0x02)
	require.NoError(t, store.TokenBalancePut("widget", holder, big.NewInt(42)))
	balance, err := store.TokenBalanceGet("widget", holder)
	require.NoError(t, err)
	require.Equal(t, int64(42), balance.Int64())

	require.NoError(t, store.TokenAllowancePut("widget", holder, spender, big.NewInt(7)))
	allowance, err := store.TokenAllowanceGet("widget", holder, spender)
	require.NoError(t, err)
	require.Equal(t, int64(7), allowance.Int64())

	// Per-token keys do not collide across tokens.
	other, err := store.TokenBalanceGet("gadget", holder)
	require.NoError(t, err)
	require.Nil(t, other)
}

func TestRegistryRecordsRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	_, ok, err := store.RegistryMarketGet(1)
	require.NoError(t, err)
	require.False(t, ok)

	market := &registry.Market{
		ID:                1,
		Name:              "domains",
		VerifierID:        "domain-no-subdomain",
		BaseCost:          big.NewInt(1_000_000),
		PriceRise:         big.NewInt(100),
		TokensPerInterval: big.NewInt(1_000),
		TradingFeeRate:    100,
		PlatformFeeRate:   50,
		NumTokens:         3,
	}
	require.NoError(t, store.RegistryMarketPut(market))
	require.NoError(t, store.RegistryMarketNamePut(market.Name, market.ID))
	require.NoError(t, store.RegistryMarketCountPut(1))

	got, ok, err := store.RegistryMarketGet(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, market, got)

	id, ok, err := store.RegistryMarketIDByName("domains")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), id)

	count, err := store.RegistryMarketCountGet()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	token := &registry.TokenInfo{ID: 2, MarketID: 1, Name: "example.com", Address: testAddr(0xAB)}
	require.NoError(t, store.RegistryTokenPut(token))
	require.NoError(t, store.RegistryTokenNamePut(token.MarketID, token.Name, token.ID))
	require.NoError(t, store.RegistryTokenAddressPut(token.Address, token))

	gotToken, ok, err := store.RegistryTokenGet(1, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, token, gotToken)

	byAddr, ok, err := store.RegistryTokenByAddress(token.Address)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, token, byAddr)

	tokenID, ok, err := store.RegistryTokenIDByName(1, "example.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), tokenID)
}

func TestExchangeAndReserveState(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	fee, err := store.ExchangePlatformFeeGet(7)
	require.NoError(t, err)
	require.Nil(t, fee)
	require.NoError(t, store.ExchangePlatformFeePut(7, big.NewInt(900)))
	fee, err = store.ExchangePlatformFeeGet(7)
	require.NoError(t, err)
	require.Equal(t, int64(900), fee.Int64())

	require.NoError(t, store.ReserveSharesPut(big.NewInt(5000)))
	shares, err := store.ReserveSharesGet()
	require.NoError(t, err)
	require.Equal(t, int64(5000), shares.Int64())

	donor := testAddr(0x05)
	require.NoError(t, store.ReserveDonatedPut(donor, big.NewInt(300)))
	require.NoError(t, store.ReserveTotalDonatedPut(big.NewInt(300)))
	claim, err := store.ReserveDonatedGet(donor)
	require.NoError(t, err)
	require.Equal(t, int64(300), claim.Int64())
	total, err := store.ReserveTotalDonatedGet()
	require.NoError(t, err)
	require.Equal(t, int64(300), total.Int64())
}

func TestMalformedValuesSurface(t *testing.T) {
	db := storage.NewMemDB()
	store := NewStore(db)
	require.NoError(t, db.Put([]byte("reserve/shares"), []byte("not-a-number")))
	_, err := store.ReserveSharesGet()
	require.Error(t, err)
}
