package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"ideamarket/native/registry"
	"ideamarket/storage"
)

var errMalformedValue = errors.New("state: malformed stored value")

// Store persists the market state in a key-value database. It backs every
// engine's state interface: the token ledgers, the registry, the exchange
// fee accruals, and the reserve sub-ledgers. Values are JSON for structured
// records and decimal strings for big integers.
type Store struct {
	db storage.Database
}

// NewStore wraps a database in a state store.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func addrKey(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

func (s *Store) putJSON(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(key), raw)
}

// getJSON reports whether the key existed.
func (s *Store) getJSON(key string, out any) (bool, error) {
	raw, err := s.db.Get([]byte(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, out)
}

func (s *Store) putBig(key string, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	return s.db.Put([]byte(key), []byte(value.String()))
}

// getBig returns nil for keys that were never written; callers treat nil as
// zero.
func (s *Store) getBig(key string) (*big.Int, error) {
	raw, err := s.db.Get([]byte(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	value, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, errMalformedValue
	}
	return value, nil
}

func (s *Store) putUint(key string, value uint64) error {
	return s.db.Put([]byte(key), []byte(strconv.FormatUint(value, 10)))
}

func (s *Store) getUint(key string) (uint64, bool, error) {
	raw, err := s.db.Get([]byte(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	value, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, false, errMalformedValue
	}
	return value, true, nil
}

// Token ledger state.

func (s *Store) TokenSupplyGet(token string) (*big.Int, error) {
	return s.getBig(fmt.Sprintf("ideatoken/supply/%s", token))
}

func (s *Store) TokenSupplyPut(token string, supply *big.Int) error {
	return s.putBig(fmt.Sprintf("ideatoken/supply/%s", token), supply)
}

func (s *Store) TokenBalanceGet(token string, addr [20]byte) (*big.Int, error) {
	return s.getBig(fmt.Sprintf("ideatoken/balance/%s/%s", token, addrKey(addr)))
}

func (s *Store) TokenBalancePut(token string, addr [20]byte, balance *big.Int) error {
	return s.putBig(fmt.Sprintf("ideatoken/balance/%s/%s", token, addrKey(addr)), balance)
}

func (s *Store) TokenAllowanceGet(token string, owner, spender [20]byte) (*big.Int, error) {
	return s.getBig(fmt.Sprintf("ideatoken/allowance/%s/%s/%s", token, addrKey(owner), addrKey(spender)))
}

func (s *Store) TokenAllowancePut(token string, owner, spender [20]byte, amount *big.Int) error {
	return s.putBig(fmt.Sprintf("ideatoken/allowance/%s/%s/%s", token, addrKey(owner), addrKey(spender)), amount)
}

// Registry state.

func (s *Store) RegistryMarketGet(id uint64) (*registry.Market, bool, error) {
	market := new(registry.Market)
	ok, err := s.getJSON(fmt.Sprintf("registry/market/%d", id), market)
	if err != nil || !ok {
		return nil, false, err
	}
	return market, true, nil
}

func (s *Store) RegistryMarketPut(market *registry.Market) error {
	return s.putJSON(fmt.Sprintf("registry/market/%d", market.ID), market)
}

func (s *Store) RegistryMarketIDByName(name string) (uint64, bool, error) {
	return s.getUint(fmt.Sprintf("registry/market-name/%s", name))
}

func (s *Store) RegistryMarketNamePut(name string, id uint64) error {
	return s.putUint(fmt.Sprintf("registry/market-name/%s", name), id)
}

func (s *Store) RegistryMarketCountGet() (uint64, error) {
	count, _, err := s.getUint("registry/market-count")
	return count, err
}

func (s *Store) RegistryMarketCountPut(count uint64) error {
	return s.putUint("registry/market-count", count)
}

func (s *Store) RegistryTokenGet(marketID, tokenID uint64) (*registry.TokenInfo, bool, error) {
	token := new(registry.TokenInfo)
	ok, err := s.getJSON(fmt.Sprintf("registry/token/%d/%d", marketID, tokenID), token)
	if err != nil || !ok {
		return nil, false, err
	}
	return token, true, nil
}

func (s *Store) RegistryTokenPut(token *registry.TokenInfo) error {
	return s.putJSON(fmt.Sprintf("registry/token/%d/%d", token.MarketID, token.ID), token)
}

func (s *Store) RegistryTokenIDByName(marketID uint64, name string) (uint64, bool, error) {
	return s.getUint(fmt.Sprintf("registry/token-name/%d/%s", marketID, name))
}

func (s *Store) RegistryTokenNamePut(marketID uint64, name string, id uint64) error {
	return s.putUint(fmt.Sprintf("registry/token-name/%d/%s", marketID, name), id)
}

func (s *Store) RegistryTokenByAddress(addr [20]byte) (*registry.TokenInfo, bool, error) {
	token := new(registry.TokenInfo)
	ok, err := s.getJSON(fmt.Sprintf("registry/token-addr/%s", addrKey(addr)), token)
	if err != nil || !ok {
		return nil, false, err
	}
	return token, true, nil
}

func (s *Store) RegistryTokenAddressPut(addr [20]byte, token *registry.TokenInfo) error {
	return s.putJSON(fmt.Sprintf("registry/token-addr/%s", addrKey(addr)), token)
}

// Exchange state.

func (s *Store) ExchangePlatformFeeGet(marketID uint64) (*big.Int, error) {
	return s.getBig(fmt.Sprintf("exchange/platform-fee/%d", marketID))
}

func (s *Store) ExchangePlatformFeePut(marketID uint64, amount *big.Int) error {
	return s.putBig(fmt.Sprintf("exchange/platform-fee/%d", marketID), amount)
}

// Reserve state.

func (s *Store) ReserveSharesGet() (*big.Int, error) {
	return s.getBig("reserve/shares")
}

func (s *Store) ReserveSharesPut(shares *big.Int) error {
	return s.putBig("reserve/shares", shares)
}

func (s *Store) ReserveDonatedGet(addr [20]byte) (*big.Int, error) {
	return s.getBig(fmt.Sprintf("reserve/donated/%s", addrKey(addr)))
}

func (s *Store) ReserveDonatedPut(addr [20]byte, amount *big.Int) error {
	return s.putBig(fmt.Sprintf("reserve/donated/%s", addrKey(addr)), amount)
}

func (s *Store) ReserveTotalDonatedGet() (*big.Int, error) {
	return s.getBig("reserve/total-donated")
}

func (s *Store) ReserveTotalDonatedPut(amount *big.Int) error {
	return s.putBig("reserve/total-donated", amount)
}
