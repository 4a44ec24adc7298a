package ideatoken

import (
	"math/big"
	"testing"
)

type mockLedgerState struct {
	supplies   map[string]*big.Int
	balances   map[string]*big.Int
	allowances map[string]*big.Int
}

func newMockLedgerState() *mockLedgerState {
	return &mockLedgerState{
		supplies:   make(map[string]*big.Int),
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
	}
}

func balanceKey(token string, addr [20]byte) string {
	return token + "/" + string(addr[:])
}

func allowanceKey(token string, owner, spender [20]byte) string {
	return token + "/" + string(owner[:]) + "/" + string(spender[:])
}

func (m *mockLedgerState) TokenSupplyGet(token string) (*big.Int, error) {
	return m.supplies[token], nil
}

func (m *mockLedgerState) TokenSupplyPut(token string, supply *big.Int) error {
	m.supplies[token] = supply
	return nil
}

func (m *mockLedgerState) TokenBalanceGet(token string, addr [20]byte) (*big.Int, error) {
	return m.balances[balanceKey(token, addr)], nil
}

func (m *mockLedgerState) TokenBalancePut(token string, addr [20]byte, balance *big.Int) error {
	m.balances[balanceKey(token, addr)] = balance
	return nil
}

func (m *mockLedgerState) TokenAllowanceGet(token string, owner, spender [20]byte) (*big.Int, error) {
	return m.allowances[allowanceKey(token, owner, spender)], nil
}

func (m *mockLedgerState) TokenAllowancePut(token string, owner, spender [20]byte, amount *big.Int) error {
	m.allowances[allowanceKey(token, owner, spender)] = amount
	return nil
}

func testAddr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func TestMintBurnTracksSupply(t *testing.T) {
	ledger := NewLedger("test.com", newMockLedgerState())
	holder := testAddr(0x01)

	if err := ledger.Mint(holder, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	supply, _ := ledger.TotalSupply()
	if supply.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("supply = %s, want 500", supply)
	}

	if err := ledger.Burn(holder, big.NewInt(200)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	supply, _ = ledger.TotalSupply()
	balance, _ := ledger.BalanceOf(holder)
	if supply.Cmp(big.NewInt(300)) != 0 || balance.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("supply = %s balance = %s, want 300/300", supply, balance)
	}

	if err := ledger.Burn(holder, big.NewInt(301)); err != ErrInsufficientBalance {
		t.Fatalf("overburn: %v", err)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ledger := NewLedger("dai", newMockLedgerState())
	owner := testAddr(0x01)
	spender := testAddr(0x02)
	recipient := testAddr(0x03)

	if err := ledger.Mint(owner, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ledger.TransferFrom(spender, owner, recipient, big.NewInt(40)); err != ErrInsufficientAllowance {
		t.Fatalf("unapproved transfer: %v", err)
	}

	if err := ledger.Approve(owner, spender, big.NewInt(60)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom(spender, owner, recipient, big.NewInt(40)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}

	remaining, _ := ledger.Allowance(owner, spender)
	if remaining.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("allowance = %s, want 20", remaining)
	}
	got, _ := ledger.BalanceOf(recipient)
	if got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("recipient balance = %s, want 40", got)
	}

	// Allowance covers it but the balance does not.
	if err := ledger.TransferFrom(spender, owner, recipient, big.NewInt(70)); err != ErrInsufficientAllowance {
		t.Fatalf("expected allowance failure first, got %v", err)
	}
	if err := ledger.Approve(owner, spender, big.NewInt(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom(spender, owner, recipient, big.NewInt(70)); err != ErrInsufficientBalance {
		t.Fatalf("expected balance failure, got %v", err)
	}
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	ledger := NewLedger("test.com", newMockLedgerState())
	holder := testAddr(0x01)

	if err := ledger.Mint(holder, big.NewInt(0)); err != ErrInvalidAmount {
		t.Fatalf("zero mint: %v", err)
	}
	if err := ledger.Transfer(holder, testAddr(0x02), nil); err != ErrInvalidAmount {
		t.Fatalf("nil transfer: %v", err)
	}
	if err := ledger.Burn(holder, big.NewInt(-1)); err != ErrInvalidAmount {
		t.Fatalf("negative burn: %v", err)
	}
}
