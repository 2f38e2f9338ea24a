package token

import (
	"errors"
	"math/big"
	"testing"

	"curiochain/core/types"
)

type mockState struct {
	accounts   map[string]*types.Account
	allowances map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		accounts:   make(map[string]*types.Account),
		allowances: make(map[string]*big.Int),
	}
}

func allowanceKey(owner, spender [20]byte) string {
	return string(append(append([]byte{}, owner[:]...), spender[:]...))
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	if acc, ok := m.accounts[string(addr)]; ok {
		return acc.Clone(), nil
	}
	return nil, nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	m.accounts[string(addr)] = account.Clone()
	return nil
}

func (m *mockState) AllowanceGet(owner, spender [20]byte) (*big.Int, error) {
	if amount, ok := m.allowances[allowanceKey(owner, spender)]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) AllowancePut(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		delete(m.allowances, allowanceKey(owner, spender))
		return nil
	}
	m.allowances[allowanceKey(owner, spender)] = new(big.Int).Set(amount)
	return nil
}

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

func newTestLedger() (*Ledger, *mockState) {
	state := newMockState()
	ledger := NewLedger()
	ledger.SetState(state)
	return ledger, state
}

func mustBalance(t *testing.T, l *Ledger, a [20]byte) *big.Int {
	t.Helper()
	balance, err := l.BalanceOf(a)
	if err != nil {
		t.Fatalf("balance lookup failed: %v", err)
	}
	return balance
}

func TestMintAndTransfer(t *testing.T) {
	ledger, _ := newTestLedger()
	alice := addr(0x01)
	bob := addr(0x02)

	if err := ledger.Mint(alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(300)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if got := mustBalance(t, ledger, alice); got.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("alice expected 700, got %s", got)
	}
	if got := mustBalance(t, ledger, bob); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("bob expected 300, got %s", got)
	}
}

func TestTransferRejectsOverdraft(t *testing.T) {
	ledger, _ := newTestLedger()
	alice := addr(0x01)
	bob := addr(0x02)

	if err := ledger.Mint(alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if got := mustBalance(t, ledger, alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("failed transfer must not move funds, got %s", got)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ledger, _ := newTestLedger()
	owner := addr(0x01)
	spender := addr(0x02)
	dest := addr(0x03)

	if err := ledger.Mint(owner, big.NewInt(1000)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if err := ledger.Approve(owner, spender, big.NewInt(400)); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	if err := ledger.TransferFrom(spender, owner, dest, big.NewInt(250)); err != nil {
		t.Fatalf("transfer from failed: %v", err)
	}
	remaining, err := ledger.Allowance(owner, spender)
	if err != nil {
		t.Fatalf("allowance lookup failed: %v", err)
	}
	if remaining.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("allowance expected 150, got %s", remaining)
	}

	if err := ledger.TransferFrom(spender, owner, dest, big.NewInt(200)); !errors.Is(err, ErrInsufficientAllow) {
		t.Fatalf("expected allowance exhaustion, got %v", err)
	}
	if got := mustBalance(t, ledger, dest); got.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("dest expected 250, got %s", got)
	}
}

func TestTransferFromWithoutApproval(t *testing.T) {
	ledger, _ := newTestLedger()
	owner := addr(0x01)
	spender := addr(0x02)

	if err := ledger.Mint(owner, big.NewInt(100)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if err := ledger.TransferFrom(spender, owner, spender, big.NewInt(1)); !errors.Is(err, ErrInsufficientAllow) {
		t.Fatalf("expected allowance rejection, got %v", err)
	}
}

func TestZeroAmountOperationsAreNoops(t *testing.T) {
	ledger, state := newTestLedger()
	alice := addr(0x01)

	if err := ledger.Mint(alice, big.NewInt(0)); err != nil {
		t.Fatalf("zero mint failed: %v", err)
	}
	if err := ledger.Transfer(alice, addr(0x02), big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer failed: %v", err)
	}
	if len(state.accounts) != 0 {
		t.Fatalf("zero-amount ops must not create accounts, got %d", len(state.accounts))
	}
}
