package token

import (
	"errors"
	"fmt"
	"math/big"

	"curiochain/core/types"
)

// Symbol identifies the wrapped settlement asset tracked by the ledger.
const Symbol = "WCUR"

var (
	errNilState            = errors.New("token ledger: state not configured")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrInsufficientAllow   = errors.New("token: insufficient allowance")
)

// LedgerState exposes the account and allowance persistence required by the
// settlement-asset ledger.
type LedgerState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	AllowanceGet(owner, spender [20]byte) (*big.Int, error)
	AllowancePut(owner, spender [20]byte, amount *big.Int) error
}

// Ledger implements ERC-20 style transfer semantics for the settlement
// asset: direct transfers, and allowance-gated pulls used by the
// marketplace to collect buyer funds.
type Ledger struct {
	state LedgerState
}

// NewLedger constructs a ledger without a state backend; callers wire one
// via SetState before use.
func NewLedger() *Ledger {
	return &Ledger{}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state LedgerState) { l.state = state }

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return types.NewAccount()
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// BalanceOf returns the settlement-asset balance held by addr.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	acc, err := l.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return cloneAmount(ensureAccount(acc).Balance), nil
}

// Mint credits freshly issued settlement asset to addr. Only genesis and
// administrative flows call it; the ledger itself does not gate callers.
func (l *Ledger) Mint(addr [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneAmount(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("token: negative mint amount")
	}
	if amt.Sign() == 0 {
		return nil
	}
	acc, err := l.state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc = ensureAccount(acc)
	acc.Balance = new(big.Int).Add(acc.Balance, amt)
	return l.state.PutAccount(addr[:], acc)
}

// Transfer moves amount from one address to another.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneAmount(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("token: negative transfer amount")
	}
	if amt.Sign() == 0 || from == to {
		return nil
	}
	fromAcc, err := l.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := l.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := l.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return l.state.PutAccount(to[:], toAcc)
}

// Approve records that spender may pull up to amount from owner. The value
// replaces any prior allowance.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneAmount(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("token: negative allowance")
	}
	return l.state.AllowancePut(owner, spender, amt)
}

// Allowance returns the remaining amount spender may pull from owner.
func (l *Ledger) Allowance(owner, spender [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	allowed, err := l.state.AllowanceGet(owner, spender)
	if err != nil {
		return nil, err
	}
	return cloneAmount(allowed), nil
}

// TransferFrom pulls amount from the owner to the recipient on behalf of
// spender, consuming allowance. The approval step must precede any
// engine-initiated pull of buyer funds.
func (l *Ledger) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneAmount(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("token: negative transfer amount")
	}
	if amt.Sign() == 0 {
		return nil
	}
	allowed, err := l.state.AllowanceGet(owner, spender)
	if err != nil {
		return err
	}
	allowed = cloneAmount(allowed)
	if allowed.Cmp(amt) < 0 {
		return ErrInsufficientAllow
	}
	if err := l.Transfer(owner, to, amt); err != nil {
		return err
	}
	return l.state.AllowancePut(owner, spender, new(big.Int).Sub(allowed, amt))
}
