// Package shareledger provides fungible accounting of pool-ownership claims.
//
// A Ledger is bound at construction to exactly one controller identity, the
// pool that owns it. Only that controller may mint or burn; any other caller
// is rejected. The ledger itself is not safe for concurrent use — the owning
// pool serializes access the same way it serializes its reserve mutations.
package shareledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrUnauthorized is returned when a caller other than the bound controller
	// attempts to mint or burn.
	ErrUnauthorized = errors.New("caller is not the ledger controller")
	// ErrInsufficientShares is returned when a burn exceeds the holder's balance.
	ErrInsufficientShares = errors.New("insufficient share balance")
	// ErrNilAmount is returned when a nil amount pointer is passed.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrSupplyOverflow is returned when a mint would overflow the total supply.
	ErrSupplyOverflow = errors.New("share supply overflow")
)

// Ledger tracks share balances and the total supply for one pool.
// Invariant: the sum of all balances equals the total supply after every call.
type Ledger struct {
	controller  common.Address
	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
}

// New creates a ledger bound to the given controller identity.
func New(controller common.Address) *Ledger {
	return &Ledger{
		controller:  controller,
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
	}
}

// Controller returns the identity authorized to mint and burn.
func (l *Ledger) Controller() common.Address {
	return l.controller
}

// Mint credits amount to holder and grows the total supply by the same amount.
// Only the bound controller may call it.
func (l *Ledger) Mint(caller, holder common.Address, amount *uint256.Int) error {
	if caller != l.controller {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if amount == nil {
		return ErrNilAmount
	}

	newSupply, overflow := new(uint256.Int).AddOverflow(l.totalSupply, amount)
	if overflow {
		return fmt.Errorf("%w: minting %s", ErrSupplyOverflow, amount)
	}

	balance, ok := l.balances[holder]
	if !ok {
		balance = new(uint256.Int)
		l.balances[holder] = balance
	}
	// Supply fits in 256 bits, so every individual balance does too.
	balance.Add(balance, amount)
	l.totalSupply = newSupply
	return nil
}

// Burn debits amount from holder and shrinks the total supply by the same
// amount. Only the bound controller may call it.
func (l *Ledger) Burn(caller, holder common.Address, amount *uint256.Int) error {
	if caller != l.controller {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if amount == nil {
		return ErrNilAmount
	}

	balance, ok := l.balances[holder]
	if !ok || balance.Lt(amount) {
		return fmt.Errorf("%w: holder %s holds %s, burn of %s requested",
			ErrInsufficientShares, holder, l.BalanceOf(holder), amount)
	}

	balance.Sub(balance, amount)
	l.totalSupply.Sub(l.totalSupply, amount)
	if balance.IsZero() {
		delete(l.balances, holder)
	}
	return nil
}

// BalanceOf returns a copy of the holder's share balance.
func (l *Ledger) BalanceOf(holder common.Address) *uint256.Int {
	balance, ok := l.balances[holder]
	if !ok {
		return new(uint256.Int)
	}
	return balance.Clone()
}

// TotalSupply returns a copy of the total share supply.
func (l *Ledger) TotalSupply() *uint256.Int {
	return l.totalSupply.Clone()
}

// Holders returns the number of addresses with a non-zero balance.
func (l *Ledger) Holders() int {
	return len(l.balances)
}
