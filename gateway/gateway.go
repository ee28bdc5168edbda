// Package gateway defines the asset transfer boundary of the pool engine.
//
// Pools never custody assets themselves; every movement of value goes through
// a Gateway. A failed transfer is the only external fault that can abort an
// otherwise valid pool operation.
package gateway

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the source balance.
	ErrInsufficientBalance = errors.New("insufficient asset balance")
	// ErrNilAmount is returned when a nil amount pointer is passed.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrBalanceOverflow is returned when a credit would overflow a balance.
	ErrBalanceOverflow = errors.New("asset balance overflow")
)

// Gateway moves units of an asset between a holder and the pool's custody.
// TransferIn pulls from a holder into custody; TransferOut pays from custody
// to a holder. Implementations must be atomic per call: a returned error
// means no value moved.
type Gateway interface {
	TransferIn(asset, from common.Address, amount *uint256.Int) error
	TransferOut(asset, to common.Address, amount *uint256.Int) error
	BalanceOf(asset, holder common.Address) *uint256.Int
}

// Vault is an in-memory Gateway holding one balance book per asset, with a
// dedicated custody entry for value pulled in by pools. It backs tests, the
// console, and standalone runs of the engine.
type Vault struct {
	mu sync.RWMutex
	// books[asset][holder] = balance
	books   map[common.Address]map[common.Address]*uint256.Int
	custody map[common.Address]*uint256.Int
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{
		books:   make(map[common.Address]map[common.Address]*uint256.Int),
		custody: make(map[common.Address]*uint256.Int),
	}
}

// Credit seeds holder with amount of asset. It is how value enters a vault.
func (v *Vault) Credit(asset, holder common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	book := v.book(asset)
	balance, ok := book[holder]
	if !ok {
		balance = new(uint256.Int)
		book[holder] = balance
	}
	newBalance, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return fmt.Errorf("%w: crediting %s of %s to %s", ErrBalanceOverflow, amount, asset, holder)
	}
	balance.Set(newBalance)
	return nil
}

// TransferIn moves amount of asset from the holder's balance into custody.
func (v *Vault) TransferIn(asset, from common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	book := v.book(asset)
	balance, ok := book[from]
	if !ok || balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, transfer of %s requested",
			ErrInsufficientBalance, from, balanceOrZero(book, from), asset, amount)
	}

	balance.Sub(balance, amount)
	custody, ok := v.custody[asset]
	if !ok {
		custody = new(uint256.Int)
		v.custody[asset] = custody
	}
	custody.Add(custody, amount)
	return nil
}

// TransferOut pays amount of asset from custody to the holder.
func (v *Vault) TransferOut(asset, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	custody, ok := v.custody[asset]
	if !ok || custody.Lt(amount) {
		return fmt.Errorf("%w: custody holds %s of %s, payout of %s requested",
			ErrInsufficientBalance, balanceOrZero(v.custody, asset), asset, amount)
	}

	custody.Sub(custody, amount)
	book := v.book(asset)
	balance, ok := book[to]
	if !ok {
		balance = new(uint256.Int)
		book[to] = balance
	}
	balance.Add(balance, amount)
	return nil
}

// BalanceOf returns a copy of the holder's balance of asset.
func (v *Vault) BalanceOf(asset, holder common.Address) *uint256.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	book, ok := v.books[asset]
	if !ok {
		return new(uint256.Int)
	}
	return balanceOrZero(book, holder)
}

// CustodyOf returns a copy of the custody balance for asset.
func (v *Vault) CustodyOf(asset common.Address) *uint256.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return balanceOrZero(v.custody, asset)
}

// book returns the balance book for asset, creating it if needed.
// Callers must hold the write lock.
func (v *Vault) book(asset common.Address) map[common.Address]*uint256.Int {
	book, ok := v.books[asset]
	if !ok {
		book = make(map[common.Address]*uint256.Int)
		v.books[asset] = book
	}
	return book
}

func balanceOrZero(book map[common.Address]*uint256.Int, holder common.Address) *uint256.Int {
	if balance, ok := book[holder]; ok {
		return balance.Clone()
	}
	return new(uint256.Int)
}
