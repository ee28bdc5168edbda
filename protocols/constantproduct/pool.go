// Package constantproduct implements a two-asset liquidity pool priced by the
// constant-product rule. A pool holds reserves for exactly one unordered
// asset pair, owns the share ledger that tracks claims on those reserves, and
// moves value only through its gateway.
//
// Every public operation is one atomic transaction under the pool's lock:
// all required gateway transfers complete before any internal state mutates,
// and a partial transfer failure is unwound with a compensating transfer.
// After validation passes, internal mutations cannot fail, so callers never
// observe a half-applied operation.
package constantproduct

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/pairpool/pairpool-engine-go/events"
	"github.com/pairpool/pairpool-engine-go/gateway"
	"github.com/pairpool/pairpool-engine-go/protocols/constantproduct/calculator"
	"github.com/pairpool/pairpool-engine-go/protocols/shareledger"
)

var (
	// ErrInvalidAsset is returned when the named asset is not one of the pool's pair.
	ErrInvalidAsset = errors.New("asset is not part of this pool")
	// ErrZeroAmount is returned when an operation is given a zero or nil amount.
	ErrZeroAmount = errors.New("amount must be greater than zero")
	// ErrNoLiquidity is returned when removing liquidity from a pool with no shares outstanding.
	ErrNoLiquidity = errors.New("pool has no liquidity")
	// ErrInsufficientInitialLiquidity is returned when a first deposit is too
	// small to mint a single share.
	ErrInsufficientInitialLiquidity = errors.New("initial deposit mints zero shares")
	// ErrZeroSharesMinted is returned when a follow-up deposit is too small
	// relative to the reserves to mint a single share.
	ErrZeroSharesMinted = errors.New("deposit mints zero shares")
	// ErrSlippageExceeded is returned when the quoted output falls short of the
	// caller's minimum. Expected in normal operation, not a bug.
	ErrSlippageExceeded = errors.New("output below minimum acceptable amount")
	// ErrTransfer wraps a gateway failure. The whole operation aborts with no
	// state change.
	ErrTransfer = errors.New("gateway transfer failed")
	// ErrInvariantViolation means the computed post-trade reserves would let
	// the constant product fall. It must never occur given correct arithmetic
	// and indicates an implementation defect, not a recoverable condition.
	ErrInvariantViolation = errors.New("constant-product invariant violated")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds everything a pool needs at construction. The asset pair is
// immutable afterwards.
type Config struct {
	ID      common.Address
	AssetA  common.Address
	AssetB  common.Address
	Gateway gateway.Gateway
	Events  *events.Log
	Logger  Logger
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.AssetA == c.AssetB {
		return errors.New("config: AssetA and AssetB must differ")
	}
	if c.Gateway == nil {
		return errors.New("config: Gateway is required")
	}
	if c.Events == nil {
		return errors.New("config: Events is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Pool is a single constant-product liquidity pool.
type Pool struct {
	mu sync.RWMutex

	id     common.Address
	assetA common.Address
	assetB common.Address

	reserveA *uint256.Int
	reserveB *uint256.Int

	ledger  *shareledger.Ledger
	gateway gateway.Gateway
	events  *events.Log
	logger  Logger
}

// New creates an empty pool for the configured pair. The share ledger is
// created alongside it, bound to the pool's identity as its only authorized
// controller.
func New(cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Pool{
		id:       cfg.ID,
		assetA:   cfg.AssetA,
		assetB:   cfg.AssetB,
		reserveA: new(uint256.Int),
		reserveB: new(uint256.Int),
		ledger:   shareledger.New(cfg.ID),
		gateway:  cfg.Gateway,
		events:   cfg.Events,
		logger:   cfg.Logger,
	}, nil
}

// ID returns the pool's identity, which is also its ledger's controller.
func (p *Pool) ID() common.Address {
	return p.id
}

// Assets returns the pool's asset pair in creation order.
func (p *Pool) Assets() (common.Address, common.Address) {
	return p.assetA, p.assetB
}

// Reserves returns a snapshot of the current reserves.
func (p *Pool) Reserves() (*uint256.Int, *uint256.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reserveA.Clone(), p.reserveB.Clone()
}

// TotalShares returns the outstanding share supply.
func (p *Pool) TotalShares() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ledger.TotalSupply()
}

// SharesOf returns the holder's share balance.
func (p *Pool) SharesOf(holder common.Address) *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ledger.BalanceOf(holder)
}

// Quote prices a trade of amountIn of fromAsset against the current reserves
// without touching any state. Rounding is against the taker: the post-trade
// reserve product never falls below the pre-trade product.
func (p *Pool) Quote(fromAsset common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := validateAmount(amountIn); err != nil {
		return nil, err
	}
	reserveIn, reserveOut, _, err := p.orient(fromAsset)
	if err != nil {
		return nil, err
	}
	return calculator.AmountOut(amountIn, reserveIn, reserveOut)
}

// AddLiquidity pulls the full amountA and amountB from the provider and mints
// shares for the deposit. The full amounts are added to the reserves even
// when the minted shares are capped by the more constrained side; there is no
// refund of the excess.
func (p *Pool) AddLiquidity(provider common.Address, amountA, amountB *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := validateAmount(amountA); err != nil {
		return nil, err
	}
	if err := validateAmount(amountB); err != nil {
		return nil, err
	}

	supply := p.ledger.TotalSupply()
	shares, err := calculator.DepositShares(amountA, amountB, p.reserveA, p.reserveB, supply)
	if err != nil {
		return nil, err
	}
	if shares.IsZero() {
		if supply.IsZero() {
			return nil, ErrInsufficientInitialLiquidity
		}
		return nil, ErrZeroSharesMinted
	}

	// Validate the commit ahead of the transfers so nothing can fail after
	// value has moved.
	newReserveA, overflow := new(uint256.Int).AddOverflow(p.reserveA, amountA)
	if overflow {
		return nil, fmt.Errorf("%w: reserve addition", calculator.ErrArithmetic)
	}
	newReserveB, overflow := new(uint256.Int).AddOverflow(p.reserveB, amountB)
	if overflow {
		return nil, fmt.Errorf("%w: reserve addition", calculator.ErrArithmetic)
	}
	if _, overflow = new(uint256.Int).AddOverflow(supply, shares); overflow {
		return nil, fmt.Errorf("%w: share supply", calculator.ErrArithmetic)
	}

	if err := p.gateway.TransferIn(p.assetA, provider, amountA); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransfer, err)
	}
	if err := p.gateway.TransferIn(p.assetB, provider, amountB); err != nil {
		p.compensate("AddLiquidity", p.gateway.TransferOut(p.assetA, provider, amountA))
		return nil, fmt.Errorf("%w: %v", ErrTransfer, err)
	}

	if err := p.ledger.Mint(p.id, provider, shares); err != nil {
		// Unreachable after the overflow pre-check; unwind the deposits.
		p.compensate("AddLiquidity", p.gateway.TransferOut(p.assetA, provider, amountA))
		p.compensate("AddLiquidity", p.gateway.TransferOut(p.assetB, provider, amountB))
		return nil, err
	}
	p.reserveA.Set(newReserveA)
	p.reserveB.Set(newReserveB)

	p.events.Append(events.TypeLiquidityAdded, events.LiquidityAdded{
		Pool:         p.id,
		Provider:     provider,
		AmountA:      amountA.Clone(),
		AmountB:      amountB.Clone(),
		MintedShares: shares.Clone(),
	})
	return shares, nil
}

// RemoveLiquidity burns shareAmount of the provider's shares and pays out the
// proportional slice of both reserves, floored per side.
func (p *Pool) RemoveLiquidity(provider common.Address, shareAmount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := validateAmount(shareAmount); err != nil {
		return nil, nil, err
	}
	supply := p.ledger.TotalSupply()
	if supply.IsZero() {
		return nil, nil, ErrNoLiquidity
	}
	if p.ledger.BalanceOf(provider).Lt(shareAmount) {
		return nil, nil, fmt.Errorf("%w: provider %s", shareledger.ErrInsufficientShares, provider)
	}

	amountA, amountB, err := calculator.WithdrawAmounts(shareAmount, p.reserveA, p.reserveB, supply)
	if err != nil {
		return nil, nil, err
	}

	if !amountA.IsZero() {
		if err := p.gateway.TransferOut(p.assetA, provider, amountA); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrTransfer, err)
		}
	}
	if !amountB.IsZero() {
		if err := p.gateway.TransferOut(p.assetB, provider, amountB); err != nil {
			p.compensate("RemoveLiquidity", p.gateway.TransferIn(p.assetA, provider, amountA))
			return nil, nil, fmt.Errorf("%w: %v", ErrTransfer, err)
		}
	}

	// Burn cannot fail: the balance was checked above and nothing else can
	// touch the ledger while the pool lock is held.
	if err := p.ledger.Burn(p.id, provider, shareAmount); err != nil {
		p.compensate("RemoveLiquidity", p.gateway.TransferIn(p.assetA, provider, amountA))
		p.compensate("RemoveLiquidity", p.gateway.TransferIn(p.assetB, provider, amountB))
		return nil, nil, err
	}
	p.reserveA.Sub(p.reserveA, amountA)
	p.reserveB.Sub(p.reserveB, amountB)

	p.events.Append(events.TypeLiquidityRemoved, events.LiquidityRemoved{
		Pool:         p.id,
		Provider:     provider,
		AmountA:      amountA.Clone(),
		AmountB:      amountB.Clone(),
		BurnedShares: shareAmount.Clone(),
	})
	return amountA, amountB, nil
}

// Swap trades amountIn of fromAsset for the other asset of the pair. Both
// directions are supported symmetrically. A pool with an empty reserve fails
// ErrNoLiquidity, and a trade whose priced output is zero is rejected rather
// than executed. The trade aborts with ErrSlippageExceeded when the priced
// output falls below minAmountOut; a nil minAmountOut accepts any positive
// output.
func (p *Pool) Swap(trader, fromAsset common.Address, amountIn, minAmountOut *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := validateAmount(amountIn); err != nil {
		return nil, err
	}
	reserveIn, reserveOut, toAsset, err := p.orient(fromAsset)
	if err != nil {
		return nil, err
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrNoLiquidity
	}

	kBefore, overflow := new(uint256.Int).MulOverflow(reserveIn, reserveOut)
	if overflow {
		return nil, fmt.Errorf("%w: reserve product", calculator.ErrArithmetic)
	}
	amountOut, err := calculator.AmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	// A zero payout never executes: the trader would pay amountIn for
	// nothing. Quote still prices such trades at zero without error.
	if amountOut.IsZero() {
		return nil, fmt.Errorf("%w: quoted zero output", ErrSlippageExceeded)
	}
	if minAmountOut != nil && amountOut.Lt(minAmountOut) {
		return nil, fmt.Errorf("%w: quoted %s, minimum %s", ErrSlippageExceeded, amountOut, minAmountOut)
	}

	newReserveIn, overflow := new(uint256.Int).AddOverflow(reserveIn, amountIn)
	if overflow {
		return nil, fmt.Errorf("%w: reserve addition", calculator.ErrArithmetic)
	}
	newReserveOut := new(uint256.Int).Sub(reserveOut, amountOut)

	// Defensive check on the values about to be committed. Must never trigger.
	kAfter, overflow := new(uint256.Int).MulOverflow(newReserveIn, newReserveOut)
	if overflow || kAfter.Lt(kBefore) {
		return nil, fmt.Errorf("%w: %s*%s < %s", ErrInvariantViolation, newReserveIn, newReserveOut, kBefore)
	}

	if err := p.gateway.TransferIn(fromAsset, trader, amountIn); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransfer, err)
	}
	if err := p.gateway.TransferOut(toAsset, trader, amountOut); err != nil {
		p.compensate("Swap", p.gateway.TransferOut(fromAsset, trader, amountIn))
		return nil, fmt.Errorf("%w: %v", ErrTransfer, err)
	}

	reserveIn.Set(newReserveIn)
	reserveOut.Set(newReserveOut)

	p.events.Append(events.TypeSwap, events.Swap{
		Pool:      p.id,
		Trader:    trader,
		FromAsset: fromAsset,
		ToAsset:   toAsset,
		AmountIn:  amountIn.Clone(),
		AmountOut: amountOut.Clone(),
	})
	return amountOut, nil
}

// orient maps fromAsset onto (reserveIn, reserveOut, toAsset). The returned
// reserves alias the pool's own state; callers must hold the pool lock.
func (p *Pool) orient(fromAsset common.Address) (*uint256.Int, *uint256.Int, common.Address, error) {
	switch fromAsset {
	case p.assetA:
		return p.reserveA, p.reserveB, p.assetB, nil
	case p.assetB:
		return p.reserveB, p.reserveA, p.assetA, nil
	default:
		return nil, nil, common.Address{}, fmt.Errorf("%w: %s", ErrInvalidAsset, fromAsset)
	}
}

// compensate records the outcome of a compensating transfer issued while
// unwinding a partially executed operation. A failed compensation cannot be
// retried here; it is surfaced loudly for the operator.
func (p *Pool) compensate(op string, err error) {
	if err != nil {
		p.logger.Error("compensating transfer failed", "pool", p.id, "op", op, "error", err)
	}
}

func validateAmount(amount *uint256.Int) error {
	if amount == nil {
		return calculator.ErrNilAmount
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}
	return nil
}
