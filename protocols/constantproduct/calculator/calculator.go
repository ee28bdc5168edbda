package calculator

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrNilAmount is returned when a nil pointer is passed for an amount or reserve.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrArithmetic is returned when a checked 256-bit operation overflows or underflows.
	// Amounts never wrap silently; the whole calculation fails instead.
	ErrArithmetic = errors.New("arithmetic overflow or underflow")
	// ErrInvalidState is returned for internal calculation errors, like a zero
	// divisor that the caller's state invariants should have made impossible.
	ErrInvalidState = errors.New("invalid internal state")
)

var one = uint256.NewInt(1)

// AmountOut computes the output of a constant-product trade.
//
// The post-trade output-side reserve is rounded UP:
//
//	amountOut = reserveOut - ceil(reserveIn*reserveOut / (reserveIn+amountIn))
//
// so the product of the reserves after the trade can never fall below the
// product before it. Rounding always favors the pool, never the taker.
//
// A pool with an empty reserve quotes zero rather than erroring; the caller
// decides whether an empty pool is acceptable.
func AmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn == nil || reserveIn == nil || reserveOut == nil {
		return nil, ErrNilAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return new(uint256.Int), nil
	}

	k, err := mulChecked(reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	newReserveIn, err := addChecked(reserveIn, amountIn)
	if err != nil {
		return nil, err
	}

	// ceil(k / newReserveIn) <= reserveOut because newReserveIn >= reserveIn,
	// so the subtraction below cannot underflow.
	newReserveOut, err := ceilDiv(k, newReserveIn)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Sub(reserveOut, newReserveOut), nil
}

// DepositShares computes the liquidity shares minted for a deposit.
//
// First deposit (zero supply): shares = floor(sqrt(amountA*amountB)).
// Later deposits: shares = min(amountA*supply/reserveA, amountB*supply/reserveB),
// floored per side, so a deposit that is lopsided relative to the current
// reserve ratio is credited only for its constrained side.
//
// A zero result is returned as-is; the caller maps it to its own failure.
func DepositShares(amountA, amountB, reserveA, reserveB, totalSupply *uint256.Int) (*uint256.Int, error) {
	if amountA == nil || amountB == nil || reserveA == nil || reserveB == nil || totalSupply == nil {
		return nil, ErrNilAmount
	}

	if totalSupply.IsZero() {
		product, err := mulChecked(amountA, amountB)
		if err != nil {
			return nil, err
		}
		return new(uint256.Int).Sqrt(product), nil
	}

	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, fmt.Errorf("%w: share supply without reserves", ErrInvalidState)
	}

	sharesA, err := mulDivFloor(amountA, totalSupply, reserveA)
	if err != nil {
		return nil, err
	}
	sharesB, err := mulDivFloor(amountB, totalSupply, reserveB)
	if err != nil {
		return nil, err
	}
	if sharesB.Lt(sharesA) {
		return sharesB, nil
	}
	return sharesA, nil
}

// WithdrawAmounts computes the reserve payout for burning shareAmount shares:
// floor(shareAmount*reserve/totalSupply) per side. Flooring keeps the
// remaining reserves covering the remaining supply.
func WithdrawAmounts(shareAmount, reserveA, reserveB, totalSupply *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if shareAmount == nil || reserveA == nil || reserveB == nil || totalSupply == nil {
		return nil, nil, ErrNilAmount
	}
	if totalSupply.IsZero() {
		return nil, nil, fmt.Errorf("%w: withdraw against zero share supply", ErrInvalidState)
	}

	amountA, err := mulDivFloor(shareAmount, reserveA, totalSupply)
	if err != nil {
		return nil, nil, err
	}
	amountB, err := mulDivFloor(shareAmount, reserveB, totalSupply)
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// mulDivFloor returns floor(x*y/d) with a checked intermediate product.
func mulDivFloor(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrInvalidState)
	}
	product, err := mulChecked(x, y)
	if err != nil {
		return nil, err
	}
	return product.Div(product, d), nil
}

// ceilDiv returns ceil(x/d).
func ceilDiv(x, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrInvalidState)
	}
	q := new(uint256.Int).Div(x, d)
	if !new(uint256.Int).Mod(x, d).IsZero() {
		// q < x here, so the increment cannot overflow.
		q.Add(q, one)
	}
	return q, nil
}

func mulChecked(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: multiplication of %s and %s", ErrArithmetic, x, y)
	}
	return z, nil
}

func addChecked(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: addition of %s and %s", ErrArithmetic, x, y)
	}
	return z, nil
}
