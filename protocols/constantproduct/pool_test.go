package constantproduct

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairpool/pairpool-engine-go/events"
	"github.com/pairpool/pairpool-engine-go/gateway"
	"github.com/pairpool/pairpool-engine-go/protocols/shareledger"
)

var (
	poolID = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	assetA = common.HexToAddress("0x1000000000000000000000000000000000000001")
	assetB = common.HexToAddress("0x1000000000000000000000000000000000000002")
	assetC = common.HexToAddress("0x1000000000000000000000000000000000000003")
	lp     = common.HexToAddress("0x0000000000000000000000000000000000000011")
	trader = common.HexToAddress("0x0000000000000000000000000000000000000022")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func testLogger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFundedPool builds a pool backed by a vault in which lp and trader both
// hold 1e18 of each asset.
func newFundedPool(t *testing.T) (*Pool, *gateway.Vault, *events.Log) {
	t.Helper()
	vault := gateway.NewVault()
	for _, asset := range []common.Address{assetA, assetB} {
		for _, holder := range []common.Address{lp, trader} {
			require.NoError(t, vault.Credit(asset, holder, u(1_000_000_000_000_000_000)))
		}
	}
	log := events.NewLog(0)
	pool, err := New(Config{
		ID:      poolID,
		AssetA:  assetA,
		AssetB:  assetB,
		Gateway: vault,
		Events:  log,
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	return pool, vault, log
}

func TestNewConfigValidation(t *testing.T) {
	vault := gateway.NewVault()
	log := events.NewLog(0)

	_, err := New(Config{ID: poolID, AssetA: assetA, AssetB: assetA, Gateway: vault, Events: log, Logger: testLogger()})
	assert.Error(t, err, "identical assets must be rejected")

	_, err = New(Config{ID: poolID, AssetA: assetA, AssetB: assetB, Events: log, Logger: testLogger()})
	assert.Error(t, err, "missing gateway must be rejected")

	_, err = New(Config{ID: poolID, AssetA: assetA, AssetB: assetB, Gateway: vault, Logger: testLogger()})
	assert.Error(t, err, "missing event log must be rejected")
}

func TestFirstDeposit(t *testing.T) {
	pool, vault, log := newFundedPool(t)

	shares, err := pool.AddLiquidity(lp, u(100), u(400))
	require.NoError(t, err)
	assert.Equal(t, u(200), shares, "floor(sqrt(100*400))")

	reserveA, reserveB := pool.Reserves()
	assert.Equal(t, u(100), reserveA)
	assert.Equal(t, u(400), reserveB)
	assert.Equal(t, u(200), pool.TotalShares())
	assert.Equal(t, u(200), pool.SharesOf(lp))

	// The deposit actually moved through the gateway.
	assert.Equal(t, u(100), vault.CustodyOf(assetA))
	assert.Equal(t, u(400), vault.CustodyOf(assetB))

	evts := log.Snapshot()
	require.Len(t, evts, 1)
	assert.Equal(t, events.TypeLiquidityAdded, evts[0].Type)
	added := evts[0].Data.(events.LiquidityAdded)
	assert.Equal(t, u(200), added.MintedShares)
}

func TestSmallestFirstDeposit(t *testing.T) {
	pool, _, log := newFundedPool(t)

	// With positive integer amounts the geometric mean is at least 1, so the
	// smallest possible first deposit already mints a share.
	shares, err := pool.AddLiquidity(lp, u(1), u(1))
	require.NoError(t, err)
	assert.Equal(t, u(1), shares)
	assert.Equal(t, uint64(1), log.Len())
}

func TestProportionalDeposit(t *testing.T) {
	pool, _, _ := newFundedPool(t)
	_, err := pool.AddLiquidity(lp, u(100), u(400))
	require.NoError(t, err)

	shares, err := pool.AddLiquidity(lp, u(10), u(40))
	require.NoError(t, err)
	assert.Equal(t, u(20), shares, "min(10*200/100, 40*200/400)")

	reserveA, reserveB := pool.Reserves()
	assert.Equal(t, u(110), reserveA)
	assert.Equal(t, u(440), reserveB)
	assert.Equal(t, u(220), pool.TotalShares())
}

func TestLopsidedDepositPullsFullAmounts(t *testing.T) {
	pool, vault, _ := newFundedPool(t)
	_, err := pool.AddLiquidity(lp, u(100), u(400))
	require.NoError(t, err)

	// Shares are capped by side A, but the full 1000 of B is still pulled in.
	shares, err := pool.AddLiquidity(lp, u(10), u(1000))
	require.NoError(t, err)
	assert.Equal(t, u(20), shares)

	reserveA, reserveB := pool.Reserves()
	assert.Equal(t, u(110), reserveA)
	assert.Equal(t, u(1400), reserveB)
	assert.Equal(t, u(1400), vault.CustodyOf(assetB))
}

func TestDepositTooSmallToMint(t *testing.T) {
	pool, _, _ := newFundedPool(t)
	_, err := pool.AddLiquidity(lp, u(1000), u(1000))
	require.NoError(t, err)

	_, err = pool.AddLiquidity(lp, u(1), u(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrZeroSharesMinted)

	// Nothing moved.
	reserveA, reserveB := pool.Reserves()
	assert.Equal(t, u(1000), reserveA)
	assert.Equal(t, u(1000), reserveB)
}

func TestZeroAmountsRejected(t *testing.T) {
	pool, _, log := newFundedPool(t)

	_, err := pool.AddLiquidity(lp, u(0), u(400))
	assert.ErrorIs(t, err, ErrZeroAmount)
	_, err = pool.AddLiquidity(lp, u(100), u(0))
	assert.ErrorIs(t, err, ErrZeroAmount)
	_, err = pool.Quote(assetA, u(0))
	assert.ErrorIs(t, err, ErrZeroAmount)
	_, err = pool.Swap(trader, assetA, u(0), u(0))
	assert.ErrorIs(t, err, ErrZeroAmount)
	_, _, err = pool.RemoveLiquidity(lp, u(0))
	assert.ErrorIs(t, err, ErrZeroAmount)

	assert.Equal(t, uint64(0), log.Len(), "rejected operations emit nothing")
}

func TestQuoteHardenedRounding(t *testing.T) {
	pool, _, _ := newFundedPool(t)
	_, err := pool.AddLiquidity(lp, u(100), u(400))
	require.NoError(t, err)
	_, err = pool.AddLiquidity(lp, u(10), u(40))
	require.NoError(t, err)

	// Reserves (110, 440), k = 48400. Selling 10 of A prices the new
	// A-reserve at 120 and rounds the new B-reserve up to ceil(48400/120) =
	// 404, paying out 36. Floor division would pay 37 and let k drop.
	out, err := pool.Quote(assetA, u(10))
	require.NoError(t, err)
	assert.Equal(t, u(36), out)

	_, err = pool.Quote(assetC, u(10))
	assert.ErrorIs(t, err, ErrInvalidAsset)
}

func TestSwapPreservesInvariant(t *testing.T) {
	pool, vault, log := newFundedPool(t)
	_, err := pool.AddLiquidity(lp, u(110), u(440))
	require.NoError(t, err)

	traderABefore := vault.BalanceOf(assetA, trader)
	traderBBefore := vault.BalanceOf(assetB, trader)

	out, err := pool.Swap(trader, assetA, u(10), u(36))
	require.NoError(t, err)
	assert.Equal(t, u(36), out)

	reserveA, reserveB := pool.Reserves()
	assert.Equal(t, u(120), reserveA)
	assert.Equal(t, u(404), reserveB)

	kBefore := new(uint256.Int).Mul(u(110), u(440))
	kAfter := new(uint256.Int).Mul(reserveA, reserveB)
	assert.True(t, kAfter.Cmp(kBefore) >= 0, "reserve product must not decrease")

	// Trader paid 10 of A and received 36 of B.
	assert.Equal(t, new(uint256.Int).Sub(traderABefore, u(10)), vault.BalanceOf(assetA, trader))
	assert.Equal(t, new(uint256.Int).Add(traderBBefore, u(36)), vault.BalanceOf(assetB, trader))

	evts := log.Snapshot()
	swap := evts[len(evts)-1]
	assert.Equal(t, events.TypeSwap, swap.Type)
	assert.Equal(t, u(36), swap.Data.(events.Swap).AmountOut)
}

func TestSwapBothDirections(t *testing.T) {
	pool, _, _ := newFundedPool(t)
	_, err := pool.AddLiquidity(lp, u(1000), u(1000))
	require.NoError(t, err)

	outB, err := pool.Swap(trader, assetA, u(100), nil)
	require.NoError(t, err)
	assert.False(t, outB.IsZero())

	outA, err := pool.Swap(trader, assetB, u(100), nil)
	require.NoError(t, err)
	assert.False(t, outA.IsZero())

	_, err = pool.Swap(trader, assetC, u(100), nil)
	assert.ErrorIs(t, err, ErrInvalidAsset)
}

func TestSwapSlippageExceeded(t *testing.T) {
	pool, vault, _ := newFundedPool(t)
	_, err := pool.AddLiquidity(lp, u(110), u(440))
	require.NoError(t, err)

	balanceBefore := vault.BalanceOf(assetA, trader)
	_, err = pool.Swap(trader, assetA, u(10), u(37))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSlippageExceeded)

	// No value moved, no state changed.
	assert.Equal(t, balanceBefore, vault.BalanceOf(assetA, trader))
	reserveA, _ := pool.Reserves()
	assert.Equal(t, u(110), reserveA)
}

func TestSwapAgainstEmptyPoolFails(t *testing.T) {
	pool, vault, log := newFundedPool(t)

	balanceBefore := vault.BalanceOf(assetA, trader)
	_, err := pool.Swap(trader, assetA, u(1000), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoLiquidity)

	// The trader's funds were never pulled and the pool stayed empty.
	assert.Equal(t, balanceBefore, vault.BalanceOf(assetA, trader))
	reserveA, reserveB := pool.Reserves()
	assert.True(t, reserveA.IsZero())
	assert.True(t, reserveB.IsZero())
	assert.Len(t, log.Snapshot(), 0)

	// Quoting the same trade is allowed and prices it at zero.
	out, err := pool.Quote(assetA, u(1000))
	require.NoError(t, err)
	assert.True(t, out.IsZero())
}

func TestSwapZeroOutputRejected(t *testing.T) {
	pool, vault, _ := newFundedPool(t)
	// Heavily lopsided reserves: one unit of input prices to zero output.
	_, err := pool.AddLiquidity(lp, u(1_000_000), u(1))
	require.NoError(t, err)

	balanceBefore := vault.BalanceOf(assetA, trader)
	_, err = pool.Swap(trader, assetA, u(1), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSlippageExceeded)

	// No value moved, no state changed.
	assert.Equal(t, balanceBefore, vault.BalanceOf(assetA, trader))
	reserveA, reserveB := pool.Reserves()
	assert.Equal(t, u(1_000_000), reserveA)
	assert.Equal(t, u(1), reserveB)
}

func TestRemoveLiquidity(t *testing.T) {
	pool, vault, log := newFundedPool(t)
	_, err := pool.AddLiquidity(lp, u(100), u(400))
	require.NoError(t, err)

	amountA, amountB, err := pool.RemoveLiquidity(lp, u(50))
	require.NoError(t, err)
	assert.Equal(t, u(25), amountA, "floor(50*100/200)")
	assert.Equal(t, u(100), amountB, "floor(50*400/200)")

	reserveA, reserveB := pool.Reserves()
	assert.Equal(t, u(75), reserveA)
	assert.Equal(t, u(300), reserveB)
	assert.Equal(t, u(150), pool.TotalShares())
	assert.Equal(t, u(75), vault.CustodyOf(assetA))

	evts := log.Snapshot()
	removed := evts[len(evts)-1]
	assert.Equal(t, events.TypeLiquidityRemoved, removed.Type)
	assert.Equal(t, u(50), removed.Data.(events.LiquidityRemoved).BurnedShares)
}

func TestRemoveLiquidityFailures(t *testing.T) {
	pool, _, _ := newFundedPool(t)

	_, _, err := pool.RemoveLiquidity(lp, u(1))
	assert.ErrorIs(t, err, ErrNoLiquidity)

	_, err = pool.AddLiquidity(lp, u(100), u(400))
	require.NoError(t, err)

	_, _, err = pool.RemoveLiquidity(lp, u(201))
	assert.ErrorIs(t, err, shareledger.ErrInsufficientShares)

	_, _, err = pool.RemoveLiquidity(trader, u(1))
	assert.ErrorIs(t, err, shareledger.ErrInsufficientShares)
}

// TestLiquidityRoundTripConservation adds then immediately removes the exact
// minted shares and checks the provider never gets back more than went in.
func TestLiquidityRoundTripConservation(t *testing.T) {
	deposits := []struct{ a, b uint64 }{
		{100, 400},
		{33, 77},
		{123456, 789},
	}
	for _, d := range deposits {
		pool, _, _ := newFundedPool(t)
		// Pre-existing liquidity so the round trip exercises the floored path.
		_, err := pool.AddLiquidity(trader, u(1000), u(1000))
		require.NoError(t, err)

		shares, err := pool.AddLiquidity(lp, u(d.a), u(d.b))
		if errors.Is(err, ErrZeroSharesMinted) {
			continue
		}
		require.NoError(t, err)

		backA, backB, err := pool.RemoveLiquidity(lp, shares)
		require.NoError(t, err)
		assert.True(t, backA.Cmp(u(d.a)) <= 0, "deposit (%d,%d): got back %s of A", d.a, d.b, backA)
		assert.True(t, backB.Cmp(u(d.b)) <= 0, "deposit (%d,%d): got back %s of B", d.a, d.b, backB)
	}
}

// faultyGateway wraps a vault and fails transfers of a chosen asset in a
// chosen direction to exercise the unwinding paths. Compensating transfers
// run in the opposite direction, so they still go through.
type faultyGateway struct {
	*gateway.Vault
	failInAsset  common.Address
	failOutAsset common.Address
}

var errInjected = errors.New("injected gateway fault")

func (g *faultyGateway) TransferIn(asset, from common.Address, amount *uint256.Int) error {
	if asset == g.failInAsset {
		return errInjected
	}
	return g.Vault.TransferIn(asset, from, amount)
}

func (g *faultyGateway) TransferOut(asset, to common.Address, amount *uint256.Int) error {
	if asset == g.failOutAsset {
		return errInjected
	}
	return g.Vault.TransferOut(asset, to, amount)
}

func newFaultyPool(t *testing.T, g *faultyGateway) (*Pool, *events.Log) {
	t.Helper()
	g.Vault = gateway.NewVault()
	for _, asset := range []common.Address{assetA, assetB} {
		require.NoError(t, g.Vault.Credit(asset, lp, u(1_000_000)))
		require.NoError(t, g.Vault.Credit(asset, trader, u(1_000_000)))
	}
	log := events.NewLog(0)
	pool, err := New(Config{
		ID: poolID, AssetA: assetA, AssetB: assetB,
		Gateway: g, Events: log, Logger: testLogger(),
	})
	require.NoError(t, err)
	return pool, log
}

func TestAddLiquidityAbortsWhenSecondTransferFails(t *testing.T) {
	// Pulling side A succeeds, side B fails; the first leg must be unwound.
	g := &faultyGateway{failInAsset: assetB}
	pool, log := newFaultyPool(t, g)

	_, err := pool.AddLiquidity(lp, u(100), u(400))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransfer)

	assert.Equal(t, u(1_000_000), g.BalanceOf(assetA, lp), "first leg refunded")
	assert.Equal(t, u(0), g.CustodyOf(assetA))
	reserveA, reserveB := pool.Reserves()
	assert.True(t, reserveA.IsZero() && reserveB.IsZero())
	assert.Equal(t, u(0), pool.TotalShares())
	assert.Equal(t, uint64(0), log.Len())
}

func TestSwapAbortsWhenPayoutFails(t *testing.T) {
	// The swap's inbound transfer of A succeeds but the payout of B fails,
	// so the inbound leg is refunded via a compensating TransferOut.
	g := &faultyGateway{failOutAsset: assetB}
	pool, log := newFaultyPool(t, g)
	_, err := pool.AddLiquidity(lp, u(110), u(440))
	require.NoError(t, err)
	eventsBefore := log.Len()

	_, err = pool.Swap(trader, assetA, u(10), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransfer)

	assert.Equal(t, u(1_000_000), g.BalanceOf(assetA, trader), "inbound leg refunded")
	reserveA, reserveB := pool.Reserves()
	assert.Equal(t, u(110), reserveA)
	assert.Equal(t, u(440), reserveB)
	assert.Equal(t, eventsBefore, log.Len())
}

func TestRemoveLiquidityAbortsWhenSecondPayoutFails(t *testing.T) {
	// Payout of side A succeeds, side B fails; side A must be pulled back.
	g := &faultyGateway{failOutAsset: assetB}
	pool, log := newFaultyPool(t, g)
	_, err := pool.AddLiquidity(lp, u(100), u(400))
	require.NoError(t, err)
	eventsBefore := log.Len()
	balanceABefore := g.BalanceOf(assetA, lp)

	_, _, err = pool.RemoveLiquidity(lp, u(50))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransfer)

	assert.Equal(t, balanceABefore, g.BalanceOf(assetA, lp))
	assert.Equal(t, u(100), g.CustodyOf(assetA))
	reserveA, reserveB := pool.Reserves()
	assert.Equal(t, u(100), reserveA)
	assert.Equal(t, u(400), reserveB)
	assert.Equal(t, u(200), pool.TotalShares())
	assert.Equal(t, eventsBefore, log.Len())
}
