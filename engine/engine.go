// Package engine wires the pair registry, gateway, event log, and metrics
// into one instrumented façade. Every public operation is atomic with respect
// to the pool or registry it touches; serialization is per pool, so traffic
// on independent pools does not contend.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pairpool/pairpool-engine-go/events"
	"github.com/pairpool/pairpool-engine-go/gateway"
	"github.com/pairpool/pairpool-engine-go/protocols/constantproduct"
	"github.com/pairpool/pairpool-engine-go/protocols/pairregistry"
)

// ErrUnknownPair is returned when an operation names a pair with no pool.
var ErrUnknownPair = errors.New("no pool exists for pair")

// Config holds the dependencies for an Engine.
type Config struct {
	Gateway gateway.Gateway
	Logger  Logger
	// Registry receives the engine's metrics.
	Registry prometheus.Registerer
	// EventBufferSize is the per-subscriber buffer of the event log;
	// zero selects the events package default.
	EventBufferSize uint
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Gateway == nil {
		return errors.New("config: Gateway is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// Engine is the top-level pool engine.
type Engine struct {
	registry *pairregistry.Registry
	gateway  gateway.Gateway
	events   *events.Log
	metrics  *Metrics
	logger   Logger
}

// New constructs an engine from a configuration, returning an error if the
// configuration is invalid.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log := events.NewLog(cfg.EventBufferSize)
	registry, err := pairregistry.New(pairregistry.Config{
		Gateway: cfg.Gateway,
		Events:  log,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		registry: registry,
		gateway:  cfg.Gateway,
		events:   log,
		metrics:  NewMetrics(cfg.Registry),
		logger:   cfg.Logger,
	}, nil
}

// Events exposes the engine's append-only event log for observers.
func (e *Engine) Events() *events.Log {
	return e.events
}

// CreatePair creates the pool for the unordered pair {assetA, assetB}.
func (e *Engine) CreatePair(assetA, assetB common.Address) (pool *constantproduct.Pool, err error) {
	defer e.instrument("createPair", time.Now(), &err)
	pool, err = e.registry.CreatePair(assetA, assetB)
	if err == nil {
		e.metrics.pools.Set(float64(e.registry.Len()))
	}
	return pool, err
}

// GetPair returns the pool for the unordered pair, if one exists.
func (e *Engine) GetPair(assetA, assetB common.Address) (*constantproduct.Pool, bool) {
	return e.registry.GetPair(assetA, assetB)
}

// ListPairs returns all pools in creation order.
func (e *Engine) ListPairs() []*constantproduct.Pool {
	return e.registry.ListPairs()
}

// Quote prices amountIn of fromAsset against the pool for {fromAsset, toAsset}.
func (e *Engine) Quote(fromAsset, toAsset common.Address, amountIn *uint256.Int) (out *uint256.Int, err error) {
	defer e.instrument("quote", time.Now(), &err)
	pool, err := e.pool(fromAsset, toAsset)
	if err != nil {
		return nil, err
	}
	return pool.Quote(fromAsset, amountIn)
}

// AddLiquidity deposits into the pool for {assetA, assetB}. The amounts are
// matched to the pool's pair orientation, so callers may pass the assets in
// either order.
func (e *Engine) AddLiquidity(provider, assetA, assetB common.Address, amountA, amountB *uint256.Int) (shares *uint256.Int, err error) {
	defer e.instrument("addLiquidity", time.Now(), &err)
	pool, err := e.pool(assetA, assetB)
	if err != nil {
		return nil, err
	}
	poolA, _ := pool.Assets()
	if assetA != poolA {
		amountA, amountB = amountB, amountA
	}
	return pool.AddLiquidity(provider, amountA, amountB)
}

// RemoveLiquidity burns shares against the pool for {assetA, assetB}. The
// returned amounts follow the pool's pair orientation.
func (e *Engine) RemoveLiquidity(provider, assetA, assetB common.Address, shareAmount *uint256.Int) (amountA, amountB *uint256.Int, err error) {
	defer e.instrument("removeLiquidity", time.Now(), &err)
	pool, err := e.pool(assetA, assetB)
	if err != nil {
		return nil, nil, err
	}
	return pool.RemoveLiquidity(provider, shareAmount)
}

// Swap trades amountIn of fromAsset for toAsset on their pool.
func (e *Engine) Swap(trader, fromAsset, toAsset common.Address, amountIn, minAmountOut *uint256.Int) (out *uint256.Int, err error) {
	defer e.instrument("swap", time.Now(), &err)
	pool, err := e.pool(fromAsset, toAsset)
	if err != nil {
		return nil, err
	}
	return pool.Swap(trader, fromAsset, amountIn, minAmountOut)
}

// State assembles a snapshot view of every pool. Each pool is read under its
// own lock; the snapshot as a whole is not a cross-pool transaction.
func (e *Engine) State() *State {
	pools := e.registry.ListPairs()
	views := make([]PoolView, 0, len(pools))
	for _, p := range pools {
		assetA, assetB := p.Assets()
		reserveA, reserveB := p.Reserves()
		views = append(views, PoolView{
			Pool:        p.ID(),
			AssetA:      assetA,
			AssetB:      assetB,
			ReserveA:    reserveA,
			ReserveB:    reserveB,
			TotalShares: p.TotalShares(),
		})
	}
	return &State{
		Timestamp:  time.Now().UnixNano(),
		EventCount: e.events.Len(),
		Pools:      views,
	}
}

func (e *Engine) pool(assetA, assetB common.Address) (*constantproduct.Pool, error) {
	pool, ok := e.registry.GetPair(assetA, assetB)
	if !ok {
		return nil, fmt.Errorf("%w: %s / %s", ErrUnknownPair, assetA, assetB)
	}
	return pool, nil
}

// instrument records the outcome and duration of one public operation.
func (e *Engine) instrument(op string, start time.Time, err *error) {
	result := "success"
	if *err != nil {
		result = "failure"
	}
	e.metrics.operationsTotal.WithLabelValues(op, result).Inc()
	e.metrics.operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
