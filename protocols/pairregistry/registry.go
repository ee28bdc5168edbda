// Package pairregistry creates and indexes constant-product pools, enforcing
// at most one pool per unordered asset pair for the lifetime of the registry.
// Pools are never removed.
package pairregistry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pairpool/pairpool-engine-go/events"
	"github.com/pairpool/pairpool-engine-go/gateway"
	"github.com/pairpool/pairpool-engine-go/protocols/constantproduct"
)

// ErrDuplicatePair is returned when a pool already exists for the unordered pair.
var ErrDuplicatePair = errors.New("pool already exists for pair")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the dependencies shared by every pool the registry creates.
type Config struct {
	Gateway gateway.Gateway
	Events  *events.Log
	Logger  Logger
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
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

// Registry maps unordered asset pairs to their pools and keeps a
// creation-ordered list for enumeration.
type Registry struct {
	mu      sync.RWMutex
	byKey   map[PairKey]*constantproduct.Pool
	ordered []*constantproduct.Pool

	gateway gateway.Gateway
	events  *events.Log
	logger  Logger
}

// New creates an empty registry.
func New(cfg Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Registry{
		byKey:   make(map[PairKey]*constantproduct.Pool),
		gateway: cfg.Gateway,
		events:  cfg.Events,
		logger:  cfg.Logger,
	}, nil
}

// CreatePair creates the pool for the unordered pair {assetA, assetB} along
// with its share ledger, registers it, and emits PairCreated. At most one
// pool can ever exist per pair.
func (r *Registry) CreatePair(assetA, assetB common.Address) (*constantproduct.Pool, error) {
	key, err := NewPairKey(assetA, assetB)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePair, key)
	}

	pool, err := constantproduct.New(constantproduct.Config{
		ID:      key.PoolID(),
		AssetA:  assetA,
		AssetB:  assetB,
		Gateway: r.gateway,
		Events:  r.events,
		Logger:  r.logger,
	})
	if err != nil {
		return nil, err
	}

	r.byKey[key] = pool
	r.ordered = append(r.ordered, pool)

	r.events.Append(events.TypePairCreated, events.PairCreated{
		AssetA: assetA,
		AssetB: assetB,
		Pool:   pool.ID(),
	})
	r.logger.Info("pair created", "assetA", assetA, "assetB", assetB, "pool", pool.ID())
	return pool, nil
}

// GetPair returns the pool for the unordered pair, order-insensitive. The
// second return reports whether a pool exists; identical assets report false.
func (r *Registry) GetPair(assetA, assetB common.Address) (*constantproduct.Pool, bool) {
	key, err := NewPairKey(assetA, assetB)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool, ok := r.byKey[key]
	return pool, ok
}

// ListPairs returns a snapshot of all pools in creation order.
func (r *Registry) ListPairs() []*constantproduct.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pools := make([]*constantproduct.Pool, len(r.ordered))
	copy(pools, r.ordered)
	return pools
}

// Len returns the number of pools ever created.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}
