package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PoolView is a safe, structured snapshot of one pool for external consumers.
type PoolView struct {
	Pool        common.Address `json:"pool"`
	AssetA      common.Address `json:"assetA"`
	AssetB      common.Address `json:"assetB"`
	ReserveA    *uint256.Int   `json:"reserveA"`
	ReserveB    *uint256.Int   `json:"reserveB"`
	TotalShares *uint256.Int   `json:"totalShares"`
}

// State is a point-in-time snapshot of the whole engine: every pool in
// creation order plus the event-log cursor at the moment of the snapshot.
type State struct {
	Timestamp  int64      `json:"timestamp"` // Unix nanoseconds.
	EventCount uint64     `json:"eventCount"`
	Pools      []PoolView `json:"pools"`
}
