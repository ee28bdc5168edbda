// Package events models the engine's audit trail: an ordered, append-only log
// of committed state transitions that observers may poll or subscribe to.
// Entries are appended only after the corresponding mutation has committed,
// never before.
package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Type discriminates the payload carried by an Event.
type Type string

const (
	TypePairCreated      Type = "PairCreated"
	TypeLiquidityAdded   Type = "LiquidityAdded"
	TypeLiquidityRemoved Type = "LiquidityRemoved"
	TypeSwap             Type = "Swap"
)

// Event is the envelope stored in the log. Sequence numbers start at 1 and
// are strictly increasing with no gaps.
type Event struct {
	Sequence  uint64 `json:"sequence"`
	Type      Type   `json:"type"`
	EmittedAt int64  `json:"emittedAt"` // Unix nanoseconds at commit time.
	Data      any    `json:"data"`
}

// PairCreated records a new pool registered for an asset pair.
type PairCreated struct {
	AssetA common.Address `json:"assetA"`
	AssetB common.Address `json:"assetB"`
	Pool   common.Address `json:"pool"`
}

// LiquidityAdded records a deposit and the shares it minted.
type LiquidityAdded struct {
	Pool         common.Address `json:"pool"`
	Provider     common.Address `json:"provider"`
	AmountA      *uint256.Int   `json:"amountA"`
	AmountB      *uint256.Int   `json:"amountB"`
	MintedShares *uint256.Int   `json:"mintedShares"`
}

// LiquidityRemoved records a share burn and the reserve payout.
type LiquidityRemoved struct {
	Pool         common.Address `json:"pool"`
	Provider     common.Address `json:"provider"`
	AmountA      *uint256.Int   `json:"amountA"`
	AmountB      *uint256.Int   `json:"amountB"`
	BurnedShares *uint256.Int   `json:"burnedShares"`
}

// Swap records an executed trade.
type Swap struct {
	Pool      common.Address `json:"pool"`
	Trader    common.Address `json:"trader"`
	FromAsset common.Address `json:"fromAsset"`
	ToAsset   common.Address `json:"toAsset"`
	AmountIn  *uint256.Int   `json:"amountIn"`
	AmountOut *uint256.Int   `json:"amountOut"`
}
