package spi

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainfoundry/blocknorm/pkg/core"
)

// BlockSource fetches chain data from a node and hands it back already
// normalized. Implementations own all raw wire handling; consumers only ever
// see canonical blocks.
type BlockSource interface {
	// LatestBlock returns the node's current head as a chain pointer.
	LatestBlock(ctx context.Context) (core.BlockPtr, error)

	// BlockByNumber fetches and normalizes the block at the given height.
	BlockByNumber(ctx context.Context, number uint64) (*core.BlockWithCalls, error)

	// BlockByHash fetches and normalizes the block with the given hash.
	BlockByHash(ctx context.Context, hash common.Hash) (*core.BlockWithCalls, error)
}

// Subscription is a live feed handle; Err closes when the feed dies.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// SubscriptionSource is implemented by sources that can push new heads over
// a websocket/IPC connection instead of being polled.
type SubscriptionSource interface {
	SubscribeNewHead(ctx context.Context, ch chan<- core.BlockPtr) (Subscription, error)
}

// StateStore persists normalized blocks and indexing progress, and supports
// rewinding past a reorg.
type StateStore interface {
	// SaveBlock persists a normalized block, upserting on height.
	SaveBlock(ctx context.Context, block *core.BlockWithCalls) error

	// GetLastBlock returns the highest stored block, or nil if none.
	GetLastBlock(ctx context.Context) (*core.BlockWithCalls, error)

	// GetBlockByNumber returns the stored block at a height, or nil.
	GetBlockByNumber(ctx context.Context, number uint64) (*core.BlockWithCalls, error)

	// Rewind deletes all blocks above the given height.
	Rewind(ctx context.Context, height uint64) error
}
