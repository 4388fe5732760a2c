package core

import "context"

// LogContext is handed to log handlers, one per emitted log.
type LogContext struct {
	Context context.Context
	Block   *BlockWithCalls
	Log     *Log
	// Transaction is nil when the log is not tied to any transaction in the
	// block.
	Transaction *LightTransaction
	// IsReorg is true when the event is replayed while resolving a reorg.
	IsReorg bool
}

// CallContext is handed to call handlers, one per extracted call whose
// enclosing transaction succeeded.
type CallContext struct {
	Context     context.Context
	Block       *BlockWithCalls
	Call        *EthereumCall
	Transaction *LightTransaction
	IsReorg     bool
}

// LogHandler is the user-defined callback for log triggers.
type LogHandler func(ctx *LogContext) error

// CallHandler is the user-defined callback for call triggers.
type CallHandler func(ctx *CallContext) error

// ReorgHandler is called when a chain reorganization is detected.
type ReorgHandler func(ctx context.Context, forkPoint *BlockWithCalls, oldChain []*BlockWithCalls, newChain []*BlockWithCalls) error
