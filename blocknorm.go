package blocknorm

import (
	"context"
	"log/slog"
	"time"

	"github.com/chainfoundry/blocknorm/pkg/config"
	"github.com/chainfoundry/blocknorm/pkg/core"
	"github.com/chainfoundry/blocknorm/pkg/metrics"
	"github.com/chainfoundry/blocknorm/pkg/monitor"
	"github.com/chainfoundry/blocknorm/pkg/spi"
)

// Indexer is the main entry point: it polls a source for blocks, keeps the
// local chain view consistent, and dispatches log and call triggers against
// the normalized block.
type Indexer struct {
	source  spi.BlockSource
	store   spi.StateStore
	monitor *monitor.InMemoryChainMonitor

	logHandlers  map[string]core.LogHandler
	callHandlers map[string]core.CallHandler
	reorgHandler core.ReorgHandler

	startBlock      uint64
	pollingInterval time.Duration
}

// New creates a new Indexer instance.
func New(cfg *config.Config, source spi.BlockSource, store spi.StateStore) *Indexer {
	return &Indexer{
		source:          source,
		store:           store,
		monitor:         monitor.NewChainMonitor(source, store, cfg.SafeWindowSize),
		logHandlers:     make(map[string]core.LogHandler),
		callHandlers:    make(map[string]core.CallHandler),
		startBlock:      cfg.StartBlock,
		pollingInterval: cfg.PollingInterval,
	}
}

// OnLog registers a handler invoked for every log in every processed block.
func (i *Indexer) OnLog(name string, handler core.LogHandler) {
	i.logHandlers[name] = handler
}

// OnCall registers a handler invoked for every extracted call whose
// transaction succeeded.
func (i *Indexer) OnCall(name string, handler core.CallHandler) {
	i.callHandlers[name] = handler
}

// OnReorg registers a handler for reorg events.
func (i *Indexer) OnReorg(handler core.ReorgHandler) {
	i.reorgHandler = handler
}

// Run starts the indexing process.
func (i *Indexer) Run(ctx context.Context) error {
	slog.Info("Starting blocknorm indexer")

	lastBlock, err := i.store.GetLastBlock(ctx)
	if err != nil {
		return err
	}
	if lastBlock != nil {
		i.monitor.AddBlock(lastBlock)
		slog.Info("Resuming from stored head", "block", lastBlock.EthereumBlock.Block.Format())
	}

	ticker := time.NewTicker(i.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := i.processNextBlock(ctx); err != nil {
				slog.Error("Error processing block", "error", err)
			}
		}
	}
}

func (i *Indexer) processNextBlock(ctx context.Context) error {
	head, err := i.source.LatestBlock(ctx)
	if err != nil {
		return err
	}
	metrics.ChainHead.Set(float64(head.Number))

	nextHeight := i.startBlock
	lastProcessed, err := i.store.GetLastBlock(ctx)
	if err != nil {
		return err
	}
	if lastProcessed != nil {
		nextHeight = lastProcessed.EthereumBlock.Ptr().Number + 1
	}

	if nextHeight > head.Number {
		return nil // Up to date
	}

	nextBlock, err := i.source.BlockByNumber(ctx, nextHeight)
	if err != nil {
		return err
	}

	consistent, err := i.monitor.CheckConsistency(nextBlock)
	if err != nil {
		return err
	}

	if !consistent {
		return i.handleReorg(ctx, nextBlock)
	}

	if err := i.dispatchBlock(ctx, nextBlock, false); err != nil {
		return err
	}

	i.monitor.AddBlock(nextBlock)
	if err := i.store.SaveBlock(ctx, nextBlock); err != nil {
		return err
	}

	ptr := nextBlock.EthereumBlock.Ptr()
	metrics.CurrentHeight.Set(float64(ptr.Number))
	metrics.ProcessingLag.Set(float64(head.Number - ptr.Number))
	return nil
}

func (i *Indexer) handleReorg(ctx context.Context, newBlock *core.BlockWithCalls) error {
	slog.Warn("Reorg detected", "block", newBlock.EthereumBlock.Block.Format())
	metrics.ReorgCount.Inc()

	forkPoint, oldChain, newChain, err := i.monitor.ResolveReorg(ctx, newBlock)
	if err != nil {
		return err
	}

	if i.reorgHandler != nil {
		if err := i.reorgHandler(ctx, forkPoint, oldChain, newChain); err != nil {
			return err
		}
	}

	if err := i.store.Rewind(ctx, forkPoint.EthereumBlock.Ptr().Number); err != nil {
		return err
	}

	for _, b := range newChain {
		if err := i.dispatchBlock(ctx, b, true); err != nil {
			return err
		}
		i.monitor.AddBlock(b)
		if err := i.store.SaveBlock(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// dispatchBlock runs all registered handlers against one normalized block.
func (i *Indexer) dispatchBlock(ctx context.Context, block *core.BlockWithCalls, isReorg bool) error {
	body := block.EthereumBlock.Block

	for _, receipt := range block.EthereumBlock.TransactionReceipts {
		for li := range receipt.Logs {
			log := &receipt.Logs[li]
			tx := body.TransactionForLog(log)
			for _, handler := range i.logHandlers {
				logCtx := &core.LogContext{
					Context:     ctx,
					Block:       block,
					Log:         log,
					Transaction: tx,
					IsReorg:     isReorg,
				}
				if err := handler(logCtx); err != nil {
					return err
				}
			}
			metrics.TriggersDispatched.WithLabelValues("log").Inc()
		}
	}

	calls, checked := block.Calls.Calls()
	if !checked {
		// The block was never checked for calls (tracing disabled); this is
		// distinct from "checked and none found" and must not dispatch.
		slog.Debug("Block not checked for calls, skipping call triggers",
			"block", body.Format())
		return nil
	}

	metrics.CallsExtracted.Add(float64(len(calls)))

	for ci := range calls {
		call := &calls[ci]

		succeeded, err := block.TransactionForCallSucceeded(call)
		if err != nil {
			// Unattributable calls (no transaction, or no receipt) cannot
			// trigger processing.
			slog.Warn("Skipping call that cannot be attributed",
				"block", body.Format(), "error", err)
			continue
		}
		if !succeeded {
			continue
		}

		tx := body.TransactionForCall(call)
		for _, handler := range i.callHandlers {
			callCtx := &core.CallContext{
				Context:     ctx,
				Block:       block,
				Call:        call,
				Transaction: tx,
				IsReorg:     isReorg,
			}
			if err := handler(callCtx); err != nil {
				return err
			}
		}
		metrics.TriggersDispatched.WithLabelValues("call").Inc()
	}

	return nil
}
