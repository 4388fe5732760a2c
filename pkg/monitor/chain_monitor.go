package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainfoundry/blocknorm/pkg/core"
	"github.com/chainfoundry/blocknorm/pkg/spi"
)

// DefaultSafeWindowSize is how many blocks are kept in memory to handle
// reorgs when no size is configured.
const DefaultSafeWindowSize = 128

// InMemoryChainMonitor tracks recent normalized blocks and detects chain
// reorganizations via their parent pointers.
type InMemoryChainMonitor struct {
	source spi.BlockSource
	store  spi.StateStore

	// blocks is the recent-block window; index 0 is the oldest.
	blocks []*core.BlockWithCalls
	mu     sync.RWMutex

	safeWindowSize uint64
}

func NewChainMonitor(source spi.BlockSource, store spi.StateStore, safeWindowSize uint64) *InMemoryChainMonitor {
	if safeWindowSize == 0 {
		safeWindowSize = DefaultSafeWindowSize
	}
	return &InMemoryChainMonitor{
		source:         source,
		store:          store,
		blocks:         make([]*core.BlockWithCalls, 0, safeWindowSize),
		safeWindowSize: safeWindowSize,
	}
}

// AddBlock adds a verified block to the monitor's safety window.
func (m *InMemoryChainMonitor) AddBlock(block *core.BlockWithCalls) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uint64(len(m.blocks)) >= m.safeWindowSize {
		m.blocks = m.blocks[1:]
	}
	m.blocks = append(m.blocks, block)
}

// CheckConsistency verifies that the new block connects to the local
// history: its parent pointer must match the last seen block.
func (m *InMemoryChainMonitor) CheckConsistency(newBlock *core.BlockWithCalls) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.blocks) == 0 {
		return true, nil // No history, assume consistent (bootstrapping)
	}

	lastPtr := m.blocks[len(m.blocks)-1].EthereumBlock.Ptr()
	newPtr := newBlock.EthereumBlock.Ptr()

	if newPtr.Number == lastPtr.Number+1 {
		parent := newBlock.EthereumBlock.Block.ParentPtr()
		return parent != nil && parent.Hash == lastPtr.Hash, nil
	}

	// A block at or below the local head is either a re-emit or a deep
	// reorg; both need resolution.
	if newPtr.Number <= lastPtr.Number {
		return false, nil
	}

	return false, fmt.Errorf("gap detected: last %d, new %d", lastPtr.Number, newPtr.Number)
}

// ResolveReorg finds the common ancestor of the local history and the chain
// the new head belongs to, and returns the fork point together with the
// abandoned and adopted chain segments.
func (m *InMemoryChainMonitor) ResolveReorg(ctx context.Context, newHead *core.BlockWithCalls) (*core.BlockWithCalls, []*core.BlockWithCalls, []*core.BlockWithCalls, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var forkPoint *core.BlockWithCalls
	newChain := []*core.BlockWithCalls{newHead}
	current := newHead

	// Backtrack the new chain until a parent matches local history (memory
	// or store).
	for {
		parentPtr := current.EthereumBlock.Block.ParentPtr()
		if parentPtr == nil {
			return nil, nil, nil, fmt.Errorf("reorg backtrack reached genesis")
		}

		if parent, found := m.findInHistory(parentPtr.Hash); found {
			forkPoint = parent
			break
		}

		storedParent, err := m.store.GetBlockByNumber(ctx, parentPtr.Number)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to fetch parent from store at %d: %w", parentPtr.Number, err)
		}
		if storedParent != nil && storedParent.EthereumBlock.Ptr().Hash == parentPtr.Hash {
			forkPoint = storedParent
			break
		}

		// Still on a side chain relative to local state; fetch the actual
		// parent from the source and keep walking.
		parentBlock, err := m.source.BlockByHash(ctx, parentPtr.Hash)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to fetch parent %s: %w", parentPtr, err)
		}

		newChain = append([]*core.BlockWithCalls{parentBlock}, newChain...)
		current = parentBlock

		if uint64(len(newChain)) > m.safeWindowSize {
			return nil, nil, nil, fmt.Errorf("reorg too deep, exceeded safety window")
		}
	}

	// Collect the abandoned blocks above the fork point.
	oldChain := []*core.BlockWithCalls{}
	forkPtr := forkPoint.EthereumBlock.Ptr()

	forkIndex := -1
	for i, b := range m.blocks {
		if b.EthereumBlock.Ptr().Hash == forkPtr.Hash {
			forkIndex = i
			break
		}
	}

	if forkIndex != -1 {
		// Fork point is in memory.
		if forkIndex+1 < len(m.blocks) {
			oldChain = m.blocks[forkIndex+1:]
			m.blocks = m.blocks[:forkIndex+1]
		}
	} else {
		// Fork point is deep in the store, not in the memory window. This
		// happens after a restart when a reorg is confirmed in history.
		lastStored, err := m.store.GetLastBlock(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to get last stored block: %w", err)
		}

		if lastStored != nil {
			lastNumber := lastStored.EthereumBlock.Ptr().Number
			for i := forkPtr.Number + 1; i <= lastNumber; i++ {
				b, err := m.store.GetBlockByNumber(ctx, i)
				if err != nil {
					return nil, nil, nil, fmt.Errorf("failed to fetch reverted block %d: %w", i, err)
				}
				if b != nil {
					oldChain = append(oldChain, b)
				}
			}
		}

		// Memory is either empty or wrong; reset it to the fork point.
		m.blocks = []*core.BlockWithCalls{forkPoint}
	}

	return forkPoint, oldChain, newChain, nil
}

func (m *InMemoryChainMonitor) findInHistory(hash common.Hash) (*core.BlockWithCalls, bool) {
	for i := len(m.blocks) - 1; i >= 0; i-- {
		if ptr := m.blocks[i].EthereumBlock.Ptr(); ptr.Hash == hash {
			return m.blocks[i], true
		}
	}
	return nil, false
}
