package spi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chainfoundry/blocknorm/pkg/core"
)

// Prefetcher fetches and normalizes blocks in the background to improve
// throughput.
type Prefetcher struct {
	source BlockSource
	buffer chan *core.BlockWithCalls
	errCh  chan error

	// control channels
	stopCh  chan struct{}
	resetCh chan uint64

	// state
	currentHeight uint64
	active        bool
	mu            sync.Mutex
	wg            sync.WaitGroup
}

// NewPrefetcher creates a new Prefetcher.
func NewPrefetcher(source BlockSource, bufferSize int) *Prefetcher {
	return &Prefetcher{
		source:  source,
		buffer:  make(chan *core.BlockWithCalls, bufferSize),
		errCh:   make(chan error, 1),
		stopCh:  make(chan struct{}),
		resetCh: make(chan uint64),
	}
}

// Start begins the prefetching loop.
func (p *Prefetcher) Start(ctx context.Context, startHeight uint64) {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return
	}
	p.active = true
	p.currentHeight = startHeight
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx)
}

func (p *Prefetcher) loop(ctx context.Context) {
	defer p.wg.Done()

	// Use head events when the source supports subscriptions, unwrapping a
	// retry proxy if needed.
	var sub Subscription
	var headCh chan core.BlockPtr

	var subSource SubscriptionSource
	if s, ok := p.source.(SubscriptionSource); ok {
		subSource = s
	} else if rs, ok := p.source.(*RetryingBlockSource); ok {
		if s, ok := rs.Inner().(SubscriptionSource); ok {
			subSource = s
		}
	}

	if subSource != nil {
		headCh = make(chan core.BlockPtr, 1) // Buffered to avoid blocking sender
		s, err := subSource.SubscribeNewHead(ctx, headCh)
		if err == nil {
			sub = s
			defer sub.Unsubscribe()
		}
	}

	pollInterval := 2 * time.Second       // Normal polling interval
	keepAliveInterval := 10 * time.Second // Keep-alive in case a head event is missed

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case height := <-p.resetCh:
			p.drainBuffer()
			p.currentHeight = height
			continue
		default:
			// Fall through to the fetch attempt.
		}

		err := p.fetchNext(ctx)
		if err == nil {
			// Block found and buffered; immediately try the next one
			// (catch-up mode).
			continue
		}

		// Block not ready or fetch failed; wait according to mode.
		if sub != nil {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case height := <-p.resetCh:
				p.drainBuffer()
				p.currentHeight = height
				continue
			case <-headCh:
				continue
			case <-time.After(keepAliveInterval):
				continue
			case <-sub.Err():
				// Subscription died; fall back to a polling delay before
				// retrying the fetch.
				select {
				case <-time.After(pollInterval):
				case <-ctx.Done():
					return
				}
				continue
			}
		} else {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case height := <-p.resetCh:
				p.drainBuffer()
				p.currentHeight = height
				continue
			case <-time.After(pollInterval):
				continue
			}
		}
	}
}

func (p *Prefetcher) fetchNext(ctx context.Context) error {
	block, err := p.source.BlockByNumber(ctx, p.currentHeight)
	if err != nil {
		return err
	}

	select {
	case p.buffer <- block:
		p.currentHeight++
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return fmt.Errorf("stopped")
	case height := <-p.resetCh:
		p.drainBuffer()
		p.currentHeight = height
		return nil
	}
}

func (p *Prefetcher) drainBuffer() {
L:
	for {
		select {
		case <-p.buffer:
		default:
			break L
		}
	}
E:
	for {
		select {
		case <-p.errCh:
		default:
			break E
		}
	}
}

// Next returns the next normalized block or error.
func (p *Prefetcher) Next(ctx context.Context) (*core.BlockWithCalls, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-p.errCh:
		return nil, err
	case block := <-p.buffer:
		return block, nil
	}
}

// Reset clears the buffer and restarts fetching from the given height.
func (p *Prefetcher) Reset(height uint64) {
	// Blocking send to resetCh ensures the loop sees it.
	p.resetCh <- height
}

// Stop stops the prefetcher.
func (p *Prefetcher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	close(p.stopCh)
	p.wg.Wait()
	p.active = false
}
