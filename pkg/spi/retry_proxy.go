package spi

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainfoundry/blocknorm/pkg/core"
	"github.com/chainfoundry/blocknorm/pkg/util"
)

// RetryingBlockSource wraps a BlockSource with retry logic.
type RetryingBlockSource struct {
	inner   BlockSource
	backoff *util.Backoff
}

// NewRetryingBlockSource creates a new RetryingBlockSource.
func NewRetryingBlockSource(inner BlockSource, backoff *util.Backoff) *RetryingBlockSource {
	return &RetryingBlockSource{
		inner:   inner,
		backoff: backoff,
	}
}

// Inner returns the underlying BlockSource.
func (s *RetryingBlockSource) Inner() BlockSource {
	return s.inner
}

// LatestBlock returns the node's head pointer with retry.
func (s *RetryingBlockSource) LatestBlock(ctx context.Context) (core.BlockPtr, error) {
	var ptr core.BlockPtr

	err := s.backoff.Retry(ctx, func() error {
		var err error
		ptr, err = s.inner.LatestBlock(ctx)
		return err
	})

	return ptr, err
}

// BlockByNumber fetches a normalized block by height with retry.
func (s *RetryingBlockSource) BlockByNumber(ctx context.Context, number uint64) (*core.BlockWithCalls, error) {
	var block *core.BlockWithCalls

	err := s.backoff.Retry(ctx, func() error {
		var err error
		block, err = s.inner.BlockByNumber(ctx, number)
		return err
	})

	return block, err
}

// BlockByHash fetches a normalized block by hash with retry.
func (s *RetryingBlockSource) BlockByHash(ctx context.Context, hash common.Hash) (*core.BlockWithCalls, error) {
	var block *core.BlockWithCalls

	err := s.backoff.Retry(ctx, func() error {
		var err error
		block, err = s.inner.BlockByHash(ctx, hash)
		return err
	})

	return block, err
}
