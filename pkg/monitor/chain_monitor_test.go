package monitor

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chainfoundry/blocknorm/pkg/core"
)

func testBlock(number uint64, hash, parent common.Hash) *core.BlockWithCalls {
	h := hash
	body := &core.LightBlock{
		BlockHeader: core.BlockHeader{
			Hash:       &h,
			ParentHash: parent,
			Number:     (*hexutil.Big)(new(big.Int).SetUint64(number)),
			Timestamp:  (*hexutil.Big)(big.NewInt(1_700_000_000)),
		},
	}
	return &core.BlockWithCalls{
		EthereumBlock: core.EthereumBlock{Block: body},
		Calls:         core.UncheckedCalls(),
	}
}

type mockStore struct {
	blocks map[uint64]*core.BlockWithCalls
}

func (m *mockStore) GetLastBlock(ctx context.Context) (*core.BlockWithCalls, error) {
	var last *core.BlockWithCalls
	for _, b := range m.blocks {
		if last == nil || b.EthereumBlock.Ptr().Number > last.EthereumBlock.Ptr().Number {
			last = b
		}
	}
	return last, nil
}
func (m *mockStore) SaveBlock(ctx context.Context, b *core.BlockWithCalls) error {
	m.blocks[b.EthereumBlock.Ptr().Number] = b
	return nil
}
func (m *mockStore) GetBlockByNumber(ctx context.Context, n uint64) (*core.BlockWithCalls, error) {
	return m.blocks[n], nil
}
func (m *mockStore) Rewind(ctx context.Context, to uint64) error {
	return nil
}

type mockSource struct{}

func (m *mockSource) LatestBlock(ctx context.Context) (core.BlockPtr, error) {
	return core.BlockPtr{}, nil
}
func (m *mockSource) BlockByNumber(ctx context.Context, n uint64) (*core.BlockWithCalls, error) {
	return nil, nil
}
func (m *mockSource) BlockByHash(ctx context.Context, h common.Hash) (*core.BlockWithCalls, error) {
	return nil, nil
}

func TestChainMonitor_CheckConsistency(t *testing.T) {
	store := &mockStore{blocks: make(map[uint64]*core.BlockWithCalls)}
	mon := NewChainMonitor(&mockSource{}, store, 10)

	hash0 := common.Hash{0x00}
	hash1 := common.Hash{0x01}
	hash2 := common.Hash{0x02}

	b1 := testBlock(1, hash1, hash0)
	mon.AddBlock(b1)

	// Consistent successor
	b2 := testBlock(2, hash2, hash1)
	consistent, err := mon.CheckConsistency(b2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !consistent {
		t.Error("expected consistent block")
	}

	// Reorg (inconsistent parent)
	b2Fork := testBlock(2, common.Hash{0x22}, common.Hash{0x11})
	consistent, err = mon.CheckConsistency(b2Fork)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consistent {
		t.Error("expected inconsistent block")
	}
}

func TestChainMonitor_GapDetection(t *testing.T) {
	store := &mockStore{blocks: make(map[uint64]*core.BlockWithCalls)}
	mon := NewChainMonitor(&mockSource{}, store, 10)

	mon.AddBlock(testBlock(1, common.Hash{0x01}, common.Hash{0x00}))

	_, err := mon.CheckConsistency(testBlock(5, common.Hash{0x05}, common.Hash{0x04}))
	if err == nil {
		t.Error("expected gap error")
	}
}
