package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chainfoundry/blocknorm"
	"github.com/chainfoundry/blocknorm/pkg/config"
	"github.com/chainfoundry/blocknorm/pkg/core"
)

// MockSource implements spi.BlockSource for demonstration
type MockSource struct {
	blocks []*core.BlockWithCalls
}

func (m *MockSource) LatestBlock(ctx context.Context) (core.BlockPtr, error) {
	if len(m.blocks) == 0 {
		return core.BlockPtr{}, nil
	}
	return m.blocks[len(m.blocks)-1].EthereumBlock.Ptr(), nil
}

func (m *MockSource) BlockByNumber(ctx context.Context, number uint64) (*core.BlockWithCalls, error) {
	for _, b := range m.blocks {
		if b.EthereumBlock.Ptr().Number == number {
			return b, nil
		}
	}
	return nil, fmt.Errorf("block not found")
}

func (m *MockSource) BlockByHash(ctx context.Context, hash common.Hash) (*core.BlockWithCalls, error) {
	for _, b := range m.blocks {
		if b.EthereumBlock.Ptr().Hash == hash {
			return b, nil
		}
	}
	return nil, fmt.Errorf("block not found")
}

// MockStore implements spi.StateStore
type MockStore struct {
	lastBlock *core.BlockWithCalls
}

func (m *MockStore) SaveBlock(ctx context.Context, block *core.BlockWithCalls) error {
	m.lastBlock = block
	fmt.Printf("[Store] Saved block %s\n", block.EthereumBlock.Block.Format())
	return nil
}

func (m *MockStore) GetLastBlock(ctx context.Context) (*core.BlockWithCalls, error) {
	return m.lastBlock, nil
}

func (m *MockStore) GetBlockByNumber(ctx context.Context, number uint64) (*core.BlockWithCalls, error) {
	return nil, nil
}

func (m *MockStore) Rewind(ctx context.Context, height uint64) error {
	fmt.Printf("[Store] Rewinding to block %d\n", height)
	return nil
}

// demoBlock fabricates a normalized block with one transaction, one log and
// one extracted call.
func demoBlock(number int64, hash, parentHash common.Hash) *core.BlockWithCalls {
	txHash := common.Hash{byte(number), 0xff}
	from := common.Address{0x01}
	to := common.Address{0x02}
	status := core.ReceiptStatusSuccessful
	pos := uint64(0)

	body := core.LightBlockFromV1(&core.LightBlockV1{
		BlockHeader: core.BlockHeader{
			Hash:       &hash,
			ParentHash: parentHash,
			Number:     (*hexutil.Big)(big.NewInt(number)),
			Timestamp:  (*hexutil.Big)(big.NewInt(1_700_000_000 + number)),
		},
		Transactions: []core.Transaction{{
			Hash:  txHash,
			From:  &from,
			To:    &to,
			Value: (*hexutil.Big)(big.NewInt(1)),
			Input: hexutil.Bytes{0xa9, 0x05, 0x9c, 0xbb},
		}},
	})

	receipts := []*core.TransactionReceipt{{
		TransactionHash: txHash,
		Status:          &status,
		Logs: []core.Log{{
			Address:         to,
			TransactionHash: &txHash,
		}},
	}}

	trace := core.Trace{
		Action: core.TraceAction{
			From:  from,
			To:    to,
			Input: hexutil.Bytes{0xa9, 0x05, 0x9c, 0xbb},
		},
		BlockHash:           hash,
		BlockNumber:         uint64(number),
		Result:              &core.TraceResult{GasUsed: (*hexutil.Big)(big.NewInt(21_000))},
		TransactionHash:     &txHash,
		TransactionPosition: &pos,
		Type:                core.TraceTypeCall,
	}

	return &core.BlockWithCalls{
		EthereumBlock: core.EthereumBlockFromV1(core.EthereumBlockV1{
			Block:               body,
			TransactionReceipts: receipts,
		}),
		Calls: core.CheckedCalls(core.CallsFromTraces([]core.Trace{trace})),
	}
}

func main() {
	// 1. Setup Mocks
	source := &MockSource{
		blocks: []*core.BlockWithCalls{
			demoBlock(1, common.Hash{0x01}, common.Hash{0x00}),
			demoBlock(2, common.Hash{0x02}, common.Hash{0x01}),
			demoBlock(3, common.Hash{0x03}, common.Hash{0x02}),
		},
	}
	store := &MockStore{}

	cfg := &config.Config{
		StartBlock:      1,
		PollingInterval: 500 * time.Millisecond,
		SafeWindowSize:  16,
	}

	// 2. Initialize the indexer
	indexer := blocknorm.New(cfg, source, store)

	// 3. Register trigger handlers
	indexer.OnLog("Transfer", func(ctx *core.LogContext) error {
		fmt.Printf("[Log] block %s, emitted by %s\n",
			ctx.Block.EthereumBlock.Block.Format(), ctx.Log.Address.Hex())
		return nil
	})

	indexer.OnCall("transfer(address,uint256)", func(ctx *core.CallContext) error {
		fmt.Printf("[Call] block %s, %s -> %s\n",
			ctx.Block.EthereumBlock.Block.Format(), ctx.Call.From.Hex(), ctx.Call.To.Hex())
		return nil
	})

	// 4. Register a reorg handler
	indexer.OnReorg(func(ctx context.Context, forkPoint *core.BlockWithCalls, oldChain []*core.BlockWithCalls, newChain []*core.BlockWithCalls) error {
		fmt.Printf("[Reorg] fork at %s. Dropping %d blocks, adding %d blocks.\n",
			forkPoint.EthereumBlock.Block.Format(), len(oldChain), len(newChain))
		return nil
	})

	// 5. Run
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := indexer.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
