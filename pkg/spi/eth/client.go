package eth

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chainfoundry/blocknorm/pkg/core"
	"github.com/chainfoundry/blocknorm/pkg/spi"
)

// Client implements spi.BlockSource over a node's JSON-RPC interface. It
// fetches the raw wire shapes (full block, receipts, traces) and runs the
// core converters so callers only ever see canonical blocks.
type Client struct {
	rpc *rpc.Client

	// traceCalls controls whether trace_block is queried. Nodes without the
	// parity tracing API get blocks with an unchecked call set.
	traceCalls bool
}

// NewClient connects to the given URL.
func NewClient(rawurl string, traceCalls bool) (*Client, error) {
	c, err := rpc.Dial(rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rawurl, err)
	}
	return &Client{rpc: c, traceCalls: traceCalls}, nil
}

// LatestBlock returns the node's current head pointer.
func (c *Client) LatestBlock(ctx context.Context) (core.BlockPtr, error) {
	var head *core.BlockHeader
	if err := c.rpc.CallContext(ctx, &head, "eth_getBlockByNumber", "latest", false); err != nil {
		return core.BlockPtr{}, err
	}
	if head == nil || head.Hash == nil || head.Number == nil {
		return core.BlockPtr{}, fmt.Errorf("node returned no head block")
	}
	return core.BlockPtr{Hash: *head.Hash, Number: head.Number.ToInt().Uint64()}, nil
}

// BlockByNumber fetches and normalizes the block at the given height.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*core.BlockWithCalls, error) {
	var raw *core.LightBlockV1
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("block %d not found", number)
	}
	return c.normalize(ctx, raw)
}

// BlockByHash fetches and normalizes the block with the given hash.
func (c *Client) BlockByHash(ctx context.Context, hash common.Hash) (*core.BlockWithCalls, error) {
	var raw *core.LightBlockV1
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByHash", hash, true); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("block %x not found", hash)
	}
	return c.normalize(ctx, raw)
}

// normalize runs the raw wire block through the core converters: full block
// to canonical body, full receipts to store receipts, traces to a call set.
func (c *Client) normalize(ctx context.Context, raw *core.LightBlockV1) (*core.BlockWithCalls, error) {
	body := core.LightBlockFromV1(raw)

	receipts, err := c.blockReceipts(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipts for block %s: %w", body.Format(), err)
	}

	ethBlock := core.EthereumBlockFromV1(core.EthereumBlockV1{
		Block:               body,
		TransactionReceipts: receipts,
	})

	calls := core.UncheckedCalls()
	if c.traceCalls {
		traces, err := c.blockTraces(ctx, body.Number())
		if err != nil {
			return nil, fmt.Errorf("failed to fetch traces for block %s: %w", body.Format(), err)
		}
		calls = core.CheckedCalls(core.CallsFromTraces(traces))
	}

	return &core.BlockWithCalls{EthereumBlock: ethBlock, Calls: calls}, nil
}

// blockReceipts fetches all receipts for a block, preferring the batch
// endpoint and falling back to per-transaction lookups on nodes without it.
func (c *Client) blockReceipts(ctx context.Context, raw *core.LightBlockV1) ([]*core.TransactionReceipt, error) {
	if raw.Hash != nil {
		var receipts []*core.TransactionReceipt
		if err := c.rpc.CallContext(ctx, &receipts, "eth_getBlockReceipts", *raw.Hash); err == nil {
			return receipts, nil
		}
	}

	receipts := make([]*core.TransactionReceipt, 0, len(raw.Transactions))
	for i := range raw.Transactions {
		var receipt *core.TransactionReceipt
		hash := raw.Transactions[i].Hash
		if err := c.rpc.CallContext(ctx, &receipt, "eth_getTransactionReceipt", hash); err != nil {
			return nil, err
		}
		if receipt == nil {
			return nil, fmt.Errorf("no receipt for transaction %x", hash)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func (c *Client) blockTraces(ctx context.Context, number uint64) ([]core.Trace, error) {
	var traces []core.Trace
	if err := c.rpc.CallContext(ctx, &traces, "trace_block", hexutil.EncodeUint64(number)); err != nil {
		return nil, err
	}
	return traces, nil
}

// SubscribeNewHead subscribes to new block headers. This only works when
// connected via WS/IPC.
func (c *Client) SubscribeNewHead(ctx context.Context, ch chan<- core.BlockPtr) (spi.Subscription, error) {
	headCh := make(chan *core.BlockHeader)
	sub, err := c.rpc.EthSubscribe(ctx, headCh, "newHeads")
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(ch)
		for {
			select {
			case head := <-headCh:
				if head == nil || head.Hash == nil || head.Number == nil {
					continue
				}
				ch <- core.BlockPtr{Hash: *head.Hash, Number: head.Number.ToInt().Uint64()}
			case <-sub.Err():
				return
			}
		}
	}()

	return sub, nil
}
