package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/chainfoundry/blocknorm/pkg/core"
	"github.com/chainfoundry/blocknorm/pkg/spi"
)

// storedBlock is the serialized form; the checked flag is kept outside the
// call slice so an unchecked block never round-trips into a checked-empty
// one.
type storedBlock struct {
	Block        core.EthereumBlock  `json:"block"`
	CallsChecked bool                `json:"callsChecked"`
	Calls        []core.EthereumCall `json:"calls,omitempty"`
}

type Store struct {
	client *redis.Client
	prefix string
}

// Ensure Store implements spi.StateStore
var _ spi.StateStore = (*Store)(nil)

func NewStore(addr string, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{
		client: rdb,
		prefix: "blocknorm:",
	}, nil
}

func (s *Store) GetLastBlock(ctx context.Context) (*core.BlockWithCalls, error) {
	// key: blocknorm:head
	val, err := s.client.Get(ctx, s.prefix+"head").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode([]byte(val))
}

func (s *Store) SaveBlock(ctx context.Context, block *core.BlockWithCalls) error {
	data, err := encode(block)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()

	// key: blocknorm:block:<number>
	blockKey := fmt.Sprintf("%sblock:%d", s.prefix, block.EthereumBlock.Ptr().Number)
	pipe.Set(ctx, blockKey, data, 0)

	// key: blocknorm:head
	pipe.Set(ctx, s.prefix+"head", data, 0)

	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) GetBlockByNumber(ctx context.Context, number uint64) (*core.BlockWithCalls, error) {
	blockKey := fmt.Sprintf("%sblock:%d", s.prefix, number)
	val, err := s.client.Get(ctx, blockKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode([]byte(val))
}

// Rewind deletes blocks above the target height and moves the head pointer
// back. Orphaned keys must be deleted, not just abandoned, because
// GetBlockByNumber is used for history checks and would otherwise read
// stale side-chain blocks.
func (s *Store) Rewind(ctx context.Context, toBlock uint64) error {
	head, err := s.GetLastBlock(ctx)
	if err != nil {
		return err
	}
	if head == nil {
		return nil
	}

	headNumber := head.EthereumBlock.Ptr().Number
	if headNumber <= toBlock {
		return nil
	}

	var keys []string
	for i := headNumber; i > toBlock; i-- {
		keys = append(keys, fmt.Sprintf("%sblock:%d", s.prefix, i))
	}

	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}

	newHead, err := s.GetBlockByNumber(ctx, toBlock)
	if err != nil {
		return err
	}
	if newHead == nil {
		return fmt.Errorf("rewind target block %d not found", toBlock)
	}

	return s.SaveBlock(ctx, newHead)
}

func encode(block *core.BlockWithCalls) ([]byte, error) {
	stored := storedBlock{Block: block.EthereumBlock}
	if calls, checked := block.Calls.Calls(); checked {
		stored.CallsChecked = true
		stored.Calls = calls
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal block: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*core.BlockWithCalls, error) {
	var stored storedBlock
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block: %w", err)
	}
	calls := core.UncheckedCalls()
	if stored.CallsChecked {
		calls = core.CheckedCalls(stored.Calls)
	}
	return &core.BlockWithCalls{EthereumBlock: stored.Block, Calls: calls}, nil
}
