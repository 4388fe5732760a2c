package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chainfoundry/blocknorm/pkg/core"
)

// BlockModel is the persisted form of a normalized block. The body and
// receipts are stored as the canonical JSON encoding; the call set keeps its
// checked flag as a separate column so "not checked" survives a round trip
// distinct from "checked, none found".
type BlockModel struct {
	Number       uint64 `gorm:"primaryKey;autoIncrement:false"`
	Hash         string `gorm:"size:66;not null;index"`
	ParentHash   string `gorm:"size:66;not null"`
	Timestamp    int64
	Payload      []byte `gorm:"type:jsonb;not null"`
	CallsChecked bool
	Calls        []byte `gorm:"type:jsonb"`
	ProcessedAt  time.Time
}

// Store implements spi.StateStore using PostgreSQL.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new PostgreSQL store.
func NewStore(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&BlockModel{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing gorm handle. Used by tests.
func NewStoreWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SaveBlock persists a normalized block, upserting on height.
func (s *Store) SaveBlock(ctx context.Context, block *core.BlockWithCalls) error {
	model, err := toModel(block)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(model).Error
}

// GetLastBlock returns the highest stored block, or nil if none.
func (s *Store) GetLastBlock(ctx context.Context) (*core.BlockWithCalls, error) {
	var model BlockModel
	result := s.db.WithContext(ctx).Order("number desc").First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return toBlock(&model)
}

// GetBlockByNumber returns the stored block at a height, or nil.
func (s *Store) GetBlockByNumber(ctx context.Context, number uint64) (*core.BlockWithCalls, error) {
	var model BlockModel
	result := s.db.WithContext(ctx).Where("number = ?", number).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return toBlock(&model)
}

// Rewind deletes all blocks with number > height.
func (s *Store) Rewind(ctx context.Context, height uint64) error {
	return s.db.WithContext(ctx).Where("number > ?", height).Delete(&BlockModel{}).Error
}

func toModel(block *core.BlockWithCalls) (*BlockModel, error) {
	ptr := block.EthereumBlock.Ptr()

	payload, err := json.Marshal(block.EthereumBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal block %s: %w", ptr, err)
	}

	model := &BlockModel{
		Number:      ptr.Number,
		Hash:        ptr.Hash.Hex(),
		ParentHash:  block.EthereumBlock.Block.ParentHash.Hex(),
		Timestamp:   block.EthereumBlock.Block.Timestamp().Unix(),
		Payload:     payload,
		ProcessedAt: time.Now(),
	}

	if calls, checked := block.Calls.Calls(); checked {
		model.CallsChecked = true
		if model.Calls, err = json.Marshal(calls); err != nil {
			return nil, fmt.Errorf("failed to marshal calls for block %s: %w", ptr, err)
		}
	}

	return model, nil
}

func toBlock(model *BlockModel) (*core.BlockWithCalls, error) {
	var ethBlock core.EthereumBlock
	if err := json.Unmarshal(model.Payload, &ethBlock); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block %d: %w", model.Number, err)
	}

	calls := core.UncheckedCalls()
	if model.CallsChecked {
		var extracted []core.EthereumCall
		if len(model.Calls) > 0 {
			if err := json.Unmarshal(model.Calls, &extracted); err != nil {
				return nil, fmt.Errorf("failed to unmarshal calls for block %d: %w", model.Number, err)
			}
		}
		calls = core.CheckedCalls(extracted)
	}

	return &core.BlockWithCalls{EthereumBlock: ethBlock, Calls: calls}, nil
}
