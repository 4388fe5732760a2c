package pg

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chainfoundry/blocknorm/pkg/core"
)

func testBlock(t *testing.T, number uint64, checkedCalls bool) *core.BlockWithCalls {
	t.Helper()

	hash := common.Hash{byte(number)}
	from := common.Address{0x01}
	to := common.Address{0x02}

	body := &core.LightBlock{
		BlockHeader: core.BlockHeader{
			Hash:       &hash,
			ParentHash: common.Hash{byte(number - 1)},
			Number:     (*hexutil.Big)(new(big.Int).SetUint64(number)),
			Timestamp:  (*hexutil.Big)(big.NewInt(1_700_000_000)),
		},
	}

	calls := core.UncheckedCalls()
	if checkedCalls {
		calls = core.CheckedCalls([]core.EthereumCall{{
			From:        from,
			To:          to,
			GasUsed:     (*hexutil.Big)(big.NewInt(21_000)),
			Value:       (*hexutil.Big)(big.NewInt(1)),
			Input:       hexutil.Bytes{0xa9, 0x05, 0x9c, 0xbb},
			Output:      hexutil.Bytes{},
			BlockHash:   hash,
			BlockNumber: number,
		}})
	}

	return &core.BlockWithCalls{
		EthereumBlock: core.EthereumBlock{Block: body},
		Calls:         calls,
	}
}

func openMockDB(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 db,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return NewStoreWithDB(gdb), mock
}

func TestModelRoundTrip(t *testing.T) {
	for _, checked := range []bool{true, false} {
		block := testBlock(t, 7, checked)

		model, err := toModel(block)
		require.NoError(t, err)

		assert.Equal(t, uint64(7), model.Number)
		assert.Equal(t, block.EthereumBlock.Ptr().Hash.Hex(), model.Hash)
		assert.Equal(t, checked, model.CallsChecked)

		restored, err := toBlock(model)
		require.NoError(t, err)

		assert.Equal(t, block.EthereumBlock.Ptr(), restored.EthereumBlock.Ptr())
		assert.Equal(t, checked, restored.Calls.Checked())

		calls, ok := restored.Calls.Calls()
		assert.Equal(t, checked, ok)
		if checked {
			require.Len(t, calls, 1)
			assert.Equal(t, common.Address{0x01}, calls[0].From)
		}
	}
}

func TestGetLastBlock(t *testing.T) {
	store, mock := openMockDB(t)

	model, err := toModel(testBlock(t, 42, true))
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"number", "hash", "parent_hash", "timestamp",
		"payload", "calls_checked", "calls", "processed_at",
	}).AddRow(
		model.Number, model.Hash, model.ParentHash, model.Timestamp,
		model.Payload, model.CallsChecked, model.Calls, time.Now(),
	)
	mock.ExpectQuery(`SELECT \* FROM "block_models"`).WillReturnRows(rows)

	block, err := store.GetLastBlock(context.Background())
	require.NoError(t, err)
	require.NotNil(t, block)

	assert.Equal(t, uint64(42), block.EthereumBlock.Ptr().Number)
	assert.True(t, block.Calls.Checked())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLastBlock_Empty(t *testing.T) {
	store, mock := openMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM "block_models"`).
		WillReturnRows(sqlmock.NewRows([]string{"number"}))

	block, err := store.GetLastBlock(context.Background())
	require.NoError(t, err)
	assert.Nil(t, block)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBlockByNumber_NotFound(t *testing.T) {
	store, mock := openMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM "block_models"`).
		WithArgs(uint64(9), 1).
		WillReturnRows(sqlmock.NewRows([]string{"number"}))

	block, err := store.GetBlockByNumber(context.Background(), 9)
	require.NoError(t, err)
	assert.Nil(t, block)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRewind(t *testing.T) {
	store, mock := openMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "block_models"`).
		WithArgs(uint64(100)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := store.Rewind(context.Background(), 100)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
