package core

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashN(n byte) common.Hash {
	return common.Hash{n}
}

func addrN(n byte) common.Address {
	return common.Address{n}
}

func bigN(n int64) *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(n))
}

func u64P(n uint64) *hexutil.Uint64 {
	v := hexutil.Uint64(n)
	return &v
}

func fullTx(n byte) Transaction {
	from := addrN(n)
	to := addrN(n + 1)
	return Transaction{
		Hash:             hashN(n),
		Nonce:            hexutil.Uint64(n),
		BlockHash:        ptrHash(hashN(0xb0)),
		BlockNumber:      bigN(100),
		TransactionIndex: u64P(uint64(n)),
		From:             &from,
		To:               &to,
		Value:            bigN(1000),
		GasPrice:         bigN(50),
		Gas:              bigN(21000),
		Input:            hexutil.Bytes{0xde, 0xad, 0xbe, 0xef},
		V:                bigN(27),
		R:                bigN(1),
		S:                bigN(2),
	}
}

func ptrHash(h common.Hash) *common.Hash {
	return &h
}

func TestNewLightTransaction(t *testing.T) {
	tx := fullTx(1)
	light := NewLightTransaction(&tx)

	assert.Equal(t, tx.Hash, light.Hash)
	assert.Equal(t, tx.Nonce, light.Nonce)
	assert.Equal(t, tx.TransactionIndex, light.TransactionIndex)
	assert.Equal(t, tx.From, light.From)
	assert.Equal(t, tx.To, light.To)
	assert.Equal(t, tx.Value, light.Value)
	assert.Equal(t, tx.GasPrice, light.GasPrice)
	assert.Equal(t, tx.Gas, light.Gas)
	assert.Equal(t, tx.Input, light.Input)

	// Narrowing a copy and narrowing the original yield the same record.
	cp := tx
	assert.Equal(t, light, NewLightTransaction(&cp))
}

func TestLightTransactionJSONOmitsAbsentFrom(t *testing.T) {
	tx := fullTx(1)
	tx.From = nil
	data, err := json.Marshal(NewLightTransaction(&tx))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), `"from"`))
}

func v1Block(height int64, txCount byte) *LightBlockV1 {
	txs := make([]Transaction, 0, txCount)
	for i := byte(0); i < txCount; i++ {
		txs = append(txs, fullTx(i+1))
	}
	return &LightBlockV1{
		BlockHeader: BlockHeader{
			Hash:       ptrHash(hashN(0xaa)),
			ParentHash: hashN(0xa9),
			Author:     addrN(0xee),
			Number:     bigN(height),
			GasUsed:    bigN(42),
			GasLimit:   bigN(8_000_000),
			Timestamp:  bigN(1_600_000_000),
			Difficulty: bigN(7),
			ExtraData:  hexutil.Bytes{0x01},
			Uncles:     []common.Hash{hashN(0xcc)},
		},
		Transactions: txs,
	}
}

func TestLightBlockFromV1(t *testing.T) {
	v1 := v1Block(100, 3)
	v2 := LightBlockFromV1(v1)

	// Header fields are carried over verbatim.
	assert.Equal(t, v1.BlockHeader, v2.BlockHeader)

	// Transaction count and order are preserved, each element narrowed.
	require.Len(t, v2.Transactions, len(v1.Transactions))
	for i := range v1.Transactions {
		assert.Equal(t, NewLightTransaction(&v1.Transactions[i]), v2.Transactions[i])
	}
}

func TestLightBlockFromV1Empty(t *testing.T) {
	v2 := LightBlockFromV1(v1Block(5, 0))
	assert.Len(t, v2.Transactions, 0)
}

func TestTransactionForLog(t *testing.T) {
	block := LightBlockFromV1(v1Block(100, 2))

	logHash := block.Transactions[1].Hash
	found := block.TransactionForLog(&Log{TransactionHash: &logHash})
	require.NotNil(t, found)
	assert.Equal(t, block.Transactions[1], *found)

	missing := hashN(0x99)
	assert.Nil(t, block.TransactionForLog(&Log{TransactionHash: &missing}))
	assert.Nil(t, block.TransactionForLog(&Log{}))
}

func TestTransactionForCall(t *testing.T) {
	block := LightBlockFromV1(v1Block(100, 2))

	callHash := block.Transactions[0].Hash
	found := block.TransactionForCall(&EthereumCall{TransactionHash: &callHash})
	require.NotNil(t, found)
	assert.Equal(t, block.Transactions[0], *found)

	assert.Nil(t, block.TransactionForCall(&EthereumCall{}))
}

func TestParentPtr(t *testing.T) {
	genesis := LightBlockFromV1(v1Block(0, 0))
	assert.Nil(t, genesis.ParentPtr())

	block := LightBlockFromV1(v1Block(100, 0))
	parent := block.ParentPtr()
	require.NotNil(t, parent)
	assert.Equal(t, uint64(99), parent.Number)
	assert.Equal(t, block.ParentHash, parent.Hash)
}

func TestPtr(t *testing.T) {
	block := LightBlockFromV1(v1Block(100, 0))
	ptr := block.Ptr()
	assert.Equal(t, uint64(100), ptr.Number)
	assert.Equal(t, *block.Hash, ptr.Hash)
}

func TestPtrPanicsWithoutHash(t *testing.T) {
	block := LightBlockFromV1(v1Block(100, 0))
	block.Hash = nil
	assert.Panics(t, func() { block.Ptr() })
}

func TestNumberPanicsWhenAbsent(t *testing.T) {
	block := LightBlockFromV1(v1Block(100, 0))
	block.BlockHeader.Number = nil
	assert.Panics(t, func() { block.Number() })
}

func TestTimestamp(t *testing.T) {
	block := LightBlockFromV1(v1Block(100, 0))
	ts := block.Timestamp()
	assert.Equal(t, time.Unix(1_600_000_000, 0).UTC(), ts)
	assert.Zero(t, ts.Nanosecond())
}

func TestFormat(t *testing.T) {
	block := LightBlockFromV1(v1Block(100, 0))
	assert.Equal(t, "#100 ("+common.Bytes2Hex(block.Hash[:])+")", block.Format())

	block.BlockHeader.Number = nil
	assert.True(t, strings.HasPrefix(block.Format(), "none ("))

	block.Hash = nil
	assert.Equal(t, "none (-)", block.Format())
}
