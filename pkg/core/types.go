package core

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Transaction is the full transaction record as returned by the node's
// JSON-RPC encoding. Field names on the wire are camelCase.
type Transaction struct {
	Hash             common.Hash     `json:"hash"`
	Nonce            hexutil.Uint64  `json:"nonce"`
	BlockHash        *common.Hash    `json:"blockHash"`
	BlockNumber      *hexutil.Big    `json:"blockNumber"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
	From             *common.Address `json:"from,omitempty"`
	To               *common.Address `json:"to"`
	Value            *hexutil.Big    `json:"value"`
	GasPrice         *hexutil.Big    `json:"gasPrice"`
	Gas              *hexutil.Big    `json:"gas"`
	Input            hexutil.Bytes   `json:"input"`
	V                *hexutil.Big    `json:"v,omitempty"`
	R                *hexutil.Big    `json:"r,omitempty"`
	S                *hexutil.Big    `json:"s,omitempty"`
	Type             *hexutil.Uint64 `json:"type,omitempty"`
	MaxFeePerGas     *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFee   *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
}

// LightTransaction is the canonical transaction record kept by the pipeline.
// It is a one-way narrowing of Transaction; fields not needed downstream
// (signature, fee market data, inclusion pointers) are dropped.
type LightTransaction struct {
	Hash  common.Hash    `json:"hash"`
	Nonce hexutil.Uint64 `json:"nonce"`
	// TransactionIndex is nil while the transaction is pending.
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
	From             *common.Address `json:"from,omitempty"`
	// To is nil for contract creations.
	To       *common.Address `json:"to"`
	Value    *hexutil.Big    `json:"value"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Gas      *hexutil.Big    `json:"gas"`
	Input    hexutil.Bytes   `json:"input"`
}

// NewLightTransaction narrows a full transaction record. It is pure and
// total: no validation is performed.
func NewLightTransaction(tx *Transaction) LightTransaction {
	return LightTransaction{
		Hash:             tx.Hash,
		Nonce:            tx.Nonce,
		TransactionIndex: tx.TransactionIndex,
		From:             tx.From,
		To:               tx.To,
		Value:            tx.Value,
		GasPrice:         tx.GasPrice,
		Gas:              tx.Gas,
		Input:            tx.Input,
	}
}

// BlockHeader holds the header fields shared by both block schema versions.
// Hash and Number are nil only for pending blocks; blocks accepted into the
// pipeline always carry both.
type BlockHeader struct {
	Hash             *common.Hash          `json:"hash"`
	ParentHash       common.Hash           `json:"parentHash"`
	UnclesHash       common.Hash           `json:"sha3Uncles"`
	Author           common.Address        `json:"miner"`
	StateRoot        common.Hash           `json:"stateRoot"`
	TransactionsRoot common.Hash           `json:"transactionsRoot"`
	ReceiptsRoot     common.Hash           `json:"receiptsRoot"`
	Number           *hexutil.Big          `json:"number"`
	GasUsed          *hexutil.Big          `json:"gasUsed"`
	GasLimit         *hexutil.Big          `json:"gasLimit"`
	BaseFeePerGas    *hexutil.Big          `json:"baseFeePerGas,omitempty"`
	ExtraData        hexutil.Bytes         `json:"extraData"`
	LogsBloom        *gethtypes.Bloom      `json:"logsBloom"`
	Timestamp        *hexutil.Big          `json:"timestamp"`
	Difficulty       *hexutil.Big          `json:"difficulty"`
	TotalDifficulty  *hexutil.Big          `json:"totalDifficulty"`
	SealFields       []hexutil.Bytes       `json:"sealFields,omitempty"`
	Uncles           []common.Hash         `json:"uncles"`
	Size             *hexutil.Big          `json:"size,omitempty"`
	MixHash          *common.Hash          `json:"mixHash,omitempty"`
	Nonce            *gethtypes.BlockNonce `json:"nonce,omitempty"`
}

// LightBlockV1 is the legacy wire form: a block carrying full transaction
// records.
type LightBlockV1 struct {
	BlockHeader
	Transactions []Transaction `json:"transactions"`
}

// LightBlock is the canonical (V2) form: a block carrying light
// transactions. There is no conversion back to V1; the information is gone.
type LightBlock struct {
	BlockHeader
	Transactions []LightTransaction `json:"transactions"`
}

// LightBlockFromV1 converts a legacy block to the canonical form, narrowing
// each transaction in place. Header fields are copied verbatim and the
// transaction order is preserved.
func LightBlockFromV1(b *LightBlockV1) *LightBlock {
	txs := make([]LightTransaction, len(b.Transactions))
	for i := range b.Transactions {
		txs[i] = NewLightTransaction(&b.Transactions[i])
	}
	return &LightBlock{
		BlockHeader:  b.BlockHeader,
		Transactions: txs,
	}
}

// BlockPtr identifies a block's position in the canonical chain.
type BlockPtr struct {
	Hash   common.Hash
	Number uint64
}

func (p BlockPtr) String() string {
	return fmt.Sprintf("#%d (%x)", p.Number, p.Hash)
}

// Number returns the block height. It panics if the header omits the
// number: blocks accepted into the pipeline always carry one, so absence is
// a bug in the caller, not a recoverable condition.
func (b *LightBlock) Number() uint64 {
	if b.BlockHeader.Number == nil {
		panic("block is missing its number")
	}
	return b.BlockHeader.Number.ToInt().Uint64()
}

// TransactionForLog returns the transaction the log was emitted by, or nil
// when the log carries no transaction hash or no transaction matches.
func (b *LightBlock) TransactionForLog(log *Log) *LightTransaction {
	if log.TransactionHash == nil {
		return nil
	}
	return b.transactionForHash(*log.TransactionHash)
}

// TransactionForCall returns the transaction the call was made in, or nil
// when the call has no transaction hash or no transaction matches.
func (b *LightBlock) TransactionForCall(call *EthereumCall) *LightTransaction {
	if call.TransactionHash == nil {
		return nil
	}
	return b.transactionForHash(*call.TransactionHash)
}

// Transaction hashes are unique within a block, so a linear scan suffices.
func (b *LightBlock) transactionForHash(hash common.Hash) *LightTransaction {
	for i := range b.Transactions {
		if b.Transactions[i].Hash == hash {
			tx := b.Transactions[i]
			return &tx
		}
	}
	return nil
}

// ParentPtr returns a pointer to the parent block, or nil for the genesis
// block.
func (b *LightBlock) ParentPtr() *BlockPtr {
	n := b.Number()
	if n == 0 {
		return nil
	}
	return &BlockPtr{Hash: b.ParentHash, Number: n - 1}
}

// Ptr returns this block's own chain pointer. It panics if the header is
// missing its hash or number.
func (b *LightBlock) Ptr() BlockPtr {
	if b.Hash == nil {
		panic("block is missing its hash")
	}
	return BlockPtr{Hash: *b.Hash, Number: b.Number()}
}

// Timestamp converts the header timestamp (seconds since epoch) to a
// time.Time with a zero sub-second component.
func (b *LightBlock) Timestamp() time.Time {
	return time.Unix(b.BlockHeader.Timestamp.ToInt().Int64(), 0).UTC()
}

// Format renders a human-readable "#number (hash)" identifier. Unlike the
// pointer accessors it tolerates missing fields; it is for diagnostics only.
func (b *LightBlock) Format() string {
	number := "none"
	if b.BlockHeader.Number != nil {
		number = fmt.Sprintf("#%d", b.BlockHeader.Number.ToInt())
	}
	hash := "-"
	if b.Hash != nil {
		hash = fmt.Sprintf("%x", *b.Hash)
	}
	return fmt.Sprintf("%s (%s)", number, hash)
}
