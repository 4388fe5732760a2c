package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Receipt status values (EIP-658).
const (
	ReceiptStatusFailed     = hexutil.Uint64(0)
	ReceiptStatusSuccessful = hexutil.Uint64(1)
)

// Log is an EVM log entry as carried inside a receipt. Log order within a
// receipt is insertion order and is significant.
type Log struct {
	Address             common.Address  `json:"address"`
	Topics              []common.Hash   `json:"topics"`
	Data                hexutil.Bytes   `json:"data"`
	BlockHash           *common.Hash    `json:"blockHash"`
	BlockNumber         *hexutil.Uint64 `json:"blockNumber"`
	TransactionHash     *common.Hash    `json:"transactionHash"`
	TransactionIndex    *hexutil.Uint64 `json:"transactionIndex"`
	LogIndex            *hexutil.Uint64 `json:"logIndex"`
	TransactionLogIndex *hexutil.Uint64 `json:"transactionLogIndex,omitempty"`
	Removed             *bool           `json:"removed,omitempty"`
}

// TransactionReceipt is the full per-transaction execution outcome as
// returned by the node. Status and Root are mutually exclusive in practice:
// receipts carry Status from EIP-658 on and Root before it.
type TransactionReceipt struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	TransactionIndex  hexutil.Uint64  `json:"transactionIndex"`
	BlockHash         *common.Hash    `json:"blockHash"`
	BlockNumber       *hexutil.Uint64 `json:"blockNumber"`
	CumulativeGasUsed *hexutil.Big    `json:"cumulativeGasUsed"`
	// GasUsed is nil when the client runs in light client mode.
	GasUsed *hexutil.Big `json:"gasUsed"`
	// ContractAddress is set only for contract creations.
	ContractAddress *common.Address `json:"contractAddress"`
	Logs            []Log           `json:"logs"`
	Status          *hexutil.Uint64 `json:"status"`
	Root            *common.Hash    `json:"root"`
	LogsBloom       gethtypes.Bloom `json:"logsBloom"`
	// Fields below are not needed downstream and are dropped by the store
	// projection.
	From              *common.Address `json:"from,omitempty"`
	To                *common.Address `json:"to,omitempty"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice,omitempty"`
	Type              *hexutil.Uint64 `json:"type,omitempty"`
}

// StoreReceipt is the store-oriented projection of TransactionReceipt.
// Field semantics are identical to the full receipt.
type StoreReceipt struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	TransactionIndex  hexutil.Uint64  `json:"transactionIndex"`
	BlockHash         *common.Hash    `json:"blockHash"`
	BlockNumber       *hexutil.Uint64 `json:"blockNumber"`
	CumulativeGasUsed *hexutil.Big    `json:"cumulativeGasUsed"`
	GasUsed           *hexutil.Big    `json:"gasUsed"`
	ContractAddress   *common.Address `json:"contractAddress"`
	Logs              []Log           `json:"logs"`
	Status            *hexutil.Uint64 `json:"status"`
	Root              *common.Hash    `json:"root"`
	LogsBloom         gethtypes.Bloom `json:"logsBloom"`
}

// NewStoreReceipt narrows a full receipt to its store projection.
func NewStoreReceipt(r *TransactionReceipt) *StoreReceipt {
	return &StoreReceipt{
		TransactionHash:   r.TransactionHash,
		TransactionIndex:  r.TransactionIndex,
		BlockHash:         r.BlockHash,
		BlockNumber:       r.BlockNumber,
		CumulativeGasUsed: r.CumulativeGasUsed,
		GasUsed:           r.GasUsed,
		ContractAddress:   r.ContractAddress,
		Logs:              r.Logs,
		Status:            r.Status,
		Root:              r.Root,
		LogsBloom:         r.LogsBloom,
	}
}

// StoreReceiptsFromReceipts maps NewStoreReceipt over a receipt sequence,
// preserving count and order.
func StoreReceiptsFromReceipts(receipts []*TransactionReceipt) []*StoreReceipt {
	out := make([]*StoreReceipt, len(receipts))
	for i, r := range receipts {
		out[i] = NewStoreReceipt(r)
	}
	return out
}
