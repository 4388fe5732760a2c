package core

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// EthereumBlockV1 pairs a block body with its full receipts. The body is
// shared by pointer across every consumer and is never mutated after
// construction. Receipt order is not guaranteed to match transaction order;
// lookups go by transaction hash.
type EthereumBlockV1 struct {
	Block               *LightBlock           `json:"block"`
	TransactionReceipts []*TransactionReceipt `json:"transactionReceipts"`
}

// EthereumBlock is the canonical (V2) block container: the same shared body
// paired with store receipts.
type EthereumBlock struct {
	Block               *LightBlock     `json:"block"`
	TransactionReceipts []*StoreReceipt `json:"transactionReceipts"`
}

// EthereumBlockV2 is the canonical container; the alias keeps the schema
// version explicit at call sites that deal with both.
type EthereumBlockV2 = EthereumBlock

// EthereumBlockFromV1 converts the container by projecting each receipt
// independently. The shared block body is carried over as-is; receipt count
// and order are preserved. There is no V2 to V1 path.
func EthereumBlockFromV1(b EthereumBlockV1) EthereumBlock {
	return EthereumBlock{
		Block:               b.Block,
		TransactionReceipts: StoreReceiptsFromReceipts(b.TransactionReceipts),
	}
}

// Ptr returns the block's chain pointer. Same precondition as
// (*LightBlock).Ptr: hash and number must be populated.
func (b *EthereumBlock) Ptr() BlockPtr {
	return b.Block.Ptr()
}

// CallSet records whether a block has been checked for calls, keeping
// "not checked yet" distinct from "checked, none found". Conflating the two
// makes re-checking either silently skipped or needlessly repeated.
type CallSet struct {
	checked bool
	calls   []EthereumCall
}

// UncheckedCalls returns the set for a block that has not been checked for
// calls yet.
func UncheckedCalls() CallSet {
	return CallSet{}
}

// CheckedCalls returns the set for a block that has been checked; calls may
// be empty.
func CheckedCalls(calls []EthereumCall) CallSet {
	return CallSet{checked: true, calls: calls}
}

// Checked reports whether the block has been checked for calls.
func (s CallSet) Checked() bool {
	return s.checked
}

// Calls returns the extracted calls. The second result mirrors Checked so
// callers cannot mistake an unchecked set for an empty one.
func (s CallSet) Calls() ([]EthereumCall, bool) {
	return s.calls, s.checked
}

// BlockWithCalls pairs a normalized block with its call set.
type BlockWithCalls struct {
	EthereumBlock EthereumBlock
	Calls         CallSet
}

// TransactionForCallSucceeded reports whether the transaction enclosing the
// given call succeeded, by locating its receipt and applying the EIP-658
// status rule. Calls that cannot be attributed to a receipt yield an error.
func (b *BlockWithCalls) TransactionForCallSucceeded(call *EthereumCall) (bool, error) {
	if call.TransactionHash == nil {
		return false, errors.New("failed to find a transaction for this call")
	}
	for _, receipt := range b.EthereumBlock.TransactionReceipts {
		if receipt.TransactionHash == *call.TransactionHash {
			return EvaluateTransactionStatus(receipt.Status), nil
		}
	}
	return false, errors.New("failed to find the receipt for this transaction")
}

// EvaluateTransactionStatus reports whether a transaction succeeded given
// its receipt status. Receipts from before EIP-658 carry no status field;
// those are assumed successful, since failure in that era is signaled only
// by state-root anomalies this layer does not interpret.
func EvaluateTransactionStatus(status *hexutil.Uint64) bool {
	if status == nil {
		return true
	}
	return *status != 0
}
