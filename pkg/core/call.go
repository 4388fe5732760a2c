package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Trace type discriminators as emitted by the parity-style trace_block API.
const (
	TraceTypeCall    = "call"
	TraceTypeCreate  = "create"
	TraceTypeSuicide = "suicide"
	TraceTypeReward  = "reward"
)

// Trace is one entry of a trace_block response.
type Trace struct {
	Action       TraceAction  `json:"action"`
	BlockHash    common.Hash  `json:"blockHash"`
	BlockNumber  uint64       `json:"blockNumber"`
	Result       *TraceResult `json:"result"`
	Error        *string      `json:"error,omitempty"`
	Subtraces    uint64       `json:"subtraces"`
	TraceAddress []uint64     `json:"traceAddress"`
	// TransactionHash is nil for traces with no enclosing transaction,
	// e.g. block reward distributions.
	TransactionHash *common.Hash `json:"transactionHash"`
	// TransactionPosition is a plain number on the wire, unlike the hex
	// quantities elsewhere in the trace.
	TransactionPosition *uint64 `json:"transactionPosition"`
	Type                string  `json:"type"`
}

// TraceAction carries the union of per-type action fields; which ones are
// populated depends on Trace.Type.
type TraceAction struct {
	// call
	CallType string         `json:"callType,omitempty"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Gas      *hexutil.Big   `json:"gas,omitempty"`
	Value    *hexutil.Big   `json:"value,omitempty"`
	Input    hexutil.Bytes  `json:"input,omitempty"`
	// create
	Init hexutil.Bytes `json:"init,omitempty"`
	// reward
	Author     *common.Address `json:"author,omitempty"`
	RewardType string          `json:"rewardType,omitempty"`
}

// TraceResult carries the union of per-type result fields.
type TraceResult struct {
	GasUsed *hexutil.Big  `json:"gasUsed,omitempty"`
	Output  hexutil.Bytes `json:"output,omitempty"`
	// create
	Address *common.Address `json:"address,omitempty"`
	Code    hexutil.Bytes   `json:"code,omitempty"`
}

// EthereumCall is a canonical contract-call record extracted from a trace.
// Instances are produced only by CallFromTrace and are immutable afterwards.
type EthereumCall struct {
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	Value       *hexutil.Big   `json:"value"`
	GasUsed     *hexutil.Big   `json:"gasUsed"`
	Input       hexutil.Bytes  `json:"input"`
	Output      hexutil.Bytes  `json:"output"`
	BlockNumber uint64         `json:"blockNumber"`
	BlockHash   common.Hash    `json:"blockHash"`
	// TransactionHash is nil for calls that cannot be attributed to a
	// transaction; such calls must never trigger call-based processing.
	TransactionHash  *common.Hash `json:"transactionHash"`
	TransactionIndex uint64       `json:"transactionIndex"`
}

// BlockPtr returns the chain position of the block the call was made in.
func (c *EthereumCall) BlockPtr() BlockPtr {
	return BlockPtr{Hash: c.BlockHash, Number: c.BlockNumber}
}

// CallFromTrace extracts a canonical call from one trace, or returns nil if
// the trace is not a triggerable contract call. A trace never produces more
// than one call.
func CallFromTrace(trace *Trace) *EthereumCall {
	// The tracing API returns traces for operations which had execution
	// errors. Only successful calls may trigger call handlers.
	if trace.Error != nil {
		return nil
	}
	// Only plain CALLs are of interest. Contract to contract value
	// transfers compile to the CALL opcode with empty input; requiring a
	// function-selector-sized input excludes them.
	if trace.Type != TraceTypeCall || len(trace.Action.Input) < 4 {
		return nil
	}
	if trace.Result == nil || trace.Result.GasUsed == nil {
		return nil
	}
	// The only traces without a transaction position are those from block
	// reward distributions; they can never be mapped to a triggering
	// transaction.
	if trace.TransactionPosition == nil {
		return nil
	}

	return &EthereumCall{
		From:             trace.Action.From,
		To:               trace.Action.To,
		Value:            trace.Action.Value,
		GasUsed:          trace.Result.GasUsed,
		Input:            trace.Action.Input,
		Output:           trace.Result.Output,
		BlockNumber:      trace.BlockNumber,
		BlockHash:        trace.BlockHash,
		TransactionHash:  trace.TransactionHash,
		TransactionIndex: *trace.TransactionPosition,
	}
}

// CallsFromTraces extracts calls from a trace sequence, preserving the order
// of the traces that yield calls.
func CallsFromTraces(traces []Trace) []EthereumCall {
	var calls []EthereumCall
	for i := range traces {
		if call := CallFromTrace(&traces[i]); call != nil {
			calls = append(calls, *call)
		}
	}
	return calls
}
