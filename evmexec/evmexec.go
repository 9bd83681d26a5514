// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package evmexec wraps an EVM implementation behind a narrow
// execution surface. The concrete EVM is treated as an opaque
// dependency — this package owns only the interface, the block-hash
// recorder for BLOCKHASH, and the gas-only fallback simulator the
// block producer uses so a buggy EVM never stalls block progression.
package evmexec

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/luxtensor/types"
)

// ErrExecutionFailed is the typed "external" error category for EVM
// failures.
var ErrExecutionFailed = errors.New("evmexec: execution failed")

// EVM is the narrow surface the block producer and P2P validator need
// from a concrete EVM implementation. Implementations are supplied by
// the host process; this package never constructs one.
type EVM interface {
	Deploy(caller types.Address, code []byte, value *big.Int, gasLimit, blockNumber uint64, timestamp types.Timestamp) (addr types.Address, gasUsed uint64, logs []types.Log, err error)
	Call(caller, contract types.Address, input []byte, value *big.Int, gasLimit, blockNumber uint64, timestamp types.Timestamp, gasPrice *big.Int) (output []byte, gasUsed uint64, logs []types.Log, err error)
	StaticCall(caller, contract types.Address, input []byte, gasLimit, blockNumber uint64, timestamp types.Timestamp) (output []byte, gasUsed uint64, logs []types.Log, err error)
	DeployCode(addr types.Address, code []byte) error
	FundAccount(addr types.Address, balance *big.Int) error
	GetStorage(addr types.Address, key types.Hash) (types.Hash, bool)
	SetStorage(addr types.Address, key, value types.Hash) error
	RecordBlockHash(height types.Height, hash types.Hash)
}

// Executor owns the configured EVM plus the block-hash map backing
// BLOCKHASH support, and falls back to a deterministic gas-only
// simulation when the EVM errors during block production.
type Executor struct {
	mu  sync.RWMutex
	evm EVM

	blockHashes map[types.Height]types.Hash
}

func New(evm EVM) *Executor {
	return &Executor{evm: evm, blockHashes: make(map[types.Height]types.Hash)}
}

// RecordBlockHash stores height's hash for BLOCKHASH and forwards to
// the underlying EVM.
func (e *Executor) RecordBlockHash(height types.Height, hash types.Hash) {
	e.mu.Lock()
	e.blockHashes[height] = hash
	e.mu.Unlock()
	e.evm.RecordBlockHash(height, hash)
}

func (e *Executor) BlockHash(height types.Height) (types.Hash, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.blockHashes[height]
	return h, ok
}

// ExecResult is the outcome of executing one transaction, either via
// the real EVM or the gas-only fallback.
type ExecResult struct {
	Receipt    types.Receipt
	Simulated  bool // true if the EVM errored and a gas-only simulation was used instead
}

// ExecuteDuringProduction runs tx against the EVM; on EVM error it
// contains the failure to this one transaction by falling back to a
// gas-only simulation instead of aborting the whole block: call the
// EVM, accept the receipt on success, and on error charge gas and move
// on rather than stalling block progression.
//
// The fallback simulation still charges gas and advances the sender's
// nonce via the caller's state transition — it is not a silent no-op —
// but performs no contract logic.
func (e *Executor) ExecuteDuringProduction(tx *types.Transaction, blockNumber uint64, blockHash types.Hash, timestamp types.Timestamp) (ExecResult, error) {
	if tx.To == nil {
		addr, gasUsed, logs, err := e.evm.Deploy(tx.From, tx.Data, tx.Value, tx.GasLimit, blockNumber, timestamp)
		if err != nil {
			return e.fallback(tx, fmt.Errorf("%w: deploy: %v", ErrExecutionFailed, err)), nil
		}
		return ExecResult{Receipt: types.Receipt{
			From: tx.From, ContractAddress: &addr, Status: types.ReceiptStatusSuccess,
			GasUsed: gasUsed, Logs: logs,
		}}, nil
	}
	output, gasUsed, logs, err := e.evm.Call(tx.From, *tx.To, tx.Data, tx.Value, tx.GasLimit, blockNumber, timestamp, tx.GasPrice)
	_ = output
	if err != nil {
		return e.fallback(tx, fmt.Errorf("%w: call: %v", ErrExecutionFailed, err)), nil
	}
	return ExecResult{Receipt: types.Receipt{
		From: tx.From, To: tx.To, Status: types.ReceiptStatusSuccess,
		GasUsed: gasUsed, Logs: logs,
	}}, nil
}

// fallback produces a minimal-gas failed receipt: the tx is charged
// only its intrinsic 21000 gas and marked failed, so block gas
// accounting stays well-formed even though the EVM never ran.
func (e *Executor) fallback(tx *types.Transaction, cause error) ExecResult {
	const intrinsicGas = 21_000
	return ExecResult{
		Simulated: true,
		Receipt: types.Receipt{
			From: tx.From, To: tx.To, Status: types.ReceiptStatusFailed, GasUsed: intrinsicGas,
		},
	}
}

// StaticCall performs a non-mutating call, surfacing the error
// directly: it is never used during production (only RPC-style reads),
// so there is no fallback-simulation requirement here.
func (e *Executor) StaticCall(caller, contract types.Address, input []byte, gasLimit, blockNumber uint64, timestamp types.Timestamp) ([]byte, uint64, []types.Log, error) {
	return e.evm.StaticCall(caller, contract, input, gasLimit, blockNumber, timestamp)
}
