// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"github.com/luxfi/geth/rlp"
	"github.com/luxfi/luxtensor/cryptoutil"
)

// ReceiptStatus is success or failed.
type ReceiptStatus uint8

const (
	ReceiptStatusFailed ReceiptStatus = iota
	ReceiptStatusSuccess
)

// Log is an EVM event log entry, carried opaquely by the receipt; the
// EVM executor is the only producer/interpreter of its contents.
type Log struct {
	Address Address
	Topics  []Hash
	Data    []byte
}

// Receipt records the outcome of one transaction's execution.
type Receipt struct {
	TxHash          Hash
	TxIndex         uint32
	BlockHash       Hash
	BlockHeight     Height
	From            Address
	To              *Address
	ContractAddress *Address
	Status          ReceiptStatus
	GasUsed         uint64
	Logs            []Log
}

// Hash is the receipt's identity for receipts_root computation.
func (r *Receipt) Hash() (Hash, error) {
	enc, err := rlp.EncodeToBytes(r)
	if err != nil {
		return Hash{}, err
	}
	return cryptoutil.Keccak256(enc), nil
}
