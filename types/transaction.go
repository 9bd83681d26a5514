// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"
	"github.com/luxfi/luxtensor/cryptoutil"
)

// Transaction is the wire/storage representation of a single user
// transaction. To is nil for contract creation.
type Transaction struct {
	ChainID  uint64
	Nonce    uint64
	From     Address // recovered, not signed over directly
	To       *Address
	Value    *big.Int
	GasPrice *big.Int
	GasLimit uint64
	Data     []byte
	V        uint8 // 0 or 1
	R        *big.Int
	S        *big.Int
}

type signingPayload struct {
	ChainID  uint64
	Nonce    uint64
	To       *common.Address
	Value    *big.Int
	GasPrice *big.Int
	GasLimit uint64
	Data     []byte
}

// SigningHash is the EIP-155-style message hash signed by the sender:
// it binds chain_id so a signature can't be replayed across chains.
func (tx *Transaction) SigningHash() (Hash, error) {
	enc, err := rlp.EncodeToBytes(signingPayload{
		ChainID:  tx.ChainID,
		Nonce:    tx.Nonce,
		To:       tx.To,
		Value:    tx.Value,
		GasPrice: tx.GasPrice,
		GasLimit: tx.GasLimit,
		Data:     tx.Data,
	})
	if err != nil {
		return Hash{}, err
	}
	return cryptoutil.Keccak256(enc), nil
}

// Hash is the transaction's own identity hash (signed payload plus
// signature, so two transactions differing only in signature still
// hash differently — matching spec's tx_hash usage as a storage key).
func (tx *Transaction) Hash() (Hash, error) {
	h, err := tx.SigningHash()
	if err != nil {
		return Hash{}, err
	}
	var rBytes, sBytes [32]byte
	tx.R.FillBytes(rBytes[:])
	tx.S.FillBytes(sBytes[:])
	return cryptoutil.Keccak256(h[:], rBytes[:], sBytes[:], []byte{tx.V}), nil
}

// RecoverSender recovers and fills in tx.From from (v, r, s) over the
// EIP-155 signing hash.
func (tx *Transaction) RecoverSender() (Address, error) {
	h, err := tx.SigningHash()
	if err != nil {
		return Address{}, err
	}
	sig := make([]byte, 65)
	tx.R.FillBytes(sig[:32])
	tx.S.FillBytes(sig[32:64])
	sig[64] = tx.V
	return cryptoutil.Recover(h, sig)
}

// Cost is value + gas_price*gas_limit, the minimum balance the sender
// must hold for the transaction to be valid.
func (tx *Transaction) Cost() *big.Int {
	gasCost := new(big.Int).Mul(tx.GasPrice, new(big.Int).SetUint64(tx.GasLimit))
	return gasCost.Add(gasCost, tx.Value)
}

// IsSystem reports whether this is the reserved zero-address
// system/faucet mint transaction.
func (tx *Transaction) IsSystem() bool {
	return tx.From == ZeroAddress
}
