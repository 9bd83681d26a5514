// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"
	"github.com/luxfi/luxtensor/cryptoutil"
)

// Header is the canonical block header. Version is a protocol-upgrade
// marker, not a semver string.
type Header struct {
	Version       uint32
	Height        Height
	Timestamp     Timestamp
	PreviousHash  Hash
	StateRoot     Hash
	TxsRoot       Hash
	ReceiptsRoot  Hash
	Validator     [32]byte // last 20 bytes are the validator's Address
	Signature     [64]byte // ECDSA (r||s), v travels out of band (recovery tried both ways)
	GasUsed       uint64
	GasLimit      uint64
	ExtraData     []byte
	VRFProof      *[97]byte // optional, 97 bytes when present
}

// ValidatorAddress returns the address encoded in the last 20 bytes of
// the 32-byte Validator field.
func (h *Header) ValidatorAddress() Address {
	var a Address
	copy(a[:], h.Validator[12:])
	return a
}

// rlpHeader is the wire/hash representation of Header: a plain struct
// RLP can encode directly. Hash() always hashes with the VRFProof
// either fully present or fully absent via a presence flag, and with
// Signature zero-filled when computing the pre-signature hash: the
// proposer signs the hash computed with the signature field cleared to
// zero-filled 64 bytes.
type rlpHeader struct {
	Version      uint32
	Height       uint64
	Timestamp    int64
	PreviousHash common.Hash
	StateRoot    common.Hash
	TxsRoot      common.Hash
	ReceiptsRoot common.Hash
	Validator    [32]byte
	Signature    [64]byte
	GasUsed      uint64
	GasLimit     uint64
	ExtraData    []byte
	HasVRFProof  bool
	VRFProof     [97]byte
}

func (h *Header) toRLP(signature [64]byte) rlpHeader {
	r := rlpHeader{
		Version:      h.Version,
		Height:       uint64(h.Height),
		Timestamp:    int64(h.Timestamp),
		PreviousHash: h.PreviousHash,
		StateRoot:    h.StateRoot,
		TxsRoot:      h.TxsRoot,
		ReceiptsRoot: h.ReceiptsRoot,
		Validator:    h.Validator,
		Signature:    signature,
		GasUsed:      h.GasUsed,
		GasLimit:     h.GasLimit,
		ExtraData:    h.ExtraData,
	}
	if h.VRFProof != nil {
		r.HasVRFProof = true
		r.VRFProof = *h.VRFProof
	}
	return r
}

// SigningHash is the hash the proposer signs and verifiers reproduce:
// the canonical encoding with Signature cleared to zero.
func (h *Header) SigningHash() (Hash, error) {
	enc, err := rlp.EncodeToBytes(h.toRLP([64]byte{}))
	if err != nil {
		return Hash{}, err
	}
	return cryptoutil.Keccak256(enc), nil
}

// Hash is the block hash: keccak256 of the canonical serialization
// with Signature filled in, excluding no fields.
func (h *Header) Hash() (Hash, error) {
	enc, err := rlp.EncodeToBytes(h.toRLP(h.Signature))
	if err != nil {
		return Hash{}, err
	}
	return cryptoutil.Keccak256(enc), nil
}

// Encode returns the canonical storage/wire encoding of the header,
// the same bytes Hash() hashes. Callers that persist or transmit a
// header (storage's store_block, p2p's block relay) use this instead
// of reaching for the unexported rlpHeader shape directly.
func (h *Header) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(h.toRLP(h.Signature))
}

// rlpTransaction is Transaction's canonical encoding shape: a plain
// struct RLP can encode directly, since To being nil (contract
// creation) is represented the same way the signing payload already
// handles it.
type rlpTransaction struct {
	ChainID  uint64
	Nonce    uint64
	From     common.Address
	To       *common.Address
	Value    *big.Int
	GasPrice *big.Int
	GasLimit uint64
	Data     []byte
	V        uint8
	R        *big.Int
	S        *big.Int
}

// Encode returns the canonical storage/wire encoding of the
// transaction, including its signature and recovered sender.
func (tx *Transaction) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(rlpTransaction{
		ChainID: tx.ChainID, Nonce: tx.Nonce, From: tx.From, To: tx.To,
		Value: tx.Value, GasPrice: tx.GasPrice, GasLimit: tx.GasLimit,
		Data: tx.Data, V: tx.V, R: tx.R, S: tx.S,
	})
}

// Block bundles a Header with its transactions.
type Block struct {
	Header       *Header
	Transactions []*Transaction
}

// Hash delegates to the header.
func (b *Block) Hash() (Hash, error) { return b.Header.Hash() }

// rlpBlock is Block's canonical encoding shape: the header's own
// canonical bytes plus each transaction's canonical bytes, so Block's
// wire format doesn't depend on Header/Transaction's internal rlp
// struct layout staying exposed.
type rlpBlock struct {
	Header       []byte
	Transactions [][]byte
}

// Encode returns the canonical storage/wire encoding of the block.
func (b *Block) Encode() ([]byte, error) {
	headerEnc, err := b.Header.Encode()
	if err != nil {
		return nil, err
	}
	txEnc := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		enc, err := tx.Encode()
		if err != nil {
			return nil, fmt.Errorf("types: encoding tx %d: %w", i, err)
		}
		txEnc[i] = enc
	}
	return rlp.EncodeToBytes(rlpBlock{Header: headerEnc, Transactions: txEnc})
}

var (
	ErrNilHeader = errors.New("types: block has nil header")
)

// Validate checks the structural invariants that don't require chain
// context (parent lookup, clock, etc. are checked by the caller, which
// has that context — see pos/ and blockproducer/).
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}
	return nil
}
