// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package p2p

import (
	"math/big"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/luxtensor/cryptoutil"
	"github.com/luxfi/luxtensor/evmexec"
	"github.com/luxfi/luxtensor/health"
	"github.com/luxfi/luxtensor/mempool"
	"github.com/luxfi/luxtensor/pos"
	"github.com/luxfi/luxtensor/statedb"
	"github.com/luxfi/luxtensor/storage"
	"github.com/luxfi/luxtensor/types"
)

// noopEVM satisfies evmexec.EVM without executing anything; none of
// the tests here carry transactions, so only RecordBlockHash is ever
// actually invoked.
type noopEVM struct{}

func (noopEVM) Deploy(types.Address, []byte, *big.Int, uint64, uint64, types.Timestamp) (types.Address, uint64, []types.Log, error) {
	return types.Address{}, 0, nil, nil
}
func (noopEVM) Call(types.Address, types.Address, []byte, *big.Int, uint64, uint64, types.Timestamp, *big.Int) ([]byte, uint64, []types.Log, error) {
	return nil, 0, nil, nil
}
func (noopEVM) StaticCall(types.Address, types.Address, []byte, uint64, uint64, types.Timestamp) ([]byte, uint64, []types.Log, error) {
	return nil, 0, nil, nil
}
func (noopEVM) DeployCode(types.Address, []byte) error                { return nil }
func (noopEVM) FundAccount(types.Address, *big.Int) error             { return nil }
func (noopEVM) GetStorage(types.Address, types.Hash) (types.Hash, bool) { return types.Hash{}, false }
func (noopEVM) SetStorage(types.Address, types.Hash, types.Hash) error { return nil }
func (noopEVM) RecordBlockHash(types.Height, types.Hash)               {}

func newTestHandler(t *testing.T) (*Handler, *secp256k1.PrivateKey, types.Address) {
	t.Helper()
	sk, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	validatorAddr := cryptoutil.PubkeyToAddress(sk.PubKey())

	vs := pos.NewValidatorSet()
	vs.Upsert(&types.Validator{Address: validatorAddr, Stake: big.NewInt(1000), Active: true, Rewards: new(big.Int)})

	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(DefaultConfig(1), Deps{
		Store:      store,
		State:      statedb.New(),
		Mempool:    mempool.New(1, 1000),
		EVM:        evmexec.New(noopEVM{}),
		Validators: vs,
		LongRange:  pos.NewLongRangeGuard(),
		ForkChoice: pos.NewForkChoice(types.Hash{}),
		Finality:   pos.NewFastFinality(vs),
		Liveness:   health.New(),
	})
	return h, sk, validatorAddr
}

func signedHeader(t *testing.T, sk *secp256k1.PrivateKey, validatorAddr types.Address, height types.Height, previousHash types.Hash, timestamp types.Timestamp) *types.Header {
	t.Helper()
	header := &types.Header{
		Version:      1,
		Height:       height,
		Timestamp:    timestamp,
		PreviousHash: previousHash,
		TxsRoot:      cryptoutil.MerkleRoot(nil),
	}
	copy(header.Validator[12:], validatorAddr[:])

	signingHash, err := header.SigningHash()
	require.NoError(t, err)
	sig, err := cryptoutil.Sign(signingHash, sk)
	require.NoError(t, err)
	copy(header.Signature[:], sig[:64])
	return header
}

func TestHandleNewBlockAcceptsValidBlock(t *testing.T) {
	h, sk, validatorAddr := newTestHandler(t)
	header := signedHeader(t, sk, validatorAddr, 1, types.Hash{}, types.Timestamp(time.Now().Unix()))
	block := &types.Block{Header: header}

	err := h.HandleNewBlock(NewBlock{Block: block, From: "peer-1"}, 1)
	require.NoError(t, err)

	gotHeight, gotHash, _ := h.tip()
	require.Equal(t, types.Height(1), gotHeight)
	wantHash, err := block.Hash()
	require.NoError(t, err)
	require.Equal(t, wantHash, gotHash)
}

func TestHandleNewBlockRejectsBadSignature(t *testing.T) {
	h, _, validatorAddr := newTestHandler(t)
	otherSK, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	// Sign with a key that does not belong to the claimed validator.
	header := signedHeader(t, otherSK, validatorAddr, 1, types.Hash{}, types.Timestamp(time.Now().Unix()))
	block := &types.Block{Header: header}

	err = h.HandleNewBlock(NewBlock{Block: block, From: "peer-1"}, 1)
	require.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestHandleNewBlockRejectsNonSequentialHeight(t *testing.T) {
	h, sk, validatorAddr := newTestHandler(t)
	header := signedHeader(t, sk, validatorAddr, 5, types.Hash{}, types.Timestamp(time.Now().Unix()))
	block := &types.Block{Header: header}

	err := h.HandleNewBlock(NewBlock{Block: block, From: "peer-1"}, 5)
	require.ErrorIs(t, err, ErrHeightNotSequential)
}

func TestHandleNewBlockRejectsInactiveValidator(t *testing.T) {
	h, sk, validatorAddr := newTestHandler(t)
	v, _ := h.validators.Get(validatorAddr)
	v.Active = false

	header := signedHeader(t, sk, validatorAddr, 1, types.Hash{}, types.Timestamp(time.Now().Unix()))
	block := &types.Block{Header: header}

	err := h.HandleNewBlock(NewBlock{Block: block, From: "peer-1"}, 1)
	require.ErrorIs(t, err, ErrInactiveValidator)
}

func TestHandleNewBlockRejectsFarFutureTimestamp(t *testing.T) {
	h, sk, validatorAddr := newTestHandler(t)
	future := types.Timestamp(time.Now().Add(1 * time.Hour).Unix())
	header := signedHeader(t, sk, validatorAddr, 1, types.Hash{}, future)
	block := &types.Block{Header: header}

	err := h.HandleNewBlock(NewBlock{Block: block, From: "peer-1"}, 1)
	require.ErrorIs(t, err, ErrTimestampTooFarAhead)
}

func TestHandleNewBlockRejectsPreviousHashMismatch(t *testing.T) {
	h, sk, validatorAddr := newTestHandler(t)
	header := signedHeader(t, sk, validatorAddr, 1, types.Hash{0xde, 0xad}, types.Timestamp(time.Now().Unix()))
	block := &types.Block{Header: header}

	err := h.HandleNewBlock(NewBlock{Block: block, From: "peer-1"}, 1)
	require.ErrorIs(t, err, ErrPreviousHashMismatch)
}

func TestFarAheadBlocksGetStricterRateLimit(t *testing.T) {
	h, sk, validatorAddr := newTestHandler(t)
	cfg := h.cfg
	cfg.FarAheadBurst = 1
	h.cfg = cfg

	header := signedHeader(t, sk, validatorAddr, 1, types.Hash{}, types.Timestamp(time.Now().Unix()))
	block := &types.Block{Header: header}
	require.NoError(t, h.HandleNewBlock(NewBlock{Block: block, From: "far-peer"}, 500))

	header2 := signedHeader(t, sk, validatorAddr, 2, func() types.Hash { hh, _ := block.Hash(); return hh }(), types.Timestamp(time.Now().Unix()))
	block2 := &types.Block{Header: header2}
	err := h.HandleNewBlock(NewBlock{Block: block2, From: "far-peer"}, 500)
	require.ErrorIs(t, err, ErrRateLimited)
}
