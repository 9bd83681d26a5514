// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blockproducer

import (
	"math/big"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/luxtensor/cryptoutil"
	"github.com/luxfi/luxtensor/evmexec"
	"github.com/luxfi/luxtensor/health"
	"github.com/luxfi/luxtensor/mempool"
	"github.com/luxfi/luxtensor/pos"
	"github.com/luxfi/luxtensor/statedb"
	"github.com/luxfi/luxtensor/storage"
	"github.com/luxfi/luxtensor/tokenomics"
	"github.com/luxfi/luxtensor/types"
)

// fakeEVM lets Call/Deploy be steered per test without a concrete EVM.
type fakeEVM struct {
	callGasUsed uint64
	callErr     error
}

func (f *fakeEVM) Deploy(types.Address, []byte, *big.Int, uint64, uint64, types.Timestamp) (types.Address, uint64, []types.Log, error) {
	return types.Address{}, 0, nil, nil
}
func (f *fakeEVM) Call(types.Address, types.Address, []byte, *big.Int, uint64, uint64, types.Timestamp, *big.Int) ([]byte, uint64, []types.Log, error) {
	if f.callErr != nil {
		return nil, 0, nil, f.callErr
	}
	return nil, f.callGasUsed, nil, nil
}
func (f *fakeEVM) StaticCall(types.Address, types.Address, []byte, uint64, uint64, types.Timestamp) ([]byte, uint64, []types.Log, error) {
	return nil, 0, nil, nil
}
func (f *fakeEVM) DeployCode(types.Address, []byte) error                { return nil }
func (f *fakeEVM) FundAccount(types.Address, *big.Int) error             { return nil }
func (f *fakeEVM) GetStorage(types.Address, types.Hash) (types.Hash, bool) { return types.Hash{}, false }
func (f *fakeEVM) SetStorage(types.Address, types.Hash, types.Hash) error { return nil }
func (f *fakeEVM) RecordBlockHash(types.Height, types.Hash)               {}

func newTestProducer(t *testing.T) (*Producer, *secp256k1.PrivateKey, types.Address, Deps) {
	t.Helper()
	sk, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	validatorAddr := cryptoutil.PubkeyToAddress(sk.PubKey())

	vs := pos.NewValidatorSet()
	vs.Upsert(&types.Validator{Address: validatorAddr, Stake: big.NewInt(1_000), Active: true, Rewards: new(big.Int)})

	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	feeMarket, err := tokenomics.NewFeeMarket(big.NewInt(1), big.NewInt(1_000_000), 1_000_000, 2_000_000)
	require.NoError(t, err)
	halving := tokenomics.DefaultHalvingSchedule()
	burn := tokenomics.NewBurnManager()

	deps := Deps{
		Store:      store,
		State:      statedb.New(),
		Mempool:    mempool.New(1, 1_000),
		EVM:        evmexec.New(&fakeEVM{callGasUsed: 21_000}),
		Validators: vs,
		ForkChoice: pos.NewForkChoice(types.Hash{}),
		Finality:   pos.NewFastFinality(vs),
		LongRange:  pos.NewLongRangeGuard(),
		Randao:     pos.NewRandaoMixer(types.Hash{0xaa}),
		Slashing:   pos.NewSlashingManager(vs),
		Halving:    halving,
		Burn:       burn,
		FeeMarket:  feeMarket,
		Rewards:    tokenomics.NewRewardExecutor(halving, burn, types.Address{0xda, 0x0}),
		Health:     health.New(),
	}
	cfg := Config{
		GenesisHash:    types.Hash{0x67},
		EpochLength:    10,
		MaxTxsPerBlock: 16,
		BlockGasLimit:  8_000_000,
		DAOAddress:     types.Address{0xda, 0x0},
	}
	p := New(cfg, deps, sk, nil)
	return p, sk, validatorAddr, deps
}

func signTx(t *testing.T, sk *secp256k1.PrivateKey, chainID, nonce uint64, to types.Address, value, gasPrice *big.Int, gasLimit uint64) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		ChainID: chainID, Nonce: nonce, To: &to, Value: value, GasPrice: gasPrice, GasLimit: gasLimit,
	}
	h, err := tx.SigningHash()
	require.NoError(t, err)
	sig, err := cryptoutil.Sign(h, sk)
	require.NoError(t, err)
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = sig[64]
	from, err := tx.RecoverSender()
	require.NoError(t, err)
	tx.From = from
	return tx
}

func TestAcquireHeightGuardRejectsConflict(t *testing.T) {
	p := &Producer{}
	require.True(t, p.acquireHeightGuard(1, 0))
	// A second attempt at the same height loses the race and resets
	// the guard back to resetTarget for retry.
	require.False(t, p.acquireHeightGuard(1, 0))
	require.Equal(t, uint64(0), p.bestHeightGuard.Load())
}

func TestCurrentEpoch(t *testing.T) {
	require.Equal(t, types.Epoch(2), currentEpoch(25, 10))
	require.Equal(t, types.Epoch(0), currentEpoch(25, 0))
}

func TestShouldProduceFalseForObserver(t *testing.T) {
	p, _, _, _ := newTestProducer(t)
	observer := New(p.cfg, p.deps, nil, nil)
	require.False(t, observer.ShouldProduce(0))
}

func TestShouldProduceFalseWhileSyncing(t *testing.T) {
	p, _, _, deps := newTestProducer(t)
	deps.Health.SetSyncing(true)
	require.False(t, p.ShouldProduce(0))
}

func TestTryProduceBlockGenesisHappyPath(t *testing.T) {
	p, sk, validatorAddr, deps := newTestProducer(t)

	senderSK, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	sender := cryptoutil.PubkeyToAddress(senderSK.PubKey())
	deps.State.SetAccount(sender, &types.Account{Balance: big.NewInt(10_000_000), CodeHash: types.EmptyCodeHash})

	tx := signTx(t, senderSK, 1, 0, validatorAddr, big.NewInt(100), big.NewInt(10), 21_000)
	require.NoError(t, deps.Mempool.AddTransaction(tx, deps.State))

	block, err := p.TryProduceBlock(0)
	require.NoError(t, err)
	require.NotNil(t, block)
	require.Equal(t, types.Height(1), block.Header.Height)
	require.Equal(t, p.cfg.GenesisHash, block.Header.PreviousHash)
	require.Len(t, block.Transactions, 1)
	require.NotEqual(t, [64]byte{}, block.Header.Signature)

	// Sender's nonce advanced and paid gas; validator was credited the
	// burn-manager's non-burned remainder of the fee.
	senderAcc, ok := deps.State.GetAccount(sender)
	require.True(t, ok)
	require.Equal(t, uint64(1), senderAcc.Nonce)

	validatorAcc, ok := deps.State.GetAccount(validatorAddr)
	require.True(t, ok)
	require.Greater(t, validatorAcc.Balance.Sign(), 0)

	// Block persisted, tx removed from mempool, fork choice updated.
	gotHash, ok, err := deps.Store.HashAtHeight(1)
	require.NoError(t, err)
	require.True(t, ok)
	wantHash, err := block.Hash()
	require.NoError(t, err)
	require.Equal(t, wantHash, gotHash)
	require.Equal(t, 0, deps.Mempool.Len())
	require.Equal(t, wantHash, deps.ForkChoice.Head())

	// Post-block hooks: consensus state advanced, block hash recorded
	// for the EVM, and the producer's own fast-finality signature
	// alone reaches a single-validator 2/3 threshold.
	require.Equal(t, wantHash, p.consensus.LastBlockHash())
	recordedHash, ok := deps.EVM.BlockHash(1)
	require.True(t, ok)
	require.Equal(t, wantHash, recordedHash)
	require.True(t, deps.Finality.IsFinalized(wantHash))
	require.Equal(t, uint64(1), p.scoring.BlocksProduced(validatorAddr))
}

func TestTryProduceBlockParentNotFound(t *testing.T) {
	p, _, _, deps := newTestProducer(t)
	// Simulate a DB that reports a known best height whose hash was
	// never actually stored (corruption / crash-recovery edge case).
	deps.Store.FetchMaxBestHeight(5)

	_, err := p.TryProduceBlock(0)
	require.ErrorIs(t, err, ErrParentNotFound)
	// The height guard was reset for the next retry.
	require.Equal(t, uint64(5), p.bestHeightGuard.Load())
}

func TestTryProduceBlockVRFProofAttached(t *testing.T) {
	p, sk, validatorAddr, deps := newTestProducer(t)
	vrfKey, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	v, ok := deps.Validators.Get(validatorAddr)
	require.True(t, ok)
	v.PublicKey = cryptoutil.EncodeValidatorPublicKey(vrfKey.PubKey())

	withVRF := New(p.cfg, deps, sk, vrfKey)
	block, err := withVRF.TryProduceBlock(0)
	require.NoError(t, err)
	require.NotNil(t, block.Header.VRFProof)
}

func TestTryProduceBlockEpochBoundaryDistributesRewards(t *testing.T) {
	p, _, validatorAddr, deps := newTestProducer(t)
	p.cfg.EpochLength = 1 // every block is an epoch boundary

	block, err := p.TryProduceBlock(0)
	require.NoError(t, err)
	require.Equal(t, types.Height(1), block.Header.Height)

	require.Equal(t, uint64(0), p.epochTxAccum.Load())
	require.Equal(t, big.NewInt(0), p.epochEmission)
	require.Greater(t, deps.Rewards.Pending(validatorAddr).Sign(), -1)
}

func TestSubmitDisputeSlashesOnInvalidatedClaim(t *testing.T) {
	p, _, validatorAddr, deps := newTestProducer(t)
	p.SubmitDispute(DisputeClaim{Defendant: validatorAddr, Deadline: 0, Invalidated: true})
	require.Equal(t, 1, p.disputes.Pending())

	_, err := p.TryProduceBlock(0)
	require.NoError(t, err)
	require.Equal(t, 0, p.disputes.Pending())

	v, ok := deps.Validators.Get(validatorAddr)
	require.True(t, ok)
	require.False(t, v.Active) // SlashingManager deactivates on a slash
}
