// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package blockproducer drives the five-phase leader-turn block
// production pipeline (height guard, parent resolve, transaction
// execution, header sign/finalize, persist) plus the post-block hooks
// and the leader-election check that gates all of it, built directly
// against this module's own primitives: storage.Store, statedb.DB,
// evmexec.Executor, mempool.Pool, and the pos and tokenomics packages.
package blockproducer

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	log "github.com/luxfi/log"

	"github.com/luxfi/geth/rlp"
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

var (
	ErrHeightGuardConflict  = errors.New("blockproducer: height guard conflict, another attempt is in flight")
	ErrParentNotFound       = errors.New("blockproducer: parent block not found for height-1")
	ErrUnsignedBlockRefused = errors.New("blockproducer: refusing to produce an unsigned block in validator mode")
)

// Config holds the per-node production tunables.
type Config struct {
	GenesisHash    types.Hash
	EpochLength    types.Height
	MaxTxsPerBlock int
	BlockGasLimit  uint64
	Peers          []types.Address // configured fallback round-robin peers
	DAOAddress     types.Address
}

// Deps bundles the already-built subsystems the pipeline drives plus
// the tokenomics/mempool/EVM collaborators. The lock-acquisition order
// across them is state DB → unified state → fast finality → liveness
// monitor → health monitor → fork choice; the field order below does
// not follow it.
type Deps struct {
	Store      *storage.Store
	State      *statedb.DB
	Mempool    *mempool.Pool
	EVM        *evmexec.Executor
	Validators *pos.ValidatorSet
	ForkChoice *pos.ForkChoice
	Finality   *pos.FastFinality
	LongRange  *pos.LongRangeGuard
	Randao     *pos.RandaoMixer
	Slashing   *pos.SlashingManager
	Halving    *tokenomics.HalvingSchedule
	Burn       *tokenomics.BurnManager
	FeeMarket  *tokenomics.FeeMarket
	Rewards    *tokenomics.RewardExecutor
	Health     *health.Monitor
}

// consensusState is the unified consensus state sitting between state
// DB and fast finality in lock-acquisition order: the last block hash
// other components (VRF alpha, leader election's slot seed) read.
type consensusState struct {
	mu            sync.RWMutex
	lastBlockHash types.Hash
}

func (c *consensusState) UpdateLastBlockHash(h types.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastBlockHash = h
}

func (c *consensusState) LastBlockHash() types.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastBlockHash
}

// Producer runs the block production pipeline for one node. A
// Producer with no validator key is an observer: ShouldProduce always
// reports false for it and it never produces a block, while sharing
// the same Deps other packages (p2p) use.
type Producer struct {
	cfg  Config
	deps Deps

	validatorKey  *secp256k1.PrivateKey
	validatorAddr types.Address
	hasValidator  bool
	vrfKey        *secp256k1.PrivateKey // nil if this validator has no registered VRF key

	mu              sync.Mutex // serializes one production attempt at a time
	bestHeightGuard atomic.Uint64
	epochTxAccum    atomic.Uint64
	epochEmission   *big.Int // accumulated block rewards minted since the last epoch boundary; only touched while p.mu is held

	consensus *consensusState
	scoring   *scoringTracker
	disputes  *disputeTracker
}

// New builds a Producer. validatorKey may be nil for an observer node
// that never produces blocks. vrfKey may be nil even when
// validatorKey isn't, for a validator with no VRF key configured: a
// VRF proof is only required when a key is.
func New(cfg Config, deps Deps, validatorKey, vrfKey *secp256k1.PrivateKey) *Producer {
	p := &Producer{
		cfg:           cfg,
		deps:          deps,
		vrfKey:        vrfKey,
		consensus:     &consensusState{lastBlockHash: cfg.GenesisHash},
		scoring:       newScoringTracker(),
		disputes:      newDisputeTracker(),
		epochEmission: new(big.Int),
	}
	if validatorKey != nil {
		p.validatorKey = validatorKey
		p.validatorAddr = cryptoutil.PubkeyToAddress(validatorKey.PubKey())
		p.hasValidator = true
	}
	return p
}

// SubmitDispute registers an optimistic-AI fraud claim to be resolved
// at its deadline.
func (p *Producer) SubmitDispute(c DisputeClaim) { p.disputes.Submit(c) }

// ValidatorAddress returns this producer's validator address and
// whether it has a validator key configured at all.
func (p *Producer) ValidatorAddress() (types.Address, bool) { return p.validatorAddr, p.hasValidator }

// ShouldProduce is the leader-election check run before any block is
// attempted: select_validator(slot), falling back to round-robin over
// configured peers and then the hash-based solo filter exactly as
// pos.ValidatorSet.SelectValidator already does. Production is paused
// entirely while the node reports itself as syncing.
func (p *Producer) ShouldProduce(slot types.Slot) bool {
	if !p.hasValidator {
		return false
	}
	if p.deps.Health.IsSyncing() {
		return false
	}
	leader := p.deps.Validators.SelectValidator(p.consensus.LastBlockHash(), slot, p.cfg.Peers, p.validatorAddr)
	return leader == p.validatorAddr
}

// resetGuard restores the height guard to the DB-observed best height,
// letting the next tick retry.
func (p *Producer) resetGuard(resetTarget types.Height) {
	p.bestHeightGuard.Store(uint64(resetTarget))
}

// acquireHeightGuard implements the load+CAS height guard:
// bestHeightGuard is a shared atomic integer guarded by load/CAS
// semantics so only one production attempt per height ever commits.
func (p *Producer) acquireHeightGuard(newHeight, resetTarget types.Height) bool {
	guard := p.bestHeightGuard.Load()
	if types.Height(guard) >= newHeight || !p.bestHeightGuard.CompareAndSwap(guard, uint64(newHeight)) {
		p.bestHeightGuard.Store(uint64(resetTarget))
		return false
	}
	return true
}

// TryProduceBlock runs the full five-phase pipeline for slot if
// ShouldProduce reports true, returning the produced block on success.
// A nil block with a nil error means it wasn't this node's turn.
func (p *Producer) TryProduceBlock(slot types.Slot) (*types.Block, error) {
	if !p.ShouldProduce(slot) {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// --- Phase 0: height guard ---
	dbBest, known := p.deps.Store.BestHeight()
	var newHeight, resetTarget types.Height
	if known {
		newHeight = dbBest + 1
		resetTarget = dbBest
	} else {
		newHeight = 1
	}
	if !p.acquireHeightGuard(newHeight, resetTarget) {
		return nil, ErrHeightGuardConflict
	}

	// --- Phase 1: resolve parent ---
	var previousHash types.Hash
	if !known {
		previousHash = p.cfg.GenesisHash
	} else {
		h, ok, err := p.deps.Store.HashAtHeight(newHeight - 1)
		if err != nil {
			p.resetGuard(resetTarget)
			return nil, fmt.Errorf("blockproducer: resolve parent: %w", err)
		}
		if !ok {
			p.resetGuard(resetTarget)
			return nil, ErrParentNotFound
		}
		previousHash = h
	}

	block, err := p.produce(newHeight, previousHash, slot)
	if err != nil {
		p.resetGuard(resetTarget)
		return nil, err
	}
	return block, nil
}

// produce runs Phases 2-5 once the height guard is held and the
// parent hash is known.
func (p *Producer) produce(newHeight types.Height, previousHash types.Hash, slot types.Slot) (*types.Block, error) {
	now := types.Timestamp(time.Now().Unix())

	// --- Phase 2: execute transactions ---
	// Preliminary header with zero roots, used only to compute the
	// preliminary block hash the EVM sees as the current block's hash.
	prelimHeader := &types.Header{Version: 1, Height: newHeight, Timestamp: now, PreviousHash: previousHash}
	copy(prelimHeader.Validator[12:], p.validatorAddr[:])
	prelimHash, err := prelimHeader.Hash()
	if err != nil {
		return nil, fmt.Errorf("blockproducer: preliminary header hash: %w", err)
	}

	snap := p.deps.State.SnapshotAccounts()
	candidates := p.deps.Mempool.GetTransactionsForBlock(p.cfg.MaxTxsPerBlock)

	includedTxs := make([]*types.Transaction, 0, len(candidates))
	receipts := make([]types.Receipt, 0, len(candidates))
	var totalGas uint64

	for i, tx := range candidates {
		txHash, err := tx.Hash()
		if err != nil {
			log.Warn("blockproducer: dropping tx, cannot hash", "index", i, "err", err)
			continue
		}
		result, err := p.deps.EVM.ExecuteDuringProduction(tx, uint64(newHeight), prelimHash, now)
		if err != nil {
			log.Warn("blockproducer: dropping tx during execution", "tx_hash", txHash, "err", err)
			continue
		}
		result.Receipt.TxHash = txHash
		result.Receipt.TxIndex = uint32(len(includedTxs))
		result.Receipt.BlockHeight = newHeight
		totalGas += result.Receipt.GasUsed

		fee := new(big.Int).Mul(new(big.Int).SetUint64(result.Receipt.GasUsed), tx.GasPrice)
		_, remaining := p.deps.Burn.BurnTxFee(fee, newHeight)
		creditBalance(snap, p.validatorAddr, remaining)

		acc, ok := snap.GetAccount(tx.From)
		if !ok {
			acc = types.NewAccount()
		}
		acc.Nonce++
		if acc.Balance == nil || acc.Balance.Cmp(fee) < 0 {
			acc.Balance = new(big.Int)
		} else {
			acc.Balance = new(big.Int).Sub(acc.Balance, fee)
		}
		snap.SetAccount(tx.From, acc)

		includedTxs = append(includedTxs, tx)
		receipts = append(receipts, result.Receipt)
	}
	p.deps.State.MergeAccounts(snap)
	p.epochTxAccum.Add(uint64(len(includedTxs)))

	// --- Phase 3: sign & finalize header ---
	txHashes := make([]types.Hash, len(includedTxs))
	for i, tx := range includedTxs {
		txHashes[i], _ = tx.Hash()
	}
	txsRoot := cryptoutil.MerkleRoot(txHashes)

	receiptHashes := make([]types.Hash, len(receipts))
	for i := range receipts {
		receiptHashes[i], err = receipts[i].Hash()
		if err != nil {
			return nil, fmt.Errorf("blockproducer: hashing receipt %d: %w", i, err)
		}
	}
	receiptsRoot := cryptoutil.MerkleRoot(receiptHashes)

	stateRoot := p.deps.State.Commit(newHeight)
	if err := p.deps.State.FlushToDB(p.deps.Store); err != nil {
		return nil, fmt.Errorf("blockproducer: flush state: %w", err)
	}

	header := &types.Header{
		Version:      1,
		Height:       newHeight,
		Timestamp:    now,
		PreviousHash: previousHash,
		StateRoot:    stateRoot,
		TxsRoot:      txsRoot,
		ReceiptsRoot: receiptsRoot,
		GasUsed:      totalGas,
		GasLimit:     p.cfg.BlockGasLimit,
	}
	copy(header.Validator[12:], p.validatorAddr[:])

	signingHash, err := header.SigningHash()
	if err != nil {
		return nil, fmt.Errorf("blockproducer: signing hash: %w", err)
	}
	sig, err := cryptoutil.Sign(signingHash, p.validatorKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsignedBlockRefused, err)
	}
	copy(header.Signature[:], sig[:64])

	if p.vrfKey != nil {
		epoch := currentEpoch(newHeight, p.cfg.EpochLength)
		alpha := pos.VRFAlpha(epoch, newHeight, previousHash)
		_, proof, err := cryptoutil.VRFProve(alpha, p.vrfKey)
		if err != nil {
			return nil, fmt.Errorf("blockproducer: vrf proof: %w", err)
		}
		header.VRFProof = &proof
	}

	block := &types.Block{Header: header, Transactions: includedTxs}
	blockHash, err := block.Hash()
	if err != nil {
		return nil, fmt.Errorf("blockproducer: hashing block: %w", err)
	}
	for i := range receipts {
		receipts[i].BlockHash = blockHash
	}

	// --- Phase 4: persist ---
	if err := p.persist(block, blockHash, receipts, txHashes); err != nil {
		return nil, err
	}

	// --- Phase 5: post-block hooks ---
	p.postBlockHooks(header, block, blockHash, receipts, totalGas)

	return block, nil
}

// persist stores the block atomically, persists each receipt, persists
// any newly deployed contract's code (already flushed by
// State.FlushToDB above), and removes executed txs from the mempool.
func (p *Producer) persist(block *types.Block, blockHash types.Hash, receipts []types.Receipt, txHashes []types.Hash) error {
	encodedBlock, err := block.Encode()
	if err != nil {
		return fmt.Errorf("blockproducer: encoding block: %w", err)
	}
	encodedHeader, err := block.Header.Encode()
	if err != nil {
		return fmt.Errorf("blockproducer: encoding header: %w", err)
	}
	if err := p.deps.Store.StoreBlock(block, encodedBlock, encodedHeader, txHashes); err != nil {
		return fmt.Errorf("blockproducer: persisting block: %w", err)
	}
	for i := range receipts {
		encoded, err := rlp.EncodeToBytes(&receipts[i])
		if err != nil {
			return fmt.Errorf("blockproducer: encoding receipt %d: %w", i, err)
		}
		if err := p.deps.Store.Put(storage.CFReceipts, receipts[i].TxHash[:], encoded); err != nil {
			return fmt.Errorf("blockproducer: persisting receipt %d: %w", i, err)
		}
	}
	p.deps.Mempool.RemoveTransactions(txHashes)
	p.deps.ForkChoice.AddBlock(blockHash, block.Header.PreviousHash, block.Header.Height)
	return nil
}

// postBlockHooks runs the post-block bookkeeping steps in order.
func (p *Producer) postBlockHooks(header *types.Header, block *types.Block, blockHash types.Hash, receipts []types.Receipt, totalGas uint64) {
	// 1. Process disputes: slash on invalidated optimistic-AI claims.
	p.disputes.ProcessDue(header.Height, func(defendant types.Address) {
		p.deps.Slashing.SlashForInvalidatedClaim(defendant)
	})

	// 2. Update unified consensus state with the new block hash.
	p.consensus.UpdateLastBlockHash(blockHash)
	p.deps.Randao.Contribute(blockHash)

	// 3. Block reward: halving schedule, credited to the producer.
	reward := p.deps.Halving.MintForBlock(header.Height)
	if reward.Sign() > 0 {
		snap := p.deps.State.SnapshotAccounts()
		creditBalance(snap, p.validatorAddr, reward)
		p.deps.State.MergeAccounts(snap)
		p.epochEmission.Add(p.epochEmission, reward)
		log.Info("blockproducer: block reward", "height", header.Height, "reward", reward.String(), "era", p.deps.Halving.Era(header.Height), "to", p.validatorAddr)
	}

	// 4. Update the EIP-1559 fee market with this block's gas used.
	p.deps.FeeMarket.UpdateWithBlockGas(totalGas)

	// 5. Record block production in the scoring tracker.
	p.scoring.RecordBlockProduced(p.validatorAddr, header.Height)

	// 6. Epoch boundary: finalize RANDAO, refresh validator
	// eligibility, distribute epoch rewards, reset the tx accumulator.
	if p.cfg.EpochLength > 0 && uint64(header.Height)%uint64(p.cfg.EpochLength) == 0 {
		p.processEpochBoundary(header.Height)
	}

	// 7. Record the block hash for EVM BLOCKHASH.
	p.deps.EVM.RecordBlockHash(header.Height, blockHash)

	// 8. BFT fast finality: the producer auto-signs its own proposal.
	p.deps.Finality.OnBlockProposed(blockHash)
	if reached := p.deps.Finality.AddSignature(blockHash, p.validatorAddr); reached {
		log.Debug("blockproducer: fast finality threshold reached", "height", header.Height, "hash", blockHash)
	}

	if cp := p.deps.LongRange.LastFinalized(); header.Height > cp+pos.WeakSubjectivityWindow {
		p.deps.LongRange.RecordCheckpoint(types.Checkpoint{Height: header.Height, BlockHash: blockHash, StateRoot: header.StateRoot})
	}

	p.deps.Health.UpdateOurHeight(header.Height)
}

// processEpochBoundary runs the epoch-boundary sub-sequence: RANDAO
// finalization, validator-eligibility refresh (no richer rotation
// scheme exists elsewhere in this module — see DESIGN.md), epoch
// reward distribution, and the tx-accumulator reset, which must
// happen before the accumulator is read by anything downstream, since
// the reward executor's utility metrics consume it.
func (p *Producer) processEpochBoundary(height types.Height) {
	epoch := currentEpoch(height, p.cfg.EpochLength)
	p.deps.Randao.FinalizeEpoch(epoch)
	p.refreshValidatorEligibility(epoch)

	active := p.deps.Validators.ActiveValidators()
	validatorStakes := make([]tokenomics.ValidatorStake, len(active))
	for i, v := range active {
		validatorStakes[i] = tokenomics.ValidatorStake{Address: v.Address, Stake: v.Stake}
	}

	// No metagraph/delegation/subnet registry exists yet in this
	// module (see DESIGN.md), so only the validator pool has a
	// concrete participant list; the infrastructure pool falls back
	// to the DAO treasury (tokenomics.Distribute's existing
	// empty-pool handling) and the miner/delegator/subnet pools are
	// left uncredited for this epoch until those registries exist.
	result := p.deps.Rewards.DistributeEpoch(uint64(epoch), p.epochEmission, nil, validatorStakes, nil, nil, nil)
	log.Info("blockproducer: epoch boundary processed", "epoch", epoch, "credited", result.ParticipantsCredited, "dao_allocation", result.DAOAllocation.String())

	p.epochEmission = new(big.Int)
	p.epochTxAccum.Store(0)
}

// refreshValidatorEligibility re-evaluates every configured peer's
// IsEligible at the new epoch; this is the full extent of validator
// rotation absent a dedicated rotation subsystem (see DESIGN.md).
func (p *Producer) refreshValidatorEligibility(epoch types.Epoch) {
	for _, addr := range p.cfg.Peers {
		v, ok := p.deps.Validators.Get(addr)
		if !ok {
			continue
		}
		if !v.IsEligible(epoch) && v.Active {
			v.Active = false
		}
	}
}

func currentEpoch(height types.Height, epochLength types.Height) types.Epoch {
	if epochLength == 0 {
		return 0
	}
	return types.Epoch(uint64(height) / uint64(epochLength))
}

func creditBalance(snap *statedb.Snapshot, addr types.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	acc, ok := snap.GetAccount(addr)
	if !ok {
		acc = types.NewAccount()
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	snap.SetAccount(addr, acc)
}
