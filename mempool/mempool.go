// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mempool implements the pending transaction pool: its
// admission rules, and FIFO-within-sender/price-across-senders
// selection for block production. The pool keeps per-account maps
// under one RWMutex and orders candidates by gas price, the way a
// single-pool (non-sharded) mempool naturally falls out of that
// layout.
package mempool

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	log "github.com/luxfi/log"
	"github.com/luxfi/luxtensor/types"
)

var (
	ErrInvalidChainID    = errors.New("mempool: invalid chain id")
	ErrInvalidSignature  = errors.New("mempool: signature does not recover")
	ErrNonceTooLow       = errors.New("mempool: nonce below sender's current nonce")
	ErrDuplicateNonce    = errors.New("mempool: sender already has a pending tx at this nonce")
	ErrInsufficientFunds = errors.New("mempool: sender balance insufficient for value + gas")
	ErrPoolFull          = errors.New("mempool: pool is full and this tx does not outbid the cheapest entry")
)

// AccountState is the minimal account view the pool needs to validate
// admission, satisfied by statedb.DB in production and a fake in
// tests.
type AccountState interface {
	GetAccount(addr types.Address) (*types.Account, bool)
}

type entry struct {
	tx *types.Transaction
}

// Pool is the pending transaction pool.
type Pool struct {
	mu      sync.RWMutex
	chainID uint64
	maxSize int

	byHash    map[types.Hash]*entry
	bySender  map[types.Address]map[uint64]*entry // sender -> nonce -> entry
}

func New(chainID uint64, maxSize int) *Pool {
	return &Pool{
		chainID:  chainID,
		maxSize:  maxSize,
		byHash:   make(map[types.Hash]*entry),
		bySender: make(map[types.Address]map[uint64]*entry),
	}
}

// AddTransaction validates and admits tx.
func (p *Pool) AddTransaction(tx *types.Transaction, state AccountState) error {
	if tx.ChainID != p.chainID {
		return ErrInvalidChainID
	}
	from, err := tx.RecoverSender()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	tx.From = from

	acc, _ := state.GetAccount(from)
	var nonce uint64
	var balance *big.Int = new(big.Int)
	if acc != nil {
		nonce = acc.Nonce
		balance = acc.Balance
	}
	if tx.Nonce < nonce {
		return ErrNonceTooLow
	}
	if balance.Cmp(tx.Cost()) < 0 {
		return ErrInsufficientFunds
	}

	return p.admit(tx)
}

// AddSystemTransaction admits a zero-address mint transaction without
// balance/signature/nonce checks.
func (p *Pool) AddSystemTransaction(tx *types.Transaction) error {
	tx.From = types.ZeroAddress
	return p.admit(tx)
}

func (p *Pool) admit(tx *types.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if senderTxs, ok := p.bySender[tx.From]; ok {
		if _, exists := senderTxs[tx.Nonce]; exists {
			return ErrDuplicateNonce
		}
	}

	if len(p.byHash) >= p.maxSize {
		if !p.evictCheapestLocked(tx) {
			return ErrPoolFull
		}
	}

	hash, err := tx.Hash()
	if err != nil {
		return fmt.Errorf("mempool: hash tx: %w", err)
	}
	e := &entry{tx: tx}
	p.byHash[hash] = e
	if p.bySender[tx.From] == nil {
		p.bySender[tx.From] = make(map[uint64]*entry)
	}
	p.bySender[tx.From][tx.Nonce] = e
	return nil
}

// evictCheapestLocked evicts the lowest-gas-price entry if it is
// cheaper than candidate, so the pool stays bounded without dropping a
// more valuable incoming transaction: the pool is bounded by max_size
// with lowest-gas-price eviction. Caller holds p.mu.
func (p *Pool) evictCheapestLocked(candidate *types.Transaction) bool {
	var cheapestHash types.Hash
	var cheapest *types.Transaction
	for hash, e := range p.byHash {
		if cheapest == nil || e.tx.GasPrice.Cmp(cheapest.GasPrice) < 0 {
			cheapest = e.tx
			cheapestHash = hash
		}
	}
	if cheapest == nil || cheapest.GasPrice.Cmp(candidate.GasPrice) >= 0 {
		return false
	}
	p.removeLocked(cheapestHash)
	log.Warn("mempool: evicted lowest gas-price tx to make room", "hash", cheapestHash)
	return true
}

func (p *Pool) removeLocked(hash types.Hash) {
	e, ok := p.byHash[hash]
	if !ok {
		return
	}
	delete(p.byHash, hash)
	if senderTxs, ok := p.bySender[e.tx.From]; ok {
		delete(senderTxs, e.tx.Nonce)
		if len(senderTxs) == 0 {
			delete(p.bySender, e.tx.From)
		}
	}
}

// GetTransactionsForBlock returns up to limit transactions ordered
// FIFO-within-sender (by nonce) and across senders by descending gas
// price.
func (p *Pool) GetTransactionsForBlock(limit int) []*types.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	type head struct {
		sender types.Address
		nonces []uint64
		idx    int
	}
	heads := make([]*head, 0, len(p.bySender))
	for sender, txs := range p.bySender {
		nonces := make([]uint64, 0, len(txs))
		for n := range txs {
			nonces = append(nonces, n)
		}
		sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
		heads = append(heads, &head{sender: sender, nonces: nonces})
	}

	out := make([]*types.Transaction, 0, limit)
	for len(out) < limit {
		// pick the head with the highest gas price among senders that
		// still have a pending transaction.
		var best *head
		var bestTx *types.Transaction
		for _, h := range heads {
			if h.idx >= len(h.nonces) {
				continue
			}
			tx := p.bySender[h.sender][h.nonces[h.idx]].tx
			if best == nil || tx.GasPrice.Cmp(bestTx.GasPrice) > 0 {
				best, bestTx = h, tx
			}
		}
		if best == nil {
			break
		}
		out = append(out, bestTx)
		best.idx++
	}
	return out
}

// RemoveTransactions drops hashes from the pool (e.g. after inclusion
// in a persisted block).
func (p *Pool) RemoveTransactions(hashes []types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range hashes {
		p.removeLocked(h)
	}
}

// GetTransaction looks up a pooled transaction by hash.
func (p *Pool) GetTransaction(hash types.Hash) (*types.Transaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byHash[hash]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// Len returns the number of pooled transactions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byHash)
}
