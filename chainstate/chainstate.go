// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

// Package chainstate is the coordinator that sits above store, mmr and
// txhashset: it owns the single lock that guards the header tree, the named
// chain tips and the UTXO accumulator, and drives headers and blocks through
// validation, application and reorg.
package chainstate

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dblokhin/gringo/consensus"
	"github.com/dblokhin/gringo/store"
	"github.com/dblokhin/gringo/txhashset"
)

// ErrOrphan is returned when a header or block's parent is not known.
var ErrOrphan = errors.New("chainstate: parent header is unknown")

// ErrStale is returned when a header is already in the header tree, or
// when a block has already been validated (side blocks included).
var ErrStale = errors.New("chainstate: already known")

// ErrDifficultyTooLow is returned when a header's difficulty falls below
// the window average required at its height.
var ErrDifficultyTooLow = errors.New("chainstate: difficulty below required average")

// ChainState owns everything needed to answer "what is the chain's state"
// and to advance it: the in-memory header tree, the durable chain tips and
// block bodies, and the UTXO accumulator for the confirmed chain.
type ChainState struct {
	mu sync.RWMutex

	arena     *consensus.BlockIndexArena
	chains    *store.ChainStore
	blocks    *store.BlockStore
	txHashSet *txhashset.TxHashSet

	genesisIdx uint32
}

// Open opens (creating if necessary) the chain state rooted at genesis
// under dataDir.
func Open(dataDir string, genesis *consensus.Block) (*ChainState, error) {
	arena := consensus.NewBlockIndexArena()
	genesisIdx := arena.Insert(genesis.Header, consensus.NoParent)
	arena.MarkValidated(genesisIdx)

	blocks, err := store.OpenBlockStore(filepath.Join(dataDir, "blocks"))
	if err != nil {
		return nil, err
	}

	if err := blocks.PutBlock(genesis); err != nil {
		return nil, err
	}

	if err := blocks.IndexHeight(0, genesis.Header.Hash()); err != nil {
		return nil, err
	}

	// Replay the confirmed chain's headers (those indexed by height) stored
	// by a previous run into the arena; headers of other forks are not
	// reloaded. The genesis entry above is re-inserted as index 0 each
	// time, so skip height 0 here.
	if err := blocks.LoadHeaders(func(header *consensus.BlockHeader) error {
		if header.Height == 0 {
			return nil
		}

		parentIdx, ok := arena.IndexOf(header.Previous)
		if !ok {
			return nil
		}

		arena.Insert(*header, parentIdx)
		return nil
	}); err != nil {
		return nil, err
	}

	chains, err := store.OpenChainStore(filepath.Join(dataDir, "chains"), arena)
	if err != nil {
		return nil, err
	}

	for _, kind := range []consensus.ChainKind{consensus.ChainConfirmed, consensus.ChainCandidate, consensus.ChainSync} {
		if _, err := chains.GetChain(kind); err != nil {
			if err := chains.AddBlock(kind, genesisIdx); err != nil {
				return nil, err
			}
		}
	}

	thsPath := filepath.Join(dataDir, "txhashset")
	txHashSet, err := txhashset.Open(thsPath)
	if err != nil {
		return nil, err
	}

	return &ChainState{
		arena:      arena,
		chains:     chains,
		blocks:     blocks,
		txHashSet:  txHashSet,
		genesisIdx: genesisIdx,
	}, nil
}

// Lock acquires the chain state's lock and returns a scoped guard exposing
// its internals, mirroring the refcounted lock-then-use pattern a node's
// networking and mining code both need to share safely.
func (cs *ChainState) Lock() *LockedChainState {
	cs.mu.Lock()
	return &LockedChainState{cs: cs}
}

// RLock acquires the chain state's read lock and returns a scoped guard
// exposing read-only accessors.
func (cs *ChainState) RLock() *LockedChainState {
	cs.mu.RLock()
	return &LockedChainState{cs: cs, readOnly: true}
}

// LockedChainState is a scoped, mutex-held view over ChainState's internal
// stores. Callers obtain one via Lock/RLock, use its accessors, then Unlock
// it; the zero value is not usable.
type LockedChainState struct {
	cs       *ChainState
	readOnly bool
}

// Unlock releases the lock this guard was issued under.
func (l *LockedChainState) Unlock() {
	if l.readOnly {
		l.cs.mu.RUnlock()
		return
	}

	l.cs.mu.Unlock()
}

// Arena returns the header tree.
func (l *LockedChainState) Arena() *consensus.BlockIndexArena { return l.cs.arena }

// Blocks returns the full-block/header key/value store.
func (l *LockedChainState) Blocks() *store.BlockStore { return l.cs.blocks }

// Chains returns the named-chain tip tracker.
func (l *LockedChainState) Chains() *store.ChainStore { return l.cs.chains }

// TxHashSet returns the confirmed chain's UTXO accumulator.
func (l *LockedChainState) TxHashSet() *txhashset.TxHashSet { return l.cs.txHashSet }

// Height returns the confirmed chain's tip height.
func (cs *ChainState) Height() uint64 {
	return cs.chains.Height(consensus.ChainConfirmed)
}

// TotalDifficulty returns the confirmed chain's accumulated difficulty.
func (cs *ChainState) TotalDifficulty() consensus.Difficulty {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	idx, err := cs.chains.GetChain(consensus.ChainConfirmed)
	if err != nil {
		return 0
	}

	return cs.arena.Get(idx).Header.TotalDifficulty
}

// HeaderByHash returns the header for hash, looking first in the in-memory
// tree and falling back to the durable store for anything pruned from it.
func (cs *ChainState) HeaderByHash(hash consensus.Hash) (*consensus.BlockHeader, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if idx, ok := cs.arena.IndexOf(hash); ok {
		h := cs.arena.Get(idx).Header
		return &h, nil
	}

	return cs.blocks.GetHeader(hash)
}

// HeaderAt returns the confirmed chain's header at height.
func (cs *ChainState) HeaderAt(height uint64) (*consensus.BlockHeader, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	idx, err := cs.chains.GetChain(consensus.ChainConfirmed)
	if err != nil {
		return nil, err
	}

	tip := cs.arena.Get(idx)
	if tip.Header.Height < height {
		return nil, fmt.Errorf("chainstate: height %d beyond tip height %d", height, tip.Header.Height)
	}

	ancestorIdx := cs.arena.Ancestor(idx, tip.Header.Height-height)
	if ancestorIdx == consensus.NoParent {
		return nil, fmt.Errorf("chainstate: no header at height %d", height)
	}

	h := cs.arena.Get(ancestorIdx).Header
	return &h, nil
}

// AddHeader checks header's proof of work, validates it against its parent
// and inserts it into the header tree, advancing the candidate chain's tip
// if header now carries the most accumulated difficulty known. Proof of
// work is checked on headers alone, before a full block ever arrives, so a
// peer can't cheaply flood the header tree with unminable forks.
func (cs *ChainState) AddHeader(header *consensus.BlockHeader) error {
	if err := header.Validate(); err != nil {
		return err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	return cs.insertHeader(header)
}

// insertHeader links header to its parent and adds it to the tree, without
// checking its standalone proof of work. Split out from AddHeader so
// parent-linkage and difficulty-window logic can be exercised without
// needing a cuckoo-valid header, the way block-body application is tested
// without needing a full mined block.
func (cs *ChainState) insertHeader(header *consensus.BlockHeader) error {
	hash := header.Hash()
	if _, ok := cs.arena.IndexOf(hash); ok {
		return ErrStale
	}

	parentIdx, ok := cs.arena.IndexOf(header.Previous)
	if !ok {
		return ErrOrphan
	}

	parent := cs.arena.Get(parentIdx)

	if err := consensus.HeaderSelfConsistent(header, &parent.Header); err != nil {
		return err
	}

	if err := cs.checkDifficultyAverage(parentIdx, header); err != nil {
		return err
	}

	idx := cs.arena.Insert(*header, parentIdx)

	if err := cs.blocks.PutHeader(header); err != nil {
		return err
	}

	candidateIdx, err := cs.chains.GetChain(consensus.ChainCandidate)
	if err != nil || header.TotalDifficulty > cs.arena.Get(candidateIdx).Header.TotalDifficulty {
		if err := cs.chains.AddBlock(consensus.ChainCandidate, idx); err != nil {
			return err
		}
	}

	return nil
}

// checkDifficultyAverage walks back DifficultyAdjustWindow+MedianTimeWindow
// headers from parentIdx and checks header's claimed difficulty against the
// window average.
func (cs *ChainState) checkDifficultyAverage(parentIdx uint32, header *consensus.BlockHeader) error {
	limit := consensus.DifficultyAdjustWindow + consensus.MedianTimeWindow

	window := make(consensus.BlockList, 0, limit)
	idx := parentIdx
	for i := 0; i < limit; i++ {
		entry := cs.arena.Get(idx)
		window = append(window, consensus.Block{Header: entry.Header})

		if idx == cs.genesisIdx {
			break
		}

		idx = entry.Parent
		if idx == consensus.NoParent {
			break
		}
	}

	required := consensus.NextDifficulty(window)
	if header.Difficulty < required {
		return fmt.Errorf("%w: got %d, want at least %d", ErrDifficultyTooLow, header.Difficulty, required)
	}

	return nil
}

// AddBlock validates and applies a full block on top of the confirmed
// chain, reorging onto it first if it extends a fork with more work than
// the current confirmed tip.
func (cs *ChainState) AddBlock(block *consensus.Block) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	hash := block.Header.Hash()

	idx, ok := cs.arena.IndexOf(hash)
	if !ok {
		parentIdx, ok := cs.arena.IndexOf(block.Header.Previous)
		if !ok {
			return ErrOrphan
		}

		if err := consensus.HeaderSelfConsistent(&block.Header, &cs.arena.Get(parentIdx).Header); err != nil {
			return err
		}

		idx = cs.arena.Insert(block.Header, parentIdx)
	}

	if cs.arena.Get(idx).Validated {
		return ErrStale
	}

	if err := block.Validate(); err != nil {
		return err
	}

	if err := cs.blocks.PutBlock(block); err != nil {
		return err
	}

	confirmedIdx, err := cs.chains.GetChain(consensus.ChainConfirmed)
	if err != nil {
		return err
	}

	confirmedTip := cs.arena.Get(confirmedIdx)
	if block.Header.TotalDifficulty <= confirmedTip.Header.TotalDifficulty {
		// Weaker than or equal to the confirmed tip: keep it validated and
		// on disk as a side block, available if a later block extends it
		// past the confirmed chain's work, but don't touch the UTXO set.
		cs.arena.MarkValidated(idx)
		logrus.Infof("chainstate: stored side block height %d hash %x, total difficulty %d <= tip %d",
			block.Header.Height, hash, block.Header.TotalDifficulty, confirmedTip.Header.TotalDifficulty)
		return nil
	}

	if err := cs.reorgTo(confirmedIdx, idx, block); err != nil {
		return err
	}

	if err := cs.blocks.IndexHeight(block.Header.Height, hash); err != nil {
		return err
	}

	cs.arena.MarkValidated(idx)

	if err := cs.chains.AddBlock(consensus.ChainConfirmed, idx); err != nil {
		return err
	}

	logrus.Infof("chainstate: accepted block height %d hash %x", block.Header.Height, hash)

	return nil
}

// reorgTo brings the UTXO set from currentTip to newTip and applies block
// at newTip. When currentTip is not itself the lowest common ancestor with
// newTip, it first rewinds the UTXO set to that ancestor and replays the
// stored blocks up to newTip's parent; when it is, block is applied
// directly on the current UTXO set.
func (cs *ChainState) reorgTo(currentTip, newTip uint32, block *consensus.Block) error {
	lca := cs.arena.LowestCommonAncestor(currentTip, newTip)

	if lca != currentTip {
		lcaHeader := cs.arena.Get(lca).Header
		if err := cs.txHashSet.Rewind(&lcaHeader); err != nil {
			return fmt.Errorf("chainstate: reorg rewind: %w", err)
		}

		// Replay every block strictly between the fork point and newTip;
		// newTip itself is applied by the caller, using the just-received
		// block rather than a round trip through the block store.
		path := cs.pathFrom(lca, newTip)
		if len(path) > 0 {
			path = path[:len(path)-1]
		}

		for _, idx := range path {
			entry := cs.arena.Get(idx)

			stored, err := cs.blocks.GetBlock(entry.Hash)
			if err != nil {
				return fmt.Errorf("chainstate: reorg replay: missing block %x: %w", entry.Hash, err)
			}

			if err := cs.applyAndValidate(stored, &entry.Header); err != nil {
				return err
			}
		}
	}

	parentIdx := cs.arena.Get(newTip).Parent
	parentHeader := cs.arena.Get(parentIdx).Header

	if err := consensus.BlockSelfConsistent(block, &parentHeader); err != nil {
		return err
	}

	return cs.applyAndValidate(block, &block.Header)
}

// applyAndValidate applies block to the UTXO set then checks its sizes and
// roots against header, rolling back on mismatch so a bad block never
// leaves the accumulator in a half-applied state.
func (cs *ChainState) applyAndValidate(block *consensus.Block, header *consensus.BlockHeader) error {
	if err := cs.txHashSet.ApplyBlock(block); err != nil {
		return fmt.Errorf("chainstate: apply block: %w", err)
	}

	if err := cs.txHashSet.Validate(header); err != nil {
		_ = cs.txHashSet.Discard()
		return fmt.Errorf("chainstate: utxo set diverged from header: %w", err)
	}

	return cs.txHashSet.Commit()
}

// pathFrom returns the chain of arena indices from lca (exclusive) to tip
// (inclusive), oldest first.
func (cs *ChainState) pathFrom(lca, tip uint32) []uint32 {
	var path []uint32

	for idx := tip; idx != lca && idx != consensus.NoParent; idx = cs.arena.Get(idx).Parent {
		path = append([]uint32{idx}, path...)
	}

	return path
}

// ApplyTxHashSetArchive replaces the local UTXO accumulator with one
// streamed from a peer, used to fast-sync instead of replaying every
// historical block. header must be the confirmed chain's tip at the time
// the archive was produced.
func (cs *ChainState) ApplyTxHashSetArchive(dataDir string, header *consensus.BlockHeader) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	fresh, err := txhashset.Open(dataDir)
	if err != nil {
		return err
	}

	if err := fresh.Validate(header); err != nil {
		return fmt.Errorf("chainstate: txhashset archive does not match header: %w", err)
	}

	cs.txHashSet = fresh
	return nil
}

// FlushAll commits the UTXO accumulator's pending MMR appends to disk. The
// block and chain stores write to LevelDB on every update and are not
// touched here.
func (cs *ChainState) FlushAll() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	return cs.txHashSet.Commit()
}

// Close releases the underlying stores' file handles.
func (cs *ChainState) Close() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err := cs.chains.Close(); err != nil {
		return err
	}

	return cs.blocks.Close()
}
