// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/dblokhin/gringo/consensus"
)

// ErrUnknownChain is returned when a ChainKind has never had a tip set.
var ErrUnknownChain = errors.New("store: chain has no tip")

var tipKeys = map[consensus.ChainKind]string{
	consensus.ChainConfirmed: "tip:confirmed",
	consensus.ChainCandidate: "tip:candidate",
	consensus.ChainSync:      "tip:sync",
}

// ChainStore tracks the current tip hash of each named chain and persists
// it, so a restart resumes from the same tip instead of just the genesis
// block. The tree of headers between tips lives in the in-memory
// consensus.BlockIndexArena; ChainStore only durably remembers which leaf of
// that tree each chain currently points at.
type ChainStore struct {
	mu sync.RWMutex
	db *leveldb.DB

	tips  map[consensus.ChainKind]consensus.Hash
	arena *consensus.BlockIndexArena
}

// OpenChainStore opens (creating if necessary) the LevelDB database at path
// and loads any previously recorded chain tips.
func OpenChainStore(path string, arena *consensus.BlockIndexArena) (*ChainStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open chain store: %w", err)
	}

	cs := &ChainStore{
		db:    db,
		tips:  make(map[consensus.ChainKind]consensus.Hash),
		arena: arena,
	}

	for kind, key := range tipKeys {
		raw, err := db.Get([]byte(key), nil)
		if err != nil {
			if errors.Is(err, leveldb.ErrNotFound) {
				continue
			}
			db.Close()
			return nil, fmt.Errorf("store: load tip for %s: %w", kind, err)
		}

		cs.tips[kind] = consensus.Hash(append([]byte(nil), raw...))
	}

	return cs, nil
}

// Close releases the underlying LevelDB handle.
func (cs *ChainStore) Close() error {
	return cs.db.Close()
}

// GetChain returns the arena index of kind's current tip.
func (cs *ChainStore) GetChain(kind consensus.ChainKind) (uint32, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	hash, ok := cs.tips[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChain, kind)
	}

	idx, ok := cs.arena.IndexOf(hash)
	if !ok {
		return 0, fmt.Errorf("store: tip hash for %s not present in arena", kind)
	}

	return idx, nil
}

// AddBlock sets kind's tip to the arena entry at idx and persists it. The
// move is unconditional: AddBlock does not check that idx descends from the
// previous tip and never reports a fork.
func (cs *ChainStore) AddBlock(kind consensus.ChainKind, idx uint32) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	entry := cs.arena.Get(idx)
	hash := entry.Hash

	key, ok := tipKeys[kind]
	if !ok {
		return fmt.Errorf("store: unknown chain kind %s", kind)
	}

	if err := cs.db.Put([]byte(key), hash, nil); err != nil {
		return fmt.Errorf("store: persist tip for %s: %w", kind, err)
	}

	cs.tips[kind] = hash
	return nil
}

// Fork moves kind's tip to newTip, regardless of whether newTip descends
// from the chain's previous tip. It is AddBlock under another name;
// chainstate moves every tip, reorgs included, with AddBlock.
func (cs *ChainStore) Fork(kind consensus.ChainKind, newTip uint32) error {
	return cs.AddBlock(kind, newTip)
}

// Height returns the height of kind's current tip, or 0 if kind has no tip
// yet.
func (cs *ChainStore) Height(kind consensus.ChainKind) uint64 {
	idx, err := cs.GetChain(kind)
	if err != nil {
		return 0
	}

	return cs.arena.Get(idx).Header.Height
}
