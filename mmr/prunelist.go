// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package mmr

import (
	"sync"

	"github.com/jrick/bitset"
)

// PruneList tracks which leaves of a prunable MMR (the output and
// rangeproof MMRs of a TxHashSet) have been spent and can eventually be
// compacted away. Node hashes themselves stay in the HashFile; PruneList
// only remembers which leaf positions are logically gone.
type PruneList struct {
	mu     sync.RWMutex
	bits   bitset.Bytes
	cap    int
	pruned uint64
}

// NewPruneList returns an empty PruneList sized for capacity leaves. It
// grows automatically if Prune is called past that.
func NewPruneList(capacity int) *PruneList {
	if capacity < 0 {
		capacity = 0
	}

	return &PruneList{
		bits: bitset.NewBytes(capacity),
		cap:  capacity,
	}
}

// Prune marks leafPos as spent.
func (p *PruneList) Prune(leafPos uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if int(leafPos) >= p.cap {
		p.grow(int(leafPos) + 1)
	}

	if !p.bits.Get(int(leafPos)) {
		p.bits.Set(int(leafPos))
		p.pruned++
	}
}

// IsPruned returns whether leafPos has been pruned.
func (p *PruneList) IsPruned(leafPos uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if int(leafPos) >= p.cap {
		return false
	}

	return p.bits.Get(int(leafPos))
}

// Unprune reverses a previous Prune, used when a chain rewind un-spends an
// output.
func (p *PruneList) Unprune(leafPos uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if int(leafPos) >= p.cap {
		return
	}

	if p.bits.Get(int(leafPos)) {
		p.bits.Unset(int(leafPos))
		p.pruned--
	}
}

// PrunedCount returns the number of leaves pruned so far.
func (p *PruneList) PrunedCount() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.pruned
}

// grow reallocates the bitmap to hold at least n bits. Caller holds p.mu.
func (p *PruneList) grow(n int) {
	grown := bitset.NewBytes(n)
	copy(grown, p.bits)
	p.bits = grown
	p.cap = n
}
