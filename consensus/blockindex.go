// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package consensus

import "encoding/hex"

// NoParent marks a BlockIndex entry with no parent, either the genesis
// block or an entry not yet linked to its predecessor.
const NoParent uint32 = ^uint32(0)

// ChainKind names one of the named chains a BlockIndex entry can belong to.
type ChainKind uint8

const (
	// ChainConfirmed is the fully validated, applied chain.
	ChainConfirmed ChainKind = iota
	// ChainCandidate is the chain of headers-only blocks with the most
	// accumulated difficulty, not necessarily fully validated yet.
	ChainCandidate
	// ChainSync is the chain being built up while syncing headers from a peer.
	ChainSync
)

func (k ChainKind) String() string {
	switch k {
	case ChainConfirmed:
		return "confirmed"
	case ChainCandidate:
		return "candidate"
	case ChainSync:
		return "sync"
	default:
		return "unknown"
	}
}

// BlockIndex is one entry of the dense, append-only arena that backs the
// chain's header tree. Entries reference their parent by its arena index
// rather than by pointer, so the whole tree can be held and walked without
// the allocator pressure or cyclic references a pointer-linked graph would
// require.
type BlockIndex struct {
	Header BlockHeader
	Hash   Hash

	// Parent is the arena index of this entry's parent, or NoParent.
	Parent uint32

	// Validated records whether this entry's block body has been fully
	// applied against the UTXO set, not just its header.
	Validated bool
}

// BlockIndexArena holds the full set of known headers, indexed by their
// position and keyed for lookup by hash.
type BlockIndexArena struct {
	entries []BlockIndex
	byHash  map[string]uint32
}

// NewBlockIndexArena returns an empty arena.
func NewBlockIndexArena() *BlockIndexArena {
	return &BlockIndexArena{
		byHash: make(map[string]uint32),
	}
}

func hashKey(h Hash) string {
	return hex.EncodeToString(h)
}

// Insert adds a new entry to the arena and returns its index. parent is
// NoParent for the genesis entry.
func (a *BlockIndexArena) Insert(header BlockHeader, parent uint32) uint32 {
	entry := BlockIndex{
		Header: header,
		Hash:   header.Hash(),
		Parent: parent,
	}

	idx := uint32(len(a.entries))
	a.entries = append(a.entries, entry)
	a.byHash[hashKey(entry.Hash)] = idx

	return idx
}

// Get returns the entry at idx. idx must be a value previously returned by
// Insert or IndexOf; NoParent is never a valid argument.
func (a *BlockIndexArena) Get(idx uint32) *BlockIndex {
	return &a.entries[idx]
}

// IndexOf returns the arena index for hash and whether it was found.
func (a *BlockIndexArena) IndexOf(hash Hash) (uint32, bool) {
	idx, ok := a.byHash[hashKey(hash)]
	return idx, ok
}

// MarkValidated flips the Validated flag for idx.
func (a *BlockIndexArena) MarkValidated(idx uint32) {
	a.entries[idx].Validated = true
}

// Ancestor walks up height generations from idx and returns the ancestor's
// index, or NoParent if the chain is shorter than that.
func (a *BlockIndexArena) Ancestor(idx uint32, generations uint64) uint32 {
	for ; generations > 0 && idx != NoParent; generations-- {
		idx = a.entries[idx].Parent
	}

	if generations > 0 {
		return NoParent
	}

	return idx
}

// LowestCommonAncestor returns the arena index where the chains ending at x
// and y diverge, walking both back to equal height first.
func (a *BlockIndexArena) LowestCommonAncestor(x, y uint32) uint32 {
	heightOf := func(idx uint32) uint64 { return a.entries[idx].Header.Height }

	for heightOf(x) > heightOf(y) {
		x = a.entries[x].Parent
	}
	for heightOf(y) > heightOf(x) {
		y = a.entries[y].Parent
	}

	for x != y && x != NoParent && y != NoParent {
		x = a.entries[x].Parent
		y = a.entries[y].Parent
	}

	return x
}
