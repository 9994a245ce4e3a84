// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package cuckoo

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Cuckoo holds the siphash keys and graph sizing for one trimming pass of
// the Cuckoo Cycle proof-of-work over a header.
type Cuckoo struct {
	mask uint64
	size uint64
	v    [4]uint64
}

// New derives a Cuckoo graph context from an arbitrary-length key, normally
// the block header bytes with the proof itself stripped out, and a graph
// size expressed in edge bits (2^edgeBits nodes in total, half on each
// side).
func New(key []byte, edgeBits uint8) *Cuckoo {
	bsum := blake2b.Sum256(key)

	k0 := binary.LittleEndian.Uint64(bsum[:8])
	k1 := binary.LittleEndian.Uint64(bsum[8:16])

	v := [4]uint64{
		k0 ^ 0x736f6d6570736575,
		k1 ^ 0x646f72616e646f6d,
		k0 ^ 0x6c7967656e657261,
		k1 ^ 0x7465646279746573,
	}

	return &Cuckoo{
		mask: (uint64(1)<<edgeBits)/2 - 1,
		size: uint64(1) << edgeBits,
		v:    v,
	}
}

// NewCuckatoo builds the graph context for Grin's primary proof-of-work,
// the ASIC-targeted variant mined at edgeBits 31 and above.
func NewCuckatoo(key []byte, edgeBits uint8) *Cuckoo {
	return New(key, edgeBits)
}

// NewCuckaroo builds the graph context for Grin's secondary proof-of-work,
// the GPU-friendly variant fixed at edgeBits 29.
func NewCuckaroo(key []byte, edgeBits uint8) *Cuckoo {
	return New(key, edgeBits)
}

// NewFromKeys builds a graph context directly from already-derived siphash
// keys, bypassing header hashing. Used against known-answer test vectors.
func NewFromKeys(v [4]uint64, edgeBits uint8) *Cuckoo {
	return &Cuckoo{
		mask: (uint64(1)<<edgeBits)/2 - 1,
		size: uint64(1) << edgeBits,
		v:    v,
	}
}

// Edge is one edge of the bipartite Cuckoo graph, connecting node U on one
// side to node V on the other.
type Edge struct {
	U uint64
	V uint64

	usedU bool
	usedV bool
}

func (c *Cuckoo) newNode(nonce uint64, uv uint64) uint64 {
	return ((siphash24(c.v, 2*nonce+uv) & c.mask) << 1) | uv
}

// NewEdge computes the graph edge a proof nonce maps to.
func (c *Cuckoo) NewEdge(nonce uint32) *Edge {
	return &Edge{
		U: c.newNode(uint64(nonce), 0),
		V: c.newNode(uint64(nonce), 1),
	}
}

// Verify checks that nonces forms a valid, strictly increasing Cuckoo cycle
// of length len(nonces) under the given easiness percentage.
func (c *Cuckoo) Verify(nonces []uint32, ease uint64) bool {
	proofSize := len(nonces)

	// zero proof is always invalid
	if proofSize == 0 {
		return false
	}

	easiness := ease * c.size / 100

	edges := make([]*Edge, proofSize)
	for i, nonce := range nonces {
		if uint64(nonce) >= easiness || (i != 0 && nonce <= nonces[i-1]) {
			return false
		}

		edges[i] = c.NewEdge(nonce)
	}

	return findCycleLength(edges) == proofSize
}

// findCycleLength walks edges alternating between matching shared U nodes and
// shared V nodes, returning the length of the cycle it closes, or a count
// less than len(edges) if the edges never close into one.
func findCycleLength(edges []*Edge) int {
	n := len(edges)

	i := 0    // current edge
	flag := 0 // 0: match on U, 1: match on V
	cycle := 0

loop:
	for {
		if flag%2 == 0 {
			for j := 0; j < n; j++ {
				if j != i && !edges[j].usedU && edges[i].U == edges[j].U {
					edges[i].usedU = true
					edges[j].usedU = true

					i = j
					flag ^= 1
					cycle++

					continue loop
				}
			}
		} else {
			for j := 0; j < n; j++ {
				if j != i && !edges[j].usedV && edges[i].V == edges[j].V {
					edges[i].usedV = true
					edges[j].usedV = true

					i = j
					flag ^= 1
					cycle++

					continue loop
				}
			}
		}

		break
	}

	return cycle
}
