// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package mmr

import (
	"sync"

	"golang.org/x/crypto/blake2b"
)

// peak is one root of the forest of perfect binary subtrees a partially
// filled MMR decomposes into.
type peak struct {
	pos    uint64
	height uint64
	hash   Hash
}

// MMR is a Merkle Mountain Range: an append-only log of leaves whose root
// can be recomputed in O(log n) from the current peaks, and which can be
// rewound to any earlier size.
type MMR struct {
	mu    sync.RWMutex
	hf    *HashFile
	peaks []peak
}

// New builds an MMR view over an existing HashFile, reconstructing its
// current peaks from the file's size.
func New(hf *HashFile) (*MMR, error) {
	m := &MMR{hf: hf}
	peaks, err := decomposeAndLoad(hf, hf.Size())
	if err != nil {
		return nil, err
	}

	m.peaks = peaks
	return m, nil
}

// Size returns the total number of nodes (leaves and internal) in the MMR.
func (m *MMR) Size() uint64 {
	return m.hf.Size()
}

// Append adds a new leaf and returns its position, merging it with equal
// height peaks as the post-order layout requires.
func (m *MMR) Append(leaf Hash) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := m.hf.Append(leaf)
	m.peaks = append(m.peaks, peak{pos: pos, height: 0, hash: leaf})

	for len(m.peaks) >= 2 && m.peaks[len(m.peaks)-1].height == m.peaks[len(m.peaks)-2].height {
		right := m.peaks[len(m.peaks)-1]
		left := m.peaks[len(m.peaks)-2]
		m.peaks = m.peaks[:len(m.peaks)-2]

		parentHash := hashNode(left.hash, right.hash)
		parentPos := m.hf.Append(parentHash)
		m.peaks = append(m.peaks, peak{pos: parentPos, height: left.height + 1, hash: parentHash})
	}

	return pos
}

// Root bags the peaks of the MMR as of lastIndex nodes (lastIndex == Size()
// for the current root) into a single hash.
func (m *MMR) Root(lastIndex uint64) (Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if lastIndex == m.hf.Size() {
		return bagPeaks(m.peaks), nil
	}

	peaks, err := decomposeAndLoad(m.hf, lastIndex)
	if err != nil {
		return nil, err
	}

	return bagPeaks(peaks), nil
}

// Get returns the node hash at pos, or an error if it is out of range.
func (m *MMR) Get(pos uint64) (Hash, error) {
	return m.hf.Get(pos)
}

// Rewind truncates the MMR back to newSize nodes and recomputes the peaks
// for that size.
func (m *MMR) Rewind(newSize uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.hf.Rewind(newSize); err != nil {
		return err
	}

	peaks, err := decomposeAndLoad(m.hf, newSize)
	if err != nil {
		return err
	}

	m.peaks = peaks
	return nil
}

// Flush commits pending appends to the backing HashFile.
func (m *MMR) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.hf.Flush()
}

// Discard drops pending appends and restores the peaks to the last flushed
// size.
func (m *MMR) Discard() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hf.Discard()

	peaks, err := decomposeAndLoad(m.hf, m.hf.Size())
	if err != nil {
		return err
	}

	m.peaks = peaks
	return nil
}

// hashNode computes the hash of an internal node from its two children.
func hashNode(left, right Hash) Hash {
	buf := make([]byte, 0, len(left)+len(right))
	buf = append(buf, left...)
	buf = append(buf, right...)
	sum := blake2b.Sum256(buf)
	return sum[:]
}

// bagPeaks folds a right-to-left chain of peak hashes into a single root.
// An empty MMR roots to the zero hash.
func bagPeaks(peaks []peak) Hash {
	if len(peaks) == 0 {
		return make(Hash, HashSize)
	}

	acc := peaks[len(peaks)-1].hash
	for i := len(peaks) - 2; i >= 0; i-- {
		acc = hashNode(peaks[i].hash, acc)
	}

	return acc
}

// decompose returns the (position, height) of every peak of an MMR holding
// size nodes. The decomposition depends only on size, not on history: a
// complete MMR of a given size has one unique forest of perfect binary
// subtrees.
func decompose(size uint64) []struct {
	pos    uint64
	height uint64
} {
	var result []struct {
		pos    uint64
		height uint64
	}

	var consumed uint64
	for consumed < size {
		remaining := size - consumed
		height := highestPeakHeight(remaining)
		treeSize := (uint64(1) << (height + 1)) - 1
		consumed += treeSize
		result = append(result, struct {
			pos    uint64
			height uint64
		}{consumed - 1, height})
	}

	return result
}

// highestPeakHeight returns the height of the largest perfect binary
// subtree (2^(h+1)-1 nodes) that fits within remaining nodes.
func highestPeakHeight(remaining uint64) uint64 {
	var h uint64
	for (uint64(1)<<(h+2))-1 <= remaining {
		h++
	}
	return h
}

// decomposeAndLoad decomposes size into peaks and loads each peak's hash
// from hf.
func decomposeAndLoad(hf *HashFile, size uint64) ([]peak, error) {
	parts := decompose(size)
	peaks := make([]peak, 0, len(parts))

	for _, part := range parts {
		h, err := hf.Get(part.pos)
		if err != nil {
			return nil, err
		}

		peaks = append(peaks, peak{pos: part.pos, height: part.height, hash: h})
	}

	return peaks, nil
}
