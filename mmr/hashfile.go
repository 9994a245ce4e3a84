// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

// Package mmr implements an append-only Merkle Mountain Range: the node
// storage (HashFile), the pruned-leaf bitmap (PruneList) and the peak/root
// math shared by the header MMR and the three MMRs inside a TxHashSet.
package mmr

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// HashSize is the length in bytes of a single MMR node hash.
const HashSize = 32

// Hash is a single MMR node hash, leaf or internal.
type Hash []byte

// HashFile is the flat, append-only backing store for an MMR: every node,
// leaf and internal, is written in the order it is created, which is
// exactly the canonical post-order position assigned to it. Appends are
// buffered in memory until Flush commits them to disk; Discard drops them
// instead.
type HashFile struct {
	mu sync.Mutex

	file *os.File
	// size is the number of hashes already committed to file.
	size uint64
	// pending holds hashes appended since the last Flush.
	pending []Hash
}

// OpenHashFile opens (creating if necessary) the hash file at path.
func OpenHashFile(path string) (*HashFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("mmr: open hash file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmr: stat hash file: %w", err)
	}

	if stat.Size()%HashSize != 0 {
		f.Close()
		return nil, fmt.Errorf("mmr: hash file %s has a truncated trailing record", path)
	}

	return &HashFile{
		file: f,
		size: uint64(stat.Size()) / HashSize,
	}, nil
}

// Size returns the total number of hashes, committed plus pending.
func (hf *HashFile) Size() uint64 {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	return hf.size + uint64(len(hf.pending))
}

// Append buffers h as the next node and returns its position.
func (hf *HashFile) Append(h Hash) uint64 {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	pos := hf.size + uint64(len(hf.pending))
	hf.pending = append(hf.pending, h)
	return pos
}

// Get returns the hash at pos, whether committed or still pending.
func (hf *HashFile) Get(pos uint64) (Hash, error) {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	if pos < hf.size {
		buf := make([]byte, HashSize)
		if _, err := hf.file.ReadAt(buf, int64(pos)*HashSize); err != nil {
			return nil, fmt.Errorf("mmr: read position %d: %w", pos, err)
		}
		return buf, nil
	}

	idx := pos - hf.size
	if idx >= uint64(len(hf.pending)) {
		return nil, fmt.Errorf("mmr: position %d out of range (size %d)", pos, hf.size+uint64(len(hf.pending)))
	}

	return hf.pending[idx], nil
}

// Flush commits all pending appends to disk.
func (hf *HashFile) Flush() error {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	return hf.flushLocked()
}

func (hf *HashFile) flushLocked() error {
	if len(hf.pending) == 0 {
		return nil
	}

	if _, err := hf.file.Seek(int64(hf.size)*HashSize, io.SeekStart); err != nil {
		return fmt.Errorf("mmr: seek for flush: %w", err)
	}

	for _, h := range hf.pending {
		if _, err := hf.file.Write(h); err != nil {
			return fmt.Errorf("mmr: write during flush: %w", err)
		}
	}

	if err := hf.file.Sync(); err != nil {
		return fmt.Errorf("mmr: sync during flush: %w", err)
	}

	hf.size += uint64(len(hf.pending))
	hf.pending = hf.pending[:0]
	return nil
}

// Discard drops all pending, unflushed appends.
func (hf *HashFile) Discard() {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	hf.pending = hf.pending[:0]
}

// Rewind flushes pending writes, truncates the file down to newSize
// committed hashes and clears the buffer.
func (hf *HashFile) Rewind(newSize uint64) error {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	if err := hf.flushLocked(); err != nil {
		return err
	}

	if newSize > hf.size {
		return fmt.Errorf("mmr: cannot rewind to %d past current size %d", newSize, hf.size)
	}

	if err := hf.file.Truncate(int64(newSize) * HashSize); err != nil {
		return fmt.Errorf("mmr: truncate: %w", err)
	}

	hf.size = newSize
	hf.pending = hf.pending[:0]

	_, err := hf.file.Seek(0, io.SeekEnd)
	return err
}

// Close releases the underlying file descriptor.
func (hf *HashFile) Close() error {
	return hf.file.Close()
}
