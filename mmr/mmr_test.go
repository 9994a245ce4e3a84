// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package mmr

import (
	"bytes"
	"path/filepath"
	"testing"
)

func leaf(b byte) Hash {
	h := make(Hash, HashSize)
	h[0] = b
	return h
}

func newTestMMR(t *testing.T) (*MMR, *HashFile) {
	t.Helper()

	hf, err := OpenHashFile(filepath.Join(t.TempDir(), "hashes.dat"))
	if err != nil {
		t.Fatalf("OpenHashFile: %v", err)
	}

	m, err := New(hf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return m, hf
}

func TestAppendGrowsSize(t *testing.T) {
	m, _ := newTestMMR(t)

	if m.Size() != 0 {
		t.Fatalf("expected empty MMR, got size %d", m.Size())
	}

	for i := byte(0); i < 4; i++ {
		m.Append(leaf(i))
	}

	// 4 leaves merge into: leaf0, leaf1, parent01, leaf2, leaf3, parent23, parent0123 = 7 nodes
	if m.Size() != 7 {
		t.Fatalf("expected size 7 after 4 leaves, got %d", m.Size())
	}
}

func TestRootStableAcrossReload(t *testing.T) {
	m, hf := newTestMMR(t)

	for i := byte(0); i < 5; i++ {
		m.Append(leaf(i))
	}

	if err := m.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	root1, err := m.Root(m.Size())
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	reloaded, err := New(hf)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}

	root2, err := reloaded.Root(reloaded.Size())
	if err != nil {
		t.Fatalf("Root (reload): %v", err)
	}

	if !bytes.Equal(root1, root2) {
		t.Fatal("root changed across reload of the same hash file")
	}
}

func TestRootChangesWithEachAppend(t *testing.T) {
	m, _ := newTestMMR(t)

	m.Append(leaf(1))
	rootA, err := m.Root(m.Size())
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	m.Append(leaf(2))
	rootB, err := m.Root(m.Size())
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	if bytes.Equal(rootA, rootB) {
		t.Fatal("root did not change after appending a new leaf")
	}
}

func TestRewindRestoresPriorRoot(t *testing.T) {
	m, _ := newTestMMR(t)

	m.Append(leaf(1))
	m.Append(leaf(2))
	sizeAfterTwo := m.Size()
	rootAfterTwo, err := m.Root(sizeAfterTwo)
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	if err := m.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	m.Append(leaf(3))
	m.Append(leaf(4))

	if err := m.Rewind(sizeAfterTwo); err != nil {
		t.Fatalf("Rewind: %v", err)
	}

	if m.Size() != sizeAfterTwo {
		t.Fatalf("expected size %d after rewind, got %d", sizeAfterTwo, m.Size())
	}

	rootAfterRewind, err := m.Root(m.Size())
	if err != nil {
		t.Fatalf("Root: %v", err)
	}

	if !bytes.Equal(rootAfterTwo, rootAfterRewind) {
		t.Fatal("root after rewind does not match the root recorded before the extra appends")
	}
}

func TestDiscardDropsUnflushedAppends(t *testing.T) {
	m, _ := newTestMMR(t)

	m.Append(leaf(1))
	if err := m.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	sizeBefore := m.Size()

	m.Append(leaf(2))
	m.Append(leaf(3))

	if err := m.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	if m.Size() != sizeBefore {
		t.Fatalf("expected size %d after discard, got %d", sizeBefore, m.Size())
	}
}

func TestHistoricalRootMatchesRootAtTheTime(t *testing.T) {
	m, _ := newTestMMR(t)

	var sizes []uint64
	var roots []Hash

	for i := byte(0); i < 6; i++ {
		m.Append(leaf(i))
		sizes = append(sizes, m.Size())

		root, err := m.Root(m.Size())
		if err != nil {
			t.Fatalf("Root: %v", err)
		}

		roots = append(roots, root)
	}

	for i, size := range sizes {
		got, err := m.Root(size)
		if err != nil {
			t.Fatalf("Root(%d): %v", size, err)
		}

		if !bytes.Equal(got, roots[i]) {
			t.Fatalf("historical root at size %d does not match the root recorded at that size", size)
		}
	}
}

func TestPruneList(t *testing.T) {
	pl := NewPruneList(4)

	if pl.IsPruned(2) {
		t.Fatal("leaf 2 should not be pruned yet")
	}

	pl.Prune(2)
	if !pl.IsPruned(2) {
		t.Fatal("leaf 2 should be pruned")
	}

	if pl.PrunedCount() != 1 {
		t.Fatalf("expected pruned count 1, got %d", pl.PrunedCount())
	}

	// Pruning past initial capacity should grow the bitmap instead of panicking.
	pl.Prune(100)
	if !pl.IsPruned(100) {
		t.Fatal("leaf 100 should be pruned after growth")
	}

	if pl.PrunedCount() != 2 {
		t.Fatalf("expected pruned count 2, got %d", pl.PrunedCount())
	}
}
