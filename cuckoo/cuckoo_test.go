// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package cuckoo

import (
	"encoding/binary"
	"encoding/hex"
	"testing"
)

func TestSum(t *testing.T) {
	if siphash24([4]uint64{1, 2, 3, 4}, 10) != uint64(928382149599306901) {
		t.Errorf("siphash24 was incorrect, want: %d.", uint64(928382149599306901))
	}
	if siphash24([4]uint64{1, 2, 3, 4}, 111) != uint64(10524991083049122233) {
		t.Errorf("siphash24 was incorrect, want: %d.", uint64(10524991083049122233))
	}
	if siphash24([4]uint64{9, 7, 6, 7}, 12) != uint64(1305683875471634734) {
		t.Errorf("siphash24 was incorrect, want: %d.", uint64(1305683875471634734))
	}
	if siphash24([4]uint64{9, 7, 6, 7}, 10) != uint64(11589833042187638814) {
		t.Errorf("siphash24 was incorrect, want: %d.", uint64(11589833042187638814))
	}
}

func TestBlock(t *testing.T) {
	if siphashBlock([4]uint64{1, 2, 3, 4}, 10) != uint64(1182162244994096396) {
		t.Errorf("siphashBlock was incorrect, want: %d.", uint64(1182162244994096396))
	}
	if siphashBlock([4]uint64{1, 2, 3, 4}, 123) != uint64(11303676240481718781) {
		t.Errorf("siphashBlock was incorrect, want: %d.", uint64(11303676240481718781))
	}
	if siphashBlock([4]uint64{9, 7, 6, 7}, 12) != uint64(4886136884237259030) {
		t.Errorf("siphashBlock was incorrect, want: %d.", uint64(4886136884237259030))
	}
}

func TestKeyDerivation(t *testing.T) {
	header := [80]byte{}

	// Replace the last four bytes of the key with the nonce.
	nonce := 20
	header[len(header)-4] = byte(nonce)
	header[len(header)-3] = byte(nonce << 8)
	header[len(header)-2] = byte(nonce << 16)
	header[len(header)-1] = byte(nonce << 24)

	graph := NewCuckatoo(header[:], 29)

	k0, _ := hex.DecodeString("27580576fe290177")
	k1, _ := hex.DecodeString("f9ea9b2031f4e76e")
	k2, _ := hex.DecodeString("1663308c8607868f")
	k3, _ := hex.DecodeString("b88839b0fa180d0e")

	if binary.BigEndian.Uint64(k0) != graph.v[0] {
		t.Errorf("key derivation failed, got %x expected %x", graph.v[0], binary.BigEndian.Uint64(k0))
	}
	if binary.BigEndian.Uint64(k1) != graph.v[1] {
		t.Errorf("key derivation failed, got %x expected %x", graph.v[1], binary.BigEndian.Uint64(k1))
	}
	if binary.BigEndian.Uint64(k2) != graph.v[2] {
		t.Errorf("key derivation failed, got %x expected %x", graph.v[2], binary.BigEndian.Uint64(k2))
	}
	if binary.BigEndian.Uint64(k3) != graph.v[3] {
		t.Errorf("key derivation failed, got %x expected %x", graph.v[3], binary.BigEndian.Uint64(k3))
	}
}

func TestVerifyRejectsUnsortedNonces(t *testing.T) {
	graph := NewCuckatoo([]byte("test header"), 29)

	// Deliberately out of order; Verify rejects the list in its ordering
	// check at the second nonce, before any cycle search.
	nonces := []uint32{5, 3, 1, 2, 4}
	if graph.Verify(nonces, Easiness) {
		t.Error("expected unsorted nonce list to be rejected")
	}
}

func TestVerifyRejectsEmptyProof(t *testing.T) {
	graph := NewCuckatoo([]byte("test header"), 29)

	if graph.Verify(nil, Easiness) {
		t.Error("expected empty proof to be rejected")
	}
}

func TestFindCycleLength(t *testing.T) {
	// Construct the example graph in figure 1 of the cuckoo cycle paper. The
	// cycle is: 8 -> 9 -> 4 -> 13 -> 10 -> 5 -> 8.
	edges := []*Edge{
		{U: 8, V: 5},
		{U: 10, V: 5},
		{U: 4, V: 9},
		{U: 4, V: 13},
		{U: 8, V: 9},
		{U: 10, V: 13},
	}

	if got := findCycleLength(edges); got != len(edges) {
		t.Errorf("expected a full %d-cycle, got %d", len(edges), got)
	}
}

func TestFindCycleLengthOpenPath(t *testing.T) {
	// Construct a path that isn't closed: 1 -> 5 -> 4 -> 9 -> 8 -> 11 -> 10.
	edges := []*Edge{
		{U: 1, V: 5},
		{U: 5, V: 4},
		{U: 4, V: 9},
		{U: 9, V: 8},
		{U: 8, V: 11},
		{U: 11, V: 10},
	}

	if cycle := findCycleLength(edges); cycle == len(edges) {
		t.Errorf("expected an open path to not form a cycle, got %d", cycle)
	}
}

func TestFindCycleLengthOddCycle(t *testing.T) {
	// Construct a length-3 cycle, which would imply a non-bipartite graph
	// and must never close under alternating U/V matching: 2 -> 4 -> 5 -> 2.
	edges := []*Edge{
		{U: 2, V: 4},
		{U: 4, V: 5},
		{U: 5, V: 2},
	}

	if cycle := findCycleLength(edges); cycle == len(edges) {
		t.Errorf("expected an odd cycle to not close, got %d", cycle)
	}
}

const Easiness = 50
