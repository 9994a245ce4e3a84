// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package chainstate

import (
	"testing"
	"time"

	"github.com/dblokhin/gringo/consensus"
)

func newTestChainState(t *testing.T) *ChainState {
	t.Helper()

	genesis := Testnet1

	cs, err := Open(t.TempDir(), &genesis)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() {
		_ = cs.Close()
	})

	return cs
}

func childHeader(parent *consensus.BlockHeader) consensus.BlockHeader {
	return consensus.BlockHeader{
		Version:           parent.Version,
		Height:            parent.Height + 1,
		Previous:          parent.Hash(),
		PreviousRoot:      zeroHash(),
		Timestamp:         parent.Timestamp.Add(time.Minute),
		UTXORoot:          zeroHash(),
		RangeProofRoot:    zeroHash(),
		KernelRoot:        zeroHash(),
		TotalKernelOffset: zeroHash(),
		Difficulty:        1,
		TotalDifficulty:   parent.TotalDifficulty + 1,
	}
}

func TestOpenInitializesGenesis(t *testing.T) {
	cs := newTestChainState(t)

	if cs.Height() != 0 {
		t.Fatalf("expected genesis height 0, got %d", cs.Height())
	}

	genesisHash := Testnet1.Header.Hash()
	header, err := cs.HeaderByHash(genesisHash)
	if err != nil {
		t.Fatalf("HeaderByHash(genesis): %v", err)
	}

	if header.Height != 0 {
		t.Fatalf("expected genesis header height 0, got %d", header.Height)
	}
}

func TestAddHeaderExtendsCandidateChain(t *testing.T) {
	cs := newTestChainState(t)

	genesis := Testnet1.Header
	h1 := childHeader(&genesis)

	if err := cs.insertHeader(&h1); err != nil {
		t.Fatalf("AddHeader: %v", err)
	}

	got, err := cs.HeaderByHash(h1.Hash())
	if err != nil {
		t.Fatalf("HeaderByHash: %v", err)
	}

	if got.Height != 1 {
		t.Fatalf("expected height 1, got %d", got.Height)
	}

	candidateIdx, err := cs.chains.GetChain(consensus.ChainCandidate)
	if err != nil {
		t.Fatalf("GetChain(candidate): %v", err)
	}

	if tip := cs.arena.Get(candidateIdx).Header; tip.Height != 1 {
		t.Fatalf("expected candidate tip at height 1, got %d", tip.Height)
	}
}

func TestAddHeaderRejectsOrphan(t *testing.T) {
	cs := newTestChainState(t)

	orphanParent := Testnet1.Header
	orphanParent.Nonce = 999999 // gives it a different hash, never inserted
	h := childHeader(&orphanParent)

	if err := cs.insertHeader(&h); err != ErrOrphan {
		t.Fatalf("expected ErrOrphan, got %v", err)
	}
}

func TestAddHeaderRejectsStaleDuplicate(t *testing.T) {
	cs := newTestChainState(t)

	genesis := Testnet1.Header
	h1 := childHeader(&genesis)

	if err := cs.insertHeader(&h1); err != nil {
		t.Fatalf("AddHeader: %v", err)
	}

	if err := cs.insertHeader(&h1); err != ErrStale {
		t.Fatalf("expected ErrStale on duplicate header, got %v", err)
	}
}

func TestAddHeaderRejectsBadTotalDifficulty(t *testing.T) {
	cs := newTestChainState(t)

	genesis := Testnet1.Header
	h1 := childHeader(&genesis)
	h1.TotalDifficulty = genesis.TotalDifficulty + 5 // should be +1

	if err := cs.insertHeader(&h1); err == nil {
		t.Fatal("expected AddHeader to reject a bad total difficulty")
	}
}

func TestAddHeaderRejectsUnminedProofOfWork(t *testing.T) {
	cs := newTestChainState(t)

	genesis := Testnet1.Header
	h1 := childHeader(&genesis)

	// childHeader leaves POW at its zero value, which is not a solved
	// cuckoo cycle; AddHeader must reject it before it ever reaches the
	// header tree, unlike insertHeader which skips that check.
	if err := cs.AddHeader(&h1); err == nil {
		t.Fatal("expected AddHeader to reject a header with no proof of work")
	}

	if _, ok := cs.arena.IndexOf(h1.Hash()); ok {
		t.Fatal("expected a header that fails proof-of-work validation to never reach the tree")
	}
}

func TestHeaderAtWalksConfirmedChain(t *testing.T) {
	cs := newTestChainState(t)

	header, err := cs.HeaderAt(0)
	if err != nil {
		t.Fatalf("HeaderAt(0): %v", err)
	}

	if header.Height != 0 {
		t.Fatalf("expected height 0, got %d", header.Height)
	}
}
