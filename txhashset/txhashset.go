// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

// Package txhashset holds the aggregate UTXO state a chain tip is checked
// against: the output, rangeproof and kernel MMRs plus the bitmap of output
// leaves spent so far. It is the Go analogue of the size/root bookkeeping a
// grin-style node keeps per candidate chain tip.
package txhashset

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cespare/xxhash"
	"github.com/sirupsen/logrus"

	"github.com/dblokhin/gringo/consensus"
	"github.com/dblokhin/gringo/mmr"
)

// ErrOutputNotFound is returned when an input spends a commitment TxHashSet
// has never seen.
var ErrOutputNotFound = errors.New("txhashset: spent output not found")

// ErrOutputAlreadySpent is returned when an input spends an output that a
// previous block in the same chain already spent.
var ErrOutputAlreadySpent = errors.New("txhashset: output already spent")

// ErrRootMismatch is returned by Validate when a recomputed MMR root
// disagrees with the header it is being checked against.
var ErrRootMismatch = errors.New("txhashset: mmr root does not match header")

// ErrSizeMismatch is returned by Validate when an MMR's size disagrees with
// the header it is being checked against.
var ErrSizeMismatch = errors.New("txhashset: mmr size does not match header")

// checkpoint captures everything ApplyBlock needs to undo when Rewind or
// Discard walks back past the block it was recorded for.
type checkpoint struct {
	outputMMRSize   uint64
	kernelMMRSize   uint64
	outputLeafCount uint64
	kernelLeafCount uint64
	addedKernels    uint64
	addedCommits    []uint64
	prunedLeaves    []uint64
}

// TxHashSet is the three-MMR aggregate UTXO state of a chain tip.
type TxHashSet struct {
	outputMMR     *mmr.MMR
	rangeProofMMR *mmr.MMR
	kernelMMR     *mmr.MMR
	prune         *mmr.PruneList

	outputLeafCount uint64
	kernelLeafCount uint64

	// commitKeys is indexed by output leaf index, holding the xxhash of
	// that leaf's commitment, so Rewind/Discard can unwind posByCommit
	// without rehashing every live output.
	commitKeys []uint64
	posByCommit map[uint64]uint64

	flushedOutputSize uint64
	flushedKernelSize uint64

	checkpoints []checkpoint
}

// Open opens (creating if necessary) the three hash files under dataDir.
func Open(dataDir string) (*TxHashSet, error) {
	outputHF, err := mmr.OpenHashFile(filepath.Join(dataDir, "output.mmr"))
	if err != nil {
		return nil, err
	}

	rangeProofHF, err := mmr.OpenHashFile(filepath.Join(dataDir, "rangeproof.mmr"))
	if err != nil {
		return nil, err
	}

	kernelHF, err := mmr.OpenHashFile(filepath.Join(dataDir, "kernel.mmr"))
	if err != nil {
		return nil, err
	}

	outputMMR, err := mmr.New(outputHF)
	if err != nil {
		return nil, err
	}

	rangeProofMMR, err := mmr.New(rangeProofHF)
	if err != nil {
		return nil, err
	}

	kernelMMR, err := mmr.New(kernelHF)
	if err != nil {
		return nil, err
	}

	t := &TxHashSet{
		outputMMR:         outputMMR,
		rangeProofMMR:     rangeProofMMR,
		kernelMMR:         kernelMMR,
		prune:             mmr.NewPruneList(0),
		posByCommit:       make(map[uint64]uint64),
		flushedOutputSize: outputMMR.Size(),
		flushedKernelSize: kernelMMR.Size(),
	}

	return t, nil
}

func commitKey(commit []byte) uint64 {
	return xxhash.Sum64(commit)
}

func rangeProofLeaf(o *consensus.Output) mmr.Hash {
	return mmr.Hash(o.RangeProof.Bytes())
}

// ApplyBlock spends the block's inputs and appends its outputs and kernels,
// recording a checkpoint so the whole block can later be undone by Rewind
// or Discard.
func (t *TxHashSet) ApplyBlock(block *consensus.Block) error {
	cp := checkpoint{}

	// unspend reverts the inputs already spent when a later input fails, so
	// a rejected block leaves no leaf pruned.
	unspend := func() {
		for _, leafIdx := range cp.prunedLeaves {
			t.prune.Unprune(leafIdx)
		}
	}

	for i := range block.Inputs {
		key := commitKey(block.Inputs[i].Commit)

		leafIdx, ok := t.posByCommit[key]
		if !ok {
			unspend()
			return fmt.Errorf("%w: %x", ErrOutputNotFound, block.Inputs[i].Commit)
		}

		if t.prune.IsPruned(leafIdx) {
			unspend()
			return fmt.Errorf("%w: %x", ErrOutputAlreadySpent, block.Inputs[i].Commit)
		}

		t.prune.Prune(leafIdx)
		cp.prunedLeaves = append(cp.prunedLeaves, leafIdx)
	}

	for i := range block.Outputs {
		out := &block.Outputs[i]

		leafIdx := t.outputLeafCount
		t.outputMMR.Append(mmr.Hash(out.Hash()))
		t.rangeProofMMR.Append(rangeProofLeaf(out))

		key := commitKey(out.Commit.Bytes())
		t.commitKeys = append(t.commitKeys, key)
		t.posByCommit[key] = leafIdx
		cp.addedCommits = append(cp.addedCommits, key)

		t.outputLeafCount++
	}

	for i := range block.Kernels {
		t.kernelMMR.Append(mmr.Hash(block.Kernels[i].Hash()))
		t.kernelLeafCount++
		cp.addedKernels++
	}

	cp.outputMMRSize = t.outputMMR.Size()
	cp.kernelMMRSize = t.kernelMMR.Size()
	cp.outputLeafCount = t.outputLeafCount
	cp.kernelLeafCount = t.kernelLeafCount

	t.checkpoints = append(t.checkpoints, cp)

	logrus.Debugf("txhashset: applied block height %d, output mmr size %d, kernel mmr size %d",
		block.Header.Height, cp.outputMMRSize, cp.kernelMMRSize)

	return nil
}

// Rewind walks the checkpoint stack back until the output/kernel MMR sizes
// match header, undoing every block popped along the way.
func (t *TxHashSet) Rewind(header *consensus.BlockHeader) error {
	for len(t.checkpoints) > 0 {
		top := t.checkpoints[len(t.checkpoints)-1]
		if top.outputMMRSize == header.OutputMmrSize && top.kernelMMRSize == header.KernelMmrSize {
			break
		}

		t.checkpoints = t.checkpoints[:len(t.checkpoints)-1]
		t.undo(top)
	}

	targetOutputSize := uint64(0)
	targetKernelSize := uint64(0)
	if len(t.checkpoints) > 0 {
		last := t.checkpoints[len(t.checkpoints)-1]
		targetOutputSize = last.outputMMRSize
		targetKernelSize = last.kernelMMRSize
	}

	if targetOutputSize != header.OutputMmrSize || targetKernelSize != header.KernelMmrSize {
		return fmt.Errorf("%w: no checkpoint for output size %d / kernel size %d",
			ErrSizeMismatch, header.OutputMmrSize, header.KernelMmrSize)
	}

	if err := t.outputMMR.Rewind(targetOutputSize); err != nil {
		return err
	}

	if err := t.rangeProofMMR.Rewind(targetOutputSize); err != nil {
		return err
	}

	if err := t.kernelMMR.Rewind(targetKernelSize); err != nil {
		return err
	}

	// The MMR rewinds flush and truncate on disk, so the target sizes are
	// now also the flushed sizes that Discard rolls back to.
	t.flushedOutputSize = targetOutputSize
	t.flushedKernelSize = targetKernelSize
	return nil
}

// undo reverses the bookkeeping a single ApplyBlock recorded: un-prunes the
// leaves its inputs spent and forgets the outputs it added.
func (t *TxHashSet) undo(cp checkpoint) {
	for _, leafIdx := range cp.prunedLeaves {
		t.prune.Unprune(leafIdx)
	}

	for range cp.addedCommits {
		last := len(t.commitKeys) - 1
		key := t.commitKeys[last]
		t.commitKeys = t.commitKeys[:last]
		delete(t.posByCommit, key)
	}

	t.outputLeafCount -= uint64(len(cp.addedCommits))
	t.kernelLeafCount -= cp.addedKernels
}

// Commit flushes the three MMRs, making the current tip durable. Past this
// point the in-memory checkpoint stack still allows rewinding within the
// current process's lifetime, but a fresh Open will only ever see the
// flushed, committed state.
func (t *TxHashSet) Commit() error {
	if err := t.outputMMR.Flush(); err != nil {
		return err
	}

	if err := t.rangeProofMMR.Flush(); err != nil {
		return err
	}

	if err := t.kernelMMR.Flush(); err != nil {
		return err
	}

	t.flushedOutputSize = t.outputMMR.Size()
	t.flushedKernelSize = t.kernelMMR.Size()
	return nil
}

// Discard drops every checkpoint recorded since the last Commit and resets
// the MMRs to their last flushed size.
func (t *TxHashSet) Discard() error {
	for len(t.checkpoints) > 0 {
		top := t.checkpoints[len(t.checkpoints)-1]
		if top.outputMMRSize <= t.flushedOutputSize && top.kernelMMRSize <= t.flushedKernelSize {
			break
		}

		t.checkpoints = t.checkpoints[:len(t.checkpoints)-1]
		t.undo(top)
	}

	if err := t.outputMMR.Discard(); err != nil {
		return err
	}

	if err := t.rangeProofMMR.Discard(); err != nil {
		return err
	}

	return t.kernelMMR.Discard()
}

// Validate checks the TxHashSet's current sizes and roots against header.
// Full kernel-signature and range-proof re-verification is performed once,
// at block-acceptance time, by consensus.Block.Validate/BlockSelfConsistent
// before ApplyBlock is ever called; Validate here re-confirms the
// accumulator itself has not drifted from what the header claims.
func (t *TxHashSet) Validate(header *consensus.BlockHeader) error {
	if t.outputMMR.Size() != header.OutputMmrSize {
		return fmt.Errorf("%w: output mmr size %d != header %d", ErrSizeMismatch, t.outputMMR.Size(), header.OutputMmrSize)
	}

	if t.kernelMMR.Size() != header.KernelMmrSize {
		return fmt.Errorf("%w: kernel mmr size %d != header %d", ErrSizeMismatch, t.kernelMMR.Size(), header.KernelMmrSize)
	}

	utxoRoot, err := t.outputMMR.Root(t.outputMMR.Size())
	if err != nil {
		return err
	}
	if !bytes.Equal(utxoRoot, header.UTXORoot) {
		return fmt.Errorf("%w: utxo root", ErrRootMismatch)
	}

	rangeProofRoot, err := t.rangeProofMMR.Root(t.rangeProofMMR.Size())
	if err != nil {
		return err
	}
	if !bytes.Equal(rangeProofRoot, header.RangeProofRoot) {
		return fmt.Errorf("%w: rangeproof root", ErrRootMismatch)
	}

	kernelRoot, err := t.kernelMMR.Root(t.kernelMMR.Size())
	if err != nil {
		return err
	}
	if !bytes.Equal(kernelRoot, header.KernelRoot) {
		return fmt.Errorf("%w: kernel root", ErrRootMismatch)
	}

	return nil
}

// IsSpendable reports whether commit names a currently live (unspent,
// unpruned) output.
func (t *TxHashSet) IsSpendable(commit []byte) bool {
	leafIdx, ok := t.posByCommit[commitKey(commit)]
	if !ok {
		return false
	}

	return !t.prune.IsPruned(leafIdx)
}

// Roots returns the current UTXO, rangeproof and kernel roots, as stamped
// into a new block header built on top of this tip.
func (t *TxHashSet) Roots() (utxoRoot, rangeProofRoot, kernelRoot mmr.Hash, err error) {
	utxoRoot, err = t.outputMMR.Root(t.outputMMR.Size())
	if err != nil {
		return nil, nil, nil, err
	}

	rangeProofRoot, err = t.rangeProofMMR.Root(t.rangeProofMMR.Size())
	if err != nil {
		return nil, nil, nil, err
	}

	kernelRoot, err = t.kernelMMR.Root(t.kernelMMR.Size())
	if err != nil {
		return nil, nil, nil, err
	}

	return utxoRoot, rangeProofRoot, kernelRoot, nil
}

// Sizes returns the current output and kernel MMR sizes, stamped into a new
// block header as OutputMmrSize/KernelMmrSize.
func (t *TxHashSet) Sizes() (outputMMRSize, kernelMMRSize uint64) {
	return t.outputMMR.Size(), t.kernelMMR.Size()
}
