// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package consensus

import "errors"

// Sentinel errors for header/block/chain validation. Of these, only
// ErrInvalidHeader and ErrInvalidBlock are returned (wrapped) by code in
// this repository, and no caller inspects them with errors.Is; peers that
// send invalid data are logged and their data dropped.
var (
	// ErrInvalidHeader is wrapped by HeaderSelfConsistent when a header does
	// not follow from its parent (height, timestamp, previous hash, total
	// difficulty). BlockHeader.Validate's version and proof-of-work errors
	// do not wrap it.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrInvalidBlock is wrapped by BlockSelfConsistent when a block's
	// kernel sums or coinbase sums do not balance. Block.Validate's sort
	// order, weight and cut-through errors do not wrap it.
	ErrInvalidBlock = errors.New("invalid block")

	// ErrOrphanBlock is returned when a block's previous header is not yet
	// known; the block should be parked pending its parent.
	ErrOrphanBlock = errors.New("orphan block: previous header unknown")

	// ErrFork indicates the block extends a chain other than the current
	// head and may require a reorg.
	ErrFork = errors.New("block extends a fork")

	// ErrRootMismatch is returned when a header's UTXORoot, RangeProofRoot
	// or KernelRoot does not match the TxHashSet computed after applying
	// the block.
	ErrRootMismatch = errors.New("block root does not match computed state")

	// ErrStorage wraps an underlying persistence failure.
	ErrStorage = errors.New("storage error")

	// ErrBanned marks a peer-originated error severe enough to ban the peer.
	ErrBanned = errors.New("banned: peer violated protocol")
)
