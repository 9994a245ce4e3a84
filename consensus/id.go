// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package consensus

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"github.com/dchest/siphash"
)

const (
	// ShortIDSize is the size of a short id used to identify inputs, outputs
	// and kernels inside a compact block (6 bytes).
	ShortIDSize = 6
)

// Hash is a 32-byte hash: a block hash, a commitment, a kernel excess.
type Hash []byte

// ShortID derives the compact-block short identifier for this hash, keyed
// by the hash of the block the short id is being embedded in.
func (h Hash) ShortID(blockHash Hash) ShortID {
	result := make(ShortID, ShortIDSize+2)

	k0 := binary.LittleEndian.Uint64(blockHash[:8])
	k1 := binary.LittleEndian.Uint64(blockHash[8:16])

	hash := siphash.Hash(k0, k1, h)
	binary.LittleEndian.PutUint64(result, hash)

	return result[0:ShortIDSize]
}

// ShortID is a 6-byte identifier used to reference a transaction output or
// kernel inside a CompactBlock without sending its full content.
type ShortID []byte

// String returns the hex representation of the short id.
func (id ShortID) String() string {
	return hex.EncodeToString(id)
}

// ShortIDList is a sortable list of ShortID, ordered lexicographically as
// the wire format requires.
type ShortIDList []ShortID

func (s ShortIDList) Len() int {
	return len(s)
}

func (s ShortIDList) Less(i, j int) bool {
	return bytes.Compare(s[i], s[j]) < 0
}

func (s ShortIDList) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}
