// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package chainstate

import (
	"bytes"
	"time"

	"github.com/dblokhin/gringo/consensus"
)

func zeroHash() consensus.Hash {
	return bytes.Repeat([]byte{0x00}, consensus.BlockHashSize)
}

// Testnet1 is the first testnet's genesis block.
var Testnet1 = consensus.Block{
	Header: consensus.BlockHeader{
		Version:         1,
		Height:          0,
		Previous:        bytes.Repeat([]byte{0xff}, consensus.BlockHashSize),
		PreviousRoot:    zeroHash(),
		Timestamp:       time.Date(2017, 11, 16, 20, 0, 0, 0, time.UTC),
		Difficulty:      10,
		TotalDifficulty: 10,

		UTXORoot:          zeroHash(),
		RangeProofRoot:    zeroHash(),
		KernelRoot:        zeroHash(),
		TotalKernelOffset: zeroHash(),

		Nonce: 28205,
		POW: consensus.Proof{
			Nonces: []uint32{
				0x21e, 0x7a2, 0xeae, 0x144e, 0x1b1c, 0x1fbd,
				0x203a, 0x214b, 0x293b, 0x2b74, 0x2bfa, 0x2c26,
				0x32bb, 0x346a, 0x34c7, 0x37c5, 0x4164, 0x42cc,
				0x4cc3, 0x55af, 0x5a70, 0x5b14, 0x5e1c, 0x5f76,
				0x6061, 0x60f9, 0x61d7, 0x6318, 0x63a1, 0x63fb,
				0x649b, 0x64e5, 0x65a1, 0x6b69, 0x70f8, 0x71c7,
				0x71cd, 0x7492, 0x7b11, 0x7db8, 0x7f29, 0x7ff8,
			},
		},
	},
}

// Mainnet is the production network's genesis block.
var Mainnet = consensus.Block{
	Header: consensus.BlockHeader{
		Version:         1,
		Height:          0,
		Previous:        bytes.Repeat([]byte{0xff}, consensus.BlockHashSize),
		PreviousRoot:    zeroHash(),
		Timestamp:       time.Date(2018, 8, 14, 0, 0, 0, 0, time.UTC),
		Difficulty:      1000,
		TotalDifficulty: 1000,

		UTXORoot:          zeroHash(),
		RangeProofRoot:    zeroHash(),
		KernelRoot:        zeroHash(),
		TotalKernelOffset: zeroHash(),

		Nonce: 28205,
		POW: consensus.Proof{
			Nonces: []uint32{
				0x21e, 0x7a2, 0xeae, 0x144e, 0x1b1c, 0x1fbd,
				0x203a, 0x214b, 0x293b, 0x2b74, 0x2bfa, 0x2c26,
				0x32bb, 0x346a, 0x34c7, 0x37c5, 0x4164, 0x42cc,
				0x4cc3, 0x55af, 0x5a70, 0x5b14, 0x5e1c, 0x5f76,
				0x6061, 0x60f9, 0x61d7, 0x6318, 0x63a1, 0x63fb,
				0x649b, 0x64e5, 0x65a1, 0x6b69, 0x70f8, 0x71c7,
				0x71cd, 0x7492, 0x7b11, 0x7db8, 0x7f29, 0x7ff8,
			},
		},
	},
}
