// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package secp256k1zkp

import (
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

// SubtractScalars returns (a - b) mod N, as a 32-byte big-endian scalar. Used
// to recover a block's own kernel offset from the chain's running total:
// header.TotalKernelOffset - previous.TotalKernelOffset.
func SubtractScalars(a, b []byte) []byte {
	n := btcec.S256().N

	x := new(big.Int).SetBytes(a)
	y := new(big.Int).SetBytes(b)

	d := new(big.Int).Sub(x, y)
	d.Mod(d, n)

	out := make([]byte, SecretKeySize)
	d.FillBytes(out)

	return out
}

// AddScalars returns (a + b) mod N, as a 32-byte big-endian scalar. Used to
// accumulate a block's kernel offset into the chain's running total.
func AddScalars(a, b []byte) []byte {
	n := btcec.S256().N

	x := new(big.Int).SetBytes(a)
	y := new(big.Int).SetBytes(b)

	s := new(big.Int).Add(x, y)
	s.Mod(s, n)

	out := make([]byte, SecretKeySize)
	s.FillBytes(out)

	return out
}
