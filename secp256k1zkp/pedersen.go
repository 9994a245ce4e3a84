// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package secp256k1zkp

import (
	"fmt"
	"io"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
	. "github.com/yoss22/bulletproofs"
)

const (
	// PedersenCommitmentSize is the length in bytes of a serialized, compressed
	// Pedersen commitment (a curve point).
	PedersenCommitmentSize = 33

	// MaxSignatureSize is the length in bytes of a serialized Schnorr signature.
	MaxSignatureSize = 64

	// MaxProofSize is the maximum length in bytes of a serialized bulletproof
	// range proof.
	MaxProofSize = 5134

	// SecretKeySize is the length in bytes of a scalar (blinding factor,
	// kernel offset) on the secp256k1 curve.
	SecretKeySize = 32
)

// Commitment is a compressed Pedersen commitment r*G + v*H to some value v,
// blinded by r.
type Commitment []byte

// Bytes implements the p2p Message interface.
func (c *Commitment) Bytes() []byte {
	return *c
}

// Read implements the p2p Message interface.
func (c *Commitment) Read(r io.Reader) error {
	if len(*c) == 0 {
		*c = make([]byte, PedersenCommitmentSize)
	}

	_, err := io.ReadFull(r, *c)
	return err
}

// String implements the String() interface.
func (c Commitment) String() string {
	return fmt.Sprintf("%#v", c)
}

// RangeProof is a bulletproof attesting that a commitment's hidden value
// lies in [0, 2^64) without revealing the value.
type RangeProof struct {
	// Proof holds the serialized proof bytes, at most MaxProofSize long.
	Proof []byte
	// ProofLen is the number of meaningful bytes in Proof.
	ProofLen int
}

// point decompresses a serialized commitment into a curve point, choosing
// the y root whose parity matches the commitment's tag byte.
func point(c Commitment) *Point {
	p := new(Point)
	p.X = new(big.Int).SetBytes(c[1:])
	p.Y = liftX(c[1:])
	if (p.Y.Bit(0) == 1) != (len(c) > 0 && c[0] == TagPubkeyOdd) {
		p.Y = new(big.Int).Sub(btcec.S256().Params().P, p.Y)
	}
	return p
}

// commitmentBytes compresses a curve point back into a commitment.
func commitmentBytes(p *Point) Commitment {
	compressed := CompressPubkey(*p)
	return Commitment(compressed[:])
}

// SumCommitments adds a list of Pedersen commitments into a single
// commitment to the sum of their hidden values.
func SumCommitments(commits ...Commitment) Commitment {
	if len(commits) == 0 {
		return Commitment(make([]byte, PedersenCommitmentSize))
	}

	sum := point(commits[0])
	for _, c := range commits[1:] {
		sum = SumPoints(sum, point(c))
	}

	return commitmentBytes(sum)
}

// SubtractCommitments returns the commitment to (a - b), computed as
// a + (-b) on the curve.
func SubtractCommitments(a, b Commitment) Commitment {
	pb := point(b)
	neg := new(Point)
	neg.X = pb.X
	neg.Y = new(big.Int).Sub(btcec.S256().Params().P, pb.Y)

	sum := SumPoints(point(a), neg)
	return commitmentBytes(sum)
}

// CommitTransparent returns the commitment to a publicly known value v with
// a zero blinding factor, used to verify the coinbase reward and fees
// against a block's kernel excesses.
func CommitTransparent(v uint64) Commitment {
	p := ScalarMulPoint(&H, new(big.Int).SetUint64(v))
	return commitmentBytes(p)
}

// CommitBlind returns the commitment to the value zero blinded by the given
// 32-byte scalar, used to fold a block's own kernel offset into a kernel
// excess sum.
func CommitBlind(blind []byte) Commitment {
	p := ScalarMulPoint(&G, new(big.Int).SetBytes(blind))
	return commitmentBytes(p)
}
