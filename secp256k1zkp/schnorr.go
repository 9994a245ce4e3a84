package secp256k1zkp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
	. "github.com/yoss22/bulletproofs"
)

// Pubkey compression tags, as defined by SEC1.
const (
	TagPubkeyEven = 0x02
	TagPubkeyOdd  = 0x03
)

// Signature is a Schnorr proof of knowledge of the private key behind a
// public key, bound to a specific message.
type Signature struct {
	S big.Int
	R Point
}

// Bytes serializes the signature as R.X || S, 32 bytes each.
func (s Signature) Bytes() [64]byte {
	var buf [64]byte
	copy(buf[0:32], GetB32(s.R.X)[:])
	copy(buf[32:64], GetB32(&s.S)[:])
	return buf
}

// DecodeSignature parses a 64-byte signature produced by Bytes.
func DecodeSignature(raw [64]byte) Signature {
	return Signature{
		S: *new(big.Int).SetBytes(raw[32:64]),
		R: Point{
			X: new(big.Int).SetBytes(raw[0:32]),
			Y: liftX(raw[0:32]),
		},
	}
}

// nonce draws 32 bytes of cryptographic randomness. Panics if the system
// entropy source is unavailable, since continuing with a weak nonce would
// leak the signing key.
func nonce() [32]byte {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("secp256k1zkp: entropy source failed: " + err.Error())
	}

	return buf
}

// RandomBytes returns 32 bytes of cryptographic randomness.
func RandomBytes() [32]byte {
	return nonce()
}

// RandomInt draws a uniformly random scalar in [0, n), retrying on the rare
// draw that lands outside the curve order.
func RandomInt() *big.Int {
	for {
		buf := nonce()
		r := new(big.Int).SetBytes(buf[:])
		if r.Cmp(btcec.S256().N) < 0 {
			return r
		}
	}
}

// CompressPubkey encodes p as a 33-byte SEC1 compressed public key.
func CompressPubkey(p Point) [33]byte {
	var buf [33]byte
	if p.Y.Bit(0) == 1 {
		buf[0] = TagPubkeyOdd
	} else {
		buf[0] = TagPubkeyEven
	}

	copy(buf[1:33], GetB32(p.X)[:])
	return buf
}

// liftX recovers a y coordinate on the secp256k1 curve (y² = x³ + 7) for
// the given x coordinate. It returns one of the two roots without choosing
// its parity: DecodeSignature uses it as is, and point picks the root that
// matches a commitment's tag byte.
func liftX(xBytes []byte) *big.Int {
	x := new(big.Int).SetBytes(xBytes)

	rhs := new(big.Int).Mul(x, x)
	rhs.Mul(rhs, x)
	rhs.Add(rhs, btcec.S256().Params().B)

	return ModSqrtFast(rhs)
}

// ComputeHash hashes the concatenation of inputs with SHA-256.
func ComputeHash(inputs ...[]byte) [32]byte {
	h := sha256.New()
	for _, in := range inputs {
		h.Write(in)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ComputeMessage packs a kernel's fee and lockHeight into the 32-byte
// message a kernel signature is computed over.
func ComputeMessage(fee, lockHeight uint64) [32]byte {
	var msg [32]byte
	binary.BigEndian.PutUint64(msg[16:24], fee)
	binary.BigEndian.PutUint64(msg[24:32], lockHeight)
	return msg
}

func challenge(R Point, publicKey Point, message [32]byte) *big.Int {
	Rx := GetB32(R.X)
	pub := CompressPubkey(publicKey)
	e := ComputeHash(Rx[:], pub[:], message[:])
	return new(big.Int).SetBytes(e[:])
}

// SignMessage produces a Schnorr signature proving knowledge of privateKey,
// the discrete log of publicKey, without revealing it.
//
// The prover picks a random nonce k and commits to R = k*G. Hashing R, the
// public key and the message yields a non-interactive challenge e, and the
// response s = k + e*privateKey binds the commitment to the key. A verifier
// who only has R, s and publicKey can check s*G == R + e*publicKey but
// learns nothing about privateKey itself.
func SignMessage(publicKey Point, privateKey big.Int, message [32]byte) Signature {
	k := RandomInt()
	R := ScalarMulPoint(&G, k)
	e := challenge(*R, publicKey, message)

	return Signature{
		S: *Sum(k, Mul(e, &privateKey)),
		R: *R,
	}
}

// VerifySignature reports whether signature was produced by signing message
// with the private key behind publicKey.
func VerifySignature(publicKey Point, message [32]byte, signature Signature) bool {
	e := challenge(signature.R, publicKey, message)

	lhs := ScalarMulPoint(&G, &signature.S)
	rhs := SumPoints(&signature.R, ScalarMulPoint(&publicKey, e))

	return lhs.X.Cmp(rhs.X) == 0
}

// CommitValue returns the Pedersen commitment blind*G + v*H.
func CommitValue(blind, v *big.Int) *Point {
	return SumPoints(ScalarMulPoint(&G, blind), ScalarMulPoint(&H, v))
}
