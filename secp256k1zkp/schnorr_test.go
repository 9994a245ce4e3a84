package secp256k1zkp

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	. "github.com/yoss22/bulletproofs"
)

func mustDecodePoint(t *testing.T, s string) *Point {
	t.Helper()

	raw, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid hex fixture: %v", err)
	}

	p := new(Point)
	if err := p.Read(bytes.NewReader(raw)); err != nil {
		t.Fatalf("decoding point: %v", err)
	}

	return p
}

func mustDecodeSig(t *testing.T, s string) [64]byte {
	t.Helper()

	raw, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid hex fixture: %v", err)
	}

	var sig [64]byte
	copy(sig[:], raw)
	return sig
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	privateKey := big.NewInt(8)
	publicKey := ScalarMulPoint(&G, privateKey)
	message := [32]byte{}

	sig := SignMessage(*publicKey, *privateKey, message)
	if !VerifySignature(*publicKey, message, sig) {
		t.Fatal("signature did not verify against its own message")
	}
}

func TestVerifySignatureRejectsWrongMessage(t *testing.T) {
	privateKey := big.NewInt(42)
	publicKey := ScalarMulPoint(&G, privateKey)

	sig := SignMessage(*publicKey, *privateKey, [32]byte{1})
	if VerifySignature(*publicKey, [32]byte{2}, sig) {
		t.Fatal("signature verified against a different message")
	}
}

func TestSignatureBytesRoundTrip(t *testing.T) {
	privateKey := big.NewInt(1234)
	publicKey := ScalarMulPoint(&G, privateKey)
	message := ComputeMessage(5, 100)

	sig := SignMessage(*publicKey, *privateKey, message)
	decoded := DecodeSignature(sig.Bytes())

	if !VerifySignature(*publicKey, message, decoded) {
		t.Fatal("signature did not survive a Bytes/DecodeSignature round trip")
	}
}

// TestVerifyKernelSignature checks a known kernel excess/signature pair
// against the message format a kernel actually signs: its fee and
// lock height.
func TestVerifyKernelSignature(t *testing.T) {
	excess := mustDecodePoint(t, "092095ceab2c20f9a6109a7b0add8d488b3838dcc007c77a43cbe99a14a81b62e8")
	sig := mustDecodeSig(t, "804b2ed798221e8f4c139daeedeab487221be33db1adf9e129928564e1702b02fbbacaf4cbe4c4b122a9b39d2a7625b9254e43eeade171e9ccafda6dd8538acc")

	message := ComputeMessage(2, 0)
	signature := DecodeSignature(sig)

	if !VerifySignature(*excess, message, signature) {
		t.Fatal("known-good kernel signature failed to verify")
	}
}
