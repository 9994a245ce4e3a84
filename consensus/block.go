// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package consensus

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dblokhin/gringo/secp256k1zkp"
	"github.com/sirupsen/logrus"
	"github.com/yoss22/bulletproofs"
	"golang.org/x/crypto/blake2b"
)

// SwitchCommitHashSize is the size used for the stored blake2 hash of a
// switch commitment.
const SwitchCommitHashSize = 20

// OutputFeatures are options describing an output's structure or use.
type OutputFeatures uint8

const (
	// DefaultOutput carries no flags.
	DefaultOutput OutputFeatures = 0
	// CoinbaseOutput marks an output as a coinbase output, which must not be
	// spent until CoinbaseMaturity blocks have passed.
	CoinbaseOutput OutputFeatures = 1 << 0
)

func (f OutputFeatures) String() string {
	switch f {
	case DefaultOutput:
		return ""
	case CoinbaseOutput:
		return "Coinbase"
	}
	return ""
}

// KernelFeatures are options describing a kernel's structure or use.
type KernelFeatures uint8

const (
	// DefaultKernel carries no flags.
	DefaultKernel KernelFeatures = 0
	// CoinbaseKernel marks a kernel matching a coinbase output.
	CoinbaseKernel KernelFeatures = 1 << 0
)

func (f KernelFeatures) String() string {
	switch f {
	case DefaultKernel:
		return ""
	case CoinbaseKernel:
		return "Coinbase"
	}
	return ""
}

// BlockID identifies a block either by hash or by height.
type BlockID struct {
	// Hash of the block, nil if the height should be used instead.
	Hash Hash
	// Height of the block, nil if the hash should be used instead.
	Height *uint64
}

// Block is a full grin block.
type Block struct {
	Header BlockHeader

	Inputs  InputList
	Outputs OutputList
	Kernels TxKernelList
}

// Bytes implements the p2p Message interface.
func (b *Block) Bytes() []byte {
	buff := new(bytes.Buffer)
	if _, err := buff.Write(b.Header.Bytes()); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint64(len(b.Inputs))); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint64(len(b.Outputs))); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint64(len(b.Kernels))); err != nil {
		logrus.Fatal(err)
	}

	// consensus rule: inputs, outputs, kernels MUST be sorted
	sort.Sort(b.Inputs)
	sort.Sort(b.Outputs)
	sort.Sort(b.Kernels)

	for _, input := range b.Inputs {
		if _, err := buff.Write(input.Bytes()); err != nil {
			logrus.Fatal(err)
		}
	}

	for _, output := range b.Outputs {
		if _, err := buff.Write(output.Bytes()); err != nil {
			logrus.Fatal(err)
		}
	}

	for _, txKernel := range b.Kernels {
		if _, err := buff.Write(txKernel.Bytes()); err != nil {
			logrus.Fatal(err)
		}
	}

	return buff.Bytes()
}

// Type implements the p2p Message interface.
func (b *Block) Type() uint8 {
	return MsgTypeBlock
}

// Read implements the p2p Message interface.
func (b *Block) Read(r io.Reader) error {
	if err := b.Header.Read(r); err != nil {
		return err
	}

	var inputs, outputs, kernels uint64
	if err := binary.Read(r, binary.BigEndian, &inputs); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &outputs); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &kernels); err != nil {
		return err
	}

	if inputs > 1000000 {
		return errors.New("block contains too many inputs")
	}
	if outputs > 1000000 {
		return errors.New("block contains too many outputs")
	}
	if kernels > 1000000 {
		return errors.New("block contains too many kernels")
	}

	b.Inputs = make([]Input, inputs)
	for i := uint64(0); i < inputs; i++ {
		if err := b.Inputs[i].Read(r); err != nil {
			return err
		}
	}

	b.Outputs = make([]Output, outputs)
	for i := uint64(0); i < outputs; i++ {
		if err := b.Outputs[i].Read(r); err != nil {
			return err
		}
	}

	b.Kernels = make([]TxKernel, kernels)
	for i := uint64(0); i < kernels; i++ {
		if err := b.Kernels[i].Read(r); err != nil {
			return err
		}
	}

	return nil
}

// String implements the String() interface.
func (b Block) String() string {
	return fmt.Sprintf("%#v", b)
}

// Hash returns the hash of the block (its header's hash).
func (b *Block) Hash() Hash {
	return b.Header.Hash()
}

// Weight returns the block's weight, which Validate checks against
// MaxBlockWeight.
func (b *Block) Weight() uint32 {
	return uint32(len(b.Inputs))*BlockInputWeight +
		uint32(len(b.Outputs))*BlockOutputWeight +
		uint32(len(b.Kernels))*BlockKernelWeight
}

// Validate returns nil if the block successfully passes block-scope
// consensus rules: header and proof-of-work validity, input/output/kernel
// sort order, weight limits, coinbase structure and range proofs. It does
// not check the block against its previous header or the chain's UTXO set;
// that cross-block validation is BlockSelfConsistent.
func (b *Block) Validate() error {
	logrus.Debug("block scope validate")

	if err := b.Header.Validate(); err != nil {
		return err
	}

	if b.Weight() > MaxBlockWeight {
		return fmt.Errorf("block weight %d exceeds max %d", b.Weight(), MaxBlockWeight)
	}

	// A block must carry at least one coinbase output and kernel.
	if len(b.Outputs) == 0 || len(b.Kernels) == 0 {
		return errors.New("block has no coinbase output/kernel")
	}

	if err := b.verifySorted(); err != nil {
		return err
	}

	// Cut-through: an input may never spend an output created within the
	// same block, it would cancel out and never reach the UTXO set.
	if err := b.verifyCutThrough(); err != nil {
		return err
	}

	if err := b.verifyCoinbase(); err != nil {
		return err
	}

	if err := b.verifyRangeProofs(); err != nil {
		return err
	}

	if err := b.verifyKernels(); err != nil {
		return err
	}

	return nil
}

// verifyCutThrough checks that no input spends an output created by this
// same block.
func (b *Block) verifyCutThrough() error {
	produced := make(map[string]struct{}, len(b.Outputs))
	for i := range b.Outputs {
		produced[string(b.Outputs[i].Commit.Bytes())] = struct{}{}
	}

	for i := range b.Inputs {
		if _, ok := produced[string(b.Inputs[i].Commit)]; ok {
			return errors.New("block violates cut-through: input spends its own output")
		}
	}

	return nil
}

func (b *Block) verifyCoinbase() error {
	coinbase := 0

	for _, output := range b.Outputs {
		if output.Features&CoinbaseOutput == CoinbaseOutput {
			coinbase++

			if coinbase > MaxBlockCoinbaseOutputs {
				return errors.New("block has too many coinbase outputs")
			}

			if err := output.Validate(); err != nil {
				return err
			}
		}
	}

	if coinbase == 0 {
		return errors.New("block has no coinbase output")
	}

	return nil
}

func (b *Block) verifyKernels() error {
	coinbase := 0

	for _, kernel := range b.Kernels {
		if kernel.Features&CoinbaseKernel == CoinbaseKernel {
			coinbase++

			if coinbase > MaxBlockCoinbaseKernels {
				return errors.New("block has too many coinbase kernels")
			}
		}

		if err := kernel.Validate(); err != nil {
			return err
		}
	}

	if coinbase == 0 {
		return errors.New("block has no coinbase kernel")
	}

	return nil
}

// verifySorted checks that inputs, outputs and kernels are all sorted.
func (b *Block) verifySorted() error {
	if !sort.IsSorted(b.Inputs) {
		return errors.New("block inputs are not sorted")
	}

	if !sort.IsSorted(b.Outputs) {
		return errors.New("block outputs are not sorted")
	}

	if !sort.IsSorted(b.Kernels) {
		return errors.New("block kernels are not sorted")
	}

	return nil
}

// verifyRangeProofs returns nil if all outputs have valid range proofs.
func (b *Block) verifyRangeProofs() error {
	prover := bulletproofs.NewProver(64)
	for _, output := range b.Outputs {
		if !prover.Verify(output.Commit, output.RangeProof) {
			return fmt.Errorf("proof verification failed for %v %v",
				output.Commit, output.RangeProof)
		}
	}
	return nil
}

// CompactBlock is the compact wire representation of a full block. Kernels
// not carried in full are represented as short ids; inputs and the outputs
// not carried in full are not represented at all. A node that has already
// seen the matching kernels can hydrate the compact block locally, and
// request the full block from peers otherwise.
type CompactBlock struct {
	// Header carries the metadata and commitments to the rest of the data.
	Header BlockHeader
	// Outputs holds full outputs, specifically the coinbase output(s).
	Outputs OutputList
	// Kernels holds full kernels, specifically the coinbase kernel(s).
	Kernels TxKernelList
	// KernelIDs holds short ids for kernels excluded from the full list.
	KernelIDs ShortIDList
}

// Bytes implements the p2p Message interface.
func (b *CompactBlock) Bytes() []byte {
	buff := new(bytes.Buffer)
	if _, err := buff.Write(b.Header.Bytes()); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint8(len(b.Outputs))); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint8(len(b.Kernels))); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint64(len(b.KernelIDs))); err != nil {
		logrus.Fatal(err)
	}

	sort.Sort(b.Outputs)
	sort.Sort(b.Kernels)
	sort.Sort(b.KernelIDs)

	for _, output := range b.Outputs {
		if _, err := buff.Write(output.Bytes()); err != nil {
			logrus.Fatal(err)
		}
	}

	for _, txKernel := range b.Kernels {
		if _, err := buff.Write(txKernel.Bytes()); err != nil {
			logrus.Fatal(err)
		}
	}

	for _, id := range b.KernelIDs {
		if _, err := buff.Write(id); err != nil {
			logrus.Fatal(err)
		}
	}

	return buff.Bytes()
}

// Type implements the p2p Message interface.
func (b *CompactBlock) Type() uint8 {
	return MsgTypeCompactBlock
}

// Read implements the p2p Message interface.
func (b *CompactBlock) Read(r io.Reader) error {
	if err := b.Header.Read(r); err != nil {
		return err
	}

	var (
		outputs, kernels uint8
		kernelIDs        uint64
	)

	if err := binary.Read(r, binary.BigEndian, &outputs); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &kernels); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &kernelIDs); err != nil {
		return err
	}

	b.Outputs = make(OutputList, outputs)
	for i := uint8(0); i < outputs; i++ {
		if err := b.Outputs[i].Read(r); err != nil {
			return err
		}
	}

	b.Kernels = make(TxKernelList, kernels)
	for i := uint8(0); i < kernels; i++ {
		if err := b.Kernels[i].Read(r); err != nil {
			return err
		}
	}

	b.KernelIDs = make(ShortIDList, kernelIDs)
	for i := uint64(0); i < kernelIDs; i++ {
		shortID := make(ShortID, ShortIDSize)
		if _, err := io.ReadFull(r, shortID); err != nil {
			return err
		}

		b.KernelIDs[i] = shortID
	}

	return nil
}

// String implements the String() interface.
func (b CompactBlock) String() string {
	return fmt.Sprintf("%#v", b)
}

// Hash returns the hash of the block (its header's hash).
func (b *CompactBlock) Hash() Hash {
	return b.Header.Hash()
}

// Hydrate builds a full Block from this compact block plus the full kernels
// that correspond to its KernelIDs, found e.g. in the mempool. It returns
// false if any short id could not be matched. The returned Block holds the
// header, the compact block's full outputs and kernels, and the matched
// kernels; it has no inputs and no other outputs.
func (b *CompactBlock) Hydrate(known TxKernelList) (Block, bool) {
	byShortID := make(map[string]TxKernel, len(known))
	blockHash := b.Hash()
	for _, k := range known {
		id := string(Hash(k.Hash()).ShortID(blockHash))
		byShortID[id] = k
	}

	kernels := make(TxKernelList, 0, len(b.Kernels)+len(b.KernelIDs))
	kernels = append(kernels, b.Kernels...)

	for _, id := range b.KernelIDs {
		kernel, ok := byShortID[string(id)]
		if !ok {
			return Block{}, false
		}
		kernels = append(kernels, kernel)
	}

	sort.Sort(kernels)

	return Block{
		Header:  b.Header,
		Outputs: b.Outputs,
		Kernels: kernels,
	}, true
}

// BlockList is a list of blocks, ordered oldest-to-newest unless noted
// otherwise by the caller.
type BlockList []Block

// Input references a previous output being spent by its Pedersen commitment.
type Input struct {
	Features OutputFeatures
	Commit   secp256k1zkp.Commitment
}

// Bytes implements the p2p Message interface.
func (input *Input) Bytes() []byte {
	buff := new(bytes.Buffer)

	if err := binary.Write(buff, binary.BigEndian, uint8(input.Features)); err != nil {
		logrus.Fatal(err)
	}

	if _, err := buff.Write(input.Commit); err != nil {
		logrus.Fatal(err)
	}

	return buff.Bytes()
}

// Read implements the p2p Message interface.
func (input *Input) Read(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &input.Features); err != nil {
		return err
	}

	commitment := make([]byte, secp256k1zkp.PedersenCommitmentSize)
	if _, err := io.ReadFull(r, commitment); err != nil {
		return err
	}

	input.Commit = commitment

	return nil
}

// Hash returns a hash of the serialised input.
func (input *Input) Hash() []byte {
	hashed := blake2b.Sum256(input.Bytes())
	return hashed[:]
}

// InputList is a sortable list of inputs.
type InputList []Input

func (m InputList) Len() int {
	return len(m)
}

// Less orders inputs by their hash.
func (m InputList) Less(i, j int) bool {
	return bytes.Compare(m[i].Hash(), m[j].Hash()) < 0
}

func (m InputList) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

// Output defines the new ownership of coins being transferred. The
// commitment is a blinded value while the range proof guarantees the
// commitment encodes a positive value without overflow. The hash of an
// output only covers its features and commitment; the range proof is
// expected to have its own hash and is committed to separately.
type Output struct {
	// Features are options for an output's structure or use.
	Features OutputFeatures
	// Commit is the homomorphic commitment to the output's amount.
	Commit *bulletproofs.Point
	// RangeProof proves the commitment is in the right range.
	RangeProof bulletproofs.BulletProof
}

// BytesWithoutProof returns the serialised output, excluding its range
// proof, used as the hash preimage.
func (o *Output) BytesWithoutProof() []byte {
	buff := new(bytes.Buffer)

	if err := binary.Write(buff, binary.BigEndian, uint8(o.Features)); err != nil {
		logrus.Fatal(err)
	}

	if _, err := buff.Write(o.Commit.Bytes()); err != nil {
		logrus.Fatal(err)
	}

	return buff.Bytes()
}

// Bytes implements the p2p Message interface.
func (o *Output) Bytes() []byte {
	buff := new(bytes.Buffer)

	if _, err := buff.Write(o.BytesWithoutProof()); err != nil {
		logrus.Fatal(err)
	}

	proof := o.RangeProof.Bytes()

	if err := binary.Write(buff, binary.BigEndian, uint64(len(proof))); err != nil {
		logrus.Fatal(err)
	}

	if _, err := buff.Write(proof); err != nil {
		logrus.Fatal(err)
	}

	return buff.Bytes()
}

// Read implements the p2p Message interface.
func (o *Output) Read(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, (*uint8)(&o.Features)); err != nil {
		return err
	}

	o.Commit = new(bulletproofs.Point)
	if err := o.Commit.Read(r); err != nil {
		return err
	}

	var proofLen uint64
	if err := binary.Read(r, binary.BigEndian, &proofLen); err != nil {
		return err
	}

	if proofLen > uint64(secp256k1zkp.MaxProofSize) {
		return fmt.Errorf("invalid range proof length: %d", proofLen)
	}

	proof := new(bulletproofs.BulletProof)
	if err := proof.Read(io.LimitReader(r, int64(proofLen))); err != nil {
		return errors.New("failed to deserialize range proof")
	}
	o.RangeProof = *proof

	return nil
}

// Validate returns nil if the output passes the consensus rules checkable
// in isolation.
func (o *Output) Validate() error {
	return nil
}

// String implements the String() interface.
func (o Output) String() string {
	return fmt.Sprintf("%#v", o)
}

// Hash returns a hash of the serialised output, excluding its range proof.
func (o *Output) Hash() []byte {
	hashed := blake2b.Sum256(o.BytesWithoutProof())
	return hashed[:]
}

// OutputList is a sortable list of outputs.
type OutputList []Output

func (m OutputList) Len() int {
	return len(m)
}

// Less orders outputs by their hash.
func (m OutputList) Less(i, j int) bool {
	return bytes.Compare(m[i].Hash(), m[j].Hash()) < 0
}

func (m OutputList) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

// SwitchCommitHash is the switch commitment hash, SwitchCommitHashSize bytes long.
type SwitchCommitHash []byte

// TxKernel proves a transaction sums to zero. It carries both the
// transaction's Pedersen commitment (the "excess") and a signature that the
// commitments amount to zero. The signature signs the fee and lock height,
// retained here for signature validation.
type TxKernel struct {
	// Features are options for a kernel's structure or use.
	Features KernelFeatures
	// Fee originally included in the transaction this kernel is for.
	Fee uint64
	// LockHeight is the height below which this kernel is invalid, the max
	// lock_height of all inputs to the transaction.
	LockHeight uint64
	// Excess is the sum of all transaction commitments; if well formed, the
	// amounts sum to zero and the excess is a valid public key.
	Excess bulletproofs.Point
	// ExcessSig proves the excess is a valid public key, signing the fee.
	ExcessSig [64]byte
}

// Hash returns a hash of the serialised kernel.
func (k *TxKernel) Hash() []byte {
	hashed := blake2b.Sum256(k.Bytes())
	return hashed[:]
}

// Bytes implements the p2p Message interface.
func (k *TxKernel) Bytes() []byte {
	buff := new(bytes.Buffer)

	if err := binary.Write(buff, binary.BigEndian, uint8(k.Features)); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, k.Fee); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, k.LockHeight); err != nil {
		logrus.Fatal(err)
	}

	if _, err := buff.Write(k.Excess.Bytes()); err != nil {
		logrus.Fatal(err)
	}

	if _, err := buff.Write(k.ExcessSig[:]); err != nil {
		logrus.Fatal(err)
	}

	return buff.Bytes()
}

// Read implements the p2p Message interface.
func (k *TxKernel) Read(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, (*uint8)(&k.Features)); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &k.Fee); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &k.LockHeight); err != nil {
		return err
	}

	if err := k.Excess.Read(r); err != nil {
		return err
	}

	if _, err := io.ReadFull(r, k.ExcessSig[:]); err != nil {
		return err
	}

	return nil
}

// ErrInvalidSignature is returned when a kernel's excess signature fails to verify.
var ErrInvalidSignature = errors.New("signature isn't valid")

// Validate returns nil if the kernel passes the consensus rules checkable
// in isolation: the fee/lock_height signature over the excess public key.
func (k *TxKernel) Validate() error {
	msg := secp256k1zkp.ComputeMessage(k.Fee, k.LockHeight)
	signature := secp256k1zkp.DecodeSignature(k.ExcessSig)

	// Excess is a Pedersen commitment to the value zero: P = r*G + 0*H
	P := k.Excess

	if !secp256k1zkp.VerifySignature(P, msg, signature) {
		return ErrInvalidSignature
	}

	return nil
}

// String implements the String() interface.
func (k TxKernel) String() string {
	return fmt.Sprintf("%#v", k)
}

// TxKernelList is a sortable list of kernels.
type TxKernelList []TxKernel

func (m TxKernelList) Len() int {
	return len(m)
}

// Less orders kernels by their hash.
func (m TxKernelList) Less(i, j int) bool {
	return bytes.Compare(m[i].Hash(), m[j].Hash()) < 0
}

func (m TxKernelList) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

// BlockHeader is a grin block header.
type BlockHeader struct {
	// Version of the block.
	Version uint16
	// Height of this block since the genesis block (height 0).
	Height uint64
	// Previous is the hash of the block previous to this one in the chain.
	Previous Hash
	// PreviousRoot is the root hash of the previous header MMR.
	PreviousRoot Hash
	// Timestamp at which the block was built.
	Timestamp time.Time
	// UTXORoot is the root of the output MMR.
	UTXORoot Hash
	// RangeProofRoot is the root of the range proof MMR.
	RangeProofRoot Hash
	// KernelRoot is the root of the kernel MMR.
	KernelRoot Hash
	// Nonce is the increment used to mine this block.
	Nonce uint64
	// TotalKernelOffset is the total accumulated sum of kernel offsets since
	// the genesis block.
	TotalKernelOffset Hash
	// TotalKernelSum is the total accumulated sum of kernel commitments
	// since the genesis block. Always equal to the UTXO commitment sum
	// minus the money supply.
	TotalKernelSum secp256k1zkp.Commitment
	// OutputMmrSize is the total size of the output MMR after this block.
	OutputMmrSize uint64
	// KernelMmrSize is the total size of the kernel MMR after this block.
	KernelMmrSize uint64
	// POW is the proof of work.
	POW Proof
	// Difficulty used to mine the block.
	Difficulty Difficulty
	// TotalDifficulty accumulated since the genesis block.
	TotalDifficulty Difficulty
	// ScalingDifficulty is the scaling factor between the primary and
	// secondary proofs of work.
	ScalingDifficulty uint32
}

// Hash is the blake2b hash of the header's full serialisation, proof of
// work included.
func (b *BlockHeader) Hash() Hash {
	hash := blake2b.Sum256(b.Bytes())

	return hash[:]
}

// bytesWithoutPOW serialises the header without its POW, used both as the
// POW's own hashed input and as a prefix of the full header encoding.
func (b *BlockHeader) bytesWithoutPOW() []byte {
	buff := new(bytes.Buffer)

	if err := binary.Write(buff, binary.BigEndian, b.Version); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, b.Height); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, b.Timestamp.Unix()); err != nil {
		logrus.Fatal(err)
	}

	if len(b.Previous) != BlockHashSize {
		logrus.Fatal(errors.New("invalid previous block hash len"))
	}

	if _, err := buff.Write(b.Previous); err != nil {
		logrus.Fatal(err)
	}

	if len(b.PreviousRoot) != BlockHashSize {
		logrus.Fatal(errors.New("invalid previous root hash len"))
	}

	if _, err := buff.Write(b.PreviousRoot); err != nil {
		logrus.Fatal(err)
	}

	if len(b.UTXORoot) != BlockHashSize ||
		len(b.RangeProofRoot) != BlockHashSize ||
		len(b.KernelRoot) != BlockHashSize {
		logrus.Fatal(errors.New("invalid UTXORoot/RangeProofRoot/KernelRoot len"))
	}

	if _, err := buff.Write(b.UTXORoot); err != nil {
		logrus.Fatal(err)
	}

	if _, err := buff.Write(b.RangeProofRoot); err != nil {
		logrus.Fatal(err)
	}

	if _, err := buff.Write(b.KernelRoot); err != nil {
		logrus.Fatal(err)
	}

	if _, err := buff.Write(b.TotalKernelOffset); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, b.OutputMmrSize); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, b.KernelMmrSize); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint64(b.TotalDifficulty)); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, b.ScalingDifficulty); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, b.Nonce); err != nil {
		logrus.Fatal(err)
	}

	return buff.Bytes()
}

func (b *BlockHeader) bytesPOW() []byte {
	return b.POW.Bytes()
}

// Bytes implements the p2p Message interface.
func (b *BlockHeader) Bytes() []byte {
	var buff bytes.Buffer
	buff.Write(b.bytesWithoutPOW())
	buff.Write(b.bytesPOW())

	return buff.Bytes()
}

// Read implements the p2p Message interface.
func (b *BlockHeader) Read(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &b.Version); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &b.Height); err != nil {
		return err
	}

	var ts int64
	if err := binary.Read(r, binary.BigEndian, &ts); err != nil {
		return err
	}

	b.Timestamp = time.Unix(ts, 0).UTC()

	b.Previous = make([]byte, BlockHashSize)
	if _, err := io.ReadFull(r, b.Previous); err != nil {
		return err
	}

	b.PreviousRoot = make([]byte, BlockHashSize)
	if _, err := io.ReadFull(r, b.PreviousRoot); err != nil {
		return err
	}

	b.UTXORoot = make([]byte, BlockHashSize)
	if _, err := io.ReadFull(r, b.UTXORoot); err != nil {
		return err
	}

	b.RangeProofRoot = make([]byte, BlockHashSize)
	if _, err := io.ReadFull(r, b.RangeProofRoot); err != nil {
		return err
	}

	b.KernelRoot = make([]byte, BlockHashSize)
	if _, err := io.ReadFull(r, b.KernelRoot); err != nil {
		return err
	}

	b.TotalKernelOffset = make([]byte, secp256k1zkp.SecretKeySize)
	if _, err := io.ReadFull(r, b.TotalKernelOffset); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &b.OutputMmrSize); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &b.KernelMmrSize); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &b.TotalDifficulty); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &b.ScalingDifficulty); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &b.Nonce); err != nil {
		return err
	}

	if err := b.POW.Read(r); err != nil {
		return err
	}

	return nil
}

// Validate returns nil if the header passes the consensus rules checkable
// without reference to its parent: version-for-height, clock skew and
// proof-of-work.
func (b *BlockHeader) Validate() error {
	logrus.Debug("block header validate")

	if !ValidateBlockVersion(b.Height, b.Version) {
		return fmt.Errorf("invalid block version %d at height %d", b.Version, b.Height)
	}

	if b.Timestamp.Sub(time.Now().UTC()) > MaxFutureSeconds*time.Second {
		return fmt.Errorf("invalid block time (%s)", b.Timestamp)
	}

	isPrimaryPow := b.POW.EdgeBits != SecondPowEdgeBits

	// Either the graph size is a valid primary POW (at or above the
	// minimum edge bits) or it matches the fixed secondary POW size.
	if b.POW.EdgeBits < DefaultMinEdgeBits && isPrimaryPow {
		return fmt.Errorf("cuckoo graph too small: %d", b.POW.EdgeBits)
	}

	// The primary POW must carry a scaling factor of 1; only the secondary
	// POW scales against the primary's difficulty.
	if isPrimaryPow && b.ScalingDifficulty != 1 {
		return fmt.Errorf("invalid scaling difficulty: %d", b.ScalingDifficulty)
	}

	if err := b.POW.Validate(b, b.POW.EdgeBits); err != nil {
		return err
	}

	return nil
}

// ValidateBlockVersion checks that version is the one mandated for height
// by the hard fork schedule.
func ValidateBlockVersion(height uint64, version uint16) bool {
	switch {
	case height < HardForkV2Height:
		return version == 1
	case height < HardForkInterval:
		return version == 2
	case height < 2*HardForkInterval:
		return version == 3
	default:
		return false
	}
}

// String implements the String() interface.
func (b BlockHeader) String() string {
	return fmt.Sprintf("%#v", b)
}
