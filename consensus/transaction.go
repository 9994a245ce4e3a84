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

	"github.com/dblokhin/gringo/secp256k1zkp"
	"github.com/sirupsen/logrus"
)

// Transaction is a pending, unconfirmed grin transaction as relayed over the
// wire and held in the mempool.
type Transaction struct {
	// Inputs spent by the transaction.
	Inputs InputList
	// Outputs the transaction produces.
	Outputs OutputList
	// Fee paid by the transaction.
	Fee uint64
	// LockHeight is the height below which the transaction is invalid. It is
	// invalid for this to be less than the lock_height of any UTXO being spent.
	LockHeight uint64
	// ExcessSig proves the excess is a valid public key, signing the fee and
	// lock height.
	ExcessSig Hash
}

// Bytes implements the p2p Message interface.
func (t *Transaction) Bytes() []byte {
	buff := new(bytes.Buffer)

	if err := binary.Write(buff, binary.BigEndian, t.Fee); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, t.LockHeight); err != nil {
		logrus.Fatal(err)
	}

	if len(t.ExcessSig) > secp256k1zkp.MaxSignatureSize {
		logrus.Fatal(errors.New("invalid excess_sig len"))
	}
	if err := binary.Write(buff, binary.BigEndian, uint64(len(t.ExcessSig))); err != nil {
		logrus.Fatal(err)
	}

	if _, err := buff.Write(t.ExcessSig); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint64(len(t.Inputs))); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint64(len(t.Outputs))); err != nil {
		logrus.Fatal(err)
	}

	// consensus rule: inputs, outputs and kernels MUST be sorted on the wire
	sort.Sort(t.Inputs)
	sort.Sort(t.Outputs)

	for _, input := range t.Inputs {
		if _, err := buff.Write(input.Commit); err != nil {
			logrus.Fatal(err)
		}
	}

	for _, output := range t.Outputs {
		if _, err := buff.Write(output.Bytes()); err != nil {
			logrus.Fatal(err)
		}
	}

	return buff.Bytes()
}

// Type implements the p2p Message interface.
func (t *Transaction) Type() uint8 {
	return MsgTypeTransaction
}

// Read implements the p2p Message interface.
func (t *Transaction) Read(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &t.Fee); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &t.LockHeight); err != nil {
		return err
	}

	var excessSigLen uint64
	if err := binary.Read(r, binary.BigEndian, &excessSigLen); err != nil {
		return err
	}

	if excessSigLen > uint64(secp256k1zkp.MaxSignatureSize) {
		return errors.New("invalid excess_sig len")
	}

	t.ExcessSig = make([]byte, excessSigLen)
	if _, err := io.ReadFull(r, t.ExcessSig); err != nil {
		return err
	}

	var inputs, outputs uint64
	if err := binary.Read(r, binary.BigEndian, &inputs); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &outputs); err != nil {
		return err
	}

	t.Inputs = make([]Input, inputs)
	for i := uint64(0); i < inputs; i++ {
		commitment := make([]byte, secp256k1zkp.PedersenCommitmentSize)
		if _, err := io.ReadFull(r, commitment); err != nil {
			return err
		}

		t.Inputs[i].Commit = commitment
	}

	t.Outputs = make([]Output, outputs)
	for i := uint64(0); i < outputs; i++ {
		if err := t.Outputs[i].Read(r); err != nil {
			return err
		}
	}

	if !sort.IsSorted(t.Inputs) {
		return errors.New("consensus error: inputs are not sorted")
	}

	if !sort.IsSorted(t.Outputs) {
		return errors.New("consensus error: outputs are not sorted")
	}

	return nil
}

// String implements the String() interface.
func (t Transaction) String() string {
	return fmt.Sprintf("%#v", t)
}
