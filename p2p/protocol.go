// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package p2p

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math/rand"
	"time"

	"github.com/dblokhin/gringo/consensus"
)

const (
	// userAgent identifies this implementation during the handshake.
	userAgent = "gringod v0.1.0"

	// noncesCap bounds how many self-connection detection nonces we keep
	// in rotation at once.
	noncesCap = 100
)

// Message defines the methods every wire message must implement so it can
// travel through WriteMessage/ReadMessage.
type Message interface {
	// Read populates the message from r, whose contents are already
	// limited to the declared body length.
	Read(r io.Reader) error

	// Bytes returns the binary body of the message.
	Bytes() []byte

	// Type is the wire type recorded in the message header.
	Type() uint8
}

// Header is the fixed-size framing that precedes every message on the wire:
// magic(2) + type(1) + len(8).
type Header struct {
	magic [2]byte
	Type  uint8
	Len   uint64
}

// Write serializes the header to wr.
func (h *Header) Write(wr io.Writer) error {
	if _, err := wr.Write(h.magic[:]); err != nil {
		return err
	}

	if err := binary.Write(wr, binary.BigEndian, h.Type); err != nil {
		return err
	}

	return binary.Write(wr, binary.BigEndian, h.Len)
}

// Read fills the header from r and validates the magic code.
func (h *Header) Read(r io.Reader) error {
	if _, err := io.ReadFull(r, h.magic[:]); err != nil {
		return err
	}

	if !h.validateMagic() {
		return errors.New("p2p: invalid magic code in message header")
	}

	if err := binary.Read(r, binary.BigEndian, &h.Type); err != nil {
		return err
	}

	return binary.Read(r, binary.BigEndian, &h.Len)
}

func (h Header) validateMagic() bool {
	return h.magic[0] == consensus.MagicCode[0] && h.magic[1] == consensus.MagicCode[1]
}

// WriteMessage frames msg with a Header and writes both to w, returning the
// total number of bytes written on success.
func WriteMessage(w io.Writer, msg Message) (uint64, error) {
	data := msg.Bytes()

	header := Header{
		magic: consensus.MagicCode,
		Type:  msg.Type(),
		Len:   uint64(len(data)),
	}

	wr := bufio.NewWriter(w)
	if err := header.Write(wr); err != nil {
		return 0, err
	}

	n, err := wr.Write(data)
	if err != nil {
		return uint64(n) + consensus.HeaderLen, err
	}

	return uint64(n) + consensus.HeaderLen, wr.Flush()
}

// ReadMessage reads a framed message from r into msg, rejecting mismatched
// types and oversized bodies. Used where the caller already knows which
// message type it expects, such as the handshake exchange.
func ReadMessage(r io.Reader, msg Message) (uint64, error) {
	var header Header

	rh := io.LimitReader(r, int64(consensus.HeaderLen))
	if err := header.Read(rh); err != nil {
		return 0, err
	}

	if header.Type != msg.Type() {
		return consensus.HeaderLen, errors.New("p2p: received unexpected message type")
	}

	if header.Len > consensus.MsgLimit(header.Type) {
		return consensus.HeaderLen, errors.New("p2p: message body exceeds the limit for its type")
	}

	rb := io.LimitReader(r, int64(header.Len))
	return consensus.HeaderLen + header.Len, msg.Read(rb)
}

// nonceList hands out pseudo-random nonces used to detect a handshake
// looping back to ourselves.
type nonceList struct {
	idx  int
	list []uint64
}

func (n *nonceList) init() {
	n.list = make([]uint64, noncesCap)
	for i := range n.list {
		n.list[i] = rand.Uint64()
	}
}

func (n *nonceList) next() uint64 {
	n.idx = (n.idx + 1) % noncesCap
	return n.list[n.idx]
}

func (n *nonceList) contains(nonce uint64) bool {
	for _, v := range n.list {
		if nonce == v {
			return true
		}
	}

	return false
}

var serverNonces nonceList

func init() {
	rand.Seed(time.Now().UnixNano())
	serverNonces.init()
}
