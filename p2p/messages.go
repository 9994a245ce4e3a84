// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package p2p

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/dblokhin/gringo/consensus"
)

// Ping carries the sender's chain state, used to decide whether a sync is
// needed.
type Ping struct {
	TotalDifficulty consensus.Difficulty
	Height          uint64
}

func (p *Ping) Bytes() []byte {
	buff := new(bytes.Buffer)

	if err := binary.Write(buff, binary.BigEndian, uint64(p.TotalDifficulty)); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, p.Height); err != nil {
		logrus.Fatal(err)
	}

	return buff.Bytes()
}

func (p *Ping) Type() uint8 { return consensus.MsgTypePing }

func (p *Ping) Read(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, (*uint64)(&p.TotalDifficulty)); err != nil {
		return err
	}

	return binary.Read(r, binary.BigEndian, &p.Height)
}

func (p Ping) String() string {
	return fmt.Sprintf("%#v", p)
}

// Pong answers a Ping with the same shape.
type Pong struct {
	Ping
}

func (p *Pong) Type() uint8 { return consensus.MsgTypePong }

// GetPeerAddrs asks a peer for addresses of other peers it knows about,
// filtered by the requested capabilities.
type GetPeerAddrs struct {
	Capabilities consensus.Capabilities
}

func (p *GetPeerAddrs) Bytes() []byte {
	buff := new(bytes.Buffer)

	if err := binary.Write(buff, binary.BigEndian, uint32(p.Capabilities)); err != nil {
		logrus.Fatal(err)
	}

	return buff.Bytes()
}

func (p *GetPeerAddrs) Type() uint8 { return consensus.MsgTypeGetPeerAddrs }

func (p *GetPeerAddrs) Read(r io.Reader) error {
	return binary.Read(r, binary.BigEndian, (*uint32)(&p.Capabilities))
}

// PeerError is sent to a misbehaving or incompatible peer, usually
// immediately followed by closing the connection.
type PeerError struct {
	Code    uint32
	Message string
}

func (p *PeerError) Bytes() []byte {
	buff := new(bytes.Buffer)

	if err := binary.Write(buff, binary.BigEndian, p.Code); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint64(len(p.Message))); err != nil {
		logrus.Fatal(err)
	}

	buff.WriteString(p.Message)
	return buff.Bytes()
}

func (p *PeerError) Type() uint8 { return consensus.MsgTypeBanReason }

func (p *PeerError) Read(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &p.Code); err != nil {
		return err
	}

	var messageLen uint64
	if err := binary.Read(r, binary.BigEndian, &messageLen); err != nil {
		return err
	}

	buff := make([]byte, messageLen)
	if _, err := io.ReadFull(r, buff); err != nil {
		return err
	}

	p.Message = string(buff)
	return nil
}

// PeerAddrs answers GetPeerAddrs with the addresses the responder knows.
type PeerAddrs struct {
	peers []*net.TCPAddr
}

func (p *PeerAddrs) Bytes() []byte {
	buff := new(bytes.Buffer)

	if len(p.peers) > consensus.MaxPeerAddrs {
		logrus.Fatal(errors.New("p2p: too many peer addrs to send"))
	}

	if err := binary.Write(buff, binary.BigEndian, uint32(len(p.peers))); err != nil {
		logrus.Fatal(err)
	}

	for _, addr := range p.peers {
		serializeTCPAddr(buff, addr)
	}

	return buff.Bytes()
}

func (p *PeerAddrs) Type() uint8 { return consensus.MsgTypePeerAddrs }

func (p *PeerAddrs) Read(r io.Reader) error {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}

	if count > consensus.MaxPeerAddrs {
		return errors.New("p2p: too many peer addrs from peer")
	}

	p.peers = make([]*net.TCPAddr, 0, count)
	for i := uint32(0); i < count; i++ {
		addr, err := deserializeTCPAddr(r)
		if err != nil {
			return err
		}

		p.peers = append(p.peers, addr)
	}

	return nil
}

// GetBlock requests a full block by its header hash.
type GetBlock struct {
	Hash consensus.Hash
}

func (h *GetBlock) Bytes() []byte {
	if len(h.Hash) != consensus.BlockHashSize {
		logrus.Fatal(errors.New("p2p: invalid block hash length"))
	}

	return h.Hash
}

func (h *GetBlock) Type() uint8 { return consensus.MsgTypeGetBlock }

func (h *GetBlock) Read(r io.Reader) error {
	hash := make([]byte, consensus.BlockHashSize)
	_, err := io.ReadFull(r, hash)
	h.Hash = hash
	return err
}

// BlockHeaders carries a batch of headers, sent in answer to
// GetBlockHeaders.
type BlockHeaders struct {
	Headers []consensus.BlockHeader
}

func (h *BlockHeaders) Bytes() []byte {
	buff := new(bytes.Buffer)

	if len(h.Headers) > consensus.MaxBlockHeaders {
		logrus.Fatal(errors.New("p2p: too many headers to send"))
	}

	if err := binary.Write(buff, binary.BigEndian, uint16(len(h.Headers))); err != nil {
		logrus.Fatal(err)
	}

	for i := range h.Headers {
		if _, err := buff.Write(h.Headers[i].Bytes()); err != nil {
			logrus.Fatal(err)
		}
	}

	return buff.Bytes()
}

func (h *BlockHeaders) Type() uint8 { return consensus.MsgTypeHeaders }

func (h *BlockHeaders) Read(r io.Reader) error {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}

	if int(count) > consensus.MaxBlockHeaders {
		return errors.New("p2p: too many headers from peer")
	}

	h.Headers = make([]consensus.BlockHeader, count)
	for i := range h.Headers {
		if err := h.Headers[i].Read(r); err != nil {
			return err
		}
	}

	return nil
}

// GetBlockHeaders requests headers following the given locator.
type GetBlockHeaders struct {
	Locator consensus.Locator
}

func (h *GetBlockHeaders) Bytes() []byte          { return h.Locator.Bytes() }
func (h *GetBlockHeaders) Type() uint8            { return consensus.MsgTypeGetHeaders }
func (h *GetBlockHeaders) Read(r io.Reader) error { return h.Locator.Read(r) }

// GetCompactBlock requests the compact representation of a block.
type GetCompactBlock struct {
	Hash consensus.Hash
}

func (h *GetCompactBlock) Bytes() []byte {
	if len(h.Hash) != consensus.BlockHashSize {
		logrus.Fatal(errors.New("p2p: invalid block hash length"))
	}

	return h.Hash
}

func (h *GetCompactBlock) Type() uint8 { return consensus.MsgTypeGetCompactBlock }

func (h *GetCompactBlock) Read(r io.Reader) error {
	hash := make([]byte, consensus.BlockHashSize)
	_, err := io.ReadFull(r, hash)
	h.Hash = hash
	return err
}

// TxHashSetRequest asks a peer to stream its txhashset archive as of the
// given header, for fast sync.
type TxHashSetRequest struct {
	Hash   consensus.Hash
	Height uint64
}

func (h *TxHashSetRequest) Bytes() []byte {
	buff := new(bytes.Buffer)

	if len(h.Hash) != consensus.BlockHashSize {
		logrus.Fatal(errors.New("p2p: invalid block hash length"))
	}

	if _, err := buff.Write(h.Hash); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, h.Height); err != nil {
		logrus.Fatal(err)
	}

	return buff.Bytes()
}

func (h *TxHashSetRequest) Type() uint8 { return consensus.MsgTypeTxHashSetRequest }

func (h *TxHashSetRequest) Read(r io.Reader) error {
	hash := make([]byte, consensus.BlockHashSize)
	if _, err := io.ReadFull(r, hash); err != nil {
		return err
	}

	h.Hash = hash
	return binary.Read(r, binary.BigEndian, &h.Height)
}

// TxHashSetArchive announces a txhashset snapshot in answer to
// TxHashSetRequest. Bandwidth is the archive's raw serialized size in
// bytes. The syncer decodes only these header fields and logs them; it
// does not read, store or apply any archive bytes that follow.
type TxHashSetArchive struct {
	Hash      consensus.Hash
	Height    uint64
	Bandwidth uint64
}

func (h *TxHashSetArchive) Bytes() []byte {
	buff := new(bytes.Buffer)

	if len(h.Hash) != consensus.BlockHashSize {
		logrus.Fatal(errors.New("p2p: invalid block hash length"))
	}

	if _, err := buff.Write(h.Hash); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, h.Height); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, h.Bandwidth); err != nil {
		logrus.Fatal(err)
	}

	return buff.Bytes()
}

func (h *TxHashSetArchive) Type() uint8 { return consensus.MsgTypeTxHashSetArchive }

func (h *TxHashSetArchive) Read(r io.Reader) error {
	hash := make([]byte, consensus.BlockHashSize)
	if _, err := io.ReadFull(r, hash); err != nil {
		return err
	}

	h.Hash = hash

	if err := binary.Read(r, binary.BigEndian, &h.Height); err != nil {
		return err
	}

	return binary.Read(r, binary.BigEndian, &h.Bandwidth)
}
