// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package p2p

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/dblokhin/gringo/consensus"
)

// hand is the initiator's half of the handshake: it advertises the
// initiator's protocol version, capabilities and chain state.
type hand struct {
	Version         uint32
	Capabilities    consensus.Capabilities
	Nonce           uint64
	TotalDifficulty consensus.Difficulty
	SenderAddr      *net.TCPAddr
	ReceiverAddr    *net.TCPAddr
	UserAgent       string
}

func (h *hand) Bytes() []byte {
	buff := new(bytes.Buffer)

	if err := binary.Write(buff, binary.BigEndian, h.Version); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint32(h.Capabilities)); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, h.Nonce); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint64(h.TotalDifficulty)); err != nil {
		logrus.Fatal(err)
	}

	if h.SenderAddr == nil || h.ReceiverAddr == nil {
		logrus.Fatal("p2p: handshake requires both sender and receiver addrs")
	}

	serializeTCPAddr(buff, h.SenderAddr)
	serializeTCPAddr(buff, h.ReceiverAddr)

	if err := binary.Write(buff, binary.BigEndian, uint64(len(h.UserAgent))); err != nil {
		logrus.Fatal(err)
	}

	buff.WriteString(h.UserAgent)
	return buff.Bytes()
}

func (h *hand) Type() uint8 { return consensus.MsgTypeHand }

func (h *hand) Read(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &h.Version); err != nil {
		return err
	}

	if h.Version != consensus.ProtocolVersion {
		return errors.New("p2p: incompatible protocol version")
	}

	if err := binary.Read(r, binary.BigEndian, (*uint32)(&h.Capabilities)); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, &h.Nonce); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, (*uint64)(&h.TotalDifficulty)); err != nil {
		return err
	}

	sender, err := deserializeTCPAddr(r)
	if err != nil {
		return err
	}
	h.SenderAddr = sender

	receiver, err := deserializeTCPAddr(r)
	if err != nil {
		return err
	}
	h.ReceiverAddr = receiver

	var userAgentLen uint64
	if err := binary.Read(r, binary.BigEndian, &userAgentLen); err != nil {
		return err
	}

	buff := make([]byte, userAgentLen)
	if _, err := io.ReadFull(r, buff); err != nil {
		return err
	}

	h.UserAgent = string(buff)
	return nil
}

// shake is the receiver's reply, completing the handshake with its own
// version and chain state.
type shake struct {
	Version         uint32
	Capabilities    consensus.Capabilities
	TotalDifficulty consensus.Difficulty
	UserAgent       string
}

func (s *shake) Bytes() []byte {
	buff := new(bytes.Buffer)

	if err := binary.Write(buff, binary.BigEndian, s.Version); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint32(s.Capabilities)); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint64(s.TotalDifficulty)); err != nil {
		logrus.Fatal(err)
	}

	if err := binary.Write(buff, binary.BigEndian, uint64(len(s.UserAgent))); err != nil {
		logrus.Fatal(err)
	}

	buff.WriteString(s.UserAgent)
	return buff.Bytes()
}

func (s *shake) Type() uint8 { return consensus.MsgTypeShake }

func (s *shake) Read(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &s.Version); err != nil {
		return err
	}

	if s.Version != consensus.ProtocolVersion {
		return errors.New("p2p: incompatible protocol version")
	}

	if err := binary.Read(r, binary.BigEndian, (*uint32)(&s.Capabilities)); err != nil {
		return err
	}

	if err := binary.Read(r, binary.BigEndian, (*uint64)(&s.TotalDifficulty)); err != nil {
		return err
	}

	var userAgentLen uint64
	if err := binary.Read(r, binary.BigEndian, &userAgentLen); err != nil {
		return err
	}

	buff := make([]byte, userAgentLen)
	if _, err := io.ReadFull(r, buff); err != nil {
		return err
	}

	s.UserAgent = string(buff)
	return nil
}

// shakeByHand performs the outbound half of a handshake: send our hand,
// receive the peer's shake.
func shakeByHand(conn net.Conn, listenAddr *net.TCPAddr, totalDifficulty consensus.Difficulty) (*shake, error) {
	receiver, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return nil, errors.New("p2p: remote addr is not tcp")
	}

	msg := hand{
		Version:         consensus.ProtocolVersion,
		Capabilities:    consensus.CapFullNode,
		Nonce:           serverNonces.next(),
		TotalDifficulty: totalDifficulty,
		SenderAddr:      listenAddr,
		ReceiverAddr:    receiver,
		UserAgent:       userAgent,
	}

	if _, err := WriteMessage(conn, &msg); err != nil {
		return nil, err
	}

	sh := new(shake)
	if _, err := ReadMessage(conn, sh); err != nil {
		return nil, err
	}

	return sh, nil
}

// handByShake performs the inbound half of a handshake: receive the peer's
// hand, send our shake.
func handByShake(conn net.Conn, totalDifficulty consensus.Difficulty) (*hand, error) {
	var h hand
	if _, err := ReadMessage(conn, &h); err != nil {
		return nil, err
	}

	if serverNonces.contains(h.Nonce) {
		return &h, errors.New("p2p: detected connection to ourselves")
	}

	msg := shake{
		Version:         consensus.ProtocolVersion,
		Capabilities:    consensus.CapFullNode,
		TotalDifficulty: totalDifficulty,
		UserAgent:       userAgent,
	}

	if _, err := WriteMessage(conn, &msg); err != nil {
		return nil, err
	}

	return &h, nil
}
