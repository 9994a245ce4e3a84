// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package p2p

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dblokhin/gringo/consensus"
)

// Peer is one connected participant of the p2p network. It satisfies
// consensus.Protocol, so the rest of the node can send to a peer without
// depending on this package's connection bookkeeping.
type Peer struct {
	conn net.Conn
	sync *Syncer

	bytesReceived uint64
	bytesSent     uint64

	quit chan struct{}
	wg   sync.WaitGroup

	sendQueue chan Message

	disconnect int32

	Info struct {
		Version         uint32
		Capabilities    consensus.Capabilities
		TotalDifficulty consensus.Difficulty
		UserAgent       string
		Height          uint64
	}
}

// NewPeer dials addr and performs the outbound handshake.
func NewPeer(s *Syncer, addr string) (*Peer, error) {
	logrus.Infof("p2p: dialing %s", addr)

	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialTCP("tcp", nil, tcpAddr)
	if err != nil {
		return nil, err
	}

	sh, err := shakeByHand(conn, s.listenAddr, s.totalDifficulty())
	if err != nil {
		conn.Close()
		return nil, err
	}

	p := &Peer{
		conn:      conn,
		sync:      s,
		quit:      make(chan struct{}),
		sendQueue: make(chan Message, consensus.OutboundQueueCap),
	}

	p.Info.Version = sh.Version
	p.Info.Capabilities = sh.Capabilities
	p.Info.TotalDifficulty = sh.TotalDifficulty
	p.Info.UserAgent = sh.UserAgent

	return p, nil
}

// AcceptPeer completes the inbound handshake over an already-accepted conn.
func AcceptPeer(s *Syncer, conn net.Conn) (*Peer, error) {
	logrus.Info("p2p: accepting inbound peer")

	h, err := handByShake(conn, s.totalDifficulty())
	if err != nil {
		conn.Close()
		return nil, err
	}

	p := &Peer{
		conn:      conn,
		sync:      s,
		quit:      make(chan struct{}),
		sendQueue: make(chan Message, consensus.OutboundQueueCap),
	}

	p.Info.Version = h.Version
	p.Info.Capabilities = h.Capabilities
	p.Info.TotalDifficulty = h.TotalDifficulty
	p.Info.UserAgent = h.UserAgent

	return p, nil
}

// Start launches the peer's read and write loops. Must be called once.
func (p *Peer) Start() {
	p.wg.Add(2)
	go p.writeLoop()
	go p.readLoop()
}

func (p *Peer) writeLoop() {
	var exitErr error

out:
	for {
		select {
		case msg := <-p.sendQueue:
			if atomic.LoadInt32(&p.disconnect) != 0 {
				break out
			}

			written, err := WriteMessage(p.conn, msg)
			if err != nil {
				exitErr = err
				break out
			}

			atomic.AddUint64(&p.bytesSent, written)

		case <-p.quit:
			exitErr = errors.New("p2p: peer exiting")
			break out
		}
	}

	p.wg.Done()
	p.Disconnect(exitErr)
}

// WriteMessage enqueues msg for sending, unless the peer is shutting down.
func (p *Peer) WriteMessage(msg Message) {
	select {
	case <-p.quit:
		logrus.Debug("p2p: dropping message, peer is shutting down")
	case p.sendQueue <- msg:
	}
}

func (p *Peer) readLoop() {
	var exitErr error
	var banned bool
	input := bufio.NewReader(p.conn)

	for atomic.LoadInt32(&p.disconnect) == 0 {
		var header Header
		if exitErr = header.Read(input); exitErr != nil {
			break
		}

		if header.Len > consensus.MsgLimit(header.Type) {
			exitErr = errors.New("p2p: message body exceeds the limit for its type")
			break
		}

		body := io.LimitReader(input, int64(header.Len))

		result := p.sync.ProcessMessage(p, header, body)
		atomic.AddUint64(&p.bytesReceived, header.Len+consensus.HeaderLen)

		switch result {
		case Success:
			continue
		case BanPeer:
			exitErr = errors.New("p2p: peer banned")
			banned = true
		case SocketFailure:
			exitErr = errors.New("p2p: socket failure processing message")
		case UnknownError:
			logrus.Debug("p2p: ignoring message that failed to process")
			continue
		}

		break
	}

	p.wg.Done()
	p.Disconnect(exitErr)

	if banned {
		p.sync.pool.Ban(p.conn.RemoteAddr().String())
	}
}

// Disconnect tears down the connection, safe to call more than once.
func (p *Peer) Disconnect(reason error) {
	if !atomic.CompareAndSwapInt32(&p.disconnect, 0, 1) {
		return
	}

	logrus.Infof("p2p: disconnecting peer %s: %v", p.conn.RemoteAddr(), reason)

	close(p.quit)
	p.conn.Close()
	p.wg.Wait()
}

// Close implements consensus.Protocol.
func (p *Peer) Close() {
	p.Disconnect(errors.New("p2p: closing peer"))
}

// WaitForDisconnect blocks until the peer's loops have exited.
func (p *Peer) WaitForDisconnect() {
	<-p.quit
	p.wg.Wait()
}

// SendPing implements consensus.Protocol.
func (p *Peer) SendPing() {
	p.WriteMessage(&Ping{
		TotalDifficulty: p.sync.totalDifficulty(),
		Height:          p.sync.height(),
	})
}

// SendBlock implements consensus.Protocol.
func (p *Peer) SendBlock(block *consensus.Block) {
	p.WriteMessage(block)
}

// SendTransaction implements consensus.Protocol.
func (p *Peer) SendTransaction(tx consensus.Transaction) {
	p.WriteMessage(&tx)
}

// SendHeaderRequest implements consensus.Protocol.
func (p *Peer) SendHeaderRequest(locator consensus.Locator) {
	if len(locator.Hashes) > consensus.MaxLocators {
		logrus.Fatal(errors.New("p2p: too many locator hashes"))
	}

	p.WriteMessage(&GetBlockHeaders{Locator: locator})
}

// SendBlockRequest implements consensus.Protocol.
func (p *Peer) SendBlockRequest(hash consensus.Hash) {
	p.WriteMessage(&GetBlock{Hash: hash})
}

// SendPeerRequest implements consensus.Protocol.
func (p *Peer) SendPeerRequest(capabilities consensus.Capabilities) {
	p.WriteMessage(&GetPeerAddrs{Capabilities: capabilities})
}

var _ consensus.Protocol = (*Peer)(nil)
