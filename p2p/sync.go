// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package p2p

import (
	"io"
	"io/ioutil"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dblokhin/gringo/chainstate"
	"github.com/dblokhin/gringo/consensus"
)

// ProcessResult is the outcome of handling one inbound message, mirroring
// how a misbehaving peer (BanPeer) is distinguished from a merely failed
// read (SocketFailure) or a message we chose not to understand
// (UnknownError, which does not tear down the connection).
type ProcessResult int

const (
	// Success means the message was handled normally.
	Success ProcessResult = iota
	// SocketFailure means the connection itself is unusable and should be
	// closed.
	SocketFailure
	// UnknownError means the message type isn't one we handle; its body is
	// discarded and the connection stays open.
	UnknownError
	// BanPeer means the peer violated the protocol and should be banned.
	BanPeer
)

// Mempool holds transactions relayed ahead of the blocks that will include
// them. A CompactBlock references the kernels it left out by short id, and
// a node that already has the matching kernels can hydrate locally instead
// of fetching the full block. A relayed Transaction in this wire format
// does not carry a finalized TxKernel, and nothing in this package calls
// AddKernel, so Kernels always reports none: every CompactBlock that
// carries a kernel short id falls back to a full GetBlock.
type Mempool struct {
	mu           sync.Mutex
	transactions []consensus.Transaction
	kernels      consensus.TxKernelList
}

// NewMempool returns an empty mempool.
func NewMempool() *Mempool {
	return &Mempool{}
}

// AddTransaction records a relayed transaction.
func (m *Mempool) AddTransaction(tx *consensus.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions = append(m.transactions, *tx)
}

// AddKernel records a finalized kernel as a hydration candidate for future
// CompactBlocks that reference it by short id.
func (m *Mempool) AddKernel(k consensus.TxKernel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.kernels = append(m.kernels, k)
}

// Kernels returns a snapshot of every kernel currently held.
func (m *Mempool) Kernels() consensus.TxKernelList {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(consensus.TxKernelList, len(m.kernels))
	copy(out, m.kernels)
	return out
}

// Syncer owns the chain state, the peer pool and the mempool, and
// dispatches every inbound peer message against them.
type Syncer struct {
	chain      *chainstate.ChainState
	mempool    *Mempool
	pool       *peersPool
	listenAddr *net.TCPAddr
	listener   net.Listener
}

// NewSyncer builds a Syncer bound to chain, advertising listenAddr to peers
// during the handshake.
func NewSyncer(chain *chainstate.ChainState, listenAddr *net.TCPAddr) *Syncer {
	s := &Syncer{
		chain:      chain,
		mempool:    NewMempool(),
		listenAddr: listenAddr,
	}

	s.pool = newPeersPool(s)
	return s
}

func (s *Syncer) totalDifficulty() consensus.Difficulty {
	return s.chain.TotalDifficulty()
}

func (s *Syncer) height() uint64 {
	return s.chain.Height()
}

// AddPeer registers addr as a candidate to connect to.
func (s *Syncer) AddPeer(addr string) {
	s.pool.Add(addr)
}

// PeerAddrs returns known peer addresses satisfying capabilities.
func (s *Syncer) PeerAddrs(capabilities consensus.Capabilities) []*net.TCPAddr {
	return s.pool.PeerAddrs(capabilities)
}

// Run starts the outbound connection loop in the background.
func (s *Syncer) Run() {
	go s.pool.Run()
}

// Stop halts outbound connection attempts and the listener, if any.
func (s *Syncer) Stop() {
	s.pool.Stop()

	if s.listener != nil {
		s.listener.Close()
	}
}

// Listen accepts inbound peer connections on addr until Stop is called.
func (s *Syncer) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.listener = ln

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go s.acceptConn(conn)
		}
	}()

	return nil
}

func (s *Syncer) acceptConn(conn net.Conn) {
	peer, err := AcceptPeer(s, conn)
	if err != nil {
		logrus.Debugf("p2p: rejected inbound peer: %v", err)
		return
	}

	addr := conn.RemoteAddr().String()

	s.pool.ptmu.Lock()
	pi, ok := s.pool.PeersTable[addr]
	if !ok {
		pi = &peerInfo{Status: psNew, Capabilities: consensus.CapUnknown}
		s.pool.PeersTable[addr] = pi
	}
	s.pool.ptmu.Unlock()

	pi.Lock()
	pi.Peer = peer
	pi.Status = psConnected
	pi.ProtocolVersion = peer.Info.Version
	pi.TotalDifficulty = peer.Info.TotalDifficulty
	pi.Capabilities = peer.Info.Capabilities
	pi.Unlock()

	s.pool.cpmu.Lock()
	s.pool.ConnectedPeers[addr] = pi
	s.pool.cpmu.Unlock()

	peer.Start()
	peer.SendPing()
}

// headersFrom builds the header batch answering a GetBlockHeaders locator:
// the first locator hash we recognize anchors the reply, which then
// continues forward along our confirmed chain.
func (s *Syncer) headersFrom(locator consensus.Locator) []consensus.BlockHeader {
	start := uint64(1)

	for _, hash := range locator.Hashes {
		if header, err := s.chain.HeaderByHash(hash); err == nil {
			start = header.Height + 1
			break
		}
	}

	tip := s.chain.Height()
	headers := make([]consensus.BlockHeader, 0, consensus.MaxBlockHeaders)

	for h := start; h <= tip && len(headers) < consensus.MaxBlockHeaders; h++ {
		header, err := s.chain.HeaderAt(h)
		if err != nil {
			break
		}

		headers = append(headers, *header)
	}

	return headers
}

// compactFromBlock builds the compact wire representation of block: full
// coinbase outputs and kernels, and short ids for the other kernels. Inputs
// and non-coinbase outputs are not carried.
func compactFromBlock(block *consensus.Block) *consensus.CompactBlock {
	compact := &consensus.CompactBlock{Header: block.Header}
	blockHash := block.Header.Hash()

	for _, output := range block.Outputs {
		if output.Features&consensus.CoinbaseOutput == consensus.CoinbaseOutput {
			compact.Outputs = append(compact.Outputs, output)
		}
	}

	for _, kernel := range block.Kernels {
		if kernel.Features&consensus.CoinbaseKernel == consensus.CoinbaseKernel {
			compact.Kernels = append(compact.Kernels, kernel)
			continue
		}

		compact.KernelIDs = append(compact.KernelIDs, consensus.Hash(kernel.Hash()).ShortID(blockHash))
	}

	return compact
}

// ProcessMessage dispatches one already-framed inbound message to the
// handler for its type, per the full message table: Ping/Pong,
// GetPeerAddrs/PeerAddrs, GetHeaders/Headers, GetBlock/Block,
// GetCompactBlock/CompactBlock (with mempool hydration fallback),
// Transaction, TxHashSetRequest/Archive, and ban reports. Anything else is
// discarded without tearing down the connection.
func (s *Syncer) ProcessMessage(p *Peer, header Header, body io.Reader) ProcessResult {
	switch header.Type {
	case consensus.MsgTypePing:
		var msg Ping
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		p.Info.TotalDifficulty = msg.TotalDifficulty
		p.Info.Height = msg.Height

		p.WriteMessage(&Pong{Ping{TotalDifficulty: s.totalDifficulty(), Height: s.height()}})
		return Success

	case consensus.MsgTypePong:
		var msg Pong
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		p.Info.TotalDifficulty = msg.TotalDifficulty
		p.Info.Height = msg.Height
		return Success

	case consensus.MsgTypeGetPeerAddrs:
		var msg GetPeerAddrs
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		p.WriteMessage(&PeerAddrs{peers: s.pool.PeerAddrs(msg.Capabilities)})
		return Success

	case consensus.MsgTypePeerAddrs:
		var msg PeerAddrs
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		for _, addr := range msg.peers {
			s.pool.Add(addr.String())
		}
		return Success

	case consensus.MsgTypeGetHeaders:
		var msg GetBlockHeaders
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		p.WriteMessage(&BlockHeaders{Headers: s.headersFrom(msg.Locator)})
		return Success

	case consensus.MsgTypeHeaders:
		var msg BlockHeaders
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		for i := range msg.Headers {
			if err := s.chain.AddHeader(&msg.Headers[i]); err != nil {
				logrus.Debugf("p2p: rejecting header from peer: %v", err)
			}
		}
		return Success

	case consensus.MsgTypeGetBlock:
		var msg GetBlock
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		locked := s.chain.RLock()
		block, err := locked.Blocks().GetBlock(msg.Hash)
		locked.Unlock()

		if err == nil {
			p.WriteMessage(block)
		}
		return Success

	case consensus.MsgTypeBlock:
		var msg consensus.Block
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		if err := s.chain.AddBlock(&msg); err != nil {
			logrus.Debugf("p2p: rejecting block from peer: %v", err)
			return Success
		}

		s.pool.PropagateBlock(&msg)
		return Success

	case consensus.MsgTypeGetCompactBlock:
		var msg GetCompactBlock
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		locked := s.chain.RLock()
		block, err := locked.Blocks().GetBlock(msg.Hash)
		locked.Unlock()

		if err == nil {
			p.WriteMessage(compactFromBlock(block))
		}
		return Success

	case consensus.MsgTypeCompactBlock:
		var msg consensus.CompactBlock
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		full, ok := msg.Hydrate(s.mempool.Kernels())
		if !ok {
			p.SendBlockRequest(msg.Hash())
			return Success
		}

		if err := s.chain.AddBlock(&full); err != nil {
			logrus.Debugf("p2p: rejecting hydrated compact block from peer: %v", err)
		} else {
			s.pool.PropagateBlock(&full)
		}
		return Success

	case consensus.MsgTypeTransaction:
		var msg consensus.Transaction
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		s.mempool.AddTransaction(&msg)
		return Success

	case consensus.MsgTypeTxHashSetRequest:
		var msg TxHashSetRequest
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		// No archive is sent back: the request is decoded and logged, and
		// the message loop carries on.
		logrus.Debugf("p2p: txhashset request for height %d received, no archive sent", msg.Height)
		return Success

	case consensus.MsgTypeTxHashSetArchive:
		var msg TxHashSetArchive
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		logrus.Infof("p2p: peer announces txhashset archive at height %d (%d bytes)", msg.Height, msg.Bandwidth)
		return Success

	case consensus.MsgTypeBanReason:
		var msg PeerError
		if err := msg.Read(body); err != nil {
			return SocketFailure
		}

		logrus.Warnf("p2p: peer reported ban reason %d: %s", msg.Code, msg.Message)
		return BanPeer

	default:
		if _, err := io.Copy(ioutil.Discard, body); err != nil {
			return SocketFailure
		}

		return UnknownError
	}
}
