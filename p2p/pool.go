// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package p2p

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dblokhin/gringo/consensus"
)

// maxOnlineConnections can be overridden from config through SetMaxPeers;
// maxPeersTableSize is fixed.
var (
	maxOnlineConnections = 15
	maxPeersTableSize    = 10000
)

// SetMaxPeers overrides the maximum number of simultaneous outbound
// connections. It must be called before NewSyncer, which sizes the
// connection-slot pool from it.
func SetMaxPeers(n int) {
	if n > 0 {
		maxOnlineConnections = n
	}
}

type peerStatus int

const (
	psNew peerStatus = iota
	psConnected
	psBanned
	psDisconnected
	psFailedConn
)

type peerInfo struct {
	sync.Mutex

	Status peerStatus
	Peer   *Peer

	ProtocolVersion uint32
	Height          uint64
	TotalDifficulty consensus.Difficulty
	Capabilities    consensus.Capabilities

	LastConn time.Time
}

// peersPool tracks every known peer address, which ones are connected, and
// which are banned, and drives outbound connection attempts.
type peersPool struct {
	ptmu sync.Mutex
	cpmu sync.Mutex
	bnmu sync.Mutex

	connected int32
	sync      *Syncer

	pool chan struct{}
	quit chan struct{}

	PeersTable     map[string]*peerInfo
	ConnectedPeers map[string]*peerInfo
	BannedPeers    map[string]struct{}
}

func newPeersPool(s *Syncer) *peersPool {
	return &peersPool{
		sync:           s,
		pool:           make(chan struct{}, maxOnlineConnections),
		quit:           make(chan struct{}),
		PeersTable:     make(map[string]*peerInfo),
		ConnectedPeers: make(map[string]*peerInfo),
		BannedPeers:    make(map[string]struct{}),
	}
}

// Ban closes the peer's connection (if any) and marks its address banned.
func (pp *peersPool) Ban(addr string) {
	pp.ptmu.Lock()
	pi, ok := pp.PeersTable[addr]
	pp.ptmu.Unlock()

	if ok {
		pi.Lock()
		pi.Status = psBanned
		peer := pi.Peer
		pi.Unlock()

		if peer != nil {
			peer.Close()
		}
	}

	pp.bnmu.Lock()
	pp.BannedPeers[addr] = struct{}{}
	pp.bnmu.Unlock()

	pp.ptmu.Lock()
	delete(pp.PeersTable, addr)
	pp.ptmu.Unlock()
}

// IsBanned reports whether addr has been banned.
func (pp *peersPool) IsBanned(addr string) bool {
	pp.bnmu.Lock()
	defer pp.bnmu.Unlock()

	_, ok := pp.BannedPeers[addr]
	return ok
}

// Add registers a newly-learned peer address, ignoring malformed or
// already-known addresses.
func (pp *peersPool) Add(addr string) {
	netAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil || netAddr.Port == 0 || netAddr.IP.IsMulticast() {
		return
	}

	if pp.IsBanned(addr) {
		return
	}

	pp.ptmu.Lock()
	defer pp.ptmu.Unlock()

	if len(pp.PeersTable) > maxPeersTableSize {
		return
	}

	if _, ok := pp.PeersTable[addr]; ok {
		return
	}

	pp.PeersTable[addr] = &peerInfo{
		Status:          psNew,
		TotalDifficulty: consensus.ZeroDifficulty,
		Capabilities:    consensus.CapUnknown,
		LastConn:        time.Unix(0, 0),
	}
}

// PeerAddrs returns up to consensus.MaxPeerAddrs known, non-banned addresses
// that satisfy capabilities.
func (pp *peersPool) PeerAddrs(capabilities consensus.Capabilities) []*net.TCPAddr {
	addrs := make([]*net.TCPAddr, 0)

	pp.ptmu.Lock()
	defer pp.ptmu.Unlock()

	for addr, pi := range pp.PeersTable {
		if pi.Status == psBanned || pi.Status == psFailedConn {
			continue
		}

		if (pi.Capabilities & capabilities) != capabilities {
			continue
		}

		if netAddr, err := net.ResolveTCPAddr("tcp", addr); err == nil {
			addrs = append(addrs, netAddr)
		} else {
			logrus.Error(err)
		}

		if len(addrs) == consensus.MaxPeerAddrs {
			break
		}
	}

	return addrs
}

// PropagateBlock forwards block to every connected peer lagging behind it.
func (pp *peersPool) PropagateBlock(block *consensus.Block) {
	pp.cpmu.Lock()
	defer pp.cpmu.Unlock()

	for _, pi := range pp.ConnectedPeers {
		go func(pi *peerInfo) {
			if pi.Height < block.Header.Height || pi.TotalDifficulty < block.Header.TotalDifficulty {
				if peer := pi.Peer; peer != nil {
					peer.SendBlock(block)
				}
			}
		}(pi)
	}
}

func (pp *peersPool) connectPeer(addr string) error {
	if len(addr) == 0 {
		return nil
	}

	if pp.connected > int32(maxOnlineConnections) {
		return errors.New("p2p: too many online peer connections")
	}

	pp.ptmu.Lock()
	pi, ok := pp.PeersTable[addr]
	pp.ptmu.Unlock()

	if !ok {
		return errors.New("p2p: peer not in peers table")
	}

	pi.Lock()
	defer pi.Unlock()

	if pi.Status == psBanned || pi.Status == psConnected {
		return nil
	}

	peerConn, err := NewPeer(pp.sync, addr)
	if err != nil {
		pi.Status = psFailedConn
		return err
	}

	if peerConn.Info.Version != consensus.ProtocolVersion {
		peerConn.Close()
		return fmt.Errorf("p2p: unexpected protocol version: %d", peerConn.Info.Version)
	}

	pp.connected++

	pi.Peer = peerConn
	pi.Status = psConnected
	pi.LastConn = time.Now()
	pi.ProtocolVersion = peerConn.Info.Version
	pi.Height = peerConn.Info.Height
	pi.TotalDifficulty = peerConn.Info.TotalDifficulty
	pi.Capabilities = peerConn.Info.Capabilities

	pp.cpmu.Lock()
	pp.ConnectedPeers[addr] = pi
	pp.cpmu.Unlock()

	peerConn.Start()
	peerConn.SendPing()
	peerConn.SendPeerRequest(consensus.CapFullNode)

	go func() {
		peerConn.WaitForDisconnect()

		pi.Lock()
		pi.Status = psDisconnected
		pi.Unlock()

		pp.connected--
		pp.cpmu.Lock()
		delete(pp.ConnectedPeers, addr)
		pp.cpmu.Unlock()

		<-pp.pool
	}()

	return nil
}

// Run drives outbound connection attempts until Stop is called.
func (pp *peersPool) Run() {
out:
	for {
		select {
		case <-pp.quit:
			break out

		case pp.pool <- struct{}{}:
			if err := pp.connectPeer(pp.notConnected()); err != nil {
				<-pp.pool
			}

			time.Sleep(time.Second)
		}
	}

	pp.ptmu.Lock()
	defer pp.ptmu.Unlock()

	for _, pi := range pp.PeersTable {
		go func(pi *peerInfo) {
			pi.Lock()
			defer pi.Unlock()

			if pi.Peer != nil {
				pi.Peer.Close()
			}

			pi.Status = psDisconnected
		}(pi)
	}
}

// Stop halts the connection loop.
func (pp *peersPool) Stop() {
	close(pp.quit)
}

func (pp *peersPool) notConnected() string {
	pp.ptmu.Lock()
	defer pp.ptmu.Unlock()

	for addr, pi := range pp.PeersTable {
		if pi.Status == psNew || pi.Status == psDisconnected {
			return addr
		}
	}

	for addr, pi := range pp.PeersTable {
		if pi.Status == psFailedConn {
			return addr
		}
	}

	return ""
}
