// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/dblokhin/gringo/chainstate"
	"github.com/dblokhin/gringo/config"
	"github.com/dblokhin/gringo/p2p"
)

func init() {
	logrus.SetOutput(os.Stdout)
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logrus.Infof("gringod %s starting on %s", config.Version, cfg.Network)

	genesis := &chainstate.Testnet1
	if cfg.Network == "mainnet" {
		genesis = &chainstate.Mainnet
	}

	chain, err := chainstate.Open(cfg.DataDir, genesis)
	if err != nil {
		logrus.Fatalf("opening chain state: %v", err)
	}
	defer chain.Close()

	listenAddr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("0.0.0.0:%d", cfg.P2P.Port))
	if err != nil {
		logrus.Fatalf("resolving listen address: %v", err)
	}

	p2p.SetMaxPeers(cfg.P2P.MaxPeers)

	syncer := p2p.NewSyncer(chain, listenAddr)
	for _, addr := range cfg.P2P.ConnectPeer {
		syncer.AddPeer(addr)
	}

	if err := syncer.Listen(fmt.Sprintf(":%d", cfg.P2P.Port)); err != nil {
		logrus.Fatalf("listening for peers: %v", err)
	}

	syncer.Run()
	logrus.Infof("listening for peers on port %d, height %d", cfg.P2P.Port, chain.Height())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logrus.Info("shutting down")
	syncer.Stop()

	if err := chain.FlushAll(); err != nil {
		logrus.Errorf("flushing chain state: %v", err)
	}
}
