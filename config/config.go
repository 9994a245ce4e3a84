// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

// Package config loads gringod's on-disk and command-line configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	flags "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

// Version is gringod's release version, reported by --version and logged
// at startup. The handshake advertises the p2p package's own user-agent
// string.
const Version = "0.1.0"

var (
	gringodHomeDir    = appDataDir("gringod")
	defaultConfigFile = filepath.Join(gringodHomeDir, "gringod.conf")
	defaultDataDir    = filepath.Join(gringodHomeDir, "data")
)

// P2P holds the peer-to-peer server's configuration.
type P2P struct {
	Port        int      `long:"port" default:"13414" description:"TCP port to listen for peer connections on"`
	MaxPeers    int      `long:"maxpeers" default:"15" description:"maximum number of simultaneous connected peers"`
	ConnectPeer []string `long:"connect" description:"address of a peer to connect to at startup (may be given multiple times)"`
}

// Dandelion holds the stem-phase transaction relay configuration.
type Dandelion struct {
	Enabled     bool `long:"enabled" description:"relay transactions through the dandelion stem phase before fluffing"`
	EmbargoSecs int  `long:"embargo" default:"30" description:"seconds to wait for a stem transaction to appear in a block before fluffing it"`
	StemPhaseHops int `long:"stemhops" default:"3" description:"average number of hops a transaction stays in the stem phase"`
}

// Config is gringod's full runtime configuration.
//
// See Load for the order config sources are merged in.
type Config struct {
	ConfigFile string `short:"C" long:"config" description:"path to configuration file"`
	DataDir    string `short:"d" long:"datadir" description:"directory to store blockchain data"`
	Network    string `short:"n" long:"network" description:"network to join (testnet1, mainnet)"`
	LogLevel   string `long:"loglevel" default:"info" description:"logging level (debug, info, warn, error)"`
	ShowVersion bool  `short:"V" long:"version" description:"display version information and exit"`

	P2P       P2P       `group:"P2P Options" namespace:"p2p"`
	Dandelion Dandelion `group:"Dandelion Options" namespace:"dandelion"`
}

// defaults returns a Config populated with gringod's built-in defaults,
// before any config file or command-line flags are applied.
func defaults() Config {
	return Config{
		ConfigFile: defaultConfigFile,
		DataDir:    defaultDataDir,
		Network:    "testnet1",
		LogLevel:   "info",
		P2P: P2P{
			Port:     13414,
			MaxPeers: 15,
		},
		Dandelion: Dandelion{
			EmbargoSecs:   30,
			StemPhaseHops: 3,
		},
	}
}

// Load builds gringod's configuration in four steps: start from built-in
// defaults, pre-parse the command line for a -C/--config override, load
// that config file over the defaults, then parse the command line again so
// flags take precedence over both.
func Load(args []string) (*Config, error) {
	cfg := defaults()

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	if _, err := preParser.ParseArgs(args); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return nil, err
		}
	}

	if preCfg.ShowVersion {
		fmt.Println("gringod version", Version)
		os.Exit(0)
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			return nil, fmt.Errorf("config: parsing config file: %w", err)
		}
	}

	if _, err := parser.ParseArgs(args); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return nil, err
		}
		return nil, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("config: creating data directory: %w", err)
	}

	switch cfg.Network {
	case "testnet1", "mainnet":
	default:
		return nil, fmt.Errorf("config: unknown network %q", cfg.Network)
	}

	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	} else {
		logrus.Warnf("config: unrecognized log level %q, defaulting to info", cfg.LogLevel)
	}

	return &cfg, nil
}

// cleanAndExpandPath expands a leading ~ and any environment variables in
// path, then cleans the result.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		path = strings.Replace(path, "~", filepath.Dir(gringodHomeDir), 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}

// appDataDir returns the default per-user application data directory for
// name, following the same convention per-OS as other Go node software in
// this family (APPDATA on Windows, Library/Application Support on macOS,
// dotdir on everything else).
func appDataDir(name string) string {
	if name == "" {
		return "."
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "." + name
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}

		if appData != "" {
			return filepath.Join(appData, name)
		}

	case "darwin":
		return filepath.Join(home, "Library", "Application Support", name)
	}

	return filepath.Join(home, "."+strings.ToLower(name))
}
