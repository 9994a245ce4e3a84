// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

// Package store is the on-disk backend behind a chain tip: BlockStore keeps
// full blocks and headers keyed by hash over LevelDB, and ChainStore tracks
// which block each named chain (confirmed/candidate/sync) currently points
// at. Neither package checks a single consensus rule; callers are trusted
// to only ever store what chainstate has already validated.
package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/dblokhin/gringo/consensus"
)

// ErrNotFound is returned when a lookup by hash or height misses.
var ErrNotFound = errors.New("store: not found")

const (
	blockPrefix  = "b:"
	headerPrefix = "h:"
	heightPrefix = "i:" // height (8 byte BE) -> hash, confirmed chain only
)

// BlockStore is a LevelDB-backed key/value store of full blocks and bare
// headers, keyed by block hash.
type BlockStore struct {
	db *leveldb.DB
}

// OpenBlockStore opens (creating if necessary) the LevelDB database at path.
func OpenBlockStore(path string) (*BlockStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open block store: %w", err)
	}

	return &BlockStore{db: db}, nil
}

// Close releases the underlying LevelDB handle.
func (s *BlockStore) Close() error {
	return s.db.Close()
}

// PutBlock stores the full block, keyed by its header hash, and records the
// header separately so headers-only sync doesn't need to deserialize whole
// blocks.
func (s *BlockStore) PutBlock(block *consensus.Block) error {
	hash := block.Header.Hash()

	batch := new(leveldb.Batch)
	batch.Put(append([]byte(blockPrefix), hash...), block.Bytes())
	batch.Put(append([]byte(headerPrefix), hash...), block.Header.Bytes())

	return s.db.Write(batch, nil)
}

// PutHeader stores a bare header, keyed by its own hash. Used while syncing
// headers ahead of the blocks that fill them in.
func (s *BlockStore) PutHeader(header *consensus.BlockHeader) error {
	hash := header.Hash()
	return s.db.Put(append([]byte(headerPrefix), hash...), header.Bytes(), nil)
}

// GetBlock returns the full block stored for hash.
func (s *BlockStore) GetBlock(hash consensus.Hash) (*consensus.Block, error) {
	raw, err := s.db.Get(append([]byte(blockPrefix), hash...), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	block := new(consensus.Block)
	if err := block.Read(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("store: decode block %x: %w", hash, err)
	}

	return block, nil
}

// HasBlock reports whether the full block body for hash is stored, as
// opposed to just its header.
func (s *BlockStore) HasBlock(hash consensus.Hash) bool {
	ok, err := s.db.Has(append([]byte(blockPrefix), hash...), nil)
	return err == nil && ok
}

// GetHeader returns the header stored for hash, whether it arrived via
// PutHeader or as part of PutBlock.
func (s *BlockStore) GetHeader(hash consensus.Hash) (*consensus.BlockHeader, error) {
	raw, err := s.db.Get(append([]byte(headerPrefix), hash...), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	header := new(consensus.BlockHeader)
	if err := header.Read(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("store: decode header %x: %w", hash, err)
	}

	return header, nil
}

// IndexHeight records hash as the confirmed-chain block at height, so
// LoadHeaders can later replay the confirmed chain in order without
// rebuilding it from peer-supplied locators.
func (s *BlockStore) IndexHeight(height uint64, hash consensus.Hash) error {
	key := heightKey(height)
	return s.db.Put(key, hash, nil)
}

// LoadHeaders replays every header indexed by height, in ascending height
// order, calling fn for each. Used to rebuild the in-memory BlockIndexArena
// on startup.
func (s *BlockStore) LoadHeaders(fn func(*consensus.BlockHeader) error) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(heightPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		hash := consensus.Hash(append([]byte(nil), iter.Value()...))

		header, err := s.GetHeader(hash)
		if err != nil {
			return fmt.Errorf("store: load header at indexed height: %w", err)
		}

		if err := fn(header); err != nil {
			return err
		}
	}

	return iter.Error()
}

func heightKey(height uint64) []byte {
	buf := make([]byte, len(heightPrefix)+8)
	copy(buf, heightPrefix)
	binary.BigEndian.PutUint64(buf[len(heightPrefix):], height)
	return buf
}
