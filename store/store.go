// Package store is a derived, rebuildable lookup index over the in-memory
// chain: height to block hash, block hash to height, and transaction id to
// the height of the block that confirmed it. It is never the system of
// record — chain.Blockchain's in-memory chainList is — and a missing or
// corrupt index file is recovered by calling Rebuild against the live
// chain rather than treated as data loss.
//
// Schema and bbolt usage follow node/store/db.go: one bucket per mapping,
// fixed-width big-endian height keys, crash-safe manifest handling left to
// bbolt's own transaction durability since there is no cross-file
// invariant to maintain (unlike the teacher's headers/blocks/utxo/undo
// buckets, which must commit together).
package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/agecoder/rubinchain/consensus"
)

var (
	bucketHeightToHash = []byte("height_to_hash")
	bucketHashToHeight = []byte("hash_to_height")
	bucketTxToHeight   = []byte("tx_to_height")
)

// Index is the derived height/hash/transaction lookup store.
type Index struct {
	db *bolt.DB
}

// Open creates or opens the index file at path, creating its parent
// directory and buckets as needed.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	idx := &Index{db: db}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketHeightToHash, bucketHashToHeight, bucketTxToHeight} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}
	return idx, nil
}

// Close releases the underlying bbolt file.
func (idx *Index) Close() error {
	if idx == nil || idx.db == nil {
		return nil
	}
	return idx.db.Close()
}

func heightKey(height uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, height)
	return b
}

// Rebuild discards the current index and repopulates it from chainList,
// the authoritative in-memory chain. Intended to run at startup and after
// every accepted chain replacement — the index is cheap enough to throw
// away and rebuild rather than incrementally reconciled.
func (idx *Index) Rebuild(chainList []*consensus.Block) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketHeightToHash, bucketHashToHeight, bucketTxToHeight} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		heightToHash := tx.Bucket(bucketHeightToHash)
		hashToHeight := tx.Bucket(bucketHashToHeight)
		txToHeight := tx.Bucket(bucketTxToHeight)

		for _, block := range chainList {
			hk := heightKey(block.Height)
			if err := heightToHash.Put(hk, []byte(block.Hash)); err != nil {
				return err
			}
			if err := hashToHeight.Put([]byte(block.Hash), hk); err != nil {
				return err
			}
			for _, txn := range block.Data {
				if err := txToHeight.Put([]byte(txn.ID), hk); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// HashAtHeight returns the block hash confirmed at height, if indexed.
func (idx *Index) HashAtHeight(height uint64) (string, bool, error) {
	var hash string
	var ok bool
	err := idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHeightToHash).Get(heightKey(height))
		if v == nil {
			return nil
		}
		hash, ok = string(v), true
		return nil
	})
	return hash, ok, err
}

// HeightForHash returns the height of the block with the given hash, if
// indexed.
func (idx *Index) HeightForHash(hash string) (uint64, bool, error) {
	var height uint64
	var ok bool
	err := idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHashToHeight).Get([]byte(hash))
		if v == nil {
			return nil
		}
		height, ok = binary.BigEndian.Uint64(v), true
		return nil
	})
	return height, ok, err
}

// HeightForTx returns the height of the block that confirmed txID, if
// indexed.
func (idx *Index) HeightForTx(txID string) (uint64, bool, error) {
	var height uint64
	var ok bool
	err := idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTxToHeight).Get([]byte(txID))
		if v == nil {
			return nil
		}
		height, ok = binary.BigEndian.Uint64(v), true
		return nil
	})
	return height, ok, err
}
