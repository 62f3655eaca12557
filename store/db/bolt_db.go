// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package db

import (
	"bytes"
	"context"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("ledger")

// BoltDB is a Db backed by a single bbolt bucket.
type BoltDB struct {
	db *bolt.DB
}

var _ Db = (*BoltDB)(nil)

// NewBoltDB opens (creating if needed) the bolt file at |path|.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening bolt db at %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

// seek returns the value stored at exactly |key|. Values are looked up with
// a cursor so that empty values are distinguishable from missing keys.
func seek(b *bolt.Bucket, key []byte) ([]byte, bool) {
	k, v := b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	return v, true
}

func (b *BoltDB) Get(ctx context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v, ok := seek(tx.Bucket(boltBucket), key)
		if !ok {
			return ErrNotFound
		}
		out = copyBytes(v)
		return nil
	})
	return out, err
}

func (b *BoltDB) Has(ctx context.Context, key []byte) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		_, found = seek(tx.Bucket(boltBucket), key)
		return nil
	})
	return found, err
}

func (b *BoltDB) HasPrefix(ctx context.Context, prefix []byte) (bool, error) {
	found := false
	err := b.scan(prefix, func(k, v []byte) bool {
		found = true
		return false
	})
	return found, err
}

func (b *BoltDB) GetByPrefix(ctx context.Context, prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := b.scan(prefix, func(k, v []byte) bool {
		keys = append(keys, copyBytes(k[len(prefix):]))
		return true
	})
	return keys, err
}

func (b *BoltDB) GetEntriesByPrefix(ctx context.Context, prefix []byte) ([]KV, error) {
	var kvs []KV
	err := b.scan(prefix, func(k, v []byte) bool {
		kvs = append(kvs, KV{Key: copyBytes(k[len(prefix):]), Value: copyBytes(v)})
		return true
	})
	return kvs, err
}

func (b *BoltDB) scan(prefix []byte, cb func(k, v []byte) bool) error {
	return b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if !cb(k, v) {
				return nil
			}
		}
		return nil
	})
}

func (b *BoltDB) StartBatch(ctx context.Context) (Batch, error) {
	return newOpBatch(b.apply), nil
}

func (b *BoltDB) apply(ctx context.Context, ops []op) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(boltBucket)
		for _, o := range ops {
			switch o.kind {
			case opPut:
				if err := bkt.Put(o.key, o.value); err != nil {
					return err
				}
			case opDelete:
				if err := bkt.Delete(o.key); err != nil {
					return err
				}
			case opDeletePrefix:
				var doomed [][]byte
				c := bkt.Cursor()
				for k, _ := c.Seek(o.key); k != nil && bytes.HasPrefix(k, o.key); k, _ = c.Next() {
					doomed = append(doomed, copyBytes(k))
				}
				for _, k := range doomed {
					if err := bkt.Delete(k); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}
