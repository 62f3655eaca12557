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
	"context"
	"os"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
)

// BadgerDB is a Db backed by badger.
type BadgerDB struct {
	db *badger.DB
}

var _ Db = (*BadgerDB)(nil)

// NewBadgerDB opens (creating if needed) a badger database in |dir|.
func NewBadgerDB(dir string) (*BadgerDB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "creating %s", dir)
	}
	bopts := badger.DefaultOptions
	bopts.Dir = dir
	bopts.ValueDir = dir
	bopts.SyncWrites = true

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger at %s", dir)
	}
	return &BadgerDB{db: db}, nil
}

func (b *BadgerDB) Get(ctx context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

func (b *BadgerDB) Has(ctx context.Context, key []byte) (bool, error) {
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (b *BadgerDB) HasPrefix(ctx context.Context, prefix []byte) (bool, error) {
	found := false
	err := b.scan(prefix, false, func(item *badger.Item) (bool, error) {
		found = true
		return false, nil
	})
	return found, err
}

func (b *BadgerDB) GetByPrefix(ctx context.Context, prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := b.scan(prefix, false, func(item *badger.Item) (bool, error) {
		keys = append(keys, copyBytes(item.Key()[len(prefix):]))
		return true, nil
	})
	return keys, err
}

func (b *BadgerDB) GetEntriesByPrefix(ctx context.Context, prefix []byte) ([]KV, error) {
	var kvs []KV
	err := b.scan(prefix, true, func(item *badger.Item) (bool, error) {
		v, err := item.ValueCopy(nil)
		if err != nil {
			return false, err
		}
		kvs = append(kvs, KV{Key: copyBytes(item.Key()[len(prefix):]), Value: copyBytes(v)})
		return true, nil
	})
	return kvs, err
}

func (b *BadgerDB) scan(prefix []byte, values bool, cb func(item *badger.Item) (bool, error)) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = values

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			cont, err := cb(it.Item())
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
}

func (b *BadgerDB) StartBatch(ctx context.Context) (Batch, error) {
	return newOpBatch(b.apply), nil
}

func (b *BadgerDB) apply(ctx context.Context, ops []op) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, o := range ops {
			switch o.kind {
			case opPut:
				if err := txn.Set(o.key, o.value); err != nil {
					return err
				}
			case opDelete:
				if err := txn.Delete(o.key); err != nil {
					return err
				}
			case opDeletePrefix:
				var doomed [][]byte
				opts := badger.DefaultIteratorOptions
				opts.PrefetchValues = false
				it := txn.NewIterator(opts)
				for it.Seek(o.key); it.ValidForPrefix(o.key); it.Next() {
					doomed = append(doomed, copyBytes(it.Item().Key()))
				}
				it.Close()
				for _, k := range doomed {
					if err := txn.Delete(k); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

func (b *BadgerDB) Close() error {
	return b.db.Close()
}
