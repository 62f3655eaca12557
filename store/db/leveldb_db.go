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

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a Db backed by goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

var _ Db = (*LevelDB)(nil)

func levelDBOptions() *opt.Options {
	return &opt.Options{
		Compression: opt.NoCompression,
		Filter:      filter.NewBloomFilter(10), // 10 bits/key
		WriteBuffer: 1 << 24,                   // 16MiB
	}
}

// NewLevelDB opens (creating if needed) a LevelDB in |dir|.
func NewLevelDB(dir string) (*LevelDB, error) {
	if dir == "" {
		return nil, errors.New("leveldb requires a directory")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "creating %s", dir)
	}
	db, err := leveldb.OpenFile(dir, levelDBOptions())
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %s", dir)
	}
	return &LevelDB{db: db}, nil
}

// NewMemLevelDB opens a LevelDB over in-memory storage.
func NewMemLevelDB() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), levelDBOptions())
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(ctx context.Context, key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if err == lerrors.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (l *LevelDB) Has(ctx context.Context, key []byte) (bool, error) {
	// This isn't really a "read", so don't signal the cache to treat it as one.
	return l.db.Has(key, &opt.ReadOptions{DontFillCache: true})
}

func (l *LevelDB) HasPrefix(ctx context.Context, prefix []byte) (bool, error) {
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	found := it.Next()
	return found, it.Error()
}

func (l *LevelDB) GetByPrefix(ctx context.Context, prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := l.scan(prefix, func(k, v []byte) {
		keys = append(keys, copyBytes(k[len(prefix):]))
	})
	return keys, err
}

func (l *LevelDB) GetEntriesByPrefix(ctx context.Context, prefix []byte) ([]KV, error) {
	var kvs []KV
	err := l.scan(prefix, func(k, v []byte) {
		kvs = append(kvs, KV{Key: copyBytes(k[len(prefix):]), Value: copyBytes(v)})
	})
	return kvs, err
}

func (l *LevelDB) scan(prefix []byte, cb func(k, v []byte)) error {
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		cb(it.Key(), it.Value())
	}
	return it.Error()
}

func (l *LevelDB) StartBatch(ctx context.Context) (Batch, error) {
	return newOpBatch(l.apply), nil
}

func (l *LevelDB) apply(ctx context.Context, ops []op) error {
	b := new(leveldb.Batch)
	for i, o := range ops {
		switch o.kind {
		case opPut:
			b.Put(o.key, o.value)
		case opDelete:
			b.Delete(o.key)
		case opDeletePrefix:
			if err := l.scan(o.key, func(k, v []byte) {
				b.Delete(copyBytes(k))
			}); err != nil {
				return err
			}
			for _, k := range pendingPutsWithPrefix(ops, i, o.key) {
				b.Delete(k)
			}
		}
	}
	// Sync: true write option should fsync memtable data to disk
	return l.db.Write(b, &opt.WriteOptions{Sync: true})
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
