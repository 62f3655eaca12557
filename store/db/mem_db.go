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
	"sync"

	"github.com/google/btree"
)

const memDBDegree = 32

// MemDB is an in-memory Db ordered by a btree. It is used by tests and by
// pages that do not need to survive a restart.
type MemDB struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[KV]
	closed bool
}

var _ Db = (*MemDB)(nil)

func kvLess(a, b KV) bool {
	return bytes.Compare(a.Key, b.Key) < 0
}

// NewMemDB returns an empty MemDB.
func NewMemDB() *MemDB {
	return &MemDB{tree: btree.NewG[KV](memDBDegree, kvLess)}
}

func (m *MemDB) Get(ctx context.Context, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kv, ok := m.tree.Get(KV{Key: key})
	if !ok {
		return nil, ErrNotFound
	}
	return copyBytes(kv.Value), nil
}

func (m *MemDB) Has(ctx context.Context, key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Has(KV{Key: key}), nil
}

func (m *MemDB) HasPrefix(ctx context.Context, prefix []byte) (bool, error) {
	found := false
	m.scan(prefix, func(kv KV) bool {
		found = true
		return false
	})
	return found, nil
}

func (m *MemDB) GetByPrefix(ctx context.Context, prefix []byte) ([][]byte, error) {
	var keys [][]byte
	m.scan(prefix, func(kv KV) bool {
		keys = append(keys, copyBytes(kv.Key[len(prefix):]))
		return true
	})
	return keys, nil
}

func (m *MemDB) GetEntriesByPrefix(ctx context.Context, prefix []byte) ([]KV, error) {
	var kvs []KV
	m.scan(prefix, func(kv KV) bool {
		kvs = append(kvs, KV{Key: copyBytes(kv.Key[len(prefix):]), Value: copyBytes(kv.Value)})
		return true
	})
	return kvs, nil
}

func (m *MemDB) scan(prefix []byte, cb func(kv KV) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.tree.AscendGreaterOrEqual(KV{Key: prefix}, func(kv KV) bool {
		if !bytes.HasPrefix(kv.Key, prefix) {
			return false
		}
		return cb(kv)
	})
}

func (m *MemDB) StartBatch(ctx context.Context) (Batch, error) {
	return newOpBatch(m.apply), nil
}

func (m *MemDB) apply(ctx context.Context, ops []op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range ops {
		switch o.kind {
		case opPut:
			m.tree.ReplaceOrInsert(KV{Key: o.key, Value: o.value})
		case opDelete:
			m.tree.Delete(KV{Key: o.key})
		case opDeletePrefix:
			var doomed []KV
			m.tree.AscendGreaterOrEqual(KV{Key: o.key}, func(kv KV) bool {
				if !bytes.HasPrefix(kv.Key, o.key) {
					return false
				}
				doomed = append(doomed, kv)
				return true
			})
			for _, kv := range doomed {
				m.tree.Delete(kv)
			}
		}
	}
	return nil
}

// Len returns the number of keys stored.
func (m *MemDB) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

func (m *MemDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
