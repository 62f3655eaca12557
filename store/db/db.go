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

// Package db defines the key-value database a page is persisted in, and the
// backends that implement it. Every mutation goes through a Batch so that a
// commit, its tree nodes and the head update land atomically.
package db

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when a key is absent.
var ErrNotFound = errors.New("key not found")

// ErrBatchExecuted is returned when a Batch is used after Execute.
var ErrBatchExecuted = errors.New("batch already executed")

// KV is a key/value pair returned by prefix scans.
type KV struct {
	Key   []byte
	Value []byte
}

// Db is an ordered key-value store.
type Db interface {
	// Get returns the value of |key|, or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Has returns true if |key| is present.
	Has(ctx context.Context, key []byte) (bool, error)

	// HasPrefix returns true if at least one key starts with |prefix|.
	HasPrefix(ctx context.Context, prefix []byte) (bool, error)

	// GetByPrefix returns, in key order, the suffixes of every key starting
	// with |prefix|.
	GetByPrefix(ctx context.Context, prefix []byte) ([][]byte, error)

	// GetEntriesByPrefix returns, in key order, the entries whose key starts
	// with |prefix|. Returned keys have the prefix stripped.
	GetEntriesByPrefix(ctx context.Context, prefix []byte) ([]KV, error)

	// StartBatch starts a new atomic write batch.
	StartBatch(ctx context.Context) (Batch, error)

	// Close releases the resources held by the Db.
	Close() error
}

// Batch accumulates writes that are applied atomically by Execute. Writes are
// not visible to readers until Execute returns successfully.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	// DeleteByPrefix removes every key starting with |prefix| at the time the
	// batch executes, including keys put earlier in the same batch.
	DeleteByPrefix(prefix []byte) error
	Execute(ctx context.Context) error
}

type opKind uint8

const (
	opPut opKind = iota
	opDelete
	opDeletePrefix
)

type op struct {
	kind  opKind
	key   []byte
	value []byte
}

// opBatch records operations in order. Backends replay them inside their
// own transaction in apply.
type opBatch struct {
	ops      []op
	executed bool
	apply    func(ctx context.Context, ops []op) error
}

func newOpBatch(apply func(ctx context.Context, ops []op) error) *opBatch {
	return &opBatch{apply: apply}
}

func (b *opBatch) Put(key, value []byte) error {
	if b.executed {
		return ErrBatchExecuted
	}
	b.ops = append(b.ops, op{kind: opPut, key: copyBytes(key), value: copyBytes(value)})
	return nil
}

func (b *opBatch) Delete(key []byte) error {
	if b.executed {
		return ErrBatchExecuted
	}
	b.ops = append(b.ops, op{kind: opDelete, key: copyBytes(key)})
	return nil
}

func (b *opBatch) DeleteByPrefix(prefix []byte) error {
	if b.executed {
		return ErrBatchExecuted
	}
	b.ops = append(b.ops, op{kind: opDeletePrefix, key: copyBytes(prefix)})
	return nil
}

func (b *opBatch) Execute(ctx context.Context) error {
	if b.executed {
		return ErrBatchExecuted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.executed = true
	return b.apply(ctx, b.ops)
}

// pendingPutsWithPrefix returns the keys put by ops[:i] that start with
// |prefix|. Backends whose native batches cannot express a prefix delete use
// it to drop writes made earlier in the same batch.
func pendingPutsWithPrefix(ops []op, i int, prefix []byte) [][]byte {
	var keys [][]byte
	for _, o := range ops[:i] {
		if o.kind == opPut && bytes.HasPrefix(o.key, prefix) {
			keys = append(keys, o.key)
		}
	}
	return keys
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
