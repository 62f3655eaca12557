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
	"path/filepath"

	"github.com/pkg/errors"
)

// Backend names a Db implementation.
type Backend string

const (
	MemoryBackend  Backend = "memory"
	LevelDBBackend Backend = "leveldb"
	BoltBackend    Backend = "bolt"
	BadgerBackend  Backend = "badger"
)

// ErrUnknownBackend is returned by Open for an unsupported Backend.
var ErrUnknownBackend = errors.New("unknown db backend")

// Factory opens Dbs rooted at a directory.
type Factory interface {
	Open(ctx context.Context, dir string) (Db, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, dir string) (Db, error)

func (f FactoryFunc) Open(ctx context.Context, dir string) (Db, error) {
	return f(ctx, dir)
}

// NewFactory returns the Factory for |backend|.
func NewFactory(backend Backend) (Factory, error) {
	switch backend {
	case MemoryBackend:
		return FactoryFunc(func(ctx context.Context, dir string) (Db, error) {
			return NewMemDB(), nil
		}), nil
	case LevelDBBackend:
		return FactoryFunc(func(ctx context.Context, dir string) (Db, error) {
			return NewLevelDB(dir)
		}), nil
	case BoltBackend:
		return FactoryFunc(func(ctx context.Context, dir string) (Db, error) {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, errors.Wrapf(err, "creating %s", dir)
			}
			return NewBoltDB(filepath.Join(dir, "ledger.bolt"))
		}), nil
	case BadgerBackend:
		return FactoryFunc(func(ctx context.Context, dir string) (Db, error) {
			return NewBadgerDB(dir)
		}), nil
	}
	return nil, errors.Wrapf(ErrUnknownBackend, "%q", backend)
}

// Open opens a Db of kind |backend| in |dir|.
func Open(ctx context.Context, backend Backend, dir string) (Db, error) {
	f, err := NewFactory(backend)
	if err != nil {
		return nil, err
	}
	return f.Open(ctx, dir)
}
