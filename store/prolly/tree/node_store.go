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

package tree

import (
	"context"
	"math/bits"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/d"
	"github.com/dolthub/ledger/store/db"
)

const (
	defaultCacheSize = 16 * 1024

	// Each level up is 2^levelBits times rarer, giving an expected fan-out
	// of 32.
	levelBits = 5
	maxLevel  = 12
)

// LevelCalculator returns the level of the node that holds |key|. It must
// depend on nothing but the key, so that a set of entries always produces
// the same tree.
type LevelCalculator func(key []byte) uint8

// DefaultLevelCalculator counts groups of leading zero bits in the xxhash of
// the key.
func DefaultLevelCalculator(key []byte) uint8 {
	l := bits.LeadingZeros64(xxhash.Sum64(key)) / levelBits
	if l > maxLevel {
		l = maxLevel
	}
	return uint8(l)
}

// NodeStore reads and writes tree nodes.
type NodeStore interface {
	// ReadNode returns the node stored under |id|.
	ReadNode(ctx context.Context, id chunks.ObjectIdentifier) (*Node, error)

	// WriteNode stores |n| and returns its identifier.
	WriteNode(ctx context.Context, n *Node) (chunks.ObjectIdentifier, error)

	// Level returns the level of the node holding |key|.
	Level(key []byte) uint8
}

// ObjectNodeStore is a NodeStore over a page's object store. Decoded nodes
// are cached; nodes are immutable so cached pointers are shared.
type ObjectNodeStore struct {
	objects *chunks.ObjectStore
	cache   *lru.Cache[chunks.ObjectIdentifier, *Node]
	levels  LevelCalculator
}

var _ NodeStore = (*ObjectNodeStore)(nil)

// NewNodeStore returns a NodeStore over |objects| using the default level
// calculator.
func NewNodeStore(objects *chunks.ObjectStore) *ObjectNodeStore {
	return NewNodeStoreWithLevels(objects, DefaultLevelCalculator)
}

func NewNodeStoreWithLevels(objects *chunks.ObjectStore, levels LevelCalculator) *ObjectNodeStore {
	cache, err := lru.New[chunks.ObjectIdentifier, *Node](defaultCacheSize)
	d.PanicIfError(err)
	return &ObjectNodeStore{objects: objects, cache: cache, levels: levels}
}

func (ns *ObjectNodeStore) ReadNode(ctx context.Context, id chunks.ObjectIdentifier) (*Node, error) {
	if n, ok := ns.cache.Get(id); ok {
		return n, nil
	}
	t, data, err := ns.objects.GetRawObject(ctx, id)
	if err != nil {
		return nil, err
	}
	if t != chunks.TreeNodeObject {
		return nil, errors.Wrapf(ErrParse, "object %s is a %s, not a tree node", id, t)
	}
	n, err := ParseNode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "node %s", id)
	}
	ns.cache.Add(id, n)
	return n, nil
}

func (ns *ObjectNodeStore) WriteNode(ctx context.Context, n *Node) (chunks.ObjectIdentifier, error) {
	id, err := ns.objects.AddObjectOfType(ctx, chunks.TreeNodeObject, n.Bytes())
	if err != nil {
		return chunks.ObjectIdentifier{}, err
	}
	ns.cache.Add(id, n)
	return id, nil
}

func (ns *ObjectNodeStore) Level(key []byte) uint8 {
	return ns.levels(key)
}

// Purge drops every cached node. Garbage collection calls it after
// deleting objects.
func (ns *ObjectNodeStore) Purge() {
	ns.cache.Purge()
}

// InBatch returns a NodeStore whose writes are added to |b|. Nodes written
// through it are readable from it before |b| executes.
func (ns *ObjectNodeStore) InBatch(b db.Batch) *BatchNodeStore {
	return &BatchNodeStore{base: ns, b: b, pending: make(map[chunks.ObjectIdentifier]*Node)}
}

// BatchNodeStore writes nodes into a db.Batch.
type BatchNodeStore struct {
	base *ObjectNodeStore
	b    db.Batch

	mu      sync.Mutex
	pending map[chunks.ObjectIdentifier]*Node
}

var _ NodeStore = (*BatchNodeStore)(nil)

func (bs *BatchNodeStore) ReadNode(ctx context.Context, id chunks.ObjectIdentifier) (*Node, error) {
	bs.mu.Lock()
	n, ok := bs.pending[id]
	bs.mu.Unlock()
	if ok {
		return n, nil
	}
	return bs.base.ReadNode(ctx, id)
}

func (bs *BatchNodeStore) WriteNode(ctx context.Context, n *Node) (chunks.ObjectIdentifier, error) {
	id, err := bs.base.objects.PutInBatch(ctx, bs.b, chunks.TreeNodeObject, n.Bytes())
	if err != nil {
		return chunks.ObjectIdentifier{}, err
	}
	bs.mu.Lock()
	bs.pending[id] = n
	bs.mu.Unlock()
	return id, nil
}

func (bs *BatchNodeStore) Level(key []byte) uint8 {
	return bs.base.Level(key)
}

// Written returns the identifiers of the nodes written through the store.
func (bs *BatchNodeStore) Written() chunks.IdentifierSet {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	s := chunks.NewIdentifierSet()
	for id := range bs.pending {
		s.Insert(id)
	}
	return s
}
