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
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/dolthub/ledger/store/chunks"
)

// GetEntry returns the entry of |key| in the tree at |root|, or ErrNotFound.
func GetEntry(ctx context.Context, ns NodeStore, root chunks.ObjectIdentifier, key []byte) (Entry, error) {
	id := root
	for !id.IsEmpty() {
		n, err := ns.ReadNode(ctx, id)
		if err != nil {
			return Entry{}, err
		}
		idx := GetEntryOrChildIndex(n.Entries, key)
		if idx < len(n.Entries) && bytes.Equal(n.Entries[idx].Key, key) {
			return n.Entries[idx], nil
		}
		if n.IsLeaf() {
			break
		}
		id = n.Children[idx]
	}
	return Entry{}, errors.Wrapf(ErrNotFound, "%q", key)
}

// EntryCallback is called for each entry of an iteration. Returning io.EOF
// stops the iteration without error.
type EntryCallback func(e Entry) error

// ForEachEntry calls |cb| in key order for every entry of the tree at |root|
// whose key is at least |minKey|.
func ForEachEntry(ctx context.Context, ns NodeStore, root chunks.ObjectIdentifier, minKey []byte, cb EntryCallback) error {
	err := forEachEntry(ctx, ns, root, minKey, cb)
	if err == io.EOF {
		return nil
	}
	return err
}

func forEachEntry(ctx context.Context, ns NodeStore, id chunks.ObjectIdentifier, minKey []byte, cb EntryCallback) error {
	if id.IsEmpty() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := ns.ReadNode(ctx, id)
	if err != nil {
		return err
	}
	start := GetEntryOrChildIndex(n.Entries, minKey)
	for i := start; i <= len(n.Entries); i++ {
		if !n.IsLeaf() {
			// only the first child can hold keys below |minKey|
			childMin := minKey
			if i > start {
				childMin = nil
			}
			if err := forEachEntry(ctx, ns, n.Children[i], childMin, cb); err != nil {
				return err
			}
		}
		if i < len(n.Entries) {
			if err := cb(n.Entries[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetEntries returns every entry of the tree at |root| in key order.
func GetEntries(ctx context.Context, ns NodeStore, root chunks.ObjectIdentifier) ([]Entry, error) {
	var entries []Entry
	err := ForEachEntry(ctx, ns, root, nil, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// GetEntriesWithPrefix returns the entries of the tree at |root| whose key
// starts with |prefix|.
func GetEntriesWithPrefix(ctx context.Context, ns NodeStore, root chunks.ObjectIdentifier, prefix []byte) ([]Entry, error) {
	var entries []Entry
	err := ForEachEntry(ctx, ns, root, prefix, func(e Entry) error {
		if !bytes.HasPrefix(e.Key, prefix) {
			return io.EOF
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// WalkNodes calls |cb| for every node of the tree at |root|, parents before
// children. A node shared by several parents is visited once.
func WalkNodes(ctx context.Context, ns NodeStore, root chunks.ObjectIdentifier, cb func(id chunks.ObjectIdentifier, n *Node) error) error {
	visited := chunks.NewIdentifierSet()
	var walk func(id chunks.ObjectIdentifier) error
	walk = func(id chunks.ObjectIdentifier) error {
		if id.IsEmpty() || visited.Has(id) {
			return nil
		}
		visited.Insert(id)
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := ns.ReadNode(ctx, id)
		if err != nil {
			return err
		}
		if err := cb(id, n); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}

// GetObjectIdentifiers returns every object referenced by the tree at
// |root|: its nodes, which are Eager, and the values of its entries with
// their priority. A value referenced both eagerly and lazily is Eager.
func GetObjectIdentifiers(ctx context.Context, ns NodeStore, root chunks.ObjectIdentifier) (map[chunks.ObjectIdentifier]Priority, error) {
	ids := make(map[chunks.ObjectIdentifier]Priority)
	err := WalkNodes(ctx, ns, root, func(id chunks.ObjectIdentifier, n *Node) error {
		ids[id] = Eager
		for _, e := range n.Entries {
			if p, ok := ids[e.ObjectID]; !ok || p == Lazy {
				ids[e.ObjectID] = e.Priority
			}
		}
		return nil
	})
	return ids, err
}
