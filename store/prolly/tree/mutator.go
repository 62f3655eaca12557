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
	"sort"

	"github.com/pkg/errors"

	"github.com/dolthub/ledger/store/chunks"
)

// EntryChange is an insertion, update or deletion of one key.
type EntryChange struct {
	Entry   Entry
	Deleted bool
}

// WriteEmptyTree stores the root node of a tree without entries.
func WriteEmptyTree(ctx context.Context, ns NodeStore) (chunks.ObjectIdentifier, error) {
	return ns.WriteNode(ctx, &Node{})
}

// ApplyChanges applies |changes| to the tree at |root| and returns the root
// of the resulting tree. |changes| must be sorted by key with no key
// repeated. Only the nodes on the paths to changed keys are rewritten; every
// other subtree of |root| is shared by the new tree, and |root| itself stays
// readable.
//
// The shape of the tree depends only on its entries: each key lives in the
// node of the level ns.Level gives it, so two trees holding the same entries
// have the same root identifier however they were built.
func ApplyChanges(ctx context.Context, ns NodeStore, root chunks.ObjectIdentifier, changes []EntryChange) (chunks.ObjectIdentifier, error) {
	if err := checkChanges(changes); err != nil {
		return chunks.ObjectIdentifier{}, err
	}
	if len(changes) == 0 {
		return root, nil
	}

	rn, err := ns.ReadNode(ctx, root)
	if err != nil {
		return chunks.ObjectIdentifier{}, err
	}
	top := root
	if rn.Level == 0 && len(rn.Entries) == 0 {
		top = chunks.ObjectIdentifier{}
	}

	// the root must be at least as high as every inserted key
	level := rn.Level
	for _, c := range changes {
		if l := ns.Level(c.Entry.Key); !c.Deleted && l > level {
			level = l
		}
	}

	m := &mutator{ns: ns}
	res, err := m.apply(ctx, top, level, changes)
	if err != nil {
		return chunks.ObjectIdentifier{}, err
	}

	// lower the root to the highest level holding an entry
	for res != nil && res.Level > 0 && len(res.Entries) == 0 {
		if res.Children[0].IsEmpty() {
			res = nil
			break
		}
		if res, err = ns.ReadNode(ctx, res.Children[0]); err != nil {
			return chunks.ObjectIdentifier{}, err
		}
	}
	if res == nil {
		res = &Node{}
	}
	return ns.WriteNode(ctx, res)
}

func checkChanges(changes []EntryChange) error {
	for i, c := range changes {
		if err := ValidateKey(c.Entry.Key); err != nil {
			return err
		}
		if i > 0 && bytes.Compare(changes[i-1].Entry.Key, c.Entry.Key) >= 0 {
			return errors.Errorf("changes not sorted at %q", c.Entry.Key)
		}
	}
	return nil
}

// SortChanges sorts |changes| by key. For repeated keys the last change wins.
func SortChanges(changes []EntryChange) []EntryChange {
	sorted := make([]EntryChange, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Entry.Key, sorted[j].Entry.Key) < 0
	})
	out := sorted[:0]
	for _, c := range sorted {
		if len(out) > 0 && bytes.Equal(out[len(out)-1].Entry.Key, c.Entry.Key) {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

type mutator struct {
	ns NodeStore
}

func (m *mutator) read(ctx context.Context, id chunks.ObjectIdentifier) (*Node, error) {
	if id.IsEmpty() {
		return nil, nil
	}
	return m.ns.ReadNode(ctx, id)
}

// write stores |n|, or returns the empty identifier for an empty subtree.
func (m *mutator) write(ctx context.Context, n *Node) (chunks.ObjectIdentifier, error) {
	if n == nil || (len(n.Entries) == 0 && (n.Level == 0 || n.Children[0].IsEmpty())) {
		return chunks.ObjectIdentifier{}, nil
	}
	return m.ns.WriteNode(ctx, n)
}

// load returns copies of the entries and children of the subtree |id| seen
// as a node at |level|. A node below |level| only happens under a root that
// is being raised, and reads as a node with no entries over it.
func (m *mutator) load(ctx context.Context, id chunks.ObjectIdentifier, level uint8) ([]Entry, []chunks.ObjectIdentifier, error) {
	n, err := m.read(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case n == nil && level == 0:
		return nil, nil, nil
	case n == nil:
		return nil, []chunks.ObjectIdentifier{{}}, nil
	case n.Level < level:
		return nil, []chunks.ObjectIdentifier{id}, nil
	case n.Level > level:
		return nil, nil, errors.Wrapf(ErrParse, "node %s at level %d, expected %d", id, n.Level, level)
	}
	entries := append([]Entry(nil), n.Entries...)
	children := append([]chunks.ObjectIdentifier(nil), n.Children...)
	return entries, children, nil
}

// apply returns the node at |level| holding the keys of subtree |id| with
// |changes| applied, or nil if no key remains. No change may insert a key
// whose level is above |level|.
func (m *mutator) apply(ctx context.Context, id chunks.ObjectIdentifier, level uint8, changes []EntryChange) (*Node, error) {
	entries, children, err := m.load(ctx, id, level)
	if err != nil {
		return nil, err
	}

	if level == 0 {
		entries = mergeLeaf(entries, changes)
		if len(entries) == 0 {
			return nil, nil
		}
		return &Node{Level: 0, Entries: entries}, nil
	}

	// entries at this level split and merge children
	var lower []EntryChange
	for _, c := range changes {
		if m.ns.Level(c.Entry.Key) != level {
			lower = append(lower, c)
			continue
		}
		idx := GetEntryOrChildIndex(entries, c.Entry.Key)
		found := idx < len(entries) && bytes.Equal(entries[idx].Key, c.Entry.Key)
		switch {
		case c.Deleted && found:
			merged, err := m.merge(ctx, children[idx], children[idx+1], level-1)
			if err != nil {
				return nil, err
			}
			entries = append(entries[:idx], entries[idx+1:]...)
			children[idx] = merged
			children = append(children[:idx+1], children[idx+2:]...)
		case c.Deleted:
		case found:
			entries[idx] = c.Entry
		default:
			left, right, err := m.split(ctx, children[idx], level-1, c.Entry.Key)
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{})
			copy(entries[idx+1:], entries[idx:])
			entries[idx] = c.Entry
			children = append(children, chunks.ObjectIdentifier{})
			copy(children[idx+2:], children[idx+1:])
			children[idx], children[idx+1] = left, right
		}
	}

	// everything else goes to the child whose range holds it
	for start := 0; start < len(lower); {
		idx := GetEntryOrChildIndex(entries, lower[start].Entry.Key)
		end := start + 1
		for end < len(lower) && GetEntryOrChildIndex(entries, lower[end].Entry.Key) == idx {
			end++
		}
		updated, err := m.apply(ctx, children[idx], level-1, lower[start:end])
		if err != nil {
			return nil, err
		}
		if children[idx], err = m.write(ctx, updated); err != nil {
			return nil, err
		}
		start = end
	}

	if len(entries) == 0 && children[0].IsEmpty() {
		return nil, nil
	}
	return &Node{Level: level, Entries: entries, Children: children}, nil
}

func mergeLeaf(entries []Entry, changes []EntryChange) []Entry {
	out := make([]Entry, 0, len(entries)+len(changes))
	i := 0
	for _, c := range changes {
		for i < len(entries) && bytes.Compare(entries[i].Key, c.Entry.Key) < 0 {
			out = append(out, entries[i])
			i++
		}
		if i < len(entries) && bytes.Equal(entries[i].Key, c.Entry.Key) {
			i++
		}
		if !c.Deleted {
			out = append(out, c.Entry)
		}
	}
	return append(out, entries[i:]...)
}

// split divides the subtree |id| at |level| into the keys below and above
// |key|. |key| itself is not in the subtree.
func (m *mutator) split(ctx context.Context, id chunks.ObjectIdentifier, level uint8, key []byte) (chunks.ObjectIdentifier, chunks.ObjectIdentifier, error) {
	if id.IsEmpty() {
		return chunks.ObjectIdentifier{}, chunks.ObjectIdentifier{}, nil
	}
	entries, children, err := m.load(ctx, id, level)
	if err != nil {
		return chunks.ObjectIdentifier{}, chunks.ObjectIdentifier{}, err
	}
	idx := GetEntryOrChildIndex(entries, key)

	left := &Node{Level: level, Entries: entries[:idx:idx]}
	right := &Node{Level: level, Entries: entries[idx:]}
	if level > 0 {
		cl, cr, err := m.split(ctx, children[idx], level-1, key)
		if err != nil {
			return chunks.ObjectIdentifier{}, chunks.ObjectIdentifier{}, err
		}
		left.Children = append(children[:idx:idx], cl)
		right.Children = append([]chunks.ObjectIdentifier{cr}, children[idx+1:]...)
	}

	lid, err := m.write(ctx, left)
	if err != nil {
		return chunks.ObjectIdentifier{}, chunks.ObjectIdentifier{}, err
	}
	rid, err := m.write(ctx, right)
	return lid, rid, err
}

// merge joins two adjacent subtrees at |level|; every key of |l| is below
// every key of |r|.
func (m *mutator) merge(ctx context.Context, l, r chunks.ObjectIdentifier, level uint8) (chunks.ObjectIdentifier, error) {
	if l.IsEmpty() {
		return r, nil
	}
	if r.IsEmpty() {
		return l, nil
	}
	le, lc, err := m.load(ctx, l, level)
	if err != nil {
		return chunks.ObjectIdentifier{}, err
	}
	re, rc, err := m.load(ctx, r, level)
	if err != nil {
		return chunks.ObjectIdentifier{}, err
	}

	n := &Node{Level: level, Entries: append(le, re...)}
	if level > 0 {
		mid, err := m.merge(ctx, lc[len(lc)-1], rc[0], level-1)
		if err != nil {
			return chunks.ObjectIdentifier{}, err
		}
		n.Children = append(append(lc[:len(lc)-1], mid), rc[1:]...)
	}
	return m.write(ctx, n)
}
