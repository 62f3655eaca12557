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

	"github.com/dolthub/ledger/store/chunks"
)

// TwoWayChange is a difference between two trees. Base is nil for an
// insertion and Target is nil for a deletion.
type TwoWayChange struct {
	Base   *Entry
	Target *Entry
}

func (c TwoWayChange) Key() []byte {
	if c.Target != nil {
		return c.Target.Key
	}
	return c.Base.Key
}

// ThreeWayChange is a key changed on at least one side of a merge. Each
// field is nil where the key is absent.
type ThreeWayChange struct {
	Base  *Entry
	Left  *Entry
	Right *Entry
}

// diffItem is either an entry or a subtree still to expand.
type diffItem struct {
	entry *Entry
	id    chunks.ObjectIdentifier
	level uint8
}

type diffCursor struct {
	ns    NodeStore
	items []diffItem
}

func newDiffCursor(ctx context.Context, ns NodeStore, root chunks.ObjectIdentifier) (*diffCursor, error) {
	c := &diffCursor{ns: ns}
	if root.IsEmpty() {
		return c, nil
	}
	n, err := ns.ReadNode(ctx, root)
	if err != nil {
		return nil, err
	}
	c.items = []diffItem{{id: root, level: n.Level}}
	return c, nil
}

func (c *diffCursor) done() bool {
	return len(c.items) == 0
}

func (c *diffCursor) head() diffItem {
	return c.items[0]
}

func (c *diffCursor) pop() {
	c.items = c.items[1:]
}

// expand replaces the subtree at the head of the cursor with its children
// and entries.
func (c *diffCursor) expand(ctx context.Context) error {
	it := c.items[0]
	n, err := c.ns.ReadNode(ctx, it.id)
	if err != nil {
		return err
	}
	items := make([]diffItem, 0, 2*len(n.Entries)+1+len(c.items)-1)
	for i := 0; i <= len(n.Entries); i++ {
		if !n.IsLeaf() && !n.Children[i].IsEmpty() {
			items = append(items, diffItem{id: n.Children[i], level: n.Level - 1})
		}
		if i < len(n.Entries) {
			items = append(items, diffItem{entry: &n.Entries[i]})
		}
	}
	c.items = append(items, c.items[1:]...)
	return nil
}

// ForEachTwoWayDiff calls |cb| in key order for every key whose entry
// differs between the trees at |base| and |target|. Subtrees with the same
// identifier on both sides are skipped without being read. Returning io.EOF
// from |cb| stops the iteration without error.
func ForEachTwoWayDiff(ctx context.Context, ns NodeStore, base, target chunks.ObjectIdentifier, cb func(TwoWayChange) error) error {
	err := forEachTwoWayDiff(ctx, ns, base, target, cb)
	if err == io.EOF {
		return nil
	}
	return err
}

func forEachTwoWayDiff(ctx context.Context, ns NodeStore, base, target chunks.ObjectIdentifier, cb func(TwoWayChange) error) error {
	if base == target {
		return nil
	}
	left, err := newDiffCursor(ctx, ns, base)
	if err != nil {
		return err
	}
	right, err := newDiffCursor(ctx, ns, target)
	if err != nil {
		return err
	}

	for !left.done() || !right.done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case left.done():
			if right.head().entry == nil {
				err = right.expand(ctx)
				break
			}
			err = cb(TwoWayChange{Target: right.head().entry})
			right.pop()
		case right.done():
			if left.head().entry == nil {
				err = left.expand(ctx)
				break
			}
			err = cb(TwoWayChange{Base: left.head().entry})
			left.pop()
		default:
			l, r := left.head(), right.head()
			switch {
			case l.entry == nil && r.entry == nil && l.id == r.id:
				left.pop()
				right.pop()
			case l.entry == nil && (r.entry != nil || l.level >= r.level):
				err = left.expand(ctx)
			case r.entry == nil:
				err = right.expand(ctx)
			default:
				err = diffEntries(left, right, cb)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func diffEntries(left, right *diffCursor, cb func(TwoWayChange) error) error {
	l, r := left.head().entry, right.head().entry
	switch cmp := bytes.Compare(l.Key, r.Key); {
	case cmp < 0:
		left.pop()
		return cb(TwoWayChange{Base: l})
	case cmp > 0:
		right.pop()
		return cb(TwoWayChange{Target: r})
	default:
		left.pop()
		right.pop()
		if l.Equals(*r) {
			return nil
		}
		return cb(TwoWayChange{Base: l, Target: r})
	}
}

// ForEachDiff calls |cb| with the changes that turn the tree at |base| into
// the tree at |target|, in key order.
func ForEachDiff(ctx context.Context, ns NodeStore, base, target chunks.ObjectIdentifier, cb func(EntryChange) error) error {
	return ForEachTwoWayDiff(ctx, ns, base, target, func(c TwoWayChange) error {
		if c.Target == nil {
			return cb(EntryChange{Entry: *c.Base, Deleted: true})
		}
		return cb(EntryChange{Entry: *c.Target})
	})
}

// GetDiff collects the result of ForEachDiff.
func GetDiff(ctx context.Context, ns NodeStore, base, target chunks.ObjectIdentifier) ([]EntryChange, error) {
	var changes []EntryChange
	err := ForEachDiff(ctx, ns, base, target, func(c EntryChange) error {
		changes = append(changes, c)
		return nil
	})
	return changes, err
}

// ForEachThreeWayDiff calls |cb| in key order for every key that differs
// between |base| and either |left| or |right|.
func ForEachThreeWayDiff(ctx context.Context, ns NodeStore, base, left, right chunks.ObjectIdentifier, cb func(ThreeWayChange) error) error {
	collect := func(target chunks.ObjectIdentifier) ([]TwoWayChange, error) {
		var changes []TwoWayChange
		err := ForEachTwoWayDiff(ctx, ns, base, target, func(c TwoWayChange) error {
			changes = append(changes, c)
			return nil
		})
		return changes, err
	}
	lc, err := collect(left)
	if err != nil {
		return err
	}
	rc, err := collect(right)
	if err != nil {
		return err
	}

	i, j := 0, 0
	for i < len(lc) || j < len(rc) {
		var change ThreeWayChange
		switch {
		case j == len(rc) || (i < len(lc) && bytes.Compare(lc[i].Key(), rc[j].Key()) < 0):
			change = ThreeWayChange{Base: lc[i].Base, Left: lc[i].Target, Right: lc[i].Base}
			i++
		case i == len(lc) || bytes.Compare(lc[i].Key(), rc[j].Key()) > 0:
			change = ThreeWayChange{Base: rc[j].Base, Left: rc[j].Base, Right: rc[j].Target}
			j++
		default:
			change = ThreeWayChange{Base: lc[i].Base, Left: lc[i].Target, Right: rc[j].Target}
			i++
			j++
		}
		if err := cb(change); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return nil
}
