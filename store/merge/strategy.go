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

package merge

import (
	"context"

	"github.com/dolthub/ledger/store/datas"
	"github.com/dolthub/ledger/store/pagestorage"
	"github.com/dolthub/ledger/store/prolly/tree"
)

// Strategy merges two heads of a page into a merge commit.
type Strategy interface {
	Merge(ctx context.Context, ps *pagestorage.PageStorage, head1, head2, ancestor *datas.Commit) (*datas.Commit, error)
}

// LastOneWinsStrategy keeps every change made on either side since the
// common ancestor. When both sides changed a key, the change of the head
// with the later timestamp wins.
type LastOneWinsStrategy struct{}

var _ Strategy = LastOneWinsStrategy{}

func (LastOneWinsStrategy) Merge(ctx context.Context, ps *pagestorage.PageStorage, head1, head2, ancestor *datas.Commit) (*datas.Commit, error) {
	return mergeHeads(ctx, ps, head1, head2, ancestor, func(ctx context.Context, c tree.ThreeWayChange) (*tree.Entry, error) {
		return c.Right, nil
	})
}

// ConflictResolverFunc returns the entry a key changed on both sides must
// have in the merge, or nil to delete it. Left is the change of the older
// head and Right the change of the newer one.
type ConflictResolverFunc func(ctx context.Context, c tree.ThreeWayChange) (*tree.Entry, error)

// ConflictResolverStrategy merges changes made on one side only and asks
// Resolve about keys changed differently on both sides.
type ConflictResolverStrategy struct {
	Resolve ConflictResolverFunc
}

var _ Strategy = ConflictResolverStrategy{}

func (s ConflictResolverStrategy) Merge(ctx context.Context, ps *pagestorage.PageStorage, head1, head2, ancestor *datas.Commit) (*datas.Commit, error) {
	return mergeHeads(ctx, ps, head1, head2, ancestor, s.Resolve)
}

// mergeHeads builds the merge on top of the content of the newer head, so
// only keys whose merged entry differs from it are written.
func mergeHeads(ctx context.Context, ps *pagestorage.PageStorage, head1, head2, ancestor *datas.Commit, resolve ConflictResolverFunc) (*datas.Commit, error) {
	older, newer := head1, head2
	if datas.Less(newer, older) {
		older, newer = newer, older
	}

	j, err := ps.StartMergeCommit(ctx, newer.ID, older.ID)
	if err != nil {
		return nil, err
	}
	err = tree.ForEachThreeWayDiff(ctx, ps.NodeStore(), ancestor.RootNode, older.RootNode, newer.RootNode, func(c tree.ThreeWayChange) error {
		want := c.Right
		switch {
		case sameEntry(c.Right, c.Base):
			want = c.Left
		case sameEntry(c.Left, c.Base) || sameEntry(c.Left, c.Right):
		default:
			resolved, err := resolve(ctx, c)
			if err != nil {
				return err
			}
			want = resolved
		}
		if sameEntry(want, c.Right) {
			return nil
		}
		if want == nil {
			return j.Delete(changedKey(c))
		}
		return j.PutEntry(*want)
	})
	if err != nil {
		j.Rollback()
		return nil, err
	}
	c, err := j.Commit(ctx)
	if err != nil {
		j.Rollback()
		return nil, err
	}
	return c, nil
}

func sameEntry(a, b *tree.Entry) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equals(*b)
}

func changedKey(c tree.ThreeWayChange) []byte {
	for _, e := range []*tree.Entry{c.Base, c.Left, c.Right} {
		if e != nil {
			return e.Key
		}
	}
	return nil
}
