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

package datas

import (
	"container/heap"
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/dolthub/ledger/store/hash"
)

// CommitGetter loads commits by ID.
type CommitGetter interface {
	GetCommit(ctx context.Context, id hash.Hash) (*Commit, error)
}

// CommitByGenerationHeap is a max-heap of commits ordered by generation,
// ties broken by ID.
type CommitByGenerationHeap []*Commit

func (h CommitByGenerationHeap) Less(i, j int) bool {
	if h[i].Generation != h[j].Generation {
		return h[i].Generation > h[j].Generation
	}
	return h[j].ID.Less(h[i].ID)
}

func (h CommitByGenerationHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h CommitByGenerationHeap) Len() int {
	return len(h)
}

func (h *CommitByGenerationHeap) Push(x interface{}) {
	*h = append(*h, x.(*Commit))
}

func (h *CommitByGenerationHeap) Pop() interface{} {
	old := *h
	ret := old[len(old)-1]
	*h = old[:len(old)-1]
	return ret
}

func (h CommitByGenerationHeap) Empty() bool {
	return len(h) == 0
}

func (h CommitByGenerationHeap) MaxGeneration() uint64 {
	return h[0].Generation
}

// PopCommitsOfGeneration pops every commit of generation |g|, without
// duplicates.
func (h *CommitByGenerationHeap) PopCommitsOfGeneration(g uint64) []*Commit {
	var ret []*Commit
	seen := hash.NewHashSet()
	for !h.Empty() && h.MaxGeneration() == g {
		c := heap.Pop(h).(*Commit)
		if !seen.Has(c.ID) {
			seen.Insert(c.ID)
			ret = append(ret, c)
		}
	}
	return ret
}

// GetParents loads the parents of |c|. A parent that cannot be found is
// reported as ErrDanglingCommit.
func GetParents(ctx context.Context, getter CommitGetter, c *Commit) ([]*Commit, error) {
	parents := make([]*Commit, 0, len(c.ParentIDs))
	for _, id := range c.ParentIDs {
		p, err := getter.GetCommit(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(ErrDanglingCommit, "parent %s of %s: %v", id, c.ID, err)
		}
		parents = append(parents, p)
	}
	return parents, nil
}

// AncestorIterator lazily walks the ancestors of a set of commits from the
// highest generation down.
type AncestorIterator struct {
	getter CommitGetter
	queue  CommitByGenerationHeap
	seen   hash.HashSet
}

// GetAncestors returns an iterator over the strict ancestors of |commits|.
// Commits are yielded once each, never before any of their descendants.
func GetAncestors(ctx context.Context, getter CommitGetter, commits ...*Commit) (*AncestorIterator, error) {
	it := &AncestorIterator{getter: getter, seen: hash.NewHashSet()}
	for _, c := range commits {
		it.seen.Insert(c.ID)
	}
	for _, c := range commits {
		if err := it.pushParents(ctx, c); err != nil {
			return nil, err
		}
	}
	return it, nil
}

func (it *AncestorIterator) pushParents(ctx context.Context, c *Commit) error {
	for _, id := range c.ParentIDs {
		if it.seen.Has(id) {
			continue
		}
		it.seen.Insert(id)
		p, err := it.getter.GetCommit(ctx, id)
		if err != nil {
			return errors.Wrapf(ErrDanglingCommit, "parent %s of %s: %v", id, c.ID, err)
		}
		heap.Push(&it.queue, p)
	}
	return nil
}

// Next returns the next ancestor, or io.EOF once all have been returned.
func (it *AncestorIterator) Next(ctx context.Context) (*Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.queue.Empty() {
		return nil, io.EOF
	}
	c := heap.Pop(&it.queue).(*Commit)
	if err := it.pushParents(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// FindCommonAncestor returns the most recent common ancestor of |c1| and
// |c2|; a commit counts as its own ancestor. ok is false if the commits share
// no history.
func FindCommonAncestor(ctx context.Context, getter CommitGetter, c1, c2 *Commit) (*Commit, bool, error) {
	q1, q2 := CommitByGenerationHeap{c1}, CommitByGenerationHeap{c2}
	for !q1.Empty() && !q2.Empty() {
		g1, g2 := q1.MaxGeneration(), q2.MaxGeneration()
		switch {
		case g1 == g2:
			p1, p2 := q1.PopCommitsOfGeneration(g1), q2.PopCommitsOfGeneration(g2)
			if common, ok := findCommonCommit(p1, p2); ok {
				return common, true, nil
			}
			if err := parentsToQueue(ctx, getter, p1, &q1); err != nil {
				return nil, false, err
			}
			if err := parentsToQueue(ctx, getter, p2, &q2); err != nil {
				return nil, false, err
			}
		case g1 > g2:
			if err := parentsToQueue(ctx, getter, q1.PopCommitsOfGeneration(g1), &q1); err != nil {
				return nil, false, err
			}
		default:
			if err := parentsToQueue(ctx, getter, q2.PopCommitsOfGeneration(g2), &q2); err != nil {
				return nil, false, err
			}
		}
	}
	return nil, false, nil
}

func parentsToQueue(ctx context.Context, getter CommitGetter, commits []*Commit, q *CommitByGenerationHeap) error {
	for _, c := range commits {
		parents, err := GetParents(ctx, getter, c)
		if err != nil {
			return err
		}
		for _, p := range parents {
			heap.Push(q, p)
		}
	}
	return nil
}

// findCommonCommit returns the commit with the smallest ID present in both
// lists.
func findCommonCommit(a, b []*Commit) (*Commit, bool) {
	inA := make(map[hash.Hash]*Commit, len(a))
	for _, c := range a {
		inA[c.ID] = c
	}
	var found *Commit
	for _, c := range b {
		if _, ok := inA[c.ID]; ok && (found == nil || c.ID.Less(found.ID)) {
			found = c
		}
	}
	return found, found != nil
}

// IsAncestor returns true if |ancestor| is |descendant| or one of its
// ancestors.
func IsAncestor(ctx context.Context, getter CommitGetter, ancestor, descendant *Commit) (bool, error) {
	if ancestor.ID == descendant.ID {
		return true, nil
	}
	q := CommitByGenerationHeap{descendant}
	for !q.Empty() && q.MaxGeneration() > ancestor.Generation {
		if err := parentsToQueue(ctx, getter, q.PopCommitsOfGeneration(q.MaxGeneration()), &q); err != nil {
			return false, err
		}
	}
	for _, c := range q.PopCommitsOfGeneration(ancestor.Generation) {
		if c.ID == ancestor.ID {
			return true, nil
		}
	}
	return false, nil
}
