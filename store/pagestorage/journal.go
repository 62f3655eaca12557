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

package pagestorage

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/datas"
	"github.com/dolthub/ledger/store/prolly/tree"
)

// ErrInvalidState is returned by a journal that was already committed or
// rolled back.
var ErrInvalidState = errors.New("journal is not open")

const journalDegree = 16

type journalState int

const (
	journalOpen journalState = iota
	journalCommitted
	journalRolledBack
)

type journalOp struct {
	key     []byte
	entry   tree.Entry
	deleted bool
}

func journalOpLess(a, b journalOp) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Journal buffers the changes of one commit. Nothing it does is visible to
// readers of the page until Commit returns.
//
// Journals are not ordered against each other: two journals started on the
// same base commit both commit, and the page then has two heads until they
// are merged.
type Journal struct {
	ps      *PageStorage
	parents []*datas.Commit

	mu      sync.Mutex
	state   journalState
	cleared bool
	ops     *btree.BTreeG[journalOp]

	// local objects passed to Put, released when the journal finishes
	held chunks.IdentifierSet
}

func newJournal(ps *PageStorage, parents ...*datas.Commit) *Journal {
	return &Journal{
		ps:      ps,
		parents: parents,
		ops:     btree.NewG[journalOp](journalDegree, journalOpLess),
		held:    chunks.NewIdentifierSet(),
	}
}

// Base returns the commit whose content the journal changes.
func (j *Journal) Base() *datas.Commit {
	return j.parents[0]
}

// IsMerge returns true for journals started with StartMergeCommit.
func (j *Journal) IsMerge() bool {
	return len(j.parents) == 2
}

// Put sets |key| to the object |id|, which must be stored in the page.
func (j *Journal) Put(ctx context.Context, key []byte, id chunks.ObjectIdentifier, priority tree.Priority) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != journalOpen {
		return ErrInvalidState
	}
	if err := tree.ValidateKey(key); err != nil {
		return err
	}
	if priority != tree.Eager && priority != tree.Lazy {
		return errors.Errorf("invalid priority %d", priority)
	}
	ok, err := j.ps.objects.HasObject(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(ErrNotFound, "object %s", id)
	}
	k := append([]byte(nil), key...)
	j.ops.ReplaceOrInsert(journalOp{key: k, entry: tree.Entry{Key: k, ObjectID: id, Priority: priority}})
	j.held.Insert(id)
	return nil
}

// PutEntry copies an entry read from a commit of this page. Unlike Put the
// object does not have to be stored locally: lazy values of other commits
// may not have been fetched yet.
func (j *Journal) PutEntry(e tree.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != journalOpen {
		return ErrInvalidState
	}
	if err := tree.ValidateKey(e.Key); err != nil {
		return err
	}
	k := append([]byte(nil), e.Key...)
	j.ops.ReplaceOrInsert(journalOp{key: k, entry: tree.Entry{Key: k, ObjectID: e.ObjectID, Priority: e.Priority}})
	return nil
}

// Delete removes |key|. Deleting a missing key is not an error.
func (j *Journal) Delete(key []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != journalOpen {
		return ErrInvalidState
	}
	if err := tree.ValidateKey(key); err != nil {
		return err
	}
	k := append([]byte(nil), key...)
	j.ops.ReplaceOrInsert(journalOp{key: k, entry: tree.Entry{Key: k}, deleted: true})
	return nil
}

// Clear removes every key of the base commit and every change buffered so
// far.
func (j *Journal) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != journalOpen {
		return ErrInvalidState
	}
	j.cleared = true
	j.ops.Clear(false)
	return nil
}

// Commit persists the buffered changes as a new commit and returns it. If the
// journal changes nothing and is not a merge, no commit is created and the
// base commit is returned. If Commit fails the journal stays open.
func (j *Journal) Commit(ctx context.Context) (*datas.Commit, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != journalOpen {
		return nil, ErrInvalidState
	}

	changes, err := j.changes(ctx)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 && !j.IsMerge() {
		j.finish(journalCommitted)
		return j.Base(), nil
	}

	c, err := j.ps.commitChanges(ctx, j.parents, changes)
	if err != nil {
		return nil, err
	}
	j.finish(journalCommitted)
	return c, nil
}

// Rollback discards the journal. Objects added for it stay in the page
// until garbage collection removes them, which it may do from now on.
func (j *Journal) Rollback() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != journalOpen {
		return ErrInvalidState
	}
	j.finish(journalRolledBack)
	return nil
}

func (j *Journal) finish(st journalState) {
	j.state = st
	j.ops.Clear(false)
	j.ps.releaseObjects(j.held)
	j.held = nil
	j.ps.end()
}

func (j *Journal) changes(ctx context.Context) ([]tree.EntryChange, error) {
	changes := make([]tree.EntryChange, 0, j.ops.Len())
	j.ops.Ascend(func(op journalOp) bool {
		changes = append(changes, tree.EntryChange{Entry: op.entry, Deleted: op.deleted})
		return true
	})
	if !j.cleared {
		return changes, nil
	}

	err := j.ps.ForEachEntry(ctx, j.Base(), nil, func(e tree.Entry) error {
		if !j.ops.Has(journalOp{key: e.Key}) {
			changes = append(changes, tree.EntryChange{Entry: tree.Entry{Key: e.Key}, Deleted: true})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree.SortChanges(changes), nil
}
