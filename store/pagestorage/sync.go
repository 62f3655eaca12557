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
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/coroutine"
	"github.com/dolthub/ledger/store/datas"
	"github.com/dolthub/ledger/store/db"
	"github.com/dolthub/ledger/store/hash"
	"github.com/dolthub/ledger/store/prolly/tree"
)

// pendingObjects are fetched objects waiting to be written with the commits
// that reference them.
type pendingObjects map[chunks.ObjectIdentifier]FetchedObject

// AddCommitsFromSync adds commits received from the cloud or a peer.
//
// Every commit must match its id and have its parents either stored or in
// |commits|. The tree of every commit is completed before anything is
// written: missing nodes and eager values are fetched through the sync
// delegate. The commits, the objects and the head changes are then written
// in one batch, so a batch that fails leaves the page untouched.
//
// Commits from the cloud are recorded as synced; commits and objects from
// peers still have to be uploaded.
func (ps *PageStorage) AddCommitsFromSync(ctx context.Context, commits []CommitIDAndBytes, source ChangeSource) error {
	if err := ps.begin(); err != nil {
		return err
	}
	defer ps.end()

	added, err := ps.parseNewCommits(ctx, commits)
	if err != nil || len(added) == 0 {
		return err
	}

	inBatch := make(map[hash.Hash]*datas.Commit, len(added))
	for _, c := range added {
		parents := make([]*datas.Commit, len(c.ParentIDs))
		for i, pid := range c.ParentIDs {
			if p, ok := inBatch[pid]; ok {
				parents[i] = p
				continue
			}
			p, err := ps.GetCommit(ctx, pid)
			if errors.Is(err, ErrNotFound) {
				return errors.Wrapf(datas.ErrDanglingCommit, "commit %s: parent %s", c.ID, pid)
			} else if err != nil {
				return err
			}
			parents[i] = p
		}
		if err := datas.CheckGeneration(c, parents); err != nil {
			return err
		}
		inBatch[c.ID] = c
	}

	pending := make(pendingObjects)
	for _, c := range added {
		if err := ps.completeTree(ctx, c.RootNode, pending); err != nil {
			return errors.Wrapf(err, "commit %s", c.ID)
		}
	}

	b, err := ps.db.StartBatch(ctx)
	if err != nil {
		return err
	}
	if err := ps.storePending(ctx, b, pending); err != nil {
		return err
	}

	ps.mu.Lock()
	err = ps.publishSyncedLocked(ctx, b, added, source)
	ps.mu.Unlock()
	if err != nil {
		return err
	}

	for _, c := range added {
		ps.commits.Add(c.ID, c)
	}
	ps.metrics.CommitsSynced(ps.pageID, source.String(), len(added))
	ps.log.WithField("source", source.String()).WithField("commits", len(added)).Debug("added commits from sync")
	ps.notify(added, source)
	return nil
}

// parseNewCommits decodes the commits not yet stored, parents first.
func (ps *PageStorage) parseNewCommits(ctx context.Context, commits []CommitIDAndBytes) ([]*datas.Commit, error) {
	seen := hash.NewHashSet()
	var out []*datas.Commit
	for _, cb := range commits {
		if seen.Has(cb.ID) {
			continue
		}
		seen.Insert(cb.ID)
		ok, err := ps.HasCommit(ctx, cb.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		c, err := datas.CommitFromStorageBytes(cb.ID, cb.Bytes)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return datas.TopologicallySortCommits(out), nil
}

func (ps *PageStorage) publishSyncedLocked(ctx context.Context, b db.Batch, added []*datas.Commit, source ChangeSource) error {
	heads, err := ps.db.GetByPrefix(ctx, ps.keys.prefix(headsPrefix))
	if err != nil {
		return err
	}
	newHeads := hash.NewHashSet()
	for _, k := range heads {
		if id, ok := hash.MaybeParse(string(k)); ok {
			newHeads.Insert(id)
		}
	}
	oldHeads := newHeads.Copy()

	for _, c := range added {
		if err := b.Put(ps.keys.commit(c.ID), c.StorageBytes()); err != nil {
			return err
		}
		if source != SourceCloud {
			if err := b.Put(ps.keys.unsyncedCommit(c.ID), encodeUint64(c.Generation)); err != nil {
				return err
			}
		}
		newHeads.Insert(c.ID)
	}
	for _, c := range added {
		for _, p := range c.ParentIDs {
			newHeads.Remove(p)
		}
	}

	for id := range oldHeads {
		if !newHeads.Has(id) {
			if err := b.Delete(ps.keys.head(id)); err != nil {
				return err
			}
		}
	}
	for _, c := range added {
		if newHeads.Has(c.ID) && !oldHeads.Has(c.ID) {
			if err := b.Put(ps.keys.head(c.ID), encodeUint64(uint64(c.Timestamp))); err != nil {
				return err
			}
		}
	}
	return b.Execute(ctx)
}

// completeTree fetches the nodes and eager values of the tree at |root| that
// are neither stored nor in |pending|. A stored node always comes with its
// whole subtree, so stored nodes are not descended into.
func (ps *PageStorage) completeTree(ctx context.Context, root chunks.ObjectIdentifier, pending pendingObjects) error {
	frontier, err := ps.missing(ctx, []chunks.ObjectIdentifier{root}, pending)
	if err != nil {
		return err
	}
	for len(frontier) > 0 {
		if err := ps.fetch(ctx, frontier, pending); err != nil {
			return err
		}
		var children, values []chunks.ObjectIdentifier
		for _, id := range frontier {
			n, err := pending.node(id)
			if err != nil {
				return err
			}
			for _, e := range n.Entries {
				if e.Priority == tree.Eager {
					values = append(values, e.ObjectID)
				}
			}
			for _, c := range n.Children {
				if !c.IsEmpty() {
					children = append(children, c)
				}
			}
		}
		if values, err = ps.missing(ctx, values, pending); err != nil {
			return err
		}
		if err := ps.fetch(ctx, values, pending); err != nil {
			return err
		}
		if frontier, err = ps.missing(ctx, children, pending); err != nil {
			return err
		}
	}
	return nil
}

func (p pendingObjects) node(id chunks.ObjectIdentifier) (*tree.Node, error) {
	t, data, err := chunks.DecodeStoredObject(p[id].Stored)
	if err != nil {
		return nil, err
	}
	if t != chunks.TreeNodeObject {
		return nil, errors.Wrapf(tree.ErrParse, "object %s is a %s, not a tree node", id, t)
	}
	return tree.ParseNode(data)
}

// missing returns the ids of |ids| that are neither stored nor pending,
// without repeats.
func (ps *PageStorage) missing(ctx context.Context, ids []chunks.ObjectIdentifier, pending pendingObjects) ([]chunks.ObjectIdentifier, error) {
	seen := chunks.NewIdentifierSet()
	var out []chunks.ObjectIdentifier
	for _, id := range ids {
		if _, ok := pending[id]; ok || seen.Has(id) {
			continue
		}
		seen.Insert(id)
		ok, err := ps.objects.HasObject(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// fetch fetches |ids| through the sync delegate into |pending|, followed by
// the missing pieces of fetched index objects. Every object is checked
// against its identifier.
func (ps *PageStorage) fetch(ctx context.Context, ids []chunks.ObjectIdentifier, pending pendingObjects) error {
	if len(ids) == 0 {
		return nil
	}
	d := ps.syncDelegate()
	if d == nil {
		return errors.Wrapf(ErrNotFound, "object %s", ids[0])
	}

	for len(ids) > 0 {
		var fetched []FetchedObject
		err := ps.coroutines.Run(ctx, func(h coroutine.Handler) error {
			w := coroutine.NewWaiter[FetchedObject]()
			for _, id := range ids {
				d.GetObject(h.Context(), id, w.NewCallback())
			}
			var err error
			fetched, err = coroutine.Wait(h, w)
			return err
		})
		if err != nil {
			return err
		}

		var pieces []chunks.ObjectIdentifier
		for i, f := range fetched {
			id := ids[i]
			if hash.Of(f.Stored) != id.Digest {
				return errors.Wrapf(chunks.ErrDigestMismatch, "object %s", id)
			}
			t, data, err := chunks.DecodeStoredObject(f.Stored)
			if err != nil {
				return errors.Wrapf(err, "object %s", id)
			}
			if t == chunks.IndexObject {
				refs, _, err := chunks.DecodeIndex(data)
				if err != nil {
					return errors.Wrapf(err, "object %s", id)
				}
				pieces = append(pieces, refs...)
			}
			pending[id] = f
			ps.metrics.ObjectFetched(ps.pageID, f.Source.String())
		}
		if ids, err = ps.missing(ctx, pieces, pending); err != nil {
			return err
		}
	}
	return nil
}

// storePending adds the writes of |pending| to |b|. Objects that came from
// peers still have to be uploaded to the cloud.
func (ps *PageStorage) storePending(ctx context.Context, b db.Batch, pending pendingObjects) error {
	for id, f := range pending {
		if err := ps.objects.PutStoredInBatch(ctx, b, id, f.Stored); err != nil {
			return err
		}
		if f.Source != SourceCloud {
			if err := b.Put(ps.keys.unsyncedObject(id), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetUnsyncedCommits returns the commits not yet uploaded to the cloud,
// parents first.
func (ps *PageStorage) GetUnsyncedCommits(ctx context.Context) ([]*datas.Commit, error) {
	keys, err := ps.db.GetByPrefix(ctx, ps.keys.prefix(unsyncedCommitsPrefix))
	if err != nil {
		return nil, err
	}
	commits := make([]*datas.Commit, 0, len(keys))
	for _, k := range keys {
		id, ok := hash.MaybeParse(string(k))
		if !ok {
			return nil, errors.Wrapf(datas.ErrParse, "bad unsynced commit key %q", k)
		}
		c, err := ps.GetCommit(ctx, id)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return datas.TopologicallySortCommits(commits), nil
}

// MarkCommitSynced records that |id| is in the cloud.
func (ps *PageStorage) MarkCommitSynced(ctx context.Context, id hash.Hash) error {
	return ps.deleteKey(ctx, ps.keys.unsyncedCommit(id))
}

// GetUnsyncedPieces returns the objects not yet uploaded to the cloud.
func (ps *PageStorage) GetUnsyncedPieces(ctx context.Context) ([]chunks.ObjectIdentifier, error) {
	keys, err := ps.db.GetByPrefix(ctx, ps.keys.prefix(unsyncedObjectsPrefix))
	if err != nil {
		return nil, err
	}
	ids := make([]chunks.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		h, ok := hash.MaybeParse(string(k))
		if !ok {
			return nil, errors.Wrapf(chunks.ErrInvalidObject, "bad unsynced object key %q", k)
		}
		ids = append(ids, chunks.ObjectIdentifier{Digest: h})
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids, nil
}

// MarkPieceSynced records that the object |id| is in the cloud.
func (ps *PageStorage) MarkPieceSynced(ctx context.Context, id chunks.ObjectIdentifier) error {
	return ps.deleteKey(ctx, ps.keys.unsyncedObject(id))
}

// IsSynced returns true if every commit and object is in the cloud.
func (ps *PageStorage) IsSynced(ctx context.Context) (bool, error) {
	for _, p := range []string{unsyncedCommitsPrefix, unsyncedObjectsPrefix} {
		ok, err := ps.db.HasPrefix(ctx, ps.keys.prefix(p))
		if err != nil || ok {
			return false, err
		}
	}
	return true, nil
}

// GetStoredObject returns |id| in stored form, as sent to other devices.
func (ps *PageStorage) GetStoredObject(ctx context.Context, id chunks.ObjectIdentifier) ([]byte, error) {
	stored, err := ps.objects.GetStoredObject(ctx, id)
	if errors.Is(err, chunks.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "object %s", id)
	}
	return stored, err
}

// SetSyncMetadata stores a value for the sync layer.
func (ps *PageStorage) SetSyncMetadata(ctx context.Context, key string, value []byte) error {
	b, err := ps.db.StartBatch(ctx)
	if err != nil {
		return err
	}
	if err := b.Put(ps.keys.syncMetadata(key), value); err != nil {
		return err
	}
	return b.Execute(ctx)
}

// GetSyncMetadata returns the value stored by SetSyncMetadata.
func (ps *PageStorage) GetSyncMetadata(ctx context.Context, key string) ([]byte, error) {
	v, err := ps.db.Get(ctx, ps.keys.syncMetadata(key))
	if errors.Is(err, db.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "sync metadata %q", key)
	}
	return v, err
}

func (ps *PageStorage) deleteKey(ctx context.Context, key []byte) error {
	b, err := ps.db.StartBatch(ctx)
	if err != nil {
		return err
	}
	if err := b.Delete(key); err != nil {
		return err
	}
	return b.Execute(ctx)
}
