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

// Package pagestorage stores the versions of one page: its objects, its
// tree nodes and its commit graph, all under the page's prefix of a Db.
package pagestorage

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/ledger/libraries/metrics"
	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/coroutine"
	"github.com/dolthub/ledger/store/datas"
	"github.com/dolthub/ledger/store/db"
	"github.com/dolthub/ledger/store/hash"
	"github.com/dolthub/ledger/store/prolly/tree"
)

const commitCacheSize = 1024

var (
	// ErrNotFound is returned for commits, keys and objects the page does
	// not have.
	ErrNotFound = errors.New("not found")

	// ErrIllegalState is returned when the page cannot serve a request in
	// its current state, e.g. after it was closed.
	ErrIllegalState = errors.New("illegal state")
)

// Location says where GetObject may look for an object.
type Location int

const (
	// Local only reads the page's own storage.
	Local Location = iota
	// Network fetches missing objects through the sync delegate.
	Network
)

// ChangeSource is the origin of commits and objects.
type ChangeSource int

const (
	SourceLocal ChangeSource = iota
	SourceCloud
	SourceP2P
)

func (s ChangeSource) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceCloud:
		return "cloud"
	case SourceP2P:
		return "p2p"
	}
	return "unknown"
}

// CommitIDAndBytes is a commit as it travels between devices.
type CommitIDAndBytes struct {
	ID    hash.Hash
	Bytes []byte
}

// FetchedObject is an object in stored form received from the network.
type FetchedObject struct {
	Stored []byte
	Source ChangeSource
}

// SyncDelegate fetches objects the page does not have. GetObject must call
// |cb| exactly once, from any goroutine.
type SyncDelegate interface {
	GetObject(ctx context.Context, id chunks.ObjectIdentifier, cb func(FetchedObject, error))
}

// CommitWatcher is told about commits after they are persisted.
type CommitWatcher interface {
	OnNewCommits(commits []*datas.Commit, source ChangeSource)
}

// CommitWatcherFunc adapts a function to a CommitWatcher.
type CommitWatcherFunc func(commits []*datas.Commit, source ChangeSource)

func (f CommitWatcherFunc) OnNewCommits(commits []*datas.Commit, source ChangeSource) {
	f(commits, source)
}

// Options configure a PageStorage. The zero value is usable.
type Options struct {
	Clock   func() time.Time
	Levels  tree.LevelCalculator
	Log     *logrus.Entry
	Metrics *metrics.Metrics
}

// PageStorage is the storage of a single page.
type PageStorage struct {
	namespace string
	pageID    string

	db      db.Db
	keys    keys
	objects *chunks.ObjectStore
	nodes   *tree.ObjectNodeStore
	commits *lru.Cache[hash.Hash, *datas.Commit]

	coroutines *coroutine.Service
	clock      func() time.Time
	log        *logrus.Entry
	metrics    *metrics.Metrics

	// mu serializes the publication of commits and heads with garbage
	// collection.
	mu     sync.Mutex
	active int
	closed bool

	// local counts the holds on objects added with AddObjectFromLocal that
	// no commit may reference yet. Garbage collection keeps them.
	local map[chunks.ObjectIdentifier]int

	watchMu  sync.Mutex
	watchers []CommitWatcher
	delegate SyncDelegate
}

// Open returns the storage of page |pageID| of |namespace| in |d|. A page
// seen for the first time starts with the genesis commit as its only head.
func Open(ctx context.Context, d db.Db, namespace, pageID string, opts Options) (*PageStorage, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Levels == nil {
		opts.Levels = tree.DefaultLevelCalculator
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	cache, err := lru.New[hash.Hash, *datas.Commit](commitCacheSize)
	if err != nil {
		return nil, err
	}

	prefix := PagePrefix(namespace, pageID)
	objects := chunks.NewObjectStore(d, prefix)
	ps := &PageStorage{
		namespace:  namespace,
		pageID:     pageID,
		db:         d,
		keys:       keys(prefix),
		objects:    objects,
		nodes:      tree.NewNodeStoreWithLevels(objects, opts.Levels),
		commits:    cache,
		coroutines: coroutine.NewService(),
		clock:      opts.Clock,
		log:        opts.Log.WithField("page", namespace+"/"+pageID),
		metrics:    opts.Metrics,
		local:      make(map[chunks.ObjectIdentifier]int),
	}
	if err := ps.init(ctx); err != nil {
		ps.coroutines.Close()
		return nil, err
	}
	return ps, nil
}

func (ps *PageStorage) init(ctx context.Context) error {
	ok, err := ps.db.HasPrefix(ctx, ps.keys.prefix(headsPrefix))
	if err != nil || ok {
		return err
	}

	b, err := ps.db.StartBatch(ctx)
	if err != nil {
		return err
	}
	root, err := tree.WriteEmptyTree(ctx, ps.nodes.InBatch(b))
	if err != nil {
		return err
	}
	genesis := datas.NewGenesisCommit(root)
	if err := b.Put(ps.keys.commit(genesis.ID), genesis.StorageBytes()); err != nil {
		return err
	}
	if err := b.Put(ps.keys.head(genesis.ID), encodeUint64(0)); err != nil {
		return err
	}
	ps.log.Debug("initialized page")
	return b.Execute(ctx)
}

func (ps *PageStorage) Namespace() string {
	return ps.namespace
}

func (ps *PageStorage) PageID() string {
	return ps.pageID
}

// NodeStore returns the store holding the page's tree nodes.
func (ps *PageStorage) NodeStore() tree.NodeStore {
	return ps.nodes
}

// Close interrupts every operation waiting on the network. The page cannot
// be used afterwards.
func (ps *PageStorage) Close() error {
	ps.mu.Lock()
	ps.closed = true
	ps.mu.Unlock()
	ps.coroutines.Close()
	return nil
}

// begin registers an operation that may write objects before publishing a
// commit. Garbage collection does not run while one is active.
func (ps *PageStorage) begin() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return errors.Wrap(ErrIllegalState, "page storage is closed")
	}
	ps.active++
	return nil
}

func (ps *PageStorage) end() {
	ps.mu.Lock()
	ps.active--
	ps.mu.Unlock()
}

// SetSyncDelegate sets the delegate used to fetch objects from the network.
func (ps *PageStorage) SetSyncDelegate(d SyncDelegate) {
	ps.watchMu.Lock()
	ps.delegate = d
	ps.watchMu.Unlock()
}

func (ps *PageStorage) syncDelegate() SyncDelegate {
	ps.watchMu.Lock()
	defer ps.watchMu.Unlock()
	return ps.delegate
}

// AddCommitWatcher registers |w| for every commit persisted from now on.
func (ps *PageStorage) AddCommitWatcher(w CommitWatcher) {
	ps.watchMu.Lock()
	ps.watchers = append(ps.watchers, w)
	ps.watchMu.Unlock()
}

// RemoveCommitWatcher unregisters |w|.
func (ps *PageStorage) RemoveCommitWatcher(w CommitWatcher) {
	ps.watchMu.Lock()
	defer ps.watchMu.Unlock()
	for i, o := range ps.watchers {
		if o == w {
			ps.watchers = append(ps.watchers[:i], ps.watchers[i+1:]...)
			return
		}
	}
}

func (ps *PageStorage) notify(commits []*datas.Commit, source ChangeSource) {
	if len(commits) == 0 {
		return
	}
	ps.watchMu.Lock()
	watchers := append([]CommitWatcher(nil), ps.watchers...)
	ps.watchMu.Unlock()
	for _, w := range watchers {
		w.OnNewCommits(commits, source)
	}
}

// GetCommit returns the commit |id|.
func (ps *PageStorage) GetCommit(ctx context.Context, id hash.Hash) (*datas.Commit, error) {
	if c, ok := ps.commits.Get(id); ok {
		return c, nil
	}
	data, err := ps.db.Get(ctx, ps.keys.commit(id))
	if errors.Is(err, db.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "commit %s", id)
	} else if err != nil {
		return nil, err
	}
	c, err := datas.CommitFromStorageBytes(id, data)
	if err != nil {
		return nil, err
	}
	ps.commits.Add(id, c)
	return c, nil
}

// HasCommit returns true if the commit |id| is stored.
func (ps *PageStorage) HasCommit(ctx context.Context, id hash.Hash) (bool, error) {
	if ps.commits.Contains(id) {
		return true, nil
	}
	return ps.db.Has(ctx, ps.keys.commit(id))
}

// GetHeads returns the ids of the commits without children, oldest first.
func (ps *PageStorage) GetHeads(ctx context.Context) ([]hash.Hash, error) {
	heads, err := ps.GetHeadCommits(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]hash.Hash, len(heads))
	for i, c := range heads {
		ids[i] = c.ID
	}
	return ids, nil
}

// GetHeadCommits returns the commits without children sorted by timestamp
// then id.
func (ps *PageStorage) GetHeadCommits(ctx context.Context) ([]*datas.Commit, error) {
	kvs, err := ps.db.GetEntriesByPrefix(ctx, ps.keys.prefix(headsPrefix))
	if err != nil {
		return nil, err
	}
	heads := make([]*datas.Commit, 0, len(kvs))
	for _, kv := range kvs {
		id, ok := hash.MaybeParse(string(kv.Key))
		if !ok {
			return nil, errors.Wrapf(datas.ErrParse, "bad head key %q", kv.Key)
		}
		c, err := ps.GetCommit(ctx, id)
		if err != nil {
			return nil, err
		}
		heads = append(heads, c)
	}
	datas.SortByTimestamp(heads)
	return heads, nil
}

// StartCommit returns a journal whose commit will have |base| as parent.
func (ps *PageStorage) StartCommit(ctx context.Context, base hash.Hash) (*Journal, error) {
	c, err := ps.getParent(ctx, base)
	if err != nil {
		return nil, err
	}
	if err := ps.begin(); err != nil {
		return nil, err
	}
	return newJournal(ps, c), nil
}

// getParent reads the commit a journal builds on. A journal on an unknown
// commit would make a dangling commit.
func (ps *PageStorage) getParent(ctx context.Context, id hash.Hash) (*datas.Commit, error) {
	c, err := ps.GetCommit(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, errors.Wrapf(datas.ErrDanglingCommit, "parent %s is not stored", id)
	}
	return c, err
}

// StartTransaction returns a journal based on the most recent head.
func (ps *PageStorage) StartTransaction(ctx context.Context) (*Journal, error) {
	heads, err := ps.GetHeadCommits(ctx)
	if err != nil {
		return nil, err
	}
	if len(heads) == 0 {
		return nil, errors.Wrap(ErrIllegalState, "page has no head")
	}
	if err := ps.begin(); err != nil {
		return nil, err
	}
	return newJournal(ps, heads[len(heads)-1]), nil
}

// StartMergeCommit returns a journal based on the content of |left| whose
// commit will have both |left| and |right| as parents.
func (ps *PageStorage) StartMergeCommit(ctx context.Context, left, right hash.Hash) (*Journal, error) {
	if left == right {
		return nil, errors.Wrapf(ErrIllegalState, "cannot merge %s with itself", left)
	}
	l, err := ps.getParent(ctx, left)
	if err != nil {
		return nil, err
	}
	r, err := ps.getParent(ctx, right)
	if err != nil {
		return nil, err
	}
	if err := ps.begin(); err != nil {
		return nil, err
	}
	return newJournal(ps, l, r), nil
}

// GetEntry returns the entry of |key| at |c|.
func (ps *PageStorage) GetEntry(ctx context.Context, c *datas.Commit, key []byte) (tree.Entry, error) {
	e, err := tree.GetEntry(ctx, ps.nodes, c.RootNode, key)
	if errors.Is(err, tree.ErrNotFound) {
		return tree.Entry{}, errors.Wrapf(ErrNotFound, "key %q at commit %s", key, c.ID)
	}
	return e, err
}

// GetEntries returns the entries of |c| from |minKey| on, in key order.
func (ps *PageStorage) GetEntries(ctx context.Context, c *datas.Commit, minKey []byte) ([]tree.Entry, error) {
	var out []tree.Entry
	err := ps.ForEachEntry(ctx, c, minKey, func(e tree.Entry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

// ForEachEntry calls |cb| with the entries of |c| from |minKey| on.
func (ps *PageStorage) ForEachEntry(ctx context.Context, c *datas.Commit, minKey []byte, cb tree.EntryCallback) error {
	return tree.ForEachEntry(ctx, ps.nodes, c.RootNode, minKey, cb)
}

// GetDiff returns the changes turning the content of |base| into the
// content of |target|.
func (ps *PageStorage) GetDiff(ctx context.Context, base, target *datas.Commit) ([]tree.EntryChange, error) {
	return tree.GetDiff(ctx, ps.nodes, base.RootNode, target.RootNode)
}

// AddObjectFromLocal stores a value added by a client of this device. It is
// uploaded by the next cloud sync.
func (ps *PageStorage) AddObjectFromLocal(ctx context.Context, data []byte) (chunks.ObjectIdentifier, error) {
	b, err := ps.db.StartBatch(ctx)
	if err != nil {
		return chunks.ObjectIdentifier{}, err
	}
	id, pieces, err := ps.objects.PutValueInBatchWithPieces(ctx, b, data)
	if err != nil {
		return chunks.ObjectIdentifier{}, err
	}
	for _, p := range append(pieces, id) {
		if err := b.Put(ps.keys.unsyncedObject(p), nil); err != nil {
			return chunks.ObjectIdentifier{}, err
		}
	}

	// written and held under mu, so garbage collection sees both or neither
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if err := b.Execute(ctx); err != nil {
		return chunks.ObjectIdentifier{}, err
	}
	ps.local[id]++
	ps.metrics.ObjectAdded(ps.pageID)
	return id, nil
}

// ReleaseObject drops a hold taken by AddObjectFromLocal on an object that
// will not be passed to a journal. A journal drops the holds on the objects
// put into it when it commits or rolls back.
func (ps *PageStorage) ReleaseObject(id chunks.ObjectIdentifier) {
	ps.releaseObjects(chunks.NewIdentifierSet(id))
}

func (ps *PageStorage) releaseObjects(ids chunks.IdentifierSet) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for id := range ids {
		if n, ok := ps.local[id]; !ok {
			continue
		} else if n <= 1 {
			delete(ps.local, id)
		} else {
			ps.local[id] = n - 1
		}
	}
}

// HasObject returns true if |id| is stored locally.
func (ps *PageStorage) HasObject(ctx context.Context, id chunks.ObjectIdentifier) (bool, error) {
	return ps.objects.HasObject(ctx, id)
}

// GetObject returns the value |id|. With the Network location a value the
// page does not have is fetched through the sync delegate, checked against
// its identifier and stored.
func (ps *PageStorage) GetObject(ctx context.Context, id chunks.ObjectIdentifier, location Location) ([]byte, error) {
	data, err := ps.objects.GetObject(ctx, id)
	if err == nil || !errors.Is(err, chunks.ErrNotFound) {
		return data, err
	}
	if location == Local {
		return nil, errors.Wrapf(ErrNotFound, "object %s", id)
	}

	// either the object or some of its pieces are missing
	want := []chunks.ObjectIdentifier{id}
	if ok, err := ps.objects.HasObject(ctx, id); err != nil {
		return nil, err
	} else if ok {
		if want, err = ps.objects.References(ctx, id); err != nil {
			return nil, err
		}
	}

	pending := make(pendingObjects)
	if err := ps.fetch(ctx, want, pending); err != nil {
		return nil, err
	}
	b, err := ps.db.StartBatch(ctx)
	if err != nil {
		return nil, err
	}
	if err := ps.storePending(ctx, b, pending); err != nil {
		return nil, err
	}
	if err := b.Execute(ctx); err != nil {
		return nil, err
	}
	return ps.objects.GetObject(ctx, id)
}

// commitChanges persists the commit of |changes| applied to the content of
// parents[0]. The nodes, the commit, the head update and the unsynced marks
// are written in one batch. A single-parent commit that changes nothing is
// not created and its parent is returned.
func (ps *PageStorage) commitChanges(ctx context.Context, parents []*datas.Commit, changes []tree.EntryChange) (*datas.Commit, error) {
	b, err := ps.db.StartBatch(ctx)
	if err != nil {
		return nil, err
	}
	bns := ps.nodes.InBatch(b)
	root, err := tree.ApplyChanges(ctx, bns, parents[0].RootNode, changes)
	if err != nil {
		return nil, err
	}
	if len(parents) == 1 && root == parents[0].RootNode {
		return parents[0], nil
	}
	c, err := datas.NewCommit(parents, root, ps.clock().UnixNano())
	if err != nil {
		return nil, err
	}

	ps.mu.Lock()
	created, err := ps.publishLocked(ctx, b, c, bns.Written())
	ps.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !created {
		return c, nil
	}

	ps.commits.Add(c.ID, c)
	ps.metrics.CommitCreated(ps.pageID)
	ps.log.WithField("commit", c.ID.String()).Debug("created commit")
	ps.notify([]*datas.Commit{c}, SourceLocal)
	return c, nil
}

func (ps *PageStorage) publishLocked(ctx context.Context, b db.Batch, c *datas.Commit, nodes chunks.IdentifierSet) (bool, error) {
	// a merge computed on another device may already be here
	if ok, err := ps.db.Has(ctx, ps.keys.commit(c.ID)); err != nil || ok {
		return false, err
	}
	if err := b.Put(ps.keys.commit(c.ID), c.StorageBytes()); err != nil {
		return false, err
	}
	for _, p := range c.ParentIDs {
		if err := b.Delete(ps.keys.head(p)); err != nil {
			return false, err
		}
	}
	if err := b.Put(ps.keys.head(c.ID), encodeUint64(uint64(c.Timestamp))); err != nil {
		return false, err
	}
	if err := b.Put(ps.keys.unsyncedCommit(c.ID), encodeUint64(c.Generation)); err != nil {
		return false, err
	}
	for id := range nodes {
		if err := b.Put(ps.keys.unsyncedObject(id), nil); err != nil {
			return false, err
		}
	}
	return true, b.Execute(ctx)
}
