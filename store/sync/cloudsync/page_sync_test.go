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

package cloudsync

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/cloud"
	"github.com/dolthub/ledger/store/cloud/memcloud"
	"github.com/dolthub/ledger/store/datas"
	"github.com/dolthub/ledger/store/db"
	"github.com/dolthub/ledger/store/encryption"
	"github.com/dolthub/ledger/store/hash"
	"github.com/dolthub/ledger/store/pagestorage"
	"github.com/dolthub/ledger/store/prolly/tree"
)

var testKey = bytes.Repeat([]byte{7}, encryption.MasterKeySize)

func testOptions() Options {
	return Options{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  200 * time.Millisecond,
	}
}

type device struct {
	ps   *pagestorage.PageStorage
	sync *PageSync
}

func newDevice(t *testing.T, pc cloud.PageCloud, key []byte) *device {
	ps, err := pagestorage.Open(context.Background(), db.NewMemDB(), "ns", "page", pagestorage.Options{})
	require.NoError(t, err)
	enc, err := encryption.NewService(key, "ns", "page")
	require.NoError(t, err)
	s := New(ps, pc, enc, testOptions())
	ps.SetSyncDelegate(s)
	t.Cleanup(func() {
		s.Close()
		ps.Close()
	})
	return &device{ps: ps, sync: s}
}

func (d *device) commit(t *testing.T, priority tree.Priority, kvs ...string) *datas.Commit {
	ctx := context.Background()
	j, err := d.ps.StartTransaction(ctx)
	require.NoError(t, err)
	for i := 0; i < len(kvs); i += 2 {
		id, err := d.ps.AddObjectFromLocal(ctx, []byte(kvs[i+1]))
		require.NoError(t, err)
		require.NoError(t, j.Put(ctx, []byte(kvs[i]), id, priority))
	}
	c, err := j.Commit(ctx)
	require.NoError(t, err)
	return c
}

func (d *device) heads(t *testing.T) hash.HashSet {
	ids, err := d.ps.GetHeads(context.Background())
	require.NoError(t, err)
	return hash.HashSlice(ids).HashSet()
}

func (d *device) value(t *testing.T, c *datas.Commit, key string, loc pagestorage.Location) (string, error) {
	ctx := context.Background()
	e, err := d.ps.GetEntry(ctx, c, []byte(key))
	require.NoError(t, err)
	v, err := d.ps.GetObject(ctx, e.ObjectID, loc)
	return string(v), err
}

func TestUploadThenDownload(t *testing.T) {
	ctx := context.Background()
	pc := memcloud.NewProvider().Page("ns", "page")
	a, b := newDevice(t, pc, testKey), newDevice(t, pc, testKey)

	c1 := a.commit(t, tree.Eager, "k1", "v1", "k2", "v2")
	synced, err := a.ps.IsSynced(ctx)
	require.NoError(t, err)
	assert.False(t, synced)

	require.NoError(t, a.sync.UploadOnce(ctx))
	synced, err = a.ps.IsSynced(ctx)
	require.NoError(t, err)
	assert.True(t, synced)
	assert.Equal(t, 1, pc.Len())
	assert.True(t, pc.ObjectCount() >= 3)

	require.NoError(t, b.sync.DownloadOnce(ctx))
	assert.Equal(t, hash.NewHashSet(c1.ID), b.heads(t))
	v, err := b.value(t, c1, "k2", pagestorage.Local)
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	// commits from the cloud are not uploaded back
	synced, err = b.ps.IsSynced(ctx)
	require.NoError(t, err)
	assert.True(t, synced)

	pos, err := b.ps.GetSyncMetadata(ctx, positionKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), pos)
	require.NoError(t, b.sync.DownloadOnce(ctx))
}

func TestCloudOnlySeesCiphertext(t *testing.T) {
	ctx := context.Background()
	pc := memcloud.NewProvider().Page("ns", "page")
	a := newDevice(t, pc, testKey)

	c1 := a.commit(t, tree.Eager, "secret-key", "secret-value")
	require.NoError(t, a.sync.UploadOnce(ctx))

	commits, _, err := pc.GetCommits(ctx, "")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, c1.ID.String(), commits[0].ID)
	assert.NotEqual(t, c1.StorageBytes(), commits[0].Data)

	id := chunks.ComputeObjectIdentifier(chunks.BlobObject, []byte("secret-value"))
	_, err = pc.GetObject(ctx, id.String())
	assert.True(t, errors.Is(err, cloud.ErrNotFound))
}

func TestLazyValuesFetchedOnRead(t *testing.T) {
	ctx := context.Background()
	pc := memcloud.NewProvider().Page("ns", "page")
	a, b := newDevice(t, pc, testKey), newDevice(t, pc, testKey)

	c1 := a.commit(t, tree.Lazy, "big", "lazy value")
	require.NoError(t, a.sync.UploadOnce(ctx))
	require.NoError(t, b.sync.DownloadOnce(ctx))

	_, err := b.value(t, c1, "big", pagestorage.Local)
	assert.True(t, errors.Is(err, pagestorage.ErrNotFound))
	v, err := b.value(t, c1, "big", pagestorage.Network)
	require.NoError(t, err)
	assert.Equal(t, "lazy value", v)
	v, err = b.value(t, c1, "big", pagestorage.Local)
	require.NoError(t, err)
	assert.Equal(t, "lazy value", v)
}

func TestUploadRetriesNetworkErrors(t *testing.T) {
	ctx := context.Background()
	pc := memcloud.NewProvider().Page("ns", "page")
	a := newDevice(t, pc, testKey)
	a.commit(t, tree.Eager, "k", "v")

	pc.FailNext(3)
	require.NoError(t, a.sync.UploadOnce(ctx))
	assert.Equal(t, 1, pc.Len())
}

func TestUploadGivesUp(t *testing.T) {
	ctx := context.Background()
	pc := memcloud.NewProvider().Page("ns", "page")
	a := newDevice(t, pc, testKey)
	a.commit(t, tree.Eager, "k", "v")

	pc.FailNext(1 << 20)
	err := a.sync.UploadOnce(ctx)
	require.Error(t, err)
	assert.True(t, cloud.IsRetriable(err))
	pc.FailNext(0)

	synced, err := a.ps.IsSynced(ctx)
	require.NoError(t, err)
	assert.False(t, synced)
	assert.Equal(t, 0, pc.Len())

	require.NoError(t, a.sync.UploadOnce(ctx))
	assert.Equal(t, 1, pc.Len())
}

func TestCorruptCommitAbandonsBatch(t *testing.T) {
	ctx := context.Background()
	pc := memcloud.NewProvider().Page("ns", "page")
	a, b := newDevice(t, pc, testKey), newDevice(t, pc, testKey)

	a.commit(t, tree.Eager, "k1", "v1")
	a.commit(t, tree.Eager, "k2", "v2")
	require.NoError(t, a.sync.UploadOnce(ctx))
	require.Equal(t, 2, pc.Len())
	pc.Corrupt(1, []byte("not a commit"))

	err := b.sync.DownloadOnce(ctx)
	assert.True(t, errors.Is(err, ErrCorrupt))
	assert.Equal(t, hash.NewHashSet(datas.FirstPageCommitID), b.heads(t))
	_, err = b.ps.GetSyncMetadata(ctx, positionKey)
	assert.True(t, errors.Is(err, pagestorage.ErrNotFound))
}

func TestWrongKeyCannotDownload(t *testing.T) {
	ctx := context.Background()
	pc := memcloud.NewProvider().Page("ns", "page")
	a := newDevice(t, pc, testKey)
	b := newDevice(t, pc, bytes.Repeat([]byte{8}, encryption.MasterKeySize))

	a.commit(t, tree.Eager, "k", "v")
	require.NoError(t, a.sync.UploadOnce(ctx))
	assert.True(t, errors.Is(b.sync.DownloadOnce(ctx), ErrCorrupt))
}

func TestStartFollowsCloud(t *testing.T) {
	pc := memcloud.NewProvider().Page("ns", "page")
	a, b := newDevice(t, pc, testKey), newDevice(t, pc, testKey)

	var mu sync.Mutex
	backlog := 0
	b.sync.SetOnBacklogDownloaded(func() {
		mu.Lock()
		backlog++
		mu.Unlock()
	})

	a.sync.Start()
	b.sync.Start()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return backlog == 1
	}, 5*time.Second, 5*time.Millisecond)

	c1 := a.commit(t, tree.Eager, "k", "v")
	require.Eventually(t, func() bool {
		return b.heads(t).Has(c1.ID)
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return a.sync.IsIdle() && b.sync.IsIdle()
	}, 5*time.Second, 5*time.Millisecond)
	d, u := a.sync.States()
	assert.Equal(t, Idle, d)
	assert.Equal(t, Idle, u)

	mu.Lock()
	assert.Equal(t, 1, backlog)
	mu.Unlock()
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, []string{"idle", "pending", "in_progress", "error"}, StateNames)
}
