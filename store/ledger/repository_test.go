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

package ledger

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/ledger/store/cloud/memcloud"
	"github.com/dolthub/ledger/store/db"
	"github.com/dolthub/ledger/store/encryption"
	"github.com/dolthub/ledger/store/merge"
	"github.com/dolthub/ledger/store/p2p"
	"github.com/dolthub/ledger/store/pagestorage"
	"github.com/dolthub/ledger/store/prolly/tree"
	"github.com/dolthub/ledger/store/sync/cloudsync"
)

var testKey = bytes.Repeat([]byte{7}, encryption.MasterKeySize)

func openMem(t *testing.T, opts Options) *Repository {
	opts.Backend = db.MemoryBackend
	r, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func put(t *testing.T, p *Page, key, value string) {
	ctx := context.Background()
	j, err := p.Storage.StartTransaction(ctx)
	require.NoError(t, err)
	id, err := p.Storage.AddObjectFromLocal(ctx, []byte(value))
	require.NoError(t, err)
	require.NoError(t, j.Put(ctx, []byte(key), id, tree.Eager))
	_, err = j.Commit(ctx)
	require.NoError(t, err)
}

func get(t *testing.T, p *Page, key string) (string, bool) {
	ctx := context.Background()
	heads, err := p.Storage.GetHeadCommits(ctx)
	require.NoError(t, err)
	if len(heads) != 1 {
		return "", false
	}
	e, err := p.Storage.GetEntry(ctx, heads[0], []byte(key))
	if err != nil {
		return "", false
	}
	v, err := p.Storage.GetObject(ctx, e.ObjectID, pagestorage.Network)
	if err != nil {
		return "", false
	}
	return string(v), true
}

func TestGetPageIsCached(t *testing.T) {
	r := openMem(t, Options{})
	ctx := context.Background()

	p1, err := r.GetPage(ctx, "ns", "page")
	require.NoError(t, err)
	p2, err := r.GetPage(ctx, "ns", "page")
	require.NoError(t, err)
	assert.True(t, p1 == p2)

	heads, err := p1.Storage.GetHeads(ctx)
	require.NoError(t, err)
	assert.Len(t, heads, 1)

	p3, err := r.GetPage(ctx, "ns", "")
	require.NoError(t, err)
	assert.NotEmpty(t, p3.ID)
	assert.NotEqual(t, p1, p3)
}

func TestInvalidNames(t *testing.T) {
	r := openMem(t, Options{})
	ctx := context.Background()

	for _, tc := range []struct{ ns, page string }{
		{"", "page"},
		{"a/b", "page"},
		{"ns", "a/b"},
		{"ns", string(bytes.Repeat([]byte{'x'}, maxNameLen+1))},
	} {
		_, err := r.GetPage(ctx, tc.ns, tc.page)
		assert.ErrorIs(t, err, ErrInvalidName, "%q/%q", tc.ns, tc.page)
	}
}

func TestListAndDeletePages(t *testing.T) {
	r := openMem(t, Options{})
	ctx := context.Background()

	for _, name := range []string{"b", "a", "c"} {
		p, err := r.GetPage(ctx, "ns", name)
		require.NoError(t, err)
		put(t, p, "k", name)
	}
	_, err := r.GetPage(ctx, "other", "z")
	require.NoError(t, err)

	pages, err := r.ListPages(ctx, "ns")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, pages)

	require.NoError(t, r.DeletePage(ctx, "ns", "b"))
	pages, err = r.ListPages(ctx, "ns")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, pages)

	keys, err := r.db.GetByPrefix(ctx, pagestorage.PagePrefix("ns", "b"))
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Reopening a deleted page starts over.
	p, err := r.GetPage(ctx, "ns", "b")
	require.NoError(t, err)
	_, ok := get(t, p, "k")
	assert.False(t, ok)

	require.NoError(t, r.DeleteNamespace(ctx, "ns"))
	pages, err = r.ListPages(ctx, "ns")
	require.NoError(t, err)
	assert.Empty(t, pages)
	pages, err = r.ListPages(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, pages)
}

func TestClosed(t *testing.T) {
	r := openMem(t, Options{})
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err := r.GetPage(context.Background(), "ns", "page")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.DeletePage(context.Background(), "ns", "page"), ErrClosed)
}

func TestCloudNeedsKey(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: db.MemoryBackend, Cloud: memcloud.NewProvider()})
	assert.ErrorIs(t, err, encryption.ErrInvalidKey)
}

func TestDirectoryIsLocked(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	r, err := Open(ctx, Options{Backend: db.LevelDBBackend, Dir: dir})
	require.NoError(t, err)

	_, err = Open(ctx, Options{Backend: db.LevelDBBackend, Dir: dir})
	assert.ErrorIs(t, err, ErrLocked)

	p, err := r.GetPage(ctx, "ns", "page")
	require.NoError(t, err)
	put(t, p, "k", "v")
	require.NoError(t, r.Close())

	r, err = Open(ctx, Options{Backend: db.LevelDBBackend, Dir: dir})
	require.NoError(t, err)
	defer r.Close()
	p, err = r.GetPage(ctx, "ns", "page")
	require.NoError(t, err)
	v, ok := get(t, p, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestRepositoriesSync(t *testing.T) {
	provider := memcloud.NewProvider()
	network := p2p.NewFakeNetwork()
	ctx := context.Background()

	newRepo := func(name string) *Repository {
		mesh := network.Join(p2p.DeviceID(name))
		t.Cleanup(func() { mesh.Close() })
		return openMem(t, Options{
			MasterKey: testKey,
			Cloud:     provider,
			CloudSync: cloudsync.Options{
				InitialInterval: time.Millisecond,
				MaxInterval:     10 * time.Millisecond,
				MaxElapsedTime:  time.Second,
			},
			Mesh:  mesh,
			Merge: merge.Options{InitialInterval: time.Millisecond, MaxInterval: 10 * time.Millisecond},
		})
	}
	a, b := newRepo("a"), newRepo("b")

	pa, err := a.GetPage(ctx, "ns", "page")
	require.NoError(t, err)
	put(t, pa, "from", "a")

	pb, err := b.GetPage(ctx, "ns", "page")
	require.NoError(t, err)
	put(t, pb, "also", "b")

	for _, check := range []struct {
		p        *Page
		key, val string
	}{
		{pa, "also", "b"},
		{pb, "from", "a"},
		{pa, "from", "a"},
		{pb, "also", "b"},
	} {
		check := check
		assert.Eventually(t, func() bool {
			v, ok := get(t, check.p, check.key)
			return ok && v == check.val
		}, 10*time.Second, 10*time.Millisecond, "%s=%s", check.key, check.val)
	}

	assert.Eventually(t, func() bool {
		return pa.Sync.IsIdle() && pb.Sync.IsIdle()
	}, 10*time.Second, 10*time.Millisecond)
	assert.Positive(t, provider.Page("ns", "page").Len())
}
