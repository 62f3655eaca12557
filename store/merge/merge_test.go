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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/datas"
	"github.com/dolthub/ledger/store/db"
	"github.com/dolthub/ledger/store/hash"
	"github.com/dolthub/ledger/store/pagestorage"
	"github.com/dolthub/ledger/store/prolly/tree"
)

func clock(start int64) func() time.Time {
	var now int64 = start
	return func() time.Time {
		return time.Unix(0, atomic.AddInt64(&now, 1))
	}
}

func openPage(t *testing.T, start int64) *pagestorage.PageStorage {
	ps, err := pagestorage.Open(context.Background(), db.NewMemDB(), "ns", "page", pagestorage.Options{Clock: clock(start)})
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })
	return ps
}

// edit commits on |base|; a value of "" deletes the key.
func edit(t *testing.T, ps *pagestorage.PageStorage, base hash.Hash, kvs ...string) *datas.Commit {
	ctx := context.Background()
	j, err := ps.StartCommit(ctx, base)
	require.NoError(t, err)
	for i := 0; i < len(kvs); i += 2 {
		if kvs[i+1] == "" {
			require.NoError(t, j.Delete([]byte(kvs[i])))
			continue
		}
		id, err := ps.AddObjectFromLocal(ctx, []byte(kvs[i+1]))
		require.NoError(t, err)
		require.NoError(t, j.Put(ctx, []byte(kvs[i]), id, tree.Eager))
	}
	c, err := j.Commit(ctx)
	require.NoError(t, err)
	return c
}

func contents(t *testing.T, ps *pagestorage.PageStorage, c *datas.Commit) map[string]string {
	ctx := context.Background()
	entries, err := ps.GetEntries(ctx, c, nil)
	require.NoError(t, err)
	out := make(map[string]string)
	for _, e := range entries {
		v, err := ps.GetObject(ctx, e.ObjectID, pagestorage.Local)
		require.NoError(t, err)
		out[string(e.Key)] = string(v)
	}
	return out
}

func divergedPage(t *testing.T) (*pagestorage.PageStorage, *datas.Commit, *datas.Commit, *datas.Commit) {
	ps := openPage(t, 0)
	c1 := edit(t, ps, datas.FirstPageCommitID, "a", "1", "b", "1", "c", "1")
	older := edit(t, ps, c1.ID, "a", "2", "c", "", "d", "2")
	newer := edit(t, ps, c1.ID, "a", "3", "b", "3")
	return ps, c1, older, newer
}

func TestLastOneWins(t *testing.T) {
	ctx := context.Background()
	ps, c1, older, newer := divergedPage(t)

	for _, heads := range [][2]*datas.Commit{{older, newer}, {newer, older}} {
		m, err := LastOneWinsStrategy{}.Merge(ctx, ps, heads[0], heads[1], c1)
		require.NoError(t, err)
		assert.ElementsMatch(t, []hash.Hash{older.ID, newer.ID}, m.ParentIDs)
		assert.Equal(t, map[string]string{"a": "3", "b": "3", "d": "2"}, contents(t, ps, m))
	}
}

func TestConflictResolverStrategy(t *testing.T) {
	ctx := context.Background()
	ps, c1, older, newer := divergedPage(t)

	var conflicts []string
	s := ConflictResolverStrategy{Resolve: func(ctx context.Context, c tree.ThreeWayChange) (*tree.Entry, error) {
		conflicts = append(conflicts, string(c.Base.Key))
		return c.Left, nil
	}}
	m, err := s.Merge(ctx, ps, older, newer, c1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, conflicts)
	assert.Equal(t, map[string]string{"a": "2", "b": "3", "d": "2"}, contents(t, ps, m))
}

func TestResolveOnce(t *testing.T) {
	ctx := context.Background()
	ps, _, older, newer := divergedPage(t)
	r := NewResolver(ps, Options{})

	merged, err := r.ResolveOnce(ctx)
	require.NoError(t, err)
	assert.True(t, merged)

	heads, err := ps.GetHeadCommits(ctx)
	require.NoError(t, err)
	require.Len(t, heads, 1)
	assert.ElementsMatch(t, []hash.Hash{older.ID, newer.ID}, heads[0].ParentIDs)

	merged, err = r.ResolveOnce(ctx)
	require.NoError(t, err)
	assert.False(t, merged)
}

func TestResolverMergesNewHeads(t *testing.T) {
	ctx := context.Background()
	ps := openPage(t, 0)
	c1 := edit(t, ps, datas.FirstPageCommitID, "a", "1")

	r := NewResolver(ps, Options{InitialInterval: time.Millisecond})
	var idle int32
	r.SetOnIdle(func() { atomic.AddInt32(&idle, 1) })
	r.Start()
	defer r.Close()

	edit(t, ps, c1.ID, "b", "2")
	edit(t, ps, c1.ID, "c", "3")
	edit(t, ps, c1.ID, "d", "4")

	require.Eventually(t, func() bool {
		heads, err := ps.GetHeads(ctx)
		return err == nil && len(heads) == 1 && r.IsIdle()
	}, 5*time.Second, 5*time.Millisecond)
	assert.Greater(t, atomic.LoadInt32(&idle), int32(0))

	heads, err := ps.GetHeadCommits(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"}, contents(t, ps, heads[0]))
}

func TestMergesConvergeAcrossDevices(t *testing.T) {
	ctx := context.Background()
	a := openPage(t, 0)
	b := openPage(t, 100)

	c1 := edit(t, a, datas.FirstPageCommitID, "k", "v")
	c2a := edit(t, a, c1.ID, "k", "from a")
	c2b := edit(t, a, c1.ID, "k", "from a, later", "x", "1")

	// b learns the same history through the wire format
	delegate := &storeDelegate{from: a}
	b.SetSyncDelegate(delegate)
	var wire []pagestorage.CommitIDAndBytes
	for _, c := range []*datas.Commit{c1, c2a, c2b} {
		wire = append(wire, pagestorage.CommitIDAndBytes{ID: c.ID, Bytes: c.StorageBytes()})
	}
	require.NoError(t, b.AddCommitsFromSync(ctx, wire, pagestorage.SourceCloud))

	ma, err := NewResolver(a, Options{}).ResolveOnce(ctx)
	require.NoError(t, err)
	require.True(t, ma)
	mb, err := NewResolver(b, Options{}).ResolveOnce(ctx)
	require.NoError(t, err)
	require.True(t, mb)

	ha, err := a.GetHeads(ctx)
	require.NoError(t, err)
	hb, err := b.GetHeads(ctx)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

type storeDelegate struct {
	from *pagestorage.PageStorage
}

func (d *storeDelegate) GetObject(ctx context.Context, id chunks.ObjectIdentifier, cb func(pagestorage.FetchedObject, error)) {
	stored, err := d.from.GetStoredObject(ctx, id)
	cb(pagestorage.FetchedObject{Stored: stored, Source: pagestorage.SourceCloud}, err)
}
