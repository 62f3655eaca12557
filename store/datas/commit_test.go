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
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/hash"
)

type memGetter map[hash.Hash]*Commit

func (m memGetter) GetCommit(ctx context.Context, id hash.Hash) (*Commit, error) {
	c, ok := m[id]
	if !ok {
		return nil, errors.Errorf("no commit %s", id)
	}
	return c, nil
}

func (m memGetter) add(c *Commit) *Commit {
	m[c.ID] = c
	return c
}

func root(s string) chunks.ObjectIdentifier {
	return chunks.ComputeObjectIdentifier(chunks.TreeNodeObject, []byte(s))
}

func mustCommit(t *testing.T, g memGetter, ts int64, r string, parents ...*Commit) *Commit {
	c, err := NewCommit(parents, root(r), ts)
	require.NoError(t, err)
	return g.add(c)
}

func TestGenesisCommit(t *testing.T) {
	g := NewGenesisCommit(root("empty"))
	assert.Equal(t, FirstPageCommitID, g.ID)
	assert.True(t, g.IsGenesis())
	assert.Equal(t, uint64(0), g.Generation)
	assert.Empty(t, g.ParentIDs)

	parsed, err := CommitFromStorageBytes(FirstPageCommitID, g.StorageBytes())
	require.NoError(t, err)
	assert.Equal(t, g.RootNode, parsed.RootNode)
}

func TestCommitRoundTripAndIdentity(t *testing.T) {
	g := memGetter{}
	genesis := g.add(NewGenesisCommit(root("empty")))
	c1 := mustCommit(t, g, 100, "r1", genesis)

	assert.Equal(t, uint64(1), c1.Generation)
	assert.Equal(t, []hash.Hash{FirstPageCommitID}, c1.ParentIDs)
	assert.Equal(t, hash.Of(c1.StorageBytes()), c1.ID)

	parsed, err := CommitFromStorageBytes(c1.ID, c1.StorageBytes())
	require.NoError(t, err)
	assert.Equal(t, c1.ID, parsed.ID)
	assert.Equal(t, c1.RootNode, parsed.RootNode)
	assert.Equal(t, c1.ParentIDs, parsed.ParentIDs)
	assert.Equal(t, c1.Timestamp, parsed.Timestamp)
	assert.Equal(t, c1.Generation, parsed.Generation)

	same, err := NewCommit([]*Commit{genesis}, root("r1"), 100)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, same.ID, "equivalent commits converge")

	_, err = CommitFromStorageBytes(hash.Of([]byte("other")), c1.StorageBytes())
	assert.ErrorIs(t, err, ErrParse)
	_, err = CommitFromStorageBytes(c1.ID, []byte("garbage garbage"))
	assert.ErrorIs(t, err, ErrParse)
	_, err = CommitFromStorageBytes(FirstPageCommitID, c1.StorageBytes())
	assert.ErrorIs(t, err, ErrParse)
}

func TestMergeCommit(t *testing.T) {
	g := memGetter{}
	genesis := g.add(NewGenesisCommit(root("empty")))
	c1 := mustCommit(t, g, 10, "r1", genesis)
	a := mustCommit(t, g, 20, "a", c1)
	b := mustCommit(t, g, 30, "b", c1)
	b2 := mustCommit(t, g, 40, "b2", b)

	m1, err := NewCommit([]*Commit{a, b2}, root("merged"), 999)
	require.NoError(t, err)
	m2, err := NewCommit([]*Commit{b2, a}, root("merged"), 12345)
	require.NoError(t, err)

	assert.True(t, m1.IsMerge())
	assert.Equal(t, m1.ID, m2.ID, "merges of the same heads converge")
	assert.Equal(t, int64(40), m1.Timestamp)
	assert.Equal(t, uint64(4), m1.Generation)
	require.NoError(t, CheckGeneration(m1, []*Commit{a, b2}))

	_, err = NewCommit([]*Commit{a, a}, root("x"), 1)
	assert.Error(t, err)
	_, err = NewCommit(nil, root("x"), 1)
	assert.Error(t, err)
}

func TestGenerationMonotonicity(t *testing.T) {
	g := memGetter{}
	genesis := g.add(NewGenesisCommit(root("empty")))
	heads := []*Commit{genesis}
	for i := 0; i < 20; i++ {
		var parents []*Commit
		if i%3 == 2 && len(heads) >= 2 {
			parents = heads[len(heads)-2:]
		} else {
			parents = heads[len(heads)-1:]
		}
		c := mustCommit(t, g, int64(i), string(rune('a'+i)), parents...)
		require.NoError(t, CheckGeneration(c, parents))
		heads = append(heads, c)
	}
}

func TestGetAncestors(t *testing.T) {
	g := memGetter{}
	genesis := g.add(NewGenesisCommit(root("empty")))
	c1 := mustCommit(t, g, 1, "1", genesis)
	a := mustCommit(t, g, 2, "a", c1)
	b := mustCommit(t, g, 3, "b", c1)
	m := mustCommit(t, g, 0, "m", a, b)

	it, err := GetAncestors(context.Background(), g, m)
	require.NoError(t, err)
	var got []*Commit
	for {
		c, err := it.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, c)
	}
	require.Len(t, got, 4)
	assert.Equal(t, genesis.ID, got[3].ID)
	assert.Equal(t, c1.ID, got[2].ID)
	assert.ElementsMatch(t, []hash.Hash{a.ID, b.ID}, []hash.Hash{got[0].ID, got[1].ID})

	dangling := mustCommit(t, memGetter{}, 5, "d", b)
	dangling2, err := NewCommit([]*Commit{dangling}, root("d2"), 6)
	require.NoError(t, err)
	it, err = GetAncestors(context.Background(), g, dangling2)
	assert.ErrorIs(t, err, ErrDanglingCommit)
	assert.Nil(t, it)
}

func TestFindCommonAncestorAndIsAncestor(t *testing.T) {
	ctx := context.Background()
	g := memGetter{}
	genesis := g.add(NewGenesisCommit(root("empty")))
	c1 := mustCommit(t, g, 1, "1", genesis)
	a1 := mustCommit(t, g, 2, "a1", c1)
	a2 := mustCommit(t, g, 3, "a2", a1)
	b1 := mustCommit(t, g, 4, "b1", c1)

	common, ok, err := FindCommonAncestor(ctx, g, a2, b1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c1.ID, common.ID)

	common, ok, err = FindCommonAncestor(ctx, g, a2, a1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a1.ID, common.ID)

	yes, err := IsAncestor(ctx, g, c1, a2)
	require.NoError(t, err)
	assert.True(t, yes)
	no, err := IsAncestor(ctx, g, b1, a2)
	require.NoError(t, err)
	assert.False(t, no)
	self, err := IsAncestor(ctx, g, a2, a2)
	require.NoError(t, err)
	assert.True(t, self)
}

func TestTopologicallySortCommits(t *testing.T) {
	g := memGetter{}
	genesis := g.add(NewGenesisCommit(root("empty")))
	c1 := mustCommit(t, g, 1, "1", genesis)
	c2 := mustCommit(t, g, 2, "2", c1)
	c3 := mustCommit(t, g, 3, "3", c2)

	sorted := TopologicallySortCommits([]*Commit{c3, c1, c2})
	assert.Equal(t, []*Commit{c1, c2, c3}, sorted)
}

func TestSortByTimestamp(t *testing.T) {
	g := memGetter{}
	genesis := g.add(NewGenesisCommit(root("empty")))
	late := mustCommit(t, g, 50, "late", genesis)
	early := mustCommit(t, g, 5, "early", genesis)
	commits := []*Commit{late, early}
	SortByTimestamp(commits)
	assert.Equal(t, []*Commit{early, late}, commits)
}
