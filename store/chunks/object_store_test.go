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

package chunks

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/ledger/store/db"
	"github.com/dolthub/ledger/store/hash"
)

func newTestStore() (*ObjectStore, *db.MemDB) {
	mdb := db.NewMemDB()
	return NewObjectStore(mdb, []byte("pages/ns/p1/")), mdb
}

func randomBytes(seed int64, n int) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	r.Read(b)
	return b
}

func TestAddObjectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, mdb := newTestStore()

	id1, err := s.AddObject(ctx, []byte("hello"))
	require.NoError(t, err)
	n := mdb.Len()

	id2, err := s.AddObject(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, n, mdb.Len())

	data, err := s.GetObject(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestIdentifierDependsOnType(t *testing.T) {
	data := []byte("same bytes")
	assert.NotEqual(t, ComputeObjectIdentifier(BlobObject, data), ComputeObjectIdentifier(TreeNodeObject, data))

	ctx := context.Background()
	s, _ := newTestStore()
	id, err := s.AddObjectOfType(ctx, TreeNodeObject, data)
	require.NoError(t, err)
	assert.Equal(t, ComputeObjectIdentifier(TreeNodeObject, data), id)

	typ, got, err := s.GetRawObject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, TreeNodeObject, typ)
	assert.Equal(t, data, got)
}

func TestGetMissingObject(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	id := ComputeObjectIdentifier(BlobObject, []byte("absent"))

	_, err := s.GetObject(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.HasObject(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmptyObject(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	id, err := s.AddObject(ctx, nil)
	require.NoError(t, err)
	data, err := s.GetObject(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestLargeValueIsSplit(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	value := randomBytes(1, 5*SplitThreshold+123)

	id, err := s.AddObject(ctx, value)
	require.NoError(t, err)

	typ, _, err := s.GetRawObject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, IndexObject, typ)

	pieces, err := s.References(ctx, id)
	require.NoError(t, err)
	assert.True(t, len(pieces) > 1)

	got, err := s.GetObject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, value, got)

	part, err := s.GetObjectPart(ctx, id, SplitThreshold+7, 1000)
	require.NoError(t, err)
	assert.Equal(t, value[SplitThreshold+7:SplitThreshold+1007], part)

	tail, err := s.GetObjectPart(ctx, id, int64(len(value)-10), -1)
	require.NoError(t, err)
	assert.Equal(t, value[len(value)-10:], tail)
}

func TestSplitPiecesAreShared(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	common := randomBytes(2, 4*SplitThreshold)

	a := append(append([]byte{}, common...), randomBytes(3, 100)...)
	b := append(append([]byte{}, common...), randomBytes(4, 100)...)

	idA, err := s.AddObject(ctx, a)
	require.NoError(t, err)
	idB, err := s.AddObject(ctx, b)
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)

	piecesA, err := s.References(ctx, idA)
	require.NoError(t, err)
	piecesB, err := s.References(ctx, idB)
	require.NoError(t, err)

	shared := 0
	setA := NewIdentifierSet(piecesA...)
	for _, p := range piecesB {
		if setA.Has(p) {
			shared++
		}
	}
	assert.True(t, shared >= len(piecesA)-2, "expected most pieces shared, got %d of %d", shared, len(piecesA))
}

func TestSplitValueBounds(t *testing.T) {
	data := randomBytes(5, 10*SplitThreshold)
	pieces := splitValue(data)
	total := 0
	for i, p := range pieces {
		assert.True(t, len(p) <= maxPieceSize)
		if i < len(pieces)-1 {
			assert.True(t, len(p) >= minPieceSize)
		}
		total += len(p)
	}
	assert.Equal(t, len(data), total)
}

func TestStoredObjectVerification(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestStore()
	dst, _ := newTestStore()

	id, err := src.AddObject(ctx, []byte("payload"))
	require.NoError(t, err)
	stored, err := src.GetStoredObject(ctx, id)
	require.NoError(t, err)

	bad := append([]byte{}, stored...)
	bad[len(bad)-1] ^= 0xff
	assert.ErrorIs(t, dst.AddStoredObject(ctx, id, bad), ErrDigestMismatch)

	require.NoError(t, dst.AddStoredObject(ctx, id, stored))
	got, err := dst.GetObject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestForEachObjectAndDelete(t *testing.T) {
	ctx := context.Background()
	s, mdb := newTestStore()
	ids := NewIdentifierSet()
	for i := 0; i < 10; i++ {
		id, err := s.AddObject(ctx, []byte{byte(i)})
		require.NoError(t, err)
		ids.Insert(id)
	}

	seen := NewIdentifierSet()
	require.NoError(t, s.ForEachObject(ctx, func(id ObjectIdentifier) error {
		seen.Insert(id)
		return nil
	}))
	assert.Equal(t, ids, seen)

	b, err := mdb.StartBatch(ctx)
	require.NoError(t, err)
	for id := range ids {
		require.NoError(t, s.DeleteInBatch(b, id))
	}
	require.NoError(t, b.Execute(ctx))
	assert.Equal(t, 0, mdb.Len())
}

func TestDecodeIndexRejectsGarbage(t *testing.T) {
	_, _, err := DecodeIndex([]byte("definitely not an index"))
	assert.ErrorIs(t, err, ErrInvalidObject)

	good := EncodeIndex([]ObjectIdentifier{{Digest: hash.Of([]byte("a"))}}, []uint64{1})
	pieces, sizes, err := DecodeIndex(good)
	require.NoError(t, err)
	assert.Len(t, pieces, 1)
	assert.Equal(t, []uint64{1}, sizes)

	_, _, err = DecodeIndex(good[:len(good)/2])
	assert.Error(t, err)

	assert.Panics(t, func() {
		EncodeIndex([]ObjectIdentifier{{Digest: hash.Of([]byte("a"))}}, nil)
	})
}
