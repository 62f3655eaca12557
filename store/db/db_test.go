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

package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DbTestSuite exercises the Db contract. Backend suites embed it and set Db
// in SetupTest.
type DbTestSuite struct {
	suite.Suite
	Db  Db
	ctx context.Context
}

func (s *DbTestSuite) put(kvs ...string) {
	b, err := s.Db.StartBatch(s.ctx)
	s.Require().NoError(err)
	for i := 0; i < len(kvs); i += 2 {
		s.Require().NoError(b.Put([]byte(kvs[i]), []byte(kvs[i+1])))
	}
	s.Require().NoError(b.Execute(s.ctx))
}

func (s *DbTestSuite) TestGetMissing() {
	_, err := s.Db.Get(s.ctx, []byte("nope"))
	s.ErrorIs(err, ErrNotFound)

	ok, err := s.Db.Has(s.ctx, []byte("nope"))
	s.NoError(err)
	s.False(ok)
}

func (s *DbTestSuite) TestPutGet() {
	s.put("a", "1", "b", "2", "empty", "")

	v, err := s.Db.Get(s.ctx, []byte("a"))
	s.NoError(err)
	s.Equal([]byte("1"), v)

	ok, err := s.Db.Has(s.ctx, []byte("b"))
	s.NoError(err)
	s.True(ok)

	v, err = s.Db.Get(s.ctx, []byte("empty"))
	s.NoError(err)
	s.Empty(v)
	ok, err = s.Db.Has(s.ctx, []byte("empty"))
	s.NoError(err)
	s.True(ok)
}

func (s *DbTestSuite) TestOverwriteAndDelete() {
	s.put("k", "old")
	s.put("k", "new")
	v, err := s.Db.Get(s.ctx, []byte("k"))
	s.NoError(err)
	s.Equal([]byte("new"), v)

	b, err := s.Db.StartBatch(s.ctx)
	s.Require().NoError(err)
	s.NoError(b.Delete([]byte("k")))
	s.NoError(b.Delete([]byte("never-there")))
	s.NoError(b.Execute(s.ctx))

	_, err = s.Db.Get(s.ctx, []byte("k"))
	s.ErrorIs(err, ErrNotFound)
}

func (s *DbTestSuite) TestPrefixScans() {
	s.put("p/a", "1", "p/c", "3", "p/b", "2", "q/a", "x", "p", "root")

	ok, err := s.Db.HasPrefix(s.ctx, []byte("p/"))
	s.NoError(err)
	s.True(ok)
	ok, err = s.Db.HasPrefix(s.ctx, []byte("z/"))
	s.NoError(err)
	s.False(ok)

	keys, err := s.Db.GetByPrefix(s.ctx, []byte("p/"))
	s.NoError(err)
	s.Equal([][]byte{[]byte("a"), []byte("b"), []byte("c")}, keys)

	kvs, err := s.Db.GetEntriesByPrefix(s.ctx, []byte("p/"))
	s.NoError(err)
	s.Equal([]KV{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}, kvs)

	keys, err = s.Db.GetByPrefix(s.ctx, []byte("none/"))
	s.NoError(err)
	s.Empty(keys)
}

func (s *DbTestSuite) TestBatchIsInvisibleUntilExecuted() {
	b, err := s.Db.StartBatch(s.ctx)
	s.Require().NoError(err)
	s.NoError(b.Put([]byte("a"), []byte("1")))
	s.NoError(b.Put([]byte("b"), []byte("2")))

	ok, err := s.Db.Has(s.ctx, []byte("a"))
	s.NoError(err)
	s.False(ok)

	s.NoError(b.Execute(s.ctx))
	ok, err = s.Db.Has(s.ctx, []byte("b"))
	s.NoError(err)
	s.True(ok)
}

func (s *DbTestSuite) TestBatchExecutedOnce() {
	b, err := s.Db.StartBatch(s.ctx)
	s.Require().NoError(err)
	s.NoError(b.Put([]byte("a"), []byte("1")))
	s.NoError(b.Execute(s.ctx))

	s.ErrorIs(b.Execute(s.ctx), ErrBatchExecuted)
	s.ErrorIs(b.Put([]byte("b"), []byte("2")), ErrBatchExecuted)
	s.ErrorIs(b.Delete([]byte("a")), ErrBatchExecuted)
	s.ErrorIs(b.DeleteByPrefix([]byte("a")), ErrBatchExecuted)
}

func (s *DbTestSuite) TestCancelledBatchWritesNothing() {
	b, err := s.Db.StartBatch(s.ctx)
	s.Require().NoError(err)
	s.NoError(b.Put([]byte("a"), []byte("1")))

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.ErrorIs(b.Execute(ctx), context.Canceled)

	ok, err := s.Db.Has(s.ctx, []byte("a"))
	s.NoError(err)
	s.False(ok)
}

func (s *DbTestSuite) TestDeleteByPrefix() {
	s.put("x/1", "a", "x/2", "b", "y/1", "c")

	b, err := s.Db.StartBatch(s.ctx)
	s.Require().NoError(err)
	s.NoError(b.Put([]byte("x/3"), []byte("pending")))
	s.NoError(b.DeleteByPrefix([]byte("x/")))
	s.NoError(b.Put([]byte("x/4"), []byte("after")))
	s.NoError(b.Execute(s.ctx))

	keys, err := s.Db.GetByPrefix(s.ctx, []byte("x/"))
	s.NoError(err)
	s.Equal([][]byte{[]byte("4")}, keys)

	ok, err := s.Db.Has(s.ctx, []byte("y/1"))
	s.NoError(err)
	s.True(ok)
}

func TestMemDBSuite(t *testing.T) {
	suite.Run(t, &MemDBSuite{})
}

type MemDBSuite struct {
	DbTestSuite
}

func (s *MemDBSuite) SetupTest() {
	s.ctx = context.Background()
	s.Db = NewMemDB()
}

func (s *MemDBSuite) TearDownTest() {
	s.NoError(s.Db.Close())
}

func TestMemLevelDBSuite(t *testing.T) {
	suite.Run(t, &MemLevelDBSuite{})
}

type MemLevelDBSuite struct {
	DbTestSuite
}

func (s *MemLevelDBSuite) SetupTest() {
	s.ctx = context.Background()
	ldb, err := NewMemLevelDB()
	s.Require().NoError(err)
	s.Db = ldb
}

func (s *MemLevelDBSuite) TearDownTest() {
	s.NoError(s.Db.Close())
}

// dirSuite opens an on-disk backend in a fresh temp dir per test.
type dirSuite struct {
	DbTestSuite
	backend Backend
	dir     string
}

func (s *dirSuite) SetupTest() {
	s.ctx = context.Background()
	var err error
	s.dir, err = os.MkdirTemp("", "ledger-db")
	s.Require().NoError(err)
	s.Db, err = Open(s.ctx, s.backend, filepath.Join(s.dir, "db"))
	s.Require().NoError(err)
}

func (s *dirSuite) TearDownTest() {
	s.NoError(s.Db.Close())
	os.RemoveAll(s.dir)
}

func TestLevelDBSuite(t *testing.T) {
	suite.Run(t, &dirSuite{backend: LevelDBBackend})
}

func TestBoltDBSuite(t *testing.T) {
	suite.Run(t, &dirSuite{backend: BoltBackend})
}

func TestBadgerDBSuite(t *testing.T) {
	suite.Run(t, &dirSuite{backend: BadgerBackend})
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Backend("carrier-pigeon"), t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLevelDBSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ldb, err := NewLevelDB(dir)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := ldb.StartBatch(ctx)
	b.Put([]byte("k"), []byte("v"))
	if err := b.Execute(ctx); err != nil {
		t.Fatal(err)
	}
	ldb.Close()

	ldb, err = NewLevelDB(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer ldb.Close()
	v, err := ldb.Get(ctx, []byte("k"))
	if err != nil || string(v) != "v" {
		t.Fatalf("got %q, %v", v, err)
	}
}
