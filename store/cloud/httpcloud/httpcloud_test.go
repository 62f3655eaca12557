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

package httpcloud

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/ledger/store/cloud"
	"github.com/dolthub/ledger/store/db"
)

type mockS3 map[string][]byte

func (m mockS3) GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	result, ok := m[*input.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "not here", nil)
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(result)),
	}, nil
}

func (m mockS3) PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(input.Body)
	m[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

type recorder struct {
	mu      sync.Mutex
	commits []cloud.Commit
	pos     cloud.PositionToken
	errs    int
}

func (r *recorder) OnNewCommits(commits []cloud.Commit, position cloud.PositionToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, commits...)
	r.pos = position
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs++
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commits)
}

func newTestPage(t *testing.T, objects ObjectBackend) (cloud.PageCloud, *httptest.Server) {
	srv := httptest.NewServer(NewServer(db.NewMemDB(), objects, nil))
	t.Cleanup(srv.Close)
	p := NewProvider(srv.URL, Options{PollInterval: 10 * time.Millisecond})
	pc, err := p.GetPageCloud(context.Background(), "ns", "page")
	require.NoError(t, err)
	return pc, srv
}

func TestCommitLog(t *testing.T) {
	ctx := context.Background()
	pc, _ := newTestPage(t, NewDbBackend(db.NewMemDB()))

	require.NoError(t, pc.AddCommits(ctx, []cloud.Commit{{ID: "a", Data: []byte("1")}, {ID: "b", Data: []byte("2")}}))
	require.NoError(t, pc.AddCommits(ctx, []cloud.Commit{{ID: "b", Data: []byte("2")}, {ID: "c", Data: []byte("3")}}))

	all, pos, err := pc.GetCommits(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, []byte("3"), all[2].Data)
	assert.Equal(t, cloud.PositionToken("3"), pos)

	tail, pos2, err := pc.GetCommits(ctx, "2")
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "c", tail[0].ID)
	assert.Equal(t, pos, pos2)

	none, pos3, err := pc.GetCommits(ctx, pos)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, pos, pos3)

	_, _, err = pc.GetCommits(ctx, "garbage")
	require.Error(t, err)
	assert.False(t, cloud.IsRetriable(err))
}

func TestPagesAreIsolated(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(NewServer(db.NewMemDB(), NewDbBackend(db.NewMemDB()), nil))
	defer srv.Close()
	p := NewProvider(srv.URL, Options{})

	a, err := p.GetPageCloud(ctx, "ns", "a")
	require.NoError(t, err)
	b, err := p.GetPageCloud(ctx, "ns", "ab")
	require.NoError(t, err)

	require.NoError(t, a.AddCommits(ctx, []cloud.Commit{{ID: "x"}}))
	require.NoError(t, a.AddObject(ctx, "o", []byte("data")))

	commits, _, err := b.GetCommits(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, commits)
	_, err = b.GetObject(ctx, "o")
	assert.True(t, errors.Is(err, cloud.ErrNotFound))

	_, err = p.GetPageCloud(ctx, "", "a")
	assert.Error(t, err)
}

func TestObjects(t *testing.T) {
	ctx := context.Background()
	for name, backend := range map[string]ObjectBackend{
		"db": NewDbBackend(db.NewMemDB()),
		"s3": S3Backend{bucket: "bucket", prefix: "ledger", svc: mockS3{}},
	} {
		t.Run(name, func(t *testing.T) {
			pc, _ := newTestPage(t, backend)

			_, err := pc.GetObject(ctx, "missing")
			require.Error(t, err)
			assert.True(t, errors.Is(err, cloud.ErrNotFound))

			require.NoError(t, pc.AddObject(ctx, "bafk", []byte("payload")))
			data, err := pc.GetObject(ctx, "bafk")
			require.NoError(t, err)
			assert.Equal(t, []byte("payload"), data)
		})
	}
}

func TestS3BackendKeys(t *testing.T) {
	ctx := context.Background()
	m := mockS3{}
	b := S3Backend{bucket: "bucket", prefix: "ledger", svc: m}

	require.NoError(t, b.Put(ctx, "k", []byte("v")))
	assert.Equal(t, []byte("v"), m["ledger/k"])

	_, err := b.Get(ctx, "other")
	assert.True(t, errors.Is(err, cloud.ErrNotFound))

	_, err = NewS3Backend("bucket", "", "us-west-2", "no-colon")
	assert.Error(t, err)
}

func TestWatcherPolls(t *testing.T) {
	ctx := context.Background()
	pc, _ := newTestPage(t, NewDbBackend(db.NewMemDB()))
	require.NoError(t, pc.AddCommits(ctx, []cloud.Commit{{ID: "a"}}))

	r := &recorder{}
	cancel := pc.SetWatcher("1", r)
	defer cancel()

	require.NoError(t, pc.AddCommits(ctx, []cloud.Commit{{ID: "b"}, {ID: "c"}}))
	require.Eventually(t, func() bool { return r.count() == 2 }, 5*time.Second, 10*time.Millisecond)

	r.mu.Lock()
	assert.Equal(t, "b", r.commits[0].ID)
	assert.Equal(t, cloud.PositionToken("3"), r.pos)
	r.mu.Unlock()

	cancel()
	require.NoError(t, pc.AddCommits(ctx, []cloud.Commit{{ID: "d"}}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, r.count())
}

func TestServerUnreachable(t *testing.T) {
	ctx := context.Background()
	pc, srv := newTestPage(t, NewDbBackend(db.NewMemDB()))
	srv.Close()

	err := pc.AddCommits(ctx, []cloud.Commit{{ID: "a"}})
	require.Error(t, err)
	assert.True(t, cloud.IsRetriable(err))

	_, err = pc.GetObject(ctx, "x")
	assert.True(t, errors.Is(err, cloud.ErrNetwork))

	r := &recorder{}
	cancel := pc.SetWatcher("", r)
	defer cancel()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.errs > 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRejectsCommitsWithoutID(t *testing.T) {
	pc, _ := newTestPage(t, NewDbBackend(db.NewMemDB()))
	err := pc.AddCommits(context.Background(), []cloud.Commit{{Data: []byte("x")}})
	require.Error(t, err)
	assert.False(t, cloud.IsRetriable(err))
}

func TestObjectSizeLimit(t *testing.T) {
	s := NewServer(db.NewMemDB(), NewDbBackend(db.NewMemDB()), nil)
	s.SetMaxObjectSize(4)
	srv := httptest.NewServer(s)
	defer srv.Close()
	ctx := context.Background()
	pc, err := NewProvider(srv.URL, Options{}).GetPageCloud(ctx, "ns", "page")
	require.NoError(t, err)

	require.NoError(t, pc.AddObject(ctx, "small", []byte("abcd")))
	err = pc.AddObject(ctx, "large", []byte("abcde"))
	require.Error(t, err)
	assert.False(t, cloud.IsRetriable(err))
	_, err = pc.GetObject(ctx, "large")
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}
