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

package p2psync

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/ledger/gen/fb/serial"
	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/datas"
	"github.com/dolthub/ledger/store/db"
	"github.com/dolthub/ledger/store/hash"
	"github.com/dolthub/ledger/store/p2p"
	"github.com/dolthub/ledger/store/pagestorage"
	"github.com/dolthub/ledger/store/prolly/tree"
)

const waitFor = 5 * time.Second

type device struct {
	mesh *p2p.FakeMesh
	d    *Dispatcher
	ps   *pagestorage.PageStorage
	pc   *PageCommunicator
}

func join(t *testing.T, n *p2p.FakeNetwork, name string) *device {
	mesh := n.Join(p2p.DeviceID(name))
	t.Cleanup(mesh.Close)
	return &device{mesh: mesh, d: NewDispatcher(mesh, nil)}
}

func (dev *device) open(t *testing.T, page string) {
	ps, err := pagestorage.Open(context.Background(), db.NewMemDB(), "ns", page, pagestorage.Options{})
	require.NoError(t, err)
	dev.ps = ps
	dev.pc = NewPageCommunicator(dev.d, ps, Options{RequestTimeout: time.Second})
	ps.SetSyncDelegate(dev.pc)
	t.Cleanup(func() {
		dev.pc.Close()
		ps.Close()
	})
}

func (dev *device) commit(t *testing.T, priority tree.Priority, kvs ...string) *datas.Commit {
	ctx := context.Background()
	j, err := dev.ps.StartTransaction(ctx)
	require.NoError(t, err)
	for i := 0; i < len(kvs); i += 2 {
		id, err := dev.ps.AddObjectFromLocal(ctx, []byte(kvs[i+1]))
		require.NoError(t, err)
		require.NoError(t, j.Put(ctx, []byte(kvs[i]), id, priority))
	}
	c, err := j.Commit(ctx)
	require.NoError(t, err)
	return c
}

func (dev *device) hasHead(id hash.Hash) bool {
	ids, err := dev.ps.GetHeads(context.Background())
	if err != nil {
		return false
	}
	return hash.HashSlice(ids).HashSet().Has(id)
}

func (dev *device) value(t *testing.T, c *datas.Commit, key string, loc pagestorage.Location) (string, error) {
	ctx := context.Background()
	e, err := dev.ps.GetEntry(ctx, c, []byte(key))
	require.NoError(t, err)
	v, err := dev.ps.GetObject(ctx, e.ObjectID, loc)
	return string(v), err
}

func TestMessageEncoding(t *testing.T) {
	m := &message{
		kind:      serial.MessageKindObjectResponse,
		namespace: "ns",
		page:      "page",
		requestID: []byte{1, 2, 3},
		objects: []payload{
			{id: []byte("a"), data: []byte("payload"), found: true},
			{id: []byte("b")},
		},
	}
	got, err := decodeMessage(m.encode())
	require.NoError(t, err)
	assert.Equal(t, m.kind, got.kind)
	assert.Equal(t, "ns", got.namespace)
	assert.Equal(t, "page", got.page)
	assert.Equal(t, serial.ResponseStatusOk, got.status)
	assert.Equal(t, m.requestID, got.requestID)
	require.Len(t, got.objects, 2)
	assert.Equal(t, []byte("payload"), got.objects[0].data)
	assert.True(t, got.objects[0].found)
	assert.False(t, got.objects[1].found)
	assert.Empty(t, got.commits)

	reply := got.unknownPageReply()
	assert.Equal(t, serial.ResponseStatusUnknownPage, reply.status)
	assert.Equal(t, m.requestID, reply.requestID)

	_, err = decodeMessage([]byte("definitely not a message"))
	assert.True(t, errors.Is(err, ErrParse))
	_, err = decodeMessage((&message{kind: serial.MessageKindWatchStart, namespace: "ns"}).encode())
	assert.True(t, errors.Is(err, ErrParse))
}

func TestHeadsExchangedOnWatchStart(t *testing.T) {
	n := p2p.NewFakeNetwork()
	a, b := join(t, n, "a"), join(t, n, "b")
	a.open(t, "page")
	b.open(t, "page")

	c1 := a.commit(t, tree.Eager, "k1", "v1")
	c2 := a.commit(t, tree.Eager, "k2", "v2")
	c3 := a.commit(t, tree.Eager, "k3", "v3")

	a.pc.Start()
	b.pc.Start()

	// b only hears about c3 and has to ask for its ancestors
	require.Eventually(t, func() bool { return b.hasHead(c3.ID) }, waitFor, 5*time.Millisecond)
	for _, c := range []*datas.Commit{c1, c2} {
		ok, err := b.ps.HasCommit(context.Background(), c.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	v, err := b.value(t, c3, "k1", pagestorage.Local)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	// peer commits are uploaded to the cloud later
	synced, err := b.ps.IsSynced(context.Background())
	require.NoError(t, err)
	assert.False(t, synced)

	assert.Equal(t, []p2p.DeviceID{"b"}, a.pc.Peers())
	assert.Equal(t, []p2p.DeviceID{"a"}, b.pc.Peers())
}

func TestNewCommitsArePushed(t *testing.T) {
	n := p2p.NewFakeNetwork()
	a, b := join(t, n, "a"), join(t, n, "b")
	a.open(t, "page")
	b.open(t, "page")
	a.pc.Start()
	b.pc.Start()
	require.Eventually(t, func() bool {
		return len(a.pc.Peers()) == 1 && len(b.pc.Peers()) == 1
	}, waitFor, 5*time.Millisecond)

	c1 := a.commit(t, tree.Eager, "k", "from a")
	require.Eventually(t, func() bool { return b.hasHead(c1.ID) }, waitFor, 5*time.Millisecond)

	c2 := b.commit(t, tree.Eager, "k", "from b")
	require.Eventually(t, func() bool { return a.hasHead(c2.ID) }, waitFor, 5*time.Millisecond)
	v, err := a.value(t, c2, "k", pagestorage.Local)
	require.NoError(t, err)
	assert.Equal(t, "from b", v)
}

func TestDivergentPeersServeEachOther(t *testing.T) {
	n := p2p.NewFakeNetwork()
	a, b := join(t, n, "a"), join(t, n, "b")
	a.open(t, "page")
	b.open(t, "page")
	// a stalled exchange would wait out the timeout many times over
	a.pc.timeout = time.Minute
	b.pc.timeout = time.Minute

	ca := a.commit(t, tree.Eager, "k", "from a", "a-only", "1")
	cb := b.commit(t, tree.Eager, "k", "from b", "b-only", "2")

	a.pc.Start()
	b.pc.Start()
	require.Eventually(t, func() bool {
		return a.hasHead(cb.ID) && b.hasHead(ca.ID)
	}, waitFor, 5*time.Millisecond)

	assert.True(t, a.hasHead(ca.ID))
	assert.True(t, b.hasHead(cb.ID))
	v, err := a.value(t, cb, "b-only", pagestorage.Local)
	require.NoError(t, err)
	assert.Equal(t, "2", v)
	v, err = b.value(t, ca, "a-only", pagestorage.Local)
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestLazyObjectFetchedFromPeer(t *testing.T) {
	n := p2p.NewFakeNetwork()
	a, b := join(t, n, "a"), join(t, n, "b")
	a.open(t, "page")
	b.open(t, "page")

	c1 := a.commit(t, tree.Lazy, "k", "lazy")
	a.pc.Start()
	b.pc.Start()
	require.Eventually(t, func() bool { return b.hasHead(c1.ID) }, waitFor, 5*time.Millisecond)

	_, err := b.value(t, c1, "k", pagestorage.Local)
	assert.True(t, errors.Is(err, pagestorage.ErrNotFound))
	v, err := b.value(t, c1, "k", pagestorage.Network)
	require.NoError(t, err)
	assert.Equal(t, "lazy", v)
}

func TestUnknownPage(t *testing.T) {
	n := p2p.NewFakeNetwork()
	a, b, c := join(t, n, "a"), join(t, n, "b"), join(t, n, "c")
	a.open(t, "page")
	b.open(t, "page")
	c.open(t, "other")
	a.pc.Start()
	b.pc.Start()
	c.pc.Start()

	require.Eventually(t, func() bool {
		return len(a.pc.Peers()) == 1 && len(b.pc.Peers()) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []p2p.DeviceID{"b"}, a.pc.Peers())
	assert.Empty(t, c.pc.Peers())

	// an object request to a device without the page fails fast
	req := a.pc.newMessage(serial.MessageKindObjectRequest)
	req.objects = []payload{{id: make([]byte, hash.ByteLen)}}
	_, err := a.pc.request(context.Background(), "c", req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not have the page")
}

func TestCloseStopsWatching(t *testing.T) {
	n := p2p.NewFakeNetwork()
	a, b := join(t, n, "a"), join(t, n, "b")
	a.open(t, "page")
	b.open(t, "page")
	a.pc.Start()
	b.pc.Start()
	require.Eventually(t, func() bool { return len(a.pc.Peers()) == 1 }, waitFor, 5*time.Millisecond)

	b.pc.Close()
	require.Eventually(t, func() bool {
		a.pc.mu.Lock()
		defer a.pc.mu.Unlock()
		return len(a.pc.watchers) == 0
	}, waitFor, 5*time.Millisecond)

	_, err := b.pc.fetchObject(context.Background(), chunks.ComputeObjectIdentifier(chunks.BlobObject, []byte("x")))
	assert.Error(t, err)
}
