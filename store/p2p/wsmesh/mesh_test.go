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

package wsmesh

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/ledger/store/p2p"
)

type received struct {
	mu      sync.Mutex
	msgs    []string
	changes []string
}

func (r *received) onMessage(from p2p.DeviceID, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, string(from)+":"+string(data))
}

func (r *received) onChange(d p2p.DeviceID, c p2p.DeviceChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, string(d)+":"+c.String())
}

func (r *received) get() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...), append([]string(nil), r.changes...)
}

func testOptions(name string, peers ...string) Options {
	return Options{
		Name:         name,
		Peers:        peers,
		PingInterval: 20 * time.Millisecond,
		MinReconnect: 10 * time.Millisecond,
		MaxReconnect: 50 * time.Millisecond,
	}
}

func TestMeshExchangesMessages(t *testing.T) {
	b := New(testOptions("b"))
	var rb received
	b.SetOnMessage(rb.onMessage)
	b.SetOnDeviceChange(rb.onChange)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()
	defer b.Close()

	a := New(testOptions("a", "ws"+strings.TrimPrefix(srv.URL, "http")))
	var ra received
	a.SetOnMessage(ra.onMessage)
	a.Start()

	require.Eventually(t, func() bool {
		return len(a.GetDeviceList()) == 1 && len(b.GetDeviceList()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []p2p.DeviceID{"b"}, a.GetDeviceList())
	assert.Equal(t, []p2p.DeviceID{"a"}, b.GetDeviceList())

	require.NoError(t, a.Send("b", []byte("one")))
	require.NoError(t, a.Send("b", []byte("two")))
	require.NoError(t, b.Send("a", []byte("back")))

	require.Eventually(t, func() bool {
		msgs, _ := rb.get()
		return len(msgs) == 2
	}, 5*time.Second, 10*time.Millisecond)
	msgs, _ := rb.get()
	assert.Equal(t, []string{"a:one", "a:two"}, msgs)
	require.Eventually(t, func() bool {
		msgs, _ := ra.get()
		return len(msgs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, a.Send("c", []byte("x")), p2p.ErrUnknownDevice)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		_, changes := rb.get()
		return len(changes) == 2
	}, 5*time.Second, 10*time.Millisecond)
	_, changes := rb.get()
	assert.Equal(t, []string{"a:new", "a:deleted"}, changes)
	assert.Empty(t, b.GetDeviceList())
}

func TestMeshReconnects(t *testing.T) {
	b := New(testOptions("b"))
	var rb received
	b.SetOnDeviceChange(rb.onChange)
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()
	defer b.Close()

	a := New(testOptions("a", "ws"+strings.TrimPrefix(srv.URL, "http")))
	defer a.Close()
	a.Start()

	require.Eventually(t, func() bool { return len(a.GetDeviceList()) == 1 }, 5*time.Second, 10*time.Millisecond)

	// Dropping b's side of the link makes a dial again.
	b.mu.Lock()
	for _, c := range b.conns {
		c.ws.Close()
	}
	b.mu.Unlock()

	require.Eventually(t, func() bool {
		_, changes := rb.get()
		return len(changes) == 3 && len(a.GetDeviceList()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	_, changes := rb.get()
	assert.Equal(t, []string{"a:new", "a:deleted", "a:new"}, changes)
}

func TestMeshRejectsSelf(t *testing.T) {
	a := New(testOptions("a"))
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()
	defer a.Close()

	_, _, err := a.dial("ws" + strings.TrimPrefix(srv.URL, "http"))
	assert.Error(t, err)
}
