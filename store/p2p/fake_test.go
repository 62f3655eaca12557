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

package p2p

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	mu      sync.Mutex
	msgs    []string
	changes []string
}

func (i *inbox) onMessage(from DeviceID, data []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, string(from)+":"+string(data))
}

func (i *inbox) onChange(d DeviceID, c DeviceChange) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.changes = append(i.changes, string(d)+":"+c.String())
}

func (i *inbox) snapshot() ([]string, []string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.msgs...), append([]string(nil), i.changes...)
}

func TestFakeMeshDelivery(t *testing.T) {
	n := NewFakeNetwork()
	a := n.Join("a")
	defer a.Close()

	var ia inbox
	a.SetOnMessage(ia.onMessage)
	a.SetOnDeviceChange(ia.onChange)

	b := n.Join("b")
	assert.Equal(t, []DeviceID{"b"}, a.GetDeviceList())
	assert.Equal(t, []DeviceID{"a"}, b.GetDeviceList())

	for _, m := range []string{"1", "2", "3"} {
		require.NoError(t, b.Send("a", []byte(m)))
	}
	require.Eventually(t, func() bool {
		msgs, _ := ia.snapshot()
		return len(msgs) == 3
	}, time.Second, 5*time.Millisecond)
	msgs, _ := ia.snapshot()
	assert.Equal(t, []string{"b:1", "b:2", "b:3"}, msgs)

	assert.ErrorIs(t, b.Send("c", []byte("x")), ErrUnknownDevice)

	b.Close()
	require.Eventually(t, func() bool {
		_, changes := ia.snapshot()
		return len(changes) == 2
	}, time.Second, 5*time.Millisecond)
	_, changes := ia.snapshot()
	assert.Equal(t, []string{"b:new", "b:deleted"}, changes)
	assert.Empty(t, a.GetDeviceList())
	assert.ErrorIs(t, a.Send("b", []byte("x")), ErrUnknownDevice)
}

func TestFakeMeshSendCopiesData(t *testing.T) {
	n := NewFakeNetwork()
	a, b := n.Join("a"), n.Join("b")
	defer a.Close()
	defer b.Close()

	got := make(chan []byte, 1)
	b.SetOnMessage(func(from DeviceID, data []byte) { got <- data })

	buf := []byte("hello")
	require.NoError(t, a.Send("b", buf))
	buf[0] = 'j'
	assert.Equal(t, []byte("hello"), <-got)
}
