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
	"sort"
	"sync"
)

const fakeInboxSize = 1024

// FakeNetwork connects FakeMesh devices living in the same process.
type FakeNetwork struct {
	mu      sync.Mutex
	devices map[DeviceID]*FakeMesh
}

func NewFakeNetwork() *FakeNetwork {
	return &FakeNetwork{devices: make(map[DeviceID]*FakeMesh)}
}

// Join adds device |id| to the network and tells the others about it.
func (n *FakeNetwork) Join(id DeviceID) *FakeMesh {
	m := &FakeMesh{
		id:    id,
		net:   n,
		inbox: make(chan func(), fakeInboxSize),
		done:  make(chan struct{}),
	}
	go m.deliver()

	n.mu.Lock()
	others := n.peersLocked(id)
	n.devices[id] = m
	n.mu.Unlock()

	for _, o := range others {
		o.post(func() { o.deviceChanged(id, DeviceNew) })
	}
	return m
}

func (n *FakeNetwork) peersLocked(id DeviceID) []*FakeMesh {
	var res []*FakeMesh
	for other, m := range n.devices {
		if other != id {
			res = append(res, m)
		}
	}
	return res
}

func (n *FakeNetwork) get(id DeviceID) *FakeMesh {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.devices[id]
}

// FakeMesh is a DeviceMesh over a FakeNetwork.
type FakeMesh struct {
	id  DeviceID
	net *FakeNetwork

	mu       sync.Mutex
	onMsg    MessageHandler
	onChange DeviceChangeHandler

	// guards closed and sends on inbox
	qmu    sync.Mutex
	closed bool
	inbox  chan func()
	done   chan struct{}
}

var _ DeviceMesh = (*FakeMesh)(nil)

func (m *FakeMesh) ID() DeviceID {
	return m.id
}

func (m *FakeMesh) GetDeviceList() []DeviceID {
	m.net.mu.Lock()
	defer m.net.mu.Unlock()
	var res []DeviceID
	for id := range m.net.devices {
		if id != m.id {
			res = append(res, id)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func (m *FakeMesh) Send(device DeviceID, data []byte) error {
	to := m.net.get(device)
	if to == nil {
		return ErrUnknownDevice
	}
	msg := append([]byte(nil), data...)
	from := m.id
	if !to.post(func() {
		to.mu.Lock()
		h := to.onMsg
		to.mu.Unlock()
		if h != nil {
			h(from, msg)
		}
	}) {
		return ErrUnknownDevice
	}
	return nil
}

func (m *FakeMesh) SetOnMessage(h MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMsg = h
}

func (m *FakeMesh) SetOnDeviceChange(h DeviceChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = h
}

func (m *FakeMesh) deviceChanged(id DeviceID, change DeviceChange) {
	m.mu.Lock()
	h := m.onChange
	m.mu.Unlock()
	if h != nil {
		h(id, change)
	}
}

func (m *FakeMesh) post(fn func()) bool {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	if m.closed {
		return false
	}
	m.inbox <- fn
	return true
}

func (m *FakeMesh) deliver() {
	defer close(m.done)
	for fn := range m.inbox {
		fn()
	}
}

// Close removes the device from the network. Messages already queued for
// it are still delivered. It must not be called from a handler.
func (m *FakeMesh) Close() {
	m.net.mu.Lock()
	delete(m.net.devices, m.id)
	others := m.net.peersLocked(m.id)
	m.net.mu.Unlock()

	m.qmu.Lock()
	if m.closed {
		m.qmu.Unlock()
		return
	}
	m.closed = true
	close(m.inbox)
	m.qmu.Unlock()
	<-m.done

	for _, o := range others {
		id := m.id
		o.post(func() { o.deviceChanged(id, DeviceDeleted) })
	}
}
