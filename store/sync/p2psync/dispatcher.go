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

// Package p2psync synchronizes pages directly between devices of a mesh.
//
// A device interested in a page sends WatchStart to its peers. Peers that
// have the page answer with their heads and from then on push every new
// commit. Missing ancestors are requested with CommitRequest, objects with
// ObjectRequest. Requests for pages a device does not have are answered
// with the UnknownPage status.
package p2psync

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dolthub/ledger/store/p2p"
)

type pageKey struct {
	namespace string
	page      string
}

// Dispatcher routes the messages of a mesh to the communicators of the
// pages they are about.
type Dispatcher struct {
	mesh p2p.DeviceMesh
	log  *logrus.Entry

	mu    sync.Mutex
	pages map[pageKey]*PageCommunicator
}

func NewDispatcher(mesh p2p.DeviceMesh, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	d := &Dispatcher{
		mesh:  mesh,
		log:   log.WithField("component", "p2p"),
		pages: make(map[pageKey]*PageCommunicator),
	}
	mesh.SetOnMessage(d.onMessage)
	mesh.SetOnDeviceChange(d.onDeviceChange)
	return d
}

func (d *Dispatcher) register(pc *PageCommunicator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[pc.key] = pc
}

func (d *Dispatcher) unregister(pc *PageCommunicator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pages[pc.key] == pc {
		delete(d.pages, pc.key)
	}
}

func (d *Dispatcher) page(k pageKey) *PageCommunicator {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages[k]
}

func (d *Dispatcher) send(to p2p.DeviceID, m *message) {
	if err := d.mesh.Send(to, m.encode()); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{"device": to, "kind": m.kind.String()}).Debug("send failed")
	}
}

func (d *Dispatcher) onMessage(from p2p.DeviceID, data []byte) {
	m, err := decodeMessage(data)
	if err != nil {
		d.log.WithError(err).WithField("device", from).Warn("dropping message")
		return
	}
	pc := d.page(pageKey{m.namespace, m.page})
	if pc == nil {
		if m.isRequest() {
			d.send(from, m.unknownPageReply())
		}
		return
	}
	pc.onMessage(from, m)
}

func (d *Dispatcher) onDeviceChange(device p2p.DeviceID, change p2p.DeviceChange) {
	d.mu.Lock()
	pcs := make([]*PageCommunicator, 0, len(d.pages))
	for _, pc := range d.pages {
		pcs = append(pcs, pc)
	}
	d.mu.Unlock()
	for _, pc := range pcs {
		pc.onDeviceChange(device, change)
	}
}
