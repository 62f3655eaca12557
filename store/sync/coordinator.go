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

// Package sync coordinates the ways a page is synchronized: through the
// cloud, directly with peers, and by merging the heads they bring.
package sync

import (
	"context"
	gosync "sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/merge"
	"github.com/dolthub/ledger/store/pagestorage"
	"github.com/dolthub/ledger/store/sync/cloudsync"
	"github.com/dolthub/ledger/store/sync/p2psync"
)

type State = cloudsync.State

const (
	Idle       = cloudsync.Idle
	Pending    = cloudsync.Pending
	InProgress = cloudsync.InProgress
	Error      = cloudsync.Error
)

// SyncStateWatcher is told about the download and upload states of a page.
type SyncStateWatcher interface {
	OnSyncStateChanged(download, upload State)
}

type SyncStateWatcherFunc func(download, upload State)

func (f SyncStateWatcherFunc) OnSyncStateChanged(download, upload State) {
	f(download, upload)
}

// PageSyncCoordinator runs the syncs of one page. Any of them may be nil.
type PageSyncCoordinator struct {
	ps       *pagestorage.PageStorage
	cloud    *cloudsync.PageSync
	p2p      *p2psync.PageCommunicator
	resolver *merge.Resolver
	log      *logrus.Entry

	mu       gosync.Mutex
	onIdle   func()
	watcher  SyncStateWatcher
	wasIdle  bool
	started  bool
	download State
	upload   State
}

var _ pagestorage.SyncDelegate = (*PageSyncCoordinator)(nil)

func NewPageSyncCoordinator(ps *pagestorage.PageStorage, cloud *cloudsync.PageSync, p2p *p2psync.PageCommunicator, resolver *merge.Resolver, log *logrus.Entry) *PageSyncCoordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PageSyncCoordinator{
		ps:       ps,
		cloud:    cloud,
		p2p:      p2p,
		resolver: resolver,
		log:      log.WithFields(logrus.Fields{"component": "sync", "page": ps.PageID()}),
		wasIdle:  true,
	}
}

// Start makes the coordinator the page's object source and starts every
// sync.
func (c *PageSyncCoordinator) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.ps.SetSyncDelegate(c)
	if c.resolver != nil {
		c.resolver.SetOnIdle(c.stateChanged)
		c.resolver.Start()
	}
	if c.p2p != nil {
		c.p2p.Start()
	}
	if c.cloud != nil {
		c.cloud.SetOnStateChange(c.stateChanged)
		c.cloud.Start()
	}
}

// Close stops every sync.
func (c *PageSyncCoordinator) Close() {
	if c.cloud != nil {
		c.cloud.Close()
	}
	if c.p2p != nil {
		c.p2p.Close()
	}
	if c.resolver != nil {
		c.resolver.Close()
	}
	c.ps.SetSyncDelegate(nil)
}

// IsIdle returns true when nothing is left to download, upload or merge.
// A sync in the Error state is not idle.
func (c *PageSyncCoordinator) IsIdle() bool {
	if c.cloud != nil && !c.cloud.IsIdle() {
		return false
	}
	if c.resolver != nil && !c.resolver.IsIdle() {
		return false
	}
	return true
}

// SetOnIdle sets a callback called every time the page becomes idle.
func (c *PageSyncCoordinator) SetOnIdle(cb func()) {
	c.mu.Lock()
	c.onIdle = cb
	c.mu.Unlock()
}

// SetOnBacklogDownloaded sets a callback called once the commits the cloud
// had when syncing started are on the page. Without a cloud it is called
// right away.
func (c *PageSyncCoordinator) SetOnBacklogDownloaded(cb func()) {
	if c.cloud == nil {
		cb()
		return
	}
	c.cloud.SetOnBacklogDownloaded(cb)
}

// SetSyncWatcher sets the watcher of the sync states and tells it the
// current ones.
func (c *PageSyncCoordinator) SetSyncWatcher(w SyncStateWatcher) {
	c.mu.Lock()
	c.watcher = w
	c.mu.Unlock()
	d, u := c.states()
	if w != nil {
		w.OnSyncStateChanged(d, u)
	}
}

func (c *PageSyncCoordinator) states() (download, upload State) {
	if c.cloud == nil {
		return Idle, Idle
	}
	return c.cloud.States()
}

func (c *PageSyncCoordinator) stateChanged() {
	d, u := c.states()
	idle := c.IsIdle()

	c.mu.Lock()
	w := c.watcher
	notifyState := d != c.download || u != c.upload
	c.download, c.upload = d, u
	becameIdle := idle && !c.wasIdle
	c.wasIdle = idle
	onIdle := c.onIdle
	c.mu.Unlock()

	if notifyState && w != nil {
		w.OnSyncStateChanged(d, u)
	}
	if becameIdle {
		c.log.Debug("page idle")
		if onIdle != nil {
			onIdle()
		}
	}
}

// GetObject asks peers first, then the cloud.
func (c *PageSyncCoordinator) GetObject(ctx context.Context, id chunks.ObjectIdentifier, cb func(pagestorage.FetchedObject, error)) {
	fromCloud := func(prev error) {
		if c.cloud == nil {
			if prev == nil {
				prev = errors.Wrapf(pagestorage.ErrNotFound, "object %s: no sync configured", id)
			}
			cb(pagestorage.FetchedObject{}, prev)
			return
		}
		c.cloud.GetObject(ctx, id, cb)
	}
	if c.p2p == nil {
		fromCloud(nil)
		return
	}
	c.p2p.GetObject(ctx, id, func(f pagestorage.FetchedObject, err error) {
		if err == nil {
			cb(f, nil)
			return
		}
		c.log.WithError(err).WithField("object", id.String()).Trace("not found on peers")
		fromCloud(err)
	})
}
