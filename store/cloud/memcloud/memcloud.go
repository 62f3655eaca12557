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

// Package memcloud is an in-process cloud. It is used by tests and by
// devices syncing within one process.
package memcloud

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/dolthub/ledger/store/cloud"
)

// Provider holds the pages of an in-memory cloud.
type Provider struct {
	mu    sync.Mutex
	pages map[string]*Page
}

var _ cloud.Provider = (*Provider)(nil)

func NewProvider() *Provider {
	return &Provider{pages: make(map[string]*Page)}
}

func (p *Provider) GetPageCloud(ctx context.Context, namespace, pageID string) (cloud.PageCloud, error) {
	return p.Page(namespace, pageID), nil
}

// Page returns the cloud of a page, creating it if needed.
func (p *Provider) Page(namespace, pageID string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := namespace + "/" + pageID
	pg, ok := p.pages[key]
	if !ok {
		pg = &Page{
			ids:      make(map[string]struct{}),
			objects:  make(map[string][]byte),
			watchers: make(map[int]*watcher),
		}
		p.pages[key] = pg
	}
	return pg
}

type watcher struct {
	w     cloud.Watcher
	after int
}

// Page is the cloud of one page.
type Page struct {
	mu       sync.Mutex
	log      []cloud.Commit
	ids      map[string]struct{}
	objects  map[string][]byte
	watchers map[int]*watcher
	nextID   int
	failures int
}

var _ cloud.PageCloud = (*Page)(nil)

// FailNext makes the next |n| calls fail with cloud.ErrNetwork.
func (pg *Page) FailNext(n int) {
	pg.mu.Lock()
	pg.failures = n
	pg.mu.Unlock()
}

func (pg *Page) failLocked() error {
	if pg.failures > 0 {
		pg.failures--
		return errors.Wrap(cloud.ErrNetwork, "injected failure")
	}
	return nil
}

// Len returns the number of commits in the log.
func (pg *Page) Len() int {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return len(pg.log)
}

// ObjectCount returns the number of stored objects.
func (pg *Page) ObjectCount() int {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return len(pg.objects)
}

func position(i int) cloud.PositionToken {
	return cloud.PositionToken(strconv.Itoa(i))
}

func parsePosition(t cloud.PositionToken) (int, error) {
	if t == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(string(t))
	if err != nil || i < 0 {
		return 0, errors.Errorf("bad position token %q", t)
	}
	return i, nil
}

func (pg *Page) AddCommits(ctx context.Context, commits []cloud.Commit) error {
	pg.mu.Lock()
	if err := pg.failLocked(); err != nil {
		pg.mu.Unlock()
		return err
	}
	for _, c := range commits {
		if _, ok := pg.ids[c.ID]; ok {
			continue
		}
		pg.ids[c.ID] = struct{}{}
		pg.log = append(pg.log, cloud.Commit{ID: c.ID, Data: append([]byte(nil), c.Data...)})
	}
	type delivery struct {
		w       cloud.Watcher
		commits []cloud.Commit
	}
	var out []delivery
	for _, w := range pg.watchers {
		if w.after < len(pg.log) {
			out = append(out, delivery{w.w, append([]cloud.Commit(nil), pg.log[w.after:]...)})
			w.after = len(pg.log)
		}
	}
	pos := position(len(pg.log))
	pg.mu.Unlock()

	for _, d := range out {
		d.w.OnNewCommits(d.commits, pos)
	}
	return nil
}

func (pg *Page) GetCommits(ctx context.Context, after cloud.PositionToken) ([]cloud.Commit, cloud.PositionToken, error) {
	i, err := parsePosition(after)
	if err != nil {
		return nil, after, err
	}
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if err := pg.failLocked(); err != nil {
		return nil, after, err
	}
	if i >= len(pg.log) {
		return nil, after, nil
	}
	return append([]cloud.Commit(nil), pg.log[i:]...), position(len(pg.log)), nil
}

func (pg *Page) AddObject(ctx context.Context, name string, data []byte) error {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if err := pg.failLocked(); err != nil {
		return err
	}
	pg.objects[name] = append([]byte(nil), data...)
	return nil
}

func (pg *Page) GetObject(ctx context.Context, name string) ([]byte, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if err := pg.failLocked(); err != nil {
		return nil, err
	}
	data, ok := pg.objects[name]
	if !ok {
		return nil, errors.Wrapf(cloud.ErrNotFound, "object %s", name)
	}
	return append([]byte(nil), data...), nil
}

// SetWatcher delivers the commits appended after |after| synchronously from
// the AddCommits call that appends them.
func (pg *Page) SetWatcher(after cloud.PositionToken, w cloud.Watcher) func() {
	i, err := parsePosition(after)
	if err != nil {
		w.OnError(err)
		return func() {}
	}
	pg.mu.Lock()
	id := pg.nextID
	pg.nextID++
	pg.watchers[id] = &watcher{w: w, after: i}
	pg.mu.Unlock()
	return func() {
		pg.mu.Lock()
		delete(pg.watchers, id)
		pg.mu.Unlock()
	}
}

// Corrupt overwrites the data of the |i|th commit of the log.
func (pg *Page) Corrupt(i int, data []byte) {
	pg.mu.Lock()
	pg.log[i].Data = data
	pg.mu.Unlock()
}
