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

// Package ledger manages the pages of a device: it opens the Db holding
// them and wires every page to its sync.
package ledger

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/fslock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/ledger/libraries/metrics"
	"github.com/dolthub/ledger/store/cloud"
	"github.com/dolthub/ledger/store/db"
	"github.com/dolthub/ledger/store/encryption"
	"github.com/dolthub/ledger/store/merge"
	"github.com/dolthub/ledger/store/p2p"
	"github.com/dolthub/ledger/store/pagestorage"
	ledgersync "github.com/dolthub/ledger/store/sync"
	"github.com/dolthub/ledger/store/sync/cloudsync"
	"github.com/dolthub/ledger/store/sync/p2psync"
)

const (
	lockFile   = "LOCK"
	maxNameLen = 256
)

var (
	// ErrInvalidName is returned for namespace and page names that cannot
	// be stored.
	ErrInvalidName = errors.New("invalid name")

	// ErrLocked is returned when another process has the repository open.
	ErrLocked = errors.New("repository is locked by another process")

	// ErrClosed is returned by a closed repository.
	ErrClosed = errors.New("repository closed")
)

// Options configure a Repository.
type Options struct {
	Backend db.Backend
	// Dir holds the Db. It is unused by the memory backend.
	Dir string

	// MasterKey encrypts what is sent to the cloud. Required with Cloud.
	MasterKey []byte
	Cloud     cloud.Provider
	CloudSync cloudsync.Options

	Mesh    p2p.DeviceMesh
	P2PSync p2psync.Options

	Merge merge.Options

	Clock   func() time.Time
	Log     *logrus.Entry
	Metrics *metrics.Metrics
}

// Page is an open page and its sync.
type Page struct {
	Namespace string
	ID        string
	Storage   *pagestorage.PageStorage
	Sync      *ledgersync.PageSyncCoordinator
}

func (p *Page) close() {
	p.Sync.Close()
	p.Storage.Close()
}

type pageKey struct {
	namespace string
	page      string
}

// Repository owns the pages of every namespace of a device.
type Repository struct {
	db         db.Db
	opts       Options
	log        *logrus.Entry
	lock       *fslock.Lock
	dispatcher *p2psync.Dispatcher

	mu     sync.Mutex
	pages  map[pageKey]*Page
	closed bool
}

// Open opens the repository described by |opts|, creating it if needed.
func Open(ctx context.Context, opts Options) (*Repository, error) {
	if opts.Backend == "" {
		opts.Backend = db.LevelDBBackend
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Cloud != nil && len(opts.MasterKey) != encryption.MasterKeySize {
		return nil, errors.Wrap(encryption.ErrInvalidKey, "cloud sync needs a master key")
	}

	var lock *fslock.Lock
	if opts.Backend != db.MemoryBackend {
		if err := os.MkdirAll(opts.Dir, 0700); err != nil {
			return nil, errors.Wrapf(err, "creating %s", opts.Dir)
		}
		lock = fslock.New(filepath.Join(opts.Dir, lockFile))
		if err := lock.TryLock(); err == fslock.ErrLocked {
			return nil, errors.Wrapf(ErrLocked, "%s", opts.Dir)
		} else if err != nil {
			return nil, err
		}
	}

	d, err := db.Open(ctx, opts.Backend, filepath.Join(opts.Dir, "db"))
	if err != nil {
		if lock != nil {
			lock.Unlock()
		}
		return nil, err
	}

	r := &Repository{
		db:    d,
		opts:  opts,
		log:   opts.Log.WithField("component", "ledger"),
		lock:  lock,
		pages: make(map[pageKey]*Page),
	}
	if opts.Mesh != nil {
		r.dispatcher = p2psync.NewDispatcher(opts.Mesh, opts.Log)
	}
	r.log.WithFields(logrus.Fields{"backend": opts.Backend, "dir": opts.Dir}).Info("repository opened")
	return r, nil
}

// NewPageID returns a fresh random page name.
func NewPageID() string {
	return uuid.New().String()
}

func checkName(kind, name string) error {
	if name == "" || len(name) > maxNameLen || strings.ContainsAny(name, "/\x00") {
		return errors.Wrapf(ErrInvalidName, "%s %q", kind, name)
	}
	return nil
}

// GetPage opens page |pageID| of |namespace|, creating it on first access,
// and starts its sync. An empty |pageID| creates a page with a new name.
func (r *Repository) GetPage(ctx context.Context, namespace, pageID string) (*Page, error) {
	if pageID == "" {
		pageID = NewPageID()
	}
	if err := checkName("namespace", namespace); err != nil {
		return nil, err
	}
	if err := checkName("page", pageID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	k := pageKey{namespace, pageID}
	if p, ok := r.pages[k]; ok {
		return p, nil
	}

	p, err := r.openPage(ctx, namespace, pageID)
	if err != nil {
		return nil, err
	}
	r.pages[k] = p
	p.Sync.Start()
	return p, nil
}

func (r *Repository) openPage(ctx context.Context, namespace, pageID string) (*Page, error) {
	log := r.opts.Log.WithFields(logrus.Fields{"ns": namespace, "page": pageID})
	ps, err := pagestorage.Open(ctx, r.db, namespace, pageID, pagestorage.Options{
		Clock:   r.opts.Clock,
		Log:     log,
		Metrics: r.opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	var cs *cloudsync.PageSync
	if r.opts.Cloud != nil {
		pc, err := r.opts.Cloud.GetPageCloud(ctx, namespace, pageID)
		if err != nil {
			ps.Close()
			return nil, err
		}
		enc, err := encryption.NewService(r.opts.MasterKey, namespace, pageID)
		if err != nil {
			ps.Close()
			return nil, err
		}
		copts := r.opts.CloudSync
		copts.Log, copts.Metrics = log, r.opts.Metrics
		cs = cloudsync.New(ps, pc, enc, copts)
	}

	var comm *p2psync.PageCommunicator
	if r.dispatcher != nil {
		popts := r.opts.P2PSync
		popts.Log = log
		comm = p2psync.NewPageCommunicator(r.dispatcher, ps, popts)
	}

	mopts := r.opts.Merge
	mopts.Log, mopts.Metrics = log, r.opts.Metrics
	resolver := merge.NewResolver(ps, mopts)

	return &Page{
		Namespace: namespace,
		ID:        pageID,
		Storage:   ps,
		Sync:      ledgersync.NewPageSyncCoordinator(ps, cs, comm, resolver, log),
	}, nil
}

// ListPages returns the names of the pages of |namespace| stored on this
// device, open or not.
func (r *Repository) ListPages(ctx context.Context, namespace string) ([]string, error) {
	if err := checkName("namespace", namespace); err != nil {
		return nil, err
	}
	keys, err := r.db.GetByPrefix(ctx, pagestorage.NamespacePrefix(namespace))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var pages []string
	for _, k := range keys {
		i := strings.IndexByte(string(k), '/')
		if i <= 0 {
			continue
		}
		name := string(k[:i])
		if !seen[name] {
			seen[name] = true
			pages = append(pages, name)
		}
	}
	sort.Strings(pages)
	return pages, nil
}

// DeletePage stops the sync of a page, interrupts what is waiting on it and
// removes everything the device stores for it. The page stays in the
// cloud and on other devices.
func (r *Repository) DeletePage(ctx context.Context, namespace, pageID string) error {
	if err := checkName("namespace", namespace); err != nil {
		return err
	}
	if err := checkName("page", pageID); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	k := pageKey{namespace, pageID}
	p := r.pages[k]
	delete(r.pages, k)
	r.mu.Unlock()

	if p != nil {
		p.close()
	}
	return r.deletePrefix(ctx, pagestorage.PagePrefix(namespace, pageID))
}

// DeleteNamespace deletes every page of |namespace|.
func (r *Repository) DeleteNamespace(ctx context.Context, namespace string) error {
	if err := checkName("namespace", namespace); err != nil {
		return err
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	var open []*Page
	for k, p := range r.pages {
		if k.namespace == namespace {
			open = append(open, p)
			delete(r.pages, k)
		}
	}
	r.mu.Unlock()

	for _, p := range open {
		p.close()
	}
	return r.deletePrefix(ctx, pagestorage.NamespacePrefix(namespace))
}

func (r *Repository) deletePrefix(ctx context.Context, prefix []byte) error {
	b, err := r.db.StartBatch(ctx)
	if err != nil {
		return err
	}
	if err := b.DeleteByPrefix(prefix); err != nil {
		return err
	}
	if err := b.Execute(ctx); err != nil {
		return err
	}
	r.log.WithField("prefix", string(prefix)).Info("deleted")
	return nil
}

// Close closes every page and the Db.
func (r *Repository) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pages := r.pages
	r.pages = nil
	r.mu.Unlock()

	for _, p := range pages {
		p.close()
	}
	err := r.db.Close()
	if r.lock != nil {
		if uerr := r.lock.Unlock(); err == nil {
			err = uerr
		}
	}
	return err
}
