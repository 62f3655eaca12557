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

// Package cloudsync synchronizes a page with its cloud.
//
// Uploads push the page's unsynced objects, then its unsynced commits, all
// encrypted. Downloads read the cloud's commit log from the last position
// reached and add the commits to the page; objects are fetched from the
// cloud when the page asks for them.
package cloudsync

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/dolthub/ledger/libraries/metrics"
	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/cloud"
	"github.com/dolthub/ledger/store/datas"
	"github.com/dolthub/ledger/store/encryption"
	"github.com/dolthub/ledger/store/hash"
	"github.com/dolthub/ledger/store/pagestorage"
)

const (
	positionKey = "cloud_position"

	defaultConcurrency = 8
)

// ErrCorrupt is returned for cloud payloads that do not decrypt or do not
// match their identifiers.
var ErrCorrupt = errors.New("corrupt cloud payload")

// State is the state of one direction of the sync.
type State int

const (
	Idle State = iota
	Pending
	InProgress
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case InProgress:
		return "in_progress"
	case Error:
		return "error"
	}
	return "unknown"
}

// StateNames are the names of every State, for metrics.
var StateNames = []string{Idle.String(), Pending.String(), InProgress.String(), Error.String()}

// Options configure a PageSync.
type Options struct {
	// InitialInterval, MaxInterval and MaxElapsedTime bound the retries of
	// network operations. A direction whose retries run out goes to Error.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	// Concurrency bounds parallel object transfers.
	Concurrency int

	Log     *logrus.Entry
	Metrics *metrics.Metrics
}

// PageSync synchronizes one page with its cloud.
type PageSync struct {
	ps    *pagestorage.PageStorage
	cloud cloud.PageCloud
	enc   encryption.Service
	opts  Options
	log   *logrus.Entry

	fetchSem *semaphore.Weighted
	fetches  singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	upload        direction
	download      direction
	backlogDone   bool
	onBacklog     func()
	onStateChange func()
	cancelWatch   func()
}

type direction struct {
	state   State
	running bool
	again   bool
}

var _ pagestorage.SyncDelegate = (*PageSync)(nil)
var _ pagestorage.CommitWatcher = (*PageSync)(nil)
var _ cloud.Watcher = cloudWatcher{}

func New(ps *pagestorage.PageStorage, pc cloud.PageCloud, enc encryption.Service, opts Options) *PageSync {
	if opts.InitialInterval == 0 {
		opts.InitialInterval = 100 * time.Millisecond
	}
	if opts.MaxInterval == 0 {
		opts.MaxInterval = 10 * time.Second
	}
	if opts.MaxElapsedTime == 0 {
		opts.MaxElapsedTime = time.Minute
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PageSync{
		ps:       ps,
		cloud:    pc,
		enc:      enc,
		opts:     opts,
		log:      opts.Log.WithFields(logrus.Fields{"component": "cloud_sync", "page": ps.PageID()}),
		fetchSem: semaphore.NewWeighted(int64(opts.Concurrency)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start downloads the backlog of the page, then follows the cloud's log
// and uploads local changes as they are committed.
func (s *PageSync) Start() {
	s.ps.AddCommitWatcher(s)
	s.triggerDownload()
	s.triggerUpload()
}

// Close stops syncing and waits for transfers in progress.
func (s *PageSync) Close() {
	s.ps.RemoveCommitWatcher(s)
	s.cancel()
	s.mu.Lock()
	cancelWatch := s.cancelWatch
	s.cancelWatch = nil
	s.mu.Unlock()
	if cancelWatch != nil {
		cancelWatch()
	}
	s.wg.Wait()
}

// SetOnBacklogDownloaded sets a callback called once the commits present in
// the cloud when syncing started are added to the page.
func (s *PageSync) SetOnBacklogDownloaded(cb func()) {
	s.mu.Lock()
	done := s.backlogDone
	s.onBacklog = cb
	s.mu.Unlock()
	if done && cb != nil {
		cb()
	}
}

// SetOnStateChange sets a callback called after every state change.
func (s *PageSync) SetOnStateChange(cb func()) {
	s.mu.Lock()
	s.onStateChange = cb
	s.mu.Unlock()
}

// States returns the download and upload states.
func (s *PageSync) States() (download, upload State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.download.state, s.upload.state
}

// IsIdle returns true if both directions are idle.
func (s *PageSync) IsIdle() bool {
	d, u := s.States()
	return d == Idle && u == Idle
}

func (s *PageSync) setState(dir *direction, st State) {
	s.mu.Lock()
	changed := dir.state != st
	dir.state = st
	cb := s.onStateChange
	d, u := s.download.state, s.upload.state
	s.mu.Unlock()
	if !changed {
		return
	}
	page := s.ps.PageID()
	s.opts.Metrics.SyncState(page+"/download", d.String(), StateNames)
	s.opts.Metrics.SyncState(page+"/upload", u.String(), StateNames)
	if cb != nil {
		cb()
	}
}

// OnNewCommits uploads commits made on this device or received from peers.
func (s *PageSync) OnNewCommits(commits []*datas.Commit, source pagestorage.ChangeSource) {
	if source != pagestorage.SourceCloud {
		s.triggerUpload()
	}
}

// cloudWatcher reads the log again from the stored position on every
// notification so that no commit is skipped.
type cloudWatcher struct{ s *PageSync }

func (w cloudWatcher) OnNewCommits(commits []cloud.Commit, position cloud.PositionToken) {
	w.s.triggerDownload()
}

// OnError is left to the cloud, which keeps watching.
func (w cloudWatcher) OnError(err error) {
	w.s.log.WithError(err).Debug("cloud watcher error")
}

func (s *PageSync) triggerUpload() {
	s.trigger(&s.upload, s.UploadOnce, nil)
}

func (s *PageSync) triggerDownload() {
	s.trigger(&s.download, s.DownloadOnce, s.backlogDownloaded)
}

// trigger runs |once| on its own goroutine, again if triggered while it
// runs. |done| is called after every successful run.
func (s *PageSync) trigger(dir *direction, once func(ctx context.Context) error, done func()) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if dir.running {
		dir.again = true
		s.mu.Unlock()
		return
	}
	dir.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	s.setState(dir, Pending)
	go func() {
		defer s.wg.Done()
		for {
			s.setState(dir, InProgress)
			err := once(s.ctx)
			if s.ctx.Err() != nil {
				s.mu.Lock()
				dir.running, dir.again = false, false
				s.mu.Unlock()
				return
			}

			s.mu.Lock()
			again := dir.again
			dir.again = false
			if !again {
				dir.running = false
			}
			s.mu.Unlock()

			if err != nil {
				s.log.WithError(err).Error("sync abandoned")
				s.setState(dir, Error)
			} else if done != nil {
				done()
			}
			if !again {
				if err == nil {
					s.setState(dir, Idle)
				}
				return
			}
		}
	}()
}

func (s *PageSync) backlogDownloaded() {
	s.mu.Lock()
	first := !s.backlogDone
	s.backlogDone = true
	cb := s.onBacklog
	watch := first && s.cancelWatch == nil && s.ctx.Err() == nil
	s.mu.Unlock()

	if watch {
		pos, err := s.position(s.ctx)
		if err == nil {
			cancel := s.cloud.SetWatcher(pos, cloudWatcher{s})
			s.mu.Lock()
			if s.ctx.Err() != nil {
				s.mu.Unlock()
				cancel()
			} else {
				s.cancelWatch = cancel
				s.mu.Unlock()
			}
		}
	}
	if first && cb != nil {
		cb()
	}
}

func (s *PageSync) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialInterval
	b.MaxInterval = s.opts.MaxInterval
	b.MaxElapsedTime = s.opts.MaxElapsedTime
	return backoff.WithContext(b, ctx)
}

// retry runs |op| until it succeeds, fails with an error that is not a
// network error, or the backoff runs out.
func (s *PageSync) retry(ctx context.Context, what string, op func() error) error {
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !cloud.IsRetriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, s.backOff(ctx), func(err error, wait time.Duration) {
		s.log.WithError(err).WithField("retry_in", wait).Warnf("%s failed", what)
	})
}

func (s *PageSync) position(ctx context.Context) (cloud.PositionToken, error) {
	v, err := s.ps.GetSyncMetadata(ctx, positionKey)
	if errors.Is(err, pagestorage.ErrNotFound) {
		return "", nil
	}
	return cloud.PositionToken(v), err
}

// DownloadOnce adds the commits appended to the cloud since the last
// download. The position only moves past commits that were added, so a
// batch that fails is read again next time.
func (s *PageSync) DownloadOnce(ctx context.Context) error {
	start := time.Now()
	pos, err := s.position(ctx)
	if err != nil {
		return err
	}

	var commits []cloud.Commit
	var next cloud.PositionToken
	err = s.retry(ctx, "listing commits", func() error {
		var err error
		commits, next, err = s.cloud.GetCommits(ctx, pos)
		return err
	})
	if err != nil || len(commits) == 0 {
		return err
	}

	batch := make([]pagestorage.CommitIDAndBytes, 0, len(commits))
	for _, c := range commits {
		id, ok := hash.MaybeParse(c.ID)
		if !ok {
			return errors.Wrapf(ErrCorrupt, "commit id %q", c.ID)
		}
		data, err := s.enc.DecryptCommit(c.Data)
		if err != nil {
			return errors.Wrapf(ErrCorrupt, "commit %s: %v", c.ID, err)
		}
		if hash.Of(data) != id && id != datas.FirstPageCommitID {
			return errors.Wrapf(ErrCorrupt, "commit %s: content does not match id", c.ID)
		}
		batch = append(batch, pagestorage.CommitIDAndBytes{ID: id, Bytes: data})
	}

	err = s.ps.AddCommitsFromSync(ctx, batch, pagestorage.SourceCloud)
	if errors.Is(err, datas.ErrDanglingCommit) {
		s.log.WithError(err).Warn("incomplete history in cloud, waiting for more commits")
		return nil
	} else if err != nil {
		return err
	}
	if err := s.ps.SetSyncMetadata(ctx, positionKey, []byte(next)); err != nil {
		return err
	}
	s.opts.Metrics.SyncBatch(time.Since(start))
	s.log.WithField("commits", len(batch)).Debug("downloaded commits")
	return nil
}

// UploadOnce uploads the unsynced objects of the page, then its unsynced
// commits. Objects go first so that a device seeing a commit can fetch its
// tree.
func (s *PageSync) UploadOnce(ctx context.Context) error {
	start := time.Now()
	ids, err := s.ps.GetUnsyncedPieces(ctx)
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.opts.Concurrency)
	for _, id := range ids {
		id := id
		eg.Go(func() error {
			return s.uploadObject(egCtx, id)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	commits, err := s.ps.GetUnsyncedCommits(ctx)
	if err != nil || len(commits) == 0 {
		return err
	}
	batch := make([]cloud.Commit, 0, len(commits))
	for _, c := range commits {
		data, err := s.enc.EncryptCommit(c.StorageBytes())
		if err != nil {
			return err
		}
		batch = append(batch, cloud.Commit{ID: c.ID.String(), Data: data})
	}
	if err := s.retry(ctx, "uploading commits", func() error {
		return s.cloud.AddCommits(ctx, batch)
	}); err != nil {
		return err
	}
	for _, c := range commits {
		if err := s.ps.MarkCommitSynced(ctx, c.ID); err != nil {
			return err
		}
	}

	s.opts.Metrics.Uploaded(s.ps.PageID(), len(ids)+len(commits))
	s.opts.Metrics.SyncBatch(time.Since(start))
	s.log.WithFields(logrus.Fields{"objects": len(ids), "commits": len(commits)}).Debug("uploaded")
	return nil
}

func (s *PageSync) uploadObject(ctx context.Context, id chunks.ObjectIdentifier) error {
	stored, err := s.ps.GetStoredObject(ctx, id)
	if errors.Is(err, pagestorage.ErrNotFound) {
		// collected before it was uploaded
		return s.ps.MarkPieceSynced(ctx, id)
	} else if err != nil {
		return err
	}
	name, err := s.enc.GetObjectName(id)
	if err != nil {
		return err
	}
	data, err := s.enc.EncryptObject(id, stored)
	if err != nil {
		return err
	}
	if err := s.retry(ctx, "uploading object", func() error {
		return s.cloud.AddObject(ctx, name, data)
	}); err != nil {
		return err
	}
	return s.ps.MarkPieceSynced(ctx, id)
}

// GetObject fetches |id| from the cloud. Concurrent requests for the same
// object share one download.
func (s *PageSync) GetObject(ctx context.Context, id chunks.ObjectIdentifier, cb func(pagestorage.FetchedObject, error)) {
	go func() {
		v, err, _ := s.fetches.Do(id.String(), func() (interface{}, error) {
			return s.fetchObject(ctx, id)
		})
		if err != nil {
			cb(pagestorage.FetchedObject{}, err)
			return
		}
		cb(pagestorage.FetchedObject{Stored: v.([]byte), Source: pagestorage.SourceCloud}, nil)
	}()
}

func (s *PageSync) fetchObject(ctx context.Context, id chunks.ObjectIdentifier) ([]byte, error) {
	if err := s.fetchSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.fetchSem.Release(1)

	name, err := s.enc.GetObjectName(id)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.retry(ctx, "fetching object", func() error {
		var err error
		data, err = s.cloud.GetObject(ctx, name)
		return err
	})
	if errors.Is(err, cloud.ErrNotFound) {
		return nil, errors.Wrapf(pagestorage.ErrNotFound, "object %s not in cloud", id)
	} else if err != nil {
		return nil, err
	}
	stored, err := s.enc.DecryptObject(id, data)
	if err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "object %s: %v", id, err)
	}
	return stored, nil
}
