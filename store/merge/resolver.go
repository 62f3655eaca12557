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

// Package merge merges the heads of a page until a single one remains.
package merge

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/ledger/libraries/metrics"
	"github.com/dolthub/ledger/store/datas"
	"github.com/dolthub/ledger/store/pagestorage"
)

// ErrNoCommonAncestor is returned for heads that share no history, which
// only happens with a corrupt commit graph.
var ErrNoCommonAncestor = errors.New("heads have no common ancestor")

// Options configure a Resolver.
type Options struct {
	Strategy Strategy
	// InitialInterval and MaxInterval bound the wait between failed merges.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Log             *logrus.Entry
	Metrics         *metrics.Metrics
}

// Resolver watches the heads of a page and merges them two at a time, the
// two oldest first.
type Resolver struct {
	ps       *pagestorage.PageStorage
	strategy Strategy
	log      *logrus.Entry
	metrics  *metrics.Metrics
	bo       *backoff.ExponentialBackOff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	again   bool
	onIdle  func()
}

// NewResolver returns a resolver for |ps|. It does nothing until Start.
func NewResolver(ps *pagestorage.PageStorage, opts Options) *Resolver {
	if opts.Strategy == nil {
		opts.Strategy = LastOneWinsStrategy{}
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	bo := backoff.NewExponentialBackOff()
	if opts.InitialInterval > 0 {
		bo.InitialInterval = opts.InitialInterval
	}
	if opts.MaxInterval > 0 {
		bo.MaxInterval = opts.MaxInterval
	}
	// merging is retried for as long as the page is open
	bo.MaxElapsedTime = 0

	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		ps:       ps,
		strategy: opts.Strategy,
		log:      opts.Log.WithField("component", "merge"),
		metrics:  opts.Metrics,
		bo:       bo,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start watches the page for new commits and merges the heads it already has.
func (r *Resolver) Start() {
	r.ps.AddCommitWatcher(r)
	r.trigger()
}

// Close stops merging and waits for a merge in progress to finish.
func (r *Resolver) Close() {
	r.ps.RemoveCommitWatcher(r)
	r.cancel()
	r.wg.Wait()
}

// SetOnIdle sets a callback called every time the resolver runs out of
// heads to merge.
func (r *Resolver) SetOnIdle(cb func()) {
	r.mu.Lock()
	r.onIdle = cb
	r.mu.Unlock()
}

// IsIdle returns true if no merge is running or scheduled.
func (r *Resolver) IsIdle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.running
}

func (r *Resolver) OnNewCommits(commits []*datas.Commit, source pagestorage.ChangeSource) {
	r.trigger()
}

func (r *Resolver) trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		return
	}
	if r.running {
		r.again = true
		return
	}
	r.running = true
	r.wg.Add(1)
	go r.run()
}

func (r *Resolver) run() {
	defer r.wg.Done()
	for {
		merged, err := r.ResolveOnce(r.ctx)
		if r.ctx.Err() != nil {
			r.stop()
			return
		}
		if err != nil {
			wait := r.bo.NextBackOff()
			r.log.WithError(err).WithField("retry_in", wait).Warn("merge failed")
			select {
			case <-time.After(wait):
				continue
			case <-r.ctx.Done():
				r.stop()
				return
			}
		}
		r.bo.Reset()
		if merged {
			continue
		}

		r.mu.Lock()
		if r.again {
			r.again = false
			r.mu.Unlock()
			continue
		}
		r.running = false
		onIdle := r.onIdle
		r.mu.Unlock()
		if onIdle != nil {
			onIdle()
		}
		return
	}
}

func (r *Resolver) stop() {
	r.mu.Lock()
	r.running = false
	r.again = false
	r.mu.Unlock()
}

// ResolveOnce merges the two oldest heads if the page has more than one and
// returns true if it created a merge commit.
func (r *Resolver) ResolveOnce(ctx context.Context) (bool, error) {
	heads, err := r.ps.GetHeadCommits(ctx)
	if err != nil || len(heads) < 2 {
		return false, err
	}
	h1, h2 := heads[0], heads[1]

	ancestor, ok, err := datas.FindCommonAncestor(ctx, r.ps, h1, h2)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errors.Wrapf(ErrNoCommonAncestor, "%s and %s", h1.ID, h2.ID)
	}
	if ancestor.ID == h1.ID || ancestor.ID == h2.ID {
		// only seen while the head set is being updated
		r.log.WithField("ancestor", ancestor.ID.String()).Debug("head is an ancestor of another head, not merging")
		return false, nil
	}

	c, err := r.strategy.Merge(ctx, r.ps, h1, h2, ancestor)
	if err != nil {
		return false, err
	}
	r.metrics.MergeCreated(r.ps.PageID())
	r.log.WithField("commit", c.ID.String()).Debug("merged heads")
	return true, nil
}
