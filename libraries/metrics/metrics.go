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

// Package metrics holds the prometheus collectors of a ledger process.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	pageLabel   = "page"
	sourceLabel = "source"
	stateLabel  = "state"
)

// Metrics are the ledger collectors. A nil *Metrics records nothing, so
// components accept one without checking.
type Metrics struct {
	objectsAdded   *prometheus.CounterVec
	commitsCreated *prometheus.CounterVec
	commitsSynced  *prometheus.CounterVec
	objectsFetched *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	merges         *prometheus.CounterVec
	gcDeleted      prometheus.Counter
	syncDur        prometheus.Histogram
	syncState      *prometheus.GaugeVec
}

// New returns collectors carrying |labels| as constant labels.
func New(labels prometheus.Labels) *Metrics {
	return &Metrics{
		objectsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_objects_added",
			Help:        "Count of objects added by local clients",
			ConstLabels: labels,
		}, []string{pageLabel}),
		commitsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_commits_created",
			Help:        "Count of commits created from journals",
			ConstLabels: labels,
		}, []string{pageLabel}),
		commitsSynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_commits_downloaded",
			Help:        "Count of commits added from cloud or peers",
			ConstLabels: labels,
		}, []string{pageLabel, sourceLabel}),
		objectsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_objects_fetched",
			Help:        "Count of objects fetched from the network",
			ConstLabels: labels,
		}, []string{pageLabel, sourceLabel}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_cloud_uploads",
			Help:        "Count of commits and objects uploaded to the cloud",
			ConstLabels: labels,
		}, []string{pageLabel}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_merges",
			Help:        "Count of merge commits created",
			ConstLabels: labels,
		}, []string{pageLabel}),
		gcDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ledger_gc_deleted_objects",
			Help:        "Count of unreachable objects deleted by garbage collection",
			ConstLabels: labels,
		}),
		syncDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "ledger_sync_batch_duration",
			Help:        "Histogram of cloud sync batch durations in seconds",
			ConstLabels: labels,
			Buckets:     []float64{0.01, 0.1, 1.0, 10.0, 100.0},
		}),
		syncState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "ledger_sync_state",
			Help:        "One if the page sync is currently in the labelled state, zero otherwise",
			ConstLabels: labels,
		}, []string{pageLabel, stateLabel}),
	}
}

// Register registers every collector with |reg|.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.objectsAdded, m.commitsCreated, m.commitsSynced, m.objectsFetched,
		m.uploads, m.merges, m.gcDeleted, m.syncDur, m.syncState,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the metrics gathered by |g|.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ObjectAdded(page string) {
	if m != nil {
		m.objectsAdded.WithLabelValues(page).Inc()
	}
}

func (m *Metrics) CommitCreated(page string) {
	if m != nil {
		m.commitsCreated.WithLabelValues(page).Inc()
	}
}

func (m *Metrics) CommitsSynced(page, source string, n int) {
	if m != nil {
		m.commitsSynced.WithLabelValues(page, source).Add(float64(n))
	}
}

func (m *Metrics) ObjectFetched(page, source string) {
	if m != nil {
		m.objectsFetched.WithLabelValues(page, source).Inc()
	}
}

func (m *Metrics) Uploaded(page string, n int) {
	if m != nil {
		m.uploads.WithLabelValues(page).Add(float64(n))
	}
}

func (m *Metrics) MergeCreated(page string) {
	if m != nil {
		m.merges.WithLabelValues(page).Inc()
	}
}

func (m *Metrics) GarbageCollected(n int) {
	if m != nil {
		m.gcDeleted.Add(float64(n))
	}
}

func (m *Metrics) SyncBatch(d time.Duration) {
	if m != nil {
		m.syncDur.Observe(d.Seconds())
	}
}

// SyncState sets the state gauge of |page| to |state| and clears the
// others in |all|.
func (m *Metrics) SyncState(page, state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.syncState.WithLabelValues(page, s).Set(v)
	}
}
