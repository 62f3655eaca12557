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

package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/ledger/libraries/ledgerconf"
	"github.com/dolthub/ledger/libraries/metrics"
	"github.com/dolthub/ledger/store/cloud/httpcloud"
	"github.com/dolthub/ledger/store/db"
	"github.com/dolthub/ledger/store/ledger"
	"github.com/dolthub/ledger/store/p2p/wsmesh"
	"github.com/dolthub/ledger/store/sync/cloudsync"
	"github.com/dolthub/ledger/store/sync/p2psync"
)

const (
	meshPath        = "/mesh"
	metricsPath     = "/metrics"
	shutdownTimeout = 5 * time.Second
)

// env is a repository and the listeners serving alongside it.
type env struct {
	repo    *ledger.Repository
	mesh    *wsmesh.Mesh
	servers []*http.Server
	log     *logrus.Entry
}

// openLocal opens the repository of |cfg| without syncing.
func openLocal(ctx context.Context, cfg *ledgerconf.Config) (*env, error) {
	log := logrus.WithField("device", cfg.P2P.Name)
	repo, err := ledger.Open(ctx, ledger.Options{
		Backend: db.Backend(cfg.Storage.Backend),
		Dir:     cfg.Storage.Path,
		Log:     log,
	})
	if err != nil {
		return nil, err
	}
	return &env{repo: repo, log: log}, nil
}

// openSynced opens the repository of |cfg| with the cloud and mesh it
// configures, and starts the metrics and mesh listeners.
func openSynced(ctx context.Context, cfg *ledgerconf.Config) (*env, error) {
	e := &env{log: logrus.WithField("device", cfg.P2P.Name)}
	opts := ledger.Options{
		Backend: db.Backend(cfg.Storage.Backend),
		Dir:     cfg.Storage.Path,
		CloudSync: cloudsync.Options{
			InitialInterval: cfg.Sync.InitialInterval,
			MaxInterval:     cfg.Sync.MaxInterval,
			MaxElapsedTime:  cfg.Sync.MaxElapsedTime,
			Concurrency:     cfg.Sync.Concurrency,
		},
		P2PSync: p2psync.Options{RequestTimeout: cfg.P2P.RequestTimeout},
		Log:     e.log,
	}

	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		m := metrics.New(prometheus.Labels(cfg.Metrics.Labels))
		if err := m.Register(reg); err != nil {
			return nil, err
		}
		opts.Metrics = m
		mux := http.NewServeMux()
		mux.Handle(metricsPath, metrics.Handler(reg))
		if err := e.listen(cfg.Metrics.Listen, mux); err != nil {
			return nil, err
		}
	}

	if cfg.Cloud.URL != "" {
		key, err := ledgerconf.LoadMasterKey(cfg.Encryption.KeyFile)
		if err != nil {
			e.Close()
			return nil, err
		}
		opts.MasterKey = key
		opts.Cloud = httpcloud.NewProvider(cfg.Cloud.URL, httpcloud.Options{
			PollInterval: cfg.Cloud.PollInterval,
			Log:          e.log,
		})
	}

	if cfg.P2P.Enabled() {
		e.mesh = wsmesh.New(wsmesh.Options{
			Name:         cfg.P2P.Name,
			Peers:        cfg.P2P.Peers,
			PingInterval: cfg.P2P.PingInterval,
			MinReconnect: cfg.P2P.MinReconnect,
			MaxReconnect: cfg.P2P.MaxReconnect,
			Log:          e.log,
		})
		opts.Mesh = e.mesh
		if cfg.P2P.Listen != "" {
			mux := http.NewServeMux()
			mux.Handle(meshPath, e.mesh.Handler())
			if err := e.listen(cfg.P2P.Listen, mux); err != nil {
				e.Close()
				return nil, err
			}
		}
	}

	repo, err := ledger.Open(ctx, opts)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.repo = repo
	if e.mesh != nil {
		e.mesh.Start()
	}
	return e, nil
}

func (e *env) listen(addr string, h http.Handler) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	srv := &http.Server{Handler: h}
	e.servers = append(e.servers, srv)
	log := e.log.WithField("addr", l.Addr().String())
	log.Info("listening")
	go func() {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("serving")
		}
	}()
	return nil
}

func (e *env) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range e.servers {
		srv.Shutdown(ctx)
	}
	var err error
	if e.repo != nil {
		err = e.repo.Close()
	}
	if e.mesh != nil {
		e.mesh.Close()
	}
	return err
}
