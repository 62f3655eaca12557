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

// Package httpcloud serves and consumes the cloud API over HTTP.
//
// Routes, all relative to the server root:
//
//	POST /pages/:ns/:page/commits         append a JSON array of commits
//	GET  /pages/:ns/:page/commits?after=  list commits after a position
//	PUT  /pages/:ns/:page/objects/:name   store an object
//	GET  /pages/:ns/:page/objects/:name   fetch an object
package httpcloud

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/ledger/store/cloud"
	"github.com/dolthub/ledger/store/db"
)

const (
	logKeyPrefix    = "log/"
	idKeyPrefix     = "ids/"
	seqKeyPrefix    = "seq/"
	objectKeyPrefix = "objects/"

	// DefaultMaxObjectSize bounds the body of an object upload.
	DefaultMaxObjectSize = 64 << 20
)

type commitList struct {
	Commits  []cloud.Commit `json:"commits"`
	Position string         `json:"position"`
}

// Server is a cloud keeping commit logs in a db.Db and objects in an
// ObjectBackend.
type Server struct {
	db      db.Db
	objects ObjectBackend
	router  *httprouter.Router
	log     *logrus.Entry

	maxObjectSize int64

	// serializes appends so sequence numbers stay dense
	mu sync.Mutex

	l   net.Listener
	srv *http.Server
}

func NewServer(d db.Db, objects ObjectBackend, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		db:            d,
		objects:       objects,
		router:        httprouter.New(),
		log:           log.WithField("component", "cloud_server"),
		maxObjectSize: DefaultMaxObjectSize,
	}
	s.router.POST("/pages/:ns/:page/commits", s.handleAddCommits)
	s.router.GET("/pages/:ns/:page/commits", s.handleGetCommits)
	s.router.PUT("/pages/:ns/:page/objects/:name", s.handlePutObject)
	s.router.GET("/pages/:ns/:page/objects/:name", s.handleGetObject)
	return s
}

// SetMaxObjectSize changes the largest object accepted. Call before serving.
func (s *Server) SetMaxObjectSize(n int64) {
	if n > 0 {
		s.maxObjectSize = n
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(w, req)
}

// Serve blocks serving requests on |l| until Stop is called.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.l = l
	s.srv = &http.Server{Handler: s}
	srv := s.srv
	s.mu.Unlock()

	s.log.WithField("addr", l.Addr().String()).Info("listening")
	err := srv.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func pageKey(prefix string, ps httprouter.Params) string {
	ns, page := ps.ByName("ns"), ps.ByName("page")
	return fmt.Sprintf("%s%d:%s/%s/", prefix, len(ns), ns, page)
}

func (s *Server) handleAddCommits(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	var commits []cloud.Commit
	if err := json.NewDecoder(req.Body).Decode(&commits); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, c := range commits {
		if c.ID == "" {
			http.Error(w, "commit without id", http.StatusBadRequest)
			return
		}
	}
	added, err := s.appendCommits(req.Context(), ps, commits)
	if err != nil {
		s.log.WithError(err).Error("appending commits")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.WithFields(logrus.Fields{"ns": ps.ByName("ns"), "page": ps.ByName("page"), "added": added}).Debug("commits appended")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) appendCommits(ctx context.Context, ps httprouter.Params, commits []cloud.Commit) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seqKey := []byte(pageKey(seqKeyPrefix, ps))
	var seq uint64
	if v, err := s.db.Get(ctx, seqKey); err == nil {
		seq = binary.BigEndian.Uint64(v)
	} else if !errors.Is(err, db.ErrNotFound) {
		return 0, err
	}

	batch, err := s.db.StartBatch(ctx)
	if err != nil {
		return 0, err
	}
	logPrefix, idPrefix := pageKey(logKeyPrefix, ps), pageKey(idKeyPrefix, ps)
	seen := make(map[string]bool, len(commits))
	added := 0
	for _, c := range commits {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if ok, err := s.db.Has(ctx, []byte(idPrefix+c.ID)); err != nil {
			return 0, err
		} else if ok {
			continue
		}
		data, err := json.Marshal(c)
		if err != nil {
			return 0, err
		}
		seq++
		if err := batch.Put([]byte(fmt.Sprintf("%s%020d", logPrefix, seq)), data); err != nil {
			return 0, err
		}
		if err := batch.Put([]byte(idPrefix+c.ID), []byte{1}); err != nil {
			return 0, err
		}
		added++
	}
	if added == 0 {
		return 0, nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := batch.Put(seqKey, buf[:]); err != nil {
		return 0, err
	}
	return added, batch.Execute(ctx)
}

func (s *Server) handleGetCommits(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	var after uint64
	if a := req.URL.Query().Get("after"); a != "" {
		var err error
		if after, err = strconv.ParseUint(a, 10, 64); err != nil {
			http.Error(w, "bad position "+a, http.StatusBadRequest)
			return
		}
	}

	logPrefix := pageKey(logKeyPrefix, ps)
	kvs, err := s.db.GetEntriesByPrefix(req.Context(), []byte(logPrefix))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	res := commitList{Commits: []cloud.Commit{}, Position: strconv.FormatUint(after, 10)}
	for _, kv := range kvs {
		seq, err := strconv.ParseUint(string(kv.Key), 10, 64)
		if err != nil || seq <= after {
			continue
		}
		var c cloud.Commit
		if err := json.Unmarshal(kv.Value, &c); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		res.Commits = append(res.Commits, c)
		res.Position = strconv.FormatUint(seq, 10)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.log.WithError(err).Warn("writing commits")
	}
}

func (s *Server) handlePutObject(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	data, err := io.ReadAll(http.MaxBytesReader(w, req.Body, s.maxObjectSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.objects.Put(req.Context(), pageKey("", ps)+ps.ByName("name"), data); err != nil {
		s.log.WithError(err).Error("storing object")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetObject(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	data, err := s.objects.Get(req.Context(), pageKey("", ps)+ps.ByName("name"))
	if errors.Is(err, cloud.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		s.log.WithError(err).Error("loading object")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}
