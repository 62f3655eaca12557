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

// Package cloud defines the cloud service pages sync through.
//
// The cloud keeps, per page, an append-only log of encrypted commits and a
// set of encrypted objects addressed by obfuscated names. It never sees
// plaintext and never interprets what it stores.
package cloud

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNetwork is returned when the cloud cannot be reached. Callers retry.
	ErrNetwork = errors.New("cloud unreachable")

	// ErrNotFound is returned for objects the cloud does not have.
	ErrNotFound = errors.New("not found in cloud")
)

// Commit is a commit as stored in the cloud.
type Commit struct {
	ID   string `json:"id"`
	Data []byte `json:"data"`
}

// PositionToken marks a position in the commit log of a page. The empty
// token is the start of the log.
type PositionToken string

// Watcher is told about commits appended to a page's log.
type Watcher interface {
	OnNewCommits(commits []Commit, position PositionToken)
	OnError(err error)
}

// PageCloud is the cloud side of one page.
type PageCloud interface {
	// AddCommits appends |commits| to the log. Commits already in the log
	// are ignored.
	AddCommits(ctx context.Context, commits []Commit) error

	// GetCommits returns the commits appended after |after| and the
	// position of the last one.
	GetCommits(ctx context.Context, after PositionToken) ([]Commit, PositionToken, error)

	AddObject(ctx context.Context, name string, data []byte) error

	// GetObject returns ErrNotFound for objects not uploaded yet.
	GetObject(ctx context.Context, name string) ([]byte, error)

	// SetWatcher delivers commits appended after |after| to |w| until the
	// returned function is called.
	SetWatcher(after PositionToken, w Watcher) (cancel func())
}

// Provider gives access to the clouds of pages.
type Provider interface {
	GetPageCloud(ctx context.Context, namespace, pageID string) (PageCloud, error)
}

// IsRetriable returns true for errors worth retrying.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
