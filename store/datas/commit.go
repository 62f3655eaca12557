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

// Package datas implements the commit graph of a page. A commit names the
// root of the page's tree and the commits it was derived from.
package datas

import (
	"fmt"
	"sort"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/pkg/errors"

	"github.com/dolthub/ledger/gen/fb/serial"
	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/hash"
)

var (
	// FirstPageCommitID is the identifier of the genesis commit of every page.
	FirstPageCommitID = hash.Hash{}

	// ErrDanglingCommit is returned for a commit whose parents are unknown.
	ErrDanglingCommit = errors.New("commit references an unknown parent")

	// ErrParse is returned for bytes that are not a valid commit.
	ErrParse = errors.New("malformed commit")
)

var commitFileID = []byte(serial.CommitFileID)

// Commit is an immutable snapshot of a page.
type Commit struct {
	ID         hash.Hash
	RootNode   chunks.ObjectIdentifier
	ParentIDs  []hash.Hash
	Timestamp  int64
	Generation uint64

	data []byte
}

// NewGenesisCommit returns the first commit of a page whose empty tree has
// root |emptyRoot|.
func NewGenesisCommit(emptyRoot chunks.ObjectIdentifier) *Commit {
	c := &Commit{ID: FirstPageCommitID, RootNode: emptyRoot}
	c.data = c.serialize()
	return c
}

// NewCommit returns the commit of the tree at |root| derived from |parents|.
// A single parent makes a regular commit stamped with |timestamp|. Two
// parents make a merge commit; its timestamp is the latest of the parents'
// so that devices merging the same heads produce the same commit.
func NewCommit(parents []*Commit, root chunks.ObjectIdentifier, timestamp int64) (*Commit, error) {
	switch len(parents) {
	case 1:
	case 2:
		if parents[0].ID == parents[1].ID {
			return nil, errors.Errorf("cannot merge commit %s with itself", parents[0].ID)
		}
		timestamp = parents[0].Timestamp
		if parents[1].Timestamp > timestamp {
			timestamp = parents[1].Timestamp
		}
	default:
		return nil, errors.Errorf("a commit has one or two parents, got %d", len(parents))
	}

	c := &Commit{RootNode: root, Timestamp: timestamp}
	for _, p := range parents {
		c.ParentIDs = append(c.ParentIDs, p.ID)
		if p.Generation >= c.Generation {
			c.Generation = p.Generation + 1
		}
	}
	sort.Sort(hash.HashSlice(c.ParentIDs))
	c.data = c.serialize()
	c.ID = hash.Of(c.data)
	return c, nil
}

func (c *Commit) serialize() []byte {
	b := flatbuffers.NewBuilder(128 + len(c.ParentIDs)*hash.ByteLen)
	rootOff := b.CreateByteVector(c.RootNode.Bytes())
	parents := make([]byte, 0, len(c.ParentIDs)*hash.ByteLen)
	for _, p := range c.ParentIDs {
		parents = append(parents, p[:]...)
	}
	parentsOff := b.CreateByteVector(parents)

	serial.CommitStart(b)
	serial.CommitAddRoot(b, rootOff)
	serial.CommitAddParentAddrs(b, parentsOff)
	serial.CommitAddTimestamp(b, c.Timestamp)
	serial.CommitAddGeneration(b, c.Generation)
	b.FinishWithFileIdentifier(serial.CommitEnd(b), commitFileID)
	return b.FinishedBytes()
}

// CommitFromStorageBytes parses a commit and checks that it is the commit
// named |id|.
func CommitFromStorageBytes(id hash.Hash, data []byte) (c *Commit, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, errors.Wrapf(ErrParse, "commit %s: %v", id, r)
		}
	}()

	if serial.GetFileID(data) != serial.CommitFileID {
		return nil, errors.Wrapf(ErrParse, "commit %s: missing file identifier", id)
	}
	msg := serial.GetRootAsCommit(data, 0)
	root, err := chunks.ObjectIdentifierFromBytes(msg.RootBytes())
	if err != nil {
		return nil, errors.Wrapf(ErrParse, "commit %s: %v", id, err)
	}
	addrs := msg.ParentAddrsBytes()
	if len(addrs)%hash.ByteLen != 0 {
		return nil, errors.Wrapf(ErrParse, "commit %s: parents vector of %d bytes", id, len(addrs))
	}

	c = &Commit{
		ID:         id,
		RootNode:   root,
		Timestamp:  msg.Timestamp(),
		Generation: msg.Generation(),
		data:       append([]byte(nil), data...),
	}
	for i := 0; i < len(addrs); i += hash.ByteLen {
		c.ParentIDs = append(c.ParentIDs, hash.New(addrs[i:i+hash.ByteLen]))
	}

	if id == FirstPageCommitID {
		if len(c.ParentIDs) != 0 || c.Generation != 0 || c.Timestamp != 0 {
			return nil, errors.Wrap(ErrParse, "genesis commit with history")
		}
		return c, nil
	}
	if hash.Of(data) != id {
		return nil, errors.Wrapf(ErrParse, "commit %s: content hashes to %s", id, hash.Of(data))
	}
	if len(c.ParentIDs) < 1 || len(c.ParentIDs) > 2 {
		return nil, errors.Wrapf(ErrParse, "commit %s: %d parents", id, len(c.ParentIDs))
	}
	if len(c.ParentIDs) == 2 && !c.ParentIDs[0].Less(c.ParentIDs[1]) {
		return nil, errors.Wrapf(ErrParse, "commit %s: parents not sorted", id)
	}
	if c.Generation == 0 {
		return nil, errors.Wrapf(ErrParse, "commit %s: generation 0 with parents", id)
	}
	return c, nil
}

// StorageBytes returns the serialized commit. Its hash is the commit ID,
// except for the genesis commit.
func (c *Commit) StorageBytes() []byte {
	return c.data
}

func (c *Commit) IsGenesis() bool {
	return c.ID == FirstPageCommitID
}

func (c *Commit) IsMerge() bool {
	return len(c.ParentIDs) == 2
}

func (c *Commit) String() string {
	return fmt.Sprintf("commit %s (gen %d, root %s)", c.ID, c.Generation, c.RootNode)
}

// CheckGeneration verifies that |c| is exactly one generation after the
// latest of |parents|.
func CheckGeneration(c *Commit, parents []*Commit) error {
	var max uint64
	for _, p := range parents {
		if p.Generation > max {
			max = p.Generation
		}
	}
	if c.Generation != max+1 {
		return errors.Wrapf(ErrParse, "commit %s has generation %d, parents give %d", c.ID, c.Generation, max+1)
	}
	return nil
}

// Less orders commits by timestamp, then by ID.
func Less(a, b *Commit) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.ID.Less(b.ID)
}

// SortByTimestamp sorts |commits| with Less.
func SortByTimestamp(commits []*Commit) {
	sort.Slice(commits, func(i, j int) bool {
		return Less(commits[i], commits[j])
	})
}
