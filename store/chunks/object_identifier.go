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

// Package chunks is the content-addressed object store of a page. Every
// object is stored once under the digest of its type and bytes.
package chunks

import (
	"crypto/sha256"
	"sort"

	"github.com/pkg/errors"

	"github.com/dolthub/ledger/store/hash"
)

// ObjectType distinguishes the kinds of objects that share one store.
type ObjectType uint8

const (
	// TreeNodeObject is a serialized B-tree node.
	TreeNodeObject ObjectType = iota + 1
	// BlobObject is a value, or one piece of a split value.
	BlobObject
	// IndexObject lists the pieces of a value too large for one object.
	IndexObject
)

func (t ObjectType) String() string {
	switch t {
	case TreeNodeObject:
		return "tree_node"
	case BlobObject:
		return "blob"
	case IndexObject:
		return "index"
	}
	return "unknown"
}

func (t ObjectType) valid() bool {
	return t >= TreeNodeObject && t <= IndexObject
}

// ObjectIdentifier names an object. The zero value names no object and is
// used by tree nodes for empty subtrees.
type ObjectIdentifier struct {
	Digest hash.Hash
}

// ComputeObjectIdentifier returns the identifier of |data| stored as |t|.
func ComputeObjectIdentifier(t ObjectType, data []byte) ObjectIdentifier {
	h := sha256.New()
	h.Write([]byte{byte(t)})
	h.Write(data)
	var id ObjectIdentifier
	copy(id.Digest[:], h.Sum(nil))
	return id
}

// ObjectIdentifierFromBytes parses the 32 byte form returned by Bytes.
func ObjectIdentifierFromBytes(b []byte) (ObjectIdentifier, error) {
	h, err := hash.FromBytes(b)
	if err != nil {
		return ObjectIdentifier{}, errors.Wrap(err, "object identifier")
	}
	return ObjectIdentifier{Digest: h}, nil
}

func (id ObjectIdentifier) IsEmpty() bool {
	return id.Digest.IsEmpty()
}

func (id ObjectIdentifier) Bytes() []byte {
	return id.Digest.Bytes()
}

func (id ObjectIdentifier) String() string {
	return id.Digest.String()
}

func (id ObjectIdentifier) Less(other ObjectIdentifier) bool {
	return id.Digest.Less(other.Digest)
}

// IdentifierSet is a set of ObjectIdentifiers.
type IdentifierSet map[ObjectIdentifier]struct{}

func NewIdentifierSet(ids ...ObjectIdentifier) IdentifierSet {
	s := make(IdentifierSet, len(ids))
	for _, id := range ids {
		s.Insert(id)
	}
	return s
}

func (s IdentifierSet) Insert(id ObjectIdentifier) {
	s[id] = struct{}{}
}

func (s IdentifierSet) Has(id ObjectIdentifier) bool {
	_, ok := s[id]
	return ok
}

func (s IdentifierSet) Remove(id ObjectIdentifier) {
	delete(s, id)
}

// ToSlice returns the identifiers in digest order.
func (s IdentifierSet) ToSlice() []ObjectIdentifier {
	hs := make(hash.HashSlice, 0, len(s))
	for id := range s {
		hs = append(hs, id.Digest)
	}
	sort.Sort(hs)
	out := make([]ObjectIdentifier, len(hs))
	for i, h := range hs {
		out[i] = ObjectIdentifier{Digest: h}
	}
	return out
}
