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

// Package hash implements the digest used to address every object and
// commit of a page. A Hash is the SHA-256 of the addressed bytes, printed
// using a base32 alphabet that sorts the same way the raw bytes do.
package hash

import (
	"bytes"
	"crypto/sha256"
	"regexp"
	"sort"

	"github.com/pkg/errors"

	"github.com/dolthub/ledger/store/d"
)

const (
	// ByteLen is the number of bytes in a Hash.
	ByteLen = sha256.Size

	// StringLen is the number of characters in the string form of a Hash.
	StringLen = 52
)

var (
	pattern   = regexp.MustCompile("^([0-9a-v]{" + "52" + "})$")
	emptyHash = Hash{}

	// ErrInvalidHash is returned when a string does not encode a Hash.
	ErrInvalidHash = errors.New("invalid hash")
)

// Hash is a SHA-256 digest.
type Hash [ByteLen]byte

// Of computes the Hash of |data|.
func Of(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// New creates a Hash from a byte slice of exactly ByteLen bytes.
func New(b []byte) Hash {
	d.PanicIfFalse(len(b) == ByteLen)
	var h Hash
	copy(h[:], b)
	return h
}

// FromBytes is New without the panic.
func FromBytes(b []byte) (Hash, error) {
	if len(b) != ByteLen {
		return Hash{}, errors.Wrapf(ErrInvalidHash, "expected %d bytes, got %d", ByteLen, len(b))
	}
	return New(b), nil
}

// IsEmpty returns true if h is the zero Hash.
func (h Hash) IsEmpty() bool {
	return h == emptyHash
}

// String returns the base32 form of h.
func (h Hash) String() string {
	return encode(h[:])
}

// Bytes returns a copy of the digest.
func (h Hash) Bytes() []byte {
	b := make([]byte, ByteLen)
	copy(b, h[:])
	return b
}

// Less compares two Hashes by their raw bytes.
func (h Hash) Less(other Hash) bool {
	return h.Compare(other) < 0
}

// Compare returns -1, 0 or 1 comparing the raw bytes of h and other.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// MaybeParse parses |s|, returning false if it is not a valid Hash.
func MaybeParse(s string) (Hash, bool) {
	if !pattern.MatchString(s) {
		return emptyHash, false
	}
	data, err := decode(s)
	if err != nil || len(data) != ByteLen {
		return emptyHash, false
	}
	return New(data), true
}

// Parse parses |s| and panics if it is not a valid Hash.
func Parse(s string) Hash {
	r, ok := MaybeParse(s)
	if !ok {
		d.Panic("could not parse hash: %s", s)
	}
	return r
}

// IsValid returns true if |s| is the string form of a Hash.
func IsValid(s string) bool {
	_, ok := MaybeParse(s)
	return ok
}

// HashSlice is a sortable slice of Hashes.
type HashSlice []Hash

func (hs HashSlice) Len() int {
	return len(hs)
}

func (hs HashSlice) Less(i, j int) bool {
	return hs[i].Less(hs[j])
}

func (hs HashSlice) Swap(i, j int) {
	hs[i], hs[j] = hs[j], hs[i]
}

// Equals returns true if both slices hold the same hashes in the same order.
func (hs HashSlice) Equals(other HashSlice) bool {
	if len(hs) != len(other) {
		return false
	}
	for i := range hs {
		if hs[i] != other[i] {
			return false
		}
	}
	return true
}

// HashSet converts the slice to a set.
func (hs HashSlice) HashSet() HashSet {
	hss := make(HashSet, len(hs))
	for _, h := range hs {
		hss.Insert(h)
	}
	return hss
}

// HashSet is an unordered set of Hashes.
type HashSet map[Hash]struct{}

// NewHashSet creates a set containing |hashes|.
func NewHashSet(hashes ...Hash) HashSet {
	out := make(HashSet, len(hashes))
	for _, h := range hashes {
		out.Insert(h)
	}
	return out
}

// Size returns the number of hashes in the set.
func (hs HashSet) Size() int {
	return len(hs)
}

// Insert adds |h| to the set.
func (hs HashSet) Insert(h Hash) {
	hs[h] = struct{}{}
}

// InsertAll adds every member of |other| to the set.
func (hs HashSet) InsertAll(other HashSet) {
	for h := range other {
		hs[h] = struct{}{}
	}
}

// Has returns true if |h| is in the set.
func (hs HashSet) Has(h Hash) bool {
	_, ok := hs[h]
	return ok
}

// Remove deletes |h| from the set.
func (hs HashSet) Remove(h Hash) {
	delete(hs, h)
}

// Copy returns a new set with the same members.
func (hs HashSet) Copy() HashSet {
	out := make(HashSet, len(hs))
	for h := range hs {
		out[h] = struct{}{}
	}
	return out
}

// ToSlice returns the members sorted by raw bytes.
func (hs HashSet) ToSlice() HashSlice {
	out := make(HashSlice, 0, len(hs))
	for h := range hs {
		out = append(out, h)
	}
	sort.Sort(out)
	return out
}

// Equals returns true if both sets have the same members.
func (hs HashSet) Equals(other HashSet) bool {
	if hs.Size() != other.Size() {
		return false
	}
	for h := range hs {
		if !other.Has(h) {
			return false
		}
	}
	return true
}
