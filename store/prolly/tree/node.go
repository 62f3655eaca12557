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

package tree

import (
	"bytes"
	"fmt"
	"sort"

	fb "github.com/google/flatbuffers/go"
	"github.com/pkg/errors"

	"github.com/dolthub/ledger/gen/fb/serial"
	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/hash"
)

// MaxKeySize is the largest key an entry may have.
const MaxKeySize = 256

var (
	// ErrParse is returned for bytes that are not a valid serialized node.
	ErrParse = errors.New("malformed tree node")

	// ErrNotFound is returned when a key has no entry in a tree.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidKey is returned for keys longer than MaxKeySize.
	ErrInvalidKey = errors.New("invalid key")
)

var treeNodeFileID = []byte(serial.TreeNodeFileID)

// Priority tells sync whether the value of an entry must be fetched along
// with the commit (Eager) or only when read (Lazy).
type Priority uint8

const (
	Eager Priority = Priority(serial.PriorityEager)
	Lazy  Priority = Priority(serial.PriorityLazy)
)

func (p Priority) String() string {
	return serial.Priority(p).String()
}

// Entry is a key and the object holding its value.
type Entry struct {
	Key      []byte
	ObjectID chunks.ObjectIdentifier
	Priority Priority
}

func (e Entry) Equals(other Entry) bool {
	return bytes.Equal(e.Key, other.Key) && e.ObjectID == other.ObjectID && e.Priority == other.Priority
}

func (e Entry) String() string {
	return fmt.Sprintf("%q:%s(%s)", e.Key, e.ObjectID, e.Priority)
}

// Node is one B-tree node. Leaves have Level 0 and no children. Internal
// nodes have one child more than entries; Children[i] holds the keys between
// Entries[i-1] and Entries[i], and an empty identifier stands for an empty
// subtree.
type Node struct {
	Level    uint8
	Entries  []Entry
	Children []chunks.ObjectIdentifier
}

func (n *Node) IsLeaf() bool {
	return n.Level == 0
}

// Bytes returns the serialized form of the node.
func (n *Node) Bytes() []byte {
	return EncodeNode(n.Level, n.Entries, n.Children)
}

// ValidateKey returns ErrInvalidKey if |key| cannot be stored in a tree.
func ValidateKey(key []byte) error {
	if len(key) > MaxKeySize {
		return errors.Wrapf(ErrInvalidKey, "key of %d bytes exceeds %d", len(key), MaxKeySize)
	}
	return nil
}

// EncodeNode serializes a node. The encoding is deterministic: equal nodes
// always produce equal bytes.
func EncodeNode(level uint8, entries []Entry, children []chunks.ObjectIdentifier) []byte {
	b := fb.NewBuilder(estimateNodeSize(entries, children))

	entryOffs := make([]fb.UOffsetT, len(entries))
	for i, e := range entries {
		key := b.CreateByteVector(e.Key)
		id := b.CreateByteVector(e.ObjectID.Bytes())
		serial.TreeEntryStart(b)
		serial.TreeEntryAddKey(b, key)
		serial.TreeEntryAddObjectId(b, id)
		serial.TreeEntryAddPriority(b, serial.Priority(e.Priority))
		entryOffs[i] = serial.TreeEntryEnd(b)
	}
	serial.TreeNodeStartEntriesVector(b, len(entryOffs))
	for i := len(entryOffs) - 1; i >= 0; i-- {
		b.PrependUOffsetT(entryOffs[i])
	}
	entriesOff := b.EndVector(len(entryOffs))

	var childrenOff fb.UOffsetT
	if len(children) > 0 {
		addrs := make([]byte, 0, len(children)*hash.ByteLen)
		for _, c := range children {
			addrs = append(addrs, c.Bytes()...)
		}
		childrenOff = b.CreateByteVector(addrs)
	}

	serial.TreeNodeStart(b)
	serial.TreeNodeAddTreeLevel(b, level)
	serial.TreeNodeAddEntries(b, entriesOff)
	if len(children) > 0 {
		serial.TreeNodeAddChildren(b, childrenOff)
	}
	b.FinishWithFileIdentifier(serial.TreeNodeEnd(b), treeNodeFileID)
	return b.FinishedBytes()
}

func estimateNodeSize(entries []Entry, children []chunks.ObjectIdentifier) int {
	sz := 64 + len(children)*hash.ByteLen
	for _, e := range entries {
		sz += len(e.Key) + hash.ByteLen + 32
	}
	return sz
}

// DecodeNode parses a serialized node. Any malformation, including keys out
// of order, oversized keys, a child count that does not match the entry
// count or an unknown priority, is reported as ErrParse.
func DecodeNode(data []byte) (level uint8, entries []Entry, children []chunks.ObjectIdentifier, err error) {
	defer func() {
		if r := recover(); r != nil {
			level, entries, children = 0, nil, nil
			err = errors.Wrapf(ErrParse, "%v", r)
		}
	}()

	if serial.GetFileID(data) != serial.TreeNodeFileID {
		return 0, nil, nil, errors.Wrap(ErrParse, "missing tree node file identifier")
	}
	msg := serial.GetRootAsTreeNode(data, 0)
	level = msg.TreeLevel()

	n := msg.EntriesLength()
	entries = make([]Entry, n)
	var te serial.TreeEntry
	for i := 0; i < n; i++ {
		if !msg.Entries(&te, i) {
			return 0, nil, nil, errors.Wrapf(ErrParse, "missing entry %d", i)
		}
		key := te.KeyBytes()
		if len(key) > MaxKeySize {
			return 0, nil, nil, errors.Wrapf(ErrParse, "entry %d: key of %d bytes", i, len(key))
		}
		if i > 0 && bytes.Compare(entries[i-1].Key, key) >= 0 {
			return 0, nil, nil, errors.Wrapf(ErrParse, "entry %d: keys not strictly increasing", i)
		}
		id, err := chunks.ObjectIdentifierFromBytes(te.ObjectIdBytes())
		if err != nil {
			return 0, nil, nil, errors.Wrapf(ErrParse, "entry %d: %v", i, err)
		}
		p := te.Priority()
		if p != serial.PriorityEager && p != serial.PriorityLazy {
			return 0, nil, nil, errors.Wrapf(ErrParse, "entry %d: priority %d", i, p)
		}
		entries[i] = Entry{Key: append([]byte{}, key...), ObjectID: id, Priority: Priority(p)}
	}

	addrs := msg.ChildrenBytes()
	if len(addrs)%hash.ByteLen != 0 {
		return 0, nil, nil, errors.Wrapf(ErrParse, "children vector of %d bytes", len(addrs))
	}
	nc := len(addrs) / hash.ByteLen
	if level == 0 && nc != 0 {
		return 0, nil, nil, errors.Wrapf(ErrParse, "leaf with %d children", nc)
	}
	if level > 0 && nc != n+1 {
		return 0, nil, nil, errors.Wrapf(ErrParse, "level %d node with %d entries and %d children", level, n, nc)
	}
	if nc > 0 {
		children = make([]chunks.ObjectIdentifier, nc)
		for i := range children {
			children[i] = chunks.ObjectIdentifier{Digest: hash.New(addrs[i*hash.ByteLen : (i+1)*hash.ByteLen])}
		}
	}
	return level, entries, children, nil
}

// ParseNode is DecodeNode returning a *Node.
func ParseNode(data []byte) (*Node, error) {
	level, entries, children, err := DecodeNode(data)
	if err != nil {
		return nil, err
	}
	return &Node{Level: level, Entries: entries, Children: children}, nil
}

// CheckValidTreeNodeSerialization returns true if |data| decodes to a node
// that encodes back to exactly |data|.
func CheckValidTreeNodeSerialization(data []byte) bool {
	level, entries, children, err := DecodeNode(data)
	if err != nil {
		return false
	}
	return bytes.Equal(data, EncodeNode(level, entries, children))
}

// GetEntryOrChildIndex returns the index of |key| in |entries| if present,
// otherwise the index of the first entry with a greater key, which is also
// the index of the child whose range holds |key|.
func GetEntryOrChildIndex(entries []Entry, key []byte) int {
	return sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].Key, key) >= 0
	})
}
