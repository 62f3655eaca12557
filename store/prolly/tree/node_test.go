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
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/ledger/store/chunks"
)

func TestNodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		node Node
	}{
		{"empty leaf", Node{Level: 0, Entries: []Entry{}}},
		{"leaf", Node{Level: 0, Entries: []Entry{testEntry("a", "1"), {Key: []byte("b"), ObjectID: valueID("2"), Priority: Lazy}}}},
		{"empty key", Node{Level: 0, Entries: []Entry{testEntry("", "1")}}},
		{"internal", Node{
			Level:    3,
			Entries:  []Entry{testEntry("m", "1")},
			Children: []chunks.ObjectIdentifier{valueID("left"), {}},
		}},
		{"internal without entries", Node{
			Level:    1,
			Entries:  []Entry{},
			Children: []chunks.ObjectIdentifier{valueID("only")},
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := EncodeNode(test.node.Level, test.node.Entries, test.node.Children)
			level, entries, children, err := DecodeNode(data)
			require.NoError(t, err)
			assert.Equal(t, test.node.Level, level)
			assert.Equal(t, test.node.Entries, entries)
			assert.Equal(t, test.node.Children, children)
			assert.True(t, CheckValidTreeNodeSerialization(data))
			assert.Equal(t, data, EncodeNode(level, entries, children), "encoding is deterministic")
		})
	}
}

func TestDecodeNodeRejectsMalformed(t *testing.T) {
	garbage := [][]byte{
		nil,
		[]byte("short"),
		[]byte("0123LTND but not a flatbuffer at all"),
	}
	for _, g := range garbage {
		_, _, _, err := DecodeNode(g)
		assert.ErrorIs(t, err, ErrParse)
		assert.False(t, CheckValidTreeNodeSerialization(g))
	}

	invalid := map[string][]byte{
		"unsorted":       EncodeNode(0, []Entry{testEntry("b", "1"), testEntry("a", "2")}, nil),
		"duplicate":      EncodeNode(0, []Entry{testEntry("a", "1"), testEntry("a", "2")}, nil),
		"leaf children":  EncodeNode(0, []Entry{testEntry("a", "1")}, []chunks.ObjectIdentifier{{}}),
		"child count":    EncodeNode(1, []Entry{testEntry("a", "1")}, []chunks.ObjectIdentifier{{}}),
		"long key":       EncodeNode(0, []Entry{testEntry(string(make([]byte, MaxKeySize+1)), "1")}, nil),
		"bad priority":   EncodeNode(0, []Entry{{Key: []byte("a"), ObjectID: valueID("1"), Priority: 7}}, nil),
		"no children":    EncodeNode(2, []Entry{}, nil),
	}
	for name, data := range invalid {
		_, _, _, err := DecodeNode(data)
		assert.ErrorIs(t, err, ErrParse, name)
		assert.False(t, CheckValidTreeNodeSerialization(data), name)
	}

	good := EncodeNode(0, []Entry{testEntry("a", "1"), testEntry("b", "2")}, nil)
	for i := 8; i < len(good); i += 7 {
		truncated := good[:i]
		assert.False(t, CheckValidTreeNodeSerialization(truncated), "truncated at %d", i)
	}
}

func TestGetEntryOrChildIndex(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		keys := map[string]bool{}
		n := r.Intn(40)
		for i := 0; i < n; i++ {
			keys[string([]byte{byte(r.Intn(64)), byte(r.Intn(64))})] = true
		}
		var sorted []string
		for k := range keys {
			sorted = append(sorted, k)
		}
		sort.Strings(sorted)
		entries := make([]Entry, len(sorted))
		for i, k := range sorted {
			entries[i] = testEntry(k, "v")
		}

		for q := 0; q < 100; q++ {
			query := []byte{byte(r.Intn(64)), byte(r.Intn(64))}
			idx := GetEntryOrChildIndex(entries, query)
			for i := 0; i < idx; i++ {
				assert.True(t, bytes.Compare(entries[i].Key, query) < 0)
			}
			if idx < len(entries) {
				assert.True(t, bytes.Compare(entries[idx].Key, query) >= 0)
			}
			if keys[string(query)] {
				assert.Equal(t, query, entries[idx].Key)
			}
		}
	}
}
