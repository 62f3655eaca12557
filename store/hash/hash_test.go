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

package hash

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseError(t *testing.T) {
	assert := assert.New(t)

	assertParseError := func(s string) {
		assert.Panics(func() {
			Parse(s)
		})
	}

	assertParseError("foo")
	assertParseError("0000000000000000000000000000000000000000000000000000000000000")
	assertParseError("000000000000000000000000000000000000000000000000000w")
	assertParseError("00000000000000000000000000000000000000000000000000000")

	r := Parse("0000000000000000000000000000000000000000000000000000")
	assert.True(r.IsEmpty())
}

func TestMaybeParse(t *testing.T) {
	assert := assert.New(t)

	parse := func(s string, success bool) {
		r, ok := MaybeParse(s)
		assert.Equal(success, ok, "Expected success=%t for %s", success, s)
		if ok {
			assert.Equal(s, r.String())
		} else {
			assert.Equal(emptyHash, r)
		}
	}

	parse(Of([]byte("abc")).String(), true)
	parse("0000000000000000000000000000000000000000000000000000", true)
	parse("", false)
	parse("adsfasdf", false)
	parse("sha1-00000000000000000000000000000000", false)
}

func TestStringRoundTrip(t *testing.T) {
	h := Of([]byte("ledger"))
	s := h.String()
	assert.Len(t, s, StringLen)
	assert.Equal(t, h, Parse(s))
}

func TestStringOrderMatchesByteOrder(t *testing.T) {
	var hs HashSlice
	for _, s := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		hs = append(hs, Of([]byte(s)))
	}
	sort.Sort(hs)
	for i := 1; i < len(hs); i++ {
		assert.True(t, hs[i-1].String() < hs[i].String())
	}
}

func TestOfIsDeterministic(t *testing.T) {
	assert.Equal(t, Of([]byte("abc")), Of([]byte("abc")))
	assert.NotEqual(t, Of([]byte("abc")), Of([]byte("abd")))
}

func TestFromBytes(t *testing.T) {
	h := Of([]byte("x"))
	out, err := FromBytes(h[:])
	assert.NoError(t, err)
	assert.Equal(t, h, out)

	_, err = FromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestHashSet(t *testing.T) {
	assert := assert.New(t)

	a, b, c := Of([]byte("a")), Of([]byte("b")), Of([]byte("c"))
	s := NewHashSet(a, b)
	assert.True(s.Has(a))
	assert.False(s.Has(c))
	assert.Equal(2, s.Size())

	cp := s.Copy()
	cp.Insert(c)
	assert.False(s.Has(c))
	assert.True(cp.Has(c))

	cp.Remove(a)
	assert.False(cp.Has(a))
	assert.True(s.Has(a))

	sl := NewHashSet(c, b, a).ToSlice()
	assert.True(sort.IsSorted(sl))
	assert.True(sl.HashSet().Equals(NewHashSet(a, b, c)))
}
