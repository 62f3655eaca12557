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

package d

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recovered(f func()) (r interface{}) {
	defer func() {
		r = recover()
	}()
	f()
	return nil
}

func TestPanicIfError(t *testing.T) {
	boom := errors.New("boom")
	assert.NotPanics(t, func() { PanicIfError(nil) })

	we, ok := recovered(func() { PanicIfError(boom) }).(WrappedError)
	require.True(t, ok)
	assert.Equal(t, boom, we.Cause)
	assert.True(t, errors.Is(we, boom))
}

func TestPanic(t *testing.T) {
	we, ok := recovered(func() { Panic("bad %s", "thing") }).(WrappedError)
	require.True(t, ok)
	assert.EqualError(t, we, "bad thing")
}

func TestPanicIfBool(t *testing.T) {
	assert.NotPanics(t, func() { PanicIfTrue(false) })
	assert.NotPanics(t, func() { PanicIfFalse(true) })
	assert.Panics(t, func() { PanicIfTrue(true) })
	assert.Panics(t, func() { PanicIfFalse(false) })
}
