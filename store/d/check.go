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

import "github.com/pkg/errors"

// WrappedError is the value thrown by Panic and the PanicIf helpers. They
// are meant for invariants whose violation means the program is broken.
type WrappedError struct {
	Cause error
}

func (we WrappedError) Error() string {
	return we.Cause.Error()
}

func (we WrappedError) Unwrap() error {
	return we.Cause
}

// Panic panics with a WrappedError built from |format|.
func Panic(format string, args ...interface{}) {
	panic(WrappedError{errors.Errorf(format, args...)})
}

// PanicIfError panics if |err| is non-nil.
func PanicIfError(err error) {
	if err != nil {
		panic(WrappedError{err})
	}
}

// PanicIfTrue panics if |b| is true.
func PanicIfTrue(b bool) {
	if b {
		panic(WrappedError{errors.New("expected false")})
	}
}

// PanicIfFalse panics if |b| is false.
func PanicIfFalse(b bool) {
	if !b {
		panic(WrappedError{errors.New("expected true")})
	}
}
