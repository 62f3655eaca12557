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

package coroutine

import (
	"sync"

	"github.com/dolthub/ledger/store/d"
)

// Waiter collects the results of a set of callbacks. It finalizes once every
// callback created by NewCallback has fired, or as soon as one of them
// reports an error.
type Waiter[T any] struct {
	mu        sync.Mutex
	results   []T
	pending   int
	err       error
	finalized bool
	done      bool
	onDone    func([]T, error)
}

// NewWaiter returns an empty Waiter.
func NewWaiter[T any]() *Waiter[T] {
	return &Waiter[T]{}
}

// NewCallback returns a callback whose value is stored at the position of the
// call to NewCallback. It must not be called after Finalize.
func (w *Waiter[T]) NewCallback() func(T, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d.PanicIfTrue(w.finalized)
	idx := len(w.results)
	w.results = append(w.results, *new(T))
	w.pending++
	var once sync.Once
	return func(v T, err error) {
		once.Do(func() {
			w.mu.Lock()
			w.pending--
			if err != nil && w.err == nil {
				w.err = err
			} else {
				w.results[idx] = v
			}
			fire := w.readyLocked()
			w.mu.Unlock()
			if fire != nil {
				fire()
			}
		})
	}
}

// Finalize registers |cb|, which is called exactly once with the results in
// callback order, or with the first error.
func (w *Waiter[T]) Finalize(cb func([]T, error)) {
	w.mu.Lock()
	w.finalized = true
	w.onDone = cb
	fire := w.readyLocked()
	w.mu.Unlock()
	if fire != nil {
		fire()
	}
}

func (w *Waiter[T]) readyLocked() func() {
	if w.done || !w.finalized || (w.pending > 0 && w.err == nil) {
		return nil
	}
	w.done = true
	cb, err := w.onDone, w.err
	if err != nil {
		return func() { cb(nil, err) }
	}
	results := w.results
	return func() { cb(results, nil) }
}

// Wait suspends the coroutine until |w| finalizes.
func Wait[T any](h Handler, w *Waiter[T]) ([]T, error) {
	type outcome struct {
		results []T
		err     error
	}
	o, status := SyncCall(h, func(cb func(outcome)) {
		w.Finalize(func(results []T, err error) {
			cb(outcome{results, err})
		})
	})
	if status == Interrupted {
		return nil, ErrInterrupted
	}
	return o.results, o.err
}
