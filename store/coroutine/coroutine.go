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

// Package coroutine runs logical operations that wait on callbacks as
// straight-line code. A Service lets one of its coroutines run at a time;
// a coroutine gives up its turn when it yields and takes it back when it is
// resumed.
package coroutine

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrInterrupted is returned by operations whose coroutine was interrupted.
var ErrInterrupted = errors.New("coroutine interrupted")

// ContinuationStatus tells resumed code whether it may continue.
type ContinuationStatus int

const (
	OK ContinuationStatus = iota
	// Interrupted means the owner of the coroutine is going away; the
	// resumed code must unwind without touching shared state.
	Interrupted
)

func (s ContinuationStatus) String() string {
	if s == OK {
		return "ok"
	}
	return "interrupted"
}

// State is the lifecycle state of a coroutine.
type State int

const (
	Created State = iota
	Running
	Suspended
	Completed
	InterruptedState
)

// Handler is the view a coroutine has of itself.
type Handler interface {
	// Yield suspends the coroutine until Resume is called and returns the
	// status passed to Resume, or Interrupted.
	Yield() ContinuationStatus

	// Resume wakes a coroutine suspended in Yield. It may be called from any
	// goroutine, and before the matching Yield.
	Resume(status ContinuationStatus)

	// Context is cancelled when the coroutine is interrupted.
	Context() context.Context
}

// Service owns a set of coroutines.
type Service struct {
	baton chan struct{}

	mu       sync.Mutex
	handlers map[*handler]struct{}
	closed   bool
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService returns a Service.
func NewService() *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		baton:    make(chan struct{}, 1),
		handlers: make(map[*handler]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Service) acquire() {
	s.baton <- struct{}{}
}

func (s *Service) release() {
	<-s.baton
}

// StartCoroutine runs |fn| in a new coroutine. If the service is closed the
// coroutine starts interrupted.
func (s *Service) StartCoroutine(fn func(h Handler)) {
	s.start(fn)
}

func (s *Service) start(fn func(h Handler)) *handler {
	ctx, cancel := context.WithCancel(s.ctx)
	h := &handler{
		s:           s,
		resume:      make(chan ContinuationStatus, 1),
		interruptCh: make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		h.interrupt()
	} else {
		s.handlers[h] = struct{}{}
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(h.done)
		s.acquire()
		h.setState(Running)
		defer func() {
			s.mu.Lock()
			delete(s.handlers, h)
			if h.interrupted {
				h.state = InterruptedState
			} else {
				h.state = Completed
			}
			s.mu.Unlock()
			h.cancel()
			s.release()
		}()
		fn(h)
	}()
	return h
}

// Run runs |fn| in a coroutine and waits for it to return. It returns
// ErrInterrupted if the coroutine was interrupted and |fn| did not report
// an error of its own. Cancelling |ctx| interrupts the coroutine; Run still
// returns only after |fn| has.
func (s *Service) Run(ctx context.Context, fn func(h Handler) error) error {
	var err error
	h := s.start(func(h Handler) {
		err = fn(h)
	})
	select {
	case <-h.done:
	case <-ctx.Done():
		s.mu.Lock()
		h.interrupt()
		s.mu.Unlock()
		<-h.done
		return ctx.Err()
	}
	if err == nil && h.wasInterrupted() {
		return ErrInterrupted
	}
	return err
}

// Close interrupts every coroutine and waits for all of them to return.
// It must not be called from a coroutine of this service.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	for h := range s.handlers {
		h.interrupt()
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Len returns the number of live coroutines.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

type handler struct {
	s           *Service
	resume      chan ContinuationStatus
	interruptCh chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}

	// guarded by s.mu
	state       State
	interrupted bool
}

var _ Handler = (*handler)(nil)

// interrupt must be called with s.mu held.
func (h *handler) interrupt() {
	if h.interrupted {
		return
	}
	h.interrupted = true
	close(h.interruptCh)
	h.cancel()
}

func (h *handler) setState(st State) {
	h.s.mu.Lock()
	h.state = st
	h.s.mu.Unlock()
}

func (h *handler) wasInterrupted() bool {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.interrupted
}

func (h *handler) Yield() ContinuationStatus {
	h.s.mu.Lock()
	if h.interrupted {
		h.s.mu.Unlock()
		return Interrupted
	}
	h.state = Suspended
	h.s.mu.Unlock()

	h.s.release()
	var status ContinuationStatus
	select {
	case status = <-h.resume:
	case <-h.interruptCh:
		status = Interrupted
	}
	h.s.acquire()

	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.interrupted {
		status = Interrupted
	}
	h.state = Running
	return status
}

func (h *handler) Resume(status ContinuationStatus) {
	select {
	case h.resume <- status:
	default:
	}
}

func (h *handler) Context() context.Context {
	return h.ctx
}

// SyncCall calls |fn| and suspends the coroutine until |fn| delivers a
// value to its callback, which may happen synchronously. If the coroutine is
// interrupted first, the zero value and Interrupted are returned and the
// late callback is ignored.
func SyncCall[T any](h Handler, fn func(callback func(T))) (T, ContinuationStatus) {
	var (
		mu        sync.Mutex
		result    T
		completed bool
		yielded   bool
		abandoned bool
	)
	fn(func(v T) {
		mu.Lock()
		if completed || abandoned {
			mu.Unlock()
			return
		}
		completed = true
		result = v
		wake := yielded
		mu.Unlock()
		if wake {
			h.Resume(OK)
		}
	})

	mu.Lock()
	if completed {
		mu.Unlock()
		return result, OK
	}
	yielded = true
	mu.Unlock()

	if h.Yield() == Interrupted {
		mu.Lock()
		abandoned = true
		mu.Unlock()
		var zero T
		return zero, Interrupted
	}
	mu.Lock()
	defer mu.Unlock()
	return result, OK
}
