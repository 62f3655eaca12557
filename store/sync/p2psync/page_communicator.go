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

package p2psync

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/ledger/gen/fb/serial"
	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/datas"
	"github.com/dolthub/ledger/store/hash"
	"github.com/dolthub/ledger/store/p2p"
	"github.com/dolthub/ledger/store/pagestorage"
)

const (
	defaultRequestTimeout = 10 * time.Second
	taskQueueSize         = 256
	// maxPartialCommits bounds the commits kept while their ancestors are
	// requested from a peer.
	maxPartialCommits = 10000
)

// ErrClosed is returned for requests outstanding when a communicator closes.
var ErrClosed = errors.New("page communicator closed")

type Options struct {
	RequestTimeout time.Duration
	Log            *logrus.Entry
}

// PageCommunicator syncs one page with the devices of a mesh.
type PageCommunicator struct {
	d       *Dispatcher
	ps      *pagestorage.PageStorage
	key     pageKey
	timeout time.Duration
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	// applies runs storage writes, which may wait on peers. serves answers
	// peer requests, so a blocked apply never stalls the other side.
	applies chan func()
	serves  chan func()
	wg      sync.WaitGroup

	mu       sync.Mutex
	started  bool
	peers    map[p2p.DeviceID]bool
	watchers map[p2p.DeviceID]bool
	pending  map[ulid.ULID]chan *message
	partial  map[p2p.DeviceID][]pagestorage.CommitIDAndBytes
	entropy  *ulid.MonotonicEntropy
}

var _ pagestorage.SyncDelegate = (*PageCommunicator)(nil)
var _ pagestorage.CommitWatcher = (*PageCommunicator)(nil)

func NewPageCommunicator(d *Dispatcher, ps *pagestorage.PageStorage, opts Options) *PageCommunicator {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Log == nil {
		opts.Log = d.log
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PageCommunicator{
		d:        d,
		ps:       ps,
		key:      pageKey{ps.Namespace(), ps.PageID()},
		timeout:  opts.RequestTimeout,
		log:      opts.Log.WithFields(logrus.Fields{"component": "p2p_sync", "page": ps.PageID()}),
		ctx:      ctx,
		cancel:   cancel,
		applies:  make(chan func(), taskQueueSize),
		serves:   make(chan func(), taskQueueSize),
		peers:    make(map[p2p.DeviceID]bool),
		watchers: make(map[p2p.DeviceID]bool),
		pending:  make(map[ulid.ULID]chan *message),
		partial:  make(map[p2p.DeviceID][]pagestorage.CommitIDAndBytes),
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// Start announces interest in the page to every device of the mesh.
func (pc *PageCommunicator) Start() {
	pc.mu.Lock()
	if pc.started {
		pc.mu.Unlock()
		return
	}
	pc.started = true
	pc.mu.Unlock()

	pc.wg.Add(2)
	go pc.work(pc.applies)
	go pc.work(pc.serves)
	pc.d.register(pc)
	pc.ps.AddCommitWatcher(pc)
	for _, dev := range pc.d.mesh.GetDeviceList() {
		pc.d.send(dev, pc.newMessage(serial.MessageKindWatchStart))
	}
}

// Close tells peers to stop pushing commits and fails outstanding requests.
func (pc *PageCommunicator) Close() {
	pc.ps.RemoveCommitWatcher(pc)
	pc.d.unregister(pc)

	pc.mu.Lock()
	peers := pc.sortedLocked(pc.peers)
	pending := pc.pending
	pc.pending = make(map[ulid.ULID]chan *message)
	pc.mu.Unlock()

	for _, dev := range peers {
		pc.d.send(dev, pc.newMessage(serial.MessageKindWatchStop))
	}
	pc.cancel()
	for _, ch := range pending {
		close(ch)
	}
	pc.wg.Wait()
}

// Peers returns the devices known to have the page.
func (pc *PageCommunicator) Peers() []p2p.DeviceID {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.sortedLocked(pc.peers)
}

func (pc *PageCommunicator) sortedLocked(set map[p2p.DeviceID]bool) []p2p.DeviceID {
	out := make([]p2p.DeviceID, 0, len(set))
	for dev := range set {
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (pc *PageCommunicator) newMessage(kind serial.MessageKind) *message {
	return &message{kind: kind, namespace: pc.key.namespace, page: pc.key.page}
}

func (pc *PageCommunicator) work(tasks <-chan func()) {
	defer pc.wg.Done()
	for {
		select {
		case <-pc.ctx.Done():
			return
		case fn := <-tasks:
			fn()
		}
	}
}

// enqueue runs |fn| on the worker reading |tasks|. Storage calls may wait
// for other messages, so they never run on the mesh's handler goroutine.
func (pc *PageCommunicator) enqueue(tasks chan<- func(), fn func()) {
	go func() {
		select {
		case tasks <- fn:
		case <-pc.ctx.Done():
		}
	}()
}

func (pc *PageCommunicator) onDeviceChange(device p2p.DeviceID, change p2p.DeviceChange) {
	switch change {
	case p2p.DeviceNew:
		pc.d.send(device, pc.newMessage(serial.MessageKindWatchStart))
	case p2p.DeviceDeleted:
		pc.mu.Lock()
		delete(pc.peers, device)
		delete(pc.watchers, device)
		delete(pc.partial, device)
		pc.mu.Unlock()
	}
}

func (pc *PageCommunicator) addPeer(dev p2p.DeviceID) {
	pc.mu.Lock()
	pc.peers[dev] = true
	pc.mu.Unlock()
}

func (pc *PageCommunicator) onMessage(from p2p.DeviceID, m *message) {
	if m.status == serial.ResponseStatusUnknownPage {
		pc.mu.Lock()
		delete(pc.peers, from)
		pc.mu.Unlock()
		pc.deliver(m)
		return
	}

	switch m.kind {
	case serial.MessageKindWatchStart:
		pc.mu.Lock()
		known := pc.peers[from]
		pc.peers[from] = true
		pc.watchers[from] = true
		pc.mu.Unlock()
		if !known {
			// our own WatchStart may have reached |from| before it had the page
			pc.d.send(from, pc.newMessage(serial.MessageKindWatchStart))
		}
		pc.enqueue(pc.serves, func() { pc.sendHeads(from) })
	case serial.MessageKindWatchStop:
		pc.mu.Lock()
		delete(pc.watchers, from)
		delete(pc.peers, from)
		pc.mu.Unlock()
	case serial.MessageKindCommitRequest:
		pc.addPeer(from)
		pc.enqueue(pc.serves, func() { pc.serveCommits(from, m) })
	case serial.MessageKindObjectRequest:
		pc.addPeer(from)
		pc.enqueue(pc.serves, func() { pc.serveObjects(from, m) })
	case serial.MessageKindCommitResponse:
		pc.addPeer(from)
		pc.enqueue(pc.applies, func() { pc.addCommits(from, m.commits) })
	case serial.MessageKindObjectResponse:
		pc.addPeer(from)
		pc.deliver(m)
	}
}

// deliver hands a response to the request waiting for it.
func (pc *PageCommunicator) deliver(m *message) {
	if len(m.requestID) == 0 {
		return
	}
	var id ulid.ULID
	if err := id.UnmarshalBinary(m.requestID); err != nil {
		pc.log.WithError(err).Debug("bad request id")
		return
	}
	pc.mu.Lock()
	ch, ok := pc.pending[id]
	delete(pc.pending, id)
	pc.mu.Unlock()
	if ok {
		ch <- m
	}
}

func commitPayloads(commits []*datas.Commit) []payload {
	out := make([]payload, len(commits))
	for i, c := range commits {
		out[i] = payload{id: c.ID.Bytes(), data: c.StorageBytes(), found: true}
	}
	return out
}

func (pc *PageCommunicator) sendHeads(to p2p.DeviceID) {
	heads, err := pc.ps.GetHeadCommits(pc.ctx)
	if err != nil {
		pc.log.WithError(err).Warn("reading heads")
		return
	}
	m := pc.newMessage(serial.MessageKindCommitResponse)
	m.commits = commitPayloads(heads)
	pc.d.send(to, m)
}

// OnNewCommits pushes new commits to the devices watching the page.
func (pc *PageCommunicator) OnNewCommits(commits []*datas.Commit, source pagestorage.ChangeSource) {
	pc.mu.Lock()
	watchers := pc.sortedLocked(pc.watchers)
	pc.mu.Unlock()
	if len(watchers) == 0 {
		return
	}
	m := pc.newMessage(serial.MessageKindCommitResponse)
	m.commits = commitPayloads(commits)
	for _, dev := range watchers {
		pc.d.send(dev, m)
	}
}

func (pc *PageCommunicator) serveCommits(to p2p.DeviceID, req *message) {
	resp := pc.newMessage(serial.MessageKindCommitResponse)
	resp.requestID = req.requestID
	for _, p := range req.commits {
		id, err := hash.FromBytes(p.id)
		if err != nil {
			resp.commits = append(resp.commits, payload{id: p.id})
			continue
		}
		c, err := pc.ps.GetCommit(pc.ctx, id)
		if err != nil {
			resp.commits = append(resp.commits, payload{id: p.id})
			continue
		}
		resp.commits = append(resp.commits, payload{id: p.id, data: c.StorageBytes(), found: true})
	}
	pc.d.send(to, resp)
}

func (pc *PageCommunicator) serveObjects(to p2p.DeviceID, req *message) {
	resp := pc.newMessage(serial.MessageKindObjectResponse)
	resp.requestID = req.requestID
	for _, p := range req.objects {
		id, err := chunks.ObjectIdentifierFromBytes(p.id)
		if err != nil {
			resp.objects = append(resp.objects, payload{id: p.id})
			continue
		}
		stored, err := pc.ps.GetStoredObject(pc.ctx, id)
		if err != nil {
			resp.objects = append(resp.objects, payload{id: p.id})
			continue
		}
		resp.objects = append(resp.objects, payload{id: p.id, data: stored, found: true})
	}
	pc.d.send(to, resp)
}

// addCommits adds commits received from |from|. When their ancestry is
// incomplete they are kept and the missing ancestors are requested.
func (pc *PageCommunicator) addCommits(from p2p.DeviceID, ps []payload) {
	var incoming []pagestorage.CommitIDAndBytes
	for _, p := range ps {
		if !p.found || len(p.id) != hash.ByteLen {
			continue
		}
		incoming = append(incoming, pagestorage.CommitIDAndBytes{ID: hash.New(p.id), Bytes: p.data})
	}

	pc.mu.Lock()
	batch := append(pc.partial[from], incoming...)
	delete(pc.partial, from)
	pc.mu.Unlock()
	if len(incoming) == 0 || len(batch) == 0 {
		return
	}

	err := pc.ps.AddCommitsFromSync(pc.ctx, batch, pagestorage.SourceP2P)
	if errors.Is(err, datas.ErrDanglingCommit) {
		missing, merr := pc.missingParents(batch)
		if merr != nil || len(missing) == 0 || len(batch) > maxPartialCommits {
			pc.log.WithError(err).Warn("dropping commits with incomplete history")
			return
		}
		pc.mu.Lock()
		pc.partial[from] = batch
		pc.mu.Unlock()

		req := pc.newMessage(serial.MessageKindCommitRequest)
		for _, id := range missing {
			req.commits = append(req.commits, payload{id: id.Bytes()})
		}
		pc.d.send(from, req)
		return
	}
	if err != nil {
		pc.log.WithError(err).WithField("device", from).Warn("adding commits from peer")
	}
}

func (pc *PageCommunicator) missingParents(batch []pagestorage.CommitIDAndBytes) ([]hash.Hash, error) {
	inBatch := hash.NewHashSet()
	for _, cb := range batch {
		inBatch.Insert(cb.ID)
	}
	missing := hash.NewHashSet()
	for _, cb := range batch {
		c, err := datas.CommitFromStorageBytes(cb.ID, cb.Bytes)
		if err != nil {
			return nil, err
		}
		for _, p := range c.ParentIDs {
			if inBatch.Has(p) || missing.Has(p) {
				continue
			}
			ok, err := pc.ps.HasCommit(pc.ctx, p)
			if err != nil {
				return nil, err
			}
			if !ok {
				missing.Insert(p)
			}
		}
	}
	out := missing.ToSlice()
	sort.Sort(out)
	return out, nil
}

// GetObject asks the peers having the page for |id|, one after the other.
func (pc *PageCommunicator) GetObject(ctx context.Context, id chunks.ObjectIdentifier, cb func(pagestorage.FetchedObject, error)) {
	go func() {
		stored, err := pc.fetchObject(ctx, id)
		cb(pagestorage.FetchedObject{Stored: stored, Source: pagestorage.SourceP2P}, err)
	}()
}

func (pc *PageCommunicator) fetchObject(ctx context.Context, id chunks.ObjectIdentifier) ([]byte, error) {
	for _, dev := range pc.Peers() {
		req := pc.newMessage(serial.MessageKindObjectRequest)
		req.objects = []payload{{id: id.Bytes()}}
		resp, err := pc.request(ctx, dev, req)
		if errors.Is(err, ErrClosed) || ctx.Err() != nil {
			return nil, err
		}
		if err != nil {
			pc.log.WithError(err).WithField("device", dev).Debug("object request failed")
			continue
		}
		for _, p := range resp.objects {
			if p.found && string(p.id) == string(id.Bytes()) {
				return p.data, nil
			}
		}
	}
	return nil, errors.Wrapf(pagestorage.ErrNotFound, "object %s not found on peers", id)
}

// request sends |req| to |to| and waits for the matching response.
func (pc *PageCommunicator) request(ctx context.Context, to p2p.DeviceID, req *message) (*message, error) {
	ch := make(chan *message, 1)
	pc.mu.Lock()
	if pc.ctx.Err() != nil {
		pc.mu.Unlock()
		return nil, ErrClosed
	}
	id := ulid.MustNew(ulid.Timestamp(time.Now()), pc.entropy)
	pc.pending[id] = ch
	pc.mu.Unlock()
	defer func() {
		pc.mu.Lock()
		delete(pc.pending, id)
		pc.mu.Unlock()
	}()

	req.requestID = id[:]
	if err := pc.d.mesh.Send(to, req.encode()); err != nil {
		return nil, err
	}

	t := time.NewTimer(pc.timeout)
	defer t.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if resp.status == serial.ResponseStatusUnknownPage {
			return nil, errors.Errorf("device %s does not have the page", to)
		}
		return resp, nil
	case <-t.C:
		return nil, errors.Errorf("request to %s timed out", to)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-pc.ctx.Done():
		return nil, ErrClosed
	}
}
