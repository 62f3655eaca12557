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

// Package wsmesh is a p2p.DeviceMesh over websockets. Every device serves
// a websocket endpoint and dials the peers it is configured with.
package wsmesh

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/ledger/store/p2p"
)

const (
	defaultPingInterval = 15 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultReadTimeout  = 45 * time.Second
	helloTimeout        = 10 * time.Second

	sendBufferSize  = 64
	eventBufferSize = 1024
)

var errDuplicate = errors.New("device already connected")

type Options struct {
	// Name identifies this device to its peers.
	Name string
	// Peers are websocket URLs dialed and redialed until Close.
	Peers []string

	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	// MinReconnect and MaxReconnect bound the delay between dials.
	MinReconnect time.Duration
	MaxReconnect time.Duration

	Log *logrus.Entry
}

// Mesh is a DeviceMesh whose links are websocket connections.
type Mesh struct {
	opts     Options
	log      *logrus.Entry
	dialer   *websocket.Dialer
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[p2p.DeviceID]*conn
	onMsg    p2p.MessageHandler
	onChange p2p.DeviceChangeHandler

	events chan func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ p2p.DeviceMesh = (*Mesh)(nil)

type conn struct {
	peer   p2p.DeviceID
	ws     *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a mesh. Call Start to dial peers and serve Handler to accept
// them.
func New(opts Options) *Mesh {
	if opts.PingInterval == 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.MinReconnect == 0 {
		opts.MinReconnect = 100 * time.Millisecond
	}
	if opts.MaxReconnect == 0 {
		opts.MaxReconnect = 30 * time.Second
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mesh{
		opts:   opts,
		log:    opts.Log.WithFields(logrus.Fields{"component": "wsmesh", "device": opts.Name}),
		dialer: &websocket.Dialer{HandshakeTimeout: helloTimeout},
		conns:  make(map[p2p.DeviceID]*conn),
		events: make(chan func(), eventBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	m.wg.Add(1)
	go m.dispatch()
	return m
}

// Start dials every configured peer.
func (m *Mesh) Start() {
	for _, url := range m.opts.Peers {
		m.wg.Add(1)
		go m.dialLoop(url)
	}
}

// Close drops every connection and stops dialing.
func (m *Mesh) Close() error {
	m.cancel()
	m.mu.Lock()
	for _, c := range m.conns {
		c.ws.Close()
	}
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}

func (m *Mesh) GetDeviceList() []p2p.DeviceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]p2p.DeviceID, 0, len(m.conns))
	for id := range m.conns {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func (m *Mesh) Send(device p2p.DeviceID, data []byte) error {
	m.mu.Lock()
	c := m.conns[device]
	m.mu.Unlock()
	if c == nil {
		return errors.Wrapf(p2p.ErrUnknownDevice, "device %s", device)
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return errors.Wrapf(p2p.ErrUnknownDevice, "device %s disconnected", device)
	}
}

func (m *Mesh) SetOnMessage(h p2p.MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMsg = h
}

func (m *Mesh) SetOnDeviceChange(h p2p.DeviceChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = h
}

// Handler accepts connections from peers dialing this device.
func (m *Mesh) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := m.upgrader.Upgrade(w, req, nil)
		if err != nil {
			m.log.WithError(err).Debug("upgrade failed")
			return
		}
		peer, err := m.readHello(ws)
		if err == nil {
			err = m.writeHello(ws)
		}
		if err != nil {
			m.log.WithError(err).Debug("handshake failed")
			ws.Close()
			return
		}
		if err := m.serve(peer, ws); err != nil {
			m.log.WithError(err).WithField("peer", peer).Debug("rejected connection")
		}
	})
}

func (m *Mesh) dialLoop(url string) {
	defer m.wg.Done()
	b := &backoff.Backoff{
		Min:    m.opts.MinReconnect,
		Max:    m.opts.MaxReconnect,
		Factor: 2,
		Jitter: true,
	}
	log := m.log.WithField("url", url)
	for {
		ws, peer, err := m.dial(url)
		if err != nil {
			log.WithError(err).Debug("dial failed")
		} else {
			b.Reset()
			if err := m.serve(peer, ws); err != nil {
				log.WithError(err).Debug("connection closed")
			}
		}

		t := time.NewTimer(b.Duration())
		select {
		case <-m.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (m *Mesh) dial(url string) (*websocket.Conn, p2p.DeviceID, error) {
	ws, _, err := m.dialer.DialContext(m.ctx, url, nil)
	if err != nil {
		return nil, "", err
	}
	success := false
	defer func() {
		if !success {
			ws.Close()
		}
	}()
	if err := m.writeHello(ws); err != nil {
		return nil, "", err
	}
	peer, err := m.readHello(ws)
	if err != nil {
		return nil, "", err
	}
	success = true
	return ws, peer, nil
}

func (m *Mesh) writeHello(ws *websocket.Conn) error {
	ws.SetWriteDeadline(time.Now().Add(helloTimeout))
	return ws.WriteMessage(websocket.TextMessage, []byte(m.opts.Name))
}

func (m *Mesh) readHello(ws *websocket.Conn) (p2p.DeviceID, error) {
	ws.SetReadDeadline(time.Now().Add(helloTimeout))
	mt, msg, err := ws.ReadMessage()
	if err != nil {
		return "", err
	}
	if mt != websocket.TextMessage || len(msg) == 0 {
		return "", errors.New("bad hello")
	}
	if p2p.DeviceID(msg) == p2p.DeviceID(m.opts.Name) {
		return "", errors.New("connected to self")
	}
	return p2p.DeviceID(msg), nil
}

// serve runs a handshaken connection until either side drops it.
func (m *Mesh) serve(peer p2p.DeviceID, ws *websocket.Conn) error {
	ctx, cancel := context.WithCancel(m.ctx)
	c := &conn{peer: peer, ws: ws, send: make(chan []byte, sendBufferSize), ctx: ctx, cancel: cancel}
	defer ws.Close()
	defer cancel()

	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return m.ctx.Err()
	}
	if _, ok := m.conns[peer]; ok {
		m.mu.Unlock()
		return errDuplicate
	}
	m.conns[peer] = c
	m.mu.Unlock()

	m.log.WithField("peer", peer).Info("device connected")
	m.post(func(h *handlers) { h.change(peer, p2p.DeviceNew) })

	go m.writeLoop(c)
	err := m.readLoop(c)

	cancel()
	m.mu.Lock()
	if m.conns[peer] == c {
		delete(m.conns, peer)
	}
	m.mu.Unlock()
	m.log.WithField("peer", peer).Info("device disconnected")
	m.post(func(h *handlers) { h.change(peer, p2p.DeviceDeleted) })
	return err
}

func (m *Mesh) writeLoop(c *conn) {
	defer c.cancel()
	ping := time.NewTicker(m.opts.PingInterval)
	defer ping.Stop()
	for {
		var msg []byte
		select {
		case <-c.ctx.Done():
			return
		case msg = <-c.send:
		case <-ping.C:
			msg = []byte{}
		}
		c.ws.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout))
		if err := c.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			m.log.WithError(err).WithField("peer", c.peer).Debug("write failed")
			c.ws.Close()
			return
		}
	}
}

func (m *Mesh) readLoop(c *conn) error {
	go func() {
		<-c.ctx.Done()
		c.ws.Close()
	}()
	for {
		c.ws.SetReadDeadline(time.Now().Add(m.opts.ReadTimeout))
		mt, msg, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.BinaryMessage || len(msg) == 0 {
			continue
		}
		peer := c.peer
		m.post(func(h *handlers) { h.message(peer, msg) })
	}
}

type handlers struct {
	onMsg    p2p.MessageHandler
	onChange p2p.DeviceChangeHandler
}

func (h *handlers) message(from p2p.DeviceID, data []byte) {
	if h.onMsg != nil {
		h.onMsg(from, data)
	}
}

func (h *handlers) change(d p2p.DeviceID, c p2p.DeviceChange) {
	if h.onChange != nil {
		h.onChange(d, c)
	}
}

func (m *Mesh) post(fn func(h *handlers)) {
	select {
	case m.events <- func() {
		m.mu.Lock()
		h := &handlers{onMsg: m.onMsg, onChange: m.onChange}
		m.mu.Unlock()
		fn(h)
	}:
	case <-m.ctx.Done():
	}
}

func (m *Mesh) dispatch() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case fn := <-m.events:
			fn()
		}
	}
}
