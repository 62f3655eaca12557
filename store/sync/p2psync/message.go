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
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/pkg/errors"

	"github.com/dolthub/ledger/gen/fb/serial"
)

// ErrParse is returned for bytes that are not a valid message.
var ErrParse = errors.New("malformed p2p message")

var messageFileID = []byte(serial.MessageFileID)

type payload struct {
	id    []byte
	data  []byte
	found bool
}

// message is the envelope of everything devices exchange about a page.
type message struct {
	kind      serial.MessageKind
	namespace string
	page      string
	status    serial.ResponseStatus
	requestID []byte
	commits   []payload
	objects   []payload
}

func (m *message) isRequest() bool {
	switch m.kind {
	case serial.MessageKindWatchStart, serial.MessageKindCommitRequest, serial.MessageKindObjectRequest:
		return true
	}
	return false
}

// unknownPageReply answers a request for a page this device does not have.
func (m *message) unknownPageReply() *message {
	kind := serial.MessageKindCommitResponse
	if m.kind == serial.MessageKindObjectRequest {
		kind = serial.MessageKindObjectResponse
	}
	return &message{
		kind:      kind,
		namespace: m.namespace,
		page:      m.page,
		status:    serial.ResponseStatusUnknownPage,
		requestID: m.requestID,
	}
}

func buildPayloads(b *flatbuffers.Builder, ps []payload, start func(*flatbuffers.Builder, int) flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	offs := make([]flatbuffers.UOffsetT, len(ps))
	for i, p := range ps {
		idOff := b.CreateByteVector(p.id)
		var dataOff flatbuffers.UOffsetT
		if p.data != nil {
			dataOff = b.CreateByteVector(p.data)
		}
		serial.PayloadStart(b)
		serial.PayloadAddId(b, idOff)
		if p.data != nil {
			serial.PayloadAddData(b, dataOff)
		}
		serial.PayloadAddFound(b, p.found)
		offs[i] = serial.PayloadEnd(b)
	}
	start(b, len(offs))
	for i := len(offs) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offs[i])
	}
	return b.EndVector(len(offs))
}

func (m *message) encode() []byte {
	size := 128
	for _, p := range m.commits {
		size += len(p.id) + len(p.data) + 16
	}
	for _, p := range m.objects {
		size += len(p.id) + len(p.data) + 16
	}
	b := flatbuffers.NewBuilder(size)
	nsOff := b.CreateByteVector([]byte(m.namespace))
	pageOff := b.CreateByteVector([]byte(m.page))
	var reqOff flatbuffers.UOffsetT
	if len(m.requestID) > 0 {
		reqOff = b.CreateByteVector(m.requestID)
	}
	commitsOff := buildPayloads(b, m.commits, serial.MessageStartCommitsVector)
	objectsOff := buildPayloads(b, m.objects, serial.MessageStartObjectsVector)

	serial.MessageStart(b)
	serial.MessageAddKind(b, m.kind)
	serial.MessageAddNamespaceId(b, nsOff)
	serial.MessageAddPageId(b, pageOff)
	serial.MessageAddStatus(b, m.status)
	if len(m.requestID) > 0 {
		serial.MessageAddRequestId(b, reqOff)
	}
	serial.MessageAddCommits(b, commitsOff)
	serial.MessageAddObjects(b, objectsOff)
	b.FinishWithFileIdentifier(serial.MessageEnd(b), messageFileID)
	return b.FinishedBytes()
}

func readPayloads(n int, get func(*serial.Payload, int) bool) []payload {
	out := make([]payload, 0, n)
	var p serial.Payload
	for i := 0; i < n; i++ {
		if !get(&p, i) {
			continue
		}
		out = append(out, payload{
			id:    append([]byte(nil), p.IdBytes()...),
			data:  append([]byte(nil), p.DataBytes()...),
			found: p.Found(),
		})
	}
	return out
}

func decodeMessage(data []byte) (m *message, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, errors.Wrapf(ErrParse, "%v", r)
		}
	}()

	if serial.GetFileID(data) != serial.MessageFileID {
		return nil, errors.Wrap(ErrParse, "missing file identifier")
	}
	msg := serial.GetRootAsMessage(data, 0)
	m = &message{
		kind:      msg.Kind(),
		namespace: string(msg.NamespaceIdBytes()),
		page:      string(msg.PageIdBytes()),
		status:    msg.Status(),
		commits:   readPayloads(msg.CommitsLength(), msg.Commits),
		objects:   readPayloads(msg.ObjectsLength(), msg.Objects),
	}
	if rid := msg.RequestIdBytes(); len(rid) > 0 {
		m.requestID = append([]byte(nil), rid...)
	}
	if _, ok := serial.EnumNamesMessageKind[m.kind]; !ok || m.kind == serial.MessageKindUnknown {
		return nil, errors.Wrapf(ErrParse, "message kind %d", m.kind)
	}
	if m.page == "" {
		return nil, errors.Wrap(ErrParse, "message without page")
	}
	return m, nil
}
