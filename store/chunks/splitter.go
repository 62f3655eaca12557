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

package chunks

import (
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/kch42/buzhash"
	"github.com/pkg/errors"

	"github.com/dolthub/ledger/gen/fb/serial"
	"github.com/dolthub/ledger/store/d"
	"github.com/dolthub/ledger/store/hash"
)

const (
	// SplitThreshold is the largest value stored as a single object.
	SplitThreshold = 64 * 1024

	splitWindowSize = 64
	// On average one piece boundary every 16KiB.
	splitPattern = uint32(1<<14 - 1)
	minPieceSize = 4 * 1024
	maxPieceSize = SplitThreshold
)

var objectIndexFileID = []byte(serial.ObjectIndexFileID)

// splitValue cuts |data| at content-defined boundaries so that identical
// runs of bytes in different values produce identical pieces.
func splitValue(data []byte) [][]byte {
	var pieces [][]byte
	h := buzhash.NewBuzHash(splitWindowSize)
	start := 0
	for i, b := range data {
		sum := h.HashByte(b)
		size := i + 1 - start
		if (size >= minPieceSize && sum&splitPattern == splitPattern) || size >= maxPieceSize {
			pieces = append(pieces, data[start:i+1])
			start = i + 1
			h = buzhash.NewBuzHash(splitWindowSize)
		}
	}
	if start < len(data) {
		pieces = append(pieces, data[start:])
	}
	return pieces
}

// EncodeIndex serializes the list of pieces of a split value.
func EncodeIndex(pieces []ObjectIdentifier, sizes []uint64) []byte {
	d.PanicIfFalse(len(pieces) == len(sizes))
	b := flatbuffers.NewBuilder(len(pieces)*(hash.ByteLen+8) + 64)

	addrs := make([]byte, 0, len(pieces)*hash.ByteLen)
	var total uint64
	for i, p := range pieces {
		addrs = append(addrs, p.Bytes()...)
		total += sizes[i]
	}
	addrOff := b.CreateByteVector(addrs)

	serial.ObjectIndexStartPieceSizesVector(b, len(sizes))
	for i := len(sizes) - 1; i >= 0; i-- {
		b.PrependUint64(sizes[i])
	}
	sizeOff := b.EndVector(len(sizes))

	serial.ObjectIndexStart(b)
	serial.ObjectIndexAddPieceAddrs(b, addrOff)
	serial.ObjectIndexAddPieceSizes(b, sizeOff)
	serial.ObjectIndexAddTotalSize(b, total)
	b.FinishWithFileIdentifier(serial.ObjectIndexEnd(b), objectIndexFileID)
	return b.FinishedBytes()
}

// DecodeIndex parses an index object.
func DecodeIndex(data []byte) (pieces []ObjectIdentifier, sizes []uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			pieces, sizes, err = nil, nil, errors.Wrapf(ErrInvalidObject, "malformed index: %v", r)
		}
	}()

	if serial.GetFileID(data) != serial.ObjectIndexFileID {
		return nil, nil, errors.Wrap(ErrInvalidObject, "not an object index")
	}
	idx := serial.GetRootAsObjectIndex(data, 0)
	addrs := idx.PieceAddrsBytes()
	n := idx.PieceSizesLength()
	if len(addrs) != n*hash.ByteLen {
		return nil, nil, errors.Wrapf(ErrInvalidObject, "index has %d bytes of addresses for %d pieces", len(addrs), n)
	}

	pieces = make([]ObjectIdentifier, n)
	sizes = make([]uint64, n)
	var total uint64
	for i := 0; i < n; i++ {
		pieces[i] = ObjectIdentifier{Digest: hash.New(addrs[i*hash.ByteLen : (i+1)*hash.ByteLen])}
		sizes[i] = idx.PieceSizes(i)
		total += sizes[i]
	}
	if total != idx.TotalSize() {
		return nil, nil, errors.Wrapf(ErrInvalidObject, "index total %d does not match pieces %d", idx.TotalSize(), total)
	}
	return pieces, sizes, nil
}
