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
	"context"

	"github.com/pkg/errors"

	"github.com/dolthub/ledger/store/db"
	"github.com/dolthub/ledger/store/hash"
)

var (
	// ErrNotFound is returned when an object is not present in the store.
	ErrNotFound = errors.New("object not found")

	// ErrDigestMismatch is returned when bytes received for an object do
	// not hash to its identifier.
	ErrDigestMismatch = errors.New("object does not match its identifier")

	// ErrInvalidObject is returned for stored bytes that cannot be an object.
	ErrInvalidObject = errors.New("invalid object")
)

const objectsPrefix = "objects/"

// ObjectStore stores the objects of one page under a Db key prefix.
//
// The stored form of an object is its type byte followed by its data, so the
// identifier of an object is the hash of its stored form.
type ObjectStore struct {
	db     db.Db
	prefix []byte
}

// NewObjectStore returns an ObjectStore keeping its objects under
// |pagePrefix| in |d|.
func NewObjectStore(d db.Db, pagePrefix []byte) *ObjectStore {
	prefix := make([]byte, 0, len(pagePrefix)+len(objectsPrefix))
	prefix = append(prefix, pagePrefix...)
	prefix = append(prefix, objectsPrefix...)
	return &ObjectStore{db: d, prefix: prefix}
}

func (s *ObjectStore) key(id ObjectIdentifier) []byte {
	k := make([]byte, 0, len(s.prefix)+hash.StringLen)
	k = append(k, s.prefix...)
	return append(k, id.String()...)
}

// EncodeStoredObject returns the stored form of |data| as an object of type |t|.
func EncodeStoredObject(t ObjectType, data []byte) []byte {
	out := make([]byte, len(data)+1)
	out[0] = byte(t)
	copy(out[1:], data)
	return out
}

// DecodeStoredObject splits a stored form into its type and data.
func DecodeStoredObject(stored []byte) (ObjectType, []byte, error) {
	if len(stored) == 0 || !ObjectType(stored[0]).valid() {
		return 0, nil, ErrInvalidObject
	}
	return ObjectType(stored[0]), stored[1:], nil
}

// AddObject stores a value and returns its identifier. Values larger than
// SplitThreshold are stored as pieces plus an index object whose identifier
// is returned. Adding identical data twice returns the same identifier and
// writes nothing the second time.
func (s *ObjectStore) AddObject(ctx context.Context, data []byte) (ObjectIdentifier, error) {
	b, err := s.db.StartBatch(ctx)
	if err != nil {
		return ObjectIdentifier{}, err
	}
	id, err := s.PutValueInBatch(ctx, b, data)
	if err != nil {
		return ObjectIdentifier{}, err
	}
	return id, b.Execute(ctx)
}

// AddObjectOfType stores |data| as a single object of type |t|.
func (s *ObjectStore) AddObjectOfType(ctx context.Context, t ObjectType, data []byte) (ObjectIdentifier, error) {
	b, err := s.db.StartBatch(ctx)
	if err != nil {
		return ObjectIdentifier{}, err
	}
	id, err := s.PutInBatch(ctx, b, t, data)
	if err != nil {
		return ObjectIdentifier{}, err
	}
	return id, b.Execute(ctx)
}

// PutInBatch adds the write of |data| as an object of type |t| to |b|,
// unless the object is already stored.
func (s *ObjectStore) PutInBatch(ctx context.Context, b db.Batch, t ObjectType, data []byte) (ObjectIdentifier, error) {
	if !t.valid() {
		return ObjectIdentifier{}, errors.Wrapf(ErrInvalidObject, "type %d", t)
	}
	stored := EncodeStoredObject(t, data)
	id := ObjectIdentifier{Digest: hash.Of(stored)}
	ok, err := s.db.Has(ctx, s.key(id))
	if err != nil || ok {
		return id, err
	}
	return id, b.Put(s.key(id), stored)
}

// PutValueInBatch is AddObject within a caller supplied batch.
func (s *ObjectStore) PutValueInBatch(ctx context.Context, b db.Batch, data []byte) (ObjectIdentifier, error) {
	id, _, err := s.PutValueInBatchWithPieces(ctx, b, data)
	return id, err
}

// PutValueInBatchWithPieces is PutValueInBatch that also returns the pieces
// of a split value.
func (s *ObjectStore) PutValueInBatchWithPieces(ctx context.Context, b db.Batch, data []byte) (ObjectIdentifier, []ObjectIdentifier, error) {
	if len(data) <= SplitThreshold {
		id, err := s.PutInBatch(ctx, b, BlobObject, data)
		return id, nil, err
	}

	pieces := splitValue(data)
	ids := make([]ObjectIdentifier, len(pieces))
	sizes := make([]uint64, len(pieces))
	for i, p := range pieces {
		id, err := s.PutInBatch(ctx, b, BlobObject, p)
		if err != nil {
			return ObjectIdentifier{}, nil, err
		}
		ids[i], sizes[i] = id, uint64(len(p))
	}
	id, err := s.PutInBatch(ctx, b, IndexObject, EncodeIndex(ids, sizes))
	return id, ids, err
}

// PutStoredInBatch adds an object received in stored form, after checking
// that it hashes to |id|.
func (s *ObjectStore) PutStoredInBatch(ctx context.Context, b db.Batch, id ObjectIdentifier, stored []byte) error {
	if hash.Of(stored) != id.Digest {
		return errors.Wrapf(ErrDigestMismatch, "object %s", id)
	}
	t, data, err := DecodeStoredObject(stored)
	if err != nil {
		return errors.Wrapf(err, "object %s", id)
	}
	if t == IndexObject {
		if _, _, err := DecodeIndex(data); err != nil {
			return errors.Wrapf(err, "object %s", id)
		}
	}
	ok, err := s.db.Has(ctx, s.key(id))
	if err != nil || ok {
		return err
	}
	return b.Put(s.key(id), stored)
}

// AddStoredObject is PutStoredInBatch in its own batch.
func (s *ObjectStore) AddStoredObject(ctx context.Context, id ObjectIdentifier, stored []byte) error {
	b, err := s.db.StartBatch(ctx)
	if err != nil {
		return err
	}
	if err := s.PutStoredInBatch(ctx, b, id, stored); err != nil {
		return err
	}
	return b.Execute(ctx)
}

// GetStoredObject returns the stored form of |id|.
func (s *ObjectStore) GetStoredObject(ctx context.Context, id ObjectIdentifier) ([]byte, error) {
	stored, err := s.db.Get(ctx, s.key(id))
	if errors.Is(err, db.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "object %s", id)
	}
	return stored, err
}

// GetRawObject returns the type and data of a single object without
// reassembling split values.
func (s *ObjectStore) GetRawObject(ctx context.Context, id ObjectIdentifier) (ObjectType, []byte, error) {
	stored, err := s.GetStoredObject(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	t, data, err := DecodeStoredObject(stored)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "object %s", id)
	}
	return t, data, nil
}

// GetObject returns the data of |id|. Split values are reassembled; a
// missing piece is reported as ErrNotFound.
func (s *ObjectStore) GetObject(ctx context.Context, id ObjectIdentifier) ([]byte, error) {
	t, data, err := s.GetRawObject(ctx, id)
	if err != nil || t != IndexObject {
		return data, err
	}
	return s.GetObjectPart(ctx, id, 0, -1)
}

// GetObjectPart returns at most |max| bytes of the value |id| starting at
// |offset|. A negative |max| reads to the end. Only the pieces overlapping
// the range are read.
func (s *ObjectStore) GetObjectPart(ctx context.Context, id ObjectIdentifier, offset, max int64) ([]byte, error) {
	if offset < 0 {
		return nil, errors.Errorf("negative offset %d", offset)
	}
	t, data, err := s.GetRawObject(ctx, id)
	if err != nil {
		return nil, err
	}
	if t != IndexObject {
		return sliceRange(data, offset, max), nil
	}

	pieces, sizes, err := DecodeIndex(data)
	if err != nil {
		return nil, errors.Wrapf(err, "object %s", id)
	}
	var out []byte
	var start int64
	for i, p := range pieces {
		size := int64(sizes[i])
		end := start + size
		if end <= offset {
			start = end
			continue
		}
		if max >= 0 && int64(len(out)) >= max {
			break
		}
		pd, err := s.getPiece(ctx, p)
		if err != nil {
			return nil, err
		}
		if int64(len(pd)) != size {
			return nil, errors.Wrapf(ErrInvalidObject, "piece %s has %d bytes, index says %d", p, len(pd), size)
		}
		from := int64(0)
		if offset > start {
			from = offset - start
		}
		out = append(out, pd[from:]...)
		start = end
	}
	if out == nil {
		out = []byte{}
	}
	if max >= 0 && int64(len(out)) > max {
		out = out[:max]
	}
	return out, nil
}

func (s *ObjectStore) getPiece(ctx context.Context, id ObjectIdentifier) ([]byte, error) {
	t, data, err := s.GetRawObject(ctx, id)
	if err != nil {
		return nil, err
	}
	if t != BlobObject {
		return nil, errors.Wrapf(ErrInvalidObject, "piece %s has type %s", id, t)
	}
	return data, nil
}

func sliceRange(data []byte, offset, max int64) []byte {
	if offset >= int64(len(data)) {
		return []byte{}
	}
	data = data[offset:]
	if max >= 0 && int64(len(data)) > max {
		data = data[:max]
	}
	return data
}

// HasObject returns true if |id| is stored. For split values only the index
// object is checked.
func (s *ObjectStore) HasObject(ctx context.Context, id ObjectIdentifier) (bool, error) {
	return s.db.Has(ctx, s.key(id))
}

// References returns the objects directly referenced by |id|: the pieces of
// an index object, nothing for any other type.
func (s *ObjectStore) References(ctx context.Context, id ObjectIdentifier) ([]ObjectIdentifier, error) {
	t, data, err := s.GetRawObject(ctx, id)
	if err != nil || t != IndexObject {
		return nil, err
	}
	pieces, _, err := DecodeIndex(data)
	return pieces, err
}

// DeleteInBatch adds the removal of |id| to |b|.
func (s *ObjectStore) DeleteInBatch(b db.Batch, id ObjectIdentifier) error {
	return b.Delete(s.key(id))
}

// ForEachObject calls |cb| with the identifier of every stored object.
func (s *ObjectStore) ForEachObject(ctx context.Context, cb func(id ObjectIdentifier) error) error {
	keys, err := s.db.GetByPrefix(ctx, s.prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		h, ok := hash.MaybeParse(string(k))
		if !ok {
			return errors.Wrapf(ErrInvalidObject, "bad object key %q", k)
		}
		if err := cb(ObjectIdentifier{Digest: h}); err != nil {
			return err
		}
	}
	return nil
}
