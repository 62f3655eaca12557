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

// Package encryption encrypts what a page sends to the cloud.
//
// Payloads are snappy compressed then sealed with XChaCha20-Poly1305. The
// nonce is a keyed blake3 hash of the compressed payload, so equal payloads
// encrypt to equal bytes and the cloud can deduplicate them without reading
// them.
package encryption

import (
	"crypto/cipher"
	"crypto/sha256"
	"io"

	"github.com/golang/snappy"
	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/d"
)

// MasterKeySize is the size of the key a Service is derived from.
const MasterKeySize = 32

var (
	// ErrDecrypt is returned for payloads that do not decrypt, were not
	// produced by the same key, or were tampered with.
	ErrDecrypt = errors.New("cannot decrypt payload")

	// ErrInvalidKey is returned for master keys of the wrong size.
	ErrInvalidKey = errors.New("invalid master key")
)

// Service encrypts the commits and objects of one page.
type Service interface {
	EncryptCommit(data []byte) ([]byte, error)
	DecryptCommit(encrypted []byte) ([]byte, error)

	// GetObjectName returns the name an object is stored under in the cloud.
	// It reveals nothing about the object identifier.
	GetObjectName(id chunks.ObjectIdentifier) (string, error)

	EncryptObject(id chunks.ObjectIdentifier, stored []byte) ([]byte, error)
	DecryptObject(id chunks.ObjectIdentifier, encrypted []byte) ([]byte, error)
}

// sealer is one key of a Service.
type sealer struct {
	aead   cipher.AEAD
	sivKey []byte
}

// KeyService is a Service whose keys are derived from a master key.
type KeyService struct {
	commits sealer
	objects sealer
	nameKey []byte
}

var _ Service = (*KeyService)(nil)

// NewService derives the keys of page |pageID| of |namespace| from
// |masterKey|.
func NewService(masterKey []byte, namespace, pageID string) (*KeyService, error) {
	if len(masterKey) != MasterKeySize {
		return nil, errors.Wrapf(ErrInvalidKey, "got %d bytes, want %d", len(masterKey), MasterKeySize)
	}
	salt := []byte(namespace + "/" + pageID)
	derive := func(info string) ([]byte, error) {
		key := make([]byte, chacha20poly1305.KeySize)
		_, err := io.ReadFull(hkdf.New(sha256.New, masterKey, salt, []byte(info)), key)
		return key, err
	}

	s := &KeyService{}
	var err error
	if s.commits, err = newSealer(derive, "ledger commits"); err != nil {
		return nil, err
	}
	if s.objects, err = newSealer(derive, "ledger objects"); err != nil {
		return nil, err
	}
	if s.nameKey, err = derive("ledger object names"); err != nil {
		return nil, err
	}
	return s, nil
}

func newSealer(derive func(string) ([]byte, error), info string) (sealer, error) {
	key, err := derive(info)
	if err != nil {
		return sealer{}, err
	}
	sivKey, err := derive(info + " siv")
	if err != nil {
		return sealer{}, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return sealer{}, err
	}
	return sealer{aead: aead, sivKey: sivKey}, nil
}

func (s sealer) nonce(plaintext, ad []byte) []byte {
	h, err := blake3.NewKeyed(s.sivKey)
	d.PanicIfError(err)
	h.Write(ad)
	h.Write(plaintext)
	return h.Sum(nil)[:s.aead.NonceSize()]
}

func (s sealer) seal(data, ad []byte) []byte {
	compressed := snappy.Encode(nil, data)
	nonce := s.nonce(compressed, ad)
	out := make([]byte, 0, len(nonce)+len(compressed)+s.aead.Overhead())
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, compressed, ad)
}

func (s sealer) open(encrypted, ad []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(encrypted) < n+s.aead.Overhead() {
		return nil, errors.Wrapf(ErrDecrypt, "payload of %d bytes", len(encrypted))
	}
	nonce := encrypted[:n]
	compressed, err := s.aead.Open(nil, nonce, encrypted[n:], ad)
	if err != nil {
		return nil, errors.Wrap(ErrDecrypt, err.Error())
	}
	if string(s.nonce(compressed, ad)) != string(nonce) {
		return nil, errors.Wrap(ErrDecrypt, "synthetic nonce mismatch")
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, errors.Wrap(ErrDecrypt, err.Error())
	}
	return data, nil
}

func (s *KeyService) EncryptCommit(data []byte) ([]byte, error) {
	return s.commits.seal(data, nil), nil
}

func (s *KeyService) DecryptCommit(encrypted []byte) ([]byte, error) {
	return s.commits.open(encrypted, nil)
}

// GetObjectName returns a CIDv1 of a keyed blake3 hash of the identifier.
func (s *KeyService) GetObjectName(id chunks.ObjectIdentifier) (string, error) {
	h, err := blake3.NewKeyed(s.nameKey)
	if err != nil {
		return "", err
	}
	h.Write(id.Bytes())
	mh, err := multihash.Encode(h.Sum(nil), multihash.BLAKE3)
	if err != nil {
		return "", err
	}
	return gocid.NewCidV1(gocid.Raw, mh).String(), nil
}

// EncryptObject binds the ciphertext to |id| so that a payload stored under
// another object's name does not decrypt.
func (s *KeyService) EncryptObject(id chunks.ObjectIdentifier, stored []byte) ([]byte, error) {
	return s.objects.seal(stored, id.Bytes()), nil
}

func (s *KeyService) DecryptObject(id chunks.ObjectIdentifier, encrypted []byte) ([]byte, error) {
	return s.objects.open(encrypted, id.Bytes())
}
