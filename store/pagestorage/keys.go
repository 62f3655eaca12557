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

package pagestorage

import (
	"encoding/binary"

	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/hash"
)

// Every page keeps its rows under its own prefix:
//
//	pages/<namespace>/<page>/objects/<id>           stored object
//	pages/<namespace>/<page>/commits/<id>           commit storage bytes
//	pages/<namespace>/<page>/heads/<id>             commit timestamp
//	pages/<namespace>/<page>/unsynced/commits/<id>  commit generation
//	pages/<namespace>/<page>/unsynced/objects/<id>  empty
//	pages/<namespace>/<page>/sync_metadata/<key>    value
const (
	pagesPrefix           = "pages/"
	commitsPrefix         = "commits/"
	headsPrefix           = "heads/"
	unsyncedCommitsPrefix = "unsynced/commits/"
	unsyncedObjectsPrefix = "unsynced/objects/"
	syncMetadataPrefix    = "sync_metadata/"
)

// PagePrefix returns the Db key prefix of a page.
func PagePrefix(namespace, pageID string) []byte {
	return []byte(pagesPrefix + namespace + "/" + pageID + "/")
}

// NamespacePrefix returns the Db key prefix of every page of a namespace.
func NamespacePrefix(namespace string) []byte {
	return []byte(pagesPrefix + namespace + "/")
}

type keys []byte

func (k keys) with(sub string, suffix string) []byte {
	out := make([]byte, 0, len(k)+len(sub)+len(suffix))
	out = append(out, k...)
	out = append(out, sub...)
	return append(out, suffix...)
}

func (k keys) commit(id hash.Hash) []byte {
	return k.with(commitsPrefix, id.String())
}

func (k keys) head(id hash.Hash) []byte {
	return k.with(headsPrefix, id.String())
}

func (k keys) unsyncedCommit(id hash.Hash) []byte {
	return k.with(unsyncedCommitsPrefix, id.String())
}

func (k keys) unsyncedObject(id chunks.ObjectIdentifier) []byte {
	return k.with(unsyncedObjectsPrefix, id.String())
}

func (k keys) syncMetadata(key string) []byte {
	return k.with(syncMetadataPrefix, key)
}

func (k keys) prefix(sub string) []byte {
	return k.with(sub, "")
}

func encodeUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
