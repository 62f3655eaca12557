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
	"context"

	"github.com/pkg/errors"

	"github.com/dolthub/ledger/store/chunks"
	"github.com/dolthub/ledger/store/datas"
	"github.com/dolthub/ledger/store/hash"
)

// CollectGarbage deletes every object that no stored commit reaches and
// that is not held since AddObjectFromLocal, and returns how many were
// deleted. It fails with ErrIllegalState while a journal is open or a sync
// batch is being added, since those may hold objects no commit references
// yet.
func (ps *PageStorage) CollectGarbage(ctx context.Context) (int, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return 0, errors.Wrap(ErrIllegalState, "page storage is closed")
	}
	if ps.active > 0 {
		return 0, errors.Wrapf(ErrIllegalState, "%d operations in progress", ps.active)
	}

	reachable, err := ps.markReachable(ctx)
	if err != nil {
		return 0, err
	}
	for id := range ps.local {
		if err := ps.markValue(ctx, id, reachable); err != nil {
			return 0, err
		}
	}

	b, err := ps.db.StartBatch(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	err = ps.objects.ForEachObject(ctx, func(id chunks.ObjectIdentifier) error {
		if reachable.Has(id) {
			return nil
		}
		deleted++
		if err := ps.objects.DeleteInBatch(b, id); err != nil {
			return err
		}
		return b.Delete(ps.keys.unsyncedObject(id))
	})
	if err != nil {
		return 0, err
	}
	if err := b.Execute(ctx); err != nil {
		return 0, err
	}

	ps.nodes.Purge()
	ps.metrics.GarbageCollected(deleted)
	ps.log.WithField("deleted", deleted).WithField("kept", len(reachable)).Info("collected garbage")
	return deleted, nil
}

func (ps *PageStorage) markReachable(ctx context.Context) (chunks.IdentifierSet, error) {
	kvs, err := ps.db.GetEntriesByPrefix(ctx, ps.keys.prefix(commitsPrefix))
	if err != nil {
		return nil, err
	}

	reachable := chunks.NewIdentifierSet()
	var nodes []chunks.ObjectIdentifier
	for _, kv := range kvs {
		id, ok := hash.MaybeParse(string(kv.Key))
		if !ok {
			return nil, errors.Wrapf(datas.ErrParse, "bad commit key %q", kv.Key)
		}
		c, err := datas.CommitFromStorageBytes(id, kv.Value)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, c.RootNode)
	}

	// subtrees shared between commits are visited once
	for len(nodes) > 0 {
		id := nodes[len(nodes)-1]
		nodes = nodes[:len(nodes)-1]
		if id.IsEmpty() || reachable.Has(id) {
			continue
		}
		reachable.Insert(id)
		n, err := ps.nodes.ReadNode(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, e := range n.Entries {
			if err := ps.markValue(ctx, e.ObjectID, reachable); err != nil {
				return nil, err
			}
		}
		nodes = append(nodes, n.Children...)
	}
	return reachable, nil
}

func (ps *PageStorage) markValue(ctx context.Context, id chunks.ObjectIdentifier, reachable chunks.IdentifierSet) error {
	if reachable.Has(id) {
		return nil
	}
	reachable.Insert(id)
	pieces, err := ps.objects.References(ctx, id)
	if errors.Is(err, chunks.ErrNotFound) {
		// lazy values are fetched on first read
		return nil
	} else if err != nil {
		return err
	}
	for _, p := range pieces {
		reachable.Insert(p)
	}
	return nil
}
