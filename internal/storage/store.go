// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jeranaias/vpexport/internal/model"
)

// ErrDisplaySetNotFound is returned when a UID does not resolve.
var ErrDisplaySetNotFound = errors.New("display set not found")

// Store resolves display set UIDs to datasets.
type Store interface {
	DisplaySet(ctx context.Context, uid string) (*model.DisplaySet, error)
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore is a concurrency-safe in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[string]*model.DisplaySet
}

// NewMemoryStore creates a store holding sets.
func NewMemoryStore(sets ...model.DisplaySet) *MemoryStore {
	s := &MemoryStore{sets: make(map[string]*model.DisplaySet)}
	s.Put(sets...)
	return s
}

// Put stores copies of sets, replacing any with the same UID.
func (s *MemoryStore) Put(sets ...model.DisplaySet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ds := range sets {
		c := cloneDisplaySet(ds)
		s.sets[ds.UID] = &c
	}
}

// Delete removes a display set.
func (s *MemoryStore) Delete(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, uid)
}

// DisplaySet returns a copy of the display set so callers cannot mutate the
// store.
func (s *MemoryStore) DisplaySet(ctx context.Context, uid string) (*model.DisplaySet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.sets[uid]
	if !ok {
		return nil, ErrDisplaySetNotFound
	}
	c := cloneDisplaySet(*ds)
	return &c, nil
}

// UIDs lists the stored display set UIDs in sorted order.
func (s *MemoryStore) UIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uids := make([]string, 0, len(s.sets))
	for uid := range s.sets {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

func cloneDisplaySet(ds model.DisplaySet) model.DisplaySet {
	out := model.DisplaySet{UID: ds.UID, Instances: make([]model.Instance, len(ds.Instances))}
	for i, inst := range ds.Instances {
		attrs := make(map[string]string, len(inst.Attributes))
		for k, v := range inst.Attributes {
			attrs[k] = v
		}
		out.Instances[i] = model.Instance{Attributes: attrs}
	}
	return out
}
