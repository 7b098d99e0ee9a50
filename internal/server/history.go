// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import "sync"

// history keeps the most recent export records.
type history struct {
	mu      sync.RWMutex
	max     int
	records []*ExportRecord
	byID    map[string]*ExportRecord
}

func newHistory(max int) *history {
	return &history{max: max, byID: make(map[string]*ExportRecord)}
}

func (h *history) add(rec *ExportRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	h.byID[rec.RunID] = rec
	if over := len(h.records) - h.max; over > 0 {
		for _, old := range h.records[:over] {
			delete(h.byID, old.RunID)
		}
		h.records = append([]*ExportRecord(nil), h.records[over:]...)
	}
}

func (h *history) get(id string) (*ExportRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rec, ok := h.byID[id]
	return rec, ok
}

// list returns copies, newest first.
func (h *history) list() []ExportRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ExportRecord, 0, len(h.records))
	for i := len(h.records) - 1; i >= 0; i-- {
		out = append(out, *h.records[i])
	}
	return out
}
