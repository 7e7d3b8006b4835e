// Package inmem provides an in-memory implementation of calllog.Store.
//
// The in-memory store is intended for tests and single-node runs. It is not
// durable and should not be used where the call log must survive restarts.
package inmem

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"cabline.dev/agent/features/calllog"
)

type (
	// Store implements calllog.Store in memory.
	Store struct {
		mu sync.Mutex
		// per-call monotonically increasing sequence.
		nextSeq map[string]int64
		// per-call ordered entries.
		entries map[string][]*calllog.Entry
	}
)

// New returns a new in-memory call log store.
func New() *Store {
	return &Store{
		nextSeq: make(map[string]int64),
		entries: make(map[string][]*calllog.Entry),
	}
}

var _ calllog.Store = (*Store)(nil)

// Append implements calllog.Store.
func (s *Store) Append(_ context.Context, e *calllog.Entry) error {
	if e == nil {
		return fmt.Errorf("entry is required")
	}
	if e.CallID == "" {
		return fmt.Errorf("call_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq[e.CallID] + 1
	s.nextSeq[e.CallID] = seq

	e.ID = strconv.FormatInt(seq, 10)
	ev := *e
	s.entries[e.CallID] = append(s.entries[e.CallID], &ev)
	return nil
}

// List implements calllog.Store.
func (s *Store) List(_ context.Context, callID string, cursor string, limit int) (calllog.Page, error) {
	if callID == "" {
		return calllog.Page{}, fmt.Errorf("call_id is required")
	}
	if limit <= 0 {
		return calllog.Page{}, fmt.Errorf("limit must be > 0")
	}

	var after int64
	if cursor != "" {
		id, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return calllog.Page{}, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		after = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.entries[callID]
	if len(all) == 0 {
		return calllog.Page{}, nil
	}

	start := 0
	if after > 0 {
		// IDs are 1-based sequence numbers, so start at index == after.
		start = int(after)
		if start >= len(all) {
			return calllog.Page{}, nil
		}
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	entries := append([]*calllog.Entry(nil), all[start:end]...)
	var next string
	if end < len(all) {
		next = entries[len(entries)-1].ID
	}

	return calllog.Page{
		Entries:    entries,
		NextCursor: next,
	}, nil
}
