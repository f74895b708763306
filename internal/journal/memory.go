// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package journal

import (
	"context"
	"sync"
	"time"

	"github.com/holomush/plugman/internal/plugin/lifecycle"
)

// DefaultMemoryCapacity is how many entries the memory journal keeps.
const DefaultMemoryCapacity = 1000

// Memory keeps the most recent entries in process memory.
type Memory struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	now      func() time.Time
}

// NewMemory creates a memory journal holding up to capacity entries
// (DefaultMemoryCapacity if < 1). The oldest entries are dropped first.
func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity, now: time.Now}
}

// Record implements lifecycle.Recorder.
func (m *Memory) Record(_ context.Context, res lifecycle.Result) error {
	e := NewEntry(res, m.now())

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == m.capacity {
		copy(m.entries, m.entries[1:])
		m.entries = m.entries[:len(m.entries)-1]
	}
	m.entries = append(m.entries, e)
	return nil
}

// History returns matching entries, newest first.
func (m *Memory) History(_ context.Context, q Query) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := q.limit()
	out := make([]Entry, 0, min(limit, len(m.entries)))
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if q.matches(m.entries[i]) {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

// Len returns the number of retained entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close implements Journal.
func (m *Memory) Close() error { return nil }
