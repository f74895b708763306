// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Table is the live command dispatch table: label → entry.
// It is thread-safe for concurrent access.
type Table struct {
	labels map[string]*Entry
	logger *slog.Logger
	mu     sync.RWMutex
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithTableLogger sets the logger label conflicts are reported on.
func WithTableLogger(l *slog.Logger) TableOption {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTable creates an empty command table.
func NewTable(opts ...TableOption) *Table {
	t := &Table{labels: make(map[string]*Entry), logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register binds the entry's name, aliases, and fallback label.
// A label already bound to another entry keeps its first owner and a warning
// is logged; the newcomer remains reachable through its fallback label.
// Returns the labels actually bound.
func (t *Table) Register(entry *Entry) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	candidates := make([]string, 0, len(entry.Aliases)+2)
	candidates = append(candidates, entry.Name)
	candidates = append(candidates, entry.Aliases...)
	if !entry.Owner.IsHost() {
		candidates = append(candidates, entry.FallbackLabel())
	}

	var bound []string
	for _, label := range candidates {
		label = strings.ToLower(label)
		if label == "" || slices.Contains(bound, label) {
			continue
		}
		if existing, ok := t.labels[label]; ok && existing != entry {
			t.logger.Warn("command label conflict: keeping first owner",
				"label", label,
				"owner", existing.Owner.Name,
				"rejected", entry.Owner.Name)
			continue
		}
		t.labels[label] = entry
		bound = append(bound, label)
	}
	return bound
}

// UnregisterOwner removes every label bound to an entry of the module
// instance id. Labels of other instances, even of the same module name, are
// left alone. Returns how many labels were removed.
func (t *Table) UnregisterOwner(id ulid.ULID) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for label, e := range t.labels {
		if e.Owner.ID == id {
			delete(t.labels, label)
			removed++
		}
	}
	return removed
}

// Get retrieves the entry bound to label, compared case-insensitively.
func (t *Table) Get(label string) (*Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.labels[strings.ToLower(label)]
	return e, ok
}

// LabelsOf returns the labels currently bound to entry, sorted.
func (t *Table) LabelsOf(entry *Entry) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var labels []string
	for label, e := range t.labels {
		if e == entry {
			labels = append(labels, label)
		}
	}
	slices.Sort(labels)
	return labels
}

// All returns every distinct entry, sorted by owner then name.
func (t *Table) All() []*Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var entries []*Entry
	for _, e := range t.labels {
		if !slices.Contains(entries, e) {
			entries = append(entries, e)
		}
	}
	slices.SortFunc(entries, func(a, b *Entry) int {
		if c := strings.Compare(a.Owner.Name, b.Owner.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return entries
}

// Len returns the number of bound labels.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.labels)
}
