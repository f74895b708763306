// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package capability matches dotted capability names against granted
// patterns. It backs both module capability grants ("events.emit.*") and
// operator permissions ("plugman.*").
//
// Pattern matching uses gobwas/glob with '.' as the segment separator:
//   - '*' matches a single segment (does not cross '.')
//   - '**' matches zero or more segments (crosses '.')
//
// Examples:
//   - "events.emit.*" matches "events.emit.greet" but NOT "events.emit.player.join"
//   - "events.emit.**" matches both
//   - "**" matches any capability
package capability

import (
	"slices"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer checks subject capabilities at runtime. A subject is a module
// name or an operator name.
//
// Enforcer is safe for concurrent use. The zero value is ready to use.
type Enforcer struct {
	mu     sync.RWMutex
	grants map[string][]compiledGrant
}

// NewEnforcer creates a capability enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{grants: make(map[string][]compiledGrant)}
}

// Compile validates patterns without granting them.
func Compile(patterns []string) error {
	_, err := compile(patterns)
	return err
}

func compile(patterns []string) ([]compiledGrant, error) {
	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return nil, oops.In("capability").With("index", i).Errorf("empty capability pattern")
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, oops.In("capability").With("index", i).With("pattern", pattern).Wrap(err)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}
	return compiled, nil
}

// SetGrants replaces the patterns granted to subject. Either every pattern
// compiles and the grants are replaced, or nothing changes.
func (e *Enforcer) SetGrants(subject string, patterns []string) error {
	if subject == "" {
		return oops.In("capability").Errorf("subject cannot be empty")
	}
	compiled, err := compile(patterns)
	if err != nil {
		return oops.With("subject", subject).Wrap(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grants == nil {
		e.grants = make(map[string][]compiledGrant)
	}
	e.grants[subject] = compiled
	return nil
}

// RemoveGrants forgets subject. Safe for unknown subjects.
func (e *Enforcer) RemoveGrants(subject string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, subject)
}

// IsRegistered reports whether SetGrants was called for subject.
func (e *Enforcer) IsRegistered(subject string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.grants[subject]
	return ok
}

// GetGrants returns a copy of the patterns granted to subject, nil if unknown.
func (e *Enforcer) GetGrants(subject string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	grants, ok := e.grants[subject]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// Subjects returns every registered subject in lexical order.
func (e *Enforcer) Subjects() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	subjects := make([]string, 0, len(e.grants))
	for s := range e.grants {
		subjects = append(subjects, s)
	}
	slices.Sort(subjects)
	return subjects
}

// Check reports whether subject holds capability. Unknown subjects and the
// empty capability are denied.
func (e *Enforcer) Check(subject, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, grant := range e.grants[subject] {
		if grant.glob.Match(capability) {
			return true
		}
	}
	return false
}
