// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package journal records every lifecycle transition so operators can see
// what happened to a module and why. Backends: memory, SQLite, PostgreSQL.
package journal

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/plugman/internal/plugin/lifecycle"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Error codes.
const (
	CodeUnknownDriver = "JOURNAL_UNKNOWN_DRIVER"
	CodeWriteFailed   = "JOURNAL_WRITE_FAILED"
	CodeReadFailed    = "JOURNAL_READ_FAILED"
	CodeSchemaMissing = "JOURNAL_SCHEMA_MISSING"
	CodeOpenFailed    = "JOURNAL_OPEN_FAILED"
)

// DefaultHistoryLimit caps History when Query.Limit is not positive.
const DefaultHistoryLimit = 50

// Entry is one recorded transition.
type Entry struct {
	ID       ulid.ULID
	Time     time.Time
	Op       string
	Module   string
	ModuleID string // empty when no module was resolved
	Version  string
	Outcome  string
	Code     string
	Reason   string
	Error    string
	Warnings []string
}

// NewEntry converts a lifecycle result into a journal entry stamped at now.
func NewEntry(res lifecycle.Result, now time.Time) Entry {
	e := Entry{
		ID:      ulid.Make(),
		Time:    now.UTC(),
		Op:      string(res.Op),
		Module:  res.Name,
		Outcome: string(res.Outcome),
		Code:    res.Code,
		Reason:  res.Reason,
	}
	if res.Module != nil {
		e.ModuleID = res.Module.ID().String()
		e.Version = res.Module.Version()
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	for _, w := range res.Warnings {
		e.Warnings = append(e.Warnings, w.Error())
	}
	return e
}

// Query selects history entries.
type Query struct {
	Module string // case-insensitive; empty for every module
	Limit  int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return q.Limit
}

func (q Query) matches(e Entry) bool {
	return q.Module == "" || strings.EqualFold(q.Module, e.Module)
}

// Journal persists transitions and answers history queries, newest first.
type Journal interface {
	lifecycle.Recorder
	History(ctx context.Context, q Query) ([]Entry, error)
	Close() error
}

// Open returns the journal for driver. An empty driver means memory.
func Open(ctx context.Context, driver, dsn string) (Journal, error) {
	switch strings.ToLower(driver) {
	case "", DriverMemory:
		return NewMemory(0), nil
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	case DriverPostgres, "postgresql", "pgx":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, oops.Code(CodeUnknownDriver).
			With("driver", driver).
			Hint("journal.driver must be memory, sqlite or postgres").
			Errorf("unknown journal driver %q", driver)
	}
}
