// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/plugman/internal/plugin/lifecycle"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS transitions (
	id          TEXT PRIMARY KEY,
	recorded_at INTEGER NOT NULL,
	op          TEXT NOT NULL,
	module      TEXT NOT NULL,
	module_id   TEXT NOT NULL DEFAULT '',
	version     TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	code        TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	warnings    TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS transitions_module ON transitions (module COLLATE NOCASE, id);`

// SQLite stores entries in a single-file database. The schema is created
// on open.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
// An empty path defaults to plugman-journal.db.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = "plugman-journal.db"
	}
	fail := oops.Code(CodeOpenFailed).In("journal").With("driver", DriverSQLite).With("path", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fail.Hint("failed to create journal directory").Wrap(err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fail.Wrap(err)
	}
	// One writer; also keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close() //nolint:errcheck // schema error wins
		return nil, fail.Hint("failed to create journal schema").Wrap(err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// Record implements lifecycle.Recorder.
func (s *SQLite) Record(ctx context.Context, res lifecycle.Result) error {
	e := NewEntry(res, s.now())
	warnings, err := json.Marshal(nonNil(e.Warnings))
	if err != nil {
		return oops.Code(CodeWriteFailed).In("journal").Wrap(err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transitions (id, recorded_at, op, module, module_id, version, outcome, code, reason, error, warnings)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Time.UnixNano(), e.Op, e.Module, e.ModuleID, e.Version,
		e.Outcome, e.Code, e.Reason, e.Error, string(warnings))
	if err != nil {
		return oops.Code(CodeWriteFailed).In("journal").
			With("driver", DriverSQLite).
			With("op", e.Op).
			With("plugin", e.Module).
			Wrap(err)
	}
	return nil
}

// History implements Journal.
func (s *SQLite) History(ctx context.Context, q Query) ([]Entry, error) {
	const cols = `SELECT id, recorded_at, op, module, module_id, version, outcome, code, reason, error, warnings FROM transitions`

	var (
		rows *sql.Rows
		err  error
	)
	if q.Module == "" {
		rows, err = s.db.QueryContext(ctx, cols+` ORDER BY id DESC LIMIT ?`, q.limit())
	} else {
		rows, err = s.db.QueryContext(ctx, cols+` WHERE module = ? COLLATE NOCASE ORDER BY id DESC LIMIT ?`, q.Module, q.limit())
	}
	if err != nil {
		return nil, oops.Code(CodeReadFailed).In("journal").With("driver", DriverSQLite).Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			id       string
			nanos    int64
			warnings string
		)
		if err := rows.Scan(&id, &nanos, &e.Op, &e.Module, &e.ModuleID, &e.Version,
			&e.Outcome, &e.Code, &e.Reason, &e.Error, &warnings); err != nil {
			return nil, oops.Code(CodeReadFailed).In("journal").Wrap(err)
		}
		if e.ID, err = ulid.Parse(id); err != nil {
			return nil, oops.Code(CodeReadFailed).In("journal").With("id", id).Hint("corrupt entry id").Wrap(err)
		}
		e.Time = time.Unix(0, nanos).UTC()
		if err := json.Unmarshal([]byte(warnings), &e.Warnings); err != nil {
			return nil, oops.Code(CodeReadFailed).In("journal").With("id", id).Hint("corrupt warnings").Wrap(err)
		}
		if len(e.Warnings) == 0 {
			e.Warnings = nil
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code(CodeReadFailed).In("journal").Wrap(err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close() //nolint:wrapcheck // close error needs no context
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
