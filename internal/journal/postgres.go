// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package journal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/plugman/internal/plugin/lifecycle"
)

// poolIface is the subset of *pgxpool.Pool the journal uses, so tests can
// substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Postgres stores entries in the plugman_transitions table. The schema is
// managed by Migrator.
type Postgres struct {
	pool poolIface
	now  func() time.Time
}

// NewPostgres creates a journal over an existing pool.
func NewPostgres(pool poolIface) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

// OpenPostgres connects to dsn.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code(CodeOpenFailed).In("journal").With("driver", DriverPostgres).Wrap(err)
	}
	return NewPostgres(pool), nil
}

const insertTransition = `INSERT INTO plugman_transitions
	(id, recorded_at, op, module, module_id, version, outcome, code, reason, error, warnings)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// Record implements lifecycle.Recorder. Recording the same entry twice is
// not an error.
func (p *Postgres) Record(ctx context.Context, res lifecycle.Result) error {
	e := NewEntry(res, p.now())
	_, err := p.pool.Exec(ctx, insertTransition,
		e.ID.String(), e.Time, e.Op, e.Module, e.ModuleID, e.Version,
		e.Outcome, e.Code, e.Reason, e.Error, nonNil(e.Warnings))
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return nil
		case pgerrcode.UndefinedTable:
			return oops.Code(CodeSchemaMissing).In("journal").
				Hint("run `plugman migrate up` to create the journal schema").
				Wrap(err)
		}
	}
	return oops.Code(CodeWriteFailed).In("journal").
		With("driver", DriverPostgres).
		With("op", e.Op).
		With("plugin", e.Module).
		Wrap(err)
}

const selectTransitions = `SELECT id, recorded_at, op, module, module_id, version, outcome, code, reason, error, warnings
	FROM plugman_transitions`

// History implements Journal.
func (p *Postgres) History(ctx context.Context, q Query) ([]Entry, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if q.Module == "" {
		rows, err = p.pool.Query(ctx, selectTransitions+` ORDER BY id DESC LIMIT $1`, q.limit())
	} else {
		rows, err = p.pool.Query(ctx, selectTransitions+` WHERE lower(module) = lower($1) ORDER BY id DESC LIMIT $2`,
			q.Module, q.limit())
	}
	if err != nil {
		return nil, oops.Code(CodeReadFailed).In("journal").With("driver", DriverPostgres).Wrap(err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			id string
		)
		if err := rows.Scan(&id, &e.Time, &e.Op, &e.Module, &e.ModuleID, &e.Version,
			&e.Outcome, &e.Code, &e.Reason, &e.Error, &e.Warnings); err != nil {
			return nil, oops.Code(CodeReadFailed).In("journal").Wrap(err)
		}
		if e.ID, err = ulid.Parse(id); err != nil {
			return nil, oops.Code(CodeReadFailed).In("journal").With("id", id).Hint("corrupt entry id").Wrap(err)
		}
		e.Time = e.Time.UTC()
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

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
