// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package journal

import (
	"embed"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// pgx5:// driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

// Migration error codes.
const (
	CodeMigrationSource  = "MIGRATION_SOURCE_FAILED"
	CodeMigrationInit    = "MIGRATION_INIT_FAILED"
	CodeMigrationUp      = "MIGRATION_UP_FAILED"
	CodeMigrationDown    = "MIGRATION_DOWN_FAILED"
	CodeMigrationSteps   = "MIGRATION_STEPS_FAILED"
	CodeMigrationVersion = "MIGRATION_VERSION_FAILED"
	CodeMigrationForce   = "MIGRATION_FORCE_FAILED"
	CodeMigrationClose   = "MIGRATION_CLOSE_FAILED"
	CodeMigrationList    = "MIGRATION_LIST_FAILED"
	CodeInvalidVersion   = "INVALID_VERSION"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// schemaDriver is the subset of *migrate.Migrate the journal uses.
type schemaDriver interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator applies the embedded transitions schema to a PostgreSQL journal.
type Migrator struct {
	m schemaDriver
}

// NewMigrator opens a migrator against databaseURL.
func NewMigrator(databaseURL string) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return nil, oops.Code(CodeMigrationSource).Wrap(err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, pgxURL(databaseURL))
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error wins
		return nil, oops.Code(CodeMigrationInit).Wrap(err)
	}
	return &Migrator{m: m}, nil
}

// pgxURL maps postgres:// and postgresql:// onto the scheme the pgx/v5
// migrate driver registers.
func pgxURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// changed drops migrate.ErrNoChange, which is success for every direction.
func changed(code string, err error) error {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return oops.Code(code).Wrap(err)
}

// Up applies all pending migrations.
func (m *Migrator) Up() error { return changed(CodeMigrationUp, m.m.Up()) }

// Down rolls every migration back, dropping the transitions table.
func (m *Migrator) Down() error { return changed(CodeMigrationDown, m.m.Down()) }

// Steps migrates n steps; negative n goes down. Zero does nothing.
func (m *Migrator) Steps(n int) error {
	if n == 0 {
		return nil
	}
	return oops.With("steps", n).Wrap(changed(CodeMigrationSteps, m.m.Steps(n)))
}

// Version reports the applied version, 0 when the schema is empty.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, oops.Code(CodeMigrationVersion).Wrap(err)
	}
	return version, dirty, nil
}

// Force records version as applied without running anything, clearing a
// dirty flag left by a failed migration.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code(CodeInvalidVersion).Errorf("version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code(CodeMigrationForce).With("version", version).Wrap(err)
	}
	return nil
}

// Pending lists the versions Up would apply, ascending.
func (m *Migrator) Pending() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, err
	}
	all, err := listMigrations()
	if err != nil {
		return nil, err
	}
	var pending []uint
	for _, mig := range all {
		if mig.version > current {
			pending = append(pending, mig.version)
		}
	}
	return pending, nil
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return oops.Code(CodeMigrationClose).
			With("source_failed", srcErr != nil).
			With("database_failed", dbErr != nil).
			Wrap(err)
	}
	return nil
}

type schemaMigration struct {
	version uint
	name    string // NNNNNN_description
}

// listMigrations parses the embedded *.up.sql names, ascending by version.
// Names without a numeric prefix are skipped.
func listMigrations() ([]schemaMigration, error) {
	entries, err := migrationsFS.ReadDir(migrationsDir)
	if err != nil {
		return nil, oops.Code(CodeMigrationList).Wrap(err)
	}
	var out []schemaMigration
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".up.sql")
		if !ok {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			slog.Warn("skipping migration without a version prefix", "file", entry.Name())
			continue
		}
		out = append(out, schemaMigration{version: uint(version), name: name})
	}
	slices.SortFunc(out, func(a, b schemaMigration) int { return int(a.version) - int(b.version) })
	return out, nil
}

// migrationVersions lists the embedded versions, ascending.
func migrationVersions() ([]uint, error) {
	all, err := listMigrations()
	if err != nil {
		return nil, err
	}
	versions := make([]uint, len(all))
	for i, mig := range all {
		versions[i] = mig.version
	}
	return versions, nil
}

// MigrationName returns the "NNNNNN_description" name of version, or "".
func MigrationName(version uint) (string, error) {
	all, err := listMigrations()
	if err != nil {
		return "", err
	}
	for _, mig := range all {
		if mig.version == version {
			return mig.name, nil
		}
	}
	return "", nil
}
