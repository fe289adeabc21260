// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package store

import (
	"embed"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	// pgx5:// driver
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migration is one embedded NNNNNN_name.up.sql file.
type migration struct {
	version uint
	name    string
}

var catalogue = sync.OnceValues(readCatalogue)

// migrateIface is the subset of *migrate.Migrate the Migrator drives.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator applies the accounts and profiles schema embedded in the binary.
type Migrator struct {
	m migrateIface
}

// NewMigrator opens a migrator against databaseURL.
func NewMigrator(databaseURL string) (*Migrator, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "open embedded migrations").Wrap(err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		_ = src.Close()
		return nil, oops.Code("MIGRATION_INIT_FAILED").With("operation", "initialize migrator").Wrap(err)
	}
	return &Migrator{m: m}, nil
}

// migrateURL points postgres:// and postgresql:// URLs at the pgx/v5 driver.
func migrateURL(databaseURL string) string {
	scheme, rest, ok := strings.Cut(databaseURL, "://")
	if ok && (scheme == "postgres" || scheme == "postgresql") {
		return "pgx5://" + rest
	}
	return databaseURL
}

// changed maps migrate.ErrNoChange to success and wraps anything else in code.
func changed(err error, code string) error {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return oops.Code(code).Wrap(err)
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	return changed(m.m.Up(), "MIGRATION_UP_FAILED")
}

// Down drops the whole schema, accounts included.
func (m *Migrator) Down() error {
	return changed(m.m.Down(), "MIGRATION_DOWN_FAILED")
}

// Steps moves n versions forward, or back when n is negative.
func (m *Migrator) Steps(n int) error {
	if err := changed(m.m.Steps(n), "MIGRATION_STEPS_FAILED"); err != nil {
		return oops.With("steps", n).Wrap(err)
	}
	return nil
}

// Version reports the applied version and the dirty flag. A database that
// never ran a migration is version 0.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Force marks version as applied and clears the dirty flag without running
// any SQL.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("INVALID_VERSION").Errorf("version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if srcErr == nil && dbErr == nil {
		return nil
	}
	failed := oops.Code("MIGRATION_CLOSE_FAILED")
	switch {
	case dbErr == nil:
		return failed.With("component", "source").Wrap(srcErr)
	case srcErr == nil:
		return failed.With("component", "database").Wrap(dbErr)
	}
	return failed.With("component", "both").Wrap(errors.Join(srcErr, dbErr))
}

// PendingMigrations lists the versions Up would apply, ascending.
func (m *Migrator) PendingMigrations() ([]uint, error) {
	_, pending, err := m.partition()
	if err != nil {
		return nil, oops.With("operation", "get pending migrations").Wrap(err)
	}
	return pending, nil
}

// AppliedMigrations lists the applied versions, ascending.
func (m *Migrator) AppliedMigrations() ([]uint, error) {
	applied, _, err := m.partition()
	if err != nil {
		return nil, oops.With("operation", "get applied migrations").Wrap(err)
	}
	return applied, nil
}

// partition splits the embedded versions around the current one.
func (m *Migrator) partition() (applied, pending []uint, err error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, nil, err
	}
	all, err := allMigrationVersions()
	if err != nil {
		return nil, nil, err
	}
	for _, v := range all {
		if v <= current {
			applied = append(applied, v)
		} else {
			pending = append(pending, v)
		}
	}
	return applied, pending, nil
}

// MigrationName returns "NNNNNN_name" for version, or "" when no embedded
// migration has that version.
func MigrationName(version uint) (string, error) {
	list, err := catalogue()
	if err != nil {
		return "", err
	}
	i, found := slices.BinarySearchFunc(list, version, func(mg migration, v uint) int {
		switch {
		case mg.version < v:
			return -1
		case mg.version > v:
			return 1
		}
		return 0
	})
	if !found {
		return "", nil
	}
	return list[i].name, nil
}

// allMigrationVersions returns the embedded versions, ascending. The slice
// is the caller's to modify.
func allMigrationVersions() ([]uint, error) {
	list, err := catalogue()
	if err != nil {
		return nil, err
	}
	out := make([]uint, len(list))
	for i, mg := range list {
		out[i] = mg.version
	}
	return out, nil
}

func readCatalogue() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").With("operation", "read migrations dir").Wrap(err)
	}
	var list []migration
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".up.sql")
		if !ok {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		v, err := strconv.ParseUint(prefix, 10, 0)
		if len(prefix) != 6 || err != nil {
			slog.Warn("ignoring migration file", "filename", entry.Name(), "want", "NNNNNN_name.up.sql")
			continue
		}
		list = append(list, migration{version: uint(v), name: name})
	}
	slices.SortFunc(list, func(a, b migration) int {
		switch {
		case a.version < b.version:
			return -1
		case a.version > b.version:
			return 1
		}
		return 0
	})
	return list, nil
}
