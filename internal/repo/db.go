// Package repo persists users, invitations and guest submissions in SQLite.
package repo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"sort"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/keithlinneman/invitegate/internal/clock"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type DB struct {
	db    *sql.DB
	clock clock.Clock
}

// Open opens the database at path and applies pending migrations.
func Open(ctx context.Context, path string, c clock.Clock) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, xerrors.Wrap(err, "open database")
	}
	// one writer, sqlite serialises writes anyway
	sqlDB.SetMaxOpenConns(1)

	d := &DB{db: sqlDB, clock: clock.OrReal(c)}
	if err := d.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return xerrors.Wrap(err, "create migrations table")
	}

	applied := make(map[string]bool)
	rows, err := d.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return xerrors.Wrap(err, "query migrations")
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return xerrors.Wrap(err, "scan migration")
		}
		applied[v] = true
	}
	rows.Close()

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return xerrors.Wrap(err, "read migrations")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		if applied[version] {
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return xerrors.Wrapf(err, "read migration %s", name)
		}
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return xerrors.Wrap(err, "begin migration")
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			tx.Rollback()
			return xerrors.Wrapf(err, "apply migration %s", name)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return xerrors.Wrapf(err, "record migration %s", name)
		}
		if err := tx.Commit(); err != nil {
			return xerrors.Wrapf(err, "commit migration %s", name)
		}
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

func (d *DB) Close() error { return d.db.Close() }

func isUnique(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
