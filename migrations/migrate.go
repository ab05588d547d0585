package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed *.sql
var files embed.FS

const schemaTable = `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY);`

// Run applies pending migrations in file name order, each in its own transaction.
// Safe to call on every startup.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := Versions()
	if err != nil {
		return err
	}

	for _, version := range names {
		var applied bool
		err := db.QueryRowContext(ctx, `SELECT true FROM schema_migrations WHERE version = $1`, version).Scan(&applied)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", version, err)
		}

		if err := apply(ctx, db, version); err != nil {
			return err
		}
	}

	return nil
}

// Versions lists the embedded migration versions in order.
func Versions() ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var versions []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(e.Name(), ".sql"))
	}
	sort.Strings(versions)
	return versions, nil
}

func apply(ctx context.Context, db *sql.DB, version string) error {
	body, err := files.ReadFile(version + ".sql")
	if err != nil {
		return fmt.Errorf("read %s: %w", version, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", version, err)
	}
	defer tx.Rollback()

	log.Info().Str("version", version).Msg("Running migration")
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("run %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return fmt.Errorf("record %s: %w", version, err)
	}

	return tx.Commit()
}
