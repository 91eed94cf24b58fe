// Package sqlite is a durable ledger.Store backed by a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/ledger"
	"github.com/dvloznov/basket-export/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS export_snapshots (
	snapshot_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at       INTEGER NOT NULL UNIQUE,
	contract_version TEXT    NOT NULL,
	mode             TEXT    NOT NULL,
	row_count        INTEGER NOT NULL,
	content_checksum TEXT    NOT NULL,
	location         TEXT    NOT NULL DEFAULT '',
	scope            TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_export_snapshots_version
	ON export_snapshots (contract_version, created_at);

CREATE TRIGGER IF NOT EXISTS export_snapshots_no_update
	BEFORE UPDATE ON export_snapshots
	BEGIN SELECT RAISE(ABORT, 'export_snapshots is append-only'); END;

CREATE TRIGGER IF NOT EXISTS export_snapshots_no_delete
	BEFORE DELETE ON export_snapshots
	BEGIN SELECT RAISE(ABORT, 'export_snapshots is append-only'); END;
`

const selectColumns = `snapshot_id, created_at, contract_version, mode, row_count, content_checksum, location, scope`

const watermarkQuery = `SELECT ` + selectColumns + ` FROM export_snapshots
	WHERE contract_version = ? AND scope = '' ORDER BY created_at DESC LIMIT 1`

// Store implements ledger.Store on SQLite. Every write transaction starts
// with BEGIN IMMEDIATE, which takes the database write lock up front.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// Open creates the parent directory and schema if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite.Open: ensure dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: open: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.Open: migrate: %w", err)
	}
	if err := addScopeColumn(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.Open: migrate: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.Open: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// addScopeColumn upgrades ledgers created before snapshots carried a scope.
// Existing rows were all complete exports.
func addScopeColumn(db *sql.DB) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('export_snapshots') WHERE name = 'scope'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect columns: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE export_snapshots ADD COLUMN scope TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("add scope column: %w", err)
	}
	return nil
}

func (s *Store) Commit(ctx context.Context, version string, fn ledger.CommitFunc) (domain.ExportSnapshot, error) {
	log := logger.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ExportSnapshot{}, fmt.Errorf("Commit: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev *domain.ExportSnapshot
	latest, err := scanOne(tx.QueryRowContext(ctx, watermarkQuery, version))
	switch {
	case err == nil:
		prev = &latest
	case errors.Is(err, sql.ErrNoRows):
	default:
		return domain.ExportSnapshot{}, fmt.Errorf("Commit: read watermark: %w", err)
	}

	var lastMicros sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(created_at) FROM export_snapshots`).Scan(&lastMicros); err != nil {
		return domain.ExportSnapshot{}, fmt.Errorf("Commit: read last created_at: %w", err)
	}

	snap, err := fn(ctx, prev)
	if err != nil {
		return domain.ExportSnapshot{}, err
	}

	var lastAt time.Time
	if lastMicros.Valid {
		lastAt = time.UnixMicro(lastMicros.Int64).UTC()
	}
	snap.CreatedAt = ledger.NextCreatedAt(snap.CreatedAt, lastAt)
	snap.ContractVersion = version

	res, err := tx.ExecContext(ctx,
		`INSERT INTO export_snapshots (created_at, contract_version, mode, row_count, content_checksum, location, scope)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.CreatedAt.UnixMicro(), snap.ContractVersion, string(snap.Mode), snap.RowCount, snap.ContentChecksum, snap.Location, snap.Scope)
	if err != nil {
		return domain.ExportSnapshot{}, fmt.Errorf("Commit: insert: %w", err)
	}
	if snap.SnapshotID, err = res.LastInsertId(); err != nil {
		return domain.ExportSnapshot{}, fmt.Errorf("Commit: last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.ExportSnapshot{}, fmt.Errorf("Commit: commit: %w", err)
	}

	log.Debug().
		Int64("snapshot_id", snap.SnapshotID).
		Str("contract_version", version).
		Str("scope", snap.Scope).
		Msg("Snapshot appended")

	return snap, nil
}

func (s *Store) Latest(ctx context.Context, version string) (domain.ExportSnapshot, error) {
	snap, err := scanOne(s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM export_snapshots
		 WHERE contract_version = ? ORDER BY created_at DESC LIMIT 1`, version))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExportSnapshot{}, fmt.Errorf("Latest %s: %w", version, ledger.ErrNoSnapshot)
	}
	if err != nil {
		return domain.ExportSnapshot{}, fmt.Errorf("Latest: %w", err)
	}
	return snap, nil
}

func (s *Store) Watermark(ctx context.Context, version string) (domain.ExportSnapshot, error) {
	snap, err := scanOne(s.db.QueryRowContext(ctx, watermarkQuery, version))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExportSnapshot{}, fmt.Errorf("Watermark %s: %w", version, ledger.ErrNoSnapshot)
	}
	if err != nil {
		return domain.ExportSnapshot{}, fmt.Errorf("Watermark: %w", err)
	}
	return snap, nil
}

func (s *Store) List(ctx context.Context, version string) ([]domain.ExportSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM export_snapshots
		 WHERE contract_version = ? ORDER BY created_at ASC`, version)
	if err != nil {
		return nil, fmt.Errorf("List: query: %w", err)
	}
	defer rows.Close()

	var out []domain.ExportSnapshot
	for rows.Next() {
		snap, err := scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: iterate: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner) (domain.ExportSnapshot, error) {
	var (
		snap   domain.ExportSnapshot
		micros int64
		mode   string
	)
	err := row.Scan(&snap.SnapshotID, &micros, &snap.ContractVersion, &mode, &snap.RowCount, &snap.ContentChecksum, &snap.Location, &snap.Scope)
	if err != nil {
		return domain.ExportSnapshot{}, err
	}
	snap.CreatedAt = time.UnixMicro(micros).UTC()
	snap.Mode = domain.ExportMode(mode)
	return snap, nil
}
