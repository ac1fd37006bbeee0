package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"voicecard/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pages (
	position INTEGER NOT NULL,
	code     TEXT    NOT NULL,
	id       TEXT    NOT NULL,
	data     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pages_code ON pages(code);
`

// SQLite stores the collection in an embedded database. Save replaces the
// whole table inside one transaction, matching the load/save contract.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

func OpenSQLite(baseDir string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	path := filepath.Join(baseDir, "pages.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLite{db: db, path: path, logger: logger}, nil
}

func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Load(ctx context.Context) ([]domain.AudioPage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, data FROM pages ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("%w: query pages: %v", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	pages := []domain.AudioPage{}
	for rows.Next() {
		var code, raw string
		if err := rows.Scan(&code, &raw); err != nil {
			return nil, fmt.Errorf("%w: scan page: %v", domain.ErrStorageUnavailable, err)
		}
		var page domain.AudioPage
		if err := json.Unmarshal([]byte(raw), &page); err != nil {
			s.logger.Warn("skipping malformed page row, it will be dropped on the next save", "path", s.path, "code", code, "error", err)
			continue
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate pages: %v", domain.ErrStorageUnavailable, err)
	}
	return pages, nil
}

func (s *SQLite) Save(ctx context.Context, pages []domain.AudioPage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", domain.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages`); err != nil {
		return fmt.Errorf("%w: clear pages: %v", domain.ErrStorageUnavailable, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO pages (position, code, id, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare insert: %v", domain.ErrStorageUnavailable, err)
	}
	defer stmt.Close()

	for i, page := range pages {
		data, err := json.Marshal(page)
		if err != nil {
			return fmt.Errorf("%w: encode page %s: %v", domain.ErrStorageUnavailable, page.Code, err)
		}
		if _, err := stmt.ExecContext(ctx, i, page.Code, page.ID, string(data)); err != nil {
			return fmt.Errorf("%w: insert page %s: %v", domain.ErrStorageUnavailable, page.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit pages: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}
