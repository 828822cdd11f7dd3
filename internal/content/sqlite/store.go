// Package sqlite provides the SQLite-backed reference content store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mmerah/ai-gamemaster/internal/content"
	"github.com/mmerah/ai-gamemaster/internal/content/sqlite/migrations"
	sqlitemigrate "github.com/mmerah/ai-gamemaster/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed reference content with keyword search.
// The migrations seed a starter set of SRD-style monsters and rules.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a content store at the provided path. Use ":memory:" for an
// ephemeral store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("content path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open content db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping content db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Put inserts or replaces a reference entry. Used to load campaign-local
// lore on top of the seeded SRD set.
func (s *Store) Put(ctx context.Context, entry content.Entry) error {
	if strings.TrimSpace(entry.ID) == "" || strings.TrimSpace(entry.Name) == "" {
		return fmt.Errorf("entry id and name are required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO reference_entries (id, name, category, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			body = excluded.body`,
		entry.ID, entry.Name, entry.Category, entry.Text)
	if err != nil {
		return fmt.Errorf("put reference entry %s: %w", entry.ID, err)
	}
	return nil
}

// Retrieve searches entries by keyword. Every word of the query must
// match the name or body; name matches rank first.
func (s *Store) Retrieve(ctx context.Context, query string, limit int) ([]content.Entry, error) {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(words) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	var (
		clauses []string
		args    []any
	)
	for _, word := range words {
		pattern := "%" + word + "%"
		clauses = append(clauses, "(LOWER(name) LIKE ? OR LOWER(body) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	// Exact-ish name matches first, then alphabetical.
	args = append(args, "%"+strings.Join(words, " ")+"%", limit)

	rows, err := s.sqlDB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, name, category, body
		FROM reference_entries
		WHERE %s
		ORDER BY CASE WHEN LOWER(name) LIKE ? THEN 0 ELSE 1 END, name
		LIMIT ?`, strings.Join(clauses, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("search reference entries: %w", err)
	}
	defer rows.Close()

	var entries []content.Entry
	for rows.Next() {
		var entry content.Entry
		if err := rows.Scan(&entry.ID, &entry.Name, &entry.Category, &entry.Text); err != nil {
			return nil, fmt.Errorf("scan reference entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference entries: %w", err)
	}
	return entries, nil
}

// Lookup adapts Retrieve to the prompt builder: formatted text lines.
func (s *Store) Lookup(ctx context.Context, query string, limit int) ([]string, error) {
	entries, err := s.Retrieve(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, entry.Text)
	}
	return lines, nil
}
