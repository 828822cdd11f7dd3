// Package sqlite provides SQLite-backed campaign save storage.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmerah/ai-gamemaster/internal/game/state"
	sqlitemigrate "github.com/mmerah/ai-gamemaster/internal/platform/storage/sqlitemigrate"
	"github.com/mmerah/ai-gamemaster/internal/storage"
	"github.com/mmerah/ai-gamemaster/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides SQLite-backed persistence for campaign saves.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// DB returns the underlying sql.DB instance.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Open opens a SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, now: time.Now}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save upserts the whole session snapshot for the campaign.
func (s *Store) Save(ctx context.Context, gs *state.GameState) error {
	if gs == nil || strings.TrimSpace(gs.CampaignID) == "" {
		return fmt.Errorf("campaign id is required")
	}

	encoded, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("marshal game state: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO campaign_saves (campaign_id, location, state_json, saved_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(campaign_id) DO UPDATE SET
			location = excluded.location,
			state_json = excluded.state_json,
			saved_at_ms = excluded.saved_at_ms`,
		gs.CampaignID, gs.Location, string(encoded), toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("save campaign %s: %w", gs.CampaignID, err)
	}
	return nil
}

// Load reads the snapshot for a campaign id.
func (s *Store) Load(ctx context.Context, campaignID string) (*state.GameState, error) {
	if strings.TrimSpace(campaignID) == "" {
		return nil, fmt.Errorf("campaign id is required")
	}

	var encoded string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT state_json FROM campaign_saves WHERE campaign_id = ?`,
		campaignID).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign %s: %w", campaignID, err)
	}

	var gs state.GameState
	if err := json.Unmarshal([]byte(encoded), &gs); err != nil {
		return nil, fmt.Errorf("unmarshal campaign %s: %w", campaignID, err)
	}
	return &gs, nil
}

// List returns save summaries ordered by most recent first.
func (s *Store) List(ctx context.Context) ([]storage.SaveInfo, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT campaign_id, location, saved_at_ms FROM campaign_saves ORDER BY saved_at_ms DESC`)
	if err != nil {
		return nil, fmt.Errorf("list campaign saves: %w", err)
	}
	defer rows.Close()

	var saves []storage.SaveInfo
	for rows.Next() {
		var (
			info    storage.SaveInfo
			savedAt int64
		)
		if err := rows.Scan(&info.CampaignID, &info.Location, &savedAt); err != nil {
			return nil, fmt.Errorf("scan campaign save: %w", err)
		}
		info.SavedAt = fromMillis(savedAt)
		saves = append(saves, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaign saves: %w", err)
	}
	return saves, nil
}
