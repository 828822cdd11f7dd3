// Package storage defines persistence interfaces for campaign saves.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmerah/ai-gamemaster/internal/game/state"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// SaveInfo summarizes one persisted campaign save.
type SaveInfo struct {
	CampaignID string
	Location   string
	SavedAt    time.Time
}

// CampaignStore persists whole-session snapshots keyed by campaign id.
type CampaignStore interface {
	Save(ctx context.Context, gs *state.GameState) error
	Load(ctx context.Context, campaignID string) (*state.GameState, error)
	List(ctx context.Context) ([]SaveInfo, error)
	Close() error
}
