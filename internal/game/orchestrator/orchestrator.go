// Package orchestrator coordinates the game loop: it serializes player
// input through the single-flight busy gate, drives the AI client, and
// hands structured responses to the processor.
package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/mmerah/ai-gamemaster/internal/ai"
	"github.com/mmerah/ai-gamemaster/internal/game/event"
	"github.com/mmerah/ai-gamemaster/internal/game/processor"
	"github.com/mmerah/ai-gamemaster/internal/game/state"
)

// ErrNothingToRetry is returned when no failed request is cached or the
// cached request has aged past the retry TTL. Handlers map it to 400.
var ErrNothingToRetry = errors.New("no recent failed AI request to retry")

// ErrInvalidInput flags malformed requests. Handlers map it to 400.
var ErrInvalidInput = errors.New("invalid input")

// maxAIReruns bounds the automatic rerun loop (NPC rolls the AI must
// narrate). The cap breaks pathological loops where the AI keeps
// requesting NPC dice without ever ending the turn.
const maxAIReruns = 5

// LoreSource looks up reference material (monsters, rules) woven into
// the AI prompt. Implemented by the content store.
type LoreSource interface {
	Lookup(ctx context.Context, query string, limit int) ([]string, error)
}

// Orchestrator owns the game session: state, AI client, retry cache,
// and the busy gate. One orchestrator serves one campaign.
type Orchestrator struct {
	gate  busyGate
	gs    *state.GameState
	proc  *processor.Processor
	aiC   ai.Client
	retry *ai.RetryCache
	emit  *event.Emitter
	lore  LoreSource

	// mu guards game state between mutation phases and snapshot reads.
	// It is NOT held across AI calls; the busy gate keeps writers single.
	mu sync.Mutex

	rollMu sync.Mutex
	rollRN *rand.Rand

	now   func() time.Time
	newID func() string
}

// Option tweaks orchestrator construction.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithCorrelationIDs overrides correlation id generation.
func WithCorrelationIDs(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// WithRollSource overrides the random source used by PerformRoll.
func WithRollSource(rng *rand.Rand) Option {
	return func(o *Orchestrator) { o.rollRN = rng }
}

// New assembles an orchestrator for a loaded game state. lore may be nil
// when no reference content is available.
func New(gs *state.GameState, proc *processor.Processor, client ai.Client, retry *ai.RetryCache, emitter *event.Emitter, lore LoreSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gs:     gs,
		proc:   proc,
		aiC:    client,
		retry:  retry,
		emit:   emitter,
		lore:   lore,
		rollRN: rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
		newID:  newCorrelationID,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CombatInfo is the client-facing view of an active combat.
type CombatInfo struct {
	IsActive         bool               `json:"is_active"`
	RoundNumber      int                `json:"round_number"`
	CurrentTurnIndex int                `json:"current_turn_index"`
	Combatants       []event.CombatantSummary `json:"combatants"`
	CurrentID        string             `json:"current_combatant_id,omitempty"`
	CurrentName      string             `json:"current_combatant_name,omitempty"`
}

// Snapshot is the full frontend state returned by GET /api/game_state
// and by every action endpoint after processing.
type Snapshot struct {
	CampaignID          string              `json:"campaign_id"`
	Location            string              `json:"location,omitempty"`
	LocationDescription string              `json:"location_description,omitempty"`
	Party               []state.PartyMember `json:"party"`
	ChatHistory         []state.ChatMessage `json:"chat_history"`
	Combat              *CombatInfo         `json:"combat_info,omitempty"`
	Quests              []state.Quest       `json:"quests,omitempty"`
	DiceRequests        []state.DiceRequest `json:"dice_requests"`
	CanRetry            bool                `json:"can_retry_last_request"`
	NeedsBackendTrigger bool                `json:"needs_backend_trigger"`
}

// Snapshot builds a consistent view of the current session.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		CampaignID:          o.gs.CampaignID,
		Location:            o.gs.Location,
		LocationDescription: o.gs.LocationDescription,
		ChatHistory:         append([]state.ChatMessage(nil), o.gs.ChatHistory...),
		DiceRequests:        append([]state.DiceRequest(nil), o.gs.PendingPlayerRequests...),
		CanRetry:            o.retry.CanRetry(),
		NeedsBackendTrigger: o.needsBackendTriggerLocked(),
	}
	if snap.DiceRequests == nil {
		snap.DiceRequests = []state.DiceRequest{}
	}

	for _, memberID := range sortedKeys(o.gs.Party) {
		snap.Party = append(snap.Party, *o.gs.Party[memberID])
	}
	for _, questID := range sortedKeys(o.gs.Quests) {
		snap.Quests = append(snap.Quests, *o.gs.Quests[questID])
	}

	if o.gs.Combat.IsActive {
		info := &CombatInfo{
			IsActive:         true,
			RoundNumber:      o.gs.Combat.RoundNumber,
			CurrentTurnIndex: o.gs.Combat.CurrentTurnIndex,
			Combatants:       summaries(o.gs.Combat.Combatants),
		}
		if current, ok := o.gs.Combat.Current(); ok {
			info.CurrentID = current.ID
			info.CurrentName = current.Name
		}
		snap.Combat = info
	}
	return snap
}

// needsBackendTriggerLocked reports whether the frontend should call
// trigger_next_step: an NPC holds the turn and no player rolls are
// outstanding.
func (o *Orchestrator) needsBackendTriggerLocked() bool {
	if !o.gs.Combat.IsActive || !o.gs.Combat.OrderFixed {
		return false
	}
	if len(o.gs.PendingPlayerRequests) > 0 {
		return false
	}
	current, ok := o.gs.Combat.Current()
	return ok && !current.IsPlayer
}

// Busy reports whether an AI request is currently in flight.
func (o *Orchestrator) Busy() bool {
	return o.gate.Busy()
}

// State exposes the underlying game state for persistence. Callers must
// not mutate it while the orchestrator is busy.
func (o *Orchestrator) State() *state.GameState {
	return o.gs
}
