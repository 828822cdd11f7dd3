// Package event defines the ordered domain events streamed to game clients.
package event

import (
	"encoding/json"
	"strings"
	"time"
)

// Type identifies the type of a game event.
type Type string

// Narrative and world events.
const (
	// TypeNarrativeAdded records a chat/narrative entry.
	TypeNarrativeAdded Type = "narrative.added"
	// TypeLocationChanged records a party location change.
	TypeLocationChanged Type = "location.changed"
	// TypeQuestUpdated records a quest status change.
	TypeQuestUpdated Type = "quest.updated"
	// TypeItemAdded records an inventory addition.
	TypeItemAdded Type = "item.added"
	// TypeItemRemoved records an inventory removal.
	TypeItemRemoved Type = "item.removed"
	// TypeGoldChanged records a gold balance change.
	TypeGoldChanged Type = "gold.changed"
	// TypePartyMemberUpdated records a change to a party member outside combat.
	TypePartyMemberUpdated Type = "party.member_updated"
)

// Combat events.
const (
	// TypeCombatStarted records the start of combat.
	TypeCombatStarted Type = "combat.started"
	// TypeCombatEnded records the end of combat.
	TypeCombatEnded Type = "combat.ended"
	// TypeCombatantHPChanged records an HP delta on a combatant.
	TypeCombatantHPChanged Type = "combatant.hp_changed"
	// TypeCombatantStatusChanged records condition changes on a combatant.
	TypeCombatantStatusChanged Type = "combatant.status_changed"
	// TypeCombatantRemoved records a combatant leaving the turn order.
	TypeCombatantRemoved Type = "combatant.removed"
	// TypeCombatantInitiativeSet records an initiative value being fixed.
	TypeCombatantInitiativeSet Type = "combatant.initiative_set"
	// TypeInitiativeOrderSet records the final sorted turn order.
	TypeInitiativeOrderSet Type = "combat.initiative_order_set"
	// TypeTurnAdvanced records the active turn moving to the next combatant.
	TypeTurnAdvanced Type = "turn.advanced"
)

// Dice events.
const (
	// TypeDiceRequested records a roll request directed at player characters.
	TypeDiceRequested Type = "dice.requested"
	// TypeDiceCleared records pending roll requests being resolved or dropped.
	TypeDiceCleared Type = "dice.cleared"
)

// Backend coordination events.
const (
	// TypeBackendProcessing records the AI busy flag flipping.
	TypeBackendProcessing Type = "backend.processing"
	// TypeGameError records a recoverable or fatal game error.
	TypeGameError Type = "game.error"
	// TypeStateSnapshot records a full game state snapshot for reconnects.
	TypeStateSnapshot Type = "game.state_snapshot"
)

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g., "combat", "dice").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// Event is an immutable, globally sequenced game fact.
//
// SequenceNumber is assigned at construction under the sequencer lock and
// is strictly increasing for the process lifetime. CorrelationID links
// every event produced by one logical request.
type Event struct {
	// EventID uniquely identifies the event.
	EventID string `json:"event_id"`
	// Timestamp is when the event was constructed.
	Timestamp time.Time `json:"timestamp"`
	// SequenceNumber is the process-wide monotonic ordering key.
	SequenceNumber uint64 `json:"sequence_number"`
	// Type identifies the kind of event.
	Type Type `json:"event_type"`
	// CorrelationID links the event to the request cascade that produced it.
	CorrelationID string `json:"correlation_id,omitempty"`
	// Payload holds event-specific data as JSON.
	Payload json.RawMessage `json:"payload,omitempty"`
}
