package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmerah/ai-gamemaster/internal/platform/id"
)

// Emitter constructs sequenced events and pushes them onto the queue.
//
// The sequencer assigns the ordering key at construction time, so events
// emitted from concurrent call sites still carry a total order.
type Emitter struct {
	queue     *Queue
	sequencer *Sequencer
	now       func() time.Time
	newID     func() (string, error)
}

// NewEmitter creates an emitter bound to a queue and sequencer.
func NewEmitter(queue *Queue, sequencer *Sequencer) *Emitter {
	return &Emitter{
		queue:     queue,
		sequencer: sequencer,
		now:       time.Now,
		newID:     id.NewID,
	}
}

// Emit constructs an event of the given type and pushes it to the queue.
func (e *Emitter) Emit(eventType Type, correlationID string, payload any) (Event, error) {
	if e == nil || e.queue == nil || e.sequencer == nil {
		return Event{}, fmt.Errorf("event emitter is not configured")
	}
	if !eventType.IsValid() {
		return Event{}, fmt.Errorf("event type is required")
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal event payload: %w", err)
	}

	eventID, err := e.newID()
	if err != nil {
		return Event{}, fmt.Errorf("generate event id: %w", err)
	}

	evt := Event{
		EventID:        eventID,
		Timestamp:      e.now().UTC(),
		SequenceNumber: e.sequencer.Next(),
		Type:           eventType,
		CorrelationID:  correlationID,
		Payload:        payloadJSON,
	}

	e.queue.Put(evt)
	return evt, nil
}

// EmitNarrativeAdded emits a narrative.added event.
func (e *Emitter) EmitNarrativeAdded(correlationID string, payload NarrativeAddedPayload) (Event, error) {
	return e.Emit(TypeNarrativeAdded, correlationID, payload)
}

// EmitLocationChanged emits a location.changed event.
func (e *Emitter) EmitLocationChanged(correlationID string, payload LocationChangedPayload) (Event, error) {
	return e.Emit(TypeLocationChanged, correlationID, payload)
}

// EmitCombatStarted emits a combat.started event.
func (e *Emitter) EmitCombatStarted(correlationID string, payload CombatStartedPayload) (Event, error) {
	return e.Emit(TypeCombatStarted, correlationID, payload)
}

// EmitCombatEnded emits a combat.ended event.
func (e *Emitter) EmitCombatEnded(correlationID string, payload CombatEndedPayload) (Event, error) {
	return e.Emit(TypeCombatEnded, correlationID, payload)
}

// EmitCombatantHPChanged emits a combatant.hp_changed event.
func (e *Emitter) EmitCombatantHPChanged(correlationID string, payload CombatantHPChangedPayload) (Event, error) {
	return e.Emit(TypeCombatantHPChanged, correlationID, payload)
}

// EmitCombatantStatusChanged emits a combatant.status_changed event.
func (e *Emitter) EmitCombatantStatusChanged(correlationID string, payload CombatantStatusChangedPayload) (Event, error) {
	return e.Emit(TypeCombatantStatusChanged, correlationID, payload)
}

// EmitCombatantRemoved emits a combatant.removed event.
func (e *Emitter) EmitCombatantRemoved(correlationID string, payload CombatantRemovedPayload) (Event, error) {
	return e.Emit(TypeCombatantRemoved, correlationID, payload)
}

// EmitCombatantInitiativeSet emits a combatant.initiative_set event.
func (e *Emitter) EmitCombatantInitiativeSet(correlationID string, payload CombatantInitiativeSetPayload) (Event, error) {
	return e.Emit(TypeCombatantInitiativeSet, correlationID, payload)
}

// EmitInitiativeOrderSet emits a combat.initiative_order_set event.
func (e *Emitter) EmitInitiativeOrderSet(correlationID string, payload InitiativeOrderSetPayload) (Event, error) {
	return e.Emit(TypeInitiativeOrderSet, correlationID, payload)
}

// EmitTurnAdvanced emits a turn.advanced event.
func (e *Emitter) EmitTurnAdvanced(correlationID string, payload TurnAdvancedPayload) (Event, error) {
	return e.Emit(TypeTurnAdvanced, correlationID, payload)
}

// EmitDiceRequested emits a dice.requested event.
func (e *Emitter) EmitDiceRequested(correlationID string, payload DiceRequestedPayload) (Event, error) {
	return e.Emit(TypeDiceRequested, correlationID, payload)
}

// EmitDiceCleared emits a dice.cleared event.
func (e *Emitter) EmitDiceCleared(correlationID string, payload DiceClearedPayload) (Event, error) {
	return e.Emit(TypeDiceCleared, correlationID, payload)
}

// EmitQuestUpdated emits a quest.updated event.
func (e *Emitter) EmitQuestUpdated(correlationID string, payload QuestUpdatedPayload) (Event, error) {
	return e.Emit(TypeQuestUpdated, correlationID, payload)
}

// EmitItemAdded emits an item.added event.
func (e *Emitter) EmitItemAdded(correlationID string, payload ItemChangedPayload) (Event, error) {
	return e.Emit(TypeItemAdded, correlationID, payload)
}

// EmitItemRemoved emits an item.removed event.
func (e *Emitter) EmitItemRemoved(correlationID string, payload ItemChangedPayload) (Event, error) {
	return e.Emit(TypeItemRemoved, correlationID, payload)
}

// EmitGoldChanged emits a gold.changed event.
func (e *Emitter) EmitGoldChanged(correlationID string, payload GoldChangedPayload) (Event, error) {
	return e.Emit(TypeGoldChanged, correlationID, payload)
}

// EmitPartyMemberUpdated emits a party.member_updated event.
func (e *Emitter) EmitPartyMemberUpdated(correlationID string, payload PartyMemberUpdatedPayload) (Event, error) {
	return e.Emit(TypePartyMemberUpdated, correlationID, payload)
}

// EmitBackendProcessing emits a backend.processing event.
func (e *Emitter) EmitBackendProcessing(correlationID string, payload BackendProcessingPayload) (Event, error) {
	return e.Emit(TypeBackendProcessing, correlationID, payload)
}

// EmitGameError emits a game.error event.
func (e *Emitter) EmitGameError(correlationID string, payload GameErrorPayload) (Event, error) {
	return e.Emit(TypeGameError, correlationID, payload)
}

// EmitStateSnapshot emits a game.state_snapshot event.
func (e *Emitter) EmitStateSnapshot(correlationID string, payload StateSnapshotPayload) (Event, error) {
	return e.Emit(TypeStateSnapshot, correlationID, payload)
}
