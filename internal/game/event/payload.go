package event

// NarrativeAddedPayload captures the payload for narrative.added events.
type NarrativeAddedPayload struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	GMThought string `json:"gm_thought,omitempty"`
}

// LocationChangedPayload captures the payload for location.changed events.
type LocationChangedPayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// QuestUpdatedPayload captures the payload for quest.updated events.
type QuestUpdatedPayload struct {
	QuestID string `json:"quest_id"`
	Title   string `json:"title,omitempty"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// ItemChangedPayload captures the payload for item.added and item.removed events.
type ItemChangedPayload struct {
	CharacterID string `json:"character_id"`
	ItemName    string `json:"item_name"`
	Quantity    int    `json:"quantity"`
	Description string `json:"description,omitempty"`
}

// GoldChangedPayload captures the payload for gold.changed events.
type GoldChangedPayload struct {
	CharacterID string `json:"character_id"`
	OldGold     int    `json:"old_gold"`
	ChangeAmount int   `json:"change_amount"`
	NewGold     int    `json:"new_gold"`
}

// PartyMemberUpdatedPayload captures the payload for party.member_updated events.
type PartyMemberUpdatedPayload struct {
	CharacterID string         `json:"character_id"`
	Fields      map[string]any `json:"fields"`
}

// CombatantSummary is the wire shape of one combatant inside combat payloads.
type CombatantSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Initiative int    `json:"initiative"`
	CurrentHP  int    `json:"current_hp"`
	MaxHP      int    `json:"max_hp"`
	ArmorClass int    `json:"armor_class"`
	IsPlayer   bool   `json:"is_player"`
}

// CombatStartedPayload captures the payload for combat.started events.
type CombatStartedPayload struct {
	RoundNumber   int                `json:"round_number"`
	Combatants    []CombatantSummary `json:"combatants"`
	Reinforcement bool               `json:"reinforcement,omitempty"`
}

// CombatEndedPayload captures the payload for combat.ended events.
type CombatEndedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// CombatantHPChangedPayload captures the payload for combatant.hp_changed events.
type CombatantHPChangedPayload struct {
	CombatantID   string `json:"combatant_id"`
	CombatantName string `json:"combatant_name"`
	OldHP         int    `json:"old_hp"`
	ChangeAmount  int    `json:"change_amount"`
	NewHP         int    `json:"new_hp"`
	MaxHP         int    `json:"max_hp"`
	Source        string `json:"source,omitempty"`
}

// CombatantStatusChangedPayload captures the payload for combatant.status_changed events.
type CombatantStatusChangedPayload struct {
	CombatantID       string   `json:"combatant_id"`
	CombatantName     string   `json:"combatant_name"`
	AddedConditions   []string `json:"added_conditions,omitempty"`
	RemovedConditions []string `json:"removed_conditions,omitempty"`
	Conditions        []string `json:"conditions"`
}

// CombatantRemovedPayload captures the payload for combatant.removed events.
type CombatantRemovedPayload struct {
	CombatantID   string `json:"combatant_id"`
	CombatantName string `json:"combatant_name"`
	Reason        string `json:"reason,omitempty"`
}

// CombatantInitiativeSetPayload captures the payload for combatant.initiative_set events.
type CombatantInitiativeSetPayload struct {
	CombatantID   string `json:"combatant_id"`
	CombatantName string `json:"combatant_name"`
	Initiative    int    `json:"initiative"`
}

// InitiativeOrderSetPayload captures the payload for combat.initiative_order_set events.
type InitiativeOrderSetPayload struct {
	Order []CombatantSummary `json:"order"`
}

// TurnAdvancedPayload captures the payload for turn.advanced events.
type TurnAdvancedPayload struct {
	CombatantID   string `json:"combatant_id"`
	CombatantName string `json:"combatant_name"`
	RoundNumber   int    `json:"round_number"`
	IsNewRound    bool   `json:"is_new_round"`
	IsPlayer      bool   `json:"is_player"`
}

// DiceRequestedPayload captures the payload for dice.requested events.
type DiceRequestedPayload struct {
	RequestID    string   `json:"request_id"`
	CharacterIDs []string `json:"character_ids"`
	RollType     string   `json:"roll_type"`
	Formula      string   `json:"formula"`
	Reason       string   `json:"reason,omitempty"`
	DC           int      `json:"dc,omitempty"`
	Skill        string   `json:"skill,omitempty"`
	Ability      string   `json:"ability,omitempty"`
}

// DiceClearedPayload captures the payload for dice.cleared events.
type DiceClearedPayload struct {
	RequestIDs []string `json:"request_ids"`
}

// BackendProcessingPayload captures the payload for backend.processing events.
type BackendProcessingPayload struct {
	Processing          bool `json:"processing"`
	NeedsBackendTrigger bool `json:"needs_backend_trigger"`
}

// StateSnapshotPayload captures the payload for game.state_snapshot
// events. State carries the full orchestrator snapshot, opaque to this
// package.
type StateSnapshotPayload struct {
	State any `json:"state"`
}

// GameErrorPayload captures the payload for game.error events.
type GameErrorPayload struct {
	Message     string `json:"message"`
	Severity    string `json:"severity"`
	Recoverable bool   `json:"recoverable"`
}

// Severity levels used by game.error payloads.
const (
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)
