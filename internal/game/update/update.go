// Package update models AI-declared game state updates as a tagged union.
//
// The AI response carries a list of updates discriminated by a "type"
// field. Each kind decodes into its own struct so application code can
// switch exhaustively instead of probing untyped maps; unknown kinds
// decode into Unknown, which processors log and skip.
package update

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates game state update variants.
type Kind string

const (
	// KindHPChange adjusts a character's hit points.
	KindHPChange Kind = "hp_change"
	// KindConditionAdd adds a condition to a character.
	KindConditionAdd Kind = "condition_add"
	// KindConditionRemove removes a condition from a character.
	KindConditionRemove Kind = "condition_remove"
	// KindGoldChange adjusts a party member's gold.
	KindGoldChange Kind = "gold_change"
	// KindInventoryAdd grants an item to a party member.
	KindInventoryAdd Kind = "inventory_add"
	// KindInventoryRemove removes an item from a party member.
	KindInventoryRemove Kind = "inventory_remove"
	// KindQuestUpdate changes a quest's status or details.
	KindQuestUpdate Kind = "quest_update"
	// KindLocationChange moves the party.
	KindLocationChange Kind = "location_change"
	// KindCombatStart begins combat with the listed NPCs.
	KindCombatStart Kind = "combat_start"
	// KindCombatEnd requests combat to end.
	KindCombatEnd Kind = "combat_end"
	// KindCombatantRemove removes a combatant (fled, banished, destroyed).
	KindCombatantRemove Kind = "combatant_remove"
)

// Update is one declared change to game state.
type Update interface {
	Kind() Kind
}

// HPChange adjusts a character's hit points by Amount (negative for damage).
type HPChange struct {
	CharacterID string `json:"character_id"`
	Amount      int    `json:"amount"`
	Source      string `json:"source,omitempty"`
}

// Kind implements Update.
func (HPChange) Kind() Kind { return KindHPChange }

// ConditionAdd adds a condition to a character.
type ConditionAdd struct {
	CharacterID string `json:"character_id"`
	Condition   string `json:"condition"`
}

// Kind implements Update.
func (ConditionAdd) Kind() Kind { return KindConditionAdd }

// ConditionRemove removes a condition from a character.
type ConditionRemove struct {
	CharacterID string `json:"character_id"`
	Condition   string `json:"condition"`
}

// Kind implements Update.
func (ConditionRemove) Kind() Kind { return KindConditionRemove }

// GoldChange adjusts a party member's gold by Amount.
type GoldChange struct {
	CharacterID string `json:"character_id"`
	Amount      int    `json:"amount"`
	Source      string `json:"source,omitempty"`
}

// Kind implements Update.
func (GoldChange) Kind() Kind { return KindGoldChange }

// InventoryAdd grants an item to a party member.
type InventoryAdd struct {
	CharacterID string `json:"character_id"`
	ItemName    string `json:"item_name"`
	Quantity    int    `json:"quantity,omitempty"`
	Description string `json:"description,omitempty"`
}

// Kind implements Update.
func (InventoryAdd) Kind() Kind { return KindInventoryAdd }

// InventoryRemove removes an item from a party member.
type InventoryRemove struct {
	CharacterID string `json:"character_id"`
	ItemName    string `json:"item_name"`
	Quantity    int    `json:"quantity,omitempty"`
}

// Kind implements Update.
func (InventoryRemove) Kind() Kind { return KindInventoryRemove }

// QuestUpdate changes a quest's status or details.
type QuestUpdate struct {
	QuestID string `json:"quest_id"`
	Title   string `json:"title,omitempty"`
	Status  string `json:"status,omitempty"`
	Details string `json:"details,omitempty"`
}

// Kind implements Update.
func (QuestUpdate) Kind() Kind { return KindQuestUpdate }

// LocationChange moves the party to a new location.
type LocationChange struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Kind implements Update.
func (LocationChange) Kind() Kind { return KindLocationChange }

// NPCSpec declares one NPC joining combat.
type NPCSpec struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	HP                 int            `json:"hp"`
	ArmorClass         int            `json:"armor_class"`
	InitiativeModifier int            `json:"initiative_modifier,omitempty"`
	Stats              map[string]int `json:"stats,omitempty"`
	Abilities          []string       `json:"abilities,omitempty"`
}

// CombatStart begins combat with the listed NPCs; when combat is already
// active the NPCs join as reinforcements.
type CombatStart struct {
	NPCs []NPCSpec `json:"npcs"`
}

// Kind implements Update.
func (CombatStart) Kind() Kind { return KindCombatStart }

// CombatEnd requests combat to end.
type CombatEnd struct {
	Reason string `json:"reason,omitempty"`
}

// Kind implements Update.
func (CombatEnd) Kind() Kind { return KindCombatEnd }

// CombatantRemove removes a combatant from the turn order.
type CombatantRemove struct {
	CharacterID string `json:"character_id"`
	Reason      string `json:"reason,omitempty"`
}

// Kind implements Update.
func (CombatantRemove) Kind() Kind { return KindCombatantRemove }

// Unknown preserves an update whose type is not recognised. The
// processor logs and skips it; untrusted LLM output must never fail the
// whole batch.
type Unknown struct {
	TypeName string
	Raw      json.RawMessage
}

// Kind implements Update.
func (Unknown) Kind() Kind { return Kind("unknown") }

// List is a decodable slice of updates.
type List []Update

// UnmarshalJSON decodes a JSON array of discriminated update objects.
func (l *List) UnmarshalJSON(data []byte) error {
	var rawItems []json.RawMessage
	if err := json.Unmarshal(data, &rawItems); err != nil {
		return fmt.Errorf("decode update list: %w", err)
	}

	decoded := make(List, 0, len(rawItems))
	for i, raw := range rawItems {
		item, err := Decode(raw)
		if err != nil {
			return fmt.Errorf("decode update %d: %w", i, err)
		}
		decoded = append(decoded, item)
	}
	*l = decoded
	return nil
}

// Decode decodes a single discriminated update object.
func Decode(raw json.RawMessage) (Update, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode update envelope: %w", err)
	}

	kind := Kind(strings.ToLower(strings.TrimSpace(envelope.Type)))
	var (
		target Update
		err    error
	)
	switch kind {
	case KindHPChange:
		target, err = decodeAs[HPChange](raw)
	case KindConditionAdd:
		target, err = decodeAs[ConditionAdd](raw)
	case KindConditionRemove:
		target, err = decodeAs[ConditionRemove](raw)
	case KindGoldChange:
		target, err = decodeAs[GoldChange](raw)
	case KindInventoryAdd:
		target, err = decodeAs[InventoryAdd](raw)
	case KindInventoryRemove:
		target, err = decodeAs[InventoryRemove](raw)
	case KindQuestUpdate:
		target, err = decodeAs[QuestUpdate](raw)
	case KindLocationChange:
		target, err = decodeAs[LocationChange](raw)
	case KindCombatStart:
		target, err = decodeAs[CombatStart](raw)
	case KindCombatEnd:
		target, err = decodeAs[CombatEnd](raw)
	case KindCombatantRemove:
		target, err = decodeAs[CombatantRemove](raw)
	default:
		return Unknown{TypeName: envelope.Type, Raw: raw}, nil
	}
	if err != nil {
		return nil, err
	}
	return target, nil
}

func decodeAs[T Update](raw json.RawMessage) (Update, error) {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("decode %s update: %w", value.Kind(), err)
	}
	return value, nil
}
