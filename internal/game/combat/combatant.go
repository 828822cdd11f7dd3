// Package combat implements the turn-based combat state machine.
//
// Every mutation is defensive: the caller is untrusted LLM output, so
// missing ids, out-of-range indices, and duplicate-id conflicts are
// logged and skipped rather than raised.
package combat

import "strings"

// InitiativeUnrolled marks a combatant whose initiative has not been rolled.
const InitiativeUnrolled = -1

// ConditionDefeated is the condition applied when a combatant drops to 0 HP.
const ConditionDefeated = "defeated"

// ConditionIncapacitated prevents a combatant from acting on its turn.
const ConditionIncapacitated = "incapacitated"

// Attack describes one NPC attack option surfaced to the AI prompt.
type Attack struct {
	Name          string `json:"name"`
	ToHitModifier int    `json:"to_hit_modifier"`
	DamageFormula string `json:"damage_formula"`
	Description   string `json:"description,omitempty"`
}

// Combatant is a participant tracked during active combat.
type Combatant struct {
	ID                 string
	Name               string
	Initiative         int
	InitiativeModifier int
	CurrentHP          int
	MaxHP              int
	ArmorClass         int
	// Conditions is ordered; membership checks are case-insensitive.
	Conditions []string
	IsPlayer   bool

	// NPC-only reference data.
	Stats     map[string]int
	Abilities []string
	Attacks   []Attack
}

// ApplyHPChange adjusts current HP by delta, re-clamping to [0, MaxHP].
// It returns the HP before and after the change.
func (c *Combatant) ApplyHPChange(delta int) (oldHP, newHP int) {
	oldHP = c.CurrentHP
	newHP = oldHP + delta
	if newHP < 0 {
		newHP = 0
	}
	if newHP > c.MaxHP {
		newHP = c.MaxHP
	}
	c.CurrentHP = newHP
	return oldHP, newHP
}

// HasCondition reports whether the combatant has the condition,
// compared case-insensitively.
func (c *Combatant) HasCondition(condition string) bool {
	for _, existing := range c.Conditions {
		if strings.EqualFold(existing, condition) {
			return true
		}
	}
	return false
}

// AddCondition appends a condition unless already present.
// It reports whether the condition set changed.
func (c *Combatant) AddCondition(condition string) bool {
	condition = strings.TrimSpace(condition)
	if condition == "" || c.HasCondition(condition) {
		return false
	}
	c.Conditions = append(c.Conditions, condition)
	return true
}

// RemoveCondition deletes a condition, compared case-insensitively.
// It reports whether the condition set changed.
func (c *Combatant) RemoveCondition(condition string) bool {
	for i, existing := range c.Conditions {
		if strings.EqualFold(existing, condition) {
			c.Conditions = append(c.Conditions[:i], c.Conditions[i+1:]...)
			return true
		}
	}
	return false
}

// IsDefeated reports whether the combatant is out of the fight.
func (c *Combatant) IsDefeated() bool {
	return c.CurrentHP <= 0 || c.HasCondition(ConditionDefeated)
}

// IsIncapacitated reports whether the combatant cannot act on its turn.
func (c *Combatant) IsIncapacitated() bool {
	return c.IsDefeated() || c.HasCondition(ConditionIncapacitated)
}

// HasInitiative reports whether initiative has been rolled.
func (c *Combatant) HasInitiative() bool {
	return c.Initiative != InitiativeUnrolled
}
