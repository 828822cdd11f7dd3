package combat

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
)

// ErrNPCsRemain indicates combat cannot end while non-defeated NPCs remain.
var ErrNPCsRemain = errors.New("combat cannot end: non-defeated NPCs remain")

// State is the in-memory combat aggregate. It is owned by the game state
// and mutated only while the single-flight AI gate is held, so it carries
// no lock of its own.
//
// Invariant: CurrentTurnIndex is always in [0, len(Combatants)) whenever
// Combatants is non-empty; it is repaired defensively after removals.
type State struct {
	IsActive         bool
	Combatants       []Combatant
	CurrentTurnIndex int
	RoundNumber      int
	// OrderFixed is set once every combatant has initiative and the turn
	// order has been sorted; it keeps the order from being re-sorted when
	// reinforcements roll in mid-fight.
	OrderFixed bool

	// justStarted is a one-shot flag consumed by the dice-request
	// processor to force an initiative roll if the AI forgot one.
	justStarted bool
}

// StartResult reports what Start actually did with the requested combatants.
type StartResult struct {
	Added         []Combatant
	SkippedDead   []string
	SkippedDupes  []string
	Reinforcement bool
}

// Start begins combat or, when combat is already active, treats the call
// as reinforcements and appends NPCs only. Combatants with hp <= 0 and
// duplicate ids are silently excluded (recorded on the result for logs).
func (s *State) Start(party []Combatant, npcs []Combatant) StartResult {
	result := StartResult{Reinforcement: s.IsActive}

	if !s.IsActive {
		s.IsActive = true
		s.Combatants = nil
		s.CurrentTurnIndex = 0
		s.RoundNumber = 1
		s.justStarted = true

		for _, member := range party {
			s.admit(member, &result)
		}
	}

	for _, npc := range npcs {
		s.admit(npc, &result)
	}

	return result
}

func (s *State) admit(candidate Combatant, result *StartResult) {
	if candidate.CurrentHP <= 0 {
		result.SkippedDead = append(result.SkippedDead, candidate.ID)
		return
	}
	if _, ok := s.Find(candidate.ID); ok {
		result.SkippedDupes = append(result.SkippedDupes, candidate.ID)
		return
	}
	s.Combatants = append(s.Combatants, candidate)
	result.Added = append(result.Added, candidate)
}

// ConsumeJustStarted reports and clears the one-shot combat-just-started flag.
func (s *State) ConsumeJustStarted() bool {
	started := s.justStarted
	s.justStarted = false
	return started
}

// Find returns a pointer to the combatant with the given id.
func (s *State) Find(combatantID string) (*Combatant, bool) {
	for i := range s.Combatants {
		if s.Combatants[i].ID == combatantID {
			return &s.Combatants[i], true
		}
	}
	return nil, false
}

// FindByName returns a pointer to the first combatant whose name matches,
// compared case-insensitively. Used as a fallback when the AI references
// combatants by name instead of id.
func (s *State) FindByName(name string) (*Combatant, bool) {
	for i := range s.Combatants {
		if strings.EqualFold(s.Combatants[i].Name, name) {
			return &s.Combatants[i], true
		}
	}
	return nil, false
}

// Current returns the combatant whose turn it is.
func (s *State) Current() (*Combatant, bool) {
	if !s.IsActive || len(s.Combatants) == 0 {
		return nil, false
	}
	if s.CurrentTurnIndex < 0 || s.CurrentTurnIndex >= len(s.Combatants) {
		// Should not happen; repair rather than panic on corrupt input.
		log.Printf("combat turn index out of bounds index=%d combatants=%d", s.CurrentTurnIndex, len(s.Combatants))
		s.CurrentTurnIndex = 0
	}
	return &s.Combatants[s.CurrentTurnIndex], true
}

// AdvanceTurn moves to the next combatant. Wraparound to index 0
// increments the round number. It returns the new current combatant and
// whether a new round began.
func (s *State) AdvanceTurn() (*Combatant, bool) {
	if !s.IsActive || len(s.Combatants) == 0 {
		return nil, false
	}

	s.CurrentTurnIndex = (s.CurrentTurnIndex + 1) % len(s.Combatants)
	newRound := s.CurrentTurnIndex == 0
	if newRound {
		s.RoundNumber++
	}
	return &s.Combatants[s.CurrentTurnIndex], newRound
}

// Remove deletes a combatant by id and repairs the turn index: the index
// decrements when the removal occurred before it and wraps to 0 when the
// removed entry was last. Unknown ids are logged and skipped.
func (s *State) Remove(combatantID string) bool {
	idx := -1
	for i := range s.Combatants {
		if s.Combatants[i].ID == combatantID {
			idx = i
			break
		}
	}
	if idx == -1 {
		log.Printf("combat remove skipped: unknown combatant id=%s", combatantID)
		return false
	}

	s.Combatants = append(s.Combatants[:idx], s.Combatants[idx+1:]...)

	if len(s.Combatants) == 0 {
		s.CurrentTurnIndex = 0
		return true
	}
	if idx < s.CurrentTurnIndex {
		s.CurrentTurnIndex--
	}
	if s.CurrentTurnIndex >= len(s.Combatants) {
		s.CurrentTurnIndex = 0
	}
	return true
}

// End finishes combat. It refuses while any non-defeated NPC remains so
// the AI cannot prematurely close a fight it is losing track of.
func (s *State) End() error {
	if !s.IsActive {
		return nil
	}
	if remaining := s.ActiveNPCs(); len(remaining) > 0 {
		names := make([]string, 0, len(remaining))
		for _, npc := range remaining {
			names = append(names, npc.Name)
		}
		return fmt.Errorf("%w: %s", ErrNPCsRemain, strings.Join(names, ", "))
	}

	*s = State{}
	return nil
}

// ForceEnd discards combat state unconditionally (auto-end path).
func (s *State) ForceEnd() {
	*s = State{}
}

// ActiveNPCs returns the non-defeated NPC combatants.
func (s *State) ActiveNPCs() []*Combatant {
	var active []*Combatant
	for i := range s.Combatants {
		if !s.Combatants[i].IsPlayer && !s.Combatants[i].IsDefeated() {
			active = append(active, &s.Combatants[i])
		}
	}
	return active
}

// ActiveCombatants returns all non-defeated combatants in turn order.
func (s *State) ActiveCombatants() []*Combatant {
	var active []*Combatant
	for i := range s.Combatants {
		if !s.Combatants[i].IsDefeated() {
			active = append(active, &s.Combatants[i])
		}
	}
	return active
}

// ShouldAutoEnd reports whether combat should end because no NPC remains
// un-defeated. Checked after any HP or condition change.
func (s *State) ShouldAutoEnd() bool {
	return s.IsActive && len(s.ActiveNPCs()) == 0
}

// SetInitiative fixes a combatant's initiative value.
func (s *State) SetInitiative(combatantID string, initiative int) bool {
	combatant, ok := s.Find(combatantID)
	if !ok {
		log.Printf("initiative skipped: unknown combatant id=%s", combatantID)
		return false
	}
	combatant.Initiative = initiative
	return true
}

// AllInitiativesSet reports whether every combatant has rolled initiative.
func (s *State) AllInitiativesSet() bool {
	for i := range s.Combatants {
		if !s.Combatants[i].HasInitiative() {
			return false
		}
	}
	return len(s.Combatants) > 0
}

// UnrolledCombatants returns combatants still waiting on initiative.
func (s *State) UnrolledCombatants() []*Combatant {
	var unrolled []*Combatant
	for i := range s.Combatants {
		if !s.Combatants[i].HasInitiative() {
			unrolled = append(unrolled, &s.Combatants[i])
		}
	}
	return unrolled
}

// FixOrder sorts the turn order by initiative and marks it fixed.
// It reports whether this call performed the transition.
func (s *State) FixOrder() bool {
	if s.OrderFixed || !s.AllInitiativesSet() {
		return false
	}
	s.SortByInitiative()
	s.OrderFixed = true
	return true
}

// SortByInitiative orders combatants by initiative descending, breaking
// ties by initiative modifier then name, and resets the turn to the top
// of the order.
func (s *State) SortByInitiative() {
	sort.SliceStable(s.Combatants, func(a, b int) bool {
		ca, cb := s.Combatants[a], s.Combatants[b]
		if ca.Initiative != cb.Initiative {
			return ca.Initiative > cb.Initiative
		}
		if ca.InitiativeModifier != cb.InitiativeModifier {
			return ca.InitiativeModifier > cb.InitiativeModifier
		}
		return ca.Name < cb.Name
	})
	s.CurrentTurnIndex = 0
}

// PredictNextAfterRemovals simulates removing the given combatant ids
// against the current turn order and returns the id of the combatant
// whose turn would come next. Removing a combatant shifts indices in a
// way naive post-hoc advancement gets wrong (e.g. removing the current
// combatant and the one after it in the same response), so the
// prediction runs before the removals are applied.
//
// ok is false when no combatants would remain, which signals that combat
// should end instead of advancing.
func (s *State) PredictNextAfterRemovals(removedIDs []string) (string, bool) {
	if len(s.Combatants) == 0 {
		return "", false
	}

	removed := make(map[string]struct{}, len(removedIDs))
	for _, combatantID := range removedIDs {
		removed[combatantID] = struct{}{}
	}

	// Walk forward from the slot after the current turn, skipping
	// combatants slated for removal, wrapping at most one full cycle.
	n := len(s.Combatants)
	for step := 1; step <= n; step++ {
		candidate := s.Combatants[(s.CurrentTurnIndex+step)%n]
		if _, gone := removed[candidate.ID]; gone {
			continue
		}
		return candidate.ID, true
	}
	return "", false
}

// Summary reports the aggregate for logs: active flag, combatant count,
// turn index and round.
func (s *State) Summary() (active bool, combatants, turnIndex, round int) {
	return s.IsActive, len(s.Combatants), s.CurrentTurnIndex, s.RoundNumber
}
