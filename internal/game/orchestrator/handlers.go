package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/mmerah/ai-gamemaster/internal/ai"
	"github.com/mmerah/ai-gamemaster/internal/core/check"
	"github.com/mmerah/ai-gamemaster/internal/core/dice"
	"github.com/mmerah/ai-gamemaster/internal/game/combat"
	"github.com/mmerah/ai-gamemaster/internal/game/event"
	"github.com/mmerah/ai-gamemaster/internal/game/processor"
	"github.com/mmerah/ai-gamemaster/internal/game/state"
)

// PlayerAction is one free-text player input.
type PlayerAction struct {
	Kind        string `json:"action_type"`
	CharacterID string `json:"character_id,omitempty"`
	Text        string `json:"value"`
}

// RollSpec asks the server to perform one roll on a player's behalf.
type RollSpec struct {
	RequestID   string `json:"request_id,omitempty"`
	CharacterID string `json:"character_id"`
	RollType    string `json:"roll_type"`
	Formula     string `json:"dice_formula"`
	Reason      string `json:"reason,omitempty"`
	DC          int    `json:"dc,omitempty"`
	Skill       string `json:"skill,omitempty"`
	Ability     string `json:"ability,omitempty"`
}

// HandlePlayerAction runs one player input through the AI pipeline.
func (o *Orchestrator) HandlePlayerAction(ctx context.Context, action PlayerAction) (Snapshot, error) {
	if strings.TrimSpace(action.Text) == "" {
		return Snapshot{}, fmt.Errorf("%w: action text is required", ErrInvalidInput)
	}
	if !o.gate.TryAcquire() {
		return Snapshot{}, ErrBusy
	}
	defer o.gate.Release()

	correlationID := o.newID()
	o.emitProcessing(correlationID, true)
	defer o.emitProcessing(correlationID, false)

	o.mu.Lock()
	content := action.Text
	if member, ok := o.gs.FindPartyMember(action.CharacterID); ok {
		content = fmt.Sprintf("%s: %s", member.Name, action.Text)
	}
	o.gs.AddChatMessage(state.RoleUser, content, "", o.now())
	o.mu.Unlock()

	messages := o.buildMessages(ctx, "")
	if err := o.runPipeline(ctx, messages, correlationID); err != nil {
		return o.Snapshot(), err
	}
	return o.Snapshot(), nil
}

// HandleCompletedRolls continues the game after players submit resolved
// roll results.
func (o *Orchestrator) HandleCompletedRolls(ctx context.Context, results []state.RollResult) (Snapshot, error) {
	if len(results) == 0 {
		return Snapshot{}, fmt.Errorf("%w: roll results are required", ErrInvalidInput)
	}
	if !o.gate.TryAcquire() {
		return Snapshot{}, ErrBusy
	}
	defer o.gate.Release()

	return o.continueWithRolls(ctx, results)
}

// HandleSubmitRolls performs the requested rolls server-side and then
// continues exactly like HandleCompletedRolls. This is the legacy
// submit_rolls shape where clients send roll specs, not totals.
func (o *Orchestrator) HandleSubmitRolls(ctx context.Context, specs []RollSpec) (Snapshot, error) {
	if len(specs) == 0 {
		return Snapshot{}, fmt.Errorf("%w: roll requests are required", ErrInvalidInput)
	}
	if !o.gate.TryAcquire() {
		return Snapshot{}, ErrBusy
	}
	defer o.gate.Release()

	results := make([]state.RollResult, 0, len(specs))
	for _, spec := range specs {
		result, err := o.PerformRoll(spec)
		if err != nil {
			return o.Snapshot(), err
		}
		results = append(results, result)
	}
	return o.continueWithRolls(ctx, results)
}

// continueWithRolls assumes the gate is held.
func (o *Orchestrator) continueWithRolls(ctx context.Context, results []state.RollResult) (Snapshot, error) {
	correlationID := o.newID()
	o.emitProcessing(correlationID, true)
	defer o.emitProcessing(correlationID, false)

	o.mu.Lock()
	resolved := make([]string, 0, len(results))
	for _, result := range results {
		if result.RequestID != "" {
			resolved = append(resolved, result.RequestID)
		}
	}
	if cleared := o.gs.ClearPendingRequests(resolved); len(cleared) > 0 {
		o.logEmit(o.emit.EmitDiceCleared(correlationID, event.DiceClearedPayload{RequestIDs: cleared}))
	}
	o.gs.AddChatMessage(state.RoleUser, formatRolls("**Player Rolls:**", results), "", o.now())
	o.proc.ApplyRollResults(o.gs, results, correlationID)
	o.mu.Unlock()

	messages := o.buildMessages(ctx, "(Process the submitted roll results and continue the scene.)")
	if err := o.runPipeline(ctx, messages, correlationID); err != nil {
		return o.Snapshot(), err
	}
	return o.Snapshot(), nil
}

// HandleNextStep advances the game when the frontend reports an NPC
// holds the turn (the needs_backend_trigger flag).
func (o *Orchestrator) HandleNextStep(ctx context.Context) (Snapshot, error) {
	if !o.gate.TryAcquire() {
		return Snapshot{}, ErrBusy
	}
	defer o.gate.Release()

	correlationID := o.newID()
	o.emitProcessing(correlationID, true)
	defer o.emitProcessing(correlationID, false)

	o.mu.Lock()
	instruction := "(Continue the scene.)"
	if o.gs.Combat.IsActive {
		if current, ok := o.gs.Combat.Current(); ok && !current.IsPlayer {
			instruction = fmt.Sprintf("(It is %s's turn. Decide its action, request any dice it needs, and narrate the result.)", current.Name)
		}
	}
	o.mu.Unlock()

	messages := o.buildMessages(ctx, instruction)
	if err := o.runPipeline(ctx, messages, correlationID); err != nil {
		return o.Snapshot(), err
	}
	return o.Snapshot(), nil
}

// HandleRetry replays the last failed AI request from the retry cache.
func (o *Orchestrator) HandleRetry(ctx context.Context) (Snapshot, error) {
	if !o.retry.CanRetry() {
		return Snapshot{}, ErrNothingToRetry
	}
	if !o.gate.TryAcquire() {
		return Snapshot{}, ErrBusy
	}
	defer o.gate.Release()

	messages, _, ok := o.retry.Get()
	if !ok {
		return Snapshot{}, ErrNothingToRetry
	}

	correlationID := o.newID()
	o.emitProcessing(correlationID, true)
	defer o.emitProcessing(correlationID, false)

	if err := o.runPipeline(ctx, messages, correlationID); err != nil {
		return o.Snapshot(), err
	}
	return o.Snapshot(), nil
}

// PerformRoll resolves one roll immediately and returns the result
// without invoking the AI. Character modifiers apply on top of the
// formula: initiative uses the initiative modifier, ability-tagged rolls
// use the 5e ability modifier.
func (o *Orchestrator) PerformRoll(spec RollSpec) (state.RollResult, error) {
	if strings.TrimSpace(spec.CharacterID) == "" {
		return state.RollResult{}, fmt.Errorf("%w: character_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(spec.Formula) == "" {
		return state.RollResult{}, fmt.Errorf("%w: dice_formula is required", ErrInvalidInput)
	}

	o.mu.Lock()
	characterName := spec.CharacterID
	modifier := 0
	if member, ok := o.gs.FindPartyMember(spec.CharacterID); ok {
		characterName = member.Name
		if strings.EqualFold(spec.RollType, processor.RollTypeInitiative) {
			modifier = member.InitiativeModifier
		} else if spec.Ability != "" {
			modifier = member.AbilityModifier(spec.Ability)
		}
	} else if combatant, ok := o.gs.Combat.Find(spec.CharacterID); ok {
		characterName = combatant.Name
		if strings.EqualFold(spec.RollType, processor.RollTypeInitiative) {
			modifier = combatant.InitiativeModifier
		}
	}
	o.mu.Unlock()

	o.rollMu.Lock()
	outcome := dice.RollFormula(o.rollRN, spec.Formula)
	o.rollMu.Unlock()

	total := outcome.Total
	if outcome.Description != dice.InvalidFormulaDescription {
		total += modifier
	}

	result := state.RollResult{
		RequestID:     spec.RequestID,
		CharacterID:   spec.CharacterID,
		CharacterName: characterName,
		RollType:      spec.RollType,
		Formula:       spec.Formula,
		Total:         total,
		Rolls:         outcome.Rolls,
		Modifier:      outcome.Modifier + modifier,
		DC:            spec.DC,
		Description:   outcome.Description,
	}
	if spec.DC > 0 && !strings.EqualFold(spec.RollType, processor.RollTypeInitiative) {
		checked := check.Against(total, spec.DC)
		result.Success = &checked.Success
	}
	return result, nil
}

// runPipeline drives the AI call plus the bounded rerun loop. The retry
// cache is stored before each call and cleared only on success, so a
// failure anywhere leaves an exact replayable prompt behind.
func (o *Orchestrator) runPipeline(ctx context.Context, messages []ai.PromptMessage, correlationID string) error {
	for attempt := 0; ; attempt++ {
		o.retry.Store(messages, "")

		resp, err := o.aiC.Complete(ctx, messages)
		if err != nil {
			log.Printf("ai completion failed correlation_id=%s attempt=%d error=%v", correlationID, attempt, err)
			o.mu.Lock()
			o.gs.AddChatMessage(state.RoleSystem, "(OOC: The AI encountered an error processing your request. You can retry the last request.)", "", o.now())
			o.mu.Unlock()
			o.logEmit(o.emit.EmitGameError(correlationID, event.GameErrorPayload{
				Message:     "AI request failed",
				Severity:    event.SeverityError,
				Recoverable: true,
			}))
			return fmt.Errorf("ai completion: %w", err)
		}
		o.retry.Clear()

		o.mu.Lock()
		outcome := o.proc.Process(o.gs, resp, correlationID)
		o.mu.Unlock()

		if !outcome.NeedsRerun {
			return nil
		}
		if attempt >= maxAIReruns {
			log.Printf("rerun cap reached correlation_id=%s attempts=%d", correlationID, attempt+1)
			return nil
		}
		messages = o.buildMessages(ctx, "(The NPC roll results above are resolved. Narrate their outcome and continue the turn.)")
	}
}

func (o *Orchestrator) emitProcessing(correlationID string, processing bool) {
	needsTrigger := false
	if !processing {
		o.mu.Lock()
		needsTrigger = o.needsBackendTriggerLocked()
		o.mu.Unlock()
	}
	o.logEmit(o.emit.EmitBackendProcessing(correlationID, event.BackendProcessingPayload{
		Processing:          processing,
		NeedsBackendTrigger: needsTrigger,
	}))
}

func (o *Orchestrator) logEmit(_ event.Event, err error) {
	if err != nil {
		log.Printf("emit event failed error=%v", err)
	}
}

func formatRolls(header string, results []state.RollResult) string {
	var b strings.Builder
	b.WriteString(header)
	for _, result := range results {
		b.WriteString(fmt.Sprintf("\n%s rolled %s for %s: %d", result.CharacterName, result.Formula, result.RollType, result.Total))
		if result.Success != nil {
			if *result.Success {
				b.WriteString(fmt.Sprintf(" (DC %d: success)", result.DC))
			} else {
				b.WriteString(fmt.Sprintf(" (DC %d: failure)", result.DC))
			}
		}
	}
	return b.String()
}

func newCorrelationID() string {
	return uuid.NewString()
}

func sortedKeys[T any](m map[string]*T) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func summaries(combatants []combat.Combatant) []event.CombatantSummary {
	out := make([]event.CombatantSummary, 0, len(combatants))
	for _, c := range combatants {
		out = append(out, event.CombatantSummary{
			ID:         c.ID,
			Name:       c.Name,
			Initiative: c.Initiative,
			CurrentHP:  c.CurrentHP,
			MaxHP:      c.MaxHP,
			ArmorClass: c.ArmorClass,
			IsPlayer:   c.IsPlayer,
		})
	}
	return out
}
