package dice

import (
	"math/rand"
	"sort"
)

// Result describes one resolved roll of a parsed formula.
type Result struct {
	Formula Formula
	// Rolls holds every die rolled, in roll order.
	Rolls []int
	// Kept holds the dice that count toward the total after any keep clause.
	Kept []int
	// Total is the sum of kept dice plus the formula modifier.
	Total int
}

// Roll resolves a parsed formula against the provided random source.
//
// Roll is deterministic with respect to rng: the same source state and
// formula always produce the same Result.
func Roll(rng *rand.Rand, f Formula) Result {
	rolls := make([]int, f.Count)
	for i := range rolls {
		rolls[i] = rng.Intn(f.Sides) + 1
	}

	kept := keepDice(rolls, f.Keep, f.KeepCount)

	total := f.Modifier
	for _, value := range kept {
		total += value
	}

	return Result{
		Formula: f,
		Rolls:   rolls,
		Kept:    kept,
		Total:   total,
	}
}

// Outcome is the defensive parse-and-roll result used when the formula
// comes from untrusted input. A malformed formula yields a zero total, no
// dice, and the description "Invalid Formula" instead of an error.
type Outcome struct {
	Total       int
	Rolls       []int
	Modifier    int
	Description string
}

// InvalidFormulaDescription is returned for formulas that fail to parse.
const InvalidFormulaDescription = "Invalid Formula"

// RollFormula parses and rolls a formula string.
func RollFormula(rng *rand.Rand, formula string) Outcome {
	parsed, err := Parse(formula)
	if err != nil {
		return Outcome{Total: 0, Rolls: []int{}, Modifier: 0, Description: InvalidFormulaDescription}
	}

	result := Roll(rng, parsed)
	return Outcome{
		Total:       result.Total,
		Rolls:       result.Rolls,
		Modifier:    parsed.Modifier,
		Description: parsed.String(),
	}
}

// keepDice applies a keep-highest or keep-lowest clause, preserving the
// original roll order of the kept dice.
func keepDice(rolls []int, mode KeepMode, keepCount int) []int {
	if mode == KeepAll || keepCount <= 0 || keepCount >= len(rolls) {
		kept := make([]int, len(rolls))
		copy(kept, rolls)
		return kept
	}

	indexes := make([]int, len(rolls))
	for i := range indexes {
		indexes[i] = i
	}
	sort.SliceStable(indexes, func(a, b int) bool {
		if mode == KeepHighest {
			return rolls[indexes[a]] > rolls[indexes[b]]
		}
		return rolls[indexes[a]] < rolls[indexes[b]]
	})

	chosen := make(map[int]struct{}, keepCount)
	for _, idx := range indexes[:keepCount] {
		chosen[idx] = struct{}{}
	}

	kept := make([]int, 0, keepCount)
	for i, value := range rolls {
		if _, ok := chosen[i]; ok {
			kept = append(kept, value)
		}
	}
	return kept
}
