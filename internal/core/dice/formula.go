// Package dice parses and rolls dice formulas.
//
// Formulas use the mini-language NdM[kh|kl]K with an optional trailing
// integer modifier, e.g. "2d6+3", "1d20kh1", "4d6kl3-1". Parsing is
// deterministic; rolling is deterministic with respect to the provided
// random source.
package dice

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// KeepMode selects which dice count toward the total.
type KeepMode int

const (
	// KeepAll keeps every die rolled.
	KeepAll KeepMode = iota
	// KeepHighest keeps the highest KeepCount dice.
	KeepHighest
	// KeepLowest keeps the lowest KeepCount dice.
	KeepLowest
)

// ErrInvalidFormula indicates a formula that does not match the mini-language.
var ErrInvalidFormula = errors.New("invalid dice formula")

var formulaPattern = regexp.MustCompile(`^(\d+)d(\d+)(?:(kh|kl)(\d+))?([+-]\d+)?$`)

// Formula is a parsed dice expression.
type Formula struct {
	Count     int
	Sides     int
	Keep      KeepMode
	KeepCount int
	Modifier  int
}

// Parse parses a dice formula string.
//
// The input is lowercased and stripped of whitespace before matching, so
// "2D6 + 3" parses the same as "2d6+3". A keep clause larger than the die
// count, a zero die count, or zero sides are all rejected.
func Parse(formula string) (Formula, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(formula), " ", ""))
	match := formulaPattern.FindStringSubmatch(normalized)
	if match == nil {
		return Formula{}, fmt.Errorf("%w: %q", ErrInvalidFormula, formula)
	}

	count, err := strconv.Atoi(match[1])
	if err != nil || count <= 0 {
		return Formula{}, fmt.Errorf("%w: %q", ErrInvalidFormula, formula)
	}
	sides, err := strconv.Atoi(match[2])
	if err != nil || sides <= 0 {
		return Formula{}, fmt.Errorf("%w: %q", ErrInvalidFormula, formula)
	}

	parsed := Formula{Count: count, Sides: sides, Keep: KeepAll}

	if match[3] != "" {
		keepCount, err := strconv.Atoi(match[4])
		if err != nil || keepCount <= 0 || keepCount > count {
			return Formula{}, fmt.Errorf("%w: %q", ErrInvalidFormula, formula)
		}
		parsed.KeepCount = keepCount
		if match[3] == "kh" {
			parsed.Keep = KeepHighest
		} else {
			parsed.Keep = KeepLowest
		}
	}

	if match[5] != "" {
		modifier, err := strconv.Atoi(match[5])
		if err != nil {
			return Formula{}, fmt.Errorf("%w: %q", ErrInvalidFormula, formula)
		}
		parsed.Modifier = modifier
	}

	return parsed, nil
}

// String returns the canonical form of the formula. The canonical form is
// stable for a given input regardless of any rolls performed with it.
func (f Formula) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%dd%d", f.Count, f.Sides)
	switch f.Keep {
	case KeepHighest:
		fmt.Fprintf(&b, "kh%d", f.KeepCount)
	case KeepLowest:
		fmt.Fprintf(&b, "kl%d", f.KeepCount)
	}
	if f.Modifier > 0 {
		fmt.Fprintf(&b, "+%d", f.Modifier)
	} else if f.Modifier < 0 {
		fmt.Fprintf(&b, "%d", f.Modifier)
	}
	return b.String()
}
