// Package check resolves roll totals against difficulty classes.
package check

// MeetsDC returns true if total >= dc, the standard 5e success rule.
func MeetsDC(total, dc int) bool {
	return total >= dc
}

// Margin calculates the margin of success or failure.
// Positive values indicate success, negative indicate failure.
func Margin(total, dc int) int {
	return total - dc
}

// Result represents the outcome of a check against a difficulty class.
type Result struct {
	Success bool
	Margin  int
}

// Against performs a difficulty check and returns the result.
func Against(total, dc int) Result {
	return Result{
		Success: MeetsDC(total, dc),
		Margin:  Margin(total, dc),
	}
}
