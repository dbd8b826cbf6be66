// Package alerts converts noisy per-reading threshold checks into
// edge-triggered, hysteresis-protected, confirmation-counted alert and
// resolution events.
package alerts

// State is the alert state of one (namespace, sensor) key.
type State string

const (
	StateOK      State = "OK"
	StateInAlert State = "IN_ALERT"
)

// RuleKind distinguishes lower-bound and upper-bound rules.
type RuleKind string

const (
	RuleMin RuleKind = "MIN"
	RuleMax RuleKind = "MAX"
)

// Rule is one threshold with its hysteresis band. For paired MIN+MAX
// rules on a measure, MIN.Value must be below MAX.Value and neither
// hysteresis band may cross the other rule's threshold; config validation
// enforces this at startup.
type Rule struct {
	Kind       RuleKind `json:"kind"`
	Value      int      `json:"value"`
	Hysteresis int      `json:"hysteresis"`
}

// Violated reports whether a value violates the rule, given the current
// alert state of the measure. Activation uses the plain threshold; while
// IN_ALERT the asymmetric hysteresis threshold applies, so a MIN rule
// clears only above Value+Hysteresis and a MAX rule only at or below
// Value-Hysteresis.
func (r Rule) Violated(value float64, state State) bool {
	switch r.Kind {
	case RuleMin:
		if state == StateInAlert {
			return value < float64(r.Value+r.Hysteresis)
		}
		return value < float64(r.Value)
	case RuleMax:
		if state == StateInAlert {
			return value > float64(r.Value-r.Hysteresis)
		}
		return value > float64(r.Value)
	}
	return false
}

// EvaluateAxis checks a value against a MIN+MAX rule pair and returns
// whether any rule is violated plus the violated rule. Both rules are
// checked with the current state so hysteresis applies to whichever side
// triggered the active alert.
func EvaluateAxis(value float64, min, max Rule, state State) (bool, Rule) {
	if min.Violated(value, state) {
		return true, min
	}
	if max.Violated(value, state) {
		return true, max
	}
	return false, Rule{}
}
