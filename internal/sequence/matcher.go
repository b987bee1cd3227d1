package sequence

import (
	"fmt"
	"strings"
)

// Action is the code published to the action channel.
type Action int64

// Action codes understood by the robot driver.
const (
	ActionNone Action = iota
	// ActionStandCycle is a stand, sit, stand transition seen in phase B.
	ActionStandCycle
	// ActionDoubleOneHandStand is standing and raising one hand twice.
	ActionDoubleOneHandStand
	// ActionStandCycleAlt is a stand, sit, stand transition seen in phase A.
	ActionStandCycleAlt
)

// String returns a readable action name.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionStandCycle:
		return "stand-cycle"
	case ActionDoubleOneHandStand:
		return "double-one-hand-stand"
	case ActionStandCycleAlt:
		return "stand-cycle-alt"
	}
	return fmt.Sprintf("action(%d)", int64(a))
}

// Phase is the half of the reset cycle the matcher is in. Each match flips
// the phase, and the phase is written into the sequence as its sentinel so
// the same physical transition can map to a different action per half-cycle.
type Phase int

const (
	PhaseA Phase = iota
	PhaseB
)

// Sentinel returns the sequence prefix for the phase. It never contains a
// pose digit.
func (p Phase) Sentinel() string {
	if p == PhaseB {
		return "bb"
	}
	return "aa"
}

// Next returns the other phase.
func (p Phase) Next() Phase {
	if p == PhaseB {
		return PhaseA
	}
	return PhaseB
}

func (p Phase) String() string {
	if p == PhaseB {
		return "B"
	}
	return "A"
}

// MatchKind says how a rule pattern is compared with the sequence.
type MatchKind int

const (
	// Exact requires the whole sequence to equal the pattern.
	Exact MatchKind = iota
	// Suffix requires the sequence to end with the pattern.
	Suffix
)

// Rule maps a pattern to an action.
type Rule struct {
	Pattern string
	Kind    MatchKind
	Action  Action
}

func (r Rule) matches(seq string) bool {
	if r.Kind == Suffix {
		return strings.HasSuffix(seq, r.Pattern)
	}
	return seq == r.Pattern
}

// DefaultRules returns a fresh copy of the trigger table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "bb010", Kind: Exact, Action: ActionStandCycle},
		{Pattern: "aa010", Kind: Exact, Action: ActionStandCycleAlt},
		{Pattern: "1313", Kind: Suffix, Action: ActionDoubleOneHandStand},
	}
}

// Matcher evaluates an ordered rule table; the first matching rule wins.
type Matcher struct {
	rules []Rule
}

// NewMatcher returns a matcher over rules, or DefaultRules when rules is empty.
func NewMatcher(rules []Rule) *Matcher {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Matcher{rules: rules}
}

// Match returns the action of the first rule matching seq, or ActionNone.
func (m *Matcher) Match(seq string) Action {
	for _, r := range m.rules {
		if r.matches(seq) {
			return r.Action
		}
	}
	return ActionNone
}
