package domain

// Decision is the outcome of evaluating one navigation against installed rules.
// Pure value type, no external dependencies.
type Decision struct {
	Matched     bool   // false when no rule applies; the navigation proceeds untouched
	RuleID      int    // ID of the winning rule
	Action      Action // action of the winning rule
	RedirectURL string // redirect target when Action is ActionRedirect
}

// Allowed reports whether the navigation proceeds to its original destination.
func (d Decision) Allowed() bool { return !d.Matched || d.Action == ActionAllow }

// NoMatch returns a decision for a navigation no rule applies to.
func NoMatch() Decision { return Decision{} }
