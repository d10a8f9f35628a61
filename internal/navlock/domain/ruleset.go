package domain

import "fmt"

// RuleSet is the complete, ordered rule set compiled from one allow-list
// generation. It is always replaced as a whole, never edited.
type RuleSet struct {
	Rules []CompiledRule
}

// IDs returns the rule IDs in set order.
func (s RuleSet) IDs() []int {
	ids := make([]int, 0, len(s.Rules))
	for _, r := range s.Rules {
		ids = append(ids, r.ID)
	}
	return ids
}

// CatchAll returns the catch-all rule, if present.
func (s RuleSet) CatchAll() (CompiledRule, bool) {
	for _, r := range s.Rules {
		if r.IsCatchAll() {
			return r, true
		}
	}
	return CompiledRule{}, false
}

// CountByAction returns the number of rules per action name.
func (s RuleSet) CountByAction() map[string]int {
	out := make(map[string]int, 3)
	for _, r := range s.Rules {
		out[r.Action.String()]++
	}
	return out
}

// Validate checks the rule set invariants:
//   - every rule is individually valid
//   - IDs are unique; Allow/Block IDs lie in FirstRuleID..MaxRuleID
//   - exactly one Redirect rule, with CatchAllRuleID
//   - every other rule has a priority strictly above the catch-all's
func (s RuleSet) Validate() error {
	seen := make(map[int]struct{}, len(s.Rules))
	var catchAll *CompiledRule
	for i := range s.Rules {
		r := s.Rules[i]
		if err := r.Validate(); err != nil {
			return err
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate rule id %d", r.ID)
		}
		seen[r.ID] = struct{}{}

		if r.Action == ActionRedirect {
			if catchAll != nil {
				return fmt.Errorf("rule %d: more than one redirect rule", r.ID)
			}
			if !r.IsCatchAll() {
				return fmt.Errorf("rule %d: redirect rule must use id %d", r.ID, CatchAllRuleID)
			}
			catchAll = &s.Rules[i]
			continue
		}
		if r.ID < FirstRuleID || r.ID > MaxRuleID {
			return fmt.Errorf("rule %d: id outside reserved range %d..%d", r.ID, FirstRuleID, MaxRuleID)
		}
	}
	if catchAll == nil {
		return fmt.Errorf("rule set has no catch-all rule")
	}
	for _, r := range s.Rules {
		if r.ID != catchAll.ID && r.Priority <= catchAll.Priority {
			return fmt.Errorf("rule %d: priority %d not above catch-all priority %d", r.ID, r.Priority, catchAll.Priority)
		}
	}
	return nil
}
