package compiler

import (
	"fmt"

	"github.com/haukened/navlock/internal/navlock/domain"
)

// CatchAll returns the sentinel rule that redirects every top-level navigation
// no higher-priority rule claims.
func CatchAll() domain.CompiledRule {
	return domain.CompiledRule{
		ID:            domain.CatchAllRuleID,
		Priority:      domain.PriorityCatchAll,
		Action:        domain.ActionRedirect,
		RedirectURL:   domain.BlankPageURL,
		Matcher:       domain.Matcher{Kind: domain.MatchURLFilter, Pattern: "*"},
		ResourceTypes: []domain.ResourceType{domain.ResourceMainFrame},
	}
}

// priorityFor returns the fixed priority of a fragment action.
func priorityFor(a domain.Action) int {
	if a == domain.ActionBlock {
		return domain.PriorityBlock
	}
	return domain.PriorityAllow
}

// Assemble compiles entries, in order, into a complete rule set: sequential
// IDs from domain.FirstRuleID, fixed priorities per action, exact duplicate
// fragments dropped, and the catch-all appended last.
func Assemble(entries []domain.AllowListEntry) (domain.RuleSet, error) {
	rules := make([]domain.CompiledRule, 0, 2*len(entries)+1)
	seen := make(map[Fragment]struct{}, 2*len(entries))
	next := domain.FirstRuleID

	for _, e := range entries {
		for _, f := range CompileEntry(e) {
			if _, dup := seen[f]; dup {
				continue
			}
			if next > domain.MaxRuleID {
				return domain.RuleSet{}, fmt.Errorf("%w: more than %d rules", domain.ErrRuleIDSpaceExhausted, domain.MaxRuleID)
			}
			seen[f] = struct{}{}
			rules = append(rules, domain.CompiledRule{
				ID:            next,
				Priority:      priorityFor(f.Action),
				Action:        f.Action,
				Matcher:       f.Matcher,
				ResourceTypes: []domain.ResourceType{domain.ResourceMainFrame},
			})
			next++
		}
	}

	rules = append(rules, CatchAll())
	return domain.RuleSet{Rules: rules}, nil
}
