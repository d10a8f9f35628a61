package domain

import (
	"fmt"
	"strings"
)

// Reserved rule ID namespace. Allow/Block rules use FirstRuleID..MaxRuleID,
// the catch-all always uses CatchAllRuleID.
const (
	FirstRuleID    = 1
	CatchAllRuleID = 9999
	MaxRuleID      = CatchAllRuleID - 1
)

// Rule priorities. Higher wins.
const (
	PriorityAllow    = 2
	PriorityBlock    = 1
	PriorityCatchAll = 0
)

// BlankPageURL is the inert redirect target of the catch-all rule.
const BlankPageURL = "data:text/html,"

// Action is what the matching engine does with a navigation that matches a rule.
type Action uint8

const (
	// ActionAllow lets the navigation proceed.
	ActionAllow Action = iota
	// ActionBlock cancels the navigation.
	ActionBlock
	// ActionRedirect sends the navigation to the rule's RedirectURL.
	ActionRedirect
)

// String returns the declarativeNetRequest action type name.
func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionBlock:
		return "block"
	case ActionRedirect:
		return "redirect"
	default:
		return fmt.Sprintf("Action(%d)", a)
	}
}

// ParseAction converts a declarativeNetRequest action type name into an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow":
		return ActionAllow, nil
	case "block":
		return ActionBlock, nil
	case "redirect":
		return ActionRedirect, nil
	default:
		return 0, fmt.Errorf("unsupported action: %q", s)
	}
}

// MatcherKind selects the matcher language of a rule.
type MatcherKind uint8

const (
	// MatchURLFilter is the engine-native wildcard pattern language ("*://host/path*").
	MatchURLFilter MatcherKind = iota
	// MatchRegex is a full regular expression over the URL.
	MatchRegex
)

func (k MatcherKind) String() string {
	switch k {
	case MatchURLFilter:
		return "urlFilter"
	case MatchRegex:
		return "regexFilter"
	default:
		return fmt.Sprintf("MatcherKind(%d)", k)
	}
}

// Matcher is a URL pattern in one of the engine's matcher languages.
type Matcher struct {
	Kind    MatcherKind
	Pattern string
}

// ResourceType is the kind of request a rule applies to.
type ResourceType string

// ResourceMainFrame is a top-level navigation.
const ResourceMainFrame ResourceType = "main_frame"

// CompiledRule is one rule in the form the matching engine installs.
type CompiledRule struct {
	ID            int
	Priority      int
	Action        Action
	RedirectURL   string // set only for ActionRedirect
	Matcher       Matcher
	ResourceTypes []ResourceType
}

// Validate checks the rule for required fields and supported values.
func (r CompiledRule) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("rule id must be positive, got %d", r.ID)
	}
	if r.Priority < 0 {
		return fmt.Errorf("rule %d: priority must not be negative", r.ID)
	}
	if r.Matcher.Pattern == "" {
		return fmt.Errorf("rule %d: matcher pattern must not be empty", r.ID)
	}
	switch r.Matcher.Kind {
	case MatchURLFilter, MatchRegex:
	default:
		return fmt.Errorf("rule %d: unsupported matcher kind %d", r.ID, r.Matcher.Kind)
	}
	switch r.Action {
	case ActionAllow, ActionBlock:
	case ActionRedirect:
		if r.RedirectURL == "" {
			return fmt.Errorf("rule %d: redirect rule needs a redirect url", r.ID)
		}
	default:
		return fmt.Errorf("rule %d: unsupported action %d", r.ID, r.Action)
	}
	if len(r.ResourceTypes) == 0 {
		return fmt.Errorf("rule %d: resource types must not be empty", r.ID)
	}
	return nil
}

// AppliesTo reports whether the rule is scoped to resource type rt.
func (r CompiledRule) AppliesTo(rt ResourceType) bool {
	for _, t := range r.ResourceTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// IsCatchAll reports whether r is the sentinel catch-all rule.
func (r CompiledRule) IsCatchAll() bool { return r.ID == CatchAllRuleID }
