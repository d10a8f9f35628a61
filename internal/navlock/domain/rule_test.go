package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestAction_StringAndParse(t *testing.T) {
	tests := []struct {
		a    Action
		name string
	}{
		{ActionAllow, "allow"},
		{ActionBlock, "block"},
		{ActionRedirect, "redirect"},
	}
	for _, tt := range tests {
		if got := tt.a.String(); got != tt.name {
			t.Errorf("String() = %q, want %q", got, tt.name)
		}
		got, err := ParseAction(" " + strings.ToUpper(tt.name) + " ")
		if err != nil || got != tt.a {
			t.Errorf("ParseAction(%q) = %v, %v", tt.name, got, err)
		}
	}
	if _, err := ParseAction("upgradeScheme"); err == nil {
		t.Error("expected error for unsupported action")
	}
	if got := Action(42).String(); got != "Action(42)" {
		t.Errorf("unknown action String() = %q", got)
	}
}

func TestMatcherKind_String(t *testing.T) {
	if MatchURLFilter.String() != "urlFilter" || MatchRegex.String() != "regexFilter" {
		t.Fatalf("unexpected names %q %q", MatchURLFilter, MatchRegex)
	}
	if MatcherKind(9).String() != "MatcherKind(9)" {
		t.Fatalf("unexpected unknown kind name")
	}
}

func validRule() CompiledRule {
	return CompiledRule{
		ID:            1,
		Priority:      PriorityAllow,
		Action:        ActionAllow,
		Matcher:       Matcher{Kind: MatchURLFilter, Pattern: "*://a.com/*"},
		ResourceTypes: []ResourceType{ResourceMainFrame},
	}
}

func TestCompiledRule_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *CompiledRule)
		substr string
	}{
		{"valid", func(r *CompiledRule) {}, ""},
		{"zero id", func(r *CompiledRule) { r.ID = 0 }, "positive"},
		{"negative priority", func(r *CompiledRule) { r.Priority = -1 }, "priority"},
		{"empty pattern", func(r *CompiledRule) { r.Matcher.Pattern = "" }, "pattern"},
		{"bad kind", func(r *CompiledRule) { r.Matcher.Kind = 7 }, "matcher kind"},
		{"bad action", func(r *CompiledRule) { r.Action = 7 }, "unsupported action"},
		{"redirect without url", func(r *CompiledRule) { r.Action = ActionRedirect }, "redirect url"},
		{"no resource types", func(r *CompiledRule) { r.ResourceTypes = nil }, "resource types"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule()
			tt.mutate(&r)
			err := r.Validate()
			if tt.substr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Fatalf("want error containing %q, got %v", tt.substr, err)
			}
		})
	}
}

func TestCompiledRule_AppliesTo(t *testing.T) {
	r := validRule()
	if !r.AppliesTo(ResourceMainFrame) {
		t.Fatal("expected main_frame rule to apply to main_frame")
	}
	if r.AppliesTo("sub_frame") {
		t.Fatal("expected main_frame rule not to apply to sub_frame")
	}
}

func TestEngineReplaceError_Unwrap(t *testing.T) {
	base := errors.New("quota exceeded")
	err := error(&EngineReplaceError{Removed: 3, Added: 4, Err: base})

	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to find the engine error")
	}
	var rerr *EngineReplaceError
	if !errors.As(err, &rerr) || rerr.Added != 4 {
		t.Fatalf("errors.As failed: %+v", rerr)
	}
	if !strings.Contains(err.Error(), "remove=3 add=4") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestDecision_Allowed(t *testing.T) {
	if !NoMatch().Allowed() {
		t.Fatal("no-match decision should allow")
	}
	if !(Decision{Matched: true, Action: ActionAllow}).Allowed() {
		t.Fatal("allow decision should allow")
	}
	if (Decision{Matched: true, Action: ActionRedirect, RedirectURL: BlankPageURL}).Allowed() {
		t.Fatal("redirect decision should not allow")
	}
}
