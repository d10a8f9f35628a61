// Package wire encodes compiled rules in the declarativeNetRequest JSON rule
// shape, the format browsers accept for dynamic rules.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/haukened/navlock/internal/navlock/domain"
)

// dnrRule matches the declarativeNetRequest rule schema.
type dnrRule struct {
	ID        int          `json:"id"`
	Priority  int          `json:"priority"`
	Action    dnrAction    `json:"action"`
	Condition dnrCondition `json:"condition"`
}

type dnrAction struct {
	Type     string       `json:"type"`
	Redirect *dnrRedirect `json:"redirect,omitempty"`
}

type dnrRedirect struct {
	URL string `json:"url"`
}

type dnrCondition struct {
	URLFilter     string   `json:"urlFilter,omitempty"`
	RegexFilter   string   `json:"regexFilter,omitempty"`
	ResourceTypes []string `json:"resourceTypes,omitempty"`
}

// dnrCodec implements RuleCodec for declarativeNetRequest JSON.
type dnrCodec struct {
	indent bool
}

// NewDNRCodec returns a compact declarativeNetRequest codec.
func NewDNRCodec() RuleCodec { return &dnrCodec{} }

// NewIndentedDNRCodec returns a codec that pretty-prints rule set documents.
func NewIndentedDNRCodec() RuleCodec { return &dnrCodec{indent: true} }

func (c *dnrCodec) EncodeRule(rule domain.CompiledRule) ([]byte, error) {
	r, err := toDNR(rule)
	if err != nil {
		return nil, err
	}
	return marshal(r, false)
}

func (c *dnrCodec) DecodeRule(data []byte) (domain.CompiledRule, error) {
	var r dnrRule
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.CompiledRule{}, fmt.Errorf("decode rule: %w", err)
	}
	return fromDNR(r)
}

func (c *dnrCodec) EncodeRuleSet(set domain.RuleSet) ([]byte, error) {
	out := make([]dnrRule, 0, len(set.Rules))
	for _, rule := range set.Rules {
		r, err := toDNR(rule)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return marshal(out, c.indent)
}

// marshal encodes v without HTML escaping so regex filters keep a literal '&'.
func marshal(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func toDNR(rule domain.CompiledRule) (dnrRule, error) {
	if err := rule.Validate(); err != nil {
		return dnrRule{}, fmt.Errorf("encode rule: %w", err)
	}
	r := dnrRule{
		ID:       rule.ID,
		Priority: rule.Priority,
		Action:   dnrAction{Type: rule.Action.String()},
	}
	if rule.Action == domain.ActionRedirect {
		r.Action.Redirect = &dnrRedirect{URL: rule.RedirectURL}
	}
	switch rule.Matcher.Kind {
	case domain.MatchURLFilter:
		r.Condition.URLFilter = rule.Matcher.Pattern
	case domain.MatchRegex:
		r.Condition.RegexFilter = rule.Matcher.Pattern
	}
	for _, rt := range rule.ResourceTypes {
		r.Condition.ResourceTypes = append(r.Condition.ResourceTypes, string(rt))
	}
	return r, nil
}

func fromDNR(r dnrRule) (domain.CompiledRule, error) {
	action, err := domain.ParseAction(r.Action.Type)
	if err != nil {
		return domain.CompiledRule{}, fmt.Errorf("rule %d: %w", r.ID, err)
	}
	rule := domain.CompiledRule{
		ID:       r.ID,
		Priority: r.Priority,
		Action:   action,
	}
	if r.Action.Redirect != nil {
		rule.RedirectURL = r.Action.Redirect.URL
	}
	switch {
	case r.Condition.URLFilter != "" && r.Condition.RegexFilter != "":
		return domain.CompiledRule{}, fmt.Errorf("rule %d: %w", r.ID, errBothFilters)
	case r.Condition.RegexFilter != "":
		rule.Matcher = domain.Matcher{Kind: domain.MatchRegex, Pattern: r.Condition.RegexFilter}
	default:
		rule.Matcher = domain.Matcher{Kind: domain.MatchURLFilter, Pattern: r.Condition.URLFilter}
	}
	for _, rt := range r.Condition.ResourceTypes {
		rule.ResourceTypes = append(rule.ResourceTypes, domain.ResourceType(rt))
	}
	if err := rule.Validate(); err != nil {
		return domain.CompiledRule{}, fmt.Errorf("decode rule: %w", err)
	}
	return rule, nil
}

var errBothFilters = errors.New("urlFilter and regexFilter are mutually exclusive")
