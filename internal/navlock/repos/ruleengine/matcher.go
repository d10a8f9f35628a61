package ruleengine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/haukened/navlock/internal/navlock/domain"
)

// separatorClass is what the URL filter '^' placeholder matches: any
// character that is not a letter, digit or one of "_-.%", or the end of the URL.
const separatorClass = `(?:[^a-zA-Z0-9_.%-]|$)`

// compileMatcher turns a rule matcher into a case-insensitive regexp.
func compileMatcher(m domain.Matcher) (*regexp.Regexp, error) {
	switch m.Kind {
	case domain.MatchURLFilter:
		return regexp.Compile(urlFilterExpr(m.Pattern))
	case domain.MatchRegex:
		re, err := regexp.Compile("(?i)" + m.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex filter %q: %w", m.Pattern, err)
		}
		return re, nil
	default:
		return nil, fmt.Errorf("unsupported matcher kind %d", m.Kind)
	}
}

// urlFilterExpr translates the URL filter language into a regexp:
//   - '*' matches any run of characters
//   - '^' matches a separator character or the end of the URL
//   - leading "||" anchors at the start of a host or any of its subdomains
//   - leading '|' anchors at the URL start, trailing '|' at the URL end
//
// Without anchors a filter matches anywhere in the URL.
func urlFilterExpr(filter string) string {
	var b strings.Builder
	b.WriteString("(?i)")

	switch {
	case strings.HasPrefix(filter, "||"):
		b.WriteString(`^[a-z][a-z0-9+.-]*://(?:[^/?#]*\.)?`)
		filter = filter[2:]
	case strings.HasPrefix(filter, "|"):
		b.WriteString("^")
		filter = filter[1:]
	}
	endAnchor := false
	if strings.HasSuffix(filter, "|") {
		endAnchor = true
		filter = filter[:len(filter)-1]
	}

	for _, r := range filter {
		switch r {
		case '*':
			b.WriteString(".*")
		case '^':
			b.WriteString(separatorClass)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if endAnchor {
		b.WriteString("$")
	}
	return b.String()
}

// regexHost extracts the host from an escaped "^https://host/" regex prefix.
var regexHost = regexp.MustCompile(`^\^https?://((?:[a-zA-Z0-9-]|\\\.)+)/`)

// ruleHost returns the host a rule is scoped to, or "" when the rule can match
// requests to any host.
func ruleHost(r domain.CompiledRule) string {
	p := r.Matcher.Pattern
	switch r.Matcher.Kind {
	case domain.MatchRegex:
		if m := regexHost.FindStringSubmatch(p); m != nil {
			return strings.ToLower(strings.ReplaceAll(m[1], `\.`, "."))
		}
		return ""
	case domain.MatchURLFilter:
		var rest string
		switch {
		case strings.HasPrefix(p, "*://"):
			rest = p[len("*://"):]
		case strings.HasPrefix(p, "|http://"), strings.HasPrefix(p, "|https://"):
			rest = p[strings.Index(p, "://")+3:]
		default:
			return ""
		}
		end := strings.IndexAny(rest, "/*^?|:")
		if end <= 0 || rest[end] != '/' {
			return ""
		}
		return strings.ToLower(rest[:end])
	}
	return ""
}

// compiledRule is an installed rule with its matcher ready for evaluation.
type compiledRule struct {
	rule domain.CompiledRule
	re   *regexp.Regexp
}

func compileRules(rules []domain.CompiledRule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := compileMatcher(r.Matcher)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", r.ID, err)
		}
		out = append(out, compiledRule{rule: r, re: re})
	}
	return out, nil
}

// actionRank breaks priority ties: allow beats block beats redirect.
func actionRank(a domain.Action) int {
	switch a {
	case domain.ActionAllow:
		return 3
	case domain.ActionBlock:
		return 2
	case domain.ActionRedirect:
		return 1
	default:
		return 0
	}
}

// outranks reports whether a wins over b.
func outranks(a, b domain.CompiledRule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if ra, rb := actionRank(a.Action), actionRank(b.Action); ra != rb {
		return ra > rb
	}
	return a.ID < b.ID
}

// evaluate returns the decision of the highest-ranked rule matching url for rt.
func evaluate(candidates []compiledRule, url string, rt domain.ResourceType) domain.Decision {
	var best *domain.CompiledRule
	for i := range candidates {
		c := &candidates[i]
		if !c.rule.AppliesTo(rt) || !c.re.MatchString(url) {
			continue
		}
		if best == nil || outranks(c.rule, *best) {
			best = &c.rule
		}
	}
	if best == nil {
		return domain.NoMatch()
	}
	return domain.Decision{
		Matched:     true,
		RuleID:      best.ID,
		Action:      best.Action,
		RedirectURL: best.RedirectURL,
	}
}
