// Package compiler turns validated allow-list entries into a complete,
// prioritized rule set for the matching engine.
package compiler

import (
	"regexp"

	"github.com/haukened/navlock/internal/navlock/domain"
)

// Fragment is one rule produced for an entry before IDs and priorities are assigned.
type Fragment struct {
	Action  domain.Action
	Matcher domain.Matcher
}

// CompileEntry returns the rule fragments for one validated entry.
//
// An entry without a query compiles to a single Allow on the coarse
// "*://domain/path*" filter. The URL filter language cannot require a set of
// query parameters in any order, so an entry with a query compiles to a strict
// Allow regex over the full URL followed by a Block on the coarse filter; the
// Allow outranks the Block, so only URLs carrying the query get through.
func CompileEntry(e domain.AllowListEntry) []Fragment {
	coarse := domain.Matcher{Kind: domain.MatchURLFilter, Pattern: CoarseFilter(e.Domain, e.Path)}
	if !e.HasQuery() {
		return []Fragment{{Action: domain.ActionAllow, Matcher: coarse}}
	}
	return []Fragment{
		{Action: domain.ActionAllow, Matcher: domain.Matcher{Kind: domain.MatchRegex, Pattern: StrictRegex(e.Domain, e.Path, e.Query)}},
		{Action: domain.ActionBlock, Matcher: coarse},
	}
}

// CoarseFilter returns the prefix URL filter for host and path, any scheme.
func CoarseFilter(host, path string) string {
	return "*://" + host + "/" + path + "*"
}

// StrictRegex returns an anchored regex requiring https, host, the path
// prefix, and the joined query parameters as one contiguous run that starts
// the query or follows another parameter. Every literal is escaped.
func StrictRegex(host, path string, q domain.Query) string {
	return "^https://" + regexp.QuoteMeta(host) + "/" + regexp.QuoteMeta(path) +
		".*[?&]" + regexp.QuoteMeta(q.Join()) + "(&.*)?$"
}
