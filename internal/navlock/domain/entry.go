package domain

import "strings"

// QueryParam is a single required key=value query parameter.
type QueryParam struct {
	Key   string
	Value string
}

// Query is an ordered set of required query parameters. Order is the order
// the parameters were authored in and is significant for compilation.
type Query []QueryParam

// IsEmpty reports whether the query carries no constraint.
func (q Query) IsEmpty() bool { return len(q) == 0 }

// Join renders the parameters as "k1=v1&k2=v2", in order.
func (q Query) Join() string {
	parts := make([]string, 0, len(q))
	for _, p := range q {
		parts = append(parts, p.Key+"="+p.Value)
	}
	return strings.Join(parts, "&")
}

// RawEntry is one allow-list record as read from persisted settings, before
// validation. Domain and Path are untouched user input.
type RawEntry struct {
	Domain string
	Path   string
	Query  Query
}

// AllowListEntry is a validated allow-list entry.
//
// Notes:
// - Domain is lowercased and matches [a-z0-9.-]+.
// - Path carries no query string and no leading slash; empty means the whole host.
// - Query is nil when the entry has no query constraint.
type AllowListEntry struct {
	Domain string
	Path   string
	Query  Query
}

// HasQuery reports whether the entry constrains query parameters.
func (e AllowListEntry) HasQuery() bool { return !e.Query.IsEmpty() }

// Key returns the dedup key "domain/path", with "*" standing in for an empty path.
func (e AllowListEntry) Key() string {
	p := e.Path
	if p == "" {
		p = "*"
	}
	return e.Domain + "/" + p
}

// Settings is the persisted settings mapping navlock reads.
type Settings struct {
	AllowedList []RawEntry
	Debug       bool
}
