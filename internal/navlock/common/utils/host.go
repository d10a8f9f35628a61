package utils

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// CanonicalHost returns a host name in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dot, so "Example.COM." and "example.com" compare equal.
func CanonicalHost(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// GetApexDomain returns the registrable domain (eTLD+1) for name. Names the
// public suffix list cannot resolve, such as bare suffixes or single labels,
// are returned canonicalized and otherwise unchanged.
func GetApexDomain(name string) string {
	name = CanonicalHost(name)
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return apex
}

// CountSites returns the number of distinct registrable domains among hosts.
func CountSites(hosts []string) int {
	seen := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		if h == "" {
			continue
		}
		seen[GetApexDomain(h)] = struct{}{}
	}
	return len(seen)
}
