// Package allowlist turns raw allow-list records into validated, deduplicated
// entries ready for compilation.
package allowlist

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/haukened/navlock/internal/navlock/common/log"
	"github.com/haukened/navlock/internal/navlock/domain"
)

// hostPattern is the accepted domain alphabet. Matching is case-insensitive.
var hostPattern = regexp.MustCompile(`(?i)^[a-z0-9.-]+$`)

// candidate is the validation schema for one entry.
type candidate struct {
	Domain string `validate:"required,navhost"`
}

// validHost validates the "navhost" tag.
func validHost(fl validator.FieldLevel) bool {
	return hostPattern.MatchString(fl.Field().String())
}

// Normalizer validates and deduplicates raw entries.
type Normalizer struct {
	validate *validator.Validate
	logger   log.Logger
}

// NewNormalizer returns a Normalizer logging dropped entries to logger at debug level.
func NewNormalizer(logger log.Logger) *Normalizer {
	v := validator.New(validator.WithRequiredStructEnabled())
	// registration only fails for an empty tag or nil func
	_ = v.RegisterValidation("navhost", validHost)
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Normalizer{validate: v, logger: logger}
}

// Normalize returns the valid entries of raw, in input order.
//
// Behavior:
// - Entries whose domain is not [a-z0-9.-]+ (case-insensitive) are dropped
// - Domains are lowercased; path loses any "?..." suffix and leading slashes
// - Entries sharing a "domain/path" key collapse to the last one, kept at the first one's position
// - An empty query means no query constraint
func (n *Normalizer) Normalize(raw []domain.RawEntry) []domain.AllowListEntry {
	out := make([]domain.AllowListEntry, 0, len(raw))
	slot := make(map[string]int, len(raw))

	for i, r := range raw {
		if err := n.validate.Struct(candidate{Domain: r.Domain}); err != nil {
			n.logger.Debug(map[string]any{"index": i, "domain": r.Domain, "error": err.Error()}, "skip_invalid_domain")
			continue
		}

		e := domain.AllowListEntry{
			Domain: strings.ToLower(r.Domain),
			Path:   SanitizePath(r.Path),
		}
		if !r.Query.IsEmpty() {
			e.Query = append(domain.Query(nil), r.Query...)
		}

		key := e.Key()
		if at, ok := slot[key]; ok {
			n.logger.Debug(map[string]any{"index": i, "key": key}, "replace_duplicate")
			out[at] = e
			continue
		}
		slot[key] = len(out)
		out = append(out, e)
	}

	n.logger.Debug(map[string]any{"raw": len(raw), "kept": len(out)}, "normalize_done")
	return out
}

// SanitizePath drops everything from the first '?' and any leading slashes.
func SanitizePath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return strings.TrimLeft(path, "/")
}
