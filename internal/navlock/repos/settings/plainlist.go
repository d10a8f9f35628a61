package settings

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	"github.com/haukened/navlock/internal/navlock/common/log"
	"github.com/haukened/navlock/internal/navlock/domain"
)

// isPlainList reports whether path names a plain allow-list rather than a
// JSON/YAML settings document.
func isPlainList(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".list", ".txt":
		return true
	}
	return false
}

// parsePlainList parses a newline-delimited allow-list into raw entries, one per line:
//
//	domain[/path][?key=value&key=value]
//
// Behavior:
// - Supports comments starting with '#' (inline or whole-line)
// - Accepts and drops a leading http:// or https://
// - Keeps query parameters in line order; a key without '=' gets an empty value
// - Leaves validation and dedup to the allow-list normalizer
func parsePlainList(r io.Reader, logger log.Logger) ([]domain.RawEntry, error) {
	scanner := bufio.NewScanner(r)
	out := make([]domain.RawEntry, 0, 64)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimPrefix(scanner.Text(), "\uFEFF")

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			logger.Debug(map[string]any{"line": lineNum}, "skip_comment")
			continue
		}
		if idx := strings.IndexByte(trimmed, '#'); idx >= 0 {
			trimmed = strings.TrimSpace(trimmed[:idx])
		}

		entry := parsePlainLine(trimmed)
		if entry.Domain == "" {
			logger.Debug(map[string]any{"line": lineNum, "raw": trimmed}, "skip_empty_domain")
			continue
		}
		out = append(out, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	logger.Debug(map[string]any{"count": len(out)}, "parse_plain_list_done")
	return out, nil
}

func parsePlainLine(s string) domain.RawEntry {
	lower := strings.ToLower(s)
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(lower, scheme) {
			s = s[len(scheme):]
			break
		}
	}

	var rawQuery string
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s, rawQuery = s[:i], s[i+1:]
	}
	host, path, _ := strings.Cut(s, "/")

	e := domain.RawEntry{Domain: strings.TrimSpace(host), Path: path}
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		if k == "" {
			continue
		}
		e.Query = append(e.Query, domain.QueryParam{Key: k, Value: v})
	}
	return e
}
