package settings

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/haukened/navlock/internal/navlock/common/log"
	"github.com/haukened/navlock/internal/navlock/domain"
)

// document is the top level of the settings file. allowedList is kept as raw
// nodes so one malformed record cannot fail the whole list.
type document struct {
	AllowedList yaml.Node `yaml:"allowedList"`
	Debug       yaml.Node `yaml:"debug"`
}

// rawEntry is the on-disk schema of one allow-list record.
type rawEntry struct {
	Domain string   `yaml:"domain"`
	Path   string   `yaml:"path"`
	Query  rawQuery `yaml:"query"`
}

// rawQuery decodes a mapping into an ordered query. Anything that is not a
// mapping decodes to an empty query. A repeated key keeps its first position
// and takes its last value.
type rawQuery domain.Query

func (q *rawQuery) UnmarshalYAML(node *yaml.Node) error {
	*q = nil
	if node.Kind != yaml.MappingNode {
		return nil
	}
	out := make(rawQuery, 0, len(node.Content)/2)
	seen := make(map[string]int, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			continue
		}
		value := v.Value
		if v.Tag == "!!null" {
			value = "null"
		}
		if at, ok := seen[k.Value]; ok {
			out[at].Value = value
			continue
		}
		seen[k.Value] = len(out)
		out = append(out, domain.QueryParam{Key: k.Value, Value: value})
	}
	*q = out
	return nil
}

// decode parses settings data. Records that do not fit the entry schema are
// skipped and logged at debug level. JSON is accepted since it parses as YAML.
func decode(data []byte, logger log.Logger) (domain.Settings, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.Settings{}, fmt.Errorf("parse settings: %w", err)
	}

	s := domain.Settings{}
	if doc.Debug.Kind != 0 {
		if err := doc.Debug.Decode(&s.Debug); err != nil {
			logger.Debug(map[string]any{"line": doc.Debug.Line, "error": err.Error()}, "skip_debug_not_bool")
			s.Debug = false
		}
	}

	switch doc.AllowedList.Kind {
	case 0:
		return s, nil
	case yaml.SequenceNode:
	default:
		logger.Debug(map[string]any{"line": doc.AllowedList.Line}, "skip_allowed_list_not_sequence")
		return s, nil
	}

	s.AllowedList = make([]domain.RawEntry, 0, len(doc.AllowedList.Content))
	for i, item := range doc.AllowedList.Content {
		if item.Kind != yaml.MappingNode {
			logger.Debug(map[string]any{"index": i, "line": item.Line}, "skip_entry_not_mapping")
			continue
		}
		var re rawEntry
		if err := item.Decode(&re); err != nil {
			logger.Debug(map[string]any{"index": i, "line": item.Line, "error": err.Error()}, "skip_entry_decode_error")
			continue
		}
		s.AllowedList = append(s.AllowedList, domain.RawEntry{
			Domain: re.Domain,
			Path:   re.Path,
			Query:  domain.Query(re.Query),
		})
	}
	return s, nil
}
