package wire

import "github.com/haukened/navlock/internal/navlock/domain"

// RuleCodec converts compiled rules to and from the engine's wire format.
type RuleCodec interface {
	EncodeRule(rule domain.CompiledRule) ([]byte, error)
	DecodeRule(data []byte) (domain.CompiledRule, error)

	// EncodeRuleSet renders a whole rule set, in order, as one document.
	EncodeRuleSet(set domain.RuleSet) ([]byte, error)
}
