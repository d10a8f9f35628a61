package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineUnavailable means no matching engine is wired in; the cycle is
	// aborted and installed rules are left untouched.
	ErrEngineUnavailable = errors.New("matching engine unavailable")

	// ErrRuleIDSpaceExhausted means the allow-list compiles to more rules than
	// the reserved ID range can hold.
	ErrRuleIDSpaceExhausted = errors.New("rule id space exhausted")

	// ErrDuplicateRuleID is returned by an engine asked to add a rule whose ID
	// is already installed.
	ErrDuplicateRuleID = errors.New("rule id already installed")
)

// EngineReplaceError reports a failed replace call. The installed rules are
// whatever the engine left behind.
type EngineReplaceError struct {
	Removed int // number of IDs requested for removal
	Added   int // number of rules requested for addition
	Err     error
}

func (e *EngineReplaceError) Error() string {
	return fmt.Sprintf("replace rules (remove=%d add=%d): %v", e.Removed, e.Added, e.Err)
}

func (e *EngineReplaceError) Unwrap() error { return e.Err }
