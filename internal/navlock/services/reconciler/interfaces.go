package reconciler

import (
	"context"

	"github.com/haukened/navlock/internal/navlock/domain"
)

// RuleEngine is the matching engine capability the reconciler drives.
// Replace removes the given rule IDs and adds the given rules as one
// operation; the engine decides how atomic that is.
type RuleEngine interface {
	Replace(ctx context.Context, remove []int, add []domain.CompiledRule) error
}

// Metrics receives reconcile outcomes. *metrics.Metrics satisfies it.
type Metrics interface {
	ObserveReconcile(outcome string)
	SetInstalled(counts map[string]int)
}
