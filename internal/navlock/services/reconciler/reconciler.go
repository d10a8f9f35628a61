// Package reconciler replaces the rule set installed in a matching engine
// with a newly assembled one.
package reconciler

import (
	"context"

	"github.com/haukened/navlock/internal/navlock/common/log"
	"github.com/haukened/navlock/internal/navlock/common/metrics"
	"github.com/haukened/navlock/internal/navlock/domain"
)

// State is what the reconciler believes is installed in the engine.
// The zero value is untracked: nothing is known about the engine.
type State struct {
	Tracked   bool
	Installed []int
}

// Replacement is the single remove+add call that moves the engine to a new rule set.
type Replacement struct {
	Remove []int
	Add    []domain.CompiledRule
}

// Plan computes the replace call for set given prev. Tracked state removes
// exactly the IDs believed installed; untracked state removes the whole
// reserved range plus the catch-all so stray rules from crashes or manual
// edits cannot survive.
func Plan(prev State, set domain.RuleSet) Replacement {
	var remove []int
	if prev.Tracked {
		remove = append([]int(nil), prev.Installed...)
	} else {
		remove = reservedIDs()
	}
	return Replacement{Remove: remove, Add: set.Rules}
}

// reservedIDs returns FirstRuleID..MaxRuleID followed by CatchAllRuleID.
func reservedIDs() []int {
	ids := make([]int, 0, domain.MaxRuleID-domain.FirstRuleID+2)
	for id := domain.FirstRuleID; id <= domain.MaxRuleID; id++ {
		ids = append(ids, id)
	}
	return append(ids, domain.CatchAllRuleID)
}

// Options configures a Reconciler.
type Options struct {
	Engine  RuleEngine
	Logger  log.Logger
	Metrics Metrics
	// Untracked forces the conservative removal set on every replace.
	Untracked bool
}

// Reconciler drives one replace call per rule set generation.
type Reconciler struct {
	engine    RuleEngine
	logger    log.Logger
	metrics   Metrics
	untracked bool
}

// New constructs a Reconciler. A nil Engine is allowed; every Reconcile then
// fails with domain.ErrEngineUnavailable.
func New(opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Reconciler{
		engine:    opts.Engine,
		logger:    logger,
		metrics:   opts.Metrics,
		untracked: opts.Untracked,
	}
}

// Reconcile installs set in the engine with one replace call and returns the
// state to thread into the next call.
//
// On success it logs one info record, with the full rule listing when debug is
// set, and returns tracked state for set. On engine failure it logs one error
// record and returns untracked state, since the engine may hold anything. The
// call is never retried.
func (r *Reconciler) Reconcile(ctx context.Context, prev State, set domain.RuleSet, debug bool) (State, error) {
	if r.engine == nil {
		r.logger.Error(map[string]any{"error": domain.ErrEngineUnavailable.Error()}, "reconcile_engine_unavailable")
		r.observe(metrics.OutcomeUnavailable)
		return prev, domain.ErrEngineUnavailable
	}

	if r.untracked {
		prev = State{}
	}
	plan := Plan(prev, set)

	if err := r.engine.Replace(ctx, plan.Remove, plan.Add); err != nil {
		rerr := &domain.EngineReplaceError{Removed: len(plan.Remove), Added: len(plan.Add), Err: err}
		r.logger.Error(map[string]any{
			"error":   err.Error(),
			"removed": rerr.Removed,
			"added":   rerr.Added,
			"tracked": prev.Tracked,
		}, "reconcile_replace_failed")
		r.observe(metrics.OutcomeFailed)
		return State{}, rerr
	}

	counts := set.CountByAction()
	fields := map[string]any{
		"removed": len(plan.Remove),
		"rules":   len(set.Rules),
		"allow":   counts[domain.ActionAllow.String()],
		"block":   counts[domain.ActionBlock.String()],
		"tracked": prev.Tracked,
	}
	if debug {
		fields["installed"] = describe(set)
	}
	r.logger.Info(fields, "rules_installed")
	r.observe(metrics.OutcomeInstalled)
	if r.metrics != nil {
		r.metrics.SetInstalled(counts)
	}

	return State{Tracked: true, Installed: set.IDs()}, nil
}

func (r *Reconciler) observe(outcome string) {
	if r.metrics != nil {
		r.metrics.ObserveReconcile(outcome)
	}
}

// describe renders the Allow/Block rules for the debug listing.
func describe(set domain.RuleSet) []map[string]any {
	out := make([]map[string]any, 0, len(set.Rules))
	for _, rule := range set.Rules {
		if rule.IsCatchAll() {
			continue
		}
		out = append(out, map[string]any{
			"id":       rule.ID,
			"priority": rule.Priority,
			"action":   rule.Action.String(),
			"kind":     rule.Matcher.Kind.String(),
			"pattern":  rule.Matcher.Pattern,
		})
	}
	return out
}
