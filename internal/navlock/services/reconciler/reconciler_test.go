package reconciler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/navlock/internal/navlock/common/log"
	"github.com/haukened/navlock/internal/navlock/common/metrics"
	"github.com/haukened/navlock/internal/navlock/domain"
	"github.com/haukened/navlock/internal/navlock/services/compiler"
)

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Replace(ctx context.Context, remove []int, add []domain.CompiledRule) error {
	args := m.Called(ctx, remove, add)
	return args.Error(0)
}

type record struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	records []record
}

func (l *captureLogger) add(level string, f map[string]any, msg string) {
	l.records = append(l.records, record{level: level, msg: msg, fields: f})
}
func (l *captureLogger) Info(f map[string]any, msg string)  { l.add("info", f, msg) }
func (l *captureLogger) Error(f map[string]any, msg string) { l.add("error", f, msg) }
func (l *captureLogger) Debug(f map[string]any, msg string) { l.add("debug", f, msg) }
func (l *captureLogger) Warn(f map[string]any, msg string)  { l.add("warn", f, msg) }
func (l *captureLogger) Panic(map[string]any, string)       {}
func (l *captureLogger) Fatal(map[string]any, string)       {}
func (l *captureLogger) With(map[string]any) log.Logger     { return l }

type fakeMetrics struct {
	outcomes  []string
	installed map[string]int
}

func (m *fakeMetrics) ObserveReconcile(outcome string)    { m.outcomes = append(m.outcomes, outcome) }
func (m *fakeMetrics) SetInstalled(counts map[string]int) { m.installed = counts }

func assembled(t *testing.T, entries ...domain.AllowListEntry) domain.RuleSet {
	t.Helper()
	set, err := compiler.Assemble(entries)
	require.NoError(t, err)
	return set
}

func TestPlan_TrackedRemovesExactlyPrevious(t *testing.T) {
	set := assembled(t, domain.AllowListEntry{Domain: "a.com"})
	prev := State{Tracked: true, Installed: []int{1, 2, 3, domain.CatchAllRuleID}}

	plan := Plan(prev, set)

	assert.Equal(t, []int{1, 2, 3, domain.CatchAllRuleID}, plan.Remove)
	assert.Equal(t, set.Rules, plan.Add)

	plan.Remove[0] = 42
	assert.Equal(t, 1, prev.Installed[0], "plan must not alias the state slice")
}

func TestPlan_UntrackedRemovesReservedRange(t *testing.T) {
	plan := Plan(State{}, assembled(t))

	require.Len(t, plan.Remove, domain.MaxRuleID+1)
	assert.Equal(t, domain.FirstRuleID, plan.Remove[0])
	assert.Equal(t, domain.MaxRuleID, plan.Remove[domain.MaxRuleID-1])
	assert.Equal(t, domain.CatchAllRuleID, plan.Remove[len(plan.Remove)-1])
}

func TestReconcile_SuccessTracksNewIDs(t *testing.T) {
	set := assembled(t,
		domain.AllowListEntry{Domain: "a.com", Path: "foo"},
		domain.AllowListEntry{Domain: "b.com", Query: domain.Query{{Key: "id", Value: "1"}}},
	)
	eng := &MockEngine{}
	eng.On("Replace", mock.Anything, []int{7}, set.Rules).Return(nil).Once()
	logger := &captureLogger{}
	m := &fakeMetrics{}

	r := New(Options{Engine: eng, Logger: logger, Metrics: m})
	next, err := r.Reconcile(context.Background(), State{Tracked: true, Installed: []int{7}}, set, false)

	require.NoError(t, err)
	eng.AssertExpectations(t)
	assert.Equal(t, State{Tracked: true, Installed: []int{1, 2, 3, domain.CatchAllRuleID}}, next)

	require.Len(t, logger.records, 1)
	rec := logger.records[0]
	assert.Equal(t, "info", rec.level)
	assert.Equal(t, "rules_installed", rec.msg)
	assert.Equal(t, 2, rec.fields["allow"])
	assert.Equal(t, 1, rec.fields["block"])
	assert.NotContains(t, rec.fields, "installed", "rule listing is gated by debug")

	assert.Equal(t, []string{metrics.OutcomeInstalled}, m.outcomes)
	assert.Equal(t, map[string]int{"allow": 2, "block": 1, "redirect": 1}, m.installed)
}

func TestReconcile_DebugListsAllowAndBlockRules(t *testing.T) {
	set := assembled(t, domain.AllowListEntry{Domain: "b.com", Query: domain.Query{{Key: "id", Value: "1"}}})
	eng := &MockEngine{}
	eng.On("Replace", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	logger := &captureLogger{}

	_, err := New(Options{Engine: eng, Logger: logger}).Reconcile(context.Background(), State{}, set, true)
	require.NoError(t, err)

	require.Len(t, logger.records, 1)
	listing, ok := logger.records[0].fields["installed"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, listing, 2)
	assert.Equal(t, "allow", listing[0]["action"])
	assert.Equal(t, "regexFilter", listing[0]["kind"])
	assert.Equal(t, "block", listing[1]["action"])
	assert.Equal(t, "*://b.com/*", listing[1]["pattern"])
}

func TestReconcile_EngineFailureUntracksState(t *testing.T) {
	set := assembled(t, domain.AllowListEntry{Domain: "a.com"})
	engErr := errors.New("too many regex rules")
	eng := &MockEngine{}
	eng.On("Replace", mock.Anything, mock.Anything, mock.Anything).Return(engErr).Once()
	logger := &captureLogger{}
	m := &fakeMetrics{}

	prev := State{Tracked: true, Installed: []int{1, domain.CatchAllRuleID}}
	next, err := New(Options{Engine: eng, Logger: logger, Metrics: m}).Reconcile(context.Background(), prev, set, false)

	require.ErrorIs(t, err, engErr)
	var rerr *domain.EngineReplaceError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 2, rerr.Removed)
	assert.Equal(t, 2, rerr.Added)
	assert.Equal(t, State{}, next)

	eng.AssertNumberOfCalls(t, "Replace", 1)
	require.Len(t, logger.records, 1)
	assert.Equal(t, "error", logger.records[0].level)
	assert.Equal(t, "reconcile_replace_failed", logger.records[0].msg)
	assert.Equal(t, "too many regex rules", logger.records[0].fields["error"])
	assert.Equal(t, []string{metrics.OutcomeFailed}, m.outcomes)
	assert.Nil(t, m.installed)
}

func TestReconcile_AfterFailureNextCycleRemovesSuperset(t *testing.T) {
	set := assembled(t, domain.AllowListEntry{Domain: "a.com"})
	eng := &MockEngine{}
	eng.On("Replace", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom")).Once()
	eng.On("Replace", mock.Anything, mock.MatchedBy(func(ids []int) bool {
		return len(ids) == domain.MaxRuleID+1
	}), set.Rules).Return(nil).Once()

	r := New(Options{Engine: eng})
	state, err := r.Reconcile(context.Background(), State{Tracked: true, Installed: []int{1}}, set, false)
	require.Error(t, err)

	state, err = r.Reconcile(context.Background(), state, set, false)
	require.NoError(t, err)
	assert.True(t, state.Tracked)
	eng.AssertExpectations(t)
}

func TestReconcile_UntrackedOptionAlwaysRemovesSuperset(t *testing.T) {
	set := assembled(t)
	eng := &MockEngine{}
	eng.On("Replace", mock.Anything, mock.MatchedBy(func(ids []int) bool {
		return len(ids) == domain.MaxRuleID+1
	}), set.Rules).Return(nil).Twice()

	r := New(Options{Engine: eng, Untracked: true})
	state, err := r.Reconcile(context.Background(), State{}, set, false)
	require.NoError(t, err)
	_, err = r.Reconcile(context.Background(), state, set, false)
	require.NoError(t, err)
	eng.AssertExpectations(t)
}

func TestReconcile_NilEngine(t *testing.T) {
	logger := &captureLogger{}
	m := &fakeMetrics{}
	prev := State{Tracked: true, Installed: []int{1, domain.CatchAllRuleID}}

	next, err := New(Options{Logger: logger, Metrics: m}).Reconcile(context.Background(), prev, assembled(t), false)

	require.ErrorIs(t, err, domain.ErrEngineUnavailable)
	assert.Equal(t, prev, next, "installed state is left untouched")
	require.Len(t, logger.records, 1)
	assert.Equal(t, "reconcile_engine_unavailable", logger.records[0].msg)
	assert.Equal(t, []string{metrics.OutcomeUnavailable}, m.outcomes)
}
