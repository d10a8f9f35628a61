package compiler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/navlock/internal/navlock/domain"
)

var mainFrame = []domain.ResourceType{domain.ResourceMainFrame}

func sampleEntries() []domain.AllowListEntry {
	return []domain.AllowListEntry{
		{Domain: "a.com", Path: "foo"},
		{Domain: "b.com", Path: "watch", Query: domain.Query{{Key: "v", Value: "abc"}, {Key: "list", Value: "x"}}},
		{Domain: "c.org"},
	}
}

func TestAssemble_SampleRuleSet(t *testing.T) {
	set, err := Assemble(sampleEntries())
	require.NoError(t, err)

	want := []domain.CompiledRule{
		{ID: 1, Priority: 2, Action: domain.ActionAllow, Matcher: domain.Matcher{Kind: domain.MatchURLFilter, Pattern: "*://a.com/foo*"}, ResourceTypes: mainFrame},
		{ID: 2, Priority: 2, Action: domain.ActionAllow, Matcher: domain.Matcher{Kind: domain.MatchRegex, Pattern: `^https://b\.com/watch.*[?&]v=abc&list=x(&.*)?$`}, ResourceTypes: mainFrame},
		{ID: 3, Priority: 1, Action: domain.ActionBlock, Matcher: domain.Matcher{Kind: domain.MatchURLFilter, Pattern: "*://b.com/watch*"}, ResourceTypes: mainFrame},
		{ID: 4, Priority: 2, Action: domain.ActionAllow, Matcher: domain.Matcher{Kind: domain.MatchURLFilter, Pattern: "*://c.org/*"}, ResourceTypes: mainFrame},
		CatchAll(),
	}
	assert.Equal(t, want, set.Rules)
	require.NoError(t, set.Validate())
}

func TestAssemble_Deterministic(t *testing.T) {
	first, err := Assemble(sampleEntries())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Assemble(sampleEntries())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAssemble_QueryPairPriorities(t *testing.T) {
	set, err := Assemble([]domain.AllowListEntry{{Domain: "a.com", Path: "foo", Query: domain.Query{{Key: "id", Value: "1"}}}})
	require.NoError(t, err)
	require.Len(t, set.Rules, 3)

	strict, coarse := set.Rules[0], set.Rules[1]
	assert.Equal(t, 2, strict.Priority)
	assert.Equal(t, domain.ActionAllow, strict.Action)
	assert.Equal(t, `^https://a\.com/foo.*[?&]id=1(&.*)?$`, strict.Matcher.Pattern)
	assert.Equal(t, 1, coarse.Priority)
	assert.Equal(t, domain.ActionBlock, coarse.Action)
	assert.Equal(t, "*://a.com/foo*", coarse.Matcher.Pattern)
	assert.NotEqual(t, strict.ID, coarse.ID)
}

func TestAssemble_EmptyHasOnlyCatchAll(t *testing.T) {
	set, err := Assemble(nil)
	require.NoError(t, err)

	require.Len(t, set.Rules, 1)
	ca := set.Rules[0]
	assert.Equal(t, domain.CatchAllRuleID, ca.ID)
	assert.Equal(t, domain.ActionRedirect, ca.Action)
	assert.Equal(t, domain.BlankPageURL, ca.RedirectURL)
	assert.Equal(t, "*", ca.Matcher.Pattern)
	assert.Equal(t, mainFrame, ca.ResourceTypes)
	require.NoError(t, set.Validate())
}

func TestAssemble_Invariants(t *testing.T) {
	var entries []domain.AllowListEntry
	wantAllowBlock := 0
	for i := 0; i < 200; i++ {
		e := domain.AllowListEntry{Domain: fmt.Sprintf("host%d.example", i), Path: fmt.Sprintf("p%d", i%7)}
		if i%3 == 0 {
			e.Query = domain.Query{{Key: "k", Value: fmt.Sprint(i)}}
			wantAllowBlock += 2
		} else {
			wantAllowBlock++
		}
		entries = append(entries, e)
	}

	set, err := Assemble(entries)
	require.NoError(t, err)
	require.NoError(t, set.Validate())

	ids := make(map[int]struct{})
	redirects := 0
	ca, ok := set.CatchAll()
	require.True(t, ok)
	for _, r := range set.Rules {
		_, dup := ids[r.ID]
		assert.False(t, dup, "duplicate id %d", r.ID)
		ids[r.ID] = struct{}{}
		if r.Action == domain.ActionRedirect {
			redirects++
			continue
		}
		assert.Greater(t, r.Priority, ca.Priority)
	}
	assert.Equal(t, 1, redirects)
	assert.Equal(t, wantAllowBlock, len(set.Rules)-1)
	assert.Equal(t, domain.CatchAllRuleID, set.Rules[len(set.Rules)-1].ID, "catch-all is appended last")
}

func TestAssemble_DropsDuplicateFragments(t *testing.T) {
	set, err := Assemble([]domain.AllowListEntry{{Domain: "a.com"}, {Domain: "a.com"}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, domain.CatchAllRuleID}, set.IDs())
}

func TestAssemble_IDSpaceExhausted(t *testing.T) {
	entries := make([]domain.AllowListEntry, 0, domain.MaxRuleID+1)
	for i := 0; i <= domain.MaxRuleID; i++ {
		entries = append(entries, domain.AllowListEntry{Domain: fmt.Sprintf("h%d.example", i)})
	}

	_, err := Assemble(entries)
	require.ErrorIs(t, err, domain.ErrRuleIDSpaceExhausted)

	set, err := Assemble(entries[:domain.MaxRuleID])
	require.NoError(t, err)
	assert.Len(t, set.Rules, domain.MaxRuleID+1)
}
