package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/navlock/internal/navlock/common/log"
	"github.com/haukened/navlock/internal/navlock/domain"
)

func writeSettings(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestStore_LoadJSONPreservesQueryOrder(t *testing.T) {
	path := writeSettings(t, "settings.json", `{
  "debug": true,
  "allowedList": [
    {"domain": "a.com", "path": "foo"},
    {"domain": "b.com", "path": "watch", "query": {"v": "abc", "list": "x", "index": 3}}
  ]
}`)

	s, err := New(path, nil).Load()
	require.NoError(t, err)

	assert.True(t, s.Debug)
	assert.Equal(t, []domain.RawEntry{
		{Domain: "a.com", Path: "foo"},
		{Domain: "b.com", Path: "watch", Query: domain.Query{
			{Key: "v", Value: "abc"},
			{Key: "list", Value: "x"},
			{Key: "index", Value: "3"},
		}},
	}, s.AllowedList)
}

func TestStore_LoadDuplicateQueryKeyLastValueWins(t *testing.T) {
	path := writeSettings(t, "settings.json", `{"allowedList": [
    {"domain": "a.com", "query": {"k": "1", "t": "x", "k": "2"}}
]}`)

	s, err := New(path, nil).Load()
	require.NoError(t, err)
	require.Len(t, s.AllowedList, 1)
	assert.Equal(t, domain.Query{{Key: "k", Value: "2"}, {Key: "t", Value: "x"}}, s.AllowedList[0].Query)
}

func TestStore_LoadYAML(t *testing.T) {
	path := writeSettings(t, "settings.yaml", `
allowedList:
  - domain: Example.COM
    path: /docs?page=2
  - domain: z.com
    query:
      b: "2"
      a: "1"
`)

	s, err := New(path, log.NewNoopLogger()).Load()
	require.NoError(t, err)

	assert.False(t, s.Debug, "absent debug reads as false")
	require.Len(t, s.AllowedList, 2)
	assert.Equal(t, "Example.COM", s.AllowedList[0].Domain, "the store does not normalize")
	assert.Equal(t, "/docs?page=2", s.AllowedList[0].Path)
	assert.Equal(t, domain.Query{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}}, s.AllowedList[1].Query)
}

func TestStore_LoadToleratesMalformedRecords(t *testing.T) {
	path := writeSettings(t, "settings.json", `{
  "debug": "sometimes",
  "allowedList": [
    "just-a-string",
    {"domain": {"nested": true}},
    {"domain": "ok.com", "query": "not-an-object"},
    {"domain": "null.com", "query": {"k": null, "nested": {"x": 1}, "list": [1, 2]}},
    42
  ]
}`)

	s, err := New(path, nil).Load()
	require.NoError(t, err)

	assert.False(t, s.Debug)
	assert.Equal(t, []domain.RawEntry{
		{Domain: "ok.com"},
		{Domain: "null.com", Query: domain.Query{{Key: "k", Value: "null"}}},
	}, s.AllowedList)
}

func TestStore_LoadEmptyAndMissingKeys(t *testing.T) {
	for _, content := range []string{"", "{}", `{"allowedList": null}`, `{"allowedList": {"domain": "a.com"}}`} {
		s, err := New(writeSettings(t, "settings.json", content), nil).Load()
		require.NoError(t, err, content)
		assert.Empty(t, s.AllowedList, content)
		assert.False(t, s.Debug, content)
	}
}

func TestStore_LoadErrors(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.json"), nil).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read settings")

	_, err = New(writeSettings(t, "settings.json", `{"allowedList": [`), nil).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse settings")
}

func TestStore_WatchNotifiesOnChange(t *testing.T) {
	path := writeSettings(t, "settings.json", `{"allowedList": []}`)
	st := New(path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 8)
	require.NoError(t, st.Watch(ctx, func() { changed <- struct{}{} }))

	require.NoError(t, os.WriteFile(path, []byte(`{"allowedList": [{"domain": "a.com"}]}`), 0o600))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification")
	}

	s, err := st.Load()
	require.NoError(t, err)
	require.Len(t, s.AllowedList, 1)
	assert.Equal(t, path, st.Path())
}

func TestStore_WatchSurvivesDeleteAndRecreate(t *testing.T) {
	path := writeSettings(t, "settings.json", `{"allowedList": []}`)
	st := New(path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 16)
	require.NoError(t, st.Watch(ctx, func() { changed <- struct{}{} }))

	waitChange := func(what string) {
		t.Helper()
		select {
		case <-changed:
		case <-time.After(5 * time.Second):
			t.Fatalf("expected a change notification after %s", what)
		}
	}

	require.NoError(t, os.Remove(path))
	require.NoError(t, os.WriteFile(path, []byte(`{"allowedList": [{"domain": "a.com"}]}`), 0o600))
	waitChange("recreate")

	// let events from the recreate settle before editing
	time.Sleep(200 * time.Millisecond)
	for len(changed) > 0 {
		<-changed
	}

	require.NoError(t, os.WriteFile(path, []byte(`{"allowedList": [{"domain": "a.com"}, {"domain": "b.com"}]}`), 0o600))
	waitChange("edit")

	assert.Eventually(t, func() bool {
		s, err := st.Load()
		return err == nil && len(s.AllowedList) == 2
	}, 2*time.Second, 20*time.Millisecond)
}
