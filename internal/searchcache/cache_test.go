package searchcache

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	opts = append(opts, WithClock(func() time.Time { return *clock }))
	s, err := New(filepath.Join(t.TempDir(), "cache.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func TestKeyIndependentOfParamOrder(t *testing.T) {
	a := Key(SearchTypeWeb, map[string]any{"a": 1, "b": 2})
	b := Key(SearchTypeWeb, map[string]any{"b": 2, "a": 1})
	assert.Equal(t, a, b)

	c := Key(SearchTypePatent, map[string]any{"a": 1, "b": 2})
	assert.NotEqual(t, a, c, "search type must partition the key space")
}

func TestPutGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	params := map[string]any{"q": "foldable solar charger", "limit": 10}
	results := []map[string]any{{"title": "Solar charger"}}

	require.NoError(t, s.Put(SearchTypeWeb, params, results, "serpapi"))
	got, hit, err := s.Get(SearchTypeWeb, params)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "serpapi", got.SourceAPI)
	assert.Equal(t, 1, got.ResultCount)

	var back []map[string]any
	require.NoError(t, json.Unmarshal(got.Results, &back))
	assert.Equal(t, "Solar charger", back[0]["title"])
}

func TestWebEntriesExpireAfterWindow(t *testing.T) {
	s, clock := newTestStore(t)
	params := map[string]any{"q": "widget"}
	require.NoError(t, s.Put(SearchTypeWeb, params, []string{"r1"}, "serpapi"))

	*clock = clock.Add(DefaultTTL - time.Minute)
	_, hit, err := s.Get(SearchTypeWeb, params)
	require.NoError(t, err)
	assert.True(t, hit, "not yet expired")

	*clock = clock.Add(2 * time.Minute)
	_, hit, err = s.Get(SearchTypeWeb, params)
	require.NoError(t, err)
	assert.False(t, hit, "expired row must be a miss")

	// The expired row is deleted on read, not just skipped.
	var count int
	require.NoError(t, s.db.Get(&count, `SELECT COUNT(*) FROM cached_results`))
	assert.Zero(t, count)
}

func TestPatentEntriesNeverExpire(t *testing.T) {
	s, clock := newTestStore(t)
	params := map[string]any{"q": "solar"}
	require.NoError(t, s.Put(SearchTypePatent, params, []string{"p1"}, "patentsview"))

	*clock = clock.Add(365 * 24 * time.Hour)
	got, hit, err := s.Get(SearchTypePatent, params)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Nil(t, got.ExpiresAt)
}

func TestQuotaEvictsOldestOfSameTypeOnly(t *testing.T) {
	s, clock := newTestStore(t, WithMaxRows(3))

	require.NoError(t, s.Put(SearchTypePatent, map[string]any{"q": "keep"}, []string{"p"}, "patentsview"))
	for i, q := range []string{"one", "two", "three"} {
		*clock = clock.Add(time.Duration(i+1) * time.Minute)
		require.NoError(t, s.Put(SearchTypeWeb, map[string]any{"q": q}, []string{"r"}, "serpapi"))
	}

	*clock = clock.Add(time.Hour)
	require.NoError(t, s.Put(SearchTypeWeb, map[string]any{"q": "four"}, []string{"r"}, "serpapi"))

	_, hit, err := s.Get(SearchTypeWeb, map[string]any{"q": "one"})
	require.NoError(t, err)
	assert.False(t, hit, "oldest web row must be evicted")

	for _, q := range []string{"two", "three", "four"} {
		_, hit, err := s.Get(SearchTypeWeb, map[string]any{"q": q})
		require.NoError(t, err)
		assert.True(t, hit, "newer web rows survive: %s", q)
	}

	_, hit, err = s.Get(SearchTypePatent, map[string]any{"q": "keep"})
	require.NoError(t, err)
	assert.True(t, hit, "eviction must never touch other channels")
}

func TestPutUpsertsLastWriterWins(t *testing.T) {
	s, _ := newTestStore(t)
	params := map[string]any{"q": "gadget"}
	require.NoError(t, s.Put(SearchTypeRetail, params, []string{"old"}, "serpapi"))
	require.NoError(t, s.Put(SearchTypeRetail, params, []string{"new", "newer"}, "serpapi"))

	got, hit, err := s.Get(SearchTypeRetail, params)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 2, got.ResultCount)
}

func TestGetMissOnUnknownKey(t *testing.T) {
	s, _ := newTestStore(t)
	_, hit, err := s.Get(SearchTypeWeb, map[string]any{"q": "never stored"})
	require.NoError(t, err)
	assert.False(t, hit)
}
