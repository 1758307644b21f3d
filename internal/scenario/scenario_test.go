package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuiteFilter(t *testing.T) {
	suite := WebSuite(Queries{Web: []string{"Moscow", "World War II"}})

	tests := []struct {
		name string
		only []string
		want []string
	}{
		{"Exact", []string{"no_results"}, []string{"no_results"}},
		{"Group", []string{"search_queries"}, []string{"search_queries/Moscow", "search_queries/World War II"}},
		{"SingleQuery", []string{"search_queries/Moscow"}, []string{"search_queries/Moscow"}},
		{"KeepsSuiteOrder", []string{"page_titles", "home_page_loads"}, []string{"home_page_loads", "page_titles"}},
		{"PrefixIsNotAName", []string{"home"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := suite.Filter(tt.only).Names()
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Filter(%v) mismatch (-want +got):\n%s", tt.only, diff)
			}
		})
	}

	assert.Equal(t, suite.Names(), suite.Filter(nil).Names())
}

func TestSuiteNames(t *testing.T) {
	q := DefaultQueries()
	seen := map[string]bool{}
	for _, s := range []Suite{WebSuite(q), MobileSuite(q)} {
		for _, name := range s.Names() {
			key := s.Name + "/" + name
			assert.False(t, seen[key], "duplicate case %s", key)
			seen[key] = true
		}
	}
	assert.Contains(t, WebSuite(q).Names(), "search_queries/World War II")
	assert.Contains(t, MobileSuite(q).Names(), "search_queries/Einstein")
	assert.NotNil(t, MobileSuite(q).setUp, "mobile cases restart the app")
	assert.Nil(t, WebSuite(q).setUp)
}

func TestLoadQueries(t *testing.T) {
	write := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "queries.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	t.Run("EmptyPath", func(t *testing.T) {
		q, err := LoadQueries("")
		require.NoError(t, err)
		assert.Equal(t, DefaultQueries(), q)
	})

	t.Run("Override", func(t *testing.T) {
		q, err := LoadQueries(write(t, "web:\n  - Mars\n  - Venus\nmobile:\n  - Jupiter\n"))
		require.NoError(t, err)
		assert.Equal(t, Queries{Web: []string{"Mars", "Venus"}, Mobile: []string{"Jupiter"}}, q)
	})

	t.Run("MissingSectionKeepsDefault", func(t *testing.T) {
		q, err := LoadQueries(write(t, "web: [Mars]\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"Mars"}, q.Web)
		assert.Equal(t, DefaultQueries().Mobile, q.Mobile)
	})

	t.Run("BlankQuery", func(t *testing.T) {
		_, err := LoadQueries(write(t, "mobile: [Physics, '  ']\n"))
		assert.ErrorContains(t, err, "blank query")
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := LoadQueries(write(t, "web: {nope"))
		assert.ErrorContains(t, err, "parse queries file")
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := LoadQueries(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestExpect(t *testing.T) {
	assert.NoError(t, expect(true, "unused"))
	err := expect(false, "got %d results", 0)
	assert.ErrorIs(t, err, ErrExpectation)
	assert.EqualError(t, err, "expectation failed: got 0 results")

	first := expect(false, "first")
	assert.Equal(t, first, all(nil, first, expect(false, "second")))
	assert.NoError(t, all(nil, nil))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "search_queries_World_War_II", sanitize("search_queries/World War II"))
	assert.Equal(t, "a-b.c_d", sanitize("a-b.c_d"))
	assert.Equal(t, "caf_", sanitize("café"))
}
