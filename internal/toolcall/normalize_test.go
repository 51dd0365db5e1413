package toolcall

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Run("search wraps bare string query", func(t *testing.T) {
		got := Normalize(NameSearch, []byte(`{"query": "revenue"}`))

		assert.True(t, got.Known)
		assert.Equal(t, []string{"revenue"}, got.Queries)
		assert.Empty(t, got.Query)
	})

	t.Run("search keeps list query", func(t *testing.T) {
		got := Normalize(NameSearch, []byte(`{"query": ["revenue", "costs"]}`))
		assert.Equal(t, []string{"revenue", "costs"}, got.Queries)
	})

	t.Run("search defaults to empty list", func(t *testing.T) {
		tests := []string{`{}`, `{"query": 7}`, `{"query": null}`}
		for _, raw := range tests {
			got := Normalize(NameSearch, []byte(raw))
			assert.NotNil(t, got.Queries, "payload %s", raw)
			assert.Empty(t, got.Queries, "payload %s", raw)
		}
	})

	t.Run("run_query preserves string query", func(t *testing.T) {
		got := Normalize(NameRunQuery, []byte(`{"query": "SELECT 1", "title": "probe"}`))

		assert.True(t, got.Known)
		assert.Equal(t, "SELECT 1", got.Query)
		assert.Equal(t, "probe", got.Title)
		assert.Nil(t, got.Queries)
	})

	t.Run("missing fields default to empty strings", func(t *testing.T) {
		got := Normalize(NameCreateChart, []byte(`{}`))

		assert.Empty(t, got.Query)
		assert.Empty(t, got.Title)
		assert.Empty(t, got.Thought)
		assert.Empty(t, got.Code)
		assert.Empty(t, got.ChartCode)
		assert.Empty(t, got.Description)
	})

	t.Run("think extracts thought", func(t *testing.T) {
		got := Normalize(NameThink, []byte(`{"thought": "step one"}`))
		assert.Equal(t, "step one", got.Thought)
	})

	t.Run("unknown tool passes through with defaults", func(t *testing.T) {
		raw := []byte(`{"custom_field": true, "code": "print(1)"}`)
		got := Normalize("frobnicate", raw)

		assert.False(t, got.Known)
		assert.Equal(t, "frobnicate", got.Name)
		assert.Equal(t, "print(1)", got.Code)
		assert.Equal(t, raw, got.Raw)
	})

	t.Run("non-string scalars coerce to strings", func(t *testing.T) {
		got := Normalize(NameRunQuery, []byte(`{"query": 42}`))
		assert.Equal(t, "42", got.Query)
	})
}
