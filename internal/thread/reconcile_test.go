package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	t.Run("appends unknown id", func(t *testing.T) {
		transcript := []Message{{ID: "a", Role: RoleUser, Text: "hi"}}

		got := Merge(transcript, Message{ID: "b", Role: RoleAssistant, Text: "hello"})

		require.Len(t, got, 2)
		assert.Equal(t, "a", got[0].ID)
		assert.Equal(t, "b", got[1].ID)
	})

	t.Run("replaces existing id in place", func(t *testing.T) {
		transcript := []Message{
			{ID: "a", Role: RoleUser, Text: "hi"},
			{ID: "b", Role: RoleAssistant, Text: "partial"},
			{ID: "c", Role: RoleUser, Text: "next"},
		}

		got := Merge(transcript, Message{ID: "b", Role: RoleAssistant, Text: "complete"})

		require.Len(t, got, 3)
		assert.Equal(t, "b", got[1].ID)
		assert.Equal(t, "complete", got[1].Text)
		assert.Equal(t, "a", got[0].ID)
		assert.Equal(t, "c", got[2].ID)
	})

	t.Run("idempotent under re-delivery", func(t *testing.T) {
		transcript := []Message{{ID: "a", Role: RoleUser, Text: "hi"}}
		update := Message{ID: "b", Role: RoleAssistant, Text: "hello"}

		once := Merge(transcript, update)
		twice := Merge(once, update)

		assert.Equal(t, once, twice)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		transcript := []Message{{ID: "a", Text: "original"}}

		_ = Merge(transcript, Message{ID: "a", Text: "changed"})

		assert.Equal(t, "original", transcript[0].Text)
	})

	t.Run("appends to empty transcript", func(t *testing.T) {
		got := Merge(nil, Message{ID: "a"})
		require.Len(t, got, 1)
	})
}
