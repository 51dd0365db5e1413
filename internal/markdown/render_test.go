package markdown

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaml-ai/camel-go/internal/thread"
)

func drainSignals(bus *RevealBus) []int {
	var ids []int
	for {
		select {
		case id := <-bus.Signals():
			ids = append(ids, id)
		default:
			return ids
		}
	}
}

func TestRenderEmptyInput(t *testing.T) {
	r := NewRenderer(NewRevealBus(0))

	for _, in := range []string{"", "   ", "\n\t"} {
		out, err := r.Render(in, nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	}
}

func TestRenderArtifactLink(t *testing.T) {
	bus := NewRevealBus(0)
	r := NewRenderer(bus)

	artifacts := map[int]thread.Artifact{
		42: {ID: 42, Title: "Q1", Description: "quarterly revenue", IsChart: true},
	}

	out, err := r.Render("See [link](/artifacts/42)", artifacts)
	require.NoError(t, err)

	assert.NotContains(t, out, "<a ", "anchor must be replaced")
	assert.Contains(t, out, "Q1")
	assert.Contains(t, out, "quarterly revenue")
	assert.Contains(t, out, `data-artifact-id="42"`)
	assert.Contains(t, out, "artifact-icon-chart")

	assert.Equal(t, []int{42}, drainSignals(bus))
}

func TestRenderArtifactLinkUnknownID(t *testing.T) {
	bus := NewRevealBus(0)
	r := NewRenderer(bus)

	out, err := r.Render("See [table](/artifacts/7)", nil)
	require.NoError(t, err)

	assert.Contains(t, out, "Artifact 7")
	assert.Contains(t, out, "artifact-icon-table")
	assert.Equal(t, []int{7}, drainSignals(bus))
}

func TestRevealFiresOncePerID(t *testing.T) {
	bus := NewRevealBus(0)
	r := NewRenderer(bus)

	// Three successive renders of the same growing message, as happens
	// while text streams in.
	for _, text := range []string{
		"See [link](/artifacts/42)",
		"See [link](/artifacts/42)\n\nMore analysis",
		"See [link](/artifacts/42)\n\nMore analysis is now complete.",
	} {
		_, err := r.Render(text, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, []int{42}, drainSignals(bus))
	assert.True(t, bus.Seen(42))
	assert.False(t, bus.Seen(43))
}

func TestRenderTableWrapped(t *testing.T) {
	r := NewRenderer(NewRevealBus(0))

	md := "| a | b |\n|---|---|\n| 1 | 2 |"
	out, err := r.Render(md, nil)
	require.NoError(t, err)

	assert.Contains(t, out, `class="table-scroll"`)
	wrapIdx := strings.Index(out, "table-scroll")
	tableIdx := strings.Index(out, "<table")
	require.GreaterOrEqual(t, tableIdx, 0)
	assert.Less(t, wrapIdx, tableIdx, "scroll container must enclose the table")
}

func TestRenderFencedCode(t *testing.T) {
	r := NewRenderer(NewRevealBus(0))

	t.Run("labeled language", func(t *testing.T) {
		out, err := r.Render("```python\nprint('hi')\n```", nil)
		require.NoError(t, err)

		assert.Contains(t, out, `class="code-lang"`)
		assert.Contains(t, out, "python")
		assert.Contains(t, out, "code-copy")
		assert.Contains(t, out, "chroma")
	})

	t.Run("missing language defaults to plaintext", func(t *testing.T) {
		out, err := r.Render("```\nplain text\n```", nil)
		require.NoError(t, err)
		assert.Contains(t, out, "plaintext")
	})
}

func TestRenderSanitizesScripts(t *testing.T) {
	r := NewRenderer(NewRevealBus(0))

	out, err := r.Render("hello <script>alert(1)</script> world", nil)
	require.NoError(t, err)

	assert.NotContains(t, out, "<script")
	assert.Contains(t, out, "hello")
}

func TestNormalizeMath(t *testing.T) {
	assert.Equal(t, "$$x^2$$", normalizeMath(`\[x^2\]`))
	assert.Equal(t, "inline $x$ math", normalizeMath(`inline \(x\) math`))
	assert.Equal(t, "no math", normalizeMath("no math"))
}

func TestPostprocessRemovesEmptyParagraphs(t *testing.T) {
	r := NewRenderer(NewRevealBus(0))

	out, err := r.postprocess([]byte("<p>  </p><p>keep</p>"), nil)
	require.NoError(t, err)

	assert.NotContains(t, out, "<p>  </p>")
	assert.Contains(t, out, "keep")
}

func TestRevealBusBufferOverflow(t *testing.T) {
	bus := NewRevealBus(2)
	r := NewRenderer(bus)

	// More unique ids than buffer capacity: extra signals drop, but every
	// id is still marked seen.
	var md strings.Builder
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&md, "[a](/artifacts/%d)\n\n", i)
	}
	_, err := r.Render(md.String(), nil)
	require.NoError(t, err)

	assert.Len(t, drainSignals(bus), 2)
	for i := 1; i <= 4; i++ {
		assert.True(t, bus.Seen(i), "id %d", i)
	}
}
