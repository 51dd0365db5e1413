// Package markdown converts assistant-authored markdown into a sanitized
// HTML fragment ready for the chat surface. On top of the plain conversion
// it rewrites artifact links into interactive chips, wraps tables for
// horizontal scrolling, highlights fenced code, and emits one-time
// auto-reveal signals through an injected RevealBus.
package markdown

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"

	"github.com/qaml-ai/camel-go/internal/thread"
)

// Renderer is the markdown-to-HTML pipeline for one rendering surface.
// Safe for repeated use; the only cross-call state lives in the RevealBus.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	bus    *RevealBus
}

// NewRenderer creates a renderer that reports artifact reveals on bus.
func NewRenderer(bus *RevealBus) *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(
				util.Prioritized(&codeBlockRenderer{}, 100),
			),
		),
	)
	return &Renderer{
		md:     md,
		policy: sanitizePolicy(),
		bus:    bus,
	}
}

// Render converts markdown text into a sanitized HTML fragment, rewriting
// every artifact link into a chip built from the artifact map. The first
// time a given artifact id is seen on this renderer's bus — across all
// Render calls, including re-renders of the same growing message — an
// auto-reveal signal is scheduled; later encounters are silent.
//
// Empty input yields an empty fragment and no error.
func (r *Renderer) Render(text string, artifacts map[int]thread.Artifact) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(normalizeMath(text)), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}

	sanitized := r.policy.SanitizeBytes(buf.Bytes())
	return r.postprocess(sanitized, artifacts)
}

// normalizeMath rewrites bracket-delimited math escapes to the
// dollar-delimited form the downstream math engine expects.
func normalizeMath(text string) string {
	return strings.NewReplacer(
		`\[`, "$$",
		`\]`, "$$",
		`\(`, "$",
		`\)`, "$",
	).Replace(text)
}

// sanitizePolicy allows the markup the pipeline itself produces (code
// headers, copy controls, chroma classes, tables) on top of the standard
// user-generated-content rules.
func sanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowTables()
	// Artifact links arrive as site-relative hrefs ("/artifacts/42").
	p.AllowRelativeURLs(true)
	p.AllowDataAttributes()
	p.AllowElements("button")
	p.AllowAttrs("class").OnElements("div", "span", "p", "pre", "code", "button", "table")
	return p
}

// artifactIDPattern extracts the first decimal run from an anchor href.
var artifactIDPattern = regexp.MustCompile(`\d+`)

// postprocess applies the structural rewrites over the sanitized fragment:
// scroll containers around tables, artifact chips in place of artifact
// anchors, and removal of paragraphs those rewrites left empty.
func (r *Renderer) postprocess(fragment []byte, artifacts map[int]thread.Artifact) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse rendered fragment: %w", err)
	}

	doc.Find("table").Each(func(_ int, s *goquery.Selection) {
		s.WrapHtml(`<div class="table-scroll"></div>`)
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		run := artifactIDPattern.FindString(href)
		if run == "" {
			return
		}
		id, err := strconv.Atoi(run)
		if err != nil {
			return
		}

		// A line break directly after the link would leave a stray gap once
		// the inline chip replaces the anchor.
		if next := s.Next(); goquery.NodeName(next) == "br" {
			next.Remove()
		}
		s.ReplaceWithHtml(artifactChip(id, artifacts[id]))
		r.bus.reveal(id)
	})

	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() == 0 && strings.TrimSpace(s.Text()) == "" {
			s.Remove()
		}
	})

	return doc.Find("body").Html()
}

// artifactChip builds the inline control that replaces an artifact anchor.
// The zero-value artifact covers links to ids the server has not described
// yet; the chip still opens the artifact pane.
func artifactChip(id int, a thread.Artifact) string {
	icon := "artifact-icon-table"
	if a.IsChart {
		icon = "artifact-icon-chart"
	}
	title := a.Title
	if title == "" {
		title = fmt.Sprintf("Artifact %d", id)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<button class="artifact-chip" data-artifact-id="%d">`, id)
	fmt.Fprintf(&b, `<span class="artifact-icon %s"></span>`, icon)
	fmt.Fprintf(&b, `<span class="artifact-title">%s</span>`, html.EscapeString(title))
	if a.Description != "" {
		fmt.Fprintf(&b, `<span class="artifact-desc">%s</span>`, html.EscapeString(a.Description))
	}
	b.WriteString(`</button>`)
	return b.String()
}
