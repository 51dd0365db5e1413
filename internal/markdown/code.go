package markdown

import (
	"html"
	"io"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// codeBlockRenderer replaces goldmark's default fenced-code rendering with
// a header-wrapped block: language label, copy control, and chroma
// class-based highlighting.
type codeBlockRenderer struct{}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCode)
}

func (r *codeBlockRenderer) renderFencedCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	lang := string(n.Language(source))
	if lang == "" {
		lang = "plaintext"
	}

	var code []byte
	for i := 0; i < n.Lines().Len(); i++ {
		line := n.Lines().At(i)
		code = append(code, line.Value(source)...)
	}

	langLabel := html.EscapeString(lang)
	_, _ = w.WriteString(`<div class="code-block" data-lang="` + langLabel + `">`)
	_, _ = w.WriteString(`<div class="code-header"><span class="code-lang">` + langLabel +
		`</span><button class="code-copy" data-copy="true">Copy</button></div>`)

	if err := highlight(w, string(code), lang); err != nil {
		// Highlighting never blocks rendering; fall back to escaped text.
		_, _ = w.WriteString(`<pre class="chroma"><code>` + html.EscapeString(string(code)) + `</code></pre>`)
	}

	_, _ = w.WriteString(`</div>`)
	return ast.WalkContinue, nil
}

// highlight writes code as chroma-highlighted HTML using class-based
// styling, so the output stays compatible with the sanitation policy.
func highlight(w io.Writer, code, lang string) error {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return err
	}

	formatter := chromahtml.New(chromahtml.WithClasses(true))
	return formatter.Format(w, styles.Get("github"), iterator)
}
