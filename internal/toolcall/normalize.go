// Package toolcall normalizes raw tool-invocation payloads into the shape
// the per-tool renderers expect. The assistant is free to omit fields or
// send loosely-typed values, so every accessor here is tolerant: missing
// fields coerce to zero values instead of failing the render.
package toolcall

import "github.com/tidwall/gjson"

// Tool names the client renders with dedicated views. Anything else falls
// back to the generic raw-JSON rendering.
const (
	NameRunQuery    = "run_query"
	NameRunPython   = "run_python"
	NameCreateChart = "create_chart"
	NameSearch      = "search"
	NameThink       = "think"
)

var knownTools = map[string]struct{}{
	NameRunQuery:    {},
	NameRunPython:   {},
	NameCreateChart: {},
	NameSearch:      {},
	NameThink:       {},
}

// Input is a render-ready tool invocation. Query holds the scalar query for
// every tool except search, whose query field is always a list. Raw retains
// the original payload for the generic fallback view.
type Input struct {
	Name        string
	Known       bool
	Query       string
	Queries     []string
	Title       string
	Thought     string
	Code        string
	ChartCode   string
	Description string
	Raw         []byte
}

// Normalize converts a raw tool-invocation payload into an Input. Unknown
// tool names pass through with defaults applied; the caller renders them
// generically from Raw. This fallback is deliberate, not an error.
func Normalize(name string, input []byte) Input {
	out := Input{
		Name:        name,
		Raw:         input,
		Query:       fieldString(input, "query"),
		Title:       fieldString(input, "title"),
		Thought:     fieldString(input, "thought"),
		Code:        fieldString(input, "code"),
		ChartCode:   fieldString(input, "chart_code"),
		Description: fieldString(input, "description"),
	}
	_, out.Known = knownTools[name]

	if name == NameSearch {
		// Search renders a list of query terms: a bare string wraps into a
		// one-element list, anything else defaults to an empty list.
		out.Query = ""
		out.Queries = fieldStringList(input, "query")
	}

	return out
}

func fieldString(input []byte, field string) string {
	v := gjson.GetBytes(input, field)
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	return v.String()
}

func fieldStringList(input []byte, field string) []string {
	v := gjson.GetBytes(input, field)
	switch {
	case v.Type == gjson.String:
		return []string{v.Str}
	case v.IsArray():
		items := v.Array()
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item.String())
		}
		return out
	default:
		return []string{}
	}
}
