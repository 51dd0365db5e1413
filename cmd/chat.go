package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/qaml-ai/camel-go/internal/config"
	"github.com/qaml-ai/camel-go/internal/log"
	"github.com/qaml-ai/camel-go/internal/markdown"
	"github.com/qaml-ai/camel-go/internal/stream"
	"github.com/qaml-ai/camel-go/internal/thread"
	"github.com/qaml-ai/camel-go/internal/toolcall"
)

var (
	htmlOutPath string
	showTools   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&htmlOutPath, "html-out", "",
		"write the rendered conversation HTML to this file on exit")
	chatCmd.Flags().BoolVar(&showTools, "tools", false,
		"print each tool invocation of the turn before the answer")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})

	api, err := stream.NewAPIClient(stream.APIConfig{
		BaseURL:     cfg.API.BaseURL,
		Credentials: stream.StaticCredential(cfg.API.Token),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	// Glamour renders final answers for the terminal; width errors degrade
	// to plain text rather than aborting the chat.
	term, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		term = nil
	}

	out := cmd.OutOrStdout()
	turnDone := make(chan struct{}, 2)

	session, err := stream.NewSession(stream.Options{
		API:    api,
		Logger: logger,
		Thread: thread.Thread{Model: cfg.API.Model, Sources: cfg.API.Sources},
		Callback: stream.Callbacks{
			OnThreadRenamed: func(_, title string) {
				fmt.Fprintf(out, "· thread renamed: %s\n", title)
			},
			OnStatus: func(tool string, loading bool) {
				if tool != "" {
					fmt.Fprintf(out, "· %s\n", tool)
				}
			},
			OnStreamEnded: func() { turnDone <- struct{}{} },
			OnRetry:       func(stream.RetryDescriptor) { turnDone <- struct{}{} },
		},
	})
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Fprintln(out, "camel chat - type a question, /quit to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		// A failed send signals turnDone synchronously via OnRetry; any
		// leftover signal from such a turn must not satisfy this one's wait.
		drainTurnSignals(turnDone)

		if err := session.Send(cmd.Context(), line, cfg.API.Autograph); err != nil {
			printRetry(out, session)
			continue
		}
		<-turnDone

		if desc := session.RetryState(); desc != nil {
			printRetry(out, session)
			continue
		}
		groups := session.Groups()
		if showTools {
			printToolSteps(out, groups)
		}
		printAnswer(out, term, groups)
	}

	if htmlOutPath != "" {
		if err := writeConversationHTML(htmlOutPath, session.Transcript()); err != nil {
			logger.Warn("write conversation HTML", "error", err)
		}
	}
	return scanner.Err()
}

// drainTurnSignals discards turn-completion signals left over from earlier
// turns that failed before streaming began.
func drainTurnSignals(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func printRetry(out io.Writer, session *stream.Session) {
	if desc := session.RetryState(); desc != nil {
		fmt.Fprintf(out, "! %s (retry with the same input to resubmit)\n", desc.ErrorMessage)
	}
}

// printToolSteps summarizes the tool invocations of the last assistant group.
func printToolSteps(out io.Writer, groups []thread.DisplayGroup) {
	if len(groups) == 0 {
		return
	}
	g := groups[len(groups)-1]
	if g.Role != thread.RoleAssistant {
		return
	}
	for _, m := range g.ToolMessages {
		for _, part := range m.Parts {
			if part.Kind != thread.PartToolUse {
				continue
			}
			fmt.Fprintf(out, "  %s\n", toolSummary(toolcall.Normalize(part.Name, part.Input)))
		}
	}
}

func toolSummary(in toolcall.Input) string {
	switch in.Name {
	case toolcall.NameRunQuery:
		return "run_query: " + firstLine(in.Query)
	case toolcall.NameRunPython:
		return "run_python: " + firstLine(in.Code)
	case toolcall.NameCreateChart:
		return "create_chart: " + in.Title
	case toolcall.NameSearch:
		return "search: " + strings.Join(in.Queries, ", ")
	case toolcall.NameThink:
		return "think: " + firstLine(in.Thought)
	default:
		return in.Name + ": " + firstLine(string(in.Raw))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " …"
	}
	return s
}

// printAnswer renders the final message of the last assistant group.
func printAnswer(out io.Writer, term *glamour.TermRenderer, groups []thread.DisplayGroup) {
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		if g.Role != thread.RoleAssistant || g.Final == nil {
			continue
		}
		text := g.Final.PlainText()
		if term != nil {
			if rendered, err := term.Render(text); err == nil {
				fmt.Fprint(out, rendered)
				return
			}
		}
		fmt.Fprintln(out, text)
		return
	}
}

// writeConversationHTML renders every assistant message through the HTML
// pipeline and writes one fragment per message.
func writeConversationHTML(path string, transcript []thread.Message) error {
	renderer := markdown.NewRenderer(markdown.NewRevealBus(0))

	artifacts := make(map[int]thread.Artifact)
	for _, m := range transcript {
		for _, a := range m.Artifacts {
			artifacts[a.ID] = a
		}
	}

	var b strings.Builder
	b.WriteString("<article class=\"conversation\">\n")
	for _, g := range thread.Groups(transcript) {
		if g.Role != thread.RoleAssistant || g.Final == nil {
			continue
		}
		fragment, err := renderer.Render(g.Final.PlainText(), artifacts)
		if err != nil {
			return fmt.Errorf("render message %s: %w", g.Final.ID, err)
		}
		b.WriteString("<section>" + fragment + "</section>\n")
	}
	b.WriteString("</article>\n")

	return os.WriteFile(path, []byte(b.String()), 0o644)
}
