package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

const (
	colorOK    = "#22c55e"
	colorFail  = "#f43f5e"
	colorMuted = "#a78bfa"
)

// Renderer prints loop results. In pretty mode answers are rendered as
// Markdown and status lines are colored.
type Renderer struct {
	out      *termenv.Output
	markdown *glamour.TermRenderer
}

// NewRenderer creates a renderer writing to w. Pass pretty only when w is a terminal.
func NewRenderer(w io.Writer, pretty bool) (*Renderer, error) {
	if !pretty {
		return &Renderer{out: termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii))}, nil
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &Renderer{out: termenv.NewOutput(w), markdown: md}, nil
}

// Result writes the answer followed by a one-line status.
func (r *Renderer) Result(res *domain.LoopResult) error {
	answer := res.Answer
	if r.markdown != nil && answer != "" {
		rendered, err := r.markdown.Render(answer)
		if err != nil {
			return err
		}
		answer = rendered
	}
	if answer != "" {
		fmt.Fprintln(r.out, strings.TrimRight(answer, "\n"))
	}
	fmt.Fprintln(r.out, r.status(res))
	return nil
}

func (r *Renderer) status(res *domain.LoopResult) string {
	rounds := fmt.Sprintf("%d round", res.IterationsUsed)
	if res.IterationsUsed != 1 {
		rounds += "s"
	}
	if res.Success {
		line := fmt.Sprintf("✔ %s answer after %s (shape %s)", res.AnswerKind, rounds, res.Table.Shape())
		return r.out.String(line).Foreground(r.out.Color(colorOK)).String()
	}
	line := fmt.Sprintf("✘ %s after %s", res.Reason, rounds)
	if res.Error != "" {
		line += ": " + res.Error
	}
	return r.out.String(line).Foreground(r.out.Color(colorFail)).String()
}

// Trace writes one line per recorded round.
func (r *Renderer) Trace(res *domain.LoopResult) {
	for _, e := range res.Trace {
		mark := "✔"
		if !e.Succeeded {
			mark = "✘"
		}
		head := r.out.String(fmt.Sprintf("[%d] %s %s", e.Round, mark, e.Action)).Foreground(r.out.Color(colorMuted))
		fmt.Fprintf(r.out, "%s %s\n", head, firstLine(e.Content))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
