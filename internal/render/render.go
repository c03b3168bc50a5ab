// Package render formats chat output for the terminal.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"MiniChat/internal/session"
)

const defaultWidth = 80

// Renderer writes chat output. In plain mode it writes unstyled text, which
// is what pipes and tests get.
type Renderer struct {
	out      io.Writer
	plain    bool
	markdown *glamour.TermRenderer

	user      lipgloss.Style
	assistant lipgloss.Style
	info      lipgloss.Style
	success   lipgloss.Style
	failure   lipgloss.Style
	title     lipgloss.Style
}

// New creates a Renderer. Markdown rendering is skipped if glamour cannot be
// initialized.
func New(out io.Writer, plain bool, width int) *Renderer {
	r := &Renderer{out: out, plain: plain}
	if plain {
		return r
	}
	if width <= 0 {
		width = defaultWidth
	}

	r.user = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	r.assistant = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	r.info = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	r.success = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	r.failure = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	r.title = lipgloss.NewStyle().Bold(true).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("205")).
		Padding(0, 2)

	r.markdown, _ = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	return r
}

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of f, or 0 if it is not a terminal
func TerminalWidth(f *os.File) int {
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.plain {
		return text
	}
	return s.Render(text)
}

// Welcome prints the banner shown at startup
func (r *Renderer) Welcome(s *session.Session) {
	fmt.Fprintln(r.out, r.style(r.title, "Welcome to MiniChat!"))
	fmt.Fprintln(r.out, r.style(r.info, fmt.Sprintf("Session: %s", s.ID)))
	fmt.Fprintln(r.out, r.style(r.info, fmt.Sprintf("Backend: %s (%s)", s.Backend, s.Model)))
	if n := len(s.Turns); n > 0 {
		fmt.Fprintln(r.out, r.style(r.info, fmt.Sprintf("Restored %d messages", n)))
	}
	fmt.Fprintln(r.out, r.style(r.info, "Type 'help' for commands, 'quit' or 'exit' to leave"))
	fmt.Fprintln(r.out)
}

// Prompt prints the input prompt
func (r *Renderer) Prompt() {
	fmt.Fprint(r.out, r.style(r.user, "You: "))
}

// Assistant prints a model reply. Markdown is rendered when available.
func (r *Renderer) Assistant(text string) {
	body := text
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(text); err == nil {
			body = strings.Trim(rendered, "\n")
		}
	}
	fmt.Fprintf(r.out, "%s %s\n\n", r.style(r.assistant, "Bot:"), body)
}

// Info prints a neutral status line
func (r *Renderer) Info(msg string) {
	fmt.Fprintln(r.out, r.style(r.info, msg))
}

// Success prints a confirmation line
func (r *Renderer) Success(msg string) {
	fmt.Fprintln(r.out, r.style(r.success, msg))
}

// Error prints a failure line
func (r *Renderer) Error(msg string) {
	fmt.Fprintln(r.out, r.style(r.failure, "Error: ")+msg)
}

// Help prints the command reference
func (r *Renderer) Help(text string) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, text)
	fmt.Fprintln(r.out)
}

// Summary prints conversation statistics
func (r *Renderer) Summary(s session.Summary) {
	r.Info(SummaryText(s))
}

// SummaryText formats conversation statistics
func SummaryText(s session.Summary) string {
	if s.TurnCount == 0 {
		return "No conversation yet."
	}
	return fmt.Sprintf("Conversation stats: %d user messages, %d AI responses (%d turns, ~%d characters, %s)",
		s.UserTurns, s.AssistantTurns, s.TurnCount, s.EstimatedSize, s.Elapsed.Round(time.Second))
}
