package shell

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"storyloom/internal/logger"
	"storyloom/pkg/storytypes"
)

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "39"})
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "76"})
	pendingStyle    = lipgloss.NewStyle().Faint(true).Italic(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "124", Dark: "203"})
	suggestionStyle = lipgloss.NewStyle().Faint(true)
)

// TermSink renders story events to a terminal. Model turns go through a
// glamour markdown renderer; save-state changes are kept for \status
// instead of being printed, since they arrive from a timer goroutine
// and would tear the prompt.
type TermSink struct {
	out      io.Writer
	markdown *glamour.TermRenderer

	mu          sync.Mutex
	saveState   storytypes.SaveState
	suggestions []string
}

// NewTermSink builds a sink writing to out. A failed markdown renderer
// is not fatal; model turns fall back to plain text.
func NewTermSink(out io.Writer) *TermSink {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		logger.Warn("markdown renderer unavailable, using plain text", "error", err)
		renderer = nil
	}
	return &TermSink{out: out, markdown: renderer}
}

// TranscriptCleared prints a titled divider. The scrollback stays; a
// terminal transcript is replaced by reading on, not by erasing.
func (t *TermSink) TranscriptCleared(title string) {
	t.mu.Lock()
	t.suggestions = nil
	t.mu.Unlock()
	fmt.Fprintf(t.out, "\n%s\n\n", headerStyle.Render("── "+title+" ──"))
}

// TurnRendered prints one turn. Suggestions on a model turn replace the
// ones remembered for number picking; a model turn without suggestions
// clears them.
func (t *TermSink) TurnRendered(turn storytypes.Turn, suggestions []string) {
	switch turn.Role {
	case storytypes.RoleUser:
		fmt.Fprintf(t.out, "%s %s\n\n", userStyle.Render("You ❯"), turn.Text)
	default:
		t.printModelText(turn.Text)
	}

	if turn.Role == storytypes.RoleModel {
		t.mu.Lock()
		t.suggestions = append([]string(nil), suggestions...)
		t.mu.Unlock()
	}
	if len(suggestions) > 0 {
		fmt.Fprintln(t.out, suggestionStyle.Render("Where to next?"))
		for i, suggestion := range suggestions {
			fmt.Fprintln(t.out, suggestionStyle.Render(fmt.Sprintf("  %d. %s", i+1, suggestion)))
		}
		fmt.Fprintln(t.out)
	}
}

// PendingShown marks the wait for a reply.
func (t *TermSink) PendingShown() {
	fmt.Fprintln(t.out, pendingStyle.Render("… writing"))
}

// PendingCleared is a no-op; the reply or error that follows supersedes
// the marker in the scrollback.
func (t *TermSink) PendingCleared() {}

// ErrorShown prints a failure line in place of a reply.
func (t *TermSink) ErrorShown(message string) {
	fmt.Fprintln(t.out, errorStyle.Render("✗ "+message))
}

// SaveStateChanged records the autosave badge for \status.
func (t *TermSink) SaveStateChanged(state storytypes.SaveState) {
	t.mu.Lock()
	t.saveState = state
	t.mu.Unlock()
	logger.Debug("autosave state changed", "state", state.String())
}

// SaveState returns the current autosave badge.
func (t *TermSink) SaveState() storytypes.SaveState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveState
}

// Suggestions returns the suggestions from the latest model turn.
func (t *TermSink) Suggestions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.suggestions))
	copy(out, t.suggestions)
	return out
}

func (t *TermSink) printModelText(text string) {
	if t.markdown != nil {
		if rendered, err := t.markdown.Render(text); err == nil {
			fmt.Fprint(t.out, rendered)
			return
		}
	}
	fmt.Fprintf(t.out, "%s\n\n", text)
}
