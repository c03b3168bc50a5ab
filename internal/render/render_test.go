package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"MiniChat/internal/session"
)

func TestPlainOutputHasNoEscapes(t *testing.T) {
	var out bytes.Buffer
	r := New(&out, true, 0)

	r.Prompt()
	r.Assistant("**bold** reply")
	r.Error("boom")
	r.Success("saved")

	assert.Equal(t, "You: Bot: **bold** reply\n\nError: boom\nsaved\n", out.String())
	assert.NotContains(t, out.String(), "\x1b[")
}

func TestWelcomeShowsSession(t *testing.T) {
	var out bytes.Buffer
	s := session.New("sys", "gemini", "gemini-1.5-flash", time.Now())
	s.Turns = append(s.Turns, session.Turn{Role: session.RoleUser, Text: "hi"})

	New(&out, true, 0).Welcome(s)

	assert.Contains(t, out.String(), s.ID)
	assert.Contains(t, out.String(), "Backend: gemini (gemini-1.5-flash)")
	assert.Contains(t, out.String(), "Restored 1 messages")
}

func TestSummaryText(t *testing.T) {
	assert.Equal(t, "No conversation yet.", SummaryText(session.Summary{}))

	text := SummaryText(session.Summary{
		TurnCount:      3,
		UserTurns:      2,
		AssistantTurns: 1,
		Elapsed:        90*time.Second + 300*time.Millisecond,
		EstimatedSize:  42,
	})
	assert.Equal(t, "Conversation stats: 2 user messages, 1 AI responses (3 turns, ~42 characters, 1m30s)", text)
}

func TestStyledAssistantRendersMarkdown(t *testing.T) {
	var out bytes.Buffer
	New(&out, false, 60).Assistant("# Title\n\nSome *text*")

	assert.Contains(t, out.String(), "Bot:")
	assert.Contains(t, out.String(), "Title")
	assert.Contains(t, out.String(), "text")
}
