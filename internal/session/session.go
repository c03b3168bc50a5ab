package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Turn represents a single chat message. Turns are never modified after they
// are appended to a session.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session represents a chat session. The system prompt is kept apart from
// Turns so it can never be evicted or cleared.
type Session struct {
	ID           string    `json:"id"`
	SystemPrompt string    `json:"system_prompt"`
	Model        string    `json:"model"`
	Backend      string    `json:"backend"`
	StartTime    time.Time `json:"start_time"`
	Turns        []Turn    `json:"turns"`
}

// New creates an empty session with the system prompt injected
func New(systemPrompt, backend, model string, now time.Time) *Session {
	return &Session{
		ID:           NewID(),
		SystemPrompt: systemPrompt,
		Model:        model,
		Backend:      backend,
		StartTime:    now,
		Turns:        []Turn{},
	}
}

// NewID returns a fresh session identifier
func NewID() string {
	return fmt.Sprintf("session_%s", uuid.NewString())
}

// TurnCount returns the number of turns, excluding the system prompt
func (s *Session) TurnCount() int {
	return len(s.Turns)
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	c := *s
	c.Turns = make([]Turn, len(s.Turns))
	copy(c.Turns, s.Turns)
	return &c
}
