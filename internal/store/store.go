// Package store persists and restores sessions.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"MiniChat/internal/session"
)

// FormatVersion is written into every persisted session
const FormatVersion = 1

var (
	// ErrNotFound is returned by Load when nothing is stored at the location.
	ErrNotFound = errors.New("session not found")
	// ErrCorrupt is returned by Load when the stored data cannot be decoded
	// or fails validation.
	ErrCorrupt = errors.New("session data is corrupt")
)

// Store saves and loads whole sessions
type Store interface {
	// Save persists s atomically and returns where it was written.
	Save(ctx context.Context, s *session.Session) (string, error)
	// Load restores the session at location.
	Load(ctx context.Context, location string) (*session.Session, error)
}

// LoadOrNew loads the session at location. If that fails, a fresh session
// from newSession is returned together with the load error so the caller can
// report it and carry on.
func LoadOrNew(ctx context.Context, st Store, location string, newSession func() *session.Session) (*session.Session, error) {
	if location == "" {
		return newSession(), nil
	}
	s, err := st.Load(ctx, location)
	if err != nil {
		return newSession(), err
	}
	return s, nil
}

// persistedSession is the on-disk JSON document
type persistedSession struct {
	Version      int            `json:"version"`
	ID           string         `json:"id"`
	SystemPrompt string         `json:"system_prompt"`
	Model        string         `json:"model"`
	Backend      string         `json:"backend"`
	StartTime    time.Time      `json:"start_time"`
	TurnCount    int            `json:"turn_count"`
	Turns        []session.Turn `json:"turns"`
}

// legacyMessage is an entry of the bare message array written by older
// versions of the chatbot.
type legacyMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// legacyTimeLayout matches timestamps written without a zone offset; they
// are read as local time.
const legacyTimeLayout = "2006-01-02T15:04:05.999999"

func parseLegacyTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(legacyTimeLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrCorrupt, value)
	}
	return t, nil
}

// Encode serializes s as an indented JSON document
func Encode(s *session.Session) ([]byte, error) {
	doc := persistedSession{
		Version:      FormatVersion,
		ID:           s.ID,
		SystemPrompt: s.SystemPrompt,
		Model:        s.Model,
		Backend:      s.Backend,
		StartTime:    s.StartTime,
		TurnCount:    len(s.Turns),
		Turns:        s.Turns,
	}
	if doc.Turns == nil {
		doc.Turns = []session.Turn{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a document written by Encode, or a legacy message array.
// Every failure wraps ErrCorrupt.
func Decode(data []byte) (*session.Session, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return decodeLegacy(trimmed)
	}

	var doc persistedSession
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if doc.Version < 1 || doc.Version > FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, doc.Version)
	}
	if doc.TurnCount != len(doc.Turns) {
		return nil, fmt.Errorf("%w: turn count %d does not match %d turns", ErrCorrupt, doc.TurnCount, len(doc.Turns))
	}

	s := &session.Session{
		ID:           doc.ID,
		SystemPrompt: doc.SystemPrompt,
		Model:        doc.Model,
		Backend:      doc.Backend,
		StartTime:    doc.StartTime,
		Turns:        doc.Turns,
	}
	if s.Turns == nil {
		s.Turns = []session.Turn{}
	}
	if err := validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeLegacy(data []byte) (*session.Session, error) {
	var messages []legacyMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	s := &session.Session{
		ID:    session.NewID(),
		Turns: make([]session.Turn, 0, len(messages)),
	}
	for _, msg := range messages {
		role := session.Role(msg.Role)
		if role == session.RoleSystem {
			s.SystemPrompt = msg.Content
			continue
		}
		ts, err := parseLegacyTime(msg.Timestamp)
		if err != nil {
			return nil, err
		}
		s.Turns = append(s.Turns, session.Turn{Role: role, Text: msg.Content, Timestamp: ts})
	}
	if len(s.Turns) > 0 {
		s.StartTime = s.Turns[0].Timestamp
	}
	if err := validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

func validate(s *session.Session) error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing session id", ErrCorrupt)
	}
	for i, turn := range s.Turns {
		if !turn.Role.Valid() {
			return fmt.Errorf("%w: turn %d has unknown role %q", ErrCorrupt, i, turn.Role)
		}
	}
	return nil
}
