package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MiniChat/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSession() *session.Session {
	start := time.Date(2024, 3, 9, 14, 30, 0, 123456789, time.Local)
	s := session.New("You are helpful.", "gemini", "gemini-1.5-flash", start)
	s.Turns = []session.Turn{
		{Role: session.RoleUser, Text: "Hello", Timestamp: start.Add(time.Second)},
		{Role: session.RoleAssistant, Text: "Hi! ¿Qué tal? 👋", Timestamp: start.Add(2 * time.Second)},
		{Role: session.RoleUser, Text: "multi\nline", Timestamp: start.Add(3 * time.Second)},
	}
	return s
}

func assertSameSession(t *testing.T, want, got *session.Session) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	fs := NewFileStore(t.TempDir(), discardLogger())
	fs.now = func() time.Time { return time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC) }
	want := sampleSession()

	path, err := fs.Save(context.Background(), want)
	require.NoError(t, err)
	assert.Equal(t, "chatbot_conversation_20240309_150405.json", filepath.Base(path))

	got, err := fs.Load(context.Background(), path)
	require.NoError(t, err)
	assertSameSession(t, want, got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")
}

func TestFileStoreEmptySession(t *testing.T) {
	fs := NewFileStore(t.TempDir(), discardLogger())
	want := session.New("sys", "ollama", "llama3:latest", time.Now())

	path, err := fs.Save(context.Background(), want)
	require.NoError(t, err)

	got, err := fs.Load(context.Background(), path)
	require.NoError(t, err)
	assertSameSession(t, want, got)
}

func TestFileStoreLoadMissing(t *testing.T) {
	fs := NewFileStore(t.TempDir(), discardLogger())
	_, err := fs.Load(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `{"version":1,"id":"s","turns":[`},
		{"bad version", `{"version":9,"id":"s","turn_count":0,"turns":[]}`},
		{"count mismatch", `{"version":1,"id":"s","turn_count":2,"turns":[{"role":"user","text":"hi"}]}`},
		{"bad role", `{"version":1,"id":"s","turn_count":1,"turns":[{"role":"robot","text":"hi"}]}`},
		{"missing id", `{"version":1,"turn_count":0,"turns":[]}`},
	}

	dir := t.TempDir()
	fs := NewFileStore(dir, discardLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := fs.Load(context.Background(), path)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestDecodeLegacyArray(t *testing.T) {
	data := []byte(`[
  {
    "role": "system",
    "content": "You are a helpful assistant.",
    "timestamp": "2024-03-09T14:30:00.000001"
  },
  {
    "role": "user",
    "content": "Hello",
    "timestamp": "2024-03-09T14:30:01.123456"
  },
  {
    "role": "assistant",
    "content": "Hi there",
    "timestamp": "2024-03-09T14:30:02"
  }
]`)

	s, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, s.Turns, 2)
	assert.Equal(t, "You are a helpful assistant.", s.SystemPrompt)
	assert.Equal(t, session.RoleAssistant, s.Turns[1].Role)
	assert.Equal(t, "Hi there", s.Turns[1].Text)
	assert.True(t, time.Date(2024, 3, 9, 14, 30, 1, 123456000, time.Local).Equal(s.Turns[0].Timestamp))
	assert.True(t, time.Date(2024, 3, 9, 14, 30, 2, 0, time.Local).Equal(s.Turns[1].Timestamp))
	assert.True(t, s.StartTime.Equal(s.Turns[0].Timestamp))
	assert.NotEmpty(t, s.ID)
}

func TestDecodeLegacyTimestamps(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Time
	}{
		{"zoned", "2024-03-09T14:30:01.5Z", time.Date(2024, 3, 9, 14, 30, 1, 500000000, time.UTC)},
		{"offset", "2024-03-09T14:30:01+02:00", time.Date(2024, 3, 9, 12, 30, 1, 0, time.UTC)},
		{"naive", "2024-03-09T14:30:01.000042", time.Date(2024, 3, 9, 14, 30, 1, 42000, time.Local)},
		{"empty", "", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLegacyTime(tt.value)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}

	_, err := Decode([]byte(`[{"role": "user", "content": "Hello", "timestamp": "yesterday"}]`))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSQLiteRoundTrip(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"), discardLogger())
	require.NoError(t, err)
	defer st.Close()

	want := sampleSession()
	id, err := st.Save(context.Background(), want)
	require.NoError(t, err)
	assert.Equal(t, want.ID, id)

	got, err := st.Load(context.Background(), id)
	require.NoError(t, err)
	assertSameSession(t, want, got)
}

func TestSQLiteResaveReplacesTurns(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"), discardLogger())
	require.NoError(t, err)
	defer st.Close()

	s := sampleSession()
	_, err = st.Save(context.Background(), s)
	require.NoError(t, err)

	s.Turns = s.Turns[:1]
	_, err = st.Save(context.Background(), s)
	require.NoError(t, err)

	got, err := st.Load(context.Background(), s.ID)
	require.NoError(t, err)
	assertSameSession(t, s, got)

	sessions, err := st.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].TurnCount)
	assert.Equal(t, "gemini", sessions[0].Backend)
}

func TestSQLiteLoadMissing(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"), discardLogger())
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Load(context.Background(), "session_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteLoadCorruptTimestamp(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"), discardLogger())
	require.NoError(t, err)
	defer st.Close()

	_, err = st.db.Exec("INSERT INTO sessions (id, version, start_time) VALUES ('s1', 1, 'yesterday')")
	require.NoError(t, err)

	_, err = st.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSQLiteListNewestFirst(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"), discardLogger())
	require.NoError(t, err)
	defer st.Close()

	base := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	starts := []time.Time{base, base.Add(500 * time.Millisecond), base.Add(-time.Second), base.Add(time.Second)}
	var ids []string
	for _, start := range starts {
		id, err := st.Save(context.Background(), session.New("sys", "ollama", "llama3", start))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	sessions, err := st.List(context.Background())
	require.NoError(t, err)
	var got []string
	for _, info := range sessions {
		got = append(got, info.ID)
	}
	assert.Equal(t, []string{ids[3], ids[1], ids[0], ids[2]}, got)
	assert.True(t, starts[1].Equal(sessions[1].StartTime))
}

type failingStore struct{ err error }

func (f failingStore) Save(ctx context.Context, s *session.Session) (string, error) { return "", f.err }
func (f failingStore) Load(ctx context.Context, location string) (*session.Session, error) {
	return nil, f.err
}

func TestLoadOrNew(t *testing.T) {
	fresh := func() *session.Session { return session.New("sys", "gemini", "m", time.Now()) }

	s, err := LoadOrNew(context.Background(), failingStore{}, "", fresh)
	require.NoError(t, err)
	assert.Equal(t, "sys", s.SystemPrompt)

	s, err = LoadOrNew(context.Background(), failingStore{err: ErrCorrupt}, "x.json", fresh)
	assert.True(t, errors.Is(err, ErrCorrupt))
	require.NotNil(t, s)
	assert.Empty(t, s.Turns)

	fs := NewFileStore(t.TempDir(), discardLogger())
	path, err := fs.Save(context.Background(), sampleSession())
	require.NoError(t, err)
	s, err = LoadOrNew(context.Background(), fs, path, fresh)
	require.NoError(t, err)
	assert.Len(t, s.Turns, 3)
}
