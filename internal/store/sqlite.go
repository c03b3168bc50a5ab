package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"MiniChat/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	start_time TEXT NOT NULL,
	backend TEXT,
	model TEXT,
	system_prompt TEXT
);
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	FOREIGN KEY(session_id) REFERENCES sessions(id),
	UNIQUE(session_id, seq)
);`

// SQLiteStore keeps sessions in a SQLite database. The location of a saved
// session is its ID.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens or creates the database at path
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database
func (st *SQLiteStore) Close() error {
	return st.db.Close()
}

// Save replaces any stored copy of s in a single transaction
func (st *SQLiteStore) Save(ctx context.Context, s *session.Session) (string, error) {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO sessions (id, version, start_time, backend, model, system_prompt) VALUES (?, ?, ?, ?, ?, ?)",
		s.ID, FormatVersion, formatTime(s.StartTime), s.Backend, s.Model, s.SystemPrompt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", s.ID); err != nil {
		return "", fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (session_id, seq, role, content, timestamp) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return "", fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for i, turn := range s.Turns {
		if _, err := stmt.ExecContext(ctx, s.ID, i, string(turn.Role), turn.Text, formatTime(turn.Timestamp)); err != nil {
			return "", fmt.Errorf("failed to save message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	st.logger.Info("session saved", "session_id", s.ID, "turn_count", len(s.Turns))
	return s.ID, nil
}

// Load reads the session with the given ID
func (st *SQLiteStore) Load(ctx context.Context, id string) (*session.Session, error) {
	var (
		version   int
		startTime string
		backend   sql.NullString
		model     sql.NullString
		prompt    sql.NullString
	)
	err := st.db.QueryRowContext(ctx,
		"SELECT version, start_time, backend, model, system_prompt FROM sessions WHERE id = ?", id).
		Scan(&version, &startTime, &backend, &model, &prompt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if version < 1 || version > FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, version)
	}

	s := &session.Session{
		ID:           id,
		SystemPrompt: prompt.String,
		Model:        model.String,
		Backend:      backend.String,
		Turns:        []session.Turn{},
	}
	if s.StartTime, err = parseTime(startTime); err != nil {
		return nil, err
	}

	rows, err := st.db.QueryContext(ctx,
		"SELECT role, content, timestamp FROM messages WHERE session_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role, content, timestamp string
		if err := rows.Scan(&role, &content, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		ts, err := parseTime(timestamp)
		if err != nil {
			return nil, err
		}
		s.Turns = append(s.Turns, session.Turn{Role: session.Role(role), Text: content, Timestamp: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	if err := validate(s); err != nil {
		return nil, err
	}

	st.logger.Info("loaded existing session", "session_id", id, "turn_count", len(s.Turns))
	return s, nil
}

// SessionInfo describes a stored session
type SessionInfo struct {
	ID        string
	StartTime time.Time
	Backend   string
	TurnCount int
}

// List returns the stored sessions, newest first
func (st *SQLiteStore) List(ctx context.Context) ([]SessionInfo, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT s.id, s.start_time, COALESCE(s.backend, ''), COUNT(m.id)
		FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var startTime string
		if err := rows.Scan(&info.ID, &startTime, &info.Backend, &info.TurnCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if info.StartTime, err = parseTime(startTime); err != nil {
			return nil, err
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// timeLayout is fixed width so that text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrCorrupt, value)
	}
	return t, nil
}
