package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"MiniChat/internal/session"
)

// FileStore keeps one JSON document per saved session
type FileStore struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// NewFileStore creates a store writing under dir
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	return &FileStore{dir: dir, now: time.Now, logger: logger}
}

// FileName returns the name a session saved at t is written to
func FileName(t time.Time) string {
	return fmt.Sprintf("chatbot_conversation_%s.json", t.Format("20060102_150405"))
}

// Save writes s to a timestamped file under the store directory
func (fs *FileStore) Save(ctx context.Context, s *session.Session) (string, error) {
	if err := os.MkdirAll(fs.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	path := filepath.Join(fs.dir, FileName(fs.now()))
	if err := fs.SaveAs(ctx, s, path); err != nil {
		return "", err
	}
	return path, nil
}

// SaveAs writes s to path. The file is written to a temporary path in the
// same directory, fsynced and renamed into place, so readers never see a
// partial write.
func (fs *FileStore) SaveAs(ctx context.Context, s *session.Session, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(s)
	if err != nil {
		return err
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("failed to write temporary session file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("failed to sync temporary session file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("failed to close temporary session file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("failed to rename session file into place: %w", err)
	}

	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		dir.Sync()
		dir.Close()
	}

	fs.logger.Info("session saved", "session_id", s.ID, "path", path, "turn_count", len(s.Turns))
	return nil
}

// Load reads the session file at path
func (fs *FileStore) Load(ctx context.Context, path string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	s, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	fs.logger.Info("loaded existing session", "session_id", s.ID, "path", path, "turn_count", len(s.Turns))
	return s, nil
}
