package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dnjord/glasir-login/internal/log"
	"github.com/dnjord/glasir-login/internal/session"
)

var _ Store = (*FileStore)(nil)

const sessionFileName = "session_data.json"

// FileStore persists one session_data.json per profile directory under the
// data dir. This matches the on-disk layout consumed by the schedule
// exporter and other collaborators.
type FileStore struct {
	dir    string // profiles directory, e.g. data/profiles
	logger *log.Logger
}

// NewFileStore creates a file-backed store rooted at dir, creating it if
// needed.
func NewFileStore(dir string, logger *log.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating profiles dir: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (s *FileStore) path(profile string) string {
	return filepath.Join(s.dir, profile, sessionFileName)
}

func (s *FileStore) Get(ctx context.Context, profile string) (*session.Record, error) {
	data, err := os.ReadFile(s.path(profile))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session data: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing session data: %w", err)
	}
	return &rec, nil
}

func (s *FileStore) Put(ctx context.Context, profile string, rec *session.Record) error {
	dir := filepath.Dir(s.path(profile))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating profile dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session data: %w", err)
	}

	// Write to a temp file and rename so a crash never leaves a torn record.
	tmp, err := os.CreateTemp(dir, sessionFileName+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing session data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("restricting session file permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(profile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing session data: %w", err)
	}

	s.logger.Debug("session record written", "profile", profile, "path", s.path(profile))
	return nil
}

func (s *FileStore) Delete(ctx context.Context, profile string) error {
	err := os.Remove(s.path(profile))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting session data: %w", err)
	}
	s.logger.Info("session record deleted", "profile", profile)
	return nil
}

func (s *FileStore) Profiles(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing profiles dir: %w", err)
	}

	var profiles []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(s.path(entry.Name())); err == nil {
			profiles = append(profiles, entry.Name())
		}
	}
	return profiles, nil
}

func (s *FileStore) Close() error { return nil }
