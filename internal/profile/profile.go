// Package profile manages identity profiles: the stored credentials each
// session acquisition logs in with. Profiles live next to their session data
// under the data dir, one directory per profile.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dnjord/glasir-login/internal/log"
)

const credentialsFileName = "credentials.json"

// ErrNoCredentials is returned when a profile has no stored credentials.
var ErrNoCredentials = errors.New("no credentials for profile")

// Credentials are the identity and secret used against the external identity
// provider.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Valid reports whether both fields are present.
func (c Credentials) Valid() bool {
	return c.Email != "" && c.Password != ""
}

// Manager reads and writes per-profile credential files. Credentials are
// only ever removed by an explicit user action, never by the engine.
type Manager struct {
	dir    string // profiles directory, e.g. data/profiles
	logger *log.Logger
}

// NewManager creates a credential manager rooted at dir.
func NewManager(dir string, logger *log.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating profiles dir: %w", err)
	}
	return &Manager{dir: dir, logger: logger}, nil
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, name, credentialsFileName)
}

// Credentials loads a profile's credentials.
func (m *Manager) Credentials(name string) (Credentials, error) {
	data, err := os.ReadFile(m.path(name))
	if os.IsNotExist(err) {
		return Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("reading credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parsing credentials: %w", err)
	}
	return creds, nil
}

// Save writes a profile's credentials, creating the profile directory if
// needed. The file is owner-readable only.
func (m *Manager) Save(name string, creds Credentials) error {
	if !creds.Valid() {
		return fmt.Errorf("email and password are both required")
	}

	dir := filepath.Join(m.dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating profile dir: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := os.WriteFile(m.path(name), data, 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	m.logger.Info("credentials saved", "profile", name)
	return nil
}

// List returns all profiles that have stored credentials.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing profiles dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(m.path(entry.Name())); err == nil {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
