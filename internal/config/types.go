// Package config loads the engine's JSON configuration. Secret values are
// never written inline; they use {"$env": "VAR_NAME"} references resolved at
// load time.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dnjord/glasir-login/internal/log"
)

// Secret is a string that redacts itself in logs and JSON output.
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// PortalConfig describes the site being logged into.
type PortalConfig struct {
	// TargetURL is where acquisition starts navigating.
	TargetURL string `json:"targetUrl"`

	// FinalURL is the protected resource that marks a finished login.
	FinalURL string `json:"finalUrl"`

	// LoginPath identifies login redirects during validation probes.
	LoginPath string `json:"loginPath"`

	// StatePatterns optionally overrides the URL regexps that classify
	// login-flow states, as {"STATE": "pattern"} pairs in priority order.
	StatePatterns []StatePattern `json:"statePatterns,omitempty"`
}

// StatePattern is one configurable state classification rule.
type StatePattern struct {
	State   string `json:"state"`
	Pattern string `json:"pattern"`
}

// BrowserConfig controls the rendering engine used by the slow path.
type BrowserConfig struct {
	Headless  bool          `json:"headless"`
	Timeout   time.Duration `json:"-"`
	UserAgent string        `json:"userAgent,omitempty"`
}

// HTTPConfig controls the fast path's fingerprinted HTTP client.
type HTTPConfig struct {
	Preset  string        `json:"preset,omitempty"`
	Timeout time.Duration `json:"-"`
}

// RedisStoreConfig configures the redis session backend.
type RedisStoreConfig struct {
	Addr     string `json:"addr"`
	Password Secret `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// FirestoreStoreConfig configures the firestore session backend. Session
// records are encrypted at rest with EncryptionKey.
type FirestoreStoreConfig struct {
	GCPProject    string `json:"gcpProject"`
	Database      string `json:"database,omitempty"`
	Collection    string `json:"collection,omitempty"`
	EncryptionKey Secret `json:"encryptionKey"`
}

// StoreConfig selects and configures the session store backend.
type StoreConfig struct {
	// Backend is one of file, memory, redis, firestore. Default file.
	Backend   string                `json:"backend,omitempty"`
	Redis     *RedisStoreConfig     `json:"redis,omitempty"`
	Firestore *FirestoreStoreConfig `json:"firestore,omitempty"`
}

// Config is the engine configuration with resolved values.
type Config struct {
	DataDir        string        `json:"dataDir,omitempty"`
	ScreenshotsDir string        `json:"screenshotsDir,omitempty"`
	Portal         PortalConfig  `json:"portal"`
	Browser        BrowserConfig `json:"browser,omitempty"`
	HTTP           HTTPConfig    `json:"http,omitempty"`
	Store          StoreConfig   `json:"store,omitempty"`
	Log            log.Options   `json:"log,omitempty"`
}

// ProfilesDir returns the directory holding per-profile credentials and
// file-backed session records.
func (c *Config) ProfilesDir() string {
	return c.DataDir + "/profiles"
}

// parseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference.
func parseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

// UnmarshalJSON resolves env references in the password field.
func (r *RedisStoreConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Addr     string          `json:"addr"`
		Password json.RawMessage `json:"password,omitempty"`
		DB       int             `json:"db,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Addr = raw.Addr
	r.DB = raw.DB

	if raw.Password != nil {
		password, err := parseConfigValue(raw.Password)
		if err != nil {
			return fmt.Errorf("parsing password: %w", err)
		}
		r.Password = Secret(password)
	}
	return nil
}

// UnmarshalJSON resolves env references in the encryption key.
func (f *FirestoreStoreConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		GCPProject    string          `json:"gcpProject"`
		Database      string          `json:"database,omitempty"`
		Collection    string          `json:"collection,omitempty"`
		EncryptionKey json.RawMessage `json:"encryptionKey"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.GCPProject = raw.GCPProject
	f.Database = raw.Database
	f.Collection = raw.Collection

	if raw.EncryptionKey != nil {
		key, err := parseConfigValue(raw.EncryptionKey)
		if err != nil {
			return fmt.Errorf("parsing encryptionKey: %w", err)
		}
		f.EncryptionKey = Secret(key)
	}
	return nil
}

// UnmarshalJSON parses the timeout duration string.
func (b *BrowserConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Headless  *bool  `json:"headless"`
		Timeout   string `json:"timeout,omitempty"`
		UserAgent string `json:"userAgent,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	b.Headless = true
	if raw.Headless != nil {
		b.Headless = *raw.Headless
	}
	b.UserAgent = raw.UserAgent

	if raw.Timeout != "" {
		timeout, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		b.Timeout = timeout
	}
	return nil
}

// UnmarshalJSON parses the timeout duration string.
func (h *HTTPConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Preset  string `json:"preset,omitempty"`
		Timeout string `json:"timeout,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	h.Preset = raw.Preset
	if raw.Timeout != "" {
		timeout, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		h.Timeout = timeout
	}
	return nil
}
