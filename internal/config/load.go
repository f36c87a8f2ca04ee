package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dnjord/glasir-login/internal/log"
)

// Load reads and validates a config file, resolving env references
// immediately.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	if err := validateRawConfig(data); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// Headless must default to true even when the browser section is absent,
	// in which case BrowserConfig.UnmarshalJSON never runs.
	config := Config{Browser: BrowserConfig{Headless: true}}
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// validateRawConfig rejects secrets written inline before any env resolution
// happens.
func validateRawConfig(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing config JSON: %w", err)
	}

	st, ok := raw["store"].(map[string]any)
	if !ok {
		return nil
	}

	secrets := []struct {
		section string
		field   string
	}{
		{"firestore", "encryptionKey"},
		{"redis", "password"},
	}
	for _, secret := range secrets {
		section, ok := st[secret.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[secret.field]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", secret.section, secret.field)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", secret.section, secret.field)
			}
		}
	}
	return nil
}

func applyDefaults(config *Config) {
	if config.DataDir == "" {
		config.DataDir = "data"
	}
	if config.ScreenshotsDir == "" {
		config.ScreenshotsDir = "screenshots"
	}
	if config.Portal.TargetURL == "" {
		config.Portal.TargetURL = "https://tg.glasir.fo"
	}
	if config.Portal.FinalURL == "" {
		config.Portal.FinalURL = "https://tg.glasir.fo/132n/"
	}
	if config.Portal.LoginPath == "" {
		config.Portal.LoginPath = "/login"
	}
	if config.Store.Backend == "" {
		config.Store.Backend = "file"
	}
	if config.Log.Level == "" {
		config.Log = log.DefaultOptions()
	}
}

// Validate checks the resolved configuration.
func Validate(config *Config) error {
	switch config.Store.Backend {
	case "file", "memory":
	case "redis":
		if config.Store.Redis == nil || config.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for redis backend")
		}
	case "firestore":
		fs := config.Store.Firestore
		if fs == nil || fs.GCPProject == "" {
			return fmt.Errorf("store.firestore.gcpProject is required for firestore backend")
		}
		if fs.EncryptionKey == "" {
			return fmt.Errorf("store.firestore.encryptionKey is required for firestore backend")
		}
		if len(fs.EncryptionKey) != 32 {
			return fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(fs.EncryptionKey))
		}
	default:
		return fmt.Errorf("unknown store backend: %s", config.Store.Backend)
	}

	for _, sp := range config.Portal.StatePatterns {
		if sp.State == "" || sp.Pattern == "" {
			return fmt.Errorf("portal.statePatterns entries need both state and pattern")
		}
	}
	return nil
}

// WriteSample writes a starter config to path. It refuses to overwrite an
// existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	sample := `{
  "dataDir": "data",
  "screenshotsDir": "screenshots",
  "portal": {
    "targetUrl": "https://tg.glasir.fo",
    "finalUrl": "https://tg.glasir.fo/132n/",
    "loginPath": "/login"
  },
  "browser": {
    "headless": true,
    "timeout": "30s"
  },
  "http": {
    "preset": "chrome-131",
    "timeout": "30s"
  },
  "store": {
    "backend": "file"
  },
  "log": {
    "level": "info",
    "format": "text",
    "console": true
  }
}
`
	return os.WriteFile(path, []byte(sample), 0o644)
}
