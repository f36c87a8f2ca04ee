// Package internal wires the session-acquisition engine together from its
// parts: config, store, validator, fast path, interactive authenticator, and
// the orchestrator on top.
package internal

import (
	"context"
	"fmt"

	"github.com/dnjord/glasir-login/internal/auth"
	"github.com/dnjord/glasir-login/internal/browser"
	"github.com/dnjord/glasir-login/internal/browserauth"
	"github.com/dnjord/glasir-login/internal/config"
	"github.com/dnjord/glasir-login/internal/crypto"
	"github.com/dnjord/glasir-login/internal/httpauth"
	"github.com/dnjord/glasir-login/internal/log"
	"github.com/dnjord/glasir-login/internal/profile"
	"github.com/dnjord/glasir-login/internal/session"
	"github.com/dnjord/glasir-login/internal/store"
)

// Front is the assembled login engine.
type Front struct {
	cfg      config.Config
	logger   *log.Logger
	store    store.Store
	profiles *profile.Manager
	orch     *auth.Orchestrator
}

// NewFront builds the engine from config.
func NewFront(ctx context.Context, cfg config.Config) (*Front, error) {
	logger, err := log.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	logger.Info("building login engine",
		"portal", cfg.Portal.TargetURL,
		"store", cfg.Store.Backend)

	st, err := setupStore(ctx, cfg, logger)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("setting up session store: %w", err)
	}

	profiles, err := profile.NewManager(cfg.ProfilesDir(), logger)
	if err != nil {
		st.Close()
		logger.Close()
		return nil, fmt.Errorf("setting up profile manager: %w", err)
	}

	httpClient := httpauth.NewClient(httpauth.Options{
		Preset:    cfg.HTTP.Preset,
		Timeout:   cfg.HTTP.Timeout,
		TargetURL: cfg.Portal.FinalURL,
		FinalURL:  cfg.Portal.FinalURL,
	}, logger)

	validator := session.NewValidator(cfg.Portal.FinalURL, cfg.Portal.LoginPath, httpClient, logger)

	classifier, err := buildClassifier(cfg.Portal.StatePatterns)
	if err != nil {
		st.Close()
		logger.Close()
		return nil, err
	}

	engine := browser.NewPlaywrightEngine(browser.EngineOptions{
		Headless:  cfg.Browser.Headless,
		Timeout:   cfg.Browser.Timeout,
		UserAgent: cfg.Browser.UserAgent,
	}, logger)

	interactive := browserauth.NewAuthenticator(browserauth.Options{
		TargetURL:      cfg.Portal.TargetURL,
		FinalURL:       cfg.Portal.FinalURL,
		ScreenshotsDir: cfg.ScreenshotsDir,
		Timeout:        cfg.Browser.Timeout,
		UserAgent:      cfg.Browser.UserAgent,
	}, engine, classifier, logger)

	orch := auth.NewOrchestrator(st, validator, httpClient, interactive, profiles, logger)

	return &Front{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		profiles: profiles,
		orch:     orch,
	}, nil
}

func buildClassifier(patterns []config.StatePattern) (*browserauth.Classifier, error) {
	if len(patterns) == 0 {
		return browserauth.NewClassifier(browserauth.DefaultPatterns())
	}
	converted := make([]browserauth.Pattern, 0, len(patterns))
	for _, p := range patterns {
		converted = append(converted, browserauth.Pattern{
			State: browserauth.State(p.State),
			Expr:  p.Pattern,
		})
	}
	return browserauth.NewClassifier(converted)
}

// setupStore creates the configured session store backend.
func setupStore(ctx context.Context, cfg config.Config, logger *log.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		logger.Info("using in-memory session store")
		return store.NewMemoryStore(), nil

	case "redis":
		logger.Info("using redis session store", "addr", cfg.Store.Redis.Addr)
		return store.NewRedisStore(ctx, store.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: string(cfg.Store.Redis.Password),
			DB:       cfg.Store.Redis.DB,
		})

	case "firestore":
		fs := cfg.Store.Firestore
		logger.Info("using firestore session store",
			"project", fs.GCPProject,
			"database", fs.Database,
			"collection", fs.Collection)
		encryptor, err := crypto.NewEncryptor([]byte(fs.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("creating encryptor: %w", err)
		}
		return store.NewFirestoreStore(ctx, store.FirestoreConfig{
			ProjectID:  fs.GCPProject,
			Database:   fs.Database,
			Collection: fs.Collection,
		}, encryptor, logger)

	default:
		logger.Info("using file session store", "dir", cfg.ProfilesDir())
		return store.NewFileStore(cfg.ProfilesDir(), logger)
	}
}

// AcquireSession ensures the profile has a working session.
func (f *Front) AcquireSession(ctx context.Context, profileName string) bool {
	return f.orch.AcquireSession(ctx, profileName)
}

// CheckValidity reports whether the profile's cached session is usable.
func (f *Front) CheckValidity(ctx context.Context, profileName string) (bool, string) {
	return f.orch.CheckValidity(ctx, profileName)
}

// DeleteSession removes the profile's cached session record.
func (f *Front) DeleteSession(ctx context.Context, profileName string) bool {
	return f.orch.DeleteSession(ctx, profileName)
}

// CreateProfile stores credentials for a profile.
func (f *Front) CreateProfile(name, email, password string) error {
	return f.profiles.Save(name, profile.Credentials{Email: email, Password: password})
}

// Profiles lists profiles with stored credentials.
func (f *Front) Profiles() ([]string, error) {
	return f.profiles.List()
}

// Close releases the store and logger.
func (f *Front) Close() error {
	err := f.store.Close()
	if logErr := f.logger.Close(); err == nil {
		err = logErr
	}
	return err
}
