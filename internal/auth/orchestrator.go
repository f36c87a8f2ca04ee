// Package auth composes the validator, the fast-path re-authenticator, and
// the interactive authenticator into the session-acquisition policy. The
// orchestrator is the only component that writes to the session store.
package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dnjord/glasir-login/internal/log"
	"github.com/dnjord/glasir-login/internal/profile"
	"github.com/dnjord/glasir-login/internal/session"
	"github.com/dnjord/glasir-login/internal/store"
)

// FastPath replays stored cookies over HTTP to refresh a valid session
// without a browser.
type FastPath interface {
	Reauthenticate(ctx context.Context, rec *session.Record) (*session.Record, error)
}

// SlowPath performs a full interactive login.
type SlowPath interface {
	Login(ctx context.Context, creds profile.Credentials) (*session.Record, error)
}

// Validator decides whether a cached record is still usable.
type Validator interface {
	Validate(ctx context.Context, rec *session.Record) (bool, string)
}

// CredentialSource loads a profile's stored credentials.
type CredentialSource interface {
	Credentials(name string) (profile.Credentials, error)
}

// Orchestrator owns the acquire/check/delete session operations for all
// profiles.
type Orchestrator struct {
	store     store.Store
	validator Validator
	fast      FastPath
	slow      SlowPath
	creds     CredentialSource
	logger    *log.Logger

	// group collapses concurrent acquisitions for the same profile; the
	// interactive path must never run twice at once against one profile's
	// browser state.
	group singleflight.Group

	now func() time.Time
}

// NewOrchestrator wires the acquisition policy together.
func NewOrchestrator(st store.Store, validator Validator, fast FastPath, slow SlowPath, creds CredentialSource, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		store:     st,
		validator: validator,
		fast:      fast,
		slow:      slow,
		creds:     creds,
		logger:    logger,
		now:       time.Now,
	}
}

// AcquireSession ensures the profile has a working session, persisting the
// refreshed record on success. Concurrent calls for the same profile share
// one acquisition.
func (o *Orchestrator) AcquireSession(ctx context.Context, profileName string) bool {
	v, _, _ := o.group.Do(profileName, func() (any, error) {
		return o.acquire(ctx, profileName), nil
	})
	return v.(bool)
}

func (o *Orchestrator) acquire(ctx context.Context, profileName string) bool {
	start := o.now()
	logger := o.logger.With("profile", profileName)

	rec, err := o.store.Get(ctx, profileName)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("reading cached session", "error", err)
		rec = nil
	}

	if rec != nil {
		valid, reason := o.validator.Validate(ctx, rec)
		logger.Info("cached session validated", "valid", valid, "reason", reason)

		if valid {
			fresh, err := o.fast.Reauthenticate(ctx, rec)
			if err == nil {
				return o.persist(ctx, logger, profileName, fresh, "fast path", start)
			}
			logger.Info("fast path failed, falling back to interactive login", "error", err)
		}
	}

	creds, err := o.creds.Credentials(profileName)
	if err != nil {
		logger.Error("loading credentials", "error", err)
		return false
	}

	fresh, err := o.slow.Login(ctx, creds)
	if err != nil {
		logger.Error("interactive login failed", "error", err)
		return false
	}
	return o.persist(ctx, logger, profileName, fresh, "interactive login", start)
}

// persist stamps and writes the record. A failed write fails the whole
// acquisition; a session the caller cannot find again is worthless.
func (o *Orchestrator) persist(ctx context.Context, logger *log.Logger, profileName string, rec *session.Record, path string, start time.Time) bool {
	rec.Stamp(o.now())
	if err := o.store.Put(ctx, profileName, rec); err != nil {
		logger.Error("persisting session record", "path", path, "error", err)
		return false
	}
	logger.Info("session acquired", "path", path, "cookies", len(rec.Cookies))
	o.logger.Timing("session acquisition", start)
	return true
}

// CheckValidity reports whether the profile's cached session is usable,
// without acquiring a new one.
func (o *Orchestrator) CheckValidity(ctx context.Context, profileName string) (bool, string) {
	rec, err := o.store.Get(ctx, profileName)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.logger.Warn("reading cached session", "profile", profileName, "error", err)
		}
		rec = nil
	}
	return o.validator.Validate(ctx, rec)
}

// DeleteSession removes the profile's session record. It reports whether a
// record was actually deleted. Credentials are untouched.
func (o *Orchestrator) DeleteSession(ctx context.Context, profileName string) bool {
	err := o.store.Delete(ctx, profileName)
	if errors.Is(err, store.ErrNotFound) {
		o.logger.Info("no session record to delete", "profile", profileName)
		return false
	}
	if err != nil {
		o.logger.Error("deleting session record", "profile", profileName, "error", err)
		return false
	}
	o.logger.Info("session record deleted", "profile", profileName)
	return true
}
