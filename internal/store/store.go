// Package store persists one session record per identity profile.
//
// All writes are whole-record replacements; the orchestrator is the sole
// writer. Backends: file (default), memory, redis, firestore.
package store

import (
	"context"
	"errors"

	"github.com/dnjord/glasir-login/internal/session"
)

// ErrNotFound is returned when no session record exists for a profile.
var ErrNotFound = errors.New("session not found")

// Store is the durable key-value persistence for session records.
type Store interface {
	// Get returns the record for a profile, or ErrNotFound.
	Get(ctx context.Context, profile string) (*session.Record, error)

	// Put replaces the profile's record wholesale.
	Put(ctx context.Context, profile string, rec *session.Record) error

	// Delete removes the profile's record. Returns ErrNotFound when there
	// was nothing to delete.
	Delete(ctx context.Context, profile string) error

	// Profiles lists profiles that currently have a session record.
	Profiles(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}
