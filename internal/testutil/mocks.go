// Package testutil provides shared mocks for the acquisition components.
package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dnjord/glasir-login/internal/profile"
	"github.com/dnjord/glasir-login/internal/session"
)

// MockStore mocks the session store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, profileName string) (*session.Record, error) {
	args := m.Called(ctx, profileName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Record), args.Error(1)
}

func (m *MockStore) Put(ctx context.Context, profileName string, rec *session.Record) error {
	args := m.Called(ctx, profileName, rec)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, profileName string) error {
	args := m.Called(ctx, profileName)
	return args.Error(0)
}

func (m *MockStore) Profiles(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockValidator mocks session validation.
type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, rec *session.Record) (bool, string) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.String(1)
}

// MockProber mocks the validator's network probe.
type MockProber struct {
	mock.Mock
}

func (m *MockProber) Probe(ctx context.Context, rec *session.Record, url string) (*session.ProbeResult, error) {
	args := m.Called(ctx, rec, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.ProbeResult), args.Error(1)
}

// MockFastPath mocks the cookie-replay re-authenticator.
type MockFastPath struct {
	mock.Mock
}

func (m *MockFastPath) Reauthenticate(ctx context.Context, rec *session.Record) (*session.Record, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Record), args.Error(1)
}

// MockSlowPath mocks the interactive authenticator.
type MockSlowPath struct {
	mock.Mock
}

func (m *MockSlowPath) Login(ctx context.Context, creds profile.Credentials) (*session.Record, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Record), args.Error(1)
}

// MockCredentialSource mocks profile credential lookup.
type MockCredentialSource struct {
	mock.Mock
}

func (m *MockCredentialSource) Credentials(name string) (profile.Credentials, error) {
	args := m.Called(name)
	return args.Get(0).(profile.Credentials), args.Error(1)
}
