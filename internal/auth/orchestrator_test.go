package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/dnjord/glasir-login/internal/log"
	"github.com/dnjord/glasir-login/internal/profile"
	"github.com/dnjord/glasir-login/internal/session"
	"github.com/dnjord/glasir-login/internal/store"
	"github.com/dnjord/glasir-login/internal/testutil"
)

type fixture struct {
	store     *testutil.MockStore
	validator *testutil.MockValidator
	fast      *testutil.MockFastPath
	slow      *testutil.MockSlowPath
	creds     *testutil.MockCredentialSource
	orch      *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		store:     &testutil.MockStore{},
		validator: &testutil.MockValidator{},
		fast:      &testutil.MockFastPath{},
		slow:      &testutil.MockSlowPath{},
		creds:     &testutil.MockCredentialSource{},
	}
	f.orch = NewOrchestrator(f.store, f.validator, f.fast, f.slow, f.creds, log.NewNop())
	return f
}

func (f *fixture) assertExpectations(t *testing.T) {
	t.Helper()
	f.store.AssertExpectations(t)
	f.validator.AssertExpectations(t)
	f.fast.AssertExpectations(t)
	f.slow.AssertExpectations(t)
	f.creds.AssertExpectations(t)
}

func cachedRecord() *session.Record {
	return &session.Record{
		Cookies: []session.Cookie{{Name: session.AuthCookieName, Value: "old", Expires: session.NoExpiry}},
	}
}

// stampedRecord matches records that went through orchestrator stamping.
var stampedRecord = mock.MatchedBy(func(rec *session.Record) bool {
	return rec.Timestamp != "" && rec.LastAccessSuccess > 0
})

func TestAcquireValidSessionTakesFastPath(t *testing.T) {
	f := newFixture()
	cached := cachedRecord()
	refreshed := &session.Record{
		Cookies: []session.Cookie{{Name: session.AuthCookieName, Value: "new", Expires: session.NoExpiry}},
	}

	f.store.On("Get", mock.Anything, "alice").Return(cached, nil)
	f.validator.On("Validate", mock.Anything, cached).Return(true, "session is valid")
	f.fast.On("Reauthenticate", mock.Anything, cached).Return(refreshed, nil)
	f.store.On("Put", mock.Anything, "alice", stampedRecord).Return(nil)

	assert.True(t, f.orch.AcquireSession(context.Background(), "alice"))
	f.assertExpectations(t)
	f.slow.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
}

func TestAcquireFastPathFailureFallsBackToSlowPath(t *testing.T) {
	f := newFixture()
	cached := cachedRecord()
	creds := profile.Credentials{Email: "alice@example.fo", Password: "pw"}
	fresh := cachedRecord()

	f.store.On("Get", mock.Anything, "alice").Return(cached, nil)
	f.validator.On("Validate", mock.Anything, cached).Return(true, "session is valid")
	f.fast.On("Reauthenticate", mock.Anything, cached).Return(nil, errors.New("unexpected status code: 302"))
	f.creds.On("Credentials", "alice").Return(creds, nil)
	f.slow.On("Login", mock.Anything, creds).Return(fresh, nil)
	f.store.On("Put", mock.Anything, "alice", stampedRecord).Return(nil)

	assert.True(t, f.orch.AcquireSession(context.Background(), "alice"))
	f.assertExpectations(t)
}

func TestAcquireInvalidSessionSkipsFastPath(t *testing.T) {
	f := newFixture()
	cached := cachedRecord()
	creds := profile.Credentials{Email: "alice@example.fo", Password: "pw"}

	f.store.On("Get", mock.Anything, "alice").Return(cached, nil)
	f.validator.On("Validate", mock.Anything, cached).Return(false, "authentication cookie expired")
	f.creds.On("Credentials", "alice").Return(creds, nil)
	f.slow.On("Login", mock.Anything, creds).Return(cachedRecord(), nil)
	f.store.On("Put", mock.Anything, "alice", stampedRecord).Return(nil)

	assert.True(t, f.orch.AcquireSession(context.Background(), "alice"))
	f.assertExpectations(t)
	f.fast.AssertNotCalled(t, "Reauthenticate", mock.Anything, mock.Anything)
}

func TestAcquireNoCachedSessionGoesStraightToSlowPath(t *testing.T) {
	f := newFixture()
	creds := profile.Credentials{Email: "alice@example.fo", Password: "pw"}

	f.store.On("Get", mock.Anything, "alice").Return(nil, store.ErrNotFound)
	f.creds.On("Credentials", "alice").Return(creds, nil)
	f.slow.On("Login", mock.Anything, creds).Return(cachedRecord(), nil)
	f.store.On("Put", mock.Anything, "alice", stampedRecord).Return(nil)

	assert.True(t, f.orch.AcquireSession(context.Background(), "alice"))
	f.assertExpectations(t)
	f.validator.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything)
}

func TestAcquireMissingCredentialsFails(t *testing.T) {
	f := newFixture()

	f.store.On("Get", mock.Anything, "alice").Return(nil, store.ErrNotFound)
	f.creds.On("Credentials", "alice").Return(profile.Credentials{}, profile.ErrNoCredentials)

	assert.False(t, f.orch.AcquireSession(context.Background(), "alice"))
	f.assertExpectations(t)
	f.store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
}

func TestAcquireSlowPathFailureWritesNothing(t *testing.T) {
	f := newFixture()
	creds := profile.Credentials{Email: "alice@example.fo", Password: "pw"}

	f.store.On("Get", mock.Anything, "alice").Return(nil, store.ErrNotFound)
	f.creds.On("Credentials", "alice").Return(creds, nil)
	f.slow.On("Login", mock.Anything, creds).Return(nil, errors.New("interactive login failed after 3 attempts"))

	assert.False(t, f.orch.AcquireSession(context.Background(), "alice"))
	f.assertExpectations(t)
	f.store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
}

func TestAcquirePersistFailureFailsAcquisition(t *testing.T) {
	f := newFixture()
	creds := profile.Credentials{Email: "alice@example.fo", Password: "pw"}

	f.store.On("Get", mock.Anything, "alice").Return(nil, store.ErrNotFound)
	f.creds.On("Credentials", "alice").Return(creds, nil)
	f.slow.On("Login", mock.Anything, creds).Return(cachedRecord(), nil)
	f.store.On("Put", mock.Anything, "alice", stampedRecord).Return(errors.New("disk full"))

	assert.False(t, f.orch.AcquireSession(context.Background(), "alice"))
	f.assertExpectations(t)
}

func TestConcurrentAcquisitionsCollapse(t *testing.T) {
	memStore := store.NewMemoryStore()
	var logins atomic.Int32

	slow := slowPathFunc(func(ctx context.Context, creds profile.Credentials) (*session.Record, error) {
		logins.Add(1)
		time.Sleep(50 * time.Millisecond)
		return cachedRecord(), nil
	})
	validator := validatorFunc(func(context.Context, *session.Record) (bool, string) {
		return false, "no session data"
	})
	creds := credsFunc(func(string) (profile.Credentials, error) {
		return profile.Credentials{Email: "a@b", Password: "c"}, nil
	})

	orch := NewOrchestrator(memStore, validator, nil, slow, creds, log.NewNop())

	var wg sync.WaitGroup
	results := make([]bool, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = orch.AcquireSession(context.Background(), "alice")
		}(i)
	}
	wg.Wait()

	for _, ok := range results {
		assert.True(t, ok)
	}
	assert.Equal(t, int32(1), logins.Load(), "concurrent acquisitions for one profile must collapse")
}

type slowPathFunc func(context.Context, profile.Credentials) (*session.Record, error)

func (f slowPathFunc) Login(ctx context.Context, creds profile.Credentials) (*session.Record, error) {
	return f(ctx, creds)
}

type validatorFunc func(context.Context, *session.Record) (bool, string)

func (f validatorFunc) Validate(ctx context.Context, rec *session.Record) (bool, string) {
	return f(ctx, rec)
}

type credsFunc func(string) (profile.Credentials, error)

func (f credsFunc) Credentials(name string) (profile.Credentials, error) {
	return f(name)
}

func TestCheckValidityMissingRecord(t *testing.T) {
	f := newFixture()

	f.store.On("Get", mock.Anything, "alice").Return(nil, store.ErrNotFound)
	f.validator.On("Validate", mock.Anything, (*session.Record)(nil)).Return(false, "no session data")

	valid, reason := f.orch.CheckValidity(context.Background(), "alice")
	assert.False(t, valid)
	assert.Equal(t, "no session data", reason)
	f.assertExpectations(t)
}

func TestCheckValidityDelegatesToValidator(t *testing.T) {
	f := newFixture()
	cached := cachedRecord()

	f.store.On("Get", mock.Anything, "alice").Return(cached, nil)
	f.validator.On("Validate", mock.Anything, cached).Return(true, "recent successful access")

	valid, reason := f.orch.CheckValidity(context.Background(), "alice")
	assert.True(t, valid)
	assert.Equal(t, "recent successful access", reason)
}

func TestDeleteSession(t *testing.T) {
	f := newFixture()
	f.store.On("Delete", mock.Anything, "alice").Return(nil)
	assert.True(t, f.orch.DeleteSession(context.Background(), "alice"))

	f.store.On("Delete", mock.Anything, "bob").Return(store.ErrNotFound)
	assert.False(t, f.orch.DeleteSession(context.Background(), "bob"))
}
