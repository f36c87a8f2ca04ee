package browserauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnjord/glasir-login/internal/browser"
	"github.com/dnjord/glasir-login/internal/log"
	"github.com/dnjord/glasir-login/internal/profile"
	"github.com/dnjord/glasir-login/internal/session"
)

// fakePage scripts a login flow as a sequence of URLs. The page advances to
// the next URL every time the flow waits for network idle, mimicking the
// portal's automatic redirects.
type fakePage struct {
	urls  []string
	pos   int
	cycle bool

	gotoErr   error
	reloadErr error
	reloadTo  string
	reloads   int
	closed    bool

	title        string
	cookies      []browser.Cookie
	localStorage []any

	visible  map[string]bool
	elements map[string]bool
	checked  map[string]bool

	calls []string
}

var _ browser.Page = (*fakePage)(nil)

func (p *fakePage) advance() {
	if p.pos < len(p.urls)-1 {
		p.pos++
	} else if p.cycle {
		p.pos = 0
	}
}

func (p *fakePage) Goto(url string) error { return p.gotoErr }
func (p *fakePage) URL() string           { return p.urls[p.pos] }
func (p *fakePage) Title() (string, error) {
	return p.title, nil
}

func (p *fakePage) Reload() error {
	p.reloads++
	if p.reloadErr != nil {
		return p.reloadErr
	}
	if p.reloadTo != "" {
		p.urls = []string{p.reloadTo}
		p.pos = 0
	}
	return nil
}

func (p *fakePage) WaitForNetworkIdle(time.Duration) error {
	p.advance()
	return nil
}

func (p *fakePage) WaitForSelectorVisible(selector string, _ time.Duration) (bool, error) {
	p.calls = append(p.calls, "wait:"+selector)
	return p.visible[selector], nil
}

func (p *fakePage) HasElement(selector string) (bool, error) {
	return p.elements[selector], nil
}

func (p *fakePage) Fill(selector, value string) error {
	p.calls = append(p.calls, fmt.Sprintf("fill:%s=%s", selector, value))
	return nil
}

func (p *fakePage) Click(selector string) error {
	p.calls = append(p.calls, "click:"+selector)
	return nil
}

func (p *fakePage) Press(selector, key string) error {
	p.calls = append(p.calls, fmt.Sprintf("press:%s=%s", selector, key))
	return nil
}

func (p *fakePage) IsVisible(selector string) (bool, error) {
	return p.visible[selector], nil
}

func (p *fakePage) IsChecked(selector string) (bool, error) {
	return p.checked[selector], nil
}

func (p *fakePage) Check(selector string) error {
	p.calls = append(p.calls, "check:"+selector)
	return nil
}

func (p *fakePage) WaitForTimeout(time.Duration) {}

func (p *fakePage) Evaluate(expression string) (any, error) {
	if strings.Contains(expression, "localStorage") {
		return p.localStorage, nil
	}
	return []any{}, nil
}

func (p *fakePage) Screenshot(string) error { return nil }

func (p *fakePage) Cookies() ([]browser.Cookie, error) { return p.cookies, nil }

func (p *fakePage) OnRedirect(func(browser.Redirect)) {}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeEngine struct {
	pages []*fakePage
	idx   int
}

func (e *fakeEngine) NewPage(context.Context) (browser.Page, error) {
	if e.idx >= len(e.pages) {
		return nil, errors.New("no more pages scripted")
	}
	p := e.pages[e.idx]
	e.idx++
	return p, nil
}

func testCreds() profile.Credentials {
	return profile.Credentials{Email: "user@example.fo", Password: "hunter2"}
}

func newTestAuthenticator(t *testing.T, engine browser.Engine, opts Options) *Authenticator {
	t.Helper()
	if opts.TargetURL == "" {
		opts.TargetURL = "https://tg.glasir.fo"
	}
	if opts.FinalURL == "" {
		opts.FinalURL = "https://tg.glasir.fo/132n/"
	}
	classifier, err := NewClassifier(DefaultPatterns())
	require.NoError(t, err)

	a := NewAuthenticator(opts, engine, classifier, log.NewNop())
	a.sleep = func(context.Context, time.Duration) error { return nil }
	return a
}

func TestLoginFollowsRedirectFlow(t *testing.T) {
	page := &fakePage{
		urls: []string{
			"https://tg.glasir.fo",
			"https://tg.glasir.fo/login?ReturnUrl=%2F132n%2F",
			"https://tg.glasir.fo/auth/openid/return?code=abc",
			"https://tg.glasir.fo/132n/",
		},
		title: "Glasir",
		cookies: []browser.Cookie{
			{Name: session.AuthCookieName, Value: "tok", Domain: "login.microsoftonline.com", Expires: -1},
		},
		localStorage: []any{[]any{"theme", "dark"}},
	}
	engine := &fakeEngine{pages: []*fakePage{page}}
	a := newTestAuthenticator(t, engine, Options{})

	rec, err := a.Login(context.Background(), testCreds())
	require.NoError(t, err)

	assert.True(t, page.closed, "page must be released")
	assert.Equal(t, "https://tg.glasir.fo/132n/", rec.FinalURL)
	assert.Equal(t, "Glasir", rec.PageTitle)
	assert.Equal(t, [][2]string{{"theme", "dark"}}, rec.LocalStorage)
	require.Len(t, rec.Cookies, 1)
	assert.Equal(t, session.AuthCookieName, rec.Cookies[0].Name)
	assert.Equal(t, float64(session.NoExpiry), rec.Cookies[0].Expires)
	assert.Empty(t, rec.Timestamp, "timestamps are stamped by the orchestrator")
	assert.Zero(t, rec.LastAccessSuccess)
}

func TestLoginStuckRecoveryReloads(t *testing.T) {
	page := &fakePage{
		urls:     []string{"https://tg.glasir.fo/login"},
		reloadTo: "https://tg.glasir.fo/132n/",
	}
	engine := &fakeEngine{pages: []*fakePage{page}}
	a := newTestAuthenticator(t, engine, Options{})

	_, err := a.Login(context.Background(), testCreds())
	require.NoError(t, err)
	assert.Equal(t, 1, page.reloads)
}

func TestLoginReloadFailureAbortsAttempt(t *testing.T) {
	page := &fakePage{
		urls:      []string{"https://tg.glasir.fo/login"},
		reloadErr: errors.New("net::ERR_CONNECTION_RESET"),
	}
	engine := &fakeEngine{pages: []*fakePage{page}}
	a := newTestAuthenticator(t, engine, Options{MaxAttempts: 1})

	_, err := a.Login(context.Background(), testCreds())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reload recovery failed")
	assert.True(t, page.closed)
}

func TestLoginTransitionBudgetExhausted(t *testing.T) {
	// Alternating states never trip the stuck counter and never finish.
	page := &fakePage{
		urls: []string{
			"https://tg.glasir.fo/login",
			"https://tg.glasir.fo/auth/openid/return?code=x",
		},
		cycle: true,
	}
	engine := &fakeEngine{pages: []*fakePage{page}}
	a := newTestAuthenticator(t, engine, Options{MaxAttempts: 1})

	_, err := a.Login(context.Background(), testCreds())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transition budget")
}

func TestLoginRetriesFullAttempts(t *testing.T) {
	newFailingPage := func() *fakePage {
		return &fakePage{
			urls:      []string{"https://tg.glasir.fo/login"},
			reloadErr: errors.New("reload failed"),
		}
	}
	pages := []*fakePage{newFailingPage(), newFailingPage(), newFailingPage()}
	engine := &fakeEngine{pages: pages}

	var delays []time.Duration
	a := newTestAuthenticator(t, engine, Options{})
	a.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := a.Login(context.Background(), testCreds())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, engine.idx, "every attempt acquires a fresh page")
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, delays)
	for i, p := range pages {
		assert.True(t, p.closed, "page %d must be released", i)
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	engine := &fakeEngine{}
	a := newTestAuthenticator(t, engine, Options{})

	for _, creds := range []profile.Credentials{
		{},
		{Email: "user@example.fo"},
		{Password: "hunter2"},
	} {
		_, err := a.Login(context.Background(), creds)
		assert.ErrorIs(t, err, ErrCredentialsMissing)
	}
	assert.Zero(t, engine.idx, "no browser work without credentials")
}

func TestLoginCancelledContext(t *testing.T) {
	page := &fakePage{urls: []string{"https://tg.glasir.fo/login"}, cycle: true}
	engine := &fakeEngine{pages: []*fakePage{page}}
	a := newTestAuthenticator(t, engine, Options{MaxAttempts: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Login(ctx, testCreds())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFederationActionChecksKeepSignedIn(t *testing.T) {
	page := &fakePage{
		urls:     []string{"https://adfs.glasir.fo/adfs/ls/"},
		elements: map[string]bool{passwordSelector: true, federationSubmitSelector: true},
		visible:  map[string]bool{keepSignedInSelector: true},
		checked:  map[string]bool{keepSignedInSelector: false},
	}
	a := newTestAuthenticator(t, &fakeEngine{}, Options{})

	require.NoError(t, a.actFederation(page, testCreds()))
	assert.Equal(t, []string{
		"check:" + keepSignedInSelector,
		"fill:" + passwordSelector + "=hunter2",
		"click:" + federationSubmitSelector,
	}, page.calls)
}

func TestFederationActionFallsBackToEnter(t *testing.T) {
	page := &fakePage{
		urls:     []string{"https://adfs.glasir.fo/adfs/ls/"},
		elements: map[string]bool{passwordSelector: true},
	}
	a := newTestAuthenticator(t, &fakeEngine{}, Options{})

	require.NoError(t, a.actFederation(page, testCreds()))
	assert.Contains(t, page.calls, "press:"+passwordSelector+"=Enter")
}

func TestFederationActionNoPasswordFieldIsNoop(t *testing.T) {
	page := &fakePage{urls: []string{"https://adfs.glasir.fo/adfs/ls/"}}
	a := newTestAuthenticator(t, &fakeEngine{}, Options{})

	require.NoError(t, a.actFederation(page, testCreds()))
	assert.Empty(t, page.calls)
}

func TestIDPLoginActionFillsBothSteps(t *testing.T) {
	page := &fakePage{
		urls: []string{"https://login.microsoftonline.com/common/oauth2/authorize"},
		visible: map[string]bool{
			emailSelector:        true,
			submitSelector:       true,
			passwordSelector:     true,
			staySignedInSelector: true,
		},
		elements: map[string]bool{submitSelector: true},
	}
	a := newTestAuthenticator(t, &fakeEngine{}, Options{})

	require.NoError(t, a.actIDPLogin(page, testCreds(), "test"))
	assert.Contains(t, page.calls, "fill:"+emailSelector+"=user@example.fo")
	assert.Contains(t, page.calls, "fill:"+passwordSelector+"=hunter2")
	assert.Contains(t, page.calls, "click:"+staySignedInSelector)
}

func TestParseEntries(t *testing.T) {
	got := parseEntries([]any{
		[]any{"a", "1"},
		[]any{"b", "2"},
		[]any{"malformed"},
		"not a pair",
		[]any{1, 2},
	})
	assert.Equal(t, [][2]string{{"a", "1"}, {"b", "2"}}, got)

	assert.Nil(t, parseEntries(nil))
	assert.Nil(t, parseEntries("garbage"))
}
