package browserauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dnjord/glasir-login/internal/browser"
	"github.com/dnjord/glasir-login/internal/log"
	"github.com/dnjord/glasir-login/internal/profile"
	"github.com/dnjord/glasir-login/internal/session"
)

const (
	// redirectTimestampLayout matches the microsecond timestamps in the
	// redirect log consumed by downstream tooling.
	redirectTimestampLayout = "2006-01-02 15:04:05.000000"

	defaultMaxTransitions = 30
	defaultMaxSameState   = 5
	defaultMaxAttempts    = 3
	defaultRetryDelay     = 2 * time.Second
)

// ErrCredentialsMissing is returned when the profile has no usable
// credentials; the slow path cannot run without them.
var ErrCredentialsMissing = errors.New("email or password is empty")

// Options configures the interactive authenticator.
type Options struct {
	// TargetURL is where each attempt starts navigating.
	TargetURL string

	// FinalURL marks success: the attempt stops as soon as the page URL
	// contains it.
	FinalURL string

	// ScreenshotsDir receives diagnostic screenshots. Empty disables them.
	ScreenshotsDir string

	// Timeout bounds individual page operations.
	Timeout time.Duration

	// MaxTransitions caps state-machine iterations per attempt.
	MaxTransitions int

	// MaxSameState is how many consecutive identical states trigger a
	// page-reload recovery.
	MaxSameState int

	// MaxAttempts caps full login attempts per Login call.
	MaxAttempts int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration

	// UserAgent is stamped into the harvested record's request headers.
	UserAgent string
}

func (o *Options) setDefaults() {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxTransitions == 0 {
		o.MaxTransitions = defaultMaxTransitions
	}
	if o.MaxSameState == 0 {
		o.MaxSameState = defaultMaxSameState
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = defaultRetryDelay
	}
}

// Authenticator performs the full interactive login flow.
type Authenticator struct {
	opts       Options
	engine     browser.Engine
	classifier *Classifier
	logger     *log.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAuthenticator creates an interactive authenticator.
func NewAuthenticator(opts Options, engine browser.Engine, classifier *Classifier, logger *log.Logger) *Authenticator {
	opts.setDefaults()
	return &Authenticator{
		opts:       opts,
		engine:     engine,
		classifier: classifier,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Login runs up to MaxAttempts full login flows and returns the harvested
// session record of the first successful one. Each attempt acquires and
// releases its own browser instance.
func (a *Authenticator) Login(ctx context.Context, creds profile.Credentials) (*session.Record, error) {
	if !creds.Valid() {
		return nil, ErrCredentialsMissing
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			a.logger.Info("retrying interactive login",
				"attempt", attempt, "maxAttempts", a.opts.MaxAttempts)
			if err := a.sleep(ctx, a.opts.RetryDelay); err != nil {
				return nil, err
			}
		}

		rec, err := a.attempt(ctx, creds)
		if err == nil {
			a.logger.Timing("interactive login", start)
			return rec, nil
		}
		lastErr = err
		a.logger.Warn("interactive login attempt failed", "attempt", attempt, "error", err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("interactive login failed after %d attempts: %w", a.opts.MaxAttempts, lastErr)
}

// attempt drives one full login flow on a fresh page.
func (a *Authenticator) attempt(ctx context.Context, creds profile.Credentials) (rec *session.Record, err error) {
	attemptID := uuid.NewString()[:8]
	a.logger.Debug("starting login attempt", "attemptId", attemptID)

	page, err := a.engine.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring browser page: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			a.logger.Warn("closing browser page", "attemptId", attemptID, "error", closeErr)
		}
	}()

	var redirects []session.Redirect
	page.OnRedirect(func(r browser.Redirect) {
		redirects = append(redirects, session.Redirect{
			Timestamp: time.Now().Format(redirectTimestampLayout),
			From:      r.From,
			To:        r.To,
			Status:    r.Status,
		})
		a.logger.Debug("navigation redirect", "from", r.From, "to", r.To, "status", r.Status)
	})

	a.screenshot(page, attemptID, "start")

	a.logger.Info("navigating to portal", "url", a.opts.TargetURL)
	if err := page.Goto(a.opts.TargetURL); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", a.opts.TargetURL, err)
	}

	if err := a.drive(ctx, page, creds, attemptID); err != nil {
		a.screenshot(page, attemptID, "error")
		return nil, err
	}

	// Let late resources settle before harvesting.
	page.WaitForTimeout(3 * time.Second)

	if !a.reachedFinal(page.URL()) {
		a.screenshot(page, attemptID, "error")
		return nil, fmt.Errorf("did not reach final destination, stopped at %s", page.URL())
	}

	a.screenshot(page, attemptID, "success")
	return a.harvest(page, redirects)
}

// drive runs the state-machine loop until the final page is reached or the
// transition budget runs out.
func (a *Authenticator) drive(ctx context.Context, page browser.Page, creds profile.Credentials, attemptID string) error {
	lastState := State("")
	sameStateCount := 0

	for transitions := 0; transitions < a.opts.MaxTransitions; transitions++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		state := a.classifier.Classify(page.URL())
		a.logger.Info("login state", "state", state, "url", page.URL(), "transition", transitions)

		if state == StateFinalPage || a.reachedFinal(page.URL()) {
			a.logger.Info("reached final destination")
			return nil
		}

		if state == lastState {
			sameStateCount++
			if sameStateCount >= a.opts.MaxSameState {
				a.logger.Warn("login flow stuck, reloading page",
					"state", state, "iterations", sameStateCount)
				a.screenshot(page, attemptID, "stuck_"+strings.ToLower(string(state)))
				if err := page.Reload(); err != nil {
					return fmt.Errorf("reload recovery failed in state %s: %w", state, err)
				}
				sameStateCount = 0
			}
		} else {
			sameStateCount = 0
		}

		if err := a.act(page, state, creds, attemptID); err != nil {
			// Step-level failures are recoverable; the next iteration
			// reclassifies and tries again.
			a.logger.Warn("state action failed", "state", state, "error", err)
		}

		lastState = state

		if err := page.WaitForNetworkIdle(5 * time.Second); err != nil {
			a.logger.Trace("network idle wait elapsed", "state", state)
		}
	}

	return fmt.Errorf("transition budget of %d exhausted, last state %s", a.opts.MaxTransitions, lastState)
}

func (a *Authenticator) reachedFinal(url string) bool {
	return strings.Contains(url, a.opts.FinalURL) || strings.Contains(url, "/132n/")
}

// harvest builds a session record from everything the page accumulated.
// Storage extraction is best-effort; cookie harvest is not.
func (a *Authenticator) harvest(page browser.Page, redirects []session.Redirect) (*session.Record, error) {
	raw, err := page.Cookies()
	if err != nil {
		return nil, fmt.Errorf("harvesting cookies: %w", err)
	}

	cookies := make([]session.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}

	headers := session.DefaultRequestHeaders()
	if a.opts.UserAgent != "" {
		headers["User-Agent"] = a.opts.UserAgent
	}

	rec := &session.Record{
		Cookies:        cookies,
		RequestHeaders: headers,
		LocalStorage:   a.storageEntries(page, "localStorage"),
		SessionStorage: a.storageEntries(page, "sessionStorage"),
		FinalURL:       page.URL(),
		Redirections:   redirects,
	}

	if title, err := page.Title(); err == nil {
		rec.PageTitle = title
	} else {
		a.logger.Warn("reading page title", "error", err)
	}

	a.logger.Info("session harvested",
		"cookies", len(rec.Cookies),
		"localStorage", len(rec.LocalStorage),
		"redirects", len(rec.Redirections))
	return rec, nil
}

func (a *Authenticator) storageEntries(page browser.Page, store string) [][2]string {
	raw, err := page.Evaluate("() => Object.entries(" + store + ")")
	if err != nil {
		a.logger.Warn("collecting storage", "store", store, "error", err)
		return nil
	}
	return parseEntries(raw)
}

// parseEntries converts an Object.entries result into key/value pairs.
func parseEntries(raw any) [][2]string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out [][2]string
	for _, item := range list {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		key, kok := pair[0].(string)
		value, vok := pair[1].(string)
		if kok && vok {
			out = append(out, [2]string{key, value})
		}
	}
	return out
}
