package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dnjord/glasir-login/internal/log"
)

// RecentAccessWindow is how long after a confirmed successful access a
// session is trusted without a network probe.
//
// Known correctness gap, preserved for compatibility with the original
// behavior: the window trusts last_access_success without re-checking the
// auth cookie's own expiry, so a cookie that expires inside the window can be
// reported valid.
const RecentAccessWindow = 3600 * time.Second

// ProbeResult is the outcome of a single non-redirect-following request to
// the protected resource.
type ProbeResult struct {
	StatusCode int
	Location   string
}

// Prober issues the validator's network probe with the record's cookies and
// headers. Implemented by internal/httpauth.
type Prober interface {
	Probe(ctx context.Context, rec *Record, url string) (*ProbeResult, error)
}

// Validator decides whether a cached session record is still usable without
// running a full login. It never mutates the record.
type Validator struct {
	finalURL  string
	loginPath string
	prober    Prober
	logger    *log.Logger
	now       func() time.Time
}

// NewValidator creates a validator probing finalURL. Redirects whose target
// contains loginPath are treated as "logged out".
func NewValidator(finalURL, loginPath string, prober Prober, logger *log.Logger) *Validator {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &Validator{
		finalURL:  finalURL,
		loginPath: loginPath,
		prober:    prober,
		logger:    logger,
		now:       time.Now,
	}
}

// Validate reports whether the record is usable and why. Checks run in
// order and short-circuit: record presence, auth cookie presence, auth
// cookie expiry, recent-use window, then a single network probe.
func (v *Validator) Validate(ctx context.Context, rec *Record) (bool, string) {
	if rec == nil {
		return false, "no session data"
	}

	// A record with no cookies can never carry the auth cookie, so it falls
	// through to the check below and is never valid.
	auth, found := rec.AuthCookie()
	if !found {
		return false, "authentication cookie not found"
	}
	if auth.HasExpiry() && auth.ExpiresAt().Before(v.now()) {
		return false, "authentication cookie expired"
	}

	if rec.LastAccessSuccess > 0 {
		last := time.Unix(int64(rec.LastAccessSuccess), 0)
		if v.now().Sub(last) < RecentAccessWindow {
			v.logger.Info("session used successfully within the last hour, skipping probe")
			return true, "recent successful access"
		}
	}

	v.logger.Info("performing preflight request to validate session", "url", v.finalURL)
	result, err := v.prober.Probe(ctx, rec, v.finalURL)
	if err != nil {
		return false, fmt.Sprintf("error checking session: %v", err)
	}

	switch {
	case result.StatusCode == 200:
		return true, "session is valid"
	case result.StatusCode >= 300 && result.StatusCode < 400:
		if strings.Contains(result.Location, v.loginPath) {
			return false, "redirected to login"
		}
		v.logger.Warn("unexpected redirect during validation", "location", result.Location)
		return false, fmt.Sprintf("unexpected redirect to: %s", result.Location)
	default:
		return false, fmt.Sprintf("unexpected status code: %d", result.StatusCode)
	}
}
