// Package httpauth is the network side of session acquisition: the
// validator's probe and the cookie-replay fast path. Both build a short-lived
// browser-fingerprint HTTP client per call, so they are safe to run
// concurrently across profiles.
package httpauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sardanioss/httpcloak/client"

	"github.com/dnjord/glasir-login/internal/log"
	"github.com/dnjord/glasir-login/internal/session"
)

// DefaultPreset is the browser fingerprint used when none is configured.
const DefaultPreset = "chrome-131"

// Failure reports an ordinary negative re-authentication outcome. Transport
// errors, wrong status codes, and unexpected destinations all surface as
// Failure; the fast path never panics or leaks raw errors for these.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string {
	return "re-authentication failed: " + f.Reason
}

// Options configures the HTTP authenticator.
type Options struct {
	// Preset selects the httpcloak browser fingerprint.
	Preset string

	// Timeout bounds each request.
	Timeout time.Duration

	// TargetURL is the protected resource fetched by probes and re-auth.
	TargetURL string

	// FinalURL is the substring the resolved URL must contain for a
	// re-authentication to count as landed on the portal.
	FinalURL string
}

// Client performs cookie-replay requests against the portal.
type Client struct {
	opts   Options
	logger *log.Logger
}

var _ session.Prober = (*Client)(nil)

// NewClient creates an HTTP authenticator.
func NewClient(opts Options, logger *log.Logger) *Client {
	if opts.Preset == "" {
		opts.Preset = DefaultPreset
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{opts: opts, logger: logger}
}

// Probe issues a single non-redirect-following GET with the record's cookies
// and headers. It reports the raw outcome; interpretation belongs to the
// validator.
func (c *Client) Probe(ctx context.Context, rec *session.Record, target string) (*session.ProbeResult, error) {
	hc := client.NewClient(c.opts.Preset, client.WithTimeout(c.opts.Timeout), client.WithoutRedirects())
	defer hc.Close()

	if err := seedJar(hc, rec, target); err != nil {
		return nil, err
	}

	resp, err := hc.Do(ctx, newRequest(rec, target))
	if err != nil {
		return nil, err
	}

	c.logger.Trace("session probe", "url", target, "status", resp.StatusCode)
	return &session.ProbeResult{
		StatusCode: resp.StatusCode,
		Location:   resp.Headers["location"],
	}, nil
}

// Reauthenticate replays the record's cookies against the target resource,
// following redirects. Success requires HTTP 200 and a final URL on the
// expected destination; the returned record carries the refreshed cookie jar
// and the seed record's request headers, with timestamps left unset for the
// orchestrator to stamp.
func (c *Client) Reauthenticate(ctx context.Context, rec *session.Record) (*session.Record, error) {
	start := time.Now()

	hc := client.NewClient(c.opts.Preset, client.WithTimeout(c.opts.Timeout))
	defer hc.Close()

	if err := seedJar(hc, rec, c.opts.TargetURL); err != nil {
		return nil, &Failure{Reason: err.Error()}
	}

	resp, err := hc.Do(ctx, newRequest(rec, c.opts.TargetURL))
	if err != nil {
		return nil, &Failure{Reason: fmt.Sprintf("request error: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Failure{Reason: fmt.Sprintf("unexpected status code: %d", resp.StatusCode)}
	}
	if !strings.Contains(resp.FinalURL, c.opts.FinalURL) {
		return nil, &Failure{Reason: fmt.Sprintf("landed on unexpected URL: %s", resp.FinalURL)}
	}

	fresh := &session.Record{
		Cookies:        harvestJar(hc),
		RequestHeaders: cloneHeaders(rec.RequestHeaders),
		FinalURL:       resp.FinalURL,
	}

	c.logger.Timing("fast path re-authentication", start)
	c.logger.Debug("fast path re-authentication succeeded",
		"finalUrl", resp.FinalURL, "cookies", len(fresh.Cookies))
	return fresh, nil
}

func newRequest(rec *session.Record, target string) *client.Request {
	req := &client.Request{Method: http.MethodGet, URL: target, Headers: make(map[string]string, len(rec.RequestHeaders))}
	for k, v := range rec.RequestHeaders {
		req.Headers[k] = v
	}
	return req
}

// seedJar loads the record's cookies into the client's jar under the target
// URL so domain matching works for both portal and identity-provider cookies.
func seedJar(hc *client.Client, rec *session.Record, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parsing target URL: %w", err)
	}

	hc.EnableCookies()
	cookies := make([]*client.Cookie, 0, len(rec.Cookies))
	for _, c := range rec.Cookies {
		cookie := &client.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if cookie.Domain == "" {
			cookie.Domain = u.Hostname()
		}
		if c.HasExpiry() {
			cookie.Expires = c.ExpiresAt()
		}
		cookies = append(cookies, cookie)
	}
	hc.Cookies().SetCookies(u, cookies)
	return nil
}

// harvestJar converts the client's full cookie jar back into record cookies.
func harvestJar(hc *client.Client) []session.Cookie {
	var out []session.Cookie
	for _, domain := range hc.Cookies().AllCookies() {
		for _, c := range domain {
			cookie := session.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  session.NoExpiry,
				Secure:   c.Secure,
				HttpOnly: c.HttpOnly,
			}
			if !c.Expires.IsZero() {
				cookie.Expires = float64(c.Expires.Unix())
			}
			out = append(out, cookie)
		}
	}
	return out
}

func cloneHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return session.DefaultRequestHeaders()
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}
