// Package session defines the persisted session record and the lightweight
// validator that decides whether a cached session is still usable.
package session

import (
	"net/http"
	"time"
)

// AuthCookieName is the persistent authentication cookie issued by the
// external identity provider. Its presence and expiry gate session validity.
const AuthCookieName = "ESTSAUTHPERSISTENT"

// NoExpiry marks a cookie without an expiration timestamp.
const NoExpiry = -1

// TimestampLayout is the human-readable creation timestamp format carried in
// session records.
const TimestampLayout = "2006-01-02 15:04:05"

// Cookie is one browser cookie captured from a login flow.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // epoch seconds, or NoExpiry
	Secure   bool    `json:"secure"`
	HttpOnly bool    `json:"httpOnly,omitempty"`
}

// HasExpiry reports whether the cookie carries a finite expiration.
func (c Cookie) HasExpiry() bool {
	return c.Expires > 0
}

// ExpiresAt returns the cookie expiration time. Only meaningful when
// HasExpiry is true.
func (c Cookie) ExpiresAt() time.Time {
	return time.Unix(int64(c.Expires), 0)
}

// Redirect is one entry of the redirect log collected during an interactive
// login attempt.
type Redirect struct {
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	To        string `json:"to"`
	Status    int    `json:"status"`
}

// Record is the persisted authentication state for one identity profile.
// Records are replaced wholesale on every successful re-authentication.
type Record struct {
	Cookies           []Cookie          `json:"cookies"`
	RequestHeaders    map[string]string `json:"requestHeaders"`
	LocalStorage      [][2]string       `json:"localStorage,omitempty"`
	SessionStorage    [][2]string       `json:"sessionStorage,omitempty"`
	Timestamp         string            `json:"timestamp"`
	LastAccessSuccess float64           `json:"last_access_success,omitempty"` // epoch seconds
	FinalURL          string            `json:"finalUrl,omitempty"`
	PageTitle         string            `json:"pageTitle,omitempty"`
	Redirections      []Redirect        `json:"redirections,omitempty"`
}

// AuthCookie returns the distinguished authentication cookie, if present.
func (r *Record) AuthCookie() (Cookie, bool) {
	for _, c := range r.Cookies {
		if c.Name == AuthCookieName {
			return c, true
		}
	}
	return Cookie{}, false
}

// Stamp sets the creation timestamp and last-access-success time. The
// orchestrator calls this once per successful acquisition before persisting.
func (r *Record) Stamp(now time.Time) {
	r.Timestamp = now.Format(TimestampLayout)
	r.LastAccessSuccess = float64(now.Unix())
}

// HTTPCookies exposes the record's cookie set as net/http cookies. This is
// the handoff contract for collaborators that scrape the portal with the
// cached session (e.g. the schedule exporter).
func (r *Record) HTTPCookies() []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(r.Cookies))
	for _, c := range r.Cookies {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if c.HasExpiry() {
			hc.Expires = c.ExpiresAt()
		}
		cookies = append(cookies, hc)
	}
	return cookies
}

// Clone returns a deep copy of the record so stores can hand out records
// without sharing mutable state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Cookies = append([]Cookie(nil), r.Cookies...)
	out.Redirections = append([]Redirect(nil), r.Redirections...)
	out.LocalStorage = append([][2]string(nil), r.LocalStorage...)
	out.SessionStorage = append([][2]string(nil), r.SessionStorage...)
	if r.RequestHeaders != nil {
		out.RequestHeaders = make(map[string]string, len(r.RequestHeaders))
		for k, v := range r.RequestHeaders {
			out.RequestHeaders[k] = v
		}
	}
	return &out
}

// DefaultRequestHeaders are the browser-like headers stamped into records
// created by the interactive authenticator.
func DefaultRequestHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
		"Accept-Language": "en-US,en;q=0.9",
	}
}
