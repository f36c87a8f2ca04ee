// Package browser abstracts the rendering engine driven by the interactive
// login flow. The production adapter runs Playwright; tests script a fake.
package browser

import (
	"context"
	"time"
)

// Redirect is reported for every 3xx response observed while a page is live.
type Redirect struct {
	From   string
	To     string
	Status int
}

// Page is one live browser page. All selector operations address elements by
// CSS selector; presence checks return false rather than an error when the
// element is absent.
type Page interface {
	// Goto navigates and waits for the DOM to be ready.
	Goto(url string) error

	// URL returns the page's current address.
	URL() string

	// Title returns the current document title.
	Title() (string, error)

	// Reload refreshes the page and waits for the DOM to be ready.
	Reload() error

	// WaitForNetworkIdle waits until network activity settles, up to the
	// given bound. Timing out returns an error.
	WaitForNetworkIdle(timeout time.Duration) error

	// WaitForSelectorVisible waits for a visible element matching the
	// selector. It reports false when the wait times out.
	WaitForSelectorVisible(selector string, timeout time.Duration) (bool, error)

	// HasElement reports whether an element matching the selector exists.
	HasElement(selector string) (bool, error)

	// Fill sets the value of an input element.
	Fill(selector, value string) error

	// Click clicks the first element matching the selector.
	Click(selector string) error

	// Press sends a key press to the element, e.g. "Enter".
	Press(selector, key string) error

	// IsVisible reports whether the element exists and is visible.
	IsVisible(selector string) (bool, error)

	// IsChecked reports whether a checkbox or radio element is checked.
	IsChecked(selector string) (bool, error)

	// Check ensures a checkbox element is checked.
	Check(selector string) error

	// WaitForTimeout sleeps in page time for a fixed duration.
	WaitForTimeout(d time.Duration)

	// Evaluate runs a JavaScript expression in the page and returns its
	// JSON-serializable result.
	Evaluate(expression string) (any, error)

	// Screenshot writes a PNG of the current viewport to path.
	Screenshot(path string) error

	// Cookies returns all cookies in the page's browser context.
	Cookies() ([]Cookie, error)

	// OnRedirect registers a callback invoked for every 3xx response.
	OnRedirect(fn func(Redirect))

	// Close tears down the page and everything acquired with it.
	Close() error
}

// Cookie is a browser-context cookie. Expires is epoch seconds, or -1 for
// session cookies.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  float64
	Secure   bool
	HttpOnly bool
}

// Engine creates pages. Each NewPage call yields an isolated browser
// instance; closing the page releases everything it acquired, so one
// acquisition attempt maps to exactly one NewPage/Close pair.
type Engine interface {
	NewPage(ctx context.Context) (Page, error)
}
