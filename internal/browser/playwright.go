package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/dnjord/glasir-login/internal/log"
)

// EngineOptions configures the Playwright engine.
type EngineOptions struct {
	Headless  bool
	Timeout   time.Duration // default timeout for page operations
	UserAgent string
	Locale    string
	Timezone  string
}

// PlaywrightEngine launches a fresh Chromium instance per page. The driver
// and browser live exactly as long as the page, so a failed login attempt
// never leaks state into the next one.
type PlaywrightEngine struct {
	opts   EngineOptions
	logger *log.Logger
}

var _ Engine = (*PlaywrightEngine)(nil)

// NewPlaywrightEngine creates a Playwright-backed engine.
func NewPlaywrightEngine(opts EngineOptions, logger *log.Logger) *PlaywrightEngine {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Locale == "" {
		opts.Locale = "en-US"
	}
	if opts.Timezone == "" {
		opts.Timezone = "Europe/London"
	}
	return &PlaywrightEngine{opts: opts, logger: logger}
}

func (e *PlaywrightEngine) NewPage(ctx context.Context) (Page, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(e.opts.Headless),
		Args:     []string{"--disable-blink-features=AutomationControlled"},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launching chromium: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport:   &playwright.Size{Width: 1280, Height: 800},
		Locale:     playwright.String(e.opts.Locale),
		TimezoneId: playwright.String(e.opts.Timezone),
	}
	if e.opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(e.opts.UserAgent)
	}
	browserCtx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	browserCtx.SetDefaultTimeout(float64(e.opts.Timeout.Milliseconds()))

	page, err := browserCtx.NewPage()
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("creating page: %w", err)
	}

	e.logger.Debug("browser page acquired", "headless", e.opts.Headless)
	return &playwrightPage{
		pw:      pw,
		browser: browser,
		context: browserCtx,
		page:    page,
		timeout: e.opts.Timeout,
		logger:  e.logger,
	}, nil
}

type playwrightPage struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	timeout time.Duration
	logger  *log.Logger
}

var _ Page = (*playwrightPage)(nil)

func (p *playwrightPage) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(p.timeout.Milliseconds())),
	})
	return err
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Title() (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) Reload() error {
	_, err := p.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(p.timeout.Milliseconds())),
	})
	return err
}

func (p *playwrightPage) WaitForNetworkIdle(timeout time.Duration) error {
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *playwrightPage) WaitForSelectorVisible(selector string, timeout time.Duration) (bool, error) {
	handle, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		// Timeouts mean "not there", which the login flow treats as an
		// ordinary branch, not a failure.
		return false, nil
	}
	return handle != nil, nil
}

func (p *playwrightPage) HasElement(selector string) (bool, error) {
	handle, err := p.page.QuerySelector(selector)
	if err != nil {
		return false, err
	}
	return handle != nil, nil
}

func (p *playwrightPage) Fill(selector, value string) error {
	return p.page.Fill(selector, value)
}

func (p *playwrightPage) Click(selector string) error {
	return p.page.Click(selector)
}

func (p *playwrightPage) Press(selector, key string) error {
	return p.page.Press(selector, key)
}

func (p *playwrightPage) IsVisible(selector string) (bool, error) {
	return p.page.IsVisible(selector)
}

func (p *playwrightPage) IsChecked(selector string) (bool, error) {
	return p.page.IsChecked(selector)
}

func (p *playwrightPage) Check(selector string) error {
	return p.page.Check(selector)
}

func (p *playwrightPage) WaitForTimeout(d time.Duration) {
	p.page.WaitForTimeout(float64(d.Milliseconds()))
}

func (p *playwrightPage) Evaluate(expression string) (any, error) {
	return p.page.Evaluate(expression)
}

func (p *playwrightPage) Screenshot(path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path: playwright.String(path),
	})
	return err
}

func (p *playwrightPage) Cookies() ([]Cookie, error) {
	raw, err := p.context.Cookies()
	if err != nil {
		return nil, fmt.Errorf("reading browser cookies: %w", err)
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	return cookies, nil
}

func (p *playwrightPage) OnRedirect(fn func(Redirect)) {
	p.page.On("response", func(resp playwright.Response) {
		status := resp.Status()
		if status < 300 || status >= 400 {
			return
		}
		location, err := resp.HeaderValue("location")
		if err != nil || location == "" {
			location = "unknown"
		}
		fn(Redirect{
			From:   resp.Request().URL(),
			To:     location,
			Status: status,
		})
	})
}

func (p *playwrightPage) Close() error {
	if err := p.browser.Close(); err != nil {
		p.logger.Warn("closing browser", "error", err)
	}
	return p.pw.Stop()
}
