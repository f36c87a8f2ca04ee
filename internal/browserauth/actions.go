package browserauth

import (
	"path/filepath"
	"time"

	"github.com/dnjord/glasir-login/internal/browser"
	"github.com/dnjord/glasir-login/internal/profile"
)

// Selectors for the identity provider and federation login forms.
const (
	emailSelector        = `input[type="email"]`
	passwordSelector     = `input[type="password"]`
	submitSelector       = `input[type="submit"]`
	staySignedInSelector = `#idSIButton9`

	keepSignedInSelector         = `#kmsiInput`
	keepSignedInFallbackSelector = `input[type="checkbox"][name="Kmsi"]`
	federationSubmitSelector     = `#submitButton, span.submit, input[type="submit"]`
)

// staySignedInWait bounds the optional "stay signed in" prompt; its absence
// is normal.
const staySignedInWait = 5 * time.Second

// act performs the current state's interaction. Errors mean "no progress
// this iteration"; the driving loop logs them and reclassifies.
func (a *Authenticator) act(page browser.Page, state State, creds profile.Credentials, attemptID string) error {
	switch state {
	case StateIDPLogin:
		return a.actIDPLogin(page, creds, attemptID)
	case StateFederation:
		return a.actFederation(page, creds)
	default:
		// INITIAL, LOGIN_PAGE, RETURN_PAGE, UNKNOWN: wait for the portal's
		// automatic redirects.
		return nil
	}
}

// actIDPLogin fills the identity provider's two-step email/password form and
// dismisses the optional "stay signed in" prompt.
func (a *Authenticator) actIDPLogin(page browser.Page, creds profile.Credentials, attemptID string) error {
	a.screenshot(page, attemptID, "idp_login")

	if err := page.WaitForNetworkIdle(a.opts.Timeout); err != nil {
		return err
	}

	emailVisible, err := page.WaitForSelectorVisible(emailSelector, a.opts.Timeout)
	if err != nil {
		return err
	}
	if emailVisible {
		a.logger.Info("filling identity field", "email", creds.Email)
		if err := page.Fill(emailSelector, creds.Email); err != nil {
			return err
		}
		nextVisible, err := page.WaitForSelectorVisible(submitSelector, a.opts.Timeout)
		if err != nil {
			return err
		}
		if nextVisible {
			if err := page.Click(submitSelector); err != nil {
				return err
			}
			if err := page.WaitForNetworkIdle(a.opts.Timeout); err != nil {
				a.logger.Trace("network idle wait elapsed after identity submit")
			}
		} else {
			a.logger.Warn("submit control not found after entering identity")
		}
	} else {
		a.logger.Warn("identity input field not found")
	}

	// The password form swaps in client-side; give it a beat.
	page.WaitForTimeout(time.Second)

	passwordVisible, err := page.WaitForSelectorVisible(passwordSelector, a.opts.Timeout)
	if err != nil {
		return err
	}
	if passwordVisible {
		a.logger.Info("filling password on identity provider page")
		if err := page.Fill(passwordSelector, creds.Password); err != nil {
			return err
		}
		a.screenshot(page, attemptID, "idp_password")

		hasSubmit, err := page.HasElement(submitSelector)
		if err != nil {
			return err
		}
		if hasSubmit {
			if err := page.Click(submitSelector); err != nil {
				return err
			}
		} else if err := page.Press(passwordSelector, "Enter"); err != nil {
			return err
		}
		if err := page.WaitForNetworkIdle(a.opts.Timeout); err != nil {
			a.logger.Trace("network idle wait elapsed after password submit")
		}
	} else {
		a.logger.Warn("password input field not found")
	}

	if visible, _ := page.WaitForSelectorVisible(staySignedInSelector, staySignedInWait); visible {
		a.logger.Info("confirming stay-signed-in prompt")
		return page.Click(staySignedInSelector)
	}
	a.logger.Debug("no stay-signed-in prompt shown")
	return nil
}

// actFederation handles the secondary federation login: ensure the
// keep-me-signed-in box is checked, fill the password, submit.
func (a *Authenticator) actFederation(page browser.Page, creds profile.Credentials) error {
	hasPassword, err := page.HasElement(passwordSelector)
	if err != nil {
		return err
	}
	if !hasPassword {
		return nil
	}

	if visible, _ := page.IsVisible(keepSignedInSelector); visible {
		checked, err := page.IsChecked(keepSignedInSelector)
		if err != nil {
			return err
		}
		if !checked {
			a.logger.Info("checking keep-me-signed-in box")
			if err := page.Check(keepSignedInSelector); err != nil {
				return err
			}
		}
	} else if hasFallback, _ := page.HasElement(keepSignedInFallbackSelector); hasFallback {
		checked, err := page.IsChecked(keepSignedInFallbackSelector)
		if err != nil {
			return err
		}
		if !checked {
			a.logger.Info("checking keep-me-signed-in box via fallback selector")
			if err := page.Click(keepSignedInFallbackSelector); err != nil {
				return err
			}
		}
	}

	a.logger.Info("filling password on federation page")
	if err := page.Fill(passwordSelector, creds.Password); err != nil {
		return err
	}

	hasSubmit, err := page.HasElement(federationSubmitSelector)
	if err != nil {
		return err
	}
	if hasSubmit {
		return page.Click(federationSubmitSelector)
	}
	a.logger.Debug("no submit control found, pressing enter on password field")
	return page.Press(passwordSelector, "Enter")
}

// screenshot writes a diagnostic screenshot, best-effort.
func (a *Authenticator) screenshot(page browser.Page, attemptID, label string) {
	if a.opts.ScreenshotsDir == "" {
		return
	}
	path := filepath.Join(a.opts.ScreenshotsDir, attemptID+"_"+label+".png")
	if err := page.Screenshot(path); err != nil {
		a.logger.Debug("screenshot failed", "label", label, "error", err)
		return
	}
	a.logger.Trace("screenshot saved", "path", path)
}
