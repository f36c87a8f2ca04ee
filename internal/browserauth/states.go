// Package browserauth drives a full interactive portal login through a
// rendering engine. The flow is modeled as a state machine keyed off the
// page URL: the portal bounces through an external identity provider and a
// federation endpoint before landing back on the schedule page.
package browserauth

import (
	"fmt"
	"regexp"
)

// State identifies where in the login flow the current page URL sits.
type State string

const (
	StateInitial    State = "INITIAL"
	StateLoginPage  State = "LOGIN_PAGE"
	StateIDPLogin   State = "IDP_LOGIN"
	StateFederation State = "FEDERATION_LOGIN"
	StateReturnPage State = "RETURN_PAGE"
	StateFinalPage  State = "FINAL_PAGE"
	StateUnknown    State = "UNKNOWN"
)

// Pattern binds a state to the URL regexp that identifies it.
type Pattern struct {
	State State
	Expr  string
}

// DefaultPatterns matches the production portal's login flow. Order matters:
// the classifier returns the first match.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{StateInitial, `^https://tg\.glasir\.fo/?$`},
		{StateLoginPage, `^https://tg\.glasir\.fo/login`},
		{StateIDPLogin, `^https://login\.microsoftonline\.com/`},
		{StateFederation, `^https://adfs\.glasir\.fo/adfs/ls/`},
		{StateReturnPage, `^https://tg\.glasir\.fo/auth/openid/return`},
		{StateFinalPage, `^https://tg\.glasir\.fo/132n/`},
	}
}

// Classifier maps a page URL to a login state by evaluating its patterns in
// order. Classification is pure; it never touches the page.
type Classifier struct {
	patterns []compiledPattern
}

type compiledPattern struct {
	state State
	re    *regexp.Regexp
}

// NewClassifier compiles the given patterns.
func NewClassifier(patterns []Pattern) (*Classifier, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Expr)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern for state %s: %w", p.State, err)
		}
		compiled = append(compiled, compiledPattern{state: p.State, re: re})
	}
	return &Classifier{patterns: compiled}, nil
}

// Classify returns the state for a URL, or StateUnknown when nothing matches.
func (c *Classifier) Classify(url string) State {
	for _, p := range c.patterns {
		if p.re.MatchString(url) {
			return p.state
		}
	}
	return StateUnknown
}
