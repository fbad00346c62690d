// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-secure-stdlib/strutil"
	"golang.org/x/text/language"
)

// Request basically represents one OIDC authentication flow for a user. It
// contains the data needed to uniquely represent that one-time flow across
// the multiple interactions needed to complete the OIDC flow the user is
// attempting.
//
// Request() is passed throughout the OIDC interactions to uniquely identify
// the flow's request. The Request.State() and Request.Nonce() cannot be
// equal, and will be used during the OIDC flow to prevent CSRF and replay
// attacks (see the oidc spec for specifics).
//
// A Request is single use. Provider.CompleteFlow consumes it before doing
// anything else, so a second attempt with the same Request fails with
// ErrReplay whatever the outcome of the first.
type Request interface {
	// State is a unique identifier and an opaque value used to maintain
	// request between the oidc request and the callback. State cannot equal
	// the Nonce. See https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest.
	State() string

	// Nonce is a unique nonce and a string value used to associate a Client
	// session with an ID Token, and to mitigate replay attacks. Nonce cannot
	// equal the ID.
	Nonce() string

	// IsExpired returns true if the request has expired. Implementations
	// should support a time skew (perhaps RequestExpirySkew) when checking
	// expiration.
	IsExpired() bool

	// ExpiresAt is when the request expires. Stores use it as a TTL.
	ExpiresAt() time.Time

	// RedirectURL is a URL where providers will redirect responses to
	// authentication requests.
	RedirectURL() string

	// Scopes is a specific set of scopes to request for this request.
	Scopes() []string

	// Audiences is a specific set of audiences to accept for this request.
	Audiences() []string

	// PKCEVerifier is the PKCE code verifier, nil when PKCE is not used.
	PKCEVerifier() CodeVerifier

	// MaxAge is the max_age in seconds, and ok is false when it is unset.
	MaxAge() (seconds uint, ok bool)

	// Prompts for the authentication request.
	Prompts() []Prompt

	// Display for the authentication request.
	Display() Display

	// UILocales for the authentication request.
	UILocales() []language.Tag

	// ACRValues for the authentication request.
	ACRValues() []string

	// Consume marks the request as used. It returns ErrRequestAlreadyUsed
	// when called more than once.
	Consume() error
}

// Prompt is a value of the prompt parameter of an authentication request.
type Prompt string

const (
	None          Prompt = "none"
	Login         Prompt = "login"
	Consent       Prompt = "consent"
	SelectAccount Prompt = "select_account"
)

// Display is the value of the display parameter of an authentication request.
type Display string

const (
	Page  Display = "page"
	Popup Display = "popup"
	Touch Display = "touch"
	WAP   Display = "wap"
)

// RequestExpirySkew defines a time skew when checking a Request's expiration.
const RequestExpirySkew = 1 * time.Second

// Req represents the oidc request used for oidc flows and implements the
// Request interface.
type Req struct {
	state       string
	nonce       string
	expiration  time.Time
	redirectURL string
	scopes      []string
	audiences   []string
	verifier    CodeVerifier
	maxAge      *uint
	prompts     []Prompt
	display     Display
	uiLocales   []language.Tag
	acrValues   []string

	mu       sync.Mutex
	consumed bool

	// nowFunc is an optional function that returns the current time
	nowFunc func() time.Time
}

var _ Request = (*Req)(nil)

// NewRequest creates a new Request.
//
// Supported Options:
//   - WithState
//   - WithNonce
//   - WithNow
//   - WithScopes
//   - WithAudiences
//   - WithPKCE
//   - WithMaxAge
//   - WithPrompts
//   - WithDisplay
//   - WithUILocales
//   - WithACRValues
func NewRequest(expireIn time.Duration, redirectURL string, opt ...Option) (*Req, error) {
	const op = "oidc.NewRequest"
	opts := getReqOpts(opt...)
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn must be greater than zero: %w", op, ErrInvalidParameter)
	}
	if redirectURL == "" {
		return nil, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	for _, p := range opts.withPrompts {
		if p == None && len(opts.withPrompts) > 1 {
			return nil, fmt.Errorf("%s: prompt none cannot be combined with other prompts: %w", op, ErrInvalidParameter)
		}
	}

	state := opts.withState
	if state == "" {
		var err error
		if state, err = NewID(WithPrefix("st")); err != nil {
			return nil, fmt.Errorf("%s: unable to generate a request's state: %w", op, err)
		}
	}
	nonce := opts.withNonce
	if nonce == "" {
		var err error
		if nonce, err = NewID(WithPrefix("n")); err != nil {
			return nil, fmt.Errorf("%s: unable to generate a request's nonce: %w", op, err)
		}
	}
	if state == nonce {
		return nil, fmt.Errorf("%s: state and nonce must not be equal: %w", op, ErrInvalidParameter)
	}

	r := &Req{
		state:       state,
		nonce:       nonce,
		redirectURL: redirectURL,
		scopes:      opts.withScopes,
		audiences:   opts.withAudiences,
		verifier:    opts.withVerifier,
		maxAge:      opts.withMaxAge,
		prompts:     opts.withPrompts,
		display:     opts.withDisplay,
		uiLocales:   opts.withUILocales,
		acrValues:   opts.withACRValues,
		nowFunc:     opts.withNowFunc,
	}
	r.expiration = r.now().Add(expireIn)
	return r, nil
}

// State implements the Request.State() interface function.
func (r *Req) State() string { return r.state }

// Nonce implements the Request.Nonce() interface function.
func (r *Req) Nonce() string { return r.nonce }

// ExpiresAt implements the Request.ExpiresAt() interface function.
func (r *Req) ExpiresAt() time.Time { return r.expiration }

// RedirectURL implements the Request.RedirectURL() interface function.
func (r *Req) RedirectURL() string { return r.redirectURL }

// Audiences implements the Request.Audiences() interface function.
func (r *Req) Audiences() []string { return r.audiences }

// PKCEVerifier implements the Request.PKCEVerifier() interface function.
func (r *Req) PKCEVerifier() CodeVerifier { return r.verifier }

// Prompts implements the Request.Prompts() interface function.
func (r *Req) Prompts() []Prompt { return r.prompts }

// Display implements the Request.Display() interface function.
func (r *Req) Display() Display { return r.display }

// UILocales implements the Request.UILocales() interface function.
func (r *Req) UILocales() []language.Tag { return r.uiLocales }

// ACRValues implements the Request.ACRValues() interface function.
func (r *Req) ACRValues() []string { return r.acrValues }

// Scopes implements the Request.Scopes() interface function. When scopes
// were requested, openid is always the first of them.
func (r *Req) Scopes() []string {
	if len(r.scopes) == 0 {
		return nil
	}
	return strutil.RemoveDuplicatesStable(append([]string{oidc.ScopeOpenID}, r.scopes...), false)
}

// MaxAge implements the Request.MaxAge() interface function.
func (r *Req) MaxAge() (uint, bool) {
	if r.maxAge == nil {
		return 0, false
	}
	return *r.maxAge, true
}

// IsExpired returns true if the request has expired, allowing for
// RequestExpirySkew.
func (r *Req) IsExpired() bool {
	return !r.expiration.After(r.now().Add(RequestExpirySkew))
}

// Consume implements the Request.Consume() interface function.
func (r *Req) Consume() error {
	const op = "Req.Consume"
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumed {
		return fmt.Errorf("%s: %w", op, ErrRequestAlreadyUsed)
	}
	r.consumed = true
	return nil
}

// now returns the current time using the optional timeFn
func (r *Req) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now() // fallback to this default
}

// reqJSON is the serialized form of a Req. The consumed flag is not
// persisted: stores provide single use by deleting on read.
type reqJSON struct {
	State       string    `json:"state"`
	Nonce       string    `json:"nonce"`
	Expiration  time.Time `json:"expiration"`
	RedirectURL string    `json:"redirect_url"`
	Scopes      []string  `json:"scopes,omitempty"`
	Audiences   []string  `json:"audiences,omitempty"`
	Verifier    string    `json:"pkce_verifier,omitempty"`
	MaxAge      *uint     `json:"max_age,omitempty"`
	Prompts     []Prompt  `json:"prompts,omitempty"`
	Display     Display   `json:"display,omitempty"`
	UILocales   []string  `json:"ui_locales,omitempty"`
	ACRValues   []string  `json:"acr_values,omitempty"`
}

// MarshalJSON encodes the request, including its PKCE verifier, so it can be
// kept in a shared store between the authentication request and the
// callback. Treat the output as a secret.
func (r *Req) MarshalJSON() ([]byte, error) {
	j := reqJSON{
		State:       r.state,
		Nonce:       r.nonce,
		Expiration:  r.expiration,
		RedirectURL: r.redirectURL,
		Scopes:      r.scopes,
		Audiences:   r.audiences,
		MaxAge:      r.maxAge,
		Prompts:     r.prompts,
		Display:     r.display,
		ACRValues:   r.acrValues,
	}
	if r.verifier != nil {
		j.Verifier = r.verifier.Verifier()
	}
	for _, l := range r.uiLocales {
		j.UILocales = append(j.UILocales, l.String())
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a request encoded by MarshalJSON.
func (r *Req) UnmarshalJSON(data []byte) error {
	const op = "Req.UnmarshalJSON"
	var j reqJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if j.State == "" || j.Nonce == "" {
		return fmt.Errorf("%s: missing state or nonce: %w", op, ErrInvalidParameter)
	}
	var verifier CodeVerifier
	if j.Verifier != "" {
		v, err := newS256Verifier(j.Verifier)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		verifier = v
	}
	locales := make([]language.Tag, 0, len(j.UILocales))
	for _, l := range j.UILocales {
		tag, err := language.Parse(l)
		if err != nil {
			return fmt.Errorf("%s: invalid ui locale %q: %w", op, l, err)
		}
		locales = append(locales, tag)
	}
	*r = Req{
		state:       j.State,
		nonce:       j.Nonce,
		expiration:  j.Expiration,
		redirectURL: j.RedirectURL,
		scopes:      j.Scopes,
		audiences:   j.Audiences,
		verifier:    verifier,
		maxAge:      j.MaxAge,
		prompts:     j.Prompts,
		display:     j.Display,
		acrValues:   j.ACRValues,
	}
	if len(locales) > 0 {
		r.uiLocales = locales
	}
	return nil
}

// reqOptions is the set of available options for Req functions
type reqOptions struct {
	withNowFunc   func() time.Time
	withScopes    []string
	withAudiences []string
	withVerifier  CodeVerifier
	withState     string
	withNonce     string
	withMaxAge    *uint
	withPrompts   []Prompt
	withDisplay   Display
	withUILocales []language.Tag
	withACRValues []string
}

// reqDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func reqDefaults() reqOptions {
	return reqOptions{}
}

// getReqOpts gets the request defaults and applies the opt overrides passed in
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
