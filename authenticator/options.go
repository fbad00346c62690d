// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authenticator

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/cap-rp/oidc"
)

const (
	// DefaultRequestTTL is how long a user has to complete a login.
	DefaultRequestTTL = 5 * time.Minute

	// DefaultSessionTTL is how long a session lasts after login.
	DefaultSessionTTL = 8 * time.Hour

	// DefaultUserIdentifierClaim is the claim used for Principal.Identifier.
	DefaultUserIdentifierClaim = "sub"

	// DefaultLoginURL is where Middleware sends unauthenticated browsers.
	DefaultLoginURL = "/login"
)

// SuccessFunc writes the response to a completed login.
type SuccessFunc func(w http.ResponseWriter, r *http.Request, p *Principal)

// FailureFunc writes the response to a failed login or authentication.
// err is the specific reason and must not be shown to the user.
type FailureFunc func(w http.ResponseWriter, r *http.Request, err error)

// DefaultSuccessFunc redirects to "/".
func DefaultSuccessFunc(w http.ResponseWriter, r *http.Request, _ *Principal) {
	http.Redirect(w, r, "/", http.StatusFound)
}

// DefaultFailureFunc responds 401 "authentication failed".
func DefaultFailureFunc(w http.ResponseWriter, _ *http.Request, _ error) {
	http.Error(w, "authentication failed", http.StatusUnauthorized)
}

// options is the set of available options
type options struct {
	withLogger                 hclog.Logger
	withSessionStore           SessionStore
	withSessionCleanupInterval time.Duration
	withUserIdentifierClaim    string
	withUserInfo               bool
	withRequestTTL             time.Duration
	withSessionTTL             time.Duration
	withCookieName             string
	withInsecureCookies        bool
	withLoginURL               string
	withPostLogoutURL          string
	withSuccessFunc            SuccessFunc
	withFailureFunc            FailureFunc
	withRequestOptions         []oidc.Option
	withNowFunc                func() time.Time
}

func getDefaults() options {
	return options{
		withLogger:                 hclog.NewNullLogger(),
		withSessionCleanupInterval: DefaultSessionCleanupInterval,
		withUserIdentifierClaim:    DefaultUserIdentifierClaim,
		withRequestTTL:             DefaultRequestTTL,
		withSessionTTL:             DefaultSessionTTL,
		withLoginURL:               DefaultLoginURL,
		withSuccessFunc:            DefaultSuccessFunc,
		withFailureFunc:            DefaultFailureFunc,
		withNowFunc:                time.Now,
	}
}

func getOpts(opt ...oidc.Option) options {
	opts := getDefaults()
	oidc.ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && l != nil {
			v.withLogger = l
		}
	}
}

// WithSessionStore overrides the default MemorySessionStore.
func WithSessionStore(s SessionStore) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && s != nil {
			v.withSessionStore = s
		}
	}
}

// WithSessionCleanupInterval overrides DefaultSessionCleanupInterval.
//
// Valid for: MemorySessionStore
func WithSessionCleanupInterval(d time.Duration) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && d > 0 {
			v.withSessionCleanupInterval = d
		}
	}
}

// WithUserIdentifierClaim overrides DefaultUserIdentifierClaim.
func WithUserIdentifierClaim(claim string) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && claim != "" {
			v.withUserIdentifierClaim = claim
		}
	}
}

// WithUserInfo fetches the provider's userinfo during the callback and keeps
// it in Principal.UserInfo.
func WithUserInfo() oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withUserInfo = true
		}
	}
}

// WithRequestTTL overrides DefaultRequestTTL.
func WithRequestTTL(d time.Duration) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && d > 0 {
			v.withRequestTTL = d
		}
	}
}

// WithSessionTTL overrides DefaultSessionTTL.
func WithSessionTTL(d time.Duration) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && d > 0 {
			v.withSessionTTL = d
		}
	}
}

// WithCookieName sets the prefix of the state and session cookie names. The
// default is "rp_<name>".
func WithCookieName(name string) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withCookieName = name
		}
	}
}

// WithInsecureCookies drops the Secure attribute from cookies. Only use it
// for plain http development servers.
func WithInsecureCookies() oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withInsecureCookies = true
		}
	}
}

// WithLoginURL overrides DefaultLoginURL.
func WithLoginURL(u string) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && u != "" {
			v.withLoginURL = u
		}
	}
}

// WithPostLogoutURL is where users land after logout. It is sent to the
// provider as the post_logout_redirect_uri. Defaults to "/".
func WithPostLogoutURL(u string) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withPostLogoutURL = u
		}
	}
}

// WithSuccessFunc overrides DefaultSuccessFunc.
func WithSuccessFunc(fn SuccessFunc) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && fn != nil {
			v.withSuccessFunc = fn
		}
	}
}

// WithFailureFunc overrides DefaultFailureFunc.
func WithFailureFunc(fn FailureFunc) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && fn != nil {
			v.withFailureFunc = fn
		}
	}
}

// WithRequestOptions are passed to Provider.StartFlow for every login, for
// example oidc.WithScopes or oidc.WithPrompts.
func WithRequestOptions(opt ...oidc.Option) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withRequestOptions = append(v.withRequestOptions, opt...)
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
func WithNow(now func() time.Time) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && now != nil {
			v.withNowFunc = now
		}
	}
}
