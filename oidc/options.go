// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-secure-stdlib/strutil"
	"golang.org/x/text/language"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
//
// Valid for: Config, Request, Resolver and Tk
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *configOptions:
			v.withNowFunc = now
		case *reqOptions:
			v.withNowFunc = now
		case *resolverOptions:
			v.withNowFunc = now
		case *tokenOptions:
			v.withNowFunc = now
		}
	}
}

// WithScopes provides an optional list of scopes. The openid scope is always
// included and does not need to be passed.
//
// Valid for: Config and Request
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withScopes = strutil.RemoveDuplicatesStable(append(v.withScopes, scopes...), false)
		case *reqOptions:
			v.withScopes = strutil.RemoveDuplicatesStable(append(v.withScopes, scopes...), false)
		}
	}
}

// WithAudiences provides an optional list of audiences. When set, an ID
// token is accepted if its aud claim contains at least one of them. When
// unset, the aud claim must contain the client id.
//
// Valid for: Config and Request
func WithAudiences(auds ...string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withAudiences = strutil.RemoveDuplicatesStable(append(v.withAudiences, auds...), false)
		case *reqOptions:
			v.withAudiences = strutil.RemoveDuplicatesStable(append(v.withAudiences, auds...), false)
		}
	}
}

// WithLogger provides an optional logger. The default discards everything.
//
// Valid for: Config and Resolver
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *configOptions:
			v.withLogger = l
		case *resolverOptions:
			v.withLogger = l
		}
	}
}

// WithCacheTTL overrides how long provider metadata and signing keys are
// cached before they are fetched again. Defaults to DefaultCacheTTL.
//
// Valid for: Config and Resolver
func WithCacheTTL(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withCacheTTL = d
		case *resolverOptions:
			v.withCacheTTL = d
		}
	}
}

// WithKeyRefreshInterval overrides the minimum time between signing key
// refreshes triggered by a token with an unknown key id. Defaults to
// DefaultKeyRefreshInterval.
//
// Valid for: Config and Resolver
func WithKeyRefreshInterval(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withKeyRefreshInterval = d
		case *resolverOptions:
			v.withKeyRefreshInterval = d
		}
	}
}

// WithMaxRetries overrides how many times a failed discovery or key fetch is
// retried. Defaults to DefaultMaxRetries.
//
// Valid for: Config and Resolver
func WithMaxRetries(n uint) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withMaxRetries = n
		case *resolverOptions:
			v.withMaxRetries = n
		}
	}
}

// WithRetryInterval overrides the initial backoff between fetch retries.
// Defaults to DefaultRetryInterval.
//
// Valid for: Config and Resolver
func WithRetryInterval(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withRetryInterval = d
		case *resolverOptions:
			v.withRetryInterval = d
		}
	}
}

// WithProviderConfig provides static provider metadata. Discovery is not
// performed when it is set.
//
// Valid for: Config and Resolver
func WithProviderConfig(m *ProviderMetadata) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withProviderConfig = m
		case *resolverOptions:
			v.withProviderConfig = m
		}
	}
}

// WithSigningAlgs sets the allow-list of signature algorithms a Resolver
// will verify. Defaults to RS256.
//
// Valid for: Resolver
func WithSigningAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if v, ok := o.(*resolverOptions); ok {
			v.withSigningAlgs = algs
		}
	}
}

// WithProviderCA provides optional CA certs (PEM encoded) for the provider's
// config.  These certs will can be used when making http requests to the
// provider.
//
// Valid for: Config
//
// See: EncodeCertificates(...) to PEM encode a number of certs.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withProviderCA = cert
		}
	}
}

// WithClockSkew overrides the tolerance applied to exp and iat when
// verifying ID tokens. Defaults to DefaultClockSkew.
//
// Valid for: Config
func WithClockSkew(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withClockSkew = d
		}
	}
}

// WithHTTPTimeout overrides the timeout of every outbound request to the
// provider. Defaults to DefaultHTTPTimeout.
//
// Valid for: Config
func WithHTTPTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withHTTPTimeout = d
		}
	}
}

// WithClientAssertionJWT authenticates the client at the token, revocation
// and introspection endpoints with a signed JWT (private_key_jwt or
// client_secret_jwt) instead of the client secret. A fresh assertion is
// serialized for every request.
//
// Valid for: Config
func WithClientAssertionJWT(s AssertionSerializer) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withClientAssertion = s
		}
	}
}

// WithPKCE provides an optional PKCE code verifier for a Request. When
// omitted, Provider.StartFlow creates one if the provider supports S256.
//
// Valid for: Request
func WithPKCE(v CodeVerifier) Option {
	return func(o interface{}) {
		if opts, ok := o.(*reqOptions); ok {
			opts.withVerifier = v
		}
	}
}

// WithState provides an explicit state for a Request instead of a random one.
//
// Valid for: Request
func WithState(s string) Option {
	return func(o interface{}) {
		if v, ok := o.(*reqOptions); ok {
			v.withState = s
		}
	}
}

// WithNonce provides an explicit nonce for a Request instead of a random one.
//
// Valid for: Request
func WithNonce(n string) Option {
	return func(o interface{}) {
		if v, ok := o.(*reqOptions); ok {
			v.withNonce = n
		}
	}
}

// WithPrompts provides an optional list of values for the prompt parameter
// of the authentication request.
//
// Valid for: Request
func WithPrompts(prompts ...Prompt) Option {
	return func(o interface{}) {
		if v, ok := o.(*reqOptions); ok {
			v.withPrompts = append(v.withPrompts, prompts...)
		}
	}
}

// WithMaxAge provides the max_age parameter of the authentication request.
// The returned ID token must then carry an auth_time no older than
// maxAge seconds.
//
// Valid for: Request
func WithMaxAge(maxAge uint) Option {
	return func(o interface{}) {
		if v, ok := o.(*reqOptions); ok {
			v.withMaxAge = &maxAge
		}
	}
}

// WithUILocales provides the ui_locales parameter of the authentication
// request.
//
// Valid for: Request
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if v, ok := o.(*reqOptions); ok {
			v.withUILocales = append(v.withUILocales, locales...)
		}
	}
}

// WithPrefix provides an optional prefix for a generated id.
//
// Valid for: NewID
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if v, ok := o.(*idOptions); ok {
			v.withPrefix = prefix
		}
	}
}

// WithDisplay provides the display parameter of the authentication request.
//
// Valid for: Request
func WithDisplay(d Display) Option {
	return func(o interface{}) {
		if v, ok := o.(*reqOptions); ok {
			v.withDisplay = d
		}
	}
}

// WithACRValues provides the acr_values parameter of the authentication
// request, in order of preference.
//
// Valid for: Request
func WithACRValues(values ...string) Option {
	return func(o interface{}) {
		if v, ok := o.(*reqOptions); ok {
			v.withACRValues = append(v.withACRValues, values...)
		}
	}
}
