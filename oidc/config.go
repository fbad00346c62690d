// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/strutil"

	"github.com/hashicorp/cap-rp/jwt"
	caphttp "github.com/hashicorp/cap-rp/sdk/http"
)

const (
	// DefaultClockSkew is the tolerance applied to exp and iat when verifying
	// an id_token.
	DefaultClockSkew = 30 * time.Second

	// DefaultCacheTTL is how long provider metadata and signing keys are
	// cached.
	DefaultCacheTTL = time.Hour

	// DefaultKeyRefreshInterval is the minimum time between signing key
	// refreshes caused by tokens with an unknown key id.
	DefaultKeyRefreshInterval = 10 * time.Second

	// DefaultMaxRetries is how many times a failed discovery or key fetch is
	// retried.
	DefaultMaxRetries = 3

	// DefaultRetryInterval is the initial backoff between fetch retries.
	DefaultRetryInterval = 250 * time.Millisecond

	// DefaultHTTPTimeout bounds every request made to the provider.
	DefaultHTTPTimeout = caphttp.DefaultTimeout
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// AssertionSerializer produces a signed client assertion JWT. See the
// clientassertion package.
type AssertionSerializer interface {
	Serialize() (string, error)
}

// Config represents the configuration for an OIDC provider used by a relying
// party.
type Config struct {
	// ClientID is the relying party ID.
	ClientID string

	// ClientSecret is the relying party secret.  This may be empty if you only
	// intend to use the provider with the authorization Code with PKCE or a
	// client assertion.
	ClientSecret ClientSecret

	// Scopes is a list of default oidc scopes to request of the provider. The
	// required "oidc" scope is requested by default, and does not need to be
	// part of this optional list. If a Request has scopes, they will override
	// this configured list for a specific authentication attempt.
	Scopes []string

	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.
	//
	// See the Issuer Identifier spec: https://openid.net/specs/openid-connect-core-1_0.html#IssuerIdentifier
	// See the OIDC connect discovery spec: https://openid.net/specs/openid-connect-discovery-1_0.html#IdentifierURL
	// See the id_token spec: https://tools.ietf.org/html/rfc7519#section-4.1.1
	Issuer string

	// SupportedSigningAlgs is a list of supported signing algorithms. "none"
	// is never supported.
	SupportedSigningAlgs []Alg

	// AllowedRedirectURLs is a list of allowed URLs for the provider to
	// redirect to after a user authenticates.  The first one is used when a
	// flow is started without an explicit redirect URL.
	AllowedRedirectURLs []string

	// Audiences is an optional list of case-sensitive strings to use when
	// verifying an id_token's "aud" claim (which is also a list). If
	// provided, the audiences of an id_token must match one of the configured
	// audiences.  If a Request has audiences, they will override this
	// configured list for a specific authentication attempt.
	Audiences []string

	// ProviderCA is an optional CA certs (PEM encoded) to use when sending
	// requests to the provider. If you have a list of *x509.Certificates, then
	// see EncodeCertificates(...) to PEM encode them.
	ProviderCA string

	// ProviderConfig is optional static provider metadata. Discovery is not
	// performed when it is set.
	ProviderConfig *ProviderMetadata

	// ClockSkew is the tolerance applied to exp and iat.
	ClockSkew time.Duration

	// CacheTTL is how long metadata and signing keys are cached.
	CacheTTL time.Duration

	// KeyRefreshInterval is the minimum time between signing key refreshes
	// caused by an unknown key id.
	KeyRefreshInterval time.Duration

	// MaxRetries bounds the retries of a failed discovery or key fetch.
	MaxRetries uint

	// RetryInterval is the initial backoff between fetch retries.
	RetryInterval time.Duration

	// HTTPTimeout bounds every request made to the provider.
	HTTPTimeout time.Duration

	// ClientAssertion optionally authenticates the client with a signed JWT.
	ClientAssertion AssertionSerializer

	// Logger receives the provider's logs. Never nil after NewConfig.
	Logger hclog.Logger

	// NowFunc is a time func that returns the current time.
	NowFunc func() time.Time
}

// NewConfig composes a new config for a provider.
//
// The "oidc" scope will always be added to the new configuration's Scopes,
// regardless of what additional scopes are requested via the WithScopes
// option and duplicate scopes are allowed.
//
// Supported options:
//   - WithProviderCA
//   - WithScopes
//   - WithAudiences
//   - WithNow
//   - WithLogger
//   - WithProviderConfig
//   - WithClockSkew
//   - WithCacheTTL
//   - WithKeyRefreshInterval
//   - WithMaxRetries
//   - WithRetryInterval
//   - WithHTTPTimeout
//   - WithClientAssertionJWT
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, supported []Alg, allowedRedirectURLs []string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:               issuer,
		ClientID:             clientID,
		ClientSecret:         clientSecret,
		SupportedSigningAlgs: supported,
		Scopes:               opts.withScopes,
		ProviderCA:           opts.withProviderCA,
		Audiences:            opts.withAudiences,
		AllowedRedirectURLs:  allowedRedirectURLs,
		ProviderConfig:       opts.withProviderConfig,
		ClockSkew:            opts.withClockSkew,
		CacheTTL:             opts.withCacheTTL,
		KeyRefreshInterval:   opts.withKeyRefreshInterval,
		MaxRetries:           opts.withMaxRetries,
		RetryInterval:        opts.withRetryInterval,
		HTTPTimeout:          opts.withHTTPTimeout,
		ClientAssertion:      opts.withClientAssertion,
		Logger:               opts.withLogger,
		NowFunc:              opts.withNowFunc,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration.  Among other validations, it verifies
// the issuer is not empty, but it doesn't verify the Issuer is discoverable
// via an http request.  SupportedSigningAlgs are validated against the list
// of currently supported algs: RS256, RS384, RS512, ES256, ES384, ES512,
// PS256, PS384, PS512, EdDSA.
//
// Every problem found is reported, and the returned error matches both
// ErrConfiguration and ErrInvalidParameter.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w: %w", op, ErrConfiguration, ErrNilParameter)
	}

	var result *multierror.Error
	add := func(format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf(format+": %w", append(args, ErrInvalidParameter)...))
	}

	if c.ClientID == "" {
		add("client ID is empty")
	}
	if c.Issuer == "" {
		add("issuer is empty")
	} else {
		u, err := url.Parse(c.Issuer)
		switch {
		case err != nil:
			add("issuer %q is invalid (%s)", c.Issuer, err)
		case !strutil.StrListContains([]string{"https", "http"}, u.Scheme):
			add("issuer %q scheme is not http or https", c.Issuer)
		case u.RawQuery != "" || u.Fragment != "":
			add("issuer %q must not have a query or fragment", c.Issuer)
		}
	}
	if len(c.AllowedRedirectURLs) == 0 {
		add("allowed redirect URLs is empty")
	}
	for _, r := range c.AllowedRedirectURLs {
		if u, err := url.Parse(r); err != nil || !u.IsAbs() {
			add("redirect URL %q is not an absolute URL", r)
		}
	}
	if len(c.SupportedSigningAlgs) == 0 {
		add("supported algorithms is empty")
	}
	if err := jwt.SupportedSigningAlgorithm(c.SupportedSigningAlgs...); err != nil {
		add("%s", err)
	}
	if c.ProviderCA != "" {
		if _, err := caphttp.NewClient(c.ProviderCA); err != nil {
			add("provider CA is not a valid PEM")
		}
	}
	if c.ProviderConfig != nil {
		if err := c.ProviderConfig.validate(c.Issuer); err != nil {
			add("static provider config (%s)", err)
		}
	}
	for name, d := range map[string]time.Duration{
		"clock skew":           c.ClockSkew,
		"cache TTL":            c.CacheTTL,
		"key refresh interval": c.KeyRefreshInterval,
		"retry interval":       c.RetryInterval,
		"HTTP timeout":         c.HTTPTimeout,
	} {
		if d < 0 {
			add("%s must not be negative", name)
		}
	}
	if c.CacheTTL == 0 || c.HTTPTimeout == 0 {
		add("cache TTL and HTTP timeout must be greater than zero")
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
	}
	return nil
}

// Now will return the current time which can be overridden by the NowFunc
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now() // fallback to this default
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured, honouring ProviderCA and HTTPTimeout.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	client, err := caphttp.NewClient(c.ProviderCA, caphttp.WithTimeout(c.HTTPTimeout))
	if err != nil {
		if errors.Is(err, caphttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w: %w", op, ErrConfiguration, err)
	}
	return client, nil
}

// HTTPClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	return caphttp.ClientContext(ctx, client)
}

// EncodeCertificates will encode a number of x509 certificates to PEMs.
func EncodeCertificates(certs ...*x509.Certificate) (string, error) {
	const op = "EncodeCertificates"
	var buffer strings.Builder
	if len(certs) == 0 {
		return "", fmt.Errorf("%s: no certs provided: %w", op, ErrInvalidParameter)
	}
	for _, cert := range certs {
		if cert == nil {
			return "", fmt.Errorf("%s: empty cert: %w", op, ErrNilParameter)
		}
		if err := pem.Encode(&buffer, &pem.Block{
			Type:  "CERTIFICATE",
			Bytes: cert.Raw,
		}); err != nil {
			return "", fmt.Errorf("%s: unable to encode cert: %w", op, err)
		}
	}
	return buffer.String(), nil
}

// configOptions is the set of available options
type configOptions struct {
	withScopes             []string
	withAudiences          []string
	withProviderCA         string
	withProviderConfig     *ProviderMetadata
	withClockSkew          time.Duration
	withCacheTTL           time.Duration
	withKeyRefreshInterval time.Duration
	withMaxRetries         uint
	withRetryInterval      time.Duration
	withHTTPTimeout        time.Duration
	withClientAssertion    AssertionSerializer
	withLogger             hclog.Logger
	withNowFunc            func() time.Time
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{
		withClockSkew:          DefaultClockSkew,
		withMaxRetries:         DefaultMaxRetries,
		withCacheTTL:           DefaultCacheTTL,
		withKeyRefreshInterval: DefaultKeyRefreshInterval,
		withRetryInterval:      DefaultRetryInterval,
		withHTTPTimeout:        DefaultHTTPTimeout,
		withLogger:             hclog.NewNullLogger(),
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
