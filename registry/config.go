// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"fmt"
	"time"

	"github.com/hashicorp/cap-rp/oidc"
)

// FileConfig is the layout of a configuration file listing clients by name.
type FileConfig struct {
	Clients map[string]ClientConfig `mapstructure:"clients"`
}

// ClientConfig configures one named client. Zero durations and counts keep
// the oidc package defaults.
type ClientConfig struct {
	Issuer       string   `mapstructure:"issuer"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURLs []string `mapstructure:"redirect_urls"`
	Scopes       []string `mapstructure:"scopes"`
	Audiences    []string `mapstructure:"audiences"`

	// SigningAlgs defaults to RS256.
	SigningAlgs []string `mapstructure:"signing_algs"`

	// ProviderCA is a PEM bundle trusted for requests to the provider.
	ProviderCA string `mapstructure:"provider_ca"`

	ClockSkew          time.Duration `mapstructure:"clock_skew"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	KeyRefreshInterval time.Duration `mapstructure:"key_refresh_interval"`
	MaxRetries         uint          `mapstructure:"max_retries"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`

	// UserIdentifierClaim defaults to "sub".
	UserIdentifierClaim string `mapstructure:"user_identifier_claim"`

	// UserInfo fetches the userinfo response during login.
	UserInfo bool `mapstructure:"userinfo"`

	// PostLogoutURL is where users land after logout.
	PostLogoutURL string `mapstructure:"post_logout_url"`
}

// ToConfig converts c into a validated oidc.Config. The opts are appended
// to the ones derived from c, so they win.
func (c ClientConfig) ToConfig(opt ...oidc.Option) (*oidc.Config, error) {
	const op = "ClientConfig.ToConfig"
	algs := make([]oidc.Alg, 0, len(c.SigningAlgs))
	for _, a := range c.SigningAlgs {
		algs = append(algs, oidc.Alg(a))
	}
	if len(algs) == 0 {
		algs = []oidc.Alg{oidc.RS256}
	}

	opts := []oidc.Option{
		oidc.WithScopes(c.Scopes...),
		oidc.WithAudiences(c.Audiences...),
		oidc.WithProviderCA(c.ProviderCA),
	}
	if c.ClockSkew > 0 {
		opts = append(opts, oidc.WithClockSkew(c.ClockSkew))
	}
	if c.CacheTTL > 0 {
		opts = append(opts, oidc.WithCacheTTL(c.CacheTTL))
	}
	if c.KeyRefreshInterval > 0 {
		opts = append(opts, oidc.WithKeyRefreshInterval(c.KeyRefreshInterval))
	}
	if c.MaxRetries > 0 {
		opts = append(opts, oidc.WithMaxRetries(c.MaxRetries))
	}
	if c.HTTPTimeout > 0 {
		opts = append(opts, oidc.WithHTTPTimeout(c.HTTPTimeout))
	}
	opts = append(opts, opt...)

	cfg, err := oidc.NewConfig(c.Issuer, c.ClientID, oidc.ClientSecret(c.ClientSecret), algs, c.RedirectURLs, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return cfg, nil
}
