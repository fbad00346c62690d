// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package registry builds independent named OIDC clients from
// configuration. Each client has its own oidc.Provider, and so its own
// metadata and key cache, and its own authenticator.Authenticator.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/strutil"
	"golang.org/x/sync/errgroup"

	"github.com/hashicorp/cap-rp/authenticator"
	"github.com/hashicorp/cap-rp/oidc"
	"github.com/hashicorp/cap-rp/oidc/store"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Client is one named client.
type Client struct {
	Name          string
	Provider      *oidc.Provider
	Authenticator *authenticator.Authenticator
}

// Registry holds named clients. It is safe for concurrent use once built.
type Registry struct {
	clients  map[string]*Client
	byIssuer map[string][]*Client
	logger   hclog.Logger
}

// New builds a Client for every entry of clients. Every invalid entry is
// reported in the returned error, which matches oidc.ErrConfiguration.
//
// Supported options:
//   - WithLogger
//   - WithRequestStore
//   - WithAuthenticatorOptions
//   - WithConfigOptions
//   - WithWarmUp
func New(ctx context.Context, clients map[string]ClientConfig, opt ...oidc.Option) (*Registry, error) {
	const op = "registry.New"
	if len(clients) == 0 {
		return nil, fmt.Errorf("%s: no clients configured: %w: %w", op, oidc.ErrConfiguration, oidc.ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	if opts.withRequestStore == nil {
		opts.withRequestStore = store.NewMemoryStore()
	}
	logger := opts.withLogger.Named("registry")

	r := &Registry{
		clients:  make(map[string]*Client, len(clients)),
		byIssuer: map[string][]*Client{},
		logger:   logger,
	}
	var result *multierror.Error
	for _, name := range sortedNames(clients) {
		c, err := r.build(name, clients[name], opts)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("client %q: %w", name, err))
			continue
		}
		r.clients[name] = c
		iss := normalizeIssuer(c.Provider.Config().Issuer)
		r.byIssuer[iss] = append(r.byIssuer[iss], c)
	}
	if err := result.ErrorOrNil(); err != nil {
		r.Close()
		return nil, fmt.Errorf("%s: %w: %w", op, oidc.ErrConfiguration, err)
	}

	if opts.withWarmUp {
		r.warmUp(ctx)
	}
	logger.Info("clients registered", "clients", strings.Join(r.Names(), ","))
	return r, nil
}

func (r *Registry) build(name string, cc ClientConfig, opts options) (*Client, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("name must only contain letters, digits, '-' and '_': %w", oidc.ErrInvalidParameter)
	}
	logger := opts.withLogger.Named(name).With("client", name)

	cfg, err := cc.ToConfig(append([]oidc.Option{oidc.WithLogger(logger)}, opts.withConfigOptions...)...)
	if err != nil {
		return nil, err
	}
	p, err := oidc.NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	aOpts := []oidc.Option{
		authenticator.WithLogger(logger),
		authenticator.WithUserIdentifierClaim(cc.UserIdentifierClaim),
		authenticator.WithPostLogoutURL(cc.PostLogoutURL),
	}
	if cc.UserInfo {
		aOpts = append(aOpts, authenticator.WithUserInfo())
	}
	if opts.withAuthenticatorOptions != nil {
		aOpts = append(aOpts, opts.withAuthenticatorOptions(name)...)
	}
	a, err := authenticator.New(name, p, opts.withRequestStore, aOpts...)
	if err != nil {
		p.Done()
		return nil, err
	}
	return &Client{Name: name, Provider: p, Authenticator: a}, nil
}

// warmUp fetches the signing keys of every client concurrently.
func (r *Registry) warmUp(ctx context.Context) {
	var g errgroup.Group
	for _, c := range r.clients {
		c := c
		g.Go(func() error {
			if _, err := c.Provider.Resolver().SigningKeys(ctx); err != nil {
				r.logger.Warn("unable to warm up client", "client", c.Name, "error", err, "retryable", oidc.IsRetryable(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Client returns the named client.
func (r *Registry) Client(name string) (*Client, error) {
	const op = "Registry.Client"
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%s: client %q: %w", op, name, oidc.ErrNotFound)
	}
	return c, nil
}

// Names returns the client names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ForToken returns the client a JWT was issued for, using its unverified
// iss and aud claims. The token must still be validated, for example with
// AuthenticateToken.
func (r *Registry) ForToken(token string) (*Client, error) {
	const op = "Registry.ForToken"
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, oidc.ErrInvalidParameter, err)
	}
	iss, err := claims.GetIssuer()
	if err != nil || iss == "" {
		return nil, fmt.Errorf("%s: token has no issuer: %w", op, oidc.ErrInvalidParameter)
	}
	candidates := r.byIssuer[normalizeIssuer(iss)]
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%s: no client for issuer %q: %w", op, iss, oidc.ErrNotFound)
	case 1:
		return candidates[0], nil
	}

	// several clients share the issuer, so the audience decides
	aud, _ := claims.GetAudience()
	var found *Client
	for _, c := range candidates {
		cfg := c.Provider.Config()
		want := cfg.Audiences
		if len(want) == 0 {
			want = []string{cfg.ClientID}
		}
		if !containsAny(want, aud) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%s: token matches clients %q and %q: %w", op, found.Name, c.Name, oidc.ErrInvalidParameter)
		}
		found = c
	}
	if found == nil {
		return nil, fmt.Errorf("%s: no client for issuer %q and audience %q: %w", op, iss, aud, oidc.ErrNotFound)
	}
	return found, nil
}

// AuthenticateToken routes a bearer token with ForToken and validates it with
// that client's authenticator.
func (r *Registry) AuthenticateToken(ctx context.Context, token string) (*authenticator.Principal, error) {
	const op = "Registry.AuthenticateToken"
	c, err := r.ForToken(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, authenticator.ErrInvalidBearerToken, err)
	}
	p, err := c.Authenticator.AuthenticateToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// Close releases every client's resources.
func (r *Registry) Close() {
	for _, c := range r.clients {
		c.Provider.Done()
	}
}

func sortedNames(clients map[string]ClientConfig) []string {
	names := make([]string, 0, len(clients))
	for n := range clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func containsAny(want, got []string) bool {
	for _, w := range want {
		if strutil.StrListContains(got, w) {
			return true
		}
	}
	return false
}

func normalizeIssuer(iss string) string {
	return strings.TrimSuffix(iss, "/")
}
