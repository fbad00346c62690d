// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-secure-stdlib/strutil"
	"golang.org/x/oauth2"
)

// Provider provides integration with an OIDC provider for a relying party
// using the authorization code flow. It is safe for concurrent use; one
// Provider serves every user of a configured client.
type Provider struct {
	config   *Config
	client   *http.Client
	resolver *Resolver
	nonces   *NonceCache
	logger   hclog.Logger

	mu sync.Mutex

	// backgroundCtx scopes discovery in NewProvider and the nonce cache
	// janitor. Done cancels it.
	backgroundCtx       context.Context
	backgroundCtxCancel context.CancelFunc
	background          sync.WaitGroup
}

// CallbackParams are the query parameters a provider sends to the redirect
// URL once the user has authenticated.
type CallbackParams struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
	ErrorURI         string
}

// NewProvider creates and initializes a Provider. Unless the Config has a
// static ProviderConfig, initializing the provider makes an http request to
// the provider's issuer for discovery.
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w: %w", op, ErrConfiguration, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with it's background ctx/cancel will
	// allow us to use p.Done() to release any resources when returning errors
	// from this function.
	p := &Provider{
		config:              c,
		logger:              c.Logger,
		nonces:              NewNonceCache(),
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}
	if p.logger == nil {
		p.logger = hclog.NewNullLogger()
	}

	client, err := c.HTTPClient()
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	p.client = client

	p.resolver, err = NewResolver(c.Issuer, client,
		WithCacheTTL(c.CacheTTL),
		WithKeyRefreshInterval(c.KeyRefreshInterval),
		WithMaxRetries(c.MaxRetries),
		WithRetryInterval(c.RetryInterval),
		WithSigningAlgs(c.SupportedSigningAlgs...),
		WithProviderConfig(c.ProviderConfig),
		WithLogger(p.logger.Named("resolver")),
		WithNow(c.NowFunc),
	)
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := p.resolver.Metadata(p.backgroundCtx); err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to discover provider: %w", op, err)
	}

	p.background.Add(1)
	go func() {
		defer p.background.Done()
		p.nonces.Run(p.backgroundCtx, c.CacheTTL)
	}()
	return p, nil
}

// Done stops the provider's nonce cache janitor and waits for it to exit. It
// must be called for every Provider created and is safe to call more than
// once.
func (p *Provider) Done() {
	// checking for nil here prevents a panic when developers neglect to check
	// the for an error before deferring a call to p.Done():
	// p, err := NewProvider(...)
	// defer p.Done()
	// if err != nil { ... }
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
	p.background.Wait()
}

// Resolver returns the provider's metadata and signing key resolver.
func (p *Provider) Resolver() *Resolver { return p.resolver }

// Config returns a copy of the provider's configuration.
func (p *Provider) Config() Config { return *p.config }

// StartFlow begins an authorization code flow. It creates a Request with a
// random state and nonce (and a PKCE verifier when the provider supports
// S256) which expires after expireIn, and returns the URL the user agent
// should be redirected to. The caller must keep the Request until the
// callback and then pass it to CompleteFlow.
//
// The Request redirects to the first of the Config's AllowedRedirectURLs.
// Options are the options of NewRequest.
func (p *Provider) StartFlow(ctx context.Context, expireIn time.Duration, opt ...Option) (string, *Req, error) {
	const op = "Provider.StartFlow"
	m, err := p.resolver.Metadata(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := []Option{WithNow(p.config.NowFunc)}
	if m.SupportsPKCE() && getReqOpts(opt...).withVerifier == nil {
		v, err := NewCodeVerifier()
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", op, err)
		}
		opts = append(opts, WithPKCE(v))
	}
	opts = append(opts, opt...)

	req, err := NewRequest(expireIn, p.config.AllowedRedirectURLs[0], opts...)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	authURL, err := p.AuthURL(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	p.logger.Debug("started authorization flow", "state", req.State(), "pkce", req.PKCEVerifier() != nil)
	return authURL, req, nil
}

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with an IdP.
//
// See NewRequest() to create an oidc Request with a valid state and Nonce that
// will uniquely identify the user's authentication attempt throughout the flow.
func (p *Provider) AuthURL(ctx context.Context, oidcRequest Request) (string, error) {
	const op = "Provider.AuthURL"
	if oidcRequest == nil {
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if oidcRequest.State() == oidcRequest.Nonce() {
		return "", fmt.Errorf("%s: request state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	if !p.allowedRedirect(oidcRequest.RedirectURL()) {
		return "", fmt.Errorf("%s: %q: %w", op, oidcRequest.RedirectURL(), ErrInvalidRedirectURL)
	}
	if oidcRequest.IsExpired() {
		return "", fmt.Errorf("%s: %w", op, ErrExpiredRequest)
	}
	m, err := p.resolver.Metadata(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	scopes := oidcRequest.Scopes()
	if len(scopes) == 0 {
		scopes = p.defaultScopes()
	}
	oauth2Config := p.oauth2Config(m, oidcRequest.RedirectURL(), scopes)

	authCodeOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(oidcRequest.Nonce()),
	}
	if v := oidcRequest.PKCEVerifier(); v != nil {
		authCodeOpts = append(authCodeOpts,
			oauth2.SetAuthURLParam("code_challenge", v.Challenge()),
			oauth2.SetAuthURLParam("code_challenge_method", string(v.Method())),
		)
	}
	if secs, ok := oidcRequest.MaxAge(); ok {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("max_age", strconv.FormatUint(uint64(secs), 10)))
	}
	if prompts := oidcRequest.Prompts(); len(prompts) > 0 {
		s := make([]string, 0, len(prompts))
		for _, v := range prompts {
			s = append(s, string(v))
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("prompt", strings.Join(s, " ")))
	}
	if d := oidcRequest.Display(); d != "" {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("display", string(d)))
	}
	if locales := oidcRequest.UILocales(); len(locales) > 0 {
		s := make([]string, 0, len(locales))
		for _, l := range locales {
			s = append(s, l.String())
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("ui_locales", strings.Join(s, " ")))
	}
	if acr := oidcRequest.ACRValues(); len(acr) > 0 {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("acr_values", strings.Join(acr, " ")))
	}
	return oauth2Config.AuthCodeURL(oidcRequest.State(), authCodeOpts...), nil
}

// CompleteFlow finishes the authorization code flow started for oidcRequest
// with the parameters the provider sent to the redirect URL.
//
// The request is consumed before anything else is checked, so it can never
// be completed twice: a second call fails with ErrReplay whether or not the
// first succeeded. An error reported by the provider fails with
// ErrLoginFailed. Otherwise the state must match, the request must not be
// expired, the code is exchanged (once, without retries) and the id_token is
// verified, including its nonce which is then remembered as used.
func (p *Provider) CompleteFlow(ctx context.Context, oidcRequest Request, params CallbackParams) (*Tk, error) {
	const op = "Provider.CompleteFlow"
	if oidcRequest == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if err := oidcRequest.Consume(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if params.Error != "" {
		p.logger.Warn("provider returned an authentication error", "state", params.State, "error", params.Error, "description", params.ErrorDescription)
		return nil, fmt.Errorf("%s: %w: %s: %s", op, ErrLoginFailed, params.Error, params.ErrorDescription)
	}
	tk, err := p.Exchange(ctx, oidcRequest, params.State, params.Code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tk, nil
}

// Exchange will request a token from the oidc token endpoint, using the
// authorizationCode and authorizationState it received in an earlier
// successful oidc authentication response.
//
// Exchange will use PKCE when the user's oidc Request specifies its use.
//
// It will also validate the authorizationState it receives against the
// existing Request for the user's oidc authentication flow.
//
// On success, the Token returned will include an IDToken and may include an
// AccessToken and RefreshToken.
//
// Any tokens returned will have been verified. See: Provider.VerifyIDToken
// for info on id_token verification.
func (p *Provider) Exchange(ctx context.Context, oidcRequest Request, authorizationState string, authorizationCode string) (*Tk, error) {
	const op = "Provider.Exchange"
	if oidcRequest == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if oidcRequest.State() != authorizationState {
		return nil, fmt.Errorf("%s: %w", op, ErrResponseStateInvalid)
	}
	if authorizationCode == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w: %w", op, ErrValidation, ErrInvalidParameter)
	}
	if oidcRequest.IsExpired() {
		return nil, fmt.Errorf("%s: %w", op, ErrExpiredRequest)
	}
	m, err := p.resolver.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	scopes := oidcRequest.Scopes()
	if len(scopes) == 0 {
		scopes = p.defaultScopes()
	}
	oauth2Config := p.oauth2Config(m, oidcRequest.RedirectURL(), scopes)

	var authCodeOpts []oauth2.AuthCodeOption
	if v := oidcRequest.PKCEVerifier(); v != nil {
		authCodeOpts = append(authCodeOpts, oauth2.VerifierOption(v.Verifier()))
	}
	assertion, err := p.clientAssertion()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for k, v := range assertion {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam(k, v[0]))
	}

	oauth2Token, err := oauth2Config.Exchange(HTTPClientContext(ctx, p.client), authorizationCode, authCodeOpts...)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%s: %w: %w: %w", op, ErrExchangeFailed, ErrValidation, err)
		}
		return nil, fmt.Errorf("%s: %w: %w: %w", op, ErrExchangeFailed, ErrNetwork, err)
	}

	// Extract the ID Token from OAuth2 token.
	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingIDToken)
	}
	if _, err := p.verifyIDToken(ctx, rawIDToken, verifyParams{
		nonce:       oidcRequest.Nonce(),
		audiences:   oidcRequest.Audiences(),
		maxAge:      maxAgeOf(oidcRequest),
		accessToken: oauth2Token.AccessToken,
	}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	t, err := NewToken(IDToken(rawIDToken), oauth2Token, WithNow(p.config.NowFunc))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// VerifyIDToken will verify the inbound IDToken and return its claims.
//
// It verifies:
//   - signature (including if a supported signing algorithm was used)
//   - issuer (iss)
//   - expiration (exp) and issued at (iat), allowing for the clock skew
//   - audiences (aud) and, with multiple audiences, authorized party (azp)
//   - nonce (nonce), which must match the request's and is then remembered
//     so the same nonce is never accepted again
//   - auth_time, when the request has a max_age
func (p *Provider) VerifyIDToken(ctx context.Context, t IDToken, oidcRequest Request) (map[string]interface{}, error) {
	const op = "Provider.VerifyIDToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if oidcRequest == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if oidcRequest.Nonce() == "" {
		return nil, fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	claims, err := p.verifyIDToken(ctx, string(t), verifyParams{
		nonce:     oidcRequest.Nonce(),
		audiences: oidcRequest.Audiences(),
		maxAge:    maxAgeOf(oidcRequest),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}

type verifyParams struct {
	nonce       string // empty for refreshed tokens, which are not replay checked
	audiences   []string
	maxAge      *uint
	accessToken string
}

// recordingKeySet keeps the resolver's error, which go-oidc only reports
// as text.
type recordingKeySet struct {
	resolver *Resolver
	err      error
}

func (k *recordingKeySet) VerifySignature(ctx context.Context, token string) ([]byte, error) {
	payload, err := k.resolver.VerifySignature(ctx, token)
	k.err = err
	return payload, err
}

func maxAgeOf(r Request) *uint {
	if secs, ok := r.MaxAge(); ok {
		return &secs
	}
	return nil
}

func (p *Provider) verifyIDToken(ctx context.Context, raw string, vp verifyParams) (map[string]interface{}, error) {
	const op = "Provider.verifyIDToken"
	m, err := p.resolver.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	skew := p.config.ClockSkew
	algs := make([]string, 0, len(p.config.SupportedSigningAlgs))
	for _, a := range p.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	keySet := &recordingKeySet{resolver: p.resolver}
	verifier := oidc.NewVerifier(m.Issuer, keySet, &oidc.Config{
		ClientID:             p.config.ClientID,
		SupportedSigningAlgs: algs,
		SkipClientIDCheck:    true, // audiences are checked below
		Now: func() time.Time {
			return p.config.Now().Add(-skew)
		},
	})
	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		p.logger.Debug("id_token rejected", "error", err)
		if keySet.err != nil {
			return nil, fmt.Errorf("%s: %w", op, keySet.err)
		}
		return nil, fmt.Errorf("%s: %w: %w", op, ErrIDTokenVerifyFailed, err)
	}

	var c IDTokenClaims
	if err := idToken.Claims(&c); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrIDTokenVerifyFailed, err)
	}

	now := p.config.Now()
	switch {
	case idToken.IssuedAt.IsZero():
		return nil, fmt.Errorf("%s: iat is missing: %w", op, ErrInvalidIssuedAt)
	case idToken.IssuedAt.After(now.Add(skew)):
		return nil, fmt.Errorf("%s: issued in the future: %w", op, ErrInvalidIssuedAt)
	}

	audiences := vp.audiences
	if len(audiences) == 0 {
		audiences = p.config.Audiences
	}
	if len(audiences) == 0 {
		audiences = []string{p.config.ClientID}
	}
	if !containsAny(audiences, idToken.Audience) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidAudience)
	}
	if len(idToken.Audience) > 1 && c.AuthorizedParty != "" && c.AuthorizedParty != p.config.ClientID {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidAuthorizedParty)
	}

	if vp.maxAge != nil {
		if c.AuthTime == 0 {
			return nil, fmt.Errorf("%s: auth_time is missing: %w", op, ErrInvalidAuthTime)
		}
		limit := time.Unix(c.AuthTime, 0).Add(time.Duration(*vp.maxAge)*time.Second + skew)
		if now.After(limit) {
			return nil, fmt.Errorf("%s: authentication is older than max_age: %w", op, ErrInvalidAuthTime)
		}
	}

	if vp.accessToken != "" && idToken.AccessTokenHash != "" {
		if err := idToken.VerifyAccessToken(vp.accessToken); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidAtHash, err)
		}
	}

	if vp.nonce != "" {
		if idToken.Nonce != vp.nonce {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidNonce)
		}
		if err := p.nonces.Consume(idToken.Nonce, idToken.Expiry.Add(skew)); err != nil {
			p.logger.Warn("id_token nonce replayed", "sub", idToken.Subject)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	claims := map[string]interface{}{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrIDTokenVerifyFailed, err)
	}
	return claims, nil
}

// UserInfo gets the UserInfo claims from the provider using the token
// produced by the tokenSource. Only JSON user info responses are supported
// (signed JWT responses are not). The WithAudiences option is supported to
// specify optional audiences to verify when the aud claim is present in the
// response.
//
// The validSubject must match the sub claim of the response, which prevents
// token substitution attacks. See:
// https://openid.net/specs/openid-connect-core-1_0.html#UserInfoResponse
func (p *Provider) UserInfo(ctx context.Context, tokenSource oauth2.TokenSource, validSubject string, claims interface{}) error {
	const op = "Provider.UserInfo"
	if tokenSource == nil {
		return fmt.Errorf("%s: token source is nil: %w", op, ErrNilParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	if validSubject == "" {
		return fmt.Errorf("%s: valid subject is empty: %w", op, ErrInvalidParameter)
	}
	m, err := p.resolver.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if m.UserinfoEndpoint == "" {
		return fmt.Errorf("%s: userinfo: %w", op, ErrMissingEndpoint)
	}

	clientCtx := HTTPClientContext(ctx, p.client)
	oidcProvider := (&oidc.ProviderConfig{
		IssuerURL:   m.Issuer,
		AuthURL:     m.AuthorizationEndpoint,
		TokenURL:    m.TokenEndpoint,
		UserInfoURL: m.UserinfoEndpoint,
		JWKSURL:     m.JWKSURI,
		Algorithms:  m.IDTokenSigningAlgs,
	}).NewProvider(clientCtx)
	userinfo, err := oidcProvider.UserInfo(clientCtx, tokenSource)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrUserInfoFailed, err)
	}
	if userinfo.Subject != validSubject {
		return fmt.Errorf("%s: %w", op, ErrInvalidSubject)
	}
	if err := userinfo.Claims(claims); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrUserInfoFailed, err)
	}
	return nil
}

// RefreshToken uses the refresh token of t to get new tokens from the
// provider. When the response includes a new id_token it is verified (its
// nonce is not replay checked) and must be for the same subject as the
// id_token of t; otherwise the id_token of t is kept.
func (p *Provider) RefreshToken(ctx context.Context, t Token) (*Tk, error) {
	const op = "Provider.RefreshToken"
	if t == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	if t.RefreshToken() == "" {
		return nil, fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}
	m, err := p.resolver.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {string(t.RefreshToken())},
	}
	body, err := p.postForm(ctx, m.TokenEndpoint, form, ErrRefreshFailed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var resp struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		IDToken      string `json:"id_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrRefreshFailed, err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%s: %w: access_token is missing: %w", op, ErrRefreshFailed, ErrValidation)
	}
	oauth2Token := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		RefreshToken: resp.RefreshToken,
	}
	if oauth2Token.RefreshToken == "" {
		oauth2Token.RefreshToken = string(t.RefreshToken())
	}
	if resp.ExpiresIn > 0 {
		oauth2Token.Expiry = p.config.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	idToken := t.IDToken()
	if resp.IDToken != "" {
		if _, err := p.verifyIDToken(ctx, resp.IDToken, verifyParams{accessToken: resp.AccessToken}); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		var prev, next IDTokenClaims
		if err := t.IDToken().Claims(&prev); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := IDToken(resp.IDToken).Claims(&next); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if prev.Subject != next.Subject || prev.Issuer != next.Issuer {
			return nil, fmt.Errorf("%s: refreshed id_token is for a different subject: %w", op, ErrInvalidSubject)
		}
		idToken = IDToken(resp.IDToken)
	}
	return NewToken(idToken, oauth2Token, WithNow(p.config.NowFunc))
}

// RevokeToken asks the provider to revoke token (RFC 7009). The hint is
// optional: "access_token" or "refresh_token".
func (p *Provider) RevokeToken(ctx context.Context, token string, hint string) error {
	const op = "Provider.RevokeToken"
	if token == "" {
		return fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	m, err := p.resolver.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if m.RevocationEndpoint == "" {
		return fmt.Errorf("%s: revocation: %w", op, ErrMissingEndpoint)
	}
	form := url.Values{"token": {token}}
	if hint != "" {
		form.Set("token_type_hint", hint)
	}
	if _, err := p.postForm(ctx, m.RevocationEndpoint, form, ErrRevokeFailed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Introspection is a token introspection response (RFC 7662).
type Introspection struct {
	Active bool
	Claims map[string]interface{}
}

// IntrospectToken asks the provider whether token is active (RFC 7662). An
// inactive token is not an error; check Introspection.Active.
func (p *Provider) IntrospectToken(ctx context.Context, token string) (*Introspection, error) {
	const op = "Provider.IntrospectToken"
	if token == "" {
		return nil, fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	m, err := p.resolver.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if m.IntrospectionEndpoint == "" {
		return nil, fmt.Errorf("%s: introspection: %w", op, ErrMissingEndpoint)
	}
	body, err := p.postForm(ctx, m.IntrospectionEndpoint, url.Values{"token": {token}}, ErrIntrospectFailed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims := map[string]interface{}{}
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrIntrospectFailed, err)
	}
	active, _ := claims["active"].(bool)
	return &Introspection{Active: active, Claims: claims}, nil
}

// EndSessionURL returns the provider's RP-initiated logout URL. The
// idTokenHint, postLogoutRedirectURL and state are optional.
func (p *Provider) EndSessionURL(ctx context.Context, idTokenHint IDToken, postLogoutRedirectURL string, state string) (string, error) {
	const op = "Provider.EndSessionURL"
	m, err := p.resolver.Metadata(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if m.EndSessionEndpoint == "" {
		return "", fmt.Errorf("%s: end session: %w", op, ErrMissingEndpoint)
	}
	u, err := url.Parse(m.EndSessionEndpoint)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrMalformedDocument, err)
	}
	q := u.Query()
	q.Set("client_id", p.config.ClientID)
	if idTokenHint != "" {
		q.Set("id_token_hint", string(idTokenHint))
	}
	if postLogoutRedirectURL != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirectURL)
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *Provider) oauth2Config(m *ProviderMetadata, redirectURL string, scopes []string) *oauth2.Config {
	style := oauth2.AuthStyleInHeader
	if p.config.ClientSecret == "" || p.config.ClientAssertion != nil {
		style = oauth2.AuthStyleInParams
	}
	secret := string(p.config.ClientSecret)
	if p.config.ClientAssertion != nil {
		secret = ""
	}
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: secret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   m.AuthorizationEndpoint,
			TokenURL:  m.TokenEndpoint,
			AuthStyle: style,
		},
	}
}

// clientAssertion returns the client_assertion form parameters, or nil when
// the client authenticates with its secret.
func (p *Provider) clientAssertion() (url.Values, error) {
	const op = "Provider.clientAssertion"
	if p.config.ClientAssertion == nil {
		return nil, nil
	}
	s, err := p.config.ClientAssertion.Serialize()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
	}
	return url.Values{
		"client_assertion_type": {clientAssertionType},
		"client_assertion":      {s},
	}, nil
}

// clientAssertionType is the client_assertion_type for JWT assertions.
// https://www.rfc-editor.org/rfc/rfc7523.html#section-2.2
const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// postForm POSTs form to an authenticated provider endpoint once. Non-2xx
// responses fail with failure, transport errors with ErrNetwork as well.
func (p *Provider) postForm(ctx context.Context, endpoint string, form url.Values, failure error) ([]byte, error) {
	assertion, err := p.clientAssertion()
	if err != nil {
		return nil, err
	}
	for k, v := range assertion {
		form[k] = v
	}
	useBasic := assertion == nil && p.config.ClientSecret != ""
	if !useBasic {
		form.Set("client_id", p.config.ClientID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", failure, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if useBasic {
		req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(string(p.config.ClientSecret)))
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", failure, ErrNetwork, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", failure, ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var oauthErr struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		_ = json.Unmarshal(body, &oauthErr)
		return nil, fmt.Errorf("%w: %s: %s %s", failure, resp.Status, oauthErr.Error, oauthErr.Description)
	}
	return body, nil
}

func (p *Provider) defaultScopes() []string {
	return strutil.RemoveDuplicatesStable(append([]string{oidc.ScopeOpenID}, p.config.Scopes...), false)
}

func (p *Provider) allowedRedirect(redirectURL string) bool {
	return redirectURL != "" && strutil.StrListContains(p.config.AllowedRedirectURLs, redirectURL)
}

func containsAny(want, got []string) bool {
	for _, w := range want {
		if strutil.StrListContains(got, w) {
			return true
		}
	}
	return false
}
