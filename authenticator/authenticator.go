// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authenticator

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/cap-rp/jwt"
	"github.com/hashicorp/cap-rp/oidc"
	"github.com/hashicorp/cap-rp/oidc/store"
)

// Authenticator authenticates the users of one named client.
type Authenticator struct {
	name      string
	provider  *oidc.Provider
	requests  store.RequestStore
	sessions  SessionStore
	validator *jwt.Validator
	logger    hclog.Logger

	stateCookie   string
	sessionCookie string
	opts          options
}

// New creates an Authenticator for the client name. Pending login requests
// are kept in requests.
//
// Supported options:
//   - WithLogger
//   - WithSessionStore
//   - WithSessionCleanupInterval
//   - WithUserIdentifierClaim
//   - WithUserInfo
//   - WithRequestTTL
//   - WithSessionTTL
//   - WithCookieName
//   - WithInsecureCookies
//   - WithLoginURL
//   - WithPostLogoutURL
//   - WithSuccessFunc
//   - WithFailureFunc
//   - WithRequestOptions
//   - WithNow
func New(name string, p *oidc.Provider, requests store.RequestStore, opt ...oidc.Option) (*Authenticator, error) {
	const op = "authenticator.New"
	switch {
	case name == "":
		return nil, fmt.Errorf("%s: name is empty: %w", op, oidc.ErrInvalidParameter)
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, oidc.ErrInvalidParameter)
	case requests == nil:
		return nil, fmt.Errorf("%s: request store is nil: %w", op, oidc.ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	if opts.withSessionStore == nil {
		opts.withSessionStore = NewMemorySessionStore(WithSessionCleanupInterval(opts.withSessionCleanupInterval))
	}
	if opts.withCookieName == "" {
		opts.withCookieName = "rp_" + name
	}
	v, err := jwt.NewValidator(p.Resolver().KeySet())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Authenticator{
		name:          name,
		provider:      p,
		requests:      requests,
		sessions:      opts.withSessionStore,
		validator:     v,
		logger:        opts.withLogger.Named("authenticator").With("client", name),
		stateCookie:   opts.withCookieName + "_state",
		sessionCookie: opts.withCookieName + "_session",
		opts:          opts,
	}, nil
}

// Name returns the client name.
func (a *Authenticator) Name() string { return a.name }

// Provider returns the Authenticator's provider.
func (a *Authenticator) Provider() *oidc.Provider { return a.provider }

// Login starts an authorization code flow and redirects the user to the
// provider. The request is kept in the request store and bound to the
// browser with a cookie holding its state.
func (a *Authenticator) Login(w http.ResponseWriter, r *http.Request) {
	const op = "Authenticator.Login"
	ctx := r.Context()
	authURL, req, err := a.provider.StartFlow(ctx, a.opts.withRequestTTL, a.opts.withRequestOptions...)
	if err != nil {
		a.logger.Error("unable to start login", "op", op, "error", err)
		http.Error(w, "login is unavailable", http.StatusInternalServerError)
		return
	}
	if err := a.requests.Put(ctx, req); err != nil {
		a.logger.Error("unable to store login request", "op", op, "error", err)
		http.Error(w, "login is unavailable", http.StatusInternalServerError)
		return
	}
	a.setCookie(w, a.stateCookie, req.State(), a.opts.withRequestTTL)
	a.logger.Debug("login started", "op", op, "expires", req.ExpiresAt())
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the flow Login started. The request is taken out of the
// store before anything else, so a callback can only be used once.
func (a *Authenticator) Callback(w http.ResponseWriter, r *http.Request) {
	const op = "Authenticator.Callback"
	ctx := r.Context()
	params := oidc.CallbackParams{
		State:            r.FormValue("state"),
		Code:             r.FormValue("code"),
		Error:            r.FormValue("error"),
		ErrorDescription: r.FormValue("error_description"),
		ErrorURI:         r.FormValue("error_uri"),
	}
	c, cookieErr := r.Cookie(a.stateCookie)
	a.clearCookie(w, a.stateCookie)
	req, err := a.requests.Take(ctx, params.State)
	if err != nil {
		a.fail(w, r, fmt.Errorf("%s: %w", op, err))
		return
	}
	if cookieErr != nil || subtle.ConstantTimeCompare([]byte(c.Value), []byte(params.State)) != 1 {
		a.fail(w, r, fmt.Errorf("%s: state is not bound to this browser: %w", op, oidc.ErrResponseStateInvalid))
		return
	}

	tk, err := a.provider.CompleteFlow(ctx, req, params)
	if err != nil {
		a.fail(w, r, fmt.Errorf("%s: %w", op, err))
		return
	}
	claims := map[string]interface{}{}
	if err := tk.IDToken().Claims(&claims); err != nil {
		a.fail(w, r, fmt.Errorf("%s: %w", op, err))
		return
	}
	var userInfo map[string]interface{}
	if a.opts.withUserInfo {
		sub, _ := claims["sub"].(string)
		userInfo = map[string]interface{}{}
		if err := a.provider.UserInfo(ctx, tk.StaticTokenSource(), sub, &userInfo); err != nil {
			a.fail(w, r, fmt.Errorf("%s: %w", op, err))
			return
		}
	}
	p, err := newPrincipal(a.name, a.opts.withUserIdentifierClaim, claims, userInfo)
	if err != nil {
		a.fail(w, r, fmt.Errorf("%s: %w", op, err))
		return
	}
	p.IDToken = tk.IDToken()
	p.ExpiresAt = a.opts.withNowFunc().Add(a.opts.withSessionTTL)

	id, err := a.sessions.Create(ctx, p, a.opts.withSessionTTL)
	if err != nil {
		a.fail(w, r, fmt.Errorf("%s: %w", op, err))
		return
	}
	a.setCookie(w, a.sessionCookie, id, a.opts.withSessionTTL)
	a.logger.Info("login completed", "op", op, "identifier", p.Identifier)
	a.opts.withSuccessFunc(w, r, p)
}

// Authenticate returns the Principal of r. The session cookie is tried
// first, then an "Authorization: Bearer" token.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	const op = "Authenticator.Authenticate"
	token, hasBearer := BearerToken(r)
	if c, err := r.Cookie(a.sessionCookie); err == nil && c.Value != "" {
		p, err := a.sessions.Get(ctx, c.Value)
		switch {
		case err == nil:
			return p, nil
		case !hasBearer:
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if hasBearer {
		p, err := a.AuthenticateToken(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
}

// AuthenticateToken validates a bearer token issued by the provider. Its iss
// must be the provider's issuer and its aud must contain one of the
// configured audiences, or the client id when none are configured.
func (a *Authenticator) AuthenticateToken(ctx context.Context, token string) (*Principal, error) {
	const op = "Authenticator.AuthenticateToken"
	cfg := a.provider.Config()
	auds := cfg.Audiences
	if len(auds) == 0 {
		auds = []string{cfg.ClientID}
	}
	claims, err := a.validator.Validate(ctx, token, jwt.Expected{
		Issuer:            cfg.Issuer,
		Audiences:         auds,
		SigningAlgorithms: cfg.SupportedSigningAlgs,
		ClockSkewLeeway:   cfg.ClockSkew,
		Now:               a.opts.withNowFunc,
	}, jwt.WithRequiredClaims("sub"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidBearerToken, err)
	}
	p, err := newPrincipal(a.name, a.opts.withUserIdentifierClaim, claims, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.Bearer = true
	p.ExpiresAt, _ = claimTime(claims, "exp")
	return p, nil
}

// Middleware authenticates every request before next sees it. The Principal
// is available to next via PrincipalFromContext. Unauthenticated API
// requests get the FailureFunc response; browsers are redirected to the
// login URL.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const op = "Authenticator.Middleware"
		p, err := a.Authenticate(r.Context(), r)
		if err != nil {
			if isAPIRequest(r) {
				a.fail(w, r, fmt.Errorf("%s: %w", op, err))
				return
			}
			a.logger.Debug("redirecting to login", "op", op, "path", r.URL.Path, "error", err)
			http.Redirect(w, r, a.opts.withLoginURL, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), p)))
	})
}

// Logout ends the user's session and redirects to the provider's
// end_session_endpoint, or straight to the post logout URL when the
// provider has none.
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) {
	const op = "Authenticator.Logout"
	ctx := r.Context()
	var hint oidc.IDToken
	if c, err := r.Cookie(a.sessionCookie); err == nil && c.Value != "" {
		if p, err := a.sessions.Get(ctx, c.Value); err == nil {
			hint = p.IDToken
		}
		if err := a.sessions.Delete(ctx, c.Value); err != nil {
			a.logger.Warn("unable to delete session", "op", op, "error", err)
		}
	}
	a.clearCookie(w, a.sessionCookie)

	target := a.opts.withPostLogoutURL
	if target == "" {
		target = "/"
	}
	endSession, err := a.provider.EndSessionURL(ctx, hint, a.opts.withPostLogoutURL, "")
	switch {
	case err == nil:
		target = endSession
	case errors.Is(err, oidc.ErrMissingEndpoint):
	default:
		a.logger.Warn("unable to build end session url", "op", op, "error", err)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *Authenticator) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Warn("authentication failed", "path", r.URL.Path, "error", err)
	a.opts.withFailureFunc(w, r, err)
}

func (a *Authenticator) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   !a.opts.withInsecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *Authenticator) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !a.opts.withInsecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// BearerToken returns the token from an "Authorization: Bearer" header. The
// scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	t := strings.TrimSpace(h[7:])
	return t, t != ""
}

func isAPIRequest(r *http.Request) bool {
	if r.Header.Get("Authorization") != "" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
