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
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-jose/go-jose/v4"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"

	"github.com/hashicorp/cap-rp/jwt"
)

// maxDocumentSize bounds discovery and key set responses.
const maxDocumentSize = 1 << 20

// SigningKeySet is a provider's published signing keys as of FetchedAt.
type SigningKeySet struct {
	// FetchedAt is when the keys were fetched.
	FetchedAt time.Time

	byID      map[string]jose.JSONWebKey
	anonymous []jose.JSONWebKey
}

func newSigningKeySet(jwks jose.JSONWebKeySet, fetchedAt time.Time) *SigningKeySet {
	ks := &SigningKeySet{
		FetchedAt: fetchedAt,
		byID:      make(map[string]jose.JSONWebKey, len(jwks.Keys)),
	}
	for _, k := range jwks.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if !k.IsPublic() {
			continue
		}
		if k.KeyID == "" {
			ks.anonymous = append(ks.anonymous, k)
			continue
		}
		ks.byID[k.KeyID] = k
	}
	return ks
}

// Keys returns every signing key in the set.
func (ks *SigningKeySet) Keys() []jose.JSONWebKey {
	keys := make([]jose.JSONWebKey, 0, len(ks.byID)+len(ks.anonymous))
	for _, k := range ks.byID {
		keys = append(keys, k)
	}
	return append(keys, ks.anonymous...)
}

// Lookup returns the key with the given key id.
func (ks *SigningKeySet) Lookup(kid string) (jose.JSONWebKey, bool) {
	k, ok := ks.byID[kid]
	return k, ok
}

// Resolver discovers a provider's metadata and signing keys and caches both
// for a TTL. It is safe for concurrent use and meant to be shared by every
// request for one issuer.
//
// Concurrent refreshes collapse into one outbound fetch. A token signed with
// an unknown key id triggers a key refresh at most once per key refresh
// interval. Discovery and key fetches are retried with exponential backoff
// when the failure is transient; every other request to the provider is made
// once. A shared fetch is not cancelled by any one caller's context; each
// caller stops waiting when its own context is done.
type Resolver struct {
	issuer          string
	client          *http.Client
	cacheTTL        time.Duration
	refreshInterval time.Duration
	maxRetries      uint
	retryInterval   time.Duration
	algs            []jose.SignatureAlgorithm
	static          *ProviderMetadata
	logger          hclog.Logger
	nowFunc         func() time.Time

	group singleflight.Group

	mu              sync.RWMutex
	metadata        *ProviderMetadata
	metadataFetched time.Time
	keys            *SigningKeySet
	lastForced      time.Time

	// stale copies served after a failed refresh stay usable until these
	metadataRetryAt time.Time
	keysRetryAt     time.Time
}

// NewResolver creates a Resolver for issuer. Nothing is fetched until the
// first call that needs it.
//
// Supported options:
//   - WithCacheTTL
//   - WithKeyRefreshInterval
//   - WithMaxRetries
//   - WithRetryInterval
//   - WithSigningAlgs
//   - WithProviderConfig
//   - WithLogger
//   - WithNow
func NewResolver(issuer string, client *http.Client, opt ...Option) (*Resolver, error) {
	const op = "NewResolver"
	if issuer == "" {
		return nil, fmt.Errorf("%s: issuer is empty: %w: %w", op, ErrConfiguration, ErrInvalidParameter)
	}
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil: %w: %w", op, ErrConfiguration, ErrNilParameter)
	}
	opts := getResolverOpts(opt...)
	if err := jwt.SupportedSigningAlgorithm(opts.withSigningAlgs...); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
	}
	if opts.withCacheTTL <= 0 {
		return nil, fmt.Errorf("%s: cache TTL must be greater than zero: %w: %w", op, ErrConfiguration, ErrInvalidParameter)
	}
	r := &Resolver{
		issuer:          issuer,
		client:          client,
		cacheTTL:        opts.withCacheTTL,
		refreshInterval: opts.withKeyRefreshInterval,
		maxRetries:      opts.withMaxRetries,
		retryInterval:   opts.withRetryInterval,
		algs:            jwt.JoseAlgorithms(opts.withSigningAlgs...),
		static:          opts.withProviderConfig,
		logger:          opts.withLogger,
		nowFunc:         opts.withNowFunc,
	}
	if r.static != nil {
		if err := r.static.validate(issuer); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return r, nil
}

// Issuer returns the issuer the Resolver was created for.
func (r *Resolver) Issuer() string { return r.issuer }

// Metadata returns the provider metadata, fetching the discovery document
// when the cached copy is missing or older than the cache TTL. When a
// refresh fails with a retryable error and a stale copy exists, the stale
// copy is returned and kept for one key refresh interval before the next
// attempt.
func (r *Resolver) Metadata(ctx context.Context) (*ProviderMetadata, error) {
	const op = "Resolver.Metadata"
	if r.static != nil {
		return r.static, nil
	}
	if m, ok := r.cachedMetadata(); ok {
		return m, nil
	}
	v, err := r.shared(ctx, "metadata", func(ctx context.Context) (interface{}, error) {
		if m, ok := r.cachedMetadata(); ok {
			return m, nil
		}
		var m ProviderMetadata
		if err := r.fetchJSON(ctx, strings.TrimSuffix(r.issuer, "/")+WellKnownPath, &m); err != nil {
			return r.staleMetadata(err)
		}
		if err := m.validate(r.issuer); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.metadata = &m
		r.metadataFetched = r.now()
		r.mu.Unlock()
		r.logger.Debug("fetched provider metadata", "issuer", r.issuer)
		return &m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v.(*ProviderMetadata), nil
}

func (r *Resolver) cachedMetadata() (*ProviderMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.metadata == nil {
		return nil, false
	}
	now := r.now()
	if !now.Before(r.metadataFetched.Add(r.cacheTTL)) && !now.Before(r.metadataRetryAt) {
		return nil, false
	}
	return r.metadata, true
}

func (r *Resolver) staleMetadata(fetchErr error) (*ProviderMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.metadata
	if m == nil || !IsRetryable(fetchErr) {
		return nil, fetchErr
	}
	r.metadataRetryAt = r.now().Add(r.refreshInterval)
	r.logger.Warn("using stale provider metadata", "issuer", r.issuer, "error", fetchErr, "retry_at", r.metadataRetryAt)
	return m, nil
}

// shared runs fn once for every concurrent caller with the same key. fn gets
// a context that outlives any single caller, bounded by fetchTimeout.
func (r *Resolver) shared(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	ch := r.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithoutCancel(ctx), context.CancelFunc(func() {})
		if d := r.fetchTimeout(); d > 0 {
			fetchCtx, cancel = context.WithTimeout(fetchCtx, d)
		}
		defer cancel()
		return fn(fetchCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrNetwork, ctx.Err())
	}
}

// fetchTimeout bounds a shared fetch: every attempt at the client timeout
// plus the longest backoff between them. Zero means the client has no
// timeout either.
func (r *Resolver) fetchTimeout() time.Duration {
	if r.client.Timeout <= 0 {
		return 0
	}
	attempts := time.Duration(r.maxRetries + 1)
	return attempts*r.client.Timeout + attempts*10*r.retryInterval
}

// SigningKeys returns the provider's signing keys, fetching them when the
// cached set is missing or older than the cache TTL.
func (r *Resolver) SigningKeys(ctx context.Context) (*SigningKeySet, error) {
	const op = "Resolver.SigningKeys"
	if ks, ok := r.cachedKeys(); ok {
		return ks, nil
	}
	ks, err := r.refreshKeys(ctx, refreshIfStale)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ks, nil
}

// RefreshKeys fetches the provider's signing keys regardless of the cache.
func (r *Resolver) RefreshKeys(ctx context.Context) (*SigningKeySet, error) {
	const op = "Resolver.RefreshKeys"
	ks, err := r.refreshKeys(ctx, refreshAlways)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ks, nil
}

type refreshMode int

const (
	refreshIfStale refreshMode = iota
	refreshAlways
	refreshRateLimited
)

func (r *Resolver) refreshKeys(ctx context.Context, mode refreshMode) (*SigningKeySet, error) {
	v, err := r.shared(ctx, "keys", func(ctx context.Context) (interface{}, error) {
		r.mu.RLock()
		current, lastForced := r.keys, r.lastForced
		r.mu.RUnlock()

		switch mode {
		case refreshIfStale:
			if ks, ok := r.cachedKeys(); ok {
				return ks, nil
			}
		case refreshRateLimited:
			if current != nil && r.now().Sub(lastForced) < r.refreshInterval {
				r.logger.Debug("key refresh rate limited", "issuer", r.issuer)
				return current, nil
			}
		}

		if mode != refreshIfStale {
			r.mu.Lock()
			r.lastForced = r.now()
			r.mu.Unlock()
		}

		m, err := r.Metadata(ctx)
		if err != nil {
			return nil, err
		}
		var jwks jose.JSONWebKeySet
		if err := r.fetchJSON(ctx, m.JWKSURI, &jwks); err != nil {
			if current != nil && IsRetryable(err) {
				r.mu.Lock()
				r.keysRetryAt = r.now().Add(r.refreshInterval)
				r.mu.Unlock()
				r.logger.Warn("using stale signing keys", "issuer", r.issuer, "error", err)
				return current, nil
			}
			return nil, err
		}

		ks := newSigningKeySet(jwks, r.now())
		r.mu.Lock()
		r.keys = ks
		r.mu.Unlock()
		r.logger.Debug("fetched signing keys", "issuer", r.issuer, "keys", len(jwks.Keys))
		return ks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SigningKeySet), nil
}

func (r *Resolver) cachedKeys() (*SigningKeySet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.keys == nil {
		return nil, false
	}
	now := r.now()
	if !now.Before(r.keys.FetchedAt.Add(r.cacheTTL)) && !now.Before(r.keysRetryAt) {
		return nil, false
	}
	return r.keys, true
}

// keysForID returns the candidate keys for a token's key id. An unknown kid
// causes one rate limited refresh before giving up. A token without a kid is
// checked against every key.
func (r *Resolver) keysForID(ctx context.Context, kid string) ([]jose.JSONWebKey, error) {
	const op = "Resolver.keysForID"
	ks, err := r.SigningKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if kid == "" {
		return ks.Keys(), nil
	}
	if k, ok := ks.Lookup(kid); ok {
		return []jose.JSONWebKey{k}, nil
	}
	ks, err = r.refreshKeys(ctx, refreshRateLimited)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if k, ok := ks.Lookup(kid); ok {
		return []jose.JSONWebKey{k}, nil
	}
	return nil, fmt.Errorf("%s: %q: %w", op, kid, ErrUnknownKeyID)
}

// VerifySignature verifies the signature of a compact JWS with the
// provider's keys and returns its payload. Only the Resolver's allowed
// algorithms are accepted; "none" never is. It satisfies go-oidc's KeySet
// interface.
func (r *Resolver) VerifySignature(ctx context.Context, token string) ([]byte, error) {
	const op = "Resolver.VerifySignature"
	jws, err := jose.ParseSigned(token, r.algs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnsupportedAlg, err)
	}
	if len(jws.Signatures) != 1 {
		return nil, fmt.Errorf("%s: expected one signature: %w", op, ErrInvalidSignature)
	}
	header := jws.Signatures[0].Header
	keys, err := r.keysForID(ctx, header.KeyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, k := range keys {
		if k.Algorithm != "" && k.Algorithm != header.Algorithm {
			continue
		}
		if payload, err := jws.Verify(k); err == nil {
			return payload, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
}

// KeySet adapts the Resolver to a jwt.KeySet for validating bearer tokens
// issued by the same provider.
func (r *Resolver) KeySet() jwt.KeySet {
	ks, _ := jwt.NewPayloadKeySet(r)
	return ks
}

// fetchJSON GETs url into v. Transport errors, 5xx and 429 are retried with
// exponential backoff; every other failure is permanent.
func (r *Resolver) fetchJSON(ctx context.Context, url string, v interface{}) error {
	const op = "Resolver.fetchJSON"
	operation := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %w", ErrConfiguration, err))
		}
		req.Header.Set("Accept", "application/json")
		resp, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %w", ErrNetwork, err))
			}
			return struct{}{}, fmt.Errorf("%w: %w: %w", ErrNetwork, ErrRetryableFetch, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
		if err != nil {
			return struct{}{}, fmt.Errorf("%w: %w: %w", ErrNetwork, ErrRetryableFetch, err)
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			return struct{}{}, fmt.Errorf("%w: %w: %s returned %s", ErrNetwork, ErrRetryableFetch, url, resp.Status)
		case resp.StatusCode != http.StatusOK:
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %s returned %s", ErrConfiguration, url, resp.Status))
		}
		if err := json.Unmarshal(body, v); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %w", ErrMalformedDocument, err))
		}
		return struct{}{}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retryInterval
	b.MaxInterval = 10 * r.retryInterval
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.maxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Debug("retrying provider fetch", "url", url, "error", err, "backoff", next)
		}),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if !errors.Is(err, ErrNetwork) {
				err = fmt.Errorf("%w: %w", ErrNetwork, err)
			}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *Resolver) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now()
}

// resolverOptions is the set of available options for Resolver functions
type resolverOptions struct {
	withCacheTTL           time.Duration
	withKeyRefreshInterval time.Duration
	withMaxRetries         uint
	withRetryInterval      time.Duration
	withSigningAlgs        []Alg
	withProviderConfig     *ProviderMetadata
	withLogger             hclog.Logger
	withNowFunc            func() time.Time
}

func resolverDefaults() resolverOptions {
	return resolverOptions{
		withCacheTTL:           DefaultCacheTTL,
		withKeyRefreshInterval: DefaultKeyRefreshInterval,
		withMaxRetries:         DefaultMaxRetries,
		withRetryInterval:      DefaultRetryInterval,
		withLogger:             hclog.NewNullLogger(),
	}
}

func getResolverOpts(opt ...Option) resolverOptions {
	opts := resolverDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
