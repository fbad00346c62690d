// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package matches at most one of
// these via errors.Is, which is how callers decide between failing fast at
// startup, retrying later, or rejecting an authentication attempt.
var (
	// ErrConfiguration is returned for invalid configuration, malformed
	// provider documents and provider responses that can never succeed.
	// These are fatal.
	ErrConfiguration = errors.New("configuration error")

	// ErrNetwork is returned when the provider could not be reached.
	ErrNetwork = errors.New("network error")

	// ErrValidation is returned when a token or response fails verification.
	ErrValidation = errors.New("validation error")

	// ErrReplay is returned when an authorization request, state or nonce is
	// used more than once, or is unknown.
	ErrReplay = errors.New("replay detected")
)

// ErrRetryableFetch marks discovery and key fetch failures that may succeed
// when retried. See IsRetryable.
var ErrRetryableFetch = errors.New("retryable fetch failure")

var (
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrInvalidCACert              = fmt.Errorf("invalid CA certificate: %w", ErrConfiguration)
	ErrIDGeneratorFailed          = errors.New("id generation failed")
	ErrUnsupportedChallengeMethod = fmt.Errorf("unsupported PKCE challenge method: %w", ErrConfiguration)
	ErrUnsupportedAlg             = fmt.Errorf("unsupported signing algorithm: %w", ErrValidation)
	ErrMalformedDocument          = fmt.Errorf("malformed provider document: %w", ErrConfiguration)
	ErrInvalidIssuer              = fmt.Errorf("invalid issuer: %w", ErrConfiguration)
	ErrMissingEndpoint            = fmt.Errorf("provider does not support endpoint: %w", ErrConfiguration)
	ErrInvalidRedirectURL         = fmt.Errorf("redirect URL not allowed: %w", ErrConfiguration)

	ErrExpiredRequest         = fmt.Errorf("request is expired: %w", ErrValidation)
	ErrMissingIDToken         = fmt.Errorf("id_token is missing: %w", ErrValidation)
	ErrIDTokenVerifyFailed    = fmt.Errorf("id_token verification failed: %w", ErrValidation)
	ErrInvalidSignature       = fmt.Errorf("invalid signature: %w", ErrValidation)
	ErrUnknownKeyID           = fmt.Errorf("unknown signing key id: %w", ErrValidation)
	ErrInvalidAudience        = fmt.Errorf("invalid audience: %w", ErrValidation)
	ErrInvalidAuthorizedParty = fmt.Errorf("invalid authorized party: %w", ErrValidation)
	ErrInvalidNonce           = fmt.Errorf("invalid nonce: %w", ErrValidation)
	ErrInvalidIssuedAt        = fmt.Errorf("invalid issued at (iat): %w", ErrValidation)
	ErrInvalidAuthTime        = fmt.Errorf("invalid auth_time: %w", ErrValidation)
	ErrInvalidAtHash          = fmt.Errorf("access_token hash does not match at_hash: %w", ErrValidation)
	ErrInvalidSubject         = fmt.Errorf("invalid subject: %w", ErrValidation)
	ErrTokenNotActive         = fmt.Errorf("token is not active: %w", ErrValidation)

	ErrResponseStateInvalid = fmt.Errorf("response state does not match request: %w", ErrReplay)
	ErrRequestAlreadyUsed   = fmt.Errorf("request already used: %w", ErrReplay)
	ErrNonceReused          = fmt.Errorf("nonce already used: %w", ErrReplay)

	ErrLoginFailed = fmt.Errorf("login failed: %w", ErrValidation)

	ErrNotFound         = errors.New("not found")
	ErrExchangeFailed   = errors.New("code exchange failed")
	ErrRefreshFailed    = errors.New("token refresh failed")
	ErrUserInfoFailed   = errors.New("user info failed")
	ErrRevokeFailed     = errors.New("token revocation failed")
	ErrIntrospectFailed = errors.New("token introspection failed")
)

// IsRetryable reports whether err is a discovery or key fetch failure that
// may succeed later. Code exchange failures are never retryable since an
// authorization code is single use.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryableFetch)
}
