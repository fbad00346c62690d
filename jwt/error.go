// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrUnsupportedAlg   = errors.New("unsupported signing algorithm")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("no known key successfully validated the token signature")
	ErrInvalidPEM       = errors.New("data does not contain any valid RSA, ECDSA or ED25519 public keys")

	ErrMissingClaim   = errors.New("missing required claim")
	ErrInvalidIssuer  = errors.New("invalid issuer (iss) claim")
	ErrInvalidSubject = errors.New("invalid subject (sub) claim")
	ErrInvalidID      = errors.New("invalid ID (jti) claim")
	ErrInvalidAud     = errors.New("invalid audience (aud) claim")
	ErrInvalidNonce   = errors.New("invalid nonce claim")
	ErrExpired        = errors.New("token is expired (exp)")
	ErrNotYetValid    = errors.New("token not valid yet (nbf)")
	ErrIssuedInFuture = errors.New("token issued in the future (iat)")
)
