// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/go-secure-stdlib/base62"
)

// ChallengeMethod represents PKCE code challenge methods as defined by RFC
// 7636.
type ChallengeMethod string

const (
	// S256 is the SHA-256 code challenge method. Plain is not supported.
	// See: https://tools.ietf.org/html/rfc7636#section-4.3
	S256 ChallengeMethod = "S256"
)

// verifierLen is the length of a generated verifier. RFC 7636 requires
// between 43 and 128 characters.
const verifierLen = 43

// CodeVerifier represents an OAuth PKCE code verifier.
//
// See: https://tools.ietf.org/html/rfc7636#section-4.1
type CodeVerifier interface {
	// Verifier returns the code verifier (see:
	// https://tools.ietf.org/html/rfc7636#section-4.1)
	Verifier() string

	// Challenge returns the code verifier's code challenge (see:
	// https://tools.ietf.org/html/rfc7636#section-4.2)
	Challenge() string

	// Method returns the code verifier's challenge method (see
	// https://tools.ietf.org/html/rfc7636#section-4.2)
	Method() ChallengeMethod

	// Copy returns a copy of the verifier
	Copy() CodeVerifier
}

// S256Verifier represents an OAuth PKCE code verifier that uses the S256
// challenge method. It implements the CodeVerifier interface.
type S256Verifier struct {
	verifier  string
	challenge string
	method    ChallengeMethod
}

// ensure S256Verifier implements the CodeVerifier interface.
var _ CodeVerifier = &S256Verifier{}

// NewCodeVerifier creates a new CodeVerifier (*S256Verifier).
//
// See: https://tools.ietf.org/html/rfc7636#section-4.1
func NewCodeVerifier() (*S256Verifier, error) {
	const op = "NewCodeVerifier"
	data, err := base62.Random(verifierLen)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create verifier data %w", op, err)
	}
	return newS256Verifier(data)
}

func newS256Verifier(data string) (*S256Verifier, error) {
	const op = "newS256Verifier"
	if len(data) < verifierLen || len(data) > 128 {
		return nil, fmt.Errorf("%s: verifier length %d out of range: %w", op, len(data), ErrInvalidParameter)
	}
	v := &S256Verifier{
		verifier: data,
		method:   S256,
	}
	c, err := CreateCodeChallenge(S256, v)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create code challenge: %w", op, err)
	}
	v.challenge = c
	return v, nil
}

// Verifier implements the CodeVerifier.Verifier() interface function.
func (v *S256Verifier) Verifier() string { return v.verifier }

// Challenge implements the CodeVerifier.Challenge() interface function.
func (v *S256Verifier) Challenge() string { return v.challenge }

// Method implements the CodeVerifier.Method() interface function.
func (v *S256Verifier) Method() ChallengeMethod { return v.method }

// Copy returns a copy of the verifier.
func (v *S256Verifier) Copy() CodeVerifier {
	return &S256Verifier{
		verifier:  v.verifier,
		challenge: v.challenge,
		method:    v.method,
	}
}

// CreateCodeChallenge creates a code challenge from the verifier. Supported
// ChallengeMethods: S256
//
// See: https://tools.ietf.org/html/rfc7636#section-4.2
func CreateCodeChallenge(method ChallengeMethod, v CodeVerifier) (string, error) {
	const op = "CreateCodeChallenge"
	if method != S256 {
		return "", fmt.Errorf("%s: %s is invalid: %w", op, method, ErrUnsupportedChallengeMethod)
	}
	h := sha256.Sum256([]byte(v.Verifier()))
	return base64.RawURLEncoding.EncodeToString(h[:]), nil
}
