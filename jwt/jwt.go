// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package jwt validates signed JWTs against one or more key sets and a set of
// expected claim values. It is used for bearer tokens presented to a relying
// party; ID tokens from an authorization code flow are verified by the oidc
// package.
package jwt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/hashicorp/go-multierror"
)

// DefaultLeeway is the amount of leeway given to the exp, nbf and iat claims
// when Expected.ClockSkewLeeway is zero.
const DefaultLeeway = 150 * time.Second

// Validator validates JSON Web Tokens (JWT) by providing signature
// verification and claims set validation.
type Validator struct {
	keySets []KeySet
}

// NewValidator returns a Validator that uses the given KeySets to verify
// JWT signatures. Keys sets are tried in order.
func NewValidator(keySets ...KeySet) (*Validator, error) {
	const op = "NewValidator"
	if len(keySets) == 0 {
		return nil, fmt.Errorf("%s: keySets must not be empty: %w", op, ErrInvalidParameter)
	}
	for _, ks := range keySets {
		if ks == nil {
			return nil, fmt.Errorf("%s: keySets must not contain a nil KeySet: %w", op, ErrInvalidParameter)
		}
	}
	return &Validator{keySets: keySets}, nil
}

// Expected defines the expected claims values to assert when validating a
// JWT. For claims that involve validation of the JWT with respect to time,
// leeway fields are provided to account for potential clock skew.
type Expected struct {
	// Issuer is the expected "iss" value. Not checked when empty.
	Issuer string

	// Subject is the expected "sub" value. Not checked when empty.
	Subject string

	// ID is the expected "jti" value. Not checked when empty.
	ID string

	// Audiences must contain at least one "aud" value. Not checked when empty.
	Audiences []string

	// Nonce is the expected "nonce" value. Not checked when empty.
	Nonce string

	// SigningAlgorithms is the allow-list of "alg" header values; RS256 when
	// empty.
	SigningAlgorithms []Alg

	// NotBeforeLeeway is added to ClockSkewLeeway for the nbf check.
	NotBeforeLeeway time.Duration

	// ExpirationLeeway is added to ClockSkewLeeway for the exp check.
	ExpirationLeeway time.Duration

	// ClockSkewLeeway applies to exp, nbf and iat. Zero means DefaultLeeway,
	// a negative value means no leeway.
	ClockSkewLeeway time.Duration

	// Now returns the current time; time.Now when nil.
	Now func() time.Time
}

// Validate validates JWTs of the JWS compact serialization form.
//
// The validation is performed in the following order:
//   - the "alg" header is one of Expected.SigningAlgorithms
//   - the signature verifies with one of the KeySets
//   - exp is present
//   - exp, nbf and iat against the current time with leeway
//   - iss, sub, jti, nonce and aud against Expected
//
// All claims from the token payload are returned on success.
func (v *Validator) Validate(ctx context.Context, token string, expected Expected, opt ...Option) (map[string]interface{}, error) {
	return v.validate(ctx, token, expected, true, opt...)
}

// ValidateAllowMissingIatNbfExp is Validate except that tokens without exp,
// nbf or iat claims are accepted. Claims that are present are still checked.
func (v *Validator) ValidateAllowMissingIatNbfExp(ctx context.Context, token string, expected Expected, opt ...Option) (map[string]interface{}, error) {
	return v.validate(ctx, token, expected, false, opt...)
}

func (v *Validator) validate(ctx context.Context, token string, expected Expected, requireExp bool, opt ...Option) (map[string]interface{}, error) {
	const op = "Validator.Validate"
	opts := getValidateOpts(opt...)
	if err := validateSigningAlgorithm(token, expected.SigningAlgorithms); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	allClaims, err := v.verifySignature(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	raw, err := json.Marshal(allClaims)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedToken, err)
	}
	var c jwt.Claims
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedToken, err)
	}

	if requireExp && c.Expiry == nil {
		return nil, fmt.Errorf("%s: %w: exp", op, ErrMissingClaim)
	}
	for _, name := range opts.withRequiredClaims {
		if allClaims[name] == nil {
			return nil, fmt.Errorf("%s: %w: %s", op, ErrMissingClaim, name)
		}
	}
	if err := validateTimes(c, expected); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case expected.Issuer != "" && expected.Issuer != c.Issuer:
		return nil, fmt.Errorf("%s: %w: %q", op, ErrInvalidIssuer, c.Issuer)
	case expected.Subject != "" && expected.Subject != c.Subject:
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSubject)
	case expected.ID != "" && expected.ID != c.ID:
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidID)
	}
	if expected.Nonce != "" {
		if nonce, _ := allClaims["nonce"].(string); nonce != expected.Nonce {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidNonce)
		}
	}
	if err := validateAudience(expected.Audiences, c.Audience, opts.withNormalizedAudiences); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return allClaims, nil
}

func (v *Validator) verifySignature(ctx context.Context, token string) (map[string]interface{}, error) {
	var errs *multierror.Error
	for _, ks := range v.keySets {
		claims, err := ks.VerifySignature(ctx, token)
		if err == nil {
			return claims, nil
		}
		errs = multierror.Append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, errs.ErrorOrNil())
}

func validateTimes(c jwt.Claims, expected Expected) error {
	now := time.Now()
	if expected.Now != nil {
		now = expected.Now()
	}
	skew := expected.ClockSkewLeeway
	switch {
	case skew == 0:
		skew = DefaultLeeway
	case skew < 0:
		skew = 0
	}

	if c.Expiry != nil && now.After(c.Expiry.Time().Add(skew+expected.ExpirationLeeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Add(skew+expected.NotBeforeLeeway).Before(c.NotBefore.Time()) {
		return ErrNotYetValid
	}
	if c.IssuedAt != nil && now.Add(skew).Before(c.IssuedAt.Time()) {
		return ErrIssuedInFuture
	}
	return nil
}

// validateSigningAlgorithm checks the "alg" header against expectedAlgorithms.
// An empty expectedAlgorithms allows RS256 only.
func validateSigningAlgorithm(token string, expectedAlgorithms []Alg) error {
	if err := SupportedSigningAlgorithm(expectedAlgorithms...); err != nil {
		return err
	}
	jws, err := jose.ParseSigned(token, JoseAlgorithms(expectedAlgorithms...))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedAlg, err)
	}
	if len(jws.Signatures) != 1 {
		return fmt.Errorf("%w: expected exactly one signature", ErrMalformedToken)
	}
	return nil
}

// validateAudience returns an error if audClaim does not contain any audiences
// given by expectedAudiences. An empty expectedAudiences skips the check.
func validateAudience(expectedAudiences, audClaim []string, normalize bool) error {
	if len(expectedAudiences) == 0 {
		return nil
	}
	for _, ea := range expectedAudiences {
		if normalize {
			ea = strings.TrimSuffix(ea, "/")
		}
		for _, a := range audClaim {
			if ea == a {
				return nil
			}
		}
	}
	return ErrInvalidAud
}
