// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-secure-stdlib/strutil"
)

// WellKnownPath is appended to an issuer to find its discovery document.
const WellKnownPath = "/.well-known/openid-configuration"

// ProviderMetadata is the subset of an OpenID Provider's discovery document
// used by a relying party.
//
// See: https://openid.net/specs/openid-connect-discovery-1_0.html#ProviderMetadata
type ProviderMetadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	UserinfoEndpoint      string   `json:"userinfo_endpoint,omitempty"`
	JWKSURI               string   `json:"jwks_uri"`
	RevocationEndpoint    string   `json:"revocation_endpoint,omitempty"`
	IntrospectionEndpoint string   `json:"introspection_endpoint,omitempty"`
	EndSessionEndpoint    string   `json:"end_session_endpoint,omitempty"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
	IDTokenSigningAlgs    []string `json:"id_token_signing_alg_values_supported,omitempty"`
	CodeChallengeMethods  []string `json:"code_challenge_methods_supported,omitempty"`
	ResponseTypes         []string `json:"response_types_supported,omitempty"`
}

// SupportsPKCE reports whether the provider advertises the S256 code
// challenge method.
func (m *ProviderMetadata) SupportsPKCE() bool {
	return strutil.StrListContains(m.CodeChallengeMethods, string(S256))
}

// validate checks the document is usable and was issued for issuer. The
// issuer must match exactly; a trailing slash is not ignored.
func (m *ProviderMetadata) validate(issuer string) error {
	const op = "ProviderMetadata.validate"
	if m.Issuer != issuer {
		return fmt.Errorf("%s: issuer %q does not match %q: %w", op, m.Issuer, issuer, ErrInvalidIssuer)
	}
	required := map[string]string{
		"authorization_endpoint": m.AuthorizationEndpoint,
		"token_endpoint":         m.TokenEndpoint,
		"jwks_uri":               m.JWKSURI,
	}
	optional := map[string]string{
		"userinfo_endpoint":      m.UserinfoEndpoint,
		"revocation_endpoint":    m.RevocationEndpoint,
		"introspection_endpoint": m.IntrospectionEndpoint,
		"end_session_endpoint":   m.EndSessionEndpoint,
	}
	for name, v := range required {
		if v == "" {
			return fmt.Errorf("%s: %s is missing: %w", op, name, ErrMalformedDocument)
		}
		optional[name] = v
	}
	for name, v := range optional {
		if v == "" {
			continue
		}
		u, err := url.Parse(v)
		if err != nil || !u.IsAbs() || !strings.HasPrefix(u.Scheme, "http") {
			return fmt.Errorf("%s: %s %q is not an absolute http(s) URL: %w", op, name, v, ErrMalformedDocument)
		}
	}
	return nil
}
