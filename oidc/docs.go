// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for writing OIDC relying parties using the authorization
code flow (with PKCE when the provider supports it).

Primary types provided by the package:

* Request: represents one OIDC authentication flow for a user. It contains
the state, nonce and PKCE verifier needed to uniquely represent that one-time
flow across the redirect to the provider and back. All Requests contain an
expiration and can only be completed once.

* Token: represents an OIDC id_token, as well as an Oauth2 access_token and
refresh_token (including the access_token expiry)

* Config: provides the configuration for a relying party (for example: client
ID/secret, allowed redirect URLs, supported signing algorithms, additional
scopes requested, clock skew, cache and retry settings)

* Resolver: discovers and caches a provider's metadata and signing keys.
Concurrent refreshes collapse into one fetch, transient fetch failures are
retried with exponential backoff and an unknown key id causes at most one
rate limited key refresh.

* Provider: provides integration with a provider using the authorization code
flow. The provider provides capabilities like: starting and completing a flow,
exchanging codes for tokens, verifying id_tokens (including nonce replay
detection), refreshing, revoking and introspecting tokens, making user info
requests and building logout URLs.

* Alg: represents asymmetric signing algorithms

Errors

Every error returned matches at most one of ErrConfiguration, ErrNetwork,
ErrValidation or ErrReplay via errors.Is. Use IsRetryable to find discovery
and key fetch failures that may succeed later.

The oidc/callback package

The callback package includes the ability to create a http.HandlerFunc which
can be used for the redirect leg of the flow where the authorization code is
exchanged for tokens.

The oidc/store package

The store package provides single use storage for pending Requests, in memory
or in redis.
*/
package oidc
