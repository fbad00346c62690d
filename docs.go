// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package rp is an OpenID Connect relying party: a collection of packages
// which discover providers, run the authorization code flow, verify ID and
// bearer tokens and tie authenticated users to http requests.
//
//   - oidc: provider configuration, discovery and key resolution, the
//     authorization code flow and ID token verification.
//   - oidc/store: single use storage for pending authorization requests.
//   - oidc/callback: an http.HandlerFunc for the authorization code callback.
//   - oidc/clientassertion: JWTs for private_key_jwt and client_secret_jwt
//     client authentication.
//   - jwt: validation of bearer tokens against key sets.
//   - authenticator: login, callback, logout and middleware for one client.
//   - registry: independent named clients built from configuration.
//
// cmd/oidc-rp is a demo server built from these packages.
package rp
