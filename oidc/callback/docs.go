// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
callback is a package that provides callbacks (in the form of http.HandlerFunc)
for handling OIDC provider responses to authorization code flow (with optional
PKCE) authentication attempts.

Pending requests are found by their state with a RequestReader. A StoreReader
takes them from an oidc/store.RequestStore so each one is read once.
*/
package callback
