// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package authenticator ties an oidc.Provider to the life of an http request.

An Authenticator serves the login redirect and the callback of the
authorization code flow, keeps a session for each user who completes it and
authenticates later requests either by that session's cookie or by a bearer
token issued by the same provider.

	requests := store.NewMemoryStore()
	a, err := authenticator.New("corp", p, requests,
		authenticator.WithLogger(logger),
		authenticator.WithUserIdentifierClaim("email"),
	)
	if err != nil {
		// handle error
	}
	mux.HandleFunc("/login", a.Login)
	mux.HandleFunc("/callback", a.Callback)
	mux.HandleFunc("/logout", a.Logout)
	mux.Handle("/", a.Middleware(appHandler))

Handlers wrapped by Middleware find the caller with PrincipalFromContext.

Every failure is answered with the same generic response (see
DefaultFailureFunc). The specific reason is only logged.
*/
package authenticator
