// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authenticator

import (
	"fmt"

	"github.com/hashicorp/cap-rp/oidc"
)

var (
	// ErrUnauthenticated means a request carried neither a session cookie
	// nor a bearer token.
	ErrUnauthenticated = fmt.Errorf("request is not authenticated: %w", oidc.ErrValidation)

	// ErrSessionNotFound means the session is unknown or has expired.
	ErrSessionNotFound = fmt.Errorf("session %w: %w", oidc.ErrNotFound, oidc.ErrValidation)

	// ErrMissingIdentifier means the configured user identifier claim was in
	// neither the id_token nor the userinfo response.
	ErrMissingIdentifier = fmt.Errorf("user identifier claim is missing: %w", oidc.ErrValidation)

	// ErrInvalidBearerToken means a bearer token failed validation.
	ErrInvalidBearerToken = fmt.Errorf("invalid bearer token: %w", oidc.ErrValidation)
)
