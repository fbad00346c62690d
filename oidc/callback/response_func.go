// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"net/http"

	"github.com/hashicorp/cap-rp/oidc"
)

// SuccessResponseFunc writes the response for a completed flow. state is the
// state the provider returned and t is the verified result of the code
// exchange.
type SuccessResponseFunc func(state string, t oidc.Token, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc writes the response for a failed callback.
//
// respErr is set only when the provider itself redirected back with an error.
// e is never nil; use errors.Is with the oidc error kinds (oidc.ErrReplay,
// oidc.ErrNetwork, oidc.ErrValidation) to tell failures apart. Avoid echoing
// e to the user agent.
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse is an OAuth2 authentication error response.
// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Uri         string `json:"error_uri,omitempty"`
}

// newAuthenErrorResponse returns nil unless params carries a provider error.
func newAuthenErrorResponse(params oidc.CallbackParams) *AuthenErrorResponse {
	if params.Error == "" {
		return nil
	}
	return &AuthenErrorResponse{
		Error:       params.Error,
		Description: params.ErrorDescription,
		Uri:         params.ErrorURI,
	}
}
