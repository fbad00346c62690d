// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"fmt"
	"net/http"

	"github.com/hashicorp/cap-rp/oidc"
)

// AuthCode creates an oidc authorization code callback handler which
// uses a RequestReader to read existing oidc.Request(s) via the request's
// oidc "state" parameter as a key for the lookup.
//
// The Request is completed with Provider.CompleteFlow, so it is consumed
// whatever the outcome and a replayed callback fails with oidc.ErrReplay.
//
// The SuccessResponseFunc is used to create a response when callback is
// successful. The ErrorResponseFunc is to create a response when the callback
// fails.
func AuthCode(p *oidc.Provider, rw RequestReader, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.AuthCode"
	if p == nil {
		return nil, fmt.Errorf("%s: provider is empty: %w", op, oidc.ErrInvalidParameter)
	}
	if rw == nil {
		return nil, fmt.Errorf("%s: request reader is empty: %w", op, oidc.ErrInvalidParameter)
	}
	if sFn == nil {
		return nil, fmt.Errorf("%s: success response func is empty: %w", op, oidc.ErrInvalidParameter)
	}
	if eFn == nil {
		return nil, fmt.Errorf("%s: error response func is empty: %w", op, oidc.ErrInvalidParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		const op = "callback.AuthCode"
		ctx := req.Context()

		// get parameters from either the body or query parameters.
		// FormValue prioritizes body values, if found.
		params := oidc.CallbackParams{
			State:            req.FormValue("state"),
			Code:             req.FormValue("code"),
			Error:            req.FormValue("error"),
			ErrorDescription: req.FormValue("error_description"),
			ErrorURI:         req.FormValue("error_uri"),
		}

		oidcRequest, err := rw.Read(ctx, params.State)
		if err != nil {
			eFn(params.State, nil, fmt.Errorf("%s: unable to read auth code request: %w", op, err), w, req)
			return
		}
		if oidcRequest == nil {
			// could have expired or it could be invalid... no way to known for sure
			eFn(params.State, nil, fmt.Errorf("%s: auth code request not found: %w: %w", op, oidc.ErrNotFound, oidc.ErrReplay), w, req)
			return
		}

		responseToken, err := p.CompleteFlow(ctx, oidcRequest, params)
		if err != nil {
			eFn(params.State, newAuthenErrorResponse(params), fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		sFn(params.State, responseToken, w, req)
	}, nil
}
