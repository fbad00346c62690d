// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import (
	"fmt"

	"github.com/hashicorp/cap-rp/oidc"
)

// Every error below wraps oidc.ErrConfiguration, so callers can treat a bad
// assertion setup like any other relying party misconfiguration.
var (
	ErrMissingClientID    = configErr("missing client ID")
	ErrMissingAudience    = configErr("missing audience")
	ErrMissingAlgorithm   = configErr("missing signing algorithm")
	ErrMissingKeyOrSecret = configErr("missing private key or client secret")
	ErrInvalidLifetime    = configErr("lifetime must be greater than zero")
	ErrReservedHeader     = configErr("reserved header")

	// only seen when a JWT is built without one of the constructors
	ErrMissingFuncIDGenerator = configErr("missing id generator; use a NewJWTWith* constructor")
	ErrMissingFuncNow         = configErr("missing now func; use a NewJWTWith* constructor")
	ErrCreatingSigner         = configErr("unable to create jwt signer")

	ErrUnsupportedAlgorithm = configErr("unsupported algorithm")
	ErrInvalidSecretLength  = configErr("invalid secret length for algorithm")
	ErrInvalidKeyCurve      = configErr("invalid curve for algorithm")
	ErrNilPrivateKey        = configErr("nil private key")
)

func configErr(msg string) error {
	return fmt.Errorf("%s: %w", msg, oidc.ErrConfiguration)
}
