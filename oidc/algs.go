// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import "github.com/hashicorp/cap-rp/jwt"

// Alg represents asymmetric signing algorithms. It is the same type used by
// the jwt package so a Config's algorithms can be handed to a jwt.Validator.
type Alg = jwt.Alg

const (
	RS256 = jwt.RS256
	RS384 = jwt.RS384
	RS512 = jwt.RS512
	ES256 = jwt.ES256
	ES384 = jwt.ES384
	ES512 = jwt.ES512
	PS256 = jwt.PS256
	PS384 = jwt.PS384
	PS512 = jwt.PS512
	EdDSA = jwt.EdDSA
)
