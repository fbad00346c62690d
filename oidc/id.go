// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"

	"github.com/hashicorp/cap-rp/sdk/id"
)

// DefaultIDLength is the default length for generated IDs, which are used for
// state and nonce parameters during OIDC flows.
//
// For ID length requirements see:
// https://tools.ietf.org/html/rfc6749#section-10.10
const DefaultIDLength = 20

// NewID generates a ID with an optional prefix.   The ID generated is suitable
// for a Request's State or Nonce. The ID length will be DefaultIDLen, not
// including an optional prefix.
//
// Supported Options:
//   - WithPrefix
func NewID(opt ...Option) (string, error) {
	const op = "NewID"
	opts := getIDOpts(opt...)
	s, err := id.NewWithLength(DefaultIDLength, opts.withPrefix)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrIDGeneratorFailed, err)
	}
	return s, nil
}

// idOptions is the set of available options.
type idOptions struct {
	withPrefix string
}

// idDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func idDefaults() idOptions {
	return idOptions{}
}

// getIDOpts gets the defaults and applies the opt overrides passed in.
func getIDOpts(opt ...Option) idOptions {
	opts := idDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
