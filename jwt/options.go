// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

// Option configures a single Validate call.
type Option func(interface{})

type validateOptions struct {
	withNormalizedAudiences bool
	withRequiredClaims      []string
}

func getValidateOpts(opt ...Option) validateOptions {
	var opts validateOptions
	ApplyOpts(&opts, opt...)
	return opts
}

// ApplyOpts applies each non-nil Option to opts.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

// WithNormalizedAudiences trims a trailing slash from each expected audience
// before it is compared with the aud claim.
func WithNormalizedAudiences() Option {
	return func(o interface{}) {
		if v, ok := o.(*validateOptions); ok {
			v.withNormalizedAudiences = true
		}
	}
}

// WithRequiredClaims fails validation with ErrMissingClaim when any of the
// named claims is absent or null. Options accumulate.
func WithRequiredClaims(names ...string) Option {
	return func(o interface{}) {
		if v, ok := o.(*validateOptions); ok {
			v.withRequiredClaims = append(v.withRequiredClaims, names...)
		}
	}
}
