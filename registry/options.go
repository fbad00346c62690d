// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/cap-rp/oidc"
	"github.com/hashicorp/cap-rp/oidc/store"
)

// AuthenticatorOptionsFunc returns extra authenticator options for the
// client name, such as its login URL.
type AuthenticatorOptionsFunc func(name string) []oidc.Option

type options struct {
	withLogger               hclog.Logger
	withRequestStore         store.RequestStore
	withAuthenticatorOptions AuthenticatorOptionsFunc
	withConfigOptions        []oidc.Option
	withWarmUp               bool
}

func getDefaults() options {
	return options{
		withLogger: hclog.NewNullLogger(),
	}
}

func getOpts(opt ...oidc.Option) options {
	opts := getDefaults()
	oidc.ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger. Each client gets a logger named
// after it.
func WithLogger(l hclog.Logger) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && l != nil {
			v.withLogger = l
		}
	}
}

// WithRequestStore is shared by every client. States are random, so clients
// cannot collide. Defaults to a store.MemoryStore.
func WithRequestStore(s store.RequestStore) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok && s != nil {
			v.withRequestStore = s
		}
	}
}

// WithAuthenticatorOptions provides per client authenticator options.
func WithAuthenticatorOptions(fn AuthenticatorOptionsFunc) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withAuthenticatorOptions = fn
		}
	}
}

// WithConfigOptions are applied to every client's oidc.Config, for example
// oidc.WithNow in tests.
func WithConfigOptions(opt ...oidc.Option) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withConfigOptions = append(v.withConfigOptions, opt...)
		}
	}
}

// WithWarmUp fetches every provider's signing keys in New. Failures are
// logged and not fatal; the fetch is retried on first use.
func WithWarmUp() oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*options); ok {
			v.withWarmUp = true
		}
	}
}
