// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"time"

	"github.com/hashicorp/cap-rp/oidc"
)

// storeOptions is the set of available options
type storeOptions struct {
	withCleanupInterval time.Duration
	withKeyPrefix       string
	withNowFunc         func() time.Time
}

func storeDefaults() storeOptions {
	return storeOptions{
		withCleanupInterval: DefaultCleanupInterval,
		withKeyPrefix:       DefaultKeyPrefix,
	}
}

func getStoreOpts(opt ...oidc.Option) storeOptions {
	opts := storeDefaults()
	oidc.ApplyOpts(&opts, opt...)
	return opts
}

// WithNow provides an optional func for determining what the current time it
// is.
//
// Valid for: MemoryStore and RedisStore
func WithNow(now func() time.Time) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*storeOptions); ok && now != nil {
			v.withNowFunc = now
		}
	}
}

// WithCleanupInterval overrides DefaultCleanupInterval.
//
// Valid for: MemoryStore
func WithCleanupInterval(d time.Duration) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*storeOptions); ok && d > 0 {
			v.withCleanupInterval = d
		}
	}
}

// WithKeyPrefix overrides DefaultKeyPrefix.
//
// Valid for: RedisStore
func WithKeyPrefix(prefix string) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*storeOptions); ok {
			v.withKeyPrefix = prefix
		}
	}
}
