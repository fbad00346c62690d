// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/cap-rp/oidc"
)

func testNewRedisStore(t *testing.T, opt ...oidc.Option) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	require := require.New(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s, err := NewRedisStore(client, opt...)
	require.NoError(err)
	return s, mr
}

func testRequest(t *testing.T, opt ...oidc.Option) *oidc.Req {
	t.Helper()
	v, err := oidc.NewCodeVerifier()
	require.NoError(t, err)
	r, err := oidc.NewRequest(time.Minute, "https://example.com/callback", append([]oidc.Option{oidc.WithPKCE(v)}, opt...)...)
	require.NoError(t, err)
	return r
}

// testStores returns every RequestStore implementation, each backed by
// fresh storage.
func testStores(t *testing.T) map[string]RequestStore {
	t.Helper()
	rs, _ := testNewRedisStore(t)
	return map[string]RequestStore{
		"memory": NewMemoryStore(),
		"redis":  rs,
	}
}

func TestRequestStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, s := range testStores(t) {
		name, s := name, s
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			t.Run("put-take", func(t *testing.T) {
				assert, require := assert.New(t), require.New(t)
				r := testRequest(t, oidc.WithScopes("email"), oidc.WithMaxAge(10))
				require.NoError(s.Put(ctx, r))

				got, err := s.Take(ctx, r.State())
				require.NoError(err)
				assert.Equal(r.State(), got.State())
				assert.Equal(r.Nonce(), got.Nonce())
				assert.Equal(r.RedirectURL(), got.RedirectURL())
				assert.Equal(r.Scopes(), got.Scopes())
				assert.Equal(r.PKCEVerifier().Verifier(), got.PKCEVerifier().Verifier())
				assert.True(r.ExpiresAt().Equal(got.ExpiresAt()))
				maxAge, ok := got.MaxAge()
				assert.True(ok)
				assert.Equal(uint(10), maxAge)
			})
			t.Run("single-use", func(t *testing.T) {
				assert, require := assert.New(t), require.New(t)
				r := testRequest(t)
				require.NoError(s.Put(ctx, r))
				_, err := s.Take(ctx, r.State())
				require.NoError(err)
				_, err = s.Take(ctx, r.State())
				assert.Truef(errors.Is(err, ErrNotFound), "wanted \"%s\" but got \"%s\"", ErrNotFound, err)
				assert.Truef(errors.Is(err, oidc.ErrReplay), "wanted \"%s\" but got \"%s\"", oidc.ErrReplay, err)
			})
			t.Run("unknown-state", func(t *testing.T) {
				assert := assert.New(t)
				_, err := s.Take(ctx, "st_unknown")
				assert.Truef(errors.Is(err, oidc.ErrReplay), "wanted \"%s\" but got \"%s\"", oidc.ErrReplay, err)
			})
			t.Run("duplicate-state", func(t *testing.T) {
				assert, require := assert.New(t), require.New(t)
				r := testRequest(t)
				require.NoError(s.Put(ctx, r))
				err := s.Put(ctx, r)
				assert.Truef(errors.Is(err, oidc.ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", oidc.ErrInvalidParameter, err)
			})
			t.Run("nil-request", func(t *testing.T) {
				assert := assert.New(t)
				err := s.Put(ctx, nil)
				assert.Truef(errors.Is(err, oidc.ErrNilParameter), "wanted \"%s\" but got \"%s\"", oidc.ErrNilParameter, err)
			})
			t.Run("expired-request", func(t *testing.T) {
				assert, require := assert.New(t), require.New(t)
				past := func() time.Time { return time.Now().Add(-time.Hour) }
				r, err := oidc.NewRequest(time.Minute, "https://example.com/callback", oidc.WithNow(past))
				require.NoError(err)
				err = s.Put(ctx, r)
				assert.Truef(errors.Is(err, oidc.ErrExpiredRequest), "wanted \"%s\" but got \"%s\"", oidc.ErrExpiredRequest, err)
			})
			t.Run("concurrent-take", func(t *testing.T) {
				assert, require := assert.New(t), require.New(t)
				r := testRequest(t)
				require.NoError(s.Put(ctx, r))
				var wins int32
				var wg sync.WaitGroup
				for i := 0; i < 20; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						if _, err := s.Take(ctx, r.State()); err == nil {
							atomic.AddInt32(&wins, 1)
						}
					}()
				}
				wg.Wait()
				assert.Equal(int32(1), wins)
			})
		})
	}
}

func TestMemoryStore_Len(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	s := NewMemoryStore(WithCleanupInterval(time.Second))
	require.NoError(s.Put(ctx, testRequest(t)))
	require.NoError(s.Put(ctx, testRequest(t)))
	assert.Equal(2, s.Len())
}

func TestRedisStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	t.Run("nil-client", func(t *testing.T) {
		assert := assert.New(t)
		_, err := NewRedisStore(nil)
		assert.Truef(errors.Is(err, oidc.ErrNilParameter), "wanted \"%s\" but got \"%s\"", oidc.ErrNilParameter, err)
	})
	t.Run("key-prefix-and-ttl", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, mr := testNewRedisStore(t, WithKeyPrefix("rp:"))
		r := testRequest(t)
		require.NoError(s.Put(ctx, r))
		assert.True(mr.Exists("rp:" + r.State()))
		ttl := mr.TTL("rp:" + r.State())
		assert.Greater(ttl, time.Duration(0))
		assert.LessOrEqual(ttl, time.Minute)

		mr.FastForward(2 * time.Minute)
		_, err := s.Take(ctx, r.State())
		assert.Truef(errors.Is(err, ErrNotFound), "wanted \"%s\" but got \"%s\"", ErrNotFound, err)
	})
	t.Run("corrupt-entry", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, mr := testNewRedisStore(t)
		require.NoError(mr.Set(DefaultKeyPrefix+"st_bad", "not json"))
		_, err := s.Take(ctx, "st_bad")
		require.Error(err)
		assert.False(errors.Is(err, ErrNotFound))
		assert.False(mr.Exists(DefaultKeyPrefix + "st_bad"))
	})
	t.Run("unavailable", func(t *testing.T) {
		assert := assert.New(t)
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
		t.Cleanup(func() { _ = client.Close() })
		s, err := NewRedisStore(client)
		require.NoError(t, err)
		err = s.Put(ctx, testRequest(t))
		assert.Truef(errors.Is(err, oidc.ErrNetwork), "wanted \"%s\" but got \"%s\"", oidc.ErrNetwork, err)
		_, err = s.Take(ctx, "st_any")
		assert.Truef(errors.Is(err, oidc.ErrNetwork), "wanted \"%s\" but got \"%s\"", oidc.ErrNetwork, err)
	})
}
