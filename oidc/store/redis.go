// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hashicorp/cap-rp/oidc"
)

// DefaultKeyPrefix is prepended to the state to form a redis key.
const DefaultKeyPrefix = "oidc:request:"

// RedisStore is a RequestStore shared by every process using the same redis.
// Requests are stored as JSON, so they must be *oidc.Req values.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	nowFunc func() time.Time
}

var _ RequestStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore using client. The caller owns the client
// and closes it.
//
// Supported options:
//   - WithKeyPrefix
//   - WithNow
func NewRedisStore(client redis.UniversalClient, opt ...oidc.Option) (*RedisStore, error) {
	const op = "NewRedisStore"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, oidc.ErrNilParameter)
	}
	opts := getStoreOpts(opt...)
	return &RedisStore{
		client:  client,
		prefix:  opts.withKeyPrefix,
		nowFunc: opts.withNowFunc,
	}, nil
}

// Put implements RequestStore.
func (s *RedisStore) Put(ctx context.Context, r oidc.Request) error {
	const op = "RedisStore.Put"
	ttl, err := ttlFor(r, s.now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%s: unable to marshal request: %w", op, err)
	}
	ok, err := s.client.SetNX(ctx, s.key(r.State()), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, oidc.ErrNetwork, err)
	}
	if !ok {
		return fmt.Errorf("%s: state already stored: %w", op, oidc.ErrInvalidParameter)
	}
	return nil
}

// Take implements RequestStore. GETDEL makes the read and the delete one
// atomic step, so a state is handed out once across every process.
func (s *RedisStore) Take(ctx context.Context, state string) (oidc.Request, error) {
	const op = "RedisStore.Take"
	data, err := s.client.GetDel(ctx, s.key(state)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %w: %w", op, oidc.ErrNetwork, err)
	}
	var r oidc.Req
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%s: unable to unmarshal request: %w", op, err)
	}
	return &r, nil
}

func (s *RedisStore) key(state string) string {
	return s.prefix + state
}

func (s *RedisStore) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}
