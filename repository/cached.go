/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tomoncle/dalkit/database"
	"github.com/tomoncle/dalkit/utils"
)

// CachedRepository reads rows by id through Redis. Entries are stored as JSON
// under "<table>:<id>" and dropped by every write that touches the row.
// Redis failures are logged and fall through to the database. Reads inside a
// session skip the cache, and writes inside one drop their keys again once
// the session commits.
type CachedRepository[T any] struct {
	Repository[T]
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

// NewCached wraps repo. A ttl of zero keeps entries until invalidated.
func NewCached[T any](repo Repository[T], client *redis.Client, ttl time.Duration) *CachedRepository[T] {
	return &CachedRepository[T]{
		Repository: repo,
		client:     client,
		ttl:        ttl,
		log:        utils.GetLogger("REPOSITORY"),
	}
}

// Key returns the cache key of the row with id.
func (c *CachedRepository[T]) Key(id any) string {
	return fmt.Sprintf("%s:%v", c.Table().Name, id)
}

func (c *CachedRepository[T]) Get(ctx context.Context, id any) (*T, error) {
	if _, inTx := database.TxFromContext(ctx); inTx {
		return c.Repository.Get(ctx, id)
	}
	key := c.Key(id)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		entity := new(T)
		if err := sonic.Unmarshal(raw, entity); err == nil {
			return entity, nil
		}
		c.log.WithField("key", key).Warn("dropping undecodable cache entry")
		c.invalidate(ctx, id)
	case !errors.Is(err, redis.Nil):
		c.log.WithError(err).WithField("key", key).Warn("cache read failed")
	}

	entity, err := c.Repository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, err := sonic.Marshal(entity); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache encode failed")
	} else if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
	return entity, nil
}

func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, fields map[string]any, opts ...GetOrCreateOption) (*T, bool, error) {
	o := getOrCreateOptions{upsert: true}
	for _, opt := range opts {
		opt(&o)
	}
	out, created, err := c.Repository.GetOrCreate(ctx, fields, opts...)
	if err == nil && !created && o.upsert {
		c.invalidateEntities(ctx, out)
	}
	return out, created, err
}

func (c *CachedRepository[T]) Update(ctx context.Context, entity *T) (*T, error) {
	out, err := c.Repository.Update(ctx, entity)
	c.invalidateEntities(ctx, entity)
	return out, err
}

func (c *CachedRepository[T]) UpdateMany(ctx context.Context, entities []*T) ([]*T, error) {
	out, err := c.Repository.UpdateMany(ctx, entities)
	c.invalidateEntities(ctx, entities...)
	return out, err
}

func (c *CachedRepository[T]) Upsert(ctx context.Context, entity *T) (*T, error) {
	out, err := c.Repository.Upsert(ctx, entity)
	c.invalidateEntities(ctx, entity)
	return out, err
}

func (c *CachedRepository[T]) UpsertMany(ctx context.Context, entities []*T) ([]*T, error) {
	out, err := c.Repository.UpsertMany(ctx, entities)
	c.invalidateEntities(ctx, entities...)
	return out, err
}

func (c *CachedRepository[T]) Delete(ctx context.Context, id any) (*T, error) {
	out, err := c.Repository.Delete(ctx, id)
	c.invalidate(ctx, id)
	return out, err
}

func (c *CachedRepository[T]) DeleteMany(ctx context.Context, ids []any) ([]*T, error) {
	out, err := c.Repository.DeleteMany(ctx, ids)
	c.invalidate(ctx, ids...)
	return out, err
}

func (c *CachedRepository[T]) invalidateEntities(ctx context.Context, entities ...*T) {
	ids := make([]any, 0, len(entities))
	for _, e := range entities {
		if e == nil {
			continue
		}
		for _, f := range c.Table().Fields {
			if f.Name == c.IDAttribute() {
				ids = append(ids, f.Value(reflect.ValueOf(e).Elem()).Interface())
				break
			}
		}
	}
	c.invalidate(ctx, ids...)
}

func (c *CachedRepository[T]) invalidate(ctx context.Context, ids ...any) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.Key(id)
	}
	c.del(ctx, keys)
	if _, inTx := database.TxFromContext(ctx); inTx {
		database.AfterCommit(ctx, func(ctx context.Context) { c.del(ctx, keys) })
	}
}

func (c *CachedRepository[T]) del(ctx context.Context, keys []string) {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).WithField("keys", keys).Warn("cache invalidation failed")
	}
}
