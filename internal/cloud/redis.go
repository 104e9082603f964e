// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

const imageCachePrefix = "verbavid:image:"

// NewRedisClient creates a client for the shared cache tier.
func NewRedisClient(config Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
}

// RedisImageCache stores image bindings in redis so every replica shares them.
// Redis failures are logged and reported as misses.
type RedisImageCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisImageCache wraps client with a per entry time to live.
func NewRedisImageCache(client *redis.Client, ttl time.Duration) *RedisImageCache {
	return &RedisImageCache{client: client, ttl: ttl}
}

// Get returns the cached URL. An empty URL with ok set records a search
// without results.
func (r *RedisImageCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := r.client.Get(ctx, imageCachePrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		slog.WarnContext(ctx, "redis image cache read failed", "error", err)
		return "", false
	}
	return val, true
}

// Add stores a binding.
func (r *RedisImageCache) Add(ctx context.Context, key string, value string) {
	if err := r.client.Set(ctx, imageCachePrefix+key, value, r.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "redis image cache write failed", "error", err)
	}
}
