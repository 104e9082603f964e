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

package commands

import (
	"context"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/verbavid/verbavid-api/internal/cloud"
	"github.com/verbavid/verbavid-api/internal/core/model"
)

// ImageCache memoizes image search results. An empty value is a cached
// absence and still counts as a hit.
type ImageCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Add(ctx context.Context, key string, url string)
}

// ImageCacheKey is the cache key of a query searched in an orientation.
func ImageCacheKey(query string, orientation model.Orientation) string {
	return query + "|" + string(orientation)
}

// LRUImageCache is a bounded in-process cache evicting the least recently
// used entry.
type LRUImageCache struct {
	entries *lru.Cache[string, string]
}

func NewLRUImageCache(size int) (*LRUImageCache, error) {
	entries, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &LRUImageCache{entries: entries}, nil
}

func (c *LRUImageCache) Get(_ context.Context, key string) (string, bool) {
	return c.entries.Get(key)
}

func (c *LRUImageCache) Add(_ context.Context, key string, url string) {
	c.entries.Add(key, url)
}

// Len returns the number of cached entries.
func (c *LRUImageCache) Len() int {
	return c.entries.Len()
}

// TieredImageCache checks the local cache before the shared redis tier and
// back-fills the local cache on a shared hit.
type TieredImageCache struct {
	Local  ImageCache
	Shared ImageCache
}

func (c *TieredImageCache) Get(ctx context.Context, key string) (string, bool) {
	if url, ok := c.Local.Get(ctx, key); ok {
		return url, true
	}
	url, ok := c.Shared.Get(ctx, key)
	if ok {
		c.Local.Add(ctx, key, url)
	}
	return url, ok
}

func (c *TieredImageCache) Add(ctx context.Context, key string, url string) {
	c.Local.Add(ctx, key, url)
	c.Shared.Add(ctx, key, url)
}

// NewImageCache builds the configured cache: an LRU of the configured size,
// layered over redis when a client is given.
func NewImageCache(settings cloud.ImageSearch, client *redis.Client) (ImageCache, error) {
	local, err := NewLRUImageCache(settings.CacheSize)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return local, nil
	}
	return &TieredImageCache{Local: local, Shared: cloud.NewRedisImageCache(client, settings.CacheTTL)}, nil
}
