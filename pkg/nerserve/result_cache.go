// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nerserve

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/privsense/nerserve/pkg/nerserve/lib/extractor"
)

// CachedExtractor wraps an extractor with per-text result caching.
// Identical (text, labels, threshold) calls hit the cache; concurrent
// identical misses collapse into one model invocation via singleflight.
type CachedExtractor struct {
	inner   extractor.Extractor
	cache   *ttlcache.Cache[string, []extractor.Entity]
	sfGroup *singleflight.Group
	logger  *zap.Logger

	// Metrics
	hits   atomic.Uint64
	misses atomic.Uint64
	sfHits atomic.Uint64
}

// NewCachedExtractor wraps an extractor with caching. capacity bounds the
// entry count (LRU eviction); ttl of 0 disables expiry.
func NewCachedExtractor(
	inner extractor.Extractor,
	capacity uint64,
	ttl time.Duration,
	logger *zap.Logger,
) *CachedExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []ttlcache.Option[string, []extractor.Entity]{
		ttlcache.WithCapacity[string, []extractor.Entity](capacity),
	}
	if ttl > 0 {
		opts = append(opts, ttlcache.WithTTL[string, []extractor.Entity](ttl))
	}
	cache := ttlcache.New(opts...)
	go cache.Start()

	return &CachedExtractor{
		inner:   inner,
		cache:   cache,
		sfGroup: &singleflight.Group{},
		logger:  logger,
	}
}

// Extract extracts entities with caching support. Blank text
// short-circuits to an empty result without touching the model.
func (c *CachedExtractor) Extract(ctx context.Context, text string, labels []string, threshold float32) ([]extractor.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return []extractor.Entity{}, nil
	}

	key := resultCacheKey(text, labels, threshold)

	// Check cache first
	if item := c.cache.Get(key); item != nil {
		c.hits.Add(1)
		RecordCacheHit("result")
		c.logger.Debug("Result cache hit", zap.Int("num_entities", len(item.Value())))
		return item.Value(), nil
	}

	// Use singleflight to deduplicate concurrent identical requests
	result, err, shared := c.sfGroup.Do(key, func() (any, error) {
		c.misses.Add(1)
		RecordCacheMiss("result")

		start := time.Now()
		entities, err := c.inner.Extract(ctx, text, labels, threshold)
		if err != nil {
			return nil, err
		}
		if entities == nil {
			entities = []extractor.Entity{}
		}

		// Store in cache
		c.cache.Set(key, entities, ttlcache.DefaultTTL)

		c.logger.Debug("Extraction completed and cached",
			zap.Int("num_entities", len(entities)),
			zap.Duration("duration", time.Since(start)))

		return entities, nil
	})

	if err != nil {
		return nil, err
	}

	if shared {
		c.sfHits.Add(1)
		c.logger.Debug("Singleflight hit for extraction request")
	}

	return result.([]extractor.Entity), nil
}

// resultCacheKey generates a unique cache key from text + labels + threshold.
func resultCacheKey(text string, labels []string, threshold float32) string {
	h := xxhash.New()

	_, _ = h.WriteString("t:")
	_, _ = h.WriteString(text)
	_, _ = h.WriteString("|")

	for i, label := range labels {
		_, _ = h.WriteString("l")
		// Use index to ensure order matters
		_, _ = h.Write([]byte{byte(i >> 8), byte(i)})
		_, _ = h.WriteString(":")
		_, _ = h.WriteString(label)
		_, _ = h.WriteString("|")
	}

	var thr [4]byte
	binary.BigEndian.PutUint32(thr[:], math.Float32bits(threshold))
	_, _ = h.Write(thr[:])

	// Convert uint64 hash to string key
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return string(buf[:])
}

// Close stops the cache and closes the underlying extractor.
func (c *CachedExtractor) Close() error {
	c.cache.Stop()
	return c.inner.Close()
}

// Len returns the number of cached entries.
func (c *CachedExtractor) Len() int {
	return c.cache.Len()
}

// Stats returns cache statistics.
func (c *CachedExtractor) Stats() ResultCacheStats {
	return ResultCacheStats{
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		SingleflightHits: c.sfHits.Load(),
	}
}

// ResultCacheStats holds cache statistics for the per-text cache.
type ResultCacheStats struct {
	Hits             uint64 `json:"hits"`
	Misses           uint64 `json:"misses"`
	SingleflightHits uint64 `json:"singleflight_hits"`
}
