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
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
)

// requestKeyPrefixLen is how many leading samples participate in the
// request fingerprint. Together with the sample count this keeps keys
// cheap on large requests; requests differing only beyond the prefix
// collide, a deliberate approximation.
const requestKeyPrefixLen = 10

// RequestCache memoizes whole detection responses keyed by a fingerprint
// of the request's sample list.
type RequestCache struct {
	cache  *ttlcache.Cache[string, [][]EntityMatch]
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewRequestCache creates a request cache. capacity bounds the entry
// count (LRU eviction); ttl of 0 disables expiry.
func NewRequestCache(capacity uint64, ttl time.Duration, logger *zap.Logger) *RequestCache {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []ttlcache.Option[string, [][]EntityMatch]{
		ttlcache.WithCapacity[string, [][]EntityMatch](capacity),
	}
	if ttl > 0 {
		opts = append(opts, ttlcache.WithTTL[string, [][]EntityMatch](ttl))
	}
	cache := ttlcache.New(opts...)
	go cache.Start()

	ctx, cancel := context.WithCancel(context.Background())
	rc := &RequestCache{
		cache:  cache,
		logger: logger,
		cancel: cancel,
	}

	// Log cache stats periodically
	go rc.logStats(ctx)

	return rc
}

// Lookup returns the cached response for the sample list, if any.
func (rc *RequestCache) Lookup(samples []string) ([][]EntityMatch, bool) {
	item := rc.cache.Get(requestCacheKey(samples))
	if item == nil {
		RecordCacheMiss("request")
		return nil, false
	}
	RecordCacheHit("request")
	rc.logger.Debug("Request cache hit", zap.Int("num_samples", len(samples)))
	return item.Value(), true
}

// Store caches the response for the sample list.
func (rc *RequestCache) Store(samples []string, results [][]EntityMatch) {
	rc.cache.Set(requestCacheKey(samples), results, ttlcache.DefaultTTL)
}

// requestCacheKey fingerprints a request by its sample count and the
// first requestKeyPrefixLen samples.
func requestCacheKey(samples []string) string {
	h := xxhash.New()

	var count [8]byte
	binary.BigEndian.PutUint64(count[:], uint64(len(samples)))
	_, _ = h.Write(count[:])

	n := min(len(samples), requestKeyPrefixLen)
	for i := 0; i < n; i++ {
		_, _ = h.WriteString("s")
		_, _ = h.Write([]byte{byte(i >> 8), byte(i)})
		_, _ = h.WriteString(":")
		_, _ = h.WriteString(samples[i])
		_, _ = h.WriteString("|")
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return string(buf[:])
}

// Len returns the number of cached entries.
func (rc *RequestCache) Len() int {
	return rc.cache.Len()
}

// Close stops the cache.
func (rc *RequestCache) Close() {
	rc.cancel()
	rc.cache.Stop()
}

// logStats logs cache statistics periodically
func (rc *RequestCache) logStats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics := rc.cache.Metrics()
			if metrics.Hits > 0 || metrics.Misses > 0 {
				hitRate := float64(0)
				total := metrics.Hits + metrics.Misses
				if total > 0 {
					hitRate = float64(metrics.Hits) / float64(total) * 100
				}
				rc.logger.Info("Request cache stats",
					zap.Uint64("hits", metrics.Hits),
					zap.Uint64("misses", metrics.Misses),
					zap.Float64("hit_rate_pct", hitRate),
					zap.Int("items", rc.cache.Len()))
			}
		}
	}
}
