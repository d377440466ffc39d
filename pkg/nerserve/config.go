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
	"errors"
	"time"
)

// Defaults mirror the service's historical behavior.
const (
	// DefaultMaxSamples is the hard cap on samples per request; anything
	// beyond it is silently truncated.
	DefaultMaxSamples = 100

	// DefaultThreads bounds the fan-out worker pool.
	DefaultThreads = 8

	// DefaultCacheCapacity bounds both the per-text and request-level caches.
	DefaultCacheCapacity = 1000
)

// Config holds the service configuration.
type Config struct {
	// ApiUrl is the address the HTTP server binds to (e.g. "http://0.0.0.0:5000")
	ApiUrl string `json:"api_url" mapstructure:"api_url"`

	// ModelPath is a local model directory. Mutually exclusive with ModelID.
	ModelPath string `json:"model_path" mapstructure:"model_path"`

	// ModelID is a HuggingFace repo id to download. Mutually exclusive with ModelPath.
	ModelID string `json:"model_id" mapstructure:"model_id"`

	// ModelsDir is where downloaded models are stored.
	ModelsDir string `json:"models_dir" mapstructure:"models_dir"`

	// HFToken authenticates downloads of gated models (optional).
	HFToken string `json:"-" mapstructure:"hf_token"`

	// Threads bounds the fan-out worker pool (0 = DefaultThreads).
	Threads int `json:"threads" mapstructure:"threads"`

	// PoolSize is the number of model pipelines (0 = auto-detect).
	PoolSize int `json:"pool_size" mapstructure:"pool_size"`

	// Threshold is the minimum confidence for reported entities.
	Threshold float32 `json:"threshold" mapstructure:"threshold"`

	// MaxConcurrentRequests bounds in-flight requests (0 = unlimited).
	MaxConcurrentRequests int `json:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`

	// MaxQueueSize bounds requests waiting for a slot (0 = no waiting room).
	MaxQueueSize int `json:"max_queue_size" mapstructure:"max_queue_size"`

	// RequestTimeout is how long a request may wait for a slot
	// (e.g. "30s", empty = wait indefinitely).
	RequestTimeout string `json:"request_timeout" mapstructure:"request_timeout"`

	// CacheTTL is the lifetime of cached results (0 = no expiry).
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl"`

	// CacheCapacity bounds cache entry counts (0 = DefaultCacheCapacity).
	CacheCapacity int `json:"cache_capacity" mapstructure:"cache_capacity"`
}

// Validate checks the model source configuration: exactly one of
// ModelPath and ModelID must be set.
func (c *Config) Validate() error {
	if c.ModelPath == "" && c.ModelID == "" {
		return errors.New("either model_path or model_id is required")
	}
	if c.ModelPath != "" && c.ModelID != "" {
		return errors.New("model_path and model_id are mutually exclusive")
	}
	return nil
}

func (c *Config) threads() int {
	if c.Threads > 0 {
		return c.Threads
	}
	return DefaultThreads
}

func (c *Config) cacheCapacity() uint64 {
	if c.CacheCapacity > 0 {
		return uint64(c.CacheCapacity)
	}
	return DefaultCacheCapacity
}
