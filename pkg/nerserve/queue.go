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
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrQueueFull is returned when the waiting room is at capacity.
var ErrQueueFull = errors.New("request queue is full")

// ErrRequestTimeout is returned when a request waited too long for a slot.
var ErrRequestTimeout = errors.New("request timed out waiting in queue")

// RequestQueueConfig configures the backpressure boundary.
type RequestQueueConfig struct {
	// MaxConcurrentRequests bounds in-flight requests (0 = unlimited).
	MaxConcurrentRequests int

	// MaxQueueSize bounds requests waiting for a slot (0 = no waiting room).
	MaxQueueSize int

	// RequestTimeout is how long a request may wait for a slot
	// (0 = wait until the request context is cancelled).
	RequestTimeout time.Duration
}

// RequestQueue applies backpressure to incoming requests: a bounded number
// run concurrently, a bounded number wait, and the rest are rejected.
type RequestQueue struct {
	sem    *semaphore.Weighted
	cfg    RequestQueueConfig
	logger *zap.Logger
	queued atomic.Int64
	active atomic.Int64
}

// QueueStats is a snapshot of queue occupancy.
type QueueStats struct {
	CurrentQueued int64 `json:"current_queued"`
	CurrentActive int64 `json:"current_active"`
}

// NewRequestQueue creates a request queue. With MaxConcurrentRequests == 0
// the queue admits everything and only tracks stats.
func NewRequestQueue(cfg RequestQueueConfig, logger *zap.Logger) *RequestQueue {
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &RequestQueue{cfg: cfg, logger: logger}
	if cfg.MaxConcurrentRequests > 0 {
		q.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests))
	}
	return q
}

// Acquire admits a request, blocking while the queue has room and a slot
// is busy. The returned release function must be called when the request
// finishes. Returns ErrQueueFull when the waiting room is at capacity and
// ErrRequestTimeout when the configured wait elapses.
func (q *RequestQueue) Acquire(ctx context.Context) (func(), error) {
	if q.sem == nil {
		q.active.Add(1)
		return func() { q.active.Add(-1) }, nil
	}

	// Fast path: a slot is free right now
	if q.sem.TryAcquire(1) {
		q.active.Add(1)
		return q.release, nil
	}

	if q.queued.Load() >= int64(q.cfg.MaxQueueSize) {
		q.logger.Warn("Request rejected, queue full",
			zap.Int64("queued", q.queued.Load()),
			zap.Int("max_queue_size", q.cfg.MaxQueueSize))
		return nil, ErrQueueFull
	}

	q.queued.Add(1)
	defer q.queued.Add(-1)

	waitCtx := ctx
	if q.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, q.cfg.RequestTimeout)
		defer cancel()
	}

	if err := q.sem.Acquire(waitCtx, 1); err != nil {
		if q.cfg.RequestTimeout > 0 && errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrRequestTimeout
		}
		return nil, err
	}

	q.active.Add(1)
	return q.release, nil
}

func (q *RequestQueue) release() {
	q.active.Add(-1)
	q.sem.Release(1)
}

// Stats returns a snapshot of queue occupancy.
func (q *RequestQueue) Stats() QueueStats {
	return QueueStats{
		CurrentQueued: q.queued.Load(),
		CurrentActive: q.active.Load(),
	}
}

// WriteQueueFullResponse writes a 429 with a Retry-After hint.
func WriteQueueFullResponse(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
	http.Error(w, "server is overloaded, retry later", http.StatusTooManyRequests)
}

// WriteTimeoutResponse writes a 503 for requests that timed out in queue.
func WriteTimeoutResponse(w http.ResponseWriter) {
	http.Error(w, "request timed out waiting for capacity", http.StatusServiceUnavailable)
}
