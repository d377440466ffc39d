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
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ModelState tracks the lifecycle of the model behind the service.
type ModelState int32

const (
	// StateLoading means the model load has not completed yet.
	StateLoading ModelState = iota
	// StateReady means the model is loaded and serving.
	StateReady
	// StateFailed means the load failed; the state is terminal.
	StateFailed
)

// String returns the health-endpoint representation of the state.
func (s ModelState) String() string {
	switch s {
	case StateReady:
		return "ok"
	case StateFailed:
		return "error"
	default:
		return "initializing"
	}
}

// Gate guards the service behind the model load. The load runs at most
// once; transitions are Loading->Ready or Loading->Failed, never reversed.
type Gate struct {
	state   atomic.Int32
	mu      sync.Mutex
	attempt bool
	loadErr error
	failure string
	logger  *zap.Logger
}

// NewGate creates a gate in the Loading state.
func NewGate(logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{logger: logger}
}

// Load runs fn at most once, transitioning the gate to Ready on success
// or Failed on error. Concurrent and repeated calls return the first
// attempt's outcome without re-running fn.
func (g *Gate) Load(ctx context.Context, fn func(ctx context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.attempt {
		return g.loadErr
	}
	g.attempt = true

	start := time.Now()
	err := fn(ctx)
	if err != nil {
		g.loadErr = err
		g.failure = err.Error()
		g.state.Store(int32(StateFailed))
		g.logger.Error("Model load failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return err
	}

	g.state.Store(int32(StateReady))
	g.logger.Info("Model loaded", zap.Duration("duration", time.Since(start)))
	return nil
}

// State returns the current model state. Lock-free.
func (g *Gate) State() ModelState {
	return ModelState(g.state.Load())
}

// Ready reports whether the model is loaded and serving.
func (g *Gate) Ready() bool {
	return g.State() == StateReady
}

// FailureReason returns the stored load error message, or "" if the load
// has not failed.
func (g *Gate) FailureReason() string {
	if g.State() != StateFailed {
		return ""
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failure
}

// Middleware rejects requests with 503 until the gate is Ready. Paths in
// exempt (typically health endpoints) always pass through.
func (g *Gate) Middleware(next http.Handler, exempt ...string) http.Handler {
	exemptSet := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		exemptSet[p] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := exemptSet[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		switch g.State() {
		case StateReady:
			next.ServeHTTP(w, r)
		case StateFailed:
			http.Error(w,
				fmt.Sprintf("model failed to load: %s", g.FailureReason()),
				http.StatusServiceUnavailable)
		default:
			w.Header().Set("Retry-After", "5")
			http.Error(w, "model is still loading", http.StatusServiceUnavailable)
		}
	})
}
