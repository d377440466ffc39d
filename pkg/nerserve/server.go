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
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/privsense/nerserve/pkg/nerserve/lib/extractor"
	"github.com/privsense/nerserve/pkg/nerserve/lib/modelsource"
)

// DefaultShutdownTimeout is the default time to wait for graceful shutdown
const DefaultShutdownTimeout = 30 * time.Second

// Node is the running service: the readiness gate, the request queue, the
// caches and the coordinator over the model.
type Node struct {
	logger *zap.Logger

	gate         *Gate
	requestQueue *RequestQueue
	requestCache *RequestCache

	// Set by the model loader before the gate flips to Ready
	coordinator *Coordinator
	cached      *CachedExtractor
	modelPath   atomicString
}

type atomicString struct {
	v atomic.Value
}

func (s *atomicString) Store(val string) { s.v.Store(val) }

func (s *atomicString) Load() string {
	val, _ := s.v.Load().(string)
	return val
}

// corsMiddleware adds permissive CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept, Origin")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loadModel resolves the configured model source, builds the pooled
// extractor and wires the coordinator. Runs under the gate: the node's
// fields are published before the gate flips to Ready.
func (n *Node) loadModel(ctx context.Context, config Config) error {
	start := time.Now()

	modelPath := config.ModelPath
	if config.ModelID != "" {
		client := modelsource.NewClient(config.ModelsDir, n.logger.Named("modelsource"),
			modelsource.WithToken(config.HFToken))
		resolved, err := client.Resolve(config.ModelID)
		if err != nil {
			return err
		}
		modelPath = resolved
	}

	model, err := extractor.NewPooledExtractor(extractor.PooledConfig{
		ModelPath: modelPath,
		PoolSize:  config.PoolSize,
		Logger:    n.logger.Named("extractor"),
	})
	if err != nil {
		return err
	}

	cached := NewCachedExtractor(model, config.cacheCapacity(), config.CacheTTL,
		n.logger.Named("result-cache"))

	n.cached = cached
	n.coordinator = NewCoordinator(model, cached, config.threads(), config.Threshold,
		n.logger.Named("coordinator"))
	n.modelPath.Store(modelPath)

	RecordModelLoadDuration(modelPath, time.Since(start).Seconds())
	return nil
}

// routes assembles the HTTP handler: detection endpoints behind the
// readiness gate, health and metrics outside it, CORS on everything.
func (n *Node) routes() http.Handler {
	rootMux := http.NewServeMux()
	rootMux.HandleFunc("GET /healthz", n.handleHealthz)
	rootMux.HandleFunc("GET /detect-pii/health", n.handleHealth)
	rootMux.HandleFunc("POST /detect-pii", n.handleDetectPII)
	rootMux.Handle("GET /metrics", promhttp.Handler())

	return corsMiddleware(n.gate.Middleware(rootMux,
		"/healthz", "/detect-pii/health", "/metrics"))
}

// RunServer starts the detection service and blocks until ctx is
// cancelled. The model loads in the background while the server serves
// health checks and 503s; if readyC is non-nil it is closed once the
// model is ready.
func RunServer(ctx context.Context, zl *zap.Logger, config Config, readyC chan struct{}) {
	zl = zl.Named("nerserve")
	zl.Info("Starting detection node", zap.Any("config", config))

	if err := config.Validate(); err != nil {
		zl.Fatal("Invalid model configuration", zap.Error(err))
	}

	u, err := url.Parse(config.ApiUrl)
	if err != nil {
		zl.Fatal("Invalid API URL", zap.String("url", config.ApiUrl), zap.Error(err))
	}

	// Initialize request queue for backpressure control
	var requestTimeout time.Duration
	if config.RequestTimeout != "" && config.RequestTimeout != "0" {
		requestTimeout, err = time.ParseDuration(config.RequestTimeout)
		if err != nil {
			zl.Fatal("Invalid request_timeout duration",
				zap.String("request_timeout", config.RequestTimeout), zap.Error(err))
		}
	}

	requestQueue := NewRequestQueue(RequestQueueConfig{
		MaxConcurrentRequests: config.MaxConcurrentRequests,
		MaxQueueSize:          config.MaxQueueSize,
		RequestTimeout:        requestTimeout,
	}, zl.Named("queue"))

	requestCache := NewRequestCache(config.cacheCapacity(), config.CacheTTL,
		zl.Named("request-cache"))
	defer requestCache.Close()

	node := &Node{
		logger:       zl,
		gate:         NewGate(zl.Named("gate")),
		requestQueue: requestQueue,
		requestCache: requestCache,
	}

	// Load the model in the background; the gate keeps traffic out until
	// the load completes.
	go func() {
		if err := node.gate.Load(ctx, func(ctx context.Context) error {
			return node.loadModel(ctx, config)
		}); err != nil {
			zl.Error("Node will serve errors until restarted", zap.Error(err))
			return
		}
		if readyC != nil {
			close(readyC)
		}
	}()
	// The load goroutine publishes cached before the gate flips to Ready,
	// so the atomic state read orders this access.
	defer func() {
		if node.gate.Ready() {
			_ = node.cached.Close()
		}
	}()

	srv := &http.Server{
		Addr:        u.Host,
		Handler:     node.routes(),
		ReadTimeout: 540 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		zl.Info("Detection api server starting", zap.String("address", config.ApiUrl))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for context cancellation or server error
	select {
	case err := <-serverErr:
		if err != nil {
			zl.Fatal("HTTP server error", zap.Error(err))
		}
	case <-ctx.Done():
		zl.Info("Shutdown signal received, starting graceful shutdown...")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections
	srv.SetKeepAlivesEnabled(false)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("Graceful shutdown failed, forcing close",
			zap.Error(err),
			zap.Duration("timeout", DefaultShutdownTimeout))
		_ = srv.Close()
	} else {
		zl.Info("Graceful shutdown completed successfully")
	}

	zl.Info("HTTP server stopped")
}
