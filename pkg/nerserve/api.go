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
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic/decoder"
	"github.com/bytedance/sonic/encoder"
	"go.uber.org/zap"
)

// DetectRequest is the body of POST /detect-pii.
type DetectRequest struct {
	// Samples are the text samples to analyze
	Samples []string `json:"samples"`
}

// DetectResponse is the response of POST /detect-pii. Results are
// positionally aligned with the (possibly truncated) request samples.
type DetectResponse struct {
	Results [][]EntityMatch `json:"results"`
}

// handleDetectPII handles PII detection requests.
func (n *Node) handleDetectPII(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()

	start := time.Now()

	// Apply backpressure via request queue
	release, err := n.requestQueue.Acquire(r.Context())
	if err != nil {
		switch err {
		case ErrQueueFull:
			RecordQueueRejection()
			WriteQueueFullResponse(w, 5*time.Second)
		case ErrRequestTimeout:
			RecordQueueTimeout()
			WriteTimeoutResponse(w)
		default:
			// Context cancelled
			http.Error(w, "request cancelled", http.StatusRequestTimeout)
		}
		return
	}
	defer release()

	// Update queue metrics
	UpdateQueueMetrics(n.requestQueue.Stats())

	// Decode request
	var req DetectRequest
	if err := decoder.NewStreamDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "decoding request: "+err.Error(), http.StatusBadRequest)
		return
	}

	if len(req.Samples) == 0 {
		http.Error(w, "samples are required", http.StatusBadRequest)
		return
	}

	// Oversized requests are truncated, not rejected
	samples := req.Samples
	if len(samples) > DefaultMaxSamples {
		n.logger.Warn("Truncating oversized request",
			zap.Int("received", len(samples)),
			zap.Int("max", DefaultMaxSamples))
		samples = samples[:DefaultMaxSamples]
	}

	// Whole-request memo: identical sample lists skip the coordinator
	if results, ok := n.requestCache.Lookup(samples); ok {
		RecordDetectionRequest("request_cache")
		n.writeDetectResponse(w, results, "detect-pii", start)
		return
	}

	results, degraded := n.coordinator.Process(r.Context(), samples)

	// An incomplete response (cancelled request or failed extraction)
	// must not be memoized: with no TTL it would shadow the real answer
	// for every later identical request.
	if !degraded && r.Context().Err() == nil {
		n.requestCache.Store(samples, results)
	}

	RecordDetectionRequest("model")
	totalEntities := 0
	for _, matches := range results {
		totalEntities += len(matches)
	}
	RecordEntityDetection(totalEntities)

	n.logger.Info("Detection request completed",
		zap.Int("num_samples", len(samples)),
		zap.Int("total_entities", totalEntities),
		zap.Duration("duration", time.Since(start)))

	n.writeDetectResponse(w, results, "detect-pii", start)
}

func (n *Node) writeDetectResponse(w http.ResponseWriter, results [][]EntityMatch, endpoint string, start time.Time) {
	w.Header().Set("Content-Type", "application/json")
	if err := encoder.NewStreamEncoder(w).Encode(DetectResponse{Results: results}); err != nil {
		n.logger.Error("encoding response", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		RecordRequestDuration(endpoint, strconv.Itoa(http.StatusInternalServerError), time.Since(start).Seconds())
		return
	}
	RecordRequestDuration(endpoint, strconv.Itoa(http.StatusOK), time.Since(start).Seconds())
}
