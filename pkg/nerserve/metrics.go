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

import "github.com/prometheus/client_golang/prometheus"

var (
	detectionRequestOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "privsense",
			Subsystem: "nerserve",
			Name:      "detection_request_ops_total",
			Help:      "The total number of PII detection requests.",
		},
		[]string{"source"}, // model, request_cache
	)
	entityDetectionOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "privsense",
			Subsystem: "nerserve",
			Name:      "entity_detection_ops_total",
			Help:      "The total number of entities detected.",
		},
	)
	sampleProcessingOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "privsense",
			Subsystem: "nerserve",
			Name:      "sample_processing_ops_total",
			Help:      "The total number of text samples processed.",
		},
		[]string{"path"}, // batch, fanout, empty
	)
	sampleFailureOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "privsense",
			Subsystem: "nerserve",
			Name:      "sample_failure_ops_total",
			Help:      "The total number of samples that failed extraction and degraded to empty results.",
		},
	)

	modelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "privsense",
			Subsystem: "nerserve",
			Name:      "model_load_duration_seconds",
			Help:      "Time taken to load the model.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "privsense",
			Subsystem: "nerserve",
			Name:      "request_duration_seconds",
			Help:      "Time taken to process a request.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)

	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "privsense",
			Subsystem: "nerserve",
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits.",
		},
		[]string{"type"}, // result, request
	)

	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "privsense",
			Subsystem: "nerserve",
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses.",
		},
		[]string{"type"}, // result, request
	)

	// Queue metrics
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "privsense",
			Subsystem: "nerserve",
			Name:      "queue_depth",
			Help:      "Number of requests currently waiting in queue.",
		},
	)

	queueActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "privsense",
			Subsystem: "nerserve",
			Name:      "queue_active_requests",
			Help:      "Number of requests currently being processed.",
		},
	)

	queueRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "privsense",
			Subsystem: "nerserve",
			Name:      "queue_rejected_total",
			Help:      "Total number of requests rejected due to full queue.",
		},
	)

	queueTimedOutTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "privsense",
			Subsystem: "nerserve",
			Name:      "queue_timed_out_total",
			Help:      "Total number of requests that timed out while waiting in queue.",
		},
	)
)

func init() {
	prometheus.MustRegister(detectionRequestOps)
	prometheus.MustRegister(entityDetectionOps)
	prometheus.MustRegister(sampleProcessingOps)
	prometheus.MustRegister(sampleFailureOps)
	prometheus.MustRegister(modelLoadDuration)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(queueActiveRequests)
	prometheus.MustRegister(queueRejectedTotal)
	prometheus.MustRegister(queueTimedOutTotal)
}

// RecordDetectionRequest increments the detection request counter
func RecordDetectionRequest(source string) {
	detectionRequestOps.WithLabelValues(source).Inc()
}

// RecordEntityDetection records the number of entities detected
func RecordEntityDetection(count int) {
	entityDetectionOps.Add(float64(count))
}

// RecordSampleProcessing records samples processed on a given path
func RecordSampleProcessing(path string, count int) {
	sampleProcessingOps.WithLabelValues(path).Add(float64(count))
}

// RecordSampleFailure increments the degraded-sample counter
func RecordSampleFailure() {
	sampleFailureOps.Inc()
}

// RecordModelLoadDuration records how long it took to load the model
func RecordModelLoadDuration(model string, seconds float64) {
	modelLoadDuration.WithLabelValues(model).Observe(seconds)
}

// RecordRequestDuration records how long a request took
func RecordRequestDuration(endpoint, status string, seconds float64) {
	requestDuration.WithLabelValues(endpoint, status).Observe(seconds)
}

// RecordCacheHit increments the cache hit counter
func RecordCacheHit(cacheType string) {
	cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss increments the cache miss counter
func RecordCacheMiss(cacheType string) {
	cacheMisses.WithLabelValues(cacheType).Inc()
}

// UpdateQueueMetrics updates all queue-related metrics from QueueStats
func UpdateQueueMetrics(stats QueueStats) {
	queueDepth.Set(float64(stats.CurrentQueued))
	queueActiveRequests.Set(float64(stats.CurrentActive))
}

// RecordQueueRejection increments the rejected counter
func RecordQueueRejection() {
	queueRejectedTotal.Inc()
}

// RecordQueueTimeout increments the timeout counter
func RecordQueueTimeout() {
	queueTimedOutTotal.Inc()
}
