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
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/privsense/nerserve/pkg/nerserve/lib/extractor"
)

// EntityMatch is a detected entity as reported to API consumers.
type EntityMatch struct {
	// Text is the detected entity text
	Text string `json:"text"`
	// Type is the canonical entity type (PER, ORG, PHONE, ...)
	Type string `json:"type"`
	// Score is the confidence score (0.0-1.0)
	Score float32 `json:"score"`
}

// Coordinator fans a batch of text samples out to the extractor and
// gathers results in input order. Extraction failures never surface to
// the caller; the affected samples degrade to empty match lists.
type Coordinator struct {
	model     extractor.Extractor
	batch     extractor.BatchExtractor // nil when the model has no batch path
	cached    *CachedExtractor
	workers   int
	threshold float32
	logger    *zap.Logger
}

// NewCoordinator creates a coordinator. model is the raw extractor used
// for the native-batch path; cached wraps the same model for the per-text
// fan-out path. workers bounds fan-out concurrency.
func NewCoordinator(
	model extractor.Extractor,
	cached *CachedExtractor,
	workers int,
	threshold float32,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = DefaultThreads
	}

	batch, _ := model.(extractor.BatchExtractor)

	return &Coordinator{
		model:     model,
		batch:     batch,
		cached:    cached,
		workers:   workers,
		threshold: threshold,
		logger:    logger,
	}
}

// Process detects entities in every sample. The returned slice is
// positionally aligned with texts: results[i] holds the matches for
// texts[i], empty (never nil) for blank samples and failed extractions.
// degraded reports whether any sample fell back to an empty result
// because of a cancelled context or an extraction failure; such a
// response is incomplete and must not be memoized.
func (c *Coordinator) Process(ctx context.Context, texts []string) (results [][]EntityMatch, degraded bool) {
	results = make([][]EntityMatch, len(texts))
	for i := range results {
		results[i] = []EntityMatch{}
	}
	if len(texts) == 0 {
		return results, false
	}

	if c.batch != nil {
		degraded = c.processBatch(ctx, texts, results)
	} else {
		degraded = c.processFanout(ctx, texts, results)
	}
	return results, degraded
}

// processBatch filters out blank samples, runs one model invocation over
// the rest, and scatters the output back to the original positions.
func (c *Coordinator) processBatch(ctx context.Context, texts []string, results [][]EntityMatch) bool {
	indices := make([]int, 0, len(texts))
	valid := make([]string, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			indices = append(indices, i)
			valid = append(valid, text)
		}
	}
	if len(valid) == 0 {
		RecordSampleProcessing("empty", len(texts))
		return false
	}

	entities, err := c.batch.ExtractBatch(ctx, valid, PIILabels, c.threshold)
	if err != nil {
		c.logger.Error("Batch extraction failed, degrading to empty results",
			zap.Int("num_texts", len(valid)),
			zap.Error(err))
		for range valid {
			RecordSampleFailure()
		}
		return true
	}

	for pos, origIdx := range indices {
		if pos >= len(entities) {
			break
		}
		results[origIdx] = toMatches(entities[pos])
	}

	RecordSampleProcessing("batch", len(valid))
	RecordSampleProcessing("empty", len(texts)-len(valid))
	return false
}

// processFanout runs each sample through the cached extractor on a
// bounded worker pool, writing results by index so completion order never
// affects output order.
func (c *Coordinator) processFanout(ctx context.Context, texts []string, results [][]EntityMatch) bool {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	var degraded atomic.Bool
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			RecordSampleProcessing("empty", 1)
			continue
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				degraded.Store(true)
				return nil
			}
			entities, err := c.cached.Extract(gctx, text, PIILabels, c.threshold)
			if err != nil {
				c.logger.Error("Sample extraction failed, degrading to empty result",
					zap.Int("index", i),
					zap.Error(err))
				RecordSampleFailure()
				degraded.Store(true)
				return nil
			}
			results[i] = toMatches(entities)
			RecordSampleProcessing("fanout", 1)
			return nil
		})
	}

	// Workers swallow their own errors, so this only waits.
	_ = g.Wait()
	return degraded.Load()
}

// toMatches converts raw extractor entities to API matches with canonical
// entity types.
func toMatches(entities []extractor.Entity) []EntityMatch {
	matches := make([]EntityMatch, 0, len(entities))
	for _, e := range entities {
		matches = append(matches, EntityMatch{
			Text:  e.Text,
			Type:  CanonicalType(e.Label),
			Score: e.Score,
		})
	}
	return matches
}
