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

package extractor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	khugot "github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Ensure PooledExtractor implements both interfaces
var _ Extractor = (*PooledExtractor)(nil)
var _ BatchExtractor = (*PooledExtractor)(nil)

// DefaultPoolSize caps the auto-detected pipeline pool size. Token
// classification is memory-hungry; more pipelines than this rarely helps.
const DefaultPoolSize = 4

// PooledConfig holds configuration for creating a PooledExtractor.
type PooledConfig struct {
	// ModelPath is the path to the model directory
	ModelPath string

	// OnnxFilename selects which ONNX file to load (default "model.onnx")
	OnnxFilename string

	// PoolSize determines how many concurrent requests can be processed
	// (0 = min(NumCPU, DefaultPoolSize))
	PoolSize int

	// Logger for logging (nil = no logging)
	Logger *zap.Logger
}

// PooledExtractor manages multiple ONNX token-classification pipelines for
// concurrent entity extraction. Each request acquires a pipeline slot via
// semaphore, enabling true parallelism.
type PooledExtractor struct {
	session      *khugot.Session
	pipelines    []*pipelines.TokenClassificationPipeline
	sem          *semaphore.Weighted
	nextPipeline atomic.Uint64
	logger       *zap.Logger
	poolSize     int
}

// NewPooledExtractor creates a pooled extractor backed by the Hugot ONNX
// runtime. The session is owned by the extractor and destroyed on Close.
func NewPooledExtractor(cfg PooledConfig) (*PooledExtractor, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}

	onnxFilename := cfg.OnnxFilename
	if onnxFilename == "" {
		onnxFilename = "model.onnx"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = min(runtime.NumCPU(), DefaultPoolSize)
	}

	logger.Info("Initializing pooled extractor",
		zap.String("modelPath", cfg.ModelPath),
		zap.String("onnxFilename", onnxFilename),
		zap.Int("poolSize", poolSize))

	session, err := khugot.NewGoSession()
	if err != nil {
		logger.Error("Failed to create Hugot session", zap.Error(err))
		return nil, fmt.Errorf("creating hugot session: %w", err)
	}

	// Create N pipelines with unique names
	pipelinesList := make([]*pipelines.TokenClassificationPipeline, poolSize)
	for i := 0; i < poolSize; i++ {
		pipelineName := fmt.Sprintf("pii:%s:%s:%d", cfg.ModelPath, onnxFilename, i)
		pipelineConfig := khugot.TokenClassificationConfig{
			ModelPath:    cfg.ModelPath,
			Name:         pipelineName,
			OnnxFilename: onnxFilename,
		}

		pipeline, err := khugot.NewPipeline(session, pipelineConfig)
		if err != nil {
			_ = session.Destroy()
			logger.Error("Failed to create pipeline",
				zap.Int("index", i),
				zap.Error(err))
			return nil, fmt.Errorf("creating token classification pipeline %d: %w", i, err)
		}

		// Group adjacent tokens with the same entity type
		pipeline.AggregationStrategy = "SIMPLE"
		pipelinesList[i] = pipeline
		logger.Debug("Created pipeline", zap.Int("index", i), zap.String("name", pipelineName))
	}

	logger.Info("Successfully created extractor pipelines", zap.Int("count", poolSize))

	return &PooledExtractor{
		session:   session,
		pipelines: pipelinesList,
		sem:       semaphore.NewWeighted(int64(poolSize)),
		logger:    logger,
		poolSize:  poolSize,
	}, nil
}

// Extract extracts entities from a single text.
// Thread-safe: uses semaphore to limit concurrent pipeline access.
func (p *PooledExtractor) Extract(ctx context.Context, text string, labels []string, threshold float32) ([]Entity, error) {
	if text == "" {
		return []Entity{}, nil
	}

	results, err := p.run(ctx, []string{text}, threshold)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// ExtractBatch extracts entities from a batch of texts in one model
// invocation. Results are positionally aligned with the input.
func (p *PooledExtractor) ExtractBatch(ctx context.Context, texts []string, labels []string, threshold float32) ([][]Entity, error) {
	if len(texts) == 0 {
		return [][]Entity{}, nil
	}
	return p.run(ctx, texts, threshold)
}

func (p *PooledExtractor) run(ctx context.Context, texts []string, threshold float32) ([][]Entity, error) {
	// Acquire semaphore slot (blocks if all pipelines busy)
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring pipeline slot: %w", err)
	}
	defer p.sem.Release(1)

	// Round-robin pipeline selection
	idx := int(p.nextPipeline.Add(1) % uint64(p.poolSize))
	pipeline := p.pipelines[idx]

	p.logger.Debug("Using pipeline for extraction",
		zap.Int("pipelineIndex", idx),
		zap.Int("num_texts", len(texts)))

	output, err := pipeline.RunPipeline(texts)
	if err != nil {
		p.logger.Error("Pipeline inference failed",
			zap.Int("pipelineIndex", idx),
			zap.Error(err))
		return nil, fmt.Errorf("running token classification: %w", err)
	}

	results := make([][]Entity, len(texts))
	for i, textEntities := range output.Entities {
		if i >= len(texts) {
			break
		}
		results[i] = p.parseEntities(texts[i], textEntities, threshold)
	}
	for i := range results {
		if results[i] == nil {
			results[i] = []Entity{}
		}
	}

	p.logger.Debug("Extraction completed",
		zap.Int("pipelineIndex", idx),
		zap.Int("num_texts", len(texts)),
		zap.Int("total_entities", countEntities(results)))

	return results, nil
}

// parseEntities converts pipeline entities to extractor entities.
// Handles BIO format labels (B-PER, I-PER, etc.) and the score threshold.
func (p *PooledExtractor) parseEntities(text string, pipelineEntities []pipelines.Entity, threshold float32) []Entity {
	if len(pipelineEntities) == 0 {
		return []Entity{}
	}

	entities := make([]Entity, 0, len(pipelineEntities))

	for _, pe := range pipelineEntities {
		// Skip O (outside) labels
		label := stripBIOPrefix(pe.Entity)
		if label == "" {
			continue
		}

		if pe.Score < threshold {
			continue
		}

		// Get the entity text from the original text using character offsets
		start := int(pe.Start)
		end := int(pe.End)
		if start < 0 || end > len(text) || start >= end {
			p.logger.Debug("Invalid entity offsets",
				zap.Int("start", start),
				zap.Int("end", end),
				zap.Int("text_len", len(text)))
			continue
		}

		entities = append(entities, Entity{
			Text:  text[start:end],
			Label: label,
			Start: start,
			End:   end,
			Score: pe.Score,
		})
	}

	return entities
}

// stripBIOPrefix removes a BIO/BIOES prefix (B-, I-, E-, S-) from a label.
// Returns "" for O (outside) labels.
func stripBIOPrefix(label string) string {
	if label == "O" || label == "" {
		return ""
	}
	if len(label) >= 2 && label[1] == '-' {
		return label[2:]
	}
	return label
}

// Close releases the pipelines and destroys the owned session.
func (p *PooledExtractor) Close() error {
	if p.session != nil {
		p.logger.Info("Destroying Hugot session")
		err := p.session.Destroy()
		p.session = nil
		p.pipelines = nil
		return err
	}
	return nil
}

// countEntities returns the total number of entities across all texts.
func countEntities(results [][]Entity) int {
	count := 0
	for _, entities := range results {
		count += len(entities)
	}
	return count
}
