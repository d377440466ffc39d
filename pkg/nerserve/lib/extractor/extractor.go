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

// Package extractor defines the boundary to the underlying entity
// detection model. The service core depends only on the Extractor
// interfaces; the concrete ONNX implementation lives in hugot.go.
package extractor

import "context"

// Entity represents a named entity extracted from text.
type Entity struct {
	// Text is the entity text (e.g., "John Smith")
	Text string `json:"text"`
	// Label is the raw entity type as produced by the model
	Label string `json:"label"`
	// Start is the character offset where the entity begins
	Start int `json:"start"`
	// End is the character offset where the entity ends (exclusive)
	End int `json:"end"`
	// Score is the confidence score (0.0 to 1.0)
	Score float32 `json:"score"`
}

// Extractor extracts entities from a single text.
//
// labels is the candidate entity-type vocabulary. Zero-shot models use it
// directly; fixed-vocabulary models treat it as advisory. threshold drops
// entities whose confidence falls below it.
type Extractor interface {
	// Extract returns the entities found in text. An empty text yields an
	// empty result, never an error.
	Extract(ctx context.Context, text string, labels []string, threshold float32) ([]Entity, error)

	// Close releases any resources held by the extractor.
	Close() error
}

// BatchExtractor is an optional capability for extractors that can run a
// whole batch in one model invocation. Results are positionally aligned
// with the input texts.
type BatchExtractor interface {
	Extractor

	ExtractBatch(ctx context.Context, texts []string, labels []string, threshold float32) ([][]Entity, error)
}
