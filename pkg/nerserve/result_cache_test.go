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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/privsense/nerserve/pkg/nerserve/lib/extractor"
)

// MockExtractor implements the extractor.Extractor interface for testing
type MockExtractor struct {
	extractFunc func(ctx context.Context, text string, labels []string, threshold float32) ([]extractor.Entity, error)
	callCount   atomic.Int32
}

func (m *MockExtractor) Extract(ctx context.Context, text string, labels []string, threshold float32) ([]extractor.Entity, error) {
	m.callCount.Add(1)
	if m.extractFunc != nil {
		return m.extractFunc(ctx, text, labels, threshold)
	}
	// Default implementation reports the whole text as a person
	return []extractor.Entity{
		{Text: text, Label: "person", Start: 0, End: len(text), Score: 0.9},
	}, nil
}

func (m *MockExtractor) Close() error { return nil }

func (m *MockExtractor) GetCallCount() int32 {
	return m.callCount.Load()
}

func TestCachedExtractor_SecondCallHitsCache(t *testing.T) {
	mock := &MockExtractor{}
	cached := NewCachedExtractor(mock, 100, 0, zaptest.NewLogger(t))
	defer func() { _ = cached.Close() }()

	ctx := context.Background()

	first, err := cached.Extract(ctx, "John Doe called", PIILabels, 0.0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := cached.Extract(ctx, "John Doe called", PIILabels, 0.0)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, int32(1), mock.GetCallCount(), "second identical call must not reach the extractor")
}

func TestCachedExtractor_DistinctKeyComponents(t *testing.T) {
	mock := &MockExtractor{}
	cached := NewCachedExtractor(mock, 100, 0, zaptest.NewLogger(t))
	defer func() { _ = cached.Close() }()

	ctx := context.Background()

	_, err := cached.Extract(ctx, "some text", []string{"person"}, 0.0)
	require.NoError(t, err)

	// Different text
	_, err = cached.Extract(ctx, "other text", []string{"person"}, 0.0)
	require.NoError(t, err)

	// Different labels
	_, err = cached.Extract(ctx, "some text", []string{"email"}, 0.0)
	require.NoError(t, err)

	// Different threshold
	_, err = cached.Extract(ctx, "some text", []string{"person"}, 0.5)
	require.NoError(t, err)

	assert.Equal(t, int32(4), mock.GetCallCount(), "each distinct key must invoke the extractor")
}

func TestCachedExtractor_EmptyTextShortCircuits(t *testing.T) {
	mock := &MockExtractor{}
	cached := NewCachedExtractor(mock, 100, 0, zaptest.NewLogger(t))
	defer func() { _ = cached.Close() }()

	ctx := context.Background()

	for _, text := range []string{"", "   ", "\n\t"} {
		entities, err := cached.Extract(ctx, text, PIILabels, 0.0)
		require.NoError(t, err)
		assert.NotNil(t, entities)
		assert.Empty(t, entities)
	}

	assert.Equal(t, int32(0), mock.GetCallCount(), "blank text must not reach the extractor")
}

func TestCachedExtractor_CapacityBound(t *testing.T) {
	mock := &MockExtractor{}
	cached := NewCachedExtractor(mock, 10, 0, zaptest.NewLogger(t))
	defer func() { _ = cached.Close() }()

	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := cached.Extract(ctx, fmt.Sprintf("sample %d", i), PIILabels, 0.0)
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, cached.Len(), 10)
}

func TestCachedExtractor_ErrorsAreNotCached(t *testing.T) {
	failing := atomic.Bool{}
	failing.Store(true)
	mock := &MockExtractor{
		extractFunc: func(ctx context.Context, text string, labels []string, threshold float32) ([]extractor.Entity, error) {
			if failing.Load() {
				return nil, fmt.Errorf("inference crashed")
			}
			return []extractor.Entity{}, nil
		},
	}
	cached := NewCachedExtractor(mock, 100, 0, zaptest.NewLogger(t))
	defer func() { _ = cached.Close() }()

	ctx := context.Background()

	_, err := cached.Extract(ctx, "text", PIILabels, 0.0)
	require.Error(t, err)

	// Once the model recovers, the same key must be retried
	failing.Store(false)
	entities, err := cached.Extract(ctx, "text", PIILabels, 0.0)
	require.NoError(t, err)
	assert.Empty(t, entities)
	assert.Equal(t, int32(2), mock.GetCallCount())
}

func TestCachedExtractor_SingleflightCollapsesConcurrentMisses(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once

	mock := &MockExtractor{
		extractFunc: func(ctx context.Context, text string, labels []string, threshold float32) ([]extractor.Entity, error) {
			once.Do(func() { close(started) })
			<-proceed
			return []extractor.Entity{{Text: text, Label: "person", Start: 0, End: len(text), Score: 0.9}}, nil
		},
	}
	cached := NewCachedExtractor(mock, 100, 0, zaptest.NewLogger(t))
	defer func() { _ = cached.Close() }()

	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entities, err := cached.Extract(ctx, "same text", PIILabels, 0.0)
			assert.NoError(t, err)
			assert.Len(t, entities, 1)
		}()
	}

	// Release the single in-flight extraction once everyone has piled on
	<-started
	time.Sleep(50 * time.Millisecond)
	close(proceed)
	wg.Wait()

	assert.Equal(t, int32(1), mock.GetCallCount(), "concurrent identical misses must collapse into one call")
}
