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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRequestCache_HitOnIdenticalSamples(t *testing.T) {
	rc := NewRequestCache(100, 0, zaptest.NewLogger(t))
	defer rc.Close()

	samples := []string{"John Doe called", "nothing here"}
	results := [][]EntityMatch{
		{{Text: "John Doe", Type: "PER", Score: 0.9}},
		{},
	}

	_, ok := rc.Lookup(samples)
	assert.False(t, ok)

	rc.Store(samples, results)

	got, ok := rc.Lookup(samples)
	require.True(t, ok)
	assert.Equal(t, results, got)
}

func TestRequestCache_MissOnDifferentSamples(t *testing.T) {
	rc := NewRequestCache(100, 0, zaptest.NewLogger(t))
	defer rc.Close()

	rc.Store([]string{"alpha"}, [][]EntityMatch{{}})

	_, ok := rc.Lookup([]string{"beta"})
	assert.False(t, ok)
}

func TestRequestCache_CountDisambiguatesSharedPrefix(t *testing.T) {
	rc := NewRequestCache(100, 0, zaptest.NewLogger(t))
	defer rc.Close()

	// Two requests sharing the full 10-sample prefix but differing in length
	prefix := make([]string, 10)
	for i := range prefix {
		prefix[i] = fmt.Sprintf("sample %d", i)
	}
	short := append([]string{}, prefix...)
	long := append(append([]string{}, prefix...), "extra")

	shortResults := make([][]EntityMatch, len(short))
	for i := range shortResults {
		shortResults[i] = []EntityMatch{}
	}
	rc.Store(short, shortResults)

	_, ok := rc.Lookup(long)
	assert.False(t, ok, "requests with different sample counts must not collide")
}

func TestRequestCache_PrefixApproximation(t *testing.T) {
	rc := NewRequestCache(100, 0, zaptest.NewLogger(t))
	defer rc.Close()

	// Same count, same first 10 samples, difference beyond the prefix:
	// these deliberately share a fingerprint.
	a := make([]string, 12)
	b := make([]string, 12)
	for i := 0; i < 12; i++ {
		a[i] = fmt.Sprintf("sample %d", i)
		b[i] = a[i]
	}
	b[11] = "different tail"

	results := make([][]EntityMatch, len(a))
	for i := range results {
		results[i] = []EntityMatch{}
	}
	rc.Store(a, results)

	_, ok := rc.Lookup(b)
	assert.True(t, ok)
}

func TestRequestCache_CapacityBound(t *testing.T) {
	rc := NewRequestCache(10, 0, zaptest.NewLogger(t))
	defer rc.Close()

	for i := 0; i < 50; i++ {
		rc.Store([]string{fmt.Sprintf("request %d", i)}, [][]EntityMatch{{}})
	}

	assert.LessOrEqual(t, rc.Len(), 10)
}
