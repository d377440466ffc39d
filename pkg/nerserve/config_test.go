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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modelPath string
		modelID   string
		wantErr   bool
	}{
		{name: "neither source", wantErr: true},
		{name: "local path only", modelPath: "/models/pii", wantErr: false},
		{name: "hub id only", modelID: "dslim/bert-base-NER", wantErr: false},
		{name: "both sources", modelPath: "/models/pii", modelID: "dslim/bert-base-NER", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{ModelPath: tt.modelPath, ModelID: tt.modelID}
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, DefaultThreads, cfg.threads())
	assert.Equal(t, uint64(DefaultCacheCapacity), cfg.cacheCapacity())

	cfg = Config{Threads: 3, CacheCapacity: 50}
	assert.Equal(t, 3, cfg.threads())
	assert.Equal(t, uint64(50), cfg.cacheCapacity())
}
