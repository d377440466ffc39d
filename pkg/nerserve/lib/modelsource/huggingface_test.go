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

package modelsource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectModelFiles_ExactlyOneOnnx(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{
			name:  "root before nested",
			files: []string{"model.onnx", "onnx/model.onnx"},
			want:  "model.onnx",
		},
		{
			name:  "nested before root",
			files: []string{"onnx/model.onnx", "model.onnx"},
			want:  "model.onnx",
		},
		{
			name:  "nested only",
			files: []string{"onnx/model.onnx"},
			want:  "onnx/model.onnx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected := selectModelFiles(tt.files)

			var onnx []string
			for _, f := range selected {
				if filepath.Base(f) == "model.onnx" {
					onnx = append(onnx, f)
				}
			}
			require.Len(t, onnx, 1, "exactly one model.onnx must be selected")
			assert.Equal(t, tt.want, onnx[0])
		})
	}
}

func TestSelectModelFiles_TokenizerAndConfig(t *testing.T) {
	files := []string{
		"README.md",
		"config.json",
		"tokenizer.json",
		"tokenizer_config.json",
		"special_tokens_map.json",
		"vocab.txt",
		"model.onnx",
		"model.safetensors",
		"pytorch_model.bin",
	}

	selected := selectModelFiles(files)
	assert.ElementsMatch(t, []string{
		"config.json", "tokenizer.json", "tokenizer_config.json",
		"special_tokens_map.json", "vocab.txt", "model.onnx",
	}, selected)
}

func TestHasModelFiles(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, hasModelFiles(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("x"), 0644))
	assert.False(t, hasModelFiles(dir), "config.json is required too")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{}"), 0644))
	assert.True(t, hasModelFiles(dir))
}
