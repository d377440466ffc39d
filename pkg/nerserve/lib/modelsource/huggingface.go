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

// Package modelsource resolves model identifiers to local model
// directories, downloading from the HuggingFace Hub when needed.
package modelsource

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/go-huggingface/hub"
	"go.uber.org/zap"
)

// Client downloads ONNX models from the HuggingFace Hub into a local
// models directory, reusing already-downloaded models.
type Client struct {
	modelsDir string
	token     string
	logger    *zap.Logger
}

// Option configures the client
type Option func(*Client)

// WithToken sets the HuggingFace API token for gated models
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient creates a client rooted at modelsDir.
func NewClient(modelsDir string, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{modelsDir: modelsDir, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the local directory for the given HuggingFace repo id
// (e.g. "dslim/bert-base-NER"), downloading the model files if they are
// not present yet.
func (c *Client) Resolve(repoID string) (string, error) {
	modelDir := filepath.Join(c.modelsDir, filepath.FromSlash(repoID))

	if hasModelFiles(modelDir) {
		c.logger.Info("Using previously downloaded model",
			zap.String("repo", repoID),
			zap.String("dir", modelDir))
		return modelDir, nil
	}

	if err := c.download(repoID, modelDir); err != nil {
		return "", err
	}
	return modelDir, nil
}

// download fetches the ONNX, tokenizer and config files for the repo.
func (c *Client) download(repoID, modelDir string) error {
	c.logger.Info("Downloading model from HuggingFace Hub",
		zap.String("repo", repoID),
		zap.String("dir", modelDir))

	repo := hub.New(repoID)
	if c.token != "" {
		repo = repo.WithAuth(c.token)
	}

	// List all files in repo
	var files []string
	for fileName, err := range repo.IterFileNames() {
		if err != nil {
			return fmt.Errorf("listing files in %s: %w", repoID, err)
		}
		files = append(files, fileName)
	}

	toDownload := selectModelFiles(files)
	if len(toDownload) == 0 {
		return fmt.Errorf("no model files found in %s", repoID)
	}

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	for _, fileName := range toDownload {
		localPath, err := repo.DownloadFile(fileName)
		if err != nil {
			return fmt.Errorf("downloading %s: %w", fileName, err)
		}

		// Flatten path (e.g., "onnx/model.onnx" -> "model.onnx")
		destPath := filepath.Join(modelDir, filepath.Base(fileName))
		if err := copyFile(localPath, destPath); err != nil {
			return fmt.Errorf("copying %s: %w", fileName, err)
		}
		c.logger.Debug("Downloaded model file", zap.String("file", fileName))
	}

	c.logger.Info("Model download complete",
		zap.String("repo", repoID),
		zap.Int("files", len(toDownload)))
	return nil
}

// selectModelFiles picks the ONNX weights plus the tokenizer and config
// files a token-classification pipeline needs. Exactly one model.onnx is
// selected, preferring a root-level file over variants under onnx/.
func selectModelFiles(files []string) []string {
	var selected []string
	onnx := ""
	for _, f := range files {
		base := filepath.Base(f)
		switch base {
		case "config.json", "tokenizer.json", "tokenizer_config.json",
			"special_tokens_map.json", "vocab.txt", "ner_config.json":
			selected = append(selected, f)
		case "model.onnx":
			if onnx == "" || !strings.Contains(f, "/") {
				onnx = f
			}
		}
	}
	if onnx != "" {
		selected = append(selected, onnx)
	}
	return selected
}

// hasModelFiles reports whether dir already holds a usable model.
func hasModelFiles(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "model.onnx")); err != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, "config.json"))
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, in)
	return err
}
