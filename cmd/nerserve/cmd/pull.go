// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/privsense/nerserve/pkg/nerserve/lib/modelsource"
)

var pullCmd = &cobra.Command{
	Use:   "pull <model-id> [model-id...]",
	Short: "Pull model(s) from the HuggingFace Hub",
	Long: `Download one or more ONNX named-entity models from the HuggingFace Hub.

Models are stored under the models directory using the repo's owner/name
layout and reused on subsequent runs.

Examples:
  # Pull a token-classification model
  nerserve pull dslim/bert-base-NER

  # Pull to a custom directory
  nerserve pull --models-dir /opt/privsense/models dslim/bert-base-NER

  # Pull a gated model
  nerserve pull --hf-token $HF_TOKEN some-org/private-pii-model`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)

	pullCmd.Flags().String("hf-token", "",
		"HuggingFace API token for gated models (or use HF_TOKEN env var)")
}

func runPull(cmd *cobra.Command, args []string) error {
	hfToken, _ := cmd.Flags().GetString("hf-token")

	client := modelsource.NewClient(modelsDir, zap.NewNop(),
		modelsource.WithToken(hfToken))

	for _, repoID := range args {
		fmt.Printf("\n=== Pulling %s ===\n", repoID)

		dir, err := client.Resolve(repoID)
		if err != nil {
			return fmt.Errorf("failed to pull %s: %w", repoID, err)
		}
		fmt.Printf("Model available at %s\n", dir)
	}

	return nil
}
