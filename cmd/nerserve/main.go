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

// Command nerserve runs the PII detection service.
//
// The service wraps an ONNX named-entity model behind an HTTP API with
// caching, batching and backpressure.
//
// Usage:
//
//	nerserve run --model-path ./models/pii     # Serve a local model
//	nerserve run --model-id dslim/bert-base-NER # Download and serve
//	nerserve pull dslim/bert-base-NER           # Download only
package main

import (
	"io"

	json "github.com/antflydb/antfly-go/libaf/json"
	gojson "github.com/goccy/go-json"

	"github.com/privsense/nerserve/cmd/nerserve/cmd"
)

func init() {
	// Configure the JSON wrapper to use goccy/go-json for performance
	json.SetConfig(json.Config{
		Marshal:   gojson.Marshal,
		Unmarshal: gojson.Unmarshal,
		MarshalString: func(v any) (string, error) {
			data, err := gojson.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
		UnmarshalString: func(s string, v any) error {
			return gojson.Unmarshal([]byte(s), v)
		},
		NewEncoder: func(w io.Writer) json.Encoder {
			return gojson.NewEncoder(w)
		},
		NewDecoder: func(r io.Reader) json.Decoder {
			return gojson.NewDecoder(r)
		},
	})
}

// Set via goreleaser ldflags (main.version)
var version = "dev"

func main() {
	cmd.Version = version
	cmd.Execute()
}
