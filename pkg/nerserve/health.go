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
	"net/http"
	"os"

	"github.com/bytedance/sonic/encoder"
)

// Version information - set at build time via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// LivenessResponse is the response for /healthz endpoint
type LivenessResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the response for /detect-pii/health. It reports model
// state and never blocks on the readiness gate. ModelPath is null until
// the model has loaded.
type HealthResponse struct {
	Status      string  `json:"status"` // ok, error, initializing
	ModelLoaded bool    `json:"model_loaded"`
	ModelPath   *string `json:"model_path"`
	WorkerPid   int     `json:"worker_pid"`
}

// handleHealthz returns 200 if the service is running (liveness check)
func (n *Node) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = encoder.NewStreamEncoder(w).Encode(LivenessResponse{Status: "ok"})
}

// handleHealth reports the model lifecycle state. Always 200: consumers
// read the status field, not the status code.
func (n *Node) handleHealth(w http.ResponseWriter, r *http.Request) {
	var modelPath *string
	if p := n.modelPath.Load(); p != "" {
		modelPath = &p
	}

	resp := HealthResponse{
		Status:      n.gate.State().String(),
		ModelLoaded: n.gate.Ready(),
		ModelPath:   modelPath,
		WorkerPid:   os.Getpid(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = encoder.NewStreamEncoder(w).Encode(resp)
}
