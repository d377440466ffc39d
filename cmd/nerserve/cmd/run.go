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
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/antflydb/antfly-go/libaf/healthserver"
	"github.com/antflydb/antfly-go/libaf/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/privsense/nerserve/pkg/nerserve"
)

var healthPort int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the PII detection server",
	Long:  `Start the detection server. Exactly one of --model-path and --model-id is required.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Run command flags
	runCmd.Flags().String("api-url", "http://0.0.0.0:5000", "address the API server binds to")
	mustBindPFlag("api_url", runCmd.Flags().Lookup("api-url"))

	runCmd.Flags().String("model-path", "", "path to a local model directory")
	mustBindPFlag("model_path", runCmd.Flags().Lookup("model-path"))

	runCmd.Flags().String("model-id", "", "HuggingFace model id to download and serve")
	mustBindPFlag("model_id", runCmd.Flags().Lookup("model-id"))

	runCmd.Flags().String("hf-token", "", "HuggingFace API token for gated models")
	mustBindPFlag("hf_token", runCmd.Flags().Lookup("hf-token"))

	runCmd.Flags().Int("threads", nerserve.DefaultThreads, "fan-out worker pool size")
	mustBindPFlag("threads", runCmd.Flags().Lookup("threads"))

	runCmd.Flags().Int("pool-size", 0, "number of model pipelines (0 = auto)")
	mustBindPFlag("pool_size", runCmd.Flags().Lookup("pool-size"))

	runCmd.Flags().Float32("threshold", 0.0, "minimum confidence for reported entities")
	mustBindPFlag("threshold", runCmd.Flags().Lookup("threshold"))

	runCmd.Flags().Int("max-concurrent-requests", 0, "in-flight request cap (0 = unlimited)")
	mustBindPFlag("max_concurrent_requests", runCmd.Flags().Lookup("max-concurrent-requests"))

	runCmd.Flags().Int("max-queue-size", 0, "waiting request cap")
	mustBindPFlag("max_queue_size", runCmd.Flags().Lookup("max-queue-size"))

	runCmd.Flags().String("request-timeout", "", "max queue wait (e.g. 30s, empty = unlimited)")
	mustBindPFlag("request_timeout", runCmd.Flags().Lookup("request-timeout"))

	runCmd.Flags().Duration("cache-ttl", 0, "cached result lifetime (0 = no expiry)")
	mustBindPFlag("cache_ttl", runCmd.Flags().Lookup("cache-ttl"))

	runCmd.Flags().Int("cache-capacity", nerserve.DefaultCacheCapacity, "cache entry cap")
	mustBindPFlag("cache_capacity", runCmd.Flags().Lookup("cache-capacity"))

	runCmd.Flags().IntVar(&healthPort, "health-port", 4200, "health/metrics server port")
	mustBindPFlag("health_port", runCmd.Flags().Lookup("health-port"))
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create logger from config
	logger := logging.NewLogger(&logging.Config{
		Level: logging.Level(viper.GetString("log.level")),
		Style: logging.Style(viper.GetString("log.style")),
	})
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Running as nerserve")

	cfg := nerserve.Config{
		ApiUrl:                viper.GetString("api_url"),
		ModelPath:             viper.GetString("model_path"),
		ModelID:               viper.GetString("model_id"),
		ModelsDir:             modelsDir, // Set from --models-dir flag
		HFToken:               viper.GetString("hf_token"),
		Threads:               viper.GetInt("threads"),
		PoolSize:              viper.GetInt("pool_size"),
		Threshold:             float32(viper.GetFloat64("threshold")),
		MaxConcurrentRequests: viper.GetInt("max_concurrent_requests"),
		MaxQueueSize:          viper.GetInt("max_queue_size"),
		RequestTimeout:        viper.GetString("request_timeout"),
		CacheTTL:              viper.GetDuration("cache_ttl"),
		CacheCapacity:         viper.GetInt("cache_capacity"),
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	// Track readiness state
	ready := &atomic.Bool{}
	ready.Store(false)
	readyC := make(chan struct{})

	// Start health server with readiness checker
	healthserver.Start(logger, viper.GetInt("health_port"), ready.Load)

	// Wait for ready signal in background
	go func() {
		<-readyC
		ready.Store(true)
		logger.Info("Detection model is ready")
	}()

	nerserve.RunServer(ctx, logger, cfg, readyC)
	return nil
}
