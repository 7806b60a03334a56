// Copyright 2026 Teradata
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
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teradata-labs/sentinel/pkg/agents"
	"github.com/teradata-labs/sentinel/pkg/config"
	"github.com/teradata-labs/sentinel/pkg/runtime"
	"github.com/teradata-labs/sentinel/pkg/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent fleet until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFleet(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runFleet(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	rt, err := runtime.New(ctx, runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	onboarding, err := agents.NewOnboarding(rt.AgentDeps(), kvSellerDirectory{rt: rt}, agents.OnboardingConfig{
		AutoApproveMaxRisk:    cfg.Thresholds.AutoApproveMaxRisk,
		AutoRejectMinRisk:     cfg.Thresholds.AutoRejectMinRisk,
		EscalateMinRisk:       cfg.Thresholds.EscalateMinRisk,
		ScanInterval:          cfg.ScanInterval,
		AccelerationThreshold: cfg.EventAccelerationThreshold,
	})
	if err != nil {
		return fmt.Errorf("onboarding agent: %w", err)
	}
	policy, err := agents.NewPolicyEvolution(rt.AgentDeps(), agents.PolicyEvolutionConfig{
		ScanInterval:          cfg.ScanInterval,
		AccelerationThreshold: cfg.EventAccelerationThreshold,
	})
	if err != nil {
		return fmt.Errorf("policy evolution agent: %w", err)
	}

	rt.ApplyBudget(onboarding.ID())
	rt.ApplyBudget(policy.ID())
	rt.Router.RegisterAgent(onboarding.ID(), "seller_onboarding")
	rt.Router.RegisterAgent(policy.ID(), "policy_evolution")

	// Off-peak sweep in addition to the event-driven cycles.
	err = rt.Scheduler.Add(scheduler.Job{
		Name: "offpeak-onboarding-scan",
		Spec: "0 2 * * *",
		Run: func(ctx context.Context) error {
			onboarding.RunOneCycle(ctx)
			return nil
		},
	})
	if err != nil {
		return err
	}

	// Thresholds reload live when a config file is in play.
	if cfgFile != "" {
		watcher, werr := config.NewThresholdWatcher(cfgFile, func(th config.Thresholds) {
			if err := onboarding.SetThresholds(th); err != nil {
				logger.Warn("threshold update rejected", zap.Error(err))
			}
		}, logger)
		if werr != nil {
			logger.Warn("threshold watcher unavailable", zap.Error(werr))
		} else {
			defer watcher.Close()
		}
	}

	rt.Start()
	onboarding.Start()
	policy.Start()
	logger.Info("fleet running",
		zap.String("onboarding", onboarding.ID()),
		zap.String("policy", policy.ID()))

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigch:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	policy.Stop()
	onboarding.Stop()
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// kvSellerDirectory serves seller profiles from the runtime's KV
// store. Registration flows write profiles there before publishing
// seller:registered.
type kvSellerDirectory struct {
	rt *runtime.Runtime
}

func (d kvSellerDirectory) Seller(ctx context.Context, sellerID string) (map[string]interface{}, error) {
	entries, err := d.rt.Memory.GetByType(ctx, "SYSTEM", "seller_profile")
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if id, _ := entry.Content["sellerId"].(string); id == sellerID {
			return entry.Content, nil
		}
	}
	return nil, fmt.Errorf("seller %s not found", sellerID)
}
