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

// Package config loads runtime configuration from files and
// SENTINEL_-prefixed environment variables, with hot reload for the
// autonomy thresholds.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Thresholds are the autonomy bands on the 0..100 risk scale.
type Thresholds struct {
	AutoApproveMaxRisk float64 `mapstructure:"auto_approve_max_risk"`
	AutoRejectMinRisk  float64 `mapstructure:"auto_reject_min_risk"`
	EscalateMinRisk    float64 `mapstructure:"escalate_min_risk"`
}

// Validate rejects inverted or out-of-range bands.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"auto_approve_max_risk": t.AutoApproveMaxRisk,
		"auto_reject_min_risk":  t.AutoRejectMinRisk,
		"escalate_min_risk":     t.EscalateMinRisk,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("config: %s must be in 0..100, got %g", name, v)
		}
	}
	if t.AutoApproveMaxRisk >= t.EscalateMinRisk {
		return fmt.Errorf("config: auto_approve_max_risk %g must be below escalate_min_risk %g",
			t.AutoApproveMaxRisk, t.EscalateMinRisk)
	}
	if t.EscalateMinRisk >= t.AutoRejectMinRisk {
		return fmt.Errorf("config: escalate_min_risk %g must be below auto_reject_min_risk %g",
			t.EscalateMinRisk, t.AutoRejectMinRisk)
	}
	return nil
}

// Config is the full runtime configuration.
type Config struct {
	LLMEnabled      bool   `mapstructure:"llm_enabled"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	Model           string `mapstructure:"model"`
	UseVectorSearch bool   `mapstructure:"use_vector_search"`

	DBPath      string `mapstructure:"db_path"`
	LogLevel    string `mapstructure:"log_level"`
	TokenBudget int    `mapstructure:"token_budget"`

	ScanInterval               time.Duration `mapstructure:"scan_interval"`
	EventAccelerationThreshold int           `mapstructure:"event_acceleration_threshold"`

	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheEntries int           `mapstructure:"cache_entries"`

	MaxCostUSD     float64 `mapstructure:"max_cost_usd"`
	AlertThreshold float64 `mapstructure:"alert_threshold"`

	Thresholds Thresholds `mapstructure:"thresholds"`
}

// LLMActive reports whether completions will actually reach a
// provider: the flag must be on and credentials present.
func (c *Config) LLMActive() bool {
	return c.LLMEnabled && c.AnthropicAPIKey != ""
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("llm_enabled", false)
	v.SetDefault("model", "claude-sonnet-4-20250514")
	v.SetDefault("use_vector_search", false)
	v.SetDefault("db_path", "sentinel.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("token_budget", 4000)
	v.SetDefault("scan_interval", 5*time.Minute)
	v.SetDefault("event_acceleration_threshold", 5)
	v.SetDefault("cache_ttl", time.Hour)
	v.SetDefault("cache_entries", 1000)
	v.SetDefault("max_cost_usd", 0.0)
	v.SetDefault("alert_threshold", 0.8)
	v.SetDefault("thresholds.auto_approve_max_risk", 30.0)
	v.SetDefault("thresholds.auto_reject_min_risk", 85.0)
	v.SetDefault("thresholds.escalate_min_risk", 60.0)
	return v
}

// Load reads configuration. path may be empty (defaults plus
// environment only); a named file must exist and parse.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	// Env bindings are explicit: AutomaticEnv alone does not surface
	// keys into Unmarshal.
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
