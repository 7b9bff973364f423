// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package config loads the engine's tunables (spec §6 "HLC tunables",
// "Checkpoint flush timeout bounds", §9 "Dynamic dispatch" eviction
// policy) via viper, generalized from ValentinKolb-dKV's
// cmd/serve/root.go config-binding pattern (PersistentFlags bound to
// viper, env-var override with a project prefix).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/couchbase/vbucket-engine/base"
)

// EngineConfig holds every runtime tunable named in spec.md §6 plus the
// bloom filter and eviction-policy knobs spec.md §9 calls out.
type EngineConfig struct {
	HLCDriftAheadThreshold  time.Duration
	HLCDriftBehindThreshold time.Duration
	MinCheckpointFlushTimeout time.Duration
	MaxCheckpointFlushTimeout time.Duration
	BloomExpectedItems      uint64
	BloomFalsePositiveRate  float64
	EvictionPolicy          base.EvictionPolicy
}

// Defaults returns the configuration used when no overrides are supplied.
func Defaults() EngineConfig {
	return EngineConfig{
		HLCDriftAheadThreshold:    base.DefaultHLCDriftAheadThresholdUs,
		HLCDriftBehindThreshold:   base.DefaultHLCDriftBehindThresholdUs,
		MinCheckpointFlushTimeout: base.MinCheckpointFlushTimeout,
		MaxCheckpointFlushTimeout: base.MaxCheckpointFlushTimeout,
		BloomExpectedItems:        1_000_000,
		BloomFalsePositiveRate:    0.01,
		EvictionPolicy:            base.ValueOnly,
	}
}

// Load reads configuration from viper's bound sources (flags, env vars
// prefixed VBE_, config file if set), falling back to Defaults() for
// anything unset.
func Load(v *viper.Viper) (EngineConfig, error) {
	if v == nil {
		v = viper.GetViper()
	}
	cfg := Defaults()

	if v.IsSet("hlc_drift_ahead_threshold_us") {
		cfg.HLCDriftAheadThreshold = time.Duration(v.GetInt64("hlc_drift_ahead_threshold_us")) * time.Microsecond
	}
	if v.IsSet("hlc_drift_behind_threshold_us") {
		cfg.HLCDriftBehindThreshold = time.Duration(v.GetInt64("hlc_drift_behind_threshold_us")) * time.Microsecond
	}
	if v.IsSet("min_chk_flush_timeout") {
		cfg.MinCheckpointFlushTimeout = time.Duration(v.GetInt64("min_chk_flush_timeout")) * time.Second
	}
	if v.IsSet("max_chk_flush_timeout") {
		cfg.MaxCheckpointFlushTimeout = time.Duration(v.GetInt64("max_chk_flush_timeout")) * time.Second
	}
	if v.IsSet("bloom_expected_items") {
		cfg.BloomExpectedItems = v.GetUint64("bloom_expected_items")
	}
	if v.IsSet("bloom_false_positive_rate") {
		cfg.BloomFalsePositiveRate = v.GetFloat64("bloom_false_positive_rate")
	}
	if v.IsSet("eviction_policy") {
		policy, err := parseEvictionPolicy(v.GetString("eviction_policy"))
		if err != nil {
			return EngineConfig{}, err
		}
		cfg.EvictionPolicy = policy
	}

	if cfg.MinCheckpointFlushTimeout > cfg.MaxCheckpointFlushTimeout {
		return EngineConfig{}, fmt.Errorf("config: min_chk_flush_timeout (%s) exceeds max_chk_flush_timeout (%s)", cfg.MinCheckpointFlushTimeout, cfg.MaxCheckpointFlushTimeout)
	}
	return cfg, nil
}

func parseEvictionPolicy(s string) (base.EvictionPolicy, error) {
	switch strings.ToLower(s) {
	case "value_only":
		return base.ValueOnly, nil
	case "full_eviction":
		return base.FullEviction, nil
	case "ephemeral":
		return base.Ephemeral, nil
	default:
		return 0, fmt.Errorf("config: unknown eviction_policy %q", s)
	}
}

// BindEnv wires environment-variable overrides under the VBE_ prefix,
// mirroring dKV's viper.SetEnvPrefix/AutomaticEnv pattern.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("vbe")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}
