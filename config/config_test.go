// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbase/vbucket-engine/base"
)

func TestLoadDefaultsWhenUnset(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadOverridesFromViper(t *testing.T) {
	v := viper.New()
	v.Set("hlc_drift_ahead_threshold_us", 2_000_000)
	v.Set("eviction_policy", "full_eviction")
	v.Set("bloom_false_positive_rate", 0.02)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.HLCDriftAheadThreshold)
	assert.Equal(t, base.FullEviction, cfg.EvictionPolicy)
	assert.Equal(t, 0.02, cfg.BloomFalsePositiveRate)
}

func TestLoadRejectsInvalidEvictionPolicy(t *testing.T) {
	v := viper.New()
	v.Set("eviction_policy", "bogus")
	_, err := Load(v)
	assert.Error(t, err)
}

func TestLoadRejectsInvertedTimeoutBounds(t *testing.T) {
	v := viper.New()
	v.Set("min_chk_flush_timeout", 60)
	v.Set("max_chk_flush_timeout", 5)
	_, err := Load(v)
	assert.Error(t, err)
}
