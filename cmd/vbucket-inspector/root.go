// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package main is this module's own operability CLI (spec.md §1 names the
// embedding daemon's CLI/config reader as out of scope; this is this
// module's own surface, the same way difftool is xdcrDiffer's, not the
// daemon's). It boots a small bucket of vbuckets from a config file/env
// and prints checkpoint/hash-table stats, grounded on
// ValentinKolb-dKV's cmd/root.go command-tree + viper binding pattern.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/couchbase/vbucket-engine/base"
	"github.com/couchbase/vbucket-engine/config"
	"github.com/couchbase/vbucket-engine/enginelog"
	"github.com/couchbase/vbucket-engine/hlc"
	"github.com/couchbase/vbucket-engine/metrics"
	"github.com/couchbase/vbucket-engine/vbucket"
)

const version = "0.1.0"

var (
	cfgFile string
	numVbs  int

	rootCmd = &cobra.Command{
		Use:   "vbucket-inspector",
		Short: "Boot a bucket of vbuckets and print their engine stats",
		Long: fmt.Sprintf(`vbucket-inspector (v%s)

Boots a bucket of in-memory vbuckets from the engine configuration and
reports state, high seqno, open checkpoint id, resident ratio and shard
count for each.`, version),
		RunE: run,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vbucket-inspector v%s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (json/yaml/toml, read via viper)")
	rootCmd.PersistentFlags().IntVar(&numVbs, "num-vbuckets", 8, "number of vbuckets to boot for inspection")
	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initViper)
}

func initViper() {
	config.BindEnv(viper.GetViper())
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger := enginelog.NewProduction("vbucket-inspector")
	clock := hlc.New(cfg.HLCDriftAheadThreshold, cfg.HLCDriftBehindThreshold)
	adaptiveTimeout := metrics.NewAdaptiveTimeout(cfg.MinCheckpointFlushTimeout, cfg.MaxCheckpointFlushTimeout)

	for i := 0; i < numVbs; i++ {
		vb := vbucket.New(vbucket.Config{
			ID:              uint16(i),
			Policy:          cfg.EvictionPolicy,
			Clock:           clock,
			AdaptiveTimeout: adaptiveTimeout,
			Stats:           metrics.NewRegistry(),
			Logger:          logger,
			BloomExpected:   cfg.BloomExpectedItems,
			BloomFPRate:     cfg.BloomFalsePositiveRate,
			FailoverCap:     25,
		})
		vb.SetState(base.Active)
		printStats(vb)
	}
	return nil
}

func printStats(vb *vbucket.VBucket) {
	fmt.Printf("vbucket %d: state=%s highSeqno=%d openCheckpoint=%d residentRatio=%.4f shards=%d\n",
		vb.ID, vb.State(), vb.Checkpoint.HighSeqno(), vb.Checkpoint.OpenCheckpointID(),
		vb.HashTable.ResidentRatio(), vb.HashTable.NumShards())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
