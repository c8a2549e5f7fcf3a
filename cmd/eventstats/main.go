// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Command eventstats is the telemetry pipeline's operator CLI: it loads
// configuration, wires the registries declared by it (internal/app), and
// drives the indexer/aggregator/query layer either once (--eager) or on a
// schedule. Grounded on the teacher's cmd/server entry point's layered
// startup (config → storage → bus → HTTP) and on
// _examples/cuemby-warren/cmd/warren/main.go's cobra root/subcommand idiom.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/eventstats/internal/config"
	"github.com/tomtom215/eventstats/internal/logging"
)

// Version is set via ldflags during release builds.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "eventstats: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:     "eventstats",
	Short:   "Incremental usage-event indexer, aggregator, and query layer",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML configuration file (overrides "+config.ConfigPathEnvVar+")")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(aggregationsCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logging.Init(logging.DefaultConfig())
}

// loadConfig honors --config by pointing CONFIG_PATH (config.ConfigPathEnvVar)
// at it before delegating to the koanf-layered loader (defaults -> file ->
// env), then applies the loaded logging settings to the global logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path, _ = cmd.Root().PersistentFlags().GetString("config")
	}
	if path != "" {
		if err := os.Setenv(config.ConfigPathEnvVar, path); err != nil {
			return nil, fmt.Errorf("set %s: %w", config.ConfigPathEnvVar, err)
		}
	}
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return nil, err
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)
	return cfg, nil
}

// exitCodeFor maps an error to the process exit code: input-validation
// errors (invalidInputError) exit 2; every other error, configuration
// errors included, exits 1.
func exitCodeFor(err error) int {
	if _, ok := err.(*invalidInputError); ok {
		return 2
	}
	return 1
}

// invalidInputError marks a failure caused by bad CLI input (unknown
// event/aggregation/query name, malformed date) rather than an operational
// failure, so main can choose the documented exit code.
type invalidInputError struct{ err error }

func (e *invalidInputError) Error() string { return e.err.Error() }
func (e *invalidInputError) Unwrap() error { return e.err }

func invalidInput(format string, args ...interface{}) error {
	return &invalidInputError{err: fmt.Errorf(format, args...)}
}

// errGroup is a thin alias over errgroup.WithContext so subcommand files
// don't each need the import; every long-lived consumer/ticker goroutine
// this CLI spawns shares one group so a single failure cancels the rest.
func errGroup(ctx context.Context) (*errgroup.Group, context.Context) {
	return errgroup.WithContext(ctx)
}
