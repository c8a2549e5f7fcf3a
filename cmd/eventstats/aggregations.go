// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/eventstats/internal/aggregator"
	"github.com/tomtom215/eventstats/internal/app"
	"github.com/tomtom215/eventstats/internal/logging"
)

const dateParamLayout = "2006-01-02"

var aggregationsCmd = &cobra.Command{
	Use:   "aggregations",
	Short: "Operate on registered incremental rollups",
}

var aggregationsProcessCmd = &cobra.Command{
	Use:   "process [names...]",
	Short: "Run registered rollups over their source events",
	Long: `Runs every aggregation named, or every registered aggregation if none
are given. With --eager each runs once and the command exits; otherwise
each runs on its own interval-sized ticker until interrupted.`,
	RunE: runAggregationsProcess,
}

var aggregationsDeleteCmd = &cobra.Command{
	Use:   "delete [names...]",
	Short: "Delete rollup documents and bookmarks for the given aggregations",
	RunE:  runAggregationsDelete,
}

var aggregationsListBookmarksCmd = &cobra.Command{
	Use:   "list-bookmarks [names...]",
	Short: "List committed bookmarks for the given aggregations",
	RunE:  runAggregationsListBookmarks,
}

func init() {
	aggregationsCmd.AddCommand(aggregationsProcessCmd)
	aggregationsCmd.AddCommand(aggregationsDeleteCmd)
	aggregationsCmd.AddCommand(aggregationsListBookmarksCmd)

	aggregationsProcessCmd.Flags().Bool("eager", false, "Run each aggregation once and exit instead of on a recurring ticker")
	aggregationsProcessCmd.Flags().String("start-date", "", "Lower bound (YYYY-MM-DD); defaults to the aggregation's bookmark")
	aggregationsProcessCmd.Flags().String("end-date", "", "Upper bound (YYYY-MM-DD); defaults to now")
	aggregationsProcessCmd.Flags().Bool("update-bookmark", true, "Advance the aggregation's bookmark after a successful run")

	aggregationsDeleteCmd.Flags().String("start-date", "", "Lower bound (YYYY-MM-DD)")
	aggregationsDeleteCmd.Flags().String("end-date", "", "Upper bound (YYYY-MM-DD)")

	aggregationsListBookmarksCmd.Flags().String("start-date", "", "Lower bound (YYYY-MM-DD)")
	aggregationsListBookmarksCmd.Flags().String("end-date", "", "Upper bound (YYYY-MM-DD)")
	aggregationsListBookmarksCmd.Flags().Int("limit", 100, "Maximum bookmarks to return")
}

func parseDateFlag(cmd *cobra.Command, flag string) (*time.Time, error) {
	s, _ := cmd.Flags().GetString(flag)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateParamLayout, s)
	if err != nil {
		return nil, invalidInput("--%s: %v", flag, err)
	}
	return &t, nil
}

func resolveAggregations(a *app.App, names []string) ([]aggregator.Def, error) {
	if len(names) == 0 {
		return a.Aggregations, nil
	}
	byName := make(map[string]aggregator.Def, len(a.Aggregations))
	for _, def := range a.Aggregations {
		byName[def.Name] = def
	}
	out := make([]aggregator.Def, 0, len(names))
	for _, n := range names {
		def, ok := byName[n]
		if !ok {
			return nil, invalidInput("aggregations: unknown aggregation %q", n)
		}
		out = append(out, def)
	}
	return out, nil
}

func runAggregationsProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	defs, err := resolveAggregations(a, args)
	if err != nil {
		return err
	}

	start, err := parseDateFlag(cmd, "start-date")
	if err != nil {
		return err
	}
	end, err := parseDateFlag(cmd, "end-date")
	if err != nil {
		return err
	}
	eager, _ := cmd.Flags().GetBool("eager")
	updateBookmark, _ := cmd.Flags().GetBool("update-bookmark")

	if eager {
		for _, def := range defs {
			ok, errored, err := a.Aggregator.Run(ctx, def, start, end, updateBookmark)
			if err != nil {
				return fmt.Errorf("aggregations process: %s: %w", def.Name, err)
			}
			logging.Info().Str("aggregation", def.Name).Int("ok", ok).Int("errored", errored).Msg("aggregations process: run complete")
		}
		return nil
	}

	group, gctx := errGroup(ctx)
	for _, def := range defs {
		def := def
		group.Go(func() error {
			return tickAggregation(gctx, a, def, updateBookmark)
		})
	}
	return group.Wait()
}

// tickAggregation runs def on a ticker sized to its own interval, so an
// hourly rollup is re-run roughly every hour and a daily one once a day.
func tickAggregation(ctx context.Context, a *app.App, def aggregator.Def, updateBookmark bool) error {
	ticker := time.NewTicker(tickPeriod(def.Interval))
	defer ticker.Stop()

	run := func() {
		ok, errored, err := a.Aggregator.Run(ctx, def, nil, nil, updateBookmark)
		if err != nil {
			logging.Error().Err(err).Str("aggregation", def.Name).Msg("aggregations process: run failed")
			return
		}
		logging.Info().Str("aggregation", def.Name).Int("ok", ok).Int("errored", errored).Msg("aggregations process: run complete")
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}

// tickPeriod maps a rollup's bucketing granularity to the wall-clock period
// its scheduler re-runs it on: an hourly rollup every hour, a daily rollup
// once a day, a monthly rollup once a day (re-running it hourly would
// recompute an unchanged month-to-date bucket needlessly).
func tickPeriod(i aggregator.Interval) time.Duration {
	switch i {
	case aggregator.Hour:
		return time.Hour
	case aggregator.Month:
		return 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func runAggregationsDelete(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return invalidInput("aggregations delete: at least one aggregation name is required")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	defs, err := resolveAggregations(a, args)
	if err != nil {
		return err
	}

	start, err := parseDateFlag(cmd, "start-date")
	if err != nil {
		return err
	}
	end, err := parseDateFlag(cmd, "end-date")
	if err != nil {
		return err
	}

	for _, def := range defs {
		if err := a.Aggregator.Delete(ctx, def, start, end); err != nil {
			return fmt.Errorf("aggregations delete: %s: %w", def.Name, err)
		}
		logging.Info().Str("aggregation", def.Name).Msg("aggregations delete: done")
	}
	return nil
}

func runAggregationsListBookmarks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	defs, err := resolveAggregations(a, args)
	if err != nil {
		return err
	}

	start, err := parseDateFlag(cmd, "start-date")
	if err != nil {
		return err
	}
	end, err := parseDateFlag(cmd, "end-date")
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	for _, def := range defs {
		marks, err := a.Bookmarks.ListBookmarks(ctx, def.Name, start, end, limit)
		if err != nil {
			return fmt.Errorf("aggregations list-bookmarks: %s: %w", def.Name, err)
		}
		for _, m := range marks {
			fmt.Printf("%s\t%s\n", m.Aggregation, m.Value.Format(time.RFC3339))
		}
	}
	return nil
}
