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

	"github.com/tomtom215/eventstats/internal/app"
	"github.com/tomtom215/eventstats/internal/logging"
)

// eagerDrainGrace is the fixed period --eager consumes each event type
// before stopping it, whether or not messages are still arriving; the bus
// has no "backlog empty" signal to consume directly, so this is an
// approximation.
const eagerDrainGrace = 10 * time.Second

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Operate on raw event indexing",
}

var eventsProcessCmd = &cobra.Command{
	Use:   "process [types...]",
	Short: "Drain registered event types off the bus into the storage engine",
	Long: `Runs the indexer for every type named, or every registered type if
none are given. With --eager the command runs one drain pass and exits;
otherwise it runs until interrupted, one long-lived consumer per type.`,
	RunE: runEventsProcess,
}

func init() {
	eventsCmd.AddCommand(eventsProcessCmd)
	eventsProcessCmd.Flags().Bool("eager", false, "Run a single drain pass and exit instead of running continuously")
}

func runEventsProcess(cmd *cobra.Command, args []string) error {
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

	types := args
	if len(types) == 0 {
		types = a.Events.Types()
	}

	eager, _ := cmd.Flags().GetBool("eager")

	for _, t := range types {
		if _, ok := a.Events.Get(t); !ok {
			return invalidInput("events process: unknown event type %q", t)
		}
	}

	if eager {
		for _, t := range types {
			ix := a.Indexer[t]
			drainCtx, cancel := context.WithTimeout(ctx, eagerDrainGrace)
			logging.Info().Str("event_type", t).Msg("events process: draining")
			err := ix.Run(drainCtx, t)
			cancel()
			if err != nil && err != context.DeadlineExceeded {
				return fmt.Errorf("events process: %s: %w", t, err)
			}
		}
		return nil
	}

	group, gctx := errGroup(ctx)
	for _, t := range types {
		t := t
		ix := a.Indexer[t]
		group.Go(func() error {
			logging.Info().Str("event_type", t).Msg("events process: consuming")
			return ix.Run(gctx, t)
		})
	}
	return group.Wait()
}
