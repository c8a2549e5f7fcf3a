// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tomtom215/eventstats/internal/app"
	"github.com/tomtom215/eventstats/internal/logging"
	"github.com/tomtom215/eventstats/internal/query"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the query dispatch HTTP server alongside scheduled aggregation",
	Long: `Starts the chi-routed HTTP surface (§6: "a minimal chi-routed /healthz
and /readyz"): /healthz and /readyz for orchestrators, /metrics for
Prometheus scraping, and /query/{name} for ad-hoc dispatch against the
registered query layer. Every registered aggregation also runs on its own
ticker for the lifetime of the process, the same schedule "aggregations
process" without --eager would run standalone.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("with-aggregations", true, "Also run every registered aggregation on its own ticker")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	group, gctx := errGroup(ctx)

	withAggregations, _ := cmd.Flags().GetBool("with-aggregations")
	if withAggregations {
		for _, def := range a.Aggregations {
			def := def
			group.Go(func() error {
				return tickAggregation(gctx, a, def, true)
			})
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      buildRouter(a),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	group.Go(func() error {
		logging.Info().Str("addr", addr).Msg("serve: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func buildRouter(a *app.App) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Engine.Flush(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/query", func(r chi.Router) {
		r.Post("/{name}", handleQuery(a))
	})

	return r
}

// queryErrorStatus maps an Engine.Run error to the HTTP status the
// original system's /stats endpoint would return for it (§7).
func queryErrorStatus(err error) int {
	var permErr *query.PermissionError
	switch {
	case errors.Is(err, query.ErrUnknownQuery):
		return http.StatusBadRequest
	case errors.Is(err, query.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &permErr):
		if permErr.Authenticated {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func handleQuery(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		var params map[string]interface{}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		result, err := a.QueryEngine.Run(r.Context(), name, params)
		if err != nil {
			http.Error(w, err.Error(), queryErrorStatus(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}
}
