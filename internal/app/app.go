// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package app wires the config-declared registries (events, aggregations,
// queries) to the bus, storage engine, and template manager, the way the
// teacher's cmd/server main.go wired sync sources and the websocket hub to
// its database and NATS connections. It is the one place that translates
// koanf-decoded config structs into the strongly-typed Def/Spec values the
// rest of the packages operate on.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/eventstats/internal/aggregator"
	"github.com/tomtom215/eventstats/internal/bookmark"
	"github.com/tomtom215/eventstats/internal/bus"
	"github.com/tomtom215/eventstats/internal/config"
	"github.com/tomtom215/eventstats/internal/events"
	"github.com/tomtom215/eventstats/internal/indexer"
	"github.com/tomtom215/eventstats/internal/query"
	"github.com/tomtom215/eventstats/internal/saltcache"
	"github.com/tomtom215/eventstats/internal/storeengine"
	"github.com/tomtom215/eventstats/internal/templates"
)

// App holds every long-lived component the CLI subcommands operate on.
type App struct {
	Config       *config.Config
	Bus          *bus.Bus
	Engine       storeengine.Engine
	Bookmarks    *bookmark.Store
	Events       *events.Registry
	Aggregations []aggregator.Def
	Queries      *query.Registry
	Templates    *templates.Manager
	Aggregator   *aggregator.Aggregator
	Indexer      map[string]*indexer.Indexer
	QueryEngine  *query.Engine
}

// New builds an App from cfg: dials the bus, opens the storage engine,
// registers every configured event/aggregation/query, and bootstraps
// templates/aliases so the first Run() call never races table creation.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: invalid configuration: %w", err)
	}

	engine, err := storeengine.Open(storeengine.DuckDBConfig{
		Path:                   cfg.Store.Path,
		MaxMemory:              cfg.Store.MaxMemory,
		Threads:                cfg.Store.Threads,
		PreserveInsertionOrder: cfg.Store.PreserveInsertionOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("app: open storage engine: %w", err)
	}

	bookmarks := bookmark.New(engine.Raw())
	if err := bookmarks.CreateTable(ctx); err != nil {
		engine.Close()
		return nil, fmt.Errorf("app: create bookmark table: %w", err)
	}

	busCfg := bus.DefaultConfig(cfg.NATS.URL)
	busCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
	busCfg.StreamPrefix = cfg.NATS.StreamPrefix
	busCfg.DurableNamePrefix = cfg.NATS.DurableNamePrefix
	busCfg.QueueGroupPrefix = cfg.NATS.QueueGroupPrefix
	busCfg.MaxReconnects = cfg.NATS.MaxReconnects
	busCfg.ReconnectWait = cfg.NATS.ReconnectWait
	busCfg.EnableTrackMsgID = cfg.NATS.EnableTrackMsgID
	busCfg.AckWaitTimeout = secondsToDuration(cfg.NATS.AckWaitSeconds)
	busCfg.MaxDeliver = cfg.NATS.MaxDeliver
	busCfg.SubscribersCount = cfg.NATS.SubscribersCount
	busCfg.StreamMaxAge = daysToDuration(cfg.NATS.RetentionDays)
	busCfg.StreamMaxBytes = cfg.NATS.MaxBytes
	busCfg.DuplicateWindow = cfg.NATS.DuplicateWindow
	busCfg.Replicas = cfg.NATS.Replicas
	busCfg.CircuitBreaker = bus.CircuitBreakerConfig{
		Name:             "eventstats-bus",
		MaxRequests:      cfg.NATS.CircuitBreaker.MaxRequests,
		Interval:         cfg.NATS.CircuitBreaker.Interval,
		Timeout:          cfg.NATS.CircuitBreaker.Timeout,
		FailureThreshold: uint32(float64(cfg.NATS.CircuitBreaker.FailureRatio) * 100),
	}

	b, err := bus.New(busCfg)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("app: connect to bus: %w", err)
	}

	eventReg := events.NewRegistry()
	salts := saltcache.New()
	for _, ec := range cfg.Stats.Events {
		chain, err := buildChain(ec, salts)
		if err != nil {
			return nil, fmt.Errorf("app: event %q: %w", ec.Type, err)
		}
		template := ec.Type
		if len(ec.Templates) > 0 {
			template = ec.Templates[0]
		}
		if err := eventReg.Register(events.Def{
			Type:              ec.Type,
			PreprocessorChain: chain,
			Template:          template,
			SignalSource:      ec.SignalSource,
		}); err != nil {
			return nil, fmt.Errorf("app: register event %q: %w", ec.Type, err)
		}
	}

	aggDefs, err := buildAggregationDefs(cfg.Stats.Aggregations)
	if err != nil {
		return nil, err
	}

	queryReg := query.NewRegistry()
	if err := registerQueries(queryReg, cfg.Stats.Queries); err != nil {
		return nil, err
	}

	tmplMgr := templates.New(engine)
	if err := tmplMgr.Bootstrap(ctx, eventReg, aggDefs); err != nil {
		return nil, fmt.Errorf("app: bootstrap templates: %w", err)
	}

	var defaultPermission query.PermissionFunc
	if cfg.Stats.PermissionFactory == "deny_all" {
		defaultPermission = func(ctx context.Context, name string, params map[string]interface{}) query.Decision {
			return query.Decision{Allowed: false}
		}
	} else {
		defaultPermission = query.AllowAll
	}

	indexers := make(map[string]*indexer.Indexer, len(cfg.Stats.Events))
	for _, ec := range cfg.Stats.Events {
		indexers[ec.Type] = indexer.New(eventReg, engine, b, indexer.DefaultConfig())
	}

	return &App{
		Config:       cfg,
		Bus:          b,
		Engine:       engine,
		Bookmarks:    bookmarks,
		Events:       eventReg,
		Aggregations: aggDefs,
		Queries:      queryReg,
		Templates:    tmplMgr,
		Aggregator:   aggregator.New(engine, bookmarks),
		Indexer:      indexers,
		QueryEngine:  query.New(engine, queryReg, defaultPermission),
	}, nil
}

// Close releases the bus connection and storage engine.
func (a *App) Close() error {
	var errs []error
	if err := a.Bus.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Engine.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("app: close: %v", errs)
	}
	return nil
}

func buildChain(ec config.EventConfig, salts *saltcache.Cache) (events.Chain, error) {
	robotPatterns := ec.RobotPatterns
	if len(robotPatterns) == 0 {
		robotPatterns = events.DefaultRobotPatterns
	}
	machinePatterns := ec.MachinePatterns
	if len(machinePatterns) == 0 {
		machinePatterns = events.DefaultMachinePatterns
	}

	var chain events.Chain

	flagRobots, err := events.FlagRobots(robotPatterns)
	if err != nil {
		return nil, err
	}
	chain = append(chain, flagRobots)

	flagMachines, err := events.FlagMachines(machinePatterns)
	if err != nil {
		return nil, err
	}
	chain = append(chain, flagMachines)

	if len(ec.UniqueIDFields) > 0 {
		chain = append(chain, events.BuildUniqueID(ec.UniqueIDFields...))
	}

	if ec.Anonymize {
		chain = append(chain, events.AnonymizeUser(salts, events.NullCountryLookup{}))
	}

	return chain, nil
}

func buildAggregationDefs(cfgs []config.AggregationConfig) ([]aggregator.Def, error) {
	defs := make([]aggregator.Def, 0, len(cfgs))
	for _, ac := range cfgs {
		interval, err := aggregator.ParseInterval(ac.Interval)
		if err != nil {
			return nil, fmt.Errorf("app: aggregation %q: %w", ac.Name, err)
		}
		indexInterval, err := aggregator.ParseInterval(ac.IndexInterval)
		if err != nil {
			return nil, fmt.Errorf("app: aggregation %q: %w", ac.Name, err)
		}

		metrics := make(map[string]aggregator.MetricSpec, len(ac.Metrics))
		for dst, mc := range ac.Metrics {
			metrics[dst] = aggregator.MetricSpec{
				Op:          aggregator.MetricOp(mc.Op),
				Src:         mc.Src,
				Percentiles: mc.Percentiles,
			}
		}

		copyFields := make(map[string]aggregator.CopyFieldSpec, len(ac.CopyFields))
		for _, cf := range ac.CopyFields {
			copyFields[cf.Dst] = aggregator.CopyFieldSpec{Src: cf.Src}
		}

		def := aggregator.Def{
			Name:            ac.Name,
			SourceEventType: ac.SourceEventType,
			KeyField:        ac.KeyField,
			Interval:        interval,
			IndexInterval:   indexInterval,
			Metrics:         metrics,
			CopyFields:      copyFields,
			FilterRobots:    ac.FilterRobots,
			MaxBucketSize:   ac.MaxBucketSize,
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("app: aggregation %q: %w", ac.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func daysToDuration(d int) time.Duration {
	return time.Duration(d) * 24 * time.Hour
}

func registerQueries(reg *query.Registry, cfgs []config.QueryConfig) error {
	for _, qc := range cfgs {
		copyFields := make(map[string]query.CopyFieldSpec, len(qc.CopyFields))
		for _, cf := range qc.CopyFields {
			copyFields[cf.Dst] = query.CopyFieldSpec{Src: cf.Src}
		}

		var perm query.PermissionFunc
		switch qc.PermissionFactory {
		case "deny_all":
			perm = func(context.Context, string, map[string]interface{}) query.Decision {
				return query.Decision{Allowed: false}
			}
		case "allow_all":
			perm = query.AllowAll
		}

		switch qc.Type {
		case "date_histogram":
			if err := reg.RegisterDateHistogram(query.DateHistogramDef{
				Name:              qc.Name,
				Index:             qc.Index,
				RequiredFilters:   qc.RequiredFilters,
				CopyFields:        copyFields,
				PermissionFactory: perm,
			}); err != nil {
				return fmt.Errorf("app: query %q: %w", qc.Name, err)
			}
		case "terms":
			if err := reg.RegisterTerms(query.TermsDef{
				Name:              qc.Name,
				Index:             qc.Index,
				AggregatedFields:  qc.AggregatedFields,
				RequiredFilters:   qc.RequiredFilters,
				CopyFields:        copyFields,
				PermissionFactory: perm,
			}); err != nil {
				return fmt.Errorf("app: query %q: %w", qc.Name, err)
			}
		default:
			return fmt.Errorf("app: query %q: unknown type %q", qc.Name, qc.Type)
		}
	}
	return nil
}
