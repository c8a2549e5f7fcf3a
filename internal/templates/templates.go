// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package templates is the Template/Alias Manager (C8): it collects every
// template name declared by the registered events and aggregations and
// registers them with the storage engine before first use, so the indexer
// and aggregator never race to create a table's schema. Grounded on the
// teacher's internal/database schema-migration bootstrap (DB.New runs its
// fixed DDL once at startup); generalized here from one fixed schema to
// the set of schemas implied by whatever the operator has registered.
package templates

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/eventstats/internal/aggregator"
	"github.com/tomtom215/eventstats/internal/events"
	"github.com/tomtom215/eventstats/internal/indexer"
	"github.com/tomtom215/eventstats/internal/logging"
	"github.com/tomtom215/eventstats/internal/storeengine"
)

// Manager registers every known event and aggregation template with the
// storage engine, and keeps the cross-partition aliases it creates in sync
// as new physical tables appear.
type Manager struct {
	engine storeengine.Engine
}

// New constructs a Manager bound to engine.
func New(engine storeengine.Engine) *Manager {
	return &Manager{engine: engine}
}

// RegisterEvents puts the raw-index template for each registered event
// type, so the indexer's first CreateIndex call for any given day never
// has to race another goroutine over the template definition.
func (m *Manager) RegisterEvents(ctx context.Context, reg *events.Registry) error {
	for _, typ := range reg.Types() {
		tmpl := indexer.EventTemplate(indexer.AliasName(typ))
		if err := m.engine.PutTemplate(ctx, tmpl); err != nil {
			return fmt.Errorf("templates: register event %q: %w", typ, err)
		}
		logging.Debug().Str("event_type", typ).Str("template", tmpl.Name).Msg("templates: registered event template")
	}
	return nil
}

// RegisterAggregations puts the rollup-index template for each of the
// given aggregation definitions.
func (m *Manager) RegisterAggregations(ctx context.Context, defs []aggregator.Def) error {
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("templates: aggregation %q: %w", def.Name, err)
		}
		tmpl := aggregator.RollupTemplate()
		tmpl.Name = "stats-" + def.Name
		if err := m.engine.PutTemplate(ctx, tmpl); err != nil {
			return fmt.Errorf("templates: register aggregation %q: %w", def.Name, err)
		}
		logging.Debug().Str("aggregation", def.Name).Str("template", tmpl.Name).Msg("templates: registered aggregation template")
	}
	return nil
}

// Bootstrap registers both event and aggregation templates and ensures
// every alias that doesn't yet have a matching physical table is at least
// created empty (over an empty partition for the current day or month), so
// a query against a freshly configured aggregation doesn't fail with "no
// such table" before the first run.
func (m *Manager) Bootstrap(ctx context.Context, reg *events.Registry, aggs []aggregator.Def) error {
	if err := m.RegisterEvents(ctx, reg); err != nil {
		return err
	}
	if err := m.RegisterAggregations(ctx, aggs); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, typ := range reg.Types() {
		alias := indexer.AliasName(typ)
		if err := m.engine.CreateIndex(ctx, indexer.IndexName(typ, now), indexer.EventTemplate("")); err != nil {
			return fmt.Errorf("templates: seed index for alias %q: %w", alias, err)
		}
		if err := m.engine.CreateAlias(ctx, alias, "events-"+typ+"-%"); err != nil {
			return fmt.Errorf("templates: alias %q: %w", alias, err)
		}
	}
	for _, def := range aggs {
		alias := "stats-" + def.Name
		if err := m.engine.CreateIndex(ctx, alias+"-"+aggregator.MonthIndexSuffix(now), aggregator.RollupTemplate()); err != nil {
			return fmt.Errorf("templates: seed index for alias %q: %w", alias, err)
		}
		if err := m.engine.CreateAlias(ctx, alias, alias+"-%"); err != nil {
			return fmt.Errorf("templates: alias %q: %w", alias, err)
		}
	}
	return nil
}
