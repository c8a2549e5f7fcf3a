// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package query implements the Query Engine (C7): named, parameterized
// queries (date histogram, terms) over rollup indices, with
// required-filter validation, copy_field projection, and a pluggable
// permission policy. Grounded on the teacher's handler-registry pattern
// (internal/eventprocessor's named-handler map) generalized from event
// handlers to read-only query objects, with result-set shaping informed
// by the spec's search-engine sub-aggregation contract.
package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/eventstats/internal/logging"
	"github.com/tomtom215/eventstats/internal/metrics"
	"github.com/tomtom215/eventstats/internal/storeengine"
)

// Registry holds every named query definition the process knows about.
type Registry struct {
	mu             sync.RWMutex
	dateHistograms map[string]DateHistogramDef
	terms          map[string]TermsDef
}

// NewRegistry returns an empty query registry.
func NewRegistry() *Registry {
	return &Registry{
		dateHistograms: make(map[string]DateHistogramDef),
		terms:          make(map[string]TermsDef),
	}
}

// RegisterDateHistogram adds a date-histogram query definition.
func (r *Registry) RegisterDateHistogram(def DateHistogramDef) error {
	if def.Name == "" {
		return fmt.Errorf("query: date histogram: name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.dateHistograms[def.Name]; exists {
		return fmt.Errorf("query: date histogram %q already registered", def.Name)
	}
	if _, exists := r.terms[def.Name]; exists {
		return fmt.Errorf("query: name %q already registered as a terms query", def.Name)
	}
	r.dateHistograms[def.Name] = def
	return nil
}

// RegisterTerms adds a terms query definition.
func (r *Registry) RegisterTerms(def TermsDef) error {
	if err := def.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.terms[def.Name]; exists {
		return fmt.Errorf("query: terms %q already registered", def.Name)
	}
	if _, exists := r.dateHistograms[def.Name]; exists {
		return fmt.Errorf("query: name %q already registered as a date histogram query", def.Name)
	}
	r.terms[def.Name] = def
	return nil
}

// Names lists every registered query name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.dateHistograms)+len(r.terms))
	for n := range r.dateHistograms {
		names = append(names, n)
	}
	for n := range r.terms {
		names = append(names, n)
	}
	return names
}

// Engine dispatches named queries against the rollup store.
type Engine struct {
	store             storeengine.Engine
	registry          *Registry
	defaultPermission PermissionFunc
}

// New constructs a query Engine. defaultPermission is used for any
// registered query that doesn't declare its own PermissionFactory; pass
// nil to fall back to AllowAll (§6: "default allow-all unless overridden").
func New(store storeengine.Engine, registry *Registry, defaultPermission PermissionFunc) *Engine {
	if defaultPermission == nil {
		defaultPermission = AllowAll
	}
	return &Engine{store: store, registry: registry, defaultPermission: defaultPermission}
}

// Request is one label's entry in a /stats-style batch dispatch.
type Request struct {
	Stat   string
	Params map[string]interface{}
}

// Run dispatches a single named query (§4.6).
func (e *Engine) Run(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	begin := time.Now()

	e.registry.mu.RLock()
	dh, isDateHistogram := e.registry.dateHistograms[name]
	tm, isTerms := e.registry.terms[name]
	e.registry.mu.RUnlock()

	if !isDateHistogram && !isTerms {
		err := fmt.Errorf("%w: %s", ErrUnknownQuery, name)
		metrics.RecordQuery(name, time.Since(begin), err)
		return nil, err
	}

	permission := e.defaultPermission
	if isDateHistogram && dh.PermissionFactory != nil {
		permission = dh.PermissionFactory
	}
	if isTerms && tm.PermissionFactory != nil {
		permission = tm.PermissionFactory
	}

	decision := permission(ctx, name, params)
	if !decision.Allowed {
		err := &PermissionError{Query: name, Authenticated: decision.Authenticated}
		metrics.RecordQuery(name, time.Since(begin), err)
		return nil, err
	}

	var (
		result interface{}
		err    error
	)
	if isDateHistogram {
		result, err = dh.run(ctx, e.store, params)
	} else {
		result, err = tm.run(ctx, e.store, params)
	}

	metrics.RecordQuery(name, time.Since(begin), err)
	if err != nil {
		logging.Warn().Err(err).Str("query", name).Msg("query: run failed")
	}
	return result, err
}

// RunBatch dispatches every request independently, mirroring the external
// /stats HTTP contract (§6): each label gets its own result-or-error, so
// one bad query never fails the whole batch.
func (e *Engine) RunBatch(ctx context.Context, requests map[string]Request) map[string]Result {
	out := make(map[string]Result, len(requests))
	for label, req := range requests {
		value, err := e.Run(ctx, req.Stat, req.Params)
		out[label] = Result{Value: value, Err: err}
	}
	return out
}

// Result is one label's outcome from RunBatch.
type Result struct {
	Value interface{}
	Err   error
}
