package events

import (
	"fmt"
	"sort"
	"sync"
)

// Def declares one registered event type (C1 Event Registry): its wire
// name, the preprocessor chain applied by the indexer, and the template
// name the storage engine should register the raw index under. Grounded on
// the teacher's factory-registration idiom in internal/eventprocessor
// (publisher/subscriber are looked up by a string key rather than
// hardcoded per event).
type Def struct {
	// Type is the event type's wire name, e.g. "record-view", "file-download".
	Type string
	// PreprocessorChain runs, in order, over every raw event of this type
	// before it's handed to the indexer.
	PreprocessorChain Chain
	// Template names the raw-index DDL template the storage engine applies
	// when creating a new time-partitioned table for this event type.
	Template string
	// SignalSource documents where this event type's raw events originate
	// (a Celery/webhook/application signal name in the original system);
	// carried for operator visibility only, not used by any code path.
	SignalSource string
}

// Registry holds the set of enabled event type definitions, keyed by Type.
// Safe for concurrent reads after construction; Register is expected to be
// called during startup before any indexer/aggregator goroutines start.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Def
}

// NewRegistry returns an empty event type registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Def)}
}

// Register adds the definition for def.Type; registering a type that is
// already present is an error.
func (r *Registry) Register(def Def) error {
	if def.Type == "" {
		return fmt.Errorf("events: registry: event type name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Type]; exists {
		return fmt.Errorf("events: registry: event type %q already registered", def.Type)
	}
	r.defs[def.Type] = def
	return nil
}

// Get returns the definition for typ, or false if it isn't registered.
func (r *Registry) Get(typ string) (Def, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[typ]
	return d, ok
}

// Types returns the registered event type names, sorted for deterministic
// iteration (CLI listing, startup logging).
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for t := range r.defs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// MustGet returns the definition for typ or panics; used at startup where
// an unregistered type is a configuration bug, not a runtime condition.
func (r *Registry) MustGet(typ string) Def {
	d, ok := r.Get(typ)
	if !ok {
		panic(fmt.Sprintf("events: registry: unregistered event type %q", typ))
	}
	return d
}
