// Package schema implements the mapping registry and the field-rename
// transform applied to message payloads in flight.
package schema

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herald-mesh/herald/internal/apperr"
)

// Mapping converts payloads from SourceSchema to TargetSchema. Rules maps
// each target field to the source field it copies from; fields absent from
// the source payload are simply not produced.
type Mapping struct {
	ID           string            `json:"mapping_id"`
	SourceSchema string            `json:"source_schema"`
	TargetSchema string            `json:"target_schema"`
	Rules        map[string]string `json:"mapping_rules"`
	CreatedAt    time.Time         `json:"created_at"`

	seeded bool
}

// Apply transforms data according to the mapping rules. The input is never
// modified.
func (m *Mapping) Apply(data map[string]any) map[string]any {
	out := make(map[string]any, len(m.Rules))
	for targetField, sourceField := range m.Rules {
		if v, ok := data[sourceField]; ok {
			out[targetField] = v
		}
	}
	return out
}

func (m *Mapping) clone() *Mapping {
	out := *m
	out.Rules = make(map[string]string, len(m.Rules))
	for k, v := range m.Rules {
		out.Rules[k] = v
	}
	return &out
}

// Registry holds mappings in registration order. When several mappings cover
// the same schema pair, the earliest registered one wins, so lookups are
// deterministic.
type Registry struct {
	mu       sync.RWMutex
	mappings []*Mapping
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a mapping for the given schema pair.
func (r *Registry) Register(source, target string, rules map[string]string) (*Mapping, error) {
	m, err := newMapping(source, target, rules, false)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.mappings = append(r.mappings, m)
	r.mu.Unlock()
	return m.clone(), nil
}

// Find returns the first mapping registered for the schema pair.
func (r *Registry) Find(source, target string) (*Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.find(source, target)
	if m == nil {
		return nil, false
	}
	return m.clone(), true
}

// Transform applies the first mapping registered for the schema pair to data.
func (r *Registry) Transform(data map[string]any, source, target string) (map[string]any, error) {
	r.mu.RLock()
	m := r.find(source, target)
	r.mu.RUnlock()
	if m == nil {
		return nil, fmt.Errorf("schema: %s to %s: %w", source, target, apperr.ErrMappingNotFound)
	}
	return m.Apply(data), nil
}

// List returns all mappings in lookup order.
func (r *Registry) List() []Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Mapping, 0, len(r.mappings))
	for _, m := range r.mappings {
		out = append(out, *m.clone())
	}
	return out
}

// Len returns the number of registered mappings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mappings)
}

// ReplaceSeeded swaps the seed-file mappings for a fresh set while leaving
// API-registered mappings untouched. Seeded mappings always precede
// API-registered ones so seed files keep lookup precedence across reloads.
func (r *Registry) ReplaceSeeded(seeds []Seed) error {
	fresh := make([]*Mapping, 0, len(seeds))
	for _, s := range seeds {
		m, err := newMapping(s.SourceSchema, s.TargetSchema, s.Rules, true)
		if err != nil {
			return err
		}
		fresh = append(fresh, m)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	kept := fresh
	for _, m := range r.mappings {
		if !m.seeded {
			kept = append(kept, m)
		}
	}
	r.mappings = kept
	return nil
}

func (r *Registry) find(source, target string) *Mapping {
	for _, m := range r.mappings {
		if m.SourceSchema == source && m.TargetSchema == target {
			return m
		}
	}
	return nil
}

func newMapping(source, target string, rules map[string]string, seeded bool) (*Mapping, error) {
	if source == "" || target == "" {
		return nil, fmt.Errorf("schema: source and target schemas are required")
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("schema: mapping %s to %s has no rules", source, target)
	}
	m := &Mapping{
		ID:           uuid.NewString(),
		SourceSchema: source,
		TargetSchema: target,
		Rules:        make(map[string]string, len(rules)),
		CreatedAt:    time.Now().UTC(),
		seeded:       seeded,
	}
	for k, v := range rules {
		if k == "" || v == "" {
			return nil, fmt.Errorf("schema: mapping %s to %s has an empty rule", source, target)
		}
		m.Rules[k] = v
	}
	return m, nil
}
