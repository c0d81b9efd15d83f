// Package nodes implements the node directory: the registry of mesh
// participants and the capability routing table derived from it.
package nodes

import (
	"fmt"
	"sync"
	"time"

	"github.com/herald-mesh/herald/internal/apperr"
)

const (
	TypeAI         = "ai"
	TypeBlockchain = "blockchain"
	TypeHybrid     = "hybrid"

	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Node is a registered mesh participant. Everything except Status is
// immutable after registration.
type Node struct {
	ID            string    `json:"node_id"`
	Type          string    `json:"node_type"`
	Capabilities  []string  `json:"capabilities"`
	Endpoint      string    `json:"endpoint,omitempty"`
	PublicKey     string    `json:"public_key,omitempty"`
	HasSigningKey bool      `json:"has_signing_key"`
	Status        string    `json:"status"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// Resolution is the read contract the pipeline consumes when it validates
// senders and recipients.
type Resolution struct {
	Type          string
	Capabilities  []string
	Endpoint      string
	HasSigningKey bool
}

// Directory is the in-memory node registry.
type Directory struct {
	mu      sync.RWMutex
	nodes   map[string]*Node
	order   []string
	routing map[string][]string
}

func NewDirectory() *Directory {
	return &Directory{
		nodes:   make(map[string]*Node),
		routing: make(map[string][]string),
	}
}

// Register adds n to the directory. Node ids are unique; re-registering an
// existing id is rejected rather than overwriting the earlier record.
func (d *Directory) Register(n Node) (*Node, error) {
	if n.ID == "" {
		return nil, fmt.Errorf("nodes: empty node id")
	}
	n.Capabilities = append([]string(nil), n.Capabilities...)
	if n.Status == "" {
		n.Status = StatusActive
	}
	if n.RegisteredAt.IsZero() {
		n.RegisteredAt = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.nodes[n.ID]; ok {
		return nil, fmt.Errorf("nodes: %s: %w", n.ID, apperr.ErrAlreadyExists)
	}
	stored := n
	d.nodes[n.ID] = &stored
	d.order = append(d.order, n.ID)
	for _, cap := range n.Capabilities {
		d.routing[cap] = append(d.routing[cap], n.ID)
	}

	out := stored
	out.Capabilities = append([]string(nil), stored.Capabilities...)
	return &out, nil
}

// Get returns the node with the given id.
func (d *Directory) Get(id string) (*Node, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[id]
	if !ok {
		return nil, fmt.Errorf("nodes: %s: %w", id, apperr.ErrNodeUnknown)
	}
	out := *n
	out.Capabilities = append([]string(nil), n.Capabilities...)
	return &out, nil
}

// List returns all nodes in registration order.
func (d *Directory) List() []Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Node, 0, len(d.order))
	for _, id := range d.order {
		n := *d.nodes[id]
		n.Capabilities = append([]string(nil), n.Capabilities...)
		out = append(out, n)
	}
	return out
}

// Routing returns the capability routing table: capability to the ids of the
// nodes that registered it, in registration order.
func (d *Directory) Routing() map[string][]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string][]string, len(d.routing))
	for cap, ids := range d.routing {
		out[cap] = append([]string(nil), ids...)
	}
	return out
}

// SetStatus updates the only mutable node field.
func (d *Directory) SetStatus(id, status string) (*Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[id]
	if !ok {
		return nil, fmt.Errorf("nodes: %s: %w", id, apperr.ErrNodeUnknown)
	}
	n.Status = status
	out := *n
	out.Capabilities = append([]string(nil), n.Capabilities...)
	return &out, nil
}

// Resolve reports whether id is registered and, if so, the fields the
// pipeline needs to route a message.
func (d *Directory) Resolve(id string) (Resolution, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[id]
	if !ok {
		return Resolution{}, false
	}
	return Resolution{
		Type:          n.Type,
		Capabilities:  append([]string(nil), n.Capabilities...),
		Endpoint:      n.Endpoint,
		HasSigningKey: n.HasSigningKey,
	}, true
}

// Len returns the number of registered nodes.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes)
}
