package pipeline

import (
	"fmt"
	"sync"

	"github.com/herald-mesh/herald/internal/apperr"
)

// History is the process-wide record of finished pipeline runs. Only the
// orchestrator appends, and only terminal entries; copies go in and come
// out, so a recorded run can never change afterwards.
type History struct {
	mu        sync.RWMutex
	entries   []*Entry
	byID      map[string]*Entry
	completed int
	failed    int
}

func NewHistory() *History {
	return &History{byID: make(map[string]*Entry)}
}

func (h *History) add(e *Entry) {
	frozen := e.clone()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, frozen)
	h.byID[frozen.ID] = frozen
	switch frozen.Status {
	case StatusCompleted:
		h.completed++
	case StatusFailed:
		h.failed++
	}
}

// Get returns the run with the given message id.
func (h *History) Get(id string) (*Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.byID[id]
	if !ok {
		return nil, fmt.Errorf("pipeline: message %s: %w", id, apperr.ErrNotFound)
	}
	return e.clone(), nil
}

// List returns the most recent limit runs, oldest first, and the number of
// runs that matched before the limit was applied. A non-empty nodeID
// restricts the result to runs that node sent or received; a non-positive
// limit returns everything.
func (h *History) List(limit int, nodeID string) ([]Entry, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	matched := make([]*Entry, 0, len(h.entries))
	for _, e := range h.entries {
		if nodeID != "" && e.From != nodeID && e.To != nodeID {
			continue
		}
		matched = append(matched, e)
	}

	start := 0
	if limit > 0 && len(matched) > limit {
		start = len(matched) - limit
	}
	out := make([]Entry, 0, len(matched)-start)
	for _, e := range matched[start:] {
		out = append(out, *e.clone())
	}
	return out, len(matched)
}

// Len returns the number of recorded runs.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Counts returns how many runs completed and how many failed.
func (h *History) Counts() (completed, failed int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.completed, h.failed
}
