// Package ledger implements the append-only, hash-linked ledger store.
// Entries are never mutated or removed; block heights are contiguous from
// zero and every entry links to its predecessor's data hash.
package ledger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herald-mesh/herald/internal/apperr"
	"github.com/herald-mesh/herald/internal/canonical"
)

// GenesisHash is the prev_hash recorded by the entry at height zero.
var GenesisHash = strings.Repeat("0", 64)

// Entry is one immutable ledger record.
type Entry struct {
	ID          string    `json:"entry_id"`
	Data        string    `json:"data"`
	DataHash    string    `json:"data_hash"`
	PrevHash    string    `json:"prev_hash"`
	NodeID      string    `json:"node_id"`
	Signature   []byte    `json:"signature,omitempty"`
	Verified    bool      `json:"verified"`
	BlockHeight int       `json:"block_height"`
	Timestamp   time.Time `json:"timestamp"`
}

// Verifier checks a signature on behalf of a node. The key custodian
// satisfies it.
type Verifier interface {
	Verify(nodeID string, payload, signature []byte) (bool, error)
}

// Store is the in-memory ledger. A single mutex covers height assignment and
// the physical append, so concurrent commits can never produce duplicate or
// gapped heights.
type Store struct {
	mu       sync.Mutex
	entries  []Entry
	byID     map[string]int
	verifier Verifier
	verified int
}

func NewStore(verifier Verifier) *Store {
	return &Store{
		byID:     make(map[string]int),
		verifier: verifier,
	}
}

// Append commits data under nodeID and returns the new entry. The signature
// is checked against the node's registered key and the outcome recorded in
// Verified; an absent, unverifiable, or foreign signature never rejects the
// append.
func (s *Store) Append(data, nodeID string, signature []byte) (*Entry, error) {
	verified := false
	if len(signature) > 0 && s.verifier != nil {
		ok, err := s.verifier.Verify(nodeID, []byte(data), signature)
		verified = err == nil && ok
	}

	e := Entry{
		ID:        uuid.NewString(),
		Data:      data,
		DataHash:  canonical.HashBytes([]byte(data)),
		NodeID:    nodeID,
		Signature: append([]byte(nil), signature...),
		Verified:  verified,
		Timestamp: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.entries); n == 0 {
		e.PrevHash = GenesisHash
	} else {
		e.PrevHash = s.entries[n-1].DataHash
	}
	e.BlockHeight = len(s.entries)
	s.entries = append(s.entries, e)
	s.byID[e.ID] = e.BlockHeight
	if verified {
		s.verified++
	}

	out := e
	return &out, nil
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("ledger: entry %s: %w", id, apperr.ErrNotFound)
	}
	e := s.entries[idx]
	return &e, nil
}

// List returns up to limit entries starting at offset, oldest first, along
// with the total entry count at the time of the call. A non-positive limit
// means no limit.
func (s *Store) List(limit, offset int) ([]Entry, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.entries)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Entry{}, total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]Entry, end-offset)
	copy(out, s.entries[offset:end])
	return out, total
}

// Height returns the number of committed entries.
func (s *Store) Height() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// VerifiedCount returns how many entries carried a verifiable signature.
func (s *Store) VerifiedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verified
}

// ChainReport is the outcome of a full chain walk.
type ChainReport struct {
	OK           bool   `json:"ok"`
	Entries      int    `json:"entries"`
	BrokenHeight int    `json:"broken_height"`
	Reason       string `json:"reason,omitempty"`
}

// VerifyChain walks the whole ledger and checks that every entry's data hash
// matches its data, that heights are contiguous, and that each prev_hash
// links to the predecessor. BrokenHeight is -1 when the chain is intact.
func (s *Store) VerifyChain() ChainReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := ChainReport{OK: true, Entries: len(s.entries), BrokenHeight: -1}
	prev := GenesisHash
	for i := range s.entries {
		e := &s.entries[i]
		switch {
		case e.BlockHeight != i:
			report.Reason = fmt.Sprintf("height %d recorded as %d", i, e.BlockHeight)
		case e.DataHash != canonical.HashBytes([]byte(e.Data)):
			report.Reason = fmt.Sprintf("data hash mismatch at height %d", i)
		case e.PrevHash != prev:
			report.Reason = fmt.Sprintf("broken link at height %d", i)
		}
		if report.Reason != "" {
			report.OK = false
			report.BrokenHeight = i
			return report
		}
		prev = e.DataHash
	}
	return report
}
