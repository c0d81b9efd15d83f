// Package pipeline implements the message pipeline: hash, optional schema
// transform, optional signing, optional ledger commit, telemetry notify.
// Optional steps skip on failure; only a requested ledger commit can fail a
// run. Every run ends as a terminal history entry.
package pipeline

import "time"

// Message is a sender's submission. All five fields participate in the
// canonical hash, so the identity of a message never depends on which of
// them happen to be set.
type Message struct {
	From   string         `json:"from_node"`
	To     string         `json:"to_node"`
	Type   string         `json:"message_type"`
	Data   map[string]any `json:"data"`
	Schema string         `json:"schema"`
}

// Pipeline step names and entry statuses.
const (
	StepTransform = "transform"
	StepSign      = "sign"
	StepCommit    = "commit_ledger"

	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Step records one successfully executed pipeline step. Skipped steps leave
// no trace.
type Step struct {
	Name          string    `json:"step"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	LedgerEntryID string    `json:"ledger_entry_id,omitempty"`
}

// Entry is the full record of one pipeline run.
type Entry struct {
	ID              string         `json:"message_id"`
	Hash            string         `json:"hash"`
	From            string         `json:"from_node"`
	To              string         `json:"to_node"`
	Type            string         `json:"message_type"`
	Data            map[string]any `json:"data"`
	Schema          string         `json:"schema,omitempty"`
	Status          string         `json:"status"`
	Steps           []Step         `json:"steps"`
	TransformedData map[string]any `json:"transformed_data,omitempty"`
	Signature       []byte         `json:"signature,omitempty"`
	LedgerEntryID   string         `json:"ledger_entry_id,omitempty"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	FailedAt        *time.Time     `json:"failed_at,omitempty"`
}

// Summary is the compact submission result returned to senders.
type Summary struct {
	MessageID     string `json:"message_id"`
	Status        string `json:"status"`
	Hash          string `json:"hash"`
	Steps         []Step `json:"steps"`
	LedgerEntryID string `json:"ledger_entry_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Summary returns the compact view of the entry.
func (e *Entry) Summary() Summary {
	return Summary{
		MessageID:     e.ID,
		Status:        e.Status,
		Hash:          e.Hash,
		Steps:         append([]Step{}, e.Steps...),
		LedgerEntryID: e.LedgerEntryID,
		Error:         e.Error,
	}
}

func (e *Entry) clone() *Entry {
	out := *e
	out.Steps = append([]Step(nil), e.Steps...)
	out.Data = copyMap(e.Data)
	out.TransformedData = copyMap(e.TransformedData)
	out.Signature = append([]byte(nil), e.Signature...)
	if e.CompletedAt != nil {
		ts := *e.CompletedAt
		out.CompletedAt = &ts
	}
	if e.FailedAt != nil {
		ts := *e.FailedAt
		out.FailedAt = &ts
	}
	return &out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
