package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/herald-mesh/herald/internal/apperr"
	"github.com/herald-mesh/herald/internal/canonical"
	"github.com/herald-mesh/herald/internal/ledger"
	"github.com/herald-mesh/herald/internal/nodes"
	"github.com/herald-mesh/herald/internal/telemetry"
)

// Collaborator contracts the orchestrator runs against. The in-memory stores
// satisfy them directly; tests substitute failing or slow implementations.
type (
	Directory interface {
		Resolve(nodeID string) (nodes.Resolution, bool)
	}
	Transformer interface {
		Transform(data map[string]any, source, target string) (map[string]any, error)
	}
	Signer interface {
		Sign(nodeID string, payload []byte) ([]byte, error)
	}
	Ledger interface {
		Append(data, nodeID string, signature []byte) (*ledger.Entry, error)
	}
	TelemetrySink interface {
		Emit(ctx context.Context, eventType, nodeID string, data map[string]any) telemetry.Event
	}
)

// ledgerBundle is the document committed to the ledger for a message. Its
// canonical bytes are also the signing payload, so a committed signature
// verifies against exactly the stored data.
type ledgerBundle struct {
	MessageID       string         `json:"message_id"`
	FromNode        string         `json:"from_node"`
	ToNode          string         `json:"to_node"`
	MessageType     string         `json:"message_type"`
	Hash            string         `json:"hash"`
	TransformedData map[string]any `json:"transformed_data"`
}

// Orchestrator drives messages through the pipeline.
type Orchestrator struct {
	directory   Directory
	transformer Transformer
	signer      Signer
	ledger      Ledger
	telemetry   TelemetrySink
	history     *History
	logger      *slog.Logger
	stepTimeout time.Duration
}

// New creates an orchestrator. stepTimeout bounds every collaborator call;
// non-positive means 5s.
func New(directory Directory, transformer Transformer, signer Signer, led Ledger,
	sink TelemetrySink, history *History, logger *slog.Logger, stepTimeout time.Duration) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if stepTimeout <= 0 {
		stepTimeout = 5 * time.Second
	}
	return &Orchestrator{
		directory:   directory,
		transformer: transformer,
		signer:      signer,
		ledger:      led,
		telemetry:   sink,
		history:     history,
		logger:      logger,
		stepTimeout: stepTimeout,
	}
}

// Submit runs msg through the pipeline and returns the terminal entry, which
// is already recorded in history. Both nodes must be registered; rejection
// for an unknown node happens before any entry is created.
//
// The transform step runs only when targetSchema and msg.Schema are both set,
// the sign step only when the custodian holds the sender's private key, and
// the commit step only when commit is true. Transform and sign failures (or
// timeouts) skip the step and the run continues; a commit failure fails the
// run with the steps executed so far retained. Committed ledger entries stay
// committed; there is no rollback and no retry.
func (o *Orchestrator) Submit(ctx context.Context, msg Message, targetSchema string, commit bool) (*Entry, error) {
	sender, ok := o.directory.Resolve(msg.From)
	if !ok {
		return nil, fmt.Errorf("pipeline: from node %q: %w", msg.From, apperr.ErrNodeUnknown)
	}
	if _, ok := o.directory.Resolve(msg.To); !ok {
		return nil, fmt.Errorf("pipeline: to node %q: %w", msg.To, apperr.ErrNodeUnknown)
	}

	hash, err := canonical.Hash(msg)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:        uuid.NewString(),
		Hash:      hash,
		From:      msg.From,
		To:        msg.To,
		Type:      msg.Type,
		Data:      msg.Data,
		Schema:    msg.Schema,
		Status:    StatusProcessing,
		Steps:     []Step{},
		CreatedAt: time.Now().UTC(),
	}

	transformed := msg.Data
	if targetSchema != "" && msg.Schema != "" {
		out, err := callBounded(ctx, o.stepTimeout, func() (map[string]any, error) {
			return o.transformer.Transform(msg.Data, msg.Schema, targetSchema)
		})
		if err == nil {
			transformed = out
			entry.Steps = append(entry.Steps, newStep(StepTransform))
		} else {
			o.logger.Debug("pipeline: transform skipped",
				slog.String("message_id", entry.ID), slog.String("error", err.Error()))
		}
	}
	entry.TransformedData = transformed

	bundle := ledgerBundle{
		MessageID:       entry.ID,
		FromNode:        msg.From,
		ToNode:          msg.To,
		MessageType:     msg.Type,
		Hash:            hash,
		TransformedData: transformed,
	}
	payload, perr := canonical.Marshal(bundle)

	var signature []byte
	if sender.HasSigningKey && perr == nil {
		sig, err := callBounded(ctx, o.stepTimeout, func() ([]byte, error) {
			return o.signer.Sign(msg.From, payload)
		})
		if err == nil {
			signature = sig
			entry.Steps = append(entry.Steps, newStep(StepSign))
		} else {
			o.logger.Debug("pipeline: sign skipped",
				slog.String("message_id", entry.ID), slog.String("error", err.Error()))
		}
	}
	entry.Signature = signature

	if commit {
		err := perr
		var committed *ledger.Entry
		if err == nil {
			committed, err = callBounded(ctx, o.stepTimeout, func() (*ledger.Entry, error) {
				return o.ledger.Append(string(payload), msg.From, signature)
			})
		}
		if err != nil {
			entry.Status = StatusFailed
			entry.Error = err.Error()
			failedAt := time.Now().UTC()
			entry.FailedAt = &failedAt
			o.history.add(entry)
			o.logger.Warn("pipeline: ledger commit failed",
				slog.String("message_id", entry.ID), slog.String("error", err.Error()))
			return entry, nil
		}
		entry.LedgerEntryID = committed.ID
		s := newStep(StepCommit)
		s.LedgerEntryID = committed.ID
		entry.Steps = append(entry.Steps, s)
	}

	o.notify(ctx, entry.ID, msg, hash)

	entry.Status = StatusCompleted
	completedAt := time.Now().UTC()
	entry.CompletedAt = &completedAt
	o.history.add(entry)

	o.logger.Info("pipeline: message routed",
		slog.String("message_id", entry.ID),
		slog.String("from", msg.From),
		slog.String("to", msg.To),
		slog.Int("steps", len(entry.Steps)))
	return entry, nil
}

// notify emits the routing telemetry event. Emission is best-effort and is
// never recorded as a step.
func (o *Orchestrator) notify(ctx context.Context, messageID string, msg Message, hash string) {
	if o.telemetry == nil {
		return
	}
	_, err := callBounded(ctx, o.stepTimeout, func() (struct{}, error) {
		o.telemetry.Emit(ctx, "message_routed", msg.From, map[string]any{
			"message_id":   messageID,
			"to_node":      msg.To,
			"message_type": msg.Type,
			"hash":         hash,
		})
		return struct{}{}, nil
	})
	if err != nil {
		o.logger.Debug("pipeline: telemetry notify dropped",
			slog.String("message_id", messageID), slog.String("error", err.Error()))
	}
}

func newStep(name string) Step {
	return Step{Name: name, Status: StatusCompleted, Timestamp: time.Now().UTC()}
}

// callBounded runs fn with a deadline. A call that outlives the deadline is
// abandoned; its result lands in the buffered channel and is discarded, so
// the caller never races with it.
func callBounded[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
