package pipeline

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"log/slog"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/herald-mesh/herald/internal/apperr"
	"github.com/herald-mesh/herald/internal/keys"
	"github.com/herald-mesh/herald/internal/ledger"
	"github.com/herald-mesh/herald/internal/nodes"
	"github.com/herald-mesh/herald/internal/schema"
	"github.com/herald-mesh/herald/internal/telemetry"
)

type testEnv struct {
	directory *nodes.Directory
	custodian *keys.Custodian
	ledger    *ledger.Store
	schemas   *schema.Registry
	telemetry *telemetry.Store
	history   *History
	orch      *Orchestrator
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		directory: nodes.NewDirectory(),
		custodian: keys.NewCustodian(),
		schemas:   schema.NewRegistry(),
		history:   NewHistory(),
	}
	e.ledger = ledger.NewStore(e.custodian)
	e.telemetry = telemetry.NewStore(nil, nil, testLogger())
	e.orch = New(e.directory, e.schemas, e.custodian, e.ledger, e.telemetry, e.history, testLogger(), time.Second)
	return e
}

// registerNode registers key material and the directory record the way the
// API does it. external=true keeps the private key with the node.
func (e *testEnv) registerNode(t *testing.T, id string, external bool) {
	t.Helper()
	var pub []byte
	if external {
		generated, _, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatal(err)
		}
		pub = generated
	}
	pair, err := e.custodian.Register(id, pub)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.directory.Register(nodes.Node{
		ID:            id,
		Type:          nodes.TypeAI,
		Capabilities:  []string{"inference"},
		HasSigningKey: pair.CanSign(),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestSubmitFullPipeline(t *testing.T) {
	e := newTestEnv(t)
	e.registerNode(t, "alpha", false)
	e.registerNode(t, "beta", false)
	if _, err := e.schemas.Register("openai.chat", "mesh.inference", map[string]string{
		"content": "prompt",
	}); err != nil {
		t.Fatal(err)
	}

	entry, err := e.orch.Submit(context.Background(), Message{
		From:   "alpha",
		To:     "beta",
		Type:   "inference_request",
		Data:   map[string]any{"prompt": "hello"},
		Schema: "openai.chat",
	}, "mesh.inference", true)
	if err != nil {
		t.Fatal(err)
	}

	if entry.Status != StatusCompleted {
		t.Fatalf("status = %s, error = %s", entry.Status, entry.Error)
	}
	wantSteps := []string{StepTransform, StepSign, StepCommit}
	if got := stepNames(entry.Steps); !reflect.DeepEqual(got, wantSteps) {
		t.Fatalf("steps = %v, want %v", got, wantSteps)
	}
	if !reflect.DeepEqual(entry.TransformedData, map[string]any{"content": "hello"}) {
		t.Fatalf("transformed data = %v", entry.TransformedData)
	}
	if len(entry.Signature) == 0 || entry.LedgerEntryID == "" {
		t.Fatalf("signature or ledger entry missing: %+v", entry)
	}

	committed, err := e.ledger.Get(entry.LedgerEntryID)
	if err != nil {
		t.Fatal(err)
	}
	if !committed.Verified || committed.BlockHeight != 0 {
		t.Fatalf("ledger entry = %+v", committed)
	}
	ok, err := e.custodian.Verify("alpha", []byte(committed.Data), entry.Signature)
	if err != nil || !ok {
		t.Fatalf("signature does not cover the committed data: ok=%v err=%v", ok, err)
	}

	if e.history.Len() != 1 {
		t.Fatalf("history length = %d, want 1", e.history.Len())
	}
	events := e.telemetry.List(0)
	if len(events) != 1 || events[0].Type != "message_routed" || events[0].NodeID != "alpha" {
		t.Fatalf("telemetry = %+v", events)
	}
}

func TestSubmitRejectsUnknownNodes(t *testing.T) {
	e := newTestEnv(t)
	e.registerNode(t, "alpha", false)

	msg := Message{From: "alpha", To: "ghost", Type: "t", Data: map[string]any{}}
	if _, err := e.orch.Submit(context.Background(), msg, "", true); !errors.Is(err, apperr.ErrNodeUnknown) {
		t.Fatalf("Submit error = %v, want ErrNodeUnknown", err)
	}

	msg = Message{From: "ghost", To: "alpha", Type: "t", Data: map[string]any{}}
	if _, err := e.orch.Submit(context.Background(), msg, "", true); !errors.Is(err, apperr.ErrNodeUnknown) {
		t.Fatalf("Submit error = %v, want ErrNodeUnknown", err)
	}

	if e.history.Len() != 0 {
		t.Fatal("rejected submission left a history entry")
	}
	if e.ledger.Height() != 0 {
		t.Fatal("rejected submission reached the ledger")
	}
}

func TestSubmitBareMessageCompletesWithEmptySteps(t *testing.T) {
	e := newTestEnv(t)
	e.registerNode(t, "alpha", true) // external custody: no signing
	e.registerNode(t, "beta", false)

	data := map[string]any{"k": "v"}
	entry, err := e.orch.Submit(context.Background(), Message{
		From: "alpha", To: "beta", Type: "t", Data: data,
	}, "", false)
	if err != nil {
		t.Fatal(err)
	}

	if entry.Status != StatusCompleted {
		t.Fatalf("status = %s", entry.Status)
	}
	if len(entry.Steps) != 0 {
		t.Fatalf("steps = %v, want none", entry.Steps)
	}
	if !reflect.DeepEqual(entry.TransformedData, data) {
		t.Fatalf("transformed data = %v, want input unchanged", entry.TransformedData)
	}
	if len(entry.Signature) != 0 || entry.LedgerEntryID != "" {
		t.Fatalf("bare message acquired signature or ledger entry: %+v", entry)
	}
	if e.ledger.Height() != 0 {
		t.Fatal("ledger written without commit requested")
	}
}

func TestTransformSkippedWhenMappingMissing(t *testing.T) {
	e := newTestEnv(t)
	e.registerNode(t, "alpha", false)
	e.registerNode(t, "beta", false)

	data := map[string]any{"prompt": "hello"}
	entry, err := e.orch.Submit(context.Background(), Message{
		From: "alpha", To: "beta", Type: "t", Data: data, Schema: "unknown.schema",
	}, "missing.target", false)
	if err != nil {
		t.Fatal(err)
	}

	if entry.Status != StatusCompleted {
		t.Fatalf("status = %s", entry.Status)
	}
	for _, s := range entry.Steps {
		if s.Name == StepTransform {
			t.Fatalf("transform step recorded despite missing mapping: %v", entry.Steps)
		}
	}
	if !reflect.DeepEqual(entry.TransformedData, data) {
		t.Fatalf("payload touched by failed transform: %v", entry.TransformedData)
	}
}

type slowTransformer struct{ delay time.Duration }

func (tr slowTransformer) Transform(data map[string]any, source, target string) (map[string]any, error) {
	time.Sleep(tr.delay)
	return map[string]any{"slow": true}, nil
}

func TestTransformTimeoutSkipsStep(t *testing.T) {
	e := newTestEnv(t)
	e.registerNode(t, "alpha", false)
	e.registerNode(t, "beta", false)

	orch := New(e.directory, slowTransformer{delay: 500 * time.Millisecond}, e.custodian,
		e.ledger, e.telemetry, e.history, testLogger(), 50*time.Millisecond)

	data := map[string]any{"prompt": "hello"}
	entry, err := orch.Submit(context.Background(), Message{
		From: "alpha", To: "beta", Type: "t", Data: data, Schema: "a",
	}, "b", false)
	if err != nil {
		t.Fatal(err)
	}

	if entry.Status != StatusCompleted {
		t.Fatalf("status = %s", entry.Status)
	}
	for _, s := range entry.Steps {
		if s.Name == StepTransform {
			t.Fatal("timed-out transform recorded as a step")
		}
	}
	if !reflect.DeepEqual(entry.TransformedData, data) {
		t.Fatalf("timed-out transform altered the payload: %v", entry.TransformedData)
	}
}

func TestSignSkippedWithoutPrivateKey(t *testing.T) {
	e := newTestEnv(t)
	e.registerNode(t, "alpha", true)
	e.registerNode(t, "beta", false)

	entry, err := e.orch.Submit(context.Background(), Message{
		From: "alpha", To: "beta", Type: "t", Data: map[string]any{"k": "v"},
	}, "", true)
	if err != nil {
		t.Fatal(err)
	}

	if entry.Status != StatusCompleted {
		t.Fatalf("status = %s", entry.Status)
	}
	if got := stepNames(entry.Steps); !reflect.DeepEqual(got, []string{StepCommit}) {
		t.Fatalf("steps = %v, want commit only", got)
	}

	committed, err := e.ledger.Get(entry.LedgerEntryID)
	if err != nil {
		t.Fatal(err)
	}
	if committed.Verified {
		t.Fatal("unsigned commit marked verified")
	}
}

type errLedger struct{ err error }

func (l errLedger) Append(data, nodeID string, signature []byte) (*ledger.Entry, error) {
	return nil, l.err
}

func TestCommitFailureFailsRun(t *testing.T) {
	e := newTestEnv(t)
	e.registerNode(t, "alpha", false)
	e.registerNode(t, "beta", false)

	orch := New(e.directory, e.schemas, e.custodian, errLedger{err: errors.New("ledger down")},
		e.telemetry, e.history, testLogger(), time.Second)

	entry, err := orch.Submit(context.Background(), Message{
		From: "alpha", To: "beta", Type: "t", Data: map[string]any{"k": "v"},
	}, "", true)
	if err != nil {
		t.Fatal(err)
	}

	if entry.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", entry.Status)
	}
	if entry.Error == "" || entry.FailedAt == nil {
		t.Fatalf("failure not recorded: %+v", entry)
	}
	// The sign step executed before the commit attempt stays recorded.
	if got := stepNames(entry.Steps); !reflect.DeepEqual(got, []string{StepSign}) {
		t.Fatalf("steps = %v, want sign retained", got)
	}
	if entry.LedgerEntryID != "" {
		t.Fatalf("failed run acquired a ledger entry: %+v", entry)
	}
	if !reflect.DeepEqual(entry.TransformedData, map[string]any{"k": "v"}) || len(entry.Signature) == 0 {
		t.Fatalf("failed run lost executed step results: %+v", entry)
	}

	if e.history.Len() != 1 {
		t.Fatal("failed run missing from history")
	}
	if _, failed := e.history.Counts(); failed != 1 {
		t.Fatalf("failed count = %d, want 1", failed)
	}
	if e.telemetry.Len() != 0 {
		t.Fatal("failed run emitted routing telemetry")
	}
}

type slowSink struct{ delay time.Duration }

func (s slowSink) Emit(ctx context.Context, eventType, nodeID string, data map[string]any) telemetry.Event {
	time.Sleep(s.delay)
	return telemetry.Event{}
}

func TestNotifyTimeoutDoesNotAffectOutcome(t *testing.T) {
	e := newTestEnv(t)
	e.registerNode(t, "alpha", false)
	e.registerNode(t, "beta", false)

	orch := New(e.directory, e.schemas, e.custodian, e.ledger,
		slowSink{delay: 500 * time.Millisecond}, e.history, testLogger(), 50*time.Millisecond)

	entry, err := orch.Submit(context.Background(), Message{
		From: "alpha", To: "beta", Type: "t", Data: map[string]any{"k": "v"},
	}, "", true)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed despite slow telemetry", entry.Status)
	}
}

func TestSubmitHashIsDeterministic(t *testing.T) {
	e := newTestEnv(t)
	e.registerNode(t, "alpha", false)
	e.registerNode(t, "beta", false)

	msg := Message{From: "alpha", To: "beta", Type: "t", Data: map[string]any{"a": 1, "b": 2}}
	first, err := e.orch.Submit(context.Background(), msg, "", false)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.orch.Submit(context.Background(), msg, "", false)
	if err != nil {
		t.Fatal(err)
	}

	if first.ID == second.ID {
		t.Fatal("distinct submissions share a message id")
	}
	if first.Hash != second.Hash {
		t.Fatalf("identical payloads hashed differently: %s vs %s", first.Hash, second.Hash)
	}

	third, err := e.orch.Submit(context.Background(), Message{
		From: "alpha", To: "beta", Type: "t", Data: map[string]any{"a": 1, "b": 3},
	}, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if third.Hash == first.Hash {
		t.Fatal("different payloads share a hash")
	}
}

func stepNames(steps []Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Name)
	}
	return out
}
