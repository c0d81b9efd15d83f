package nodes

import (
	"errors"
	"reflect"
	"testing"

	"github.com/herald-mesh/herald/internal/apperr"
)

func TestRegisterAndGet(t *testing.T) {
	d := NewDirectory()
	registered, err := d.Register(Node{
		ID:           "agent-1",
		Type:         TypeAI,
		Capabilities: []string{"inference", "translation"},
		Endpoint:     "http://agent-1.local",
	})
	if err != nil {
		t.Fatal(err)
	}
	if registered.Status != StatusActive {
		t.Fatalf("status = %s, want %s", registered.Status, StatusActive)
	}
	if registered.RegisteredAt.IsZero() {
		t.Fatal("RegisteredAt not set")
	}

	got, err := d.Get("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != TypeAI || len(got.Capabilities) != 2 {
		t.Fatalf("Get = %+v", got)
	}

	if _, err := d.Get("missing"); !errors.Is(err, apperr.ErrNodeUnknown) {
		t.Fatalf("Get error = %v, want ErrNodeUnknown", err)
	}
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	d := NewDirectory()
	if _, err := d.Register(Node{ID: "agent-1", Type: TypeAI}); err != nil {
		t.Fatal(err)
	}
	_, err := d.Register(Node{ID: "agent-1", Type: TypeBlockchain})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("duplicate Register error = %v, want ErrAlreadyExists", err)
	}

	// The original record survives the rejected attempt.
	got, err := d.Get("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != TypeAI {
		t.Fatalf("type after duplicate attempt = %s, want %s", got.Type, TypeAI)
	}
}

func TestRoutingTable(t *testing.T) {
	d := NewDirectory()
	mustRegister(t, d, Node{ID: "a", Type: TypeAI, Capabilities: []string{"inference"}})
	mustRegister(t, d, Node{ID: "b", Type: TypeHybrid, Capabilities: []string{"inference", "storage"}})
	mustRegister(t, d, Node{ID: "c", Type: TypeBlockchain, Capabilities: []string{"storage"}})

	want := map[string][]string{
		"inference": {"a", "b"},
		"storage":   {"b", "c"},
	}
	if got := d.Routing(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Routing = %v, want %v", got, want)
	}
}

func TestSetStatus(t *testing.T) {
	d := NewDirectory()
	mustRegister(t, d, Node{ID: "a", Type: TypeAI})

	updated, err := d.SetStatus("a", StatusInactive)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != StatusInactive {
		t.Fatalf("status = %s, want %s", updated.Status, StatusInactive)
	}

	if _, err := d.SetStatus("missing", StatusActive); !errors.Is(err, apperr.ErrNodeUnknown) {
		t.Fatalf("SetStatus error = %v, want ErrNodeUnknown", err)
	}
}

func TestResolve(t *testing.T) {
	d := NewDirectory()
	mustRegister(t, d, Node{ID: "a", Type: TypeAI, Capabilities: []string{"inference"}, HasSigningKey: true})

	res, ok := d.Resolve("a")
	if !ok {
		t.Fatal("Resolve = false for registered node")
	}
	if res.Type != TypeAI || !res.HasSigningKey || len(res.Capabilities) != 1 {
		t.Fatalf("Resolve = %+v", res)
	}

	if _, ok := d.Resolve("missing"); ok {
		t.Fatal("Resolve = true for unregistered node")
	}
}

func TestReturnedCopiesDoNotAliasStore(t *testing.T) {
	d := NewDirectory()
	mustRegister(t, d, Node{ID: "a", Type: TypeAI, Capabilities: []string{"inference"}})

	got, err := d.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	got.Capabilities[0] = "mutated"
	got.Status = "mutated"

	again, err := d.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if again.Capabilities[0] != "inference" || again.Status != StatusActive {
		t.Fatalf("stored node mutated through returned copy: %+v", again)
	}
}

func mustRegister(t *testing.T, d *Directory, n Node) {
	t.Helper()
	if _, err := d.Register(n); err != nil {
		t.Fatal(err)
	}
}
