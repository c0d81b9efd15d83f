package schema

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func writeSeedFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeSeedFile(t, dir, "mappings.yaml", `
mappings:
  - source_schema: openai.chat
    target_schema: mesh.inference
    mapping_rules:
      content: prompt
  - source_schema: mesh.inference
    target_schema: ethereum.tx
    mapping_rules:
      payload: content
`)
	writeSeedFile(t, dir, "ignored.txt", "not yaml")

	seeds, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(seeds) != 2 {
		t.Fatalf("LoadDir = %d seeds, want 2", len(seeds))
	}
	if seeds[0].SourceSchema != "openai.chat" || seeds[0].Rules["content"] != "prompt" {
		t.Fatalf("first seed = %+v", seeds[0])
	}
}

func TestLoadDirRejectsIncompleteMapping(t *testing.T) {
	dir := t.TempDir()
	writeSeedFile(t, dir, "bad.yaml", `
mappings:
  - source_schema: a
    target_schema: ""
    mapping_rules:
      x: y
`)
	if _, err := LoadDir(dir); err == nil {
		t.Fatal("LoadDir accepted a mapping without a target schema")
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloads := make(chan int, 8)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, reg, dir, logger, func(n int) { reloads <- n }) }()

	time.Sleep(100 * time.Millisecond)

	writeSeedFile(t, dir, "seeds.yaml", `
mappings:
  - source_schema: a
    target_schema: b
    mapping_rules:
      x: y
`)
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		_, ok := reg.Find("a", "b")
		return ok
	}, "seeded mapping not loaded after file create")

	select {
	case n := <-reloads:
		if n != 1 {
			t.Errorf("reload notified %d mappings, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Error("no reload notification after file create")
	}

	writeSeedFile(t, dir, "seeds.yaml", `
mappings:
  - source_schema: a
    target_schema: c
    mapping_rules:
      x: y
`)
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		_, stale := reg.Find("a", "b")
		_, fresh := reg.Find("a", "c")
		return !stale && fresh
	}, "seeded mappings not replaced after file change")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop on context cancel")
	}
}

func TestWatchKeepsPreviousMappingsOnBadFile(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = Watch(ctx, reg, dir, logger, nil) }()

	time.Sleep(100 * time.Millisecond)

	writeSeedFile(t, dir, "seeds.yaml", `
mappings:
  - source_schema: a
    target_schema: b
    mapping_rules:
      x: y
`)
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		_, ok := reg.Find("a", "b")
		return ok
	}, "seeded mapping not loaded")

	writeSeedFile(t, dir, "seeds.yaml", "mappings: [broken")
	// Give the debounced reload a chance to run, then confirm the previous
	// set is still served.
	time.Sleep(600 * time.Millisecond)
	if _, ok := reg.Find("a", "b"); !ok {
		t.Fatal("previous mappings dropped after bad reload")
	}
}
