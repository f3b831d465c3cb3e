package toolstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/toolstore"
)

const echoTool = `{
  "name": "echo",
  "description": "Echo the input",
  "inputSchema": {"type": "object", "properties": {"text": {"type": "string"}}, "required": ["text"]},
  "implementation": {"type": "command", "command": "cat"},
  "metadata": {"version": "1.0.0", "category": "util"}
}`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func names(snap toolstore.Snapshot) []string {
	var out []string
	for _, d := range snap.Tools {
		out = append(out, d.Name)
	}
	return out
}

func TestStore_ScanReflectsDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := toolstore.New(dir)
	ctx := context.Background()

	snap, err := s.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(snap.Tools) != 0 {
		t.Fatalf("empty store listed %v", names(snap))
	}

	writeFile(t, dir, "echo.json", echoTool)
	snap, err = s.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got := names(snap); len(got) != 1 || got[0] != "echo" {
		t.Fatalf("after add, tools = %v, want [echo]", got)
	}
	if snap.Schema("echo") == nil {
		t.Error("compiled schema missing")
	}

	if err := os.Remove(filepath.Join(dir, "echo.json")); err != nil {
		t.Fatal(err)
	}
	snap, err = s.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(snap.Tools) != 0 {
		t.Errorf("after remove, tools = %v, want none", names(snap))
	}
}

func TestStore_MissingDirectory(t *testing.T) {
	t.Parallel()

	s := toolstore.New(filepath.Join(t.TempDir(), "absent"))
	snap, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(snap.Tools) != 0 || len(snap.Problems) != 0 {
		t.Errorf("Scan() = %+v, want empty", snap)
	}
}

func TestStore_SkipsMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "echo.json", echoTool)
	writeFile(t, dir, "broken.json", `{"name": "broken",`)
	writeFile(t, dir, "noschema.json", `{"name":"noschema","implementation":{"type":"command","command":"x"}}`)
	writeFile(t, dir, "badschema.json", `{"name":"badschema","inputSchema":{"type":"object","properties":{"a":{"type":"nonsense"}}},"implementation":{"type":"command","command":"x"}}`)
	writeFile(t, dir, "badversion.json", `{"name":"badversion","inputSchema":{"type":"object"},"implementation":{"type":"command","command":"x"},"metadata":{"version":"latest"}}`)
	writeFile(t, dir, "notes.txt", "not a descriptor")

	snap, err := toolstore.New(dir).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() should not fail on malformed entries: %v", err)
	}
	if got := names(snap); len(got) != 1 || got[0] != "echo" {
		t.Errorf("tools = %v, want [echo]", got)
	}
	if len(snap.Problems) != 4 {
		t.Errorf("problems = %d, want 4: %+v", len(snap.Problems), snap.Problems)
	}
}

func TestStore_HighestVersionWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	older := `{"name":"echo","description":"old","inputSchema":{"type":"object"},"implementation":{"type":"command","command":"cat"},"metadata":{"version":"1.2.0"}}`
	newer := `{"name":"echo","description":"new","inputSchema":{"type":"object"},"implementation":{"type":"command","command":"cat"},"metadata":{"version":"1.10.0"}}`
	writeFile(t, dir, "a/echo.json", newer)
	writeFile(t, dir, "b/echo.json", older)

	snap, err := toolstore.New(dir).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	d, ok := snap.Lookup("echo")
	if !ok {
		t.Fatal("echo not found")
	}
	if d.Description != "new" {
		t.Errorf("description = %q, want new", d.Description)
	}
	if len(snap.Problems) != 1 || !errors.Is(snap.Problems[0].Err, toolstore.ErrShadowed) {
		t.Errorf("problems = %+v, want one ErrShadowed", snap.Problems)
	}
}

func TestStore_PutAndRemove(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := toolstore.New(dir)
	ctx := context.Background()

	var d tool.Descriptor
	if err := json.Unmarshal([]byte(echoTool), &d); err != nil {
		t.Fatal(err)
	}
	path, err := s.Put(d)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if filepath.Base(path) != "echo.json" {
		t.Errorf("Put() path = %s", path)
	}

	snap, _ := s.Scan(ctx)
	if _, ok := snap.Lookup("echo"); !ok {
		t.Fatal("echo not visible after Put")
	}

	if _, err := s.Remove(ctx, "echo"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Remove(ctx, "echo"); !errors.Is(err, tool.ErrToolNotFound) {
		t.Errorf("second Remove() error = %v, want ErrToolNotFound", err)
	}

	d.InputSchema = json.RawMessage(`{"type":"array"}`)
	if _, err := s.Put(d); !errors.Is(err, tool.ErrInvalidDescriptor) {
		t.Errorf("Put(invalid) error = %v, want ErrInvalidDescriptor", err)
	}
}

func TestStore_Resolve(t *testing.T) {
	t.Parallel()

	s := toolstore.New("/srv/tools")
	if got, err := s.Resolve("bin/tool.wasm"); err != nil || got != filepath.Join("/srv/tools", "bin", "tool.wasm") {
		t.Errorf("Resolve() = %q, %v", got, err)
	}
	for _, rel := range []string{"../etc/passwd", "/etc/passwd"} {
		if _, err := s.Resolve(rel); !errors.Is(err, toolstore.ErrOutsideDir) {
			t.Errorf("Resolve(%q) error = %v, want ErrOutsideDir", rel, err)
		}
	}
}
