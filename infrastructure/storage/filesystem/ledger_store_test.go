package filesystem_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/agent-phoenix/domain/ledger"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/storage/filesystem"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/storage/storagetest"
)

func fresh(t *testing.T) storagetest.Opener {
	path := filepath.Join(t.TempDir(), "state", "ledger.json")
	return func(t *testing.T) ledger.Store {
		s, err := filesystem.NewLedgerStore(path)
		if err != nil {
			t.Fatalf("NewLedgerStore() error = %v", err)
		}
		return s
	}
}

func TestLedgerStore(t *testing.T) {
	storagetest.RunLedgerStore(t, storagetest.Suite{Fresh: fresh, Durable: true, SharedOpen: true})
}

func TestLedgerStore_NoTempFilesLeft(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := filesystem.NewLedgerStore(filepath.Join(dir, "ledger.json"))
	if err != nil {
		t.Fatalf("NewLedgerStore() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	l := ledger.New(s)
	for _, name := range []string{"a", "b"} {
		if _, err := l.Register(context.Background(), storagetest.Agent(name)); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLedgerStore_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0600); err != nil {
		t.Fatal(err)
	}
	s, err := filesystem.NewLedgerStore(path)
	if err != nil {
		t.Fatalf("NewLedgerStore() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	_, err = ledger.New(s).CurrentGeneration(context.Background())
	if err == nil {
		t.Fatal("expected error for corrupt ledger")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := filesystem.WriteFileAtomic(path, []byte("one"), 0600); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if err := filesystem.WriteFileAtomic(path, []byte("two"), 0600); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Errorf("content = %q, want two", data)
	}
}
