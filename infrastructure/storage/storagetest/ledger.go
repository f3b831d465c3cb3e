// Package storagetest provides a conformance suite for ledger.Store
// implementations.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
	"github.com/felixgeelhaar/agent-phoenix/domain/ledger"
)

// Opener returns a store over the same underlying data each time it is called.
type Opener func(t *testing.T) ledger.Store

// Suite configures RunLedgerStore.
type Suite struct {
	// Fresh prepares empty backing data and returns an opener for it.
	Fresh func(t *testing.T) Opener

	// Durable enables the close-and-reopen checks.
	Durable bool

	// SharedOpen means two stores may be open on the same data at once.
	SharedOpen bool
}

// Agent builds a valid agent descriptor.
func Agent(name string) capability.Descriptor {
	return capability.Descriptor{
		Name:        name,
		Kind:        capability.KindAgent,
		Permissions: []string{"Read", "Write"},
		Source:      ".claude/agents/" + name + ".md",
		Agent:       &capability.AgentSpec{Description: name},
	}
}

// ToolServer builds a valid tool server descriptor.
func ToolServer(name string) capability.Descriptor {
	return capability.Descriptor{
		Name:       name,
		Kind:       capability.KindToolServer,
		Source:     ".claude/mcp-servers/" + name + ".py",
		ToolServer: &capability.ToolServerSpec{Command: "python3", Args: []string{name + ".py"}},
	}
}

// RunLedgerStore runs the conformance suite.
func RunLedgerStore(t *testing.T, s Suite) {
	t.Helper()
	ctx := context.Background()

	t.Run("generation increases per registration", func(t *testing.T) {
		open := s.Fresh(t)
		l := ledger.New(open(t))
		defer func() { _ = l.Close() }()

		var last uint64
		for i := 0; i < 5; i++ {
			d, err := l.Register(ctx, Agent(fmt.Sprintf("agent-%d", i)))
			if err != nil {
				t.Fatalf("Register() error = %v", err)
			}
			if d.Generation <= last {
				t.Fatalf("generation %d not greater than %d", d.Generation, last)
			}
			last = d.Generation
		}
		gen, err := l.CurrentGeneration(ctx)
		if err != nil {
			t.Fatalf("CurrentGeneration() error = %v", err)
		}
		if gen != 5 {
			t.Errorf("CurrentGeneration() = %d, want 5", gen)
		}
	})

	t.Run("duplicate name per kind", func(t *testing.T) {
		open := s.Fresh(t)
		l := ledger.New(open(t))
		defer func() { _ = l.Close() }()

		if _, err := l.Register(ctx, Agent("csv-analyzer")); err != nil {
			t.Fatalf("first Register() error = %v", err)
		}
		_, err := l.Register(ctx, Agent("csv-analyzer"))
		if !errors.Is(err, capability.ErrDuplicateName) {
			t.Fatalf("second Register() error = %v, want ErrDuplicateName", err)
		}
		if _, err := l.Register(ctx, ToolServer("csv-analyzer")); err != nil {
			t.Fatalf("Register() other kind error = %v", err)
		}
		gen, _ := l.CurrentGeneration(ctx)
		if gen != 2 {
			t.Errorf("generation = %d, want 2 (failed registration must not bump)", gen)
		}
	})

	t.Run("supersede keeps history", func(t *testing.T) {
		open := s.Fresh(t)
		l := ledger.New(open(t))
		defer func() { _ = l.Close() }()

		first, err := l.Register(ctx, Agent("csv-analyzer"))
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		second, err := l.Register(ctx, Agent("csv-analyzer"), ledger.WithSupersede())
		if err != nil {
			t.Fatalf("Register(supersede) error = %v", err)
		}

		active, err := l.ListActive(ctx)
		if err != nil {
			t.Fatalf("ListActive() error = %v", err)
		}
		if len(active) != 1 || active[0].ID != second.ID {
			t.Fatalf("ListActive() = %+v, want only %s", active, second.ID)
		}
		history, err := l.History(ctx)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("History() len = %d, want 2", len(history))
		}
		if history[0].ID != first.ID || history[0].Active() || history[0].SupersededBy != second.ID {
			t.Errorf("superseded entry = %+v", history[0])
		}
	})

	t.Run("failed update persists nothing", func(t *testing.T) {
		open := s.Fresh(t)
		store := open(t)
		defer func() { _ = store.Close() }()

		boom := errors.New("boom")
		err := store.Update(ctx, func(st *ledger.State) error {
			st.Generation = 99
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Update() error = %v, want boom", err)
		}
		st, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if st.Generation != 0 {
			t.Errorf("generation = %d after failed update, want 0", st.Generation)
		}
	})

	t.Run("generation never regresses", func(t *testing.T) {
		open := s.Fresh(t)
		store := open(t)
		defer func() { _ = store.Close() }()

		if _, err := ledger.New(store).Register(ctx, Agent("a")); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		err := store.Update(ctx, func(st *ledger.State) error {
			st.Generation = 0
			return nil
		})
		if !errors.Is(err, ledger.ErrGenerationRegressed) {
			t.Errorf("Update() error = %v, want ErrGenerationRegressed", err)
		}
	})

	t.Run("concurrent registrations serialize", func(t *testing.T) {
		open := s.Fresh(t)
		stores := []ledger.Store{open(t)}
		if s.SharedOpen {
			stores = append(stores, open(t))
		}
		defer func() {
			for _, st := range stores {
				_ = st.Close()
			}
		}()

		const n = 12
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			seen = make(map[uint64]bool)
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				l := ledger.New(stores[i%len(stores)])
				d, err := l.Register(ctx, Agent(fmt.Sprintf("worker-%d", i)))
				if err != nil {
					t.Errorf("Register() error = %v", err)
					return
				}
				mu.Lock()
				seen[d.Generation] = true
				mu.Unlock()
			}(i)
		}
		wg.Wait()

		if len(seen) != n {
			t.Errorf("distinct generations = %d, want %d", len(seen), n)
		}
		st, err := stores[0].Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if st.Generation != n || len(st.Descriptors) != n {
			t.Errorf("state generation=%d descriptors=%d, want %d", st.Generation, len(st.Descriptors), n)
		}
	})

	if !s.Durable {
		return
	}

	t.Run("durable across reopen", func(t *testing.T) {
		open := s.Fresh(t)
		l := ledger.New(open(t))
		for _, name := range []string{"a", "b", "c"} {
			if _, err := l.Register(ctx, Agent(name)); err != nil {
				t.Fatalf("Register(%s) error = %v", name, err)
			}
		}
		if err := l.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		reopened := ledger.New(open(t))
		defer func() { _ = reopened.Close() }()
		gen, err := reopened.CurrentGeneration(ctx)
		if err != nil {
			t.Fatalf("CurrentGeneration() error = %v", err)
		}
		if gen != 3 {
			t.Fatalf("generation after reopen = %d, want 3", gen)
		}
		if _, err := reopened.Register(ctx, Agent("a")); !errors.Is(err, capability.ErrDuplicateName) {
			t.Errorf("Register(a) after reopen error = %v, want ErrDuplicateName", err)
		}
		d, err := reopened.Register(ctx, Agent("d"))
		if err != nil {
			t.Fatalf("Register(d) error = %v", err)
		}
		if d.Generation != 4 {
			t.Errorf("generation = %d, want 4", d.Generation)
		}
	})
}
