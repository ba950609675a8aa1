package session

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"blockcoder.app/internal/game/catalog"
	"blockcoder.app/internal/game/state"
	"blockcoder.app/internal/persistence/local"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestSession_MutationsPersistAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.snap.zst")
	reg := catalog.Default()
	starter := state.Starter(10, "add1")

	s := New(reg, local.NewStore(path), testLogger(), starter)
	if err := s.Purchase("add1"); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if err := s.AppendToProgram("add1"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.AppendToProgram("add1"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.Tick(time.Now())

	// Simulate a restart: a new session over the same snapshot path.
	restored := New(reg, local.NewStore(path), testLogger(), starter)
	got := restored.State()
	if got.Currency != 7 {
		t.Fatalf("currency = %v, want 7", got.Currency)
	}
	if got.Holdings["add1"] != 2 || len(got.Program) != 2 {
		t.Fatalf("restored state mismatch: %+v", got)
	}
}

func TestSession_ReplaceWinsWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.snap.zst")
	reg := catalog.Default()
	s := New(reg, local.NewStore(path), testLogger(), state.Starter(10, "add1"))

	// Local progress that the server copy will discard.
	if err := s.Purchase("add1"); err != nil {
		t.Fatalf("Purchase: %v", err)
	}

	server := state.Starter(500, "add1")
	server.Holdings["add5"] = 2
	s.Replace(server)

	got := s.State()
	if got.Currency != 500 || got.Holdings["add1"] != 1 || got.Holdings["add5"] != 2 {
		t.Fatalf("replace not wholesale: %+v", got)
	}

	// The replacement is what persists.
	restored := New(reg, local.NewStore(path), testLogger(), state.Starter(10, "add1"))
	if restored.State().Currency != 500 {
		t.Fatalf("replaced state not persisted: %+v", restored.State())
	}
}

func TestSession_FailedMutationDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.snap.zst")
	reg := catalog.Default()
	s := New(reg, local.NewStore(path), testLogger(), state.Starter(10, "add1"))

	if err := s.Purchase("mult2"); err == nil { // price 500
		t.Fatalf("expected purchase failure")
	}
	got := s.State()
	if got.Currency != 10 {
		t.Fatalf("currency = %v, want 10", got.Currency)
	}
}

func TestSession_WriteFailureKeepsStateInMemory(t *testing.T) {
	// A regular file squatting on the snapshot's parent directory makes every
	// write fail. The mutation must still land in memory, with the failure
	// only logged.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	path := filepath.Join(blocker, "state.snap.zst")

	var buf bytes.Buffer
	s := New(catalog.Default(), local.NewStore(path), log.New(&buf, "", 0), state.Starter(10, "add1"))
	logged := buf.Len()

	if err := s.Purchase("add1"); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	got := s.State()
	if got.Currency != 5 || got.Holdings["add1"] != 2 {
		t.Fatalf("mutation lost: %+v", got)
	}
	if delta := s.Tick(time.Now()); delta != 0 {
		t.Fatalf("delta = %v, want 0", delta)
	}
	if buf.Len() == logged {
		t.Fatalf("expected write failure to be logged")
	}
}

func TestSession_NilStoreRunsInMemory(t *testing.T) {
	s := New(catalog.Default(), nil, testLogger(), state.Starter(10, "add1"))
	if err := s.AppendToProgram("add1"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if delta := s.Tick(time.Now()); delta != 1 {
		t.Fatalf("delta = %v, want 1", delta)
	}
	if s.ProjectedPerTick() != 1 {
		t.Fatalf("projection = %v, want 1", s.ProjectedPerTick())
	}
}
