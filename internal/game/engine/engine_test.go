package engine

import (
	"testing"

	"blockcoder.app/internal/game/catalog"
)

func testRegistry(t *testing.T) *catalog.Registry {
	t.Helper()
	return catalog.Default()
}

func TestEvaluate_MultiplierCompoundsRunningTotal(t *testing.T) {
	reg := testRegistry(t)
	// (1+5)*2 = 12 — the multiplier scales everything accumulated so far,
	// not just the entry before it.
	got := Evaluate([]string{"add1", "add5", "mult2"}, nil, reg)
	if got != 12 {
		t.Fatalf("Evaluate = %v, want 12", got)
	}

	// Leading multiplier has nothing to scale.
	got = Evaluate([]string{"mult2", "add5"}, nil, reg)
	if got != 5 {
		t.Fatalf("Evaluate = %v, want 5", got)
	}
}

func TestEvaluate_UnknownIDsSkipped(t *testing.T) {
	reg := testRegistry(t)
	got := Evaluate([]string{"ghost", "add5", "gone"}, nil, reg)
	if got != 5 {
		t.Fatalf("Evaluate = %v, want 5", got)
	}
}

func TestEvaluate_PassiveCountedOncePerDistinctID(t *testing.T) {
	reg := testRegistry(t)
	holdings := map[string]int{"auto2": 3}

	base := Evaluate(nil, holdings, reg)
	if base != 6 {
		t.Fatalf("passive only = %v, want 6", base)
	}

	// Program occurrences of a passive block do not change its payout.
	inProgram := Evaluate([]string{"auto2", "auto2", "auto2"}, holdings, reg)
	if inProgram != base {
		t.Fatalf("passive in program = %v, want %v", inProgram, base)
	}
}

func TestEvaluate_PassiveNotMultiplied(t *testing.T) {
	reg := testRegistry(t)
	// Passive income lands after the pass, so the multiplier never touches it.
	got := Evaluate([]string{"add1", "mult2"}, map[string]int{"auto2": 1}, reg)
	if got != 4 {
		t.Fatalf("Evaluate = %v, want 4", got)
	}
}

func TestEvaluate_EmptyProgram(t *testing.T) {
	reg := testRegistry(t)
	if got := Evaluate(nil, nil, reg); got != 0 {
		t.Fatalf("Evaluate = %v, want 0", got)
	}
}

func TestEvaluate_PureAndDeterministic(t *testing.T) {
	reg := testRegistry(t)
	program := []string{"add1", "add5", "mult2", "auto2"}
	holdings := map[string]int{"auto2": 2, "add1": 1}

	first := Evaluate(program, holdings, reg)
	for i := 0; i < 100; i++ {
		if got := Evaluate(program, holdings, reg); got != first {
			t.Fatalf("run %d: Evaluate = %v, want %v", i, got, first)
		}
	}
	if holdings["auto2"] != 2 || len(program) != 4 {
		t.Fatalf("inputs mutated: %v %v", program, holdings)
	}
}
