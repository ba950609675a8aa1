// Package engine evaluates one tick of a player's program. Evaluate is the
// single implementation behind both real tick application and the per-tick
// projection shown in the UI; keeping one copy prevents the two from drifting.
package engine

import "blockcoder.app/internal/game/catalog"

// Evaluate runs a single left-to-right pass over program, then folds in
// passive income from holdings.
//
// ADDITIVE entries add their production to the running accumulator.
// MULTIPLIER entries scale the accumulator as it stands at that point in the
// pass, so a trailing multiplier compounds every prior additive contribution.
// PASSIVE entries are inert inside the pass; each distinct passive definition
// pays production*count exactly once per tick based on holdings alone,
// no matter how often it appears in the program.
//
// Unknown ids are skipped. The result is never negative.
func Evaluate(program []string, holdings map[string]int, reg *catalog.Registry) float64 {
	added := 0.0
	for _, id := range program {
		def, ok := reg.Lookup(id)
		if !ok {
			continue
		}
		switch def.Behavior {
		case catalog.BehaviorAdditive:
			added += float64(def.Production)
		case catalog.BehaviorMultiplier:
			added *= def.Factor
		}
	}
	for _, def := range reg.Passive() {
		if n := holdings[def.ID]; n > 0 {
			added += float64(def.Production) * float64(n)
		}
	}
	return added
}
