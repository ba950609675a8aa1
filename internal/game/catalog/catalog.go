// Package catalog holds the immutable block definition table. Definitions are
// fixed at startup; lookups are total and never fail (an unknown id simply
// contributes nothing to a tick).
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

type Behavior string

const (
	BehaviorAdditive   Behavior = "ADDITIVE"
	BehaviorMultiplier Behavior = "MULTIPLIER"
	BehaviorPassive    Behavior = "PASSIVE"
)

type BlockDef struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	Price      int      `json:"price"`
	Production int      `json:"production"`
	Behavior   Behavior `json:"behavior"`
	// Factor applies only to MULTIPLIER blocks; it scales the running
	// accumulator, not any single entry.
	Factor float64 `json:"factor,omitempty"`
	Desc   string  `json:"desc,omitempty"`
}

type Registry struct {
	// Order preserves the authored catalog order. Passive payout iterates it
	// so tick results stay deterministic.
	Order      []string
	Defs       map[string]BlockDef
	DefsDigest string
}

// Lookup is total: callers treat !ok as "contributes zero", never as an error.
func (r *Registry) Lookup(id string) (BlockDef, bool) {
	d, ok := r.Defs[id]
	return d, ok
}

// Passive returns the distinct PASSIVE definitions in catalog order.
func (r *Registry) Passive() []BlockDef {
	out := make([]BlockDef, 0, len(r.Order))
	for _, id := range r.Order {
		if d := r.Defs[id]; d.Behavior == BehaviorPassive {
			out = append(out, d)
		}
	}
	return out
}

// Default is the built-in shop used when no catalog.json is present.
func Default() *Registry {
	defs := []BlockDef{
		{ID: "add1", Name: "Add +1", Price: 5, Production: 1, Behavior: BehaviorAdditive, Desc: "Adds +1 currency when executed"},
		{ID: "add5", Name: "Add +5", Price: 40, Production: 5, Behavior: BehaviorAdditive, Desc: "Adds +5"},
		{ID: "add10", Name: "Add +10", Price: 120, Production: 10, Behavior: BehaviorAdditive, Desc: "Adds +10"},
		{ID: "auto2", Name: "Auto +2", Price: 250, Production: 2, Behavior: BehaviorPassive, Desc: "Small steady income per tick"},
		{ID: "mult2", Name: "Double", Price: 500, Factor: 2, Behavior: BehaviorMultiplier, Desc: "Doubles the value accumulated so far this tick"},
	}
	r, err := build(defs, nil)
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in defs invalid: %v", err))
	}
	return r
}

// Load reads a JSON array of block definitions.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("catalog.json: %w", err)
	}
	return build(defs, raw)
}

func build(defs []BlockDef, raw []byte) (*Registry, error) {
	r := &Registry{Defs: make(map[string]BlockDef, len(defs))}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("catalog: empty id")
		}
		if _, dup := r.Defs[d.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate id %q", d.ID)
		}
		if d.Price < 0 {
			return nil, fmt.Errorf("catalog: %s: negative price", d.ID)
		}
		if d.Production < 0 {
			return nil, fmt.Errorf("catalog: %s: negative production", d.ID)
		}
		switch d.Behavior {
		case BehaviorAdditive, BehaviorPassive:
		case BehaviorMultiplier:
			if d.Factor <= 0 {
				return nil, fmt.Errorf("catalog: %s: multiplier needs factor > 0", d.ID)
			}
		default:
			return nil, fmt.Errorf("catalog: %s: unknown behavior %q", d.ID, d.Behavior)
		}
		r.Defs[d.ID] = d
		r.Order = append(r.Order, d.ID)
	}
	if raw == nil {
		raw, _ = json.Marshal(defs)
	}
	sum := sha256.Sum256(raw)
	r.DefsDigest = hex.EncodeToString(sum[:])
	return r, nil
}
