// Package state defines the player aggregate and its mutations. A PlayerState
// is owned by exactly one session; the server-side and client-side copies are
// independent replicas related only by the save protocol.
package state

import (
	"time"

	"blockcoder.app/internal/game/catalog"
	"blockcoder.app/internal/game/engine"
)

type PlayerState struct {
	// Currency may be fractional internally; display floors it.
	Currency float64 `json:"currency"`
	// Holdings maps block id to owned count. Absent key means zero. Counts
	// only grow; there is no sell operation.
	Holdings map[string]int `json:"holdings"`
	// Program is the ordered execution sequence. Duplicates are allowed and
	// order is significant.
	Program    []string  `json:"program"`
	LastTickAt time.Time `json:"last_tick_at,omitempty"`
}

// Starter is the fixed state every new player begins with.
func Starter(currency float64, starterBlock string) PlayerState {
	return PlayerState{
		Currency: currency,
		Holdings: map[string]int{starterBlock: 1},
		Program:  []string{},
	}
}

// Normalize fills nil collections so mutations and JSON output behave the
// same on zero values and decoded payloads.
func (s *PlayerState) Normalize() {
	if s.Holdings == nil {
		s.Holdings = map[string]int{}
	}
	if s.Program == nil {
		s.Program = []string{}
	}
	if s.Currency < 0 {
		s.Currency = 0
	}
}

// Clone returns a deep copy, safe to hand across goroutines.
func (s PlayerState) Clone() PlayerState {
	out := s
	out.Holdings = make(map[string]int, len(s.Holdings))
	for id, n := range s.Holdings {
		out.Holdings[id] = n
	}
	out.Program = append([]string(nil), s.Program...)
	return out
}

// Purchase spends currency on one unit of id. The spend check happens before
// any mutation, so currency can never go negative here.
func (s *PlayerState) Purchase(reg *catalog.Registry, id string) error {
	def, ok := reg.Lookup(id)
	if !ok {
		return ErrUnknownBlock
	}
	if s.Currency < float64(def.Price) {
		return ErrInsufficientFunds
	}
	s.Normalize()
	s.Currency -= float64(def.Price)
	s.Holdings[id]++
	return nil
}

// AppendToProgram pushes id onto the program. Ownership is checked here and
// only here; a later catalog change never invalidates an existing program.
func (s *PlayerState) AppendToProgram(id string) error {
	if s.Holdings[id] <= 0 {
		return ErrNotOwned
	}
	s.Normalize()
	s.Program = append(s.Program, id)
	return nil
}

// RemoveFromProgram deletes the entry at pos, shifting later entries down.
func (s *PlayerState) RemoveFromProgram(pos int) error {
	if pos < 0 || pos >= len(s.Program) {
		return ErrOutOfRange
	}
	s.Program = append(s.Program[:pos], s.Program[pos+1:]...)
	return nil
}

// ReorderProgram replaces the program with newOrder. newOrder must contain
// exactly the current program's ids as a multiset; reordering never gains or
// loses entries.
func (s *PlayerState) ReorderProgram(newOrder []string) error {
	if len(newOrder) != len(s.Program) {
		return ErrInvalidPermutation
	}
	counts := make(map[string]int, len(s.Program))
	for _, id := range s.Program {
		counts[id]++
	}
	for _, id := range newOrder {
		counts[id]--
		if counts[id] < 0 {
			return ErrInvalidPermutation
		}
	}
	s.Program = append([]string(nil), newOrder...)
	return nil
}

// ApplyTick folds one tick's production into currency. There is no failure
// mode: a degenerate program just adds zero.
func (s *PlayerState) ApplyTick(reg *catalog.Registry, now time.Time) float64 {
	delta := engine.Evaluate(s.Program, s.Holdings, reg)
	s.Currency += delta
	s.LastTickAt = now
	return delta
}

// ProjectedPerTick estimates the next tick's yield without mutating anything.
func (s PlayerState) ProjectedPerTick(reg *catalog.Registry) float64 {
	return engine.Evaluate(s.Program, s.Holdings, reg)
}
