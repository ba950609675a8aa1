// Package session owns one player's in-memory state for the lifetime of a
// client process. Every mutation goes through the session, which snapshots to
// local persistence after each change and each tick. Persistence failures are
// logged and swallowed: the game keeps running on memory alone.
package session

import (
	"log"
	"sync"
	"time"

	"blockcoder.app/internal/game/catalog"
	"blockcoder.app/internal/game/state"
	"blockcoder.app/internal/persistence/local"
)

type Session struct {
	mu    sync.Mutex
	reg   *catalog.Registry
	store *local.Store // nil disables local persistence
	log   *log.Logger
	st    state.PlayerState
}

// New restores the session from the local store, falling back to starter when
// nothing (or garbage) is on disk.
func New(reg *catalog.Registry, store *local.Store, logger *log.Logger, starter state.PlayerState) *Session {
	s := &Session{reg: reg, store: store, log: logger, st: starter.Clone()}
	s.st.Normalize()
	if store != nil {
		loaded, err := store.Load(starter)
		if err != nil {
			logger.Printf("local snapshot unusable, starting fresh: %v", err)
		} else {
			s.st = loaded
		}
	}
	return s
}

// State returns a deep copy of the current state.
func (s *Session) State() state.PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Clone()
}

// Replace swaps in a server copy wholesale (login reconciliation: the
// authoritative copy wins, local divergence is discarded).
func (s *Session) Replace(st state.PlayerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = st.Clone()
	s.st.Normalize()
	s.persist()
}

func (s *Session) Purchase(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.st.Purchase(s.reg, id); err != nil {
		return err
	}
	s.persist()
	return nil
}

func (s *Session) AppendToProgram(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.st.AppendToProgram(id); err != nil {
		return err
	}
	s.persist()
	return nil
}

func (s *Session) RemoveFromProgram(pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.st.RemoveFromProgram(pos); err != nil {
		return err
	}
	s.persist()
	return nil
}

func (s *Session) ReorderProgram(newOrder []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.st.ReorderProgram(newOrder); err != nil {
		return err
	}
	s.persist()
	return nil
}

// Tick applies one evaluation cycle and returns the minted delta. The caller
// drives ticks from a single ticker, so evaluations never overlap.
func (s *Session) Tick(now time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	delta := s.st.ApplyTick(s.reg, now)
	s.persist()
	return delta
}

func (s *Session) ProjectedPerTick() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ProjectedPerTick(s.reg)
}

func (s *Session) Catalog() *catalog.Registry { return s.reg }

// persist is called with s.mu held.
func (s *Session) persist() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.st); err != nil {
		s.log.Printf("local save: %v", err)
	}
}
