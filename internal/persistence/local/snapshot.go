// Package local keeps the durable on-disk copy of a player's state. While no
// session is authenticated, this copy is the source of truth.
//
// The payload is a versioned JSON envelope inside a zstd frame. Loading fills
// defaults for fields a given payload does not carry, migrates the legacy
// plain-JSON shape, and rejects anything else — no shallow-merging of
// arbitrary payloads.
package local

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"blockcoder.app/internal/game/state"
)

const Version = 1

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type envelope struct {
	Version int          `json:"version"`
	SavedAt time.Time    `json:"saved_at"`
	State   statePayload `json:"state"`
}

// statePayload mirrors state.PlayerState with presence detection: a field the
// stored payload carries replaces the default wholesale, an absent field
// keeps it.
type statePayload struct {
	Currency   *float64       `json:"currency"`
	Holdings   map[string]int `json:"holdings"`
	Program    []string       `json:"program"`
	LastTickAt *time.Time     `json:"last_tick_at"`
}

func (p statePayload) over(defaults state.PlayerState) state.PlayerState {
	out := defaults.Clone()
	if p.Currency != nil {
		out.Currency = *p.Currency
	}
	if p.Holdings != nil {
		out.Holdings = p.Holdings
	}
	if p.Program != nil {
		out.Program = p.Program
	}
	if p.LastTickAt != nil {
		out.LastTickAt = *p.LastTickAt
	}
	out.Normalize()
	return out
}

type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Save writes st to a temp file and renames it into place, so a crash
// mid-write never corrupts the previous snapshot.
func (s *Store) Save(st state.PlayerState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := writeSnapshot(f, st); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func writeSnapshot(f *os.File, st state.PlayerState) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)

	cur := st.Currency
	env := envelope{
		Version: Version,
		SavedAt: time.Now().UTC(),
		State: statePayload{
			Currency: &cur,
			Holdings: st.Holdings,
			Program:  st.Program,
		},
	}
	if !st.LastTickAt.IsZero() {
		ts := st.LastTickAt
		env.State.LastTickAt = &ts
	}
	if err := json.NewEncoder(bw).Encode(env); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// Load returns the stored state, or defaults when no snapshot exists.
// Fields absent from the stored payload keep their default values. A payload
// that is neither a current envelope nor the legacy plain shape is an error;
// the caller decides whether to fall back to defaults.
func (s *Store) Load(defaults state.PlayerState) (state.PlayerState, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		d := defaults.Clone()
		d.Normalize()
		return d, nil
	}
	if err != nil {
		return defaults, err
	}

	if bytes.HasPrefix(raw, zstdMagic) {
		dec, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return defaults, err
		}
		defer dec.Close()
		var env envelope
		if err := json.NewDecoder(bufio.NewReader(dec)).Decode(&env); err != nil {
			return defaults, fmt.Errorf("snapshot %s: %w", s.path, err)
		}
		if env.Version < 1 || env.Version > Version {
			return defaults, fmt.Errorf("snapshot %s: unsupported version %d", s.path, env.Version)
		}
		return env.State.over(defaults), nil
	}

	// Legacy v0: raw uncompressed PlayerState JSON. Migrate on load; the next
	// Save rewrites it as a current envelope.
	var payload statePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return defaults, fmt.Errorf("snapshot %s: not a snapshot: %w", s.path, err)
	}
	return payload.over(defaults), nil
}
