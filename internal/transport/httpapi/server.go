// Package httpapi serves the account/save/leaderboard JSON API. Every save
// replaces the stored state wholesale; the version check is the only
// concurrency control.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"blockcoder.app/internal/auth"
	"blockcoder.app/internal/game/state"
	"blockcoder.app/internal/game/tuning"
	"blockcoder.app/internal/leaderboard"
	"blockcoder.app/internal/persistence/userdb"
	"blockcoder.app/internal/protocol"
)

// Broadcaster pushes a refreshed leaderboard to live subscribers. May be nil.
type Broadcaster interface {
	Broadcast(entries []leaderboard.Entry)
}

type Server struct {
	log    *log.Logger
	users  *userdb.Store
	signer *auth.Signer
	tune   tuning.Tuning
	schema *jsonschema.Schema
	feed   Broadcaster

	saves atomic.Uint64
}

func NewServer(users *userdb.Store, signer *auth.Signer, tune tuning.Tuning, schema *jsonschema.Schema, feed Broadcaster, logger *log.Logger) *Server {
	return &Server{
		log:    logger,
		users:  users,
		signer: signer,
		tune:   tune,
		schema: schema,
		feed:   feed,
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/register", s.handleRegister)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/save", s.requireToken(s.handleSave))
	mux.HandleFunc("/api/state", s.requireToken(s.handleState))
	mux.HandleFunc("/api/leaderboard", s.handleLeaderboard)
}

// SaveCount is surfaced on /metrics.
func (s *Server) SaveCount() uint64 { return s.saves.Load() }

func (s *Server) handleRegister(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req protocol.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "invalid json")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "username and password required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.internal(rw, "hash password", err)
		return
	}
	starter := state.Starter(s.tune.StarterCurrency, s.tune.StarterBlock)
	if err := s.users.CreateUser(username, hash, starter); err != nil {
		if errors.Is(err, userdb.ErrUsernameTaken) {
			writeErr(rw, http.StatusBadRequest, protocol.ErrUsernameTaken, "username taken")
			return
		}
		s.internal(rw, "create user", err)
		return
	}
	writeJSON(rw, protocol.RegisterResponse{OK: true})
}

func (s *Server) handleLogin(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req protocol.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "invalid json")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "username and password required")
		return
	}

	hash, err := s.users.PasswordHash(req.Username)
	if err != nil {
		// Indistinguishable from a bad password on purpose.
		if errors.Is(err, userdb.ErrNotFound) {
			writeErr(rw, http.StatusBadRequest, protocol.ErrInvalidCredentials, "invalid credentials")
			return
		}
		s.internal(rw, "load credentials", err)
		return
	}
	if !auth.VerifyPassword(hash, req.Password) {
		writeErr(rw, http.StatusBadRequest, protocol.ErrInvalidCredentials, "invalid credentials")
		return
	}

	st, version, err := s.users.State(req.Username)
	if err != nil {
		s.internal(rw, "load state", err)
		return
	}
	token, err := s.signer.Issue(req.Username, time.Now())
	if err != nil {
		s.internal(rw, "issue token", err)
		return
	}
	writeJSON(rw, protocol.LoginResponse{
		Token:    token,
		Username: req.Username,
		State:    st,
		Version:  version,
	})
}

func (s *Server) handleSave(rw http.ResponseWriter, r *http.Request, claims auth.Claims) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req protocol.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "invalid json")
		return
	}
	if len(req.State) == 0 {
		writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "state required")
		return
	}

	// Validate the payload exactly as received before decoding it.
	var shape any
	if err := json.Unmarshal(req.State, &shape); err != nil {
		writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "invalid state json")
		return
	}
	if err := s.schema.Validate(shape); err != nil {
		writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "state does not match schema")
		return
	}
	var st state.PlayerState
	if err := json.Unmarshal(req.State, &st); err != nil {
		writeErr(rw, http.StatusBadRequest, protocol.ErrBadRequest, "invalid state json")
		return
	}
	st.Normalize()

	version, err := s.users.SaveState(claims.Username, st, req.Version)
	if err != nil {
		switch {
		case errors.Is(err, userdb.ErrVersionConflict):
			writeErr(rw, http.StatusConflict, protocol.ErrConflict, "state version is stale")
		case errors.Is(err, userdb.ErrNotFound):
			writeErr(rw, http.StatusBadRequest, protocol.ErrNotFound, "user not found")
		default:
			s.internal(rw, "save state", err)
		}
		return
	}
	s.saves.Add(1)

	// The save is committed at this point. A leaderboard read failure must not
	// turn the response into an error, or the client would keep its stale
	// version for a write that landed; report success with an empty board.
	board, err := s.leaderboard()
	if err != nil {
		s.log.Printf("compute leaderboard: %v", err)
		board = []leaderboard.Entry{}
	} else if s.feed != nil {
		s.feed.Broadcast(board)
	}
	writeJSON(rw, protocol.SaveResponse{OK: true, Version: version, Leaderboard: board})
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request, claims auth.Claims) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	st, version, err := s.users.State(claims.Username)
	if err != nil {
		if errors.Is(err, userdb.ErrNotFound) {
			writeErr(rw, http.StatusBadRequest, protocol.ErrNotFound, "user not found")
			return
		}
		s.internal(rw, "load state", err)
		return
	}
	writeJSON(rw, protocol.StateResponse{State: st, Username: claims.Username, Version: version})
}

func (s *Server) handleLeaderboard(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	board, err := s.leaderboard()
	if err != nil {
		s.internal(rw, "compute leaderboard", err)
		return
	}
	writeJSON(rw, protocol.LeaderboardResponse{Leaderboard: board})
}

func (s *Server) leaderboard() ([]leaderboard.Entry, error) {
	rows, err := s.users.Currencies()
	if err != nil {
		return nil, err
	}
	board := leaderboard.Compute(rows, s.tune.LeaderboardSize)
	if board == nil {
		board = []leaderboard.Entry{}
	}
	return board, nil
}

func (s *Server) requireToken(next func(http.ResponseWriter, *http.Request, auth.Claims)) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeErr(rw, http.StatusUnauthorized, protocol.ErrUnauthorized, "missing token")
			return
		}
		claims, err := s.signer.Verify(strings.TrimPrefix(header, "Bearer "), time.Now())
		if err != nil {
			writeErr(rw, http.StatusUnauthorized, protocol.ErrUnauthorized, "invalid token")
			return
		}
		next(rw, r, claims)
	}
}

func (s *Server) internal(rw http.ResponseWriter, op string, err error) {
	s.log.Printf("%s: %v", op, err)
	writeErr(rw, http.StatusInternalServerError, protocol.ErrInternal, "server error")
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func writeErr(rw http.ResponseWriter, status int, code, msg string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(protocol.ErrorResponse{Error: msg, Code: code})
}
