package protocol

import (
	"encoding/json"

	"blockcoder.app/internal/game/state"
	"blockcoder.app/internal/leaderboard"
)

// POST /api/register
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	OK bool `json:"ok"`
}

// POST /api/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string            `json:"token"`
	Username string            `json:"username"`
	State    state.PlayerState `json:"state"`
	Version  int64             `json:"version"`
}

// POST /api/save (bearer token).
// State is kept raw so the server can schema-validate the exact payload it
// received before decoding. Version must equal the version the client read;
// a stale version is rejected with E_CONFLICT.
type SaveRequest struct {
	State   json.RawMessage `json:"state"`
	Version int64           `json:"version"`
}

type SaveResponse struct {
	OK          bool                `json:"ok"`
	Version     int64               `json:"version"`
	Leaderboard []leaderboard.Entry `json:"leaderboard"`
}

// GET /api/state (bearer token).
type StateResponse struct {
	State    state.PlayerState `json:"state"`
	Username string            `json:"username"`
	Version  int64             `json:"version"`
}

// GET /api/leaderboard (public).
type LeaderboardResponse struct {
	Leaderboard []leaderboard.Entry `json:"leaderboard"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Websocket feed frame, pushed after every accepted save.
const TypeLeaderboard = "LEADERBOARD"

type LeaderboardFrame struct {
	Type        string              `json:"type"`
	Leaderboard []leaderboard.Entry `json:"leaderboard"`
}

func EncodeLeaderboardFrame(entries []leaderboard.Entry) ([]byte, error) {
	return json.Marshal(LeaderboardFrame{Type: TypeLeaderboard, Leaderboard: entries})
}
