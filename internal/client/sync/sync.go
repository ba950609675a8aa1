// Package sync drives state reconciliation between the local session and the
// authoritative server copy. It is a three-state machine:
//
//	OFFLINE        no valid session token; local copy is the source of truth
//	AUTHENTICATED  token held; local and server copies may diverge
//	SYNCING        a push or pull is in flight
//
// Login pulls the server copy and it wins wholesale. Saves push the local
// copy wholesale, guarded by a monotonic version: a stale version gets
// E_CONFLICT and the coordinator re-fetches the current version and retries
// once. Auto-sync is fire-and-forget; manual save surfaces its error.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"blockcoder.app/internal/client/session"
	"blockcoder.app/internal/game/state"
	"blockcoder.app/internal/leaderboard"
	"blockcoder.app/internal/protocol"
)

type Status int

const (
	StatusOffline Status = iota
	StatusAuthenticated
	StatusSyncing
)

func (s Status) String() string {
	switch s {
	case StatusOffline:
		return "OFFLINE"
	case StatusAuthenticated:
		return "AUTHENTICATED"
	case StatusSyncing:
		return "SYNCING"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

var ErrNotAuthenticated = errors.New("not authenticated")

// APIError is a non-2xx response from the server.
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("http %d (%s)", e.HTTPStatus, e.Code)
}

// IsCode reports whether err is an APIError carrying the given wire code.
func IsCode(err error, code string) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == code
}

type Coordinator struct {
	base   string
	client *http.Client
	sess   *session.Session
	log    *log.Logger

	chancePermille int
	roll           func() int // returns [0,1000); swappable in tests

	mu        gosync.Mutex
	status    Status
	token     string
	username  string
	sessionID string // rotates on login/logout; stale in-flight responses are dropped
	version   int64  // version of the server copy we last read
	board     []leaderboard.Entry
}

func New(base string, sess *session.Session, chancePermille int, logger *log.Logger) *Coordinator {
	return &Coordinator{
		base:           base,
		client:         &http.Client{Timeout: 10 * time.Second},
		sess:           sess,
		log:            logger,
		chancePermille: chancePermille,
		roll:           func() int { return rand.Intn(1000) },
		status:         StatusOffline,
		sessionID:      uuid.NewString(),
	}
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Coordinator) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// LatestLeaderboard returns the last board seen on any successful sync.
func (c *Coordinator) LatestLeaderboard() []leaderboard.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]leaderboard.Entry(nil), c.board...)
}

// Register creates an account. It does not log in.
func (c *Coordinator) Register(ctx context.Context, username, password string) error {
	var resp protocol.RegisterResponse
	return c.do(ctx, http.MethodPost, "/api/register",
		protocol.RegisterRequest{Username: username, Password: password}, &resp, "")
}

// Login authenticates and adopts the server copy wholesale; any unsynced
// local progress is discarded.
func (c *Coordinator) Login(ctx context.Context, username, password string) error {
	var resp protocol.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/login",
		protocol.LoginRequest{Username: username, Password: password}, &resp, "")
	if err != nil {
		return err
	}

	c.sess.Replace(resp.State)

	c.mu.Lock()
	c.token = resp.Token
	c.username = resp.Username
	c.version = resp.Version
	c.sessionID = uuid.NewString()
	c.status = StatusAuthenticated
	c.mu.Unlock()
	return nil
}

// Logout discards the session token. Local state is retained and keeps
// evolving offline. A sync still in flight is not aborted, but its response
// will be dropped because the session id has rotated.
func (c *Coordinator) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.username = ""
	c.version = 0
	c.sessionID = uuid.NewString()
	c.status = StatusOffline
}

// Save is the manual save: it pushes the current local state and surfaces
// success or failure to the caller.
func (c *Coordinator) Save(ctx context.Context) error {
	return c.push(ctx)
}

// MaybeAutoSync rolls the per-tick auto-sync chance and, on a hit, pushes in
// the background. Failures are swallowed: the next successful sync carries
// the latest local state anyway.
func (c *Coordinator) MaybeAutoSync(ctx context.Context) {
	c.mu.Lock()
	authed := c.token != ""
	c.mu.Unlock()
	if !authed || c.roll() >= c.chancePermille {
		return
	}
	go func() { _ = c.push(ctx) }()
}

// RunInterval fires a best-effort push at a fixed period until ctx is done,
// independently of the per-tick chance.
func (c *Coordinator) RunInterval(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.mu.Lock()
			authed := c.token != ""
			c.mu.Unlock()
			if authed {
				_ = c.push(ctx)
			}
		}
	}
}

// FetchState pulls the authoritative copy without adopting it.
func (c *Coordinator) FetchState(ctx context.Context) (state.PlayerState, int64, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return state.PlayerState{}, 0, ErrNotAuthenticated
	}
	var resp protocol.StateResponse
	if err := c.do(ctx, http.MethodGet, "/api/state", nil, &resp, token); err != nil {
		return state.PlayerState{}, 0, err
	}
	return resp.State, resp.Version, nil
}

// Leaderboard fetches the public board.
func (c *Coordinator) Leaderboard(ctx context.Context) ([]leaderboard.Entry, error) {
	var resp protocol.LeaderboardResponse
	if err := c.do(ctx, http.MethodGet, "/api/leaderboard", nil, &resp, ""); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.board = resp.Leaderboard
	c.mu.Unlock()
	return resp.Leaderboard, nil
}

func (c *Coordinator) push(ctx context.Context) error {
	c.mu.Lock()
	if c.token == "" {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	token := c.token
	sid := c.sessionID
	version := c.version
	if c.status == StatusAuthenticated {
		c.status = StatusSyncing
	}
	c.mu.Unlock()

	// The snapshot is not atomic with later local mutations; a concurrent
	// change simply rides along on the next push.
	resp, err := c.pushOnce(ctx, token, c.sess.State(), version)

	if IsCode(err, protocol.ErrConflict) {
		// Another session saved meanwhile. Adopt the current version and
		// retry once with our local state; the overwrite is now explicit
		// rather than silent.
		var fetched protocol.StateResponse
		if ferr := c.do(ctx, http.MethodGet, "/api/state", nil, &fetched, token); ferr == nil {
			resp, err = c.pushOnce(ctx, token, c.sess.State(), fetched.Version)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != sid {
		// Logged out or re-logged-in while we were in flight: this response
		// no longer belongs to anyone.
		return nil
	}
	if c.status == StatusSyncing {
		c.status = StatusAuthenticated
	}
	if err != nil {
		var ae *APIError
		if errors.As(err, &ae) && ae.HTTPStatus == http.StatusUnauthorized {
			// Expired or revoked token: drop to OFFLINE, keep local state.
			c.token = ""
			c.username = ""
			c.version = 0
			c.sessionID = uuid.NewString()
			c.status = StatusOffline
		}
		return err
	}
	c.version = resp.Version
	c.board = resp.Leaderboard
	return nil
}

func (c *Coordinator) pushOnce(ctx context.Context, token string, st state.PlayerState, version int64) (protocol.SaveResponse, error) {
	blob, err := json.Marshal(st)
	if err != nil {
		return protocol.SaveResponse{}, err
	}
	var resp protocol.SaveResponse
	err = c.do(ctx, http.MethodPost, "/api/save",
		protocol.SaveRequest{State: blob, Version: version}, &resp, token)
	return resp, err
}

func (c *Coordinator) do(ctx context.Context, method, path string, body, out any, token string) error {
	var rd io.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(blob)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		var e protocol.ErrorResponse
		_ = json.NewDecoder(res.Body).Decode(&e)
		return &APIError{HTTPStatus: res.StatusCode, Code: e.Code, Message: e.Error}
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
	}
	return nil
}
