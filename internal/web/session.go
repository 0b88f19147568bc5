package web

import (
    "sync"
    "time"

    "github.com/jaminalder/tictactoe/internal/flow"
)

// sessionIdleTTL bounds how long an untouched session is kept.
const sessionIdleTTL = 12 * time.Hour

type session struct {
    flow *flow.Machine
    user string
    seen time.Time
}

// sessions keys flow state by player cookie. Only flow-changing requests
// create a session; reads report the start screen for unknown players.
type sessions struct {
    mu    sync.Mutex
    start flow.State
    ttl   time.Duration
    now   func() time.Time
    swept time.Time
    byID  map[string]*session
}

func newSessions(start flow.State) *sessions {
    return &sessions{
        start: start,
        ttl:   sessionIdleTTL,
        now:   time.Now,
        byID:  make(map[string]*session),
    }
}

// with runs fn on the player's session, creating it on first use or after
// it went idle.
func (ss *sessions) with(playerID string, fn func(*session) error) error {
    ss.mu.Lock()
    defer ss.mu.Unlock()
    now := ss.now()
    ss.sweepLocked(now)
    s, ok := ss.byID[playerID]
    if !ok || ss.expired(s, now) {
        s = &session{flow: flow.New(ss.start)}
        ss.byID[playerID] = s
    }
    s.seen = now
    return fn(s)
}

func (ss *sessions) expired(s *session, now time.Time) bool {
    return now.Sub(s.seen) > ss.ttl
}

// sweepLocked drops idle sessions, at most once per quarter ttl.
func (ss *sessions) sweepLocked(now time.Time) {
    if now.Sub(ss.swept) < ss.ttl/4 {
        return
    }
    ss.swept = now
    for id, s := range ss.byID {
        if ss.expired(s, now) {
            delete(ss.byID, id)
        }
    }
}

func (ss *sessions) count() int {
    ss.mu.Lock()
    defer ss.mu.Unlock()
    return len(ss.byID)
}

type sessionView struct {
    State    string `json:"state"`
    User     string `json:"user,omitempty"`
    Mode     string `json:"mode,omitempty"`
    Accounts bool   `json:"accounts"`
}

func (ss *sessions) view(playerID string, accounts bool) sessionView {
    ss.mu.Lock()
    defer ss.mu.Unlock()
    v := sessionView{State: ss.start.String(), Accounts: accounts}
    if s, ok := ss.byID[playerID]; ok && !ss.expired(s, ss.now()) {
        v.State = s.flow.State().String()
        v.User = s.user
        v.Mode = s.flow.Mode()
    }
    return v
}
