package app

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/jaminalder/tictactoe/internal/bot"
    "github.com/jaminalder/tictactoe/internal/domain"
)

// Errors exposed by the service layer.
var (
    ErrNotFound    = errors.New("game not found")
    ErrNotYourTurn = errors.New("not your turn")
    ErrNotAPlayer  = errors.New("not a player")
    ErrInvalidMode = errors.New("invalid mode")
    ErrInvalidSide = errors.New("invalid side")
)

// Mode selects who plays the second mark.
type Mode string

const (
    // ModeLocal seats one player on both marks (hot-seat).
    ModeLocal Mode = "local"
    // ModeBot seats the bot on the mark the human did not pick.
    ModeBot Mode = "bot"
)

// ParseMode accepts "local", "bot" or "" (local).
func ParseMode(s string) (Mode, error) {
    switch Mode(s) {
    case "", ModeLocal:
        return ModeLocal, nil
    case ModeBot:
        return ModeBot, nil
    }
    return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// BotPlayerID occupies the bot's seat. Human players can never claim it.
const BotPlayerID = "bot"

// NewGame carries the choices made before a game starts.
type NewGame struct {
    Mode      Mode
    HumanSide domain.Cell // bot mode only; Empty means X
    XName     string
    OName     string
}

// GameState is the in-memory state tracked per game.
type GameState struct {
    ID      string
    Mode    Mode
    Game    domain.Game
    X       string
    O       string
    XName   string
    OName   string
    Created time.Time
    Updated time.Time

    gen uint64 // bumped on reset; stale bot replies are dropped
}

// Seat returns the player id holding side.
func (gs *GameState) Seat(side domain.Cell) string {
    switch side {
    case domain.X:
        return gs.X
    case domain.O:
        return gs.O
    }
    return ""
}

func (gs *GameState) setSeat(side domain.Cell, playerID string) {
    switch side {
    case domain.X:
        gs.X = playerID
    case domain.O:
        gs.O = playerID
    }
}

// BotSide returns the bot's mark, or Empty outside bot mode.
func (gs *GameState) BotSide() domain.Cell {
    if gs.Mode != ModeBot {
        return domain.Empty
    }
    if gs.X == BotPlayerID {
        return domain.X
    }
    return domain.O
}

type subscriber struct {
    ch        chan []byte
    closeOnce sync.Once
}

func (s *subscriber) close() { s.closeOnce.Do(func() { close(s.ch) }) }

// Service manages games and subscribers.
type Service struct {
    mu       sync.Mutex
    games    map[string]*GameState
    subs     map[string]map[*subscriber]struct{}
    render   func(GameState) []byte
    botDelay time.Duration
    choose   func(b domain.Board, botMark, humanMark domain.Cell) (int, bool)
}

// NewService creates a service with a default renderer (encodes nothing useful).
func NewService() *Service { return NewServiceWithRenderer(func(gs GameState) []byte { return nil }) }

// NewServiceWithRenderer allows injecting a renderer for broadcast payloads.
func NewServiceWithRenderer(renderer func(GameState) []byte) *Service {
    if renderer == nil {
        renderer = func(gs GameState) []byte { return nil }
    }
    return &Service{
        games:  make(map[string]*GameState),
        subs:   make(map[string]map[*subscriber]struct{}),
        render: renderer,
        choose: bot.ChooseMove,
    }
}

// SetRenderer replaces the broadcast renderer function.
func (s *Service) SetRenderer(renderer func(GameState) []byte) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if renderer == nil {
        s.render = func(gs GameState) []byte { return nil }
        return
    }
    s.render = renderer
}

// SetBotDelay sets how long the bot waits before replying. Zero makes the
// reply part of the human move that triggered it.
func (s *Service) SetBotDelay(d time.Duration) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if d < 0 {
        d = 0
    }
    s.botDelay = d
}

// CreateGame creates and registers a new game. In bot mode the bot opens
// when it holds X.
func (s *Service) CreateGame(opts NewGame) (*GameState, error) {
    mode, err := ParseMode(string(opts.Mode))
    if err != nil {
        return nil, err
    }
    now := time.Now()
    gs := &GameState{
        ID:      uuid.NewString(),
        Mode:    mode,
        Game:    domain.New(),
        XName:   opts.XName,
        OName:   opts.OName,
        Created: now,
        Updated: now,
    }
    if mode == ModeBot {
        human := opts.HumanSide
        if human == domain.Empty {
            human = domain.X
        }
        if human != domain.X && human != domain.O {
            return nil, ErrInvalidSide
        }
        gs.setSeat(human.Opponent(), BotPlayerID)
        if human == domain.X && gs.OName == "" {
            gs.OName = "Bot"
        } else if human == domain.O && gs.XName == "" {
            gs.XName = "Bot"
        }
    }
    if gs.XName == "" {
        gs.XName = "Player X"
    }
    if gs.OName == "" {
        gs.OName = "Player O"
    }

    s.mu.Lock()
    s.games[gs.ID] = gs
    cp := *gs
    reply := s.botReplyLocked(gs)
    s.mu.Unlock()
    if reply {
        cp, _ = s.botMove(gs.ID, cp.gen)
    }

    log.Info().Str("game", cp.ID).Str("mode", string(cp.Mode)).Msg("game created")
    return &cp, nil
}

// Get returns a copy of the game state if present.
func (s *Service) Get(id string) (*GameState, bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    gs, ok := s.games[id]
    if !ok {
        return nil, false
    }
    cp := *gs
    return &cp, true
}

// Join assigns a seat to the player if available; returns Empty for spectators.
// In local mode the first player takes both marks and X is reported.
func (s *Service) Join(id, playerID string) (domain.Cell, *GameState, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    gs, ok := s.games[id]
    if !ok {
        return domain.Empty, nil, ErrNotFound
    }
    side := domain.Empty
    if playerID != BotPlayerID && playerID != "" {
        switch gs.Mode {
        case ModeLocal:
            if gs.X == "" || gs.X == playerID {
                gs.X, gs.O = playerID, playerID
                side = domain.X
            }
        case ModeBot:
            human := gs.BotSide().Opponent()
            if seat := gs.Seat(human); seat == "" || seat == playerID {
                gs.setSeat(human, playerID)
                side = human
            }
        }
    }
    gs.Updated = time.Now()
    cp := *gs
    return side, &cp, nil
}

// Play validates seat and turn, applies a move at row r, column c, updates
// timestamps, and broadcasts.
func (s *Service) Play(id, playerID string, r, c int) (*GameState, error) {
    return s.play(id, playerID, func(g *domain.Game) error { return g.Play(r, c) })
}

// PlayCell is Play addressed by cell index (0..8, row-major).
func (s *Service) PlayCell(id, playerID string, cell int) (*GameState, error) {
    return s.play(id, playerID, func(g *domain.Game) error { return g.PlayAt(cell) })
}

func (s *Service) play(id, playerID string, move func(*domain.Game) error) (*GameState, error) {
    s.mu.Lock()
    gs, ok := s.games[id]
    if !ok {
        s.mu.Unlock()
        return nil, ErrNotFound
    }
    // Validate player is seated
    if playerID == "" || playerID == BotPlayerID || (gs.X != playerID && gs.O != playerID) {
        s.mu.Unlock()
        return nil, ErrNotAPlayer
    }
    if gs.Game.Over {
        s.mu.Unlock()
        return nil, domain.ErrGameOver
    }
    // Validate turn
    if gs.Seat(gs.Game.Turn) != playerID {
        s.mu.Unlock()
        return nil, ErrNotYourTurn
    }
    if err := move(&gs.Game); err != nil {
        s.mu.Unlock()
        return nil, err
    }
    gs.Updated = time.Now()
    s.logFinishedLocked(gs)
    return s.finishLocked(gs)
}

// Reset starts a new game on the same seats. Any pending bot reply for the
// previous board is discarded.
func (s *Service) Reset(id, playerID string) (*GameState, error) {
    s.mu.Lock()
    gs, ok := s.games[id]
    if !ok {
        s.mu.Unlock()
        return nil, ErrNotFound
    }
    if playerID == "" || playerID == BotPlayerID || (gs.X != playerID && gs.O != playerID) {
        s.mu.Unlock()
        return nil, ErrNotAPlayer
    }
    gs.gen++
    gs.Game.Reset()
    gs.Updated = time.Now()
    log.Debug().Str("game", id).Msg("game reset")
    return s.finishLocked(gs)
}

// finishLocked publishes gs after a human action and releases s.mu. When the
// bot answers right away, the reply is searched without the lock and its
// result is published instead.
func (s *Service) finishLocked(gs *GameState) (*GameState, error) {
    if !s.botReplyLocked(gs) {
        cp := s.publishLocked(gs)
        s.mu.Unlock()
        return &cp, nil
    }
    id, gen := gs.ID, gs.gen
    s.mu.Unlock()
    cp, ok := s.botMove(id, gen)
    if !ok {
        return nil, ErrNotFound
    }
    return &cp, nil
}

// botReplyLocked reports whether the bot must answer right away. With a
// delay configured, the reply is scheduled instead and false is returned.
func (s *Service) botReplyLocked(gs *GameState) bool {
    if !s.botToMoveLocked(gs) {
        return false
    }
    if s.botDelay <= 0 {
        return true
    }
    id, gen := gs.ID, gs.gen
    time.AfterFunc(s.botDelay, func() { s.botMove(id, gen) })
    return false
}

func (s *Service) botToMoveLocked(gs *GameState) bool {
    return gs.Mode == ModeBot && !gs.Game.Over && gs.Seat(gs.Game.Turn) == BotPlayerID
}

// botMove searches for the bot's reply without holding s.mu, then applies
// and publishes it unless the game was reset or moved on meanwhile. It
// returns the game as it stands afterwards; ok is false once the game is gone.
func (s *Service) botMove(id string, gen uint64) (GameState, bool) {
    s.mu.Lock()
    gs, ok := s.games[id]
    if !ok {
        s.mu.Unlock()
        return GameState{}, false
    }
    if gs.gen != gen || !s.botToMoveLocked(gs) {
        cp := *gs
        s.mu.Unlock()
        return cp, true
    }
    board, side := gs.Game.Board, gs.Game.Turn
    s.mu.Unlock()

    cell, found := s.choose(board, side, side.Opponent())

    s.mu.Lock()
    defer s.mu.Unlock()
    gs, ok = s.games[id]
    if !ok {
        return GameState{}, false
    }
    if gs.gen != gen || gs.Game.Board != board || gs.Game.Turn != side {
        return *gs, true
    }
    if found {
        if err := gs.Game.PlayAt(cell); err != nil {
            log.Error().Err(err).Str("game", id).Int("cell", cell).Msg("bot move rejected")
        } else {
            gs.Updated = time.Now()
            log.Debug().Str("game", id).Str("side", side.String()).Int("cell", cell).Msg("bot move")
            s.logFinishedLocked(gs)
        }
    }
    return s.publishLocked(gs), true
}

func (s *Service) logFinishedLocked(gs *GameState) {
    if !gs.Game.Over {
        return
    }
    log.Info().
        Str("game", gs.ID).
        Str("outcome", gs.Game.Outcome().String()).
        Int("moves", gs.Game.Moves).
        Msg("game finished")
}

// Subscribe registers a subscriber for a game. Returns a channel and an unsubscribe func.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan []byte, func(), error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.games[id]; !ok {
        return nil, func() {}, ErrNotFound
    }
    set := s.subs[id]
    if set == nil {
        set = make(map[*subscriber]struct{})
        s.subs[id] = set
    }
    sub := &subscriber{ch: make(chan []byte, 1)}
    set[sub] = struct{}{}

    unsubOnce := &sync.Once{}
    unsub := func() {
        unsubOnce.Do(func() {
            s.mu.Lock()
            defer s.mu.Unlock()
            if set, ok := s.subs[id]; ok {
                delete(set, sub)
                if len(set) == 0 {
                    delete(s.subs, id)
                }
            }
            sub.close()
        })
    }
    go func() {
        <-ctx.Done()
        unsub()
    }()
    return sub.ch, unsub, nil
}

// publishLocked renders gs and delivers it to every subscriber without
// blocking; slow subscribers are closed and removed.
func (s *Service) publishLocked(gs *GameState) GameState {
    cp := *gs
    set := s.subs[gs.ID]
    if len(set) == 0 {
        return cp
    }
    payload := s.render(cp)
    dropped := 0
    for sub := range set {
        select {
        case sub.ch <- payload:
        default:
            delete(set, sub)
            sub.close()
            dropped++
        }
    }
    if dropped > 0 {
        log.Debug().Str("game", gs.ID).Int("dropped", dropped).Msg("dropped slow subscribers")
    }
    return cp
}
