package app

import (
    "context"
    "errors"
    "fmt"
    "testing"
    "time"

    "github.com/jaminalder/tictactoe/internal/bot"
    "github.com/jaminalder/tictactoe/internal/domain"
)

// minimal renderer for tests: encode moves count as bytes
func testRenderer(gs GameState) []byte { return []byte(fmt.Sprintf("moves=%d", gs.Game.Moves)) }

func newLocalGame(t *testing.T, s *Service) *GameState {
    t.Helper()
    gs, err := s.CreateGame(NewGame{Mode: ModeLocal})
    if err != nil {
        t.Fatalf("CreateGame error: %v", err)
    }
    return gs
}

func TestParseMode(t *testing.T) {
    for in, want := range map[string]Mode{"": ModeLocal, "local": ModeLocal, "bot": ModeBot} {
        got, err := ParseMode(in)
        if err != nil || got != want {
            t.Fatalf("ParseMode(%q) = %q, %v", in, got, err)
        }
    }
    if _, err := ParseMode("online"); !errors.Is(err, ErrInvalidMode) {
        t.Fatalf("expected ErrInvalidMode, got %v", err)
    }
}

func TestCreateAndGet(t *testing.T) {
    s := NewServiceWithRenderer(testRenderer)
    gs := newLocalGame(t, s)
    if gs.ID == "" {
        t.Fatalf("expected non-empty game ID")
    }
    if gs.Game.Turn != domain.X || gs.Mode != ModeLocal {
        t.Fatalf("expected local game with X to move, got %+v", gs)
    }
    if gs.XName != "Player X" || gs.OName != "Player O" {
        t.Fatalf("unexpected default names %q/%q", gs.XName, gs.OName)
    }
    if gs.Created.IsZero() || gs.Updated.IsZero() {
        t.Fatalf("expected timestamps to be set")
    }
    got, ok := s.Get(gs.ID)
    if !ok || got.ID != gs.ID {
        t.Fatalf("Get should find created game")
    }
    if _, ok := s.Get("missing"); ok {
        t.Fatalf("Get should miss unknown ids")
    }
}

func TestCreateRejectsBadOptions(t *testing.T) {
    s := NewService()
    if _, err := s.CreateGame(NewGame{Mode: "online"}); !errors.Is(err, ErrInvalidMode) {
        t.Fatalf("expected ErrInvalidMode, got %v", err)
    }
    if _, err := s.CreateGame(NewGame{Mode: ModeBot, HumanSide: domain.Cell(7)}); !errors.Is(err, ErrInvalidSide) {
        t.Fatalf("expected ErrInvalidSide, got %v", err)
    }
}

func TestLocalJoinTakesBothSeats(t *testing.T) {
    s := NewServiceWithRenderer(testRenderer)
    gs := newLocalGame(t, s)

    side, st, err := s.Join(gs.ID, "p1")
    if err != nil || side != domain.X || st.X != "p1" || st.O != "p1" {
        t.Fatalf("p1 should hold both seats, got side=%v state=%+v err=%v", side, st, err)
    }
    side, _, err = s.Join(gs.ID, "p2")
    if err != nil || side != domain.Empty {
        t.Fatalf("p2 should spectate, got %v, err=%v", side, err)
    }
    if _, _, err := s.Join("missing", "p1"); !errors.Is(err, ErrNotFound) {
        t.Fatalf("expected ErrNotFound, got %v", err)
    }

    // the hot-seat player plays both marks
    if _, err := s.PlayCell(gs.ID, "p1", 0); err != nil {
        t.Fatalf("X move: %v", err)
    }
    st, err = s.PlayCell(gs.ID, "p1", 4)
    if err != nil {
        t.Fatalf("O move: %v", err)
    }
    if st.Game.Board[0] != domain.X || st.Game.Board[4] != domain.O || st.Game.Turn != domain.X {
        t.Fatalf("unexpected board after hot-seat moves: %+v", st.Game)
    }
}

func TestPlayEnforcesSeatAndTurn(t *testing.T) {
    s := NewServiceWithRenderer(testRenderer)
    gs, err := s.CreateGame(NewGame{Mode: ModeBot, HumanSide: domain.X})
    if err != nil {
        t.Fatalf("CreateGame: %v", err)
    }
    s.Join(gs.ID, "p1")
    s.Join(gs.ID, "p2") // spectator

    if _, err := s.Play(gs.ID, "p2", 0, 0); !errors.Is(err, ErrNotAPlayer) {
        t.Fatalf("expected ErrNotAPlayer for spectator, got %v", err)
    }
    if _, err := s.Play(gs.ID, BotPlayerID, 0, 0); !errors.Is(err, ErrNotAPlayer) {
        t.Fatalf("expected ErrNotAPlayer for bot id, got %v", err)
    }
    if _, err := s.Play("missing", "p1", 0, 0); !errors.Is(err, ErrNotFound) {
        t.Fatalf("expected ErrNotFound, got %v", err)
    }
    if _, err := s.Play(gs.ID, "p1", 3, 3); !errors.Is(err, domain.ErrOutOfBounds) {
        t.Fatalf("expected ErrOutOfBounds, got %v", err)
    }
}

func TestBotRepliesImmediatelyWithoutDelay(t *testing.T) {
    s := NewServiceWithRenderer(testRenderer)
    gs, _ := s.CreateGame(NewGame{Mode: ModeBot, HumanSide: domain.X, XName: "alice"})
    if gs.OName != "Bot" || gs.O != BotPlayerID {
        t.Fatalf("bot should hold O, got O=%q name=%q", gs.O, gs.OName)
    }
    side, _, _ := s.Join(gs.ID, "p1")
    if side != domain.X {
        t.Fatalf("human should get X, got %v", side)
    }

    st, err := s.PlayCell(gs.ID, "p1", 0)
    if err != nil {
        t.Fatalf("play: %v", err)
    }
    if st.Game.Moves != 2 || st.Game.Turn != domain.X {
        t.Fatalf("expected bot reply in the same call, got moves=%d turn=%v", st.Game.Moves, st.Game.Turn)
    }
    // against a corner opening the only non-losing reply is the centre
    if st.Game.Board[4] != domain.O {
        t.Fatalf("expected bot to take the centre, board=%v", st.Game.Board)
    }
}

func TestBotOpensWhenHoldingX(t *testing.T) {
    s := NewService()
    gs, err := s.CreateGame(NewGame{Mode: ModeBot, HumanSide: domain.O})
    if err != nil {
        t.Fatalf("CreateGame: %v", err)
    }
    if gs.X != BotPlayerID || gs.XName != "Bot" {
        t.Fatalf("bot should hold X, got %+v", gs)
    }
    if gs.Game.Moves != 1 || gs.Game.Board[0] != domain.X || gs.Game.Turn != domain.O {
        t.Fatalf("expected bot opening on cell 0, got %+v", gs.Game)
    }
    side, _, _ := s.Join(gs.ID, "p1")
    if side != domain.O {
        t.Fatalf("human should get O, got %v", side)
    }
}

func TestBotGameNeverLostByBot(t *testing.T) {
    s := NewService()
    gs, _ := s.CreateGame(NewGame{Mode: ModeBot})
    s.Join(gs.ID, "p1")
    for {
        st, _ := s.Get(gs.ID)
        if st.Game.Over {
            if st.Game.Winner == domain.X {
                t.Fatalf("human beat the bot: %v", st.Game.Board)
            }
            return
        }
        cells := domain.EmptyCells(st.Game.Board)
        if _, err := s.PlayCell(gs.ID, "p1", cells[len(cells)-1]); err != nil {
            t.Fatalf("play: %v", err)
        }
    }
}

func TestGameOverBlocksFurtherMoves(t *testing.T) {
    s := NewService()
    gs := newLocalGame(t, s)
    s.Join(gs.ID, "p1")
    for _, c := range []int{0, 3, 1, 4, 2} {
        if _, err := s.PlayCell(gs.ID, "p1", c); err != nil {
            t.Fatalf("play %d: %v", c, err)
        }
    }
    if _, err := s.PlayCell(gs.ID, "p1", 8); !errors.Is(err, domain.ErrGameOver) {
        t.Fatalf("expected ErrGameOver, got %v", err)
    }
}

func TestResetKeepsSeats(t *testing.T) {
    s := NewService()
    gs, _ := s.CreateGame(NewGame{Mode: ModeBot, HumanSide: domain.O})
    s.Join(gs.ID, "p1")
    if _, err := s.PlayCell(gs.ID, "p1", 4); err != nil {
        t.Fatalf("play: %v", err)
    }
    if _, err := s.Reset(gs.ID, "p2"); !errors.Is(err, ErrNotAPlayer) {
        t.Fatalf("expected ErrNotAPlayer, got %v", err)
    }
    st, err := s.Reset(gs.ID, "p1")
    if err != nil {
        t.Fatalf("reset: %v", err)
    }
    if st.O != "p1" || st.X != BotPlayerID {
        t.Fatalf("seats changed on reset: X=%q O=%q", st.X, st.O)
    }
    // bot holds X and opens again
    if st.Game.Moves != 1 || st.Game.Board[0] != domain.X {
        t.Fatalf("expected fresh board with bot opening, got %+v", st.Game)
    }
}

func TestDelayedBotReply(t *testing.T) {
    s := NewServiceWithRenderer(testRenderer)
    s.SetBotDelay(100 * time.Millisecond)
    gs, _ := s.CreateGame(NewGame{Mode: ModeBot})
    s.Join(gs.ID, "p1")

    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    ch, unsub, err := s.Subscribe(ctx, gs.ID)
    if err != nil {
        t.Fatalf("subscribe: %v", err)
    }
    defer unsub()

    st, err := s.PlayCell(gs.ID, "p1", 0)
    if err != nil {
        t.Fatalf("play: %v", err)
    }
    if st.Game.Moves != 1 {
        t.Fatalf("bot should not have replied yet, moves=%d", st.Game.Moves)
    }
    if _, err := s.PlayCell(gs.ID, "p1", 1); !errors.Is(err, ErrNotYourTurn) {
        t.Fatalf("expected ErrNotYourTurn while bot thinks, got %v", err)
    }

    want := []string{"moves=1", "moves=2"}
    for _, w := range want {
        select {
        case b := <-ch:
            if string(b) != w {
                t.Fatalf("expected %q, got %q", w, string(b))
            }
        case <-ctx.Done():
            t.Fatalf("timed out waiting for %q", w)
        }
    }
}

func TestResetDiscardsPendingBotReply(t *testing.T) {
    s := NewService()
    s.SetBotDelay(30 * time.Millisecond)
    gs, _ := s.CreateGame(NewGame{Mode: ModeBot})
    s.Join(gs.ID, "p1")
    if _, err := s.PlayCell(gs.ID, "p1", 0); err != nil {
        t.Fatalf("play: %v", err)
    }
    if _, err := s.Reset(gs.ID, "p1"); err != nil {
        t.Fatalf("reset: %v", err)
    }
    time.Sleep(90 * time.Millisecond)
    st, _ := s.Get(gs.ID)
    if st.Game.Moves != 0 {
        t.Fatalf("stale bot reply applied after reset: %+v", st.Game)
    }
}

func TestBotSearchDoesNotBlockService(t *testing.T) {
    s := NewService()
    started := make(chan struct{})
    release := make(chan struct{})
    s.choose = func(b domain.Board, botMark, humanMark domain.Cell) (int, bool) {
        close(started)
        <-release
        return bot.ChooseMove(b, botMark, humanMark)
    }
    gs, _ := s.CreateGame(NewGame{Mode: ModeBot, HumanSide: domain.X})
    s.Join(gs.ID, "p1")

    type result struct {
        st  *GameState
        err error
    }
    played := make(chan result, 1)
    go func() {
        st, err := s.PlayCell(gs.ID, "p1", 0)
        played <- result{st, err}
    }()
    select {
    case <-started:
    case <-time.After(time.Second):
        t.Fatalf("bot search never started")
    }

    // other requests proceed while the bot is thinking
    done := make(chan struct{})
    go func() {
        defer close(done)
        if st, ok := s.Get(gs.ID); !ok || st.Game.Moves != 1 || st.Game.Turn != domain.O {
            t.Errorf("expected the human move with the bot on turn, got %+v", st)
        }
        if _, err := s.CreateGame(NewGame{Mode: ModeLocal}); err != nil {
            t.Errorf("CreateGame: %v", err)
        }
        if _, err := s.Reset(gs.ID, "p1"); err != nil {
            t.Errorf("reset: %v", err)
        }
    }()
    select {
    case <-done:
    case <-time.After(time.Second):
        close(release)
        t.Fatalf("service blocked during bot search")
    }

    // the reply was searched for the board before the reset, so it is dropped
    close(release)
    res := <-played
    if res.err != nil {
        t.Fatalf("play: %v", res.err)
    }
    if res.st.Game.Moves != 0 {
        t.Fatalf("stale bot reply applied after reset: %+v", res.st.Game)
    }
    if st, _ := s.Get(gs.ID); st.Game.Moves != 0 {
        t.Fatalf("stale bot reply applied after reset: %+v", st.Game)
    }
}

func TestSubscribeAndBroadcast(t *testing.T) {
    s := NewServiceWithRenderer(testRenderer)
    gs := newLocalGame(t, s)
    s.Join(gs.ID, "p1")

    if _, _, err := s.Subscribe(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
        t.Fatalf("expected ErrNotFound, got %v", err)
    }

    ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
    defer cancel()
    ch, unsub, err := s.Subscribe(ctx, gs.ID)
    if err != nil {
        t.Fatalf("subscribe: %v", err)
    }
    defer unsub()

    if _, err := s.Play(gs.ID, "p1", 0, 0); err != nil {
        t.Fatalf("play failed: %v", err)
    }

    select {
    case b, ok := <-ch:
        if !ok {
            t.Fatalf("channel closed unexpectedly")
        }
        if string(b) != "moves=1" {
            t.Fatalf("unexpected broadcast payload: %q", string(b))
        }
    case <-ctx.Done():
        t.Fatalf("timed out waiting for broadcast")
    }
}

func TestDropSlowSubscriber(t *testing.T) {
    s := NewServiceWithRenderer(testRenderer)
    gs := newLocalGame(t, s)
    s.Join(gs.ID, "p1")

    // Slow subscriber: never read
    ctxSlow, cancelSlow := context.WithCancel(context.Background())
    defer cancelSlow()
    slowCh, _, _ := s.Subscribe(ctxSlow, gs.ID)

    ctxFast, cancelFast := context.WithTimeout(context.Background(), time.Second*2)
    defer cancelFast()
    fastCh, unsubFast, _ := s.Subscribe(ctxFast, gs.ID)
    defer unsubFast()

    for i, c := range []int{0, 4} {
        if _, err := s.PlayCell(gs.ID, "p1", c); err != nil {
            t.Fatalf("play%d: %v", i, err)
        }
        select {
        case b := <-fastCh:
            if string(b) != fmt.Sprintf("moves=%d", i+1) {
                t.Fatalf("unexpected payload %q", string(b))
            }
        case <-ctxFast.Done():
            t.Fatalf("fast subscriber did not receive update %d", i+1)
        }
    }

    // the slow one kept the first payload and was then closed
    if b, ok := <-slowCh; !ok || string(b) != "moves=1" {
        t.Fatalf("expected buffered first payload, got %q ok=%v", string(b), ok)
    }
    if _, ok := <-slowCh; ok {
        t.Fatalf("slow subscriber should be closed")
    }
}

func TestUnsubscribeClosesChannel(t *testing.T) {
    s := NewService()
    gs := newLocalGame(t, s)
    ctx, cancel := context.WithCancel(context.Background())
    ch, _, _ := s.Subscribe(ctx, gs.ID)
    cancel()
    select {
    case _, ok := <-ch:
        if ok {
            t.Fatalf("expected closed channel")
        }
    case <-time.After(time.Second):
        t.Fatalf("channel not closed after context cancel")
    }
}
