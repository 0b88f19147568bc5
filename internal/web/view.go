package web

import (
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"
    "github.com/samber/lo"

    "github.com/jaminalder/tictactoe/internal/app"
    "github.com/jaminalder/tictactoe/internal/domain"
)

type playerView struct {
    Name string `json:"name"`
    Bot  bool   `json:"bot,omitempty"`
}

// gameView is the JSON shape of a game shared by responses and streams.
type gameView struct {
    ID         string     `json:"id"`
    Mode       string     `json:"mode"`
    Board      []string   `json:"board"`
    Turn       string     `json:"turn"`
    Over       bool       `json:"over"`
    Outcome    string     `json:"outcome"`
    Winner     string     `json:"winner,omitempty"`
    Moves      int        `json:"moves"`
    EmptyCells []int      `json:"empty_cells"`
    X          playerView `json:"x"`
    O          playerView `json:"o"`
    Updated    time.Time  `json:"updated"`
}

func newGameView(gs app.GameState) gameView {
    g := gs.Game
    return gameView{
        ID:   gs.ID,
        Mode: string(gs.Mode),
        Board: lo.Map(g.Board[:], func(c domain.Cell, _ int) string {
            return c.String()
        }),
        Turn:       g.Turn.String(),
        Over:       g.Over,
        Outcome:    g.Outcome().String(),
        Winner:     g.Winner.String(),
        Moves:      g.Moves,
        EmptyCells: domain.EmptyCells(g.Board),
        X:          playerView{Name: gs.XName, Bot: gs.X == app.BotPlayerID},
        O:          playerView{Name: gs.OName, Bot: gs.O == app.BotPlayerID},
        Updated:    gs.Updated,
    }
}

// renderGame is the broadcast renderer installed on the service.
func renderGame(gs app.GameState) []byte {
    b, err := json.Marshal(newGameView(gs))
    if err != nil {
        log.Error().Err(err).Str("game", gs.ID).Msg("render game")
        return nil
    }
    return b
}

type seatedView struct {
    Side string   `json:"side"`
    Game gameView `json:"game"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    if err := json.NewEncoder(w).Encode(v); err != nil {
        log.Warn().Err(err).Msg("encode response")
    }
}

func writeError(w http.ResponseWriter, status int, msg string) {
    writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON fills v from the request body; an empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
    if r.Body == nil {
        return nil
    }
    dec := json.NewDecoder(r.Body)
    dec.DisallowUnknownFields()
    if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
        return err
    }
    return nil
}

// Helper to set cookie
func ensurePlayerCookie(w http.ResponseWriter, r *http.Request) string {
    if c, err := r.Cookie("player_id"); err == nil && c.Value != "" {
        return c.Value
    }
    v := uuid.NewString()
    http.SetCookie(w, &http.Cookie{Name: "player_id", Value: v, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
    return v
}
