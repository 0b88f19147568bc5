package web

import (
    "errors"
    "fmt"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/rs/zerolog/log"

    "github.com/jaminalder/tictactoe/internal/account"
    "github.com/jaminalder/tictactoe/internal/app"
    "github.com/jaminalder/tictactoe/internal/domain"
    "github.com/jaminalder/tictactoe/internal/flow"
)

type handlers struct {
    svc       *app.Service
    accounts  Accounts
    sessions  *sessions
    heartbeat time.Duration
}

// statusFor maps service and domain errors to HTTP responses.
func statusFor(err error) (int, string) {
    switch {
    case errors.Is(err, app.ErrNotFound):
        return http.StatusNotFound, "Game not found"
    case errors.Is(err, app.ErrNotYourTurn):
        return http.StatusConflict, "Not your turn"
    case errors.Is(err, app.ErrNotAPlayer):
        return http.StatusForbidden, "You are a spectator"
    case errors.Is(err, app.ErrInvalidMode):
        return http.StatusBadRequest, "Unknown mode"
    case errors.Is(err, app.ErrInvalidSide):
        return http.StatusBadRequest, "Side must be X or O"
    case errors.Is(err, domain.ErrOccupied):
        return http.StatusConflict, "Cell is occupied"
    case errors.Is(err, domain.ErrOutOfBounds):
        return http.StatusBadRequest, "Out of bounds"
    case errors.Is(err, domain.ErrGameOver):
        return http.StatusConflict, "Game is over"
    case errors.Is(err, account.ErrUsernameTaken):
        return http.StatusConflict, err.Error()
    case errors.Is(err, account.ErrInvalidUsername), errors.Is(err, account.ErrWeakPassword),
        errors.Is(err, account.ErrPasswordTooLong):
        return http.StatusBadRequest, err.Error()
    case errors.Is(err, account.ErrInvalidCredentials):
        return http.StatusUnauthorized, err.Error()
    case errors.Is(err, flow.ErrInvalidTransition):
        return http.StatusConflict, err.Error()
    }
    return http.StatusInternalServerError, "Internal error"
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
    status, msg := statusFor(err)
    if status == http.StatusInternalServerError {
        log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
    }
    writeError(w, status, msg)
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
    pid := ensurePlayerCookie(w, r)
    writeJSON(w, http.StatusOK, h.sessions.view(pid, h.accounts != nil))
}

type credentials struct {
    Username string `json:"username"`
    Password string `json:"password"`
}

func (h *handlers) signup(w http.ResponseWriter, r *http.Request) {
    pid := ensurePlayerCookie(w, r)
    var req credentials
    if err := decodeJSON(r, &req); err != nil {
        writeError(w, http.StatusBadRequest, "Invalid request body")
        return
    }
    err := h.sessions.with(pid, func(s *session) error {
        if st := s.flow.State(); st != flow.Login && st != flow.Signup {
            return fmt.Errorf("%w: signup from %s", flow.ErrInvalidTransition, st)
        }
        return nil
    })
    if err != nil {
        h.fail(w, r, err)
        return
    }
    u, err := h.accounts.Register(r.Context(), req.Username, req.Password)
    if err != nil {
        h.fail(w, r, err)
        return
    }
    err = h.sessions.with(pid, func(s *session) error {
        if s.flow.State() == flow.Login {
            if err := s.flow.Fire(flow.ShowSignup); err != nil {
                return err
            }
        }
        return s.flow.Fire(flow.SignedUp)
    })
    if err != nil {
        h.fail(w, r, err)
        return
    }
    writeJSON(w, http.StatusCreated, map[string]string{"username": u.Username})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
    pid := ensurePlayerCookie(w, r)
    var req credentials
    if err := decodeJSON(r, &req); err != nil {
        writeError(w, http.StatusBadRequest, "Invalid request body")
        return
    }
    err := h.sessions.with(pid, func(s *session) error {
        if st := s.flow.State(); st != flow.Signup && !s.flow.Can(flow.LoggedIn) {
            return fmt.Errorf("%w: login from %s", flow.ErrInvalidTransition, st)
        }
        return nil
    })
    if err != nil {
        h.fail(w, r, err)
        return
    }
    u, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
    if err != nil {
        h.fail(w, r, err)
        return
    }
    // the screen only changes once the credentials check out
    err = h.sessions.with(pid, func(s *session) error {
        if s.flow.State() == flow.Signup {
            if err := s.flow.Fire(flow.ShowLogin); err != nil {
                return err
            }
        }
        if err := s.flow.Fire(flow.LoggedIn); err != nil {
            return err
        }
        s.user = u.Username
        return nil
    })
    if err != nil {
        h.fail(w, r, err)
        return
    }
    log.Info().Str("user", u.Username).Msg("login")
    writeJSON(w, http.StatusOK, h.sessions.view(pid, true))
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
    pid := ensurePlayerCookie(w, r)
    err := h.sessions.with(pid, func(s *session) error {
        if err := s.flow.Fire(flow.Logout); err != nil {
            return err
        }
        s.user = ""
        return nil
    })
    if err != nil {
        h.fail(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, h.sessions.view(pid, true))
}

type createRequest struct {
    Mode  string `json:"mode"`
    Side  string `json:"side"`
    XName string `json:"x_name"`
    OName string `json:"o_name"`
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
    pid := ensurePlayerCookie(w, r)
    var req createRequest
    if err := decodeJSON(r, &req); err != nil {
        writeError(w, http.StatusBadRequest, "Invalid request body")
        return
    }
    mode, err := app.ParseMode(req.Mode)
    if err != nil {
        h.fail(w, r, err)
        return
    }
    opts := app.NewGame{Mode: mode, XName: req.XName, OName: req.OName}
    if req.Side != "" {
        side, ok := domain.ParseCell(req.Side)
        if !ok {
            h.fail(w, r, app.ErrInvalidSide)
            return
        }
        opts.HumanSide = side
    }

    choose := flow.ChooseLocal
    if mode == app.ModeBot {
        choose = flow.ChooseBot
    }
    err = h.sessions.with(pid, func(s *session) error {
        switch s.flow.State() {
        case flow.Login, flow.Signup:
            return errLoginRequired
        case flow.Playing, flow.NameEntry:
            if err := s.flow.Fire(flow.LeaveGame); err != nil {
                return err
            }
        }
        if err := s.flow.Fire(choose); err != nil {
            return err
        }
        if s.user != "" {
            fillHumanName(&opts, s.user)
        }
        return s.flow.Fire(flow.NamesEntered)
    })
    if errors.Is(err, errLoginRequired) {
        writeError(w, http.StatusUnauthorized, "Login required")
        return
    }
    if err != nil {
        h.fail(w, r, err)
        return
    }

    gs, err := h.svc.CreateGame(opts)
    if err != nil {
        h.fail(w, r, err)
        return
    }
    side, gs, err := h.svc.Join(gs.ID, pid)
    if err != nil {
        h.fail(w, r, err)
        return
    }
    w.Header().Set("Location", "/game/"+gs.ID)
    writeJSON(w, http.StatusCreated, seatedView{Side: side.String(), Game: newGameView(*gs)})
}

var errLoginRequired = errors.New("login required")

// fillHumanName defaults the human's display name to the account name.
func fillHumanName(opts *app.NewGame, user string) {
    if opts.Mode == app.ModeBot && opts.HumanSide == domain.O {
        if opts.OName == "" {
            opts.OName = user
        }
        return
    }
    if opts.XName == "" {
        opts.XName = user
    }
}

func (h *handlers) view(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    // ensure cookie and auto-claim seat
    pid := ensurePlayerCookie(w, r)
    side, gs, err := h.svc.Join(id, pid)
    if err != nil {
        h.fail(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, seatedView{Side: side.String(), Game: newGameView(*gs)})
}

func (h *handlers) join(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    pid := ensurePlayerCookie(w, r)
    side, gs, err := h.svc.Join(id, pid)
    if err != nil {
        h.fail(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, seatedView{Side: side.String(), Game: newGameView(*gs)})
}

type playRequest struct {
    Cell *int `json:"cell"`
    R    *int `json:"r"`
    C    *int `json:"c"`
}

func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    pid := ensurePlayerCookie(w, r)
    var req playRequest
    if err := decodeJSON(r, &req); err != nil {
        writeError(w, http.StatusBadRequest, "Invalid request body")
        return
    }
    var (
        gs  *app.GameState
        err error
    )
    switch {
    case req.Cell != nil:
        gs, err = h.svc.PlayCell(id, pid, *req.Cell)
    case req.R != nil && req.C != nil:
        gs, err = h.svc.Play(id, pid, *req.R, *req.C)
    default:
        writeError(w, http.StatusBadRequest, "Provide cell or r and c")
        return
    }
    if err != nil {
        h.fail(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, newGameView(*gs))
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    pid := ensurePlayerCookie(w, r)
    gs, err := h.svc.Reset(id, pid)
    if err != nil {
        h.fail(w, r, err)
        return
    }
    writeJSON(w, http.StatusOK, newGameView(*gs))
}
