package web

import (
    "context"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/rs/zerolog/log"

    "github.com/jaminalder/tictactoe/internal/account"
    "github.com/jaminalder/tictactoe/internal/app"
    "github.com/jaminalder/tictactoe/internal/flow"
)

// Accounts registers and authenticates local users.
type Accounts interface {
    Register(ctx context.Context, username, password string) (account.User, error)
    Authenticate(ctx context.Context, username, password string) (account.User, error)
}

type Option func(*handlers)

// WithAccounts enables signup and login; sessions then start at the login screen.
func WithAccounts(a Accounts) Option {
    return func(h *handlers) { h.accounts = a }
}

// WithHeartbeat sets the keep-alive interval of event streams.
func WithHeartbeat(d time.Duration) Option {
    return func(h *handlers) {
        if d > 0 {
            h.heartbeat = d
        }
    }
}

// NewServer wires routes and returns an http.Handler. It installs the JSON
// game renderer on s so subscribers receive the same view as responses.
func NewServer(s *app.Service, opts ...Option) http.Handler {
    h := &handlers{svc: s, heartbeat: 15 * time.Second}
    for _, opt := range opts {
        opt(h)
    }
    start := flow.ModeSelect
    if h.accounts != nil {
        start = flow.Login
    }
    h.sessions = newSessions(start)
    s.SetRenderer(renderGame)

    r := chi.NewRouter()
    r.Use(middleware.RequestID)
    r.Use(middleware.RealIP)
    r.Use(requestLogger)
    r.Use(middleware.Recoverer)

    r.Get("/session", h.session)
    if h.accounts != nil {
        r.Post("/signup", h.signup)
        r.Post("/login", h.login)
        r.Post("/logout", h.logout)
    }
    r.Post("/game", h.create)
    r.Route("/game/{id}", func(r chi.Router) {
        r.Get("/", h.view)
        r.Post("/join", h.join)
        r.Post("/play", h.play)
        r.Post("/reset", h.reset)
        r.Get("/events", h.events)
        r.Get("/ws", h.ws)
    })
    return r
}

func requestLogger(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
        start := time.Now()
        defer func() {
            log.Info().
                Str("method", r.Method).
                Str("path", r.URL.Path).
                Int("status", ww.Status()).
                Int("bytes", ww.BytesWritten()).
                Dur("duration", time.Since(start)).
                Str("request_id", middleware.GetReqID(r.Context())).
                Msg("request")
        }()
        next.ServeHTTP(ww, r)
    })
}
