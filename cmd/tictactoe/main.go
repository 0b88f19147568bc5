package main

import (
    "context"
    "errors"
    "net"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    "golang.org/x/sync/errgroup"

    "github.com/jaminalder/tictactoe/internal/account"
    "github.com/jaminalder/tictactoe/internal/app"
    "github.com/jaminalder/tictactoe/internal/config"
    "github.com/jaminalder/tictactoe/internal/web"
)

const GracefulShutdownTimeout = 10 * time.Second

func main() {
    cfg, err := config.Load(os.Args[1:])
    if err != nil {
        log.Fatal().Err(err).Msg("config")
    }
    zerolog.SetGlobalLevel(cfg.LogLevel)
    if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
        log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
    }

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    if err := run(ctx, cfg); err != nil {
        log.Fatal().Err(err).Msg("exiting")
    }
}

func run(ctx context.Context, cfg config.Config) error {
    svc := app.NewService()
    svc.SetBotDelay(cfg.BotDelay)

    opts := []web.Option{web.WithHeartbeat(cfg.Heartbeat)}
    if cfg.AccountsDB != "" {
        store, err := account.Open(ctx, cfg.AccountsDB)
        if err != nil {
            return err
        }
        defer store.Close()
        opts = append(opts, web.WithAccounts(store))
    }

    ln, err := net.Listen("tcp", cfg.Addr)
    if err != nil {
        return err
    }
    log.Info().Str("addr", ln.Addr().String()).Bool("accounts", cfg.AccountsDB != "").Msg("listening")
    return serve(ctx, ln, web.NewServer(svc, opts...))
}

// serve runs an HTTP server on ln until ctx ends, then shuts it down.
// Requests inherit ctx so open event streams end with it.
func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
    srv := &http.Server{
        Handler:           h,
        ReadHeaderTimeout: 5 * time.Second,
        BaseContext:       func(net.Listener) context.Context { return ctx },
    }

    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error {
        if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
            return err
        }
        return nil
    })
    g.Go(func() error {
        <-gctx.Done()
        log.Info().Msg("got quit signal...")
        shutdownCtx, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
        defer cancel()
        return srv.Shutdown(shutdownCtx)
    })
    return g.Wait()
}
