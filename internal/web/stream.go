package web

import (
    "context"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/gorilla/websocket"
    "github.com/rs/zerolog/log"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
    ReadBufferSize:  1024,
    WriteBufferSize: 1024,
    CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    gs, ok := h.svc.Get(id)
    if !ok {
        writeError(w, http.StatusNotFound, "Game not found")
        return
    }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("X-Accel-Buffering", "no")
    // In tests or non-EventSource requests, just acknowledge headers and return
    if r.Header.Get("Accept") != "text/event-stream" {
        w.WriteHeader(http.StatusOK)
        return
    }
    flusher, ok := w.(http.Flusher)
    if !ok {
        w.WriteHeader(http.StatusOK)
        return
    }
    ctx := r.Context()
    ch, unsub, err := h.svc.Subscribe(ctx, id)
    if err != nil {
        h.fail(w, r, err)
        return
    }
    defer unsub()
    // re-read after subscribing so no update falls between snapshot and stream
    if cur, ok := h.svc.Get(id); ok {
        gs = cur
    }
    ticker := time.NewTicker(h.heartbeat)
    defer ticker.Stop()

    w.WriteHeader(http.StatusOK)
    writeEvent(w, renderGame(*gs))
    flusher.Flush()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            _, _ = io.WriteString(w, ": ping\n\n")
            flusher.Flush()
        case b, ok := <-ch:
            if !ok {
                return
            }
            writeEvent(w, b)
            flusher.Flush()
        }
    }
}

func writeEvent(w io.Writer, payload []byte) {
    _, _ = fmt.Fprintf(w, "event: board\n")
    _, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
}

// ws streams the same board payloads as events over a WebSocket. Client
// messages are ignored; a read error ends the stream.
func (h *handlers) ws(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    gs, ok := h.svc.Get(id)
    if !ok {
        writeError(w, http.StatusNotFound, "Game not found")
        return
    }
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        log.Debug().Err(err).Str("game", id).Msg("websocket upgrade")
        return
    }
    defer conn.Close()

    // the read loop below cancels too, once the client goes away
    ctx, cancel := context.WithCancel(r.Context())
    defer cancel()
    ch, unsub, err := h.svc.Subscribe(ctx, id)
    if err != nil {
        return
    }
    defer unsub()
    if cur, ok := h.svc.Get(id); ok {
        gs = cur
    }

    go func() {
        defer cancel()
        for {
            if _, _, err := conn.ReadMessage(); err != nil {
                return
            }
        }
    }()

    write := func(mt int, b []byte) error {
        _ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
        return conn.WriteMessage(mt, b)
    }
    if err := write(websocket.TextMessage, renderGame(*gs)); err != nil {
        return
    }
    ticker := time.NewTicker(h.heartbeat)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            if err := write(websocket.PingMessage, nil); err != nil {
                return
            }
        case b, ok := <-ch:
            if !ok {
                return
            }
            if err := write(websocket.TextMessage, b); err != nil {
                return
            }
        }
    }
}
