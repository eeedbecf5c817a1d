package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"draw-new/internal/app"
	"draw-new/internal/ws"
	"draw-new/pkg/auth"
	"draw-new/pkg/metrics"
)

// Pinger reports backing-store readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Hub     *ws.Hub
	Users   UserStore
	Rooms   RoomStore
	History HistoryReader
	DB      Pinger
	JWT     *auth.JWT
}

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, d Deps) http.Handler {
	mw := NewMiddleware(cfg, d.JWT, logger)
	authAPI := &AuthAPI{Users: d.Users, JWT: d.JWT, TTL: cfg.TokenTTL, Log: logger}
	roomsAPI := &RoomsAPI{Rooms: d.Rooms, History: d.History, Limit: cfg.HistoryLimit, Log: logger}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.Ping(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", metrics.Handler())

	// WebSocket endpoint (authenticates via ?token=)
	mux.Handle("GET /ws", mw.Limit(http.HandlerFunc(d.Hub.ServeWS)))

	// Auth endpoints
	mux.Handle("POST /api/auth/signup", mw.Limit(http.HandlerFunc(authAPI.Signup)))
	mux.Handle("POST /api/auth/signin", mw.Limit(http.HandlerFunc(authAPI.Signin)))
	mux.Handle("GET /api/auth/me", mw.Auth(http.HandlerFunc(authAPI.Me)))

	// Room directory + history
	mux.Handle("POST /api/rooms", mw.Limit(mw.Auth(http.HandlerFunc(roomsAPI.Create))))
	mux.Handle("GET /api/rooms/{slug}", http.HandlerFunc(roomsAPI.Get))
	mux.Handle("GET /api/rooms/{id}/chats", http.HandlerFunc(roomsAPI.History))
	mux.Handle("GET /chats/{id}", http.HandlerFunc(roomsAPI.History))

	return mw.Wrap(mux)
}
