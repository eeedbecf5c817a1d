package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"draw-new/pkg/metrics"
)

// Verifier resolves a bearer token to a user id.
type Verifier interface {
	Verify(token string) (string, error)
}

type Options struct {
	QueueSize      int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	PersistTimeout time.Duration
	OriginPatterns []string
}

func (o *Options) defaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 20 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if len(o.OriginPatterns) == 0 {
		o.OriginPatterns = []string{"*"}
	}
}

// Hub is the broadcast engine: it authenticates websocket sessions and runs
// each one through register → serve → unregister.
type Hub struct {
	log    *slog.Logger
	auth   Verifier
	reg    *Registry
	router *Router
	opts   Options

	// base ends every connection on shutdown
	base   context.Context
	stop   context.CancelCauseFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewHub wires the registry, publish path and router around events.
func NewHub(logger *slog.Logger, auth Verifier, events EventLog, opts Options) *Hub {
	opts.defaults()
	reg := NewRegistry()
	bc := NewBroadcaster(reg, events, opts.PersistTimeout, logger)
	base, stop := context.WithCancelCause(context.Background())
	return &Hub{
		log:    logger,
		auth:   auth,
		reg:    reg,
		router: NewRouter(reg, bc),
		opts:   opts,
		base:   base,
		stop:   stop,
	}
}

func (h *Hub) Registry() *Registry { return h.reg }

// Run blocks until ctx is done, then closes every live connection and waits
// for their cleanup to finish.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.stop(ErrShutdown)
	h.wg.Wait()
	h.log.Info("ws.hub.stopped")
}

// ServeWS handles /ws?token=<jwt>. Unauthenticated requests get a 401 and are
// never upgraded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.track() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.wg.Done()

	uid, err := h.auth.Verify(bearerToken(r))
	if err != nil {
		metrics.Handshakes.WithLabelValues("rejected").Inc()
		h.log.Warn("ws.auth", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := Accept(w, r, h.opts.OriginPatterns)
	if err != nil {
		metrics.Handshakes.WithLabelValues("error").Inc()
		h.log.Error("ws.accept", "err", err)
		return
	}
	conn.SetReadLimit(h.opts.ReadLimit)
	metrics.Handshakes.WithLabelValues("ok").Inc()
	h.serve(NewConn(r.Context(), conn, uid, h.opts.QueueSize, h.log))
}

// serve runs one connection to completion. Unregister always finishes before
// serve returns, so no room keeps a dead member.
func (h *Hub) serve(c *Conn) {
	stop := context.AfterFunc(h.base, func() { c.Kick(ErrShutdown) })
	defer stop()

	h.reg.Register(c)
	h.observe()
	c.log.Info("ws.open")

	defer func() {
		left := h.reg.Unregister(c.ID())
		h.observe()
		_ = c.Close()
		c.log.Info("ws.close", "rooms", left, "cause", context.Cause(c.Context()))
	}()

	go c.WriteLoop(h.opts.PingInterval, h.opts.WriteTimeout)

	for {
		raw, err := c.Read()
		if err != nil {
			c.log.Debug("ws.read.end", "err", err)
			return
		}
		_ = h.router.Dispatch(c.Context(), c, raw)
	}
}

// track counts a session towards shutdown's wait, or refuses it once closed.
func (h *Hub) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	return true
}

func (h *Hub) observe() {
	metrics.Connections.Set(float64(h.reg.Len()))
	metrics.Rooms.Set(float64(h.reg.RoomCount()))
}

// bearerToken reads ?token= (browsers can't set WS headers) and falls back to
// the Authorization header.
func bearerToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if b := r.Header.Get("Authorization"); strings.HasPrefix(b, "Bearer ") {
		return strings.TrimPrefix(b, "Bearer ")
	}
	return ""
}
