package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

var (
	// ErrQueueFull is the close cause for a connection that could not keep up.
	ErrQueueFull = errors.New("outbound queue full")
	ErrConnGone  = errors.New("connection closed")
	ErrShutdown  = errors.New("server shutting down")
)

// wire is the part of *websocket.Conn a Conn needs.
type wire interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

var connSeq atomic.Uint64

// Conn is one authenticated session. userID is fixed at construction.
type Conn struct {
	id     uint64
	userID string
	ws     wire
	out    chan []byte
	log    *slog.Logger

	// io bounds transport calls. Kicking cancels ctx only, so the close
	// frame can still be written after a kick.
	io        context.Context
	ctx       context.Context
	cancel    context.CancelCauseFunc
	closeOnce sync.Once
}

// Accept upgrades HTTP to websocket
func Accept(w http.ResponseWriter, r *http.Request, origins []string) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  origins,
		CompressionMode: websocket.CompressionDisabled,
	})
}

// NewConn wraps a transport for userID with an outbound queue of queueSize.
// The Conn lives until parent is done or it is kicked; either way the
// transport is closed with a status matching the cause.
func NewConn(parent context.Context, ws wire, userID string, queueSize int, log *slog.Logger) *Conn {
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancelCause(parent)
	id := connSeq.Add(1)
	c := &Conn{
		id:     id,
		userID: userID,
		ws:     ws,
		out:    make(chan []byte, queueSize),
		log:    log.With("conn", id, "user", userID),
		io:     parent,
		ctx:    ctx,
		cancel: cancel,
	}
	context.AfterFunc(ctx, func() { _ = c.Close() })
	return c
}

func (c *Conn) ID() uint64               { return c.id }
func (c *Conn) UserID() string           { return c.userID }
func (c *Conn) Context() context.Context { return c.ctx }

// Done is closed once the connection has been kicked or its parent ended.
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }

// Read blocks until the next text/binary message or until the connection ends.
func (c *Conn) Read() ([]byte, error) {
	for {
		typ, data, err := c.ws.Read(c.io)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, nil
		}
	}
}

// Enqueue hands b to the writer without blocking. A full queue kicks the
// connection instead of waiting on it.
func (c *Conn) Enqueue(b []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnGone
	default:
	}
	select {
	case c.out <- b:
		return nil
	default:
		c.Kick(ErrQueueFull)
		return ErrQueueFull
	}
}

// Kick ends the connection with cause without blocking. The transport is
// closed in the background, which in turn unblocks the read loop.
func (c *Conn) Kick(cause error) { c.cancel(cause) }

// WriteLoop sends outbound messages + periodic pings
// Exits when the connection ends or a write fails
func (c *Conn) WriteLoop(ping time.Duration, writeTimeout time.Duration) {
	t := time.NewTicker(ping)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			if err := c.write(b, writeTimeout); err != nil {
				c.Kick(err)
				return
			}
		case <-t.C:
			ctx, cancel := context.WithTimeout(c.io, writeTimeout)
			err := c.ws.Ping(ctx)
			cancel()
			if err != nil {
				c.Kick(err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Conn) write(b []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(c.io, timeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, b)
}

// Close ends the connection and closes the transport with a status matching
// why it ended. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel(ErrConnGone)
		switch cause := context.Cause(c.ctx); {
		case errors.Is(cause, ErrQueueFull):
			err = c.ws.Close(websocket.StatusPolicyViolation, "slow consumer")
		case errors.Is(cause, ErrShutdown):
			err = c.ws.Close(websocket.StatusGoingAway, "shutdown")
		default:
			err = c.ws.Close(websocket.StatusNormalClosure, "bye")
		}
	})
	return err
}
