package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"draw-new/internal/app"
	"draw-new/internal/store"
)

// fakeWire is an in-memory transport. Frames pushed to in are read by the
// Conn; frames the Conn writes show up on written.
type fakeWire struct {
	in      chan []byte
	written chan []byte
	block   chan struct{} // when non-nil, Write waits on it

	closeOnce sync.Once
	closed    chan struct{}
	mu        sync.Mutex
	code      websocket.StatusCode
}

func newFakeWire() *fakeWire {
	return &fakeWire{
		in:      make(chan []byte, 64),
		written: make(chan []byte, 1024),
		closed:  make(chan struct{}),
	}
}

func (w *fakeWire) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case b, ok := <-w.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.MessageText, b, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case <-w.closed:
		return 0, nil, io.EOF
	}
}

func (w *fakeWire) Write(ctx context.Context, _ websocket.MessageType, p []byte) error {
	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			return ctx.Err()
		case <-w.closed:
			return net.ErrClosed
		}
	}
	select {
	case w.written <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.closed:
		return net.ErrClosed
	}
}

func (w *fakeWire) Ping(context.Context) error { return nil }

func (w *fakeWire) Close(code websocket.StatusCode, _ string) error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.code = code
		w.mu.Unlock()
		close(w.closed)
	})
	return nil
}

func (w *fakeWire) closeCode() websocket.StatusCode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.code
}

// fakeLog records appended events; fail makes every append error.
type fakeLog struct {
	mu     sync.Mutex
	events []store.Event
	fail   error
}

func (l *fakeLog) Append(_ context.Context, ev store.Event) (store.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return store.Event{}, l.fail
	}
	ev.ID = int64(len(l.events) + 1)
	ev.CreatedAt = time.Now()
	l.events = append(l.events, ev)
	return ev, nil
}

func (l *fakeLog) ListByRoom(_ context.Context, roomID string, _ int) ([]store.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []store.Event
	for _, ev := range l.events {
		if ev.RoomID == roomID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (l *fakeLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

var errStoreDown = errors.New("store unavailable")

type staticVerifier map[string]string

func (v staticVerifier) Verify(tok string) (string, error) {
	if uid, ok := v[tok]; ok {
		return uid, nil
	}
	return "", errors.New("bad token")
}

// newTestConn builds a registered Conn whose queue the test drains directly.
func newTestConn(t *testing.T, reg *Registry, userID string, queue int) *Conn {
	t.Helper()
	c := NewConn(context.Background(), newFakeWire(), userID, queue, app.Discard())
	reg.Register(c)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// drain returns everything currently queued for c.
func drain(c *Conn) [][]byte {
	var out [][]byte
	for {
		select {
		case b := <-c.out:
			out = append(out, b)
		default:
			return out
		}
	}
}

func join(t *testing.T, rt *Router, c *Conn, room string) {
	t.Helper()
	if err := rt.Dispatch(context.Background(), c, []byte(`{"type":"join_room","roomId":"`+room+`"}`)); err != nil {
		t.Fatalf("join %s: %v", room, err)
	}
}
