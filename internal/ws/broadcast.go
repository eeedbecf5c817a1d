package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"draw-new/internal/store"
	"draw-new/pkg/metrics"
)

var (
	// ErrNotJoined rejects a publish into a room the connection has not joined.
	ErrNotJoined = errors.New("not joined to room")
	// ErrPersist means the event log refused the event; it was not broadcast.
	ErrPersist = errors.New("persist event")
)

// EventLog is the durable log events are appended to before fan-out.
type EventLog interface {
	Append(ctx context.Context, ev store.Event) (store.Event, error)
}

// Broadcaster runs the publish path: authorize, persist, fan out.
type Broadcaster struct {
	reg     *Registry
	events  EventLog
	timeout time.Duration
	locks   roomLocks
	log     *slog.Logger
}

func NewBroadcaster(reg *Registry, events EventLog, persistTimeout time.Duration, log *slog.Logger) *Broadcaster {
	if persistTimeout <= 0 {
		persistTimeout = 5 * time.Second
	}
	return &Broadcaster{
		reg:     reg,
		events:  events,
		timeout: persistTimeout,
		locks:   roomLocks{m: map[string]*roomLock{}},
		log:     log,
	}
}

// Publish records message in roomID's log as authored by c and then enqueues
// it to every current member of the room, c included. Nothing is delivered
// unless the append succeeded. Publishes to one room are persisted and fanned
// out in the order they take the room lock.
func (b *Broadcaster) Publish(ctx context.Context, c *Conn, roomID, message string) error {
	unlock := b.locks.lock(roomID)
	defer unlock()

	if !b.reg.IsMember(roomID, c.ID()) {
		return fmt.Errorf("%w: %s", ErrNotJoined, roomID)
	}

	// the write outlives a publisher that hangs up mid-append
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()
	ev, err := b.events.Append(pctx, store.Event{RoomID: roomID, UserID: c.UserID(), Message: message})
	if err != nil {
		metrics.AppendFailures.Inc()
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	frame, err := encodeChat(roomID, message)
	if err != nil {
		return err
	}

	delivered := 0
	for _, m := range b.reg.Members(roomID) {
		switch err := m.Enqueue(frame); {
		case err == nil:
			delivered++
		case errors.Is(err, ErrQueueFull):
			metrics.OverflowKicks.Inc()
			m.log.Warn("ws.overflow", "room", roomID)
		}
	}
	metrics.Deliveries.Add(float64(delivered))
	b.log.Debug("ws.publish", "room", roomID, "seq", ev.ID, "author", c.UserID(), "delivered", delivered)
	return nil
}

// roomLocks is a refcounted mutex per room; entries go away with their last holder.
type roomLocks struct {
	mu sync.Mutex
	m  map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func (l *roomLocks) lock(room string) (unlock func()) {
	l.mu.Lock()
	rl := l.m[room]
	if rl == nil {
		rl = &roomLock{}
		l.m[room] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.m, room)
		}
		l.mu.Unlock()
	}
}
