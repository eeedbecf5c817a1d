package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draw-new/internal/app"
)

const rectangle = `{"x1":0,"y1":0,"x2":10,"y2":10,"tool":"Rectangle"}`

func chatFrame(room, msg string) []byte {
	b, _ := json.Marshal(map[string]string{"type": TypeChat, "roomId": room, "message": msg})
	return b
}

func newTestRouter(log *fakeLog) (*Registry, *Router) {
	reg := NewRegistry()
	return reg, NewRouter(reg, NewBroadcaster(reg, log, time.Second, app.Discard()))
}

func decode(t *testing.T, b []byte) outboundFrame {
	t.Helper()
	var f outboundFrame
	require.NoError(t, json.Unmarshal(b, &f))
	return f
}

func TestPublishFansOutToRoomIncludingAuthor(t *testing.T) {
	log := &fakeLog{}
	reg, rt := newTestRouter(log)
	c1 := newTestConn(t, reg, "user-1", 8)
	c2 := newTestConn(t, reg, "user-2", 8)
	join(t, rt, c1, "room-1")
	join(t, rt, c2, "room-1")

	require.NoError(t, rt.Dispatch(context.Background(), c1, chatFrame("room-1", rectangle)))

	for _, c := range []*Conn{c1, c2} {
		got := drain(c)
		require.Len(t, got, 1, "conn %d", c.ID())
		assert.Equal(t, outboundFrame{Type: "chat", RoomID: "room-1", Message: rectangle}, decode(t, got[0]))
	}

	require.Equal(t, 1, log.count())
	assert.Equal(t, "room-1", log.events[0].RoomID)
	assert.Equal(t, "user-1", log.events[0].UserID)
	assert.Equal(t, rectangle, log.events[0].Message)
}

func TestPublishNotJoinedIsDropped(t *testing.T) {
	log := &fakeLog{}
	reg, rt := newTestRouter(log)
	c1 := newTestConn(t, reg, "user-1", 8)
	c3 := newTestConn(t, reg, "user-3", 8)
	join(t, rt, c1, "room-1")
	join(t, rt, c3, "room-2")

	err := rt.Dispatch(context.Background(), c3, chatFrame("room-1", rectangle))
	assert.ErrorIs(t, err, ErrNotJoined)

	assert.Empty(t, drain(c1))
	assert.Empty(t, drain(c3))
	assert.Zero(t, log.count())
	_, ok := reg.Find(c3.ID())
	assert.True(t, ok, "connection stays registered")
}

func TestPublishPersistFailureSuppressesBroadcast(t *testing.T) {
	log := &fakeLog{fail: errStoreDown}
	reg, rt := newTestRouter(log)
	c1 := newTestConn(t, reg, "user-1", 8)
	c2 := newTestConn(t, reg, "user-2", 8)
	join(t, rt, c1, "room-1")
	join(t, rt, c2, "room-1")

	err := rt.Dispatch(context.Background(), c1, chatFrame("room-1", rectangle))
	assert.ErrorIs(t, err, ErrPersist)
	assert.ErrorIs(t, err, errStoreDown)

	assert.Empty(t, drain(c1))
	assert.Empty(t, drain(c2))
	select {
	case <-c1.Done():
		t.Fatal("publisher connection was closed")
	default:
	}
}

func TestPublishIsolatedByRoom(t *testing.T) {
	log := &fakeLog{}
	reg, rt := newTestRouter(log)
	a := newTestConn(t, reg, "ua", 8)
	b := newTestConn(t, reg, "ub", 8)
	join(t, rt, a, "A")
	join(t, rt, b, "B")

	require.NoError(t, rt.Dispatch(context.Background(), a, chatFrame("A", "shape")))
	assert.Len(t, drain(a), 1)
	assert.Empty(t, drain(b))
}

func TestPublishFanOutCompleteness(t *testing.T) {
	log := &fakeLog{}
	reg, rt := newTestRouter(log)
	const n = 25
	conns := make([]*Conn, n)
	for i := range conns {
		conns[i] = newTestConn(t, reg, fmt.Sprintf("u%d", i), 4)
		join(t, rt, conns[i], "R")
	}

	require.NoError(t, rt.Dispatch(context.Background(), conns[3], chatFrame("R", "payload")))

	var first []byte
	for _, c := range conns {
		got := drain(c)
		require.Len(t, got, 1)
		if first == nil {
			first = got[0]
		}
		assert.Equal(t, first, got[0])
	}
}

func TestPublishAfterDisconnect(t *testing.T) {
	log := &fakeLog{}
	reg, rt := newTestRouter(log)
	c1 := newTestConn(t, reg, "u1", 8)
	c2 := newTestConn(t, reg, "u2", 8)
	join(t, rt, c1, "room-1")
	join(t, rt, c2, "room-1")

	reg.Unregister(c2.ID())
	assert.NotContains(t, reg.Members("room-1"), c2)

	require.NoError(t, rt.Dispatch(context.Background(), c1, chatFrame("room-1", "s")))
	assert.Len(t, drain(c1), 1)
	assert.Empty(t, drain(c2))
}

func TestLeaveStopsDelivery(t *testing.T) {
	log := &fakeLog{}
	reg, rt := newTestRouter(log)
	c1 := newTestConn(t, reg, "u1", 8)
	c2 := newTestConn(t, reg, "u2", 8)
	join(t, rt, c1, "r")
	join(t, rt, c2, "r")

	require.NoError(t, rt.Dispatch(context.Background(), c2, []byte(`{"type":"leave_room","roomId":"r"}`)))
	require.NoError(t, rt.Dispatch(context.Background(), c1, chatFrame("r", "s")))
	assert.Empty(t, drain(c2))

	err := rt.Dispatch(context.Background(), c2, chatFrame("r", "s"))
	assert.ErrorIs(t, err, ErrNotJoined)
}

func TestSlowConsumerIsKickedOthersServed(t *testing.T) {
	log := &fakeLog{}
	reg, rt := newTestRouter(log)
	fast := newTestConn(t, reg, "fast", 16)
	slow := newTestConn(t, reg, "slow", 1)
	join(t, rt, fast, "r")
	join(t, rt, slow, "r")

	for i := 0; i < 3; i++ {
		require.NoError(t, rt.Dispatch(context.Background(), fast, chatFrame("r", fmt.Sprint(i))))
	}

	assert.Len(t, drain(fast), 3)
	select {
	case <-slow.Done():
		assert.ErrorIs(t, context.Cause(slow.Context()), ErrQueueFull)
	default:
		t.Fatal("slow consumer was not kicked")
	}
}

func TestPublishOrderPerRoom(t *testing.T) {
	log := &fakeLog{}
	reg, rt := newTestRouter(log)
	observer := newTestConn(t, reg, "obs", 1024)
	join(t, rt, observer, "r")

	var pubs []*Conn
	for i := 0; i < 4; i++ {
		c := newTestConn(t, reg, fmt.Sprintf("p%d", i), 1024)
		join(t, rt, c, "r")
		pubs = append(pubs, c)
	}

	var wg sync.WaitGroup
	for _, p := range pubs {
		wg.Add(1)
		go func(p *Conn) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = rt.Dispatch(context.Background(), p, chatFrame("r", fmt.Sprintf("%s-%d", p.UserID(), i)))
			}
		}(p)
	}
	wg.Wait()

	got := drain(observer)
	require.Len(t, got, 100)
	log.mu.Lock()
	defer log.mu.Unlock()
	for i, b := range got {
		assert.Equal(t, log.events[i].Message, decode(t, b).Message, "delivery %d out of log order", i)
	}
}

func TestMalformedAndUnknownFramesKeepConnection(t *testing.T) {
	log := &fakeLog{}
	reg, rt := newTestRouter(log)
	c := newTestConn(t, reg, "u", 4)

	assert.ErrorIs(t, rt.Dispatch(context.Background(), c, []byte(`{nope`)), ErrMalformedFrame)
	assert.ErrorIs(t, rt.Dispatch(context.Background(), c, []byte(`{"type":"erase","roomId":"r"}`)), ErrUnknownFrame)
	assert.ErrorIs(t, rt.Dispatch(context.Background(), c, []byte(`{"type":"join_room"}`)), ErrMalformedFrame)

	_, ok := reg.Find(c.ID())
	assert.True(t, ok)
	assert.Zero(t, reg.RoomCount())
}

func TestRoomLocksReleased(t *testing.T) {
	var l roomLocks
	l.m = map[string]*roomLock{}
	unlock := l.lock("a")
	done := make(chan struct{})
	go func() {
		u := l.lock("a")
		u()
		close(done)
	}()
	unlock()
	<-done

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.m)
}
