package ws

import (
	"sort"
	"sync"
)

// Registry owns the live connections and the room index. Both maps are
// guarded by one mutex so that c ∈ members(room) ⇔ room ∈ rooms(c) holds at
// every point another goroutine can observe.
type Registry struct {
	mu    sync.Mutex
	conns map[uint64]*entry
	rooms map[string]map[uint64]*Conn
}

type entry struct {
	conn  *Conn
	rooms map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: map[uint64]*entry{},
		rooms: map[string]map[uint64]*Conn{},
	}
}

// Register adds an authenticated connection. Registering twice is a no-op.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID()]; ok {
		return
	}
	r.conns[c.ID()] = &entry{conn: c, rooms: map[string]struct{}{}}
}

// Unregister removes the connection and its memberships in one step and
// returns the rooms it was in. Unknown ids are ignored.
func (r *Registry) Unregister(id uint64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return nil
	}
	left := make([]string, 0, len(e.rooms))
	for room := range e.rooms {
		r.removeMember(room, id)
		left = append(left, room)
	}
	delete(r.conns, id)
	sort.Strings(left)
	return left
}

func (r *Registry) Find(id uint64) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Join adds the connection to room. It reports whether membership changed;
// re-joining and joining with an unregistered id both return false.
func (r *Registry) Join(room string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	if _, ok := e.rooms[room]; ok {
		return false
	}
	e.rooms[room] = struct{}{}
	members := r.rooms[room]
	if members == nil {
		members = map[uint64]*Conn{}
		r.rooms[room] = members
	}
	members[id] = e.conn
	return true
}

// Leave removes the connection from room, reporting whether it was a member.
func (r *Registry) Leave(room string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	if _, ok := e.rooms[room]; !ok {
		return false
	}
	delete(e.rooms, room)
	r.removeMember(room, id)
	return true
}

// removeMember drops id from room and deletes the room once empty.
// Caller holds r.mu.
func (r *Registry) removeMember(room string, id uint64) {
	members := r.rooms[room]
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Members returns a snapshot of the room's connections.
func (r *Registry) Members(room string) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.rooms[room]
	out := make([]*Conn, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

func (r *Registry) IsMember(room string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[room][id]
	return ok
}

// Rooms returns the rooms a connection has joined, sorted.
func (r *Registry) Rooms(id uint64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.rooms))
	for room := range e.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// All returns every registered connection.
func (r *Registry) All() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.conn)
	}
	return out
}

// Len is the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// RoomCount is the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
