package runtime

import (
	"chatto/domain"
	"sync"
)

type membership struct {
	conn  *Connection
	rooms map[domain.Room]struct{}
}

// Registry is the in-memory map of live connections and the rooms they are
// subscribed to. One lock guards both directions so that a fan-out snapshot
// never observes a connection half torn down.
type Registry struct {
	mu          sync.RWMutex
	connections map[domain.ConnectionID]*membership
	rooms       map[domain.Room]map[domain.ConnectionID]*Connection
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[domain.ConnectionID]*membership),
		rooms:       make(map[domain.Room]map[domain.ConnectionID]*Connection),
	}
}

// Register adds the connection and its implicit user room.
// It returns false when the connection is already registered.
func (r *Registry) Register(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.connections[conn.ID]; ok {
		return false
	}
	r.connections[conn.ID] = &membership{conn: conn, rooms: make(map[domain.Room]struct{})}
	r.subscribe(conn.ID, domain.UserRoom(conn.User.ID))
	return true
}

// Unregister removes the connection from every room and closes it. When it
// returns, no broadcast can deliver to the connection anymore.
func (r *Registry) Unregister(id domain.ConnectionID) {
	r.mu.Lock()
	m, ok := r.connections[id]
	if ok {
		for room := range m.rooms {
			r.leave(id, room)
		}
		delete(r.connections, id)
	}
	r.mu.Unlock()

	if ok {
		m.conn.Close()
	}
}

// CloseAll closes every live connection without unregistering it. The
// socket handlers then unregister on their own way out.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, m := range r.connections {
		conns = append(conns, m.conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
	return len(conns)
}

// Subscribe returns false when the connection is not registered.
func (r *Registry) Subscribe(id domain.ConnectionID, room domain.Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribe(id, room)
}

// Unsubscribe leaves a conversation room. The user room cannot be left while
// the connection lives.
func (r *Registry) Unsubscribe(id domain.ConnectionID, room domain.Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.connections[id]
	if !ok || room == domain.UserRoom(m.conn.User.ID) {
		return false
	}
	if _, subscribed := m.rooms[room]; !subscribed {
		return false
	}
	r.leave(id, room)
	return true
}

// Reconcile makes the conversation rooms of the connection equal to desired,
// in one critical section. User rooms are left untouched.
func (r *Registry) Reconcile(id domain.ConnectionID, desired []domain.ConversationID) (joined, left []domain.ConversationID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.connections[id]
	if !ok {
		return nil, nil, false
	}

	want := make(map[domain.Room]struct{}, len(desired))
	for _, conversation := range desired {
		want[domain.ConversationRoom(conversation)] = struct{}{}
	}
	for room := range m.rooms {
		if !room.IsConversation() {
			continue
		}
		if _, keep := want[room]; !keep {
			r.leave(id, room)
			left = append(left, room.ConversationID())
		}
	}
	for room := range want {
		if _, already := m.rooms[room]; already {
			continue
		}
		r.subscribe(id, room)
		joined = append(joined, room.ConversationID())
	}
	return joined, left, true
}

// MembersOf returns a snapshot of the connections subscribed to room.
func (r *Registry) MembersOf(room domain.Room) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	if len(members) == 0 {
		return nil
	}
	snapshot := make([]*Connection, 0, len(members))
	for _, conn := range members {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// ConnectionsOf returns the live connections of a user, one per device.
func (r *Registry) ConnectionsOf(user domain.UserID) []*Connection {
	return r.MembersOf(domain.UserRoom(user))
}

func (r *Registry) Get(id domain.ConnectionID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.connections[id]
	if !ok {
		return nil, false
	}
	return m.conn, true
}

// RoomsOf returns the rooms the connection is subscribed to, user room included.
func (r *Registry) RoomsOf(id domain.ConnectionID) []domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.connections[id]
	if !ok {
		return nil
	}
	rooms := make([]domain.Room, 0, len(m.rooms))
	for room := range m.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (r *Registry) IsSubscribed(id domain.ConnectionID, room domain.Room) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.connections[id]
	if !ok {
		return false
	}
	_, subscribed := m.rooms[room]
	return subscribed
}

// Stats returns the number of live connections and non-empty rooms.
func (r *Registry) Stats() (connections, rooms int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections), len(r.rooms)
}

func (r *Registry) subscribe(id domain.ConnectionID, room domain.Room) bool {
	m, ok := r.connections[id]
	if !ok {
		return false
	}
	m.rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[domain.ConnectionID]*Connection)
		r.rooms[room] = members
	}
	members[id] = m.conn
	return true
}

// leave drops empty rooms so the map does not grow with dead conversations.
func (r *Registry) leave(id domain.ConnectionID, room domain.Room) {
	if m, ok := r.connections[id]; ok {
		delete(m.rooms, room)
	}
	if members, ok := r.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}
