package feed

import "sync"

// Registry owns the set of live rooms. Rooms are created lazily on first join
// and removed synchronously once their membership drops to zero.
type Registry struct {
	mu        sync.Mutex
	rooms     map[string]*Room
	retention int
	snapshot  int
}

// NewRegistry creates an empty registry. retention caps the in-memory comment
// log per room (0 = unbounded); snapshot bounds the recent comments included
// in ROOM_DATA.
func NewRegistry(retention, snapshot int) *Registry {
	return &Registry{
		rooms:     make(map[string]*Room),
		retention: retention,
		snapshot:  snapshot,
	}
}

// GetOrCreate returns the live room for the given ID, creating it if needed.
// The second return reports whether a new room was created. Two concurrent
// callers always observe the same instance for one RoomID.
func (g *Registry) GetOrCreate(roomID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if room, ok := g.rooms[roomID]; ok {
		return room, false
	}
	room := newRoom(roomID, g.retention, g.snapshot)
	g.rooms[roomID] = room
	return room, true
}

// Get returns the live room for the given ID, if any.
func (g *Registry) Get(roomID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[roomID]
	return room, ok
}

// RemoveIfEmpty removes the room iff its membership set is empty. Idempotent;
// a no-op when the room is gone already or still has members. The removed
// room is marked gone so a racing join cannot resurrect it.
func (g *Registry) RemoveIfEmpty(roomID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[roomID]
	if !ok {
		return false
	}
	if !room.markGoneIfEmpty() {
		return false
	}
	delete(g.rooms, roomID)
	return true
}

// Rooms returns a snapshot of the live rooms.
func (g *Registry) Rooms() []*Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}
