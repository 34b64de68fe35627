package signaling

import (
	"sort"
	"sync"
)

// Binding is a connection's current room membership.
type Binding struct {
	UserID string
	RoomID string
}

// ConnRegistry tracks the (userId, roomId) binding of each live connection.
// A connection has at most one binding at a time; all rebinding goes through
// the Lifecycle so the RoomRegistry stays consistent.
type ConnRegistry struct {
	mu       sync.RWMutex
	bindings map[*Client]Binding
}

func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{bindings: make(map[*Client]Binding)}
}

// Bind records or overwrites the binding for c. Room membership is the
// caller's responsibility.
func (r *ConnRegistry) Bind(c *Client, userID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[c] = Binding{UserID: userID, RoomID: roomID}
}

// Lookup returns the current binding for c, if any.
func (r *ConnRegistry) Lookup(c *Client) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[c]
	return b, ok
}

// Unbind removes the binding for c. Idempotent.
func (r *ConnRegistry) Unbind(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bindings, c)
}

// Member pairs a participant's userId with its connection.
type Member struct {
	UserID string
	Client *Client
}

// RoomRegistry maps roomId -> userId -> connection. Rooms are created lazily
// on the first add and deleted in the same critical section that removes the
// last participant, so an empty room is never observable.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Client
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]map[string]*Client)}
}

// AddParticipant inserts the connection under userID, creating the room if
// needed. If another connection already held that userID it is displaced and
// returned so the caller can notify it.
func (r *RoomRegistry) AddParticipant(roomID, userID string, c *Client) (displaced *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]*Client)
		r.rooms[roomID] = room
	}
	if prev, ok := room[userID]; ok && prev != c {
		displaced = prev
	}
	room[userID] = c
	return displaced
}

// RemoveParticipant removes userID from the room. The room itself is deleted
// when its last participant goes. Idempotent.
func (r *RoomRegistry) RemoveParticipant(roomID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
	}
}

// Participant returns the connection bound to userID in the room, for unicast.
func (r *RoomRegistry) Participant(roomID, userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.rooms[roomID][userID]
	return c, ok
}

// Others returns every member of the room except excludeUserID, sorted by
// userId so fanout order is deterministic.
func (r *RoomRegistry) Others(roomID, excludeUserID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[roomID]
	members := make([]Member, 0, len(room))
	for id, c := range room {
		if id == excludeUserID {
			continue
		}
		members = append(members, Member{UserID: id, Client: c})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members
}

// RoomIDs returns the ids of all live rooms.
func (r *RoomRegistry) RoomIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RoomCount returns the number of live rooms.
func (r *RoomRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
