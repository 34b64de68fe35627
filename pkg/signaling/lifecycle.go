package signaling

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Lifecycle coordinates the side effects of a connection entering or leaving
// a room: registry updates, peer notifications, presence mirroring, and
// empty-room teardown. It is the only component that mutates the registries,
// and its mutex serializes join/leave/disconnect end to end so a concurrent
// operation on another connection can never split a binding from its room
// entry.
type Lifecycle struct {
	mu       sync.Mutex
	conns    *ConnRegistry
	rooms    *RoomRegistry
	presence PresenceStore
	logger   *log.Logger
}

func NewLifecycle(conns *ConnRegistry, rooms *RoomRegistry, presence PresenceStore, logger *log.Logger) *Lifecycle {
	if presence == nil {
		presence = NewNopPresence()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Lifecycle{conns: conns, rooms: rooms, presence: presence, logger: logger}
}

// Join moves c into the room, leaving any previous room first. The joining
// client gets a joined-room frame listing the peers already present; those
// peers get user-joined. A connection already holding the same userId in the
// room is evicted and told why.
func (l *Lifecycle) Join(c *Client, roomID, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.conns.Lookup(c); ok {
		l.leave(c)
	}

	displaced := l.rooms.AddParticipant(roomID, userID, c)
	if displaced != nil {
		l.conns.Unbind(displaced)
		displaced.sendJSON(errorFrame("replaced by a newer connection"))
		l.logger.Printf("signaling: evicted conn=%s user=%s room=%s", displaced.id, userID, roomID)
	}
	l.conns.Bind(c, userID, roomID)

	others := l.rooms.Others(roomID, userID)
	participants := make([]string, 0, len(others))
	for _, m := range others {
		participants = append(participants, m.UserID)
	}

	c.sendJSON(JoinedMessage{
		Type:         TypeJoinedRoom,
		RoomID:       roomID,
		UserID:       userID,
		Participants: participants,
	})

	l.fanout(others, PresenceMessage{Type: TypeUserJoined, UserID: userID}, TypeUserJoined)

	if err := l.presence.AddPeer(context.Background(), roomID, userID); err != nil {
		l.logger.Printf("presence add: %v", err)
	}
	l.logger.Printf("signaling: join conn=%s user=%s room=%s peers=%d", c.id, userID, roomID, len(others))
}

// Leave removes c from its room and notifies the remaining members. A
// connection without a binding is a no-op, which makes Leave safe to call
// from both an explicit leave-room and the transport close path.
func (l *Lifecycle) Leave(c *Client) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leave(c)
}

// leave is Leave with the lifecycle lock already held; Join reuses it when
// rebinding a connection.
func (l *Lifecycle) leave(c *Client) {
	b, ok := l.conns.Lookup(c)
	if !ok {
		return
	}

	l.rooms.RemoveParticipant(b.RoomID, b.UserID)
	l.conns.Unbind(c)

	l.fanout(l.rooms.Others(b.RoomID, b.UserID), PresenceMessage{Type: TypeUserLeft, UserID: b.UserID}, TypeUserLeft)

	if err := l.presence.RemovePeer(context.Background(), b.RoomID, b.UserID); err != nil {
		l.logger.Printf("presence remove: %v", err)
	}
	l.logger.Printf("signaling: leave conn=%s user=%s room=%s", c.id, b.UserID, b.RoomID)
}

// Disconnect is Leave invoked from the transport's close path.
func (l *Lifecycle) Disconnect(c *Client) {
	l.Leave(c)
}

// fanout marshals one frame and queues it to every member, logging drops.
func (l *Lifecycle) fanout(members []Member, v interface{}, msgType string) {
	data, err := json.Marshal(v)
	if err != nil {
		l.logger.Printf("marshal %s: %v", msgType, err)
		return
	}
	for _, m := range members {
		if !m.Client.trySend(data) {
			l.logger.Printf("send buffer full for conn=%s, dropping %s", m.Client.id, msgType)
		}
	}
}
