package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient builds a Client with no transport; frames queued by the
// lifecycle land in its send channel.
func newTestClient(id string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:     id,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// takeFrame pops the next queued frame and decodes it.
func takeFrame(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.send:
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	default:
		t.Fatalf("no frame queued for conn %s", c.id)
		return nil
	}
}

func requireNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected frame for conn %s: %s", c.id, data)
	default:
	}
}

// recordingPresence captures mirror calls for assertions.
type recordingPresence struct {
	calls []string
}

func (p *recordingPresence) Reset(context.Context) error { return nil }

func (p *recordingPresence) AddPeer(_ context.Context, roomID, userID string) error {
	p.calls = append(p.calls, fmt.Sprintf("add %s %s", roomID, userID))
	return nil
}

func (p *recordingPresence) RemovePeer(_ context.Context, roomID, userID string) error {
	p.calls = append(p.calls, fmt.Sprintf("remove %s %s", roomID, userID))
	return nil
}

func (p *recordingPresence) RoomPeers(context.Context, string) ([]string, error) {
	return nil, nil
}

func newTestLifecycle(presence PresenceStore) (*Lifecycle, *ConnRegistry, *RoomRegistry) {
	conns := NewConnRegistry()
	rooms := NewRoomRegistry()
	return NewLifecycle(conns, rooms, presence, log.New(io.Discard, "", 0)), conns, rooms
}

func TestJoinFirstParticipant(t *testing.T) {
	lc, conns, rooms := newTestLifecycle(nil)
	a := newTestClient("ca")

	lc.Join(a, "r1", "alice")

	frame := takeFrame(t, a)
	assert.Equal(t, TypeJoinedRoom, frame["type"])
	assert.Equal(t, "r1", frame["roomId"])
	assert.Equal(t, "alice", frame["userId"])
	assert.Equal(t, []interface{}{}, frame["participants"], "participants must be an empty array, not null")

	b, ok := conns.Lookup(a)
	require.True(t, ok)
	assert.Equal(t, Binding{UserID: "alice", RoomID: "r1"}, b)
	assert.Equal(t, 1, rooms.RoomCount())
}

func TestJoinNotifiesPeers(t *testing.T) {
	lc, _, _ := newTestLifecycle(nil)
	a := newTestClient("ca")
	b := newTestClient("cb")

	lc.Join(a, "r1", "alice")
	takeFrame(t, a) // joined-room

	lc.Join(b, "r1", "bob")

	frame := takeFrame(t, b)
	assert.Equal(t, TypeJoinedRoom, frame["type"])
	assert.Equal(t, []interface{}{"alice"}, frame["participants"])

	frame = takeFrame(t, a)
	assert.Equal(t, TypeUserJoined, frame["type"])
	assert.Equal(t, "bob", frame["userId"])
}

func TestLeaveNotifiesRemaining(t *testing.T) {
	lc, conns, rooms := newTestLifecycle(nil)
	a := newTestClient("ca")
	b := newTestClient("cb")

	lc.Join(a, "r1", "alice")
	lc.Join(b, "r1", "bob")
	takeFrame(t, a) // joined-room
	takeFrame(t, a) // user-joined bob
	takeFrame(t, b) // joined-room

	lc.Leave(b)

	frame := takeFrame(t, a)
	assert.Equal(t, TypeUserLeft, frame["type"])
	assert.Equal(t, "bob", frame["userId"])

	_, ok := conns.Lookup(b)
	assert.False(t, ok)
	assert.Equal(t, 1, rooms.RoomCount())

	lc.Leave(a)
	assert.Equal(t, 0, rooms.RoomCount(), "last leave must delete the room")

	// Leave and Disconnect are idempotent once unbound.
	lc.Leave(a)
	lc.Disconnect(a)
	requireNoFrame(t, a)
}

func TestRejoinDifferentRoom(t *testing.T) {
	lc, conns, rooms := newTestLifecycle(nil)
	a := newTestClient("ca")
	b := newTestClient("cb")

	lc.Join(a, "r1", "alice")
	lc.Join(b, "r1", "bob")
	takeFrame(t, a)
	takeFrame(t, a)
	takeFrame(t, b)

	lc.Join(a, "r2", "alice")

	// bob sees alice leave r1.
	frame := takeFrame(t, b)
	assert.Equal(t, TypeUserLeft, frame["type"])
	assert.Equal(t, "alice", frame["userId"])

	// alice is confirmed into r2, alone.
	frame = takeFrame(t, a)
	assert.Equal(t, TypeJoinedRoom, frame["type"])
	assert.Equal(t, "r2", frame["roomId"])
	assert.Equal(t, []interface{}{}, frame["participants"])

	bind, ok := conns.Lookup(a)
	require.True(t, ok)
	assert.Equal(t, "r2", bind.RoomID)
	assert.Equal(t, []string{"r1", "r2"}, rooms.RoomIDs())
}

func TestDuplicateJoinEvictsPriorConnection(t *testing.T) {
	lc, conns, rooms := newTestLifecycle(nil)
	old := newTestClient("old")
	neu := newTestClient("new")

	lc.Join(old, "r1", "alice")
	takeFrame(t, old)

	lc.Join(neu, "r1", "alice")

	frame := takeFrame(t, old)
	assert.Equal(t, TypeError, frame["type"])
	assert.Contains(t, frame["error"], "replaced")

	_, ok := conns.Lookup(old)
	assert.False(t, ok, "evicted connection must be unbound")

	bind, ok := conns.Lookup(neu)
	require.True(t, ok)
	assert.Equal(t, "alice", bind.UserID)

	// The evicted connection leaving later must not disturb the new binding.
	lc.Leave(old)
	_, ok = conns.Lookup(neu)
	assert.True(t, ok)
	assert.Equal(t, 1, rooms.RoomCount())
}

// Hammers the lifecycle from many goroutines over a small pool of rooms and
// userIds so joins, rebinds, duplicate-join evictions, and leaves interleave.
// After the dust settles every surviving binding must match a room entry,
// every room member must hold the matching binding, and no empty room may
// remain.
func TestConcurrentLifecycleKeepsRegistriesConsistent(t *testing.T) {
	lc, conns, rooms := newTestLifecycle(nil)

	const (
		workers = 8
		iters   = 400
	)
	roomIDs := []string{"r1", "r2", "r3"}
	userIDs := []string{"alice", "bob", "carol"}

	clients := make([]*Client, workers)
	for i := range clients {
		clients[i] = newTestClient(fmt.Sprintf("c%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := clients[i]
			rng := rand.New(rand.NewSource(int64(i)))
			for n := 0; n < iters; n++ {
				switch rng.Intn(4) {
				case 0, 1:
					lc.Join(c, roomIDs[rng.Intn(len(roomIDs))], userIDs[rng.Intn(len(userIDs))])
				case 2:
					lc.Leave(c)
				default:
					lc.Disconnect(c)
				}
			}
		}(i)
	}
	wg.Wait()

	// Every binding points at a room entry holding this same connection.
	for _, c := range clients {
		b, ok := conns.Lookup(c)
		if !ok {
			continue
		}
		got, found := rooms.Participant(b.RoomID, b.UserID)
		require.True(t, found, "conn %s bound to (%s,%s) but absent from room", c.id, b.UserID, b.RoomID)
		assert.Same(t, c, got, "room entry for (%s,%s) held by a different connection", b.RoomID, b.UserID)
	}

	// Every room member holds the matching binding, and no room is empty.
	for _, id := range rooms.RoomIDs() {
		members := rooms.Others(id, "")
		require.NotEmpty(t, members, "empty room %s persisted", id)
		for _, m := range members {
			b, ok := conns.Lookup(m.Client)
			require.True(t, ok, "room %s member %s has no binding", id, m.UserID)
			assert.Equal(t, Binding{UserID: m.UserID, RoomID: id}, b)
		}
	}

	// Disconnecting everything drains both registries completely.
	for _, c := range clients {
		lc.Disconnect(c)
	}
	assert.Equal(t, 0, rooms.RoomCount())
	for _, c := range clients {
		_, ok := conns.Lookup(c)
		assert.False(t, ok)
	}
}

func TestPresenceMirrorCalls(t *testing.T) {
	presence := &recordingPresence{}
	lc, _, _ := newTestLifecycle(presence)
	a := newTestClient("ca")

	lc.Join(a, "r1", "alice")
	lc.Join(a, "r2", "alice")
	lc.Disconnect(a)

	assert.Equal(t, []string{
		"add r1 alice",
		"remove r1 alice",
		"add r2 alice",
		"remove r2 alice",
	}, presence.calls)
}
