package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultReadLimit   = 64 * 1024
	pingInterval       = 40 * time.Second
	pongWait           = 60 * time.Second
	writeTimeout       = 10 * time.Second
	upgradeReadBuffer  = 1024
	upgradeWriteBuffer = 1024
	sendBuffer         = 32
)

// HubOptions configures a Hub instance.
type HubOptions struct {
	Presence PresenceStore
	Logger   *log.Logger
	Upgrader *websocket.Upgrader
}

// ConnOptions controls how a connection is registered.
type ConnOptions struct {
	// ID overrides the generated connection ID (useful for authenticated callers).
	ID string
	// Context lets the caller cancel the connection (defaults to Background).
	Context context.Context
}

// Hub accepts signaling connections and relays offer/answer/ice-candidate
// frames between members of the same room. It never inspects the relayed
// payloads.
type Hub struct {
	conns     *ConnRegistry
	rooms     *RoomRegistry
	lifecycle *Lifecycle
	upgrader  websocket.Upgrader
	logger    *log.Logger
}

// Client is one live signaling connection. The transport owns the underlying
// websocket; the hub only holds it for the lifetime of the pumps.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// NewHub builds a signaling Hub with fresh registries.
func NewHub(opts HubOptions) *Hub {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  upgradeReadBuffer,
		WriteBufferSize: upgradeWriteBuffer,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	if opts.Upgrader != nil {
		upgrader = *opts.Upgrader
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	conns := NewConnRegistry()
	rooms := NewRoomRegistry()
	return &Hub{
		conns:     conns,
		rooms:     rooms,
		lifecycle: NewLifecycle(conns, rooms, opts.Presence, logger),
		upgrader:  upgrader,
		logger:    logger,
	}
}

// Rooms exposes the room registry for probe endpoints and tests.
func (h *Hub) Rooms() *RoomRegistry {
	return h.rooms
}

// HTTPHandler upgrades HTTP connections and registers them with the Hub.
func (h *Hub) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Printf("upgrade error: %v", err)
			return
		}
		// Background context so the connection outlives the HTTP handler.
		if err := h.Accept(conn, ConnOptions{}); err != nil {
			h.logger.Printf("accept error: %v", err)
			conn.Close()
		}
	})
}

// Accept registers an already-upgraded WebSocket connection (useful when
// auth/guards are handled elsewhere).
func (h *Hub) Accept(conn *websocket.Conn, opts ConnOptions) error {
	if conn == nil {
		return errors.New("signaling: nil connection")
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	c := &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}

	h.logger.Printf("ws: accepted conn=%s", c.id)
	go c.writePump()
	go c.readPump(h)
	return nil
}

// handleInbound is the per-connection state machine: it validates the frame
// against the connection's current binding and either hands it to the
// lifecycle (join/leave) or routes it (offer/answer/ice-candidate).
func (h *Hub) handleInbound(c *Client, msg InboundMessage) {
	switch msg.Type {
	case TypeJoinRoom:
		if msg.RoomID == "" || msg.UserID == "" {
			c.sendJSON(errorFrame("Missing roomId or userId"))
			return
		}
		h.lifecycle.Join(c, msg.RoomID, msg.UserID)
	case TypeLeaveRoom:
		h.lifecycle.Leave(c)
	case TypeOffer, TypeAnswer, TypeICECandidate:
		b, ok := h.conns.Lookup(c)
		if !ok {
			c.sendJSON(errorFrame("Not in a room"))
			return
		}
		h.route(b, msg)
	default:
		h.logger.Printf("ws: unknown message type %q from conn=%s", msg.Type, c.id)
		c.sendJSON(errorFrame("Unknown message type"))
	}
}

// route forwards a signaling frame: unicast when a recipient is named,
// otherwise to every other room member. A missing or dead recipient is
// silently dropped; signaling is best-effort and clients recover via ICE
// restart.
func (h *Hub) route(b Binding, msg InboundMessage) {
	data, err := json.Marshal(SignalMessage{Type: msg.Type, Sender: b.UserID, Data: msg.Data})
	if err != nil {
		h.logger.Printf("marshal %s: %v", msg.Type, err)
		return
	}

	if msg.Recipient != "" {
		target, ok := h.rooms.Participant(b.RoomID, msg.Recipient)
		if !ok {
			h.logger.Printf("ws: unicast miss type=%s from=%s to=%s room=%s", msg.Type, b.UserID, msg.Recipient, b.RoomID)
			return
		}
		if !target.trySend(data) {
			h.logger.Printf("send buffer full for conn=%s, dropping %s", target.id, msg.Type)
		}
		h.logger.Printf("ws: unicast type=%s from=%s to=%s room=%s", msg.Type, b.UserID, msg.Recipient, b.RoomID)
		return
	}

	others := h.rooms.Others(b.RoomID, b.UserID)
	for _, m := range others {
		if !m.Client.trySend(data) {
			h.logger.Printf("send buffer full for conn=%s, dropping %s", m.Client.id, msg.Type)
		}
	}
	h.logger.Printf("ws: broadcast type=%s from=%s room=%s peers=%d", msg.Type, b.UserID, b.RoomID, len(others))
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.lifecycle.Disconnect(c)
		c.closed.Store(true)
		c.cancel()
		c.conn.Close()
		h.logger.Printf("ws: closed conn=%s", c.id)
	}()

	c.conn.SetReadLimit(defaultReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return
			}
			if !errors.Is(err, websocket.ErrCloseSent) {
				h.logger.Printf("read error from conn=%s: %v", c.id, err)
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Printf("bad payload from conn=%s: %v", c.id, err)
			c.sendJSON(errorFrame("Invalid message"))
			continue
		}
		h.handleInbound(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend hands a frame to the write pump without blocking, so one slow
// client cannot stall fanout to the rest of its room. It reports whether the
// frame was queued; frames for a closed connection or a full send buffer are
// dropped.
func (c *Client) trySend(data []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.trySend(data)
}
