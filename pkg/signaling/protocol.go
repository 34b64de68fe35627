package signaling

import "encoding/json"

// Message types accepted from clients.
const (
	TypeJoinRoom     = "join-room"
	TypeLeaveRoom    = "leave-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
)

// Message types sent to clients.
const (
	TypeJoinedRoom = "joined-room"
	TypeUserJoined = "user-joined"
	TypeUserLeft   = "user-left"
	TypeError      = "error"
)

// InboundMessage is the envelope clients send on the signaling socket. Data
// carries the SDP or ICE payload and is relayed without inspection.
type InboundMessage struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Recipient string          `json:"recipient,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// JoinedMessage confirms a join to the joining client. Participants always
// marshals, even when empty, so clients can tell "alone in the room" apart
// from a missing field.
type JoinedMessage struct {
	Type         string   `json:"type"`
	RoomID       string   `json:"roomId"`
	UserID       string   `json:"userId"`
	Participants []string `json:"participants"`
}

// PresenceMessage announces a peer joining or leaving a room.
type PresenceMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// SignalMessage is a relayed offer/answer/ice-candidate tagged with its sender.
type SignalMessage struct {
	Type   string          `json:"type"`
	Sender string          `json:"sender"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ErrorMessage is an advisory error reply; the connection stays open.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func errorFrame(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Error: msg}
}
