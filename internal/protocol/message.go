package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is the wire envelope shared by both directions: a type tag and a
// flat JSON payload.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound message types.
const (
	TypeCreateRoom = "create_room"
	TypeJoinRoom   = "join_room"
	TypeMove       = "move"
	TypeRematch    = "rematch"
)

// Inbound message types. Anything else is ignored so newer servers can add
// message kinds without breaking older clients.
const (
	TypeRoomCreated = "room_created"
	TypeRoomJoined  = "room_joined"
	TypeState       = "state"
	TypePlayerLeft  = "player_left"
	TypeRoomClosed  = "room_closed"
	TypeError       = "error"
)

type CreateRoomPayload struct {
	Name    string `json:"name"`
	GuestID string `json:"guest_id"`
}

type JoinRoomPayload struct {
	RoomCode  string `json:"room_code"`
	Name      string `json:"name,omitempty"`
	PlayerID  string `json:"player_id,omitempty"`
	Spectator bool   `json:"spectator"`
	GuestID   string `json:"guest_id"`
}

type MovePayload struct {
	RoomCode string `json:"room_code"`
	PlayerID string `json:"player_id"`
	Cell     int    `json:"cell"`
}

type RematchPayload struct {
	RoomCode string `json:"room_code"`
	PlayerID string `json:"player_id"`
}

// RoomPayload acknowledges room_created and room_joined. Symbol is absent for
// spectators; State is an optional embedded state payload.
type RoomPayload struct {
	RoomCode string          `json:"room_code"`
	PlayerID string          `json:"player_id"`
	Symbol   string          `json:"symbol"`
	Role     string          `json:"role"`
	State    json.RawMessage `json:"state"`
}

type RoomClosedPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode wraps a message type and its payload into the wire envelope.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}

	data, err := json.Marshal(Message{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", msgType, err)
	}

	return data, nil
}

// Decode parses an inbound text frame. Malformed input reports ok=false and
// must be dropped by the caller; a missing type decodes as the empty string
// and a missing payload as an empty object.
func Decode(raw []byte) (Message, bool) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, false
	}

	if len(msg.Payload) == 0 {
		msg.Payload = json.RawMessage(`{}`)
	}

	return msg, true
}
