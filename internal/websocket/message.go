package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type MessageType string

// Client-to-server actions.
const (
	TypeStartGame    MessageType = "start_game"
	TypeCastVote     MessageType = "cast_vote"
	TypeSkipQuestion MessageType = "skip_question"
	TypeNextRound    MessageType = "next_round"
	TypeEndGame      MessageType = "end_game"
	TypeReveal       MessageType = "reveal"
	TypePong         MessageType = "pong"
)

// Server-to-client frames.
const (
	TypeState    MessageType = "state"
	TypeEvent    MessageType = "event"
	TypePresence MessageType = "presence"
	TypeError    MessageType = "error"
)

// Message is one WebSocket frame in either direction.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

type CastVotePayload struct {
	VotedForID uuid.UUID `json:"votedForId"`
}

// RevealPayload is an opaque reveal-flow event the server relays to the room
// without interpreting it.
type RevealPayload struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
