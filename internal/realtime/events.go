package realtime

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/bustedgame/busted-server/internal/models"
)

// EventType is the room-scoped broadcast taxonomy. Receivers must treat
// unknown types as no-ops; new types may appear on the wire at any time.
type EventType string

const (
	EventGameStart       EventType = "game_start"
	EventVoteCast        EventType = "vote_cast"
	EventRoundComplete   EventType = "round_complete"
	EventNextRound       EventType = "next_round"
	EventGameEnd         EventType = "game_end"
	EventQuestionSkipped EventType = "question_skipped"
	EventRevealRequest   EventType = "reveal_request"
	EventRevealResponse  EventType = "reveal_response"
	EventRevealResult    EventType = "reveal_result"
)

// Event is an ephemeral broadcast message. Delivery is at-least-once,
// unordered between senders, and self-inclusive.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEvent(t EventType, payload interface{}) (Event, error) {
	ev := Event{Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		ev.Payload = data
	}
	return ev, nil
}

// QuestionPayload is the wire shape of a question inside game events.
type QuestionPayload struct {
	ID       uuid.UUID   `json:"id"`
	Text     string      `json:"text"`
	Vibe     models.Vibe `json:"vibe"`
	IsCustom bool        `json:"isCustom,omitempty"`
}

type GameStartPayload struct {
	Question QuestionPayload `json:"question"`
	Round    int             `json:"round"`
}

type VoteCastPayload struct {
	VoterID uuid.UUID `json:"voterId"`
	Round   int       `json:"round"`
}

type RoundCompletePayload struct {
	Round int `json:"round"`
}

type NextRoundPayload struct {
	Question QuestionPayload `json:"question"`
	Round    int             `json:"round"`
}

type QuestionSkippedPayload struct {
	Question QuestionPayload `json:"question"`
}

type RevealRequestPayload struct {
	WinnerID   uuid.UUID `json:"winnerId"`
	WinnerName string    `json:"winnerName"`
}

type RevealResponsePayload struct {
	ApproverID uuid.UUID `json:"approverId"`
	Approved   bool      `json:"approved"`
}

type RevealResultPayload struct {
	VoterNames []string `json:"voterNames"`
}
