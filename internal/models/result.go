package models

import (
	"time"

	"github.com/google/uuid"
)

// PlayerTally is the per-player slice of a round's breakdown. Percentage is
// display-only and rounded; the slices need not sum to exactly 100.
type PlayerTally struct {
	PlayerID   uuid.UUID `json:"playerId"`
	PlayerName string    `json:"playerName"`
	Votes      int       `json:"votes"`
	Percentage int       `json:"percentage"`
}

// RoundResult marks a round as concluded. Exactly one row exists per
// (room, round); the unique index plus insert-on-conflict-do-nothing is what
// makes decentralized resolution triggers safe.
type RoundResult struct {
	ID         uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RoomID     uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_round_results_room_round"`
	Round      int           `gorm:"not null;uniqueIndex:idx_round_results_room_round"`
	QuestionID uuid.UUID     `gorm:"type:uuid;not null"`
	WinnerID   uuid.UUID     `gorm:"type:uuid;not null"`
	WinnerName string        `gorm:"size:64;not null"`
	TotalVotes int           `gorm:"not null"`
	Breakdown  []PlayerTally `gorm:"serializer:json;type:jsonb;not null"`
	CreatedAt  time.Time
}
