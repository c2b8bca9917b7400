package models

import (
	"time"

	"github.com/google/uuid"
)

// Vote is one player's pick for one round. The composite unique index is the
// load-bearing constraint: concurrent double-submits fail at the database, not
// in application code. Self-votes are allowed.
type Vote struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RoomID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_votes_room_round_voter"`
	Round      int       `gorm:"not null;uniqueIndex:idx_votes_room_round_voter"`
	VoterID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_votes_room_round_voter"`
	QuestionID uuid.UUID `gorm:"type:uuid;not null"`
	VotedForID uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt  time.Time
}
