package models

import (
	"time"

	"github.com/google/uuid"
)

// Vibe selects which catalog questions are eligible for a room.
type Vibe string

const (
	VibeParty     Vibe = "party"
	VibeDateNight Vibe = "date_night"
	VibeFamily    Vibe = "family"
	VibeSpicy     Vibe = "spicy"
)

type GameStatus string

const (
	StatusLobby    GameStatus = "lobby"
	StatusPlaying  GameStatus = "playing"
	StatusFinished GameStatus = "finished"
)

// Room is one play session, addressed by a short human-entered code.
// "results" is not a stored status: a round is in its results phase exactly
// when a RoundResult row exists for (room, current round).
type Room struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code              string     `gorm:"size:6;uniqueIndex;not null"`
	HostID            uuid.UUID  `gorm:"type:uuid;not null"`
	Vibe              Vibe       `gorm:"size:32;not null;default:'party'"`
	Status            GameStatus `gorm:"size:16;not null;default:'lobby';check:status IN ('lobby','playing','finished')"`
	CurrentRound      int        `gorm:"not null;default:1"`
	CurrentQuestionID *uuid.UUID `gorm:"type:uuid"`
	HostLanguage      string     `gorm:"size:8;not null;default:'en'"`
	CreatedAt         time.Time

	Players []Player `gorm:"foreignKey:RoomID"`
}
