package models

import (
	"time"

	"github.com/google/uuid"
)

// Question is a catalog entry, filtered by vibe and language.
type Question struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Vibe      Vibe      `gorm:"size:32;not null;index"`
	Language  string    `gorm:"size:8;not null;default:'en';index"`
	Text      string    `gorm:"not null"`
	IsPremium bool      `gorm:"not null;default:false"`
	CreatedAt time.Time
}

// QuestionSource tags where a custom question came from.
type QuestionSource string

const (
	SourceManual   QuestionSource = "manual"
	SourceAI       QuestionSource = "ai"
	SourcePersonal QuestionSource = "personal"
)

// CustomQuestion is free text scoped to one room. Immutable once created,
// deletable only by its author.
type CustomQuestion struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RoomID    uuid.UUID      `gorm:"type:uuid;not null;index"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null"`
	Text      string         `gorm:"not null"`
	Source    QuestionSource `gorm:"size:16;not null;default:'manual'"`
	CreatedAt time.Time
}

// PersonalQuestion lives in a user's reusable pool, independent of any room.
type PersonalQuestion struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Text      string    `gorm:"not null"`
	Category  string    `gorm:"size:32"`
	CreatedAt time.Time
}
