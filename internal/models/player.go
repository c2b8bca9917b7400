package models

import (
	"time"

	"github.com/google/uuid"
)

// Player is durable room membership, as opposed to ephemeral presence.
// IsActive=false means "left" without deleting vote history. At most one row
// exists per (room, user); rejoining reactivates the existing row.
type Player struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RoomID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_players_room_user"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_players_room_user"`
	Username string    `gorm:"size:64;not null"`
	IsHost   bool      `gorm:"not null;default:false"`
	IsActive bool      `gorm:"not null;default:true"`
	JoinedAt time.Time `gorm:"not null"`
}
