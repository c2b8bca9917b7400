package database

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/bustedgame/busted-server/internal/models"
)

const (
	codeLength      = 6
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts = 5
)

// NormalizeCode makes room codes case-insensitive on input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func randomCode(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// CreateRoom allocates a unique room code and inserts the room together with
// its host player row. Code collisions are rare but real; the unique index on
// rooms.code is the backstop for two servers racing on the same code.
func (d *Database) CreateRoom(hostID uuid.UUID, username string, vibe models.Vibe, language string) (*models.Room, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		room := &models.Room{
			Code:         randomCode(codeLength),
			HostID:       hostID,
			Vibe:         vibe,
			Status:       models.StatusLobby,
			CurrentRound: 1,
			HostLanguage: language,
		}

		err := d.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(room).Error; err != nil {
				return err
			}
			player := &models.Player{
				RoomID:   room.ID,
				UserID:   hostID,
				Username: username,
				IsHost:   true,
				IsActive: true,
				JoinedAt: time.Now().UTC(),
			}
			return tx.Create(player).Error
		})
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return nil, fmt.Errorf("gorm: create room: %w", err)
		}
		return room, nil
	}
	return nil, ErrCodeSpaceBusy
}

func (d *Database) GetRoomByCode(code string) (*models.Room, error) {
	var room models.Room
	err := d.db.First(&room, "code = ?", NormalizeCode(code)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gorm: find room by code %q: %w", code, err)
	}
	return &room, nil
}

func (d *Database) GetRoomByID(id uuid.UUID) (*models.Room, error) {
	var room models.Room
	err := d.db.First(&room, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gorm: find room by id %s: %w", id, err)
	}
	return &room, nil
}

// JoinRoom adds a user to a room by code. A returning player (even one who
// left) is reactivated rather than duplicated, so prior votes stay attributed.
func (d *Database) JoinRoom(code string, userID uuid.UUID, username string) (*models.Room, error) {
	room, err := d.GetRoomByCode(code)
	if err != nil {
		return nil, err
	}
	if room.Status == models.StatusFinished {
		return nil, ErrGameEnded
	}

	var player models.Player
	err = d.db.First(&player, "room_id = ? AND user_id = ?", room.ID, userID).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{"is_active": true, "username": username}
		if err := d.db.Model(&player).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("gorm: reactivate player: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		player = models.Player{
			RoomID:   room.ID,
			UserID:   userID,
			Username: username,
			IsActive: true,
			JoinedAt: time.Now().UTC(),
		}
		if err := d.db.Create(&player).Error; err != nil {
			// Unique (room, user) lost a race with a concurrent join; the row
			// exists now, which is all a join needs.
			if !isUniqueViolation(err) {
				return nil, fmt.Errorf("gorm: add player: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("gorm: find player: %w", err)
	}

	return room, nil
}

func (d *Database) UpdateRoomStatus(roomID uuid.UUID, status models.GameStatus) error {
	res := d.db.Model(&models.Room{}).Where("id = ?", roomID).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("gorm: update room status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (d *Database) UpdateRoomVibe(roomID uuid.UUID, vibe models.Vibe) error {
	res := d.db.Model(&models.Room{}).Where("id = ?", roomID).Update("vibe", vibe)
	if res.Error != nil {
		return fmt.Errorf("gorm: update room vibe: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (d *Database) SetCurrentQuestion(roomID uuid.UUID, questionID *uuid.UUID) error {
	res := d.db.Model(&models.Room{}).Where("id = ?", roomID).Update("current_question_id", questionID)
	if res.Error != nil {
		return fmt.Errorf("gorm: update room question: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// AdvanceRound moves the room's round forward. current_round never decreases:
// a write that would move it backwards (or sideways) is a silent no-op, which
// makes replays of next_round idempotent.
func (d *Database) AdvanceRound(roomID uuid.UUID, round int) error {
	res := d.db.Model(&models.Room{}).
		Where("id = ? AND current_round < ?", roomID, round).
		Update("current_round", round)
	if res.Error != nil {
		return fmt.Errorf("gorm: advance round: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the room is gone or another client already advanced it.
		if _, err := d.GetRoomByID(roomID); err != nil {
			return err
		}
	}
	return nil
}
