package database

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bustedgame/busted-server/internal/models"
)

// GetPlayers returns the active players of a room, oldest join first.
func (d *Database) GetPlayers(roomID uuid.UUID) ([]models.Player, error) {
	var players []models.Player
	err := d.db.
		Where("room_id = ? AND is_active = ?", roomID, true).
		Order("joined_at ASC").
		Find(&players).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list players for room %s: %w", roomID, err)
	}
	return players, nil
}

// GetAllPlayers includes inactive rows, for attributing votes of players who
// left mid-game.
func (d *Database) GetAllPlayers(roomID uuid.UUID) ([]models.Player, error) {
	var players []models.Player
	err := d.db.
		Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Find(&players).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list all players for room %s: %w", roomID, err)
	}
	return players, nil
}

func (d *Database) GetPlayer(roomID, userID uuid.UUID) (*models.Player, error) {
	var player models.Player
	err := d.db.First(&player, "room_id = ? AND user_id = ?", roomID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gorm: find player %s in room %s: %w", userID, roomID, err)
	}
	return &player, nil
}

// DeactivatePlayer is a soft leave: history stays, membership flag drops.
func (d *Database) DeactivatePlayer(roomID, userID uuid.UUID) error {
	res := d.db.Model(&models.Player{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("gorm: deactivate player: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPlayerNotFound
	}
	return nil
}
