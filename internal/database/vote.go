package database

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bustedgame/busted-server/internal/models"
)

// CastVote inserts a vote for (room, round, voter). A second vote for the
// same triple hits the unique index and comes back as ErrDuplicateVote with
// the original row untouched.
func (d *Database) CastVote(roomID, questionID uuid.UUID, round int, voterID, votedForID uuid.UUID) (*models.Vote, error) {
	vote := &models.Vote{
		RoomID:     roomID,
		QuestionID: questionID,
		Round:      round,
		VoterID:    voterID,
		VotedForID: votedForID,
	}
	if err := d.db.Create(vote).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateVote
		}
		return nil, fmt.Errorf("gorm: cast vote: %w", err)
	}
	return vote, nil
}

func (d *Database) GetVotesForRound(roomID uuid.UUID, round int) ([]models.Vote, error) {
	var votes []models.Vote
	err := d.db.
		Where("room_id = ? AND round = ?", roomID, round).
		Order("created_at ASC").
		Find(&votes).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list votes for room %s round %d: %w", roomID, round, err)
	}
	return votes, nil
}

func (d *Database) GetVoteCount(roomID uuid.UUID, round int) (int, error) {
	var count int64
	err := d.db.Model(&models.Vote{}).
		Where("room_id = ? AND round = ?", roomID, round).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count votes for room %s round %d: %w", roomID, round, err)
	}
	return int(count), nil
}

// GetUserVote returns the voter's own vote for a round, or nil if they have
// not voted. Reconnecting clients restore hasVoted from this, not from any
// broadcast they may have missed.
func (d *Database) GetUserVote(roomID uuid.UUID, round int, voterID uuid.UUID) (*models.Vote, error) {
	var vote models.Vote
	err := d.db.First(&vote, "room_id = ? AND round = ? AND voter_id = ?", roomID, round, voterID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gorm: find vote by %s in room %s round %d: %w", voterID, roomID, round, err)
	}
	return &vote, nil
}
