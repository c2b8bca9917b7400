package database

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bustedgame/busted-server/internal/models"
)

// BuildRoundResult tallies the votes of one round into a ranked result set.
// Pure; resolution ordering and tie-breaking live here and nowhere else.
//
// Ranking is by vote count descending. Ties on the highest count go to the
// earliest-joined player, with player id as the final deterministic fallback,
// so recomputation can never crown a different winner.
func BuildRoundResult(roomID uuid.UUID, round int, questionID uuid.UUID, votes []models.Vote, players []models.Player) (*models.RoundResult, error) {
	if len(votes) == 0 {
		return nil, ErrNoVotes
	}

	counts := make(map[uuid.UUID]int)
	for _, v := range votes {
		counts[v.VotedForID]++
	}

	names := make(map[uuid.UUID]string, len(players))
	joined := make(map[uuid.UUID]time.Time, len(players))
	for _, p := range players {
		names[p.UserID] = p.Username
		joined[p.UserID] = p.JoinedAt
	}

	seen := make(map[uuid.UUID]bool, len(players))
	breakdown := make([]models.PlayerTally, 0, len(players))
	for _, p := range players {
		seen[p.UserID] = true
		breakdown = append(breakdown, models.PlayerTally{
			PlayerID:   p.UserID,
			PlayerName: p.Username,
			Votes:      counts[p.UserID],
		})
	}
	// Votes can target a player whose row was never loaded (should not happen,
	// but a tally must never drop votes).
	for target, n := range counts {
		if !seen[target] {
			breakdown = append(breakdown, models.PlayerTally{PlayerID: target, PlayerName: names[target], Votes: n})
		}
	}

	total := len(votes)
	for i := range breakdown {
		breakdown[i].Percentage = int(math.Round(float64(breakdown[i].Votes) / float64(total) * 100))
	}

	sort.SliceStable(breakdown, func(i, j int) bool {
		a, b := breakdown[i], breakdown[j]
		if a.Votes != b.Votes {
			return a.Votes > b.Votes
		}
		ja, jb := joined[a.PlayerID], joined[b.PlayerID]
		if !ja.Equal(jb) {
			return ja.Before(jb)
		}
		return a.PlayerID.String() < b.PlayerID.String()
	})

	winner := breakdown[0]
	return &models.RoundResult{
		RoomID:     roomID,
		Round:      round,
		QuestionID: questionID,
		WinnerID:   winner.PlayerID,
		WinnerName: winner.PlayerName,
		TotalVotes: total,
		Breakdown:  breakdown,
	}, nil
}

// ResolveRound computes and persists the result for (room, round). Any client
// that observes "all players voted" may call this; the unique index on
// (room_id, round) plus insert-on-conflict-do-nothing makes the race converge
// on whichever writer got there first. The stored row is always returned, so
// a losing writer still sees the winning computation.
func (d *Database) ResolveRound(roomID uuid.UUID, round int, questionID uuid.UUID) (*models.RoundResult, error) {
	votes, err := d.GetVotesForRound(roomID, round)
	if err != nil {
		return nil, err
	}
	players, err := d.GetAllPlayers(roomID)
	if err != nil {
		return nil, err
	}

	result, err := BuildRoundResult(roomID, round, questionID, votes, players)
	if err != nil {
		return nil, err
	}

	err = d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "round"}},
		DoNothing: true,
	}).Create(result).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: persist round result: %w", err)
	}

	stored, err := d.GetRoundResults(roomID, round)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrResultNotFound
	}
	return stored, nil
}

// GetRoundResults returns the stored result for a round, or nil if the round
// has not concluded. Existence of the row is the round-complete signal.
func (d *Database) GetRoundResults(roomID uuid.UUID, round int) (*models.RoundResult, error) {
	var result models.RoundResult
	err := d.db.First(&result, "room_id = ? AND round = ?", roomID, round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gorm: find result for room %s round %d: %w", roomID, round, err)
	}
	return &result, nil
}

func (d *Database) GetAllRoundResults(roomID uuid.UUID) ([]models.RoundResult, error) {
	var results []models.RoundResult
	err := d.db.Where("room_id = ?", roomID).Order("round ASC").Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list results for room %s: %w", roomID, err)
	}
	return results, nil
}
