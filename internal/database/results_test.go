package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bustedgame/busted-server/internal/models"
)

func makePlayer(joinedOffset time.Duration, name string) models.Player {
	return models.Player{
		UserID:   uuid.New(),
		Username: name,
		IsActive: true,
		JoinedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Add(joinedOffset),
	}
}

func vote(roomID uuid.UUID, round int, voter, target uuid.UUID) models.Vote {
	return models.Vote{RoomID: roomID, Round: round, VoterID: voter, VotedForID: target}
}

func TestBuildRoundResultRanksByVotes(t *testing.T) {
	roomID := uuid.New()
	questionID := uuid.New()
	alice := makePlayer(0, "alice")
	bob := makePlayer(time.Minute, "bob")
	cara := makePlayer(2*time.Minute, "cara")
	players := []models.Player{alice, bob, cara}

	votes := []models.Vote{
		vote(roomID, 1, alice.UserID, bob.UserID),
		vote(roomID, 1, bob.UserID, bob.UserID), // self-votes allowed
		vote(roomID, 1, cara.UserID, alice.UserID),
	}

	result, err := BuildRoundResult(roomID, 1, questionID, votes, players)
	require.NoError(t, err)

	assert.Equal(t, bob.UserID, result.WinnerID)
	assert.Equal(t, "bob", result.WinnerName)
	assert.Equal(t, 3, result.TotalVotes)

	require.Len(t, result.Breakdown, 3)
	assert.Equal(t, bob.UserID, result.Breakdown[0].PlayerID)
	assert.Equal(t, 2, result.Breakdown[0].Votes)
	assert.Equal(t, 67, result.Breakdown[0].Percentage)
	assert.Equal(t, alice.UserID, result.Breakdown[1].PlayerID)
	assert.Equal(t, 33, result.Breakdown[1].Percentage)
	assert.Equal(t, cara.UserID, result.Breakdown[2].PlayerID)
	assert.Equal(t, 0, result.Breakdown[2].Votes)
}

func TestBuildRoundResultTieGoesToEarliestJoined(t *testing.T) {
	roomID := uuid.New()
	early := makePlayer(0, "early")
	late := makePlayer(time.Hour, "late")
	players := []models.Player{late, early} // input order must not matter

	votes := []models.Vote{
		vote(roomID, 2, early.UserID, late.UserID),
		vote(roomID, 2, late.UserID, early.UserID),
	}

	result, err := BuildRoundResult(roomID, 2, uuid.New(), votes, players)
	require.NoError(t, err)

	assert.Equal(t, early.UserID, result.WinnerID)
	assert.Equal(t, "early", result.WinnerName)
	assert.Equal(t, 50, result.Breakdown[0].Percentage)
	assert.Equal(t, 50, result.Breakdown[1].Percentage)
}

func TestBuildRoundResultDeterministicAcrossRecomputation(t *testing.T) {
	roomID := uuid.New()
	questionID := uuid.New()
	players := []models.Player{
		makePlayer(0, "p1"),
		makePlayer(time.Second, "p2"),
		makePlayer(2*time.Second, "p3"),
	}
	votes := []models.Vote{
		vote(roomID, 3, players[0].UserID, players[2].UserID),
		vote(roomID, 3, players[1].UserID, players[2].UserID),
		vote(roomID, 3, players[2].UserID, players[0].UserID),
	}

	first, err := BuildRoundResult(roomID, 3, questionID, votes, players)
	require.NoError(t, err)
	second, err := BuildRoundResult(roomID, 3, questionID, votes, players)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildRoundResultCountsVotesForUnknownTarget(t *testing.T) {
	roomID := uuid.New()
	ghost := uuid.New() // received a vote but has no player row loaded
	voter := makePlayer(0, "voter")

	votes := []models.Vote{vote(roomID, 1, voter.UserID, ghost)}

	result, err := BuildRoundResult(roomID, 1, uuid.New(), votes, []models.Player{voter})
	require.NoError(t, err)

	assert.Equal(t, ghost, result.WinnerID)
	assert.Equal(t, 1, result.TotalVotes)
}

func TestBuildRoundResultNoVotes(t *testing.T) {
	_, err := BuildRoundResult(uuid.New(), 1, uuid.New(), nil, []models.Player{makePlayer(0, "a")})
	assert.ErrorIs(t, err, ErrNoVotes)
}
