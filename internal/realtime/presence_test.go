package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupePlayersKeepsLatestJoin(t *testing.T) {
	userID := uuid.New()
	early := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	late := early.Add(time.Minute)

	// Same user under two presence keys: stale session plus reconnect.
	records := []PresenceRecord{
		{UserID: userID, Username: "old-session", JoinedAt: early},
		{UserID: userID, Username: "new-session", JoinedAt: late},
	}

	players := DedupePlayers(records)
	require.Len(t, players, 1)
	assert.Equal(t, "new-session", players[0].Username)
	assert.Equal(t, late, players[0].JoinedAt)
}

func TestDedupePlayersSortsByJoinTime(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := PresenceRecord{UserID: uuid.New(), Username: "second", JoinedAt: base.Add(time.Second)}
	b := PresenceRecord{UserID: uuid.New(), Username: "first", JoinedAt: base}
	c := PresenceRecord{UserID: uuid.New(), Username: "third", JoinedAt: base.Add(2 * time.Second)}

	players := DedupePlayers([]PresenceRecord{a, b, c})
	require.Len(t, players, 3)
	assert.Equal(t, "first", players[0].Username)
	assert.Equal(t, "second", players[1].Username)
	assert.Equal(t, "third", players[2].Username)
}

func TestDedupePlayersEmpty(t *testing.T) {
	assert.Empty(t, DedupePlayers(nil))
}
