package realtime

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// PresenceRecord is what one connection tracks on a room channel. Records are
// keyed by a per-connection presence key, not by user id, so one user can
// briefly appear twice (reconnect racing the old session's expiry).
type PresenceRecord struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	IsHost   bool      `json:"isHost"`
	JoinedAt time.Time `json:"joinedAt"`
}

// DedupePlayers collapses raw presence records into one entry per user,
// keeping the record with the latest join time, sorted oldest join first.
// Each presence sync is a full snapshot, so the result replaces any previous
// player list wholesale.
func DedupePlayers(records []PresenceRecord) []PresenceRecord {
	byUser := make(map[uuid.UUID]PresenceRecord, len(records))
	for _, r := range records {
		cur, ok := byUser[r.UserID]
		if !ok || r.JoinedAt.After(cur.JoinedAt) {
			byUser[r.UserID] = r
		}
	}

	players := make([]PresenceRecord, 0, len(byUser))
	for _, r := range byUser {
		players = append(players, r)
	}
	sort.Slice(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].UserID.String() < players[j].UserID.String()
	})
	return players
}
