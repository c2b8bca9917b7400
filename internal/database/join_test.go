package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bustedgame/busted-server/internal/models"
)

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	d := NewDatabase()
	d.db = gormDB
	return d, mock
}

func mockRoomRows(room *models.Room) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "code", "host_id", "vibe", "status", "current_round", "host_language",
	}).AddRow(
		room.ID.String(), room.Code, room.HostID.String(),
		string(room.Vibe), string(room.Status), room.CurrentRound, room.HostLanguage,
	)
}

func mockPlayerRows(p *models.Player) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "room_id", "user_id", "username", "is_host", "is_active", "joined_at",
	}).AddRow(
		p.ID.String(), p.RoomID.String(), p.UserID.String(),
		p.Username, p.IsHost, p.IsActive, p.JoinedAt,
	)
}

func mockRoom(status models.GameStatus) *models.Room {
	return &models.Room{
		ID:           uuid.New(),
		Code:         "ABC123",
		HostID:       uuid.New(),
		Vibe:         models.VibeParty,
		Status:       status,
		CurrentRound: 1,
		HostLanguage: "en",
	}
}

func uniqueViolation() *pgconn.PgError {
	return &pgconn.PgError{Code: "23505"}
}

func TestJoinRoomReactivatesInactivePlayer(t *testing.T) {
	d, mock := newMockDatabase(t)
	room := mockRoom(models.StatusPlaying)
	userID := uuid.New()
	existing := &models.Player{
		ID:       uuid.New(),
		RoomID:   room.ID,
		UserID:   userID,
		Username: "old-name",
		IsActive: false,
		JoinedAt: time.Now().Add(-time.Hour),
	}

	mock.ExpectQuery(`SELECT .+ FROM "rooms"`).WillReturnRows(mockRoomRows(room))
	mock.ExpectQuery(`SELECT .+ FROM "players"`).WillReturnRows(mockPlayerRows(existing))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "players" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := d.JoinRoom("abc123", userID, "new-name")
	require.NoError(t, err)
	assert.Equal(t, room.Code, got.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRoomCreatesMissingPlayer(t *testing.T) {
	d, mock := newMockDatabase(t)
	room := mockRoom(models.StatusLobby)

	mock.ExpectQuery(`SELECT .+ FROM "rooms"`).WillReturnRows(mockRoomRows(room))
	mock.ExpectQuery(`SELECT .+ FROM "players"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "players"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectCommit()

	got, err := d.JoinRoom("ABC123", uuid.New(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRoomLostInsertRaceStillJoins(t *testing.T) {
	d, mock := newMockDatabase(t)
	room := mockRoom(models.StatusLobby)

	mock.ExpectQuery(`SELECT .+ FROM "rooms"`).WillReturnRows(mockRoomRows(room))
	mock.ExpectQuery(`SELECT .+ FROM "players"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "players"`).WillReturnError(uniqueViolation())
	mock.ExpectRollback()

	got, err := d.JoinRoom("ABC123", uuid.New(), "racer")
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRoomFinishedGame(t *testing.T) {
	d, mock := newMockDatabase(t)
	room := mockRoom(models.StatusFinished)

	mock.ExpectQuery(`SELECT .+ FROM "rooms"`).WillReturnRows(mockRoomRows(room))

	_, err := d.JoinRoom("ABC123", uuid.New(), "late")
	assert.ErrorIs(t, err, ErrGameEnded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRoomUnknownCode(t *testing.T) {
	d, mock := newMockDatabase(t)

	mock.ExpectQuery(`SELECT .+ FROM "rooms"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := d.JoinRoom("NOPE99", uuid.New(), "nobody")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCastVoteMapsUniqueViolationToDuplicate(t *testing.T) {
	d, mock := newMockDatabase(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "votes"`).WillReturnError(uniqueViolation())
	mock.ExpectRollback()

	_, err := d.CastVote(uuid.New(), uuid.New(), 1, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrDuplicateVote)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivatePlayerSoftLeave(t *testing.T) {
	d, mock := newMockDatabase(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "players" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, d.DeactivatePlayer(uuid.New(), uuid.New()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivatePlayerUnknownSeat(t *testing.T) {
	d, mock := newMockDatabase(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "players" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	assert.ErrorIs(t, d.DeactivatePlayer(uuid.New(), uuid.New()), ErrPlayerNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(uniqueViolation()))
	assert.True(t, isUniqueViolation(fmt.Errorf("gorm: cast vote: %w", uniqueViolation())))
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(fmt.Errorf("connection reset")))
}
