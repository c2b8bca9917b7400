package game

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bustedgame/busted-server/internal/database"
	"github.com/bustedgame/busted-server/internal/models"
	"github.com/bustedgame/busted-server/internal/realtime"
)

type fakeStore struct {
	room     *models.Room
	players  []models.Player
	question *database.PickedQuestion

	voteCount    int
	voteCountErr error
	userVote     *models.Vote
	castErr      error
	result       *models.RoundResult

	resolved     int
	castVotes    []uuid.UUID
	statusWrites []models.GameStatus
	roundWrites  []int
}

func (s *fakeStore) GetRoomByCode(code string) (*models.Room, error) {
	if s.room == nil || s.room.Code != code {
		return nil, database.ErrRoomNotFound
	}
	copied := *s.room
	return &copied, nil
}

func (s *fakeStore) GetPlayers(roomID uuid.UUID) ([]models.Player, error) {
	return s.players, nil
}

func (s *fakeStore) LookupQuestion(roomID, questionID uuid.UUID, vibe models.Vibe) (*database.PickedQuestion, error) {
	if s.question == nil || s.question.ID != questionID {
		return nil, database.ErrQuestionNotFound
	}
	return s.question, nil
}

func (s *fakeStore) GetQuestionForRoom(roomID uuid.UUID, vibe models.Vibe, excludePreset, excludeCustom []uuid.UUID, language string, includePremium bool) (*database.PickedQuestion, error) {
	if s.question == nil {
		return nil, database.ErrQuestionExhausted
	}
	return s.question, nil
}

func (s *fakeStore) UsedQuestionIDs(roomID uuid.UUID) ([]uuid.UUID, error) { return nil, nil }

func (s *fakeStore) SetCurrentQuestion(roomID uuid.UUID, questionID *uuid.UUID) error {
	s.room.CurrentQuestionID = questionID
	return nil
}

func (s *fakeStore) UpdateRoomStatus(roomID uuid.UUID, status models.GameStatus) error {
	s.room.Status = status
	s.statusWrites = append(s.statusWrites, status)
	return nil
}

func (s *fakeStore) AdvanceRound(roomID uuid.UUID, round int) error {
	if round > s.room.CurrentRound {
		s.room.CurrentRound = round
	}
	s.roundWrites = append(s.roundWrites, round)
	return nil
}

func (s *fakeStore) CastVote(roomID, questionID uuid.UUID, round int, voterID, votedForID uuid.UUID) (*models.Vote, error) {
	if s.castErr != nil {
		return nil, s.castErr
	}
	s.castVotes = append(s.castVotes, votedForID)
	s.voteCount++
	return &models.Vote{RoomID: roomID, Round: round, VoterID: voterID, VotedForID: votedForID}, nil
}

func (s *fakeStore) GetVoteCount(roomID uuid.UUID, round int) (int, error) {
	if s.voteCountErr != nil {
		return 0, s.voteCountErr
	}
	return s.voteCount, nil
}

func (s *fakeStore) GetUserVote(roomID uuid.UUID, round int, voterID uuid.UUID) (*models.Vote, error) {
	return s.userVote, nil
}

func (s *fakeStore) ResolveRound(roomID uuid.UUID, round int, questionID uuid.UUID) (*models.RoundResult, error) {
	s.resolved++
	if s.result == nil || s.result.Round != round {
		s.result = &models.RoundResult{RoomID: roomID, Round: round, TotalVotes: s.voteCount}
	}
	return s.result, nil
}

func (s *fakeStore) GetRoundResults(roomID uuid.UUID, round int) (*models.RoundResult, error) {
	if s.result != nil && s.result.Round == round {
		return s.result, nil
	}
	return nil, nil
}

type fakeBus struct {
	sent      []realtime.Event
	listeners []func(realtime.Event)
	presence  []realtime.PresenceRecord
}

func (b *fakeBus) SendEvent(t realtime.EventType, payload interface{}) error {
	ev, err := realtime.NewEvent(t, payload)
	if err != nil {
		return err
	}
	b.sent = append(b.sent, ev)
	return nil
}

func (b *fakeBus) Subscribe(fn func(realtime.Event)) func() {
	b.listeners = append(b.listeners, fn)
	return func() {}
}

func (b *fakeBus) Players() []realtime.PresenceRecord { return b.presence }
func (b *fakeBus) Connected() bool                    { return true }

// deliver pushes an event to the machine the way the coordinator would,
// including the sender's own echo.
func (b *fakeBus) deliver(t *testing.T, typ realtime.EventType, payload interface{}) {
	t.Helper()
	ev, err := realtime.NewEvent(typ, payload)
	require.NoError(t, err)
	for _, fn := range b.listeners {
		fn(ev)
	}
}

func (b *fakeBus) lastSent(t *testing.T) realtime.Event {
	t.Helper()
	require.NotEmpty(t, b.sent)
	return b.sent[len(b.sent)-1]
}

func testRoom(hostID uuid.UUID) *models.Room {
	return &models.Room{
		ID:           uuid.New(),
		Code:         "ABC123",
		HostID:       hostID,
		Vibe:         models.VibeParty,
		Status:       models.StatusLobby,
		CurrentRound: 1,
		HostLanguage: "en",
	}
}

func testPlayers(ids ...uuid.UUID) []models.Player {
	players := make([]models.Player, 0, len(ids))
	for i, id := range ids {
		players = append(players, models.Player{
			ID:       uuid.New(),
			UserID:   id,
			Username: "p",
			IsActive: true,
			JoinedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
	}
	return players
}

func testQuestion() *database.PickedQuestion {
	return &database.PickedQuestion{ID: uuid.New(), Vibe: models.VibeParty, Text: "Who would?"}
}

func newTestMachine(t *testing.T, store *fakeStore, bus *fakeBus, userID uuid.UUID) *Machine {
	t.Helper()
	m := NewMachine(store, bus, userID, "tester")
	require.NoError(t, m.Load("ABC123"))
	return m
}

func TestStartGameHostOnly(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host, guest), question: testQuestion()}

	m := newTestMachine(t, store, &fakeBus{}, guest)
	assert.ErrorIs(t, m.StartGame(), ErrNotHost)
	assert.Equal(t, PhaseLobby, m.Snapshot().Phase)
}

func TestStartGameNeedsTwoPlayers(t *testing.T) {
	host := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host), question: testQuestion()}

	m := newTestMachine(t, store, &fakeBus{}, host)
	assert.ErrorIs(t, m.StartGame(), ErrTooFewPlayers)
}

func TestStartGameTransitionsAndBroadcasts(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host, guest), question: testQuestion()}
	bus := &fakeBus{}

	m := newTestMachine(t, store, bus, host)
	require.NoError(t, m.StartGame())

	snap := m.Snapshot()
	assert.Equal(t, PhaseVoting, snap.Phase)
	assert.Equal(t, models.StatusPlaying, snap.Status)
	require.NotNil(t, snap.Question)
	assert.Equal(t, store.question.ID, snap.Question.ID)
	assert.Equal(t, realtime.EventGameStart, bus.lastSent(t).Type)
	assert.Equal(t, []models.GameStatus{models.StatusPlaying}, store.statusWrites)
}

func TestLastVoterTriggersResolution(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host, guest), question: testQuestion()}
	bus := &fakeBus{}

	m := newTestMachine(t, store, bus, host)
	require.NoError(t, m.StartGame())

	// The other player's vote arrives first.
	store.voteCount = 1
	bus.deliver(t, realtime.EventVoteCast, realtime.VoteCastPayload{VoterID: guest, Round: 1})
	assert.Equal(t, 1, m.Snapshot().VoteCount)

	require.NoError(t, m.CastVote(guest))

	snap := m.Snapshot()
	assert.Equal(t, PhaseResolved, snap.Phase)
	assert.Equal(t, 2, snap.VoteCount)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 1, store.resolved)
	assert.Equal(t, realtime.EventRoundComplete, bus.lastSent(t).Type)
}

func TestEarlyVoterWaitsForRoundComplete(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host, guest), question: testQuestion()}
	bus := &fakeBus{}

	m := newTestMachine(t, store, bus, host)
	require.NoError(t, m.StartGame())
	require.NoError(t, m.CastVote(guest))
	assert.Equal(t, PhaseVoted, m.Snapshot().Phase)
	assert.Zero(t, store.resolved)

	// Remote vote_cast never resolves locally; the round_complete broadcast
	// plus a store read does.
	store.voteCount = 2
	bus.deliver(t, realtime.EventVoteCast, realtime.VoteCastPayload{VoterID: guest, Round: 1})
	assert.Equal(t, PhaseVoted, m.Snapshot().Phase)

	store.result = &models.RoundResult{RoomID: store.room.ID, Round: 1, TotalVotes: 2}
	bus.deliver(t, realtime.EventRoundComplete, realtime.RoundCompletePayload{Round: 1})

	snap := m.Snapshot()
	assert.Equal(t, PhaseResolved, snap.Phase)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 2, snap.Result.TotalVotes)
}

func TestOwnVoteEchoNotDoubleCounted(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	other := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host, guest, other), question: testQuestion()}
	bus := &fakeBus{}

	m := newTestMachine(t, store, bus, host)
	require.NoError(t, m.StartGame())
	require.NoError(t, m.CastVote(guest))
	assert.Equal(t, 1, m.Snapshot().VoteCount)

	// The channel is self-inclusive: our own broadcast comes back.
	bus.deliver(t, realtime.EventVoteCast, realtime.VoteCastPayload{VoterID: host, Round: 1})
	assert.Equal(t, 1, m.Snapshot().VoteCount)
}

func TestStaleRoundVoteCastDiscarded(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	other := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host, guest, other), question: testQuestion()}
	bus := &fakeBus{}

	m := newTestMachine(t, store, bus, host)
	require.NoError(t, m.StartGame())

	bus.deliver(t, realtime.EventVoteCast, realtime.VoteCastPayload{VoterID: guest, Round: 7})
	assert.Zero(t, m.Snapshot().VoteCount)
}

func TestDuplicateVoteReconciles(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	other := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host, guest, other), question: testQuestion()}
	bus := &fakeBus{}

	m := newTestMachine(t, store, bus, host)
	require.NoError(t, m.StartGame())

	store.castErr = database.ErrDuplicateVote
	assert.ErrorIs(t, m.CastVote(guest), ErrAlreadyVoted)

	snap := m.Snapshot()
	assert.Equal(t, PhaseVoted, snap.Phase)
	assert.True(t, snap.HasVoted)
	assert.Zero(t, snap.VoteCount)
	assert.Empty(t, bus.sent[1:]) // only the game_start broadcast went out
}

func TestLoadRestoresVoteFromStore(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	room := testRoom(host)
	room.Status = models.StatusPlaying
	q := testQuestion()
	room.CurrentQuestionID = &q.ID
	store := &fakeStore{
		room:      room,
		players:   testPlayers(host, guest),
		question:  q,
		voteCount: 1,
		userVote:  &models.Vote{RoomID: room.ID, Round: 1, VoterID: host, VotedForID: guest},
	}

	m := newTestMachine(t, store, &fakeBus{}, host)

	snap := m.Snapshot()
	assert.Equal(t, PhaseVoted, snap.Phase)
	assert.True(t, snap.HasVoted)
	require.NotNil(t, snap.VotedFor)
	assert.Equal(t, guest, *snap.VotedFor)
	assert.Equal(t, 1, snap.VoteCount)
	require.NotNil(t, snap.Question)
	assert.Equal(t, q.ID, snap.Question.ID)
}

func TestLoadPersistedResultWins(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	room := testRoom(host)
	room.Status = models.StatusPlaying
	q := testQuestion()
	room.CurrentQuestionID = &q.ID
	store := &fakeStore{
		room:     room,
		players:  testPlayers(host, guest),
		question: q,
		result:   &models.RoundResult{RoomID: room.ID, Round: 1, TotalVotes: 2},
	}

	m := newTestMachine(t, store, &fakeBus{}, host)

	snap := m.Snapshot()
	assert.Equal(t, PhaseResolved, snap.Phase)
	require.NotNil(t, snap.Result)
}

func TestNextRoundResetsTally(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host, guest), question: testQuestion()}
	bus := &fakeBus{}

	m := newTestMachine(t, store, bus, host)
	require.NoError(t, m.StartGame())

	store.voteCount = 1
	bus.deliver(t, realtime.EventVoteCast, realtime.VoteCastPayload{VoterID: guest, Round: 1})
	require.NoError(t, m.CastVote(guest))
	require.Equal(t, PhaseResolved, m.Snapshot().Phase)

	store.question = testQuestion()
	require.NoError(t, m.NextRound())

	snap := m.Snapshot()
	assert.Equal(t, PhaseVoting, snap.Phase)
	assert.Equal(t, 2, snap.Round)
	assert.Zero(t, snap.VoteCount)
	assert.False(t, snap.HasVoted)
	assert.Nil(t, snap.Result)
	assert.Equal(t, realtime.EventNextRound, bus.lastSent(t).Type)
	assert.Equal(t, []int{2}, store.roundWrites)
}

func TestNewRoundBroadcastMovesFollower(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	room := testRoom(host)
	store := &fakeStore{room: room, players: testPlayers(host, guest), question: testQuestion()}
	bus := &fakeBus{}

	m := newTestMachine(t, store, bus, guest)
	require.Equal(t, PhaseLobby, m.Snapshot().Phase)

	q := realtime.QuestionPayload{ID: uuid.New(), Text: "Who?", Vibe: models.VibeParty}
	bus.deliver(t, realtime.EventGameStart, realtime.GameStartPayload{Question: q, Round: 1})

	snap := m.Snapshot()
	assert.Equal(t, PhaseVoting, snap.Phase)
	require.NotNil(t, snap.Question)
	assert.Equal(t, q.ID, snap.Question.ID)

	// A duplicate delivery of the same broadcast is a no-op.
	bus.deliver(t, realtime.EventGameStart, realtime.GameStartPayload{Question: q, Round: 1})
	assert.Equal(t, PhaseVoting, m.Snapshot().Phase)
}

func TestGameStartRedeliveredAfterVoteKeepsState(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	other := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host, guest, other), question: testQuestion()}
	bus := &fakeBus{}

	m := newTestMachine(t, store, bus, host)
	require.NoError(t, m.StartGame())
	require.NoError(t, m.CastVote(guest))

	// At-least-once delivery: the same game_start may land again after the
	// vote was cast.
	q := realtime.QuestionPayload{ID: store.question.ID, Text: store.question.Text, Vibe: store.question.Vibe}
	bus.deliver(t, realtime.EventGameStart, realtime.GameStartPayload{Question: q, Round: 1})

	snap := m.Snapshot()
	assert.Equal(t, PhaseVoted, snap.Phase)
	assert.True(t, snap.HasVoted)
	assert.Equal(t, 1, snap.VoteCount)
	require.NotNil(t, snap.VotedFor)
	assert.Equal(t, guest, *snap.VotedFor)
}

func TestNextRoundRedeliveredAfterResolveKeepsResult(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host, guest), question: testQuestion()}
	bus := &fakeBus{}

	m := newTestMachine(t, store, bus, host)
	require.NoError(t, m.StartGame())

	store.voteCount = 1
	bus.deliver(t, realtime.EventVoteCast, realtime.VoteCastPayload{VoterID: guest, Round: 1})
	require.NoError(t, m.CastVote(guest))
	require.NoError(t, m.NextRound())

	store.voteCount = 1
	bus.deliver(t, realtime.EventVoteCast, realtime.VoteCastPayload{VoterID: guest, Round: 2})
	require.NoError(t, m.CastVote(guest))
	require.Equal(t, PhaseResolved, m.Snapshot().Phase)

	// Redelivery of the round-2 start must not reopen the resolved round.
	snap := m.Snapshot()
	q := *snap.Question
	bus.deliver(t, realtime.EventNextRound, realtime.NextRoundPayload{Question: q, Round: 2})

	snap = m.Snapshot()
	assert.Equal(t, PhaseResolved, snap.Phase)
	require.NotNil(t, snap.Result)
}

func TestLoadFailureReturnsToIdle(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	room := testRoom(host)
	room.Status = models.StatusPlaying
	q := testQuestion()
	room.CurrentQuestionID = &q.ID
	store := &fakeStore{
		room:         room,
		players:      testPlayers(host, guest),
		question:     q,
		voteCountErr: errors.New("connection reset"),
	}

	m := NewMachine(store, &fakeBus{}, host, "tester")
	require.Error(t, m.Load("ABC123"))
	assert.Equal(t, PhaseIdle, m.Snapshot().Phase)
}

func TestSkipQuestionClearsVotes(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host, guest), question: testQuestion()}
	bus := &fakeBus{}

	m := newTestMachine(t, store, bus, host)
	require.NoError(t, m.StartGame())
	require.NoError(t, m.CastVote(guest))

	replacement := testQuestion()
	store.question = replacement
	require.NoError(t, m.SkipQuestion())

	snap := m.Snapshot()
	assert.Equal(t, PhaseVoting, snap.Phase)
	assert.Equal(t, 1, snap.Round)
	assert.Zero(t, snap.VoteCount)
	assert.False(t, snap.HasVoted)
	assert.Equal(t, replacement.ID, snap.Question.ID)
	assert.Equal(t, realtime.EventQuestionSkipped, bus.lastSent(t).Type)
}

func TestGameEndFromBroadcast(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host, guest), question: testQuestion()}
	bus := &fakeBus{}

	m := newTestMachine(t, store, bus, guest)
	bus.deliver(t, realtime.EventGameEnd, nil)
	assert.Equal(t, PhaseFinished, m.Snapshot().Phase)
}

func TestUnknownEventIgnored(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	store := &fakeStore{room: testRoom(host), players: testPlayers(host, guest), question: testQuestion()}
	bus := &fakeBus{}

	m := newTestMachine(t, store, bus, host)
	for _, fn := range bus.listeners {
		fn(realtime.Event{Type: "confetti", Payload: json.RawMessage(`{"x":1}`)})
	}
	assert.Equal(t, PhaseLobby, m.Snapshot().Phase)
}
