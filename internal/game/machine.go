package game

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bustedgame/busted-server/internal/database"
	"github.com/bustedgame/busted-server/internal/models"
	"github.com/bustedgame/busted-server/internal/realtime"
)

// Phase of one client's session. Transitions come from two independent
// sources: local actions and remote broadcasts, both applied idempotently.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseLoading  Phase = "loading"
	PhaseLobby    Phase = "lobby"
	PhaseVoting   Phase = "voting"
	PhaseVoted    Phase = "voted"
	PhaseResolved Phase = "round_resolved"
	PhaseFinished Phase = "finished"
)

// Store is the persistent-store surface the machine depends on. The store is
// the source of truth; everything the machine holds is a disposable copy.
type Store interface {
	GetRoomByCode(code string) (*models.Room, error)
	GetPlayers(roomID uuid.UUID) ([]models.Player, error)
	LookupQuestion(roomID, questionID uuid.UUID, vibe models.Vibe) (*database.PickedQuestion, error)
	GetQuestionForRoom(roomID uuid.UUID, vibe models.Vibe, excludePreset, excludeCustom []uuid.UUID, language string, includePremium bool) (*database.PickedQuestion, error)
	UsedQuestionIDs(roomID uuid.UUID) ([]uuid.UUID, error)
	SetCurrentQuestion(roomID uuid.UUID, questionID *uuid.UUID) error
	UpdateRoomStatus(roomID uuid.UUID, status models.GameStatus) error
	AdvanceRound(roomID uuid.UUID, round int) error
	CastVote(roomID, questionID uuid.UUID, round int, voterID, votedForID uuid.UUID) (*models.Vote, error)
	GetVoteCount(roomID uuid.UUID, round int) (int, error)
	GetUserVote(roomID uuid.UUID, round int, voterID uuid.UUID) (*models.Vote, error)
	ResolveRound(roomID uuid.UUID, round int, questionID uuid.UUID) (*models.RoundResult, error)
	GetRoundResults(roomID uuid.UUID, round int) (*models.RoundResult, error)
}

// Bus is the slice of the room session coordinator the machine depends on.
type Bus interface {
	SendEvent(t realtime.EventType, payload interface{}) error
	Subscribe(fn func(realtime.Event)) func()
	Players() []realtime.PresenceRecord
	Connected() bool
}

// Snapshot is the machine's state as one value, for rendering.
type Snapshot struct {
	Phase         Phase                     `json:"phase"`
	RoomCode      string                    `json:"roomCode,omitempty"`
	Status        models.GameStatus         `json:"status,omitempty"`
	Vibe          models.Vibe               `json:"vibe,omitempty"`
	Round         int                       `json:"round"`
	Question      *realtime.QuestionPayload `json:"question,omitempty"`
	VoteCount     int                       `json:"voteCount"`
	ExpectedVotes int                       `json:"expectedVotes"`
	HasVoted      bool                      `json:"hasVoted"`
	VotedFor      *uuid.UUID                `json:"votedFor,omitempty"`
	Result        *models.RoundResult       `json:"result,omitempty"`
	IsHost        bool                      `json:"isHost"`
	Connected     bool                      `json:"connected"`
}

// Machine is one client's view of a room: a derived, disposable copy of the
// persisted state, advanced optimistically by local actions and reconciled
// by remote broadcasts and store reads. It is owned by exactly one connected
// client and never authoritative: whenever local and remote signals
// disagree, the store wins.
type Machine struct {
	store Store
	bus   Bus
	log   *logrus.Entry

	userID   uuid.UUID
	username string

	mu       sync.Mutex
	phase    Phase
	room     *models.Room
	players  []models.Player
	question *realtime.QuestionPayload
	round    int
	// loadedRound keys the vote bookkeeping: a tally belongs to exactly one
	// round, and counts for any other round are discarded.
	loadedRound int
	voteCount   int
	hasVoted    bool
	votedFor    *uuid.UUID
	result      *models.RoundResult

	unsubscribe func()
}

func NewMachine(store Store, bus Bus, userID uuid.UUID, username string) *Machine {
	m := &Machine{
		store:    store,
		bus:      bus,
		log:      logrus.WithField("user", userID),
		userID:   userID,
		username: username,
		phase:    PhaseIdle,
	}
	m.unsubscribe = bus.Subscribe(m.handleEvent)
	return m
}

// Close cancels interest in further room events. In-flight durable writes
// finish on their own; they just no longer update this machine.
func (m *Machine) Close() {
	m.unsubscribe()
}

func pickedToPayload(q *database.PickedQuestion) *realtime.QuestionPayload {
	return &realtime.QuestionPayload{ID: q.ID, Text: q.Text, Vibe: q.Vibe, IsCustom: q.IsCustom}
}

// Load pulls the room's persisted state and positions the machine in it.
// Used on entry and after any reconnect: results already persisted win over
// whatever phase the machine thought it was in, and the player's own vote is
// restored from the store, never from a missed broadcast.
func (m *Machine) Load(code string) error {
	m.mu.Lock()
	m.phase = PhaseLoading
	m.mu.Unlock()

	err := m.load(code)
	if err != nil {
		// Never strand the machine mid-load; idle is re-enterable.
		m.mu.Lock()
		m.phase = PhaseIdle
		m.mu.Unlock()
	}
	return err
}

func (m *Machine) load(code string) error {
	room, err := m.store.GetRoomByCode(code)
	if err != nil {
		return err
	}

	players, err := m.store.GetPlayers(room.ID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.room = room
	m.players = players
	m.round = room.CurrentRound
	m.loadedRound = room.CurrentRound
	m.voteCount = 0
	m.hasVoted = false
	m.votedFor = nil
	m.result = nil
	m.question = nil

	switch room.Status {
	case models.StatusFinished:
		m.phase = PhaseFinished
		return nil
	case models.StatusLobby:
		m.phase = PhaseLobby
		return nil
	}

	if room.CurrentQuestionID != nil {
		q, err := m.store.LookupQuestion(room.ID, *room.CurrentQuestionID, room.Vibe)
		if err != nil && !errors.Is(err, database.ErrQuestionNotFound) {
			return err
		}
		if q != nil {
			m.question = pickedToPayload(q)
		}
	}

	count, err := m.store.GetVoteCount(room.ID, room.CurrentRound)
	if err != nil {
		return err
	}
	m.voteCount = count

	// A persisted result always wins over "I thought I was still voting".
	result, err := m.store.GetRoundResults(room.ID, room.CurrentRound)
	if err != nil {
		return err
	}
	if result != nil {
		m.result = result
		m.phase = PhaseResolved
		return nil
	}

	vote, err := m.store.GetUserVote(room.ID, room.CurrentRound, m.userID)
	if err != nil {
		return err
	}
	if vote != nil {
		m.hasVoted = true
		m.votedFor = &vote.VotedForID
		m.phase = PhaseVoted
		return nil
	}

	m.phase = PhaseVoting
	return nil
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Phase:         m.phase,
		Round:         m.round,
		Question:      m.question,
		VoteCount:     m.voteCount,
		ExpectedVotes: m.expectedVotesLocked(),
		HasVoted:      m.hasVoted,
		VotedFor:      m.votedFor,
		Result:        m.result,
		Connected:     m.bus.Connected(),
	}
	if m.room != nil {
		snap.RoomCode = m.room.Code
		snap.Status = m.room.Status
		snap.Vibe = m.room.Vibe
		snap.IsHost = m.room.HostID == m.userID
	}
	return snap
}

// expectedVotesLocked is the full active-player count: presence when the
// channel has synced, the durable player list otherwise.
func (m *Machine) expectedVotesLocked() int {
	if n := len(m.bus.Players()); n > 0 {
		return n
	}
	return len(m.players)
}

func (m *Machine) isHostLocked() bool {
	return m.room != nil && m.room.HostID == m.userID
}

// StartGame is a host action: pick the first question, persist it with the
// playing status, transition optimistically, then broadcast game_start.
func (m *Machine) StartGame() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.room == nil {
		return ErrNoRoom
	}
	if !m.isHostLocked() {
		return ErrNotHost
	}
	if m.phase != PhaseLobby {
		return ErrWrongPhase
	}
	if m.expectedVotesLocked() < 2 {
		return ErrTooFewPlayers
	}

	question, err := m.pickQuestionLocked(nil)
	if err != nil {
		return err
	}
	if err := m.store.SetCurrentQuestion(m.room.ID, &question.ID); err != nil {
		return err
	}
	if err := m.store.UpdateRoomStatus(m.room.ID, models.StatusPlaying); err != nil {
		return err
	}

	m.room.Status = models.StatusPlaying
	m.question = pickedToPayload(question)
	m.resetRoundLocked(m.round)
	m.phase = PhaseVoting

	return m.bus.SendEvent(realtime.EventGameStart, realtime.GameStartPayload{
		Question: *m.question,
		Round:    m.round,
	})
}

// pickQuestionLocked selects the next question for the room, excluding
// everything already voted on plus extra (the question being skipped).
func (m *Machine) pickQuestionLocked(extra []uuid.UUID) (*database.PickedQuestion, error) {
	used, err := m.store.UsedQuestionIDs(m.room.ID)
	if err != nil {
		return nil, err
	}
	used = append(used, extra...)
	return m.store.GetQuestionForRoom(m.room.ID, m.room.Vibe, used, used, m.room.HostLanguage, false)
}

func (m *Machine) resetRoundLocked(round int) {
	m.round = round
	m.loadedRound = round
	m.voteCount = 0
	m.hasVoted = false
	m.votedFor = nil
	m.result = nil
	if m.room != nil {
		m.room.CurrentRound = round
	}
}

// CastVote writes the vote durably, applies the optimistic local transition,
// broadcasts it, and triggers round resolution when this submission makes
// the tally reach the full active-player count. Resolution itself is
// idempotent at the store, so racing another client here is harmless.
func (m *Machine) CastVote(target uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.room == nil {
		return ErrNoRoom
	}
	if m.question == nil {
		return ErrNoQuestion
	}
	if m.phase != PhaseVoting {
		if m.hasVoted {
			return ErrAlreadyVoted
		}
		return ErrWrongPhase
	}

	_, err := m.store.CastVote(m.room.ID, m.question.ID, m.round, m.userID, target)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateVote) {
			// The store already has our vote (e.g. double-tap or a retry
			// after reconnect). Reconcile instead of corrupting the tally.
			m.hasVoted = true
			m.phase = PhaseVoted
			return ErrAlreadyVoted
		}
		return err
	}

	m.hasVoted = true
	m.votedFor = &target
	m.voteCount++
	m.phase = PhaseVoted

	if err := m.bus.SendEvent(realtime.EventVoteCast, realtime.VoteCastPayload{
		VoterID: m.userID,
		Round:   m.round,
	}); err != nil {
		m.log.WithError(err).Warn("vote_cast broadcast failed")
	}

	if m.voteCount >= m.expectedVotesLocked() {
		m.resolveLocked()
	}
	return nil
}

// resolveLocked runs decentralized round resolution. Whichever client got to
// the store first decides the result; everyone else converges on that row.
func (m *Machine) resolveLocked() {
	result, err := m.store.ResolveRound(m.room.ID, m.round, m.question.ID)
	if err != nil {
		m.log.WithError(err).WithField("round", m.round).Error("round resolution failed")
		return
	}
	m.result = result
	m.phase = PhaseResolved

	if err := m.bus.SendEvent(realtime.EventRoundComplete, realtime.RoundCompletePayload{Round: m.round}); err != nil {
		m.log.WithError(err).Warn("round_complete broadcast failed")
	}
}

// SkipQuestion is a host action: replace the current question without
// advancing the round. A failed fetch leaves the round exactly as it was.
func (m *Machine) SkipQuestion() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.room == nil {
		return ErrNoRoom
	}
	if !m.isHostLocked() {
		return ErrNotHost
	}
	if m.phase != PhaseVoting && m.phase != PhaseVoted {
		return ErrWrongPhase
	}

	var extra []uuid.UUID
	if m.question != nil {
		extra = append(extra, m.question.ID)
	}
	question, err := m.pickQuestionLocked(extra)
	if err != nil {
		return err
	}
	if err := m.store.SetCurrentQuestion(m.room.ID, &question.ID); err != nil {
		return err
	}

	m.question = pickedToPayload(question)
	m.voteCount = 0
	m.hasVoted = false
	m.votedFor = nil
	m.phase = PhaseVoting

	return m.bus.SendEvent(realtime.EventQuestionSkipped, realtime.QuestionSkippedPayload{
		Question: *m.question,
	})
}

// NextRound is a host action from the resolved phase.
func (m *Machine) NextRound() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.room == nil {
		return ErrNoRoom
	}
	if !m.isHostLocked() {
		return ErrNotHost
	}
	if m.phase != PhaseResolved {
		return ErrWrongPhase
	}

	newRound := m.round + 1
	question, err := m.pickQuestionLocked(nil)
	if err != nil {
		return err
	}
	if err := m.store.AdvanceRound(m.room.ID, newRound); err != nil {
		return err
	}
	if err := m.store.SetCurrentQuestion(m.room.ID, &question.ID); err != nil {
		return err
	}

	m.question = pickedToPayload(question)
	m.resetRoundLocked(newRound)
	m.phase = PhaseVoting

	return m.bus.SendEvent(realtime.EventNextRound, realtime.NextRoundPayload{
		Question: *m.question,
		Round:    newRound,
	})
}

// EndGame is a host action, terminal for the room.
func (m *Machine) EndGame() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.room == nil {
		return ErrNoRoom
	}
	if !m.isHostLocked() {
		return ErrNotHost
	}

	if err := m.store.UpdateRoomStatus(m.room.ID, models.StatusFinished); err != nil {
		return err
	}
	m.room.Status = models.StatusFinished
	m.phase = PhaseFinished

	return m.bus.SendEvent(realtime.EventGameEnd, nil)
}

// handleEvent applies remote broadcasts. Every branch tolerates duplicates,
// its own echo, and state already reached via a direct store load. Unknown
// event types fall through untouched.
func (m *Machine) handleEvent(ev realtime.Event) {
	switch ev.Type {
	case realtime.EventVoteCast:
		var p realtime.VoteCastPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			m.log.WithError(err).Warn("malformed vote_cast payload")
			return
		}
		m.applyVoteCast(p)
	case realtime.EventGameStart:
		var p realtime.GameStartPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			m.log.WithError(err).Warn("malformed game_start payload")
			return
		}
		m.applyNewRound(p.Question, p.Round)
	case realtime.EventNextRound:
		var p realtime.NextRoundPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			m.log.WithError(err).Warn("malformed next_round payload")
			return
		}
		m.applyNewRound(p.Question, p.Round)
	case realtime.EventQuestionSkipped:
		var p realtime.QuestionSkippedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			m.log.WithError(err).Warn("malformed question_skipped payload")
			return
		}
		m.applyQuestionSkipped(p.Question)
	case realtime.EventRoundComplete:
		var p realtime.RoundCompletePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			m.log.WithError(err).Warn("malformed round_complete payload")
			return
		}
		m.applyRoundComplete(p.Round)
	case realtime.EventGameEnd:
		m.applyGameEnd()
	}
}

// applyVoteCast counts a remote vote. The local voter's own cast was already
// counted at submit time, so the echo is dropped, as is anything tagged with
// a round other than the one the tally belongs to.
func (m *Machine) applyVoteCast(p realtime.VoteCastPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.VoterID == m.userID {
		return
	}
	if p.Round != m.loadedRound {
		m.log.WithField("round", p.Round).Debug("discarding stale vote_cast")
		return
	}
	if m.phase != PhaseVoting && m.phase != PhaseVoted {
		return
	}
	m.voteCount++
}

func (m *Machine) applyNewRound(q realtime.QuestionPayload, round int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.room == nil {
		return
	}
	if round < m.round {
		return
	}
	// Delivery is at-least-once: a redelivered or own-echo start of the
	// current round must not reset votes already cast, whatever phase the
	// machine has reached since.
	if round == m.round && m.question != nil && m.question.ID == q.ID {
		return
	}

	m.room.Status = models.StatusPlaying
	m.question = &q
	m.resetRoundLocked(round)
	m.phase = PhaseVoting
}

func (m *Machine) applyQuestionSkipped(q realtime.QuestionPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseVoting && m.phase != PhaseVoted {
		return
	}
	if m.question != nil && m.question.ID == q.ID {
		return // own echo
	}
	m.question = &q
	m.voteCount = 0
	m.hasVoted = false
	m.votedFor = nil
	m.phase = PhaseVoting
}

// applyRoundComplete reconciles from the store rather than trusting the
// broadcast: the result row is the authoritative round-complete signal.
func (m *Machine) applyRoundComplete(round int) {
	m.mu.Lock()
	if m.room == nil || round != m.round || m.phase == PhaseResolved || m.phase == PhaseFinished {
		m.mu.Unlock()
		return
	}
	roomID := m.room.ID
	m.mu.Unlock()

	result, err := m.store.GetRoundResults(roomID, round)
	if err != nil {
		m.log.WithError(err).Warn("round_complete reconciliation failed")
		return
	}
	if result == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if round != m.round || m.phase == PhaseResolved {
		return
	}
	m.result = result
	m.phase = PhaseResolved
}

func (m *Machine) applyGameEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.room != nil {
		m.room.Status = models.StatusFinished
	}
	m.phase = PhaseFinished
}
