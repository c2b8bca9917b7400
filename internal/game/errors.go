package game

import "errors"

var (
	ErrNoRoom        = errors.New("no room loaded")
	ErrNotHost       = errors.New("only the host may do that")
	ErrTooFewPlayers = errors.New("at least two players are required")
	ErrWrongPhase    = errors.New("action not valid in current phase")
	ErrNoQuestion    = errors.New("no current question")
	ErrAlreadyVoted  = errors.New("already voted this round")
)
