package database

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrGameEnded         = errors.New("game has already ended")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrDuplicateVote     = errors.New("already voted this round")
	ErrQuestionNotFound  = errors.New("question not found")
	ErrQuestionExhausted = errors.New("no questions available")
	ErrResultNotFound    = errors.New("round result not found")
	ErrNoVotes           = errors.New("no votes cast for round")
	ErrNotAuthor         = errors.New("only the author may delete a question")
	ErrCodeSpaceBusy     = errors.New("could not allocate a unique room code")
)
