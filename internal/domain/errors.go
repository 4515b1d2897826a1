package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrUnknownQuestionKind indicates a question kind outside the closed enum.
	ErrUnknownQuestionKind = errors.New("unknown question kind")
	// ErrAttemptFinalized is returned when mutating a submitted attempt.
	ErrAttemptFinalized = errors.New("attempt already finalized")
	// ErrInvalidTransition is returned on a state-machine violation.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrQuestionLocked is returned when answering a question graded in review mode.
	ErrQuestionLocked = errors.New("question locked by review grading")
	// ErrSnapshotNotFound indicates no persisted attempt exists for the key.
	ErrSnapshotNotFound = errors.New("attempt snapshot not found")
	// ErrRoomFull is returned when a third participant tries to join a match room.
	ErrRoomFull = errors.New("match room is full")
)
