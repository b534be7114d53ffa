package domain

import "errors"

type ErrorKind string

const (
	KindAuth         ErrorKind = "auth_error"
	KindNotFound     ErrorKind = "not_found"
	KindVoteConflict ErrorKind = "vote_conflict"
	KindInvalidInput ErrorKind = "invalid_input"
	KindRateLimited  ErrorKind = "rate_limited"
	KindInternal     ErrorKind = "internal_error"
)

// Error is what every rejected action resolves to. Message is shown to the
// acting client as is.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrNotAuthenticated = &Error{Kind: KindAuth, Message: "Not authenticated"}
	ErrNotInRoom        = &Error{Kind: KindAuth, Message: "Not in a room"}
	ErrNotHost          = &Error{Kind: KindAuth, Message: "Only the host can create polls"}

	ErrRoomNotFound   = &Error{Kind: KindNotFound, Message: "Room not found"}
	ErrPollNotFound   = &Error{Kind: KindNotFound, Message: "Poll not found"}
	ErrOptionNotFound = &Error{Kind: KindNotFound, Message: "Option not found"}

	ErrCannotChangeVote = &Error{Kind: KindVoteConflict, Message: "You cannot change your vote in this poll"}
	ErrDuplicateVote    = &Error{Kind: KindVoteConflict, Message: "You've already voted for this option"}

	ErrBadPayload    = &Error{Kind: KindInvalidInput, Message: "Invalid payload"}
	ErrUnknownAction = &Error{Kind: KindInvalidInput, Message: "Unknown action"}
	ErrRateLimited   = &Error{Kind: KindRateLimited, Message: "Too many requests"}
)

// Internal wraps an unexpected failure under a client-facing message.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf reports the taxonomy bucket of err. Foreign errors are internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-facing text for err without wrapped details.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error"
}
