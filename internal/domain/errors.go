package domain

import "errors"

// Kind classifies an error for callers that translate it (HTTP status codes, CLI exit messages).
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindBadRequest
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified domain error. Sentinels below are compared with errors.Is.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// KindOf reports the kind of the first domain error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

var (
	// ErrContestNotFound is returned when no contest matches an id or join code,
	// or the caller cannot see it.
	ErrContestNotFound = newError(KindNotFound, "contest not found")
	// ErrParticipantNotFound is returned when the user has no participant record.
	ErrParticipantNotFound = newError(KindNotFound, "participant not found")
	// ErrNotSubmitted is returned by rank queries for participants that have not submitted.
	ErrNotSubmitted = newError(KindNotFound, "participant has not submitted")

	ErrNotJoined          = newError(KindForbidden, "you are not part of this contest")
	ErrNotContestOwner    = newError(KindForbidden, "only the contest owner can do this")
	ErrContestAlreadyLive = newError(KindForbidden, "contest has already started")
	ErrContestEnded       = newError(KindForbidden, "contest has ended")
	ErrContestNotLive     = newError(KindForbidden, "contest is not live")
	ErrContestExpired     = newError(KindForbidden, "contest has expired")
	ErrCannotLeaveLive    = newError(KindForbidden, "cannot leave a contest that has started")
	ErrInvalidTransition  = newError(KindForbidden, "illegal contest status transition")
	ErrQuestionsLocked    = newError(KindForbidden, "contest questions can only change before it starts")
	ErrAlreadySubmitted   = newError(KindForbidden, "contest already submitted")
	ErrTimeExpired        = newError(KindForbidden, "contest time has expired")
	ErrNotStarted         = newError(KindForbidden, "contest has not been entered yet")
	ErrDeadlineNotReached = newError(KindForbidden, "contest time has not expired yet")
	ErrInvalidAttempt     = newError(KindBadRequest, "invalid question attempt")
	ErrInvalidContest     = newError(KindBadRequest, "invalid contest definition")
	ErrInvalidSubmission  = newError(KindBadRequest, "invalid submission payload")
	ErrJoinCodeTaken      = newError(KindConflict, "join code already in use")
)
