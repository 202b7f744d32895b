package calls

import "errors"

var (
	// ErrValidation covers malformed ids, unparseable times and missing fields.
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	// ErrConflict is returned when a transition is not allowed from the current status.
	ErrConflict = errors.New("conflict")
	ErrTooSoon  = errors.New("scheduled time too soon")
	// ErrProvider wraps failures to initiate a provider side effect.
	ErrProvider = errors.New("provider error")
	// ErrUnknownHandle is returned for status callbacks that match no call.
	ErrUnknownHandle = errors.New("unknown provider call handle")

	// ErrUnchanged may be returned by an Update mutation to skip the write.
	ErrUnchanged = errors.New("unchanged")
)
