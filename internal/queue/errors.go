package queue

import "errors"

var (
	// ErrNotFound: the subject or group does not exist (often an expected race with a concurrent removal).
	ErrNotFound = errors.New("not found")
	// ErrForbidden: the caller may not act on the target.
	ErrForbidden = errors.New("forbidden")
	// ErrQueueInactive: joins are rejected while the queue is closed.
	ErrQueueInactive = errors.New("queue inactive")
	// ErrAlreadyQueued: a requested member already sits in a group of this subject.
	ErrAlreadyQueued = errors.New("already queued")
	// ErrInvalidArgument: malformed request (bad delay amount, empty member set, ...).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict: the optimistic write lost the race; the whole operation must be retried.
	ErrConflict = errors.New("conflict")
	// ErrStorageUnavailable: transient storage failure, safe to retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Retryable reports whether err is worth retrying as a whole operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStorageUnavailable)
}
