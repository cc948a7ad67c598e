package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalid      = errors.New("invalid")
	ErrMalformed    = errors.New("malformed event")
	ErrNotJoined    = errors.New("session not joined to document")
	ErrLoadTimeout  = errors.New("document load timed out")
	ErrLoadFailed   = errors.New("document load failed")
	ErrClosed       = errors.New("closed")
	ErrSlowConsumer = errors.New("slow consumer")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether a join failure is transient and the client
// should simply try again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLoadTimeout) || errors.Is(err, ErrLoadFailed)
}
