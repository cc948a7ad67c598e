package errcode

import (
	"errors"

	appErr "github.com/xxxsen/mcollab/internal/pkg/errors"
)

const (
	ErrUnknown = 10000000 + iota
	ErrNotFound
	ErrInvalid
	ErrMalformed
	ErrNotJoined
	ErrLoadTimeout
	ErrLoadFailed
	ErrClosed
	ErrInternal
	ErrTooMany
)

// FromError maps a sentinel from internal/pkg/errors to its numeric code.
func FromError(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, appErr.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, appErr.ErrInvalid):
		return ErrInvalid
	case errors.Is(err, appErr.ErrMalformed):
		return ErrMalformed
	case errors.Is(err, appErr.ErrNotJoined):
		return ErrNotJoined
	case errors.Is(err, appErr.ErrLoadTimeout):
		return ErrLoadTimeout
	case errors.Is(err, appErr.ErrLoadFailed):
		return ErrLoadFailed
	case errors.Is(err, appErr.ErrClosed):
		return ErrClosed
	}
	return ErrUnknown
}
