package shared

import "errors"

// UserFacing is implemented by errors that carry a message safe to show
// to end users. Everything else renders as a generic failure.
type UserFacing interface {
	UserMessage() string
}

// UserSafeMessage converts an internal error into a message that can be
// rendered in a form without leaking implementation details.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var uf UserFacing
	if errors.As(err, &uf) {
		return uf.UserMessage()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record does not exist."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password."
	case errors.Is(err, ErrIdempotencyConflict):
		return "This request was already processed."
	default:
		return "Something went wrong. Please try again."
	}
}
