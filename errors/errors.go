package errors

import "fmt"

// Command errors, surfaced to the caller and never retried automatically.
var (
	ErrUnauthorized      = fmt.Errorf("user must be logged in")
	ErrInvalidArgument   = fmt.Errorf("invalid argument")
	ErrIllegalReceiver   = fmt.Errorf("receiver must be different than the current user")
	ErrChatAlreadyExists = fmt.Errorf("chat already exists")
	ErrChatNotFound      = fmt.Errorf("chat doesn't exist")
)

// Account errors.
var (
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password is not complex enough")
)

// Sync engine internals.
var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrFeedClosed         = fmt.Errorf("feed is closed")
	ErrUnknownFeed        = fmt.Errorf("unknown feed")
	ErrAlreadyLoading     = fmt.Errorf("a batch is already loading for this feed")
	ErrUnsupportedContent = fmt.Errorf("unsupported message content")
)
