package relay

import "errors"

var (
	ErrNotJoined          = errors.New("connection has not joined a session")
	ErrWrongSession       = errors.New("command session does not match connection session")
	ErrRoleNotAllowed     = errors.New("role not allowed to send this event")
	ErrRateLimitExceeded  = errors.New("command rate limit exceeded")
	ErrUnhandledEvent     = errors.New("unhandled event")
	ErrJoinAlreadyHandled = errors.New("connection already joined")
)
