package session

import "errors"

// Registry error types. ErrSessionNotFound is the client-visible join
// failure; the rest are mapped by the relay to either a logged drop or a
// silent drop.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownSession  = errors.New("unknown session")
	ErrNotPresenter    = errors.New("connection does not hold the presenter slot")
	ErrNoPresenter     = errors.New("session has no presenter attached")
	ErrInvalidRole     = errors.New("invalid role: must be 'presenter' or 'remote'")
	ErrUnknownConn     = errors.New("connection not registered")
)
