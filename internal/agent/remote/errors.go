package remote

import "errors"

var (
	ErrNotConnected    = errors.New("remote is not connected")
	ErrSessionNotFound = errors.New("session not found")
	ErrJoinRejected    = errors.New("join request was rejected")
	ErrUnexpectedAck   = errors.New("expected a join-ack frame")
	ErrAtFirstSlide    = errors.New("already at the first slide")
	ErrAtLastSlide     = errors.New("already at the last slide")
)
