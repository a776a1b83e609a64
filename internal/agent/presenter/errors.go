package presenter

import "errors"

var (
	ErrJoinRejected  = errors.New("join request was rejected")
	ErrUnexpectedAck = errors.New("expected a join-ack frame")
	ErrEmptyDeck     = errors.New("deck has no slides")
)
