package websocket

import "errors"

// Connection-related errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Table-related errors.
var (
	ErrNilConnection = errors.New("connection cannot be nil")
)

// Handler-related errors.
var (
	ErrJoinRequired = errors.New("first frame must be a join event")
)
