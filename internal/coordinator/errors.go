package coordinator

import "errors"

var (
	ErrAlreadyRunning   = errors.New("coordinator is already running")
	ErrNotRunning       = errors.New("coordinator is not running")
	ErrEventChannelFull = errors.New("event channel is full")
)
