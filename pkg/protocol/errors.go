package protocol

import "errors"

var (
	ErrInvalidEnvelope        = errors.New("frame is not a valid envelope")
	ErrMissingEvent           = errors.New("envelope has no event name")
	ErrMissingPayload         = errors.New("envelope has no payload")
	ErrInvalidPayload         = errors.New("invalid JSON payload")
	ErrInvalidSessionID       = errors.New("session ID must be 1-64 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidCommand         = errors.New("unknown command")
	ErrMissingSlideIndex      = errors.New("goto command requires slideIndex")
	ErrInvalidSlideIndex      = errors.New("slideIndex must be non-negative")
	ErrInvalidScrollDirection = errors.New("scroll direction must be 'up' or 'down'")
	ErrMissingScrollPosition  = errors.New("scroll-sync command requires scrollPosition")
	ErrInvalidScrollPosition  = errors.New("scrollPosition must be non-negative")
	ErrInvalidSlideState      = errors.New("currentSlide must be within [0, totalSlides)")
)
