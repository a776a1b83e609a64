package protocol

import "regexp"

var sessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidSessionID checks the opaque session identifier format. The limit
// keeps identifiers printable in logs and URLs; the character class matches
// what clients generate.
func IsValidSessionID(sessionID string) bool {
	if len(sessionID) < 1 || len(sessionID) > 64 {
		return false
	}
	return sessionIDRegex.MatchString(sessionID)
}

// ValidateSlideState checks the presenter-published slide counters.
// currentSlide must stay within [0, totalSlides) whenever the deck is
// non-empty; an empty deck is represented as 0/0.
func ValidateSlideState(currentSlide, totalSlides int) error {
	if currentSlide < 0 || totalSlides < 0 {
		return ErrInvalidSlideState
	}
	if totalSlides > 0 && currentSlide >= totalSlides {
		return ErrInvalidSlideState
	}
	if totalSlides == 0 && currentSlide != 0 {
		return ErrInvalidSlideState
	}
	return nil
}

// Validate checks command shape before it is relayed. Navigation bounds are
// the presenter's concern; only structural validity is enforced here.
func (c *Command) Validate() error {
	if !IsValidSessionID(c.SessionID) {
		return ErrInvalidSessionID
	}

	switch c.Command {
	case CommandNext, CommandPrevious:
		return nil

	case CommandGoto:
		if c.SlideIndex == nil {
			return ErrMissingSlideIndex
		}
		if *c.SlideIndex < 0 {
			return ErrInvalidSlideIndex
		}
		return nil

	case CommandScroll:
		if c.ScrollDirection != ScrollUp && c.ScrollDirection != ScrollDown {
			return ErrInvalidScrollDirection
		}
		return nil

	case CommandScrollSync:
		if c.ScrollPosition == nil {
			return ErrMissingScrollPosition
		}
		if *c.ScrollPosition < 0 {
			return ErrInvalidScrollPosition
		}
		return nil

	default:
		return ErrInvalidCommand
	}
}
