package protocol

import "encoding/json"

// Event names are the wire contract shared with independently implemented
// clients and must not change.
const (
	EventJoinPresenter       = "join-presenter"
	EventJoinRemote          = "join-remote"
	EventJoinAck             = "join-ack"
	EventSyncSlide           = "sync-slide"
	EventPresentationContent = "presentation-content"
	EventScrollSync          = "scroll-sync"
	EventRemoteCommand       = "remote-command"
	EventPresentationEnded   = "presentation-ended"
)

// Commands a remote may issue against the session's presenter.
const (
	CommandNext       = "next"
	CommandPrevious   = "previous"
	CommandGoto       = "goto"
	CommandScroll     = "scroll"
	CommandScrollSync = "scroll-sync"
)

const (
	ScrollUp   = "up"
	ScrollDown = "down"
)

// Participant roles within a session.
const (
	RolePresenter = "presenter"
	RoleRemote    = "remote"
)

// Join failure reasons carried in the ack Error field. Clients match on
// these exact strings, so they are part of the wire contract.
const (
	JoinErrSessionNotFound = "session not found"
	JoinErrInvalidSession  = "invalid session ID"
	JoinErrInvalidPayload  = "invalid join payload"
)

// Envelope frames every message on the relay channel. Data is kept raw so
// the coordinator can forward payloads verbatim without re-encoding.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope wraps a payload under an event name.
func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, ErrInvalidPayload
	}
	env.Data = data
	return env, nil
}

// ParseEnvelope decodes a raw frame into an envelope.
func ParseEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, ErrInvalidEnvelope
	}
	if env.Event == "" {
		return Envelope{}, ErrMissingEvent
	}
	return env, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return ErrMissingPayload
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return ErrInvalidPayload
	}
	return nil
}

// Encode renders the envelope as a single text frame.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	return data, nil
}

// JoinRequest opens a session as presenter or remote. It must be the first
// frame on a new connection.
type JoinRequest struct {
	SessionID string `json:"sessionId"`
}

// JoinAck answers a join request. Slide fields are present only on success;
// Error only on failure.
type JoinAck struct {
	Success      bool   `json:"success"`
	CurrentSlide *int   `json:"currentSlide,omitempty"`
	TotalSlides  *int   `json:"totalSlides,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SlideState is published by the presenter and fanned out to remotes as
// the sync-slide payload.
type SlideState struct {
	CurrentSlide int `json:"currentSlide"`
	TotalSlides  int `json:"totalSlides"`
}

// ContentPayload carries the mirrored HTML snapshot. Content may itself be
// a JSON document in the structured encoding; see DecodeMirror.
type ContentPayload struct {
	Content        string `json:"content"`
	ScrollPosition int    `json:"scrollPosition,omitempty"`
}

// ScrollPayload is the lightweight scroll-sync update.
type ScrollPayload struct {
	ScrollPosition int `json:"scrollPosition"`
}

// Command is the remote-command payload, forwarded verbatim from a remote
// to the session's presenter.
type Command struct {
	SessionID       string `json:"sessionId"`
	Command         string `json:"command"`
	SlideIndex      *int   `json:"slideIndex,omitempty"`
	ScrollDirection string `json:"scrollDirection,omitempty"`
	ScrollPosition  *int   `json:"scrollPosition,omitempty"`
}
