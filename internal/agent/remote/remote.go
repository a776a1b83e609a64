// Package remote implements the controller client side of a session: it
// tracks the presenter's published state and issues navigation commands
// back through the relay.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"slidecast/pkg/protocol"
)

// State is the remote lifecycle state. StateError is terminal.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateJoining
	StateConnected
	StateDisconnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateJoining:
		return "joining"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Options configures a remote agent.
type Options struct {
	ServerURL         string
	SessionID         string
	HandshakeTimeout  time.Duration
	ReconnectInterval time.Duration
}

// Handlers are the remote's render callbacks. All are optional and are
// invoked from the agent's read goroutine.
type Handlers struct {
	OnState   func(State)
	OnSlide   func(current, total int)
	OnContent func(m protocol.Mirror)
	OnScroll  func(position int)
	OnEnded   func()
}

// Remote mirrors one session's presenter state. It keeps the last known
// slide position so command boundary checks work without a round trip.
type Remote struct {
	opts     Options
	handlers Handlers

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	currentSlide   int
	totalSlides    int
	scrollPosition int
	endedNotified  bool
	closed         bool
}

// New validates options and builds an idle remote.
func New(opts Options, handlers Handlers) (*Remote, error) {
	if opts.ServerURL == "" {
		return nil, fmt.Errorf("server URL cannot be empty")
	}
	if !protocol.IsValidSessionID(opts.SessionID) {
		return nil, protocol.ErrInvalidSessionID
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 2 * time.Second
	}

	return &Remote{
		opts:     opts,
		handlers: handlers,
		state:    StateIdle,
	}, nil
}

// Run connects and follows the session until ctx is cancelled, Close is
// called, or the join fails terminally (unknown session). Transport drops
// trigger a fresh join handshake after the reconnect interval.
func (r *Remote) Run(ctx context.Context) error {
	for {
		err := r.session(ctx)

		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()
		if closed || ctx.Err() != nil {
			r.setState(StateDisconnected)
			return nil
		}

		// An explicit rejection will not heal by retrying; surface it
		// and stop. Transport errors retry.
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrJoinRejected) {
			r.setState(StateError)
			return err
		}
		if err != nil {
			log.Debug().Str("module", "remote").Err(err).Msg("session interrupted")
		}

		r.setState(StateDisconnected)
		select {
		case <-time.After(r.opts.ReconnectInterval):
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Remote) session(ctx context.Context) error {
	r.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: r.opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, r.opts.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", r.opts.ServerURL, err)
	}

	r.setState(StateJoining)
	ack, err := r.join(conn)
	if err != nil {
		conn.Close()
		return err
	}

	r.mu.Lock()
	r.conn = conn
	// A fresh join means a fresh presentation as far as the ended signal
	// is concerned.
	r.endedNotified = false
	if ack.CurrentSlide != nil {
		r.currentSlide = *ack.CurrentSlide
	}
	if ack.TotalSlides != nil {
		r.totalSlides = *ack.TotalSlides
	}
	current, total := r.currentSlide, r.totalSlides
	r.mu.Unlock()

	r.setState(StateConnected)
	if r.handlers.OnSlide != nil {
		r.handlers.OnSlide(current, total)
	}

	defer func() {
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		conn.Close()
	}()

	return r.readLoop(ctx, conn)
}

func (r *Remote) join(conn *websocket.Conn) (protocol.JoinAck, error) {
	env, err := protocol.NewEnvelope(protocol.EventJoinRemote, protocol.JoinRequest{
		SessionID: r.opts.SessionID,
	})
	if err != nil {
		return protocol.JoinAck{}, err
	}
	frame, err := env.Encode()
	if err != nil {
		return protocol.JoinAck{}, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return protocol.JoinAck{}, fmt.Errorf("failed to send join request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(r.opts.HandshakeTimeout)); err != nil {
		return protocol.JoinAck{}, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return protocol.JoinAck{}, fmt.Errorf("failed to read join ack: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	ackEnv, err := protocol.ParseEnvelope(data)
	if err != nil {
		return protocol.JoinAck{}, err
	}
	if ackEnv.Event != protocol.EventJoinAck {
		return protocol.JoinAck{}, ErrUnexpectedAck
	}
	var ack protocol.JoinAck
	if err := ackEnv.Decode(&ack); err != nil {
		return protocol.JoinAck{}, err
	}
	if !ack.Success {
		if ack.Error == protocol.JoinErrSessionNotFound {
			return protocol.JoinAck{}, ErrSessionNotFound
		}
		return protocol.JoinAck{}, fmt.Errorf("%w: %s", ErrJoinRejected, ack.Error)
	}
	return ack, nil
}

func (r *Remote) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			log.Debug().Str("module", "remote").Err(err).Msg("dropping malformed frame")
			continue
		}
		r.handleEvent(env)
	}
}

func (r *Remote) handleEvent(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventSyncSlide:
		var state protocol.SlideState
		if err := env.Decode(&state); err != nil {
			return
		}
		r.mu.Lock()
		r.currentSlide = state.CurrentSlide
		r.totalSlides = state.TotalSlides
		r.mu.Unlock()
		if r.handlers.OnSlide != nil {
			r.handlers.OnSlide(state.CurrentSlide, state.TotalSlides)
		}

	case protocol.EventPresentationContent:
		var payload protocol.ContentPayload
		if err := env.Decode(&payload); err != nil {
			return
		}
		mirror := protocol.DecodeMirror(payload)
		r.mu.Lock()
		if mirror.Structured {
			r.currentSlide = mirror.CurrentSlide
			r.totalSlides = mirror.TotalSlides
		}
		r.scrollPosition = mirror.ScrollPosition
		r.mu.Unlock()
		if r.handlers.OnContent != nil {
			r.handlers.OnContent(mirror)
		}

	case protocol.EventScrollSync:
		var payload protocol.ScrollPayload
		if err := env.Decode(&payload); err != nil {
			return
		}
		r.mu.Lock()
		r.scrollPosition = payload.ScrollPosition
		r.mu.Unlock()
		if r.handlers.OnScroll != nil {
			r.handlers.OnScroll(payload.ScrollPosition)
		}

	case protocol.EventPresentationEnded:
		r.mu.Lock()
		if r.endedNotified {
			r.mu.Unlock()
			return
		}
		r.endedNotified = true
		r.mu.Unlock()
		if r.handlers.OnEnded != nil {
			r.handlers.OnEnded()
		}
	}
}

// Next requests the next slide. Disabled at the last slide.
func (r *Remote) Next() error {
	r.mu.Lock()
	if r.totalSlides > 0 && r.currentSlide >= r.totalSlides-1 {
		r.mu.Unlock()
		return ErrAtLastSlide
	}
	r.mu.Unlock()
	return r.sendCommand(protocol.Command{
		SessionID: r.opts.SessionID,
		Command:   protocol.CommandNext,
	})
}

// Previous requests the previous slide. Disabled at slide 0.
func (r *Remote) Previous() error {
	r.mu.Lock()
	if r.currentSlide <= 0 {
		r.mu.Unlock()
		return ErrAtFirstSlide
	}
	r.mu.Unlock()
	return r.sendCommand(protocol.Command{
		SessionID: r.opts.SessionID,
		Command:   protocol.CommandPrevious,
	})
}

// Goto requests slide i, clamped to the last known deck bounds.
func (r *Remote) Goto(i int) error {
	r.mu.Lock()
	if i < 0 {
		i = 0
	}
	if r.totalSlides > 0 && i > r.totalSlides-1 {
		i = r.totalSlides - 1
	}
	r.mu.Unlock()
	return r.sendCommand(protocol.Command{
		SessionID:  r.opts.SessionID,
		Command:    protocol.CommandGoto,
		SlideIndex: &i,
	})
}

// Scroll requests a relative scroll in the given direction ("up" or "down").
func (r *Remote) Scroll(direction string) error {
	return r.sendCommand(protocol.Command{
		SessionID:       r.opts.SessionID,
		Command:         protocol.CommandScroll,
		ScrollDirection: direction,
	})
}

// SyncScroll requests an absolute scroll position on the presenter.
func (r *Remote) SyncScroll(position int) error {
	if position < 0 {
		position = 0
	}
	return r.sendCommand(protocol.Command{
		SessionID:      r.opts.SessionID,
		Command:        protocol.CommandScrollSync,
		ScrollPosition: &position,
	})
}

func (r *Remote) sendCommand(cmd protocol.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	env, err := protocol.NewEnvelope(protocol.EventRemoteCommand, cmd)
	if err != nil {
		return err
	}
	frame, err := env.Encode()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.state != StateConnected {
		return ErrNotConnected
	}
	if err := r.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

// Slide reports the last known slide index and deck size.
func (r *Remote) Slide() (current, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSlide, r.totalSlides
}

// ScrollPosition reports the last known scroll position.
func (r *Remote) ScrollPosition() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scrollPosition
}

// State reports the lifecycle state.
func (r *Remote) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Close stops the remote permanently.
func (r *Remote) Close() error {
	r.mu.Lock()
	r.closed = true
	conn := r.conn
	r.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (r *Remote) setState(s State) {
	r.mu.Lock()
	if r.state == s {
		r.mu.Unlock()
		return
	}
	r.state = s
	cb := r.handlers.OnState
	r.mu.Unlock()

	if cb != nil {
		cb(s)
	}
}
