// Package presenter implements the authoritative client side of a session:
// it drives the slide deck, mirrors rendered content to the relay, and
// applies navigation commands forwarded from remotes.
package presenter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"slidecast/pkg/protocol"
)

// State is the presenter lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateJoined
	StateDisconnected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Source supplies rendered slides. *deck.Deck satisfies it.
type Source interface {
	Len() int
	HTML(i int) string
}

// Options configures a presenter agent.
type Options struct {
	ServerURL         string
	SessionID         string
	HandshakeTimeout  time.Duration
	ReconnectInterval time.Duration
	// ScrollStep is the pixel delta applied per scroll(up|down) command.
	ScrollStep int
}

// Presenter owns the authoritative slide state for one session. Local input
// and relayed remote commands go through the same navigation methods, so
// both produce identical publishes.
type Presenter struct {
	opts   Options
	source Source

	// OnStateChange, if set, is invoked on every lifecycle transition.
	// Set before Run; not synchronized afterwards.
	OnStateChange func(State)

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	currentSlide   int
	scrollPosition int
	closed         bool
}

// New validates options and builds an idle presenter.
func New(opts Options, source Source) (*Presenter, error) {
	if opts.ServerURL == "" {
		return nil, fmt.Errorf("server URL cannot be empty")
	}
	if !protocol.IsValidSessionID(opts.SessionID) {
		return nil, protocol.ErrInvalidSessionID
	}
	if source == nil || source.Len() == 0 {
		return nil, ErrEmptyDeck
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 2 * time.Second
	}
	if opts.ScrollStep <= 0 {
		opts.ScrollStep = 120
	}

	return &Presenter{
		opts:   opts,
		source: source,
		state:  StateIdle,
	}, nil
}

// Run connects, presents, and reconnects until ctx is cancelled or Close is
// called. Every reconnect is a fresh join handshake.
func (p *Presenter) Run(ctx context.Context) error {
	for {
		if err := p.session(ctx); err != nil {
			log.Debug().Str("module", "presenter").Err(err).Msg("session ended")
		}

		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			p.setState(StateEnded)
			return nil
		}
		if ctx.Err() != nil {
			p.setState(StateEnded)
			return ctx.Err()
		}

		p.setState(StateDisconnected)
		select {
		case <-time.After(p.opts.ReconnectInterval):
		case <-ctx.Done():
			p.setState(StateEnded)
			return ctx.Err()
		}
	}
}

// session runs one connect-join-read cycle.
func (p *Presenter) session(ctx context.Context) error {
	p.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: p.opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, p.opts.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", p.opts.ServerURL, err)
	}

	if err := p.join(conn); err != nil {
		conn.Close()
		return err
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	p.setState(StateJoined)

	// The relay retains state between presenters, so a fresh join must
	// immediately assert this presenter's view of the deck.
	p.publishLocked()

	defer func() {
		p.mu.Lock()
		p.conn = nil
		p.mu.Unlock()
		conn.Close()
	}()

	return p.readLoop(ctx, conn)
}

func (p *Presenter) join(conn *websocket.Conn) error {
	env, err := protocol.NewEnvelope(protocol.EventJoinPresenter, protocol.JoinRequest{
		SessionID: p.opts.SessionID,
	})
	if err != nil {
		return err
	}
	frame, err := env.Encode()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to send join request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(p.opts.HandshakeTimeout)); err != nil {
		return err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read join ack: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	ackEnv, err := protocol.ParseEnvelope(data)
	if err != nil {
		return err
	}
	if ackEnv.Event != protocol.EventJoinAck {
		return ErrUnexpectedAck
	}
	var ack protocol.JoinAck
	if err := ackEnv.Decode(&ack); err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("%w: %s", ErrJoinRejected, ack.Error)
	}
	return nil
}

func (p *Presenter) readLoop(ctx context.Context, conn *websocket.Conn) error {
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
			log.Debug().Str("module", "presenter").Err(err).Msg("dropping malformed frame")
			continue
		}

		if env.Event != protocol.EventRemoteCommand {
			continue
		}

		var cmd protocol.Command
		if err := env.Decode(&cmd); err != nil {
			log.Debug().Str("module", "presenter").Err(err).Msg("dropping malformed command")
			continue
		}
		p.applyCommand(cmd)
	}
}

// applyCommand routes a relayed remote command through the navigation
// methods, so remote and local input are indistinguishable downstream.
func (p *Presenter) applyCommand(cmd protocol.Command) {
	switch cmd.Command {
	case protocol.CommandNext:
		p.Next()
	case protocol.CommandPrevious:
		p.Previous()
	case protocol.CommandGoto:
		if cmd.SlideIndex != nil {
			p.Goto(*cmd.SlideIndex)
		}
	case protocol.CommandScroll:
		delta := p.opts.ScrollStep
		if cmd.ScrollDirection == protocol.ScrollUp {
			delta = -delta
		}
		p.ScrollBy(delta)
	case protocol.CommandScrollSync:
		if cmd.ScrollPosition != nil {
			p.ScrollTo(*cmd.ScrollPosition)
		}
	}
}

// Next advances one slide. A no-op at the last slide.
func (p *Presenter) Next() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentSlide >= p.source.Len()-1 {
		return
	}
	p.currentSlide++
	p.scrollPosition = 0
	p.publishLockHeld()
}

// Previous steps back one slide. A no-op at slide 0.
func (p *Presenter) Previous() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentSlide <= 0 {
		return
	}
	p.currentSlide--
	p.scrollPosition = 0
	p.publishLockHeld()
}

// Goto jumps to slide i, clamped to the deck bounds.
func (p *Presenter) Goto(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 {
		i = 0
	}
	if i > p.source.Len()-1 {
		i = p.source.Len() - 1
	}
	if i == p.currentSlide {
		return
	}
	p.currentSlide = i
	p.scrollPosition = 0
	p.publishLockHeld()
}

// ScrollBy shifts the scroll position by delta pixels, floored at 0.
func (p *Presenter) ScrollBy(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.scrollPosition + delta
	if pos < 0 {
		pos = 0
	}
	p.scrollPosition = pos
	p.sendScroll()
}

// ScrollTo sets an absolute scroll position.
func (p *Presenter) ScrollTo(position int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if position < 0 {
		position = 0
	}
	p.scrollPosition = position
	p.sendScroll()
}

// Slide reports the current slide index and deck size.
func (p *Presenter) Slide() (current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentSlide, p.source.Len()
}

// State reports the lifecycle state.
func (p *Presenter) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close stops the presenter permanently.
func (p *Presenter) Close() error {
	p.mu.Lock()
	p.closed = true
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// publishLocked publishes under the lock from callers outside it.
func (p *Presenter) publishLocked() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publishLockHeld()
}

// publishLockHeld sends the current slide state and mirror. Callers hold
// p.mu. Delivery is best effort; a broken connection is surfaced through
// the read loop, not here.
func (p *Presenter) publishLockHeld() {
	if p.conn == nil {
		return
	}

	p.sendLockHeld(protocol.EventSyncSlide, protocol.SlideState{
		CurrentSlide: p.currentSlide,
		TotalSlides:  p.source.Len(),
	})

	payload, err := protocol.EncodeMirror(protocol.Mirror{
		HTML:           p.source.HTML(p.currentSlide),
		CurrentSlide:   p.currentSlide,
		TotalSlides:    p.source.Len(),
		ScrollPosition: p.scrollPosition,
	})
	if err != nil {
		log.Debug().Str("module", "presenter").Err(err).Msg("mirror encode failed")
		return
	}
	p.sendLockHeld(protocol.EventPresentationContent, payload)
}

func (p *Presenter) sendScroll() {
	p.sendLockHeld(protocol.EventScrollSync, protocol.ScrollPayload{
		ScrollPosition: p.scrollPosition,
	})
}

func (p *Presenter) sendLockHeld(event string, payload interface{}) {
	if p.conn == nil {
		return
	}
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return
	}
	frame, err := env.Encode()
	if err != nil {
		return
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Debug().Str("module", "presenter").Str("event", event).Err(err).Msg("publish failed")
	}
}

func (p *Presenter) setState(s State) {
	p.mu.Lock()
	if p.state == s {
		p.mu.Unlock()
		return
	}
	p.state = s
	cb := p.OnStateChange
	p.mu.Unlock()

	if cb != nil {
		cb(s)
	}
}
