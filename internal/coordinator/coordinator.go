package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"slidecast/internal/relay"
	"slidecast/internal/websocket"
	"slidecast/pkg/protocol"
)

// Coordinator bridges transport events to the relay. Post-join events from
// every connection funnel through buffered channels into a single routing
// goroutine, which together with the registry's per-session locks keeps
// same-session operations serialized while different sessions proceed
// independently.
//
// Joins are handled synchronously on the connection's own goroutine: the
// ack must be on the wire before the read pump starts delivering frames.
type Coordinator struct {
	eventCh      chan *inboundEvent
	disconnectCh chan *websocket.Connection
	shutdownCh   chan struct{}

	relay *relay.Relay

	running bool
	mu      sync.RWMutex
}

// inboundEvent pairs a frame with the connection that sent it.
type inboundEvent struct {
	conn     *websocket.Connection
	env      protocol.Envelope
	received time.Time
}

// NewCoordinator creates a coordinator over the given relay.
func NewCoordinator(r *relay.Relay) *Coordinator {
	return &Coordinator{
		// Sized for publish bursts from many concurrent sessions; a
		// full channel drops the event rather than blocking a read
		// pump.
		eventCh:      make(chan *inboundEvent, 1000),
		disconnectCh: make(chan *websocket.Connection, 100),
		shutdownCh:   make(chan struct{}),
		relay:        r,
	}
}

// Start launches the routing goroutine.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	log.Info().Str("module", "coordinator").Msg("starting session coordinator")

	go c.run(ctx)

	return nil
}

// Stop shuts the routing goroutine down.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotRunning
	}
	c.running = false

	select {
	case <-c.shutdownCh:
	default:
		close(c.shutdownCh)
	}

	return nil
}

// Join handles a connection's join frame synchronously. Implements
// websocket.EventSink.
func (c *Coordinator) Join(conn *websocket.Connection, env protocol.Envelope) error {
	c.mu.RLock()
	if !c.running {
		c.mu.RUnlock()
		return ErrNotRunning
	}
	c.mu.RUnlock()

	return c.relay.HandleJoin(conn, env)
}

// Dispatch queues a post-join frame for routing. Implements
// websocket.EventSink.
func (c *Coordinator) Dispatch(conn *websocket.Connection, env protocol.Envelope) error {
	c.mu.RLock()
	if !c.running {
		c.mu.RUnlock()
		return ErrNotRunning
	}
	c.mu.RUnlock()

	select {
	case c.eventCh <- &inboundEvent{conn: conn, env: env, received: time.Now()}:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// Disconnect queues a connection's departure. Implements
// websocket.EventSink.
func (c *Coordinator) Disconnect(conn *websocket.Connection) {
	c.mu.RLock()
	if !c.running {
		c.mu.RUnlock()
		// Shutting down: clean up inline so the registry does not
		// leak the connection.
		c.relay.HandleDisconnect(conn)
		return
	}
	c.mu.RUnlock()

	select {
	case c.disconnectCh <- conn:
	default:
		// Queue saturated; still must not leak membership.
		log.Warn().Str("module", "coordinator").Str("conn", conn.ID()).Msg("disconnect queue full, handling inline")
		c.relay.HandleDisconnect(conn)
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer log.Info().Str("module", "coordinator").Msg("session coordinator stopped")

	for {
		select {
		case ev := <-c.eventCh:
			if err := c.relay.HandleEvent(ev.conn, ev.env); err != nil {
				log.Debug().
					Str("module", "coordinator").
					Str("conn", ev.conn.ID()).
					Str("event", ev.env.Event).
					Err(err).
					Msg("event not routed")
			}

		case conn := <-c.disconnectCh:
			c.relay.HandleDisconnect(conn)

		case <-c.shutdownCh:
			return

		case <-ctx.Done():
			return
		}
	}
}
