package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"slidecast/pkg/protocol"
)

// Conn is the subset of *websocket.Conn the wrapper needs. The indirection
// lets tests drive a Connection without a network socket.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Connection wraps one relay-channel participant. All writes go through a
// single writer goroutine so concurrent fan-outs never interleave frames.
// Sends are non-blocking: a participant that cannot drain its buffer loses
// messages rather than stalling the relay for everyone else.
type Connection struct {
	raw          Conn
	id           string
	writeCh      chan []byte
	writeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	writerWG  sync.WaitGroup

	mu        sync.RWMutex
	role      string
	sessionID string
	joined    bool
}

// NewConnection wraps a raw transport connection. The send buffer bounds
// how far a slow consumer may fall behind before messages are dropped.
func NewConnection(raw Conn, id string, sendBuffer int, writeTimeout time.Duration) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = 100
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		raw:          raw,
		id:           id,
		writeCh:      make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	c.writerWG.Add(1)
	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	defer c.writerWG.Done()

	for {
		select {
		case data := <-c.writeCh:
			if !c.write(data) {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			// Flush what is already queued so a final frame (a join
			// error ack, a presentation-ended) still reaches the
			// peer before the socket closes.
			for {
				select {
				case data := <-c.writeCh:
					if !c.write(data) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Connection) write(data []byte) bool {
	if err := c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return false
	}
	return c.raw.WriteMessage(websocket.TextMessage, data) == nil
}

// SendEvent marshals a payload under an event name and queues it.
func (c *Connection) SendEvent(event string, payload interface{}) error {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.SendEnvelope(env)
}

// SendEnvelope queues a pre-built envelope, preserving its raw payload
// bytes. Used by the relay to forward frames verbatim.
func (c *Connection) SendEnvelope(env protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close tears the connection down exactly once, waiting for the writer to
// flush queued frames (bounded by the write deadline) before closing the
// socket.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.writerWG.Wait()
		if c.raw != nil {
			err = c.raw.Close()
		}
	})
	return err
}

// Done is closed when the connection shuts down; the handler's ping loop
// keys off it.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// SetSession binds the connection to a session and role after a successful
// join.
func (c *Connection) SetSession(role, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
	c.sessionID = sessionID
	c.joined = true
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Connection) Joined() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined
}
