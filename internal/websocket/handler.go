package websocket

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"slidecast/pkg/protocol"
)

// EventSink receives protocol events from the transport layer. The
// coordinator implements it; the indirection keeps the transport free of
// routing logic.
type EventSink interface {
	Join(conn *Connection, env protocol.Envelope) error
	Dispatch(conn *Connection, env protocol.Envelope) error
	Disconnect(conn *Connection)
}

// Options tune transport timeouts and buffering.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
	JoinTimeout  time.Duration
}

// DefaultOptions match the relay's production defaults: 30s pings against a
// 60s read deadline, 10s to complete the join handshake.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		SendBuffer:   100,
		JoinTimeout:  10 * time.Second,
	}
}

// Handler upgrades HTTP requests and pumps frames into the coordinator.
type Handler struct {
	sink EventSink
	opts Options

	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket handler feeding the given sink.
func NewHandler(sink EventSink, opts Options) *Handler {
	return &Handler{
		sink: sink,
		opts: opts,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				// Session IDs are opaque and unauthenticated; origin
				// checking adds nothing until joins are authorized.
				return true
			},
		},
	}
}

// ServeWS handles one WebSocket connection end to end: upgrade, join
// handshake, read pump, disconnect notification.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("module", "websocket").Err(err).Msg("upgrade failed")
		return
	}

	conn := NewConnection(raw, uuid.New().String(), h.opts.SendBuffer, h.opts.WriteTimeout)

	// The first frame must be a join event, delivered within the join
	// timeout. Anything else closes the connection before it is ever
	// registered.
	env, err := h.readJoinFrame(raw)
	if err != nil {
		log.Debug().Str("module", "websocket").Str("conn", conn.ID()).Err(err).Msg("join handshake failed")
		_ = conn.Close()
		return
	}

	if err := h.sink.Join(conn, env); err != nil {
		// The sink has already delivered the error ack; the connection
		// is done.
		_ = conn.Close()
		return
	}

	log.Info().
		Str("module", "websocket").
		Str("conn", conn.ID()).
		Str("role", conn.Role()).
		Str("session", conn.SessionID()).
		Msg("connection joined")

	h.pump(conn, raw)
}

func (h *Handler) readJoinFrame(raw Conn) (protocol.Envelope, error) {
	if err := raw.SetReadDeadline(time.Now().Add(h.opts.JoinTimeout)); err != nil {
		return protocol.Envelope{}, err
	}

	_, frame, err := raw.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, err
	}

	env, err := protocol.ParseEnvelope(frame)
	if err != nil {
		return protocol.Envelope{}, err
	}

	if env.Event != protocol.EventJoinPresenter && env.Event != protocol.EventJoinRemote {
		return protocol.Envelope{}, ErrJoinRequired
	}
	return env, nil
}

// pump runs the read loop with ping/pong heartbeat until the peer goes
// away, then notifies the sink exactly once.
func (h *Handler) pump(conn *Connection, raw Conn) {
	defer func() {
		h.sink.Disconnect(conn)
		_ = conn.Close()
	}()

	if err := raw.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	go h.pingLoop(conn, raw)

	for {
		messageType, frame, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Str("module", "websocket").Str("conn", conn.ID()).Err(err).Msg("read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		env, err := protocol.ParseEnvelope(frame)
		if err != nil {
			log.Debug().Str("module", "websocket").Str("conn", conn.ID()).Err(err).Msg("malformed frame dropped")
			continue
		}

		if err := h.sink.Dispatch(conn, env); err != nil {
			log.Warn().
				Str("module", "websocket").
				Str("conn", conn.ID()).
				Str("event", env.Event).
				Err(err).
				Msg("event dropped")
		}
	}
}

func (h *Handler) pingLoop(conn *Connection, raw Conn) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := raw.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}
