package relay

import (
	"errors"

	"github.com/rs/zerolog/log"

	"slidecast/internal/history"
	"slidecast/internal/observability"
	"slidecast/internal/session"
	"slidecast/internal/websocket"
	"slidecast/pkg/protocol"
)

// Recorder receives relay events for the history log. Nil-able; the relay
// works identically with history disabled.
type Recorder interface {
	Record(e history.Event)
}

// Relay routes protocol events between presenter and remote connections in
// a session. It holds the routing rules; membership and state live in the
// Session Registry, delivery in the connection table.
//
// Failure policy: registry errors are mapped to either a client-visible
// join ack or a logged drop. Nothing here panics the coordinator loop, and
// a fault in one session's event never touches another session.
type Relay struct {
	registry *session.Registry
	table    *websocket.Table
	limiter  *CommandLimiter
	recorder Recorder
}

// NewRelay creates a relay. recorder may be nil.
func NewRelay(registry *session.Registry, table *websocket.Table, recorder Recorder) *Relay {
	return &Relay{
		registry: registry,
		table:    table,
		limiter:  NewCommandLimiter(),
		recorder: recorder,
	}
}

// HandleJoin processes the first frame of a connection. On failure the
// error ack has already been delivered when this returns; the caller only
// needs to close the connection.
func (r *Relay) HandleJoin(conn *websocket.Connection, env protocol.Envelope) error {
	if conn.Joined() {
		return ErrJoinAlreadyHandled
	}

	role := protocol.RoleRemote
	if env.Event == protocol.EventJoinPresenter {
		role = protocol.RolePresenter
	}

	var req protocol.JoinRequest
	if err := env.Decode(&req); err != nil {
		r.sendJoinError(conn, protocol.JoinErrInvalidPayload)
		observability.RecordJoinFailure(role)
		return err
	}
	if !protocol.IsValidSessionID(req.SessionID) {
		r.sendJoinError(conn, protocol.JoinErrInvalidSession)
		observability.RecordJoinFailure(role)
		return protocol.ErrInvalidSessionID
	}

	result, err := r.registry.Join(req.SessionID, role, conn.ID())
	if err != nil {
		r.sendJoinError(conn, protocol.JoinErrSessionNotFound)
		observability.RecordJoinFailure(role)
		return err
	}

	conn.SetSession(role, req.SessionID)

	currentSlide := result.CurrentSlide
	totalSlides := result.TotalSlides
	ack := protocol.JoinAck{
		Success:      true,
		CurrentSlide: &currentSlide,
		TotalSlides:  &totalSlides,
	}
	if err := conn.SendEvent(protocol.EventJoinAck, ack); err != nil {
		return err
	}

	if err := r.table.Add(conn); err != nil {
		return err
	}

	// The ack snapshot was taken before the table entry existed, so a
	// publish landing in between fanned out past this connection. A
	// re-read after the table add closes that window; anything newer
	// arrives through the normal fan-out.
	if role == protocol.RoleRemote {
		r.sendCatchUp(conn, req.SessionID, result)
	}

	if result.ReplacedPresenter {
		log.Info().
			Str("module", "relay").
			Str("session", req.SessionID).
			Str("conn", conn.ID()).
			Msg("presenter slot taken over")
	}

	r.record(history.Event{
		SessionID:    req.SessionID,
		ConnectionID: conn.ID(),
		Role:         role,
		Name:         env.Event,
	})
	observability.RecordEvent(env.Event)
	r.updateGauges()

	return nil
}

// HandleEvent routes one post-join frame.
func (r *Relay) HandleEvent(conn *websocket.Connection, env protocol.Envelope) error {
	if !conn.Joined() {
		return ErrNotJoined
	}

	observability.RecordEvent(env.Event)

	switch env.Event {
	case protocol.EventSyncSlide:
		return r.handleSyncSlide(conn, env)
	case protocol.EventPresentationContent:
		return r.handleContent(conn, env)
	case protocol.EventScrollSync:
		return r.handleScrollSync(conn, env)
	case protocol.EventRemoteCommand:
		return r.handleRemoteCommand(conn, env)
	default:
		return ErrUnhandledEvent
	}
}

func (r *Relay) handleSyncSlide(conn *websocket.Connection, env protocol.Envelope) error {
	if conn.Role() != protocol.RolePresenter {
		return ErrRoleNotAllowed
	}

	var state protocol.SlideState
	if err := env.Decode(&state); err != nil {
		return err
	}

	remotes, err := r.registry.PublishState(conn.SessionID(), conn.ID(), state.CurrentSlide, state.TotalSlides)
	if err != nil {
		// NotPresenter here means a replaced presenter is still
		// publishing; a protocol violation to log, never to crash on.
		log.Debug().Str("module", "relay").Str("conn", conn.ID()).Err(err).Msg("sync-slide rejected")
		return err
	}

	r.fanout(remotes, env)
	r.record(history.Event{
		SessionID:    conn.SessionID(),
		ConnectionID: conn.ID(),
		Role:         conn.Role(),
		Name:         env.Event,
	})
	return nil
}

func (r *Relay) handleContent(conn *websocket.Connection, env protocol.Envelope) error {
	if conn.Role() != protocol.RolePresenter {
		return ErrRoleNotAllowed
	}

	var payload protocol.ContentPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}

	mirror := protocol.DecodeMirror(payload)

	remotes, err := r.registry.PublishMirror(conn.SessionID(), conn.ID(), mirror.HTML, mirror.ScrollPosition)
	if err != nil {
		log.Debug().Str("module", "relay").Str("conn", conn.ID()).Err(err).Msg("presentation-content rejected")
		return err
	}

	// The structured encoding carries slide counters; keep the registry
	// snapshot current so late joiners see them in the ack.
	if mirror.Structured {
		if _, err := r.registry.PublishState(conn.SessionID(), conn.ID(), mirror.CurrentSlide, mirror.TotalSlides); err != nil {
			log.Debug().Str("module", "relay").Str("conn", conn.ID()).Err(err).Msg("embedded slide state rejected")
		}
	}

	r.fanout(remotes, env)
	r.record(history.Event{
		SessionID:    conn.SessionID(),
		ConnectionID: conn.ID(),
		Role:         conn.Role(),
		Name:         env.Event,
	})
	return nil
}

func (r *Relay) handleScrollSync(conn *websocket.Connection, env protocol.Envelope) error {
	// Remotes push scroll upstream as a remote-command; a bare
	// scroll-sync is only valid from the presenter.
	if conn.Role() != protocol.RolePresenter {
		return ErrRoleNotAllowed
	}

	var payload protocol.ScrollPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}

	remotes, err := r.registry.PublishScroll(conn.SessionID(), conn.ID(), payload.ScrollPosition)
	if err != nil {
		log.Debug().Str("module", "relay").Str("conn", conn.ID()).Err(err).Msg("scroll-sync rejected")
		return err
	}

	r.fanout(remotes, env)
	return nil
}

func (r *Relay) handleRemoteCommand(conn *websocket.Connection, env protocol.Envelope) error {
	if conn.Role() != protocol.RoleRemote {
		return ErrRoleNotAllowed
	}

	var cmd protocol.Command
	if err := env.Decode(&cmd); err != nil {
		return err
	}
	if err := cmd.Validate(); err != nil {
		return err
	}
	if cmd.SessionID != conn.SessionID() {
		return ErrWrongSession
	}

	if !r.limiter.Allow(conn.ID()) {
		observability.RecordRateLimitedCommand()
		return ErrRateLimitExceeded
	}

	presenterID, err := r.registry.RelayCommand(cmd.SessionID, conn.ID())
	if err != nil {
		if errors.Is(err, session.ErrNoPresenter) {
			// Commands are ephemeral control signals: no presenter
			// means the command evaporates, with no error surfaced
			// to the remote.
			observability.RecordDroppedCommand()
			r.record(history.Event{
				SessionID:    cmd.SessionID,
				ConnectionID: conn.ID(),
				Role:         conn.Role(),
				Name:         "command-dropped",
				Detail:       cmd.Command,
			})
			return nil
		}
		return err
	}

	presenter, exists := r.table.Get(presenterID)
	if !exists {
		observability.RecordDroppedCommand()
		return nil
	}

	// Forwarded verbatim: the presenter sees exactly the bytes the
	// remote sent.
	if err := presenter.SendEnvelope(env); err != nil {
		log.Debug().Str("module", "relay").Str("conn", presenterID).Err(err).Msg("command delivery failed")
		return nil
	}

	r.record(history.Event{
		SessionID:    cmd.SessionID,
		ConnectionID: conn.ID(),
		Role:         conn.Role(),
		Name:         env.Event,
		Detail:       cmd.Command,
	})
	return nil
}

// HandleDisconnect removes a connection and, when it held the presenter
// slot, notifies every joined remote exactly once that the presentation
// ended.
func (r *Relay) HandleDisconnect(conn *websocket.Connection) {
	r.limiter.Forget(conn.ID())

	result, err := r.registry.Leave(conn.ID())
	if err == nil && result.WasPresenter {
		ended := protocol.Envelope{Event: protocol.EventPresentationEnded}
		r.fanout(result.NotifyRemotes, ended)

		log.Info().
			Str("module", "relay").
			Str("session", result.SessionID).
			Int("remotes", len(result.NotifyRemotes)).
			Msg("presentation ended")

		r.record(history.Event{
			SessionID:    result.SessionID,
			ConnectionID: conn.ID(),
			Role:         result.Role,
			Name:         protocol.EventPresentationEnded,
		})
	}

	r.table.Remove(conn)
	r.updateGauges()
}

// fanout delivers an envelope to each connection ID, skipping gone or
// saturated connections so one slow remote cannot hold up the rest.
func (r *Relay) fanout(connIDs []string, env protocol.Envelope) {
	delivered := 0
	for _, id := range connIDs {
		conn, exists := r.table.Get(id)
		if !exists {
			continue
		}
		if err := conn.SendEnvelope(env); err != nil {
			log.Debug().Str("module", "relay").Str("conn", id).Err(err).Msg("fanout delivery failed")
			continue
		}
		delivered++
	}
	observability.RecordFanout(delivered)
}

// sendCatchUp brings a freshly joined remote up to the session's current
// state: a sync-slide when the counters moved past the ack, and the stored
// mirror so a mid-presentation joiner does not wait for the presenter's
// next publish.
func (r *Relay) sendCatchUp(conn *websocket.Connection, sessionID string, ackState session.JoinResult) {
	state, err := r.registry.State(sessionID)
	if err != nil {
		return
	}

	if state.CurrentSlide != ackState.CurrentSlide || state.TotalSlides != ackState.TotalSlides {
		sync := protocol.SlideState{CurrentSlide: state.CurrentSlide, TotalSlides: state.TotalSlides}
		if err := conn.SendEvent(protocol.EventSyncSlide, sync); err != nil {
			log.Debug().Str("module", "relay").Str("conn", conn.ID()).Err(err).Msg("catch-up sync failed")
		}
	}

	if state.Content == "" {
		return
	}
	payload, err := protocol.EncodeMirror(protocol.Mirror{
		HTML:           state.Content,
		CurrentSlide:   state.CurrentSlide,
		TotalSlides:    state.TotalSlides,
		ScrollPosition: state.ScrollPosition,
	})
	if err != nil {
		return
	}
	if err := conn.SendEvent(protocol.EventPresentationContent, payload); err != nil {
		log.Debug().Str("module", "relay").Str("conn", conn.ID()).Err(err).Msg("snapshot delivery failed")
	}
}

func (r *Relay) sendJoinError(conn *websocket.Connection, message string) {
	ack := protocol.JoinAck{Success: false, Error: message}
	if err := conn.SendEvent(protocol.EventJoinAck, ack); err != nil {
		log.Debug().Str("module", "relay").Str("conn", conn.ID()).Err(err).Msg("join error delivery failed")
	}
}

func (r *Relay) record(e history.Event) {
	if r.recorder != nil {
		r.recorder.Record(e)
	}
}

func (r *Relay) updateGauges() {
	stats := r.registry.Stats()
	observability.SetSessionGauges(stats["active_sessions"], stats["connected_remotes"])
}
