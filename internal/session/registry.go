package session

import (
	"sync"
	"time"

	"slidecast/pkg/protocol"
)

// Registry is the single source of truth for session membership and
// last-known presentation state. All mutation goes through the operations
// below; presenter and remote agents only ever hold eventually consistent
// copies of what lives here.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	bindings map[string]binding // connectionID -> session/role
}

// binding records which session and role a connection holds, enabling
// Leave() by connection ID alone.
type binding struct {
	sessionID string
	role      string
}

// Session holds one presentation instance. The per-session mutex serializes
// mutating operations on the same session; operations on different sessions
// proceed in parallel.
type Session struct {
	mu sync.Mutex

	id          string
	presenterID string              // empty when no presenter is attached
	remotes     map[string]struct{} // remote connection IDs

	currentSlide   int
	totalSlides    int
	content        string
	scrollPosition int
	lastPublish    time.Time
}

// JoinResult is the state snapshot returned to a joining connection so late
// joiners do not wait for the presenter's next natural change.
type JoinResult struct {
	CurrentSlide      int
	TotalSlides       int
	Content           string
	ScrollPosition    int
	ReplacedPresenter bool
}

// LeaveResult describes what a departing connection held and who must be
// notified.
type LeaveResult struct {
	SessionID     string
	Role          string
	WasPresenter  bool
	NotifyRemotes []string
}

// Snapshot is a read-only view of one session for the API layer.
type Snapshot struct {
	ID             string    `json:"id"`
	HasPresenter   bool      `json:"has_presenter"`
	RemoteCount    int       `json:"remote_count"`
	CurrentSlide   int       `json:"current_slide"`
	TotalSlides    int       `json:"total_slides"`
	ScrollPosition int       `json:"scroll_position"`
	ContentBytes   int       `json:"content_bytes"`
	LastPublish    time.Time `json:"last_publish,omitempty"`
}

// NewRegistry creates an empty registry. Sessions never survive a restart;
// the first presenter join after boot recreates them.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		bindings: make(map[string]binding),
	}
}

// Join binds a connection to a session under a role.
//
// Presenter joins create the session if needed and take the presenter slot
// last-writer-wins: a prior presenter is not closed, it simply stops being
// authoritative. Remote joins require a currently attached presenter; a
// session whose presenter has left is inert and yields ErrSessionNotFound
// until a new presenter joins with the same identifier.
func (r *Registry) Join(sessionID, role, connID string) (JoinResult, error) {
	switch role {
	case protocol.RolePresenter:
		return r.joinPresenter(sessionID, connID)
	case protocol.RoleRemote:
		return r.joinRemote(sessionID, connID)
	default:
		return JoinResult{}, ErrInvalidRole
	}
}

func (r *Registry) joinPresenter(sessionID, connID string) (JoinResult, error) {
	r.mu.Lock()
	s, exists := r.sessions[sessionID]
	if !exists {
		s = &Session{
			id:      sessionID,
			remotes: make(map[string]struct{}),
		}
		r.sessions[sessionID] = s
	}
	r.bindings[connID] = binding{sessionID: sessionID, role: protocol.RolePresenter}
	r.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := s.presenterID != "" && s.presenterID != connID
	s.presenterID = connID

	return JoinResult{
		CurrentSlide:      s.currentSlide,
		TotalSlides:       s.totalSlides,
		Content:           s.content,
		ScrollPosition:    s.scrollPosition,
		ReplacedPresenter: replaced,
	}, nil
}

func (r *Registry) joinRemote(sessionID, connID string) (JoinResult, error) {
	r.mu.RLock()
	s, exists := r.sessions[sessionID]
	r.mu.RUnlock()

	if !exists {
		return JoinResult{}, ErrSessionNotFound
	}

	s.mu.Lock()
	if s.presenterID == "" {
		s.mu.Unlock()
		return JoinResult{}, ErrSessionNotFound
	}
	s.remotes[connID] = struct{}{}
	result := JoinResult{
		CurrentSlide:   s.currentSlide,
		TotalSlides:    s.totalSlides,
		Content:        s.content,
		ScrollPosition: s.scrollPosition,
	}
	s.mu.Unlock()

	r.mu.Lock()
	r.bindings[connID] = binding{sessionID: sessionID, role: protocol.RoleRemote}
	r.mu.Unlock()

	return result, nil
}

// PublishState records a presenter's slide counters and returns the remote
// connection IDs to notify. Only the current presenter may publish.
func (r *Registry) PublishState(sessionID, connID string, currentSlide, totalSlides int) ([]string, error) {
	if err := protocol.ValidateSlideState(currentSlide, totalSlides); err != nil {
		return nil, err
	}

	s, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.presenterID != connID {
		return nil, ErrNotPresenter
	}

	s.currentSlide = currentSlide
	s.totalSlides = totalSlides
	s.lastPublish = time.Now()
	return s.remoteIDs(), nil
}

// PublishMirror records the mirrored HTML snapshot and scroll offset.
// Same authorization rule as PublishState.
func (r *Registry) PublishMirror(sessionID, connID, content string, scrollPosition int) ([]string, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.presenterID != connID {
		return nil, ErrNotPresenter
	}
	if scrollPosition < 0 {
		scrollPosition = 0
	}

	s.content = content
	s.scrollPosition = scrollPosition
	s.lastPublish = time.Now()
	return s.remoteIDs(), nil
}

// PublishScroll records only the scroll offset, for the lightweight
// scroll-sync update that skips re-sending content.
func (r *Registry) PublishScroll(sessionID, connID string, scrollPosition int) ([]string, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.presenterID != connID {
		return nil, ErrNotPresenter
	}
	if scrollPosition < 0 {
		scrollPosition = 0
	}

	s.scrollPosition = scrollPosition
	return s.remoteIDs(), nil
}

// RelayCommand resolves the presenter connection a command should be
// delivered to. ErrUnknownSession when the session does not exist;
// ErrNoPresenter when the slot is empty, in which case the caller drops
// the command without surfacing an error to the remote.
func (r *Registry) RelayCommand(sessionID, connID string) (string, error) {
	r.mu.RLock()
	s, exists := r.sessions[sessionID]
	r.mu.RUnlock()

	if !exists {
		return "", ErrUnknownSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.presenterID == "" {
		return "", ErrNoPresenter
	}
	return s.presenterID, nil
}

// Leave removes a connection from whatever session and role it held. When
// the departing connection was the authoritative presenter, the slot is
// emptied, the last state is retained for a future presenter, and the
// current remotes are returned for a presentation-ended notification.
func (r *Registry) Leave(connID string) (LeaveResult, error) {
	r.mu.Lock()
	b, ok := r.bindings[connID]
	if !ok {
		r.mu.Unlock()
		return LeaveResult{}, ErrUnknownConn
	}
	delete(r.bindings, connID)
	s := r.sessions[b.sessionID]
	r.mu.Unlock()

	result := LeaveResult{SessionID: b.sessionID, Role: b.role}
	if s == nil {
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch b.role {
	case protocol.RolePresenter:
		// A replaced presenter leaving must not end the session the
		// new presenter now owns.
		if s.presenterID == connID {
			s.presenterID = ""
			result.WasPresenter = true
			result.NotifyRemotes = s.remoteIDs()
		}
	case protocol.RoleRemote:
		delete(s.remotes, connID)
	}

	return result, nil
}

// State returns the last published presentation state of a session.
func (r *Registry) State(sessionID string) (JoinResult, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return JoinResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return JoinResult{
		CurrentSlide:   s.currentSlide,
		TotalSlides:    s.totalSlides,
		Content:        s.content,
		ScrollPosition: s.scrollPosition,
	}, nil
}

// Snapshot returns a read-only view of one session.
func (r *Registry) Snapshot(sessionID string) (Snapshot, error) {
	r.mu.RLock()
	s, exists := r.sessions[sessionID]
	r.mu.RUnlock()

	if !exists {
		return Snapshot{}, ErrUnknownSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// Sessions returns a view of every known session, attached or inert.
func (r *Registry) Sessions() []Snapshot {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	snapshots := make([]Snapshot, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		snapshots = append(snapshots, s.snapshotLocked())
		s.mu.Unlock()
	}
	return snapshots
}

// Stats returns registry counters for health reporting and metrics.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	total := len(r.sessions)
	r.mu.RUnlock()

	active := 0
	remotes := 0
	for _, s := range all {
		s.mu.Lock()
		if s.presenterID != "" {
			active++
		}
		remotes += len(s.remotes)
		s.mu.Unlock()
	}

	return map[string]int{
		"total_sessions":    total,
		"active_sessions":   active,
		"connected_remotes": remotes,
	}
}

func (r *Registry) lookup(sessionID string) (*Session, error) {
	r.mu.RLock()
	s, exists := r.sessions[sessionID]
	r.mu.RUnlock()

	if !exists {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// remoteIDs copies the remote set; callers hold s.mu.
func (s *Session) remoteIDs() []string {
	ids := make([]string, 0, len(s.remotes))
	for id := range s.remotes {
		ids = append(ids, id)
	}
	return ids
}

// snapshotLocked builds a Snapshot; callers hold s.mu.
func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:             s.id,
		HasPresenter:   s.presenterID != "",
		RemoteCount:    len(s.remotes),
		CurrentSlide:   s.currentSlide,
		TotalSlides:    s.totalSlides,
		ScrollPosition: s.scrollPosition,
		ContentBytes:   len(s.content),
		LastPublish:    s.lastPublish,
	}
}
