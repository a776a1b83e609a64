package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Event is one relay occurrence worth keeping: a join, a publish, a
// forwarded or dropped command, a session ending.
type Event struct {
	SessionID    string
	ConnectionID string
	Role         string
	Name         string
	Detail       string
	Timestamp    time.Time
}

// Store is the append-only relay event log. Writes funnel through a single
// goroutine (SQLite tolerates exactly one writer) and are best-effort: the
// relay enqueues without blocking and a full queue drops the event. The
// log observes sessions, it never restores them.
type Store struct {
	db       *sql.DB
	writeCh  chan Event
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewStore opens (or creates) the event log at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(time.Minute)

	if err := applySQLitePragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:       db,
		writeCh:  make(chan Event, 256),
		shutdown: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// Record enqueues an event without blocking. Dropped events are counted in
// the log only; history is observational and must never stall the relay.
func (s *Store) Record(e Event) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	select {
	case s.writeCh <- e:
	default:
		log.Debug().Str("module", "history").Str("event", e.Name).Msg("event log queue full, event dropped")
	}
}

func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case e := <-s.writeCh:
			if err := s.insert(e); err != nil {
				log.Warn().Str("module", "history").Err(err).Msg("event insert failed, retrying once")
				time.Sleep(time.Second)
				if err := s.insert(e); err != nil {
					log.Error().Str("module", "history").Err(err).Msg("event insert failed after retry")
				}
			}
		case <-s.shutdown:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case e := <-s.writeCh:
					if err := s.insert(e); err != nil {
						log.Warn().Str("module", "history").Err(err).Msg("event insert failed during shutdown")
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Store) insert(e Event) error {
	query := `
		INSERT INTO relay_events (session_id, connection_id, role, event, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		e.SessionID,
		e.ConnectionID,
		e.Role,
		e.Name,
		e.Detail,
		e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert relay event: %w", err)
	}
	return nil
}

// SessionStats returns per-event counts for one session.
func (s *Store) SessionStats(ctx context.Context, sessionID string) (map[string]int64, error) {
	query := `
		SELECT event, COUNT(*)
		FROM relay_events
		WHERE session_id = ?
		GROUP BY event
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[string]int64)
	for rows.Next() {
		var event string
		var count int64
		if err := rows.Scan(&event, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats[event] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats rows: %w", err)
	}

	return stats, nil
}

// RecentSessions lists the most recently active session IDs in the log.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT session_id
		FROM relay_events
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// Health validates the log is reachable.
func (s *Store) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("event log ping failed: %w", err)
	}
	return nil
}

// Close stops the writer and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close event log: %w", err)
	}
	return nil
}
