package tabular

import (
	"errors"
	"sync"
	"time"

	"analyst-workers/internal/models"
)

// ErrSessionNotFound is returned when a session ID is unknown to the store.
var ErrSessionNotFound = errors.New("analysis session not found")

// ErrNoTable is returned when a session exists but no table was built yet.
var ErrNoTable = errors.New("session has no unified table")

// ErrSourceNotFound is returned when a dataset label names no loaded source.
var ErrSourceNotFound = errors.New("source dataset not found in session")

type sessionState struct {
	meta    models.AnalysisSession
	table   *Table
	sources map[string]*Table
}

// SessionStore is the process-scoped owner of every session's unified table.
// Tables are replaced wholesale: readers holding the old pointer keep a
// consistent snapshot, and no reader ever sees a partially-built table.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	ttl      time.Duration
}

// NewSessionStore builds a store. ttl == 0 disables expiry.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionState),
		ttl:      ttl,
	}
}

// GetOrCreate returns the session metadata, creating the session on first use.
func (s *SessionStore) GetOrCreate(sessionID, userID string) models.AnalysisSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		now := time.Now().UTC()
		state = &sessionState{
			meta: models.AnalysisSession{
				ID:           sessionID,
				UserID:       userID,
				CreatedAt:    now,
				LastActivity: now,
			},
		}
		s.sessions[sessionID] = state
	}
	state.meta.Touch()
	return state.meta
}

// ReplaceTable atomically swaps in a freshly built table together with the
// normalized source tables it was built from, and updates the session
// metadata. Sources stay available for dataset-filtered computation.
func (s *SessionStore) ReplaceTable(sessionID string, table *Table, sources []*Table) (models.AnalysisSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return models.AnalysisSession{}, ErrSessionNotFound
	}

	byName := make(map[string]*Table, len(sources))
	summaries := make([]models.DatasetSummary, 0, len(sources))
	for _, src := range sources {
		byName[src.Name] = src
		summaries = append(summaries, models.DatasetSummary{
			Name:    src.Name,
			Rows:    src.NumRows(),
			Columns: len(src.Columns),
		})
	}

	state.table = table
	state.sources = byName
	state.meta.Datasets = summaries
	state.meta.TableVersion++
	state.meta.TableRows = table.NumRows()
	state.meta.TableColumns = len(table.Columns)
	state.meta.Touch()
	return state.meta, nil
}

// Snapshot returns the session's current table and metadata. The table is
// read-only by contract; callers must not mutate it.
func (s *SessionStore) Snapshot(sessionID string) (*Table, models.AnalysisSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, models.AnalysisSession{}, ErrSessionNotFound
	}
	if state.table == nil {
		return nil, state.meta, ErrNoTable
	}
	return state.table, state.meta, nil
}

// Source returns one of the session's loaded source tables by dataset label.
func (s *SessionStore) Source(sessionID, name string) (*Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	src, ok := state.sources[name]
	if !ok {
		return nil, ErrSourceNotFound
	}
	return src, nil
}

// Delete removes a session and its table.
func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Sweep evicts sessions idle longer than the TTL and reports how many were
// removed. A zero TTL makes this a no-op.
func (s *SessionStore) Sweep(now time.Time) int {
	if s.ttl == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, state := range s.sessions {
		if now.Sub(state.meta.LastActivity) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
