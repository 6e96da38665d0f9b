// Package session holds per-user dialogue state. All mutations happen on the
// inbound-message path; the push channel never touches this store.
package session

import "sync"

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDialogue
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDialogue:
		return "dialogue"
	default:
		return "unknown"
	}
}

// State is one user's dialogue state. SessionID is set only while
// PhaseDialogue and only after the backend has issued it.
type State struct {
	Phase     Phase
	SessionID string
}

type pendingDelete struct {
	SessionID string
	Page      int
}

// Store keeps per-user dialogue state and outstanding delete confirmations
// in memory. Nothing survives a restart.
type Store struct {
	mu      sync.Mutex
	states  map[int64]State
	pending map[int64]pendingDelete
}

func NewStore() *Store {
	return &Store{
		states:  make(map[int64]State),
		pending: make(map[int64]pendingDelete),
	}
}

func (s *Store) Get(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[userID]
}

// BeginDialogue moves the user into a dialogue with no session yet.
func (s *Store) BeginDialogue(userID int64) {
	s.mu.Lock()
	s.states[userID] = State{Phase: PhaseDialogue}
	s.mu.Unlock()
}

// BindSession attaches the backend-issued session id. It is a no-op unless
// the user is in a dialogue.
func (s *Store) BindSession(userID int64, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok || st.Phase != PhaseDialogue {
		return
	}
	st.SessionID = sessionID
	s.states[userID] = st
}

// EndDialogue resets the user to idle, dropping any session id.
func (s *Store) EndDialogue(userID int64) {
	s.mu.Lock()
	delete(s.states, userID)
	s.mu.Unlock()
}

// SetPendingDelete records an outstanding delete confirmation. A newer
// request supersedes the previous one; there is no explicit expiry.
func (s *Store) SetPendingDelete(userID int64, sessionID string, page int) {
	s.mu.Lock()
	s.pending[userID] = pendingDelete{SessionID: sessionID, Page: page}
	s.mu.Unlock()
}

// TakePendingDelete consumes the confirmation if it matches the session.
// A confirm without a matching prior request reports false.
func (s *Store) TakePendingDelete(userID int64, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[userID]
	if !ok || p.SessionID != sessionID {
		return false
	}
	delete(s.pending, userID)
	return true
}

// ClearPendingDelete drops any outstanding confirmation; called when the
// user moves on to another action.
func (s *Store) ClearPendingDelete(userID int64) {
	s.mu.Lock()
	delete(s.pending, userID)
	s.mu.Unlock()
}
