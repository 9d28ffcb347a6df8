package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-keypool-service/internal/pool"
)

// Step is the add-key wizard position.
type Step int

const (
	StepName Step = iota
	StepValue
	StepEmail
	StepPassword
)

const defaultSessionTTL = 30 * time.Minute

// AddKeySession is the state of one operator's add-key dialogue.
type AddKeySession struct {
	ID         string
	OperatorID string
	Step       Step
	Input      pool.AddKeyInput
	UpdatedAt  time.Time
}

// SessionStore keeps at most one wizard session per operator. Sessions idle
// longer than the TTL are dropped on access.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*AddKeySession
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates an empty store. A zero ttl uses the default.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionStore{
		sessions: make(map[string]*AddKeySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Start opens a fresh session for operatorID, replacing any previous one.
func (s *SessionStore) Start(operatorID string) AddKeySession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &AddKeySession{
		ID:         uuid.NewString(),
		OperatorID: operatorID,
		Step:       StepName,
		UpdatedAt:  s.now(),
	}
	s.sessions[operatorID] = sess
	return *sess
}

// Get returns a copy of the operator's live session.
func (s *SessionStore) Get(operatorID string) (AddKeySession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[operatorID]
	if !ok {
		return AddKeySession{}, false
	}
	if s.now().Sub(sess.UpdatedAt) > s.ttl {
		delete(s.sessions, operatorID)
		return AddKeySession{}, false
	}
	return *sess, true
}

// Put stores sess if it is still the operator's session.
func (s *SessionStore) Put(sess AddKeySession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[sess.OperatorID]
	if !ok || cur.ID != sess.ID {
		return
	}
	sess.UpdatedAt = s.now()
	s.sessions[sess.OperatorID] = &sess
}

// End destroys the operator's session.
func (s *SessionStore) End(operatorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, operatorID)
}

// Len returns the number of open sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
