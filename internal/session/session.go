package session

import "github.com/google/uuid"

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Start stores s as the live session for s.UserID, replacing any previous one.
// The replaced session is returned so callers can log the re-join.
func (r *Registry) Start(s Session) (prev *Session, replaced bool) {
	if s.ID == "" {
		s.ID = uuid.New().String()[:8]
	}

	prev, replaced = r.sessions[s.UserID]
	r.sessions[s.UserID] = &s

	return prev, replaced
}

func (r *Registry) TryGet(userID int64) (*Session, bool) {
	s, ok := r.sessions[userID]
	return s, ok
}

// Resolve removes the session for userID. Resolving an absent user is a no-op.
func (r *Registry) Resolve(userID int64) {
	delete(r.sessions, userID)
}

func (r *Registry) Len() int {
	return len(r.sessions)
}
