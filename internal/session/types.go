package session

import "time"

// Session is one member's outstanding verification challenge.
type Session struct {
	ID        string
	UserID    int64
	ChatID    int64
	Name      string
	A         int
	B         int
	Expected  int
	StartedAt time.Time
}

// Registry maps a member id to their pending session. It is not safe for
// concurrent use; the owner serialises access.
type Registry struct {
	sessions map[int64]*Session
}
