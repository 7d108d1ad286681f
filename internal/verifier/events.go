package verifier

import "time"

// Principal is a chat member identified by a stable numeric id.
type Principal struct {
	ID    int64
	Name  string
	IsBot bool
}

// Event is an inbound platform event. Key selects the dispatcher shard so
// that events about the same member are handled in order.
type Event interface {
	Key() int64
}

// MemberJoined is one join notification, possibly for several members added
// together by Actor.
type MemberJoined struct {
	Users     []Principal
	ChatID    int64
	Timestamp time.Time
	Actor     Principal
	// MessageID is the platform's join notice, 0 when there is none.
	MessageID int64
}

func (e MemberJoined) Key() int64 {
	if len(e.Users) > 0 {
		return e.Users[0].ID
	}
	return e.Actor.ID
}

// Split returns one join per member so each lands on its own member's queue.
// Actor and Timestamp are kept on every part; the notice MessageID stays with
// the first.
func (e MemberJoined) Split() []MemberJoined {
	if len(e.Users) <= 1 {
		return []MemberJoined{e}
	}

	parts := make([]MemberJoined, len(e.Users))
	for i, u := range e.Users {
		parts[i] = MemberJoined{
			Users:     []Principal{u},
			ChatID:    e.ChatID,
			Timestamp: e.Timestamp,
			Actor:     e.Actor,
		}
	}
	parts[0].MessageID = e.MessageID
	return parts
}

type MemberLeft struct {
	User   Principal
	ChatID int64
}

func (e MemberLeft) Key() int64 { return e.User.ID }

type TextMessage struct {
	User      Principal
	ChatID    int64
	MessageID int64
	Text      string
	Timestamp time.Time
}

func (e TextMessage) Key() int64 { return e.User.ID }

// Platform is the outbound side of the chat client.
type Platform interface {
	SendMessage(chatID int64, text string) (int64, error)
	DeleteMessage(chatID, messageID int64) error
	BanMember(chatID, userID int64) error
	UnbanMember(chatID, userID int64) error
	ListAdmins(chatID int64) (map[int64]struct{}, error)
}

// Texts renders the member-facing messages.
type Texts interface {
	Welcome(name string, a, b int) string
	Passed(name string) string
	Kicked(name string) string
}
