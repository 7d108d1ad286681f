package ledger

import (
	"slices"
	"time"

	"github.com/bowerhall/gatekeeper/internal/logger"
)

// Entry is a chat message that must disappear once its owner's session ends.
type Entry struct {
	UserID    int64
	ChatID    int64
	MessageID int64
	Timestamp time.Time
}

// Deleter removes a message from the chat platform.
type Deleter interface {
	DeleteMessage(chatID, messageID int64) error
}

// Ledger is an ordered list of tracked messages. It is not safe for
// concurrent use; the owner serialises access.
type Ledger struct {
	deleter Deleter
	entries []Entry
}

func New(deleter Deleter) *Ledger {
	return &Ledger{deleter: deleter}
}

func (l *Ledger) Track(userID, chatID, messageID int64, ts time.Time) {
	l.entries = append(l.entries, Entry{
		UserID:    userID,
		ChatID:    chatID,
		MessageID: messageID,
		Timestamp: ts,
	})
}

// PurgeForUser deletes every message tracked for userID from the chat and
// drops the entries. A failed deletion is logged and the rest still run.
func (l *Ledger) PurgeForUser(userID int64) int {
	for _, e := range l.entries {
		if e.UserID != userID {
			continue
		}

		if err := l.deleter.DeleteMessage(e.ChatID, e.MessageID); err != nil {
			logger.Warn("tracked message delete failed", "user", userID, "chat", e.ChatID, "message", e.MessageID, "error", err)
		}
	}

	return l.remove(func(e Entry) bool { return e.UserID == userID })
}

// SweepExpired drops entries older than retention without touching the chat.
func (l *Ledger) SweepExpired(now time.Time, retention time.Duration) int {
	return l.remove(func(e Entry) bool { return now.Sub(e.Timestamp) > retention })
}

func (l *Ledger) remove(match func(Entry) bool) int {
	before := len(l.entries)
	l.entries = slices.DeleteFunc(l.entries, match)
	return before - len(l.entries)
}

func (l *Ledger) ForUser(userID int64) []Entry {
	var out []Entry
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func (l *Ledger) Len() int {
	return len(l.entries)
}
