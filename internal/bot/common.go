package bot

import (
	"strings"

	"github.com/bowerhall/gatekeeper/internal/logger"
	"github.com/bowerhall/gatekeeper/internal/verifier"
)

// displayName picks the friendliest non-empty name for greetings.
func displayName(name, username string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if username != "" {
		return "@" + username
	}
	return "there"
}

func deliver(sink Sink, ev verifier.Event) {
	if !sink(ev) {
		logger.Warn("event dropped", "type", eventType(ev), "key", ev.Key())
	}
}

func eventType(ev verifier.Event) string {
	switch ev.(type) {
	case verifier.MemberJoined:
		return "join"
	case verifier.MemberLeft:
		return "leave"
	case verifier.TextMessage:
		return "text"
	default:
		return "unknown"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max] + "..."
}
