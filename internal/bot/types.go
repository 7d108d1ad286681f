package bot

import (
	"context"

	"github.com/bowerhall/gatekeeper/internal/verifier"
)

// Bot is a chat platform client. Start blocks, translating inbound updates
// into verifier events until ctx is cancelled.
type Bot interface {
	verifier.Platform
	Start(ctx context.Context, sink Sink) error
	// Notify sends text without logging. The log mirror uses it, so it must
	// never produce log records of its own.
	Notify(chatID int64, text string) error
}

// Sink receives translated events. It returns false when the event was not
// accepted.
type Sink func(verifier.Event) bool

type Config struct {
	Provider string
	Token    string
	// FallbackChannelID is the Discord channel used for challenges when a
	// guild has no system channel.
	FallbackChannelID int64
}
