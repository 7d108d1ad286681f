package bot

import (
	"fmt"
)

func New(cfg Config) (Bot, error) {
	switch cfg.Provider {
	case "telegram":
		return NewTelegram(cfg.Token)
	case "discord":
		return NewDiscord(cfg.Token, cfg.FallbackChannelID)
	default:
		return nil, fmt.Errorf("unknown bot provider: %s", cfg.Provider)
	}
}

func NewTelegram(token string) (Bot, error) {
	return newTelegram(token)
}

func NewDiscord(token string, fallbackChannelID int64) (Bot, error) {
	return newDiscord(token, fallbackChannelID)
}
