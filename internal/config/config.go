package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/bowerhall/gatekeeper/internal/logger"
)

const (
	DefaultFile          = "gatekeeper.yaml"
	DefaultMaxJoinDelay  = 5 * time.Minute
	DefaultRetention     = time.Hour
	DefaultWorkers       = 4
	DefaultQueueSize     = 256
	DefaultSweepSchedule = "@every 10m"
	DefaultStorageHost   = "minio:9000"
)

var (
	ErrMissingToken    = errors.New("bot token not set")
	ErrUnknownProvider = errors.New("unknown bot provider")
)

// Load reads the YAML file named by GATEKEEPER_CONFIG (or gatekeeper.yaml)
// when present, then applies environment overrides.
func Load() (*Config, error) {
	path := os.Getenv("GATEKEEPER_CONFIG")
	if path == "" {
		path = DefaultFile
	}
	return LoadFile(path)
}

func LoadFile(path string) (*Config, error) {
	var raw rawConfig

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("config file not found, using environment", "path", path)
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return build(raw)
}

func build(raw rawConfig) (*Config, error) {
	botConfig, err := loadBotConfig(raw)
	if err != nil {
		return nil, err
	}

	return &Config{
		Bot:            botConfig,
		LogChatID:      parseChatID("log_chat_id", raw.LogChatID),
		MaxJoinDelay:   positiveDuration("server_delay", raw.ServerDelay, time.Minute, DefaultMaxJoinDelay),
		Retention:      positiveDuration("retention_hours", raw.RetentionHours, time.Hour, DefaultRetention),
		UnbanAfterKick: parseBool("unban_after_kick", raw.UnbanAfterKick, false),
		Workers:        positiveInt("workers", raw.Workers, DefaultWorkers),
		QueueSize:      positiveInt("queue_size", raw.QueueSize, DefaultQueueSize),
		SweepSchedule:  orDefault(raw.SweepSchedule, DefaultSweepSchedule),
		MessagesDir:    strings.TrimSpace(raw.MessagesDir),
		Storage:        loadStorageConfig(raw.Storage),
	}, nil
}

func loadBotConfig(raw rawConfig) (BotConfig, error) {
	provider := strings.ToLower(orDefault(raw.BotProvider, "telegram"))

	token := strings.TrimSpace(raw.BotToken)
	switch provider {
	case "telegram":
		if token == "" {
			token = strings.TrimSpace(raw.TelegramToken)
		}
	case "discord":
		if token == "" {
			token = strings.TrimSpace(raw.DiscordToken)
		}
	default:
		return BotConfig{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	if token == "" {
		return BotConfig{}, fmt.Errorf("%w for provider %s", ErrMissingToken, provider)
	}

	return BotConfig{
		Provider:          provider,
		Token:             token,
		FallbackChannelID: parseChatID("discord_channel_id", raw.DiscordChannelID),
	}, nil
}

func loadStorageConfig(raw rawStorage) StorageConfig {
	accessKey := strings.TrimSpace(raw.AccessKey)
	secretKey := strings.TrimSpace(raw.SecretKey)

	return StorageConfig{
		Enabled:   accessKey != "" && secretKey != "",
		Endpoint:  orDefault(raw.Endpoint, DefaultStorageHost),
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    parseBool("storage.use_ssl", raw.UseSSL, false),
		Bucket:    strings.TrimSpace(raw.Bucket),
	}
}

// parseChatID returns 0 (feature disabled) for empty or malformed ids.
func parseChatID(name, v string) int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}

	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger.Warn("invalid chat id, feature disabled", "setting", name, "value", v)
		return 0
	}
	return id
}

func positiveInt(name, v string, def int) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logger.Warn("invalid setting, using default", "setting", name, "value", v, "default", def)
		return def
	}
	return n
}

// positiveDuration reads a whole number of units. Values that would overflow
// a time.Duration fall back to def like any other bad value.
func positiveDuration(name, v string, unit, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 || n > math.MaxInt64/int64(unit) {
		logger.Warn("invalid setting, using default", "setting", name, "value", v, "default", def)
		return def
	}
	return time.Duration(n) * unit
}

func parseBool(name, v string, def bool) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid setting, using default", "setting", name, "value", v, "default", def)
		return def
	}
	return b
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
