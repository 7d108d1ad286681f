package config

import "time"

type Config struct {
	Bot            BotConfig
	LogChatID      int64
	MaxJoinDelay   time.Duration
	Retention      time.Duration
	UnbanAfterKick bool
	Workers        int
	QueueSize      int
	SweepSchedule  string
	MessagesDir    string
	Storage        StorageConfig
}

type BotConfig struct {
	Provider string
	Token    string
	// Discord only: channel used for challenges when a guild has no system channel.
	FallbackChannelID int64
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// rawConfig mirrors the YAML file and the environment. Numeric settings stay
// strings so a malformed value can fall back to its default instead of
// failing the whole load.
type rawConfig struct {
	BotProvider      string     `yaml:"bot_provider" env:"BOT_PROVIDER"`
	BotToken         string     `yaml:"bot_token" env:"BOT_TOKEN"`
	TelegramToken    string     `yaml:"-" env:"TELEGRAM_TOKEN"`
	DiscordToken     string     `yaml:"-" env:"DISCORD_TOKEN"`
	DiscordChannelID string     `yaml:"discord_channel_id" env:"DISCORD_CHANNEL_ID"`
	LogChatID        string     `yaml:"log_chat_id" env:"LOG_CHAT_ID"`
	ServerDelay      string     `yaml:"server_delay" env:"SERVER_DELAY"`
	RetentionHours   string     `yaml:"retention_hours" env:"RETENTION_HOURS"`
	UnbanAfterKick   string     `yaml:"unban_after_kick" env:"UNBAN_AFTER_KICK"`
	Workers          string     `yaml:"workers" env:"WORKERS"`
	QueueSize        string     `yaml:"queue_size" env:"QUEUE_SIZE"`
	SweepSchedule    string     `yaml:"sweep_schedule" env:"SWEEP_SCHEDULE"`
	MessagesDir      string     `yaml:"messages_dir" env:"MESSAGES_DIR"`
	Storage          rawStorage `yaml:"storage"`
}

type rawStorage struct {
	Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
	UseSSL    string `yaml:"use_ssl" env:"MINIO_USE_SSL"`
	Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
}
