package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bowerhall/gatekeeper/internal/config"
)

// configView is the printable form of the effective configuration.
type configView struct {
	BotProvider    string `yaml:"bot_provider"`
	BotToken       string `yaml:"bot_token"`
	FallbackChan   int64  `yaml:"discord_channel_id,omitempty"`
	LogChatID      int64  `yaml:"log_chat_id,omitempty"`
	ServerDelay    string `yaml:"server_delay"`
	Retention      string `yaml:"retention"`
	UnbanAfterKick bool   `yaml:"unban_after_kick"`
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	SweepSchedule  string `yaml:"sweep_schedule"`
	MessagesDir    string `yaml:"messages_dir,omitempty"`
	Storage        struct {
		Enabled   bool   `yaml:"enabled"`
		Endpoint  string `yaml:"endpoint,omitempty"`
		AccessKey string `yaml:"access_key,omitempty"`
		SecretKey string `yaml:"secret_key,omitempty"`
		UseSSL    bool   `yaml:"use_ssl"`
		Bucket    string `yaml:"bucket,omitempty"`
	} `yaml:"storage"`
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(viewOf(cfg))
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}

			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func viewOf(cfg *config.Config) configView {
	v := configView{
		BotProvider:    cfg.Bot.Provider,
		BotToken:       redact(cfg.Bot.Token),
		FallbackChan:   cfg.Bot.FallbackChannelID,
		LogChatID:      cfg.LogChatID,
		ServerDelay:    cfg.MaxJoinDelay.String(),
		Retention:      cfg.Retention.String(),
		UnbanAfterKick: cfg.UnbanAfterKick,
		Workers:        cfg.Workers,
		QueueSize:      cfg.QueueSize,
		SweepSchedule:  cfg.SweepSchedule,
		MessagesDir:    cfg.MessagesDir,
	}

	v.Storage.Enabled = cfg.Storage.Enabled
	if cfg.Storage.Enabled {
		v.Storage.Endpoint = cfg.Storage.Endpoint
		v.Storage.AccessKey = redact(cfg.Storage.AccessKey)
		v.Storage.SecretKey = redact(cfg.Storage.SecretKey)
		v.Storage.UseSSL = cfg.Storage.UseSSL
		v.Storage.Bucket = cfg.Storage.Bucket
	}
	return v
}

// redact keeps the last four characters of long secrets.
func redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
