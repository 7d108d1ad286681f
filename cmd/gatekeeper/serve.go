package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bowerhall/gatekeeper/internal/alerts"
	"github.com/bowerhall/gatekeeper/internal/audit"
	"github.com/bowerhall/gatekeeper/internal/bot"
	"github.com/bowerhall/gatekeeper/internal/config"
	"github.com/bowerhall/gatekeeper/internal/cron"
	"github.com/bowerhall/gatekeeper/internal/logger"
	"github.com/bowerhall/gatekeeper/internal/msgcat"
	"github.com/bowerhall/gatekeeper/internal/status"
	"github.com/bowerhall/gatekeeper/internal/storage"
	"github.com/bowerhall/gatekeeper/internal/verifier"
)

const (
	statusSchedule = "@hourly"
	alertCooldown  = 10 * time.Minute
	auditBuffer    = 256
)

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	b, err := bot.New(bot.Config{
		Provider:          cfg.Bot.Provider,
		Token:             cfg.Bot.Token,
		FallbackChannelID: cfg.Bot.FallbackChannelID,
	})
	if err != nil {
		return fmt.Errorf("create %s bot: %w", cfg.Bot.Provider, err)
	}

	if cfg.LogChatID != 0 {
		alerter := alerts.New(func(message string) error {
			return b.Notify(cfg.LogChatID, message)
		}, alertCooldown, 0)
		go alerter.Run(ctx)

		logger.SetMirror(alerter.Forward, slog.LevelInfo)
		defer logger.SetMirror(nil, 0)
		logger.Debug("log mirroring enabled", "chat", cfg.LogChatID)
	}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	var recorder audit.Recorder = audit.Nop{}
	var storageClient *storage.Client

	// the archive outlives ctx so records from the last events still flush
	archiveCtx, stopArchive := context.WithCancel(context.Background())
	defer stopArchive()

	if cfg.Storage.Enabled {
		storageClient, err = storage.NewClient(storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}

		initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
		err = storageClient.Init(initCtx)
		initCancel()

		if err != nil {
			logger.Warn("audit archive disabled", "error", err)
			storageClient = nil
		} else {
			archive := audit.NewArchive(storageClient, auditBuffer)
			go archive.Run(archiveCtx)
			defer func() {
				stopArchive()
				<-archive.Done()
			}()
			recorder = archive
			logger.Info("audit archive enabled", "bucket", storageClient.Bucket())
		}
	}

	orch := verifier.New(b, verifier.Options{
		MaxJoinDelay:   cfg.MaxJoinDelay,
		Retention:      cfg.Retention,
		UnbanAfterKick: cfg.UnbanAfterKick,
		Texts:          catalog,
		Audit:          recorder,
	})

	dispatcher := verifier.NewDispatcher(orch, cfg.Workers, cfg.QueueSize)
	dispatcher.Start(ctx)

	reporter := status.New(orch)
	if storageClient != nil {
		reporter.SetStorage(storageClient)
	}

	runner := cron.NewRunner()
	if err := runner.Add("sweep", cfg.SweepSchedule, func() { orch.Sweep() }); err != nil {
		return err
	}
	if err := runner.Add("status", statusSchedule, reporter.Report); err != nil {
		return err
	}

	runnerDone := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(runnerDone)
	}()

	botErr := make(chan error, 1)
	go func() {
		botErr <- b.Start(ctx, func(ev verifier.Event) bool {
			return dispatcher.Submit(ctx, ev)
		})
	}()

	logger.Info("gatekeeper started",
		"bot", cfg.Bot.Provider,
		"delay", cfg.MaxJoinDelay,
		"retention", cfg.Retention,
		"workers", cfg.Workers,
		"jobs", runner.Jobs(),
		"audit", storageClient != nil,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case <-sigCh:
		logger.Info("shutting down")
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-botErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("bot stopped", "error", err)
			runErr = err
		}
	}

	cancel()
	dispatcher.Wait()
	<-runnerDone

	reporter.Report()
	return runErr
}
