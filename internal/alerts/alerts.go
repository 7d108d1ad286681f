package alerts

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityCritical
)

func SeverityOf(level slog.Level) Severity {
	switch {
	case level >= slog.LevelError:
		return SeverityCritical
	case level >= slog.LevelWarn:
		return SeverityWarn
	default:
		return SeverityInfo
	}
}

// NotifyFunc delivers text to the log chat. Its error is ignored.
type NotifyFunc func(message string) error

// Alerter forwards log lines to a chat. Identical lines inside the cooldown
// are suppressed and a full queue drops lines instead of blocking the caller.
type Alerter struct {
	mu        sync.Mutex
	notify    NotifyFunc
	cooldowns map[string]time.Time
	cooldown  time.Duration
	queue     chan string
	now       func() time.Time
}

func New(notify NotifyFunc, cooldown time.Duration, buffer int) *Alerter {
	if buffer <= 0 {
		buffer = 128
	}
	return &Alerter{
		notify:    notify,
		cooldowns: make(map[string]time.Time),
		cooldown:  cooldown,
		queue:     make(chan string, buffer),
		now:       time.Now,
	}
}

// Forward matches logger.MirrorFunc.
func (a *Alerter) Forward(level slog.Level, line string) {
	a.Alert(SeverityOf(level), line)
}

func (a *Alerter) Alert(severity Severity, line string) {
	a.mu.Lock()
	now := a.now()
	if lastSent, ok := a.cooldowns[line]; ok && now.Sub(lastSent) < a.cooldown {
		a.mu.Unlock()
		return
	}
	a.cooldowns[line] = now
	a.pruneLocked(now)
	a.mu.Unlock()

	select {
	case a.queue <- format(severity, line):
	default:
	}
}

// pruneLocked drops cooldown entries that can no longer suppress anything.
func (a *Alerter) pruneLocked(now time.Time) {
	if len(a.cooldowns) < 1024 {
		return
	}
	for k, t := range a.cooldowns {
		if now.Sub(t) >= a.cooldown {
			delete(a.cooldowns, k)
		}
	}
}

// Run delivers queued lines until ctx is cancelled.
func (a *Alerter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-a.queue:
			if a.notify != nil {
				_ = a.notify(text)
			}
		}
	}
}

func format(severity Severity, line string) string {
	switch severity {
	case SeverityCritical:
		return "🚨 " + line
	case SeverityWarn:
		return "⚠️ " + line
	default:
		return "ℹ️ " + line
	}
}
