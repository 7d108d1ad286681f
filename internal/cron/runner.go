package cron

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/bowerhall/gatekeeper/internal/logger"
)

// parser accepts standard 5-field expressions and descriptors such as
// "@every 10m" or "@hourly".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Runner fires housekeeping jobs on cron schedules. A job that is still
// running when its next tick arrives is skipped.
type Runner struct {
	c    *cron.Cron
	jobs map[string]cron.EntryID
}

func NewRunner() *Runner {
	log := cronLogger{}
	return &Runner{
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(log),
			cron.WithChain(cron.SkipIfStillRunning(log), cron.Recover(log)),
		),
		jobs: make(map[string]cron.EntryID),
	}
}

// Validate reports whether schedule parses.
func Validate(schedule string) error {
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// Add registers fn under name. Names are unique.
func (r *Runner) Add(name, schedule string, fn func()) error {
	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	if err := Validate(schedule); err != nil {
		return err
	}

	id, err := r.c.AddFunc(schedule, func() {
		logger.Debug("cron job started", "job", name)
		fn()
	})
	if err != nil {
		return err
	}

	r.jobs[name] = id
	logger.Debug("cron job registered", "job", name, "schedule", schedule)
	return nil
}

// Jobs returns the number of registered jobs.
func (r *Runner) Jobs() int {
	return len(r.jobs)
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (r *Runner) Run(ctx context.Context) {
	logger.Info("cron runner started", "jobs", len(r.jobs))
	r.c.Start()

	<-ctx.Done()

	<-r.c.Stop().Done()
	logger.Info("cron runner stopped")
}

// cronLogger routes robfig/cron's own logging into the package logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
