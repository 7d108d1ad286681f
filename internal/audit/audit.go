package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bowerhall/gatekeeper/internal/logger"
)

type Outcome string

const (
	OutcomePassed    Outcome = "passed"
	OutcomeKicked    Outcome = "kicked"
	OutcomeAbandoned Outcome = "abandoned"
)

// Record describes one resolved verification session.
type Record struct {
	SessionID  string    `json:"session_id"`
	UserID     int64     `json:"user_id"`
	ChatID     int64     `json:"chat_id"`
	Outcome    Outcome   `json:"outcome"`
	StartedAt  time.Time `json:"started_at"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Key is the object name a record is archived under.
func (r Record) Key() string {
	return fmt.Sprintf("verifications/%s/%s.json", r.ResolvedAt.UTC().Format("2006/01/02"), r.SessionID)
}

type Recorder interface {
	Record(r Record)
}

// Nop discards records.
type Nop struct{}

func (Nop) Record(Record) {}

// Uploader stores an object; satisfied by *storage.Client.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) error
}

const uploadTimeout = 10 * time.Second

// Archive queues records and uploads them from a single background loop so
// callers never wait on object storage.
type Archive struct {
	uploader Uploader
	queue    chan Record
	done     chan struct{}
	once     sync.Once
}

func NewArchive(uploader Uploader, buffer int) *Archive {
	if buffer <= 0 {
		buffer = 64
	}
	return &Archive{
		uploader: uploader,
		queue:    make(chan Record, buffer),
		done:     make(chan struct{}),
	}
}

// Record enqueues r, dropping it when the queue is full.
func (a *Archive) Record(r Record) {
	select {
	case a.queue <- r:
	default:
		logger.Warn("audit queue full, record dropped", "session", r.SessionID, "outcome", r.Outcome)
	}
}

// Run uploads queued records until ctx is cancelled, then flushes what is
// already queued.
func (a *Archive) Run(ctx context.Context) {
	defer a.once.Do(func() { close(a.done) })

	for {
		select {
		case <-ctx.Done():
			a.flush()
			return
		case r := <-a.queue:
			a.upload(r)
		}
	}
}

// Done is closed once Run has returned.
func (a *Archive) Done() <-chan struct{} {
	return a.done
}

func (a *Archive) flush() {
	for {
		select {
		case r := <-a.queue:
			a.upload(r)
		default:
			return
		}
	}
}

func (a *Archive) upload(r Record) {
	data, err := json.Marshal(r)
	if err != nil {
		logger.Error("audit marshal failed", "session", r.SessionID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	if err := a.uploader.Upload(ctx, r.Key(), data, "application/json"); err != nil {
		logger.Error("audit upload failed", "session", r.SessionID, "error", err)
	}
}
