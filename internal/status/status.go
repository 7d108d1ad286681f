package status

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/bowerhall/gatekeeper/internal/logger"
	"github.com/bowerhall/gatekeeper/internal/verifier"
)

// StatsSource exposes the orchestrator's current sizes.
type StatsSource interface {
	Stats() verifier.Stats
}

// HealthChecker is satisfied by *storage.Client.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

type Snapshot struct {
	Sessions   int
	Tracked    int
	Goroutines int
	RSSBytes   uint64
	HostMemPct float64
	Uptime     time.Duration
	// Storage is "off" without an archive, otherwise "ok" or "down".
	Storage string
}

type Reporter struct {
	source  StatsSource
	storage HealthChecker
	started time.Time
	proc    *process.Process
}

func New(source StatsSource) *Reporter {
	r := &Reporter{source: source, started: time.Now()}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Debug("process stats unavailable", "error", err)
	} else {
		r.proc = proc
	}
	return r
}

// SetStorage adds the audit bucket to the report.
func (r *Reporter) SetStorage(h HealthChecker) {
	r.storage = h
}

// Snapshot gathers the current figures. Resource fields stay zero when the
// host does not expose them.
func (r *Reporter) Snapshot() Snapshot {
	stats := r.source.Stats()

	snap := Snapshot{
		Sessions:   stats.Sessions,
		Tracked:    stats.Tracked,
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(r.started).Round(time.Second),
		Storage:    "off",
	}

	if r.storage != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if r.storage.Healthy(ctx) {
			snap.Storage = "ok"
		} else {
			snap.Storage = "down"
		}
		cancel()
	}

	if r.proc != nil {
		if info, err := r.proc.MemoryInfo(); err != nil {
			logger.Debug("process memory unavailable", "error", err)
		} else {
			snap.RSSBytes = info.RSS
		}
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		logger.Debug("host memory unavailable", "error", err)
	} else {
		snap.HostMemPct = vm.UsedPercent
	}

	return snap
}

func (r *Reporter) Report() {
	s := r.Snapshot()
	logger.Info("status",
		"sessions", s.Sessions,
		"tracked", s.Tracked,
		"goroutines", s.Goroutines,
		"rss_mb", s.RSSBytes/1024/1024,
		"host_mem_pct", int(s.HostMemPct),
		"uptime", s.Uptime,
		"storage", s.Storage,
	)
}
