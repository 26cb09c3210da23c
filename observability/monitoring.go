// Package observability samples process health while the sync engine runs.
package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// QueryGauge reports how many live queries are registered.
type QueryGauge interface {
	LiveCount() int
}

// SubscriptionGauge reports how many subscriptions are open.
type SubscriptionGauge interface {
	SubscriptionCount() int
}

// Sampler periodically logs process usage plus engine gauges (live queries
// and open subscriptions). It runs under the supervisor like any worker.
type Sampler struct {
	log      *slog.Logger
	interval time.Duration
	queries  QueryGauge
	subs     SubscriptionGauge
}

func NewSampler(log *slog.Logger, interval time.Duration, queries QueryGauge, subs SubscriptionGauge) *Sampler {
	return &Sampler{log: log, interval: interval, queries: queries, subs: subs}
}

func (s *Sampler) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Context done, stopping sampler")
			return nil
		case <-ticker.C:
			s.sample(proc)
		}
	}
}

func (s *Sampler) sample(proc *process.Process) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	cpu, err := proc.CPUPercent()
	if err != nil {
		s.log.Debug("Error while reading cpu usage", "err", err)
	}
	ram, err := proc.MemoryPercent()
	if err != nil {
		s.log.Debug("Error while reading ram usage", "err", err)
	}

	s.log.Info("telemetry: engine health",
		"cpu_percent", cpu,
		"ram_percent", ram,
		"alloc_mb", memStats.Alloc/1024/1024,
		"num_gc", memStats.NumGC,
		"goroutines", runtime.NumGoroutine(),
		"live_queries", s.queries.LiveCount(),
		"subscriptions", s.subs.SubscriptionCount(),
	)
}
