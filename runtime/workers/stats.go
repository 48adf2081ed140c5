package workers

import (
	"chatto/observability"
	"chatto/runtime"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// StatsWorker samples the registry and the process into the monitoring manager.
type StatsWorker struct {
	log      *slog.Logger
	registry *runtime.Registry
	monitor  *observability.MonitoringManager
	interval time.Duration
}

func NewStatsWorker(log *slog.Logger, registry *runtime.Registry, monitor *observability.MonitoringManager, interval time.Duration) *StatsWorker {
	return &StatsWorker{log: log, registry: registry, monitor: monitor, interval: interval}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sample(proc)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sample(proc)
		}
	}
}

func (w *StatsWorker) sample(proc *process.Process) {
	var stats observability.ProcessStats
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	} else {
		w.log.Debug("Unable to read cpu usage", "error", err)
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		stats.RSSBytes = mem.RSS
	} else {
		w.log.Debug("Unable to read memory usage", "error", err)
	}

	connections, rooms := w.registry.Stats()
	w.monitor.Update(connections, rooms, stats)
}
