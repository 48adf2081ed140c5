package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// MonitoringStats aggregates every metric exposed on the debug endpoint.
type MonitoringStats struct {
	// --- REALTIME ---
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	Broadcasts  uint64 `json:"broadcasts"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Indexed     uint64 `json:"indexed"`
	IndexDrops  uint64 `json:"index_drops"`

	// --- PROCESS ---
	CPUPercent float64 `json:"cpu_percent"`
	RSSMb      uint64  `json:"rss_mb"`

	// --- GO RUNTIME ---
	AllocMemMb uint64 `json:"alloc_mem_mb"`
	NumGC      uint32 `json:"num_gc"`
	Goroutines int    `json:"goroutines"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ProcessStats is sampled by the stats worker.
type ProcessStats struct {
	CPUPercent float64
	RSSBytes   uint64
}

// MonitoringManager holds counters bumped on the hot path and the latest sample.
type MonitoringManager struct {
	log *slog.Logger
	mu  sync.RWMutex

	latest MonitoringStats

	broadcasts atomic.Uint64
	delivered  atomic.Uint64
	dropped    atomic.Uint64
	indexed    atomic.Uint64
	indexDrops atomic.Uint64
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log}
}

// RecordBroadcast counts one fan-out call and its per-connection outcome.
func (mm *MonitoringManager) RecordBroadcast(delivered, dropped int) {
	mm.broadcasts.Add(1)
	mm.delivered.Add(uint64(delivered))
	mm.dropped.Add(uint64(dropped))
}

func (mm *MonitoringManager) IncrIndexed(n int) {
	mm.indexed.Add(uint64(n))
}

func (mm *MonitoringManager) IncrIndexDrops() {
	mm.indexDrops.Add(1)
}

// Update refreshes the sample with registry sizes and process stats.
func (mm *MonitoringManager) Update(connections, rooms int, process ProcessStats) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latest = MonitoringStats{
		Connections: connections,
		Rooms:       rooms,
		CPUPercent:  process.CPUPercent,
		RSSMb:       process.RSSBytes / 1024 / 1024,
		AllocMemMb:  m.Alloc / 1024 / 1024,
		NumGC:       m.NumGC,
		Goroutines:  runtime.NumGoroutine(),
		UpdatedAt:   time.Now().UTC(),
	}
	mm.log.Debug("Stats updated",
		"connections", connections,
		"rooms", rooms,
		"cpu_percent", process.CPUPercent,
		"alloc_mb", mm.latest.AllocMemMb,
	)
}

// GetLatest returns the last sample with the live counters.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	stats := mm.latest
	mm.mu.RUnlock()

	stats.Broadcasts = mm.broadcasts.Load()
	stats.Delivered = mm.delivered.Load()
	stats.Dropped = mm.dropped.Load()
	stats.Indexed = mm.indexed.Load()
	stats.IndexDrops = mm.indexDrops.Load()
	return stats
}
