package ops

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// RuntimeStats contains process-level statistics
type RuntimeStats struct {
	Version   string
	Commit    string
	Uptime    time.Duration
	StartTime time.Time

	GoVersion     string
	NumGoroutines int
	MemAllocMB    float64
	MemSysMB      float64
	NumGC         uint32
}

// EngineSnapshot is a point-in-time view of the timeline engine,
// filled in by the caller that owns the view and store
type EngineSnapshot struct {
	Relays      int
	Items       int
	PendingNew  int
	OpenGaps    int
	Watermark   int64
	HasMore     bool
	StoragePath string
}

// Diagnostics collects runtime statistics and formats status reports
type Diagnostics struct {
	version   string
	commit    string
	startTime time.Time
}

// NewDiagnostics creates a diagnostics collector
func NewDiagnostics(version, commit string) *Diagnostics {
	return &Diagnostics{
		version:   version,
		commit:    commit,
		startTime: time.Now(),
	}
}

// Runtime captures current process statistics
func (d *Diagnostics) Runtime() RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return RuntimeStats{
		Version:       d.version,
		Commit:        d.commit,
		Uptime:        time.Since(d.startTime),
		StartTime:     d.startTime,
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		MemAllocMB:    float64(mem.Alloc) / 1024 / 1024,
		MemSysMB:      float64(mem.Sys) / 1024 / 1024,
		NumGC:         mem.NumGC,
	}
}

// LogSnapshot writes the engine state to the log at info level
func (d *Diagnostics) LogSnapshot(log *Logger, engine EngineSnapshot) {
	rt := d.Runtime()
	log.Info("engine status",
		"uptime", rt.Uptime.Round(time.Second).String(),
		"goroutines", rt.NumGoroutines,
		"mem_alloc_mb", fmt.Sprintf("%.1f", rt.MemAllocMB),
		"relays", engine.Relays,
		"items", engine.Items,
		"pending_new", engine.PendingNew,
		"open_gaps", engine.OpenGaps,
		"watermark", engine.Watermark,
		"has_more", engine.HasMore,
	)
}

// FormatReport renders a human-readable status report
func (d *Diagnostics) FormatReport(engine EngineSnapshot) string {
	rt := d.Runtime()

	var b strings.Builder
	fmt.Fprintf(&b, "lumiline %s (%s)\n", rt.Version, rt.Commit)
	fmt.Fprintf(&b, "  uptime:      %s\n", rt.Uptime.Round(time.Second))
	fmt.Fprintf(&b, "  go:          %s, %d goroutines\n", rt.GoVersion, rt.NumGoroutines)
	fmt.Fprintf(&b, "  memory:      %.1f MB alloc / %.1f MB sys, %d GCs\n", rt.MemAllocMB, rt.MemSysMB, rt.NumGC)
	fmt.Fprintf(&b, "  relays:      %d\n", engine.Relays)
	fmt.Fprintf(&b, "  items:       %d visible, %d pending\n", engine.Items, engine.PendingNew)
	fmt.Fprintf(&b, "  gaps:        %d open\n", engine.OpenGaps)
	fmt.Fprintf(&b, "  watermark:   %d\n", engine.Watermark)
	fmt.Fprintf(&b, "  has more:    %v\n", engine.HasMore)
	if engine.StoragePath != "" {
		fmt.Fprintf(&b, "  storage:     %s\n", engine.StoragePath)
	}
	return b.String()
}
