package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
)

var meter = otel.Meter("leadscout.perf_stats")

var (
	cpuGauge, _         = meter.Float64Gauge("cpu_usage")
	heapGauge, _        = meter.Int64Gauge("heap_alloc_mb")
	liveObjectsGauge, _ = meter.Int64Gauge("live_objects")
	goroutinesGauge, _  = meter.Int64Gauge("goroutine_count")
)

const perfStatsInterval = time.Second * 30

// InstrumentPerfStats records process-level gauges for as long as the
// context lives. Long scrape runs sit mostly in network waits, these
// make the exceptions visible.
func InstrumentPerfStats(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(perfStatsInterval)
		defer ticker.Stop()

		var memStats runtime.MemStats
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runtime.ReadMemStats(&memStats)
				heapGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				liveObjectsGauge.Record(ctx, int64(memStats.Mallocs-memStats.Frees))
				goroutinesGauge.Record(ctx, int64(runtime.NumGoroutine()))

				usage, err := cpu.Percent(time.Minute, false)
				if err != nil {
					slog.Warn("failed to read cpu usage", "err", err)
					continue
				}
				cpuGauge.Record(ctx, usage[0])
			}
		}
	}()
}
