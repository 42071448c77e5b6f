package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/tradedesk/internal/database"
)

var startedAt = time.Now()

// handleHealth handles health check requests. Degraded rather than dead
// when a database fails its ping, since cached state is still servable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	databases := map[string]string{}

	for _, db := range []*database.DB{s.sessionDB, s.cacheDB} {
		if err := db.HealthCheck(ctx); err != nil {
			status = "degraded"
			databases[db.Name()] = err.Error()
		} else {
			databases[db.Name()] = "ok"
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"service":   "tradedesk",
		"databases": databases,
	})
}

// handleSystemStatus reports process and host statistics for the status
// panel
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memUsed := 0.0
	if memStat, err := mem.VirtualMemory(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		memUsed = memStat.UsedPercent
	}

	diskUsed := 0.0
	if diskStat, err := disk.Usage(s.cfg.DataDir); err != nil {
		s.log.Warn().Err(err).Msg("Failed to get disk usage")
	} else {
		diskUsed = diskStat.UsedPercent
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds":   int(time.Since(startedAt).Seconds()),
		"cpu_percent":      cpuAvg,
		"memory_percent":   memUsed,
		"disk_percent":     diskUsed,
		"goroutines":       runtime.NumGoroutine(),
		"active_schedules": s.scheduler.Active(),
		"logged_in":        s.guard.IsLoggedIn(),
	})
}
