package api

import (
	"net/http"
	"runtime"
	"time"
)

// StatusSnapshot is the /api/v1/status response.
type StatusSnapshot struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Printers      int            `json:"printers"`
	Sessions      SessionMetrics `json:"sessions"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// SessionMetrics counts sessions by lifecycle status.
type SessionMetrics struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Queued   int            `json:"queued"`
}

// handleStatus returns a point-in-time snapshot of the gateway.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := StatusSnapshot{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Sessions: SessionMetrics{ByStatus: make(map[string]int)},
	}

	records, err := s.farm.Printers(r.Context())
	if err != nil {
		s.writeFarmError(w, "listing printers", err)
		return
	}
	snap.Printers = len(records)

	sessions, err := s.farm.Sessions(r.Context())
	if err != nil {
		s.writeFarmError(w, "listing sessions", err)
		return
	}
	snap.Sessions.Total = len(sessions)
	for _, info := range sessions {
		snap.Sessions.ByStatus[info.Status]++
		snap.Sessions.Queued += info.Queued
	}

	writeJSON(w, http.StatusOK, snap)
}
