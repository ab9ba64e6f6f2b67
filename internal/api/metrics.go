package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/blox-core/internal/box"
	"github.com/nerrad567/blox-core/internal/cbox"
)

// SystemMetrics represents the complete metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Objects       ObjectMetrics  `json:"objects"`
	Sessions      *int           `json:"transport_sessions,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// ObjectMetrics summarises the container.
type ObjectMetrics struct {
	Total        int            `json:"total"`
	System       int            `json:"system"`
	Active       int            `json:"active"`
	ActiveGroups cbox.GroupMask `json:"active_groups"`
	ByType       map[string]int `json:"by_type"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var objects ObjectMetrics
	if !s.snapshot(w, r, func(b *box.Box) { objects = objectMetrics(b) }) {
		return
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Objects: objects,
	}
	if s.sessions != nil {
		n := s.sessions.Sessions()
		metrics.Sessions = &n
	}

	writeJSON(w, http.StatusOK, metrics)
}

// objectMetrics must run on the loop goroutine.
func objectMetrics(b *box.Box) ObjectMetrics {
	objects := b.Objects()
	active := b.ActiveGroups()
	m := ObjectMetrics{
		Total:        objects.Len(),
		ActiveGroups: active,
		ByType:       make(map[string]int),
	}
	for entry := range objects.All() {
		if objects.IsSystem(entry.ID()) {
			m.System++
		}
		if entry.Groups()&active != 0 {
			m.Active++
		}
		m.ByType[objects.Registry().Name(entry.Type())]++
	}
	return m
}
