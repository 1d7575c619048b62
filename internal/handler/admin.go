package handler

import (
	"net/http"
	"runtime"
	"time"

	"shopsy-inventory-api/internal/repository"
	"shopsy-inventory-api/pkg/response"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	stockRepo    repository.StockRepository
	cacheType    string
	notifierType string
	startTime    time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(stockRepo repository.StockRepository, cacheType, notifierType string) *AdminHandler {
	return &AdminHandler{
		stockRepo:    stockRepo,
		cacheType:    cacheType,
		notifierType: notifierType,
		startTime:    time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().UTC().Format(time.RFC3339)
	stats["cache_type"] = h.cacheType
	stats["notifier_type"] = h.notifierType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	dbStats, err := h.stockRepo.GetStats(ctx)
	if err == nil {
		dbStats["status"] = "connected"
		stats["database"] = dbStats
	} else {
		stats["database"] = map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}
