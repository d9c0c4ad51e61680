package api

import (
	"net/http"
	"os"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/tphakala/docquality/internal/conf"
	"github.com/tphakala/docquality/internal/logger"
	"github.com/tphakala/docquality/internal/quality"
)

const bytesPerMB = 1024 * 1024

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status            string      `json:"status"`
	Version           string      `json:"version"`
	ModelLoaded       bool        `json:"model_loaded"`
	ClassifierLoaded  bool        `json:"classifier_loaded"`
	Device            string      `json:"device"`
	UptimeSeconds     float64     `json:"uptime_seconds"`
	RequestsProcessed int64       `json:"requests_processed"`
	System            *SystemInfo `json:"system,omitempty"`
}

// SystemInfo describes the host as seen by the service.
type SystemInfo struct {
	CPUs               int     `json:"cpus"`
	Goroutines         int     `json:"goroutines"`
	MemoryUsedPercent  float64 `json:"memory_used_percent"`
	ProcessMemoryRSSMB float64 `json:"process_memory_rss_mb"`
}

// Root handles GET /.
func (c *Controller) Root(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{
		"service": "Document Quality Assessment API",
		"version": conf.ServiceVersion,
		"status":  "running",
	})
}

// HealthCheck handles GET /health. The service is unhealthy without a
// quality model.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	if err := c.requireQuality(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, HealthResponse{
		Status:            "healthy",
		Version:           conf.ServiceVersion,
		ModelLoaded:       true,
		ClassifierLoaded:  c.Classifier != nil,
		Device:            quality.Device,
		UptimeSeconds:     c.Predictor.Uptime().Seconds(),
		RequestsProcessed: c.Predictor.RequestCount(),
		System:            c.systemInfo(),
	})
}

// systemInfo gathers host statistics. Failed probes leave their field zero.
func (c *Controller) systemInfo() *SystemInfo {
	info := &SystemInfo{
		CPUs:       runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryUsedPercent = vm.UsedPercent
	} else {
		c.logger.Debug("virtual memory probe failed", logger.Error(err))
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil { //nolint:gosec // pid fits in int32
		if mi, err := proc.MemoryInfo(); err == nil {
			info.ProcessMemoryRSSMB = float64(mi.RSS) / bytesPerMB
		}
	}
	return info
}

// GetMetrics handles GET /metrics.
func (c *Controller) GetMetrics(ctx echo.Context) error {
	if err := c.requireQuality(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c.Predictor.Metrics())
}

// ResetMetrics handles POST /metrics/reset.
func (c *Controller) ResetMetrics(ctx echo.Context) error {
	if err := c.requireQuality(); err != nil {
		return err
	}
	c.Predictor.ResetMetrics()
	return ctx.JSON(http.StatusOK, map[string]string{"message": "Metrics reset successfully"})
}
