// Package statusapi exposes a small read-only gin HTTP surface over a
// running fleet of devices, grounded on
// cmd/driver/hasher-host/main.go's runAPIServer/Orchestrator pattern
// (gin.New + gin.Recovery, an /api/v1 route group, JSON handlers reading
// shared state under a lock) but scoped down to status/health/metrics
// only — no remote SSH redeploy orchestration, since this driver runs
// one process per board rather than a self-healing fleet.
package statusapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// DeviceStatus is a point-in-time snapshot of one device's driver state,
// assembled by the caller (typically from internal/miner.Miner plus its
// last internal/telemetry.Snapshot and internal/hashrate.Aggregator
// reading) and handed to the server on every request.
type DeviceStatus struct {
	Index    int     `json:"index"`
	Host     string  `json:"host"`
	UniqueID string  `json:"unique_id"`
	Dagging  bool    `json:"dagging"`
	ClockMHz float64 `json:"clock_mhz"`
	TempC    float64 `json:"temp_c"`
	VoltageV float64 `json:"voltage_v"`
	HBMSafe  bool    `json:"hbm_safe"`
	Hash10Min float64 `json:"hash_10min_mhs"`
	Hash60Min float64 `json:"hash_60min_mhs"`
	SettingID string `json:"setting_id,omitempty"`
}

// Provider returns the current snapshot of every device in the fleet.
// It is called fresh on every request, so implementations should be
// cheap (a copy out of already-maintained state, not a device read).
type Provider func() []DeviceStatus

// Server is the status/health/metrics HTTP surface.
type Server struct {
	provider   Provider
	startTime  time.Time
	httpServer *http.Server

	// Handler is exposed for tests, which exercise the router directly
	// instead of binding a real listener.
	Handler http.Handler
}

// New builds a Server bound to addr (e.g. ":8090"); call ListenAndServe
// to start serving.
func New(addr string, provider Provider) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{provider: provider, startTime: time.Now()}

	api := router.Group("/api/v1")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/metrics", s.handleMetrics)
		api.GET("/devices", s.handleDevices)
		api.GET("/devices/:index", s.handleDevice)
	}

	s.Handler = router
	s.httpServer = &http.Server{Addr: addr, Handler: router}
	return s
}

// ListenAndServe starts the HTTP server; it blocks until the server is
// shut down or fails to bind.
func (s *Server) ListenAndServe() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status       string `json:"status"`
	DeviceCount  int    `json:"device_count"`
	SafeCount    int    `json:"safe_count"`
	Uptime       string `json:"uptime"`
}

func (s *Server) handleHealth(c *gin.Context) {
	devices := s.provider()

	safe := 0
	for _, d := range devices {
		if d.HBMSafe {
			safe++
		}
	}

	status := "healthy"
	if len(devices) == 0 {
		status = "no_devices"
	} else if safe < len(devices) {
		status = "degraded"
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:      status,
		DeviceCount: len(devices),
		SafeCount:   safe,
		Uptime:      time.Since(s.startTime).String(),
	})
}

type metricsResponse struct {
	DeviceCount    int     `json:"device_count"`
	TotalHash10Min float64 `json:"total_hash_10min_mhs"`
	TotalHash60Min float64 `json:"total_hash_60min_mhs"`
	DaggingCount   int     `json:"dagging_count"`
	Uptime         string  `json:"uptime"`
}

func (s *Server) handleMetrics(c *gin.Context) {
	devices := s.provider()

	var total10, total60 float64
	dagging := 0
	for _, d := range devices {
		total10 += d.Hash10Min
		total60 += d.Hash60Min
		if d.Dagging {
			dagging++
		}
	}

	c.JSON(http.StatusOK, metricsResponse{
		DeviceCount:    len(devices),
		TotalHash10Min: total10,
		TotalHash60Min: total60,
		DaggingCount:   dagging,
		Uptime:         time.Since(s.startTime).String(),
	})
}

func (s *Server) handleDevices(c *gin.Context) {
	c.JSON(http.StatusOK, s.provider())
}

func (s *Server) handleDevice(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid device index"})
		return
	}

	for _, d := range s.provider() {
		if d.Index == idx {
			c.JSON(http.StatusOK, d)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no device at index %d", idx)})
}
