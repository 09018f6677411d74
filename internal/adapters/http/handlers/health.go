// Package handlers provides the HTTP handlers of the identity API and its
// operational probes.
package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// ProbePrefix is the path prefix of the operational endpoints. Request
// logging skips it.
const ProbePrefix = "/-"

// BuildInfo is injected at build time with ldflags.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// NewBuildInfo fills in the Go version of the running binary.
func NewBuildInfo(version, commit, buildTime string) BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
}

// HealthHandler serves the liveness, readiness, build and metrics probes.
type HealthHandler struct {
	registry  ports.HealthRegistry
	buildInfo BuildInfo
	metrics   http.Handler
}

// NewHealthHandler creates a probe handler over registry.
func NewHealthHandler(registry ports.HealthRegistry, buildInfo BuildInfo) *HealthHandler {
	return &HealthHandler{
		registry:  registry,
		buildInfo: buildInfo,
		metrics:   promhttp.Handler(),
	}
}

type probeResponse struct {
	Status string                        `json:"status"`
	Checks map[string]*ports.CheckResult `json:"checks,omitempty"`
}

// Liveness never inspects dependencies: a failing store must not restart
// the process.
func (h *HealthHandler) Liveness(c *gin.Context) {
	noStore(c)
	c.JSON(http.StatusOK, probeResponse{Status: "ok"})
}

// Readiness answers 200 while every critical dependency is healthy, even
// when optional ones such as event publishing are down, and 503 otherwise.
func (h *HealthHandler) Readiness(c *gin.Context) {
	result := h.registry.CheckAll(c.Request.Context())

	status := http.StatusOK
	if result.Status == ports.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	noStore(c)
	c.JSON(status, probeResponse{
		Status: string(result.Status),
		Checks: result.Checks,
	})
}

// BuildInfoHandler reports the build metadata.
func (h *HealthHandler) BuildInfoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.buildInfo)
}

// Metrics exposes the Prometheus collectors.
func (h *HealthHandler) Metrics(c *gin.Context) {
	h.metrics.ServeHTTP(c.Writer, c.Request)
}

// RegisterProbeRoutes registers the probes under ProbePrefix. Liveness and
// readiness also answer HEAD for load balancers.
func (h *HealthHandler) RegisterProbeRoutes(engine *gin.Engine) {
	probes := engine.Group(ProbePrefix)

	probes.GET("/live", h.Liveness)
	probes.HEAD("/live", h.Liveness)
	probes.GET("/ready", h.Readiness)
	probes.HEAD("/ready", h.Readiness)
	probes.GET("/build", h.BuildInfoHandler)
	probes.GET("/metrics", h.Metrics)
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
}
