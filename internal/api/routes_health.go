package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/codeshare/internal/app"
	"github.com/charlesng35/codeshare/internal/monitoring"
)

type healthEndpoint struct {
	path     string
	evaluate func(*monitoring.HealthManager, context.Context) monitoring.HealthReport
	summary  bool
}

// Readiness backs /health because a session server that cannot journal or
// accept connections should be taken out of rotation.
var healthEndpoints = []healthEndpoint{
	{path: "/health", evaluate: (*monitoring.HealthManager).EvaluateReadiness, summary: true},
	{path: "/health/live", evaluate: (*monitoring.HealthManager).EvaluateLiveness},
	{path: "/health/ready", evaluate: (*monitoring.HealthManager).EvaluateReadiness},
}

// registerHealthRoutes mounts the probes at the root and under /api.
func registerHealthRoutes(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	if cfg == nil {
		return
	}

	var manager *monitoring.HealthManager
	if cfg.Monitoring.Health.Enabled {
		manager = mon.Health()
	}

	for _, group := range []gin.IRouter{r, r.Group("/api")} {
		for _, endpoint := range healthEndpoints {
			group.GET(endpoint.path, healthHandler(manager, endpoint))
		}
	}
}

func healthHandler(manager *monitoring.HealthManager, endpoint healthEndpoint) gin.HandlerFunc {
	if manager == nil {
		return func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "status": "disabled"})
		}
	}
	return func(c *gin.Context) {
		report := endpoint.evaluate(manager, c.Request.Context())
		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}
		body := gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"checked_at": report.CheckedAt,
		}
		if !endpoint.summary {
			body["checks"] = report.Checks
		}
		c.JSON(status, body)
	}
}
