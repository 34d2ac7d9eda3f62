package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/codeshare/internal/app"
	"github.com/charlesng35/codeshare/internal/monitoring"
	"github.com/charlesng35/codeshare/pkg/response"
)

// MonitoringHandler serves the operator summary: counters from the monitoring
// module next to the live session size and the transport endpoints.
type MonitoringHandler struct {
	module  *monitoring.Module
	cfg     *app.Config
	session SessionReader
}

type sessionSize struct {
	Users       int `json:"users"`
	Documents   int `json:"documents"`
	Connections int `json:"connections"`
}

type transportInfo struct {
	TCP       string `json:"tcp"`
	WebSocket string `json:"websocket,omitempty"`
}

// NewMonitoringHandler returns nil when both health and metrics are disabled.
// session may be nil, in which case the summary omits the session size.
func NewMonitoringHandler(module *monitoring.Module, cfg *app.Config, session SessionReader) *MonitoringHandler {
	if module == nil || cfg == nil {
		return nil
	}
	if !cfg.Monitoring.Health.Enabled && !cfg.Monitoring.Prometheus.Enabled {
		return nil
	}
	return &MonitoringHandler{module: module, cfg: cfg, session: session}
}

// Summary handles GET /api/monitoring/summary.
func (h *MonitoringHandler) Summary(c *gin.Context) {
	endpoint := strings.TrimSpace(h.cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}

	transports := transportInfo{TCP: h.cfg.Session.ListenAddress}
	if h.cfg.WebSocket.Enabled {
		transports.WebSocket = h.cfg.WebSocket.Path
	}

	body := gin.H{
		"summary":    monitoring.Snapshot(),
		"transports": transports,
		"prometheus": gin.H{
			"enabled":  h.cfg.Monitoring.Prometheus.Enabled,
			"endpoint": endpoint,
		},
	}
	if h.session != nil {
		snap := h.session.Snapshot()
		body["session"] = sessionSize{Users: len(snap.Users), Documents: len(snap.Files), Connections: snap.Connections}
	}
	response.Success(c, http.StatusOK, body)
}
