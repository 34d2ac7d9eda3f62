package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/codeshare/internal/app"
	"github.com/charlesng35/codeshare/internal/handlers"
	"github.com/charlesng35/codeshare/internal/middleware"
	"github.com/charlesng35/codeshare/internal/monitoring"
)

// Dependencies carries everything the admin router mounts.
type Dependencies struct {
	Config     *app.Config
	Session    handlers.SessionReader
	Events     handlers.EventLister
	Monitoring *monitoring.Module
	// WebSocket serves the session protocol when websocket.enabled is set.
	WebSocket http.Handler
}

// NewRouter builds the Gin engine, wires middleware and registers the admin routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session store must be provided")
	}

	metricsEndpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if metricsEndpoint == "" {
		metricsEndpoint = "/metrics"
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(metricsEndpoint))
	r.NoRoute(middleware.NotFoundHandler)

	registerHealthRoutes(r, cfg, deps.Monitoring)

	if cfg.Monitoring.Prometheus.Enabled && deps.Monitoring != nil {
		r.GET(metricsEndpoint, gin.WrapH(deps.Monitoring.Handler()))
	}

	if cfg.WebSocket.Enabled && deps.WebSocket != nil {
		path := strings.TrimSpace(cfg.WebSocket.Path)
		if path == "" {
			path = "/ws"
		}
		r.GET(path, gin.WrapH(deps.WebSocket))
	}

	api := r.Group("/api")

	sessionHandler, err := handlers.NewSessionHandler(deps.Session)
	if err != nil {
		return nil, err
	}
	registerSessionRoutes(api, sessionHandler)

	if deps.Events != nil {
		eventsHandler, err := handlers.NewEventsHandler(deps.Events)
		if err != nil {
			return nil, err
		}
		registerEventRoutes(api, eventsHandler)
	}

	registerMonitoringRoutes(api, handlers.NewMonitoringHandler(deps.Monitoring, cfg, deps.Session))

	return r, nil
}
