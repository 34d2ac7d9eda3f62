package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/codeshare/internal/app"
	"github.com/charlesng35/codeshare/internal/monitoring"
	"github.com/charlesng35/codeshare/internal/protocol"
	"github.com/charlesng35/codeshare/internal/session"
)

type fixedSession struct {
	snap session.Snapshot
}

func (f fixedSession) Snapshot() session.Snapshot { return f.snap }

func (f fixedSession) Document(string) (session.DocumentSnapshot, bool) {
	return session.DocumentSnapshot{}, false
}

func TestMonitoringHandlerSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)

	monitoring.RecordMessage("EDIT", "ok")
	monitoring.RecordMaintenanceRun("journal_retention", "success", "", 200*time.Millisecond)

	cfg := &app.Config{
		Session:   app.SessionConfig{ListenAddress: "127.0.0.1:8080"},
		WebSocket: app.WebSocketConfig{Enabled: true, Path: "/ws"},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	live := fixedSession{snap: session.Snapshot{
		Users:       []protocol.UserInfo{{ID: "alice-1"}, {ID: "bob-2"}},
		Files:       []session.FileSummary{{Path: "main.go"}},
		Connections: 2,
	}}
	handler := NewMonitoringHandler(mod, cfg, live)
	require.NotNil(t, handler)

	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request, _ = http.NewRequest(http.MethodGet, "/api/monitoring/summary", nil)

	handler.Summary(ctx)
	require.Equal(t, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	require.Contains(t, body, `"success":true`)
	require.Contains(t, body, "journal_retention")
	require.Contains(t, body, `"session":{"users":2,"documents":1,"connections":2}`)
	require.Contains(t, body, `"transports":{"tcp":"127.0.0.1:8080","websocket":"/ws"}`)
}

func TestMonitoringHandlerDisabled(t *testing.T) {
	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)

	require.Nil(t, NewMonitoringHandler(mod, &app.Config{}, nil))
	require.Nil(t, NewMonitoringHandler(nil, &app.Config{}, nil))
}
