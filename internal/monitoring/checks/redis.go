package checks

import (
	"context"
	"time"

	"github.com/charlesng35/codeshare/internal/monitoring"
)

// RedisPinger is satisfied by the event publisher's Redis client.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Redis probes the event stream backend. Losing Redis only stops event
// publishing, so an enabled but unreachable client degrades readiness.
func Redis(client RedisPinger, enabled bool, timeout time.Duration) monitoring.Check {
	probe := pingProbe{name: "redis", disabled: "event publishing disabled", missing: monitoring.StatusDegraded}
	if client != nil {
		probe.ping = client.Ping
	}
	return probe.check(enabled, timeout)
}
