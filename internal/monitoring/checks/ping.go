package checks

import (
	"context"
	"time"

	"github.com/charlesng35/codeshare/internal/monitoring"
)

const defaultPingTimeout = 2 * time.Second

// pingProbe describes a backend reachable through a single ping call.
type pingProbe struct {
	name string
	// disabled is reported as up when the backend is switched off in config.
	disabled string
	// missing is the status reported when the backend is enabled but absent.
	missing monitoring.ProbeStatus
	ping    func(ctx context.Context) error
}

func (p pingProbe) check(enabled bool, timeout time.Duration) monitoring.Check {
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return monitoring.NewCheck(p.name, func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		switch {
		case !enabled:
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: p.disabled, Duration: time.Since(start)}
		case p.ping == nil:
			return monitoring.ProbeResult{Status: p.missing, Details: p.name + " unavailable", Duration: time.Since(start)}
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return monitoring.ResultFromError(p.name, p.ping(probeCtx), time.Since(start))
	})
}
