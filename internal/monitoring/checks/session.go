package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/codeshare/internal/monitoring"
)

// SessionObserver exposes the minimal state required to evaluate session health.
type SessionObserver interface {
	ConnectionCount() int
}

// Session reports delivery failures captured by instrumentation alongside the
// number of registered connections.
func Session(observer SessionObserver) monitoring.Check {
	return monitoring.NewCheck("session", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if observer == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "session store unavailable",
				Duration: time.Since(start),
			}
		}

		snapshot := monitoring.Snapshot()
		status := monitoring.StatusUp
		details := []string{fmt.Sprintf("%d registered connections", observer.ConnectionCount())}

		if snapshot.Delivery.Failures > 0 {
			status = monitoring.StatusDegraded
			details = append(details, fmt.Sprintf("%d delivery failures", snapshot.Delivery.Failures))
		}

		return monitoring.ProbeResult{
			Status:   status,
			Details:  strings.Join(details, "; "),
			Duration: time.Since(start),
		}
	})
}
