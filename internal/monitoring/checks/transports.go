package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charlesng35/codeshare/internal/monitoring"
)

// Transport is a client-facing listener carrying the session protocol.
type Transport interface {
	Serving() bool
	ActiveConnections() int
}

// Transports is ready while every configured transport accepts connections.
// A nil entry marks a transport that is configured but was never started.
func Transports(transports map[string]Transport) monitoring.Check {
	names := make([]string, 0, len(transports))
	for name := range transports {
		names = append(names, name)
	}
	sort.Strings(names)

	return monitoring.NewCheck("transports", func(context.Context) monitoring.ProbeResult {
		start := time.Now()
		if len(names) == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "no transports configured", Duration: time.Since(start)}
		}

		status := monitoring.StatusUp
		details := make([]string, 0, len(names))
		for _, name := range names {
			t := transports[name]
			switch {
			case t == nil:
				status = monitoring.Worst(status, monitoring.StatusDegraded)
				details = append(details, name+": not started")
			case !t.Serving():
				status = monitoring.StatusDown
				details = append(details, name+": not serving")
			default:
				details = append(details, fmt.Sprintf("%s: %d connections", name, t.ActiveConnections()))
			}
		}

		return monitoring.ProbeResult{
			Status:   status,
			Details:  strings.Join(details, "; "),
			Duration: time.Since(start),
		}
	})
}
