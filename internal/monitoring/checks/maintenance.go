package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/codeshare/internal/monitoring"
)

const defaultMaintenanceMaxAge = 36 * time.Hour

// Maintenance grades the scheduled jobs from their recorded runs. Retention
// runs daily, so a window above one day tolerates a single skipped run.
func Maintenance(maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		jobs := monitoring.Snapshot().Maintenance.Jobs
		if len(jobs) == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no maintenance jobs registered", Duration: time.Since(start)}
		}

		status := monitoring.StatusUp
		var notes []string
		for _, job := range jobs {
			jobStatus, note := gradeJob(job, start, maxAge)
			status = monitoring.Worst(status, jobStatus)
			if note != "" {
				notes = append(notes, job.Job+": "+note)
			}
		}

		return monitoring.ProbeResult{Status: status, Details: strings.Join(notes, "; "), Duration: time.Since(start)}
	})
}

func gradeJob(job monitoring.MaintenanceJobSummary, now time.Time, maxAge time.Duration) (monitoring.ProbeStatus, string) {
	switch {
	case job.TotalRuns == 0:
		return monitoring.StatusUp, "pending first run"
	case job.ConsecutiveFailures > 0:
		return monitoring.StatusDown, "consecutive failures"
	case !job.LastRunAt.IsZero() && now.Sub(job.LastRunAt) > maxAge:
		return monitoring.StatusDegraded, "stale run " + job.LastRunAt.UTC().Format(time.RFC3339)
	}
	return monitoring.StatusUp, ""
}
