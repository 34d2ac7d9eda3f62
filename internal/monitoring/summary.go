package monitoring

import "time"

// Summary surfaces aggregated monitoring data for the admin API.
type Summary struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Connections ConnectionSummary  `json:"connections"`
	Messages    MessageSummary     `json:"messages"`
	Delivery    DeliverySummary    `json:"delivery"`
	Edits       EditSummary        `json:"edits"`
	Session     SessionSummary     `json:"session"`
	Journal     JournalSummary     `json:"journal"`
	Maintenance MaintenanceSummary `json:"maintenance"`
}

type ConnectionSummary struct {
	Active      int64            `json:"active"`
	Accepted    uint64           `json:"accepted"`
	ByTransport map[string]int64 `json:"by_transport"`
}

type MessageSummary struct {
	Total       uint64 `json:"total"`
	Malformed   uint64 `json:"malformed"`
	Unhandled   uint64 `json:"unhandled"`
	UnknownFile uint64 `json:"unknown_file"`
}

type FailureRecord struct {
	Mode     string    `json:"mode"`
	ClientID string    `json:"client_id"`
	Message  string    `json:"message"`
	Occurred time.Time `json:"occurred_at"`
}

type DeliverySummary struct {
	Unicasts    uint64         `json:"unicasts"`
	Broadcasts  uint64         `json:"broadcasts"`
	Failures    uint64         `json:"failures"`
	LastFailure *FailureRecord `json:"last_failure,omitempty"`
}

type EditSummary struct {
	Applied     uint64 `json:"applied"`
	Rejected    uint64 `json:"rejected"`
	UnknownFile uint64 `json:"unknown_file"`
}

type SessionSummary struct {
	Users     int64 `json:"users"`
	Documents int64 `json:"documents"`
}

type JournalSummary struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	ConsecutiveSuccess  uint64        `json:"consecutive_success"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}

// Snapshot returns a point-in-time summary from the current module when configured.
func Snapshot() Summary {
	if module := CurrentModule(); module != nil && module.stats != nil {
		return module.stats.summary()
	}
	return Summary{GeneratedAt: time.Now()}
}
