package monitoring

import (
	"strings"
	"time"
)

// ObserveAPILatency captures the HTTP request latency for the supplied route.
func ObserveAPILatency(method, path, status string, duration time.Duration) {
	module := CurrentModule()
	if module == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "UNKNOWN"
	}
	path = sanitizePath(path)
	if path == "" {
		path = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	module.metrics.apiLatency.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordConnection adjusts the open connection gauge for a transport. A
// positive delta also counts an accepted connection.
func RecordConnection(transport string, delta int64) {
	module := CurrentModule()
	if module == nil {
		return
	}
	if delta == 0 {
		return
	}
	label := normalizeLabel(transport)
	module.metrics.connections.WithLabelValues(label).Add(float64(delta))
	if delta > 0 {
		module.metrics.connectionsTotal.WithLabelValues(label).Add(float64(delta))
	}
	if module.stats.recordConnection(label, delta) < 0 {
		module.metrics.connections.WithLabelValues(label).Set(0)
	}
}

// RecordMessage counts one inbound message by type and outcome.
func RecordMessage(messageType, result string) {
	module := CurrentModule()
	if module == nil {
		return
	}
	kind := strings.TrimSpace(messageType)
	if kind == "" {
		kind = "unknown"
	}
	label := normalizeLabel(result)
	module.metrics.messages.WithLabelValues(kind, label).Inc()
	module.stats.recordMessage(label)
}

// ObserveDispatch records how long one message held the session lock.
func ObserveDispatch(duration time.Duration) {
	module := CurrentModule()
	if module == nil {
		return
	}
	observeDuration(module.metrics.dispatchLatency, duration)
}

// RecordDelivery counts a frame handed to a connection.
func RecordDelivery(mode string) {
	module := CurrentModule()
	if module == nil {
		return
	}
	label := normalizeLabel(mode)
	module.metrics.deliveries.WithLabelValues(label).Inc()
	module.stats.recordDelivery(label)
}

// RecordDeliveryFailure snapshots a frame that could not be written.
func RecordDeliveryFailure(mode, clientID, message string) {
	module := CurrentModule()
	if module == nil {
		return
	}
	label := normalizeLabel(mode)
	module.metrics.deliveryFailures.WithLabelValues(label).Inc()
	module.stats.recordDeliveryFailure(FailureRecord{
		Mode:     label,
		ClientID: strings.TrimSpace(clientID),
		Message:  strings.TrimSpace(message),
		Occurred: time.Now(),
	})
}

// RecordEdit counts an edit by outcome (applied, rejected, unknown_file).
func RecordEdit(result string) {
	module := CurrentModule()
	if module == nil {
		return
	}
	label := normalizeLabel(result)
	module.metrics.edits.WithLabelValues(label).Inc()
	module.stats.recordEdit(label)
}

// SetSessionSize publishes the current user and document counts.
func SetSessionSize(users, documents int) {
	module := CurrentModule()
	if module == nil {
		return
	}
	module.metrics.sessionUsers.Set(float64(users))
	module.metrics.sessionDocuments.Set(float64(documents))
	module.stats.users.Store(int64(users))
	module.stats.documents.Store(int64(documents))
}

// RecordJournalEvent counts a journal write by event kind and outcome.
func RecordJournalEvent(kind, result string) {
	module := CurrentModule()
	if module == nil {
		return
	}
	module.metrics.journalEvents.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
	module.stats.recordJournal(normalizeLabel(result))
}

// RecordMaintenanceRun records the completion of a maintenance job.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	module := CurrentModule()
	if module == nil {
		return
	}
	jobID := normalizeLabel(job)
	result = normalizeLabel(result)
	module.metrics.maintenanceRuns.WithLabelValues(jobID, result).Inc()
	observeDuration(module.metrics.maintenanceDuration.WithLabelValues(jobID), duration)
	if result == "success" {
		module.metrics.maintenanceLastRun.WithLabelValues(jobID).Set(float64(time.Now().Unix()))
	}
	stats := module.stats.maintenanceEntry(jobID)
	stats.record(result, strings.TrimSpace(message), duration)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}

func sanitizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "/" {
		return "root"
	}
	path = strings.Trim(path, "/")
	return strings.ReplaceAll(path, " ", "_")
}
