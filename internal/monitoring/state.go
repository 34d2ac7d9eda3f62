package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	connections      sync.Map // transport -> *atomic.Int64
	connectionsTotal atomic.Uint64

	messagesTotal       atomic.Uint64
	messagesMalformed   atomic.Uint64
	messagesUnhandled   atomic.Uint64
	messagesUnknownFile atomic.Uint64

	unicasts         atomic.Uint64
	broadcasts       atomic.Uint64
	deliveryFailures atomic.Uint64
	lastFailure      atomic.Value // *FailureRecord

	editsApplied     atomic.Uint64
	editsRejected    atomic.Uint64
	editsUnknownFile atomic.Uint64

	users     atomic.Int64
	documents atomic.Int64

	journalWritten atomic.Uint64
	journalFailed  atomic.Uint64

	maintenance sync.Map // string -> *maintenanceStats
}

func newStatStore() *statStore {
	store := &statStore{}
	store.lastFailure.Store((*FailureRecord)(nil))
	return store
}

func (s *statStore) cloneMaintenance() []MaintenanceJobSummary {
	summaries := []MaintenanceJobSummary{}
	s.maintenance.Range(func(key, value any) bool {
		job := key.(string)
		stats := value.(*maintenanceStats)
		summaries = append(summaries, stats.snapshot(job))
		return true
	})
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Job < summaries[j].Job })
	return summaries
}

func (s *statStore) summary() Summary {
	lastFailure, _ := s.lastFailure.Load().(*FailureRecord)

	byTransport := map[string]int64{}
	var active int64
	s.connections.Range(func(key, value any) bool {
		count := value.(*atomic.Int64).Load()
		byTransport[key.(string)] = count
		active += count
		return true
	})

	return Summary{
		GeneratedAt: time.Now(),
		Connections: ConnectionSummary{
			Active:      active,
			Accepted:    s.connectionsTotal.Load(),
			ByTransport: byTransport,
		},
		Messages: MessageSummary{
			Total:       s.messagesTotal.Load(),
			Malformed:   s.messagesMalformed.Load(),
			Unhandled:   s.messagesUnhandled.Load(),
			UnknownFile: s.messagesUnknownFile.Load(),
		},
		Delivery: DeliverySummary{
			Unicasts:    s.unicasts.Load(),
			Broadcasts:  s.broadcasts.Load(),
			Failures:    s.deliveryFailures.Load(),
			LastFailure: lastFailure,
		},
		Edits: EditSummary{
			Applied:     s.editsApplied.Load(),
			Rejected:    s.editsRejected.Load(),
			UnknownFile: s.editsUnknownFile.Load(),
		},
		Session: SessionSummary{
			Users:     s.users.Load(),
			Documents: s.documents.Load(),
		},
		Journal: JournalSummary{
			Written: s.journalWritten.Load(),
			Failed:  s.journalFailed.Load(),
		},
		Maintenance: MaintenanceSummary{
			Jobs: s.cloneMaintenance(),
		},
	}
}

// recordConnection returns the counter value before clamping.
func (s *statStore) recordConnection(transport string, delta int64) int64 {
	value, _ := s.connections.LoadOrStore(transport, new(atomic.Int64))
	counter := value.(*atomic.Int64)
	if delta > 0 {
		s.connectionsTotal.Add(uint64(delta))
	}
	newValue := counter.Add(delta)
	if newValue < 0 {
		counter.Store(0)
	}
	return newValue
}

func (s *statStore) recordMessage(result string) {
	s.messagesTotal.Add(1)
	switch result {
	case "malformed":
		s.messagesMalformed.Add(1)
	case "unhandled":
		s.messagesUnhandled.Add(1)
	case "unknown_file":
		s.messagesUnknownFile.Add(1)
	}
}

func (s *statStore) recordDelivery(mode string) {
	switch mode {
	case "broadcast":
		s.broadcasts.Add(1)
	default:
		s.unicasts.Add(1)
	}
}

func (s *statStore) recordDeliveryFailure(record FailureRecord) {
	s.deliveryFailures.Add(1)
	cloned := record
	s.lastFailure.Store(&cloned)
}

func (s *statStore) recordEdit(result string) {
	switch result {
	case "applied":
		s.editsApplied.Add(1)
	case "unknown_file":
		s.editsUnknownFile.Add(1)
	default:
		s.editsRejected.Add(1)
	}
}

func (s *statStore) recordJournal(result string) {
	if result == "success" {
		s.journalWritten.Add(1)
		return
	}
	s.journalFailed.Add(1)
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	value, ok := s.maintenance.Load(job)
	if ok {
		return value.(*maintenanceStats)
	}
	stats := &maintenanceStats{}
	actual, _ := s.maintenance.LoadOrStore(job, stats)
	return actual.(*maintenanceStats)
}

type maintenanceStats struct {
	lastStatus           atomic.Value // string
	lastError            atomic.Value // string
	lastRun              atomic.Int64 // unix nano
	lastDuration         atomic.Int64 // nanoseconds
	consecutiveFailures  atomic.Uint64
	totalRuns            atomic.Uint64
	lastSuccessfulRun    atomic.Int64
	consecutiveSuccesses atomic.Uint64
}

func (m *maintenanceStats) snapshot(job string) MaintenanceJobSummary {
	status, _ := m.lastStatus.Load().(string)
	errMsg, _ := m.lastError.Load().(string)
	lastRun := time.Unix(0, m.lastRun.Load())
	lastSuccess := time.Unix(0, m.lastSuccessfulRun.Load())

	return MaintenanceJobSummary{
		Job:                 job,
		LastStatus:          status,
		LastRunAt:           lastRun,
		LastDuration:        time.Duration(m.lastDuration.Load()),
		LastError:           errMsg,
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		ConsecutiveSuccess:  m.consecutiveSuccesses.Load(),
		LastSuccessAt:       lastSuccess,
		TotalRuns:           m.totalRuns.Load(),
	}
}

func (m *maintenanceStats) record(result, message string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	now := time.Now()
	m.lastStatus.Store(result)
	m.lastError.Store(message)
	m.lastRun.Store(now.UnixNano())
	m.lastDuration.Store(int64(duration))
	m.totalRuns.Add(1)

	switch result {
	case "success":
		m.consecutiveFailures.Store(0)
		m.consecutiveSuccesses.Add(1)
		m.lastSuccessfulRun.Store(now.UnixNano())
	default:
		m.consecutiveFailures.Add(1)
		m.consecutiveSuccesses.Store(0)
	}
}
