package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/codeshare/internal/monitoring"
	"github.com/charlesng35/codeshare/pkg/logger"
)

const (
	defaultJournalRetentionDays = 30
	defaultJournalSpec          = "@daily"

	// JobJournalRetention is the job name reported to monitoring.
	JobJournalRetention = "journal_retention"
)

// JournalPruner deletes journal events recorded before cutoff.
type JournalPruner interface {
	CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner coordinates background maintenance tasks such as pruning stale
// session journal entries.
type Cleaner struct {
	journal   JournalPruner
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	journalSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithRetentionDays adjusts how long journal events are retained. Zero keeps
// them forever.
func WithRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days >= 0 {
			cleaner.retention = days
		}
	}
}

// WithJournalSchedule overrides the cron specification for journal retention.
func WithJournalSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.journalSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil journal disables the retention job.
func NewCleaner(journal JournalPruner, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		journal:         journal,
		now:             time.Now,
		retention:       defaultJournalRetentionDays,
		journalSchedule: defaultJournalSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) enabled() bool {
	return c.journal != nil && c.retention > 0
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled() {
		return nil
	}

	if _, err := c.cron.AddFunc(c.journalSchedule, func() {
		if _, err := c.pruneJournal(context.Background()); err != nil {
			c.log.Warn("journal retention failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Used in
// tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.enabled() {
		if _, err := c.pruneJournal(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (c *Cleaner) pruneJournal(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := c.now().AddDate(0, 0, -c.retention)

	removed, err := c.journal.CleanupOlderThan(ctx, cutoff)
	if err != nil {
		monitoring.RecordMaintenanceRun(JobJournalRetention, "failure", err.Error(), time.Since(start))
		return removed, err
	}

	monitoring.RecordMaintenanceRun(JobJournalRetention, "success", "", time.Since(start))
	if removed > 0 {
		c.log.Info("pruned journal events", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}
