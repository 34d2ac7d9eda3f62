package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	testutil "github.com/charlesng35/codeshare/internal/database/testutil"
	"github.com/charlesng35/codeshare/internal/journal"
	"github.com/charlesng35/codeshare/internal/models"
	"github.com/charlesng35/codeshare/internal/monitoring"
)

type fixedClock struct {
	current time.Time
}

func (f fixedClock) Now() time.Time {
	return f.current
}

type failingPruner struct{}

func (failingPruner) CleanupOlderThan(context.Context, time.Time) (int64, error) {
	return 0, errors.New("database is locked")
}

func setupMonitoring(t *testing.T) {
	t.Helper()
	module, err := monitoring.NewModule(monitoring.Options{})
	require.NoError(t, err)
	monitoring.SetModule(module)
}

func TestCleanerRunOncePrunesJournal(t *testing.T) {
	setupMonitoring(t)
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	recorder, err := journal.NewDatabaseRecorder(db)
	require.NoError(t, err)

	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	ctx := context.Background()
	require.NoError(t, recorder.Record(ctx, journal.Event{Kind: journal.KindJoin, ClientID: "old", OccurredAt: clock.Now().AddDate(0, 0, -10)}))
	require.NoError(t, recorder.Record(ctx, journal.Event{Kind: journal.KindJoin, ClientID: "new", OccurredAt: clock.Now().Add(-time.Hour)}))

	cleaner := NewCleaner(recorder, WithNow(clock.Now), WithRetentionDays(7))
	require.NoError(t, cleaner.RunOnce(ctx))

	var remaining []models.SessionEvent
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, "new", remaining[0].ClientID)

	jobs := monitoring.Snapshot().Maintenance.Jobs
	require.Len(t, jobs, 1)
	require.Equal(t, JobJournalRetention, jobs[0].Job)
	require.EqualValues(t, 1, jobs[0].TotalRuns)
}

func TestCleanerRunOnceReportsFailures(t *testing.T) {
	setupMonitoring(t)

	cleaner := NewCleaner(failingPruner{})
	err := cleaner.RunOnce(context.Background())
	require.ErrorContains(t, err, "database is locked")

	jobs := monitoring.Snapshot().Maintenance.Jobs
	require.Len(t, jobs, 1)
	require.EqualValues(t, 1, jobs[0].ConsecutiveFailures)
}

func TestCleanerDisabledWithoutJournalOrRetention(t *testing.T) {
	require.NoError(t, NewCleaner(nil).RunOnce(context.Background()))
	require.NoError(t, NewCleaner(failingPruner{}, WithRetentionDays(0)).RunOnce(context.Background()))

	scheduler := cron.New()
	require.NoError(t, NewCleaner(nil, WithCron(scheduler)).Start())
	require.Empty(t, scheduler.Entries())
}

func TestCleanerStartRegistersJob(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	cleaner := NewCleaner(failingPruner{}, WithCron(scheduler), WithJournalSchedule("@every 1h"))

	require.NoError(t, cleaner.Start())
	require.Len(t, scheduler.Entries(), 1)
	<-cleaner.Stop().Done()
}

func TestCleanerStartRejectsInvalidSchedule(t *testing.T) {
	cleaner := NewCleaner(failingPruner{}, WithJournalSchedule("every now and then"))
	require.Error(t, cleaner.Start())
}
