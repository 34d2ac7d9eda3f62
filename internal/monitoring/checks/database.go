package checks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/codeshare/internal/monitoring"
)

// Database returns a readiness probe that pings the journal database. A
// disabled journal reports up; an enabled journal without a handle is down.
func Database(db *gorm.DB, enabled bool, timeout time.Duration) monitoring.Check {
	probe := pingProbe{name: "database", disabled: "journal disabled", missing: monitoring.StatusDown}
	if db != nil {
		probe.ping = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	return probe.check(enabled, timeout)
}
