package cron

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Sweeper is implemented by progress stores that need periodic cleanup
// (the in-memory store; Redis expires keys on its own).
type Sweeper interface {
	Sweep() int
}

// CronManager manages all scheduled maintenance jobs
type CronManager struct {
	cron      *cron.Cron
	db        *gorm.DB
	retention time.Duration
	sweeper   Sweeper // may be nil
}

// NewCronManager creates a new cron manager. retention bounds how long
// terminal delete-operation rows are kept; sweeper may be nil.
func NewCronManager(db *gorm.DB, retention time.Duration, sweeper Sweeper) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron:      c,
		db:        db,
		retention: retention,
		sweeper:   sweeper,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// 1. Hourly: purge delete-operation rows past the retention window
	_, err := m.cron.AddFunc("0 0 * * * *", func() {
		m.logJobStart("purge_expired_operations")
		m.PurgeExpiredOperations()
	})
	if err != nil {
		return err
	}

	// 2. Every 15 minutes: fail operations whose executor died mid-flight
	_, err = m.cron.AddFunc("0 */15 * * * *", func() {
		m.logJobStart("fail_orphaned_operations")
		m.FailOrphanedOperations()
	})
	if err != nil {
		return err
	}

	// 3. Every 10 minutes: sweep expired progress snapshots
	if m.sweeper != nil {
		_, err = m.cron.AddFunc("0 */10 * * * *", func() {
			m.logJobStart("sweep_progress_snapshots")
			if removed := m.sweeper.Sweep(); removed > 0 {
				log.Printf("Cron: swept %d expired progress snapshots", removed)
			}
		})
		if err != nil {
			return err
		}
	}

	// 4. Daily at 03:00: clear expired token blacklist entries
	_, err = m.cron.AddFunc("0 0 3 * * *", func() {
		m.logJobStart("purge_expired_blacklist_tokens")
		m.PurgeExpiredBlacklistTokens()
	})
	return err
}

func (m *CronManager) logJobStart(name string) {
	log.Printf("Cron: running job %q", name)
}
