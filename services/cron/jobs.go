package cron

import (
	"log"
	"time"

	"github.com/edumesh/edumesh-api/model"
)

// orphanThreshold is how long a running operation may go without an update
// before the sweeper assumes its executor died (e.g. a crash between
// stages) and marks it failed.
const orphanThreshold = time.Hour

// PurgeExpiredOperations deletes terminal operation rows older than the
// retention window. Snapshots in the progress store expire separately.
func (m *CronManager) PurgeExpiredOperations() {
	cutoff := time.Now().Add(-m.retention)

	res := m.db.
		Where("status IN ?", []model.DeleteOperationStatus{
			model.DeleteOperationStatusCompleted,
			model.DeleteOperationStatusFailed,
		}).
		Where("updated_at < ?", cutoff).
		Delete(&model.DeleteOperation{})
	if res.Error != nil {
		log.Printf("Cron: failed to purge expired operations: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("Cron: purged %d expired delete operations", res.RowsAffected)
	}
}

// FailOrphanedOperations marks stale running/pending operations as failed.
// An executor updates its operation after every stage, so a long silence
// means the process died with the operation still open.
func (m *CronManager) FailOrphanedOperations() {
	cutoff := time.Now().Add(-orphanThreshold)
	now := time.Now()

	res := m.db.Model(&model.DeleteOperation{}).
		Where("status IN ?", []model.DeleteOperationStatus{
			model.DeleteOperationStatusPending,
			model.DeleteOperationStatusRunning,
		}).
		Where("updated_at < ?", cutoff).
		Updates(map[string]interface{}{
			"status":        model.DeleteOperationStatusFailed,
			"failed_at":     now,
			"error_message": "operation abandoned: no progress recorded for over an hour",
		})
	if res.Error != nil {
		log.Printf("Cron: failed to sweep orphaned operations: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("Cron: marked %d orphaned delete operations as failed", res.RowsAffected)
	}
}

// PurgeExpiredBlacklistTokens drops blacklist entries whose tokens have
// expired anyway.
func (m *CronManager) PurgeExpiredBlacklistTokens() {
	res := m.db.
		Where("expires_at < ?", time.Now()).
		Delete(&model.JWTTokenBlacklist{})
	if res.Error != nil {
		log.Printf("Cron: failed to purge expired blacklist tokens: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("Cron: purged %d expired blacklist tokens", res.RowsAffected)
	}
}
