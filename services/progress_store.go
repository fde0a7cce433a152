package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/edumesh/edumesh-api/model"
	"github.com/edumesh/edumesh-api/utils/cache"
)

// OperationMetadata is the frozen copy of the impact report attached to an
// operation when it is scheduled.
type OperationMetadata struct {
	ChildrenCount        int   `json:"children_count"`
	TotalChildrenCount   int   `json:"total_children_count"`
	UsersCount           int64 `json:"users_count"`
	StudentsCount        int64 `json:"students_count"`
	DepartmentsCount     int64 `json:"departments_count"`
	RoomsCount           int64 `json:"rooms_count"`
	GradesCount          int64 `json:"grades_count"`
	SurveyResponsesCount int64 `json:"survey_responses_count"`
	StatisticsCount      int64 `json:"statistics_count"`
	IndicatorValuesCount int64 `json:"indicator_values_count"`
	AuditLogsCount       int64 `json:"audit_logs_count"`
}

// OperationSnapshot is the poller-visible state of a delete operation. The
// executor is the only writer; readers always receive a complete copy,
// never a partially-written one.
type OperationSnapshot struct {
	OperationID     string                      `json:"operation_id"`
	InstitutionID   uint                        `json:"institution_id"`
	Mode            model.DeleteMode            `json:"mode"`
	Status          model.DeleteOperationStatus `json:"status"`
	Progress        int                         `json:"progress"`
	CurrentStage    string                      `json:"current_stage,omitempty"`
	StagesCompleted int                         `json:"stages_completed"`
	TotalStages     int                         `json:"total_stages"`
	StartedAt       *time.Time                  `json:"started_at,omitempty"`
	CompletedAt     *time.Time                  `json:"completed_at,omitempty"`
	FailedAt        *time.Time                  `json:"failed_at,omitempty"`
	Warnings        []string                    `json:"warnings,omitempty"`
	Error           string                      `json:"error,omitempty"`
	Message         string                      `json:"message,omitempty"`
	Metadata        *OperationMetadata          `json:"metadata,omitempty"`
}

// IsTerminal reports whether the snapshot reached a final state.
func (s *OperationSnapshot) IsTerminal() bool {
	return s.Status == model.DeleteOperationStatusCompleted || s.Status == model.DeleteOperationStatusFailed
}

// Clone returns a deep copy so readers and the writer never share memory.
func (s *OperationSnapshot) Clone() *OperationSnapshot {
	out := *s
	if s.Warnings != nil {
		out.Warnings = append([]string(nil), s.Warnings...)
	}
	if s.Metadata != nil {
		meta := *s.Metadata
		out.Metadata = &meta
	}
	out.StartedAt = cloneTime(s.StartedAt)
	out.CompletedAt = cloneTime(s.CompletedAt)
	out.FailedAt = cloneTime(s.FailedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ProgressStore holds poller-visible snapshots for the lifetime of an
// operation plus a bounded window after it turns terminal.
type ProgressStore interface {
	Put(ctx context.Context, snap *OperationSnapshot) error
	Get(ctx context.Context, operationID string) (*OperationSnapshot, error)
}

// MemoryProgressStore is the in-process store used when Redis is not
// configured. Snapshots are copied on the way in and out, so any number of
// readers can poll while the executor writes.
type MemoryProgressStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

type memoryEntry struct {
	snap      *OperationSnapshot
	expiresAt time.Time
}

// NewMemoryProgressStore creates an in-memory store whose entries expire
// ttl after their last write.
func NewMemoryProgressStore(ttl time.Duration) *MemoryProgressStore {
	return &MemoryProgressStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

func (m *MemoryProgressStore) Put(_ context.Context, snap *OperationSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[snap.OperationID] = memoryEntry{
		snap:      snap.Clone(),
		expiresAt: time.Now().Add(m.ttl),
	}
	return nil
}

func (m *MemoryProgressStore) Get(_ context.Context, operationID string) (*OperationSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[operationID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrOperationNotFound
	}
	return entry.snap.Clone(), nil
}

// Sweep drops expired entries. Called periodically by the cron manager.
func (m *MemoryProgressStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// RedisProgressStore stores snapshots as JSON with a TTL. Redis handles
// expiry on its own, so there is nothing to sweep.
type RedisProgressStore struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

const operationKeyPrefix = "delete_operation:"

// NewRedisProgressStore creates a Redis-backed progress store.
func NewRedisProgressStore(c *cache.RedisCache, ttl time.Duration) *RedisProgressStore {
	return &RedisProgressStore{cache: c, ttl: ttl}
}

func (r *RedisProgressStore) Put(ctx context.Context, snap *OperationSnapshot) error {
	return r.cache.SetJSON(ctx, operationKeyPrefix+snap.OperationID, snap, r.ttl)
}

func (r *RedisProgressStore) Get(ctx context.Context, operationID string) (*OperationSnapshot, error) {
	var snap OperationSnapshot
	err := r.cache.GetJSON(ctx, operationKeyPrefix+operationID, &snap)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
