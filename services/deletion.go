package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/edumesh/edumesh-api/model"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxReasonLength bounds the free-text reason on a delete request,
// counted in characters rather than bytes.
const MaxReasonLength = 500

// perStageEstimate feeds the estimated_completion hint returned when an
// operation is scheduled. It is a hint, nothing schedules against it.
const perStageEstimate = 500 * time.Millisecond

// DeleteRequest is the caller's deletion intent. The wire field for Mode is
// "type" to match the established client contract.
type DeleteRequest struct {
	Mode         model.DeleteMode `json:"type" validate:"required,oneof=soft hard"`
	Confirmation bool             `json:"confirmation"`
	Reason       string           `json:"reason" validate:"omitempty,max=500"`
	Force        bool             `json:"force"`
}

// ValidateDeleteRequest applies the safety policy to a request given the
// computed impact. Every rule is evaluated; the caller gets the complete
// list of violations, never just the first.
func ValidateDeleteRequest(req DeleteRequest, impact *DeleteImpactReport) []string {
	var errs []string

	if !req.Confirmation {
		errs = append(errs, "deletion must be explicitly confirmed")
	}
	if req.Mode == model.DeleteModeSoft && impact.UsersCount > 0 {
		errs = append(errs, fmt.Sprintf("institution has %d active accounts; move them or use hard delete", impact.UsersCount))
	}
	if req.Mode == model.DeleteModeHard && impact.TotalChildrenCount > 0 && !req.Force {
		errs = append(errs, "recursive deletion must be acknowledged with force")
	}
	if req.Mode == model.DeleteModeHard && !req.Force && strings.TrimSpace(req.Reason) == "" {
		errs = append(errs, "a reason is required for hard delete")
	}
	if utf8.RuneCountInString(req.Reason) > MaxReasonLength {
		errs = append(errs, fmt.Sprintf("reason must be at most %d characters", MaxReasonLength))
	}

	return errs
}

// impactComputer is the slice of ImpactService the tracker needs.
type impactComputer interface {
	ComputeImpact(ctx context.Context, institutionID uint, scope Scope) (*DeleteImpactReport, error)
}

// cascadeRunner executes the staged cascade, reporting through the handle.
// It must drive the handle to a terminal state before returning.
type cascadeRunner interface {
	Run(h *operationHandle)
}

// operationLog persists DeleteOperation rows, the durable operation
// history behind the volatile progress snapshots.
type operationLog interface {
	Create(ctx context.Context, snap *OperationSnapshot, requestedBy uint) error
	Update(ctx context.Context, snap *OperationSnapshot) error
	Find(ctx context.Context, operationID string) (*OperationSnapshot, error)
}

// StartResult is what the delete endpoint returns. Either the fast path
// completed synchronously, or the operation was scheduled and the caller
// should poll.
type StartResult struct {
	Completed           bool
	Message             string
	OperationID         string
	EstimatedCompletion time.Time
}

// DeletionService gates, schedules and tracks delete operations. At most
// one operation per institution is in flight at any time.
type DeletionService struct {
	impact impactComputer
	runner cascadeRunner
	store  ProgressStore
	oplog  operationLog

	mu       sync.Mutex
	inflight map[uint]string // institution id -> running operation id
}

// NewDeletionService wires the analyzer, executor and stores together.
func NewDeletionService(db *gorm.DB, store ProgressStore) *DeletionService {
	impact := NewImpactService(db)
	return &DeletionService{
		impact:   impact,
		runner:   NewCascadeExecutor(db, impact),
		store:    store,
		oplog:    &gormOperationLog{db: db},
		inflight: make(map[uint]string),
	}
}

// Start validates the request and either completes it inline (zero-impact
// fast path) or schedules the cascade on its own goroutine and returns the
// operation id immediately. The caller is never blocked on the cascade.
//
// A failed cascade is not resumable; invoking Start again computes a fresh
// impact report over whatever partial state remains and validates against
// that, which may behave differently from the original attempt.
func (s *DeletionService) Start(ctx context.Context, institutionID uint, req DeleteRequest, scope Scope, requestedBy uint) (*StartResult, error) {
	impact, err := s.impact.ComputeImpact(ctx, institutionID, scope)
	if err != nil {
		return nil, err
	}

	if errs := ValidateDeleteRequest(req, impact); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	s.mu.Lock()
	if existing, ok := s.inflight[institutionID]; ok {
		s.mu.Unlock()
		return nil, &ConflictError{OperationID: existing}
	}
	operationID := uuid.New().String()
	s.inflight[institutionID] = operationID
	s.mu.Unlock()

	now := time.Now()
	snap := &OperationSnapshot{
		OperationID:   operationID,
		InstitutionID: institutionID,
		Mode:          req.Mode,
		Status:        model.DeleteOperationStatusPending,
		StartedAt:     &now,
	}

	h := &operationHandle{
		snap:    snap,
		req:     req,
		scope:   scope,
		store:   s.store,
		oplog:   s.oplog,
		release: s.releaseFunc(institutionID),
	}

	if err := s.oplog.Create(ctx, snap, requestedBy); err != nil {
		h.release()
		return nil, err
	}
	if err := s.store.Put(ctx, snap); err != nil {
		log.Printf("Warning: failed to publish initial snapshot for operation %s: %v", operationID, err)
	}

	if impact.IsEmpty() {
		// Nothing depends on this node; finish inline and hand the caller a
		// final result instead of an operation to poll. Same contract, one
		// round trip fewer.
		s.runner.Run(h)
		final := h.snapshot()
		if final.Status == model.DeleteOperationStatusFailed {
			return nil, fmt.Errorf("deletion failed: %s", final.Error)
		}
		return &StartResult{
			Completed:   true,
			Message:     final.Message,
			OperationID: operationID,
		}, nil
	}

	go s.runner.Run(h)

	// 2 fixed stages plus roughly one per node.
	stages := 3 + impact.TotalChildrenCount
	return &StartResult{
		OperationID:         operationID,
		EstimatedCompletion: time.Now().Add(time.Duration(stages) * perStageEstimate),
	}, nil
}

// Status returns the latest committed snapshot for the operation. Pure
// read; safe to call concurrently with the executor's writes. Falls back
// to the persisted row when the volatile snapshot has expired.
func (s *DeletionService) Status(ctx context.Context, operationID string) (*OperationSnapshot, error) {
	snap, err := s.store.Get(ctx, operationID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrOperationNotFound) {
		return nil, err
	}
	return s.oplog.Find(ctx, operationID)
}

func (s *DeletionService) releaseFunc(institutionID uint) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.inflight, institutionID)
			s.mu.Unlock()
		})
	}
}

// metadataFromImpact freezes the report counts into operation metadata.
func metadataFromImpact(r *DeleteImpactReport) *OperationMetadata {
	return &OperationMetadata{
		ChildrenCount:        r.DirectChildrenCount,
		TotalChildrenCount:   r.TotalChildrenCount,
		UsersCount:           r.TotalUsersCount,
		StudentsCount:        r.TotalStudentsCount,
		DepartmentsCount:     r.DepartmentsCount,
		RoomsCount:           r.RoomsCount,
		GradesCount:          r.GradesCount,
		SurveyResponsesCount: r.SurveyResponsesCount,
		StatisticsCount:      r.StatisticsCount,
		IndicatorValuesCount: r.IndicatorValuesCount,
		AuditLogsCount:       r.AuditLogsCount,
	}
}

// operationHandle is the executor's write port onto one operation. It has
// exactly one writer (the executor goroutine); every mutation is persisted
// to the progress store and the operation log before the next stage runs.
type operationHandle struct {
	snap    *OperationSnapshot
	req     DeleteRequest
	scope   Scope
	store   ProgressStore
	oplog   operationLog
	release func()
}

// snapshot returns a copy safe to hand outside the executor.
func (h *operationHandle) snapshot() *OperationSnapshot {
	return h.snap.Clone()
}

func (h *operationHandle) persist() {
	ctx := context.Background()
	if err := h.store.Put(ctx, h.snap); err != nil {
		log.Printf("Warning: failed to publish snapshot for operation %s: %v", h.snap.OperationID, err)
	}
	if err := h.oplog.Update(ctx, h.snap); err != nil {
		log.Printf("Warning: failed to persist operation %s: %v", h.snap.OperationID, err)
	}
}

// begin moves the operation to running with a fixed stage plan.
func (h *operationHandle) begin(totalStages int) {
	h.snap.Status = model.DeleteOperationStatusRunning
	h.snap.TotalStages = totalStages
	h.persist()
}

// stage records the label of the stage about to run.
func (h *operationHandle) stage(label string) {
	h.snap.CurrentStage = label
	h.persist()
}

// stageDone commits one stage. Progress is recomputed from the fixed plan,
// so it never decreases while the operation is live.
func (h *operationHandle) stageDone() {
	h.snap.StagesCompleted++
	if h.snap.TotalStages > 0 {
		h.snap.Progress = int(math.Round(float64(h.snap.StagesCompleted) / float64(h.snap.TotalStages) * 100))
	}
	h.persist()
}

// warn records a non-fatal anomaly without aborting the pipeline.
func (h *operationHandle) warn(msg string) {
	h.snap.Warnings = append(h.snap.Warnings, msg)
	h.persist()
}

// setMetadata freezes the impact counts onto the operation.
func (h *operationHandle) setMetadata(meta *OperationMetadata) {
	h.snap.Metadata = meta
	h.persist()
}

// complete marks the terminal success state. The snapshot is immutable
// from here on.
func (h *operationHandle) complete(message string) {
	now := time.Now()
	h.snap.Status = model.DeleteOperationStatusCompleted
	h.snap.Progress = 100
	h.snap.CompletedAt = &now
	h.snap.Message = message
	h.persist()
	h.release()
}

// fail marks the terminal failure state. The error is observable only via
// polling; the original caller already moved on.
func (h *operationHandle) fail(err error) {
	now := time.Now()
	h.snap.Status = model.DeleteOperationStatusFailed
	h.snap.FailedAt = &now
	h.snap.Error = err.Error()
	h.persist()
	h.release()
}

// gormOperationLog persists operations through GORM.
type gormOperationLog struct {
	db *gorm.DB
}

func (l *gormOperationLog) Create(ctx context.Context, snap *OperationSnapshot, requestedBy uint) error {
	row := model.DeleteOperation{
		OperationID:       snap.OperationID,
		InstitutionID:     snap.InstitutionID,
		Mode:              snap.Mode,
		Status:            snap.Status,
		StartedAt:         snap.StartedAt,
		RequestedByUserID: requestedBy,
	}
	return l.db.WithContext(ctx).Create(&row).Error
}

func (l *gormOperationLog) Update(ctx context.Context, snap *OperationSnapshot) error {
	updates := map[string]interface{}{
		"status":           snap.Status,
		"progress":         snap.Progress,
		"current_stage":    snap.CurrentStage,
		"stages_completed": snap.StagesCompleted,
		"total_stages":     snap.TotalStages,
		"completed_at":     snap.CompletedAt,
		"failed_at":        snap.FailedAt,
		"message":          snap.Message,
		"error_message":    snap.Error,
	}
	if len(snap.Warnings) > 0 {
		if raw, err := json.Marshal(snap.Warnings); err == nil {
			updates["warnings"] = datatypes.JSON(raw)
		}
	}
	if snap.Metadata != nil {
		if raw, err := json.Marshal(snap.Metadata); err == nil {
			updates["metadata"] = datatypes.JSON(raw)
		}
	}
	return l.db.WithContext(ctx).
		Model(&model.DeleteOperation{}).
		Where("operation_id = ?", snap.OperationID).
		Updates(updates).Error
}

func (l *gormOperationLog) Find(ctx context.Context, operationID string) (*OperationSnapshot, error) {
	var row model.DeleteOperation
	if err := l.db.WithContext(ctx).Where("operation_id = ?", operationID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOperationNotFound
		}
		return nil, err
	}

	snap := &OperationSnapshot{
		OperationID:     row.OperationID,
		InstitutionID:   row.InstitutionID,
		Mode:            row.Mode,
		Status:          row.Status,
		Progress:        row.Progress,
		CurrentStage:    row.CurrentStage,
		StagesCompleted: row.StagesCompleted,
		TotalStages:     row.TotalStages,
		StartedAt:       row.StartedAt,
		CompletedAt:     row.CompletedAt,
		FailedAt:        row.FailedAt,
		Message:         row.Message,
		Error:           row.ErrorMessage,
	}
	if len(row.Warnings) > 0 {
		_ = json.Unmarshal(row.Warnings, &snap.Warnings)
	}
	if len(row.Metadata) > 0 {
		var meta OperationMetadata
		if err := json.Unmarshal(row.Metadata, &meta); err == nil {
			snap.Metadata = &meta
		}
	}
	return snap, nil
}
