package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edumesh/edumesh-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDeleteRequestCollectsEveryViolation(t *testing.T) {
	tests := []struct {
		name   string
		req    DeleteRequest
		impact DeleteImpactReport
		want   []string
	}{
		{
			name:   "valid soft delete of an empty node",
			req:    DeleteRequest{Mode: model.DeleteModeSoft, Confirmation: true},
			impact: DeleteImpactReport{},
			want:   nil,
		},
		{
			name:   "missing confirmation",
			req:    DeleteRequest{Mode: model.DeleteModeSoft},
			impact: DeleteImpactReport{},
			want:   []string{"deletion must be explicitly confirmed"},
		},
		{
			name:   "soft delete blocked by active accounts",
			req:    DeleteRequest{Mode: model.DeleteModeSoft, Confirmation: true},
			impact: DeleteImpactReport{UsersCount: 4},
			want:   []string{"institution has 4 active accounts; move them or use hard delete"},
		},
		{
			name:   "hard delete of a subtree needs force and a reason",
			req:    DeleteRequest{Mode: model.DeleteModeHard, Confirmation: true},
			impact: DeleteImpactReport{TotalChildrenCount: 3},
			want: []string{
				"recursive deletion must be acknowledged with force",
				"a reason is required for hard delete",
			},
		},
		{
			name:   "forced hard delete needs no reason",
			req:    DeleteRequest{Mode: model.DeleteModeHard, Confirmation: true, Force: true},
			impact: DeleteImpactReport{TotalChildrenCount: 3},
			want:   nil,
		},
		{
			name:   "whitespace reason does not count",
			req:    DeleteRequest{Mode: model.DeleteModeHard, Confirmation: true, Reason: "   "},
			impact: DeleteImpactReport{},
			want:   []string{"a reason is required for hard delete"},
		},
		{
			name:   "overlong reason",
			req:    DeleteRequest{Mode: model.DeleteModeHard, Confirmation: true, Reason: strings.Repeat("x", MaxReasonLength+1)},
			impact: DeleteImpactReport{},
			want:   []string{"reason must be at most 500 characters"},
		},
		{
			// 500 two-byte runes exceed 500 bytes but not 500 characters.
			name:   "multibyte reason is counted in characters",
			req:    DeleteRequest{Mode: model.DeleteModeHard, Confirmation: true, Reason: strings.Repeat("ə", MaxReasonLength)},
			impact: DeleteImpactReport{},
			want:   nil,
		},
		{
			name:   "multibyte reason one character over",
			req:    DeleteRequest{Mode: model.DeleteModeHard, Confirmation: true, Reason: strings.Repeat("ə", MaxReasonLength+1)},
			impact: DeleteImpactReport{},
			want:   []string{"reason must be at most 500 characters"},
		},
		{
			name:   "violations accumulate instead of short-circuiting",
			req:    DeleteRequest{Mode: model.DeleteModeSoft},
			impact: DeleteImpactReport{UsersCount: 2},
			want: []string{
				"deletion must be explicitly confirmed",
				"institution has 2 active accounts; move them or use hard delete",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateDeleteRequest(tt.req, &tt.impact)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeImpact returns a canned report per institution id.
type fakeImpact struct {
	reports map[uint]*DeleteImpactReport
}

func (f *fakeImpact) ComputeImpact(_ context.Context, id uint, _ Scope) (*DeleteImpactReport, error) {
	r, ok := f.reports[id]
	if !ok {
		return nil, ErrInstitutionNotFound
	}
	return r, nil
}

// fakeRunner drives the handle through a scripted outcome. When block is
// set it waits until released, which lets tests hold an operation open.
type fakeRunner struct {
	mu    sync.Mutex
	runs  int
	fail  error
	block chan struct{}
}

func (f *fakeRunner) Run(h *operationHandle) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}

	h.begin(3)
	h.stage("re-validating request")
	h.stageDone()
	if f.fail != nil {
		h.fail(f.fail)
		return
	}
	h.stage("snapshotting impact")
	h.stageDone()
	h.stage("archiving institution")
	h.stageDone()
	h.complete("done")
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

// fakeOplog is an in-memory stand-in for the persisted operation rows.
type fakeOplog struct {
	mu   sync.Mutex
	rows map[string]*OperationSnapshot
}

func newFakeOplog() *fakeOplog {
	return &fakeOplog{rows: make(map[string]*OperationSnapshot)}
}

func (f *fakeOplog) Create(_ context.Context, snap *OperationSnapshot, _ uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[snap.OperationID] = snap.Clone()
	return nil
}

func (f *fakeOplog) Update(_ context.Context, snap *OperationSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[snap.OperationID] = snap.Clone()
	return nil
}

func (f *fakeOplog) Find(_ context.Context, operationID string) (*OperationSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[operationID]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return row.Clone(), nil
}

func newTestService(impact *fakeImpact, runner *fakeRunner) (*DeletionService, *MemoryProgressStore, *fakeOplog) {
	store := NewMemoryProgressStore(time.Hour)
	oplog := newFakeOplog()
	svc := &DeletionService{
		impact:   impact,
		runner:   runner,
		store:    store,
		oplog:    oplog,
		inflight: make(map[uint]string),
	}
	return svc, store, oplog
}

func validSoftRequest() DeleteRequest {
	return DeleteRequest{Mode: model.DeleteModeSoft, Confirmation: true}
}

func TestStartFastPathCompletesSynchronously(t *testing.T) {
	impact := &fakeImpact{reports: map[uint]*DeleteImpactReport{10: {}}}
	runner := &fakeRunner{}
	svc, store, _ := newTestService(impact, runner)

	res, err := svc.Start(context.Background(), 10, validSoftRequest(), nil, 1)
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, "done", res.Message)
	assert.NotEmpty(t, res.OperationID)
	assert.Equal(t, 1, runner.runCount())

	snap, err := store.Get(context.Background(), res.OperationID)
	require.NoError(t, err)
	assert.Equal(t, model.DeleteOperationStatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
}

func TestStartFastPathSurfacesFailureToCaller(t *testing.T) {
	impact := &fakeImpact{reports: map[uint]*DeleteImpactReport{10: {}}}
	runner := &fakeRunner{fail: errors.New("disk on fire")}
	svc, _, _ := newTestService(impact, runner)

	_, err := svc.Start(context.Background(), 10, validSoftRequest(), nil, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")

	// The failure released the institution; a retry must not conflict.
	_, err = svc.Start(context.Background(), 10, validSoftRequest(), nil, 1)
	var conflict *ConflictError
	assert.False(t, errors.As(err, &conflict))
}

func TestStartSchedulesAsyncWhenImpactIsNotEmpty(t *testing.T) {
	impact := &fakeImpact{reports: map[uint]*DeleteImpactReport{
		10: {TotalChildrenCount: 3},
	}}
	runner := &fakeRunner{}
	svc, _, _ := newTestService(impact, runner)

	req := DeleteRequest{Mode: model.DeleteModeHard, Confirmation: true, Force: true}
	before := time.Now()
	res, err := svc.Start(context.Background(), 10, req, nil, 1)
	require.NoError(t, err)

	assert.False(t, res.Completed)
	assert.NotEmpty(t, res.OperationID)
	assert.True(t, res.EstimatedCompletion.After(before))

	// The cascade finishes on its own goroutine; poll until terminal.
	require.Eventually(t, func() bool {
		snap, err := svc.Status(context.Background(), res.OperationID)
		return err == nil && snap.IsTerminal()
	}, time.Second, 5*time.Millisecond)
}

func TestStartRejectsSecondOperationForSameInstitution(t *testing.T) {
	impact := &fakeImpact{reports: map[uint]*DeleteImpactReport{
		10: {TotalChildrenCount: 1},
	}}
	runner := &fakeRunner{block: make(chan struct{})}
	svc, _, _ := newTestService(impact, runner)

	req := DeleteRequest{Mode: model.DeleteModeHard, Confirmation: true, Force: true}
	first, err := svc.Start(context.Background(), 10, req, nil, 1)
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), 10, req, nil, 1)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.OperationID, conflict.OperationID,
		"conflict carries the id of the operation already in flight")

	close(runner.block)

	require.Eventually(t, func() bool {
		snap, err := svc.Status(context.Background(), first.OperationID)
		return err == nil && snap.IsTerminal()
	}, time.Second, 5*time.Millisecond)

	// Terminal operation releases the slot.
	require.Eventually(t, func() bool {
		_, err := svc.Start(context.Background(), 10, req, nil, 1)
		return !errors.As(err, &conflict)
	}, time.Second, 5*time.Millisecond)
}

func TestStartReturnsValidationErrorsAsOne(t *testing.T) {
	impact := &fakeImpact{reports: map[uint]*DeleteImpactReport{
		10: {UsersCount: 2},
	}}
	runner := &fakeRunner{}
	svc, _, _ := newTestService(impact, runner)

	_, err := svc.Start(context.Background(), 10, DeleteRequest{Mode: model.DeleteModeSoft}, nil, 1)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Len(t, valErr.Errors, 2)
	assert.Equal(t, 0, runner.runCount(), "nothing runs on a rejected request")
}

func TestStartPropagatesNotFound(t *testing.T) {
	impact := &fakeImpact{reports: map[uint]*DeleteImpactReport{}}
	svc, _, _ := newTestService(impact, &fakeRunner{})

	_, err := svc.Start(context.Background(), 99, validSoftRequest(), nil, 1)
	assert.ErrorIs(t, err, ErrInstitutionNotFound)
}

func TestStatusFallsBackToOperationLog(t *testing.T) {
	svc, _, oplog := newTestService(&fakeImpact{}, &fakeRunner{})

	// Snapshot already expired from the volatile store; the persisted row
	// still answers.
	persisted := &OperationSnapshot{
		OperationID: "op-1",
		Status:      model.DeleteOperationStatusCompleted,
		Progress:    100,
	}
	require.NoError(t, oplog.Update(context.Background(), persisted))

	snap, err := svc.Status(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, model.DeleteOperationStatusCompleted, snap.Status)

	_, err = svc.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestOperationHandleProgressIsMonotonic(t *testing.T) {
	store := NewMemoryProgressStore(time.Hour)
	released := false
	h := &operationHandle{
		snap:    &OperationSnapshot{OperationID: "op-2", Status: model.DeleteOperationStatusPending},
		store:   store,
		oplog:   newFakeOplog(),
		release: func() { released = true },
	}

	h.begin(4)
	last := h.snap.Progress
	for i := 0; i < 4; i++ {
		h.stage("working")
		h.stageDone()
		assert.GreaterOrEqual(t, h.snap.Progress, last)
		last = h.snap.Progress
	}
	assert.Equal(t, 100, h.snap.Progress)

	h.complete("done")
	assert.True(t, released)
	assert.True(t, h.snap.IsTerminal())

	snap, err := store.Get(context.Background(), "op-2")
	require.NoError(t, err)
	assert.Equal(t, model.DeleteOperationStatusCompleted, snap.Status)
}

func TestOperationHandleWarningsAccumulate(t *testing.T) {
	h := &operationHandle{
		snap:    &OperationSnapshot{OperationID: "op-3"},
		store:   NewMemoryProgressStore(time.Hour),
		oplog:   newFakeOplog(),
		release: func() {},
	}

	h.warn("institution 4 was already gone when its stage ran")
	h.warn("could not record hard-delete audit entry: connection reset")

	require.Len(t, h.snap.Warnings, 2)
}
