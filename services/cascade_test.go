package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/edumesh/edumesh-api/model"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB spins up an isolated in-memory database carrying the full
// schema the cascade touches.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Institution{},
		&model.User{},
		&model.JWTTokenBlacklist{},
		&model.Student{},
		&model.Department{},
		&model.Room{},
		&model.Grade{},
		&model.SurveyResponse{},
		&model.Statistic{},
		&model.IndicatorValue{},
		&model.InstitutionAuditLog{},
		&model.DeleteOperation{},
	))
	return db
}

func seedInstitution(t *testing.T, db *gorm.DB, name string, level int, parentID *uint) *model.Institution {
	t.Helper()

	types := map[int]string{
		model.InstitutionLevelMinistry: "ministry",
		model.InstitutionLevelRegion:   "region",
		model.InstitutionLevelSector:   "sector",
		model.InstitutionLevelSchool:   "school",
	}
	inst := &model.Institution{
		Name:            name,
		Type:            types[level],
		InstitutionCode: name,
		Level:           level,
		ParentID:        parentID,
		IsActive:        true,
	}
	require.NoError(t, db.Create(inst).Error)
	return inst
}

func seedStudent(t *testing.T, db *gorm.DB, institutionID uint, number string) {
	t.Helper()
	require.NoError(t, db.Create(&model.Student{
		FirstName:     "Test",
		LastName:      "Student",
		StudentNumber: number,
		InstitutionID: institutionID,
		IsActive:      true,
	}).Error)
}

// newRunHandle builds an executor handle backed by real stores, the way
// DeletionService.Start wires one up.
func newRunHandle(t *testing.T, db *gorm.DB, institutionID uint, req DeleteRequest) (*operationHandle, *MemoryProgressStore, *gormOperationLog) {
	t.Helper()

	store := NewMemoryProgressStore(time.Hour)
	oplog := &gormOperationLog{db: db}
	now := time.Now()
	snap := &OperationSnapshot{
		OperationID:   uuid.NewString(),
		InstitutionID: institutionID,
		Mode:          req.Mode,
		Status:        model.DeleteOperationStatusPending,
		StartedAt:     &now,
	}
	require.NoError(t, oplog.Create(context.Background(), snap, 1))

	h := &operationHandle{
		snap:    snap,
		req:     req,
		store:   store,
		oplog:   oplog,
		release: func() {},
	}
	return h, store, oplog
}

func countUnscoped(t *testing.T, db *gorm.DB, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Unscoped().Where(query, args...).Count(&n).Error)
	return n
}

func TestCascadeHardDeleteRemovesSubtreeAndDependents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	region := seedInstitution(t, db, "region-1", model.InstitutionLevelRegion, nil)
	sector := seedInstitution(t, db, "sector-1", model.InstitutionLevelSector, &region.ID)
	schoolA := seedInstitution(t, db, "school-a", model.InstitutionLevelSchool, &sector.ID)
	schoolB := seedInstitution(t, db, "school-b", model.InstitutionLevelSchool, &sector.ID)

	seedStudent(t, db, schoolA.ID, "st-1")
	seedStudent(t, db, schoolA.ID, "st-2")
	seedStudent(t, db, schoolB.ID, "st-3")

	account := model.User{Email: "head@sector-1", PasswordHash: "x", Name: "Sector Head", Role: model.RoleSectorAdmin, InstitutionID: &sector.ID}
	require.NoError(t, db.Create(&account).Error)
	require.NoError(t, db.Create(&model.JWTTokenBlacklist{
		Token:     uuid.NewString(),
		UserID:    account.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	}).Error)

	req := DeleteRequest{Mode: model.DeleteModeHard, Confirmation: true, Force: true, Reason: "sector closed"}
	h, store, oplog := newRunHandle(t, db, sector.ID, req)

	NewCascadeExecutor(db, NewImpactService(db)).Run(h)

	require.Equal(t, model.DeleteOperationStatusCompleted, h.snap.Status)
	assert.Equal(t, 100, h.snap.Progress)
	assert.NotEmpty(t, h.snap.Message)

	// The metadata freezes the impact counts observed at execution time.
	require.NotNil(t, h.snap.Metadata)
	assert.Equal(t, 2, h.snap.Metadata.ChildrenCount, "direct children only")
	assert.Equal(t, 2, h.snap.Metadata.TotalChildrenCount)
	assert.Equal(t, int64(3), h.snap.Metadata.StudentsCount)
	assert.Equal(t, int64(1), h.snap.Metadata.UsersCount)

	// The whole subtree and everything hanging off it is gone; the parent
	// region is untouched.
	subtreeIDs := []uint{sector.ID, schoolA.ID, schoolB.ID}
	assert.Zero(t, countUnscoped(t, db, &model.Institution{}, "id IN ?", subtreeIDs))
	assert.Zero(t, countUnscoped(t, db, &model.Student{}, "institution_id IN ?", subtreeIDs))
	assert.Zero(t, countUnscoped(t, db, &model.User{}, "institution_id IN ?", subtreeIDs))
	assert.Zero(t, countUnscoped(t, db, &model.JWTTokenBlacklist{}, "user_id = ?", account.ID))
	assert.Equal(t, int64(1), countUnscoped(t, db, &model.Institution{}, "id = ?", region.ID))

	// The initiation entry hangs off the parent so it survives the cascade.
	assert.Equal(t, int64(1), countUnscoped(t, db, &model.InstitutionAuditLog{},
		"institution_id = ? AND action = ?", region.ID, "hard_delete_initiated"))

	// Terminal state reads identically from the snapshot store and from the
	// durable row the Status fallback uses.
	snap, err := store.Get(ctx, h.snap.OperationID)
	require.NoError(t, err)
	row, err := oplog.Find(ctx, h.snap.OperationID)
	require.NoError(t, err)
	for _, got := range []*OperationSnapshot{snap, row} {
		assert.Equal(t, model.DeleteOperationStatusCompleted, got.Status)
		assert.Equal(t, 100, got.Progress)
		assert.Equal(t, h.snap.Message, got.Message)
		require.NotNil(t, got.Metadata)
		assert.Equal(t, 2, got.Metadata.ChildrenCount)
	}
}

func TestCascadeSoftDeleteArchivesTargetAndDirectChildrenOnly(t *testing.T) {
	db := openTestDB(t)

	region := seedInstitution(t, db, "region-1", model.InstitutionLevelRegion, nil)
	sector := seedInstitution(t, db, "sector-1", model.InstitutionLevelSector, &region.ID)
	school := seedInstitution(t, db, "school-a", model.InstitutionLevelSchool, &sector.ID)

	req := DeleteRequest{Mode: model.DeleteModeSoft, Confirmation: true}
	h, _, _ := newRunHandle(t, db, region.ID, req)

	NewCascadeExecutor(db, NewImpactService(db)).Run(h)

	require.Equal(t, model.DeleteOperationStatusCompleted, h.snap.Status)
	assert.Equal(t, 100, h.snap.Progress)

	var got model.Institution
	require.NoError(t, db.Unscoped().First(&got, region.ID).Error)
	assert.True(t, got.IsArchived())
	assert.False(t, got.IsActive)

	got = model.Institution{}
	require.NoError(t, db.Unscoped().First(&got, sector.ID).Error)
	assert.True(t, got.IsArchived(), "direct child is archived with the target")

	// The grandchild stays live; a soft delete reaches one level down only.
	got = model.Institution{}
	require.NoError(t, db.First(&got, school.ID).Error)
	assert.False(t, got.IsArchived())
	assert.True(t, got.IsActive)

	assert.Equal(t, int64(1), countUnscoped(t, db, &model.InstitutionAuditLog{},
		"institution_id = ? AND action = ?", region.ID, "archived"))
}

func TestCascadeRevalidatesAgainstLiveState(t *testing.T) {
	db := openTestDB(t)

	region := seedInstitution(t, db, "region-1", model.InstitutionLevelRegion, nil)
	seedInstitution(t, db, "sector-1", model.InstitutionLevelSector, &region.ID)

	// The request would not have passed validation against the live tree:
	// the subtree is non-empty and force was never acknowledged.
	req := DeleteRequest{Mode: model.DeleteModeHard, Confirmation: true, Reason: "stale request"}
	h, _, _ := newRunHandle(t, db, region.ID, req)

	NewCascadeExecutor(db, NewImpactService(db)).Run(h)

	require.Equal(t, model.DeleteOperationStatusFailed, h.snap.Status)
	assert.Contains(t, h.snap.Error, "force")

	// Nothing was touched.
	assert.Equal(t, int64(2), countUnscoped(t, db, &model.Institution{}, "1 = 1"))
}

func TestOperationLogRoundTripsTerminalSnapshot(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	oplog := &gormOperationLog{db: db}

	now := time.Now()
	snap := &OperationSnapshot{
		OperationID:   uuid.NewString(),
		InstitutionID: 7,
		Mode:          model.DeleteModeHard,
		Status:        model.DeleteOperationStatusPending,
		StartedAt:     &now,
	}
	require.NoError(t, oplog.Create(ctx, snap, 1))

	snap.Status = model.DeleteOperationStatusCompleted
	snap.Progress = 100
	snap.StagesCompleted = 4
	snap.TotalStages = 4
	snap.CompletedAt = &now
	snap.Message = "institution and all dependent records permanently deleted"
	snap.Warnings = []string{"institution 9 was already gone when its stage ran"}
	snap.Metadata = &OperationMetadata{ChildrenCount: 3, TotalChildrenCount: 5, StudentsCount: 40}
	require.NoError(t, oplog.Update(ctx, snap))

	got, err := oplog.Find(ctx, snap.OperationID)
	require.NoError(t, err)
	assert.Equal(t, model.DeleteOperationStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, snap.Message, got.Message)
	assert.Equal(t, snap.Warnings, got.Warnings)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, 3, got.Metadata.ChildrenCount)
	assert.Equal(t, int64(40), got.Metadata.StudentsCount)
}
