package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edumesh/edumesh-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *OperationSnapshot {
	started := time.Now()
	return &OperationSnapshot{
		OperationID:   "op-1",
		InstitutionID: 10,
		Mode:          model.DeleteModeHard,
		Status:        model.DeleteOperationStatusRunning,
		Progress:      40,
		CurrentStage:  `deleting "school-1" (id=4)`,
		StartedAt:     &started,
		Warnings:      []string{"institution 5 was already gone when its stage ran"},
		Metadata:      &OperationMetadata{ChildrenCount: 3, TotalChildrenCount: 5},
	}
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	orig := sampleSnapshot()
	clone := orig.Clone()

	clone.Warnings[0] = "mutated"
	clone.Metadata.ChildrenCount = 99
	*clone.StartedAt = clone.StartedAt.Add(time.Hour)

	assert.Equal(t, "institution 5 was already gone when its stage ran", orig.Warnings[0])
	assert.Equal(t, 3, orig.Metadata.ChildrenCount)
	assert.NotEqual(t, orig.StartedAt.Unix(), clone.StartedAt.Unix())
}

func TestMemoryStoreIsolatesReadersFromWriter(t *testing.T) {
	store := NewMemoryProgressStore(time.Hour)
	snap := sampleSnapshot()
	require.NoError(t, store.Put(context.Background(), snap))

	// Writer keeps mutating its own copy after the Put.
	snap.Progress = 80
	snap.Warnings = append(snap.Warnings, "second warning")

	got, err := store.Get(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)
	assert.Len(t, got.Warnings, 1)

	// And a reader's mutations never leak back into the store.
	got.Progress = 0
	again, err := store.Get(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, 40, again.Progress)
}

func TestMemoryStoreExpiresEntries(t *testing.T) {
	store := NewMemoryProgressStore(10 * time.Millisecond)
	require.NoError(t, store.Put(context.Background(), sampleSnapshot()))

	_, err := store.Get(context.Background(), "op-1")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = store.Get(context.Background(), "op-1")
	assert.ErrorIs(t, err, ErrOperationNotFound)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 0, store.Sweep(), "second sweep finds nothing")
}

func TestMemoryStoreMissingOperation(t *testing.T) {
	store := NewMemoryProgressStore(time.Hour)
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryProgressStore(time.Hour)
	snap := sampleSnapshot()
	require.NoError(t, store.Put(context.Background(), snap))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := snap.Clone()
				s.Progress = j
				_ = store.Put(context.Background(), s)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got, err := store.Get(context.Background(), "op-1"); err == nil {
					assert.NotEmpty(t, got.OperationID)
				}
			}
		}()
	}
	wg.Wait()
}
