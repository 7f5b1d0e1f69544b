package importer

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeProgressStore struct {
	updates      int
	updateErr    error
	finishStatus models.ImportRunStatus
	finishErr    error
}

func (s *fakeProgressStore) UpdateProgress(ctx context.Context, run *models.ImportRun) error {
	s.updates++
	return s.updateErr
}

func (s *fakeProgressStore) Finish(ctx context.Context, run *models.ImportRun, status models.ImportRunStatus, errorSummary *string) error {
	if s.finishErr != nil {
		return s.finishErr
	}
	s.finishStatus = status
	return nil
}

func newTracker(run *models.ImportRun, store runProgressStore) *Tracker {
	return NewTracker(run, store, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestTracker_CountersAndPercent(t *testing.T) {
	run := &models.ImportRun{ID: "run-1", Status: models.ImportRunStatusInProgress}
	tracker := newTracker(run, &fakeProgressStore{})

	tracker.AddPage(4, "")
	tracker.Advance(OutcomeCreated)
	tracker.Advance(OutcomeUpdated)
	tracker.Advance(OutcomeSkipped)

	assert.Equal(t, 4, run.TotalRecords)
	assert.Equal(t, 3, run.ProcessedRecords)
	assert.Equal(t, 1, run.CreatedRecords)
	assert.Equal(t, 1, run.UpdatedRecords)
	assert.Equal(t, 1, run.SkippedRecords)
	assert.Equal(t, 0, run.FailedRecords)
	assert.Equal(t, 75, run.PercentComplete)

	tracker.Advance(OutcomeFailed)
	assert.Equal(t, 1, run.FailedRecords)
	assert.Equal(t, 99, run.PercentComplete)
}

func TestTracker_PercentIsFloored(t *testing.T) {
	run := &models.ImportRun{ID: "run-1"}
	tracker := newTracker(run, &fakeProgressStore{})

	tracker.AddPage(3, "")
	tracker.Advance(OutcomeCreated)

	// 1/3 floors to 33, never rounds up
	assert.Equal(t, 33, run.PercentComplete)
}

func TestTracker_PercentNeverDecreases(t *testing.T) {
	run := &models.ImportRun{ID: "run-1"}
	tracker := newTracker(run, &fakeProgressStore{})

	tracker.AddPage(4, "")
	tracker.Advance(OutcomeCreated)
	tracker.Advance(OutcomeCreated)
	assert.Equal(t, 50, run.PercentComplete)

	// A later page grows the total; the ratio drops but the reported value holds
	tracker.AddPage(4, "cursor-2")
	assert.Equal(t, 50, run.PercentComplete)
	assert.Equal(t, 8, run.TotalRecords)

	last := run.PercentComplete
	for i := 0; i < 6; i++ {
		tracker.Advance(OutcomeCreated)
		assert.GreaterOrEqual(t, run.PercentComplete, last)
		last = run.PercentComplete
	}
}

func TestTracker_CapsAt99WhileLive(t *testing.T) {
	run := &models.ImportRun{ID: "run-1"}
	store := &fakeProgressStore{}
	tracker := newTracker(run, store)

	tracker.AddPage(2, "")
	tracker.Advance(OutcomeCreated)
	tracker.Advance(OutcomeCreated)

	assert.Equal(t, 99, run.PercentComplete)

	require.NoError(t, tracker.Finish(context.Background(), models.ImportRunStatusCompleted, nil))
	assert.Equal(t, 100, run.PercentComplete)
	assert.Equal(t, models.ImportRunStatusCompleted, run.Status)
	assert.Equal(t, models.ImportRunStatusCompleted, store.finishStatus)
}

func TestTracker_AddPageRecordsCursor(t *testing.T) {
	run := &models.ImportRun{ID: "run-1"}
	tracker := newTracker(run, &fakeProgressStore{})

	tracker.AddPage(2, "")
	assert.Nil(t, run.Cursor)

	tracker.AddPage(2, "/v1/investors?page=1")
	require.NotNil(t, run.Cursor)
	assert.Equal(t, "/v1/investors?page=1", *run.Cursor)
}

func TestTracker_FlushSwallowsStoreErrors(t *testing.T) {
	run := &models.ImportRun{ID: "run-1"}
	store := &fakeProgressStore{updateErr: fmt.Errorf("connection reset")}
	tracker := newTracker(run, store)

	tracker.AddPage(1, "")
	tracker.Advance(OutcomeCreated)
	tracker.Flush(context.Background())

	assert.Equal(t, 1, store.updates)
	assert.Equal(t, 1, run.ProcessedRecords)
}

func TestTracker_FinishPropagatesStoreError(t *testing.T) {
	run := &models.ImportRun{ID: "run-1", Status: models.ImportRunStatusInProgress}
	store := &fakeProgressStore{finishErr: fmt.Errorf("connection reset")}
	tracker := newTracker(run, store)

	err := tracker.Finish(context.Background(), models.ImportRunStatusCompleted, nil)
	require.Error(t, err)
	assert.Equal(t, models.ImportRunStatusInProgress, run.Status)
	assert.NotEqual(t, 100, run.PercentComplete)
}
