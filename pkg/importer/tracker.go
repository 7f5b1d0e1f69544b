package importer

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/platform/tracing"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Outcome classifies what happened to one processed record
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// runProgressStore is the persistence surface the tracker needs
type runProgressStore interface {
	UpdateProgress(ctx context.Context, run *models.ImportRun) error
	Finish(ctx context.Context, run *models.ImportRun, status models.ImportRunStatus, errorSummary *string) error
}

// Tracker accumulates the counters of one live run and persists them so
// pollers observe progress incrementally. Counters only ever grow and the
// percentage never decreases; it is capped below 100 until the run reaches a
// terminal status.
type Tracker struct {
	run    *models.ImportRun
	store  runProgressStore
	logger ectologger.Logger
}

// NewTracker wraps a run that has been marked in progress
func NewTracker(run *models.ImportRun, store runProgressStore, logger ectologger.Logger) *Tracker {
	return &Tracker{
		run:    run,
		store:  store,
		logger: logger,
	}
}

// Run returns the tracked run with its live counters
func (t *Tracker) Run() *models.ImportRun {
	return t.run
}

// AddPage grows the observed total by one fetched page and records the cursor
// that produced it, so a failed run can resume from the last good page
func (t *Tracker) AddPage(pageSize int, cursor string) {
	t.run.TotalRecords += pageSize
	if cursor != "" {
		c := cursor
		t.run.Cursor = &c
	}
	t.refreshPercent()
}

// Advance records the outcome of one processed record
func (t *Tracker) Advance(outcome Outcome) {
	t.run.ProcessedRecords++
	switch outcome {
	case OutcomeCreated:
		t.run.CreatedRecords++
	case OutcomeUpdated:
		t.run.UpdatedRecords++
	case OutcomeSkipped:
		t.run.SkippedRecords++
	case OutcomeFailed:
		t.run.FailedRecords++
	}
	t.refreshPercent()
}

// refreshPercent recomputes the floored completion percentage. The value is
// monotone: later pages can grow the total, which would otherwise pull the
// ratio backwards, and 100 is reserved for terminal runs.
func (t *Tracker) refreshPercent() {
	if t.run.TotalRecords <= 0 {
		return
	}
	percent := t.run.ProcessedRecords * 100 / t.run.TotalRecords
	if percent > 99 {
		percent = 99
	}
	if percent > t.run.PercentComplete {
		t.run.PercentComplete = percent
	}
}

// Flush persists the current counters. A persistence hiccup is logged and
// swallowed; the counters stay authoritative in memory and the next flush
// catches the store up.
func (t *Tracker) Flush(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "importer.Tracker.Flush")
	defer span.End()

	if err := t.store.UpdateProgress(ctx, t.run); err != nil {
		t.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": t.run.ID}).Warn("Failed to flush run progress")
	}
}

// Finish transitions the run to a terminal status, freezing the counters and
// forcing the percentage to 100
func (t *Tracker) Finish(ctx context.Context, status models.ImportRunStatus, errorSummary *string) error {
	ctx, span := tracing.StartSpan(ctx, "importer.Tracker.Finish")
	defer span.End()

	if err := t.store.Finish(ctx, t.run, status, errorSummary); err != nil {
		return err
	}
	t.run.Status = status
	t.run.PercentComplete = 100
	t.run.ErrorSummary = errorSummary
	return nil
}
