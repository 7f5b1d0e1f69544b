package importer

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/external"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeEntityStore struct {
	byExternalID map[string]*models.Entity
	nextID       int
	getCalls     int
	inserts      int
	updates      int
	insertErr    map[string]error
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{byExternalID: make(map[string]*models.Entity)}
}

func (s *fakeEntityStore) GetByExternalID(ctx context.Context, tenantID, entityKind, externalID string) (*models.Entity, error) {
	s.getCalls++
	return s.byExternalID[externalID], nil
}

func (s *fakeEntityStore) Insert(ctx context.Context, entity *models.Entity) (*models.Entity, error) {
	if entity.ExternalID != nil {
		if err := s.insertErr[*entity.ExternalID]; err != nil {
			return nil, err
		}
	}
	s.inserts++
	s.nextID++
	entity.ID = fmt.Sprintf("ent-%d", s.nextID)
	if entity.ExternalID != nil {
		s.byExternalID[*entity.ExternalID] = entity
	}
	return entity, nil
}

func (s *fakeEntityStore) UpdateMapped(ctx context.Context, tenantID, id string, mapped *models.MappedFields, fp string) error {
	s.updates++
	for _, e := range s.byExternalID {
		if e.ID == id {
			e.Fingerprint = fp
			e.Name = mapped.Name
		}
	}
	return nil
}

type fakeRunStore struct {
	cancelOnCheck int
	checks        int
	inProgress    bool
	updates       int
	finished      bool
	finishStatus  models.ImportRunStatus
	finishSummary *string
}

func (s *fakeRunStore) Create(ctx context.Context, tenantID, collectionType, workspaceID string) (*models.ImportRun, error) {
	return &models.ImportRun{ID: "run-1", TenantID: tenantID, CollectionType: collectionType, WorkspaceID: workspaceID, Status: models.ImportRunStatusPending}, nil
}

func (s *fakeRunStore) GetByID(ctx context.Context, tenantID, id string) (*models.ImportRun, error) {
	return nil, nil
}

func (s *fakeRunStore) List(ctx context.Context, tenantID string, page, pageSize int) ([]models.ImportRun, int, error) {
	return nil, 0, nil
}

func (s *fakeRunStore) MarkInProgress(ctx context.Context, tenantID, id string, totalRecords int) error {
	s.inProgress = true
	return nil
}

func (s *fakeRunStore) UpdateProgress(ctx context.Context, run *models.ImportRun) error {
	s.updates++
	return nil
}

func (s *fakeRunStore) Finish(ctx context.Context, run *models.ImportRun, status models.ImportRunStatus, errorSummary *string) error {
	s.finished = true
	s.finishStatus = status
	s.finishSummary = errorSummary
	return nil
}

func (s *fakeRunStore) RequestCancel(ctx context.Context, tenantID, id string) error {
	s.cancelOnCheck = 1
	return nil
}

func (s *fakeRunStore) IsCancelRequested(ctx context.Context, tenantID, id string) (bool, error) {
	s.checks++
	return s.cancelOnCheck > 0 && s.checks >= s.cancelOnCheck, nil
}

type fakeFailureStore struct {
	records []*models.FailedRecord
}

func (s *fakeFailureStore) Create(ctx context.Context, record *models.FailedRecord) (*models.FailedRecord, error) {
	s.records = append(s.records, record)
	return record, nil
}

type fakeFetcher struct {
	pages       [][]models.ExternalRecord
	cursors     []string
	err         error
	collection  string
	workspace   string
	startCursor string
}

func (f *fakeFetcher) FetchPages(ctx context.Context, collection, workspaceID, startCursor string, fn external.PageFunc) error {
	f.collection = collection
	f.workspace = workspaceID
	f.startCursor = startCursor
	for i, page := range f.pages {
		cursor := ""
		if i < len(f.cursors) {
			cursor = f.cursors[i]
		}
		if err := fn(i, page, cursor); err != nil {
			return err
		}
	}
	return f.err
}

type fakeEmitter struct {
	started  int
	finished int
	created  int
	updated  int
}

func (e *fakeEmitter) EmitRunStarted(ctx context.Context, run *models.ImportRun) error {
	e.started++
	return nil
}

func (e *fakeEmitter) EmitRunFinished(ctx context.Context, run *models.ImportRun) error {
	e.finished++
	return nil
}

func (e *fakeEmitter) EmitEntityCreated(ctx context.Context, entity *models.Entity) error {
	e.created++
	return nil
}

func (e *fakeEmitter) EmitEntityUpdated(ctx context.Context, entity *models.Entity) error {
	e.updated++
	return nil
}

type serviceFixture struct {
	service  *Service
	entities *fakeEntityStore
	runs     *fakeRunStore
	failures *fakeFailureStore
	fetcher  *fakeFetcher
	emitter  *fakeEmitter
}

func newServiceFixture(fetcher *fakeFetcher) *serviceFixture {
	return newServiceFixtureOpts(fetcher, Options{})
}

func newServiceFixtureOpts(fetcher *fakeFetcher, opts Options) *serviceFixture {
	f := &serviceFixture{
		entities: newFakeEntityStore(),
		runs:     &fakeRunStore{},
		failures: &fakeFailureStore{},
		fetcher:  fetcher,
		emitter:  &fakeEmitter{},
	}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	f.service = NewService(f.entities, f.runs, f.failures, f.fetcher, f.emitter, opts, logger)
	return f
}

func newRun() *models.ImportRun {
	return &models.ImportRun{
		ID:             "run-1",
		TenantID:       "tenant-1",
		CollectionType: "investor",
		WorkspaceID:    "ws-1",
		Status:         models.ImportRunStatusPending,
	}
}

func record(id, name string) models.ExternalRecord {
	return models.ExternalRecord{ID: id, Name: name}
}

func TestExecute_CreatesEntities(t *testing.T) {
	f := newServiceFixture(&fakeFetcher{
		pages: [][]models.ExternalRecord{{record("r-1", "Acme Ventures"), record("r-2", "Basecamp Capital")}},
	})
	run := newRun()

	require.NoError(t, f.service.Execute(context.Background(), run))

	assert.True(t, f.runs.inProgress)
	assert.Equal(t, models.ImportRunStatusCompleted, f.runs.finishStatus)
	assert.Equal(t, "investors", f.fetcher.collection)
	assert.Equal(t, "ws-1", f.fetcher.workspace)

	assert.Equal(t, 2, run.TotalRecords)
	assert.Equal(t, 2, run.ProcessedRecords)
	assert.Equal(t, 2, run.CreatedRecords)
	assert.Equal(t, 100, run.PercentComplete)
	assert.Equal(t, 2, f.entities.inserts)
	assert.Equal(t, 2, f.emitter.created)
	assert.Equal(t, 1, f.emitter.started)
	assert.Equal(t, 1, f.emitter.finished)

	for _, e := range f.entities.byExternalID {
		assert.Equal(t, models.SourceExternal, e.Source)
		assert.Equal(t, "investor", e.EntityKind)
		assert.NotEmpty(t, e.Fingerprint)
	}
}

func TestExecute_RerunIsIdempotent(t *testing.T) {
	pages := [][]models.ExternalRecord{{record("r-1", "Acme Ventures"), record("r-2", "Basecamp Capital")}}

	f := newServiceFixture(&fakeFetcher{pages: pages})
	require.NoError(t, f.service.Execute(context.Background(), newRun()))
	require.Equal(t, 2, f.entities.inserts)

	// Second run over unchanged source data writes nothing
	rerun := newRun()
	rerun.ID = "run-2"
	require.NoError(t, f.service.Execute(context.Background(), rerun))

	assert.Equal(t, 2, f.entities.inserts)
	assert.Equal(t, 0, f.entities.updates)
	assert.Equal(t, 2, rerun.SkippedRecords)
	assert.Equal(t, 0, rerun.CreatedRecords)
	assert.Equal(t, models.ImportRunStatusCompleted, f.runs.finishStatus)
}

func TestExecute_ChangedRecordUpdatesExisting(t *testing.T) {
	f := newServiceFixture(&fakeFetcher{
		pages: [][]models.ExternalRecord{{record("r-1", "Acme Ventures")}},
	})
	require.NoError(t, f.service.Execute(context.Background(), newRun()))

	f.fetcher.pages = [][]models.ExternalRecord{{record("r-1", "Acme Ventures II")}}
	rerun := newRun()
	rerun.ID = "run-2"
	require.NoError(t, f.service.Execute(context.Background(), rerun))

	assert.Equal(t, 1, f.entities.inserts)
	assert.Equal(t, 1, f.entities.updates)
	assert.Equal(t, 1, rerun.UpdatedRecords)
	assert.Equal(t, 1, f.emitter.updated)
	assert.Equal(t, "Acme Ventures II", f.entities.byExternalID["r-1"].Name)
}

func TestExecute_RepeatedRecordInRunUsesCache(t *testing.T) {
	f := newServiceFixture(&fakeFetcher{
		pages: [][]models.ExternalRecord{
			{record("r-1", "Acme Ventures")},
			{record("r-1", "Acme Ventures")},
		},
		cursors: []string{"", "/v1/investors?page=1"},
	})
	run := newRun()

	require.NoError(t, f.service.Execute(context.Background(), run))

	assert.Equal(t, 1, f.entities.inserts)
	assert.Equal(t, 1, run.CreatedRecords)
	assert.Equal(t, 1, run.SkippedRecords)
	// The repeat resolves through the run cache, not another lookup
	assert.Equal(t, 1, f.entities.getCalls)
}

func TestExecute_RecordFailuresDoNotAbortRun(t *testing.T) {
	f := newServiceFixture(&fakeFetcher{
		pages: [][]models.ExternalRecord{{
			record("", "No Identity"),
			record("r-2", ""),
			record("r-3", "Basecamp Capital"),
		}},
	})
	run := newRun()

	require.NoError(t, f.service.Execute(context.Background(), run))

	assert.Equal(t, models.ImportRunStatusCompleted, f.runs.finishStatus)
	assert.Equal(t, 3, run.ProcessedRecords)
	assert.Equal(t, 2, run.FailedRecords)
	assert.Equal(t, 1, run.CreatedRecords)

	require.Len(t, f.failures.records, 2)
	assert.Equal(t, models.ErrorCodeMissing, f.failures.records[0].ErrorCode)
	assert.Equal(t, models.ErrorCodeMapping, f.failures.records[1].ErrorCode)
	assert.Equal(t, "run-1", f.failures.records[0].RunID)
}

func TestExecute_InsertFailureIsRecorded(t *testing.T) {
	f := newServiceFixture(&fakeFetcher{
		pages: [][]models.ExternalRecord{{record("r-1", "Acme Ventures"), record("r-2", "Basecamp Capital")}},
	})
	f.entities.insertErr = map[string]error{"r-1": fmt.Errorf("unique constraint violation")}
	run := newRun()

	require.NoError(t, f.service.Execute(context.Background(), run))

	assert.Equal(t, models.ImportRunStatusCompleted, f.runs.finishStatus)
	assert.Equal(t, 1, run.FailedRecords)
	assert.Equal(t, 1, run.CreatedRecords)
	require.Len(t, f.failures.records, 1)
	assert.Equal(t, models.ErrorCodeUpsert, f.failures.records[0].ErrorCode)
	assert.Equal(t, "r-1", f.failures.records[0].ExternalID)
}

func TestExecute_CancellationObservedBetweenPages(t *testing.T) {
	f := newServiceFixture(&fakeFetcher{
		pages: [][]models.ExternalRecord{
			{record("r-1", "Acme Ventures"), record("r-2", "Basecamp Capital")},
			{record("r-3", "Cedar Partners")},
		},
		cursors: []string{"", "/v1/investors?page=1"},
	})
	f.runs.cancelOnCheck = 2
	run := newRun()

	require.NoError(t, f.service.Execute(context.Background(), run))

	assert.Equal(t, models.ImportRunStatusCancelled, f.runs.finishStatus)
	// The in-flight page completed; the next one never started
	assert.Equal(t, 2, run.ProcessedRecords)
	assert.Equal(t, 2, f.entities.inserts)
	assert.Equal(t, 100, run.PercentComplete)
}

func TestExecute_PageFetchFailureFailsRun(t *testing.T) {
	f := newServiceFixture(&fakeFetcher{
		pages:   [][]models.ExternalRecord{{record("r-1", "Acme Ventures")}},
		cursors: []string{""},
		err:     &external.PageError{PageIndex: 1, StatusCode: 503, Err: fmt.Errorf("unexpected status 503")},
	})
	run := newRun()

	require.NoError(t, f.service.Execute(context.Background(), run))

	assert.Equal(t, models.ImportRunStatusFailed, f.runs.finishStatus)
	require.NotNil(t, f.runs.finishSummary)
	assert.Contains(t, *f.runs.finishSummary, "page 1")
	// Work done before the failure is preserved
	assert.Equal(t, 1, run.CreatedRecords)
}

func TestExecute_UnknownCollectionFailsImmediately(t *testing.T) {
	f := newServiceFixture(&fakeFetcher{})
	run := newRun()
	run.CollectionType = "widget"

	require.NoError(t, f.service.Execute(context.Background(), run))

	assert.Equal(t, models.ImportRunStatusFailed, f.runs.finishStatus)
	require.NotNil(t, f.runs.finishSummary)
	assert.False(t, f.runs.inProgress)
	assert.Empty(t, f.fetcher.collection)
}

func TestStartRun_EmptyWorkspaceFallsBackToDefault(t *testing.T) {
	f := newServiceFixtureOpts(&fakeFetcher{}, Options{DefaultWorkspaceID: "ws-default"})

	run, err := f.service.StartRun(context.Background(), "tenant-1", "investor", "")
	require.NoError(t, err)
	assert.Equal(t, "ws-default", run.WorkspaceID)

	run, err = f.service.StartRun(context.Background(), "tenant-1", "investor", "ws-explicit")
	require.NoError(t, err)
	assert.Equal(t, "ws-explicit", run.WorkspaceID)
}

func TestExecute_ProgressFlushCadence(t *testing.T) {
	pages := [][]models.ExternalRecord{
		{record("r-1", "Acme Ventures")},
		{record("r-2", "Basecamp Capital")},
		{record("r-3", "Cedar Partners")},
		{record("r-4", "Dune Holdings")},
	}

	t.Run("EveryPageByDefault", func(t *testing.T) {
		f := newServiceFixture(&fakeFetcher{pages: pages})

		require.NoError(t, f.service.Execute(context.Background(), newRun()))

		assert.Equal(t, 4, f.runs.updates)
	})

	t.Run("EveryOtherPage", func(t *testing.T) {
		f := newServiceFixtureOpts(&fakeFetcher{pages: pages}, Options{FlushPages: 2})

		require.NoError(t, f.service.Execute(context.Background(), newRun()))

		assert.Equal(t, 2, f.runs.updates)
	})

	t.Run("TrailingPagesLandViaFinish", func(t *testing.T) {
		// Three pages with a cadence of two: the last page misses the flush
		// boundary but the terminal write still carries its counters
		f := newServiceFixtureOpts(&fakeFetcher{pages: pages[:3]}, Options{FlushPages: 2})
		run := newRun()

		require.NoError(t, f.service.Execute(context.Background(), run))

		assert.Equal(t, 1, f.runs.updates)
		assert.True(t, f.runs.finished)
		assert.Equal(t, 3, run.ProcessedRecords)
		assert.Equal(t, 100, run.PercentComplete)
	})
}

func TestExecute_ResumesFromStoredCursor(t *testing.T) {
	f := newServiceFixture(&fakeFetcher{
		pages: [][]models.ExternalRecord{{record("r-5", "Edge Capital")}},
	})
	run := newRun()
	cursor := "/v1/investors?page=3"
	run.Cursor = &cursor

	require.NoError(t, f.service.Execute(context.Background(), run))

	assert.Equal(t, "/v1/investors?page=3", f.fetcher.startCursor)
	assert.Equal(t, models.ImportRunStatusCompleted, f.runs.finishStatus)
}
