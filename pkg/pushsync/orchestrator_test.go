package pushsync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type syncResult struct {
	status     string
	syncErr    *string
	externalID *string
}

type fakeSyncStore struct {
	mu      sync.Mutex
	pending []models.Entity
	results map[string]syncResult
}

func (s *fakeSyncStore) ListForPush(ctx context.Context, tenantID, entityKind string, limit int) ([]models.Entity, error) {
	return s.pending, nil
}

func (s *fakeSyncStore) UpdateSyncResult(ctx context.Context, tenantID, id, status string, syncErr *string, externalID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results == nil {
		s.results = make(map[string]syncResult)
	}
	s.results[id] = syncResult{status: status, syncErr: syncErr, externalID: externalID}
	return nil
}

type fakePusher struct {
	failFor    map[string]bool
	inFlight   atomic.Int32
	maxSeen    atomic.Int32
	pushed     atomic.Int32
	perCallLag time.Duration
}

func (p *fakePusher) PushEntity(ctx context.Context, collection string, entity *models.Entity) (*models.ExternalPushResult, error) {
	current := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		seen := p.maxSeen.Load()
		if current <= seen || p.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}

	if p.perCallLag > 0 {
		time.Sleep(p.perCallLag)
	}
	p.pushed.Add(1)

	if p.failFor[entity.ID] {
		return nil, fmt.Errorf("external service rejected entity")
	}
	return &models.ExternalPushResult{ID: "ext-" + entity.ID}, nil
}

type fakeSyncEmitter struct {
	mu     sync.Mutex
	synced int
	errors int
}

func (e *fakeSyncEmitter) EmitSyncResult(ctx context.Context, entity *models.Entity, syncErr error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if syncErr != nil {
		e.errors++
	} else {
		e.synced++
	}
	return nil
}

func pendingEntities(n int) []models.Entity {
	out := make([]models.Entity, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Entity{
			ID:         fmt.Sprintf("e-%d", i+1),
			TenantID:   "tenant-1",
			EntityKind: "investor",
			Name:       fmt.Sprintf("Entity %d", i+1),
			SyncStatus: models.SyncStatusPending,
		})
	}
	return out
}

func newOrchestrator(store *fakeSyncStore, pusher *fakePusher, emitter *fakeSyncEmitter, batchSize int) *Orchestrator {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewOrchestrator(store, pusher, emitter, batchSize, logger)
}

func TestRun_PushesAllPending(t *testing.T) {
	store := &fakeSyncStore{pending: pendingEntities(7)}
	pusher := &fakePusher{}
	emitter := &fakeSyncEmitter{}
	o := newOrchestrator(store, pusher, emitter, 5)

	summary, err := o.Run(context.Background(), "tenant-1", "investor")
	require.NoError(t, err)

	assert.Equal(t, 7, summary.Total)
	assert.Equal(t, 7, summary.Synced)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, summary.Batches)
	assert.Equal(t, 7, emitter.synced)

	for i := 1; i <= 7; i++ {
		id := fmt.Sprintf("e-%d", i)
		result, ok := store.results[id]
		require.True(t, ok, "entity %s has no recorded result", id)
		assert.Equal(t, models.SyncStatusSynced, result.status)
		assert.Nil(t, result.syncErr)
		require.NotNil(t, result.externalID)
		assert.Equal(t, "ext-"+id, *result.externalID)
	}
}

func TestRun_FailedItemTouchesNothingElse(t *testing.T) {
	store := &fakeSyncStore{pending: pendingEntities(3)}
	pusher := &fakePusher{failFor: map[string]bool{"e-2": true}}
	emitter := &fakeSyncEmitter{}
	o := newOrchestrator(store, pusher, emitter, 5)

	summary, err := o.Run(context.Background(), "tenant-1", "investor")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Synced)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, emitter.errors)

	failed := store.results["e-2"]
	assert.Equal(t, models.SyncStatusError, failed.status)
	require.NotNil(t, failed.syncErr)
	assert.Contains(t, *failed.syncErr, "rejected")
	assert.Nil(t, failed.externalID)

	for _, id := range []string{"e-1", "e-3"} {
		assert.Equal(t, models.SyncStatusSynced, store.results[id].status)
	}
}

func TestRun_EveryItemLandsInTerminalStatus(t *testing.T) {
	store := &fakeSyncStore{pending: pendingEntities(10)}
	pusher := &fakePusher{failFor: map[string]bool{"e-3": true, "e-7": true, "e-10": true}}
	o := newOrchestrator(store, pusher, &fakeSyncEmitter{}, 5)

	summary, err := o.Run(context.Background(), "tenant-1", "investor")
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 7, summary.Synced)
	assert.Equal(t, 3, summary.Failed)

	require.Len(t, store.results, 10)
	for id, result := range store.results {
		assert.Contains(t, []string{models.SyncStatusSynced, models.SyncStatusError}, result.status, "entity %s", id)
	}
}

func TestRun_ConcurrencyBoundedByBatchSize(t *testing.T) {
	store := &fakeSyncStore{pending: pendingEntities(12)}
	pusher := &fakePusher{perCallLag: 10 * time.Millisecond}
	o := newOrchestrator(store, pusher, &fakeSyncEmitter{}, 5)

	summary, err := o.Run(context.Background(), "tenant-1", "investor")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, int32(12), pusher.pushed.Load())
	assert.LessOrEqual(t, pusher.maxSeen.Load(), int32(5))
}

func TestRun_BatchSizeIsClamped(t *testing.T) {
	t.Run("AboveMaximum", func(t *testing.T) {
		store := &fakeSyncStore{pending: pendingEntities(20)}
		o := newOrchestrator(store, &fakePusher{}, &fakeSyncEmitter{}, 50)

		summary, err := o.Run(context.Background(), "tenant-1", "investor")
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Batches)
	})

	t.Run("BelowMinimum", func(t *testing.T) {
		store := &fakeSyncStore{pending: pendingEntities(6)}
		o := newOrchestrator(store, &fakePusher{}, &fakeSyncEmitter{}, 1)

		summary, err := o.Run(context.Background(), "tenant-1", "investor")
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Batches)
	})
}

func TestRun_UnknownKindFails(t *testing.T) {
	o := newOrchestrator(&fakeSyncStore{}, &fakePusher{}, &fakeSyncEmitter{}, 5)

	_, err := o.Run(context.Background(), "tenant-1", "widget")
	assert.Error(t, err)
}

func TestRun_NothingPending(t *testing.T) {
	o := newOrchestrator(&fakeSyncStore{}, &fakePusher{}, &fakeSyncEmitter{}, 5)

	summary, err := o.Run(context.Background(), "tenant-1", "investor")
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 0, summary.Batches)
	assert.Equal(t, 0, summary.Synced)
}
