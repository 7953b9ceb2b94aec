// internal/services/lifecycle_test.go
package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lapakwarga/lapakwarga-backend/internal/config"
	"github.com/lapakwarga/lapakwarga-backend/internal/models"
)

func TestEvaluateLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	before := now.Add(24 * time.Hour)
	after := now.Add(-24 * time.Hour)

	tests := []struct {
		name         string
		state        models.LifecycleState
		committed    int
		target       int
		deadline     time.Time
		earlySuccess bool
		want         models.LifecycleState
	}{
		{"active before deadline under target", models.LifecycleStateActive, 3, 10, before, true, models.LifecycleStateActive},
		{"early success resolves immediately", models.LifecycleStateActive, 10, 10, before, true, models.LifecycleStateSucceeded},
		{"full waits for deadline without early success", models.LifecycleStateActive, 10, 10, before, false, models.LifecycleStateActive},
		{"full resolves at deadline without early success", models.LifecycleStateActive, 10, 10, after, false, models.LifecycleStateSucceeded},
		{"past deadline under target fails", models.LifecycleStateActive, 9, 10, after, true, models.LifecycleStateFailed},
		{"target and deadline tie resolves to succeeded", models.LifecycleStateActive, 10, 10, now, true, models.LifecycleStateSucceeded},
		{"tie without early success still succeeds", models.LifecycleStateActive, 10, 10, now, false, models.LifecycleStateSucceeded},
		{"over target past deadline succeeds", models.LifecycleStateActive, 12, 10, after, false, models.LifecycleStateSucceeded},
		{"succeeded is terminal", models.LifecycleStateSucceeded, 0, 10, after, true, models.LifecycleStateSucceeded},
		{"failed is terminal", models.LifecycleStateFailed, 10, 10, before, true, models.LifecycleStateFailed},
		{"cancelled is terminal", models.LifecycleStateCancelled, 10, 10, after, true, models.LifecycleStateCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gb := &models.GroupBuy{
				CommittedQuantity: tt.committed,
				TargetQuantity:    tt.target,
				Deadline:          tt.deadline,
				LifecycleState:    tt.state,
			}
			assert.Equal(t, tt.want, EvaluateLifecycle(gb, now, tt.earlySuccess))
		})
	}
}

func newTestLifecycleService(store LedgerStore, earlySuccess bool, now time.Time) *LifecycleService {
	svc := NewLifecycleService(store, config.GroupBuyConfig{
		OverflowPolicy: config.OverflowPolicyReject,
		EarlySuccess:   earlySuccess,
		JoinRetries:    5,
		TickInterval:   1,
	}, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func TestApplyResolvesDueGroupBuy(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	store := NewMemoryLedgerStore()

	gb := models.GroupBuy{
		BaseModel:         models.BaseModel{ID: uuid.New()},
		TargetQuantity:    10,
		CommittedQuantity: 4,
		Deadline:          now.Add(-time.Hour),
		LifecycleState:    models.LifecycleStateActive,
		Version:           1,
	}
	store.Put(gb)

	svc := newTestLifecycleService(store, true, now)

	resolved, err := svc.Apply(context.Background(), gb.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleStateFailed, resolved.LifecycleState)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, now, *resolved.ResolvedAt)
	assert.Equal(t, int64(2), resolved.Version)
}

func TestApplyIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	store := NewMemoryLedgerStore()

	gb := models.GroupBuy{
		BaseModel:         models.BaseModel{ID: uuid.New()},
		TargetQuantity:    10,
		CommittedQuantity: 10,
		Deadline:          now.Add(time.Hour),
		LifecycleState:    models.LifecycleStateActive,
		Version:           1,
	}
	store.Put(gb)

	svc := newTestLifecycleService(store, true, now)

	first, err := svc.Apply(context.Background(), gb.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleStateSucceeded, first.LifecycleState)

	second, err := svc.Apply(context.Background(), gb.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleStateSucceeded, second.LifecycleState)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.ResolvedAt, second.ResolvedAt)
}

func TestApplyLeavesUndueGroupBuyAlone(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	store := NewMemoryLedgerStore()

	gb := models.GroupBuy{
		BaseModel:         models.BaseModel{ID: uuid.New()},
		TargetQuantity:    10,
		CommittedQuantity: 4,
		Deadline:          now.Add(time.Hour),
		LifecycleState:    models.LifecycleStateActive,
		Version:           1,
	}
	store.Put(gb)

	svc := newTestLifecycleService(store, true, now)

	unchanged, err := svc.Apply(context.Background(), gb.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleStateActive, unchanged.LifecycleState)
	assert.Nil(t, unchanged.ResolvedAt)
	assert.Equal(t, int64(1), unchanged.Version)
}

func TestApplyConcurrentlyCommitsOneTransition(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	store := NewMemoryLedgerStore()

	gb := models.GroupBuy{
		BaseModel:         models.BaseModel{ID: uuid.New()},
		TargetQuantity:    10,
		CommittedQuantity: 10,
		Deadline:          now.Add(-time.Hour),
		LifecycleState:    models.LifecycleStateActive,
		Version:           1,
	}
	store.Put(gb)

	svc := newTestLifecycleService(store, true, now)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(context.Background(), gb.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := store.Snapshot(context.Background(), gb.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleStateSucceeded, snap.GroupBuy.LifecycleState)
	// Exactly one writer won the compare-and-swap.
	assert.Equal(t, int64(2), snap.GroupBuy.Version)
}

func TestDueForResolutionFindsDueRows(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	store := NewMemoryLedgerStore()

	due := models.GroupBuy{
		BaseModel:      models.BaseModel{ID: uuid.New()},
		TargetQuantity: 10,
		Deadline:       now.Add(-time.Minute),
		LifecycleState: models.LifecycleStateActive,
	}
	full := models.GroupBuy{
		BaseModel:         models.BaseModel{ID: uuid.New()},
		TargetQuantity:    5,
		CommittedQuantity: 5,
		Deadline:          now.Add(time.Hour),
		LifecycleState:    models.LifecycleStateActive,
	}
	open := models.GroupBuy{
		BaseModel:      models.BaseModel{ID: uuid.New()},
		TargetQuantity: 10,
		Deadline:       now.Add(time.Hour),
		LifecycleState: models.LifecycleStateActive,
	}
	resolved := models.GroupBuy{
		BaseModel:      models.BaseModel{ID: uuid.New()},
		TargetQuantity: 10,
		Deadline:       now.Add(-time.Hour),
		LifecycleState: models.LifecycleStateFailed,
	}
	for _, gb := range []models.GroupBuy{due, full, open, resolved} {
		store.Put(gb)
	}

	ids, err := store.DueForResolution(context.Background(), now, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{due.ID, full.ID}, ids)

	// Without early success a full campaign waits for its deadline.
	ids, err = store.DueForResolution(context.Background(), now, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{due.ID}, ids)
}
