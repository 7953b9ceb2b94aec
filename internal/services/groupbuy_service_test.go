// internal/services/groupbuy_service_test.go
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

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestGroupBuyService(store LedgerStore, cfg config.GroupBuyConfig) *GroupBuyService {
	svc := NewGroupBuyService(nil, store, nil, cfg, nil)
	svc.now = func() time.Time { return testNow }
	return svc
}

func defaultTestConfig() config.GroupBuyConfig {
	return config.GroupBuyConfig{
		OverflowPolicy: config.OverflowPolicyReject,
		EarlySuccess:   true,
		JoinRetries:    100,
		TickInterval:   1,
	}
}

func seedGroupBuy(store *MemoryLedgerStore, target, committed int, deadline time.Time) models.GroupBuy {
	gb := models.GroupBuy{
		BaseModel:         models.BaseModel{ID: uuid.New()},
		OrganizerID:       uuid.New(),
		Title:             "Beras premium 25kg",
		UnitPrice:         180000,
		TargetQuantity:    target,
		CommittedQuantity: committed,
		Deadline:          deadline,
		LifecycleState:    models.LifecycleStateActive,
		Version:           1,
	}
	store.Put(gb)
	return gb
}

func TestJoinAdmitsParticipant(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 0, testNow.Add(time.Hour))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	admission, err := svc.Join(context.Background(), gb.ID, uuid.New(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, admission.ConfirmedQuantity)
	assert.Equal(t, 3, admission.CommittedQuantity)
	assert.Equal(t, 10, admission.TargetQuantity)
	assert.Equal(t, models.LifecycleStateActive, admission.LifecycleState)

	snap, err := store.Snapshot(context.Background(), gb.ID)
	require.NoError(t, err)
	require.Len(t, snap.Commitments, 1)
	assert.Equal(t, models.CommitmentStateHeld, snap.Commitments[0].State)
	assert.Equal(t, 3, snap.Commitments[0].Quantity)
}

func TestJoinFillingTargetReportsSucceeded(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 7, testNow.Add(time.Hour))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	admission, err := svc.Join(context.Background(), gb.ID, uuid.New(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, admission.ConfirmedQuantity)
	assert.Equal(t, 10, admission.CommittedQuantity)
	assert.Equal(t, models.LifecycleStateSucceeded, admission.LifecycleState)
}

func TestJoinRejectsInvalidQuantity(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 0, testNow.Add(time.Hour))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	_, err := svc.Join(context.Background(), gb.ID, uuid.New(), 0)
	assert.Error(t, err)

	_, err = svc.Join(context.Background(), gb.ID, uuid.New(), -2)
	assert.Error(t, err)
}

func TestJoinUnknownGroupBuy(t *testing.T) {
	store := NewMemoryLedgerStore()
	svc := newTestGroupBuyService(store, defaultTestConfig())

	_, err := svc.Join(context.Background(), uuid.New(), uuid.New(), 1)
	assert.ErrorIs(t, err, ErrGroupBuyNotFound)
}

func TestJoinRejectsAfterDeadline(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 2, testNow.Add(-time.Minute))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	_, err := svc.Join(context.Background(), gb.ID, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestJoinRejectsWhenFull(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 10, testNow.Add(time.Hour))

	cfg := defaultTestConfig()
	cfg.EarlySuccess = false
	svc := newTestGroupBuyService(store, cfg)

	_, err := svc.Join(context.Background(), gb.ID, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrFull)
}

func TestJoinFullWithEarlySuccessIsClosed(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 10, testNow.Add(time.Hour))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	// With early success a full campaign is already resolved, not merely full.
	_, err := svc.Join(context.Background(), gb.ID, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestJoinOverflowRejected(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 8, testNow.Add(time.Hour))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	_, err := svc.Join(context.Background(), gb.ID, uuid.New(), 5)
	assert.ErrorIs(t, err, ErrExceedsCapacity)

	snap, err := store.Snapshot(context.Background(), gb.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, snap.GroupBuy.CommittedQuantity)
	assert.Empty(t, snap.Commitments)
}

func TestJoinOverflowClamped(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 8, testNow.Add(time.Hour))

	cfg := defaultTestConfig()
	cfg.OverflowPolicy = config.OverflowPolicyClamp
	svc := newTestGroupBuyService(store, cfg)

	admission, err := svc.Join(context.Background(), gb.ID, uuid.New(), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, admission.ConfirmedQuantity)
	assert.Equal(t, 10, admission.CommittedQuantity)
	assert.Equal(t, models.LifecycleStateSucceeded, admission.LifecycleState)
}

func TestJoinRejectsDuplicateParticipant(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 0, testNow.Add(time.Hour))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	participant := uuid.New()

	_, err := svc.Join(context.Background(), gb.ID, participant, 2)
	require.NoError(t, err)

	_, err = svc.Join(context.Background(), gb.ID, participant, 1)
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	snap, err := store.Snapshot(context.Background(), gb.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.GroupBuy.CommittedQuantity)
}

func TestConcurrentJoinsNeverExceedTarget(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 0, testNow.Add(time.Hour))

	cfg := defaultTestConfig()
	cfg.EarlySuccess = false
	svc := newTestGroupBuyService(store, cfg)

	const joiners = 25

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed int
	)

	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admission, err := svc.Join(context.Background(), gb.ID, uuid.New(), 1)
			if err != nil {
				assert.ErrorIs(t, err, ErrFull)
				return
			}
			mu.Lock()
			confirmed += admission.ConfirmedQuantity
			mu.Unlock()
		}()
	}
	wg.Wait()

	snap, err := store.Snapshot(context.Background(), gb.ID)
	require.NoError(t, err)

	assert.Equal(t, 10, snap.GroupBuy.CommittedQuantity)
	assert.Equal(t, snap.GroupBuy.CommittedQuantity, confirmed)
	assert.LessOrEqual(t, snap.GroupBuy.CommittedQuantity, snap.GroupBuy.TargetQuantity)
}

func TestConcurrentJoinsConserveCommittedQuantity(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 100, 0, testNow.Add(time.Hour))

	cfg := defaultTestConfig()
	cfg.EarlySuccess = false
	svc := newTestGroupBuyService(store, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(quantity int) {
			defer wg.Done()
			_, err := svc.Join(context.Background(), gb.ID, uuid.New(), quantity)
			assert.NoError(t, err)
		}(i%3 + 1)
	}
	wg.Wait()

	snap, err := store.Snapshot(context.Background(), gb.ID)
	require.NoError(t, err)

	held := 0
	for _, c := range snap.Commitments {
		require.Equal(t, models.CommitmentStateHeld, c.State)
		held += c.Quantity
	}
	assert.Equal(t, held, snap.GroupBuy.CommittedQuantity)
	assert.Len(t, snap.Commitments, 20)
}

func TestLeaveReleasesCommitment(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 0, testNow.Add(time.Hour))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	participant := uuid.New()

	_, err := svc.Join(context.Background(), gb.ID, participant, 4)
	require.NoError(t, err)

	release, err := svc.Leave(context.Background(), gb.ID, participant)
	require.NoError(t, err)
	assert.Equal(t, 4, release.ReleasedQuantity)
	assert.Equal(t, 0, release.CommittedQuantity)

	// The released row stays as history.
	snap, err := store.Snapshot(context.Background(), gb.ID)
	require.NoError(t, err)
	require.Len(t, snap.Commitments, 1)
	assert.Equal(t, models.CommitmentStateReleased, snap.Commitments[0].State)
	require.NotNil(t, snap.Commitments[0].ReleasedAt)
}

func TestLeaveWithoutCommitment(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 0, testNow.Add(time.Hour))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	_, err := svc.Leave(context.Background(), gb.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotJoined)
}

func TestLeaveAfterResolutionIsClosed(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 3, testNow.Add(-time.Minute))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	_, err := svc.Leave(context.Background(), gb.ID, uuid.New())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRejoinAfterLeaveReactivatesCommitment(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 0, testNow.Add(time.Hour))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	participant := uuid.New()

	_, err := svc.Join(context.Background(), gb.ID, participant, 4)
	require.NoError(t, err)

	_, err = svc.Leave(context.Background(), gb.ID, participant)
	require.NoError(t, err)

	admission, err := svc.Join(context.Background(), gb.ID, participant, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, admission.ConfirmedQuantity)
	assert.Equal(t, 2, admission.CommittedQuantity)

	snap, err := store.Snapshot(context.Background(), gb.ID)
	require.NoError(t, err)
	require.Len(t, snap.Commitments, 1)
	assert.Equal(t, models.CommitmentStateHeld, snap.Commitments[0].State)
	assert.Equal(t, 2, snap.Commitments[0].Quantity)
}

func TestCancelByOrganizer(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 3, testNow.Add(time.Hour))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	cancelled, err := svc.Cancel(context.Background(), gb.ID, gb.OrganizerID)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleStateCancelled, cancelled.LifecycleState)
	require.NotNil(t, cancelled.ResolvedAt)

	// Cancellation is terminal; further joins are rejected.
	_, err = svc.Join(context.Background(), gb.ID, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCancelByNonOrganizer(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 3, testNow.Add(time.Hour))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	_, err := svc.Cancel(context.Background(), gb.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotOrganizer)
}

func TestCancelAfterResolution(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 3, testNow.Add(time.Hour))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	_, err := svc.Cancel(context.Background(), gb.ID, gb.OrganizerID)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), gb.ID, gb.OrganizerID)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestGetGroupBuyReflectsDueResolution(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 4, testNow.Add(-time.Minute))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	view, err := svc.GetGroupBuy(context.Background(), gb.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleStateFailed, view.LifecycleState)

	// The facade never writes; the stored row is untouched.
	snap, err := store.Snapshot(context.Background(), gb.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleStateActive, snap.GroupBuy.LifecycleState)
	assert.Equal(t, int64(1), snap.GroupBuy.Version)
}

func TestGetGroupBuyView(t *testing.T) {
	store := NewMemoryLedgerStore()
	original := 220000.0
	gb := models.GroupBuy{
		BaseModel:         models.BaseModel{ID: uuid.New()},
		OrganizerID:       uuid.New(),
		Title:             "Minyak goreng 2L",
		UnitPrice:         180000,
		OriginalUnitPrice: &original,
		TargetQuantity:    10,
		Deadline:          testNow.Add(time.Hour),
		LifecycleState:    models.LifecycleStateActive,
		Version:           1,
	}
	store.Put(gb)
	svc := newTestGroupBuyService(store, defaultTestConfig())

	_, err := svc.Join(context.Background(), gb.ID, uuid.New(), 3)
	require.NoError(t, err)
	participant := uuid.New()
	_, err = svc.Join(context.Background(), gb.ID, participant, 2)
	require.NoError(t, err)
	_, err = svc.Leave(context.Background(), gb.ID, participant)
	require.NoError(t, err)

	view, err := svc.GetGroupBuy(context.Background(), gb.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, view.CommittedQuantity)
	assert.Equal(t, 7, view.RemainingCapacity)
	assert.Equal(t, 30.0, view.ProgressPercent)
	assert.Equal(t, 40000.0, view.Pricing.SavingsPerUnit)
	// Released participants are not counted.
	assert.Equal(t, 1, view.ParticipantCount)
}

func TestGetCommitmentsRequiresOrganizer(t *testing.T) {
	store := NewMemoryLedgerStore()
	gb := seedGroupBuy(store, 10, 0, testNow.Add(time.Hour))
	svc := newTestGroupBuyService(store, defaultTestConfig())

	_, err := svc.Join(context.Background(), gb.ID, uuid.New(), 2)
	require.NoError(t, err)

	commitments, err := svc.GetCommitments(context.Background(), gb.ID, gb.OrganizerID)
	require.NoError(t, err)
	assert.Len(t, commitments, 1)

	_, err = svc.GetCommitments(context.Background(), gb.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotOrganizer)
}
