// internal/services/groupbuy_ledger_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lapakwarga/lapakwarga-backend/internal/models"
)

// The ledger schema is created with raw DDL because the production column
// defaults are Postgres expressions SQLite cannot parse.
const ledgerTestSchema = `
CREATE TABLE group_buys (
	id text PRIMARY KEY,
	created_at datetime,
	updated_at datetime,
	deleted_at datetime,
	organizer_id text NOT NULL,
	listing_id text,
	title text NOT NULL,
	description text,
	category text,
	image_url text,
	unit_price real NOT NULL,
	original_unit_price real,
	unit text,
	target_quantity integer NOT NULL,
	committed_quantity integer NOT NULL DEFAULT 0,
	deadline datetime NOT NULL,
	lifecycle_state text NOT NULL DEFAULT 'active',
	resolved_at datetime,
	version integer NOT NULL DEFAULT 1
);
CREATE TABLE commitments (
	id text PRIMARY KEY,
	group_buy_id text NOT NULL,
	participant_id text NOT NULL,
	quantity integer NOT NULL,
	state text NOT NULL DEFAULT 'held',
	committed_at datetime,
	released_at datetime,
	created_at datetime,
	updated_at datetime,
	UNIQUE (group_buy_id, participant_id)
);
`

func newLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.Exec(ledgerTestSchema).Error)

	return db
}

func createLedgerGroupBuy(t *testing.T, db *gorm.DB, target, committed int, deadline time.Time) models.GroupBuy {
	t.Helper()

	gb := models.GroupBuy{
		BaseModel:         models.BaseModel{ID: uuid.New()},
		OrganizerID:       uuid.New(),
		Title:             "Telur ayam 1 peti",
		UnitPrice:         58000,
		TargetQuantity:    target,
		CommittedQuantity: committed,
		Deadline:          deadline,
		LifecycleState:    models.LifecycleStateActive,
		Version:           1,
	}
	require.NoError(t, db.Create(&gb).Error)
	return gb
}

func TestGormLedgerStoreSnapshot(t *testing.T) {
	db := newLedgerTestDB(t)
	store := NewGormLedgerStore(db)
	ctx := context.Background()

	gb := createLedgerGroupBuy(t, db, 10, 0, time.Now().Add(time.Hour))

	snap, err := store.Snapshot(ctx, gb.ID)
	require.NoError(t, err)
	assert.Equal(t, gb.ID, snap.GroupBuy.ID)
	assert.Equal(t, int64(1), snap.GroupBuy.Version)
	assert.Empty(t, snap.Commitments)

	_, err = store.Snapshot(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrGroupBuyNotFound)
}

func TestGormLedgerStoreCommitAtomic(t *testing.T) {
	db := newLedgerTestDB(t)
	store := NewGormLedgerStore(db)
	ctx := context.Background()

	gb := createLedgerGroupBuy(t, db, 10, 0, time.Now().Add(time.Hour))

	committed := 4
	updated, err := store.CommitAtomic(ctx, gb.ID, 1, LedgerMutation{
		CommittedQuantity: &committed,
		Commitment: &models.Commitment{
			GroupBuyID:    gb.ID,
			ParticipantID: uuid.New(),
			Quantity:      4,
			State:         models.CommitmentStateHeld,
			CommittedAt:   time.Now(),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.CommittedQuantity)
	assert.Equal(t, int64(2), updated.Version)

	snap, err := store.Snapshot(ctx, gb.ID)
	require.NoError(t, err)
	require.Len(t, snap.Commitments, 1)
	assert.Equal(t, 4, snap.Commitments[0].Quantity)
}

func TestGormLedgerStoreVersionConflict(t *testing.T) {
	db := newLedgerTestDB(t)
	store := NewGormLedgerStore(db)
	ctx := context.Background()

	gb := createLedgerGroupBuy(t, db, 10, 0, time.Now().Add(time.Hour))

	committed := 2
	_, err := store.CommitAtomic(ctx, gb.ID, 1, LedgerMutation{CommittedQuantity: &committed})
	require.NoError(t, err)

	// A second writer holding the stale version loses.
	stale := 5
	_, err = store.CommitAtomic(ctx, gb.ID, 1, LedgerMutation{CommittedQuantity: &stale})
	assert.ErrorIs(t, err, ErrVersionConflict)

	// The losing write left no trace.
	snap, err := store.Snapshot(ctx, gb.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.GroupBuy.CommittedQuantity)
	assert.Equal(t, int64(2), snap.GroupBuy.Version)
}

func TestGormLedgerStoreCommitUnknownRow(t *testing.T) {
	db := newLedgerTestDB(t)
	store := NewGormLedgerStore(db)

	committed := 1
	_, err := store.CommitAtomic(context.Background(), uuid.New(), 1, LedgerMutation{CommittedQuantity: &committed})
	assert.ErrorIs(t, err, ErrGroupBuyNotFound)
}

func TestGormLedgerStoreCommitmentUpsert(t *testing.T) {
	db := newLedgerTestDB(t)
	store := NewGormLedgerStore(db)
	ctx := context.Background()

	gb := createLedgerGroupBuy(t, db, 10, 0, time.Now().Add(time.Hour))
	participant := uuid.New()

	committed := 3
	_, err := store.CommitAtomic(ctx, gb.ID, 1, LedgerMutation{
		CommittedQuantity: &committed,
		Commitment: &models.Commitment{
			GroupBuyID:    gb.ID,
			ParticipantID: participant,
			Quantity:      3,
			State:         models.CommitmentStateHeld,
			CommittedAt:   time.Now(),
		},
	})
	require.NoError(t, err)

	// Releasing updates the same row in place.
	released := 0
	releasedAt := time.Now()
	_, err = store.CommitAtomic(ctx, gb.ID, 2, LedgerMutation{
		CommittedQuantity: &released,
		Commitment: &models.Commitment{
			GroupBuyID:    gb.ID,
			ParticipantID: participant,
			Quantity:      3,
			State:         models.CommitmentStateReleased,
			ReleasedAt:    &releasedAt,
		},
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Commitment{}).Where("group_buy_id = ?", gb.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	snap, err := store.Snapshot(ctx, gb.ID)
	require.NoError(t, err)
	require.Len(t, snap.Commitments, 1)
	assert.Equal(t, models.CommitmentStateReleased, snap.Commitments[0].State)
	assert.NotNil(t, snap.Commitments[0].ReleasedAt)
}

func TestGormLedgerStoreLifecycleMutation(t *testing.T) {
	db := newLedgerTestDB(t)
	store := NewGormLedgerStore(db)
	ctx := context.Background()

	gb := createLedgerGroupBuy(t, db, 10, 10, time.Now().Add(time.Hour))

	state := models.LifecycleStateSucceeded
	resolvedAt := time.Now()
	updated, err := store.CommitAtomic(ctx, gb.ID, 1, LedgerMutation{
		LifecycleState: &state,
		ResolvedAt:     &resolvedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleStateSucceeded, updated.LifecycleState)
	assert.NotNil(t, updated.ResolvedAt)
	// Untouched fields survive a partial mutation.
	assert.Equal(t, 10, updated.CommittedQuantity)
}

func TestGormLedgerStoreDueForResolution(t *testing.T) {
	db := newLedgerTestDB(t)
	store := NewGormLedgerStore(db)
	ctx := context.Background()
	now := time.Now()

	due := createLedgerGroupBuy(t, db, 10, 0, now.Add(-time.Minute))
	full := createLedgerGroupBuy(t, db, 5, 5, now.Add(time.Hour))
	createLedgerGroupBuy(t, db, 10, 0, now.Add(time.Hour)) // still open

	ids, err := store.DueForResolution(ctx, now, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{due.ID, full.ID}, ids)

	ids, err = store.DueForResolution(ctx, now, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{due.ID}, ids)
}
