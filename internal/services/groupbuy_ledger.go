// internal/services/groupbuy_ledger.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lapakwarga/lapakwarga-backend/internal/models"
)

var (
	// ErrVersionConflict means the stored version moved past the version the
	// caller read. The caller re-reads and retries the whole computation.
	ErrVersionConflict = errors.New("group buy version conflict")

	ErrGroupBuyNotFound = errors.New("group buy not found")
)

// LedgerSnapshot is a consistent read of one group buy and its commitments.
type LedgerSnapshot struct {
	GroupBuy    models.GroupBuy
	Commitments []models.Commitment
}

// LedgerMutation describes the row changes applied in one atomic commit.
// Nil fields are left untouched. The store applies the mutation only if the
// stored version still matches the version the caller read, and bumps the
// version on success. The store performs no business validation.
type LedgerMutation struct {
	CommittedQuantity *int
	LifecycleState    *models.LifecycleState
	ResolvedAt        *time.Time
	Commitment        *models.Commitment
}

// LedgerStore is the authoritative record of group buys and commitments.
// All writes to committed quantity and lifecycle state go through
// CommitAtomic; no other component writes these columns.
type LedgerStore interface {
	Snapshot(ctx context.Context, groupBuyID uuid.UUID) (*LedgerSnapshot, error)
	CommitAtomic(ctx context.Context, groupBuyID uuid.UUID, expectedVersion int64, mut LedgerMutation) (*models.GroupBuy, error)
	DueForResolution(ctx context.Context, now time.Time, earlySuccess bool) ([]uuid.UUID, error)
}

// GormLedgerStore persists the ledger through GORM. The compare-and-swap is a
// single UPDATE guarded by the version column; zero rows affected with an
// existing row means another writer committed first.
type GormLedgerStore struct {
	db *gorm.DB
}

func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

func (s *GormLedgerStore) Snapshot(ctx context.Context, groupBuyID uuid.UUID) (*LedgerSnapshot, error) {
	var gb models.GroupBuy
	if err := s.db.WithContext(ctx).First(&gb, "id = ?", groupBuyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupBuyNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	var commitments []models.Commitment
	if err := s.db.WithContext(ctx).
		Where("group_buy_id = ?", groupBuyID).
		Order("committed_at ASC").
		Find(&commitments).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch commitments: %w", err)
	}

	return &LedgerSnapshot{GroupBuy: gb, Commitments: commitments}, nil
}

func (s *GormLedgerStore) CommitAtomic(ctx context.Context, groupBuyID uuid.UUID, expectedVersion int64, mut LedgerMutation) (*models.GroupBuy, error) {
	var updated models.GroupBuy

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		}
		if mut.CommittedQuantity != nil {
			updates["committed_quantity"] = *mut.CommittedQuantity
		}
		if mut.LifecycleState != nil {
			updates["lifecycle_state"] = *mut.LifecycleState
		}
		if mut.ResolvedAt != nil {
			updates["resolved_at"] = *mut.ResolvedAt
		}

		res := tx.Model(&models.GroupBuy{}).
			Where("id = ? AND version = ?", groupBuyID, expectedVersion).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update group buy: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.GroupBuy{}).Where("id = ?", groupBuyID).Count(&count).Error; err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			if count == 0 {
				return ErrGroupBuyNotFound
			}
			return ErrVersionConflict
		}

		if mut.Commitment != nil {
			c := mut.Commitment
			if c.ID == uuid.Nil {
				c.ID = uuid.New()
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "group_buy_id"}, {Name: "participant_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"quantity", "state", "committed_at", "released_at", "updated_at",
				}),
			}).Create(c).Error; err != nil {
				return fmt.Errorf("failed to upsert commitment: %w", err)
			}
		}

		if err := tx.First(&updated, "id = ?", groupBuyID).Error; err != nil {
			return fmt.Errorf("failed to reload group buy: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return &updated, nil
}

func (s *GormLedgerStore) DueForResolution(ctx context.Context, now time.Time, earlySuccess bool) ([]uuid.UUID, error) {
	query := s.db.WithContext(ctx).Model(&models.GroupBuy{}).
		Where("lifecycle_state = ?", models.LifecycleStateActive)

	if earlySuccess {
		query = query.Where("deadline <= ? OR committed_quantity >= target_quantity", now)
	} else {
		query = query.Where("deadline <= ?", now)
	}

	var ids []uuid.UUID
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list due group buys: %w", err)
	}

	return ids, nil
}
