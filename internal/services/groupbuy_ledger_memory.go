// internal/services/groupbuy_ledger_memory.go
package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lapakwarga/lapakwarga-backend/internal/models"
)

// MemoryLedgerStore is a mutex-guarded in-memory ledger with the same
// compare-and-swap contract as the GORM store. It backs the concurrency
// property tests and local development without Postgres.
type MemoryLedgerStore struct {
	mu          sync.RWMutex
	groupBuys   map[uuid.UUID]models.GroupBuy
	commitments map[uuid.UUID]map[uuid.UUID]models.Commitment // groupBuyID -> participantID
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		groupBuys:   make(map[uuid.UUID]models.GroupBuy),
		commitments: make(map[uuid.UUID]map[uuid.UUID]models.Commitment),
	}
}

// Put seeds or replaces a group buy row. Intended for setup paths; runtime
// mutation still goes through CommitAtomic.
func (s *MemoryLedgerStore) Put(gb models.GroupBuy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gb.Version == 0 {
		gb.Version = 1
	}
	s.groupBuys[gb.ID] = gb
	if _, ok := s.commitments[gb.ID]; !ok {
		s.commitments[gb.ID] = make(map[uuid.UUID]models.Commitment)
	}
}

func (s *MemoryLedgerStore) Snapshot(ctx context.Context, groupBuyID uuid.UUID) (*LedgerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gb, ok := s.groupBuys[groupBuyID]
	if !ok {
		return nil, ErrGroupBuyNotFound
	}

	snap := &LedgerSnapshot{GroupBuy: gb}
	for _, c := range s.commitments[groupBuyID] {
		snap.Commitments = append(snap.Commitments, c)
	}

	return snap, nil
}

func (s *MemoryLedgerStore) CommitAtomic(ctx context.Context, groupBuyID uuid.UUID, expectedVersion int64, mut LedgerMutation) (*models.GroupBuy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gb, ok := s.groupBuys[groupBuyID]
	if !ok {
		return nil, ErrGroupBuyNotFound
	}
	if gb.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	if mut.CommittedQuantity != nil {
		gb.CommittedQuantity = *mut.CommittedQuantity
	}
	if mut.LifecycleState != nil {
		gb.LifecycleState = *mut.LifecycleState
	}
	if mut.ResolvedAt != nil {
		gb.ResolvedAt = mut.ResolvedAt
	}
	gb.Version++
	gb.UpdatedAt = time.Now()
	s.groupBuys[groupBuyID] = gb

	if mut.Commitment != nil {
		c := *mut.Commitment
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if existing, ok := s.commitments[groupBuyID][c.ParticipantID]; ok {
			c.ID = existing.ID
			c.CreatedAt = existing.CreatedAt
		}
		c.UpdatedAt = time.Now()
		s.commitments[groupBuyID][c.ParticipantID] = c
	}

	return &gb, nil
}

func (s *MemoryLedgerStore) DueForResolution(ctx context.Context, now time.Time, earlySuccess bool) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uuid.UUID
	for id, gb := range s.groupBuys {
		if gb.LifecycleState != models.LifecycleStateActive {
			continue
		}
		if !gb.Deadline.After(now) || (earlySuccess && gb.CommittedQuantity >= gb.TargetQuantity) {
			ids = append(ids, id)
		}
	}

	return ids, nil
}
