// internal/services/lifecycle.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lapakwarga/lapakwarga-backend/internal/config"
	"github.com/lapakwarga/lapakwarga-backend/internal/models"
)

// EvaluateLifecycle maps (state, committed, target, deadline, now) to the
// state a group buy should be in. It is pure and idempotent: terminal states
// are returned unchanged, so evaluating repeatedly or concurrently can never
// double-transition.
//
// When the target is reached and the deadline passes in the same evaluation,
// the tie resolves to Succeeded. With earlySuccess enabled a full group buy
// resolves immediately; otherwise it stays Active until the deadline.
func EvaluateLifecycle(gb *models.GroupBuy, now time.Time, earlySuccess bool) models.LifecycleState {
	if gb.LifecycleState != models.LifecycleStateActive {
		return gb.LifecycleState
	}

	reachedTarget := gb.CommittedQuantity >= gb.TargetQuantity
	pastDeadline := !now.Before(gb.Deadline)

	if reachedTarget && (earlySuccess || pastDeadline) {
		return models.LifecycleStateSucceeded
	}
	if pastDeadline {
		return models.LifecycleStateFailed
	}

	return models.LifecycleStateActive
}

// LifecycleService owns every persisted lifecycle transition. Apply is safe
// to call concurrently from the runner and on-demand paths because the write
// is conditioned on the version read and the evaluation is idempotent.
type LifecycleService struct {
	ledger        LedgerStore
	cfg           config.GroupBuyConfig
	notifications *NotificationService
	now           func() time.Time
}

func NewLifecycleService(ledger LedgerStore, cfg config.GroupBuyConfig, notifications *NotificationService) *LifecycleService {
	return &LifecycleService{
		ledger:        ledger,
		cfg:           cfg,
		notifications: notifications,
		now:           time.Now,
	}
}

// Apply reads, evaluates with a single authoritative timestamp, and persists
// the transition if the evaluated state differs from the stored one. At most
// one transition is ever committed per group buy.
func (s *LifecycleService) Apply(ctx context.Context, groupBuyID uuid.UUID) (*models.GroupBuy, error) {
	for {
		snap, err := s.ledger.Snapshot(ctx, groupBuyID)
		if err != nil {
			return nil, err
		}

		gb := snap.GroupBuy
		next := EvaluateLifecycle(&gb, s.now(), s.cfg.EarlySuccess)
		if next == gb.LifecycleState {
			return &gb, nil
		}

		resolvedAt := s.now()
		updated, err := s.ledger.CommitAtomic(ctx, groupBuyID, gb.Version, LedgerMutation{
			LifecycleState: &next,
			ResolvedAt:     &resolvedAt,
		})
		if errors.Is(err, ErrVersionConflict) {
			// Another writer moved the row; re-read and re-evaluate.
			continue
		}
		if err != nil {
			return nil, err
		}

		logrus.WithFields(logrus.Fields{
			"group_buy_id": groupBuyID,
			"state":        next,
			"committed":    updated.CommittedQuantity,
			"target":       updated.TargetQuantity,
		}).Info("Group buy resolved")

		if s.notifications != nil {
			go s.notifications.SendGroupBuyResolved(updated)
		}

		return updated, nil
	}
}

// Run ticks on the configured interval and resolves every due group buy.
// It returns when the context is cancelled.
func (s *LifecycleService) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.TickInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logrus.WithField("interval", interval).Info("Lifecycle runner started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Lifecycle runner stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *LifecycleService) tick(ctx context.Context) {
	ids, err := s.ledger.DueForResolution(ctx, s.now(), s.cfg.EarlySuccess)
	if err != nil {
		logrus.WithError(err).Error("Failed to list due group buys")
		return
	}

	for _, id := range ids {
		if _, err := s.Apply(ctx, id); err != nil {
			logrus.WithError(err).WithField("group_buy_id", id).Error("Failed to resolve group buy")
		}
	}
}
