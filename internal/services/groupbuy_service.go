// internal/services/groupbuy_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lapakwarga/lapakwarga-backend/internal/config"
	"github.com/lapakwarga/lapakwarga-backend/internal/models"
	"github.com/lapakwarga/lapakwarga-backend/internal/utils"
)

// Typed coordinator rejections. Each maps to a stable reason code at the API
// boundary; none of them is retried internally.
var (
	ErrClosed          = errors.New("group buy is closed")
	ErrFull            = errors.New("group buy is full")
	ErrExceedsCapacity = errors.New("quantity exceeds remaining capacity")
	ErrAlreadyJoined   = errors.New("participant already holds a commitment")
	ErrNotJoined       = errors.New("participant has no active commitment")
	ErrContention      = errors.New("group buy is under heavy contention")
	ErrNotOrganizer    = errors.New("only the organizer may perform this action")
)

// Admission is the outcome of a successful join.
type Admission struct {
	ConfirmedQuantity int                   `json:"confirmed_quantity"`
	CommittedQuantity int                   `json:"committed_quantity"`
	TargetQuantity    int                   `json:"target_quantity"`
	LifecycleState    models.LifecycleState `json:"lifecycle_state"`
	Version           int64                 `json:"version"`
}

// Release is the outcome of a successful leave.
type Release struct {
	ReleasedQuantity  int   `json:"released_quantity"`
	CommittedQuantity int   `json:"committed_quantity"`
	Version           int64 `json:"version"`
}

// GroupBuyView is the read model assembled by the query facade: the ledger
// row with its effective lifecycle state, derived pricing, and remaining
// capacity. Building it never writes.
type GroupBuyView struct {
	models.GroupBuy
	Pricing           PricingView `json:"pricing"`
	ProgressPercent   float64     `json:"progress_percent"`
	RemainingCapacity int         `json:"remaining_capacity"`
	ParticipantCount  int         `json:"participant_count"`
}

type CreateGroupBuyRequest struct {
	ListingID         *uuid.UUID `json:"listing_id,omitempty"`
	Title             string     `json:"title" validate:"required,min=3,max=255"`
	Description       string     `json:"description" validate:"required,min=10"`
	Category          string     `json:"category" validate:"required"`
	ImageURL          string     `json:"image_url,omitempty"`
	UnitPrice         float64    `json:"unit_price" validate:"required,gt=0"`
	OriginalUnitPrice *float64   `json:"original_unit_price,omitempty" validate:"omitempty,gt=0"`
	Unit              string     `json:"unit,omitempty"`
	TargetQuantity    int        `json:"target_quantity" validate:"required,min=1"`
	Deadline          time.Time  `json:"deadline" validate:"required"`
}

type GroupBuySearchParams struct {
	utils.PaginationParams
	OrganizerID *uuid.UUID             `json:"organizer_id,omitempty"`
	State       *models.LifecycleState `json:"state,omitempty"`
}

// GroupBuyService is the capacity coordinator: the only component that grows
// or shrinks committed quantity. Admission decisions are computed from a
// snapshot and committed with compare-and-swap; a version conflict re-runs
// the whole computation against a fresh read, bounded by the retry budget.
type GroupBuyService struct {
	db            *gorm.DB
	ledger        LedgerStore
	lifecycle     *LifecycleService
	cfg           config.GroupBuyConfig
	notifications *NotificationService
	now           func() time.Time
}

func NewGroupBuyService(db *gorm.DB, ledger LedgerStore, lifecycle *LifecycleService, cfg config.GroupBuyConfig, notifications *NotificationService) *GroupBuyService {
	return &GroupBuyService{
		db:            db,
		ledger:        ledger,
		lifecycle:     lifecycle,
		cfg:           cfg,
		notifications: notifications,
		now:           time.Now,
	}
}

func (s *GroupBuyService) CreateGroupBuy(organizerID uuid.UUID, req *CreateGroupBuyRequest) (*models.GroupBuy, error) {
	// Validate request
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if req.OriginalUnitPrice != nil && req.UnitPrice >= *req.OriginalUnitPrice {
		return nil, errors.New("unit price must be below the original price")
	}

	if !req.Deadline.After(s.now()) {
		return nil, errors.New("deadline must be in the future")
	}

	// Verify organizer exists and is active
	var organizer models.User
	if err := s.db.First(&organizer, "id = ?", organizerID).Error; err != nil {
		return nil, fmt.Errorf("organizer not found: %w", err)
	}

	if organizer.Status != models.UserStatusActive {
		return nil, errors.New("organizer account is not active")
	}

	if req.ListingID != nil {
		var listing models.Listing
		if err := s.db.First(&listing, "id = ?", *req.ListingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errors.New("listing not found")
			}
			return nil, fmt.Errorf("database error: %w", err)
		}
	}

	groupBuy := &models.GroupBuy{
		BaseModel:         models.BaseModel{ID: uuid.New()},
		OrganizerID:       organizerID,
		ListingID:         req.ListingID,
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		ImageURL:          req.ImageURL,
		UnitPrice:         req.UnitPrice,
		OriginalUnitPrice: req.OriginalUnitPrice,
		Unit:              req.Unit,
		TargetQuantity:    req.TargetQuantity,
		CommittedQuantity: 0,
		Deadline:          req.Deadline,
		LifecycleState:    models.LifecycleStateActive,
		Version:           1,
	}

	if err := s.db.Create(groupBuy).Error; err != nil {
		return nil, fmt.Errorf("failed to create group buy: %w", err)
	}

	return groupBuy, nil
}

// GetGroupBuy is the query facade. The lifecycle state in the returned view
// is evaluated against the current clock, so reads reflect a due resolution
// even before the background runner has ticked, without triggering a write.
func (s *GroupBuyService) GetGroupBuy(ctx context.Context, groupBuyID uuid.UUID) (*GroupBuyView, error) {
	snap, err := s.ledger.Snapshot(ctx, groupBuyID)
	if err != nil {
		return nil, err
	}

	gb := snap.GroupBuy
	gb.LifecycleState = EvaluateLifecycle(&gb, s.now(), s.cfg.EarlySuccess)

	participants := 0
	for _, c := range snap.Commitments {
		if c.State == models.CommitmentStateHeld {
			participants++
		}
	}

	pricing := DerivePricing(&gb)

	return &GroupBuyView{
		GroupBuy:          gb,
		Pricing:           pricing,
		ProgressPercent:   pricing.ProgressPercent,
		RemainingCapacity: gb.RemainingCapacity(),
		ParticipantCount:  participants,
	}, nil
}

func (s *GroupBuyService) SearchGroupBuys(params GroupBuySearchParams) ([]models.GroupBuy, int64, error) {
	query := s.db.Model(&models.GroupBuy{}).Preload("Organizer")

	if params.OrganizerID != nil {
		query = query.Where("organizer_id = ?", *params.OrganizerID)
	}

	if params.State != nil {
		query = query.Where("lifecycle_state = ?", *params.State)
	} else {
		// Default to open campaigns only
		query = query.Where("lifecycle_state = ?", models.LifecycleStateActive)
	}

	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}

	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count group buys: %w", err)
	}

	// Apply sorting and pagination
	allowedSortFields := []string{"created_at", "deadline", "unit_price", "committed_quantity", "target_quantity"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)

	var groupBuys []models.GroupBuy
	if err := query.Find(&groupBuys).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch group buys: %w", err)
	}

	return groupBuys, total, nil
}

// Join admits a participant into a group buy. The committed quantity after a
// successful join never exceeds the target; that invariant is what the
// compare-and-swap loop exists to protect.
func (s *GroupBuyService) Join(ctx context.Context, groupBuyID, participantID uuid.UUID, quantity int) (*Admission, error) {
	if quantity <= 0 {
		return nil, errors.New("quantity must be a positive integer")
	}

	var admission *Admission

	operation := func() error {
		snap, err := s.ledger.Snapshot(ctx, groupBuyID)
		if err != nil {
			return backoff.Permanent(err)
		}

		gb := snap.GroupBuy

		// A due-but-unticked group buy is already closed for admission.
		if EvaluateLifecycle(&gb, s.now(), s.cfg.EarlySuccess) != models.LifecycleStateActive {
			return backoff.Permanent(ErrClosed)
		}

		for _, c := range snap.Commitments {
			if c.ParticipantID == participantID && c.State == models.CommitmentStateHeld {
				return backoff.Permanent(ErrAlreadyJoined)
			}
		}

		available := gb.TargetQuantity - gb.CommittedQuantity
		if available <= 0 {
			return backoff.Permanent(ErrFull)
		}

		confirmed := quantity
		if quantity > available {
			if s.cfg.OverflowPolicy == config.OverflowPolicyReject {
				return backoff.Permanent(ErrExceedsCapacity)
			}
			confirmed = available
		}

		newTotal := gb.CommittedQuantity + confirmed
		now := s.now()

		updated, err := s.ledger.CommitAtomic(ctx, groupBuyID, gb.Version, LedgerMutation{
			CommittedQuantity: &newTotal,
			Commitment: &models.Commitment{
				GroupBuyID:    groupBuyID,
				ParticipantID: participantID,
				Quantity:      confirmed,
				State:         models.CommitmentStateHeld,
				CommittedAt:   now,
			},
		})
		if errors.Is(err, ErrVersionConflict) {
			return err // retryable: re-read and recompute
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		admission = &Admission{
			ConfirmedQuantity: confirmed,
			CommittedQuantity: updated.CommittedQuantity,
			TargetQuantity:    updated.TargetQuantity,
			LifecycleState:    EvaluateLifecycle(updated, s.now(), s.cfg.EarlySuccess),
			Version:           updated.Version,
		}

		return nil
	}

	if err := backoff.Retry(operation, s.retryBackoff(ctx)); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, ErrContention
		}
		return nil, err
	}

	// Resolve promptly when this join filled the target instead of waiting
	// for the next runner tick.
	if admission.LifecycleState == models.LifecycleStateSucceeded && s.lifecycle != nil {
		go func() {
			if _, err := s.lifecycle.Apply(context.Background(), groupBuyID); err != nil {
				// The runner will retry on its next tick.
				_ = err
			}
		}()
	}

	return admission, nil
}

// Leave withdraws a participant's held commitment. Only legal while the
// group buy is still active; after resolution the commitment set is
// immutable history so settlement stays deterministic.
func (s *GroupBuyService) Leave(ctx context.Context, groupBuyID, participantID uuid.UUID) (*Release, error) {
	var release *Release

	operation := func() error {
		snap, err := s.ledger.Snapshot(ctx, groupBuyID)
		if err != nil {
			return backoff.Permanent(err)
		}

		gb := snap.GroupBuy
		if EvaluateLifecycle(&gb, s.now(), s.cfg.EarlySuccess) != models.LifecycleStateActive {
			return backoff.Permanent(ErrClosed)
		}

		var held *models.Commitment
		for i := range snap.Commitments {
			c := &snap.Commitments[i]
			if c.ParticipantID == participantID && c.State == models.CommitmentStateHeld {
				held = c
				break
			}
		}
		if held == nil {
			return backoff.Permanent(ErrNotJoined)
		}

		newTotal := gb.CommittedQuantity - held.Quantity
		if newTotal < 0 {
			newTotal = 0
		}
		now := s.now()

		updated, err := s.ledger.CommitAtomic(ctx, groupBuyID, gb.Version, LedgerMutation{
			CommittedQuantity: &newTotal,
			Commitment: &models.Commitment{
				ID:            held.ID,
				GroupBuyID:    groupBuyID,
				ParticipantID: participantID,
				Quantity:      held.Quantity,
				State:         models.CommitmentStateReleased,
				CommittedAt:   held.CommittedAt,
				ReleasedAt:    &now,
			},
		})
		if errors.Is(err, ErrVersionConflict) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		release = &Release{
			ReleasedQuantity:  held.Quantity,
			CommittedQuantity: updated.CommittedQuantity,
			Version:           updated.Version,
		}

		return nil
	}

	if err := backoff.Retry(operation, s.retryBackoff(ctx)); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, ErrContention
		}
		return nil, err
	}

	return release, nil
}

// Cancel is the organizer's explicit early termination, available only while
// the group buy is still active.
func (s *GroupBuyService) Cancel(ctx context.Context, groupBuyID, organizerID uuid.UUID) (*models.GroupBuy, error) {
	var cancelled *models.GroupBuy

	operation := func() error {
		snap, err := s.ledger.Snapshot(ctx, groupBuyID)
		if err != nil {
			return backoff.Permanent(err)
		}

		gb := snap.GroupBuy
		if gb.OrganizerID != organizerID {
			return backoff.Permanent(ErrNotOrganizer)
		}
		if gb.LifecycleState != models.LifecycleStateActive {
			return backoff.Permanent(ErrClosed)
		}

		state := models.LifecycleStateCancelled
		now := s.now()

		updated, err := s.ledger.CommitAtomic(ctx, groupBuyID, gb.Version, LedgerMutation{
			LifecycleState: &state,
			ResolvedAt:     &now,
		})
		if errors.Is(err, ErrVersionConflict) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		cancelled = updated
		return nil
	}

	if err := backoff.Retry(operation, s.retryBackoff(ctx)); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, ErrContention
		}
		return nil, err
	}

	if s.notifications != nil {
		go s.notifications.SendGroupBuyResolved(cancelled)
	}

	return cancelled, nil
}

// GetCommitments returns a group buy's commitment rows for its organizer.
func (s *GroupBuyService) GetCommitments(ctx context.Context, groupBuyID, organizerID uuid.UUID) ([]models.Commitment, error) {
	snap, err := s.ledger.Snapshot(ctx, groupBuyID)
	if err != nil {
		return nil, err
	}

	if snap.GroupBuy.OrganizerID != organizerID {
		return nil, ErrNotOrganizer
	}

	return snap.Commitments, nil
}

func (s *GroupBuyService) GetUserCommitments(participantID uuid.UUID, params utils.PaginationParams) ([]models.Commitment, int64, error) {
	query := s.db.Model(&models.Commitment{}).
		Where("participant_id = ?", participantID).
		Preload("GroupBuy")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count commitments: %w", err)
	}

	query = utils.ApplyPagination(query.Order("committed_at DESC"), params)

	var commitments []models.Commitment
	if err := query.Find(&commitments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch commitments: %w", err)
	}

	return commitments, total, nil
}

// retryBackoff bounds the version-conflict retry loop. Intervals are short:
// the conflict window on a single row is tiny and callers expect a prompt
// answer either way.
func (s *GroupBuyService) retryBackoff(ctx context.Context) backoff.BackOffContext {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 5 * time.Millisecond
	expo.MaxInterval = 50 * time.Millisecond

	retries := s.cfg.JoinRetries
	if retries < 1 {
		retries = 5
	}

	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(retries)), ctx)
}
