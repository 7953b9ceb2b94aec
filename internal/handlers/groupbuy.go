// internal/handlers/groupbuy.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lapakwarga/lapakwarga-backend/internal/i18n"
	"github.com/lapakwarga/lapakwarga-backend/internal/models"
	"github.com/lapakwarga/lapakwarga-backend/internal/services"
	"github.com/lapakwarga/lapakwarga-backend/internal/utils"
)

type GroupBuyHandler struct {
	groupBuyService *services.GroupBuyService
}

func NewGroupBuyHandler(groupBuyService *services.GroupBuyService) *GroupBuyHandler {
	return &GroupBuyHandler{
		groupBuyService: groupBuyService,
	}
}

// GET /group-buys
func (h *GroupBuyHandler) GetGroupBuys(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	searchParams := services.GroupBuySearchParams{
		PaginationParams: params,
	}

	if stateStr := c.Query("state"); stateStr != "" {
		state := models.LifecycleState(stateStr)
		searchParams.State = &state
	}

	if organizerIDStr := c.Query("organizer_id"); organizerIDStr != "" {
		if organizerID, err := uuid.Parse(organizerIDStr); err == nil {
			searchParams.OrganizerID = &organizerID
		}
	}

	groupBuys, total, err := h.groupBuyService.SearchGroupBuys(searchParams)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(groupBuys, total, params)
	utils.PaginatedResponse(c, result)
}

// POST /group-buys
func (h *GroupBuyHandler) CreateGroupBuy(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	organizerID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateGroupBuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	// Validate request
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	groupBuy, err := h.groupBuyService.CreateGroupBuy(organizerID, &req)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyGroupBuyCreated),
		"group_buy": groupBuy,
	})
}

// GET /group-buys/:id
func (h *GroupBuyHandler) GetGroupBuy(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group buy ID", nil)
		return
	}

	view, err := h.groupBuyService.GetGroupBuy(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrGroupBuyNotFound) {
			utils.NotFoundResponse(c, i18n.KeyGroupBuyNotFound)
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"group_buy": view,
	})
}

// POST /group-buys/:id/join
func (h *GroupBuyHandler) Join(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group buy ID", nil)
		return
	}

	participantID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Quantity int `json:"quantity" validate:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	admission, err := h.groupBuyService.Join(c.Request.Context(), id, participantID, req.Quantity)
	if err != nil {
		h.respondAdmissionError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":            i18n.T(lang, i18n.KeyGroupBuyJoined),
		"confirmed_quantity": admission.ConfirmedQuantity,
		"committed_quantity": admission.CommittedQuantity,
		"target_quantity":    admission.TargetQuantity,
		"lifecycle_state":    admission.LifecycleState,
	})
}

// POST /group-buys/:id/leave
func (h *GroupBuyHandler) Leave(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group buy ID", nil)
		return
	}

	participantID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	release, err := h.groupBuyService.Leave(c.Request.Context(), id, participantID)
	if err != nil {
		h.respondAdmissionError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":            i18n.T(lang, i18n.KeyGroupBuyLeft),
		"released_quantity":  release.ReleasedQuantity,
		"committed_quantity": release.CommittedQuantity,
	})
}

// POST /group-buys/:id/cancel
func (h *GroupBuyHandler) Cancel(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group buy ID", nil)
		return
	}

	organizerID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	cancelled, err := h.groupBuyService.Cancel(c.Request.Context(), id, organizerID)
	if err != nil {
		if errors.Is(err, services.ErrNotOrganizer) {
			utils.ForbiddenResponse(c, err.Error())
			return
		}
		h.respondAdmissionError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyGroupBuyCancelled),
		"group_buy": cancelled,
	})
}

// GET /group-buys/:id/commitments
func (h *GroupBuyHandler) GetCommitments(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid group buy ID", nil)
		return
	}

	organizerID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	commitments, err := h.groupBuyService.GetCommitments(c.Request.Context(), id, organizerID)
	if err != nil {
		if errors.Is(err, services.ErrNotOrganizer) {
			utils.ForbiddenResponse(c, err.Error())
			return
		}
		if errors.Is(err, services.ErrGroupBuyNotFound) {
			utils.NotFoundResponse(c, i18n.KeyGroupBuyNotFound)
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"commitments": commitments,
	})
}

// GET /group-buys/mine/commitments
func (h *GroupBuyHandler) GetMyCommitments(c *gin.Context) {
	participantID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)

	commitments, total, err := h.groupBuyService.GetUserCommitments(participantID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(commitments, total, params)
	utils.PaginatedResponse(c, result)
}

// respondAdmissionError maps coordinator rejections to HTTP status codes with
// stable reason codes so clients can branch without parsing messages.
func (h *GroupBuyHandler) respondAdmissionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrGroupBuyNotFound):
		utils.NotFoundResponse(c, i18n.KeyGroupBuyNotFound)
	case errors.Is(err, services.ErrNotJoined):
		utils.NotFoundResponse(c, i18n.KeyCommitmentNotFound)
	case errors.Is(err, services.ErrFull):
		utils.ConflictResponse(c, "Full", err.Error())
	case errors.Is(err, services.ErrClosed):
		utils.ConflictResponse(c, "Closed", err.Error())
	case errors.Is(err, services.ErrExceedsCapacity):
		utils.ConflictResponse(c, "ExceedsCapacity", err.Error())
	case errors.Is(err, services.ErrAlreadyJoined):
		utils.ConflictResponse(c, "AlreadyJoined", err.Error())
	case errors.Is(err, services.ErrContention):
		utils.ConflictResponse(c, "Contention", err.Error())
	default:
		utils.BadRequestResponse(c, err.Error(), nil)
	}
}

func (h *GroupBuyHandler) currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return uuid.Nil, false
	}

	return userID, true
}
