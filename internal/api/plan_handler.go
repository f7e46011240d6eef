package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"peakform/coach-app/internal/domain"
	"peakform/coach-app/internal/repository"
	"peakform/coach-app/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlanHandler exposes the weekly plan lifecycle over HTTP.
type PlanHandler struct {
	planService service.PlanService
	contextRepo repository.ContextItemRepository
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(planService service.PlanService, contextRepo repository.ContextItemRepository) *PlanHandler {
	return &PlanHandler{planService: planService, contextRepo: contextRepo}
}

// --- Request Structs ---

type GenerateRequest struct {
	Draft           bool   `json:"draft"`
	PlanningContext string `json:"planningContext"`
	StartFromDate   string `json:"startFromDate"` // YYYY-MM-DD, optional
}

type CompleteRequest struct {
	CompletedDetail domain.SessionDetail `json:"completedDetail"`
}

type AdaptSessionRequest struct {
	Action  string               `json:"action" binding:"required,oneof=skip reschedule modify"`
	NewDate string               `json:"newDate"`
	Patch   domain.SessionDetail `json:"patch"`
	Title   *string              `json:"title"`
}

type ExtraSessionRequest struct {
	Domain string               `json:"domain" binding:"required"`
	Title  string               `json:"title" binding:"required"`
	Date   string               `json:"date"`
	Detail domain.SessionDetail `json:"detail"`
}

type ContextItemRequest struct {
	Category  string `json:"category" binding:"required,oneof=physical environment equipment schedule"`
	Scope     string `json:"scope" binding:"required,oneof=permanent temporary"`
	Text      string `json:"text" binding:"required"`
	ExpiresAt string `json:"expiresAt"` // YYYY-MM-DD, optional
}

// --- Handler Methods ---

// GetCurrentPlan returns the active plan for the current week.
func (h *PlanHandler) GetCurrentPlan(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	view, err := h.planService.ActivePlan(c.Request.Context(), userID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, service.ErrNoActivePlan) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to load plan")
		}
		return
	}
	c.JSON(http.StatusOK, view)
}

// GeneratePlan builds a new weekly plan for the current week.
func (h *PlanHandler) GeneratePlan(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	opts := service.GenerateOptions{Draft: req.Draft, PlanningContext: req.PlanningContext}
	weekStart := time.Now().UTC()
	if req.StartFromDate != "" {
		from, err := time.Parse("2006-01-02", req.StartFromDate)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "startFromDate must be YYYY-MM-DD")
			return
		}
		opts.StartFromDate = &from
		weekStart = from
	}

	result, err := h.planService.Generate(c.Request.Context(), userID, weekStart, opts)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			abortWithError(c, http.StatusNotFound, err.Error())
		} else if errors.Is(err, service.ErrStartDateOutsideWeek) {
			abortWithError(c, http.StatusBadRequest, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to generate plan")
		}
		return
	}
	if !result.Success {
		// Upstream generation failed; nothing was persisted.
		c.JSON(http.StatusBadGateway, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ConfirmPlan activates a draft plan.
func (h *PlanHandler) ConfirmPlan(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	planID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid plan ID format")
		return
	}

	plan, err := h.planService.Confirm(c.Request.Context(), userID, planID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPlanNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrPlanNotDraft):
			abortWithError(c, http.StatusConflict, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to confirm plan")
		}
		return
	}
	c.JSON(http.StatusOK, plan)
}

// CompleteSession marks a session as done.
func (h *PlanHandler) CompleteSession(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	sessionID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid session ID format")
		return
	}
	// The body is optional, completion detail may be omitted entirely.
	var req CompleteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
			return
		}
	}

	result, err := h.planService.Complete(c.Request.Context(), userID, sessionID, req.CompletedDetail)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrSessionFinal):
			abortWithError(c, http.StatusConflict, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to complete session")
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// AdaptSession skips, reschedules or modifies a session.
func (h *PlanHandler) AdaptSession(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	sessionID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid session ID format")
		return
	}
	var req AdaptSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	adapt := service.AdaptRequest{
		Action: service.AdaptAction(req.Action),
		Patch:  req.Patch,
		Title:  req.Title,
	}
	if req.NewDate != "" {
		newDate, err := time.Parse("2006-01-02", req.NewDate)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "newDate must be YYYY-MM-DD")
			return
		}
		adapt.NewDate = &newDate
	}

	sess, err := h.planService.Adapt(c.Request.Context(), userID, sessionID, adapt)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			abortWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrSessionFinal), errors.Is(err, service.ErrRescheduleNeedsDate), errors.Is(err, service.ErrUnknownAdaptAction):
			abortWithError(c, http.StatusBadRequest, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to adapt session")
		}
		return
	}
	c.JSON(http.StatusOK, sess)
}

// LogExtraSession records an unplanned activity.
func (h *PlanHandler) LogExtraSession(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	var req ExtraSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	var date *time.Time
	if req.Date != "" {
		d, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = &d
	}

	sess, err := h.planService.LogExtra(c.Request.Context(), userID, domain.Domain(req.Domain), req.Title, date, req.Detail)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDomain) {
			abortWithError(c, http.StatusBadRequest, err.Error())
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to log session")
		}
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// GetProgress returns the weekly completion summary.
func (h *PlanHandler) GetProgress(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	progress, err := h.planService.Progress(c.Request.Context(), userID, time.Now().UTC())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to load progress")
		return
	}
	c.JSON(http.StatusOK, progress)
}

// GetPlanHistory lists superseded plans with presigned snapshot download URLs.
func (h *PlanHandler) GetPlanHistory(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	entries, err := h.planService.History(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to load plan history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": entries})
}

// ListContextItems returns the remembered facts about the user.
func (h *PlanHandler) ListContextItems(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	items, err := h.contextRepo.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to load context items")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// AddContextItem stores a fact future plans should respect.
func (h *PlanHandler) AddContextItem(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	var req ContextItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	item := &domain.UserContextItem{
		UserID:   userID,
		Category: domain.ContextCategory(req.Category),
		Scope:    domain.ContextScope(req.Scope),
		Source:   domain.SourceConversation,
		Text:     req.Text,
	}
	if req.ExpiresAt != "" {
		expires, err := time.Parse("2006-01-02", req.ExpiresAt)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "expiresAt must be YYYY-MM-DD")
			return
		}
		item.ExpiresAt = &expires
	}

	id, err := h.contextRepo.Create(c.Request.Context(), item)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to store context item")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id.Hex()})
}

// DeleteContextItem removes a remembered fact.
func (h *PlanHandler) DeleteContextItem(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	itemID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid item ID format")
		return
	}
	if err := h.contextRepo.Delete(c.Request.Context(), itemID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			abortWithError(c, http.StatusNotFound, "Context item not found")
		} else {
			abortWithError(c, http.StatusInternalServerError, "Failed to delete context item")
		}
		return
	}
	c.Status(http.StatusNoContent)
}
