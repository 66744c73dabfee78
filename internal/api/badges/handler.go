// Package badges provides REST API handlers for activity recording and weekly awards.
package badges

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/storefront-badges/internal/models"
	"github.com/aimd54/storefront-badges/internal/service/badges"
	"github.com/aimd54/storefront-badges/internal/service/events"
	"github.com/aimd54/storefront-badges/pkg/logger"
)

// AwardService interface for award operations.
type AwardService interface {
	EvaluateSubject(ctx context.Context, subjectType string, subjectID uint) (*badges.EvaluationResult, error)
	EvaluateAll(ctx context.Context) (*badges.BatchResult, error)
	GetActiveAward(ctx context.Context, subjectType string, subjectID uint) (*models.Award, error)
	ListAwards(ctx context.Context, filter badges.AwardFilter) (*badges.AwardPage, error)
	AcknowledgeCelebration(ctx context.Context, awardID uint) error
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context) (*badges.Stats, error)
	Now() time.Time
}

// EventRecorder interface for activity recording.
type EventRecorder interface {
	RecordEvent(ctx context.Context, in events.Input) (*events.Result, error)
}

// Handler handles badge API requests.
type Handler struct {
	awards   AwardService
	recorder EventRecorder
	log      *logger.Logger
}

// NewHandler creates a new badge handler.
func NewHandler(awards *badges.Service, recorder *events.Recorder, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(awards, recorder, log)
}

// NewHandlerWithInterfaces creates a new badge handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(awards AwardService, recorder EventRecorder, log *logger.Logger) *Handler {
	return &Handler{
		awards:   awards,
		recorder: recorder,
		log:      log,
	}
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/events", h.RecordEvent)

	r.GET("/awards/:subjectType/:subjectId", h.GetAward)
	r.POST("/awards/:subjectType/:subjectId/recalculate", h.Recalculate)
	r.POST("/awards/celebration-acknowledged", h.AcknowledgeCelebration)

	admin := r.Group("/admin/awards")
	admin.GET("", h.ListAwards)
	admin.POST("/recalculate-all", h.RecalculateAll)
	admin.POST("/sweep-expired", h.SweepExpired)
	admin.GET("/stats", h.Stats)
}

type recordEventRequest struct {
	SubjectID uint `json:"subject_id" binding:"required"`
	ActorID   uint `json:"actor_id" binding:"required"`
}

// RecordEvent records a store visit at the server's current time.
// POST /events.
func (h *Handler) RecordEvent(c *gin.Context) {
	var req recordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	in := events.Input{
		SubjectID: req.SubjectID,
		ActorID:   req.ActorID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	res, err := h.recorder.RecordEvent(c.Request.Context(), in)
	if err != nil {
		h.failure(c, err, "Failed to record event")
		return
	}

	c.JSON(http.StatusOK, res)
}

// GetAward returns the subject's currently active award, if any.
// GET /awards/:subjectType/:subjectId.
func (h *Handler) GetAward(c *gin.Context) {
	subjectType, subjectID, ok := h.parseSubject(c)
	if !ok {
		return
	}

	award, err := h.awards.GetActiveAward(c.Request.Context(), subjectType, subjectID)
	if errors.Is(err, badges.ErrNoActiveAward) {
		c.JSON(http.StatusOK, gin.H{"award": nil, "active": false})
		return
	}
	if err != nil {
		h.failure(c, err, "Failed to get award")
		return
	}

	c.JSON(http.StatusOK, gin.H{"award": award, "active": true})
}

// Recalculate evaluates one subject now.
// POST /awards/:subjectType/:subjectId/recalculate.
func (h *Handler) Recalculate(c *gin.Context) {
	subjectType, subjectID, ok := h.parseSubject(c)
	if !ok {
		return
	}

	res, err := h.awards.EvaluateSubject(c.Request.Context(), subjectType, subjectID)
	if err != nil {
		h.failure(c, err, "Failed to recalculate award")
		return
	}

	h.log.Info().
		Str("subject_type", subjectType).
		Uint("subject_id", subjectID).
		Bool("is_newly_awarded", res.NewlyAwarded).
		Msg("Recalculated award")

	c.JSON(http.StatusOK, res)
}

type acknowledgeRequest struct {
	AwardID uint `json:"award_id" binding:"required"`
}

// AcknowledgeCelebration marks an award's celebration as seen.
// POST /awards/celebration-acknowledged.
func (h *Handler) AcknowledgeCelebration(c *gin.Context) {
	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if err := h.awards.AcknowledgeCelebration(c.Request.Context(), req.AwardID); err != nil {
		h.failure(c, err, "Failed to acknowledge celebration")
		return
	}

	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

// ListAwards returns a page of awards.
// GET /admin/awards?subject_type=store&active=true&page=1&page_size=20.
func (h *Handler) ListAwards(c *gin.Context) {
	filter := badges.AwardFilter{SubjectType: c.Query("subject_type")}

	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid active parameter: %s", raw))
			return
		}
		filter.ActiveOnly = &active
	}

	var err error
	if filter.Page, err = h.parseInt(c, "page"); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if filter.PageSize, err = h.parseInt(c, "page_size"); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.awards.ListAwards(c.Request.Context(), filter)
	if err != nil {
		h.failure(c, err, "Failed to list awards")
		return
	}

	c.JSON(http.StatusOK, page)
}

// RecalculateAll evaluates every subject.
// POST /admin/awards/recalculate-all.
func (h *Handler) RecalculateAll(c *gin.Context) {
	res, err := h.awards.EvaluateAll(c.Request.Context())
	if err != nil {
		h.failure(c, err, "Failed to recalculate awards")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"evaluated":     res.Evaluated,
		"newly_awarded": res.Awarded,
		"failed":        res.Failed,
		"duration_ms":   res.Duration.Milliseconds(),
	})
}

// SweepExpired deactivates expired awards.
// POST /admin/awards/sweep-expired.
func (h *Handler) SweepExpired(c *gin.Context) {
	n, err := h.awards.SweepExpired(c.Request.Context(), h.awards.Now())
	if err != nil {
		h.failure(c, err, "Failed to sweep expired awards")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deactivated": n})
}

// Stats returns award counts for the current window.
// GET /admin/awards/stats.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.awards.Stats(c.Request.Context())
	if err != nil {
		h.failure(c, err, "Failed to get award stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// parseSubject extracts and validates the subject path parameters.
func (h *Handler) parseSubject(c *gin.Context) (string, uint, bool) {
	subjectType := c.Param("subjectType")
	if !models.IsValidSubjectType(subjectType) {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid subject type: %s (valid: store, customer)", subjectType))
		return "", 0, false
	}

	idStr := c.Param("subjectId")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid subject ID: %s", idStr))
		return "", 0, false
	}

	return subjectType, uint(id), true
}

// parseInt reads an optional positive integer query parameter; absent means 0.
func (h *Handler) parseInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s parameter: %s", name, raw)
	}
	return n, nil
}

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, badges.ErrInvalidSubjectType):
		return http.StatusBadRequest
	case errors.Is(err, badges.ErrSubjectNotFound),
		errors.Is(err, badges.ErrAwardNotFound),
		errors.Is(err, badges.ErrNoActiveAward):
		return http.StatusNotFound
	case badges.IsStorageError(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// failure logs err and writes the mapped error response.
func (h *Handler) failure(c *gin.Context, err error, msg string) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		h.errorResponse(c, status, msg)
		return
	}
	h.errorResponse(c, status, err.Error())
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
