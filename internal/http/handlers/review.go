package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
	"github.com/yungbote/clipreview-backend/internal/http/response"
	"github.com/yungbote/clipreview-backend/internal/modules/review/pipeline"
	"github.com/yungbote/clipreview-backend/internal/platform/apierr"
	"github.com/yungbote/clipreview-backend/internal/platform/dbctx"
	"github.com/yungbote/clipreview-backend/internal/realtime"
	"github.com/yungbote/clipreview-backend/internal/services"
)

type ReviewHandler struct {
	reviews services.ReviewService
	hub     *realtime.Hub
}

func NewReviewHandler(reviews services.ReviewService, hub *realtime.Hub) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, hub: hub}
}

type createReviewRequest struct {
	URL                string `json:"url" binding:"required"`
	DistinctDuplicates bool   `json:"distinct_duplicates"`
}

// toAPIError maps service and pipeline failures onto HTTP statuses.
func toAPIError(err error) *apierr.Error {
	var se *pipeline.StageError
	switch {
	case errors.As(err, &se):
		return apierr.Unprocessable(se.Code(), err)
	case errors.Is(err, services.ErrInvalidURL):
		return apierr.BadRequest("invalid_url", err)
	case errors.Is(err, services.ErrRunNotFound):
		return apierr.NotFound("review_not_found", err)
	case errors.Is(err, services.ErrRunFinished):
		return apierr.Conflict("review_finished", err)
	case errors.Is(err, services.ErrServiceClosing):
		return apierr.Unavailable("service_unavailable", err)
	default:
		return apierr.New(http.StatusInternalServerError, "internal_error", err)
	}
}

func parseRunID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_review_id", err)
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/reviews
func (h *ReviewHandler) Create(c *gin.Context) {
	var req createReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	run, err := h.reviews.Submit(dbctx.New(c.Request.Context()), services.SubmitRequest{
		URL:                req.URL,
		DistinctDuplicates: req.DistinctDuplicates,
	})
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondStatus(c, http.StatusAccepted, gin.H{"review": run})
}

// POST /api/reviews/sync
func (h *ReviewHandler) CreateSync(c *gin.Context) {
	var req createReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	run, res, err := h.reviews.RunSync(dbctx.New(c.Request.Context()), services.SubmitRequest{
		URL:                req.URL,
		DistinctDuplicates: req.DistinctDuplicates,
	})
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, gin.H{"review": run, "result": res})
}

// GET /api/reviews
func (h *ReviewHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.reviews.List(dbctx.New(c.Request.Context()), limit)
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, gin.H{"reviews": runs})
}

// GET /api/reviews/:id
func (h *ReviewHandler) Get(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	run, err := h.reviews.Get(dbctx.New(c.Request.Context()), id)
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondOK(c, gin.H{"review": run})
}

// POST /api/reviews/:id/cancel
func (h *ReviewHandler) Cancel(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	run, err := h.reviews.Cancel(dbctx.New(c.Request.Context()), id)
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	response.RespondStatus(c, http.StatusAccepted, gin.H{"review": run})
}

// GET /api/reviews/:id/events streams stage transitions until the run ends.
func (h *ReviewHandler) Events(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	if h.hub == nil {
		response.RespondError(c, http.StatusNotImplemented, "events_unavailable", errors.New("stage events are not enabled"))
		return
	}

	// Subscribe before reading state so a transition in between is not lost.
	client := h.hub.Subscribe(id)
	defer h.hub.Close(client)

	run, err := h.reviews.Get(dbctx.New(c.Request.Context()), id)
	if err != nil {
		response.RespondAPIError(c, toAPIError(err))
		return
	}
	if run.Terminal() {
		stage := string(pipeline.StageFailed)
		if run.Status == review.RunStatusSucceeded || run.Status == review.RunStatusDegraded {
			stage = string(pipeline.StageDone)
		}
		ts := run.UpdatedAt
		if run.FinishedAt != nil {
			ts = *run.FinishedAt
		}
		select {
		case client.Outbound <- review.StageEvent{
			RunID:     run.ID,
			Stage:     stage,
			From:      run.Stage,
			FailedAt:  run.FailedStage,
			Error:     run.Error,
			Timestamp: ts.UTC().Truncate(time.Millisecond),
		}:
		default:
		}
	}
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
