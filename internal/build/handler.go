package build

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/api"
	"github.com/iieono/make-via-backend-sub000/internal/snapshot"
)

type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log,
	}
}

// RegisterRoutes mounts the build endpoints on a router group that already
// carries the caller identity middleware.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST(api.AppBuilds, h.Create)
	r.GET(api.AppBuilds, h.List)
	r.GET(api.BuildByID, h.Get)
	r.POST(api.BuildCancel, h.Cancel)
}

type statusResponse struct {
	*Record
	Progress *Progress `json:"progress,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Create handles a new build request. A cache hit returns the cloned
// completed record immediately; otherwise the queued record comes back and
// the client polls.
func (h *Handler) Create(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	req.AppID = c.Param("app_id")

	record, err := h.service.StartBuild(c.Request.Context(), c.GetString("user_id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	code := http.StatusAccepted
	if record.Status == StatusCompleted {
		code = http.StatusOK
	}
	c.JSON(code, record)
}

// Get returns the build record, with progress attached while it runs.
func (h *Handler) Get(c *gin.Context) {
	record, err := h.service.GetBuild(c.Param("build_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := statusResponse{Record: record}
	if record.Status == StatusBuilding {
		if p, ok := h.service.Progress(record.BuildID); ok {
			resp.Progress = &p
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Cancel requests termination of a queued or running build.
func (h *Handler) Cancel(c *gin.Context) {
	var body cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
			return
		}
	}

	buildID := c.Param("build_id")
	if err := h.service.CancelBuild(c.Request.Context(), buildID, body.Reason); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"build_id": buildID,
		"message":  "cancellation requested",
	})
}

// List returns all builds of an app, newest first.
func (h *Handler) List(c *gin.Context) {
	records, err := h.service.ListBuilds(c.Param("app_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"builds": records,
		"count":  len(records),
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnsupportedBuildType),
		errors.Is(err, ErrUnsupportedBuildMode),
		errors.Is(err, ErrUnsupportedPlatform),
		errors.Is(err, ErrPlatformMismatch):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	case errors.Is(err, snapshot.ErrAppNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "app not found",
		})
	case errors.Is(err, ErrBuildNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "build not found",
		})
	case errors.Is(err, ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":   "too_many_builds",
			"message": err.Error(),
		})
	default:
		h.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "internal server error",
		})
	}
}
