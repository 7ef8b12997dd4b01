package analyses

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/drewano/VocalAlchemy/internal/shared/server/middleware"
	"github.com/drewano/VocalAlchemy/internal/shared/server/respond"
)

const maxUploadSize = 500 << 20 // 500MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc    *Service
	Stream *StreamHandler
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, stream *StreamHandler) *Handler {
	return &Handler{Svc: svc, Stream: stream}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.upload)
	rg.GET("/analyses", h.list)
	rg.GET("/analyses/:id", h.get)
	rg.PATCH("/analyses/:id", h.rename)
	rg.DELETE("/analyses/:id", h.remove)
	rg.POST("/analyses/:id/retranscribe", h.retranscribe)
	rg.POST("/analyses/:id/relaunch", h.relaunch)
	rg.GET("/analyses/:id/transcript", h.transcript)
	rg.GET("/analyses/:id/report", h.report)
	rg.POST("/step-results/:id/rerun", h.rerunStep)
	if h.Stream != nil {
		rg.GET("/analyses/:id/ws", h.Stream.Serve)
	}
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	flowID := c.PostForm("promptFlowId")

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	analysis, err := h.Svc.Upload(ctx, userID, fileHeader.Filename, flowID, file)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create analysis", nil)
		}
		return
	}
	respond.Accepted(c, analysis)
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}
	if items == nil {
		items = []Analysis{}
	}
	respond.OK(c, gin.H{"items": items})
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	detail, err := h.Svc.GetDetail(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to load analysis")
		return
	}
	respond.OK(c, detail)
}

type renameRequest struct {
	Filename string `json:"filename"`
}

func (h *Handler) rename(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	analysis, err := h.Svc.Rename(c.Request.Context(), userID, c.Param("id"), req.Filename)
	if err != nil {
		h.writeError(c, err, "failed to rename analysis")
		return
	}
	respond.OK(c, analysis)
}

func (h *Handler) remove(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	if err := h.Svc.Delete(ctx, userID, c.Param("id")); err != nil {
		h.writeError(c, err, "failed to delete analysis")
		return
	}
	respond.Accepted(c, gin.H{"id": c.Param("id")})
}

func (h *Handler) retranscribe(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	analysis, err := h.Svc.Retranscribe(ctx, userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to restart transcription")
		return
	}
	respond.Accepted(c, analysis)
}

func (h *Handler) relaunch(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	analysis, err := h.Svc.Relaunch(ctx, userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to relaunch analysis")
		return
	}
	respond.Accepted(c, analysis)
}

func (h *Handler) transcript(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	text, err := h.Svc.Transcript(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to load transcript")
		return
	}
	respond.OK(c, gin.H{"content": text})
}

func (h *Handler) report(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	text, err := h.Svc.Report(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to load report")
		return
	}
	respond.OK(c, gin.H{"content": text})
}

type rerunRequest struct {
	PromptOverride string `json:"promptOverride"`
}

func (h *Handler) rerunStep(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req rerunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	if err := h.Svc.RerunStep(ctx, userID, c.Param("id"), req.PromptOverride); err != nil {
		h.writeError(c, err, "failed to rerun step")
		return
	}
	respond.Accepted(c, gin.H{"stepId": c.Param("id")})
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrConflict):
		respond.Error(c, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, ErrNoTranscript):
		respond.Error(c, http.StatusConflict, "conflict", "no transcript available", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
