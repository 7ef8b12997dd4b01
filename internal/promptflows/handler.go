package promptflows

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/drewano/VocalAlchemy/internal/shared/server/middleware"
	"github.com/drewano/VocalAlchemy/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches prompt flow routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/prompt-flows", h.create)
	rg.GET("/prompt-flows", h.list)
	rg.GET("/prompt-flows/:id", h.get)
	rg.PUT("/prompt-flows/:id", h.update)
	rg.DELETE("/prompt-flows/:id", h.remove)
}

type flowRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Steps       []StepInput `json:"steps"`
}

func (h *Handler) create(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req flowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	flow, err := h.Svc.Create(c.Request.Context(), userID, req.Name, req.Description, req.Steps)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create prompt flow", nil)
		return
	}
	respond.JSON(c, http.StatusCreated, flow)
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	flows, err := h.Svc.List(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list prompt flows", nil)
		return
	}
	if flows == nil {
		flows = []Flow{}
	}
	respond.OK(c, gin.H{"items": flows})
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	flow, err := h.Svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "prompt flow not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load prompt flow", nil)
		return
	}
	respond.OK(c, flow)
}

func (h *Handler) update(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req flowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	flow, err := h.Svc.Update(c.Request.Context(), userID, c.Param("id"), req.Name, req.Description, req.Steps)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "prompt flow not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to update prompt flow", nil)
		}
		return
	}
	respond.OK(c, flow)
}

func (h *Handler) remove(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	if err := h.Svc.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "prompt flow not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete prompt flow", nil)
		return
	}
	respond.NoContent(c)
}
