package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/service"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
	"github.com/aabhi25/chronalive-v0.9-sub003/pkg/response"
)

// StructureHandler exposes the school grid definition.
type StructureHandler struct {
	service *service.StructureService
}

// NewStructureHandler constructs handler.
func NewStructureHandler(svc *service.StructureService) *StructureHandler {
	return &StructureHandler{service: svc}
}

// Get godoc
// @Summary Get the active timetable structure
// @Tags Structure
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /structure [get]
func (h *StructureHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	structure, err := h.service.Get(c.Request.Context(), claims.SchoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structure, nil)
}

// Update godoc
// @Summary Replace the active timetable structure
// @Tags Structure
// @Accept json
// @Produce json
// @Param payload body service.UpdateStructureRequest true "Structure payload"
// @Success 200 {object} response.Envelope
// @Router /structure [put]
func (h *StructureHandler) Update(c *gin.Context) {
	var req service.UpdateStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	structure, err := h.service.Update(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structure, nil)
}
