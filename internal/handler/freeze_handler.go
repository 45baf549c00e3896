package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/service"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
	"github.com/aabhi25/chronalive-v0.9-sub003/pkg/response"
)

// FreezeHandler exposes the freeze gate toggle.
type FreezeHandler struct {
	service *service.FreezeService
}

// NewFreezeHandler constructs handler.
func NewFreezeHandler(svc *service.FreezeService) *FreezeHandler {
	return &FreezeHandler{service: svc}
}

type freezeStatus struct {
	Frozen bool `json:"frozen"`
}

// Get godoc
// @Summary Read the freeze flag
// @Tags Freeze
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /freeze-status [get]
func (h *FreezeHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	frozen, err := h.service.IsFrozen(c.Request.Context(), claims.SchoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, freezeStatus{Frozen: frozen}, nil)
}

// Set godoc
// @Summary Toggle the freeze flag
// @Tags Freeze
// @Accept json
// @Produce json
// @Param payload body freezeStatus true "Desired state"
// @Success 200 {object} response.Envelope
// @Router /freeze-status [put]
func (h *FreezeHandler) Set(c *gin.Context) {
	var req freezeStatus
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.Set(c.Request.Context(), claimsFromContext(c), req.Frozen); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}
