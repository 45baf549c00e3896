package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	"github.com/aabhi25/chronalive-v0.9-sub003/internal/service"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
	"github.com/aabhi25/chronalive-v0.9-sub003/pkg/response"
)

// ChangeHandler exposes the change approval workflow.
type ChangeHandler struct {
	service *service.ChangeService
}

// NewChangeHandler constructs handler.
func NewChangeHandler(svc *service.ChangeService) *ChangeHandler {
	return &ChangeHandler{service: svc}
}

// Propose godoc
// @Summary Propose a timetable change
// @Tags Changes
// @Accept json
// @Produce json
// @Param payload body service.ProposeChangeRequest true "Change proposal"
// @Success 201 {object} response.Envelope
// @Router /changes [post]
func (h *ChangeHandler) Propose(c *gin.Context) {
	var req service.ProposeChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	change, err := h.service.Propose(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, change)
}

// List godoc
// @Summary List change history
// @Tags Changes
// @Produce json
// @Param status query string false "Filter by status (repeatable)"
// @Param entryKey query string false "Filter by entry key"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /changes [get]
func (h *ChangeHandler) List(c *gin.Context) {
	var filter models.ChangeFilter
	for _, raw := range c.QueryArray("status") {
		filter.Status = append(filter.Status, models.ChangeStatus(raw))
	}
	filter.EntryKey = c.Query("entryKey")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	changes, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, changes, nil)
}

// Approve godoc
// @Summary Approve a pending change
// @Tags Changes
// @Produce json
// @Param id path string true "Change ID"
// @Success 200 {object} response.Envelope
// @Router /changes/{id}/approve [post]
func (h *ChangeHandler) Approve(c *gin.Context) {
	change, err := h.service.Approve(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, change, nil)
}

// Reject godoc
// @Summary Reject a pending change
// @Tags Changes
// @Produce json
// @Param id path string true "Change ID"
// @Success 200 {object} response.Envelope
// @Router /changes/{id}/reject [post]
func (h *ChangeHandler) Reject(c *gin.Context) {
	change, err := h.service.Reject(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, change, nil)
}
