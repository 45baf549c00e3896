package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/service"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
	"github.com/aabhi25/chronalive-v0.9-sub003/pkg/response"
)

// ScheduleHandler exposes effective-schedule reads and manual slot edits.
type ScheduleHandler struct {
	resolver    *service.ResolverService
	assignments *service.AssignmentService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(resolver *service.ResolverService, assignments *service.AssignmentService) *ScheduleHandler {
	return &ScheduleHandler{resolver: resolver, assignments: assignments}
}

// Effective godoc
// @Summary Resolve the effective schedule for a class on a date
// @Tags Timetable
// @Produce json
// @Param id path string true "Class ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/effective-schedule [get]
func (h *ScheduleHandler) Effective(c *gin.Context) {
	claims := claimsFromContext(c)
	date, ok := parseDateQuery(c, "date")
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter must be YYYY-MM-DD"))
		return
	}
	slots, err := h.resolver.Resolve(c.Request.Context(), claims.SchoolID, c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Assign godoc
// @Summary Assign or overwrite a slot
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body service.AssignSlotRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /timetable/assign [post]
func (h *ScheduleHandler) Assign(c *gin.Context) {
	var req service.AssignSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.assignments.AssignSlot(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Clear a slot
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body service.DeleteSlotRequest true "Slot coordinates"
// @Success 200 {object} response.Envelope
// @Router /timetable/slot [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	var req service.DeleteSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.assignments.DeleteSlot(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

type weekRequest struct {
	WeekStart string `json:"week_start" binding:"required"`
}

// SetAsGlobal godoc
// @Summary Promote a week's overrides into the global schedule
// @Tags Timetable
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body weekRequest true "Week start (Monday, YYYY-MM-DD)"
// @Success 204
// @Router /classes/{id}/set-as-global [post]
func (h *ScheduleHandler) SetAsGlobal(c *gin.Context) {
	weekStart, ok := bindWeek(c)
	if !ok {
		return
	}
	if err := h.assignments.SetAsGlobal(c.Request.Context(), claimsFromContext(c), c.Param("id"), weekStart); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CopyFromGlobal godoc
// @Summary Rebuild a week as a modifiable copy of the global schedule
// @Tags Timetable
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body weekRequest true "Week start (Monday, YYYY-MM-DD)"
// @Success 204
// @Router /classes/{id}/copy-from-global [post]
func (h *ScheduleHandler) CopyFromGlobal(c *gin.Context) {
	weekStart, ok := bindWeek(c)
	if !ok {
		return
	}
	if err := h.assignments.CopyFromGlobal(c.Request.Context(), claimsFromContext(c), c.Param("id"), weekStart); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func bindWeek(c *gin.Context) (time.Time, bool) {
	var req weekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return time.Time{}, false
	}
	weekStart, err := time.Parse("2006-01-02", req.WeekStart)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "week_start must be formatted as YYYY-MM-DD"))
		return time.Time{}, false
	}
	return weekStart, true
}
