package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/service"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
	"github.com/aabhi25/chronalive-v0.9-sub003/pkg/response"
)

// AttendanceHandler exposes teacher attendance endpoints.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler constructs handler.
func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Mark godoc
// @Summary Mark attendance for one teacher-day
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.service.Mark(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ListDay godoc
// @Summary List attendance records for a date
// @Tags Attendance
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) ListDay(c *gin.Context) {
	claims := claimsFromContext(c)
	date, ok := parseDateQuery(c, "date")
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter must be YYYY-MM-DD"))
		return
	}
	records, err := h.service.ListDay(c.Request.Context(), claims.SchoolID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
