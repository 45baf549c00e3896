package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/service"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
	"github.com/aabhi25/chronalive-v0.9-sub003/pkg/response"
)

// CandidateHandler exposes the substitute candidate selector.
type CandidateHandler struct {
	service *service.CandidateService
}

// NewCandidateHandler constructs handler.
func NewCandidateHandler(svc *service.CandidateService) *CandidateHandler {
	return &CandidateHandler{service: svc}
}

// Find godoc
// @Summary List ranked substitute candidates for one slot
// @Tags Substitutions
// @Produce json
// @Param classId query string true "Class ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param period query int true "Period number"
// @Param subjectId query string false "Restrict to teachers of this subject"
// @Success 200 {object} response.Envelope
// @Router /substitutions/candidates [get]
func (h *CandidateHandler) Find(c *gin.Context) {
	claims := claimsFromContext(c)
	classID := c.Query("classId")
	if classID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "classId query parameter is required"))
		return
	}
	date, ok := parseDateQuery(c, "date")
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter must be YYYY-MM-DD"))
		return
	}
	period, err := strconv.Atoi(c.Query("period"))
	if err != nil || period < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "period query parameter must be a positive integer"))
		return
	}
	var subjectID *string
	if raw := c.Query("subjectId"); raw != "" {
		subjectID = &raw
	}

	candidates, err := h.service.FindCandidates(c.Request.Context(), claims.SchoolID, classID, date, period, subjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidates, nil)
}
