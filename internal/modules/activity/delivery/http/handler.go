package http

import (
	"net/http"

	"anoa.com/challengescore/internal/modules/activity/dto"
	activityService "anoa.com/challengescore/internal/modules/activity/service"
	"anoa.com/challengescore/pkg/response"
	"github.com/gin-gonic/gin"
)

type ActivityHandler struct {
	service activityService.ActivityService
}

func NewActivityHandler(service activityService.ActivityService) *ActivityHandler {
	return &ActivityHandler{service: service}
}

func (h *ActivityHandler) SubmitLog(c *gin.Context) {
	var req dto.SubmitLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	log, err := h.service.SubmitLog(c.Request.Context(), req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": log})
}

func (h *ActivityHandler) ListLogs(c *gin.Context) {
	participantID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	metricID, err := response.ParamUUID(c, "metric_id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	logs, err := h.service.ListLogs(c.Request.Context(), participantID, metricID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}
