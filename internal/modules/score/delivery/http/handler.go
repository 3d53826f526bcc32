package http

import (
	"errors"
	"fmt"
	"net/http"

	scoreService "anoa.com/challengescore/internal/modules/score/service"
	"anoa.com/challengescore/pkg/ratelimiter"
	"anoa.com/challengescore/pkg/response"
	"github.com/gin-gonic/gin"
)

type ScoreHandler struct {
	service scoreService.ScoreService
}

func NewScoreHandler(service scoreService.ScoreService) *ScoreHandler {
	return &ScoreHandler{service: service}
}

func (h *ScoreHandler) RecomputeChallenge(c *gin.Context) {
	challengeID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	res, err := h.service.TriggerRecompute(c.Request.Context(), challengeID)
	if err != nil {
		var rateLimitErr *ratelimiter.RateLimitError
		if errors.As(err, &rateLimitErr) {
			c.Header("Retry-After", fmt.Sprintf("%.0f", rateLimitErr.RetryAfter.Seconds()))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": rateLimitErr.Message})
			return
		}
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *ScoreHandler) GetSnapshots(c *gin.Context) {
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

	snapshots, err := h.service.GetSnapshots(c.Request.Context(), participantID, metricID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshots})
}
