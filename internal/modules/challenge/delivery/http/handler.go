package http

import (
	"net/http"

	"anoa.com/challengescore/internal/modules/challenge/dto"
	challengeService "anoa.com/challengescore/internal/modules/challenge/service"
	commonDto "anoa.com/challengescore/pkg/dto"
	"anoa.com/challengescore/pkg/response"
	"github.com/gin-gonic/gin"
)

type ChallengeHandler struct {
	service challengeService.ChallengeService
}

func NewChallengeHandler(service challengeService.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{service: service}
}

func (h *ChallengeHandler) CreateChallenge(c *gin.Context) {
	var req dto.CreateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	challenge, err := h.service.CreateChallenge(c.Request.Context(), req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": challenge})
}

func (h *ChallengeHandler) GetChallenge(c *gin.Context) {
	id, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	challenge, err := h.service.GetChallenge(c.Request.Context(), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": challenge})
}

func (h *ChallengeHandler) AddMetric(c *gin.Context) {
	challengeID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.AddMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	metric, err := h.service.AddMetric(c.Request.Context(), challengeID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": metric})
}

func (h *ChallengeHandler) UpdateMetricConfig(c *gin.Context) {
	metricID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.UpdateMetricConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	metric, err := h.service.UpdateMetricConfig(c.Request.Context(), metricID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": metric})
}

func (h *ChallengeHandler) JoinChallenge(c *gin.Context) {
	challengeID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.JoinChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	participant, err := h.service.JoinChallenge(c.Request.Context(), challengeID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": participant})
}

func (h *ChallengeHandler) ListParticipants(c *gin.Context) {
	challengeID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var page commonDto.PageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		response.BindError(c, err)
		return
	}

	participants, err := h.service.ListParticipants(c.Request.Context(), challengeID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	if page.Limit == 0 {
		c.JSON(http.StatusOK, gin.H{"data": participants})
		return
	}

	items, meta := commonDto.Paginate(participants, page)
	c.JSON(http.StatusOK, gin.H{"data": items, "meta": meta})
}
