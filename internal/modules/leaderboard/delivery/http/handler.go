package http

import (
	"net/http"

	leaderboardService "anoa.com/challengescore/internal/modules/leaderboard/service"
	"anoa.com/challengescore/pkg/dto"
	"anoa.com/challengescore/pkg/response"
	"github.com/gin-gonic/gin"
)

type LeaderboardHandler struct {
	service leaderboardService.LeaderboardService
}

func NewLeaderboardHandler(service leaderboardService.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

// GetLeaderboard returns the full ranking, or one ?page=&limit= slice of it. Positions stay
// those of the full ranking.
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	challengeID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var page dto.PageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		response.BindError(c, err)
		return
	}

	leaderboard, err := h.service.GetLeaderboard(c.Request.Context(), challengeID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	if page.Limit == 0 {
		c.JSON(http.StatusOK, gin.H{"data": leaderboard})
		return
	}

	entries, meta := dto.Paginate(leaderboard, page)
	c.JSON(http.StatusOK, gin.H{"data": entries, "meta": meta})
}
