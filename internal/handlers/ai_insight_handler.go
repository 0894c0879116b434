package handlers

import (
	"strconv"

	"salesflow/internal/services"
	"salesflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// AIInsightHandler AI推荐处理器
type AIInsightHandler struct {
	insightService *services.AIInsightService
}

// NewAIInsightHandler 创建AI推荐处理器
func NewAIInsightHandler(insightService *services.AIInsightService) *AIInsightHandler {
	return &AIInsightHandler{insightService: insightService}
}

// Request 请求AI转移推荐（可带反馈触发修订）
func (h *AIInsightHandler) Request(c *gin.Context) {
	var req services.InsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.insightService.Request(req)
	if err != nil {
		response.AppError(c, err)
		return
	}

	// 处理中是明确的轮询信号，不是错误也不是成功结果
	if result.Processing {
		response.Processing(c, "AI分析进行中，请稍后重试", nil)
		return
	}
	response.Success(c, result)
}

// RateRequest 评分请求
type RateRequest struct {
	IsPositive *bool `json:"is_positive" binding:"required"`
}

// Rate 记录操作员对推荐的评分
func (h *AIInsightHandler) Rate(c *gin.Context) {
	insightID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的推荐ID")
		return
	}

	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	insight, err := h.insightService.Rate(uint(insightID), *req.IsPositive)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, insight)
}
