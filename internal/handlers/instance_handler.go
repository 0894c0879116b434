package handlers

import (
	"strconv"

	"salesflow/internal/services"
	"salesflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// InstanceHandler 工作流实例处理器
type InstanceHandler struct {
	instanceService   *services.InstanceService
	transitionService *services.TransitionService
}

// NewInstanceHandler 创建工作流实例处理器
func NewInstanceHandler(instanceService *services.InstanceService, transitionService *services.TransitionService) *InstanceHandler {
	return &InstanceHandler{
		instanceService:   instanceService,
		transitionService: transitionService,
	}
}

// Activate 激活工作流实例（AI/系统路径）
func (h *InstanceHandler) Activate(c *gin.Context) {
	var req services.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.instanceService.Activate(req)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.SuccessWithMessage(c, result.Message, result.Instance)
}

// Transition 手动转移
func (h *InstanceHandler) Transition(c *gin.Context) {
	instanceID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的实例ID")
		return
	}

	var req services.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	instance, err := h.instanceService.ManualTransition(uint(instanceID), req)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, instance)
}

// GetByID 获取实例详情（含进度）
func (h *InstanceHandler) GetByID(c *gin.Context) {
	instanceID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的实例ID")
		return
	}

	detail, err := h.instanceService.GetWithProgress(uint(instanceID))
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, detail)
}

// AvailableTransitions 获取实例的可选转移
func (h *InstanceHandler) AvailableTransitions(c *gin.Context) {
	instanceID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的实例ID")
		return
	}

	options, err := h.transitionService.AvailableTransitions(uint(instanceID))
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, options)
}

// RecordStepExecution 上报步骤执行
func (h *InstanceHandler) RecordStepExecution(c *gin.Context) {
	var req services.RecordStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	execution, err := h.instanceService.RecordStepExecution(req)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, execution)
}
