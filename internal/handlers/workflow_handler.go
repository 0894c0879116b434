package handlers

import (
	"strconv"

	"salesflow/internal/services"
	"salesflow/pkg/pagination"
	"salesflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// WorkflowHandler 工作流目录处理器
type WorkflowHandler struct {
	workflowService *services.WorkflowService
}

// NewWorkflowHandler 创建工作流目录处理器
func NewWorkflowHandler(workflowService *services.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflowService: workflowService}
}

// Create 创建工作流
func (h *WorkflowHandler) Create(c *gin.Context) {
	var req services.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	workflow, err := h.workflowService.Create(req)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, workflow)
}

// Update 更新工作流
func (h *WorkflowHandler) Update(c *gin.Context) {
	workflowID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的工作流ID")
		return
	}

	var req services.UpdateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	workflow, err := h.workflowService.Update(uint(workflowID), req)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, workflow)
}

// GetByID 根据ID获取工作流
func (h *WorkflowHandler) GetByID(c *gin.Context) {
	workflowID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的工作流ID")
		return
	}

	workflow, err := h.workflowService.GetByID(uint(workflowID))
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, workflow)
}

// List 获取工作流列表
func (h *WorkflowHandler) List(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	search := c.Query("search")

	workflows, total, err := h.workflowService.List(params, search)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	pageInfo := pagination.NewPageInfo(params.Page, params.PageSize, total)
	response.SuccessWithPage(c, workflows, pageInfo)
}

// GetCatalog 获取启用的工作流目录（走缓存）
func (h *WorkflowHandler) GetCatalog(c *gin.Context) {
	catalog, err := h.workflowService.GetCatalog()
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, catalog)
}

// Enable 启用工作流
func (h *WorkflowHandler) Enable(c *gin.Context) {
	h.setActive(c, true)
}

// Disable 停用工作流
func (h *WorkflowHandler) Disable(c *gin.Context) {
	h.setActive(c, false)
}

func (h *WorkflowHandler) setActive(c *gin.Context, active bool) {
	workflowID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的工作流ID")
		return
	}

	if err := h.workflowService.SetActive(uint(workflowID), active); err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, nil)
}

// AddTransition 新增转移边
func (h *WorkflowHandler) AddTransition(c *gin.Context) {
	workflowID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的工作流ID")
		return
	}

	var req services.AddTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	transition, err := h.workflowService.AddTransition(uint(workflowID), req)
	if err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, transition)
}

// DeleteTransition 删除转移边
func (h *WorkflowHandler) DeleteTransition(c *gin.Context) {
	transitionID, err := strconv.ParseUint(c.Param("transitionId"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的转移边ID")
		return
	}

	if err := h.workflowService.DeleteTransition(uint(transitionID)); err != nil {
		response.AppError(c, err)
		return
	}
	response.Success(c, nil)
}
