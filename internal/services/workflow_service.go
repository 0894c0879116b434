package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"salesflow/internal/models"
	"salesflow/pkg/cache"
	apperrors "salesflow/pkg/errors"
	"salesflow/pkg/logger"
	"salesflow/pkg/pagination"

	"gorm.io/gorm"
)

const catalogCacheKey = "workflow:catalog"

// WorkflowService 工作流目录服务（读多写少）
type WorkflowService struct {
	db         *gorm.DB
	cache      cache.Cache
	catalogTTL time.Duration
}

// NewWorkflowService 创建工作流目录服务
// cache可为nil（测试或未启用Redis时直接回源）
func NewWorkflowService(db *gorm.DB, c cache.Cache, catalogTTL time.Duration) *WorkflowService {
	if catalogTTL <= 0 {
		catalogTTL = 10 * time.Minute
	}
	return &WorkflowService{db: db, cache: c, catalogTTL: catalogTTL}
}

// StepInput 步骤输入
type StepInput struct {
	Name        string `json:"name" binding:"required,max=200"`
	StepOrder   int    `json:"step_order" binding:"required"`
	IsAutomated bool   `json:"is_automated"`
}

// CreateWorkflowRequest 创建工作流请求
type CreateWorkflowRequest struct {
	Code        string      `json:"code" binding:"required,max=100"`
	Name        string      `json:"name" binding:"required,max=200"`
	Stage       string      `json:"stage" binding:"max=100"`
	Description string      `json:"description" binding:"max=500"`
	SLAHours    *int        `json:"sla_hours"`
	Steps       []StepInput `json:"steps" binding:"dive"`
}

// UpdateWorkflowRequest 更新工作流请求
type UpdateWorkflowRequest struct {
	Name        string `json:"name" binding:"max=200"`
	Stage       string `json:"stage" binding:"max=100"`
	Description string `json:"description" binding:"max=500"`
	SLAHours    *int   `json:"sla_hours"`
}

// Create 创建工作流定义
func (s *WorkflowService) Create(req CreateWorkflowRequest) (*models.WorkflowDefinition, error) {
	var count int64
	if err := s.db.Model(&models.WorkflowDefinition{}).
		Where("code = ?", req.Code).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, apperrors.NewValidation("工作流代码已存在")
	}

	if err := validateStepOrders(req.Steps); err != nil {
		return nil, err
	}

	workflow := &models.WorkflowDefinition{
		Code:        req.Code,
		Name:        req.Name,
		Stage:       req.Stage,
		Description: req.Description,
		SLAHours:    req.SLAHours,
		IsActive:    true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(workflow).Error; err != nil {
			return err
		}
		for _, step := range req.Steps {
			if err := tx.Create(&models.WorkflowStep{
				WorkflowID:  workflow.ID,
				Name:        step.Name,
				StepOrder:   step.StepOrder,
				IsAutomated: step.IsAutomated,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCatalog()
	return s.GetByID(workflow.ID)
}

// Update 更新工作流基本信息
func (s *WorkflowService) Update(id uint, req UpdateWorkflowRequest) (*models.WorkflowDefinition, error) {
	workflow, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Stage != "" {
		updates["stage"] = req.Stage
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.SLAHours != nil {
		updates["sla_hours"] = *req.SLAHours
	}

	if len(updates) > 0 {
		if err := s.db.Model(workflow).Updates(updates).Error; err != nil {
			return nil, err
		}
		s.invalidateCatalog()
	}
	return s.GetByID(id)
}

// SetActive 启用/停用工作流
func (s *WorkflowService) SetActive(id uint, active bool) error {
	result := s.db.Model(&models.WorkflowDefinition{}).Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("工作流不存在")
	}
	s.invalidateCatalog()
	return nil
}

// GetByID 按ID获取工作流（含步骤与出边）
func (s *WorkflowService) GetByID(id uint) (*models.WorkflowDefinition, error) {
	var workflow models.WorkflowDefinition
	err := s.db.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).Preload("Transitions", func(db *gorm.DB) *gorm.DB {
		return db.Order("priority ASC")
	}).Preload("Transitions.ToWorkflow").
		First(&workflow, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("工作流不存在")
		}
		return nil, err
	}
	return &workflow, nil
}

// List 分页获取工作流列表
func (s *WorkflowService) List(params *pagination.PageParams, search string) ([]models.WorkflowDefinition, int64, error) {
	query := s.db.Model(&models.WorkflowDefinition{})
	if search != "" {
		query = query.Where("name LIKE ? OR code LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var workflows []models.WorkflowDefinition
	if err := query.Offset(params.GetOffset()).Limit(params.GetLimit()).
		Order("id ASC").Find(&workflows).Error; err != nil {
		return nil, 0, err
	}
	return workflows, total, nil
}

// GetCatalog 获取启用的工作流目录（含步骤与转移图，走缓存）
func (s *WorkflowService) GetCatalog() ([]models.WorkflowDefinition, error) {
	compute := func() (interface{}, error) {
		var catalog []models.WorkflowDefinition
		err := s.db.Where("is_active = ?", true).
			Preload("Steps", func(db *gorm.DB) *gorm.DB {
				return db.Order("step_order ASC")
			}).
			Preload("Transitions", func(db *gorm.DB) *gorm.DB {
				return db.Order("priority ASC")
			}).
			Order("id ASC").Find(&catalog).Error
		return catalog, err
	}

	if s.cache == nil {
		value, err := compute()
		if err != nil {
			return nil, err
		}
		return value.([]models.WorkflowDefinition), nil
	}

	data, err := s.cache.GetOrCompute(catalogCacheKey, s.catalogTTL, compute)
	if err != nil {
		return nil, err
	}

	var catalog []models.WorkflowDefinition
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("反序列化工作流目录缓存失败: %v", err)
	}
	return catalog, nil
}

// AddTransitionRequest 新增转移边请求
type AddTransitionRequest struct {
	ToWorkflowID   uint   `json:"to_workflow_id" binding:"required"`
	ConditionLogic string `json:"condition_logic" binding:"max=500"`
	Priority       int    `json:"priority"`
}

// AddTransition 新增转移边
func (s *WorkflowService) AddTransition(fromWorkflowID uint, req AddTransitionRequest) (*models.WorkflowTransition, error) {
	for _, id := range []uint{fromWorkflowID, req.ToWorkflowID} {
		var count int64
		if err := s.db.Model(&models.WorkflowDefinition{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, apperrors.NewNotFound("工作流不存在: %d", id)
		}
	}

	transition := &models.WorkflowTransition{
		FromWorkflowID: fromWorkflowID,
		ToWorkflowID:   req.ToWorkflowID,
		ConditionLogic: req.ConditionLogic,
		Priority:       req.Priority,
	}
	if transition.Priority == 0 {
		transition.Priority = 100
	}

	if err := s.db.Create(transition).Error; err != nil {
		return nil, err
	}
	s.invalidateCatalog()
	return transition, nil
}

// DeleteTransition 删除转移边
func (s *WorkflowService) DeleteTransition(transitionID uint) error {
	result := s.db.Delete(&models.WorkflowTransition{}, transitionID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("转移边不存在")
	}
	s.invalidateCatalog()
	return nil
}

func (s *WorkflowService) invalidateCatalog() {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePattern("workflow:*"); err != nil {
		logger.GetLogger().Warnf("工作流目录缓存失效失败: %v", err)
	}
}

func validateStepOrders(steps []StepInput) error {
	seen := make(map[int]bool, len(steps))
	for _, step := range steps {
		if seen[step.StepOrder] {
			return apperrors.NewValidation("步骤排序键重复: %d", step.StepOrder)
		}
		seen[step.StepOrder] = true
	}
	return nil
}
