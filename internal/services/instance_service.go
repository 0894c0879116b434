package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"salesflow/internal/models"
	apperrors "salesflow/pkg/errors"
	"salesflow/pkg/logger"

	"gorm.io/gorm"
)

// 手动转移时目标工作流未配置SLA的兜底时限
const defaultManualSLAHours = 24

// InstanceService 工作流实例生命周期服务
type InstanceService struct {
	db     *gorm.DB
	notify *NotifyService
}

// NewInstanceService 创建实例生命周期服务
func NewInstanceService(db *gorm.DB, notify *NotifyService) *InstanceService {
	return &InstanceService{db: db, notify: notify}
}

// ActivateRequest 激活工作流请求（AI/系统路径）
type ActivateRequest struct {
	CarID            uint        `json:"car_id" binding:"required"`
	WorkflowID       uint        `json:"workflow_id" binding:"required"`
	ParentInstanceID *uint       `json:"parent_instance_id"`
	FinalOutcome     *string     `json:"final_outcome" binding:"omitempty,final_outcome"`
	TransitionProps  models.JSON `json:"transition_properties" binding:"required"`
	AIInsightID      *uint       `json:"ai_insight_id"`
	IsAlignedWithAI  *bool       `json:"is_aligned_with_ai"`
	Phone            string      `json:"phone"`
	NotifyPayload    models.JSON `json:"notify_payload"`
}

// ActivateResult 激活结果
type ActivateResult struct {
	Instance *models.WorkflowInstance `json:"instance"`
	Message  string                   `json:"message"`
}

// Activate 激活工作流实例（AI/系统路径）
// 父实例+最终结局时只更新父实例的final_outcome，不动父实例状态；
// 前置条件在建实例前检查；通知webhook在落库后异步派发，失败不回滚
func (s *InstanceService) Activate(req ActivateRequest) (*ActivateResult, error) {
	// 校验转移上下文
	if err := validateTransitionProps(req.TransitionProps, req.ParentInstanceID != nil); err != nil {
		return nil, err
	}
	if req.FinalOutcome != nil {
		if err := validateFinalOutcome(*req.FinalOutcome); err != nil {
			return nil, err
		}
	}

	// 车辆必须存在
	var car models.Car
	if err := s.db.First(&car, req.CarID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("车辆不存在")
		}
		return nil, err
	}

	// 目标工作流必须存在
	var workflow models.WorkflowDefinition
	if err := s.db.First(&workflow, req.WorkflowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("目标工作流不存在")
		}
		return nil, err
	}

	// 域前置条件（建实例之前拒绝）
	if err := checkPrecondition(s.db, workflow.Code, req.CarID); err != nil {
		return nil, err
	}

	// 父实例的最终结局回写（不改父实例状态）
	if req.ParentInstanceID != nil && req.FinalOutcome != nil {
		var parent models.WorkflowInstance
		if err := s.db.First(&parent, *req.ParentInstanceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.NewNotFound("父实例不存在")
			}
			return nil, err
		}
		if err := s.db.Model(&parent).UpdateColumn("final_outcome", *req.FinalOutcome).Error; err != nil {
			return nil, err
		}
	}

	appLogger := logger.GetLogger()

	// 单车单running实例是调用方约定，这里只告警不拦截
	var runningCount int64
	s.db.Model(&models.WorkflowInstance{}).
		Where("car_id = ? AND status = ?", req.CarID, models.InstanceStatusRunning).
		Count(&runningCount)
	if runningCount > 0 {
		appLogger.Warnf("车辆已有%d个running实例，继续激活: car=%d workflow=%s",
			runningCount, req.CarID, workflow.Code)
	}

	now := time.Now()
	instance := &models.WorkflowInstance{
		CarID:                req.CarID,
		WorkflowID:           req.WorkflowID,
		ParentInstanceID:     req.ParentInstanceID,
		Status:               models.InstanceStatusRunning,
		StartedAt:            now,
		SLADeadline:          slaDeadline(now, workflow.SLAHours),
		TransitionProperties: req.TransitionProps,
		AIInsightID:          req.AIInsightID,
		IsAlignedWithAI:      req.IsAlignedWithAI,
	}

	if err := s.db.Create(instance).Error; err != nil {
		return nil, err
	}

	// 落库后异步通知，实例已是事实来源
	s.notify.DispatchAsync(&NotifyContext{
		Instance: instance,
		Workflow: &workflow,
		Car:      &car,
		Phone:    req.Phone,
		Extra:    req.NotifyPayload,
	})

	return &ActivateResult{
		Instance: instance,
		Message:  fmt.Sprintf("工作流「%s」已激活", workflow.Name),
	}, nil
}

// TransitionRequest 手动转移请求
type TransitionRequest struct {
	TargetWorkflowID uint  `json:"target_workflow_id" binding:"required"`
	TransitionID     *uint `json:"transition_id"` // 仅作参考，不校验
}

// ManualTransition 手动转移（人工兜底通道）
// 完成当前实例并为目标工作流开新实例，绕过AI推荐记账
func (s *InstanceService) ManualTransition(instanceID uint, req TransitionRequest) (*models.WorkflowInstance, error) {
	var current models.WorkflowInstance
	if err := s.db.First(&current, instanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("实例不存在")
		}
		return nil, err
	}
	if current.Status != models.InstanceStatusRunning {
		return nil, apperrors.NewInvalidState("实例状态为%s，无法转移", current.Status)
	}

	var target models.WorkflowDefinition
	if err := s.db.First(&target, req.TargetWorkflowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("目标工作流不存在")
		}
		return nil, err
	}
	if !target.IsActive {
		return nil, apperrors.NewInvalidState("目标工作流已停用")
	}

	now := time.Now()
	var next *models.WorkflowInstance

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&current).Updates(map[string]interface{}{
			"status":       models.InstanceStatusCompleted,
			"completed_at": now,
		}).Error; err != nil {
			return err
		}

		// 手动转移按车辆连续性承接，不写parent_instance_id
		hours := defaultManualSLAHours
		if target.SLAHours != nil {
			hours = *target.SLAHours
		}
		deadline := now.Add(time.Duration(hours) * time.Hour)

		next = &models.WorkflowInstance{
			CarID:       current.CarID,
			WorkflowID:  target.ID,
			Status:      models.InstanceStatusRunning,
			StartedAt:   now,
			SLADeadline: &deadline,
		}
		return tx.Create(next).Error
	})
	if err != nil {
		return nil, err
	}

	logger.GetLogger().Infof("手动转移完成: instance=%d -> workflow=%s new_instance=%d",
		instanceID, target.Code, next.ID)
	return next, nil
}

// InstanceDetail 实例详情（含进度）
type InstanceDetail struct {
	Instance *models.WorkflowInstance `json:"instance"`
	Progress *InstanceProgress        `json:"progress"`
	Overdue  bool                     `json:"overdue"`
}

// GetWithProgress 按ID获取实例及进度
func (s *InstanceService) GetWithProgress(instanceID uint) (*InstanceDetail, error) {
	var instance models.WorkflowInstance
	if err := s.db.Preload("Workflow").First(&instance, instanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("实例不存在")
		}
		return nil, err
	}

	progress, err := computeProgress(s.db, &instance)
	if err != nil {
		return nil, err
	}

	return &InstanceDetail{
		Instance: &instance,
		Progress: progress,
		Overdue:  instance.IsOverdue(time.Now()),
	}, nil
}

// CarPipeline 车辆的完整流程视图：全部实例+目录+转移图
type CarPipeline struct {
	Car         *models.Car                 `json:"car"`
	Instances   []models.WorkflowInstance   `json:"instances"`
	Catalog     []models.WorkflowDefinition `json:"catalog"`
	Transitions []models.WorkflowTransition `json:"transitions"`
}

// GetCarPipeline 获取某辆车的全部实例、工作流目录与转移图
func (s *InstanceService) GetCarPipeline(carID uint) (*CarPipeline, error) {
	var car models.Car
	if err := s.db.First(&car, carID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("车辆不存在")
		}
		return nil, err
	}

	var instances []models.WorkflowInstance
	if err := s.db.Where("car_id = ?", carID).
		Preload("Workflow").Preload("StepExecutions").
		Order("started_at ASC").Find(&instances).Error; err != nil {
		return nil, err
	}

	var catalog []models.WorkflowDefinition
	if err := s.db.Where("is_active = ?", true).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Order("id ASC").Find(&catalog).Error; err != nil {
		return nil, err
	}

	var transitions []models.WorkflowTransition
	if err := s.db.Order("from_workflow_id ASC, priority ASC").Find(&transitions).Error; err != nil {
		return nil, err
	}

	return &CarPipeline{
		Car:         &car,
		Instances:   instances,
		Catalog:     catalog,
		Transitions: transitions,
	}, nil
}

// RecordStepRequest 步骤执行上报请求
type RecordStepRequest struct {
	InstanceID uint   `json:"instance_id" binding:"required"`
	StepID     uint   `json:"step_id" binding:"required"`
	Status     string `json:"status" binding:"required,oneof=success failure"`
	Message    string `json:"message" binding:"max=500"`
}

// RecordStepExecution 记录一次步骤执行
func (s *InstanceService) RecordStepExecution(req RecordStepRequest) (*models.StepExecution, error) {
	var instance models.WorkflowInstance
	if err := s.db.First(&instance, req.InstanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("实例不存在")
		}
		return nil, err
	}
	if instance.Status != models.InstanceStatusRunning {
		return nil, apperrors.NewInvalidState("实例状态为%s，不再接受步骤执行", instance.Status)
	}

	// 步骤必须属于实例绑定的工作流
	var step models.WorkflowStep
	if err := s.db.First(&step, req.StepID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("步骤不存在")
		}
		return nil, err
	}
	if step.WorkflowID != instance.WorkflowID {
		return nil, apperrors.NewValidation("步骤不属于实例绑定的工作流")
	}

	execution := &models.StepExecution{
		InstanceID: req.InstanceID,
		StepID:     req.StepID,
		Status:     req.Status,
		ExecutedAt: time.Now(),
		Message:    req.Message,
	}
	if err := s.db.Create(execution).Error; err != nil {
		return nil, err
	}
	return execution, nil
}

// ========== 内部校验 ==========

// 校验transition_properties：custom_fields必填，有父实例时insight与car_snapshot必填
func validateTransitionProps(props models.JSON, hasParent bool) error {
	if len(props) == 0 {
		return apperrors.NewValidation("缺少transition_properties")
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(props, &parsed); err != nil {
		return apperrors.NewValidation("transition_properties不是合法的JSON对象")
	}

	if err := requireJSONObject(parsed, "custom_fields"); err != nil {
		return err
	}

	if hasParent {
		raw, ok := parsed["insight"]
		if !ok {
			return apperrors.NewValidation("transition_properties缺少insight")
		}
		var insight string
		if err := json.Unmarshal(raw, &insight); err != nil || insight == "" {
			return apperrors.NewValidation("transition_properties.insight必须是非空字符串")
		}
		if err := requireJSONObject(parsed, "car_snapshot"); err != nil {
			return err
		}
	}

	return nil
}

func requireJSONObject(parsed map[string]json.RawMessage, key string) error {
	raw, ok := parsed[key]
	if !ok {
		return apperrors.NewValidation("transition_properties缺少%s", key)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return apperrors.NewValidation("transition_properties.%s必须是JSON对象", key)
	}
	return nil
}

func validateFinalOutcome(outcome string) error {
	switch outcome {
	case models.FinalOutcomeDiscount, models.FinalOutcomeOriginalPrice, models.FinalOutcomeLost:
		return nil
	}
	return apperrors.NewValidation("无效的final_outcome: %s", outcome)
}

func slaDeadline(startedAt time.Time, slaHours *int) *time.Time {
	if slaHours == nil {
		return nil
	}
	deadline := startedAt.Add(time.Duration(*slaHours) * time.Hour)
	return &deadline
}
