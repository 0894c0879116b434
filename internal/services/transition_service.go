package services

import (
	"errors"

	"salesflow/internal/models"
	apperrors "salesflow/pkg/errors"

	"gorm.io/gorm"
)

// TransitionService 转移解析服务
type TransitionService struct {
	db *gorm.DB
}

// NewTransitionService 创建转移解析服务
func NewTransitionService(db *gorm.DB) *TransitionService {
	return &TransitionService{db: db}
}

// TransitionOption 可选转移（目标工作流展示名+条件提示文本）
type TransitionOption struct {
	TransitionID   uint   `json:"transition_id"`
	ToWorkflowID   uint   `json:"to_workflow_id"`
	ToWorkflowName string `json:"to_workflow_name"`
	ConditionLogic string `json:"condition_logic"`
	Priority       int    `json:"priority"`
}

// AvailableTransitions 计算实例的合法下一步工作流
// 完成门槛不满足时返回空集；引擎从不自动选边，选择始终是调用方决定
func (s *TransitionService) AvailableTransitions(instanceID uint) ([]TransitionOption, error) {
	var instance models.WorkflowInstance
	if err := s.db.First(&instance, instanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("实例不存在")
		}
		return nil, err
	}

	progress, err := computeProgress(s.db, &instance)
	if err != nil {
		return nil, err
	}
	if !progress.Complete {
		return []TransitionOption{}, nil
	}

	var transitions []models.WorkflowTransition
	if err := s.db.Where("from_workflow_id = ?", instance.WorkflowID).
		Preload("ToWorkflow").
		Order("priority ASC").Find(&transitions).Error; err != nil {
		return nil, err
	}

	options := make([]TransitionOption, 0, len(transitions))
	for _, t := range transitions {
		options = append(options, TransitionOption{
			TransitionID:   t.ID,
			ToWorkflowID:   t.ToWorkflowID,
			ToWorkflowName: t.ToWorkflow.Name,
			ConditionLogic: t.ConditionLogic,
			Priority:       t.Priority,
		})
	}
	return options, nil
}
