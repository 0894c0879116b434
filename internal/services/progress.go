package services

import (
	"sort"

	"salesflow/internal/models"

	"gorm.io/gorm"
)

// StepProgress 单个目录步骤在实例中的执行进度
type StepProgress struct {
	Step       models.WorkflowStep    `json:"step"`
	Done       bool                   `json:"done"`
	Executions []models.StepExecution `json:"executions,omitempty"`
}

// InstanceProgress 实例整体进度
// PendingStep为step_order最小且无成功执行记录的步骤，全部成功时为空
type InstanceProgress struct {
	Steps       []StepProgress       `json:"steps"`
	PendingStep *models.WorkflowStep `json:"pending_step"`
	Complete    bool                 `json:"complete"`
}

// computeProgress 计算实例进度（完成门槛：每个步骤至少一条成功执行）
func computeProgress(db *gorm.DB, instance *models.WorkflowInstance) (*InstanceProgress, error) {
	var steps []models.WorkflowStep
	if err := db.Where("workflow_id = ?", instance.WorkflowID).
		Order("step_order ASC").Find(&steps).Error; err != nil {
		return nil, err
	}

	var executions []models.StepExecution
	if err := db.Where("instance_id = ?", instance.ID).
		Order("executed_at ASC").Find(&executions).Error; err != nil {
		return nil, err
	}

	byStep := make(map[uint][]models.StepExecution)
	for _, exec := range executions {
		byStep[exec.StepID] = append(byStep[exec.StepID], exec)
	}

	progress := &InstanceProgress{Complete: true}
	for _, step := range steps {
		execs := byStep[step.ID]
		done := false
		for _, exec := range execs {
			if exec.Status == models.StepExecutionSuccess {
				done = true
				break
			}
		}
		if !done {
			progress.Complete = false
			if progress.PendingStep == nil {
				pending := step
				progress.PendingStep = &pending
			}
		}
		progress.Steps = append(progress.Steps, StepProgress{
			Step:       step,
			Done:       done,
			Executions: execs,
		})
	}

	// 无步骤的工作流视为未完成，避免空目录直接放行转移
	if len(steps) == 0 {
		progress.Complete = false
	}

	sort.SliceStable(progress.Steps, func(a, b int) bool {
		return progress.Steps[a].Step.StepOrder < progress.Steps[b].Step.StepOrder
	})

	return progress, nil
}
