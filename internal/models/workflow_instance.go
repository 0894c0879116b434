package models

import (
	"time"
)

// 实例状态
const (
	InstanceStatusRunning    = "running"
	InstanceStatusCompleted  = "completed"
	InstanceStatusTerminated = "terminated"
)

// 最终结局（记录在父实例上）
const (
	FinalOutcomeDiscount      = "discount"
	FinalOutcomeOriginalPrice = "original_price"
	FinalOutcomeLost          = "lost"
)

// WorkflowInstance 工作流实例（某辆车的一次流程运行）
// 约定每辆车同一时刻至多一个running实例，由调用方保证，数据层不强制
type WorkflowInstance struct {
	BaseModel
	CarID      uint `gorm:"not null;index" json:"car_id"`
	WorkflowID uint `gorm:"not null;index" json:"workflow_id"`

	// 父实例（触发本实例的上一个实例）
	ParentInstanceID *uint `gorm:"index" json:"parent_instance_id"`

	// 状态
	Status      string     `gorm:"size:20;not null;default:running;index" json:"status"`
	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	SLADeadline *time.Time `json:"sla_deadline"` // started_at + sla_hours，工作流无SLA时为空
	CompletedAt *time.Time `json:"completed_at"`

	// 最终结局：激活子实例时写到父实例上，不改父实例状态
	FinalOutcome *string `gorm:"size:20" json:"final_outcome"`

	// 转移上下文（来自触发事件的透传JSON）
	TransitionProperties JSON `gorm:"type:jsonb" json:"transition_properties"`

	// AI推荐关联
	AIInsightID     *uint `json:"ai_insight_id"`
	IsAlignedWithAI *bool `json:"is_aligned_with_ai"` // 操作员选择是否与AI推荐一致

	// 关联
	Workflow       WorkflowDefinition `gorm:"foreignKey:WorkflowID" json:"workflow,omitempty"`
	StepExecutions []StepExecution    `gorm:"foreignKey:InstanceID" json:"step_executions,omitempty"`
}

// TableName 指定表名
func (WorkflowInstance) TableName() string {
	return "workflow_instances"
}

// IsOverdue SLA是否已超期（只在读取时比较，不由定时器驱动）
func (i *WorkflowInstance) IsOverdue(now time.Time) bool {
	return i.Status == InstanceStatusRunning && i.SLADeadline != nil && now.After(*i.SLADeadline)
}

// 步骤执行状态
const (
	StepExecutionSuccess = "success"
	StepExecutionFailure = "failure"
)

// StepExecution 步骤执行记录（实例 x 目录步骤）
type StepExecution struct {
	BaseModel
	InstanceID uint `gorm:"not null;index" json:"instance_id"`
	StepID     uint `gorm:"not null;index" json:"step_id"`

	Status     string    `gorm:"size:20;not null" json:"status"`
	ExecutedAt time.Time `gorm:"not null" json:"executed_at"`
	Message    string    `gorm:"size:500" json:"message"`

	// 关联
	Step WorkflowStep `gorm:"foreignKey:StepID" json:"step,omitempty"`
}

// TableName 指定表名
func (StepExecution) TableName() string {
	return "step_executions"
}
