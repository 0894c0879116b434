package models

// 内置工作流代码（种子目录，可在目录中扩展）
const (
	WorkflowCodeLeadFollowup = "lead_followup"
	WorkflowCodeTestDrive    = "test_drive"
	WorkflowCodeNegotiation  = "negotiation"
	WorkflowCodeContract     = "contract"
	WorkflowCodeDelivery     = "delivery"
	WorkflowCodeLostDeal     = "lost_deal"
)

// WorkflowDefinition 工作流定义（销售流程阶段模板）
type WorkflowDefinition struct {
	BaseModel

	// 基本信息
	Code        string `gorm:"size:100;not null;uniqueIndex" json:"code"`
	Name        string `gorm:"size:200;not null" json:"name"`
	Stage       string `gorm:"size:100;index" json:"stage"` // 阶段分组：lead/negotiation/closing
	Description string `gorm:"size:500" json:"description"`
	IsActive    bool   `gorm:"default:true;index" json:"is_active"`

	// SLA配置（小时），为空表示无时限
	SLAHours *int `json:"sla_hours"`

	// 关联
	Steps       []WorkflowStep       `gorm:"foreignKey:WorkflowID" json:"steps,omitempty"`
	Transitions []WorkflowTransition `gorm:"foreignKey:FromWorkflowID" json:"transitions,omitempty"`
}

// TableName 指定表名
func (WorkflowDefinition) TableName() string {
	return "workflow_definitions"
}

// WorkflowStep 工作流步骤（实例创建时引用目录，不复制）
type WorkflowStep struct {
	BaseModel
	WorkflowID uint `gorm:"not null;index;uniqueIndex:idx_wf_step_order" json:"workflow_id"`

	Name        string `gorm:"size:200;not null" json:"name"`
	StepOrder   int    `gorm:"not null;uniqueIndex:idx_wf_step_order" json:"step_order"` // 工作流内唯一排序键
	IsAutomated bool   `gorm:"default:false" json:"is_automated"`                        // 仅作展示标记
}

// TableName 指定表名
func (WorkflowStep) TableName() string {
	return "workflow_steps"
}

// WorkflowTransition 工作流转移边（有向）
// condition_logic为给人工/AI选择者的提示文本，引擎不求值
type WorkflowTransition struct {
	BaseModel
	FromWorkflowID uint `gorm:"not null;index" json:"from_workflow_id"`
	ToWorkflowID   uint `gorm:"not null;index" json:"to_workflow_id"`

	ConditionLogic string `gorm:"size:500" json:"condition_logic"`
	Priority       int    `gorm:"default:100" json:"priority"` // 同源边排序

	// 关联
	ToWorkflow WorkflowDefinition `gorm:"foreignKey:ToWorkflowID" json:"to_workflow,omitempty"`
}

// TableName 指定表名
func (WorkflowTransition) TableName() string {
	return "workflow_transitions"
}
