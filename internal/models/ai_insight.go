package models

import (
	"encoding/json"
	"time"
)

// AIInsight 当前AI转移推荐（每个 车 x 来源实例 只保留一条活跃记录）
// Summary可能携带 {"processing":true} 标记表示分析请求进行中
type AIInsight struct {
	BaseModel
	CarID            uint `gorm:"not null;uniqueIndex:idx_car_source" json:"car_id"`
	SourceInstanceID uint `gorm:"not null;uniqueIndex:idx_car_source" json:"source_instance_id"`

	Summary              JSON  `gorm:"type:jsonb" json:"ai_insight_summary"`
	SelectedTransitionID *uint `json:"selected_transition_id"`
	TargetWorkflowID     *uint `json:"target_workflow_id"`
	IsPositive           *bool `json:"is_positive"` // 操作员评分

	// 关联
	History []OldAIInsight `gorm:"foreignKey:AIInsightID" json:"history,omitempty"`
}

// TableName 指定表名
func (AIInsight) TableName() string {
	return "ai_insights"
}

// IsProcessing 是否有分析请求进行中
func (a *AIInsight) IsProcessing() bool {
	if len(a.Summary) == 0 {
		return false
	}
	var marker struct {
		Processing bool `json:"processing"`
	}
	if err := json.Unmarshal(a.Summary, &marker); err != nil {
		return false
	}
	return marker.Processing
}

// IsComplete 推荐是否完整（已有选中转移和目标工作流）
func (a *AIInsight) IsComplete() bool {
	return a.SelectedTransitionID != nil && a.TargetWorkflowID != nil
}

// Age 距创建的时长
func (a *AIInsight) Age(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt)
}

// OldAIInsight 被取代的AI推荐快照（只追加，构成修订历史）
type OldAIInsight struct {
	BaseModel
	AIInsightID uint `gorm:"not null;index" json:"ai_insight_id"`

	Summary      JSON   `gorm:"type:jsonb" json:"summary"`
	UserFeedback string `gorm:"size:1000" json:"user_feedback"` // 触发归档的反馈文本
	WasPositive  *bool  `json:"was_positive"`                   // 归档时的评分
}

// TableName 指定表名
func (OldAIInsight) TableName() string {
	return "old_ai_insights"
}
