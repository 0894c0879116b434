package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"salesflow/internal/models"
	apperrors "salesflow/pkg/errors"
	"salesflow/pkg/logger"
	"salesflow/pkg/webhook"

	"gorm.io/gorm"
)

// 防抖窗口：UI可能每次渲染都重复请求，窗口内直接复用结果
const insightDebounceWindow = 30 * time.Second

// AIInsightService AI转移推荐协调服务
// 管理 请求→处理中→完成→(反馈归档)→处理中 的循环状态机
type AIInsightService struct {
	db     *gorm.DB
	client *webhook.Client
	aiURL  string

	// 同一 (车, 来源实例) 的读改写串行化（进程内，见DESIGN.md）
	// 锁表只增不减，上限为进程见过的 车x来源实例 组合数
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAIInsightService 创建AI推荐服务
func NewAIInsightService(db *gorm.DB, client *webhook.Client, aiURL string) *AIInsightService {
	return &AIInsightService{
		db:     db,
		client: client,
		aiURL:  aiURL,
		locks:  make(map[string]*sync.Mutex),
	}
}

// InsightRequest AI推荐请求
type InsightRequest struct {
	CarID            uint   `json:"car_id" binding:"required"`
	SourceInstanceID uint   `json:"source_instance_id" binding:"required"`
	Phone            string `json:"phone"`
	UserFeedback     string `json:"user_feedback" binding:"max=1000"`
}

// InsightResult AI推荐结果
// Processing=true表示分析进行中（非错误），客户端可轮询
type InsightResult struct {
	Insight    *models.AIInsight     `json:"insight,omitempty"`
	History    []models.OldAIInsight `json:"history,omitempty"`
	IsNew      bool                  `json:"is_new"`
	Processing bool                  `json:"processing"`
}

func (s *AIInsightService) lockKey(carID, sourceInstanceID uint) *sync.Mutex {
	key := fmt.Sprintf("%d:%d", carID, sourceInstanceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[key]; !ok {
		s.locks[key] = &sync.Mutex{}
	}
	return s.locks[key]
}

// Request 请求AI转移推荐
// 规则：完成态直接复用；防抖窗口内的处理中返回Processing信号；
// 对完成态提交反馈则先归档再重新调用AI；首次调用失败时清理占位行
func (s *AIInsightService) Request(req InsightRequest) (*InsightResult, error) {
	// 来源实例必须存在且属于该车
	var source models.WorkflowInstance
	if err := s.db.First(&source, req.SourceInstanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("来源实例不存在")
		}
		return nil, err
	}
	if source.CarID != req.CarID {
		return nil, apperrors.NewValidation("来源实例不属于该车辆")
	}

	lock := s.lockKey(req.CarID, req.SourceInstanceID)
	lock.Lock()
	defer lock.Unlock()

	var current models.AIInsight
	err := s.db.Where("car_id = ? AND source_instance_id = ?", req.CarID, req.SourceInstanceID).
		First(&current).Error
	existed := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var previousSummary models.JSON

	switch {
	case existed && req.UserFeedback != "" && !current.IsProcessing():
		// 反馈修订：先归档旧推荐，再重置活跃行重新调用AI
		previousSummary = current.Summary
		if err := s.archiveAndReset(&current, req.UserFeedback); err != nil {
			return nil, err
		}

	case existed && current.IsComplete():
		// 完成态无需新调用，带历史直接返回
		return s.loadResult(&current, false)

	case existed && current.IsProcessing():
		if current.Age(time.Now()) < insightDebounceWindow {
			// 处理中信号，客户端稍后轮询
			return &InsightResult{Processing: true}, nil
		}
		// 超窗仍在处理中：视为上次调用已失联，复用该行重新调用
		previousSummary = current.Summary

	case existed:
		// 既未完成也无处理标记（如守护任务释放过），复用该行重新调用
		previousSummary = current.Summary
	}

	// 占位行：复用刚重置的ID，否则新建
	if !existed {
		current = models.AIInsight{
			CarID:            req.CarID,
			SourceInstanceID: req.SourceInstanceID,
			Summary:          processingMarker(""),
		}
		if err := s.db.Create(&current).Error; err != nil {
			return nil, err
		}
	}

	// 同步调用AI webhook（核心唯一的长延迟操作）
	payload := map[string]interface{}{
		"carId":            req.CarID,
		"sourceInstanceId": req.SourceInstanceID,
		"phoneNumber":      req.Phone,
		"previousInsight":  json.RawMessage(previousSummary),
		"feedback":         req.UserFeedback,
	}
	if len(previousSummary) == 0 {
		payload["previousInsight"] = nil
	}

	respBody, err := s.client.PostJSON(s.aiURL, payload)
	if err != nil {
		appLogger := logger.GetLogger()
		if !existed {
			// 本次新建的占位行要清掉，否则后续请求永远卡在"处理中"
			if delErr := s.db.Delete(&models.AIInsight{}, current.ID).Error; delErr != nil {
				appLogger.Errorf("清理AI占位记录失败: insight=%d err=%v", current.ID, delErr)
			}
		}
		appLogger.Warnf("AI webhook调用失败: car=%d source=%d err=%v",
			req.CarID, req.SourceInstanceID, err)
		return nil, apperrors.NewUpstream("AI分析服务调用失败", err)
	}

	recommendation, err := parseAIResponse(respBody)
	if err != nil {
		if !existed {
			s.db.Delete(&models.AIInsight{}, current.ID)
		}
		return nil, apperrors.NewUpstream("AI分析服务返回格式异常", err)
	}

	// 回写推荐结果
	if err := s.db.Model(&current).Updates(map[string]interface{}{
		"summary":                models.JSON(recommendation.Analysis),
		"selected_transition_id": recommendation.SelectedTransitionID,
		"target_workflow_id":     recommendation.TargetWorkflowID,
	}).Error; err != nil {
		return nil, err
	}

	return s.loadResult(&current, true)
}

// Rate 记录操作员对推荐的评分
func (s *AIInsightService) Rate(insightID uint, isPositive bool) (*models.AIInsight, error) {
	var insight models.AIInsight
	if err := s.db.First(&insight, insightID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("AI推荐不存在")
		}
		return nil, err
	}
	if err := s.db.Model(&insight).Update("is_positive", isPositive).Error; err != nil {
		return nil, err
	}
	return &insight, nil
}

// 归档当前推荐到修订历史并重置活跃行为处理中
func (s *AIInsightService) archiveAndReset(current *models.AIInsight, feedback string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		archive := &models.OldAIInsight{
			AIInsightID:  current.ID,
			Summary:      current.Summary,
			UserFeedback: feedback,
			WasPositive:  current.IsPositive,
		}
		if err := tx.Create(archive).Error; err != nil {
			return err
		}

		return tx.Model(current).Updates(map[string]interface{}{
			"summary":                processingMarker(feedback),
			"selected_transition_id": nil,
			"target_workflow_id":     nil,
			"is_positive":            nil,
		}).Error
	})
}

// 重新读取活跃行并附带修订历史
func (s *AIInsightService) loadResult(current *models.AIInsight, isNew bool) (*InsightResult, error) {
	var insight models.AIInsight
	if err := s.db.Preload("History", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at DESC")
	}).First(&insight, current.ID).Error; err != nil {
		return nil, err
	}
	return &InsightResult{
		Insight: &insight,
		History: insight.History,
		IsNew:   isNew,
	}, nil
}

// aiRecommendation AI webhook响应中的推荐对象
type aiRecommendation struct {
	Analysis             json.RawMessage `json:"analysis"`
	SelectedTransitionID *uint           `json:"selected_transition_id"`
	TargetWorkflowID     *uint           `json:"target_workflow_id"`
}

// 解析AI响应：供应商可能返回对象或单元素数组
func parseAIResponse(body []byte) (*aiRecommendation, error) {
	var rec aiRecommendation
	if err := json.Unmarshal(body, &rec); err == nil &&
		rec.TargetWorkflowID != nil && rec.SelectedTransitionID != nil {
		return &rec, nil
	}

	var list []aiRecommendation
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("无法解析AI响应: %s", string(body))
	}
	if len(list) == 0 {
		return nil, errors.New("AI响应为空数组")
	}
	if list[0].TargetWorkflowID == nil || list[0].SelectedTransitionID == nil {
		return nil, errors.New("AI响应缺少推荐字段")
	}
	return &list[0], nil
}

// 处理中标记，携带触发本轮的反馈上下文
func processingMarker(feedback string) models.JSON {
	marker := map[string]interface{}{"processing": true}
	if feedback != "" {
		marker["feedbackContext"] = feedback
	}
	data, _ := json.Marshal(marker)
	return models.JSON(data)
}
