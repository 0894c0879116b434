package services

import (
	"encoding/json"
	"time"

	"salesflow/internal/models"
	"salesflow/pkg/logger"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// 处理中标记的最长滞留时间，超过视为请求已崩溃
const stuckProcessingAfter = 10 * time.Minute

// InsightJanitor AI推荐守护任务
// 定期释放卡在"处理中"的推荐行，避免崩溃的请求永久堵住反馈循环
// 不触碰SLA状态（SLA只在读取时比较）
type InsightJanitor struct {
	db   *gorm.DB
	cron *cron.Cron
}

// NewInsightJanitor 创建守护任务
func NewInsightJanitor(db *gorm.DB) *InsightJanitor {
	return &InsightJanitor{
		db:   db,
		cron: cron.New(),
	}
}

// Start 启动守护任务（每5分钟一轮）
func (j *InsightJanitor) Start() error {
	if _, err := j.cron.AddFunc("@every 5m", j.sweep); err != nil {
		return err
	}
	j.cron.Start()
	logger.GetLogger().Info("AI insight janitor started")
	return nil
}

// Stop 停止守护任务
func (j *InsightJanitor) Stop() {
	j.cron.Stop()
}

// sweep 释放滞留的处理中标记
func (j *InsightJanitor) sweep() {
	appLogger := logger.GetLogger()
	cutoff := time.Now().Add(-stuckProcessingAfter)

	var stuck []models.AIInsight
	if err := j.db.Where("updated_at < ?", cutoff).Find(&stuck).Error; err != nil {
		appLogger.Errorf("扫描滞留AI推荐失败: %v", err)
		return
	}

	for _, insight := range stuck {
		if !insight.IsProcessing() {
			continue
		}
		released, _ := json.Marshal(map[string]interface{}{
			"processing": false,
			"released":   true,
		})
		if err := j.db.Model(&insight).Update("summary", models.JSON(released)).Error; err != nil {
			appLogger.Errorf("释放滞留AI推荐失败: insight=%d err=%v", insight.ID, err)
			continue
		}
		appLogger.Warnf("释放滞留的处理中AI推荐: insight=%d car=%d source=%d",
			insight.ID, insight.CarID, insight.SourceInstanceID)
	}
}
