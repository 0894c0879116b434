package database

import (
	"salesflow/internal/models"
	"salesflow/pkg/logger"
)

// Migrate 执行数据库迁移
func Migrate() error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting database migration...")

	err := DB.AutoMigrate(
		&models.User{},
		// 车辆与报价
		&models.Car{},
		&models.Quotation{},
		// 工作流目录
		&models.WorkflowDefinition{},
		&models.WorkflowStep{},
		&models.WorkflowTransition{},
		// 实例与执行记录
		&models.WorkflowInstance{},
		&models.StepExecution{},
		// AI推荐
		&models.AIInsight{},
		&models.OldAIInsight{},
	)

	if err != nil {
		appLogger.Errorf("Database migration failed: %v", err)
		return err
	}

	appLogger.Info("Database migration completed")
	return nil
}
