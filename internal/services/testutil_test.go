package services

import (
	"testing"
	"time"

	"salesflow/internal/models"
	"salesflow/pkg/webhook"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB 内存数据库，每个测试独立
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Car{},
		&models.Quotation{},
		&models.WorkflowDefinition{},
		&models.WorkflowStep{},
		&models.WorkflowTransition{},
		&models.WorkflowInstance{},
		&models.StepExecution{},
		&models.AIInsight{},
		&models.OldAIInsight{},
	))
	return db
}

func newTestCar(t *testing.T, db *gorm.DB) *models.Car {
	t.Helper()
	car := &models.Car{
		VIN:           "LSGKB54E8EA123456",
		Make:          "Volkswagen",
		Model:         "Passat",
		Year:          2023,
		AskingPrice:   215000,
		CustomerName:  "张伟",
		CustomerPhone: "13800138000",
		Status:        models.CarStatusInStock,
	}
	require.NoError(t, db.Create(car).Error)
	return car
}

// newTestWorkflow 创建带步骤的工作流定义
func newTestWorkflow(t *testing.T, db *gorm.DB, code string, slaHours *int, stepNames ...string) *models.WorkflowDefinition {
	t.Helper()
	workflow := &models.WorkflowDefinition{
		Code:     code,
		Name:     code,
		Stage:    "test",
		SLAHours: slaHours,
		IsActive: true,
	}
	require.NoError(t, db.Create(workflow).Error)

	for i, name := range stepNames {
		require.NoError(t, db.Create(&models.WorkflowStep{
			WorkflowID: workflow.ID,
			Name:       name,
			StepOrder:  i + 1,
		}).Error)
	}
	return workflow
}

func newTestTransition(t *testing.T, db *gorm.DB, from, to uint, condition string, priority int) *models.WorkflowTransition {
	t.Helper()
	transition := &models.WorkflowTransition{
		FromWorkflowID: from,
		ToWorkflowID:   to,
		ConditionLogic: condition,
		Priority:       priority,
	}
	require.NoError(t, db.Create(transition).Error)
	return transition
}

// newSilentNotify 通知webhook未配置的通知服务（派发直接跳过）
func newSilentNotify() *NotifyService {
	return NewNotifyService(webhook.NewClient(time.Second), "")
}

func intPtr(v int) *int {
	return &v
}

func uintPtr(v uint) *uint {
	return &v
}

func strPtr(v string) *string {
	return &v
}

// validProps 满足激活校验的最小transition_properties
func validProps(withParent bool) models.JSON {
	if withParent {
		return models.JSON(`{"custom_fields":{"source":"test"},"insight":"推荐进入议价","car_snapshot":{"asking_price":215000}}`)
	}
	return models.JSON(`{"custom_fields":{"source":"test"}}`)
}
