package main

import (
	"fmt"

	"salesflow/internal/database"
	"salesflow/internal/models"
	"salesflow/internal/services"
	"salesflow/pkg/logger"

	"gorm.io/gorm"
)

// seedData 初始化种子数据
func seedData() error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting seed data initialization...")

	db := database.GetDB()

	// 1. 创建默认管理员用户
	if err := createDefaultAdmin(db); err != nil {
		return fmt.Errorf("创建默认管理员失败: %v", err)
	}

	// 2. 初始化销售流程目录
	if err := seedWorkflowCatalog(db); err != nil {
		return fmt.Errorf("初始化工作流目录失败: %v", err)
	}

	appLogger.Info("Seed data initialization completed successfully")
	return nil
}

// createDefaultAdmin 创建默认管理员用户
func createDefaultAdmin(db *gorm.DB) error {
	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count > 0 {
		logger.GetLogger().Info("默认管理员已存在，跳过创建")
		return nil
	}

	userService := services.NewUserService(db)
	_, err := userService.Create("admin", "Admin@123", "系统管理员", true)
	return err
}

// 种子工作流定义
type seedWorkflow struct {
	Code        string
	Name        string
	Stage       string
	Description string
	SLAHours    *int
	Steps       []seedStep
}

type seedStep struct {
	Name        string
	Order       int
	IsAutomated bool
}

// 种子转移边
type seedTransition struct {
	FromCode  string
	ToCode    string
	Condition string
	Priority  int
}

func hours(h int) *int {
	return &h
}

// seedWorkflowCatalog 初始化销售流程目录（已有目录时跳过）
func seedWorkflowCatalog(db *gorm.DB) error {
	var count int64
	db.Model(&models.WorkflowDefinition{}).Count(&count)
	if count > 0 {
		logger.GetLogger().Info("工作流目录已存在，跳过初始化")
		return nil
	}

	workflows := []seedWorkflow{
		{
			Code: models.WorkflowCodeLeadFollowup, Name: "线索跟进", Stage: "lead",
			Description: "新线索的首次触达与需求确认", SLAHours: hours(48),
			Steps: []seedStep{
				{Name: "初次联系", Order: 1},
				{Name: "需求确认", Order: 2},
			},
		},
		{
			Code: models.WorkflowCodeTestDrive, Name: "试驾邀约", Stage: "lead",
			Description: "预约并完成到店试驾", SLAHours: hours(24),
			Steps: []seedStep{
				{Name: "预约试驾", Order: 1, IsAutomated: true},
				{Name: "试驾完成", Order: 2},
			},
		},
		{
			Code: models.WorkflowCodeNegotiation, Name: "议价", Stage: "negotiation",
			Description: "基于报价单进行价格谈判", SLAHours: hours(24),
			Steps: []seedStep{
				{Name: "报价沟通", Order: 1},
				{Name: "价格确认", Order: 2},
			},
		},
		{
			Code: models.WorkflowCodeContract, Name: "签约", Stage: "closing",
			Description: "合同拟定与签署", SLAHours: hours(72),
			Steps: []seedStep{
				{Name: "合同拟定", Order: 1},
				{Name: "签约完成", Order: 2},
			},
		},
		{
			Code: models.WorkflowCodeDelivery, Name: "交车", Stage: "closing",
			Description: "车辆整备与交付", SLAHours: hours(48),
			Steps: []seedStep{
				{Name: "车辆整备", Order: 1, IsAutomated: true},
				{Name: "交付完成", Order: 2},
			},
		},
		{
			Code: models.WorkflowCodeLostDeal, Name: "流失登记", Stage: "closing",
			Description: "客户流失原因归档", SLAHours: nil,
			Steps: []seedStep{
				{Name: "流失原因登记", Order: 1},
			},
		},
	}

	transitions := []seedTransition{
		{models.WorkflowCodeLeadFollowup, models.WorkflowCodeTestDrive, "客户有试驾意向", 10},
		{models.WorkflowCodeLeadFollowup, models.WorkflowCodeNegotiation, "客户直接进入价格谈判", 20},
		{models.WorkflowCodeLeadFollowup, models.WorkflowCodeLostDeal, "客户失联或放弃", 90},
		{models.WorkflowCodeTestDrive, models.WorkflowCodeNegotiation, "试驾后有购买意向", 10},
		{models.WorkflowCodeTestDrive, models.WorkflowCodeLostDeal, "试驾后放弃", 90},
		{models.WorkflowCodeNegotiation, models.WorkflowCodeContract, "价格达成一致", 10},
		{models.WorkflowCodeNegotiation, models.WorkflowCodeLostDeal, "价格未谈拢", 90},
		{models.WorkflowCodeContract, models.WorkflowCodeDelivery, "合同已签署", 10},
		{models.WorkflowCodeContract, models.WorkflowCodeLostDeal, "签约前反悔", 90},
	}

	return db.Transaction(func(tx *gorm.DB) error {
		idByCode := make(map[string]uint, len(workflows))

		for _, wf := range workflows {
			definition := &models.WorkflowDefinition{
				Code:        wf.Code,
				Name:        wf.Name,
				Stage:       wf.Stage,
				Description: wf.Description,
				SLAHours:    wf.SLAHours,
				IsActive:    true,
			}
			if err := tx.Create(definition).Error; err != nil {
				return err
			}
			idByCode[wf.Code] = definition.ID

			for _, step := range wf.Steps {
				if err := tx.Create(&models.WorkflowStep{
					WorkflowID:  definition.ID,
					Name:        step.Name,
					StepOrder:   step.Order,
					IsAutomated: step.IsAutomated,
				}).Error; err != nil {
					return err
				}
			}
		}

		for _, t := range transitions {
			if err := tx.Create(&models.WorkflowTransition{
				FromWorkflowID: idByCode[t.FromCode],
				ToWorkflowID:   idByCode[t.ToCode],
				ConditionLogic: t.Condition,
				Priority:       t.Priority,
			}).Error; err != nil {
				return err
			}
		}

		logger.GetLogger().Infof("工作流目录初始化完成: %d个工作流", len(workflows))
		return nil
	})
}
