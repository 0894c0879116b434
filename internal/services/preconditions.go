package services

import (
	"sync"

	"salesflow/internal/models"
	apperrors "salesflow/pkg/errors"

	"gorm.io/gorm"
)

// PreconditionChecker 工作流激活前置条件检查
// 返回业务错误时激活在建实例之前失败
type PreconditionChecker func(db *gorm.DB, carID uint) error

var (
	preconditionMu       sync.RWMutex
	preconditionCheckers = map[string]PreconditionChecker{
		// 议价/签约前车辆必须已有报价单
		models.WorkflowCodeNegotiation: requireQuotation,
		models.WorkflowCodeContract:    requireQuotation,
	}
)

// RegisterPrecondition 注册工作流激活前置条件
func RegisterPrecondition(workflowCode string, checker PreconditionChecker) {
	preconditionMu.Lock()
	defer preconditionMu.Unlock()
	preconditionCheckers[workflowCode] = checker
}

// checkPrecondition 执行目标工作流的前置条件检查（未注册则直接通过）
func checkPrecondition(db *gorm.DB, workflowCode string, carID uint) error {
	preconditionMu.RLock()
	checker, ok := preconditionCheckers[workflowCode]
	preconditionMu.RUnlock()

	if !ok {
		return nil
	}
	return checker(db, carID)
}

func requireQuotation(db *gorm.DB, carID uint) error {
	var count int64
	if err := db.Model(&models.Quotation{}).Where("car_id = ?", carID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperrors.NewInvalidState("车辆尚未创建报价单，无法进入该流程")
	}
	return nil
}
