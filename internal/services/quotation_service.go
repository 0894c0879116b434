package services

import (
	"errors"
	"time"

	"salesflow/internal/models"
	apperrors "salesflow/pkg/errors"

	"gorm.io/gorm"
)

// QuotationService 报价单服务
type QuotationService struct {
	db *gorm.DB
}

// NewQuotationService 创建报价单服务
func NewQuotationService(db *gorm.DB) *QuotationService {
	return &QuotationService{db: db}
}

// CreateQuotationRequest 创建报价单请求
type CreateQuotationRequest struct {
	QuotedPrice float64    `json:"quoted_price" binding:"required,gt=0"`
	ValidUntil  *time.Time `json:"valid_until"`
	Note        string     `json:"note" binding:"max=500"`
}

// Create 为车辆创建报价单
func (s *QuotationService) Create(carID, userID uint, req CreateQuotationRequest) (*models.Quotation, error) {
	var count int64
	if err := s.db.Model(&models.Car{}).Where("id = ?", carID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, apperrors.NewNotFound("车辆不存在")
	}

	quotation := &models.Quotation{
		CarID:       carID,
		QuotedPrice: req.QuotedPrice,
		ValidUntil:  req.ValidUntil,
		Note:        req.Note,
		CreatedBy:   userID,
	}
	if err := s.db.Create(quotation).Error; err != nil {
		return nil, err
	}
	return quotation, nil
}

// ListByCar 获取车辆的报价单列表（新到旧）
func (s *QuotationService) ListByCar(carID uint) ([]models.Quotation, error) {
	var quotations []models.Quotation
	if err := s.db.Where("car_id = ?", carID).
		Order("created_at DESC").Find(&quotations).Error; err != nil {
		return nil, err
	}
	return quotations, nil
}

// GetLatestByCar 获取车辆最新报价单
func (s *QuotationService) GetLatestByCar(carID uint) (*models.Quotation, error) {
	var quotation models.Quotation
	err := s.db.Where("car_id = ?", carID).
		Order("created_at DESC").First(&quotation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("车辆尚无报价单")
		}
		return nil, err
	}
	return &quotation, nil
}
