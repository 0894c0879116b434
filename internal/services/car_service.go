package services

import (
	"errors"

	"salesflow/internal/models"
	apperrors "salesflow/pkg/errors"
	"salesflow/pkg/pagination"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CarService 车辆服务（控制台CRUD）
type CarService struct {
	db *gorm.DB
}

// NewCarService 创建车辆服务
func NewCarService(db *gorm.DB) *CarService {
	return &CarService{db: db}
}

// CreateCarRequest 创建车辆请求
type CreateCarRequest struct {
	VIN           string         `json:"vin" binding:"required,len=17"`
	Make          string         `json:"make" binding:"required,max=100"`
	Model         string         `json:"model" binding:"required,max=100"`
	Year          int            `json:"year" binding:"required,min=1990"`
	AskingPrice   float64        `json:"asking_price" binding:"min=0"`
	CustomerName  string         `json:"customer_name" binding:"max=200"`
	CustomerPhone string         `json:"customer_phone" binding:"max=50"`
	CustomFields  datatypes.JSON `json:"custom_fields"`
}

// UpdateCarRequest 更新车辆请求
type UpdateCarRequest struct {
	AskingPrice   *float64       `json:"asking_price"`
	CustomerName  *string        `json:"customer_name"`
	CustomerPhone *string        `json:"customer_phone"`
	Status        *string        `json:"status" binding:"omitempty,oneof=in_stock in_process sold lost"`
	CustomFields  datatypes.JSON `json:"custom_fields"`
}

// Create 创建车辆
func (s *CarService) Create(req CreateCarRequest) (*models.Car, error) {
	var count int64
	if err := s.db.Model(&models.Car{}).Where("vin = ?", req.VIN).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, apperrors.NewValidation("VIN已存在")
	}

	car := &models.Car{
		VIN:           req.VIN,
		Make:          req.Make,
		Model:         req.Model,
		Year:          req.Year,
		AskingPrice:   req.AskingPrice,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Status:        models.CarStatusInStock,
		CustomFields:  req.CustomFields,
	}
	if err := s.db.Create(car).Error; err != nil {
		return nil, err
	}
	return car, nil
}

// Update 更新车辆
func (s *CarService) Update(id uint, req UpdateCarRequest) (*models.Car, error) {
	car, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.AskingPrice != nil {
		updates["asking_price"] = *req.AskingPrice
	}
	if req.CustomerName != nil {
		updates["customer_name"] = *req.CustomerName
	}
	if req.CustomerPhone != nil {
		updates["customer_phone"] = *req.CustomerPhone
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if len(req.CustomFields) > 0 {
		updates["custom_fields"] = req.CustomFields
	}

	if len(updates) > 0 {
		if err := s.db.Model(car).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.GetByID(id)
}

// GetByID 按ID获取车辆
func (s *CarService) GetByID(id uint) (*models.Car, error) {
	var car models.Car
	if err := s.db.First(&car, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("车辆不存在")
		}
		return nil, err
	}
	return &car, nil
}

// List 分页获取车辆列表
func (s *CarService) List(params *pagination.PageParams, search, status string) ([]models.Car, int64, error) {
	query := s.db.Model(&models.Car{})
	if search != "" {
		query = query.Where("vin LIKE ? OR make LIKE ? OR model LIKE ? OR customer_name LIKE ?",
			"%"+search+"%", "%"+search+"%", "%"+search+"%", "%"+search+"%")
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var cars []models.Car
	if err := query.Offset(params.GetOffset()).Limit(params.GetLimit()).
		Order("id DESC").Find(&cars).Error; err != nil {
		return nil, 0, err
	}
	return cars, total, nil
}
