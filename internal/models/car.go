package models

import "gorm.io/datatypes"

// 车辆状态
const (
	CarStatusInStock   = "in_stock"
	CarStatusInProcess = "in_process"
	CarStatusSold      = "sold"
	CarStatusLost      = "lost"
)

// Car 在售车辆（流程实例的业务主体）
type Car struct {
	BaseModel

	// 车辆信息
	VIN   string `gorm:"size:17;uniqueIndex" json:"vin"`
	Make  string `gorm:"size:100;not null" json:"make"`
	Model string `gorm:"size:100;not null" json:"model"`
	Year  int    `json:"year"`

	// 报价与客户
	AskingPrice   float64 `json:"asking_price"`
	CustomerName  string  `gorm:"size:200" json:"customer_name"`
	CustomerPhone string  `gorm:"size:50" json:"customer_phone"`

	Status string `gorm:"size:20;default:in_stock;index" json:"status"`

	// 自定义字段（CRM扩展属性）
	CustomFields datatypes.JSON `gorm:"type:jsonb" json:"custom_fields"`
}

// TableName 指定表名
func (Car) TableName() string {
	return "cars"
}
