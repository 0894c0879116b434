package models

import "time"

// Quotation 车辆报价单
// 议价/签约类工作流激活前要求车辆已有报价单（域前置条件）
type Quotation struct {
	BaseModel
	CarID uint `gorm:"not null;index" json:"car_id"`

	QuotedPrice float64    `gorm:"not null" json:"quoted_price"`
	ValidUntil  *time.Time `json:"valid_until"`
	Note        string     `gorm:"size:500" json:"note"`
	CreatedBy   uint       `json:"created_by"`
}

// TableName 指定表名
func (Quotation) TableName() string {
	return "quotations"
}
