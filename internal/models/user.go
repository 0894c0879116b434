package models

import "time"

// 用户状态
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User 控制台用户
type User struct {
	BaseModel
	Username string `gorm:"size:100;not null;uniqueIndex" json:"username"`
	Password string `gorm:"size:200;not null" json:"-"` // bcrypt哈希
	Name     string `gorm:"size:200" json:"name"`
	IsAdmin  bool   `gorm:"default:false" json:"is_admin"`
	Status   string `gorm:"size:20;default:active" json:"status"`

	LastLoginAt *time.Time `json:"last_login_at"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
