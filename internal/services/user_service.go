package services

import (
	"errors"
	"time"

	"salesflow/internal/models"
	apperrors "salesflow/pkg/errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService 用户服务
type UserService struct {
	db *gorm.DB
}

// NewUserService 创建用户服务
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// Create 创建用户
func (s *UserService) Create(username, password, name string, isAdmin bool) (*models.User, error) {
	if len(username) < 3 {
		return nil, apperrors.NewValidation("用户名至少3个字符")
	}
	if len(password) < 6 {
		return nil, apperrors.NewValidation("密码至少6个字符")
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, apperrors.NewValidation("用户名已存在")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username: username,
		Password: string(hash),
		Name:     name,
		IsAdmin:  isAdmin,
		Status:   models.UserStatusActive,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID 按ID获取用户
func (s *UserService) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("用户不存在")
		}
		return nil, err
	}
	return &user, nil
}

// Login 校验凭证并记录登录时间
func (s *UserService) Login(username, password string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewValidation("用户名或密码错误")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, apperrors.NewValidation("用户名或密码错误")
	}
	if !s.IsActive(&user) {
		return nil, apperrors.NewValidation("用户已被禁用")
	}

	now := time.Now()
	s.db.Model(&user).Update("last_login_at", now)
	return &user, nil
}

// IsActive 用户是否可用
func (s *UserService) IsActive(user *models.User) bool {
	return user.Status == models.UserStatusActive
}
