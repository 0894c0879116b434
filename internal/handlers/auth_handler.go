package handlers

import (
	"salesflow/internal/services"
	"salesflow/pkg/jwt"
	"salesflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	userService *services.UserService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(userService *services.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.userService.Login(req.Username, req.Password)
	if err != nil {
		response.AppError(c, err)
		return
	}

	manager := jwt.GetJWTManager()
	token, err := manager.GenerateToken(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		response.ServerError(c, "生成Token失败")
		return
	}

	response.Success(c, gin.H{
		"token":      token,
		"expires_in": int(manager.GetTokenDuration().Seconds()),
		"user":       user,
	})
}

// RefreshRequest 刷新Token请求
type RefreshRequest struct {
	Token string `json:"token" binding:"required"`
}

// RefreshToken 刷新Token
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	newToken, err := jwt.GetJWTManager().RefreshToken(req.Token)
	if err != nil {
		response.Unauthorized(c, "Token无效或已过期")
		return
	}

	response.Success(c, gin.H{"token": newToken})
}

// Me 获取当前用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	user, _ := c.Get("user")
	response.Success(c, user)
}
