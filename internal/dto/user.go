package dto

import (
	"time"

	"github.com/nsxzhou1114/shop-api/internal/model"
)

// RegisterRequest 用户注册请求，必填项由服务层统一校验
type RegisterRequest struct {
	Name     string `json:"name" binding:"max=100"`
	Email    string `json:"email" binding:"omitempty,max=255,emailfmt"`
	Password string `json:"password" binding:"max=72"`
}

// VerifyEmailRequest 邮箱验证请求，兼容 body 与 query
type VerifyEmailRequest struct {
	VerifyToken string `json:"verifyToken" form:"verifyToken"`
}

// LoginRequest 用户登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"omitempty,max=255"`
	Password string `json:"password" binding:"max=72"`
}

// LoginResponse 登录返回的令牌对
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshTokenResponse 刷新令牌返回
type RefreshTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// ForgotPasswordRequest 忘记密码请求
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"omitempty,max=255"`
}

// VerifyOTPRequest 验证码校验请求
type VerifyOTPRequest struct {
	Email string `json:"email" binding:"omitempty,max=255"`
	OTP   string `json:"otp" binding:"max=16"`
}

// ResetPasswordRequest 重置密码请求
type ResetPasswordRequest struct {
	Email        string `json:"email" binding:"omitempty,max=255"`
	NewPassword  string `json:"newPassword" binding:"max=72"`
	ConfPassword string `json:"confPassword" binding:"max=72"`
}

// AvatarResponse 头像上传返回
type AvatarResponse struct {
	ID     string `json:"_id"`
	Avatar string `json:"avatar"`
}

// UserResponse 用户信息响应，不包含密码、令牌与验证码
type UserResponse struct {
	ID            string           `json:"_id"`
	Name          string           `json:"name"`
	Email         string           `json:"email"`
	Avatar        string           `json:"avatar"`
	Mobile        string           `json:"mobile"`
	VerifyEmail   bool             `json:"verify_email"`
	LastLoginDate *time.Time       `json:"last_login_date"`
	Status        model.UserStatus `json:"status"`
	Role          string           `json:"role"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// NewUserResponse 生成用户响应
func NewUserResponse(u *model.User) *UserResponse {
	return &UserResponse{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Avatar:        u.Avatar,
		Mobile:        u.Mobile,
		VerifyEmail:   u.VerifyEmail,
		LastLoginDate: u.LastLoginDate,
		Status:        u.Status,
		Role:          u.Role,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
