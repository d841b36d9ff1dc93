package model

import (
	"time"
)

// UserStatus 账户状态
type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusInactive UserStatus = "inactive"
	StatusBanned   UserStatus = "banned"
)

// Valid 是否为已知状态
func (s UserStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusBanned:
		return true
	}
	return false
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User 用户模型
type User struct {
	Base                       `bson:",inline"`
	Name                       string     `gorm:"column:name;type:varchar(100);not null" bson:"name" json:"name"`
	Email                      string     `gorm:"column:email;type:varchar(255);not null;uniqueIndex" bson:"email" json:"email"`
	Password                   string     `gorm:"column:password;type:varchar(100);not null" bson:"password" json:"-"`
	Avatar                     string     `gorm:"column:avatar;type:varchar(512)" bson:"avatar" json:"avatar"`
	Mobile                     string     `gorm:"column:mobile;type:varchar(32)" bson:"mobile" json:"mobile"`
	RefreshToken               string     `gorm:"column:refresh_token;type:text" bson:"refresh_token" json:"-"`
	VerifyEmail                bool       `gorm:"column:verify_email;not null;default:false" bson:"verify_email" json:"verify_email"`
	LastLoginDate              *time.Time `gorm:"column:last_login_date" bson:"last_login_date" json:"last_login_date"`
	Status                     UserStatus `gorm:"column:status;type:varchar(16);not null;default:'active'" bson:"status" json:"status"`
	Role                       string     `gorm:"column:role;type:varchar(16);not null;default:'user'" bson:"role" json:"role"`
	ForgotPasswordOTP          string     `gorm:"column:forgot_password_otp;type:varchar(16)" bson:"forgot_password_otp" json:"-"`
	ForgotPasswordExpiry       *time.Time `gorm:"column:forgot_password_expiry" bson:"forgot_password_expiry" json:"-"`
	PasswordResetVerifiedUntil *time.Time `gorm:"column:password_reset_verified_until" bson:"password_reset_verified_until" json:"-"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// CollectionName MongoDB 集合名
func (User) CollectionName() string {
	return "users"
}

// 字段名与 bson 键、数据库列名一致，用于部分更新
const (
	FieldName                       = "name"
	FieldEmail                      = "email"
	FieldPassword                   = "password"
	FieldAvatar                     = "avatar"
	FieldMobile                     = "mobile"
	FieldRefreshToken               = "refresh_token"
	FieldVerifyEmail                = "verify_email"
	FieldLastLoginDate              = "last_login_date"
	FieldStatus                     = "status"
	FieldRole                       = "role"
	FieldForgotPasswordOTP          = "forgot_password_otp"
	FieldForgotPasswordExpiry       = "forgot_password_expiry"
	FieldPasswordResetVerifiedUntil = "password_reset_verified_until"
	FieldUpdatedAt                  = "updated_at"
)

// Updates 部分更新，键为上面的字段名
type Updates map[string]any

// ClearOTP 清除验证码相关字段
func (u Updates) ClearOTP() Updates {
	u[FieldForgotPasswordOTP] = ""
	u[FieldForgotPasswordExpiry] = nil
	return u
}

// Apply 将更新应用到内存中的用户对象，内存存储与测试使用
func (u Updates) Apply(user *User) {
	for k, v := range u {
		switch k {
		case FieldName:
			user.Name = v.(string)
		case FieldEmail:
			user.Email = v.(string)
		case FieldPassword:
			user.Password = v.(string)
		case FieldAvatar:
			user.Avatar = v.(string)
		case FieldMobile:
			user.Mobile = v.(string)
		case FieldRefreshToken:
			user.RefreshToken = v.(string)
		case FieldVerifyEmail:
			user.VerifyEmail = v.(bool)
		case FieldStatus:
			user.Status = v.(UserStatus)
		case FieldRole:
			user.Role = v.(string)
		case FieldForgotPasswordOTP:
			user.ForgotPasswordOTP = v.(string)
		case FieldLastLoginDate:
			user.LastLoginDate = timePtr(v)
		case FieldForgotPasswordExpiry:
			user.ForgotPasswordExpiry = timePtr(v)
		case FieldPasswordResetVerifiedUntil:
			user.PasswordResetVerifiedUntil = timePtr(v)
		case FieldUpdatedAt:
			if t := timePtr(v); t != nil {
				user.UpdatedAt = *t
			}
		}
	}
}

func timePtr(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		if t == nil {
			return nil
		}
		c := *t
		return &c
	default:
		return nil
	}
}
