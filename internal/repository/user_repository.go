package repository

import (
	"context"
	"errors"

	"github.com/nsxzhou1114/shop-api/internal/model"
)

var (
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("repository: user not found")
	// ErrDuplicateEmail 邮箱已被占用
	ErrDuplicateEmail = errors.New("repository: duplicate email")
)

// UserRepository 用户凭据存储
type UserRepository interface {
	// Create 新建用户，邮箱重复返回 ErrDuplicateEmail
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// Update 部分更新，返回更新后的用户
	Update(ctx context.Context, id string, updates model.Updates) (*model.User, error)
	// List 按创建时间倒序列出，limit<=0 不限制
	List(ctx context.Context, limit int) ([]*model.User, error)
}
