package service

import (
	"context"
	"errors"
	"strings"

	"github.com/nsxzhou1114/shop-api/internal/model"
	"github.com/nsxzhou1114/shop-api/internal/repository"
	"github.com/nsxzhou1114/shop-api/pkg/auth"
	"github.com/nsxzhou1114/shop-api/pkg/xerrors"
)

// CreateAdmin 命令行创建管理员，邮箱直接视为已验证
func (s *UserService) CreateAdmin(ctx context.Context, name, email, password string) (*model.User, error) {
	name = strings.TrimSpace(name)
	email = auth.NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, xerrors.Validation("Name, email, and password are required.")
	}
	if !auth.ValidEmail(email) {
		return nil, xerrors.Validation("Invalid email format.")
	}
	if err := auth.CheckPasswordStrength(password); err != nil {
		return nil, xerrors.Validation(err.Error())
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, xerrors.Internal("failed to hash password", err)
	}

	user := &model.User{
		Base:        model.Base{ID: model.NewID()},
		Name:        name,
		Email:       email,
		Password:    hashed,
		VerifyEmail: true,
		Status:      model.StatusActive,
		Role:        model.RoleAdmin,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, xerrors.Conflict("User with this email already exists.")
		}
		return nil, xerrors.Internal("failed to create user", err)
	}
	return user, nil
}

// ListUsers 按创建时间倒序列出用户
func (s *UserService) ListUsers(ctx context.Context, limit int) ([]*model.User, error) {
	users, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, xerrors.Internal("failed to list users", err)
	}
	return users, nil
}

// SetPassword 管理员重置密码，同时使现有会话失效
func (s *UserService) SetPassword(ctx context.Context, email, password string) error {
	if err := auth.CheckPasswordStrength(password); err != nil {
		return xerrors.Validation(err.Error())
	}
	user, err := s.findByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		return err
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return xerrors.Internal("failed to hash password", err)
	}
	updates := model.Updates{
		model.FieldPassword:                   hashed,
		model.FieldRefreshToken:               "",
		model.FieldPasswordResetVerifiedUntil: nil,
	}.ClearOTP()
	if _, err := s.repo.Update(ctx, user.ID, updates); err != nil {
		return s.storeError(err, "User not found.")
	}
	return nil
}

// SetStatus 更新账户状态，非 active 状态同时清除刷新令牌
func (s *UserService) SetStatus(ctx context.Context, email string, status model.UserStatus) error {
	if !status.Valid() {
		return xerrors.Validation("Status must be one of active, inactive, banned.")
	}
	user, err := s.findByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		return err
	}

	updates := model.Updates{model.FieldStatus: status}
	if status != model.StatusActive {
		updates[model.FieldRefreshToken] = ""
	}
	if _, err := s.repo.Update(ctx, user.ID, updates); err != nil {
		return s.storeError(err, "User not found.")
	}
	return nil
}
