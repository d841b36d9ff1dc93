package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nsxzhou1114/shop-api/internal/dto"
	"github.com/nsxzhou1114/shop-api/internal/model"
	"github.com/nsxzhou1114/shop-api/internal/repository"
	"github.com/nsxzhou1114/shop-api/pkg/auth"
	"github.com/nsxzhou1114/shop-api/pkg/mailer"
	"github.com/nsxzhou1114/shop-api/pkg/storage"
	"github.com/nsxzhou1114/shop-api/pkg/xerrors"
	"go.uber.org/zap"
)

// 邮件与上传调用的超时时间
const providerTimeout = 15 * time.Second

// updatableFields 用户可自行修改的字段
var updatableFields = map[string]struct{}{
	model.FieldName:     {},
	model.FieldEmail:    {},
	model.FieldMobile:   {},
	model.FieldPassword: {},
}

// UserServiceOptions 用户服务配置
type UserServiceOptions struct {
	FrontendURL      string
	MaxAvatarSize    int64
	AllowedImageType []string
}

// UserService 用户服务，负责注册、登录、令牌续期与找回密码流程
type UserService struct {
	repo     repository.UserRepository
	issuer   *auth.Issuer
	otp      *auth.OTPManager
	hasher   *auth.Hasher
	mailer   mailer.Sender
	uploader storage.Uploader
	log      *zap.SugaredLogger
	opts     UserServiceOptions
	now      func() time.Time
}

// NewUserService 创建用户服务实例
func NewUserService(
	repo repository.UserRepository,
	issuer *auth.Issuer,
	otp *auth.OTPManager,
	hasher *auth.Hasher,
	sender mailer.Sender,
	uploader storage.Uploader,
	log *zap.SugaredLogger,
	opts UserServiceOptions,
) *UserService {
	return &UserService{
		repo:     repo,
		issuer:   issuer,
		otp:      otp,
		hasher:   hasher,
		mailer:   sender,
		uploader: uploader,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

// WithClock 替换时钟，测试使用
func (s *UserService) WithClock(now func() time.Time) *UserService {
	s.now = now
	return s
}

// Register 用户注册，验证邮件发送失败不影响注册结果
func (s *UserService) Register(ctx context.Context, req *dto.RegisterRequest) (*model.User, error) {
	name := strings.TrimSpace(req.Name)
	email := auth.NormalizeEmail(req.Email)
	if name == "" || email == "" || req.Password == "" {
		return nil, xerrors.Validation("Name, email, and password are required.")
	}
	if !auth.ValidEmail(email) {
		return nil, xerrors.Validation("Invalid email format.")
	}
	if err := auth.CheckPasswordStrength(req.Password); err != nil {
		return nil, xerrors.Validation(err.Error())
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, xerrors.Conflict("User with this email already exists.")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, xerrors.Internal("failed to look up user", err)
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, xerrors.Internal("failed to hash password", err)
	}

	user := &model.User{
		Base:     model.Base{ID: model.NewID()},
		Name:     name,
		Email:    email,
		Password: hashed,
		Status:   model.StatusActive,
		Role:     model.RoleUser,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, xerrors.Conflict("User with this email already exists.")
		}
		return nil, xerrors.Internal("failed to create user", err)
	}

	s.sendVerification(ctx, user)
	return user, nil
}

// sendVerification 尽力发送验证邮件，失败只记录日志
func (s *UserService) sendVerification(ctx context.Context, user *model.User) {
	msg, err := mailer.VerifyEmail(user.Email, user.Name, mailer.VerifyLink(s.opts.FrontendURL, user.ID))
	if err == nil {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), providerTimeout)
		defer cancel()
		err = s.mailer.Send(sendCtx, msg)
	}
	if err != nil {
		s.log.Warnw("验证邮件发送失败", "user_id", user.ID, "email", user.Email, "error", err)
		return
	}
	s.log.Infow("验证邮件已发送", "user_id", user.ID)
}

// VerifyEmail 验证邮箱，已验证时幂等返回
func (s *UserService) VerifyEmail(ctx context.Context, reference string) (alreadyVerified bool, err error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return false, xerrors.Validation("Verification token is required.")
	}

	user, err := s.findByID(ctx, reference, "Invalid verification token.")
	if err != nil {
		return false, err
	}
	if user.VerifyEmail {
		return true, nil
	}

	if _, err := s.repo.Update(ctx, user.ID, model.Updates{model.FieldVerifyEmail: true}); err != nil {
		return false, s.storeError(err, "Invalid verification token.")
	}
	return false, nil
}

// Login 用户登录，签发访问令牌与刷新令牌
func (s *UserService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	email := auth.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, xerrors.Validation("Email and password are required.")
	}
	if !s.issuer.Configured() {
		return nil, xerrors.Configuration(auth.ErrSecretNotConfigured)
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Compare(user.Password, req.Password)
	if err != nil {
		return nil, xerrors.Internal("failed to compare password", err)
	}
	if !ok {
		return nil, xerrors.Unauthorized("Invalid password.")
	}
	if !user.VerifyEmail {
		return nil, xerrors.Forbidden("Please verify your email before logging in.")
	}
	if user.Status != model.StatusActive {
		return nil, xerrors.Forbidden("Your account is not active. Please contact support.")
	}

	sub := auth.Subject{ID: user.ID, Email: user.Email}
	accessToken, err := s.issuer.IssueAccessToken(sub)
	if err != nil {
		return nil, tokenIssueError(err)
	}
	refreshToken, err := s.issueRefreshToken(ctx, sub, model.Updates{model.FieldLastLoginDate: s.now()})
	if err != nil {
		return nil, err
	}

	s.log.Infow("用户登录成功", "user_id", user.ID)
	return &dto.LoginResponse{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// issueRefreshToken 签发刷新令牌并覆盖保存到用户记录，旧令牌随即失效
func (s *UserService) issueRefreshToken(ctx context.Context, sub auth.Subject, extra model.Updates) (string, error) {
	token, err := s.issuer.IssueRefreshToken(sub)
	if err != nil {
		return "", tokenIssueError(err)
	}

	updates := model.Updates{model.FieldRefreshToken: token}
	for k, v := range extra {
		updates[k] = v
	}
	if _, err := s.repo.Update(ctx, sub.ID, updates); err != nil {
		return "", s.storeError(err, "User not found.")
	}
	return token, nil
}

// Logout 尽力清除保存的刷新令牌，失败只记录日志
func (s *UserService) Logout(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	if _, err := s.repo.Update(ctx, userID, model.Updates{model.FieldRefreshToken: ""}); err != nil {
		s.log.Warnw("登出时清除刷新令牌失败", "user_id", userID, "error", err)
	}
}

// RefreshToken 用保存的刷新令牌换取新的访问令牌，刷新令牌本身不轮换
func (s *UserService) RefreshToken(ctx context.Context, token string) (*dto.RefreshTokenResponse, error) {
	if token == "" {
		return nil, xerrors.Unauthorized("Refresh token is required.")
	}

	claims, err := s.issuer.VerifyRefreshToken(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrSecretNotConfigured):
			return nil, xerrors.Configuration(err)
		case errors.Is(err, auth.ErrTokenExpired):
			return nil, xerrors.Unauthorized("Refresh token has expired. Please login again.")
		default:
			return nil, xerrors.Unauthorized("Invalid refresh token.")
		}
	}

	user, err := s.repo.FindByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, xerrors.Unauthorized("User not found.")
		}
		return nil, xerrors.Internal("failed to look up user", err)
	}

	if user.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(token)) != 1 {
		return nil, xerrors.Unauthorized("Refresh token has been revoked.")
	}

	accessToken, err := s.issuer.IssueAccessToken(auth.Subject{ID: user.ID, Email: user.Email})
	if err != nil {
		return nil, tokenIssueError(err)
	}
	return &dto.RefreshTokenResponse{AccessToken: accessToken}, nil
}

// ForgotPassword 生成验证码并发送，发送失败时回滚验证码
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return xerrors.Validation("Email is required.")
	}
	if !auth.ValidEmail(email) {
		return xerrors.Validation("Invalid email format.")
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	challenge, err := s.otp.NewChallenge()
	if err != nil {
		return xerrors.Internal("failed to generate otp", err)
	}
	if _, err := s.repo.Update(ctx, user.ID, model.Updates{
		model.FieldForgotPasswordOTP:          challenge.Code,
		model.FieldForgotPasswordExpiry:       challenge.ExpiresAt,
		model.FieldPasswordResetVerifiedUntil: nil,
	}); err != nil {
		return s.storeError(err, "User not found.")
	}

	msg, err := mailer.ForgotPassword(user.Email, user.Name, challenge.Code, humanDuration(s.otp.TTL()))
	if err == nil {
		sendCtx, cancel := context.WithTimeout(ctx, providerTimeout)
		err = s.mailer.Send(sendCtx, msg)
		cancel()
	}
	if err != nil {
		s.log.Errorw("找回密码邮件发送失败，回滚验证码", "user_id", user.ID, "error", err)
		if _, rbErr := s.repo.Update(context.WithoutCancel(ctx), user.ID, model.Updates{}.ClearOTP()); rbErr != nil {
			s.log.Errorw("回滚验证码失败", "user_id", user.ID, "error", rbErr)
			return xerrors.Internal("failed to roll back otp", errors.Join(err, rbErr))
		}
		return xerrors.Upstream("Failed to send OTP email. Please try again later.", err)
	}
	return nil
}

// VerifyForgotPasswordOTP 校验验证码，成功后清除验证码并授权一次密码重置
func (s *UserService) VerifyForgotPasswordOTP(ctx context.Context, email, otp string) error {
	email = auth.NormalizeEmail(email)
	otp = strings.TrimSpace(otp)
	if email == "" || otp == "" {
		return xerrors.Validation("Email and OTP are required.")
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	stored := auth.Challenge{Code: user.ForgotPasswordOTP}
	if user.ForgotPasswordExpiry != nil {
		stored.ExpiresAt = *user.ForgotPasswordExpiry
	}

	switch err := s.otp.Verify(stored, otp); {
	case errors.Is(err, auth.ErrInvalidOTP):
		return xerrors.Wrap(xerrors.KindValidation, "Invalid OTP.", err)
	case errors.Is(err, auth.ErrOTPExpired):
		if _, clrErr := s.repo.Update(ctx, user.ID, model.Updates{}.ClearOTP()); clrErr != nil {
			s.log.Warnw("清除过期验证码失败", "user_id", user.ID, "error", clrErr)
		}
		return xerrors.Wrap(xerrors.KindValidation, "OTP has expired. Please request a new one.", err)
	case err != nil:
		return xerrors.Internal("failed to verify otp", err)
	}

	updates := model.Updates{}.ClearOTP()
	updates[model.FieldPasswordResetVerifiedUntil] = s.now().Add(s.otp.TTL())
	if _, err := s.repo.Update(ctx, user.ID, updates); err != nil {
		return s.storeError(err, "User not found.")
	}
	return nil
}

// ResetPassword 重置密码，要求验证码已被校验步骤消费
func (s *UserService) ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) error {
	email := auth.NormalizeEmail(req.Email)
	if req.NewPassword == "" || req.ConfPassword == "" {
		return xerrors.Validation("New password and confirm password are required.")
	}
	if req.NewPassword != req.ConfPassword {
		return xerrors.Validation("New password and confirm password must match.")
	}
	if email == "" {
		return xerrors.Validation("Email is required.")
	}
	if !auth.ValidEmail(email) {
		return xerrors.Validation("Invalid email format.")
	}
	if err := auth.CheckPasswordStrength(req.NewPassword); err != nil {
		return xerrors.Validation(err.Error())
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	if user.ForgotPasswordOTP != "" {
		return xerrors.Forbidden("Please verify the OTP sent to your email before resetting your password.")
	}
	if user.PasswordResetVerifiedUntil == nil || !s.now().Before(*user.PasswordResetVerifiedUntil) {
		return xerrors.Forbidden("Please verify the OTP sent to your email before resetting your password.")
	}

	hashed, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return xerrors.Internal("failed to hash password", err)
	}

	updates := model.Updates{
		model.FieldPassword:                   hashed,
		model.FieldPasswordResetVerifiedUntil: nil,
		model.FieldRefreshToken:               "",
	}.ClearOTP()
	if _, err := s.repo.Update(ctx, user.ID, updates); err != nil {
		return s.storeError(err, "User not found.")
	}

	s.log.Infow("用户密码已重置", "user_id", user.ID)
	return nil
}

// UpdateUser 更新用户资料，仅允许 name、email、mobile、password
func (s *UserService) UpdateUser(ctx context.Context, userID string, fields map[string]any) (*dto.UserResponse, error) {
	var unknown []string
	for k := range fields {
		if _, ok := updatableFields[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, xerrors.Validation(fmt.Sprintf(
			"Invalid fields: %s. Allowed fields: name, email, mobile, password.", strings.Join(unknown, ", ")))
	}
	if len(fields) == 0 {
		return nil, xerrors.Validation("No fields provided for update.")
	}

	values := make(map[string]string, len(fields))
	for k, v := range fields {
		str, ok := v.(string)
		if !ok {
			return nil, xerrors.Validation(fmt.Sprintf("Field %s must be a string.", k))
		}
		values[k] = str
	}

	user, err := s.findByID(ctx, userID, "User not found.")
	if err != nil {
		return nil, err
	}

	updates := model.Updates{}
	emailChanged := false

	if name, ok := values[model.FieldName]; ok {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, xerrors.Validation("Name cannot be empty.")
		}
		updates[model.FieldName] = name
	}
	if mobile, ok := values[model.FieldMobile]; ok {
		updates[model.FieldMobile] = strings.TrimSpace(mobile)
	}
	if raw, ok := values[model.FieldEmail]; ok {
		email := auth.NormalizeEmail(raw)
		if !auth.ValidEmail(email) {
			return nil, xerrors.Validation("Invalid email format.")
		}
		if email != user.Email {
			if other, err := s.repo.FindByEmail(ctx, email); err == nil && other.ID != user.ID {
				return nil, xerrors.Conflict("User with this email already exists.")
			} else if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
				return nil, xerrors.Internal("failed to look up user", err)
			}
			updates[model.FieldEmail] = email
			updates[model.FieldVerifyEmail] = false
			emailChanged = true
		}
	}
	if password, ok := values[model.FieldPassword]; ok {
		if err := auth.CheckPasswordStrength(password); err != nil {
			return nil, xerrors.Validation(err.Error())
		}
		hashed, err := s.hasher.Hash(password)
		if err != nil {
			return nil, xerrors.Internal("failed to hash password", err)
		}
		updates[model.FieldPassword] = hashed
	}

	if len(updates) == 0 {
		return dto.NewUserResponse(user), nil
	}

	updated, err := s.repo.Update(ctx, user.ID, updates)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, xerrors.Conflict("User with this email already exists.")
		}
		return nil, s.storeError(err, "User not found.")
	}

	if emailChanged {
		s.sendVerification(ctx, updated)
	}
	return dto.NewUserResponse(updated), nil
}

// UploadAvatar 上传头像并保存URL
func (s *UserService) UploadAvatar(ctx context.Context, userID string, file *storage.File) (*dto.AvatarResponse, error) {
	if s.uploader == nil {
		return nil, xerrors.Configuration(storage.ErrNotConfigured)
	}
	if file == nil || file.Body == nil {
		return nil, xerrors.Validation("No file uploaded.")
	}

	user, err := s.findByID(ctx, userID, "User not found.")
	if err != nil {
		return nil, err
	}

	if err := storage.ValidateImage(file, s.opts.MaxAvatarSize, s.opts.AllowedImageType); err != nil {
		return nil, xerrors.Wrap(xerrors.KindValidation, invalidFileMessage(err), err)
	}

	uploadCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()
	url, err := s.uploader.Upload(uploadCtx, file)
	if err != nil {
		s.log.Errorw("头像上传失败", "user_id", user.ID, "error", err)
		return nil, xerrors.Upstream("Failed to upload image. Please try again later.", err)
	}

	updated, err := s.repo.Update(ctx, user.ID, model.Updates{model.FieldAvatar: url})
	if err != nil {
		return nil, s.storeError(err, "User not found.")
	}
	return &dto.AvatarResponse{ID: updated.ID, Avatar: updated.Avatar}, nil
}

// GetUserDetails 获取当前用户信息
func (s *UserService) GetUserDetails(ctx context.Context, userID string) (*dto.UserResponse, error) {
	user, err := s.findByID(ctx, userID, "User not found.")
	if err != nil {
		return nil, err
	}
	return dto.NewUserResponse(user), nil
}

func (s *UserService) findByID(ctx context.Context, id, notFound string) (*model.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeError(err, notFound)
	}
	return user, nil
}

func (s *UserService) findByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.storeError(err, "User not found.")
	}
	return user, nil
}

// storeError 将存储层错误转换为业务错误
func (s *UserService) storeError(err error, notFound string) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return xerrors.NotFound(notFound)
	case errors.Is(err, repository.ErrDuplicateEmail):
		return xerrors.Conflict("User with this email already exists.")
	default:
		return xerrors.Internal("database error", err)
	}
}

func tokenIssueError(err error) error {
	if errors.Is(err, auth.ErrSecretNotConfigured) {
		return xerrors.Configuration(err)
	}
	return xerrors.Internal("failed to issue token", err)
}

func invalidFileMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), storage.ErrInvalidFile.Error()+": ")
	if msg == "" {
		return "Invalid file."
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}

// humanDuration 邮件中展示的有效期
func humanDuration(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
