package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/shop-api/internal/dto"
	"github.com/nsxzhou1114/shop-api/internal/middleware"
	"github.com/nsxzhou1114/shop-api/internal/service"
	"github.com/nsxzhou1114/shop-api/pkg/response"
	"github.com/nsxzhou1114/shop-api/pkg/storage"
	"go.uber.org/zap"
)

type UserApi struct {
	logger      *zap.SugaredLogger
	userService *service.UserService
	cookies     CookieOptions
}

func NewUserApi(userService *service.UserService, log *zap.SugaredLogger, cookies CookieOptions) *UserApi {
	RegisterValidators()
	return &UserApi{
		logger:      log,
		userService: userService,
		cookies:     cookies,
	}
}

// fail 记录日志并返回统一错误响应
func (api *UserApi) fail(c *gin.Context, action string, err error) {
	code, _ := response.Translate(c, err)
	if code >= http.StatusInternalServerError {
		api.logger.Errorw(action+"失败", "path", c.FullPath(), "error", err)
	} else {
		api.logger.Infow(action+"失败", "path", c.FullPath(), "error", err)
	}
	response.Fail(c, err)
}

// Register 用户注册
func (api *UserApi) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := api.userService.Register(c.Request.Context(), &req)
	if err != nil {
		api.fail(c, "用户注册", err)
		return
	}

	response.Created(c, "User registered successfully. Please verify your email.", dto.NewUserResponse(user))
}

// VerifyEmail 验证邮箱，令牌可来自 query 的 token/verifyToken 或请求体
func (api *UserApi) VerifyEmail(c *gin.Context) {
	ref := c.Query("token")
	if ref == "" {
		ref = c.Query("verifyToken")
	}
	if ref == "" && c.Request.ContentLength != 0 {
		var req dto.VerifyEmailRequest
		if !bindJSON(c, &req) {
			return
		}
		ref = req.VerifyToken
	}

	already, err := api.userService.VerifyEmail(c.Request.Context(), ref)
	if err != nil {
		api.fail(c, "邮箱验证", err)
		return
	}
	if already {
		response.Success(c, "Email is already verified.", nil)
		return
	}
	response.Success(c, "Email verified successfully.", nil)
}

// Login 用户登录，令牌同时写入 cookie 与响应体
func (api *UserApi) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	tokens, err := api.userService.Login(c.Request.Context(), &req)
	if err != nil {
		api.fail(c, "用户登录", err)
		return
	}

	setTokenCookie(c, middleware.AccessTokenCookie, tokens.AccessToken, api.cookies.AccessTTL, api.cookies.Secure)
	setTokenCookie(c, middleware.RefreshTokenCookie, tokens.RefreshToken, api.cookies.RefreshTTL, api.cookies.Secure)
	response.Success(c, "Login successful.", tokens)
}

// Logout 退出登录，总是清除 cookie
func (api *UserApi) Logout(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}

	api.userService.Logout(c.Request.Context(), userID)

	clearTokenCookie(c, middleware.AccessTokenCookie, api.cookies.Secure)
	clearTokenCookie(c, middleware.RefreshTokenCookie, api.cookies.Secure)
	response.Success(c, "Logout successful.", nil)
}

// UploadAvatar 上传头像，multipart 字段名 avatar
func (api *UserApi) UploadAvatar(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}

	var file *storage.File
	header, err := c.FormFile("avatar")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		response.BadRequest(c, "No file uploaded.", err)
		return
	default:
		f, err := header.Open()
		if err != nil {
			response.BadRequest(c, "Failed to read uploaded file.", err)
			return
		}
		defer f.Close()
		file = &storage.File{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        f,
		}
	}

	res, err := api.userService.UploadAvatar(c.Request.Context(), userID, file)
	if err != nil {
		api.fail(c, "头像上传", err)
		return
	}
	response.Success(c, "Image uploaded successfully.", res)
}

// UpdateUser 更新用户资料
func (api *UserApi) UpdateUser(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}

	fields := map[string]any{}
	if !bindJSON(c, &fields) {
		return
	}

	user, err := api.userService.UpdateUser(c.Request.Context(), userID, fields)
	if err != nil {
		api.fail(c, "更新用户信息", err)
		return
	}
	response.Success(c, "User updated successfully.", user)
}

// ForgotPassword 发送找回密码验证码
func (api *UserApi) ForgotPassword(c *gin.Context) {
	var req dto.ForgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := api.userService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		api.fail(c, "发送找回密码验证码", err)
		return
	}
	response.Success(c, "OTP sent to your email. Please check your inbox.", nil)
}

// VerifyForgotPasswordOTP 校验找回密码验证码
func (api *UserApi) VerifyForgotPasswordOTP(c *gin.Context) {
	var req dto.VerifyOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := api.userService.VerifyForgotPasswordOTP(c.Request.Context(), req.Email, req.OTP); err != nil {
		api.fail(c, "校验验证码", err)
		return
	}
	response.Success(c, "OTP verified successfully. You can now reset your password.", nil)
}

// ResetPassword 重置密码
func (api *UserApi) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := api.userService.ResetPassword(c.Request.Context(), &req); err != nil {
		api.fail(c, "重置密码", err)
		return
	}
	response.Success(c, "Password reset successfully. Please login with your new password.", nil)
}

// RefreshToken 刷新访问令牌，cookie 优先，其次 Bearer
func (api *UserApi) RefreshToken(c *gin.Context) {
	token, _ := c.Cookie(middleware.RefreshTokenCookie)
	if strings.TrimSpace(token) == "" {
		token = middleware.BearerToken(c)
	}

	res, err := api.userService.RefreshToken(c.Request.Context(), token)
	if err != nil {
		api.fail(c, "刷新令牌", err)
		return
	}

	setTokenCookie(c, middleware.AccessTokenCookie, res.AccessToken, api.cookies.AccessTTL, api.cookies.Secure)
	response.Success(c, "Access token refreshed successfully.", res)
}

// GetUserDetails 获取当前登录用户信息
func (api *UserApi) GetUserDetails(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}

	user, err := api.userService.GetUserDetails(c.Request.Context(), userID)
	if err != nil {
		api.fail(c, "获取用户信息", err)
		return
	}
	response.Success(c, "User details fetched successfully.", user)
}
