package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/shop-api/internal/controller"
	"github.com/nsxzhou1114/shop-api/internal/middleware"
	"github.com/nsxzhou1114/shop-api/pkg/auth"
	"github.com/nsxzhou1114/shop-api/pkg/response"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps 路由依赖
type Deps struct {
	UserApi *controller.UserApi
	Issuer  *auth.Issuer
	// TokenBuffer 访问令牌剩余时间小于该值时提示客户端刷新
	TokenBuffer time.Duration
	// Redis 为空时不启用限流
	Redis     redis.Cmdable
	RateLimit middleware.RateLimitOptions
	Logger    *zap.SugaredLogger
}

// Setup 设置API路由
func Setup(r *gin.Engine, deps Deps) {
	r.GET("/", func(c *gin.Context) {
		response.Success(c, "API is running...", nil)
	})

	api := r.Group("/api")

	// 用户相关路由
	setupUserRoutes(api, deps)

	r.NoRoute(middleware.NotFound())
}

// setupUserRoutes 设置用户相关路由
func setupUserRoutes(api *gin.RouterGroup, deps Deps) {
	userApi := deps.UserApi
	authGate := middleware.JWTAuth(deps.Issuer, deps.TokenBuffer)

	// 敏感接口限流
	limit := func(c *gin.Context) { c.Next() }
	if deps.Redis != nil {
		limit = middleware.RateLimiter(deps.Redis, deps.RateLimit, deps.Logger)
	}

	// 公开路由
	userRoutes := api.Group("/user")
	{
		// 注册
		userRoutes.POST("/register", limit, userApi.Register)
		// 验证邮箱
		userRoutes.GET("/verify-email", userApi.VerifyEmail)
		userRoutes.POST("/verify-email", userApi.VerifyEmail)
		// 登录
		userRoutes.POST("/login", limit, userApi.Login)
		// 忘记密码
		userRoutes.POST("/forgot-password", limit, userApi.ForgotPassword)
		userRoutes.PUT("/forgot-password", limit, userApi.ForgotPassword)
		// 校验验证码
		userRoutes.PUT("/verify-otp", limit, userApi.VerifyForgotPasswordOTP)
		// 重置密码
		userRoutes.PUT("/reset-password", limit, userApi.ResetPassword)
		// 刷新令牌
		userRoutes.POST("/refresh-token", limit, userApi.RefreshToken)
	}

	// 需要认证的路由
	authUserRoutes := api.Group("/user", authGate)
	{
		// 登出
		authUserRoutes.GET("/logout", userApi.Logout)
		// 上传头像
		authUserRoutes.PUT("/upload-avatar", userApi.UploadAvatar)
		// 更新用户信息
		authUserRoutes.PUT("/update-user", userApi.UpdateUser)
		// 获取当前用户信息
		authUserRoutes.GET("/user-details", userApi.GetUserDetails)
	}
}
