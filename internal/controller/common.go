package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/shop-api/internal/middleware"
	"github.com/nsxzhou1114/shop-api/pkg/response"
)

// CookieOptions 令牌 cookie 配置
type CookieOptions struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// getUserIDFromContext 从上下文中获取用户ID，未认证时直接写入 401
func getUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		response.Unauthorized(c, "Access denied. No token provided.", nil)
		return "", false
	}
	return userID, true
}

// setTokenCookie httpOnly + SameSite=Strict，生产环境仅 HTTPS
func setTokenCookie(c *gin.Context, name, value string, ttl time.Duration, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, value, int(ttl/time.Second), "/", "", secure, true)
}

func clearTokenCookie(c *gin.Context, name string, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, "", -1, "/", "", secure, true)
}
