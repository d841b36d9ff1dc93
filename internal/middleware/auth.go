package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/shop-api/pkg/auth"
	"github.com/nsxzhou1114/shop-api/pkg/response"
	"github.com/nsxzhou1114/shop-api/pkg/xerrors"
)

const (
	// AccessTokenCookie 访问令牌 cookie 名
	AccessTokenCookie = "accessToken"
	// RefreshTokenCookie 刷新令牌 cookie 名
	RefreshTokenCookie = "refreshToken"

	ctxUserID = "userID"
	ctxClaims = "claims"
)

// BearerToken 从 Authorization 头读取 Bearer 令牌
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// extractToken 请求头优先，其次读取 cookie
func extractToken(c *gin.Context) string {
	if token := BearerToken(c); token != "" {
		return token
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
		return cookie
	}
	return ""
}

// JWTAuth JWT认证中间件，buffer 内即将过期时通过响应头提示客户端刷新
func JWTAuth(issuer *auth.Issuer, buffer time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.AbortWithError(c, http.StatusUnauthorized, "Access denied. No token provided.", nil)
			return
		}

		claims, err := issuer.VerifyAccessToken(token)
		if err != nil {
			if errors.Is(err, auth.ErrSecretNotConfigured) {
				response.AbortWithError(c, http.StatusInternalServerError, xerrors.ConfigurationMessage, err)
				return
			}
			response.AbortWithError(c, http.StatusUnauthorized, "Invalid or expired token.", err)
			return
		}

		if buffer > 0 && claims.ExpiresAt != nil && claims.ExpiresAt.Time.Sub(issuer.Now()) < buffer {
			c.Header("X-Token-Expire-Soon", "true")
		}

		c.Set(ctxUserID, claims.ID)
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// GetUserID 从上下文中获取用户ID
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(ctxUserID)
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok && id != ""
}

// GetClaims 从上下文中获取令牌声明
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, exists := c.Get(ctxClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
