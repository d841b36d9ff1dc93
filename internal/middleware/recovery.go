package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/shop-api/pkg/response"
	"go.uber.org/zap"
)

// Recovery 捕获 panic，按统一响应格式返回 500
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		err := fmt.Errorf("panic: %v", recovered)
		log.Error("请求处理发生panic",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
		_, message := response.Translate(c, err)
		response.AbortWithError(c, http.StatusInternalServerError, message, err)
	})
}

// NotFound 未匹配路由
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.NotFound(c, "Route not found: "+c.Request.Method+" "+c.Request.URL.Path, nil)
	}
}
