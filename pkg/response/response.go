package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/shop-api/pkg/xerrors"
)

// InternalMessage 生产环境下替代内部错误详情
const InternalMessage = "Internal server error. Please try again later."

// Response 统一响应结构
type Response struct {
	Message string `json:"message"`
	Error   bool   `json:"error"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
}

// exposeInternalKey 上下文中是否暴露内部错误信息的键
const exposeInternalKey = "response.exposeInternal"

// ExposeInternal 按运行环境决定是否向客户端返回内部错误详情，未注册时不暴露
func ExposeInternal(expose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(exposeInternalKey, expose)
		c.Next()
	}
}

// Success 返回成功响应
func Success(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{
		Message: message,
		Success: true,
		Data:    data,
	})
}

// Created 201 成功响应
func Created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, Response{
		Message: message,
		Success: true,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string, err error) {
	// 记录详细错误信息，但不向客户端暴露
	if err != nil {
		_ = c.Error(err)
	}

	c.JSON(code, Response{
		Message: message,
		Error:   true,
	})
}

// AbortWithError 中间件中使用，终止后续处理
func AbortWithError(c *gin.Context, code int, message string, err error) {
	Error(c, code, message, err)
	c.Abort()
}

// Fail 将业务错误转换为统一响应
func Fail(c *gin.Context, err error) {
	code, message := Translate(c, err)
	Error(c, code, message, err)
}

// Translate 错误到状态码与客户端消息的映射
func Translate(c *gin.Context, err error) (int, string) {
	e, ok := xerrors.As(err)
	if !ok {
		return http.StatusInternalServerError, internalMessage(c, err)
	}
	switch e.Kind {
	case xerrors.KindInternal:
		return http.StatusInternalServerError, internalMessage(c, err)
	case xerrors.KindConfiguration:
		return http.StatusInternalServerError, xerrors.ConfigurationMessage
	default:
		return e.Kind.HTTPStatus(), e.Message
	}
}

func internalMessage(c *gin.Context, err error) string {
	if err == nil || c == nil || !c.GetBool(exposeInternalKey) {
		return InternalMessage
	}
	return err.Error()
}

// BadRequest 400错误响应
func BadRequest(c *gin.Context, message string, err error) {
	Error(c, http.StatusBadRequest, message, err)
}

// Unauthorized 401错误响应
func Unauthorized(c *gin.Context, message string, err error) {
	Error(c, http.StatusUnauthorized, message, err)
}

// NotFound 404错误响应
func NotFound(c *gin.Context, message string, err error) {
	Error(c, http.StatusNotFound, message, err)
}
