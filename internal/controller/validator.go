package controller

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/nsxzhou1114/shop-api/pkg/auth"
	"github.com/nsxzhou1114/shop-api/pkg/response"
)

var registerOnce sync.Once

// RegisterValidators 向 gin 的校验引擎注册自定义标签
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("emailfmt", func(fl validator.FieldLevel) bool {
			return auth.ValidEmail(auth.NormalizeEmail(fl.Field().String()))
		})
	})
}

// 校验标签对应的提示
var msgMap = map[string]string{
	"required": "is required",
	"min":      "must be at least %v characters long",
	"max":      "must be at most %v characters long",
	"len":      "must be exactly %v characters long",
	"emailfmt": "must be a valid email address",
	"email":    "must be a valid email address",
	"numeric":  "must be numeric",
	"oneof":    "must be one of [%v]",
}

// 字段名映射为客户端使用的名称
var fieldMap = map[string]string{
	"Name":         "Name",
	"Email":        "Email",
	"Password":     "Password",
	"NewPassword":  "New password",
	"ConfPassword": "Confirm password",
	"OTP":          "OTP",
	"VerifyToken":  "Verification token",
}

// FormatValidationError 只返回第一个校验错误
func FormatValidationError(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "Invalid request."
	}
	firstErr := errs[0]

	fieldName := fieldMap[firstErr.Field()]
	if fieldName == "" {
		fieldName = firstErr.Field()
	}

	msgTemplate := msgMap[firstErr.Tag()]
	if msgTemplate == "" {
		msgTemplate = "is invalid"
	}
	if strings.Contains(msgTemplate, "%v") {
		msgTemplate = fmt.Sprintf(msgTemplate, firstErr.Param())
	}
	return fieldName + " " + msgTemplate + "."
}

// bindJSON 绑定请求体，空请求体按空对象处理，由服务层给出必填提示
func bindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if errors.Is(err, io.EOF) {
		err = binding.Validator.ValidateStruct(obj)
	}
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		response.BadRequest(c, FormatValidationError(verrs), err)
		return false
	}
	response.Error(c, http.StatusBadRequest, "Invalid request body.", err)
	return false
}
