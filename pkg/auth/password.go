package auth

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PolicyError 密码或邮箱不符合规则，Error() 直接面向用户
type PolicyError struct {
	Message string
}

func (e *PolicyError) Error() string { return e.Message }

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	letterPattern  = regexp.MustCompile(`[a-zA-Z]`)
	digitPattern   = regexp.MustCompile(`\d`)
	symbolPattern  = regexp.MustCompile(`[@$!%*?&#^()_+\-=\[\]{};':"\\|,.<>/]`)
	minPasswordLen = 8
	// bcrypt 只接受 72 字节以内的输入
	maxPasswordBytes = 72
)

// NormalizeEmail 去除首尾空白并转小写
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail 校验邮箱格式
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// CheckPasswordStrength 至少8位且不超过72字节，包含字母、数字和特殊字符
func CheckPasswordStrength(password string) error {
	switch {
	case password == "":
		return &PolicyError{Message: "Password is required."}
	case len(password) < minPasswordLen:
		return &PolicyError{Message: "Password must be at least 8 characters long."}
	case len(password) > maxPasswordBytes:
		return &PolicyError{Message: "Password must be at most 72 bytes."}
	case !letterPattern.MatchString(password):
		return &PolicyError{Message: "Password must contain at least one letter."}
	case !digitPattern.MatchString(password):
		return &PolicyError{Message: "Password must contain at least one number."}
	case !symbolPattern.MatchString(password):
		return &PolicyError{Message: "Password must contain at least one special character."}
	}
	return nil
}

// Hasher bcrypt 密码哈希
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare 密码不匹配时返回 false, nil
func (h *Hasher) Compare(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
